package sessionstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creastat/sessionlock/store"
)

func TestModule(t *testing.T) {
	mod := Module()
	assert.Equal(t, "sessionstate", mod.Name)
	assert.Contains(t, mod.Source, "GetItemExclusive")
	for _, fn := range []string{
		FuncGetItemExclusive, FuncMergeItemExclusive, FuncWriteItemExclusive,
		FuncReleaseItemExclusive, FuncResetItemTimeout, FuncRemoveItem,
	} {
		assert.Contains(t, mod.Funcs, fn)
		assert.Contains(t, Source(), "procs."+fn)
	}
}

func TestLockIDFormattedAsInteger(t *testing.T) {
	// Lua 5.1 tostring switches to %.14g from 1e14 on
	assert.NotContains(t, Source(), "tostring(lockId)")
	assert.Contains(t, Source(), "string.format('%.0f', lockId)")
}

func TestParseExclusiveReply(t *testing.T) {
	reply, err := ParseExclusiveReply(nil)
	require.NoError(t, err)
	assert.False(t, reply.Found)

	// shape returned by Redis
	reply, err = ParseExclusiveReply([]any{int64(0), int64(3), "638400000000000000", int64(20), []any{"a", "1"}})
	require.NoError(t, err)
	assert.Equal(t, ExclusiveReply{
		Found:    true,
		LockID:   3,
		LockTime: 638400000000000000,
		Timeout:  20,
		Items:    map[string][]byte{"a": []byte("1")},
	}, reply)

	reply, err = ParseExclusiveReply([]any{int64(1), int64(3), "5", int64(20)})
	require.NoError(t, err)
	assert.True(t, reply.Locked)
	assert.Nil(t, reply.Items)

	_, err = ParseExclusiveReply([]any{int64(1)})
	assert.Error(t, err)
	_, err = ParseExclusiveReply([]any{int64(0), int64(1), "1", int64(1), []any{"odd"}})
	assert.Error(t, err)
}

func TestParseApplied(t *testing.T) {
	ok, err := ParseApplied(int64(1))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ParseApplied(int64(0))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = ParseApplied([]any{})
	assert.Error(t, err)
}

func TestGetItemExclusiveIncrementsLockID(t *testing.T) {
	rec := store.NewProcRecord(store.Bins{
		BinLocked:         false,
		BinLockID:         int64(41),
		BinSessionTimeout: 20,
		BinSessionItems:   map[string][]byte{"k": []byte("v")},
	})
	res, err := getItemExclusive(rec, []any{int64(1000)})
	require.NoError(t, err)

	reply, err := ParseExclusiveReply(res)
	require.NoError(t, err)
	assert.Equal(t, int64(42), reply.LockID)
	assert.Equal(t, map[string][]byte{"k": []byte("v")}, reply.Items)

	op, bins, ttl := rec.Result()
	assert.Equal(t, store.ProcUpdate, op)
	assert.Equal(t, 20, ttl)
	assert.Equal(t, true, bins[BinLocked])
	assert.Equal(t, int64(1000), bins[BinLockTime])
}

func TestMissingArguments(t *testing.T) {
	rec := store.NewProcRecord(nil)
	_, err := mergeItemExclusive(rec, []any{int64(1), 10})
	assert.Error(t, err)
	_, err = writeItemExclusive(rec, []any{int64(1), 10, "not a map"})
	assert.Error(t, err)
}
