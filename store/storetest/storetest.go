// Package storetest holds the behaviour every store.Client driver must share.
// Driver packages run it from their own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creastat/sessionlock/sessionstate"
	"github.com/creastat/sessionlock/store"
)

// Factory returns a fresh, empty client. The suite closes it.
type Factory func(t *testing.T) store.Client

type suiteTest struct {
	name string
	fn   func(t *testing.T, c store.Client)
}

var dataTests = []suiteTest{
	{"GetMissing", testGetMissing},
	{"PutCreatesAndMerges", testPutCreatesAndMerges},
	{"PutReplace", testPutReplace},
	{"PutGuarded", testPutGuarded},
	{"PutUpdateOnly", testPutUpdateOnly},
	{"MapBins", testMapBins},
	{"GetBinNames", testGetBinNames},
	{"Delete", testDelete},
	{"ConcurrentGuardedWrites", testConcurrentGuardedWrites},
}

var moduleTests = []suiteTest{
	{"Modules", testModules},
	{"SessionStateFunctions", testSessionStateFunctions},
}

// Run executes the full driver conformance suite.
func Run(t *testing.T, newClient Factory) {
	run(t, newClient, dataTests)
	run(t, newClient, moduleTests)
}

// RunData executes the record tests only, for drivers without server-side modules.
func RunData(t *testing.T, newClient Factory) {
	run(t, newClient, dataTests)
}

func run(t *testing.T, newClient Factory, tests []suiteTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClient(t)
			t.Cleanup(func() { _ = c.Close() })
			tt.fn(t, c)
		})
	}
}

func key(name string) store.Key {
	return store.Key{Namespace: "test", Set: "test", UserKey: name}
}

func testGetMissing(t *testing.T, c store.Client) {
	rec, err := c.Get(context.Background(), key("missing"))
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func testPutCreatesAndMerges(t *testing.T, c store.Client) {
	ctx := context.Background()
	k := key("merge")

	require.NoError(t, c.Put(ctx, k, store.WritePolicy{}, store.Bins{"a": int64(1), "flag": true}))
	rec, err := c.Get(ctx, k)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, uint32(1), rec.Generation)
	assert.Equal(t, int64(1), rec.Int64("a"))
	assert.True(t, rec.Bool("flag"))

	require.NoError(t, c.Put(ctx, k, store.WritePolicy{}, store.Bins{"b": "x", "flag": false}))
	rec, err = c.Get(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), rec.Generation)
	assert.Equal(t, int64(1), rec.Int64("a"))
	assert.False(t, rec.Bool("flag"))
	assert.True(t, rec.Has("b"))
}

func testPutReplace(t *testing.T, c store.Client) {
	ctx := context.Background()
	k := key("replace")

	require.NoError(t, c.Put(ctx, k, store.WritePolicy{}, store.Bins{"a": 1, "b": 2}))
	require.NoError(t, c.Put(ctx, k, store.WritePolicy{Replace: true}, store.Bins{"c": 3}))

	rec, err := c.Get(ctx, k)
	require.NoError(t, err)
	assert.False(t, rec.Has("a"))
	assert.False(t, rec.Has("b"))
	assert.Equal(t, 3, rec.Int("c"))
	assert.Equal(t, uint32(2), rec.Generation)
}

func testPutGuarded(t *testing.T, c store.Client) {
	ctx := context.Background()
	k := key("guarded")

	err := c.Put(ctx, k, store.WritePolicy{ExpectGeneration: true, Generation: 1}, store.Bins{"a": 1})
	assert.ErrorIs(t, err, store.ErrGeneration)

	require.NoError(t, c.Put(ctx, k, store.WritePolicy{}, store.Bins{"a": 1}))
	require.NoError(t, c.Put(ctx, k, store.WritePolicy{ExpectGeneration: true, Generation: 1}, store.Bins{"a": 2}))

	err = c.Put(ctx, k, store.WritePolicy{ExpectGeneration: true, Generation: 1}, store.Bins{"a": 3})
	assert.ErrorIs(t, err, store.ErrGeneration)

	rec, err := c.Get(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Int("a"))
}

func testPutUpdateOnly(t *testing.T, c store.Client) {
	err := c.Put(context.Background(), key("update-only"), store.WritePolicy{UpdateOnly: true}, store.Bins{"a": 1})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testMapBins(t *testing.T, c store.Client) {
	ctx := context.Background()
	k := key("maps")

	items := map[string][]byte{"one": []byte("1"), "two": []byte(`"2"`)}
	require.NoError(t, c.Put(ctx, k, store.WritePolicy{}, store.Bins{"Items": items, "n": 5}))
	rec, err := c.Get(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, items, rec.Map("Items"))
	assert.Equal(t, 5, rec.Int("n"))

	// a map bin is written as a whole
	require.NoError(t, c.Put(ctx, k, store.WritePolicy{}, store.Bins{"Items": map[string][]byte{"three": []byte("3")}}))
	rec, err = c.Get(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"three": []byte("3")}, rec.Map("Items"))
	assert.Equal(t, 5, rec.Int("n"))

	require.NoError(t, c.Put(ctx, k, store.WritePolicy{}, store.Bins{"Items": map[string][]byte{}}))
	rec, err = c.Get(ctx, k)
	require.NoError(t, err)
	assert.True(t, rec.Has("Items"))
	assert.Empty(t, rec.Map("Items"))
}

func testGetBinNames(t *testing.T, c store.Client) {
	ctx := context.Background()
	k := key("bins")

	require.NoError(t, c.Put(ctx, k, store.WritePolicy{}, store.Bins{"a": 1, "b": 2, "c": 3}))
	rec, err := c.Get(ctx, k, "a", "c", "missing")
	require.NoError(t, err)
	assert.Len(t, rec.Bins, 2)
	assert.Equal(t, 1, rec.Int("a"))
	assert.Equal(t, 3, rec.Int("c"))
	assert.Equal(t, uint32(1), rec.Generation)
}

func testDelete(t *testing.T, c store.Client) {
	ctx := context.Background()
	k := key("delete")

	existed, err := c.Delete(ctx, k, store.WritePolicy{})
	require.NoError(t, err)
	assert.False(t, existed)

	require.NoError(t, c.Put(ctx, k, store.WritePolicy{}, store.Bins{"a": 1}))
	_, err = c.Delete(ctx, k, store.WritePolicy{ExpectGeneration: true, Generation: 7})
	assert.ErrorIs(t, err, store.ErrGeneration)

	existed, err = c.Delete(ctx, k, store.WritePolicy{ExpectGeneration: true, Generation: 1})
	require.NoError(t, err)
	assert.True(t, existed)

	rec, err := c.Get(ctx, k)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func testConcurrentGuardedWrites(t *testing.T, c store.Client) {
	ctx := context.Background()
	k := key("counter")
	require.NoError(t, c.Put(ctx, k, store.WritePolicy{}, store.Bins{"n": 0}))

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				rec, err := c.Get(ctx, k)
				if err != nil {
					errs <- err
					return
				}
				policy := store.WritePolicy{ExpectGeneration: true, Generation: rec.Generation}
				err = c.Put(ctx, k, policy, store.Bins{"n": rec.Int("n") + 1})
				if err == nil {
					return
				}
				if !errors.Is(err, store.ErrGeneration) {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	rec, err := c.Get(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, workers, rec.Int("n"))
	assert.Equal(t, uint32(workers+1), rec.Generation)
}

func testModules(t *testing.T, c store.Client) {
	ctx := context.Background()
	mod := sessionstate.Module()

	_, err := c.Execute(ctx, key("m"), mod.Name, sessionstate.FuncResetItemTimeout, 10)
	assert.ErrorIs(t, err, store.ErrModuleNotFound)

	ok, err := c.HasModule(ctx, mod)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.RegisterModule(ctx, mod))
	ok, err = c.HasModule(ctx, mod)
	require.NoError(t, err)
	assert.True(t, ok)

	// registering twice is harmless
	require.NoError(t, c.RegisterModule(ctx, mod))
}

func testSessionStateFunctions(t *testing.T, c store.Client) {
	ctx := context.Background()
	mod := sessionstate.Module()
	require.NoError(t, c.RegisterModule(ctx, mod))
	k := key("app_session")

	call := func(fn string, args ...any) any {
		t.Helper()
		res, err := c.Execute(ctx, k, mod.Name, fn, args...)
		require.NoError(t, err, fn)
		return res
	}
	applied := func(fn string, args ...any) bool {
		t.Helper()
		ok, err := sessionstate.ParseApplied(call(fn, args...))
		require.NoError(t, err)
		return ok
	}
	exclusive := func(now int64) sessionstate.ExclusiveReply {
		t.Helper()
		reply, err := sessionstate.ParseExclusiveReply(call(sessionstate.FuncGetItemExclusive, now))
		require.NoError(t, err)
		return reply
	}

	// missing record
	assert.Equal(t, sessionstate.ExclusiveReply{}, exclusive(100))
	assert.False(t, applied(sessionstate.FuncResetItemTimeout, 60))
	assert.False(t, applied(sessionstate.FuncRemoveItem, int64(1)))

	require.NoError(t, c.Put(ctx, k, store.WritePolicy{}, store.Bins{
		sessionstate.BinLocked:         false,
		sessionstate.BinLockID:         int64(0),
		sessionstate.BinLockTime:       int64(0),
		sessionstate.BinSessionTimeout: 60,
	}))

	// uninitialized record: acquired, no items
	reply := exclusive(638400000000000000)
	assert.True(t, reply.Found)
	assert.False(t, reply.Locked)
	assert.Equal(t, int64(1), reply.LockID)
	assert.Equal(t, int64(638400000000000000), reply.LockTime)
	assert.Equal(t, 60, reply.Timeout)
	assert.Nil(t, reply.Items)

	// contended
	reply = exclusive(638400000000000001)
	assert.True(t, reply.Locked)
	assert.Equal(t, int64(1), reply.LockID)
	assert.Equal(t, int64(638400000000000000), reply.LockTime)

	// wrong owner is a no-op
	assert.False(t, applied(sessionstate.FuncWriteItemExclusive, int64(9), 120, map[string][]byte{"x": []byte("1")}))
	assert.False(t, applied(sessionstate.FuncReleaseItemExclusive, int64(9), 120))

	assert.True(t, applied(sessionstate.FuncWriteItemExclusive, int64(1), 120,
		map[string][]byte{"a": []byte("1"), "b": []byte("2")}))
	rec, err := c.Get(ctx, k)
	require.NoError(t, err)
	assert.False(t, rec.Bool(sessionstate.BinLocked))
	assert.Equal(t, 120, rec.Int(sessionstate.BinSessionTimeout))

	reply = exclusive(638400000000000002)
	assert.False(t, reply.Locked)
	assert.Equal(t, int64(2), reply.LockID)
	assert.Equal(t, map[string][]byte{"a": []byte("1"), "b": []byte("2")}, reply.Items)

	assert.True(t, applied(sessionstate.FuncMergeItemExclusive, int64(2), 120,
		[]string{"a"}, map[string][]byte{"c": []byte("3"), "b": []byte("22")}))
	rec, err = c.Get(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"b": []byte("22"), "c": []byte("3")}, rec.Map(sessionstate.BinSessionItems))
	assert.Equal(t, int64(2), rec.Int64(sessionstate.BinLockID))

	// release keeps the items
	reply = exclusive(638400000000000003)
	assert.Equal(t, int64(3), reply.LockID)
	assert.True(t, applied(sessionstate.FuncReleaseItemExclusive, int64(3), 30))
	rec, err = c.Get(ctx, k)
	require.NoError(t, err)
	assert.False(t, rec.Bool(sessionstate.BinLocked))
	assert.Equal(t, 30, rec.Int(sessionstate.BinSessionTimeout))
	assert.Len(t, rec.Map(sessionstate.BinSessionItems), 2)

	assert.True(t, applied(sessionstate.FuncResetItemTimeout, 90))
	rec, err = c.Get(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, 90, rec.Int(sessionstate.BinSessionTimeout))

	assert.False(t, applied(sessionstate.FuncRemoveItem, int64(2)))
	assert.True(t, applied(sessionstate.FuncRemoveItem, int64(3)))
	rec, err = c.Get(ctx, k)
	require.NoError(t, err)
	assert.Nil(t, rec, fmt.Sprintf("record %s should be gone", k))
}
