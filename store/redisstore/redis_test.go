package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creastat/sessionlock/sessionstate"
	"github.com/creastat/sessionlock/store"
	"github.com/creastat/sessionlock/store/storetest"
)

func setupTestStore(t *testing.T) (*miniredis.Miniredis, *Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	return mr, NewStore(client)
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Client {
		_, s := setupTestStore(t)
		return s
	})
}

func TestHashLayout(t *testing.T) {
	mr, s := setupTestStore(t)
	defer s.Close()
	ctx := context.Background()
	k := store.Key{Namespace: "ns", Set: "set", UserKey: "app_id"}

	require.NoError(t, s.Put(ctx, k, store.WritePolicy{TTL: 30}, store.Bins{
		"Locked":       true,
		"LockId":       int64(4),
		"SessionItems": map[string][]byte{"a": []byte("1")},
	}))

	assert.Equal(t, "1", mr.HGet("ns:set:app_id", "Locked"))
	assert.Equal(t, "4", mr.HGet("ns:set:app_id", "LockId"))
	assert.Equal(t, mapMarker, mr.HGet("ns:set:app_id", "SessionItems"))
	assert.Equal(t, "1", mr.HGet("ns:set:app_id", "SessionItems:a"))
	assert.Equal(t, "1", mr.HGet("ns:set:app_id", genField))
	assert.Equal(t, 30*time.Second, mr.TTL("ns:set:app_id"))
}

func TestExpiry(t *testing.T) {
	mr, s := setupTestStore(t)
	defer s.Close()
	ctx := context.Background()
	k := store.Key{Namespace: "test", Set: "test", UserKey: "ttl"}

	require.NoError(t, s.Put(ctx, k, store.WritePolicy{TTL: 10}, store.Bins{"a": 1}))
	require.NoError(t, s.Put(ctx, k, store.WritePolicy{Replace: true}, store.Bins{"b": 1}))
	assert.Equal(t, 10*time.Second, mr.TTL(k.String()))

	mr.FastForward(11 * time.Second)
	rec, err := s.Get(ctx, k)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestScriptRefreshesExpiry(t *testing.T) {
	mr, s := setupTestStore(t)
	defer s.Close()
	ctx := context.Background()
	require.NoError(t, s.RegisterModule(ctx, sessionstate.Module()))
	k := store.Key{Namespace: "test", Set: "test", UserKey: "app_s"}

	require.NoError(t, s.Put(ctx, k, store.WritePolicy{TTL: 5}, store.Bins{sessionstate.BinSessionTimeout: 5}))
	res, err := s.Execute(ctx, k, sessionstate.Name, sessionstate.FuncResetItemTimeout, 60)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res)
	assert.Equal(t, 60*time.Second, mr.TTL(k.String()))
	assert.Equal(t, "2", mr.HGet(k.String(), genField))
}

func TestExecuteUnknownFunction(t *testing.T) {
	_, s := setupTestStore(t)
	defer s.Close()
	ctx := context.Background()
	require.NoError(t, s.RegisterModule(ctx, sessionstate.Module()))

	_, err := s.Execute(ctx, store.Key{UserKey: "x"}, sessionstate.Name, "Nope")
	assert.Error(t, err)
}

func TestExecuteAfterScriptFlush(t *testing.T) {
	_, s := setupTestStore(t)
	defer s.Close()
	ctx := context.Background()
	mod := sessionstate.Module()
	require.NoError(t, s.RegisterModule(ctx, mod))

	require.NoError(t, s.client.ScriptFlush(ctx).Err())
	ok, err := s.HasModule(ctx, mod)
	require.NoError(t, err)
	assert.False(t, ok)

	// EVAL fallback still runs the cached script source
	res, err := s.Execute(ctx, store.Key{UserKey: "x"}, mod.Name, sessionstate.FuncResetItemTimeout, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res)
}

func TestInvalidBinName(t *testing.T) {
	_, s := setupTestStore(t)
	defer s.Close()
	err := s.Put(context.Background(), store.Key{UserKey: "x"}, store.WritePolicy{}, store.Bins{"a:b": 1})
	assert.Error(t, err)
}

func TestFlattenArgs(t *testing.T) {
	argv, err := flattenArgs("F", []any{
		int64(7), true, []string{"x", "y"},
		map[string][]byte{"b": []byte("2"), "a": []byte("1")}, nil,
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"F", int64(7), "1", 2, "x", "y", 2, "a", "1", "b", "2", 0}, argv)

	_, err = flattenArgs("F", []any{3.5})
	assert.Error(t, err)
}

func TestLargeLockIDRoundTrip(t *testing.T) {
	mr, s := setupTestStore(t)
	defer s.Close()
	ctx := context.Background()
	require.NoError(t, s.RegisterModule(ctx, sessionstate.Module()))
	k := store.Key{Namespace: "test", Set: "test", UserKey: "app_big"}

	require.NoError(t, s.Put(ctx, k, store.WritePolicy{}, store.Bins{
		sessionstate.BinLocked:         false,
		sessionstate.BinLockID:         int64(123456789012345),
		sessionstate.BinLockTime:       int64(0),
		sessionstate.BinSessionTimeout: 60,
	}))

	res, err := s.Execute(ctx, k, sessionstate.Name, sessionstate.FuncGetItemExclusive, int64(638000000000000000))
	require.NoError(t, err)
	reply, err := sessionstate.ParseExclusiveReply(res)
	require.NoError(t, err)
	require.False(t, reply.Locked)
	assert.Equal(t, int64(123456789012346), reply.LockID)
	// stored as a plain integer, never in exponent notation
	assert.Equal(t, "123456789012346", mr.HGet(k.String(), sessionstate.BinLockID))

	res, err = s.Execute(ctx, k, sessionstate.Name, sessionstate.FuncReleaseItemExclusive, reply.LockID, 60)
	require.NoError(t, err)
	applied, err := sessionstate.ParseApplied(res)
	require.NoError(t, err)
	assert.True(t, applied)
}
