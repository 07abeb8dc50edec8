package sessionlock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creastat/sessionlock/clock"
	"github.com/creastat/sessionlock/store"
	"github.com/creastat/sessionlock/store/memory"
)

func openTestProviders(t *testing.T) map[string]*Provider {
	t.Helper()
	ctx := context.Background()
	clk := clock.NewManual(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	providers := make(map[string]*Provider)

	for _, procedures := range []bool{false, true} {
		cfg := DefaultConfig()
		cfg.ApplicationName = "shop"
		cfg.UseProcedures = procedures

		memCfg := cfg
		memCfg.Store = StoreTypeMemory
		p, err := Open(ctx, memCfg, WithClock(clk))
		require.NoError(t, err)
		providers["memory/"+string(cfg.Strategy())] = p

		mr := miniredis.RunT(t)
		redisCfg := cfg
		redisCfg.Hosts = mr.Addr()
		p, err = Open(ctx, redisCfg, WithClock(clk))
		require.NoError(t, err)
		providers["redis/"+string(cfg.Strategy())] = p
	}
	t.Cleanup(func() {
		for _, p := range providers {
			_ = p.Close()
		}
	})
	return providers
}

func TestProviderLifecycle(t *testing.T) {
	for name, p := range openTestProviders(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id := NewSessionID()

			res, err := p.GetItemExclusive(ctx, id)
			require.NoError(t, err)
			assert.Nil(t, res.LockID)
			assert.Nil(t, res.Data)

			require.NoError(t, p.CreateUninitializedItem(ctx, id, 20))
			res, err = p.GetItemExclusive(ctx, id)
			require.NoError(t, err)
			require.NotNil(t, res.Data)
			require.NotNil(t, res.LockID)
			assert.Equal(t, int64(1), *res.LockID)
			assert.Equal(t, ActionInitializeItem, res.Actions)
			assert.Equal(t, 20, res.Data.Timeout)

			busy, err := p.GetItemExclusive(ctx, id)
			require.NoError(t, err)
			assert.True(t, busy.Locked)
			assert.Nil(t, busy.Data)

			data := p.CreateNewStoreData(30)
			data.Items.Set("cart", "3 items")
			require.NoError(t, p.SetAndReleaseItemExclusive(ctx, id, data, *res.LockID, false))

			res, err = p.GetItem(ctx, id)
			require.NoError(t, err)
			require.NotNil(t, res.Data)
			assert.False(t, res.Locked)
			assert.Equal(t, ActionNone, res.Actions)
			assert.Equal(t, 30, res.Data.Timeout)
			v, ok := res.Data.Items.Get("cart")
			assert.True(t, ok)
			assert.Equal(t, "3 items", v)

			require.NoError(t, p.ResetItemTimeout(ctx, id))
			res, err = p.GetItem(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, 20, res.Data.Timeout)

			res, err = p.GetItemExclusive(ctx, id)
			require.NoError(t, err)
			require.NoError(t, p.ReleaseItemExclusive(ctx, id, res.LockID, 0))
			res, err = p.GetItem(ctx, id)
			require.NoError(t, err)
			assert.False(t, res.Locked)

			require.NoError(t, p.RemoveItem(ctx, id, res.LockID))
			res, err = p.GetItem(ctx, id)
			require.NoError(t, err)
			assert.Nil(t, res.LockID)
		})
	}
}

func TestProviderNewItem(t *testing.T) {
	for name, p := range openTestProviders(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			data := p.CreateNewStoreData(5)
			data.Items.Set("user", "ada")
			require.NoError(t, p.SetAndReleaseItemExclusive(ctx, "abc", data, 0, true))

			res, err := p.GetItem(ctx, "abc")
			require.NoError(t, err)
			require.NotNil(t, res.Data)
			assert.Equal(t, 5, res.Data.Timeout)
			assert.Equal(t, int64(0), *res.LockID)
			v, _ := res.Data.Items.Get("user")
			assert.Equal(t, "ada", v)
		})
	}
}

func TestProviderNilLockID(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Store = StoreTypeMemory
	p, err := Open(ctx, cfg)
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.CreateUninitializedItem(ctx, "s", 1))
	res, err := p.GetItemExclusive(ctx, "s")
	require.NoError(t, err)

	assert.NoError(t, p.ReleaseItemExclusive(ctx, "s", nil, 0))
	assert.NoError(t, p.RemoveItem(ctx, "s", nil))

	res, err = p.GetItem(ctx, "s")
	require.NoError(t, err)
	assert.True(t, res.Locked)
}

func TestProviderErrorsPropagate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store = StoreTypeMemory
	p, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.GetItem(ctx, "s")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProviderClose(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store = StoreTypeMemory
	p, err := Open(context.Background(), cfg)
	require.NoError(t, err)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	_, err = p.GetItem(context.Background(), "s")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestOpenInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store = "aerospike"
	_, err := Open(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrInvalidStoreType)
}

// unreachableClient fails every module call.
type unreachableClient struct {
	store.Client
	closed bool
}

func (c *unreachableClient) HasModule(context.Context, store.Module) (bool, error) {
	return false, errors.New("dial tcp: connection refused")
}

func (c *unreachableClient) Close() error {
	c.closed = true
	return c.Client.Close()
}

func TestOpenRegistrationFailure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store = StoreTypeMemory
	cfg.UseProcedures = true
	client := &unreachableClient{Client: memory.NewStore(nil)}

	_, err := Open(context.Background(), cfg, WithStoreClient(client))
	require.Error(t, err)
	assert.True(t, client.closed)
}

func TestOpenSupabase(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store = StoreTypeSupabase
	cfg.SupabaseURL = "http://127.0.0.1:1"
	cfg.SupabaseKey = "key"

	// opening does not reach the project, the direct strategy needs no module
	p, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer p.Close()
	assert.Equal(t, "direct", string(p.Store().Strategy()))
}
