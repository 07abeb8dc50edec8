package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creastat/sessionlock/store"
	"github.com/creastat/sessionlock/store/memory"
	"github.com/creastat/sessionlock/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Client {
		return Wrap(memory.NewStore(nil), nil, "memory")
	})
}

func TestResult(t *testing.T) {
	assert.Equal(t, "ok", result(nil))
	assert.Equal(t, "generation_mismatch", result(store.ErrGeneration))
	assert.Equal(t, "not_found", result(store.ErrNotFound))
	assert.Equal(t, "error", result(context.Canceled))
	assert.True(t, expected(store.ErrGeneration))
	assert.False(t, expected(context.Canceled))
}

func TestWrapPassesErrorsThrough(t *testing.T) {
	c := Wrap(memory.NewStore(nil), nil, "memory")
	k := store.Key{Namespace: "test", Set: "test", UserKey: "x"}
	err := c.Put(context.Background(), k, store.WritePolicy{ExpectGeneration: true, Generation: 3}, store.Bins{"a": 1})
	assert.ErrorIs(t, err, store.ErrGeneration)

	existed, err := c.Delete(context.Background(), k, store.WritePolicy{})
	require.NoError(t, err)
	assert.False(t, existed)
}
