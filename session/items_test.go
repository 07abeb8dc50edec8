package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creastat/sessionlock/codec"
)

func TestDeriveKey(t *testing.T) {
	k := DeriveKey("ns", "set", "shop", "abc123")
	assert.Equal(t, "ns", k.Namespace)
	assert.Equal(t, "set", k.Set)
	assert.Equal(t, "shop_abc123", k.UserKey)

	// distinct pairs give distinct keys once '_' is banned from app names
	assert.NotEqual(t, DeriveKey("ns", "set", "a", "b_c"), DeriveKey("ns", "set", "ab", "c"))
}

func TestValidateScope(t *testing.T) {
	assert.NoError(t, ValidateScope("test", "test", ""))
	assert.NoError(t, ValidateScope("test", "test", "shop"))
	assert.ErrorIs(t, ValidateScope("test", "test", "my_shop"), ErrInvalidConfig)
	assert.ErrorIs(t, ValidateScope("a:b", "test", "shop"), ErrInvalidConfig)
	assert.ErrorIs(t, ValidateScope("", "test", "shop"), ErrInvalidConfig)
}

func TestItemsTracking(t *testing.T) {
	items := NewItems()
	assert.False(t, items.Dirty())

	items.Set("a", 1)
	items.Set("b", 2)
	items.Delete("a")
	assert.True(t, items.Dirty())
	assert.Equal(t, []string{"b"}, items.Names())
	assert.Equal(t, []string{"b"}, items.Modified())
	assert.Equal(t, []string{"a"}, items.Deleted())

	items.Set("a", 3)
	assert.Empty(t, items.Deleted())
	assert.Equal(t, []string{"a", "b"}, items.Modified())
	v, ok := items.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestItemsEncoding(t *testing.T) {
	c := codec.Default()
	items := NewItems()
	items.Set("name", "ada")
	items.Set("n", 2)

	all, err := encodeAll(c, items)
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"name": []byte(`"ada"`), "n": []byte("2")}, all)

	decoded, err := decodeItems(c, all)
	require.NoError(t, err)
	assert.False(t, decoded.Dirty())
	assert.Equal(t, 2, decoded.Len())

	decoded.Set("name", "bob")
	modified, err := encodeModified(c, decoded)
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"name": []byte(`"bob"`)}, modified)

	empty, err := encodeAll(c, nil)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	_, err = decodeItems(c, map[string][]byte{"bad": []byte("{")})
	assert.Error(t, err)
}
