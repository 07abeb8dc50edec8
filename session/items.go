package session

import (
	"fmt"
	"sort"

	"github.com/creastat/sessionlock/codec"
)

// Items is a session payload: named values plus the names modified or
// deleted since it was loaded. The procedure strategy writes only those
// changes back; the direct strategy rewrites the whole collection.
//
// Items is not safe for concurrent use.
type Items struct {
	values   map[string]any
	modified map[string]struct{}
	deleted  map[string]struct{}
}

// NewItems returns an empty collection.
func NewItems() *Items {
	return &Items{
		values:   make(map[string]any),
		modified: make(map[string]struct{}),
		deleted:  make(map[string]struct{}),
	}
}

// Get returns the named value.
func (i *Items) Get(name string) (any, bool) {
	v, ok := i.values[name]
	return v, ok
}

// Set stores a value and marks it modified.
func (i *Items) Set(name string, value any) {
	i.values[name] = value
	i.modified[name] = struct{}{}
	delete(i.deleted, name)
}

// Delete removes a value and marks it deleted.
func (i *Items) Delete(name string) {
	delete(i.values, name)
	delete(i.modified, name)
	i.deleted[name] = struct{}{}
}

// Len returns the number of values.
func (i *Items) Len() int {
	return len(i.values)
}

// Names returns the value names in sorted order.
func (i *Items) Names() []string {
	return sortedKeys(i.values)
}

// Modified returns the names set since the collection was loaded, sorted.
func (i *Items) Modified() []string {
	return sortedKeys(i.modified)
}

// Deleted returns the names deleted since the collection was loaded, sorted.
func (i *Items) Deleted() []string {
	return sortedKeys(i.deleted)
}

// Dirty reports whether anything changed since the collection was loaded.
func (i *Items) Dirty() bool {
	return len(i.modified) > 0 || len(i.deleted) > 0
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// encodeAll encodes every value. A nil collection encodes as an empty map.
func encodeAll(c codec.Codec, items *Items) (map[string][]byte, error) {
	out := make(map[string][]byte)
	if items == nil {
		return out, nil
	}
	for name, value := range items.values {
		b, err := c.Encode(value)
		if err != nil {
			return nil, fmt.Errorf("session: encode item %s: %w", name, err)
		}
		out[name] = b
	}
	return out, nil
}

// encodeModified encodes the values set since load.
func encodeModified(c codec.Codec, items *Items) (map[string][]byte, error) {
	out := make(map[string][]byte, len(items.modified))
	for name := range items.modified {
		b, err := c.Encode(items.values[name])
		if err != nil {
			return nil, fmt.Errorf("session: encode item %s: %w", name, err)
		}
		out[name] = b
	}
	return out, nil
}

// decodeItems builds a clean collection from stored bytes.
func decodeItems(c codec.Codec, raw map[string][]byte) (*Items, error) {
	items := NewItems()
	for name, b := range raw {
		v, err := c.Decode(b)
		if err != nil {
			return nil, fmt.Errorf("session: decode item %s: %w", name, err)
		}
		items.values[name] = v
	}
	return items, nil
}
