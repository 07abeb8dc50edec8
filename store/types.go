package store

import (
	"github.com/spf13/cast"
)

// Key addresses a single record.
type Key struct {
	Namespace string
	Set       string
	UserKey   string
}

// String renders the key as namespace:set:userKey.
func (k Key) String() string {
	return k.Namespace + ":" + k.Set + ":" + k.UserKey
}

// Bins holds named record values. Supported value types are bool, the
// integer types, string, []byte and map[string][]byte.
type Bins map[string]any

// Clone returns a copy of b. Byte slices and maps are copied as well.
func (b Bins) Clone() Bins {
	if b == nil {
		return nil
	}
	out := make(Bins, len(b))
	for name, value := range b {
		out[name] = cloneValue(value)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case []byte:
		return append([]byte(nil), val...)
	case map[string][]byte:
		m := make(map[string][]byte, len(val))
		for k, item := range val {
			m[k] = append([]byte(nil), item...)
		}
		return m
	default:
		return v
	}
}

// Record is a stored record together with its generation.
type Record struct {
	Bins       Bins
	Generation uint32
}

// Has reports whether the bin is present.
func (r *Record) Has(name string) bool {
	_, ok := r.Bins[name]
	return ok
}

// Bool returns the named bin as a bool. Missing or malformed bins read as false.
func (r *Record) Bool(name string) bool {
	v, _ := cast.ToBoolE(r.Bins[name])
	return v
}

// Int64 returns the named bin as an int64. Missing or malformed bins read as 0.
func (r *Record) Int64(name string) int64 {
	v, _ := cast.ToInt64E(r.Bins[name])
	return v
}

// Int returns the named bin as an int. Missing or malformed bins read as 0.
func (r *Record) Int(name string) int {
	v, _ := cast.ToIntE(r.Bins[name])
	return v
}

// Map returns the named map bin, or nil when it is absent.
func (r *Record) Map(name string) map[string][]byte {
	m, _ := r.Bins[name].(map[string][]byte)
	return m
}

// WritePolicy controls how Put and Delete apply.
type WritePolicy struct {
	// Generation is the expected record generation when ExpectGeneration is set.
	Generation uint32
	// ExpectGeneration turns the operation into a guarded write.
	ExpectGeneration bool
	// UpdateOnly rejects writes to missing records with ErrNotFound.
	UpdateOnly bool
	// Replace drops every bin not present in the write.
	Replace bool
	// TTL is the record expiry in seconds. Values <= 0 leave the expiry untouched
	// on updates and create records without one.
	TTL int
}
