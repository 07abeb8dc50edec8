// Package codec converts session item values to and from the bytes stored in
// the SessionItems map.
package codec

// Codec encodes and decodes one session item value.
type Codec interface {
	// Encode serializes v into bytes.
	Encode(v any) ([]byte, error)
	// Decode deserializes b into a value. Decode(Encode(v)) must yield a value
	// equal to v for every type the codec supports.
	Decode(b []byte) (any, error)
}

// Default returns the codec used when none is configured.
func Default() Codec {
	return NewJSON()
}

// ByName returns the codec with the given name ("json" or "gob").
func ByName(name string) (Codec, bool) {
	switch name {
	case "", "json":
		return NewJSON(), true
	case "gob":
		return NewGob(), true
	default:
		return nil, false
	}
}
