package codec

import (
	"encoding/json"
)

// NewJSON creates a codec using json encoding. Numbers decode as float64
// unless the value was stored as json.Number.
func NewJSON() Codec {
	return &jsonCodec{}
}

// jsonCodec implements the Codec interface using json encoding
type jsonCodec struct{}

func (jsonCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Decode(b []byte) (any, error) {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return v, nil
}
