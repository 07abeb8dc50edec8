package codec

import (
	"bytes"
	"encoding/gob"
)

// NewGob creates a codec using Go's binary gob format. Values of user defined
// types must be registered with gob.Register before use.
func NewGob() Codec {
	return &gobCodec{}
}

// gobCodec implements the Codec interface using gob encoding
type gobCodec struct{}

func init() {
	gob.Register(map[string]any{})
	gob.Register([]any{})
}

// envelope lets gob carry an interface value.
type envelope struct {
	V any
}

func (gobCodec) Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(envelope{V: v}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gobCodec) Decode(b []byte) (any, error) {
	var env envelope
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&env); err != nil {
		return nil, err
	}
	return env.V, nil
}
