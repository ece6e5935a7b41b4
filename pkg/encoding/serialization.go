package encoding

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Serializable provides a clean, simple interface for serializing and deserializing values.
type Serializable interface {
	Serialize() ([]byte, error)
	Deserialize([]byte) error
}

var _ Serializable = (*Float32s)(nil)

// Float32s is a sample buffer encoded as little-endian IEEE 754 words.
type Float32s []float32

func (f Float32s) Serialize() ([]byte, error) {
	out := make([]byte, 4*len(f))
	for i, v := range f {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(v))
	}
	return out, nil
}

// Deserialize decodes into the existing buffer, which must already have
// the expected length.
func (f *Float32s) Deserialize(b []byte) error {
	if len(b) != 4*len(*f) {
		return fmt.Errorf("float32 buffer: got %d bytes, want %d", len(b), 4*len(*f))
	}
	for i := range *f {
		(*f)[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return nil
}
