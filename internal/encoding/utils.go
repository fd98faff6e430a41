// Package encoding handles the wire format for persisted vectors: a
// little-endian length-prefixed float32 blob, matching the teacher's
// vector BLOB encoding so the Section Store can reuse proven byte layout.
package encoding

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrInvalidVector is returned when a vector is nil, empty, contains a
// NaN/Inf component, or a decoded blob is truncated.
var ErrInvalidVector = errors.New("invalid vector")

// EncodeVector encodes a float32 vector to a length-prefixed little-endian
// byte blob suitable for a SQLite BLOB column.
func EncodeVector(vector []float32) ([]byte, error) {
	if vector == nil {
		return nil, ErrInvalidVector
	}

	buf := new(bytes.Buffer)

	vectorLen := len(vector)
	if vectorLen > 2147483647 {
		return nil, fmt.Errorf("vector too large: %d elements exceeds maximum", vectorLen)
	}
	if err := binary.Write(buf, binary.LittleEndian, int32(vectorLen)); err != nil {
		return nil, fmt.Errorf("failed to encode vector length: %w", err)
	}

	for _, val := range vector {
		if err := binary.Write(buf, binary.LittleEndian, val); err != nil {
			return nil, fmt.Errorf("failed to encode vector value: %w", err)
		}
	}

	return buf.Bytes(), nil
}

// DecodeVector reverses EncodeVector.
func DecodeVector(data []byte) ([]float32, error) {
	if len(data) < 4 {
		return nil, ErrInvalidVector
	}

	buf := bytes.NewReader(data)

	var length int32
	if err := binary.Read(buf, binary.LittleEndian, &length); err != nil {
		return nil, fmt.Errorf("failed to decode vector length: %w", err)
	}
	if length < 0 {
		return nil, ErrInvalidVector
	}
	if length == 0 {
		return []float32{}, nil
	}

	expectedBytes := int(length) * 4
	if buf.Len() < expectedBytes {
		return nil, ErrInvalidVector
	}

	vector := make([]float32, length)
	for i := int32(0); i < length; i++ {
		if err := binary.Read(buf, binary.LittleEndian, &vector[i]); err != nil {
			return nil, fmt.Errorf("failed to decode vector value at index %d: %w", i, err)
		}
	}

	return vector, nil
}

// ValidateVector rejects nil/empty vectors and any component that is NaN
// or infinite, per spec.md §8 testable property 6 (every stored embedding
// has length EMBEDDING_DIM) — the dimension check itself happens at the
// call site, which knows the configured dimension.
func ValidateVector(vector []float32) error {
	if len(vector) == 0 {
		return ErrInvalidVector
	}
	for _, val := range vector {
		f := float64(val)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return ErrInvalidVector
		}
	}
	return nil
}
