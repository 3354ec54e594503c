package serializer

import (
	"encoding/binary"
	"fmt"
)

// Serializer converts values of one type to and from their wire form.
// Unmarshal must consume the whole input and fail on any length mismatch;
// silent truncation is never acceptable because stored accumulators and
// query responses are exchanged as raw bytes.
type Serializer[T any] interface {
	Marshal(value T) ([]byte, error)
	Unmarshal(data []byte) (T, error)
}

// StringSerializer encodes strings as raw UTF-8 bytes.
type StringSerializer struct{}

func (StringSerializer) Marshal(value string) ([]byte, error) {
	return []byte(value), nil
}

func (StringSerializer) Unmarshal(data []byte) (string, error) {
	return string(data), nil
}

// Int32Serializer encodes int32 values as 4 big-endian bytes.
type Int32Serializer struct{}

func (Int32Serializer) Marshal(value int32) ([]byte, error) {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(value))
	return buf, nil
}

func (Int32Serializer) Unmarshal(data []byte) (int32, error) {
	if len(data) != 4 {
		return 0, fmt.Errorf("int32 value must be 4 bytes, got %d", len(data))
	}
	return int32(binary.BigEndian.Uint32(data)), nil
}

// Int64Serializer encodes int64 values as 8 big-endian bytes.
type Int64Serializer struct{}

func (Int64Serializer) Marshal(value int64) ([]byte, error) {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(value))
	return buf, nil
}

func (Int64Serializer) Unmarshal(data []byte) (int64, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("int64 value must be 8 bytes, got %d", len(data))
	}
	return int64(binary.BigEndian.Uint64(data)), nil
}

// Void is the unit namespace used for non-windowed state.
type Void struct{}

// VoidSerializer encodes the unit namespace as zero bytes.
type VoidSerializer struct{}

func (VoidSerializer) Marshal(Void) ([]byte, error) {
	return nil, nil
}

func (VoidSerializer) Unmarshal(data []byte) (Void, error) {
	if len(data) != 0 {
		return Void{}, fmt.Errorf("void namespace must be empty, got %d bytes", len(data))
	}
	return Void{}, nil
}
