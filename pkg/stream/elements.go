package stream

import (
	"encoding/binary"
	"fmt"
)

// KeyCount is the workhorse record of the demo pipelines and tests: an
// int32 key with an int64 count.
type KeyCount struct {
	Key   int32
	Count int64
}

// SumCounts is the associative merge used by reducing state over KeyCount
// records.
func SumCounts(acc, value KeyCount) KeyCount {
	acc.Count += value.Count
	return acc
}

// KeyCountSerializer encodes KeyCount as 12 big-endian bytes.
type KeyCountSerializer struct{}

func (KeyCountSerializer) Marshal(value KeyCount) ([]byte, error) {
	buf := make([]byte, 12)
	binary.BigEndian.PutUint32(buf[:4], uint32(value.Key))
	binary.BigEndian.PutUint64(buf[4:], uint64(value.Count))
	return buf, nil
}

func (KeyCountSerializer) Unmarshal(data []byte) (KeyCount, error) {
	if len(data) != 12 {
		return KeyCount{}, fmt.Errorf("key count value must be 12 bytes, got %d", len(data))
	}
	return KeyCount{
		Key:   int32(binary.BigEndian.Uint32(data[:4])),
		Count: int64(binary.BigEndian.Uint64(data[4:])),
	}, nil
}
