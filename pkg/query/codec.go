package query

import (
	"encoding/binary"

	"github.com/qstream-io/qstream/pkg/serializer"
)

// The key/namespace codec is pure transformation: a serialized key and
// namespace are joined into one length-prefixed byte sequence that the owning
// endpoint can split again without any schema beyond the caller's
// serializers. The same bytes address the state on the server side, so the
// encoding must be deterministic.

// JoinKeyAndNamespace frames raw key and namespace bytes into the composite
// form used on the wire and as the storage key. A nil namespace encodes the
// void namespace.
func JoinKeyAndNamespace(key, namespace []byte) []byte {
	buf := make([]byte, 0, len(key)+len(namespace)+2*binary.MaxVarintLen64)
	buf = binary.AppendUvarint(buf, uint64(len(key)))
	buf = append(buf, key...)
	buf = binary.AppendUvarint(buf, uint64(len(namespace)))
	buf = append(buf, namespace...)
	return buf
}

// SplitKeyAndNamespace reverses JoinKeyAndNamespace. Trailing bytes or short
// input fail with a MalformedPayloadError.
func SplitKeyAndNamespace(data []byte) (key, namespace []byte, err error) {
	key, rest, err := readChunk(data)
	if err != nil {
		return nil, nil, malformedf("key: %v", err)
	}
	namespace, rest, err = readChunk(rest)
	if err != nil {
		return nil, nil, malformedf("namespace: %v", err)
	}
	if len(rest) != 0 {
		return nil, nil, malformedf("%d trailing bytes after key and namespace", len(rest))
	}
	return key, namespace, nil
}

// SerializeKeyAndNamespace encodes a typed key and namespace with the
// caller's serializers into the composite wire form.
func SerializeKeyAndNamespace[K, N any](
	key K,
	keySer serializer.Serializer[K],
	namespace N,
	nsSer serializer.Serializer[N],
) ([]byte, error) {
	keyBytes, err := keySer.Marshal(key)
	if err != nil {
		return nil, malformedf("serializing key: %v", err)
	}
	nsBytes, err := nsSer.Marshal(namespace)
	if err != nil {
		return nil, malformedf("serializing namespace: %v", err)
	}
	return JoinKeyAndNamespace(keyBytes, nsBytes), nil
}

// DeserializeKeyAndNamespace decodes the composite wire form back into a
// typed key and namespace.
func DeserializeKeyAndNamespace[K, N any](
	data []byte,
	keySer serializer.Serializer[K],
	nsSer serializer.Serializer[N],
) (key K, namespace N, err error) {
	keyBytes, nsBytes, err := SplitKeyAndNamespace(data)
	if err != nil {
		return key, namespace, err
	}
	key, err = keySer.Unmarshal(keyBytes)
	if err != nil {
		return key, namespace, malformedf("decoding key: %v", err)
	}
	namespace, err = nsSer.Unmarshal(nsBytes)
	if err != nil {
		return key, namespace, malformedf("decoding namespace: %v", err)
	}
	return key, namespace, nil
}

// DeserializeValue decodes a raw response payload against the state's value
// serializer. A length mismatch fails with a MalformedPayloadError rather
// than truncating.
func DeserializeValue[T any](data []byte, ser serializer.Serializer[T]) (T, error) {
	value, err := ser.Unmarshal(data)
	if err != nil {
		return value, malformedf("decoding value: %v", err)
	}
	return value, nil
}

func readChunk(data []byte) (chunk, rest []byte, err error) {
	length, n := binary.Uvarint(data)
	if n <= 0 {
		return nil, nil, errMissingLength
	}
	data = data[n:]
	if uint64(len(data)) < length {
		return nil, nil, errShortChunk
	}
	return data[:length], data[length:], nil
}

var (
	errMissingLength = errorString("missing length prefix")
	errShortChunk    = errorString("input shorter than declared length")
)

type errorString string

func (e errorString) Error() string { return string(e) }
