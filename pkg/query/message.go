package query

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// Wire format of the state lookup protocol. Every message is framed as a
// 4-byte big-endian length followed by a 1-byte message type and the body.
// Strings and byte chunks inside a body carry uvarint length prefixes.

const (
	msgLookupRequest byte = 0x01
	msgLookupResult  byte = 0x02
	msgLookupFailure byte = 0x03

	// maxFrameSize bounds a single message so a corrupt length prefix
	// cannot make the reader allocate unbounded memory.
	maxFrameSize = 8 << 20
)

// FailureCode classifies a server-side lookup failure.
type FailureCode byte

const (
	// FailureUnknownKey: the endpoint owns the key group but holds no state
	// for the key and namespace. Terminal.
	FailureUnknownKey FailureCode = 1
	// FailureUnknownKeyGroup: the key group is not (or no longer) local to
	// this endpoint. Retryable after re-resolution.
	FailureUnknownKeyGroup FailureCode = 2
	// FailureUnknownState: the queryable state name is not registered on
	// this endpoint. Retryable, the job may still be starting.
	FailureUnknownState FailureCode = 3
	// FailureInternal: an invariant violation on the server. Fatal, never
	// retried.
	FailureInternal FailureCode = 4
)

func (c FailureCode) String() string {
	switch c {
	case FailureUnknownKey:
		return "UNKNOWN_KEY"
	case FailureUnknownKeyGroup:
		return "UNKNOWN_KEY_GROUP"
	case FailureUnknownState:
		return "UNKNOWN_STATE"
	case FailureInternal:
		return "INTERNAL"
	default:
		return fmt.Sprintf("UNKNOWN_CODE(%d)", byte(c))
	}
}

// LookupRequest asks the owning endpoint for the state of one key.
type LookupRequest struct {
	RequestID uint64
	JobID     uuid.UUID
	StateName string
	KeyGroup  uint32
	// Data is the serialized key and namespace, as produced by the codec.
	Data []byte
}

// LookupResult answers a request with the serialized state value.
type LookupResult struct {
	RequestID uint64
	Value     []byte
}

// LookupFailure answers a request with a classified failure.
type LookupFailure struct {
	RequestID uint64
	Code      FailureCode
	Message   string
}

// WriteMessage frames and writes one protocol message.
func WriteMessage(w io.Writer, msg any) error {
	var body []byte
	switch m := msg.(type) {
	case *LookupRequest:
		body = append(body, msgLookupRequest)
		body = binary.BigEndian.AppendUint64(body, m.RequestID)
		body = append(body, m.JobID[:]...)
		body = appendChunk(body, []byte(m.StateName))
		body = binary.BigEndian.AppendUint32(body, m.KeyGroup)
		body = appendChunk(body, m.Data)
	case *LookupResult:
		body = append(body, msgLookupResult)
		body = binary.BigEndian.AppendUint64(body, m.RequestID)
		body = appendChunk(body, m.Value)
	case *LookupFailure:
		body = append(body, msgLookupFailure)
		body = binary.BigEndian.AppendUint64(body, m.RequestID)
		body = append(body, byte(m.Code))
		body = appendChunk(body, []byte(m.Message))
	default:
		return fmt.Errorf("unsupported message type %T", msg)
	}

	frame := make([]byte, 4, 4+len(body))
	binary.BigEndian.PutUint32(frame, uint32(len(body)))
	frame = append(frame, body...)
	_, err := w.Write(frame)
	return err
}

// ReadMessage reads one framed protocol message. It returns *LookupRequest,
// *LookupResult or *LookupFailure.
func ReadMessage(r io.Reader) (any, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(header[:])
	if size == 0 || size > maxFrameSize {
		return nil, malformedf("frame size %d out of bounds", size)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}

	msgType := body[0]
	body = body[1:]

	switch msgType {
	case msgLookupRequest:
		return decodeLookupRequest(body)
	case msgLookupResult:
		return decodeLookupResult(body)
	case msgLookupFailure:
		return decodeLookupFailure(body)
	default:
		return nil, malformedf("unknown message type 0x%02x", msgType)
	}
}

func decodeLookupRequest(body []byte) (*LookupRequest, error) {
	if len(body) < 8+16 {
		return nil, malformedf("lookup request body too short: %d bytes", len(body))
	}
	req := &LookupRequest{RequestID: binary.BigEndian.Uint64(body[:8])}
	copy(req.JobID[:], body[8:24])
	body = body[24:]

	name, body, err := readChunk(body)
	if err != nil {
		return nil, malformedf("lookup request state name: %v", err)
	}
	req.StateName = string(name)

	if len(body) < 4 {
		return nil, malformedf("lookup request missing key group")
	}
	req.KeyGroup = binary.BigEndian.Uint32(body[:4])
	body = body[4:]

	req.Data, body, err = readChunk(body)
	if err != nil {
		return nil, malformedf("lookup request data: %v", err)
	}
	if len(body) != 0 {
		return nil, malformedf("%d trailing bytes in lookup request", len(body))
	}
	return req, nil
}

func decodeLookupResult(body []byte) (*LookupResult, error) {
	if len(body) < 8 {
		return nil, malformedf("lookup result body too short: %d bytes", len(body))
	}
	res := &LookupResult{RequestID: binary.BigEndian.Uint64(body[:8])}

	value, rest, err := readChunk(body[8:])
	if err != nil {
		return nil, malformedf("lookup result value: %v", err)
	}
	if len(rest) != 0 {
		return nil, malformedf("%d trailing bytes in lookup result", len(rest))
	}
	res.Value = value
	return res, nil
}

func decodeLookupFailure(body []byte) (*LookupFailure, error) {
	if len(body) < 9 {
		return nil, malformedf("lookup failure body too short: %d bytes", len(body))
	}
	failure := &LookupFailure{
		RequestID: binary.BigEndian.Uint64(body[:8]),
		Code:      FailureCode(body[8]),
	}
	message, rest, err := readChunk(body[9:])
	if err != nil {
		return nil, malformedf("lookup failure message: %v", err)
	}
	if len(rest) != 0 {
		return nil, malformedf("%d trailing bytes in lookup failure", len(rest))
	}
	failure.Message = string(message)
	return failure, nil
}

func appendChunk(buf, chunk []byte) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(chunk)))
	return append(buf, chunk...)
}

// failureToError maps a server failure onto the client error taxonomy.
func failureToError(f *LookupFailure) error {
	switch f.Code {
	case FailureUnknownKey:
		return ErrUnknownKey
	case FailureUnknownKeyGroup, FailureUnknownState:
		return &UnavailableError{Reason: f.Message}
	default:
		return fmt.Errorf("server failure (%s): %s", f.Code, f.Message)
	}
}
