package query

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownKey is returned when the owning endpoint is reachable but
	// holds no state for the requested key and namespace. Terminal: the
	// client never retries it unless the caller opts in per lookup.
	ErrUnknownKey = errors.New("no state for the requested key and namespace")

	// ErrQueryTimeout is returned when the caller's deadline elapses before
	// a terminal result is reached.
	ErrQueryTimeout = errors.New("query deadline exceeded")

	// ErrLookupCancelled is returned when the caller cancels an in-flight
	// lookup.
	ErrLookupCancelled = errors.New("lookup cancelled")

	// ErrClientClosed is returned for lookups issued against a closed client.
	ErrClientClosed = errors.New("query client is closed")
)

// UnavailableError marks a transient condition: the owner is not yet known,
// the job is not yet running, or the network round trip failed. The client
// absorbs these inside its retry loop until the deadline elapses.
type UnavailableError struct {
	Reason string
}

func (e *UnavailableError) Error() string {
	return "state unavailable: " + e.Reason
}

// MalformedPayloadError marks bytes that do not decode against the expected
// serializer or wire format. Terminal, a programming error on one side of
// the protocol.
type MalformedPayloadError struct {
	Detail string
}

func (e *MalformedPayloadError) Error() string {
	return "malformed payload: " + e.Detail
}

func malformedf(format string, args ...any) error {
	return &MalformedPayloadError{Detail: fmt.Sprintf(format, args...)}
}

// Retryable reports whether err is a transient condition the client's retry
// loop may absorb. Everything else is terminal and propagates on first
// occurrence.
func Retryable(err error) bool {
	var unavailable *UnavailableError
	return errors.As(err, &unavailable)
}
