package query

import (
	"bufio"
	"context"
	"net"
	"sync"
	"time"
)

// conn multiplexes concurrent lookups over one TCP connection to a state
// endpoint. Responses are matched to callers by request ID, so many lookups
// share a connection without holding any lock across the round trip.
type conn struct {
	addr string
	nc   net.Conn

	mu      sync.Mutex
	pending map[uint64]chan result
	closed  bool
}

type result struct {
	value []byte
	err   error
}

func dialConn(ctx context.Context, addr string, timeout time.Duration) (*conn, error) {
	dialer := net.Dialer{Timeout: timeout}
	nc, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &UnavailableError{Reason: "connecting to " + addr + ": " + err.Error()}
	}
	c := &conn{
		addr:    addr,
		nc:      nc,
		pending: make(map[uint64]chan result),
	}
	go c.readLoop()
	return c, nil
}

// send issues one request and waits for its response or ctx expiry.
func (c *conn) send(ctx context.Context, req *LookupRequest) ([]byte, error) {
	ch := make(chan result, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, &UnavailableError{Reason: "connection to " + c.addr + " is closed"}
	}
	c.pending[req.RequestID] = ch
	err := WriteMessage(c.nc, req)
	c.mu.Unlock()

	if err != nil {
		c.fail(&UnavailableError{Reason: "writing to " + c.addr + ": " + err.Error()})
		return nil, &UnavailableError{Reason: "writing to " + c.addr + ": " + err.Error()}
	}

	select {
	case res := <-ch:
		return res.value, res.err
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, req.RequestID)
		c.mu.Unlock()
		return nil, ctx.Err()
	}
}

func (c *conn) readLoop() {
	reader := bufio.NewReader(c.nc)
	for {
		msg, err := ReadMessage(reader)
		if err != nil {
			c.fail(&UnavailableError{Reason: "reading from " + c.addr + ": " + err.Error()})
			return
		}

		switch m := msg.(type) {
		case *LookupResult:
			c.deliver(m.RequestID, result{value: m.Value})
		case *LookupFailure:
			c.deliver(m.RequestID, result{err: failureToError(m)})
		default:
			// Request messages never arrive on the client side.
			c.fail(malformedf("unexpected message %T from server", msg))
			return
		}
	}
}

func (c *conn) deliver(requestID uint64, res result) {
	c.mu.Lock()
	ch, ok := c.pending[requestID]
	delete(c.pending, requestID)
	c.mu.Unlock()
	if ok {
		ch <- res
	}
}

// fail closes the connection and fails every pending request. Each caller's
// retry loop decides what happens next.
func (c *conn) fail(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	c.nc.Close()
	for _, ch := range pending {
		ch <- result{err: err}
	}
}

func (c *conn) close() {
	c.fail(&UnavailableError{Reason: "connection to " + c.addr + " is closed"})
}

func (c *conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
