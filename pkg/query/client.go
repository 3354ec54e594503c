package query

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/qstream-io/qstream/pkg/core"
)

const (
	defaultRetryDelay  = 100 * time.Millisecond
	defaultDialTimeout = 5 * time.Second
)

// Logger is the subset of a structured logger the client needs. Satisfied by
// internal/shared/logging.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Client issues asynchronous point lookups against the queryable state of
// running jobs. Lookups are independent of each other; the only state shared
// between them is the connection pool and the optional location cache, both
// safe for unbounded concurrent access.
type Client struct {
	resolver    *resolver
	retryDelay  time.Duration
	dialTimeout time.Duration
	cacheSize   int
	logger      Logger

	nextRequestID atomic.Uint64

	mu     sync.Mutex
	conns  map[string]*conn
	closed bool
}

// Option configures a Client.
type Option func(*Client)

// WithRetryDelay sets the fixed delay between retries of transient failures.
func WithRetryDelay(delay time.Duration) Option {
	return func(c *Client) { c.retryDelay = delay }
}

// WithDialTimeout bounds establishing a connection to a state endpoint,
// independently of the lookup's own deadline.
func WithDialTimeout(timeout time.Duration) Option {
	return func(c *Client) { c.dialTimeout = timeout }
}

// WithLocationCache enables caching of resolved locations, holding up to
// size entries. Cached entries are invalidated whenever a lookup against a
// cached address fails with a retryable error.
func WithLocationCache(size int) Option {
	return func(c *Client) { c.cacheSize = size }
}

// WithLogger sets the client logger.
func WithLogger(logger Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient builds a query client on top of a location lookup.
func NewClient(lookup LocationLookup, opts ...Option) (*Client, error) {
	c := &Client{
		retryDelay:  defaultRetryDelay,
		dialTimeout: defaultDialTimeout,
		logger:      noopLogger{},
		conns:       make(map[string]*conn),
	}
	for _, opt := range opts {
		opt(c)
	}

	resolver, err := newResolver(lookup, c.cacheSize)
	if err != nil {
		return nil, err
	}
	c.resolver = resolver
	return c, nil
}

// Close shuts the client down, failing all in-flight lookups.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conns := c.conns
	c.conns = nil
	c.mu.Unlock()

	for _, cn := range conns {
		cn.close()
	}
	return nil
}

// LookupOption configures a single lookup.
type LookupOption func(*lookupOptions)

type lookupOptions struct {
	retryUnknownKey bool
}

// RetryUnknownKey makes this lookup treat an unknown key as transient and
// keep retrying until the deadline. Used by callers that poll for state the
// pipeline has not written yet; by default an unknown key is terminal.
func RetryUnknownKey() LookupOption {
	return func(o *lookupOptions) { o.retryUnknownKey = true }
}

// Future is the handle to one asynchronous lookup.
type Future struct {
	done   chan struct{}
	value  []byte
	err    error
	cancel context.CancelFunc
}

// Await blocks until the lookup completes, the lookup's own deadline elapses
// or ctx is done, and returns the serialized state value.
func (f *Future) Await(ctx context.Context) ([]byte, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel stops the lookup, including any retry it is waiting out. Other
// in-flight lookups are unaffected.
func (f *Future) Cancel() {
	f.cancel()
}

// Lookup asynchronously queries the state registered under stateName in the
// given job for one key. keyHash is the hash of the serialized key (see
// core.Hash); data is the serialized key and namespace produced by the
// codec. The deadline on ctx bounds the whole call including retries.
//
// Transient failures (owner unknown, job not running, network errors) are
// retried after a fixed delay until the deadline; terminal outcomes
// propagate immediately.
func (c *Client) Lookup(
	ctx context.Context,
	jobID uuid.UUID,
	stateName string,
	keyHash uint32,
	data []byte,
	opts ...LookupOption,
) *Future {
	var options lookupOptions
	for _, opt := range opts {
		opt(&options)
	}

	ctx, cancel := context.WithCancel(ctx)
	future := &Future{done: make(chan struct{}), cancel: cancel}

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		future.err = ErrClientClosed
		close(future.done)
		return future
	}

	go c.run(ctx, cancel, future, jobID, stateName, keyHash, data, options)
	return future
}

// run is the retry loop behind one lookup: resolve the owner, send the
// request, classify the outcome, and either finish or wait out the retry
// delay and start over.
func (c *Client) run(
	ctx context.Context,
	cancel context.CancelFunc,
	future *Future,
	jobID uuid.UUID,
	stateName string,
	keyHash uint32,
	data []byte,
	options lookupOptions,
) {
	defer cancel()

	complete := func(value []byte, err error) {
		future.value = value
		future.err = err
		close(future.done)
	}

	for {
		value, err := c.attempt(ctx, jobID, stateName, keyHash, data)
		switch {
		case err == nil:
			complete(value, nil)
			return
		case errors.Is(err, ErrUnknownKey) && !options.retryUnknownKey:
			complete(nil, err)
			return
		case errors.Is(err, ErrUnknownKey) || Retryable(err):
			c.logger.Debug("Retrying lookup",
				"job_id", jobID.String(),
				"state_name", stateName,
				"error", err,
			)
			if waitErr := c.waitRetry(ctx); waitErr != nil {
				complete(nil, waitErr)
				return
			}
		case ctx.Err() != nil:
			complete(nil, deadlineError(ctx))
			return
		default:
			// Terminal: malformed payloads, server invariant violations.
			complete(nil, err)
			return
		}
	}
}

// attempt performs one resolve-and-query round trip.
func (c *Client) attempt(
	ctx context.Context,
	jobID uuid.UUID,
	stateName string,
	keyHash uint32,
	data []byte,
) ([]byte, error) {
	location, err := c.resolver.resolve(ctx, jobID, stateName)
	if err != nil {
		return nil, err
	}

	keyGroup := core.KeyGroupForHash(keyHash, location.NumKeyGroups)
	addr, assigned := location.Address(keyGroup)
	if !assigned {
		c.resolver.invalidate(jobID, stateName)
		return nil, &UnavailableError{Reason: "key group not yet assigned"}
	}

	cn, err := c.connFor(ctx, addr)
	if err != nil {
		c.resolver.invalidate(jobID, stateName)
		return nil, err
	}

	req := &LookupRequest{
		RequestID: c.nextRequestID.Add(1),
		JobID:     jobID,
		StateName: stateName,
		KeyGroup:  uint32(keyGroup),
		Data:      data,
	}

	value, err := cn.send(ctx, req)
	if err != nil && Retryable(err) {
		// Ownership may have moved; a cached location must not survive a
		// failed round trip against it.
		c.resolver.invalidate(jobID, stateName)
		c.dropConn(addr, cn)
	}
	return value, err
}

func (c *Client) waitRetry(ctx context.Context) error {
	timer := time.NewTimer(c.retryDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return deadlineError(ctx)
	}
}

func (c *Client) connFor(ctx context.Context, addr string) (*conn, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClientClosed
	}
	cn, ok := c.conns[addr]
	c.mu.Unlock()

	if ok && !cn.isClosed() {
		return cn, nil
	}

	fresh, err := dialConn(ctx, addr, c.dialTimeout)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		fresh.close()
		return nil, ErrClientClosed
	}
	// A concurrent lookup may have dialed the same endpoint first.
	if existing, ok := c.conns[addr]; ok && !existing.isClosed() {
		c.mu.Unlock()
		fresh.close()
		return existing, nil
	}
	c.conns[addr] = fresh
	c.mu.Unlock()
	return fresh, nil
}

func (c *Client) dropConn(addr string, cn *conn) {
	cn.close()
	c.mu.Lock()
	if c.conns != nil && c.conns[addr] == cn {
		delete(c.conns, addr)
	}
	c.mu.Unlock()
}

// deadlineError maps context expiry onto the caller-visible taxonomy:
// a lapsed deadline is a query timeout, an explicit cancel is a cancel.
func deadlineError(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrQueryTimeout
	}
	return ErrLookupCancelled
}

type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) Info(msg string, args ...any)  {}
func (noopLogger) Warn(msg string, args ...any)  {}
func (noopLogger) Error(msg string, args ...any) {}
