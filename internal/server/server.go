package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/qstream-io/qstream/internal/cluster/storage"
	"github.com/qstream-io/qstream/internal/shared/logging"
	"github.com/qstream-io/qstream/pkg/query"
)

// StateServer answers lookup requests over the framed binary protocol.
// One server runs per endpoint and serves only that endpoint's key groups.
type StateServer struct {
	store  *storage.KeyedStateStore
	logger logging.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   bool
	wg       sync.WaitGroup
}

func NewStateServer(store *storage.KeyedStateStore, logger logging.Logger) *StateServer {
	return &StateServer{
		store:  store,
		logger: logger,
		conns:  make(map[net.Conn]struct{}),
	}
}

// Start binds the listener and begins accepting connections. The bound
// address is available from Addr, so bindAddr may use port 0.
func (s *StateServer) Start(bindAddr string) error {
	listener, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return fmt.Errorf("binding state server: %w", err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		listener.Close()
		return errors.New("state server already closed")
	}
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info("State server listening", "addr", listener.Addr().String())

	s.wg.Add(1)
	go s.acceptLoop(listener)
	return nil
}

func (s *StateServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *StateServer) acceptLoop(listener net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := listener.Accept()
		if err != nil {
			if !s.isClosed() {
				s.logger.Warn("Accept failed", "error", err)
			}
			return
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

func (s *StateServer) serveConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	for {
		msg, err := query.ReadMessage(conn)
		if err != nil {
			if err != io.EOF && !s.isClosed() {
				s.logger.Debug("Connection read failed", "error", err)
			}
			return
		}

		request, ok := msg.(*query.LookupRequest)
		if !ok {
			s.logger.Warn("Unexpected message from client", "type", fmt.Sprintf("%T", msg))
			return
		}

		response := s.handleLookup(request)
		if err := query.WriteMessage(conn, response); err != nil {
			if !s.isClosed() {
				s.logger.Debug("Connection write failed", "error", err)
			}
			return
		}
	}
}

func (s *StateServer) handleLookup(request *query.LookupRequest) any {
	value, err := s.store.Get(request.JobID, request.StateName, int(request.KeyGroup), request.Data)
	if err == nil {
		return &query.LookupResult{RequestID: request.RequestID, Value: value}
	}

	failure := &query.LookupFailure{RequestID: request.RequestID}
	switch {
	case errors.Is(err, storage.ErrKeyNotFound):
		failure.Code = query.FailureUnknownKey
		failure.Message = "no state for the given key and namespace"
	case errors.Is(err, storage.ErrKeyGroupNotLocal):
		failure.Code = query.FailureUnknownKeyGroup
		failure.Message = fmt.Sprintf("key group %d is not served here", request.KeyGroup)
	case errors.Is(err, storage.ErrStateNotRegistered):
		failure.Code = query.FailureUnknownState
		failure.Message = fmt.Sprintf("state %q is not registered", request.StateName)
	default:
		failure.Code = query.FailureInternal
		failure.Message = err.Error()
		s.logger.Error("Lookup failed", "state", request.StateName, "error", err)
	}
	return failure
}

func (s *StateServer) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close stops accepting connections, closes open ones and waits for the
// serving goroutines to drain.
func (s *StateServer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	listener := s.listener
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	var err error
	if listener != nil {
		err = listener.Close()
	}
	s.wg.Wait()
	return err
}
