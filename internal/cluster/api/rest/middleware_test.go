package rest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// mockLogger is a test logger that captures log messages
type mockLogger struct {
	mu       sync.Mutex
	messages []string
}

func newMockLogger() *mockLogger {
	return &mockLogger{
		messages: make([]string, 0),
	}
}

func (m *mockLogger) Debug(msg string, args ...any) { m.log("DEBUG", msg, args...) }
func (m *mockLogger) Info(msg string, args ...any)  { m.log("INFO", msg, args...) }
func (m *mockLogger) Warn(msg string, args ...any)  { m.log("WARN", msg, args...) }
func (m *mockLogger) Error(msg string, args ...any) { m.log("ERROR", msg, args...) }
func (m *mockLogger) Fatal(msg string, args ...any) { m.log("FATAL", msg, args...) }

func (m *mockLogger) log(level, msg string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	formatted := fmt.Sprintf("[%s] %s", level, msg)
	for i := 0; i+1 < len(args); i += 2 {
		formatted += fmt.Sprintf(" %v=%v", args[i], args[i+1])
	}
	m.messages = append(m.messages, formatted)
}

func (m *mockLogger) getOutput() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return strings.Join(m.messages, "\n")
}

func TestLoggingMiddleware(t *testing.T) {
	logger := newMockLogger()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("queryable"))
	})

	wrapped := LoggingMiddleware(logger)(handler)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	w := httptest.NewRecorder()

	wrapped.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	logOutput := logger.getOutput()
	if !strings.Contains(logOutput, "GET") {
		t.Error("Expected log to contain method GET")
	}
	if !strings.Contains(logOutput, "/api/jobs") {
		t.Error("Expected log to contain the request path")
	}
	if !strings.Contains(logOutput, "200") {
		t.Error("Expected log to contain status code 200")
	}
	if !strings.Contains(logOutput, "HTTP request") {
		t.Error("Expected log to contain 'HTTP request'")
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	logger := newMockLogger()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("something went wrong")
	})

	wrapped := RecoveryMiddleware(logger)(handler)

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	w := httptest.NewRecorder()

	wrapped.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.Code)
	}

	logOutput := logger.getOutput()
	if !strings.Contains(logOutput, "Panic recovered") {
		t.Error("Expected log to contain 'Panic recovered'")
	}
	if !strings.Contains(logOutput, "something went wrong") {
		t.Error("Expected log to contain panic message")
	}
}

func TestChainMiddlewareWithPanic(t *testing.T) {
	logger := newMockLogger()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	})

	wrapped := ChainMiddleware(
		handler,
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
	)

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	w := httptest.NewRecorder()

	wrapped.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.Code)
	}

	// Both middleware applied: the panic is recovered and the request logged.
	logOutput := logger.getOutput()
	if !strings.Contains(logOutput, "ERROR") {
		t.Errorf("Expected log to contain ERROR, got: %s", logOutput)
	}
	if !strings.Contains(logOutput, "/panic") {
		t.Error("Expected log to contain the request path")
	}
}

func TestResponseWriterDefaultStatusCode(t *testing.T) {
	// Handler that writes without explicitly setting status code
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	logger := newMockLogger()

	wrapped := LoggingMiddleware(logger)(handler)
	req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	w := httptest.NewRecorder()

	wrapped.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	logOutput := logger.getOutput()
	if !strings.Contains(logOutput, "200") {
		t.Error("Expected log to contain status code 200")
	}
}
