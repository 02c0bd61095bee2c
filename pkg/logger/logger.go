// Package logger provides the leveled logging interface shared by every
// timersd component. Components receive a Logger by injection and never
// reach for the global log package directly.
package logger

import (
	"fmt"
	"log"
	"sync"
)

// Logger defines the logging surface used across the engine, the realtime
// hub, the poller and the RPC server.
type Logger interface {
	// Debug logs a diagnostic message. Backends may drop it.
	Debug(format string, args ...interface{})

	// Info logs a lifecycle message (e.g., "timer t1 started").
	Info(format string, args ...interface{})

	// Warning logs a recoverable failure (e.g., a dropped realtime push).
	Warning(format string, args ...interface{})

	// Error logs a failure the caller could not handle.
	Error(format string, args ...interface{})

	// Close releases resources held by the logger. Safe to call twice.
	Close() error
}

// StandardLogger writes to a stdlib *log.Logger with a level prefix and an
// optional component tag.
type StandardLogger struct {
	logger    *log.Logger
	component string
	debug     bool
}

// NewStandardLogger wraps l. Debug output is off until EnableDebug.
func NewStandardLogger(l *log.Logger) *StandardLogger {
	return &StandardLogger{logger: l}
}

// EnableDebug turns on Debug output.
func (s *StandardLogger) EnableDebug() *StandardLogger {
	s.debug = true
	return s
}

// Named returns a copy of s whose messages carry the component tag.
func (s *StandardLogger) Named(component string) *StandardLogger {
	c := *s
	c.component = component
	return &c
}

func (s *StandardLogger) printf(level, format string, args ...interface{}) {
	prefix := "[" + level + "] "
	if s.component != "" {
		prefix += s.component + ": "
	}
	s.logger.Printf(prefix+format, args...)
}

func (s *StandardLogger) Debug(format string, args ...interface{}) {
	if s.debug {
		s.printf("DEBUG", format, args...)
	}
}

func (s *StandardLogger) Info(format string, args ...interface{}) {
	s.printf("INFO", format, args...)
}

func (s *StandardLogger) Warning(format string, args ...interface{}) {
	s.printf("WARNING", format, args...)
}

func (s *StandardLogger) Error(format string, args ...interface{}) {
	s.printf("ERROR", format, args...)
}

// Close is a no-op; the underlying writer is owned by the caller.
func (s *StandardLogger) Close() error {
	return nil
}

// NopLogger discards everything.
type NopLogger struct{}

func NewNopLogger() *NopLogger { return &NopLogger{} }

func (NopLogger) Debug(string, ...interface{})   {}
func (NopLogger) Info(string, ...interface{})    {}
func (NopLogger) Warning(string, ...interface{}) {}
func (NopLogger) Error(string, ...interface{})   {}
func (NopLogger) Close() error                   { return nil }

// OrNop returns l, or a NopLogger when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return NopLogger{}
	}
	return l
}

// MockLogger records formatted messages per level. It is safe for
// concurrent use since engine tests log from handler goroutines.
type MockLogger struct {
	mu           sync.Mutex
	DebugCalls   []string
	InfoCalls    []string
	WarningCalls []string
	ErrorCalls   []string
	CloseCalled  bool
}

func NewMockLogger() *MockLogger {
	return &MockLogger{}
}

func (m *MockLogger) record(dst *[]string, format string, args ...interface{}) {
	m.mu.Lock()
	*dst = append(*dst, fmt.Sprintf(format, args...))
	m.mu.Unlock()
}

func (m *MockLogger) Debug(format string, args ...interface{}) {
	m.record(&m.DebugCalls, format, args...)
}

func (m *MockLogger) Info(format string, args ...interface{}) {
	m.record(&m.InfoCalls, format, args...)
}

func (m *MockLogger) Warning(format string, args ...interface{}) {
	m.record(&m.WarningCalls, format, args...)
}

func (m *MockLogger) Error(format string, args ...interface{}) {
	m.record(&m.ErrorCalls, format, args...)
}

func (m *MockLogger) Close() error {
	m.mu.Lock()
	m.CloseCalled = true
	m.mu.Unlock()
	return nil
}

// Warnings returns a snapshot of the recorded warnings.
func (m *MockLogger) Warnings() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.WarningCalls...)
}

// Errors returns a snapshot of the recorded errors.
func (m *MockLogger) Errors() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ErrorCalls...)
}

var (
	_ Logger = (*StandardLogger)(nil)
	_ Logger = NopLogger{}
	_ Logger = (*MockLogger)(nil)
)
