package testdoubles

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
)

const (
	traceLinePrefix    = "TRACER "
	traceFailurePrefix = "TRACER Failed"
)

// LogHandlerSpy is a slog.Handler that captures the records a Tracer logs through slog.New(spy).
type LogHandlerSpy struct {
	records     []slog.Record
	mu          sync.Mutex
	logToStdout bool
}

// NewLogHandlerSpy creates a new LogHandlerSpy
// Switchable to log to stdout, which can be useful for debugging tests by seeing the actual log output.
func NewLogHandlerSpy(logToStdOut bool) *LogHandlerSpy {
	return &LogHandlerSpy{
		records:     make([]slog.Record, 0),
		logToStdout: logToStdOut,
	}
}

// Handle implements slog.Handler interface.
func (s *LogHandlerSpy) Handle(ctx context.Context, record slog.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record.Clone())

	// Optionally also log to stdout for debugging
	if s.logToStdout {
		jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
		_ = jsonHandler.Handle(ctx, record)
	}

	return nil
}

// Enabled captures every level, so debug trace lines are never filtered out.
func (s *LogHandlerSpy) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

func (s *LogHandlerSpy) WithAttrs(_ []slog.Attr) slog.Handler {
	return s
}

func (s *LogHandlerSpy) WithGroup(_ string) slog.Handler {
	return s
}

// GetMessages returns the messages of all captured records at the given level, in logging order.
func (s *LogHandlerSpy) GetMessages(level slog.Level) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	messages := make([]string, 0)
	for _, record := range s.records {
		if record.Level == level {
			messages = append(messages, record.Message)
		}
	}

	return messages
}

// GetTraceLines returns the messages of all captured trace lines at any level, in logging order.
func (s *LogHandlerSpy) GetTraceLines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines := make([]string, 0)
	for _, record := range s.records {
		if strings.HasPrefix(record.Message, traceLinePrefix) && !strings.HasPrefix(record.Message, traceFailurePrefix) {
			lines = append(lines, record.Message)
		}
	}

	return lines
}

// HasLogWithPrefix checks if there's a log record at the given level whose message starts with prefix.
func (s *LogHandlerSpy) HasLogWithPrefix(level slog.Level, prefix string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, record := range s.records {
		if record.Level == level && strings.HasPrefix(record.Message, prefix) {
			return true
		}
	}

	return false
}

// AttrValues returns the string value of attribute key for every captured record that has it.
func (s *LogHandlerSpy) AttrValues(key string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	values := make([]string, 0)
	for _, record := range s.records {
		record.Attrs(func(attr slog.Attr) bool {
			if attr.Key == key {
				values = append(values, attr.Value.String())
				return false
			}

			return true
		})
	}

	return values
}
