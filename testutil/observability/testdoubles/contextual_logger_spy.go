package testdoubles

import (
	"context"
	"log/slog"
	"sync"

	"github.com/AntonStoeckl/calltracer-go/calltracer"
)

// ContextualLoggerSpy captures contextual logging calls together with the context they
// were made with, so tests can verify which context a traced call's lines were correlated with.
type ContextualLoggerSpy struct {
	records     []SpyContextualLogRecord
	mu          sync.Mutex
	recordCalls bool
}

// SpyContextualLogRecord represents a recorded contextual log call.
type SpyContextualLogRecord struct {
	Level   slog.Level
	Message string
	Args    []any
	Context context.Context
}

// NewContextualLoggerSpy creates a new ContextualLoggerSpy instance.
func NewContextualLoggerSpy(recordCalls bool) *ContextualLoggerSpy {
	return &ContextualLoggerSpy{
		recordCalls: recordCalls,
	}
}

func (s *ContextualLoggerSpy) DebugContext(ctx context.Context, msg string, args ...any) {
	s.record(ctx, slog.LevelDebug, msg, args)
}

func (s *ContextualLoggerSpy) InfoContext(ctx context.Context, msg string, args ...any) {
	s.record(ctx, slog.LevelInfo, msg, args)
}

func (s *ContextualLoggerSpy) WarnContext(ctx context.Context, msg string, args ...any) {
	s.record(ctx, slog.LevelWarn, msg, args)
}

func (s *ContextualLoggerSpy) ErrorContext(ctx context.Context, msg string, args ...any) {
	s.record(ctx, slog.LevelError, msg, args)
}

func (s *ContextualLoggerSpy) record(ctx context.Context, level slog.Level, msg string, args []any) {
	if !s.recordCalls {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, SpyContextualLogRecord{
		Level:   level,
		Message: msg,
		Args:    args,
		Context: ctx,
	})
}

// GetRecords returns a copy of the records logged at level, in call order.
func (s *ContextualLoggerSpy) GetRecords(level slog.Level) []SpyContextualLogRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]SpyContextualLogRecord, 0)
	for _, r := range s.records {
		if r.Level == level {
			records = append(records, r)
		}
	}

	return records
}

var _ calltracer.ContextualLogger = (*ContextualLoggerSpy)(nil)
