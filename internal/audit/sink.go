package audit

import (
	"context"
	"log/slog"
	"sync"
)

// Sink receives audit events. Implementations must be safe for concurrent
// use; a sink failure must never fail the guarded operation.
type Sink interface {
	Write(ctx context.Context, event Event) error
}

// SlogSink writes events to the structured log. It is the fallback sink
// for deployments without a durable audit store.
type SlogSink struct {
	Logger *slog.Logger
}

// Write implements Sink.
func (s SlogSink) Write(ctx context.Context, event Event) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.LogAttrs(ctx, slog.LevelInfo, "audit event",
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", string(event.Type)),
		slog.String("severity", string(event.Severity)),
		slog.String("ip", event.IPAddress),
		slog.Bool("success", event.Success),
		slog.Int("risk_score", event.RiskScore),
	)
	return nil
}

// MemorySink collects events in memory for tests.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

// Write implements Sink.
func (s *MemorySink) Write(ctx context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Events returns a copy of everything written so far.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}
