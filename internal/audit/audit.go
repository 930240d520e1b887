// Package audit appends audit events after commit. Sinks must not fail the
// caller; errors are returned only so the caller can log them.
package audit

import (
	"context"
	"log/slog"
	"sync"
)

// Event keys.
const (
	EventMutationApplied  = "sync.mutation.applied"
	EventMutationRejected = "sync.mutation.rejected"
	EventInvoiceClaimed   = "invoice.range.claimed"
)

// Event is one audit record.
type Event struct {
	Key        string
	TenantID   string
	UserID     string
	OutletID   string
	EntityType string
	EntityID   string
	Channel    string
	Metadata   map[string]any
}

// Sink receives audit events.
type Sink interface {
	Append(ctx context.Context, ev Event) error
}

// SlogSink writes events through a dedicated slog logger.
type SlogSink struct {
	Logger *slog.Logger
}

// NewSlogSink returns a sink tagged with component=audit.
func NewSlogSink(l *slog.Logger) *SlogSink {
	if l == nil {
		l = slog.Default()
	}
	return &SlogSink{Logger: l.With("component", "audit")}
}

func (s *SlogSink) Append(ctx context.Context, ev Event) error {
	attrs := []any{
		"event", ev.Key,
		"tenant", ev.TenantID,
		"user", ev.UserID,
		"channel", ev.Channel,
	}
	if ev.OutletID != "" {
		attrs = append(attrs, "outlet", ev.OutletID)
	}
	if ev.EntityID != "" {
		attrs = append(attrs, "entity_type", ev.EntityType, "entity_id", ev.EntityID)
	}
	if len(ev.Metadata) > 0 {
		attrs = append(attrs, "metadata", ev.Metadata)
	}
	s.Logger.InfoContext(ctx, "audit", attrs...)
	return nil
}

// Memory keeps events in memory for tests.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

func (m *Memory) Append(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

// Events returns a copy of the recorded events.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// Keys returns the recorded event keys in order.
func (m *Memory) Keys() []string {
	evs := m.Events()
	out := make([]string, len(evs))
	for i, ev := range evs {
		out[i] = ev.Key
	}
	return out
}
