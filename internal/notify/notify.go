// Package notify dispatches customer notifications after a mutation
// commits. Dispatch is fire-and-forget from the caller's point of view:
// a failed enqueue is logged and never changes a recorded outcome.
package notify

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// Template identifies a customer message template.
type Template string

const (
	TemplatePickupConfirm Template = "WA_PICKUP_CONFIRM"
	TemplateLaundryReady  Template = "WA_LAUNDRY_READY"
	TemplateOrderDone     Template = "WA_ORDER_DONE"
	TemplatePickupOTW     Template = "WA_PICKUP_OTW"
	TemplateDeliveryOTW   Template = "WA_DELIVERY_OTW"
)

// Event is one order notification request.
type Event struct {
	IdempotencyKey string   `json:"idempotency_key"`
	Template       Template `json:"template_id"`
	Event          string   `json:"event"`
	TenantID       string   `json:"tenant_id"`
	OutletID       string   `json:"outlet_id"`
	OrderID        string   `json:"order_id"`
	InvoiceOrCode  string   `json:"invoice_or_code"`
	ToPhone        string   `json:"to_phone"`
	CustomerName   string   `json:"customer_name"`
	ActorUserID    string   `json:"actor_user_id"`
	SourceChannel  string   `json:"source_channel"`
	OccurredAt     string   `json:"occurred_at"`
}

// IdempotencyKey builds tenant:outlet:invoice-or-code:template. Downstream
// consumers deduplicate on it, so re-enqueueing the same event is harmless.
func IdempotencyKey(tenantID, outletID, invoiceOrCode string, t Template) string {
	return strings.Join([]string{tenantID, outletID, invoiceOrCode, string(t)}, ":")
}

// Notifier enqueues events for delivery.
type Notifier interface {
	Enqueue(ctx context.Context, ev Event) error
	Close() error
}

// LogNotifier writes events to the structured log. Used when no broker is
// configured.
type LogNotifier struct{}

func (LogNotifier) Enqueue(_ context.Context, ev Event) error {
	slog.Info("notification enqueued",
		"template", ev.Template,
		"tenant", ev.TenantID,
		"order", ev.OrderID,
		"key", ev.IdempotencyKey)
	return nil
}

func (LogNotifier) Close() error { return nil }

// Memory records events in order. Used by tests.
type Memory struct {
	mu     sync.Mutex
	events []Event
	Err    error
}

func (m *Memory) Enqueue(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.events = append(m.events, ev)
	return nil
}

func (m *Memory) Close() error { return nil }

// Events returns a copy of everything enqueued so far.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// Templates lists the templates enqueued so far, in order.
func (m *Memory) Templates() []Template {
	evs := m.Events()
	out := make([]Template, len(evs))
	for i, ev := range evs {
		out[i] = ev.Template
	}
	return out
}
