package harness

import "github.com/ahmlhn/Saas-Laundry-sub002/internal/domain"

// Trace event kinds.
const (
	KindPush  = "push"
	KindPull  = "pull"
	KindClaim = "claim"
)

// TraceEvent records one executed step.
type TraceEvent struct {
	Seq   int64  `json:"seq"`
	Step  string `json:"step,omitempty"`
	Kind  string `json:"kind"`
	Actor string `json:"actor"` // tenant/user

	// Reject is the request-level reason code when the whole request was
	// refused.
	Reject string `json:"reject,omitempty"`

	Outcomes []MutationTrace `json:"outcomes,omitempty"`

	NextCursor *int64        `json:"next_cursor,omitempty"`
	HasMore    *bool         `json:"has_more,omitempty"`
	Changes    []ChangeTrace `json:"changes,omitempty"`

	Ranges []RangeTrace `json:"ranges,omitempty"`
}

// MutationTrace is one mutation's outcome within a push.
type MutationTrace struct {
	MutationID   string                `json:"mutation_id"`
	Status       domain.MutationStatus `json:"status"`
	ReasonCode   domain.ReasonCode     `json:"reason_code,omitempty"`
	ServerCursor *int64                `json:"server_cursor,omitempty"`
}

// Label renders the outcome the way step expectations are written.
func (m MutationTrace) Label() string {
	if m.ReasonCode != "" {
		return string(m.Status) + ":" + string(m.ReasonCode)
	}
	return string(m.Status)
}

// ChangeTrace is one change returned by a pull.
type ChangeTrace struct {
	EntityType string          `json:"entity_type"`
	Op         domain.ChangeOp `json:"op"`
}

// RangeTrace is one invoice range granted by a claim.
type RangeTrace struct {
	Date   string `json:"date"`
	Prefix string `json:"prefix"`
	From   int64  `json:"from"`
	To     int64  `json:"to"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace has one event per push, pull and claim step in order.
	Trace []TraceEvent `json:"trace"`

	// Errors explains each failed expectation. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends an event, numbering it from 1.
func (r *Result) AddTrace(ev TraceEvent) {
	ev.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, ev)
}
