package domain

import "fmt"

// ReasonCode categorizes a rejected mutation. Codes are surfaced to clients
// verbatim and stored in the journal.
type ReasonCode string

const (
	// ReasonValidationFailed covers malformed payloads, unknown mutation
	// types and missing or foreign references.
	ReasonValidationFailed ReasonCode = "VALIDATION_FAILED"

	// ReasonOutletAccessDenied means the actor cannot reach the target outlet.
	ReasonOutletAccessDenied ReasonCode = "OUTLET_ACCESS_DENIED"

	// ReasonRoleAccessDenied means the actor lacks a role the mutation needs.
	ReasonRoleAccessDenied ReasonCode = "ROLE_ACCESS_DENIED"

	// ReasonQuotaExceeded means the tenant used up its order quota for the period.
	ReasonQuotaExceeded ReasonCode = "QUOTA_EXCEEDED"

	// ReasonPhoneInvalid means the customer phone did not normalize.
	ReasonPhoneInvalid ReasonCode = "PHONE_INVALID"

	// ReasonStatusNotForward means the requested status is current or behind.
	ReasonStatusNotForward ReasonCode = "STATUS_NOT_FORWARD"

	// ReasonInvalidTransition means the requested status skips ahead or is unknown.
	ReasonInvalidTransition ReasonCode = "INVALID_TRANSITION"

	// ReasonPaymentRequired means a terminal status was requested with money due.
	ReasonPaymentRequired ReasonCode = "PAYMENT_REQUIRED"

	// ReasonInvoiceRangeInvalid means a client invoice number is not backed by a lease.
	ReasonInvoiceRangeInvalid ReasonCode = "INVOICE_RANGE_INVALID"

	// ReasonInvoiceCounterOverflow means a claim would pass the daily counter ceiling.
	ReasonInvoiceCounterOverflow ReasonCode = "INVOICE_COUNTER_OVERFLOW"

	// ReasonSubscriptionReadOnly means the tenant subscription blocks writes.
	ReasonSubscriptionReadOnly ReasonCode = "SUBSCRIPTION_READ_ONLY"

	// ReasonInternalError is returned for infrastructure faults. Never journaled.
	ReasonInternalError ReasonCode = "INTERNAL_ERROR"
)

// Reject describes why a mutation was not applied.
type Reject struct {
	Code         ReasonCode
	Message      string
	CurrentState map[string]any
}

// String implements fmt.Stringer.
func (r *Reject) String() string {
	return fmt.Sprintf("%s: %s", r.Code, r.Message)
}

// Result is the outcome of one handler run: either applied (Reject == nil)
// or rejected. It is a value, so a rejection never unwinds the batch.
type Result struct {
	ServerCursor *int64
	EntityRefs   []EntityRef
	Effects      map[string]any
	Reject       *Reject
}

// Applied builds an applied Result.
func Applied(cursor int64, refs []EntityRef, effects map[string]any) Result {
	if refs == nil {
		refs = []EntityRef{}
	}
	if effects == nil {
		effects = map[string]any{}
	}
	return Result{ServerCursor: &cursor, EntityRefs: refs, Effects: effects}
}

// Rejected builds a rejected Result.
func Rejected(code ReasonCode, format string, args ...any) Result {
	return Result{Reject: &Reject{Code: code, Message: fmt.Sprintf(format, args...)}}
}

// RejectedWithState builds a rejected Result carrying the entity's current
// server-side state so the client can reconcile drift.
func RejectedWithState(code ReasonCode, message string, state map[string]any) Result {
	return Result{Reject: &Reject{Code: code, Message: message, CurrentState: state}}
}

// IsRejected reports whether the result is a rejection.
func (r Result) IsRejected() bool {
	return r.Reject != nil
}
