// Package status enforces the forward-only order state machines.
//
// Both pipelines are linear. A requested status is accepted only when it is
// exactly one step after the current status. Rules that span pipelines (a
// courier may not start delivery before the laundry is ready, a terminal
// state needs the order paid) are the caller's job.
package status

import (
	"fmt"
	"slices"

	"github.com/ahmlhn/Saas-Laundry-sub002/internal/domain"
)

// Pipeline names one of the two state machines.
type Pipeline string

const (
	Laundry Pipeline = "laundry"
	Courier Pipeline = "courier"
)

var pipelines = map[Pipeline][]string{
	Laundry: {
		domain.LaundryReceived,
		"washing",
		"drying",
		"ironing",
		domain.LaundryReady,
		domain.LaundryCompleted,
	},
	Courier: {
		domain.CourierPending,
		domain.CourierPickupOTW,
		"picked_up",
		"at_outlet",
		domain.CourierDeliveryPen,
		domain.CourierDeliveryOTW,
		domain.CourierDelivered,
	},
}

// Steps returns the ordered states of a pipeline. Nil for an unknown pipeline.
func Steps(p Pipeline) []string {
	return slices.Clone(pipelines[p])
}

// Result is the validator's verdict. ReasonCode and Message are empty when OK.
type Result struct {
	OK         bool
	ReasonCode domain.ReasonCode
	Message    string
}

// Validate checks a requested transition.
//
//	requested unknown           -> INVALID_TRANSITION
//	requested at or before current -> STATUS_NOT_FORWARD
//	requested more than one step ahead -> INVALID_TRANSITION
//	requested exactly next      -> OK
//
// An empty or unknown current status is treated as the first state of the
// pipeline.
func Validate(p Pipeline, current, requested string) Result {
	steps, ok := pipelines[p]
	if !ok {
		return Result{
			ReasonCode: domain.ReasonInvalidTransition,
			Message:    fmt.Sprintf("Unknown status pipeline %q.", p),
		}
	}

	to := slices.Index(steps, requested)
	if to < 0 {
		return Result{
			ReasonCode: domain.ReasonInvalidTransition,
			Message:    fmt.Sprintf("Unknown %s status %q.", p, requested),
		}
	}

	from := slices.Index(steps, current)
	if from < 0 {
		from = 0
	}

	switch {
	case to <= from:
		return Result{
			ReasonCode: domain.ReasonStatusNotForward,
			Message:    fmt.Sprintf("Cannot move %s status from %s to %s.", p, steps[from], requested),
		}
	case to > from+1:
		return Result{
			ReasonCode: domain.ReasonInvalidTransition,
			Message:    fmt.Sprintf("Invalid %s transition from %s to %s; next allowed is %s.", p, steps[from], requested, steps[from+1]),
		}
	}
	return Result{OK: true}
}

// Reject converts a failed Result into a domain rejection carrying state.
func (r Result) Reject(state map[string]any) domain.Result {
	return domain.RejectedWithState(r.ReasonCode, r.Message, state)
}
