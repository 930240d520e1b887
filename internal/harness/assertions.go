package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sort"
	"strings"

	"github.com/ahmlhn/Saas-Laundry-sub002/internal/domain"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/notify"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/quota"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/store"
)

// AssertionContext is what assertions read final state from.
type AssertionContext struct {
	Ctx   context.Context
	Store *store.Store
	Quota *quota.Service
	Notes *notify.Memory
}

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s", ev.Seq, ev.Kind, ev.Actor)
			if ev.Reject != "" {
				fmt.Fprintf(&buf, " reject=%s", ev.Reject)
			}
			for _, o := range ev.Outcomes {
				fmt.Fprintf(&buf, " %s=%s", o.MutationID, o.Label())
			}
			fmt.Fprintln(&buf)
		}
	}
	return buf.String()
}

// assertOutcome checks the journal row of a mutation.
func assertOutcome(actx *AssertionContext, a Assertion) error {
	rec, err := actx.Store.GetMutation(actx.Ctx, a.Tenant, a.MutationID)
	if errors.Is(err, store.ErrNotFound) {
		return &AssertionError{
			Type:     AssertOutcome,
			Expected: fmt.Sprintf("mutation %s journaled for %s", a.MutationID, a.Tenant),
			Actual:   "no journal row",
		}
	}
	if err != nil {
		return err
	}

	actual := map[string]any{
		"status":         rec.Status,
		"reason_code":    rec.ReasonCode,
		"message":        rec.Message,
		"type":           rec.Type,
		"device_id":      rec.DeviceID,
		"source_channel": rec.SourceChannel,
		"server_cursor":  rec.ServerCursor,
		"effects":        rec.Effects,
	}
	return compareFields(AssertOutcome, "mutation "+a.MutationID, a.Expect, actual)
}

// assertOrderState checks fields of an order in its JSON form.
func assertOrderState(actx *AssertionContext, a Assertion) error {
	order, err := findOrder(actx, a)
	if err != nil {
		return err
	}
	actual, err := toJSONMap(order)
	if err != nil {
		return err
	}
	return compareFields(AssertOrderState, "order "+order.OrderCode, a.Expect, actual)
}

func findOrder(actx *AssertionContext, a Assertion) (*domain.Order, error) {
	if a.MutationID != "" {
		rec, err := actx.Store.GetMutation(actx.Ctx, a.Tenant, a.MutationID)
		if err != nil {
			return nil, &AssertionError{
				Type:     AssertOrderState,
				Expected: fmt.Sprintf("mutation %s journaled", a.MutationID),
				Actual:   err.Error(),
			}
		}
		for _, ref := range rec.EntityRefs {
			if ref.EntityType == domain.EntityOrder {
				return actx.Store.GetOrder(actx.Ctx, a.Tenant, ref.EntityID)
			}
		}
		return nil, &AssertionError{
			Type:     AssertOrderState,
			Expected: fmt.Sprintf("mutation %s references an order", a.MutationID),
			Actual:   fmt.Sprintf("status %s, refs %v", rec.Status, rec.EntityRefs),
		}
	}

	orders, err := actx.Store.ListOrders(actx.Ctx, a.Tenant)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		if orders[i].OrderCode == a.OrderCode {
			return &orders[i], nil
		}
	}
	return nil, &AssertionError{
		Type:     AssertOrderState,
		Expected: fmt.Sprintf("order %s in tenant %s", a.OrderCode, a.Tenant),
		Actual:   "not found",
	}
}

// assertChangeCount counts a tenant's change records.
func assertChangeCount(actx *AssertionContext, a Assertion) error {
	rows, err := actx.Store.ListChanges(actx.Ctx, store.ChangeFilter{TenantID: a.Tenant})
	if err != nil {
		return err
	}
	count := 0
	for _, r := range rows {
		if a.EntityType == "" || r.EntityType == a.EntityType {
			count++
		}
	}
	if count != a.Count {
		what := "changes"
		if a.EntityType != "" {
			what = a.EntityType + " changes"
		}
		return &AssertionError{
			Type:     AssertChangeCount,
			Expected: fmt.Sprintf("%d %s", a.Count, what),
			Actual:   fmt.Sprintf("%d %s", count, what),
		}
	}
	return nil
}

// assertQuota checks the quota snapshot of a period.
func assertQuota(actx *AssertionContext, a Assertion) error {
	snap, err := actx.Quota.Snapshot(actx.Ctx, actx.Store, a.Tenant, a.Period)
	if err != nil {
		return err
	}
	actual, err := toJSONMap(snap)
	if err != nil {
		return err
	}
	return compareFields(AssertQuota, "quota of "+a.Tenant, a.Expect, actual)
}

// assertNotifications compares the dispatched templates in order.
func assertNotifications(actx *AssertionContext, a Assertion) error {
	got := []string{}
	for _, t := range actx.Notes.Templates() {
		got = append(got, string(t))
	}
	want := a.Templates
	if want == nil {
		want = []string{}
	}
	if !slices.Equal(want, got) {
		return &AssertionError{
			Type:     AssertNotifications,
			Expected: fmt.Sprintf("%v", want),
			Actual:   fmt.Sprintf("%v", got),
		}
	}
	return nil
}

// compareFields checks that every expected key is present in actual with
// an equal value. Keys are reported in sorted order.
func compareFields(typ, subject string, expected, actual map[string]any) error {
	keys := make([]string, 0, len(expected))
	for k := range expected {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var mismatches []string
	for _, k := range keys {
		got, ok := actual[k]
		if !ok {
			mismatches = append(mismatches, fmt.Sprintf("%s missing", k))
			continue
		}
		if !valuesEqual(got, expected[k]) {
			mismatches = append(mismatches, fmt.Sprintf("%s=%v (want %v)", k, deref(got), expected[k]))
		}
	}
	if len(mismatches) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     typ,
		Expected: fmt.Sprintf("%s with %v", subject, expected),
		Actual:   strings.Join(mismatches, ", "),
	}
}

// valuesEqual compares through JSON so YAML ints, Go int64s, pointers and
// typed strings meet on common ground.
func valuesEqual(actual, expected any) bool {
	a, errA := normalize(actual)
	e, errE := normalize(expected)
	if errA != nil || errE != nil {
		return false
	}
	return reflect.DeepEqual(a, e)
}

func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func deref(v any) any {
	n, err := normalize(v)
	if err != nil {
		return v
	}
	return n
}

func toJSONMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// EvaluateAssertions runs every assertion and returns the failure
// messages. Each failing assertion carries the full trace.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertOutcome:
			err = assertOutcome(actx, a)
		case AssertOrderState:
			err = assertOrderState(actx, a)
		case AssertChangeCount:
			err = assertChangeCount(actx, a)
		case AssertQuota:
			err = assertQuota(actx, a)
		case AssertNotifications:
			err = assertNotifications(actx, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err == nil {
			continue
		}
		var ae *AssertionError
		if errors.As(err, &ae) {
			ae.Trace = result.Trace
		}
		errs = append(errs, fmt.Sprintf("assertions[%d]: %s", i, err.Error()))
	}
	return errs
}
