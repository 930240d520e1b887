package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ahmlhn/Saas-Laundry-sub002/internal/access"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/audit"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/changes"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/domain"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/intake"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/invoice"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/notify"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/quota"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/store"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/testutil"
)

// QuotaZone is where quota periods roll over during scenarios.
const QuotaZone = "Asia/Jakarta"

// Harness holds the services one scenario runs against.
type Harness struct {
	store  *store.Store
	intake *intake.Service
	feed   *changes.Feed
	clock  *testutil.DeterministicClock
	quota  *quota.Service
	notes  *notify.Memory
	logger *slog.Logger

	// refs holds the entity refs of every acked mutation, for {{...}}
	// references in later steps.
	refs map[string][]domain.EntityRef
}

// Run executes a scenario on a fresh in-memory store and returns the
// result. Failed expectations land in Result.Errors; the error return is
// for scenarios that could not run at all.
func Run(scenario *Scenario) (*Result, error) {
	h, err := newHarness(scenario)
	if err != nil {
		return nil, err
	}
	defer h.store.Close()

	ctx := context.Background()
	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, stepName(i, step), err)
		}
	}

	actx := &AssertionContext{
		Ctx:   ctx,
		Store: h.store,
		Quota: h.quota,
		Notes: h.notes,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func newHarness(scenario *Scenario) (*Harness, error) {
	fixtures := []byte(testutil.Fixtures)
	if scenario.Fixtures != "" {
		data, err := os.ReadFile(scenario.Fixtures)
		if err != nil {
			return nil, fmt.Errorf("failed to read fixtures: %w", err)
		}
		fixtures = data
	}
	parsed, err := store.ParseFixtures(fixtures)
	if err != nil {
		return nil, err
	}

	var start time.Time
	if scenario.Start != "" {
		start, err = time.Parse(time.RFC3339, scenario.Start)
		if err != nil {
			return nil, fmt.Errorf("invalid start: %w", err)
		}
	}
	loc, err := time.LoadLocation(QuotaZone)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	if err := st.Seed(context.Background(), parsed); err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to seed fixtures: %w", err)
	}

	clock := testutil.NewDeterministicClock(start)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &Harness{
		store:  st,
		clock:  clock,
		quota:  quota.New(clock, loc),
		notes:  &notify.Memory{},
		logger: logger,
		refs:   map[string][]domain.EntityRef{},
	}
	resolver := access.NewStoreResolver(st)
	h.intake = intake.New(st, resolver, h.quota,
		invoice.New(clock, domain.NewSequenceGenerator("lease"), 0),
		clock,
		domain.NewSequenceGenerator("id"),
		intake.WithNotifier(h.notes),
		intake.WithAudit(audit.NewSlogSink(logger)),
	)
	h.feed = changes.NewFeed(st, resolver, h.quota, clock)
	return h, nil
}

func stepName(i int, st Step) string {
	if st.Name != "" {
		return st.Name
	}
	return fmt.Sprintf("#%d", i+1)
}

func (h *Harness) executeStep(ctx context.Context, i int, st Step, result *Result) error {
	switch {
	case st.Advance != "":
		d, err := time.ParseDuration(st.Advance)
		if err != nil {
			return err
		}
		h.clock.Advance(d)
		return nil
	case st.Push != nil:
		return h.executePush(ctx, i, st, result)
	case st.Pull != nil:
		return h.executePull(ctx, i, st, result)
	case st.Claim != nil:
		return h.executeClaim(ctx, i, st, result)
	}
	return fmt.Errorf("empty step")
}

// Unauthenticated is the trace reject for an actor that is not a member
// of the tenant.
const Unauthenticated = "UNAUTHENTICATED"

// unauthenticated turns an unknown-user error into a request rejection.
func unauthenticated(rej *domain.Reject, err error) (*domain.Reject, error) {
	if errors.Is(err, access.ErrUnknownUser) {
		return &domain.Reject{Code: Unauthenticated, Message: "Unauthenticated."}, nil
	}
	return rej, err
}

func actorOf(a Actor) domain.Actor {
	return domain.Actor{TenantID: a.Tenant, UserID: a.User, Channel: a.Channel}
}

func (h *Harness) executePush(ctx context.Context, i int, st Step, result *Result) error {
	p := st.Push
	resolved, err := h.resolveRefs(p.Mutations)
	if err != nil {
		return err
	}
	mutations, err := decodeMutations(resolved)
	if err != nil {
		return err
	}

	resp, rej, err := h.intake.Push(ctx, actorOf(p.Actor), intake.PushRequest{DeviceID: p.DeviceID, Mutations: mutations})
	rej, err = unauthenticated(rej, err)
	if err != nil {
		return err
	}

	ev := TraceEvent{Step: st.Name, Kind: KindPush, Actor: p.Actor.String()}
	if rej != nil {
		ev.Reject = string(rej.Code)
	} else {
		ev.Outcomes = outcomesInOrder(mutations, resp)
		for _, a := range resp.Ack {
			h.refs[a.MutationID] = a.EntityRefs
		}
	}
	result.AddTrace(ev)
	checkStep(i, st, ev, result)
	return nil
}

// refPattern matches "{{<mutation_id>.<entity_type>}}", the id of an entity
// an earlier mutation created or touched.
var refPattern = regexp.MustCompile(`^\{\{\s*([^.\s]+)\.([a-z_]+)\s*\}\}$`)

// resolveRefs replaces every reference string in v with the entity id it
// names.
func (h *Harness) resolveRefs(v any) (any, error) {
	switch val := v.(type) {
	case string:
		m := refPattern.FindStringSubmatch(val)
		if m == nil {
			return val, nil
		}
		for _, ref := range h.refs[m[1]] {
			if ref.EntityType == m[2] {
				return ref.EntityID, nil
			}
		}
		return nil, fmt.Errorf("unresolved reference %s", val)
	case []map[string]any:
		out := make([]any, len(val))
		for i, x := range val {
			r, err := h.resolveRefs(x)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, x := range val {
			r, err := h.resolveRefs(x)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, x := range val {
			r, err := h.resolveRefs(x)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	default:
		return v, nil
	}
}

// decodeMutations converts YAML mutation maps through their JSON wire form.
func decodeMutations(raw any) ([]domain.Mutation, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode mutations: %w", err)
	}
	var mutations []domain.Mutation
	if err := json.Unmarshal(data, &mutations); err != nil {
		return nil, fmt.Errorf("decode mutations: %w", err)
	}
	return mutations, nil
}

// outcomesInOrder merges the ack and rejected lists back into batch order.
func outcomesInOrder(mutations []domain.Mutation, resp *intake.PushResponse) []MutationTrace {
	byID := make(map[string]MutationTrace, len(mutations))
	for _, a := range resp.Ack {
		byID[a.MutationID] = MutationTrace{MutationID: a.MutationID, Status: a.Status, ServerCursor: a.ServerCursor}
	}
	for _, r := range resp.Rejected {
		byID[r.MutationID] = MutationTrace{MutationID: r.MutationID, Status: r.Status, ReasonCode: r.ReasonCode}
	}
	out := make([]MutationTrace, 0, len(mutations))
	for _, m := range mutations {
		if mt, ok := byID[m.MutationID]; ok {
			out = append(out, mt)
		}
	}
	return out
}

func (h *Harness) executePull(ctx context.Context, i int, st Step, result *Result) error {
	p := st.Pull
	req := changes.PullRequest{
		DeviceID: p.DeviceID,
		Cursor:   p.Cursor,
		Scope:    changes.Scope{Mode: p.Scope.Mode, OutletID: p.Scope.OutletID},
		Limit:    p.Limit,
	}
	resp, rej, err := h.feed.Pull(ctx, actorOf(p.Actor), req)
	rej, err = unauthenticated(rej, err)
	if err != nil {
		return err
	}

	ev := TraceEvent{Step: st.Name, Kind: KindPull, Actor: p.Actor.String()}
	if rej != nil {
		ev.Reject = string(rej.Code)
	} else {
		next, more := resp.NextCursor, resp.HasMore
		ev.NextCursor, ev.HasMore = &next, &more
		ev.Changes = make([]ChangeTrace, 0, len(resp.Changes))
		for _, c := range resp.Changes {
			ev.Changes = append(ev.Changes, ChangeTrace{EntityType: c.EntityType, Op: c.Op})
		}
	}
	result.AddTrace(ev)
	checkStep(i, st, ev, result)
	return nil
}

func (h *Harness) executeClaim(ctx context.Context, i int, st Step, result *Result) error {
	c := st.Claim
	req := intake.ClaimRequest{DeviceID: c.DeviceID, OutletID: c.OutletID}
	for _, d := range c.Days {
		req.Days = append(req.Days, invoice.DayClaim{Date: d.Date, Count: d.Count})
	}
	resp, rej, err := h.intake.Claim(ctx, actorOf(c.Actor), req)
	rej, err = unauthenticated(rej, err)
	if err != nil {
		return err
	}

	ev := TraceEvent{Step: st.Name, Kind: KindClaim, Actor: c.Actor.String()}
	if rej != nil {
		ev.Reject = string(rej.Code)
	} else {
		for _, r := range resp.Ranges {
			ev.Ranges = append(ev.Ranges, RangeTrace{Date: r.Date, Prefix: r.Prefix, From: r.From, To: r.To})
		}
	}
	result.AddTrace(ev)
	checkStep(i, st, ev, result)
	return nil
}

// checkStep compares a step's trace event with its expect clause.
func checkStep(i int, st Step, ev TraceEvent, result *Result) {
	want := st.Expect
	if want == nil {
		if ev.Reject != "" {
			result.AddError(fmt.Sprintf("step %s: request rejected with %s", stepName(i, st), ev.Reject))
		}
		return
	}
	name := stepName(i, st)

	if want.Reject != ev.Reject {
		result.AddError(fmt.Sprintf("step %s: expected reject %q, got %q", name, want.Reject, ev.Reject))
		return
	}
	if want.Outcomes != nil {
		got := make([]string, len(ev.Outcomes))
		for j, o := range ev.Outcomes {
			got[j] = o.Label()
		}
		if !slices.Equal(want.Outcomes, got) {
			result.AddError(fmt.Sprintf("step %s: expected outcomes [%s], got [%s]",
				name, strings.Join(want.Outcomes, " "), strings.Join(got, " ")))
		}
	}
	if want.Changes != nil && *want.Changes != len(ev.Changes) {
		result.AddError(fmt.Sprintf("step %s: expected %d changes, got %d", name, *want.Changes, len(ev.Changes)))
	}
	if want.HasMore != nil && (ev.HasMore == nil || *want.HasMore != *ev.HasMore) {
		result.AddError(fmt.Sprintf("step %s: expected has_more %t", name, *want.HasMore))
	}
	if want.Ranges != nil {
		got := make([]string, len(ev.Ranges))
		for j, r := range ev.Ranges {
			got[j] = fmt.Sprintf("%d-%d", r.From, r.To)
		}
		if !slices.Equal(want.Ranges, got) {
			result.AddError(fmt.Sprintf("step %s: expected ranges %v, got %v", name, want.Ranges, got))
		}
	}
}
