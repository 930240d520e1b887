// Package intake applies pushed mutation batches exactly once.
//
// Every mutation is looked up in the idempotency journal by
// (tenant, mutation_id). A recorded outcome is returned as is and the
// handler never runs again. An unseen mutation runs its handler inside one
// transaction together with the journal row, so the effect and the outcome
// become durable at the same instant. A rejection rolls the handler's
// writes back and is journaled on its own.
//
// Thread-safety model:
//   - Push and Claim are safe to call from concurrent requests; the
//     database serializes them (unique journal key, atomic counters).
//   - Mutations within one batch are processed sequentially in array order.
package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ahmlhn/Saas-Laundry-sub002/internal/access"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/audit"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/changes"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/domain"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/invoice"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/metrics"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/notify"
	outcomecache "github.com/ahmlhn/Saas-Laundry-sub002/internal/outcome"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/quota"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/schema"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/store"
)

const (
	maxMutationIDLen = 64
	maxTypeLen       = 60
	maxEntityTypeLen = 50
	maxEntityIDLen   = 80
)

// Service runs push batches and invoice range claims.
type Service struct {
	store     *store.Store
	access    access.Resolver
	quota     *quota.Service
	invoices  *invoice.Service
	recorder  *changes.Recorder
	validator *schema.Validator
	clock     domain.Clock
	ids       domain.IDGenerator

	notifier notify.Notifier
	audit    audit.Sink
	cache    outcomecache.Cache
	metrics  *metrics.Metrics
}

// Option configures optional collaborators.
type Option func(*Service)

// WithNotifier sets the post-commit notification dispatcher.
// Default: notify.LogNotifier.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithAudit sets the audit sink. Default: slog sink on the default logger.
func WithAudit(a audit.Sink) Option {
	return func(s *Service) { s.audit = a }
}

// WithCache sets the outcome cache. Default: no cache.
func WithCache(c outcomecache.Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithMetrics enables metrics collection.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithValidator replaces the payload validator.
func WithValidator(v *schema.Validator) Option {
	return func(s *Service) { s.validator = v }
}

// New creates a Service. ids mints every server-side id: orders, items,
// payments, customers, leases and change records.
func New(
	s *store.Store,
	resolver access.Resolver,
	q *quota.Service,
	inv *invoice.Service,
	clock domain.Clock,
	ids domain.IDGenerator,
	opts ...Option,
) *Service {
	svc := &Service{
		store:    s,
		access:   resolver,
		quota:    q,
		invoices: inv,
		recorder: changes.NewRecorder(clock, ids),
		clock:    clock,
		ids:      ids,
		notifier: notify.LogNotifier{},
		cache:    outcomecache.None{},
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.validator == nil {
		svc.validator = schema.MustNewValidator()
	}
	if svc.audit == nil {
		svc.audit = audit.NewSlogSink(nil)
	}
	return svc
}

// Push applies a batch. A request-level problem (missing device id,
// malformed envelope, device bound to another tenant) comes back as a
// rejection of the whole request. Individual mutation rejections are part
// of the response. The error return is reserved for infrastructure faults
// that leave a mutation's outcome unknown, such as a failed journal write.
func (s *Service) Push(ctx context.Context, actor domain.Actor, req PushRequest) (*PushResponse, *domain.Reject, error) {
	if rej := validateEnvelope(req); rej != nil {
		return nil, rej, nil
	}
	actor.Channel = sourceChannel(actor.Channel)

	grant, err := s.access.Resolve(ctx, actor)
	if err != nil {
		return nil, nil, fmt.Errorf("push: %w", err)
	}
	if rej, err := s.touchDevice(ctx, actor, req.DeviceID); err != nil || rej != nil {
		return nil, rej, err
	}
	s.metrics.RecordPushBatch(len(req.Mutations))

	resp := &PushResponse{Ack: []Ack{}, Rejected: []Rejection{}}
	for _, m := range req.Mutations {
		// A client disconnect must never abandon a mutation halfway.
		mctx := context.WithoutCancel(ctx)
		out, err := s.processOne(mctx, actor, grant, req.DeviceID, m)
		if err != nil {
			return nil, nil, fmt.Errorf("push: mutation %s: %w", m.MutationID, err)
		}
		if out.ack != nil {
			resp.Ack = append(resp.Ack, *out.ack)
		} else {
			resp.Rejected = append(resp.Rejected, *out.rejection)
		}
	}

	resp.Quota, err = s.quota.Snapshot(ctx, s.store, actor.TenantID, "")
	if err != nil {
		return nil, nil, fmt.Errorf("push: %w", err)
	}
	resp.ServerTime = domain.FormatTime(s.clock.Now())

	slog.Debug("push processed",
		"tenant", actor.TenantID,
		"device", req.DeviceID,
		"mutations", len(req.Mutations),
		"acked", len(resp.Ack),
		"rejected", len(resp.Rejected),
	)
	return resp, nil, nil
}

func validateEnvelope(req PushRequest) *domain.Reject {
	invalid := func(format string, args ...any) *domain.Reject {
		return &domain.Reject{Code: domain.ReasonValidationFailed, Message: fmt.Sprintf(format, args...)}
	}
	if strings.TrimSpace(req.DeviceID) == "" {
		return invalid("device_id is required.")
	}
	if req.LastKnownServerCursor != nil && *req.LastKnownServerCursor < 0 {
		return invalid("last_known_server_cursor must not be negative.")
	}
	if len(req.Mutations) == 0 {
		return invalid("mutations must contain at least one mutation.")
	}
	for i, m := range req.Mutations {
		switch {
		case m.MutationID == "":
			return invalid("mutations.%d.mutation_id is required.", i)
		case len(m.MutationID) > maxMutationIDLen:
			return invalid("mutations.%d.mutation_id must not exceed %d characters.", i, maxMutationIDLen)
		case m.Type == "":
			return invalid("mutations.%d.type is required.", i)
		case len(m.Type) > maxTypeLen:
			return invalid("mutations.%d.type must not exceed %d characters.", i, maxTypeLen)
		case m.Seq != nil && *m.Seq < 0:
			return invalid("mutations.%d.seq must not be negative.", i)
		}
		if m.Entity != nil {
			if len(m.Entity.EntityType) > maxEntityTypeLen {
				return invalid("mutations.%d.entity.entity_type must not exceed %d characters.", i, maxEntityTypeLen)
			}
			if len(m.Entity.EntityID) > maxEntityIDLen {
				return invalid("mutations.%d.entity.entity_id must not exceed %d characters.", i, maxEntityIDLen)
			}
		}
		if m.ClientTime != "" {
			if _, err := parseClientTime(m.ClientTime, time.UTC); err != nil {
				return invalid("mutations.%d.client_time is not a valid date.", i)
			}
		}
	}
	return nil
}

// parseClientTime accepts RFC 3339 timestamps and bare dates. A bare date
// is midnight in loc, the outlet's business timezone.
func parseClientTime(v string, loc *time.Location) (time.Time, error) {
	if t, err := domain.ParseTime(v); err == nil {
		return t, nil
	}
	return time.ParseInLocation(time.DateOnly, v, loc)
}

func sourceChannel(ch string) string {
	switch ch = strings.ToLower(strings.TrimSpace(ch)); ch {
	case domain.ChannelMobile, domain.ChannelWeb, domain.ChannelSystem:
		return ch
	}
	return domain.ChannelMobile
}

// touchDevice registers the device or refreshes last_seen_at.
func (s *Service) touchDevice(ctx context.Context, actor domain.Actor, deviceID string) (*domain.Reject, error) {
	err := s.store.UpsertDevice(ctx, actor.TenantID, deviceID, actor.UserID, domain.FormatTime(s.clock.Now()))
	if errors.Is(err, store.ErrDeviceTenantMismatch) {
		return &domain.Reject{Code: domain.ReasonOutletAccessDenied, Message: "Device is bound to another tenant."}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("touch device: %w", err)
	}
	return nil, nil
}

// processOne returns the stored outcome of a seen mutation or applies an
// unseen one.
func (s *Service) processOne(ctx context.Context, actor domain.Actor, grant *access.Grant, deviceID string, m domain.Mutation) (outcome, error) {
	mutationType, _ := domain.ParseMutationType(m.Type)
	hash, err := domain.PayloadHash(string(mutationType), m.Payload)
	if err != nil {
		hash = ""
	}

	existing, err := s.lookup(ctx, actor.TenantID, m.MutationID)
	if err != nil {
		return outcome{}, err
	}
	if existing != nil {
		return s.replay(existing, hash), nil
	}

	mc := &mutationContext{
		actor:    actor,
		grant:    grant,
		deviceID: deviceID,
		mutation: m,
		typ:      mutationType,
		now:      s.clock.Now(),
	}
	return s.apply(ctx, mc, hash)
}

// lookup checks the outcome cache, then the journal. Returns nil, nil for
// an unseen mutation.
func (s *Service) lookup(ctx context.Context, tenantID, mutationID string) (*domain.MutationRecord, error) {
	rec, err := s.cache.Get(ctx, tenantID, mutationID)
	switch {
	case err == nil:
		return rec, nil
	case !errors.Is(err, outcomecache.ErrMiss):
		slog.Warn("outcome cache read failed", "tenant", tenantID, "mutation", mutationID, "error", err)
		s.metrics.RecordSideEffectFailure("cache")
	}

	rec, err = s.store.GetMutation(ctx, tenantID, mutationID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup mutation: %w", err)
	}
	s.fillCache(ctx, *rec)
	return rec, nil
}

func (s *Service) replay(rec *domain.MutationRecord, hash string) outcome {
	if hash != "" && rec.PayloadHash != "" && hash != rec.PayloadHash {
		slog.Warn("mutation replayed with different payload",
			"tenant", rec.TenantID,
			"mutation", rec.MutationID,
			"device", rec.DeviceID,
			"stored_hash", rec.PayloadHash,
			"replayed_hash", hash,
		)
	}
	if rec.Status == domain.StatusRejected {
		s.metrics.RecordMutation(rec.Type, string(domain.StatusDuplicate), string(rec.ReasonCode))
		return rejectionFromRecord(rec)
	}
	s.metrics.RecordMutation(rec.Type, string(domain.StatusDuplicate), "")
	return ackFromRecord(rec, domain.StatusDuplicate)
}

// apply runs the handler and journals the outcome.
func (s *Service) apply(ctx context.Context, mc *mutationContext, hash string) (outcome, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return s.internalError(mc, err), nil
	}
	defer tx.Rollback() // no-op after commit

	res, notices, err := s.dispatch(ctx, tx, mc)
	if err != nil {
		_ = tx.Rollback()
		return s.internalError(mc, err), nil
	}

	if res.IsRejected() {
		if err := tx.Rollback(); err != nil {
			return outcome{}, fmt.Errorf("rollback rejected mutation: %w", err)
		}
		rec := s.journalRecord(mc, hash, res)
		if err := s.store.InsertMutation(ctx, rec); err != nil {
			if errors.Is(err, store.ErrMutationExists) {
				return s.raced(ctx, mc, hash)
			}
			return outcome{}, err
		}
		s.afterCommit(ctx, mc, rec, nil)
		return rejectionFrom(mc.mutation.MutationID, res.Reject), nil
	}

	rec := s.journalRecord(mc, hash, res)
	if err := tx.InsertMutation(ctx, rec); err != nil {
		_ = tx.Rollback()
		if errors.Is(err, store.ErrMutationExists) {
			return s.raced(ctx, mc, hash)
		}
		return outcome{}, err
	}
	if err := tx.Commit(); err != nil {
		return outcome{}, fmt.Errorf("commit mutation: %w", err)
	}
	s.afterCommit(ctx, mc, rec, notices)
	return ackFromRecord(&rec, domain.StatusApplied), nil
}

// raced handles a concurrent request that journaled the same mutation
// first: its outcome wins.
func (s *Service) raced(ctx context.Context, mc *mutationContext, hash string) (outcome, error) {
	rec, err := s.store.GetMutation(ctx, mc.actor.TenantID, mc.mutation.MutationID)
	if err != nil {
		return outcome{}, fmt.Errorf("reload raced mutation: %w", err)
	}
	return s.replay(rec, hash), nil
}

// internalError converts an infrastructure fault into a rejection that is
// not journaled, so a retry can still apply the mutation.
func (s *Service) internalError(mc *mutationContext, err error) outcome {
	slog.Error("mutation failed",
		"tenant", mc.actor.TenantID,
		"mutation", mc.mutation.MutationID,
		"type", mc.mutation.Type,
		"error", err,
	)
	s.metrics.RecordMutation(string(mc.typ), string(domain.StatusRejected), string(domain.ReasonInternalError))
	return rejectionFrom(mc.mutation.MutationID, &domain.Reject{
		Code:    domain.ReasonInternalError,
		Message: "Internal error; retry later.",
	})
}

func (s *Service) journalRecord(mc *mutationContext, hash string, res domain.Result) domain.MutationRecord {
	m := mc.mutation
	rec := domain.MutationRecord{
		TenantID:      mc.actor.TenantID,
		DeviceID:      mc.deviceID,
		MutationID:    m.MutationID,
		Seq:           m.Seq,
		Type:          string(mc.typ),
		OutletID:      m.OutletID,
		Payload:       m.Payload,
		PayloadHash:   hash,
		ClientTime:    m.ClientTime,
		SourceChannel: mc.actor.Channel,
		ProcessedAt:   domain.FormatTime(s.clock.Now()),
	}
	if m.Entity != nil {
		rec.EntityType = m.Entity.EntityType
		rec.EntityID = m.Entity.EntityID
	}
	if res.IsRejected() {
		rec.Status = domain.StatusRejected
		rec.ReasonCode = res.Reject.Code
		rec.Message = res.Reject.Message
		rec.EntityRefs = []domain.EntityRef{}
		rec.Effects = map[string]any{}
		if res.Reject.CurrentState != nil {
			rec.Effects[effectCurrentState] = res.Reject.CurrentState
		}
		return rec
	}
	rec.Status = domain.StatusApplied
	rec.ServerCursor = res.ServerCursor
	rec.EntityRefs = res.EntityRefs
	rec.Effects = res.Effects
	return rec
}

// afterCommit runs side effects of a durable outcome. Failures are logged
// and counted; the outcome stands.
func (s *Service) afterCommit(ctx context.Context, mc *mutationContext, rec domain.MutationRecord, notices []notify.Event) {
	s.metrics.RecordMutation(rec.Type, string(rec.Status), string(rec.ReasonCode))

	for _, ev := range notices {
		if err := s.notifier.Enqueue(ctx, ev); err != nil {
			slog.Warn("notification enqueue failed",
				"tenant", ev.TenantID,
				"order", ev.OrderID,
				"template", ev.Template,
				"error", err)
			s.metrics.RecordSideEffectFailure("notify")
		}
	}

	ev := audit.Event{
		Key:      audit.EventMutationApplied,
		TenantID: rec.TenantID,
		UserID:   mc.actor.UserID,
		OutletID: rec.OutletID,
		Channel:  rec.SourceChannel,
		Metadata: map[string]any{"mutation_id": rec.MutationID, "type": rec.Type, "device_id": rec.DeviceID},
	}
	if rec.Status == domain.StatusRejected {
		ev.Key = audit.EventMutationRejected
		ev.Metadata["reason_code"] = string(rec.ReasonCode)
	}
	if len(rec.EntityRefs) > 0 {
		ev.EntityType = rec.EntityRefs[0].EntityType
		ev.EntityID = rec.EntityRefs[0].EntityID
	}
	if err := s.audit.Append(ctx, ev); err != nil {
		slog.Warn("audit append failed", "tenant", rec.TenantID, "mutation", rec.MutationID, "error", err)
		s.metrics.RecordSideEffectFailure("audit")
	}

	s.fillCache(ctx, rec)
}

func (s *Service) fillCache(ctx context.Context, rec domain.MutationRecord) {
	if err := s.cache.Put(ctx, rec); err != nil {
		slog.Warn("outcome cache write failed", "tenant", rec.TenantID, "mutation", rec.MutationID, "error", err)
		s.metrics.RecordSideEffectFailure("cache")
	}
}
