// Package quota meters monthly order creation against a tenant's plan.
//
// Usage lives in the shared counters table under quota:<tenant>:<period>.
// A limited plan consumes a slot with one bounded increment, so two
// concurrent order creations can never both take the last slot.
package quota

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/ahmlhn/Saas-Laundry-sub002/internal/domain"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/store"
)

var periodPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// Reader is the read side the service needs. Satisfied by *store.Store and
// *store.Tx.
type Reader interface {
	GetTenant(ctx context.Context, tenantID string) (*domain.Tenant, error)
	CounterValue(ctx context.Context, key string) (int64, error)
}

// Ledger adds the counter primitive. Pass the handler's transaction so the
// consumed slot rolls back with a rejected order.
type Ledger interface {
	Reader
	store.CounterStore
}

// Service consumes and reports order quota.
type Service struct {
	clock domain.Clock
	loc   *time.Location
}

// New creates a Service. Periods without an explicit value are taken from
// the clock in loc.
func New(clock domain.Clock, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{clock: clock, loc: loc}
}

// CounterKey is the counters-table key for a tenant's period.
func CounterKey(tenantID, period string) string {
	return "quota:" + tenantID + ":" + period
}

// PeriodOf formats t as a quota period (YYYY-MM) in loc.
func PeriodOf(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format("2006-01")
}

// ValidPeriod reports whether p is a YYYY-MM period.
func ValidPeriod(p string) bool {
	return periodPattern.MatchString(p)
}

// CurrentPeriod returns the period the clock is in.
func (s *Service) CurrentPeriod() string {
	return PeriodOf(s.clock.Now(), s.loc)
}

// PeriodFor returns the period t falls in.
func (s *Service) PeriodFor(t time.Time) string {
	return PeriodOf(t, s.loc)
}

// ConsumeOrderSlot takes one order slot for (tenant, period). For an
// unlimited plan it only counts. For a limited plan it returns a
// *QuotaExceededError, with the counter unchanged, once usage reached the
// limit.
func (s *Service) ConsumeOrderSlot(ctx context.Context, q Ledger, tenantID, period string) error {
	if !periodPattern.MatchString(period) {
		return fmt.Errorf("consume order slot: invalid period %q", period)
	}
	tenant, err := q.GetTenant(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("consume order slot: tenant %s: %w", tenantID, err)
	}

	key := CounterKey(tenantID, period)
	if tenant.OrdersLimit == nil {
		if _, err := q.IncrementAndGet(ctx, key, 1); err != nil {
			return fmt.Errorf("consume order slot: %w", err)
		}
		return nil
	}

	_, err = q.IncrementBounded(ctx, key, 1, *tenant.OrdersLimit)
	if ce, ok := store.IsCeilingError(err); ok {
		return &QuotaExceededError{
			TenantID:    tenantID,
			PlanKey:     tenant.PlanKey,
			Period:      period,
			OrdersLimit: *tenant.OrdersLimit,
			OrdersUsed:  ce.Current,
		}
	}
	if err != nil {
		return fmt.Errorf("consume order slot: %w", err)
	}
	return nil
}

// Snapshot reports usage for a period. An empty period means the current one.
func (s *Service) Snapshot(ctx context.Context, q Reader, tenantID, period string) (domain.QuotaSnapshot, error) {
	if period == "" {
		period = s.CurrentPeriod()
	}
	if !periodPattern.MatchString(period) {
		return domain.QuotaSnapshot{}, fmt.Errorf("quota snapshot: invalid period %q", period)
	}

	tenant, err := q.GetTenant(ctx, tenantID)
	if err != nil {
		return domain.QuotaSnapshot{}, fmt.Errorf("quota snapshot: tenant %s: %w", tenantID, err)
	}
	used, err := q.CounterValue(ctx, CounterKey(tenantID, period))
	if err != nil {
		return domain.QuotaSnapshot{}, fmt.Errorf("quota snapshot: %w", err)
	}

	snap := domain.QuotaSnapshot{
		Period:         period,
		OrdersLimit:    tenant.OrdersLimit,
		OrdersUsed:     used,
		CanCreateOrder: true,
	}
	if tenant.PlanKey != "" {
		plan := tenant.PlanKey
		snap.Plan = &plan
	}
	if tenant.OrdersLimit != nil {
		remaining := max(*tenant.OrdersLimit-used, 0)
		snap.OrdersRemaining = &remaining
		snap.CanCreateOrder = remaining > 0
	}
	return snap, nil
}

// EnsureTenantWriteAccess returns a *WriteAccessError when the tenant's
// subscription only allows reads.
func (s *Service) EnsureTenantWriteAccess(ctx context.Context, q Reader, tenantID string) error {
	tenant, err := q.GetTenant(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("write access: tenant %s: %w", tenantID, err)
	}
	if tenant.WriteAccessMode == domain.WriteAccessReadOnly {
		return &WriteAccessError{TenantID: tenantID, Mode: tenant.WriteAccessMode}
	}
	return nil
}

// QuotaExceededError is returned when a limited plan has no slot left.
type QuotaExceededError struct {
	TenantID    string
	PlanKey     string
	Period      string
	OrdersLimit int64
	OrdersUsed  int64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("%s: order quota reached for %s (plan=%s, used=%d, limit=%d)",
		domain.ReasonQuotaExceeded, e.Period, e.PlanKey, e.OrdersUsed, e.OrdersLimit)
}

// WriteAccessError is returned when a tenant's subscription is read-only.
type WriteAccessError struct {
	TenantID string
	Mode     string
}

func (e *WriteAccessError) Error() string {
	return fmt.Sprintf("%s: tenant %s is in %s mode", domain.ReasonSubscriptionReadOnly, e.TenantID, e.Mode)
}

// IsQuotaExceeded reports whether err is a *QuotaExceededError.
// Uses errors.As to handle wrapped errors.
func IsQuotaExceeded(err error) bool {
	var qe *QuotaExceededError
	return errors.As(err, &qe)
}

// IsWriteAccessDenied reports whether err is a *WriteAccessError.
func IsWriteAccessDenied(err error) bool {
	var we *WriteAccessError
	return errors.As(err, &we)
}
