// Package invoice hands out invoice numbers that devices can print while
// offline.
//
// A device claims a range of counters for an (outlet, business date) ahead
// of time. Numbers look like BL-261015-0042: outlet code, yymmdd date in
// the outlet's timezone, four-digit counter. Ranges come from one bounded
// increment on the shared counter invoice:<tenant>:<outlet>:<date>, so two
// leases for the same day can never overlap.
package invoice

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ahmlhn/Saas-Laundry-sub002/internal/domain"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/store"
)

const (
	// MaxDailyCounter is the highest counter a (outlet, date) can reach.
	MaxDailyCounter = 9999

	// MaxClaimCount is the largest range one day of a claim may ask for.
	MaxClaimCount = 2000

	// DefaultLeaseDays is how many days after its date a lease stays usable.
	DefaultLeaseDays = 2
)

var invoicePattern = regexp.MustCompile(`^([A-Z0-9]{2,8})-(\d{6})-(\d{4})$`)

// DayClaim asks for count numbers on one business date (YYYY-MM-DD).
type DayClaim struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// Leaser is what ClaimRanges writes through. Pass a transaction so a
// multi-day claim is all or nothing.
type Leaser interface {
	store.CounterStore
	InsertLease(ctx context.Context, l domain.InvoiceLease) error
}

// Assigner is what ValidateOrAssign reads and writes through. Always the
// order handler's transaction.
type Assigner interface {
	ListDeviceLeases(ctx context.Context, tenantID, outletID, deviceID, date string) ([]domain.InvoiceLease, error)
	AdvanceLease(ctx context.Context, tenantID, leaseID string, next int64) error
	InvoiceNoUsed(ctx context.Context, tenantID, outletID, invoiceNo string) (bool, error)
}

// Service claims leases and validates or assigns invoice numbers.
type Service struct {
	clock     domain.Clock
	ids       domain.IDGenerator
	leaseDays int
}

// New creates a Service. leaseDays <= 0 means DefaultLeaseDays.
func New(clock domain.Clock, ids domain.IDGenerator, leaseDays int) *Service {
	if leaseDays <= 0 {
		leaseDays = DefaultLeaseDays
	}
	return &Service{clock: clock, ids: ids, leaseDays: leaseDays}
}

// CounterKey is the counters-table key for an outlet's business date.
func CounterKey(tenantID, outletID, date string) string {
	return "invoice:" + tenantID + ":" + outletID + ":" + date
}

// Prefix builds "<CODE>-<yymmdd>-" for an outlet and business date.
func Prefix(outletCode string, date time.Time) string {
	return strings.ToUpper(outletCode) + "-" + date.Format("060102") + "-"
}

// Format renders a full invoice number.
func Format(prefix string, counter int64) string {
	return fmt.Sprintf("%s%04d", prefix, counter)
}

// Parsed is a decomposed invoice number.
type Parsed struct {
	OutletCode string
	Date       string // yymmdd
	Counter    int64
}

// Parse splits an invoice number. The second return is false when the
// number is malformed.
func Parse(invoiceNo string) (Parsed, bool) {
	m := invoicePattern.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(invoiceNo)))
	if m == nil {
		return Parsed{}, false
	}
	n, err := strconv.ParseInt(m[3], 10, 64)
	if err != nil {
		return Parsed{}, false
	}
	return Parsed{OutletCode: m[1], Date: m[2], Counter: n}, true
}

// ClaimRanges reserves one contiguous range per requested day for a device.
// Validation failures and counter overflow come back as a rejection; the
// error return is for infrastructure faults.
func (s *Service) ClaimRanges(ctx context.Context, q Leaser, deviceID string, outlet *domain.Outlet, days []DayClaim) ([]domain.InvoiceLease, *domain.Reject, error) {
	if len(days) == 0 {
		return nil, &domain.Reject{Code: domain.ReasonValidationFailed, Message: "days must not be empty."}, nil
	}
	loc, err := Location(outlet)
	if err != nil {
		return nil, nil, err
	}

	now := domain.FormatTime(s.clock.Now())
	leases := make([]domain.InvoiceLease, 0, len(days))
	for i, day := range days {
		date, err := time.ParseInLocation(time.DateOnly, day.Date, loc)
		if err != nil {
			return nil, &domain.Reject{
				Code:    domain.ReasonValidationFailed,
				Message: fmt.Sprintf("days.%d.date must be a YYYY-MM-DD date.", i),
			}, nil
		}
		if day.Count < 1 || day.Count > MaxClaimCount {
			return nil, &domain.Reject{
				Code:    domain.ReasonValidationFailed,
				Message: fmt.Sprintf("days.%d.count must be between 1 and %d.", i, MaxClaimCount),
			}, nil
		}

		key := CounterKey(outlet.TenantID, outlet.ID, day.Date)
		to, err := q.IncrementBounded(ctx, key, day.Count, MaxDailyCounter)
		if ce, ok := store.IsCeilingError(err); ok {
			return nil, &domain.Reject{
				Code: domain.ReasonInvoiceCounterOverflow,
				Message: fmt.Sprintf("Invoice counter would exceed %d for this outlet and date (%s: %d used, %d requested).",
					MaxDailyCounter, day.Date, ce.Current, day.Count),
			}, nil
		}
		if err != nil {
			return nil, nil, fmt.Errorf("claim ranges: %w", err)
		}

		lease := domain.InvoiceLease{
			LeaseID:     s.ids.NewID(),
			TenantID:    outlet.TenantID,
			OutletID:    outlet.ID,
			DeviceID:    deviceID,
			Date:        day.Date,
			Prefix:      Prefix(outlet.Code, date),
			FromCounter: to - day.Count + 1,
			ToCounter:   to,
			NextCounter: to - day.Count + 1,
			ExpiresAt:   domain.FormatTime(s.expiresAt(date)),
			CreatedAt:   now,
		}
		if err := q.InsertLease(ctx, lease); err != nil {
			return nil, nil, fmt.Errorf("claim ranges: %w", err)
		}
		leases = append(leases, lease)
	}
	return leases, nil, nil
}

// expiresAt is the last instant of date + leaseDays in date's location.
func (s *Service) expiresAt(date time.Time) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d+s.leaseDays+1, 0, 0, 0, 0, date.Location()).Add(-time.Nanosecond)
}

// Assignment is the outcome of ValidateOrAssign. InvoiceNo is what the
// order carries; Assigned is set only when the server picked the number.
type Assignment struct {
	InvoiceNo *string
	Assigned  *string
}

// ValidateOrAssign checks a client-supplied invoice number or, without one,
// takes the next free number from the device's leases for the order date.
// A device without a usable lease gets no number.
func (s *Service) ValidateOrAssign(ctx context.Context, q Assigner, deviceID string, outlet *domain.Outlet, orderTime time.Time, clientInvoiceNo string) (Assignment, *domain.Reject, error) {
	loc, err := Location(outlet)
	if err != nil {
		return Assignment{}, nil, err
	}
	local := orderTime.In(loc)
	date := local.Format(time.DateOnly)

	leases, err := q.ListDeviceLeases(ctx, outlet.TenantID, outlet.ID, deviceID, date)
	if err != nil {
		return Assignment{}, nil, fmt.Errorf("validate or assign invoice: %w", err)
	}
	live := s.unexpired(leases)

	if clientInvoiceNo != "" {
		rej, err := s.validate(ctx, q, outlet, local, live, clientInvoiceNo)
		if err != nil || rej != nil {
			return Assignment{}, rej, err
		}
		no := strings.ToUpper(strings.TrimSpace(clientInvoiceNo))
		return Assignment{InvoiceNo: &no}, nil, nil
	}

	for _, lease := range live {
		if lease.NextCounter > lease.ToCounter {
			continue
		}
		for counter := max(lease.NextCounter, lease.FromCounter); counter <= lease.ToCounter; counter++ {
			candidate := Format(lease.Prefix, counter)
			used, err := q.InvoiceNoUsed(ctx, outlet.TenantID, outlet.ID, candidate)
			if err != nil {
				return Assignment{}, nil, fmt.Errorf("validate or assign invoice: %w", err)
			}
			if used {
				continue
			}
			if err := q.AdvanceLease(ctx, outlet.TenantID, lease.LeaseID, counter+1); err != nil {
				return Assignment{}, nil, fmt.Errorf("validate or assign invoice: %w", err)
			}
			return Assignment{InvoiceNo: &candidate, Assigned: &candidate}, nil, nil
		}
		if err := q.AdvanceLease(ctx, outlet.TenantID, lease.LeaseID, lease.ToCounter+1); err != nil {
			return Assignment{}, nil, fmt.Errorf("validate or assign invoice: %w", err)
		}
	}
	return Assignment{}, nil, nil
}

func (s *Service) validate(ctx context.Context, q Assigner, outlet *domain.Outlet, local time.Time, live []domain.InvoiceLease, invoiceNo string) (*domain.Reject, error) {
	invalid := func(msg string) *domain.Reject {
		return &domain.Reject{Code: domain.ReasonInvoiceRangeInvalid, Message: msg}
	}

	parsed, ok := Parse(invoiceNo)
	if !ok {
		return invalid("Invalid invoice format."), nil
	}
	if parsed.OutletCode != strings.ToUpper(outlet.Code) {
		return invalid("Invoice outlet code does not match outlet."), nil
	}
	if parsed.Date != local.Format("060102") {
		return invalid("Invoice date does not match order date."), nil
	}

	inLease := false
	for _, l := range live {
		if parsed.Counter >= l.FromCounter && parsed.Counter <= l.ToCounter {
			inLease = true
			break
		}
	}
	if !inLease {
		return invalid("Invoice number is outside the claimed lease range."), nil
	}

	used, err := q.InvoiceNoUsed(ctx, outlet.TenantID, outlet.ID, Format(Prefix(outlet.Code, local), parsed.Counter))
	if err != nil {
		return nil, fmt.Errorf("validate invoice: %w", err)
	}
	if used {
		return invalid("Invoice number has been used."), nil
	}
	return nil, nil
}

// unexpired drops leases whose expiry has passed. Numbers from an expired
// lease are never handed out again.
func (s *Service) unexpired(leases []domain.InvoiceLease) []domain.InvoiceLease {
	now := s.clock.Now()
	live := leases[:0:0]
	for _, l := range leases {
		exp, err := domain.ParseTime(l.ExpiresAt)
		if err != nil || now.After(exp) {
			continue
		}
		live = append(live, l)
	}
	return live
}

// Location returns the outlet's business timezone, UTC when unset.
func Location(outlet *domain.Outlet) (*time.Location, error) {
	if outlet.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(outlet.Timezone)
	if err != nil {
		return nil, fmt.Errorf("outlet %s timezone: %w", outlet.ID, err)
	}
	return loc, nil
}
