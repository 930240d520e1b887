package intake

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ahmlhn/Saas-Laundry-sub002/internal/access"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/audit"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/domain"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/invoice"
)

// ClaimRequest asks for invoice ranges on one outlet.
type ClaimRequest struct {
	DeviceID string             `json:"device_id"`
	OutletID string             `json:"outlet_id"`
	Days     []invoice.DayClaim `json:"days"`
}

// ClaimRange is one granted lease as sent to the device.
type ClaimRange struct {
	LeaseID   string `json:"lease_id"`
	OutletID  string `json:"outlet_id"`
	Date      string `json:"date"`
	Prefix    string `json:"prefix"`
	From      int64  `json:"from"`
	To        int64  `json:"to"`
	ExpiresAt string `json:"expires_at"`
}

// ClaimResponse lists the granted ranges in request order.
type ClaimResponse struct {
	ServerTime string       `json:"server_time"`
	Ranges     []ClaimRange `json:"ranges"`
}

// Claim reserves invoice ranges for a device. All days are granted in one
// transaction, or none are.
func (s *Service) Claim(ctx context.Context, actor domain.Actor, req ClaimRequest) (*ClaimResponse, *domain.Reject, error) {
	actor.Channel = sourceChannel(actor.Channel)

	grant, err := s.access.Resolve(ctx, actor)
	if err != nil {
		return nil, nil, fmt.Errorf("claim: %w", err)
	}
	if rej := grant.RequireRole(domain.RoleOwner, domain.RoleAdmin, domain.RoleCashier); rej != nil {
		return nil, rej, nil
	}
	switch {
	case strings.TrimSpace(req.DeviceID) == "":
		return nil, &domain.Reject{Code: domain.ReasonValidationFailed, Message: "device_id is required."}, nil
	case strings.TrimSpace(req.OutletID) == "":
		return nil, &domain.Reject{Code: domain.ReasonValidationFailed, Message: "outlet_id is required."}, nil
	}

	if rej, err := s.touchDevice(ctx, actor, req.DeviceID); err != nil || rej != nil {
		return nil, rej, err
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("claim: %w", err)
	}
	defer tx.Rollback() // no-op after commit

	outlet, rej, err := access.CheckOutlet(ctx, tx, grant, req.OutletID)
	if err != nil || rej != nil {
		return nil, rej, err
	}
	leases, rej, err := s.invoices.ClaimRanges(ctx, tx, req.DeviceID, outlet, req.Days)
	if err != nil || rej != nil {
		return nil, rej, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("claim: %w", err)
	}

	resp := &ClaimResponse{
		ServerTime: domain.FormatTime(s.clock.Now()),
		Ranges:     make([]ClaimRange, 0, len(leases)),
	}
	var claimed int64
	for _, l := range leases {
		resp.Ranges = append(resp.Ranges, ClaimRange{
			LeaseID:   l.LeaseID,
			OutletID:  l.OutletID,
			Date:      l.Date,
			Prefix:    l.Prefix,
			From:      l.FromCounter,
			To:        l.ToCounter,
			ExpiresAt: l.ExpiresAt,
		})
		claimed += l.ToCounter - l.FromCounter + 1
	}
	s.metrics.RecordInvoiceClaimed(claimed)

	if err := s.audit.Append(ctx, audit.Event{
		Key:      audit.EventInvoiceClaimed,
		TenantID: actor.TenantID,
		UserID:   actor.UserID,
		OutletID: outlet.ID,
		Channel:  actor.Channel,
		Metadata: map[string]any{"device_id": req.DeviceID, "days": len(req.Days), "numbers": claimed},
	}); err != nil {
		slog.Warn("audit append failed", "tenant", actor.TenantID, "error", err)
		s.metrics.RecordSideEffectFailure("audit")
	}

	slog.Debug("invoice ranges claimed",
		"tenant", actor.TenantID,
		"outlet", outlet.ID,
		"device", req.DeviceID,
		"ranges", len(resp.Ranges),
	)
	return resp, nil, nil
}

// Quota reports the actor tenant's quota for period ("" for the current one).
func (s *Service) Quota(ctx context.Context, actor domain.Actor, period string) (domain.QuotaSnapshot, error) {
	if _, err := s.access.Resolve(ctx, actor); err != nil {
		return domain.QuotaSnapshot{}, fmt.Errorf("quota: %w", err)
	}
	return s.quota.Snapshot(ctx, s.store, actor.TenantID, period)
}
