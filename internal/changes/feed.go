package changes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ahmlhn/Saas-Laundry-sub002/internal/access"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/domain"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/quota"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/store"
)

const (
	DefaultLimit = 200
	MaxLimit     = 500
)

// Scope modes.
const (
	ScopeSelectedOutlet = "selected_outlet"
	ScopeAllOutlets     = "all_outlets"
)

// Scope picks which outlets a pull covers.
type Scope struct {
	Mode     string `json:"mode"`
	OutletID string `json:"outlet_id,omitempty"`
}

// PullRequest is a device asking for everything after Cursor.
type PullRequest struct {
	DeviceID string `json:"device_id"`
	Cursor   int64  `json:"cursor"`
	Scope    Scope  `json:"scope"`
	Limit    int    `json:"limit,omitempty"`
}

// Change is one change record as sent to devices.
type Change struct {
	ChangeID   string          `json:"change_id"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Op         domain.ChangeOp `json:"op"`
	UpdatedAt  string          `json:"updated_at"`
	Data       json.RawMessage `json:"data"`
}

// PullResponse is one page of the feed.
type PullResponse struct {
	ServerTime string               `json:"server_time"`
	NextCursor int64                `json:"next_cursor"`
	HasMore    bool                 `json:"has_more"`
	Changes    []Change             `json:"changes"`
	Quota      domain.QuotaSnapshot `json:"quota"`
}

// Feed serves the change log by cursor.
type Feed struct {
	store  *store.Store
	access access.Resolver
	quota  *quota.Service
	clock  domain.Clock
}

// NewFeed creates a Feed.
func NewFeed(s *store.Store, resolver access.Resolver, q *quota.Service, clock domain.Clock) *Feed {
	return &Feed{store: s, access: resolver, quota: q, clock: clock}
}

// Pull returns changes with cursor > req.Cursor in ascending order, at most
// req.Limit of them. NextCursor is the last cursor returned, or req.Cursor
// when nothing new exists, so a device can always resume from it.
//
// Scope selected_outlet needs access to that outlet; all_outlets needs the
// owner role. Rows without an outlet are part of every scope.
func (f *Feed) Pull(ctx context.Context, actor domain.Actor, req PullRequest) (*PullResponse, *domain.Reject, error) {
	if req.DeviceID == "" {
		return nil, &domain.Reject{Code: domain.ReasonValidationFailed, Message: "device_id is required."}, nil
	}
	if req.Cursor < 0 {
		return nil, &domain.Reject{Code: domain.ReasonValidationFailed, Message: "cursor must not be negative."}, nil
	}
	limit := req.Limit
	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}

	grant, err := f.access.Resolve(ctx, actor)
	if err != nil {
		return nil, nil, fmt.Errorf("pull: %w", err)
	}

	err = f.store.UpsertDevice(ctx, actor.TenantID, req.DeviceID, actor.UserID, domain.FormatTime(f.clock.Now()))
	if errors.Is(err, store.ErrDeviceTenantMismatch) {
		return nil, &domain.Reject{Code: domain.ReasonOutletAccessDenied, Message: "Device is bound to another tenant."}, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("pull: %w", err)
	}

	filter := store.ChangeFilter{TenantID: actor.TenantID, After: req.Cursor, Limit: limit + 1}
	switch req.Scope.Mode {
	case ScopeSelectedOutlet:
		if req.Scope.OutletID == "" {
			return nil, &domain.Reject{Code: domain.ReasonValidationFailed, Message: "scope.outlet_id is required for selected_outlet."}, nil
		}
		outlet, rej, err := access.CheckOutlet(ctx, f.store, grant, req.Scope.OutletID)
		if err != nil || rej != nil {
			return nil, rej, err
		}
		filter.OutletIDs = []string{outlet.ID}
	case ScopeAllOutlets:
		if rej := grant.RequireRole(domain.RoleOwner); rej != nil {
			return nil, rej, nil
		}
	default:
		return nil, &domain.Reject{Code: domain.ReasonValidationFailed, Message: "scope.mode must be selected_outlet or all_outlets."}, nil
	}

	rows, err := f.store.ListChanges(ctx, filter)
	if err != nil {
		return nil, nil, fmt.Errorf("pull: %w", err)
	}

	resp := &PullResponse{
		ServerTime: domain.FormatTime(f.clock.Now()),
		NextCursor: req.Cursor,
		HasMore:    len(rows) > limit,
		Changes:    make([]Change, 0, min(len(rows), limit)),
	}
	if resp.HasMore {
		rows = rows[:limit]
	}
	for _, r := range rows {
		resp.Changes = append(resp.Changes, Change{
			ChangeID:   r.ChangeID,
			EntityType: r.EntityType,
			EntityID:   r.EntityID,
			Op:         r.Op,
			UpdatedAt:  r.UpdatedAt,
			Data:       r.Data,
		})
		resp.NextCursor = r.Cursor
	}

	resp.Quota, err = f.quota.Snapshot(ctx, f.store, actor.TenantID, "")
	if err != nil {
		return nil, nil, fmt.Errorf("pull: %w", err)
	}

	slog.Debug("pull served",
		"tenant", actor.TenantID,
		"device", req.DeviceID,
		"scope", req.Scope.Mode,
		"from", req.Cursor,
		"next", resp.NextCursor,
		"changes", len(resp.Changes),
		"has_more", resp.HasMore,
	)
	return resp, nil, nil
}
