package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ahmlhn/Saas-Laundry-sub002/internal/domain"
)

// ErrNotFound is returned by single-row lookups when no row matches.
var ErrNotFound = sql.ErrNoRows

// ErrDeviceTenantMismatch is returned when a device id already belongs to
// a different tenant.
var ErrDeviceTenantMismatch = errors.New("device is bound to another tenant")

// UpsertDevice registers the device under tenantID or refreshes its
// last_seen_at. A device is bound to the first tenant it registers with.
func (c conn) UpsertDevice(ctx context.Context, tenantID, deviceID, userID, seenAt string) error {
	var owner string
	err := c.queryRow(ctx, `SELECT tenant_id FROM devices WHERE id = ?`, deviceID).Scan(&owner)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("upsert device: %w", err)
	case owner != tenantID:
		return ErrDeviceTenantMismatch
	}

	_, err = c.exec(ctx, `
		INSERT INTO devices (id, tenant_id, user_id, last_seen_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET user_id = excluded.user_id, last_seen_at = excluded.last_seen_at
	`, deviceID, tenantID, userID, seenAt)
	if err != nil {
		return fmt.Errorf("upsert device: %w", err)
	}
	return nil
}

// GetDevice retrieves a device.
// Returns ErrNotFound if the device is not registered under tenantID.
func (c conn) GetDevice(ctx context.Context, tenantID, deviceID string) (*domain.Device, error) {
	var d domain.Device
	err := c.queryRow(ctx, `
		SELECT id, tenant_id, user_id, last_seen_at FROM devices
		WHERE tenant_id = ? AND id = ?
	`, tenantID, deviceID).Scan(&d.ID, &d.TenantID, &d.UserID, &d.LastSeenAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
