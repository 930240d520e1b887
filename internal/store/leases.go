package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/ahmlhn/Saas-Laundry-sub002/internal/domain"
)

// InsertLease stores a freshly claimed invoice range.
func (c conn) InsertLease(ctx context.Context, l domain.InvoiceLease) error {
	_, err := c.exec(ctx, `
		INSERT INTO invoice_leases
		(lease_id, tenant_id, outlet_id, device_id, date, prefix, from_counter, to_counter, next_counter, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, l.LeaseID, l.TenantID, l.OutletID, l.DeviceID, l.Date, l.Prefix,
		l.FromCounter, l.ToCounter, l.NextCounter, l.ExpiresAt, l.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert lease: %w", err)
	}
	return nil
}

// ListDeviceLeases returns the leases a device holds for one outlet and
// business date, oldest range first. Expiry is left to the caller.
func (c conn) ListDeviceLeases(ctx context.Context, tenantID, outletID, deviceID, date string) ([]domain.InvoiceLease, error) {
	rows, err := c.query(ctx, `
		SELECT lease_id, tenant_id, outlet_id, device_id, date, prefix,
		       from_counter, to_counter, next_counter, expires_at, created_at
		FROM invoice_leases
		WHERE tenant_id = ? AND outlet_id = ? AND device_id = ? AND date = ?
		ORDER BY from_counter ASC
	`, tenantID, outletID, deviceID, date)
	if err != nil {
		return nil, fmt.Errorf("list device leases: %w", err)
	}
	defer rows.Close()

	leases := []domain.InvoiceLease{}
	for rows.Next() {
		var l domain.InvoiceLease
		if err := rows.Scan(&l.LeaseID, &l.TenantID, &l.OutletID, &l.DeviceID, &l.Date, &l.Prefix,
			&l.FromCounter, &l.ToCounter, &l.NextCounter, &l.ExpiresAt, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("list device leases: scan: %w", err)
		}
		leases = append(leases, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list device leases: %w", err)
	}
	return leases, nil
}

// AdvanceLease moves a lease's next_counter forward. It never moves it
// backwards.
func (c conn) AdvanceLease(ctx context.Context, tenantID, leaseID string, next int64) error {
	_, err := c.exec(ctx, `
		UPDATE invoice_leases SET next_counter = ?
		WHERE tenant_id = ? AND lease_id = ? AND next_counter < ?
	`, next, tenantID, leaseID, next)
	if err != nil {
		return fmt.Errorf("advance lease: %w", err)
	}
	return nil
}

// InvoiceNoUsed reports whether an order of the outlet already carries
// invoiceNo.
func (c conn) InvoiceNoUsed(ctx context.Context, tenantID, outletID, invoiceNo string) (bool, error) {
	var one int
	err := c.queryRow(ctx, `
		SELECT 1 FROM orders WHERE tenant_id = ? AND outlet_id = ? AND invoice_no = ?
	`, tenantID, outletID, invoiceNo).Scan(&one)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("invoice no used: %w", err)
	}
	return true, nil
}
