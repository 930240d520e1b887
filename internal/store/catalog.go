package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ahmlhn/Saas-Laundry-sub002/internal/domain"
)

// GetTenant retrieves a tenant's plan data.
// Returns ErrNotFound for an unknown tenant.
func (c conn) GetTenant(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	var (
		t     domain.Tenant
		limit sql.NullInt64
	)
	err := c.queryRow(ctx, `
		SELECT id, name, plan_key, orders_limit, write_access_mode FROM tenants WHERE id = ?
	`, tenantID).Scan(&t.ID, &t.Name, &t.PlanKey, &limit, &t.WriteAccessMode)
	if err != nil {
		return nil, err
	}
	t.OrdersLimit = int64Ptr(limit)
	return &t, nil
}

// GetOutlet retrieves an outlet of the tenant.
// Returns ErrNotFound when the outlet does not exist or belongs elsewhere.
func (c conn) GetOutlet(ctx context.Context, tenantID, outletID string) (*domain.Outlet, error) {
	var o domain.Outlet
	err := c.queryRow(ctx, `
		SELECT id, tenant_id, code, name, timezone FROM outlets WHERE tenant_id = ? AND id = ?
	`, tenantID, outletID).Scan(&o.ID, &o.TenantID, &o.Code, &o.Name, &o.Timezone)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// ListOutlets returns all outlets of a tenant ordered by id.
func (c conn) ListOutlets(ctx context.Context, tenantID string) ([]domain.Outlet, error) {
	rows, err := c.query(ctx, `
		SELECT id, tenant_id, code, name, timezone FROM outlets WHERE tenant_id = ? ORDER BY id ASC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list outlets: %w", err)
	}
	defer rows.Close()

	outlets := []domain.Outlet{}
	for rows.Next() {
		var o domain.Outlet
		if err := rows.Scan(&o.ID, &o.TenantID, &o.Code, &o.Name, &o.Timezone); err != nil {
			return nil, fmt.Errorf("list outlets: scan: %w", err)
		}
		outlets = append(outlets, o)
	}
	return outlets, rows.Err()
}

// PricedService is a service as sold at one outlet.
type PricedService struct {
	domain.Service
	UnitPrice int64
}

// GetPricedService resolves the price of a service at an outlet. An active
// outlet override wins over the base price. Returns ErrNotFound when the
// service is unknown to the tenant or inactive.
func (c conn) GetPricedService(ctx context.Context, tenantID, outletID, serviceID string) (*PricedService, error) {
	var ps PricedService
	err := c.queryRow(ctx, `
		SELECT id, tenant_id, name, unit_type, base_price_amount, active
		FROM services WHERE tenant_id = ? AND id = ?
	`, tenantID, serviceID).Scan(&ps.ID, &ps.TenantID, &ps.Name, &ps.UnitType, &ps.BasePriceAmount, &ps.Active)
	if err != nil {
		return nil, err
	}
	if !ps.Active {
		return nil, ErrNotFound
	}
	ps.UnitPrice = ps.BasePriceAmount

	var (
		override sql.NullInt64
		active   bool
	)
	err = c.queryRow(ctx, `
		SELECT price_override_amount, active FROM outlet_services WHERE outlet_id = ? AND service_id = ?
	`, outletID, serviceID).Scan(&override, &active)
	switch {
	case errors.Is(err, ErrNotFound):
		return &ps, nil
	case err != nil:
		return nil, fmt.Errorf("get outlet service: %w", err)
	}
	if active && override.Valid {
		ps.UnitPrice = override.Int64
	}
	return &ps, nil
}
