package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ahmlhn/Saas-Laundry-sub002/internal/domain"
)

// FindCustomerByPhone looks a customer up by normalized phone.
// Returns ErrNotFound when the tenant has no such customer.
func (c conn) FindCustomerByPhone(ctx context.Context, tenantID, phone string) (*domain.Customer, error) {
	var (
		cu    domain.Customer
		notes sql.NullString
	)
	err := c.queryRow(ctx, `
		SELECT id, tenant_id, name, phone_normalized, notes, created_at, updated_at
		FROM customers WHERE tenant_id = ? AND phone_normalized = ?
	`, tenantID, phone).Scan(&cu.ID, &cu.TenantID, &cu.Name, &cu.PhoneNormalized, &notes, &cu.CreatedAt, &cu.UpdatedAt)
	if err != nil {
		return nil, err
	}
	cu.Notes = stringPtr(notes)
	return &cu, nil
}

// GetCustomer loads a customer by id.
// Returns ErrNotFound when the tenant has no such customer.
func (c conn) GetCustomer(ctx context.Context, tenantID, customerID string) (*domain.Customer, error) {
	var (
		cu    domain.Customer
		notes sql.NullString
	)
	err := c.queryRow(ctx, `
		SELECT id, tenant_id, name, phone_normalized, notes, created_at, updated_at
		FROM customers WHERE tenant_id = ? AND id = ?
	`, tenantID, customerID).Scan(&cu.ID, &cu.TenantID, &cu.Name, &cu.PhoneNormalized, &notes, &cu.CreatedAt, &cu.UpdatedAt)
	if err != nil {
		return nil, err
	}
	cu.Notes = stringPtr(notes)
	return &cu, nil
}

// UpsertCustomer inserts cu or, when the tenant already has a customer with
// the same phone, refreshes its name and notes. Returns the
// stored row; cu.ID is used only for inserts.
func (c conn) UpsertCustomer(ctx context.Context, cu domain.Customer) (*domain.Customer, error) {
	_, err := c.exec(ctx, `
		INSERT INTO customers (id, tenant_id, name, phone_normalized, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, phone_normalized) DO UPDATE SET
			name = excluded.name,
			notes = excluded.notes,
			updated_at = excluded.updated_at
	`, cu.ID, cu.TenantID, cu.Name, cu.PhoneNormalized, nullStringPtr(cu.Notes), cu.CreatedAt, cu.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert customer: %w", err)
	}
	stored, err := c.FindCustomerByPhone(ctx, cu.TenantID, cu.PhoneNormalized)
	if err != nil {
		return nil, fmt.Errorf("upsert customer: reload: %w", err)
	}
	return stored, nil
}
