package store

import (
	"context"
	"errors"
	"fmt"
)

// UserRoles returns the roles a user holds within tenantID, sorted. A user
// of another tenant has no roles here.
func (c conn) UserRoles(ctx context.Context, tenantID, userID string) ([]string, error) {
	rows, err := c.query(ctx, `
		SELECT r.role FROM user_roles r
		JOIN users u ON u.id = r.user_id
		WHERE u.tenant_id = ? AND u.id = ?
		ORDER BY r.role ASC
	`, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("user roles: %w", err)
	}
	defer rows.Close()

	roles := []string{}
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, fmt.Errorf("user roles: scan: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// UserOutletIDs returns the outlets a user is assigned to within tenantID.
func (c conn) UserOutletIDs(ctx context.Context, tenantID, userID string) ([]string, error) {
	rows, err := c.query(ctx, `
		SELECT uo.outlet_id FROM user_outlets uo
		JOIN outlets o ON o.id = uo.outlet_id
		WHERE o.tenant_id = ? AND uo.user_id = ?
		ORDER BY uo.outlet_id ASC
	`, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("user outlets: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("user outlets: scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UserInTenant reports whether userID is a user of tenantID.
func (c conn) UserInTenant(ctx context.Context, tenantID, userID string) (bool, error) {
	var one int
	err := c.queryRow(ctx, `SELECT 1 FROM users WHERE tenant_id = ? AND id = ?`, tenantID, userID).Scan(&one)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("user in tenant: %w", err)
	}
	return true, nil
}
