package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ahmlhn/Saas-Laundry-sub002/internal/domain"
)

// InsertChange appends one change record. The cursor must already have
// been taken from the tenant's cursor counter in the same transaction.
func (c conn) InsertChange(ctx context.Context, rec domain.ChangeRecord) error {
	_, err := c.exec(ctx, `
		INSERT INTO sync_changes
		(tenant_id, cursor, change_id, outlet_id, entity_type, entity_id, op, data, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.TenantID,
		rec.Cursor,
		rec.ChangeID,
		nullStringPtr(rec.OutletID),
		rec.EntityType,
		rec.EntityID,
		string(rec.Op),
		string(rec.Data),
		rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert change: %w", err)
	}
	return nil
}

// ChangeFilter selects change records for a feed read.
//
// OutletIDs nil means every outlet of the tenant. A non-nil list restricts
// rows to those outlets; rows with no outlet (tenant-wide entities such as
// customers) are always included.
type ChangeFilter struct {
	TenantID  string
	After     int64
	OutletIDs []string
	Limit     int
}

// ListChanges returns change records with cursor > After in ascending
// cursor order.
func (c conn) ListChanges(ctx context.Context, f ChangeFilter) ([]domain.ChangeRecord, error) {
	query := `
		SELECT tenant_id, cursor, change_id, outlet_id, entity_type, entity_id, op, data, updated_at
		FROM sync_changes
		WHERE tenant_id = ? AND cursor > ?`
	args := []any{f.TenantID, f.After}

	if f.OutletIDs != nil {
		if len(f.OutletIDs) == 0 {
			query += ` AND outlet_id IS NULL`
		} else {
			query += ` AND (outlet_id IS NULL OR outlet_id IN (` + placeholders(len(f.OutletIDs)) + `))`
			for _, id := range f.OutletIDs {
				args = append(args, id)
			}
		}
	}
	query += ` ORDER BY cursor ASC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := c.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list changes: %w", err)
	}
	defer rows.Close()

	changes := []domain.ChangeRecord{}
	for rows.Next() {
		var (
			rec    domain.ChangeRecord
			outlet sql.NullString
			op     string
			data   string
		)
		if err := rows.Scan(&rec.TenantID, &rec.Cursor, &rec.ChangeID, &outlet,
			&rec.EntityType, &rec.EntityID, &op, &data, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("list changes: scan: %w", err)
		}
		rec.OutletID = stringPtr(outlet)
		rec.Op = domain.ChangeOp(op)
		rec.Data = []byte(data)
		changes = append(changes, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list changes: %w", err)
	}
	return changes, nil
}
