// Package changes owns the per-tenant change log: the Recorder appends to
// it inside handler transactions and the Feed serves it to devices by
// cursor.
package changes

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ahmlhn/Saas-Laundry-sub002/internal/domain"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/store"
)

// Appender is the transaction a change is recorded in.
type Appender interface {
	store.CounterStore
	InsertChange(ctx context.Context, rec domain.ChangeRecord) error
}

// CursorKey is the counters-table key of a tenant's change cursor.
func CursorKey(tenantID string) string {
	return "cursor:" + tenantID
}

// Recorder appends full-snapshot change records.
type Recorder struct {
	clock domain.Clock
	ids   domain.IDGenerator
}

// NewRecorder creates a Recorder.
func NewRecorder(clock domain.Clock, ids domain.IDGenerator) *Recorder {
	return &Recorder{clock: clock, ids: ids}
}

// Record appends one change and returns its cursor.
//
// The cursor is taken from the tenant's counter inside q, so it must be the
// caller's transaction: the counter row stays locked until commit, which
// makes cursors visible to readers in the order they were assigned. A nil
// outletID marks a tenant-wide entity that every device receives.
func (r *Recorder) Record(ctx context.Context, q Appender, tenantID string, outletID *string, entityType, entityID string, op domain.ChangeOp, snapshot any) (int64, error) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return 0, fmt.Errorf("record change %s/%s: %w", entityType, entityID, err)
	}

	cursor, err := q.IncrementAndGet(ctx, CursorKey(tenantID), 1)
	if err != nil {
		return 0, fmt.Errorf("record change %s/%s: %w", entityType, entityID, err)
	}

	rec := domain.ChangeRecord{
		TenantID:   tenantID,
		Cursor:     cursor,
		ChangeID:   r.ids.NewID(),
		OutletID:   outletID,
		EntityType: entityType,
		EntityID:   entityID,
		Op:         op,
		Data:       data,
		UpdatedAt:  domain.FormatTime(r.clock.Now()),
	}
	if err := q.InsertChange(ctx, rec); err != nil {
		return 0, fmt.Errorf("record change %s/%s: %w", entityType, entityID, err)
	}
	return cursor, nil
}
