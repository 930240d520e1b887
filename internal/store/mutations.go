package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ahmlhn/Saas-Laundry-sub002/internal/domain"
)

// ErrMutationExists is returned by InsertMutation when the journal already
// holds (tenant, mutation_id). The caller must roll back and re-read the
// stored outcome.
var ErrMutationExists = errors.New("mutation already recorded")

// InsertMutation appends a journal row. Journal rows are write-once:
// ON CONFLICT DO NOTHING keeps the first outcome and the caller learns of
// the conflict through ErrMutationExists.
func (c conn) InsertMutation(ctx context.Context, rec domain.MutationRecord) error {
	payload, err := canonicalJSON(rec.Payload)
	if err != nil {
		return fmt.Errorf("insert mutation: %w", err)
	}
	refs := rec.EntityRefs
	if refs == nil {
		refs = []domain.EntityRef{}
	}
	refsJSON, err := marshalJSON(refs)
	if err != nil {
		return fmt.Errorf("insert mutation: %w", err)
	}
	effects := rec.Effects
	if effects == nil {
		effects = map[string]any{}
	}
	effectsJSON, err := marshalJSON(effects)
	if err != nil {
		return fmt.Errorf("insert mutation: %w", err)
	}

	res, err := c.exec(ctx, `
		INSERT INTO sync_mutations
		(tenant_id, mutation_id, device_id, seq, type, outlet_id, entity_type, entity_id,
		 payload, payload_hash, client_time, status, reason_code, message, server_cursor,
		 entity_refs, effects, source_channel, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, mutation_id) DO NOTHING
	`,
		rec.TenantID,
		rec.MutationID,
		rec.DeviceID,
		nullInt64Ptr(rec.Seq),
		rec.Type,
		nullString(rec.OutletID),
		nullString(rec.EntityType),
		nullString(rec.EntityID),
		payload,
		rec.PayloadHash,
		nullString(rec.ClientTime),
		string(rec.Status),
		nullString(string(rec.ReasonCode)),
		nullString(rec.Message),
		nullInt64Ptr(rec.ServerCursor),
		refsJSON,
		effectsJSON,
		rec.SourceChannel,
		rec.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("insert mutation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert mutation: rows affected: %w", err)
	}
	if n == 0 {
		return ErrMutationExists
	}
	return nil
}

// GetMutation retrieves a journal row.
// Returns ErrNotFound if the mutation was never recorded for tenantID.
func (c conn) GetMutation(ctx context.Context, tenantID, mutationID string) (*domain.MutationRecord, error) {
	row := c.queryRow(ctx, `
		SELECT tenant_id, mutation_id, device_id, seq, type, outlet_id, entity_type, entity_id,
		       payload, payload_hash, client_time, status, reason_code, message, server_cursor,
		       entity_refs, effects, source_channel, processed_at
		FROM sync_mutations
		WHERE tenant_id = ? AND mutation_id = ?
	`, tenantID, mutationID)
	return scanMutation(row)
}

// ListMutations returns a tenant's journal ordered by processing time then
// mutation id. Used by the CLI and scenario traces.
func (c conn) ListMutations(ctx context.Context, tenantID string) ([]domain.MutationRecord, error) {
	rows, err := c.query(ctx, `
		SELECT tenant_id, mutation_id, device_id, seq, type, outlet_id, entity_type, entity_id,
		       payload, payload_hash, client_time, status, reason_code, message, server_cursor,
		       entity_refs, effects, source_channel, processed_at
		FROM sync_mutations
		WHERE tenant_id = ?
		ORDER BY processed_at ASC, mutation_id ASC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list mutations: %w", err)
	}
	defer rows.Close()

	records := []domain.MutationRecord{}
	for rows.Next() {
		rec, err := scanMutation(rows)
		if err != nil {
			return nil, fmt.Errorf("list mutations: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list mutations: %w", err)
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMutation(row rowScanner) (*domain.MutationRecord, error) {
	var (
		rec                                      domain.MutationRecord
		seq, cursor                              sql.NullInt64
		outlet, entityType, entityID, clientTime sql.NullString
		reason, message                          sql.NullString
		payload, refsJSON, effectsJSON, status   string
	)
	err := row.Scan(
		&rec.TenantID, &rec.MutationID, &rec.DeviceID, &seq, &rec.Type,
		&outlet, &entityType, &entityID,
		&payload, &rec.PayloadHash, &clientTime, &status, &reason, &message, &cursor,
		&refsJSON, &effectsJSON, &rec.SourceChannel, &rec.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Seq = int64Ptr(seq)
	rec.ServerCursor = int64Ptr(cursor)
	rec.OutletID = outlet.String
	rec.EntityType = entityType.String
	rec.EntityID = entityID.String
	rec.ClientTime = clientTime.String
	rec.Status = domain.MutationStatus(status)
	rec.ReasonCode = domain.ReasonCode(reason.String)
	rec.Message = message.String
	rec.Payload = []byte(payload)

	if rec.EntityRefs, err = unmarshalEntityRefs(refsJSON); err != nil {
		return nil, err
	}
	if rec.Effects, err = unmarshalEffects(effectsJSON); err != nil {
		return nil, err
	}
	return &rec, nil
}
