package store

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ahmlhn/Saas-Laundry-sub002/internal/domain"
)

// marshalJSON converts v to JSON TEXT for storage.
// HTML escaping is disabled so stored snapshots match what clients sent.
func marshalJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("marshal json: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// canonicalJSON stores a raw payload in canonical form so two replays of
// the same body are byte-identical in the journal.
func canonicalJSON(raw json.RawMessage) (string, error) {
	data, err := domain.CanonicalizeJSON(raw)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalEntityRefs(data string) ([]domain.EntityRef, error) {
	refs := []domain.EntityRef{}
	if data == "" || data == "null" {
		return refs, nil
	}
	if err := json.Unmarshal([]byte(data), &refs); err != nil {
		return nil, fmt.Errorf("unmarshal entity refs: %w", err)
	}
	return refs, nil
}

// unmarshalEffects decodes effects with json.Number so large ids and
// amounts round-trip without float precision loss.
func unmarshalEffects(data string) (map[string]any, error) {
	effects := map[string]any{}
	if data == "" || data == "null" {
		return effects, nil
	}
	dec := json.NewDecoder(strings.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&effects); err != nil {
		return nil, fmt.Errorf("unmarshal effects: %w", err)
	}
	return effects, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func nullInt64Ptr(n *int64) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *n, Valid: true}
}

func float64Ptr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func nullFloat64Ptr(n *float64) sql.NullFloat64 {
	if n == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *n, Valid: true}
}

// rawOrNull turns an empty RawMessage into SQL NULL.
func rawOrNull(raw json.RawMessage) sql.NullString {
	if len(bytes.TrimSpace(raw)) == 0 || string(raw) == "null" {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

func rawFromNull(ns sql.NullString) json.RawMessage {
	if !ns.Valid {
		return nil
	}
	return json.RawMessage(ns.String)
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
