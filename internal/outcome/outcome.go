// Package outcome caches journaled mutation outcomes so replays of a
// batch skip the journal query. Outcomes are write-once, so entries never
// need invalidation; the database remains the source of truth and a cache
// miss or failure falls through to it.
package outcome

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ahmlhn/Saas-Laundry-sub002/internal/domain"
)

// ErrMiss is returned by Get when the outcome is not cached.
var ErrMiss = errors.New("outcome: cache miss")

// Cache stores journaled outcomes by (tenant, mutation id).
type Cache interface {
	Get(ctx context.Context, tenantID, mutationID string) (*domain.MutationRecord, error)
	Put(ctx context.Context, rec domain.MutationRecord) error
	Close() error
}

// Key builds the cache key of one outcome.
func Key(tenantID, mutationID string) string {
	return fmt.Sprintf("outcome:%s:%s", tenantID, mutationID)
}

// None never caches.
type None struct{}

func (None) Get(context.Context, string, string) (*domain.MutationRecord, error) {
	return nil, ErrMiss
}

func (None) Put(context.Context, domain.MutationRecord) error { return nil }

func (None) Close() error { return nil }

// Memory is a bounded in-process cache. When full, the oldest inserted
// entry is evicted.
//
// Thread-safety: safe for concurrent use.
type Memory struct {
	mu      sync.Mutex
	max     int
	entries map[string]domain.MutationRecord
	order   []string
}

// NewMemory creates a cache holding at most size entries (default 10000).
func NewMemory(size int) *Memory {
	if size <= 0 {
		size = 10000
	}
	return &Memory{max: size, entries: make(map[string]domain.MutationRecord)}
}

func (m *Memory) Get(_ context.Context, tenantID, mutationID string) (*domain.MutationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.entries[Key(tenantID, mutationID)]
	if !ok {
		return nil, ErrMiss
	}
	return &rec, nil
}

func (m *Memory) Put(_ context.Context, rec domain.MutationRecord) error {
	key := Key(rec.TenantID, rec.MutationID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[key]; ok {
		return nil
	}
	for len(m.order) >= m.max {
		delete(m.entries, m.order[0])
		m.order = m.order[1:]
	}
	m.entries[key] = rec
	m.order = append(m.order, key)
	return nil
}

func (m *Memory) Close() error { return nil }

// Len reports the number of cached outcomes.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// encode and decode give Redis a stable JSON form of the record.
func encode(rec domain.MutationRecord) ([]byte, error) {
	return json.Marshal(cachedRecord{
		TenantID:     rec.TenantID,
		DeviceID:     rec.DeviceID,
		MutationID:   rec.MutationID,
		Seq:          rec.Seq,
		Type:         rec.Type,
		OutletID:     rec.OutletID,
		EntityType:   rec.EntityType,
		EntityID:     rec.EntityID,
		PayloadHash:  rec.PayloadHash,
		Status:       rec.Status,
		ReasonCode:   rec.ReasonCode,
		Message:      rec.Message,
		ServerCursor: rec.ServerCursor,
		EntityRefs:   rec.EntityRefs,
		Effects:      rec.Effects,
		ProcessedAt:  rec.ProcessedAt,
	})
}

func decode(data []byte) (*domain.MutationRecord, error) {
	var c cachedRecord
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode cached outcome: %w", err)
	}
	return &domain.MutationRecord{
		TenantID:     c.TenantID,
		DeviceID:     c.DeviceID,
		MutationID:   c.MutationID,
		Seq:          c.Seq,
		Type:         c.Type,
		OutletID:     c.OutletID,
		EntityType:   c.EntityType,
		EntityID:     c.EntityID,
		PayloadHash:  c.PayloadHash,
		Status:       c.Status,
		ReasonCode:   c.ReasonCode,
		Message:      c.Message,
		ServerCursor: c.ServerCursor,
		EntityRefs:   c.EntityRefs,
		Effects:      c.Effects,
		ProcessedAt:  c.ProcessedAt,
	}, nil
}

// cachedRecord omits the payload; replays only need the outcome and hash.
type cachedRecord struct {
	TenantID     string                `json:"tenant_id"`
	DeviceID     string                `json:"device_id"`
	MutationID   string                `json:"mutation_id"`
	Seq          *int64                `json:"seq,omitempty"`
	Type         string                `json:"type"`
	OutletID     string                `json:"outlet_id,omitempty"`
	EntityType   string                `json:"entity_type,omitempty"`
	EntityID     string                `json:"entity_id,omitempty"`
	PayloadHash  string                `json:"payload_hash"`
	Status       domain.MutationStatus `json:"status"`
	ReasonCode   domain.ReasonCode     `json:"reason_code,omitempty"`
	Message      string                `json:"message,omitempty"`
	ServerCursor *int64                `json:"server_cursor,omitempty"`
	EntityRefs   []domain.EntityRef    `json:"entity_refs"`
	Effects      map[string]any        `json:"effects"`
	ProcessedAt  string                `json:"processed_at"`
}
