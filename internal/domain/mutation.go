package domain

import (
	"encoding/json"
	"strings"
)

// MutationType is the closed set of client mutation kinds the server applies.
type MutationType string

const (
	MutationOrderCreate              MutationType = "ORDER_CREATE"
	MutationOrderAddPayment          MutationType = "ORDER_ADD_PAYMENT"
	MutationOrderUpdateLaundryStatus MutationType = "ORDER_UPDATE_LAUNDRY_STATUS"
	MutationOrderUpdateCourierStatus MutationType = "ORDER_UPDATE_COURIER_STATUS"
	MutationOrderAssignCourier       MutationType = "ORDER_ASSIGN_COURIER"
)

// MutationTypes lists every supported type in declaration order.
var MutationTypes = []MutationType{
	MutationOrderCreate,
	MutationOrderAddPayment,
	MutationOrderUpdateLaundryStatus,
	MutationOrderUpdateCourierStatus,
	MutationOrderAssignCourier,
}

// ParseMutationType upper-cases s and matches it against the closed set.
// The second return is false for anything unrecognized.
func ParseMutationType(s string) (MutationType, bool) {
	t := MutationType(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range MutationTypes {
		if t == known {
			return t, true
		}
	}
	return t, false
}

// MutationStatus is the permanent outcome stored in the idempotency journal.
type MutationStatus string

const (
	StatusApplied   MutationStatus = "applied"
	StatusRejected  MutationStatus = "rejected"
	StatusDuplicate MutationStatus = "duplicate" // ack-only, never stored
)

// EntityRef points at one server entity.
type EntityRef struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
}

// Mutation is one client intent as submitted in a push batch.
type Mutation struct {
	MutationID string          `json:"mutation_id"`
	Seq        *int64          `json:"seq,omitempty"`
	Type       string          `json:"type"`
	OutletID   string          `json:"outlet_id,omitempty"`
	Entity     *EntityRef      `json:"entity,omitempty"`
	ClientTime string          `json:"client_time,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// EntityID returns the target entity id if the envelope carries one.
func (m Mutation) EntityID() string {
	if m.Entity == nil {
		return ""
	}
	return m.Entity.EntityID
}

// MutationRecord is a row of the idempotency journal. Write-once.
type MutationRecord struct {
	TenantID      string
	DeviceID      string
	MutationID    string
	Seq           *int64
	Type          string
	OutletID      string
	EntityType    string
	EntityID      string
	Payload       json.RawMessage
	PayloadHash   string
	ClientTime    string
	Status        MutationStatus
	ReasonCode    ReasonCode
	Message       string
	ServerCursor  *int64
	EntityRefs    []EntityRef
	Effects       map[string]any
	SourceChannel string
	ProcessedAt   string
}
