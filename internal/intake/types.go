package intake

import (
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/domain"
)

// PushRequest is one batch of mutations from a device.
type PushRequest struct {
	DeviceID              string            `json:"device_id"`
	LastKnownServerCursor *int64            `json:"last_known_server_cursor,omitempty"`
	Mutations             []domain.Mutation `json:"mutations"`
}

// Ack reports an applied mutation, or the replay of one (status duplicate).
type Ack struct {
	MutationID   string                `json:"mutation_id"`
	Status       domain.MutationStatus `json:"status"`
	ServerCursor *int64                `json:"server_cursor"`
	EntityRefs   []domain.EntityRef    `json:"entity_refs"`
	Effects      map[string]any        `json:"effects"`
}

// Rejection reports a rejected mutation.
type Rejection struct {
	MutationID         string                `json:"mutation_id"`
	Status             domain.MutationStatus `json:"status"`
	ReasonCode         domain.ReasonCode     `json:"reason_code"`
	Message            string                `json:"message"`
	CurrentServerState map[string]any        `json:"current_server_state,omitempty"`
}

// PushResponse carries one entry per submitted mutation, split into ack
// and rejected in submission order.
type PushResponse struct {
	ServerTime string               `json:"server_time"`
	Ack        []Ack                `json:"ack"`
	Rejected   []Rejection          `json:"rejected"`
	Quota      domain.QuotaSnapshot `json:"quota"`
}

// outcome is the per-mutation result before it is split into the response.
type outcome struct {
	ack       *Ack
	rejection *Rejection
}

func ackFromRecord(rec *domain.MutationRecord, status domain.MutationStatus) outcome {
	refs := rec.EntityRefs
	if refs == nil {
		refs = []domain.EntityRef{}
	}
	effects := rec.Effects
	if effects == nil {
		effects = map[string]any{}
	}
	return outcome{ack: &Ack{
		MutationID:   rec.MutationID,
		Status:       status,
		ServerCursor: rec.ServerCursor,
		EntityRefs:   refs,
		Effects:      effects,
	}}
}

// effectCurrentState keys the server state a rejection carried, kept in the
// journal so a replayed rejection returns it too.
const effectCurrentState = "current_server_state"

func rejectionFromRecord(rec *domain.MutationRecord) outcome {
	code := rec.ReasonCode
	if code == "" {
		code = domain.ReasonValidationFailed
	}
	msg := rec.Message
	if msg == "" {
		msg = "Mutation rejected previously."
	}
	state, _ := rec.Effects[effectCurrentState].(map[string]any)
	return outcome{rejection: &Rejection{
		MutationID:         rec.MutationID,
		Status:             domain.StatusRejected,
		ReasonCode:         code,
		Message:            msg,
		CurrentServerState: state,
	}}
}

func rejectionFrom(mutationID string, r *domain.Reject) outcome {
	return outcome{rejection: &Rejection{
		MutationID:         mutationID,
		Status:             domain.StatusRejected,
		ReasonCode:         r.Code,
		Message:            r.Message,
		CurrentServerState: r.CurrentState,
	}}
}
