package intake

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ahmlhn/Saas-Laundry-sub002/internal/access"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/domain"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/notify"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/quota"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/schema"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/store"
)

// mutationContext is everything a handler knows about the mutation it runs.
type mutationContext struct {
	actor    domain.Actor
	grant    *access.Grant
	deviceID string
	mutation domain.Mutation
	typ      domain.MutationType
	now      time.Time
}

// dispatch routes a mutation to its handler. Handlers run inside tx and
// return the pending post-commit notifications with their result.
func (s *Service) dispatch(ctx context.Context, tx *store.Tx, mc *mutationContext) (domain.Result, []notify.Event, error) {
	switch mc.typ {
	case domain.MutationOrderCreate:
		return s.orderCreate(ctx, tx, mc)
	case domain.MutationOrderAddPayment:
		return s.orderAddPayment(ctx, tx, mc)
	case domain.MutationOrderUpdateLaundryStatus:
		return s.orderLaundryStatus(ctx, tx, mc)
	case domain.MutationOrderUpdateCourierStatus:
		return s.orderCourierStatus(ctx, tx, mc)
	case domain.MutationOrderAssignCourier:
		return s.orderAssignCourier(ctx, tx, mc)
	default:
		return domain.Rejected(domain.ReasonValidationFailed, "Unsupported mutation type: %s.", mc.typ), nil, nil
	}
}

// precheck runs the checks every handler starts with: role, tenant write
// access and payload shape. It decodes the payload into v.
func (s *Service) precheck(ctx context.Context, tx *store.Tx, mc *mutationContext, roles []string, v any) (*domain.Reject, error) {
	if rej := mc.grant.RequireRole(roles...); rej != nil {
		return rej, nil
	}

	err := s.quota.EnsureTenantWriteAccess(ctx, tx, mc.actor.TenantID)
	if quota.IsWriteAccessDenied(err) {
		return &domain.Reject{
			Code:    domain.ReasonSubscriptionReadOnly,
			Message: "Tenant subscription is not active for write operations.",
		}, nil
	}
	if err != nil {
		return nil, err
	}

	payload := payloadBytes(mc.mutation.Payload)
	if err := s.validator.Validate(schema.ForMutation(mc.typ), payload); err != nil {
		var ve *schema.ValidationError
		if errors.As(err, &ve) {
			return &domain.Reject{Code: domain.ReasonValidationFailed, Message: ve.Message}, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return &domain.Reject{Code: domain.ReasonValidationFailed, Message: "payload does not match the mutation type."}, nil
	}
	return nil, nil
}

func payloadBytes(raw json.RawMessage) []byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []byte("{}")
	}
	return trimmed
}

// nullableRaw drops JSON null so absent and null store the same way.
func nullableRaw(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	return trimmed
}

// targetOrder loads the order a mutation addresses (entity.entity_id, else
// payload order_id) and checks outlet access to it.
func (s *Service) targetOrder(ctx context.Context, tx *store.Tx, mc *mutationContext, payloadOrderID *string) (*domain.Order, *domain.Reject, error) {
	orderID := mc.mutation.EntityID()
	if orderID == "" && payloadOrderID != nil {
		orderID = *payloadOrderID
	}
	if orderID == "" {
		return nil, &domain.Reject{Code: domain.ReasonValidationFailed, Message: "order_id is required."}, nil
	}

	order, err := tx.GetOrderForUpdate(ctx, mc.actor.TenantID, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &domain.Reject{Code: domain.ReasonValidationFailed, Message: "Order not found."}, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load order: %w", err)
	}

	if _, rej, err := access.CheckOutlet(ctx, tx, mc.grant, order.OutletID); err != nil || rej != nil {
		return nil, rej, err
	}
	return order, nil, nil
}

// touchOrder stamps the order as updated by the actor and writes it back.
func (s *Service) touchOrder(ctx context.Context, tx *store.Tx, mc *mutationContext, o *domain.Order) error {
	o.UpdatedAt = domain.FormatTime(mc.now)
	o.UpdatedBy = mc.actor.UserID
	o.SourceChannel = mc.actor.Channel
	return tx.UpdateOrder(ctx, *o)
}

// recordOrder appends the order's change row and returns its cursor.
func (s *Service) recordOrder(ctx context.Context, tx *store.Tx, o *domain.Order) (int64, error) {
	outletID := o.OutletID
	return s.recorder.Record(ctx, tx, o.TenantID, &outletID, domain.EntityOrder, o.ID, domain.OpUpsert, o)
}

// orderNotice builds a notification for an order. It returns nil when the
// customer has no phone or the order has neither invoice number nor code.
func (s *Service) orderNotice(ctx context.Context, tx *store.Tx, mc *mutationContext, o *domain.Order, t notify.Template, event string) (*notify.Event, error) {
	cu, err := tx.GetCustomer(ctx, o.TenantID, o.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("load customer for notification: %w", err)
	}
	invoiceOrCode := o.OrderCode
	if o.InvoiceNo != nil && *o.InvoiceNo != "" {
		invoiceOrCode = *o.InvoiceNo
	}
	if cu.PhoneNormalized == "" || invoiceOrCode == "" {
		return nil, nil
	}
	return &notify.Event{
		IdempotencyKey: notify.IdempotencyKey(o.TenantID, o.OutletID, invoiceOrCode, t),
		Template:       t,
		Event:          event,
		TenantID:       o.TenantID,
		OutletID:       o.OutletID,
		OrderID:        o.ID,
		InvoiceOrCode:  invoiceOrCode,
		ToPhone:        cu.PhoneNormalized,
		CustomerName:   cu.Name,
		ActorUserID:    mc.actor.UserID,
		SourceChannel:  mc.actor.Channel,
		OccurredAt:     domain.FormatTime(mc.now),
	}, nil
}

// appendNotice adds a notification when the order qualifies for one.
func (s *Service) appendNotice(ctx context.Context, tx *store.Tx, mc *mutationContext, notices []notify.Event, o *domain.Order, t notify.Template, event string) ([]notify.Event, error) {
	ev, err := s.orderNotice(ctx, tx, mc, o, t, event)
	if err != nil {
		return nil, err
	}
	if ev != nil {
		notices = append(notices, *ev)
	}
	return notices, nil
}

func orderRef(id string) domain.EntityRef {
	return domain.EntityRef{EntityType: domain.EntityOrder, EntityID: id}
}

func rejectResult(r *domain.Reject) domain.Result {
	return domain.Result{Reject: r}
}
