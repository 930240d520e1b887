package intake

import (
	"context"
	"slices"
	"strings"

	"github.com/ahmlhn/Saas-Laundry-sub002/internal/domain"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/invoice"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/notify"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/status"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/store"
)

const paymentRequiredMessage = "Order has an outstanding balance; settle it before completing the order."

type addPaymentPayload struct {
	OrderID *string `json:"order_id"`
	Amount  int64   `json:"amount"`
	Method  string  `json:"method"`
	PaidAt  *string `json:"paid_at"`
	Notes   *string `json:"notes"`
}

type statusPayload struct {
	OrderID *string `json:"order_id"`
	Status  string  `json:"status"`
}

type assignCourierPayload struct {
	OrderID       *string `json:"order_id"`
	CourierUserID string  `json:"courier_user_id"`
}

// orderAddPayment appends a payment and re-derives paid and due amounts
// from the payment ledger.
func (s *Service) orderAddPayment(ctx context.Context, tx *store.Tx, mc *mutationContext) (domain.Result, []notify.Event, error) {
	var p addPaymentPayload
	rej, err := s.precheck(ctx, tx, mc, []string{domain.RoleOwner, domain.RoleAdmin, domain.RoleCashier}, &p)
	if err != nil || rej != nil {
		return rejectResult(rej), nil, err
	}
	order, rej, err := s.targetOrder(ctx, tx, mc, p.OrderID)
	if err != nil || rej != nil {
		return rejectResult(rej), nil, err
	}

	paidAt := mc.now
	if p.PaidAt != nil && *p.PaidAt != "" {
		outlet, err := tx.GetOutlet(ctx, order.TenantID, order.OutletID)
		if err != nil {
			return domain.Result{}, nil, err
		}
		loc, err := invoice.Location(outlet)
		if err != nil {
			return domain.Result{}, nil, err
		}
		t, err := parseClientTime(*p.PaidAt, loc)
		if err != nil {
			return domain.Rejected(domain.ReasonValidationFailed, "paid_at is not a valid date."), nil, nil
		}
		paidAt = t
	}

	payment := domain.Payment{
		ID:            s.ids.NewID(),
		OrderID:       order.ID,
		Amount:        p.Amount,
		Method:        strings.TrimSpace(p.Method),
		PaidAt:        domain.FormatTime(paidAt),
		Notes:         p.Notes,
		CreatedBy:     mc.actor.UserID,
		SourceChannel: mc.actor.Channel,
		CreatedAt:     domain.FormatTime(mc.now),
	}
	if err := tx.InsertPayment(ctx, payment); err != nil {
		return domain.Result{}, nil, err
	}

	paid, err := tx.SumPayments(ctx, order.ID)
	if err != nil {
		return domain.Result{}, nil, err
	}
	order.PaidAmount = paid
	order.RecomputeDue()
	if err := s.touchOrder(ctx, tx, mc, order); err != nil {
		return domain.Result{}, nil, err
	}

	outletID := order.OutletID
	if _, err := s.recorder.Record(ctx, tx, order.TenantID, &outletID, domain.EntityPayment, payment.ID, domain.OpUpsert, payment); err != nil {
		return domain.Result{}, nil, err
	}
	cursor, err := s.recordOrder(ctx, tx, order)
	if err != nil {
		return domain.Result{}, nil, err
	}

	refs := []domain.EntityRef{
		{EntityType: domain.EntityPayment, EntityID: payment.ID},
		orderRef(order.ID),
	}
	return domain.Applied(cursor, refs, nil), nil, nil
}

// orderLaundryStatus moves the laundry pipeline one step forward.
func (s *Service) orderLaundryStatus(ctx context.Context, tx *store.Tx, mc *mutationContext) (domain.Result, []notify.Event, error) {
	var p statusPayload
	rej, err := s.precheck(ctx, tx, mc, []string{domain.RoleOwner, domain.RoleAdmin, domain.RoleWorker}, &p)
	if err != nil || rej != nil {
		return rejectResult(rej), nil, err
	}
	order, rej, err := s.targetOrder(ctx, tx, mc, p.OrderID)
	if err != nil || rej != nil {
		return rejectResult(rej), nil, err
	}

	requested := strings.TrimSpace(p.Status)
	state := map[string]any{
		"entity_type":    domain.EntityOrder,
		"entity_id":      order.ID,
		"laundry_status": order.LaundryStatus,
		"updated_at":     order.UpdatedAt,
	}
	if v := status.Validate(status.Laundry, order.LaundryStatus, requested); !v.OK {
		return v.Reject(state), nil, nil
	}
	if requested == domain.LaundryCompleted && order.DueAmount > 0 {
		return domain.RejectedWithState(domain.ReasonPaymentRequired, paymentRequiredMessage, state), nil, nil
	}

	order.LaundryStatus = requested
	if err := s.touchOrder(ctx, tx, mc, order); err != nil {
		return domain.Result{}, nil, err
	}

	var notices []notify.Event
	switch {
	case requested == domain.LaundryReady:
		notices, err = s.appendNotice(ctx, tx, mc, notices, order, notify.TemplateLaundryReady, "laundry_ready")
	case requested == domain.LaundryCompleted && !order.IsPickupDelivery:
		notices, err = s.appendNotice(ctx, tx, mc, notices, order, notify.TemplateOrderDone, "order_done")
	}
	if err != nil {
		return domain.Result{}, nil, err
	}

	cursor, err := s.recordOrder(ctx, tx, order)
	if err != nil {
		return domain.Result{}, nil, err
	}
	return domain.Applied(cursor, []domain.EntityRef{orderRef(order.ID)}, nil), notices, nil
}

// orderCourierStatus moves the courier pipeline of a pickup/delivery order
// one step forward.
func (s *Service) orderCourierStatus(ctx context.Context, tx *store.Tx, mc *mutationContext) (domain.Result, []notify.Event, error) {
	var p statusPayload
	rej, err := s.precheck(ctx, tx, mc, []string{domain.RoleOwner, domain.RoleAdmin, domain.RoleCourier}, &p)
	if err != nil || rej != nil {
		return rejectResult(rej), nil, err
	}
	order, rej, err := s.targetOrder(ctx, tx, mc, p.OrderID)
	if err != nil || rej != nil {
		return rejectResult(rej), nil, err
	}
	if !order.IsPickupDelivery {
		return domain.Rejected(domain.ReasonInvalidTransition, "Courier status is only valid for pickup-delivery orders."), nil, nil
	}

	current := domain.CourierPending
	if order.CourierStatus != nil && *order.CourierStatus != "" {
		current = *order.CourierStatus
	}
	requested := strings.TrimSpace(p.Status)
	state := map[string]any{
		"entity_type":    domain.EntityOrder,
		"entity_id":      order.ID,
		"courier_status": order.CourierStatus,
		"updated_at":     order.UpdatedAt,
	}
	if v := status.Validate(status.Courier, current, requested); !v.OK {
		return v.Reject(state), nil, nil
	}
	if requested == domain.CourierDeliveryPen &&
		!slices.Contains([]string{domain.LaundryReady, domain.LaundryCompleted}, order.LaundryStatus) {
		return domain.Rejected(domain.ReasonInvalidTransition, "laundry_status must be ready before delivery_pending."), nil, nil
	}
	if requested == domain.CourierDelivered && order.DueAmount > 0 {
		return domain.RejectedWithState(domain.ReasonPaymentRequired, paymentRequiredMessage, state), nil, nil
	}

	order.CourierStatus = &requested
	if err := s.touchOrder(ctx, tx, mc, order); err != nil {
		return domain.Result{}, nil, err
	}

	var notices []notify.Event
	switch requested {
	case domain.CourierPickupOTW:
		notices, err = s.appendNotice(ctx, tx, mc, notices, order, notify.TemplatePickupOTW, "courier_pickup_otw")
	case domain.CourierDeliveryOTW:
		notices, err = s.appendNotice(ctx, tx, mc, notices, order, notify.TemplateDeliveryOTW, "courier_delivery_otw")
	case domain.CourierDelivered:
		notices, err = s.appendNotice(ctx, tx, mc, notices, order, notify.TemplateOrderDone, "order_done")
	}
	if err != nil {
		return domain.Result{}, nil, err
	}

	cursor, err := s.recordOrder(ctx, tx, order)
	if err != nil {
		return domain.Result{}, nil, err
	}
	return domain.Applied(cursor, []domain.EntityRef{orderRef(order.ID)}, nil), notices, nil
}

// orderAssignCourier sets the courier of a pickup/delivery order. The
// assignee must hold the courier role in the same tenant.
func (s *Service) orderAssignCourier(ctx context.Context, tx *store.Tx, mc *mutationContext) (domain.Result, []notify.Event, error) {
	var p assignCourierPayload
	rej, err := s.precheck(ctx, tx, mc, []string{domain.RoleOwner, domain.RoleAdmin}, &p)
	if err != nil || rej != nil {
		return rejectResult(rej), nil, err
	}
	order, rej, err := s.targetOrder(ctx, tx, mc, p.OrderID)
	if err != nil || rej != nil {
		return rejectResult(rej), nil, err
	}
	if !order.IsPickupDelivery {
		return domain.Rejected(domain.ReasonValidationFailed, "Courier assignment is only for pickup-delivery orders."), nil, nil
	}

	courierID := strings.TrimSpace(p.CourierUserID)
	roles, err := tx.UserRoles(ctx, mc.actor.TenantID, courierID)
	if err != nil {
		return domain.Result{}, nil, err
	}
	if !slices.Contains(roles, domain.RoleCourier) {
		return domain.Rejected(domain.ReasonValidationFailed, "Assigned user must have courier role."), nil, nil
	}

	order.CourierUserID = &courierID
	if err := s.touchOrder(ctx, tx, mc, order); err != nil {
		return domain.Result{}, nil, err
	}
	cursor, err := s.recordOrder(ctx, tx, order)
	if err != nil {
		return domain.Result{}, nil, err
	}
	return domain.Applied(cursor, []domain.EntityRef{orderRef(order.ID)}, nil), nil, nil
}
