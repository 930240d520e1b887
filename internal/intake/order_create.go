package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/ahmlhn/Saas-Laundry-sub002/internal/access"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/domain"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/invoice"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/notify"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/quota"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/store"
)

const orderCodeAttempts = 5

type orderCreatePayload struct {
	OutletID          *string         `json:"outlet_id"`
	OrderCode         *string         `json:"order_code"`
	InvoiceNo         *string         `json:"invoice_no"`
	IsPickupDelivery  *bool           `json:"is_pickup_delivery"`
	ShippingFeeAmount *int64          `json:"shipping_fee_amount"`
	DiscountAmount    *int64          `json:"discount_amount"`
	Notes             *string         `json:"notes"`
	Pickup            json.RawMessage `json:"pickup"`
	Delivery          json.RawMessage `json:"delivery"`
	Customer          struct {
		Name     string  `json:"name"`
		Phone    string  `json:"phone"`
		Notes    *string `json:"notes"`
		ClientID *string `json:"client_id"`
	} `json:"customer"`
	Items []struct {
		ServiceID string   `json:"service_id"`
		Qty       *float64 `json:"qty"`
		WeightKg  *float64 `json:"weight_kg"`
	} `json:"items"`
}

// orderCreate creates an order with its customer and priced items.
// Quota, customer and invoice writes share the handler transaction, so any
// later rejection releases the quota slot and the invoice number again.
func (s *Service) orderCreate(ctx context.Context, tx *store.Tx, mc *mutationContext) (domain.Result, []notify.Event, error) {
	var p orderCreatePayload
	rej, err := s.precheck(ctx, tx, mc, []string{domain.RoleOwner, domain.RoleAdmin, domain.RoleCashier}, &p)
	if err != nil || rej != nil {
		return rejectResult(rej), nil, err
	}
	tenantID := mc.actor.TenantID

	outletID := mc.mutation.OutletID
	if outletID == "" && p.OutletID != nil {
		outletID = *p.OutletID
	}
	if outletID == "" {
		return domain.Rejected(domain.ReasonValidationFailed, "outlet_id is required."), nil, nil
	}
	outlet, rej, err := access.CheckOutlet(ctx, tx, mc.grant, outletID)
	if err != nil || rej != nil {
		return rejectResult(rej), nil, err
	}

	loc, err := invoice.Location(outlet)
	if err != nil {
		return domain.Result{}, nil, err
	}
	orderTime := mc.now
	if mc.mutation.ClientTime != "" {
		if t, err := parseClientTime(mc.mutation.ClientTime, loc); err == nil {
			orderTime = t
		}
	}

	orderCode := ""
	if p.OrderCode != nil {
		orderCode = strings.TrimSpace(*p.OrderCode)
	}
	if orderCode != "" {
		exists, err := tx.OrderCodeExists(ctx, tenantID, orderCode)
		if err != nil {
			return domain.Result{}, nil, err
		}
		if exists {
			return domain.Rejected(domain.ReasonValidationFailed, "order_code already exists."), nil, nil
		}
	} else {
		orderCode, err = s.generateOrderCode(ctx, tx, tenantID)
		if err != nil {
			return domain.Result{}, nil, err
		}
	}

	err = s.quota.ConsumeOrderSlot(ctx, tx, tenantID, s.quota.PeriodFor(orderTime))
	if quota.IsQuotaExceeded(err) {
		return domain.Rejected(domain.ReasonQuotaExceeded, "Order quota for the current period has been reached."), nil, nil
	}
	if err != nil {
		return domain.Result{}, nil, err
	}

	phone, ok := NormalizePhone(p.Customer.Phone)
	if !ok {
		return domain.Rejected(domain.ReasonPhoneInvalid, "Invalid phone number format."), nil, nil
	}
	nowText := domain.FormatTime(mc.now)
	customer, err := tx.UpsertCustomer(ctx, domain.Customer{
		ID:              s.ids.NewID(),
		TenantID:        tenantID,
		Name:            strings.TrimSpace(p.Customer.Name),
		PhoneNormalized: phone,
		Notes:           p.Customer.Notes,
		CreatedAt:       nowText,
		UpdatedAt:       nowText,
	})
	if err != nil {
		return domain.Result{}, nil, err
	}

	clientInvoiceNo := ""
	if p.InvoiceNo != nil {
		clientInvoiceNo = strings.TrimSpace(*p.InvoiceNo)
	}
	assignment, rej, err := s.invoices.ValidateOrAssign(ctx, tx, mc.deviceID, outlet, orderTime, clientInvoiceNo)
	if err != nil || rej != nil {
		return rejectResult(rej), nil, err
	}

	pickupDelivery := p.IsPickupDelivery != nil && *p.IsPickupDelivery
	order := domain.Order{
		ID:                s.ids.NewID(),
		TenantID:          tenantID,
		OutletID:          outlet.ID,
		CustomerID:        customer.ID,
		InvoiceNo:         assignment.InvoiceNo,
		OrderCode:         orderCode,
		IsPickupDelivery:  pickupDelivery,
		LaundryStatus:     domain.LaundryReceived,
		ShippingFeeAmount: valueOr(p.ShippingFeeAmount),
		DiscountAmount:    valueOr(p.DiscountAmount),
		Pickup:            nullableRaw(p.Pickup),
		Delivery:          nullableRaw(p.Delivery),
		Notes:             p.Notes,
		CreatedAt:         domain.FormatTime(orderTime),
		UpdatedAt:         domain.FormatTime(orderTime),
		CreatedBy:         mc.actor.UserID,
		UpdatedBy:         mc.actor.UserID,
		SourceChannel:     mc.actor.Channel,
	}
	if pickupDelivery {
		pending := domain.CourierPending
		order.CourierStatus = &pending
	}

	items := make([]domain.OrderItem, 0, len(p.Items))
	var subtotal int64
	for _, in := range p.Items {
		svc, err := tx.GetPricedService(ctx, tenantID, outlet.ID, in.ServiceID)
		if errors.Is(err, store.ErrNotFound) {
			return domain.Rejected(domain.ReasonValidationFailed, "Service %s is invalid.", in.ServiceID), nil, nil
		}
		if err != nil {
			return domain.Result{}, nil, fmt.Errorf("price item: %w", err)
		}

		var metric float64
		switch svc.UnitType {
		case domain.UnitKg:
			if in.WeightKg == nil || *in.WeightKg <= 0 {
				return domain.Rejected(domain.ReasonValidationFailed, "weight_kg is required for kg service."), nil, nil
			}
			metric = *in.WeightKg
		default:
			if in.Qty == nil || *in.Qty <= 0 {
				return domain.Rejected(domain.ReasonValidationFailed, "qty is required for pcs service."), nil, nil
			}
			metric = *in.Qty
		}

		line := int64(math.Round(metric * float64(svc.UnitPrice)))
		subtotal += line
		items = append(items, domain.OrderItem{
			ID:                  s.ids.NewID(),
			OrderID:             order.ID,
			ServiceID:           svc.ID,
			ServiceNameSnapshot: svc.Name,
			UnitTypeSnapshot:    svc.UnitType,
			Qty:                 in.Qty,
			WeightKg:            in.WeightKg,
			UnitPriceAmount:     svc.UnitPrice,
			SubtotalAmount:      line,
			CreatedAt:           nowText,
		})
	}

	order.TotalAmount = max(subtotal+order.ShippingFeeAmount-order.DiscountAmount, 0)
	order.RecomputeDue()
	if err := tx.InsertOrder(ctx, order); err != nil {
		return domain.Result{}, nil, err
	}

	outletRef := outlet.ID
	for _, it := range items {
		if err := tx.InsertOrderItem(ctx, it); err != nil {
			return domain.Result{}, nil, err
		}
		if _, err := s.recorder.Record(ctx, tx, tenantID, &outletRef, domain.EntityOrderItem, it.ID, domain.OpUpsert, it); err != nil {
			return domain.Result{}, nil, err
		}
	}
	if _, err := s.recorder.Record(ctx, tx, tenantID, nil, domain.EntityCustomer, customer.ID, domain.OpUpsert, customer); err != nil {
		return domain.Result{}, nil, err
	}
	cursor, err := s.recordOrder(ctx, tx, &order)
	if err != nil {
		return domain.Result{}, nil, err
	}

	effects := map[string]any{}
	if assignment.Assigned != nil {
		effects["invoice_no_assigned"] = *assignment.Assigned
	}
	if p.Customer.ClientID != nil && *p.Customer.ClientID != "" {
		effects["id_map"] = map[string]any{
			"customer_client_id": *p.Customer.ClientID,
			"customer_server_id": customer.ID,
		}
	}

	var notices []notify.Event
	if pickupDelivery {
		notices, err = s.appendNotice(ctx, tx, mc, notices, &order, notify.TemplatePickupConfirm, "order_created")
		if err != nil {
			return domain.Result{}, nil, err
		}
	}

	refs := []domain.EntityRef{
		orderRef(order.ID),
		{EntityType: domain.EntityCustomer, EntityID: customer.ID},
	}
	return domain.Applied(cursor, refs, effects), notices, nil
}

// generateOrderCode returns ORD- plus eight upper-case characters taken
// from a fresh id, retrying on the rare collision.
func (s *Service) generateOrderCode(ctx context.Context, tx *store.Tx, tenantID string) (string, error) {
	for attempt := 0; attempt < orderCodeAttempts; attempt++ {
		raw := strings.ToUpper(strings.ReplaceAll(s.ids.NewID(), "-", ""))
		if len(raw) > 8 {
			raw = raw[len(raw)-8:]
		}
		code := "ORD-" + raw
		exists, err := tx.OrderCodeExists(ctx, tenantID, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("generate order code: %d collisions", orderCodeAttempts)
}

func valueOr(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
