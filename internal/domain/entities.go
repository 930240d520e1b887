package domain

import "encoding/json"

// Entity type names used in change records and entity refs.
const (
	EntityOrder     = "order"
	EntityOrderItem = "order_item"
	EntityPayment   = "payment"
	EntityCustomer  = "customer"
)

// ChangeOp is the operation of a change record.
type ChangeOp string

const (
	OpUpsert ChangeOp = "upsert"
	OpDelete ChangeOp = "delete"
)

// Roles known to the access resolver.
const (
	RoleOwner   = "owner"
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
	RoleWorker  = "worker"
	RoleCourier = "courier"
)

// Source channels accepted from X-Source-Channel.
const (
	ChannelMobile = "mobile"
	ChannelWeb    = "web"
	ChannelSystem = "system"
)

// Laundry and courier states referenced outside the status package.
const (
	LaundryReceived    = "received"
	LaundryReady       = "ready"
	LaundryCompleted   = "completed"
	CourierPending     = "pickup_pending"
	CourierPickupOTW   = "pickup_on_the_way"
	CourierDeliveryPen = "delivery_pending"
	CourierDeliveryOTW = "delivery_on_the_way"
	CourierDelivered   = "delivered"
)

// Actor is the authenticated identity a request acts as.
type Actor struct {
	TenantID string
	UserID   string
	Channel  string
}

// Device is a client installation bound to one tenant.
type Device struct {
	ID         string `json:"id"`
	TenantID   string `json:"tenant_id"`
	UserID     string `json:"user_id"`
	LastSeenAt string `json:"last_seen_at"`
}

// Tenant carries the plan data the quota service needs.
type Tenant struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	PlanKey         string `json:"plan_key"`
	OrdersLimit     *int64 `json:"orders_limit"`
	WriteAccessMode string `json:"write_access_mode"`
}

// Write access modes.
const (
	WriteAccessFull     = "full"
	WriteAccessReadOnly = "read_only"
)

// Outlet is a physical store of a tenant.
type Outlet struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	Timezone string `json:"timezone"`
}

// Service is a priced catalog entry.
type Service struct {
	ID              string `json:"id"`
	TenantID        string `json:"tenant_id"`
	Name            string `json:"name"`
	UnitType        string `json:"unit_type"` // "kg" | "pcs"
	BasePriceAmount int64  `json:"base_price_amount"`
	Active          bool   `json:"active"`
}

// Service unit types.
const (
	UnitKg  = "kg"
	UnitPcs = "pcs"
)

// Customer is unique per tenant by normalized phone.
type Customer struct {
	ID              string  `json:"id"`
	TenantID        string  `json:"tenant_id"`
	Name            string  `json:"name"`
	PhoneNormalized string  `json:"phone_normalized"`
	Notes           *string `json:"notes"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
}

// Order is the central mutable record. DueAmount is always derived from
// TotalAmount and PaidAmount by RecomputeDue.
type Order struct {
	ID                string          `json:"id"`
	TenantID          string          `json:"tenant_id"`
	OutletID          string          `json:"outlet_id"`
	CustomerID        string          `json:"customer_id"`
	InvoiceNo         *string         `json:"invoice_no"`
	OrderCode         string          `json:"order_code"`
	IsPickupDelivery  bool            `json:"is_pickup_delivery"`
	LaundryStatus     string          `json:"laundry_status"`
	CourierStatus     *string         `json:"courier_status"`
	CourierUserID     *string         `json:"courier_user_id"`
	ShippingFeeAmount int64           `json:"shipping_fee_amount"`
	DiscountAmount    int64           `json:"discount_amount"`
	TotalAmount       int64           `json:"total_amount"`
	PaidAmount        int64           `json:"paid_amount"`
	DueAmount         int64           `json:"due_amount"`
	Pickup            json.RawMessage `json:"pickup"`
	Delivery          json.RawMessage `json:"delivery"`
	Notes             *string         `json:"notes"`
	CreatedAt         string          `json:"created_at"`
	UpdatedAt         string          `json:"updated_at"`
	CreatedBy         string          `json:"created_by"`
	UpdatedBy         string          `json:"updated_by"`
	SourceChannel     string          `json:"source_channel"`
}

// RecomputeDue derives DueAmount from TotalAmount and PaidAmount.
func (o *Order) RecomputeDue() {
	o.DueAmount = max(o.TotalAmount-o.PaidAmount, 0)
}

// OrderItem is one priced line of an order.
type OrderItem struct {
	ID                  string   `json:"id"`
	OrderID             string   `json:"order_id"`
	ServiceID           string   `json:"service_id"`
	ServiceNameSnapshot string   `json:"service_name_snapshot"`
	UnitTypeSnapshot    string   `json:"unit_type_snapshot"`
	Qty                 *float64 `json:"qty"`
	WeightKg            *float64 `json:"weight_kg"`
	UnitPriceAmount     int64    `json:"unit_price_amount"`
	SubtotalAmount      int64    `json:"subtotal_amount"`
	CreatedAt           string   `json:"created_at"`
}

// Payment is append-only.
type Payment struct {
	ID            string  `json:"id"`
	OrderID       string  `json:"order_id"`
	Amount        int64   `json:"amount"`
	Method        string  `json:"method"`
	PaidAt        string  `json:"paid_at"`
	Notes         *string `json:"notes"`
	CreatedBy     string  `json:"created_by"`
	SourceChannel string  `json:"source_channel"`
	CreatedAt     string  `json:"created_at"`
}

// ChangeRecord is one row of the append-only change log.
type ChangeRecord struct {
	TenantID   string          `json:"tenant_id"`
	Cursor     int64           `json:"cursor"`
	ChangeID   string          `json:"change_id"`
	OutletID   *string         `json:"outlet_id"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Op         ChangeOp        `json:"op"`
	Data       json.RawMessage `json:"data"`
	UpdatedAt  string          `json:"updated_at"`
}

// InvoiceLease is a reserved counter range for one device on one
// (outlet, date).
type InvoiceLease struct {
	LeaseID     string `json:"lease_id"`
	TenantID    string `json:"tenant_id"`
	OutletID    string `json:"outlet_id"`
	DeviceID    string `json:"device_id"`
	Date        string `json:"date"`
	Prefix      string `json:"prefix"`
	FromCounter int64  `json:"from"`
	ToCounter   int64  `json:"to"`
	NextCounter int64  `json:"next_counter"`
	ExpiresAt   string `json:"expires_at"`
	CreatedAt   string `json:"created_at"`
}

// QuotaSnapshot is the read-only quota projection returned with every
// push and pull response.
type QuotaSnapshot struct {
	Plan            *string `json:"plan"`
	Period          string  `json:"period"`
	OrdersLimit     *int64  `json:"orders_limit"`
	OrdersUsed      int64   `json:"orders_used"`
	OrdersRemaining *int64  `json:"orders_remaining"`
	CanCreateOrder  bool    `json:"can_create_order"`
}
