package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ahmlhn/Saas-Laundry-sub002/internal/domain"
)

const orderColumns = `id, tenant_id, outlet_id, customer_id, invoice_no, order_code, is_pickup_delivery,
	laundry_status, courier_status, courier_user_id, shipping_fee_amount, discount_amount,
	total_amount, paid_amount, due_amount, pickup, delivery, notes,
	created_at, updated_at, created_by, updated_by, source_channel`

// InsertOrder creates an order row.
func (c conn) InsertOrder(ctx context.Context, o domain.Order) error {
	_, err := c.exec(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		o.ID, o.TenantID, o.OutletID, o.CustomerID, nullStringPtr(o.InvoiceNo), o.OrderCode,
		o.IsPickupDelivery, o.LaundryStatus, nullStringPtr(o.CourierStatus), nullStringPtr(o.CourierUserID),
		o.ShippingFeeAmount, o.DiscountAmount, o.TotalAmount, o.PaidAmount, o.DueAmount,
		rawOrNull(o.Pickup), rawOrNull(o.Delivery), nullStringPtr(o.Notes),
		o.CreatedAt, o.UpdatedAt, o.CreatedBy, o.UpdatedBy, o.SourceChannel,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// GetOrder retrieves an order.
// Returns ErrNotFound if no order with orderID belongs to tenantID.
func (c conn) GetOrder(ctx context.Context, tenantID, orderID string) (*domain.Order, error) {
	row := c.queryRow(ctx, c.orderByIDQuery(false), tenantID, orderID)
	return scanOrder(row)
}

// GetOrderForUpdate retrieves an order and, on Postgres, holds its row lock
// until the transaction ends. SQLite runs one writer at a time and needs no
// lock clause.
func (t *Tx) GetOrderForUpdate(ctx context.Context, tenantID, orderID string) (*domain.Order, error) {
	row := t.queryRow(ctx, t.orderByIDQuery(true), tenantID, orderID)
	return scanOrder(row)
}

func (c conn) orderByIDQuery(forUpdate bool) string {
	q := `SELECT ` + orderColumns + ` FROM orders WHERE tenant_id = ? AND id = ?`
	if forUpdate && c.dialect == DialectPostgres {
		q += ` FOR UPDATE`
	}
	return q
}

// ListOrders returns a tenant's orders by creation time. Used by the CLI and
// scenario traces.
func (c conn) ListOrders(ctx context.Context, tenantID string) ([]domain.Order, error) {
	rows, err := c.query(ctx, `SELECT `+orderColumns+` FROM orders WHERE tenant_id = ? ORDER BY created_at ASC, id ASC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []domain.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("list orders: %w", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// UpdateOrder writes back the mutable columns of an order: statuses,
// courier assignment, money totals, the updated_* stamp and source channel.
func (c conn) UpdateOrder(ctx context.Context, o domain.Order) error {
	res, err := c.exec(ctx, `
		UPDATE orders SET
			laundry_status = ?, courier_status = ?, courier_user_id = ?,
			total_amount = ?, paid_amount = ?, due_amount = ?,
			updated_at = ?, updated_by = ?, source_channel = ?
		WHERE tenant_id = ? AND id = ?
	`,
		o.LaundryStatus, nullStringPtr(o.CourierStatus), nullStringPtr(o.CourierUserID),
		o.TotalAmount, o.PaidAmount, o.DueAmount,
		o.UpdatedAt, o.UpdatedBy, o.SourceChannel,
		o.TenantID, o.ID,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update order %s: %w", o.ID, ErrNotFound)
	}
	return nil
}

// OrderCodeExists reports whether the tenant already has an order with code.
func (c conn) OrderCodeExists(ctx context.Context, tenantID, code string) (bool, error) {
	var one int
	err := c.queryRow(ctx, `SELECT 1 FROM orders WHERE tenant_id = ? AND order_code = ?`, tenantID, code).Scan(&one)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("order code exists: %w", err)
	}
	return true, nil
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		o                                     domain.Order
		invoiceNo, courierStatus, courierUser sql.NullString
		pickup, delivery, notes               sql.NullString
	)
	err := row.Scan(
		&o.ID, &o.TenantID, &o.OutletID, &o.CustomerID, &invoiceNo, &o.OrderCode, &o.IsPickupDelivery,
		&o.LaundryStatus, &courierStatus, &courierUser, &o.ShippingFeeAmount, &o.DiscountAmount,
		&o.TotalAmount, &o.PaidAmount, &o.DueAmount, &pickup, &delivery, &notes,
		&o.CreatedAt, &o.UpdatedAt, &o.CreatedBy, &o.UpdatedBy, &o.SourceChannel,
	)
	if err != nil {
		return nil, err
	}
	o.InvoiceNo = stringPtr(invoiceNo)
	o.CourierStatus = stringPtr(courierStatus)
	o.CourierUserID = stringPtr(courierUser)
	o.Pickup = rawFromNull(pickup)
	o.Delivery = rawFromNull(delivery)
	o.Notes = stringPtr(notes)
	return &o, nil
}

// InsertOrderItem stores one priced order line.
func (c conn) InsertOrderItem(ctx context.Context, it domain.OrderItem) error {
	_, err := c.exec(ctx, `
		INSERT INTO order_items
		(id, order_id, service_id, service_name_snapshot, unit_type_snapshot, qty, weight_kg,
		 unit_price_amount, subtotal_amount, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, it.ID, it.OrderID, it.ServiceID, it.ServiceNameSnapshot, it.UnitTypeSnapshot,
		nullFloat64Ptr(it.Qty), nullFloat64Ptr(it.WeightKg), it.UnitPriceAmount, it.SubtotalAmount, it.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert order item: %w", err)
	}
	return nil
}

// ListOrderItems returns the lines of an order in insertion order.
func (c conn) ListOrderItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := c.query(ctx, `
		SELECT id, order_id, service_id, service_name_snapshot, unit_type_snapshot, qty, weight_kg,
		       unit_price_amount, subtotal_amount, created_at
		FROM order_items WHERE order_id = ?
		ORDER BY created_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	defer rows.Close()

	items := []domain.OrderItem{}
	for rows.Next() {
		var (
			it            domain.OrderItem
			qty, weightKg sql.NullFloat64
		)
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ServiceID, &it.ServiceNameSnapshot, &it.UnitTypeSnapshot,
			&qty, &weightKg, &it.UnitPriceAmount, &it.SubtotalAmount, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("list order items: scan: %w", err)
		}
		it.Qty = float64Ptr(qty)
		it.WeightKg = float64Ptr(weightKg)
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	return items, nil
}

// InsertPayment appends a payment. Payments are never updated or deleted.
func (c conn) InsertPayment(ctx context.Context, p domain.Payment) error {
	_, err := c.exec(ctx, `
		INSERT INTO payments (id, order_id, amount, method, paid_at, notes, created_by, source_channel, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.OrderID, p.Amount, p.Method, p.PaidAt, nullStringPtr(p.Notes), p.CreatedBy, p.SourceChannel, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// SumPayments returns the total paid on an order.
func (c conn) SumPayments(ctx context.Context, orderID string) (int64, error) {
	var total int64
	err := c.queryRow(ctx, `
		SELECT CAST(COALESCE(SUM(amount), 0) AS BIGINT) FROM payments WHERE order_id = ?
	`, orderID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum payments: %w", err)
	}
	return total, nil
}

// ListPayments returns an order's payments in insertion order.
func (c conn) ListPayments(ctx context.Context, orderID string) ([]domain.Payment, error) {
	rows, err := c.query(ctx, `
		SELECT id, order_id, amount, method, paid_at, notes, created_by, source_channel, created_at
		FROM payments WHERE order_id = ?
		ORDER BY created_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	payments := []domain.Payment{}
	for rows.Next() {
		var (
			p     domain.Payment
			notes sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.OrderID, &p.Amount, &p.Method, &p.PaidAt, &notes,
			&p.CreatedBy, &p.SourceChannel, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("list payments: scan: %w", err)
		}
		p.Notes = stringPtr(notes)
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return payments, nil
}
