package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahmlhn/Saas-Laundry-sub002/internal/domain"
)

func TestUpsertDevice_BindsToFirstTenant(t *testing.T) {
	s := createSeededStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertDevice(ctx, "t1", "dev-1", "cashier1", "2026-10-15T01:00:00Z"))
	require.NoError(t, s.UpsertDevice(ctx, "t1", "dev-1", "cashier1", "2026-10-15T02:00:00Z"))

	d, err := s.GetDevice(ctx, "t1", "dev-1")
	require.NoError(t, err)
	assert.Equal(t, "2026-10-15T02:00:00Z", d.LastSeenAt)

	err = s.UpsertDevice(ctx, "t2", "dev-1", "someone", "2026-10-15T03:00:00Z")
	assert.ErrorIs(t, err, ErrDeviceTenantMismatch)

	_, err = s.GetDevice(ctx, "t2", "dev-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMutationJournal_WriteOnce(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	cursor := int64(12)
	rec := domain.MutationRecord{
		TenantID:      "t1",
		DeviceID:      "dev-1",
		MutationID:    "mut-1",
		Seq:           ptr(int64(1)),
		Type:          string(domain.MutationOrderAddPayment),
		EntityType:    domain.EntityOrder,
		EntityID:      "ord-1",
		Payload:       json.RawMessage(`{"method":"cash", "amount":5000}`),
		PayloadHash:   "abc",
		Status:        domain.StatusApplied,
		ServerCursor:  &cursor,
		EntityRefs:    []domain.EntityRef{{EntityType: domain.EntityPayment, EntityID: "pay-1"}},
		Effects:       map[string]any{"invoice_no_assigned": "BL-261015-0001"},
		SourceChannel: domain.ChannelMobile,
		ProcessedAt:   "2026-10-15T01:00:00Z",
	}
	require.NoError(t, s.InsertMutation(ctx, rec))

	second := rec
	second.Status = domain.StatusRejected
	assert.ErrorIs(t, s.InsertMutation(ctx, second), ErrMutationExists)

	got, err := s.GetMutation(ctx, "t1", "mut-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApplied, got.Status)
	require.NotNil(t, got.ServerCursor)
	assert.Equal(t, int64(12), *got.ServerCursor)
	assert.Equal(t, rec.EntityRefs, got.EntityRefs)
	assert.Equal(t, "BL-261015-0001", got.Effects["invoice_no_assigned"])
	assert.JSONEq(t, `{"amount":5000,"method":"cash"}`, string(got.Payload))
	assert.Equal(t, `{"amount":5000,"method":"cash"}`, string(got.Payload), "payload stored canonical")

	_, err = s.GetMutation(ctx, "t2", "mut-1")
	assert.ErrorIs(t, err, ErrNotFound, "journal is tenant scoped")
}

func TestMutationJournal_RejectedRow(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertMutation(ctx, domain.MutationRecord{
		TenantID:      "t1",
		DeviceID:      "dev-1",
		MutationID:    "mut-2",
		Type:          "ORDER_DELETE",
		PayloadHash:   "h",
		Status:        domain.StatusRejected,
		ReasonCode:    domain.ReasonValidationFailed,
		Message:       "Unsupported mutation type: ORDER_DELETE.",
		SourceChannel: domain.ChannelMobile,
		ProcessedAt:   "2026-10-15T01:00:00Z",
	}))

	got, err := s.GetMutation(ctx, "t1", "mut-2")
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonValidationFailed, got.ReasonCode)
	assert.Nil(t, got.ServerCursor)
	assert.Nil(t, got.Seq)
	assert.Empty(t, got.EntityRefs)
	assert.Empty(t, got.Effects)

	all, err := s.ListMutations(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestListChanges_FiltersByOutletAndKeepsTenantWideRows(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	o1, o2 := "o1", "o2"
	rows := []domain.ChangeRecord{
		{Cursor: 1, ChangeID: "c1", OutletID: &o1, EntityType: domain.EntityOrder, EntityID: "a"},
		{Cursor: 2, ChangeID: "c2", OutletID: nil, EntityType: domain.EntityCustomer, EntityID: "b"},
		{Cursor: 3, ChangeID: "c3", OutletID: &o2, EntityType: domain.EntityOrder, EntityID: "c"},
		{Cursor: 4, ChangeID: "c4", OutletID: &o1, EntityType: domain.EntityPayment, EntityID: "d"},
	}
	for _, r := range rows {
		r.TenantID = "t1"
		r.Op = domain.OpUpsert
		r.Data = json.RawMessage(`{}`)
		r.UpdatedAt = "2026-10-15T01:00:00Z"
		require.NoError(t, s.InsertChange(ctx, r))
	}

	got, err := s.ListChanges(ctx, ChangeFilter{TenantID: "t1", OutletIDs: []string{"o1"}})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 4}, cursors(got))

	got, err = s.ListChanges(ctx, ChangeFilter{TenantID: "t1", After: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3}, cursors(got))

	got, err = s.ListChanges(ctx, ChangeFilter{TenantID: "t1", OutletIDs: []string{}})
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, cursors(got))

	got, err = s.ListChanges(ctx, ChangeFilter{TenantID: "t2"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func cursors(changes []domain.ChangeRecord) []int64 {
	out := make([]int64, 0, len(changes))
	for _, c := range changes {
		out = append(out, c.Cursor)
	}
	return out
}

func TestLeases_ListAndAdvance(t *testing.T) {
	s := createSeededStore(t)
	ctx := context.Background()

	for _, l := range []domain.InvoiceLease{
		{LeaseID: "l2", FromCounter: 3, ToCounter: 5, NextCounter: 3},
		{LeaseID: "l1", FromCounter: 1, ToCounter: 2, NextCounter: 1},
	} {
		l.TenantID, l.OutletID, l.DeviceID, l.Date = "t1", "o1", "dev-1", "2026-10-15"
		l.Prefix = "BL-261015-"
		l.ExpiresAt = "2026-10-17T16:59:59Z"
		l.CreatedAt = "2026-10-15T01:00:00Z"
		require.NoError(t, s.InsertLease(ctx, l))
	}

	leases, err := s.ListDeviceLeases(ctx, "t1", "o1", "dev-1", "2026-10-15")
	require.NoError(t, err)
	require.Len(t, leases, 2)
	assert.Equal(t, "l1", leases[0].LeaseID)

	require.NoError(t, s.AdvanceLease(ctx, "t1", "l1", 2))
	require.NoError(t, s.AdvanceLease(ctx, "t1", "l1", 1)) // never backwards

	leases, err = s.ListDeviceLeases(ctx, "t1", "o1", "dev-1", "2026-10-15")
	require.NoError(t, err)
	assert.Equal(t, int64(2), leases[0].NextCounter)

	other, err := s.ListDeviceLeases(ctx, "t1", "o1", "dev-2", "2026-10-15")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestOrders_RoundTrip(t *testing.T) {
	s := createSeededStore(t)
	ctx := context.Background()

	cu, err := s.UpsertCustomer(ctx, domain.Customer{
		ID: "cus-1", TenantID: "t1", Name: "Budi", PhoneNormalized: "6281234567890",
		CreatedAt: "2026-10-15T01:00:00Z", UpdatedAt: "2026-10-15T01:00:00Z",
	})
	require.NoError(t, err)

	invoice := "BL-261015-0001"
	pending := domain.CourierPending
	o := domain.Order{
		ID: "ord-1", TenantID: "t1", OutletID: "o1", CustomerID: cu.ID, InvoiceNo: &invoice,
		OrderCode: "ORD-ABCDEFGH", IsPickupDelivery: true, LaundryStatus: domain.LaundryReceived,
		CourierStatus: &pending, TotalAmount: 30000, DueAmount: 30000,
		Pickup:    json.RawMessage(`{"address":"Jl. Mawar 1"}`),
		CreatedAt: "2026-10-15T01:00:00Z", UpdatedAt: "2026-10-15T01:00:00Z",
		CreatedBy: "cashier1", UpdatedBy: "cashier1", SourceChannel: domain.ChannelMobile,
	}
	require.NoError(t, s.InsertOrder(ctx, o))

	exists, err := s.OrderCodeExists(ctx, "t1", "ORD-ABCDEFGH")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = s.OrderCodeExists(ctx, "t2", "ORD-ABCDEFGH")
	require.NoError(t, err)
	assert.False(t, exists)

	used, err := s.InvoiceNoUsed(ctx, "t1", "o1", invoice)
	require.NoError(t, err)
	assert.True(t, used)

	require.NoError(t, s.InsertPayment(ctx, domain.Payment{
		ID: "pay-1", OrderID: "ord-1", Amount: 10000, Method: "cash", PaidAt: "2026-10-15T02:00:00Z",
		CreatedBy: "cashier1", SourceChannel: domain.ChannelMobile, CreatedAt: "2026-10-15T02:00:00Z",
	}))
	require.NoError(t, s.InsertPayment(ctx, domain.Payment{
		ID: "pay-2", OrderID: "ord-1", Amount: 5000, Method: "transfer", PaidAt: "2026-10-15T03:00:00Z",
		CreatedBy: "cashier1", SourceChannel: domain.ChannelMobile, CreatedAt: "2026-10-15T03:00:00Z",
	}))
	paid, err := s.SumPayments(ctx, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, int64(15000), paid)

	o.PaidAmount = paid
	o.RecomputeDue()
	o.LaundryStatus = "washing"
	o.UpdatedAt = "2026-10-15T03:00:00Z"
	require.NoError(t, s.UpdateOrder(ctx, o))

	got, err := s.GetOrder(ctx, "t1", "ord-1")
	require.NoError(t, err)
	assert.Equal(t, int64(15000), got.DueAmount)
	assert.Equal(t, "washing", got.LaundryStatus)
	assert.True(t, got.IsPickupDelivery)
	require.NotNil(t, got.CourierStatus)
	assert.Equal(t, domain.CourierPending, *got.CourierStatus)
	assert.JSONEq(t, `{"address":"Jl. Mawar 1"}`, string(got.Pickup))
	assert.Nil(t, got.Delivery)

	_, err = s.GetOrder(ctx, "t2", "ord-1")
	assert.ErrorIs(t, err, ErrNotFound)

	payments, err := s.ListPayments(ctx, "ord-1")
	require.NoError(t, err)
	assert.Len(t, payments, 2)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()
	locked, err := tx.GetOrderForUpdate(ctx, "t1", "ord-1")
	require.NoError(t, err)
	assert.Equal(t, "washing", locked.LaundryStatus)
	_, err = tx.GetOrderForUpdate(ctx, "t2", "ord-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertCustomer_SamePhoneUpdatesName(t *testing.T) {
	s := createSeededStore(t)
	ctx := context.Background()

	first, err := s.UpsertCustomer(ctx, domain.Customer{
		ID: "cus-1", TenantID: "t1", Name: "Budi", PhoneNormalized: "6281234567890",
		CreatedAt: "2026-10-15T01:00:00Z", UpdatedAt: "2026-10-15T01:00:00Z",
	})
	require.NoError(t, err)

	second, err := s.UpsertCustomer(ctx, domain.Customer{
		ID: "cus-2", TenantID: "t1", Name: "Budi Santoso", PhoneNormalized: "6281234567890",
		CreatedAt: "2026-10-15T02:00:00Z", UpdatedAt: "2026-10-15T02:00:00Z",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Budi Santoso", second.Name)
	assert.Equal(t, "2026-10-15T01:00:00Z", second.CreatedAt)

	other, err := s.UpsertCustomer(ctx, domain.Customer{
		ID: "cus-3", TenantID: "t2", Name: "Budi", PhoneNormalized: "6281234567890",
		CreatedAt: "2026-10-15T02:00:00Z", UpdatedAt: "2026-10-15T02:00:00Z",
	})
	require.NoError(t, err)
	assert.Equal(t, "cus-3", other.ID, "phone uniqueness is per tenant")

	got, err := s.GetCustomer(ctx, "t1", first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Budi Santoso", got.Name)

	_, err = s.GetCustomer(ctx, "t2", first.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetPricedService(t *testing.T) {
	s := createSeededStore(t)
	ctx := context.Background()

	ps, err := s.GetPricedService(ctx, "t1", "o1", "svc-kg")
	require.NoError(t, err)
	assert.Equal(t, int64(8000), ps.UnitPrice, "outlet override wins")

	ps, err = s.GetPricedService(ctx, "t1", "o2", "svc-kg")
	require.NoError(t, err)
	assert.Equal(t, int64(7000), ps.UnitPrice)

	ps, err = s.GetPricedService(ctx, "t1", "o1", "svc-pcs")
	require.NoError(t, err)
	assert.Equal(t, int64(25000), ps.UnitPrice, "inactive override is ignored")

	_, err = s.GetPricedService(ctx, "t1", "o1", "svc-off")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetPricedService(ctx, "t2", "o1", "svc-kg")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAccessQueries(t *testing.T) {
	s := createSeededStore(t)
	ctx := context.Background()

	roles, err := s.UserRoles(ctx, "t1", "courier1")
	require.NoError(t, err)
	assert.Equal(t, []string{"courier", "worker"}, roles)

	roles, err = s.UserRoles(ctx, "t2", "courier1")
	require.NoError(t, err)
	assert.Empty(t, roles)

	outlets, err := s.UserOutletIDs(ctx, "t1", "courier1")
	require.NoError(t, err)
	assert.Equal(t, []string{"o1", "o2"}, outlets)

	all, err := s.ListOutlets(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, "Asia/Jakarta", all[1].Timezone, "timezone defaulted")
}

func TestSeed_Idempotent(t *testing.T) {
	s := createSeededStore(t)
	ctx := context.Background()

	f, err := ParseFixtures([]byte(testFixturesYAML))
	require.NoError(t, err)
	require.NoError(t, s.Seed(ctx, f))

	tenant, err := s.GetTenant(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, tenant.OrdersLimit)
	assert.Equal(t, int64(3), *tenant.OrdersLimit)
	assert.Equal(t, domain.WriteAccessFull, tenant.WriteAccessMode)

	unlimited, err := s.GetTenant(ctx, "t2")
	require.NoError(t, err)
	assert.Nil(t, unlimited.OrdersLimit)
}

func TestParseFixtures_RequiresTenantID(t *testing.T) {
	_, err := ParseFixtures([]byte("tenants:\n  - name: nameless\n"))
	assert.Error(t, err)
}
