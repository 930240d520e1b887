package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahmlhn/Saas-Laundry-sub002/internal/domain"
)

func TestValidate_OrderCreateAccepted(t *testing.T) {
	v := MustNewValidator()
	err := v.Validate(OrderCreate, []byte(`{
		"outlet_id": "o1",
		"customer": {"name": "Budi", "phone": "0812-3456-7890"},
		"items": [{"service_id": "svc-kg", "weight_kg": 2.5}],
		"shipping_fee_amount": 0,
		"client_extra": {"anything": true}
	}`))
	assert.NoError(t, err)
}

func TestValidate_OrderCreateRejectsMissingCustomer(t *testing.T) {
	v := MustNewValidator()
	err := v.Validate(OrderCreate, []byte(`{"items": [{"service_id": "svc-kg"}]}`))
	require.Error(t, err)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Path, "customer")
}

func TestValidate_OrderCreateRejectsEmptyItems(t *testing.T) {
	v := MustNewValidator()
	err := v.Validate(OrderCreate, []byte(`{
		"customer": {"name": "Budi", "phone": "081234567890"},
		"items": []
	}`))
	assert.Error(t, err)
}

func TestValidate_OrderCreateRejectsNegativeDiscount(t *testing.T) {
	v := MustNewValidator()
	err := v.Validate(OrderCreate, []byte(`{
		"customer": {"name": "Budi", "phone": "081234567890"},
		"items": [{"service_id": "svc-pcs", "qty": 1}],
		"discount_amount": -5
	}`))
	assert.Error(t, err)
}

func TestValidate_AddPayment(t *testing.T) {
	v := MustNewValidator()

	assert.NoError(t, v.Validate(OrderAddPayment, []byte(`{"amount": 5000, "method": "cash"}`)))
	assert.Error(t, v.Validate(OrderAddPayment, []byte(`{"amount": 0, "method": "cash"}`)))
	assert.Error(t, v.Validate(OrderAddPayment, []byte(`{"amount": 10.5, "method": "cash"}`)))
	assert.Error(t, v.Validate(OrderAddPayment, []byte(`{"amount": 5000}`)))
}

func TestValidate_StatusAndCourier(t *testing.T) {
	v := MustNewValidator()

	assert.NoError(t, v.Validate(OrderUpdateStatus, []byte(`{"status": "washing"}`)))
	assert.Error(t, v.Validate(OrderUpdateStatus, []byte(`{"status": 3}`)))
	assert.NoError(t, v.Validate(OrderAssignCourier, []byte(`{"courier_user_id": "courier1"}`)))
	assert.Error(t, v.Validate(OrderAssignCourier, []byte(`{}`)))
}

func TestValidate_EmptyDocumentIsObject(t *testing.T) {
	v := MustNewValidator()
	assert.Error(t, v.Validate(OrderUpdateStatus, nil))
}

func TestValidate_InvalidJSON(t *testing.T) {
	v := MustNewValidator()
	err := v.Validate(OrderAddPayment, []byte(`{"amount":`))
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "payload is not valid JSON.", ve.Message)
}

func TestValidate_UnknownDefinition(t *testing.T) {
	v := MustNewValidator()
	err := v.Validate("#Nope", []byte(`{}`))
	require.Error(t, err)
	var ve *ValidationError
	assert.False(t, errors.As(err, &ve), "unknown definitions are programming errors")
}

func TestValidate_PushRequest(t *testing.T) {
	v := MustNewValidator()

	ok := `{"device_id":"dev-1","mutations":[{"mutation_id":"m1","type":"ORDER_CREATE","seq":0,"payload":{}}]}`
	assert.NoError(t, v.Validate(PushRequest, []byte(ok)))

	assert.Error(t, v.Validate(PushRequest, []byte(`{"device_id":"dev-1","mutations":[]}`)))
	assert.Error(t, v.Validate(PushRequest, []byte(`{"mutations":[{"mutation_id":"m1","type":"X"}]}`)))
	assert.Error(t, v.Validate(PushRequest, []byte(`{"device_id":"dev-1","mutations":[{"mutation_id":"m1","type":"X","seq":-1}]}`)))
}

func TestValidate_PullRequest(t *testing.T) {
	v := MustNewValidator()

	assert.NoError(t, v.Validate(PullRequest, []byte(`{"device_id":"dev-1","cursor":0,"scope":{"mode":"all_outlets"}}`)))
	assert.Error(t, v.Validate(PullRequest, []byte(`{"device_id":"dev-1","scope":{"mode":"everything"}}`)))
	assert.Error(t, v.Validate(PullRequest, []byte(`{"device_id":"dev-1","scope":{"mode":"all_outlets"},"limit":501}`)))
}

func TestValidate_ClaimRequest(t *testing.T) {
	v := MustNewValidator()

	assert.NoError(t, v.Validate(ClaimRequest, []byte(`{"device_id":"dev-1","outlet_id":"o1","days":[{"date":"2026-10-15","count":50}]}`)))
	assert.Error(t, v.Validate(ClaimRequest, []byte(`{"device_id":"dev-1","outlet_id":"o1","days":[{"date":"15/10/2026","count":50}]}`)))
	assert.Error(t, v.Validate(ClaimRequest, []byte(`{"device_id":"dev-1","outlet_id":"o1","days":[{"date":"2026-10-15","count":2001}]}`)))
}

func TestForMutation(t *testing.T) {
	assert.Equal(t, OrderCreate, ForMutation(domain.MutationOrderCreate))
	assert.Equal(t, OrderAddPayment, ForMutation(domain.MutationOrderAddPayment))
	assert.Equal(t, OrderUpdateStatus, ForMutation(domain.MutationOrderUpdateLaundryStatus))
	assert.Equal(t, OrderUpdateStatus, ForMutation(domain.MutationOrderUpdateCourierStatus))
	assert.Equal(t, OrderAssignCourier, ForMutation(domain.MutationOrderAssignCourier))
	assert.Empty(t, ForMutation("ORDER_DELETE"))
}
