package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahmlhn/Saas-Laundry-sub002/internal/domain"
)

const createAndPull = `
name: create_and_pull
description: owner creates one order and reads it back
steps:
  - name: create
    push:
      actor: { tenant: t1, user: owner1 }
      device_id: dev-1
      mutations:
        - mutation_id: c1
          type: ORDER_CREATE
          outlet_id: o1
          payload:
            customer: { name: Ani, phone: "0813 1111 2222" }
            items: [{ service_id: svc-pcs, qty: 1 }]
    expect:
      outcomes: [applied]
  - name: read
    pull:
      actor: { tenant: t1, user: owner1 }
      device_id: dev-1
      scope: { mode: all_outlets }
    expect:
      changes: 3
      has_more: false
assertions:
  - { type: change_count, tenant: t1, count: 3 }
  - type: order_state
    tenant: t1
    mutation_id: c1
    expect: { total_amount: 25000, due_amount: 25000, invoice_no: null, laundry_status: received }
  - type: quota
    tenant: t1
    expect: { orders_used: 1 }
`

func mustParse(t *testing.T, yaml string) *Scenario {
	t.Helper()
	s, err := ParseScenario([]byte(yaml))
	require.NoError(t, err)
	return s
}

func TestRun_InlineScenario(t *testing.T) {
	result, err := Run(mustParse(t, createAndPull))
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Trace, 2)

	push := result.Trace[0]
	assert.Equal(t, int64(1), push.Seq)
	assert.Equal(t, KindPush, push.Kind)
	assert.Equal(t, "t1/owner1", push.Actor)
	require.Len(t, push.Outcomes, 1)
	assert.Equal(t, "applied", push.Outcomes[0].Label())
	require.NotNil(t, push.Outcomes[0].ServerCursor)
	assert.Equal(t, int64(3), *push.Outcomes[0].ServerCursor)

	pull := result.Trace[1]
	assert.Equal(t, int64(2), pull.Seq)
	require.NotNil(t, pull.NextCursor)
	assert.Equal(t, int64(3), *pull.NextCursor)
	assert.Len(t, pull.Changes, 3)
}

func TestRun_StepExpectationMismatch(t *testing.T) {
	s := mustParse(t, createAndPull)
	s.Steps[0].Expect.Outcomes = []string{"rejected:QUOTA_EXCEEDED"}
	four := 4
	s.Steps[1].Expect.Changes = &four

	result, err := Run(s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "step create: expected outcomes [rejected:QUOTA_EXCEEDED], got [applied]")
	assert.Contains(t, result.Errors[1], "step read: expected 4 changes, got 3")
}

func TestRun_UnexpectedReject(t *testing.T) {
	s := mustParse(t, `
name: unexpected
description: a cashier may not read all outlets
steps:
  - pull:
      actor: { tenant: t1, user: cashier1 }
      device_id: dev-1
      scope: { mode: all_outlets }
`)
	result, err := Run(s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "step #1: request rejected with ROLE_ACCESS_DENIED")
}

func TestRun_UnknownUserIsUnauthenticated(t *testing.T) {
	s := mustParse(t, `
name: stranger
description: a user from another tenant
steps:
  - pull:
      actor: { tenant: t1, user: owner2 }
      device_id: dev-1
      scope: { mode: all_outlets }
    expect:
      reject: UNAUTHENTICATED
`)
	result, err := Run(s)
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Trace, 1)
	assert.Equal(t, Unauthenticated, result.Trace[0].Reject)
	assert.Nil(t, result.Trace[0].NextCursor)
}

func TestRun_UnresolvedReference(t *testing.T) {
	s := mustParse(t, `
name: dangling
description: reference to a mutation that never ran
steps:
  - push:
      actor: { tenant: t1, user: owner1 }
      device_id: dev-1
      mutations:
        - mutation_id: x1
          type: ORDER_ADD_PAYMENT
          entity: { entity_type: order, entity_id: "{{ghost.order}}" }
          payload: { amount: 1000, method: cash }
`)
	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unresolved reference {{ghost.order}}")
}

func TestRun_AdvanceCrossesQuotaPeriod(t *testing.T) {
	s := mustParse(t, `
name: month_end
description: the quota period follows the outlet clock across a month boundary
start: "2026-10-31T16:00:00Z"
steps:
  - push:
      actor: { tenant: t1, user: owner1 }
      device_id: dev-1
      mutations:
        - mutation_id: a1
          type: ORDER_CREATE
          outlet_id: o1
          payload:
            customer: { name: Ani, phone: "081311112222" }
            items: [{ service_id: svc-pcs, qty: 1 }]
    expect: { outcomes: [applied] }
  - advance: 2h
  - push:
      actor: { tenant: t1, user: owner1 }
      device_id: dev-1
      mutations:
        - mutation_id: a2
          type: ORDER_CREATE
          outlet_id: o1
          payload:
            customer: { name: Ani, phone: "081311112222" }
            items: [{ service_id: svc-pcs, qty: 1 }]
    expect: { outcomes: [applied] }
assertions:
  - { type: quota, tenant: t1, period: "2026-10", expect: { orders_used: 1 } }
  - { type: quota, tenant: t1, period: "2026-11", expect: { orders_used: 1 } }
`)
	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Len(t, result.Trace, 2)
}

func TestRun_MissingFixtures(t *testing.T) {
	s := mustParse(t, minimalScenario)
	s.Fixtures = "/nonexistent/seed.yaml"

	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read fixtures")
}

func TestResolveRefs_Nested(t *testing.T) {
	h := &Harness{refs: map[string][]domain.EntityRef{
		"m1": {
			{EntityType: domain.EntityOrder, EntityID: "id-0007"},
			{EntityType: domain.EntityCustomer, EntityID: "id-0002"},
		},
	}}

	in := []map[string]any{{
		"entity": map[string]any{"entity_id": "{{m1.order}}"},
		"payload": map[string]any{
			"order_id": "{{ m1.order }}",
			"list":     []any{"{{m1.customer}}", "plain", 3},
		},
	}}
	out, err := h.resolveRefs(in)
	require.NoError(t, err)

	got := out.([]any)[0].(map[string]any)
	assert.Equal(t, "id-0007", got["entity"].(map[string]any)["entity_id"])
	payload := got["payload"].(map[string]any)
	assert.Equal(t, "id-0007", payload["order_id"])
	assert.Equal(t, []any{"id-0002", "plain", 3}, payload["list"])
}

func TestResolveRefs_UnknownEntityType(t *testing.T) {
	h := &Harness{refs: map[string][]domain.EntityRef{
		"m1": {{EntityType: domain.EntityOrder, EntityID: "id-0007"}},
	}}
	_, err := h.resolveRefs("{{m1.payment}}")
	require.Error(t, err)
}

func TestMutationTrace_Label(t *testing.T) {
	assert.Equal(t, "applied", MutationTrace{Status: domain.StatusApplied}.Label())
	assert.Equal(t, "rejected:PHONE_INVALID",
		MutationTrace{Status: domain.StatusRejected, ReasonCode: domain.ReasonPhoneInvalid}.Label())
}
