package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahmlhn/Saas-Laundry-sub002/internal/domain"
)

func TestValidate_NextStepAccepted(t *testing.T) {
	for _, p := range []Pipeline{Laundry, Courier} {
		steps := Steps(p)
		for i := 0; i+1 < len(steps); i++ {
			r := Validate(p, steps[i], steps[i+1])
			assert.True(t, r.OK, "%s: %s -> %s", p, steps[i], steps[i+1])
			assert.Empty(t, r.ReasonCode)
		}
	}
}

func TestValidate_ForwardOnly(t *testing.T) {
	// Every pair (i, j): j == i+1 ok, j <= i not forward, j > i+1 invalid.
	for _, p := range []Pipeline{Laundry, Courier} {
		steps := Steps(p)
		for i := range steps {
			for j := range steps {
				r := Validate(p, steps[i], steps[j])
				switch {
				case j == i+1:
					assert.True(t, r.OK)
				case j <= i:
					assert.Equal(t, domain.ReasonStatusNotForward, r.ReasonCode, "%s %s->%s", p, steps[i], steps[j])
				default:
					assert.Equal(t, domain.ReasonInvalidTransition, r.ReasonCode, "%s %s->%s", p, steps[i], steps[j])
				}
			}
		}
	}
}

func TestValidate_SameStatusIsNotForward(t *testing.T) {
	r := Validate(Laundry, "washing", "washing")
	require.False(t, r.OK)
	assert.Equal(t, domain.ReasonStatusNotForward, r.ReasonCode)
}

func TestValidate_UnknownRequested(t *testing.T) {
	r := Validate(Laundry, "received", "folded")
	require.False(t, r.OK)
	assert.Equal(t, domain.ReasonInvalidTransition, r.ReasonCode)
	assert.Contains(t, r.Message, "folded")
}

func TestValidate_EmptyCurrentStartsAtFirstState(t *testing.T) {
	assert.True(t, Validate(Courier, "", "pickup_on_the_way").OK)
	assert.Equal(t, domain.ReasonStatusNotForward, Validate(Courier, "", "pickup_pending").ReasonCode)
}

func TestValidate_UnknownPipeline(t *testing.T) {
	r := Validate(Pipeline("billing"), "a", "b")
	assert.Equal(t, domain.ReasonInvalidTransition, r.ReasonCode)
}

func TestResultReject_CarriesState(t *testing.T) {
	r := Validate(Laundry, "ready", "washing")
	out := r.Reject(map[string]any{"laundry_status": "ready"})
	require.True(t, out.IsRejected())
	assert.Equal(t, domain.ReasonStatusNotForward, out.Reject.Code)
	assert.Equal(t, "ready", out.Reject.CurrentState["laundry_status"])
}

func TestSteps_ReturnsCopy(t *testing.T) {
	s := Steps(Laundry)
	s[0] = "mutated"
	assert.Equal(t, "received", Steps(Laundry)[0])
}
