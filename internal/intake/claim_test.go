package intake

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahmlhn/Saas-Laundry-sub002/internal/access"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/audit"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/domain"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/invoice"
)

func claimReq(device, outlet string, days ...invoice.DayClaim) ClaimRequest {
	return ClaimRequest{DeviceID: device, OutletID: outlet, Days: days}
}

func TestClaim_ConsecutiveRangesAreAdjacent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, rej, err := f.svc.Claim(ctx, cashier, claimReq("dev-1", "o1", invoice.DayClaim{Date: "2026-10-15", Count: 2}))
	require.NoError(t, err)
	require.Nil(t, rej)
	second, rej, err := f.svc.Claim(ctx, owner, claimReq("dev-2", "o1", invoice.DayClaim{Date: "2026-10-15", Count: 3}))
	require.NoError(t, err)
	require.Nil(t, rej)

	require.Len(t, first.Ranges, 1)
	require.Len(t, second.Ranges, 1)
	assert.Equal(t, [2]int64{1, 2}, [2]int64{first.Ranges[0].From, first.Ranges[0].To})
	assert.Equal(t, [2]int64{3, 5}, [2]int64{second.Ranges[0].From, second.Ranges[0].To})
	assert.Equal(t, "BL-261015-", first.Ranges[0].Prefix)
	assert.Equal(t, "o1", first.Ranges[0].OutletID)
	assert.NotEmpty(t, first.Ranges[0].LeaseID)
	assert.NotEmpty(t, first.Ranges[0].ExpiresAt)
	assert.Equal(t, domain.FormatTime(f.clock.Now()), first.ServerTime)

	assert.Equal(t, []string{audit.EventInvoiceClaimed, audit.EventInvoiceClaimed}, f.audit.Keys())
}

func TestClaim_MultipleDaysKeepRequestOrder(t *testing.T) {
	f := newFixture(t)

	resp, rej, err := f.svc.Claim(context.Background(), cashier, claimReq("dev-1", "o1",
		invoice.DayClaim{Date: "2026-10-16", Count: 10},
		invoice.DayClaim{Date: "2026-10-15", Count: 4},
	))

	require.NoError(t, err)
	require.Nil(t, rej)
	require.Len(t, resp.Ranges, 2)
	assert.Equal(t, "2026-10-16", resp.Ranges[0].Date)
	assert.Equal(t, "BL-261016-", resp.Ranges[0].Prefix)
	assert.Equal(t, int64(10), resp.Ranges[0].To)
	assert.Equal(t, "2026-10-15", resp.Ranges[1].Date)
	assert.Equal(t, int64(4), resp.Ranges[1].To)
}

func TestClaim_OverflowGrantsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	days := make([]invoice.DayClaim, 0, 6)
	days = append(days, invoice.DayClaim{Date: "2026-10-16", Count: 1})
	for i := 0; i < 5; i++ {
		days = append(days, invoice.DayClaim{Date: "2026-10-15", Count: invoice.MaxClaimCount})
	}
	resp, rej, err := f.svc.Claim(ctx, cashier, claimReq("dev-1", "o1", days...))
	require.NoError(t, err)
	assert.Nil(t, resp)
	require.NotNil(t, rej)
	assert.Equal(t, domain.ReasonInvoiceCounterOverflow, rej.Code)

	// the whole claim rolled back, counters included
	resp, rej, err = f.svc.Claim(ctx, cashier, claimReq("dev-1", "o1", invoice.DayClaim{Date: "2026-10-16", Count: 1}))
	require.NoError(t, err)
	require.Nil(t, rej)
	assert.Equal(t, int64(1), resp.Ranges[0].From)
	assert.Len(t, f.audit.Keys(), 1, "only the successful claim is audited")
}

func TestClaim_Rejections(t *testing.T) {
	day := invoice.DayClaim{Date: "2026-10-15", Count: 1}
	tests := []struct {
		name  string
		actor domain.Actor
		req   ClaimRequest
		code  domain.ReasonCode
	}{
		{"worker role", worker, claimReq("dev-1", "o1", day), domain.ReasonRoleAccessDenied},
		{"courier role", courier, claimReq("dev-1", "o1", day), domain.ReasonRoleAccessDenied},
		{"unassigned outlet", cashier, claimReq("dev-1", "o2", day), domain.ReasonOutletAccessDenied},
		{"foreign outlet", owner, claimReq("dev-1", "o3", day), domain.ReasonOutletAccessDenied},
		{"missing device", cashier, claimReq("", "o1", day), domain.ReasonValidationFailed},
		{"missing outlet", cashier, claimReq("dev-1", "", day), domain.ReasonValidationFailed},
		{"no days", cashier, claimReq("dev-1", "o1"), domain.ReasonValidationFailed},
		{"bad date", cashier, claimReq("dev-1", "o1", invoice.DayClaim{Date: "15-10-2026", Count: 1}), domain.ReasonValidationFailed},
		{"count too large", cashier, claimReq("dev-1", "o1", invoice.DayClaim{Date: "2026-10-15", Count: invoice.MaxClaimCount + 1}), domain.ReasonValidationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			resp, rej, err := f.svc.Claim(context.Background(), tt.actor, tt.req)
			require.NoError(t, err)
			assert.Nil(t, resp)
			require.NotNil(t, rej)
			assert.Equal(t, tt.code, rej.Code)
			assert.Empty(t, f.audit.Keys())
		})
	}
}

func TestClaim_UnknownUser(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.svc.Claim(context.Background(), domain.Actor{TenantID: "t1", UserID: "ghost"},
		claimReq("dev-1", "o1", invoice.DayClaim{Date: "2026-10-15", Count: 1}))

	assert.ErrorIs(t, err, access.ErrUnknownUser)
}

func TestQuota(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createOrder(t, cashier, createPayload())

	snap, err := f.svc.Quota(ctx, worker, "")
	require.NoError(t, err)
	assert.Equal(t, "2026-10", snap.Period)
	assert.Equal(t, int64(1), snap.OrdersUsed)
	require.NotNil(t, snap.OrdersRemaining)
	assert.Equal(t, int64(2), *snap.OrdersRemaining)
	assert.True(t, snap.CanCreateOrder)

	unlimited, err := f.svc.Quota(ctx, domain.Actor{TenantID: "t3", UserID: "courier3"}, "")
	require.NoError(t, err)
	assert.Nil(t, unlimited.OrdersLimit)
	assert.Nil(t, unlimited.OrdersRemaining)
	assert.True(t, unlimited.CanCreateOrder)

	_, err = f.svc.Quota(ctx, domain.Actor{TenantID: "t3", UserID: "owner1"}, "")
	assert.ErrorIs(t, err, access.ErrUnknownUser)
}
