package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahmlhn/Saas-Laundry-sub002/internal/store"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/testutil"
)

func newService() *Service {
	jakarta, _ := time.LoadLocation("Asia/Jakarta")
	return New(testutil.NewDeterministicClock(time.Time{}), jakarta)
}

func TestConsumeOrderSlot_LimitedPlanStopsAtLimit(t *testing.T) {
	s := testutil.NewStore(t)
	svc := newService()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.ConsumeOrderSlot(ctx, s, "t1", "2026-10"))
	}

	err := svc.ConsumeOrderSlot(ctx, s, "t1", "2026-10")
	require.Error(t, err)
	assert.True(t, IsQuotaExceeded(err))

	var qe *QuotaExceededError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, "basic", qe.PlanKey)
	assert.Equal(t, "2026-10", qe.Period)
	assert.Equal(t, int64(3), qe.OrdersLimit)
	assert.Equal(t, int64(3), qe.OrdersUsed)

	snap, err := svc.Snapshot(ctx, s, "t1", "2026-10")
	require.NoError(t, err)
	assert.Equal(t, int64(3), snap.OrdersUsed, "a failed consume does not count")
	assert.False(t, snap.CanCreateOrder)
	require.NotNil(t, snap.OrdersRemaining)
	assert.Equal(t, int64(0), *snap.OrdersRemaining)
}

func TestConsumeOrderSlot_PeriodsAreIndependent(t *testing.T) {
	s := testutil.NewStore(t)
	svc := newService()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.ConsumeOrderSlot(ctx, s, "t1", "2026-10"))
	}
	require.NoError(t, svc.ConsumeOrderSlot(ctx, s, "t1", "2026-11"))
}

func TestConsumeOrderSlot_UnlimitedPlanCounts(t *testing.T) {
	s := testutil.NewStore(t)
	svc := newService()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, svc.ConsumeOrderSlot(ctx, s, "t3", "2026-10"))
	}

	snap, err := svc.Snapshot(ctx, s, "t3", "2026-10")
	require.NoError(t, err)
	assert.Equal(t, int64(10), snap.OrdersUsed)
	assert.Nil(t, snap.OrdersLimit)
	assert.Nil(t, snap.OrdersRemaining)
	assert.True(t, snap.CanCreateOrder)
	require.NotNil(t, snap.Plan)
	assert.Equal(t, "unlimited", *snap.Plan)
}

func TestConsumeOrderSlot_RollsBackWithTransaction(t *testing.T) {
	s := testutil.NewStore(t)
	svc := newService()
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.ConsumeOrderSlot(ctx, tx, "t1", "2026-10"))
	require.NoError(t, tx.Rollback())

	snap, err := svc.Snapshot(ctx, s, "t1", "2026-10")
	require.NoError(t, err)
	assert.Equal(t, int64(0), snap.OrdersUsed)
}

func TestConsumeOrderSlot_InvalidInput(t *testing.T) {
	s := testutil.NewStore(t)
	svc := newService()
	ctx := context.Background()

	assert.Error(t, svc.ConsumeOrderSlot(ctx, s, "t1", "2026-13"))

	err := svc.ConsumeOrderSlot(ctx, s, "missing", "2026-10")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.False(t, IsQuotaExceeded(err))
}

func TestSnapshot_DefaultsToCurrentPeriodInLocation(t *testing.T) {
	s := testutil.NewStore(t)
	jakarta, _ := time.LoadLocation("Asia/Jakarta")
	// 20:00 UTC on 31 Oct is already November in Jakarta.
	clock := testutil.NewDeterministicClock(time.Date(2026, 10, 31, 20, 0, 0, 0, time.UTC))
	svc := New(clock, jakarta)

	snap, err := svc.Snapshot(context.Background(), s, "t1", "")
	require.NoError(t, err)
	assert.Equal(t, "2026-11", snap.Period)
	assert.Equal(t, "2026-11", svc.CurrentPeriod())
}

func TestEnsureTenantWriteAccess(t *testing.T) {
	s := testutil.NewStore(t)
	svc := newService()
	ctx := context.Background()

	assert.NoError(t, svc.EnsureTenantWriteAccess(ctx, s, "t1"))

	err := svc.EnsureTenantWriteAccess(ctx, s, "t2")
	assert.True(t, IsWriteAccessDenied(err))
	assert.Contains(t, err.Error(), "SUBSCRIPTION_READ_ONLY")
}

func TestPeriodOf(t *testing.T) {
	ts := time.Date(2026, 1, 31, 18, 30, 0, 0, time.UTC)
	assert.Equal(t, "2026-01", PeriodOf(ts, time.UTC))
	jakarta, _ := time.LoadLocation("Asia/Jakarta")
	assert.Equal(t, "2026-02", PeriodOf(ts, jakarta))
}

func TestValidPeriod(t *testing.T) {
	assert.True(t, ValidPeriod("2026-10"))
	assert.False(t, ValidPeriod("2026-13"))
	assert.False(t, ValidPeriod("2026-1"))
	assert.False(t, ValidPeriod(""))
}
