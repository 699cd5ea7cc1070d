package testutil

import (
	"context"
	"testing"

	"github.com/revuo/revuo/internal/domain/plan"
	ierr "github.com/revuo/revuo/internal/errors"
	"github.com/revuo/revuo/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPlan(key string, active bool, order int) *plan.Plan {
	return &plan.Plan{
		Key:            key,
		Name:           key,
		RecurringPrice: decimal.RequireFromString("29.90"),
		Currency:       types.DefaultCurrency,
		Interval:       types.BillingIntervalMonth,
		Features:       []string{"qr"},
		Active:         active,
		DisplayOrder:   order,
		BaseModel:      types.GetDefaultBaseModel(context.Background()),
	}
}

func TestInMemoryPlanStore_Create(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryPlanStore()

	t.Run("successful creation", func(t *testing.T) {
		require.NoError(t, store.Create(ctx, testPlan("basic", true, 1)))

		got, err := store.Get(ctx, "basic")
		require.NoError(t, err)
		assert.Equal(t, "basic", got.Key)
		assert.True(t, got.RecurringPrice.Equal(decimal.RequireFromString("29.90")))
	})

	t.Run("nil plan", func(t *testing.T) {
		err := store.Create(ctx, nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "plan cannot be nil")
	})

	t.Run("duplicate key", func(t *testing.T) {
		err := store.Create(ctx, testPlan("basic", true, 1))
		assert.True(t, ierr.IsAlreadyExists(err))
	})
}

func TestInMemoryPlanStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryPlanStore()
	require.NoError(t, store.Create(ctx, testPlan("basic", true, 1)))

	got, err := store.Get(ctx, "basic")
	require.NoError(t, err)
	got.Features[0] = "mutated"
	got.RemotePriceID = lo.ToPtr("price_x")

	again, err := store.Get(ctx, "basic")
	require.NoError(t, err)
	assert.Equal(t, "qr", again.Features[0])
	assert.Nil(t, again.RemotePriceID)
}

func TestInMemoryPlanStore_ListAndLookup(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryPlanStore()

	pro := testPlan("pro", true, 2)
	pro.RemotePriceID = lo.ToPtr("price_pro")
	require.NoError(t, store.Create(ctx, pro))
	require.NoError(t, store.Create(ctx, testPlan("basic", true, 1)))
	require.NoError(t, store.Create(ctx, testPlan("legacy", false, 0)))

	all, err := store.List(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"legacy", "basic", "pro"}, lo.Map(all, func(p *plan.Plan, _ int) string { return p.Key }))

	filter := types.NewPlanFilter()
	filter.ActiveOnly = true
	active, err := store.List(ctx, filter)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	count, err := store.Count(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	byPrice, err := store.GetByRemotePriceID(ctx, "price_pro")
	require.NoError(t, err)
	assert.Equal(t, "pro", byPrice.Key)

	_, err = store.GetByRemotePriceID(ctx, "price_missing")
	assert.True(t, ierr.IsNotFound(err))
}

func TestInMemoryPlanStore_UpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryPlanStore()
	require.NoError(t, store.Create(ctx, testPlan("basic", true, 1)))

	p, err := store.Get(ctx, "basic")
	require.NoError(t, err)
	p.Name = "Basic"
	require.NoError(t, store.Update(ctx, p))

	p, err = store.Get(ctx, "basic")
	require.NoError(t, err)
	assert.Equal(t, "Basic", p.Name)

	require.NoError(t, store.Delete(ctx, "basic"))
	_, err = store.Get(ctx, "basic")
	assert.True(t, ierr.IsNotFound(err))

	assert.True(t, ierr.IsNotFound(store.Update(ctx, p)))
}

func TestInMemoryBusinessStore_UpdateSubscription(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryBusinessStore()

	b := newTestBusiness()
	require.NoError(t, store.Create(ctx, b))

	b.ApplyStatus(types.SubscriptionStatusActive)
	require.NoError(t, store.UpdateSubscription(ctx, b, 0))
	assert.Equal(t, int64(1), b.Revision)

	// a writer holding the old revision loses
	stale, err := store.Get(ctx, b.ID)
	require.NoError(t, err)
	stale.Revision = 0
	err = store.UpdateSubscription(ctx, stale, 0)
	assert.True(t, ierr.IsVersionConflict(err))

	count, err := store.CountActiveByPlanKey(ctx, types.TrialPlanKey)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
