package testutil

import (
	"context"

	"github.com/revuo/revuo/internal/domain/plan"
	ierr "github.com/revuo/revuo/internal/errors"
	"github.com/revuo/revuo/internal/types"
	"github.com/samber/lo"
)

// InMemoryPlanStore implements plan.Repository
type InMemoryPlanStore struct {
	*InMemoryStore[*plan.Plan]
	// UpdateErr, when set, is returned by every Update call.
	UpdateErr error
}

// NewInMemoryPlanStore creates a new in-memory plan store
func NewInMemoryPlanStore() *InMemoryPlanStore {
	return &InMemoryPlanStore{
		InMemoryStore: NewInMemoryStore[*plan.Plan](),
	}
}

func (s *InMemoryPlanStore) Create(ctx context.Context, p *plan.Plan) error {
	if p == nil {
		return ierr.NewError("plan cannot be nil").
			WithHint("Plan cannot be nil").
			Mark(ierr.ErrValidation)
	}

	if err := s.InMemoryStore.Create(ctx, p.Key, p.Copy()); err != nil {
		if ierr.IsAlreadyExists(err) {
			return ierr.WithError(err).
				WithHintf("A plan with key %s already exists", p.Key).
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithHint("Failed to create plan").
			WithReportableDetails(map[string]interface{}{
				"key": p.Key,
			}).
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (s *InMemoryPlanStore) Get(ctx context.Context, key string) (*plan.Plan, error) {
	p, err := s.InMemoryStore.Get(ctx, key)
	if err != nil {
		return nil, ierr.NewError("plan not found").
			WithHintf("Plan %s not found", key).
			WithReportableDetails(map[string]interface{}{
				"key": key,
			}).
			Mark(ierr.ErrNotFound)
	}
	return p.Copy(), nil
}

func (s *InMemoryPlanStore) GetByRemotePriceID(ctx context.Context, priceID string) (*plan.Plan, error) {
	plans, err := s.InMemoryStore.List(ctx, nil, func(_ context.Context, p *plan.Plan, _ interface{}) bool {
		return priceID != "" && lo.FromPtr(p.RemotePriceID) == priceID
	}, planSortFn)
	if err != nil {
		return nil, err
	}
	if len(plans) == 0 {
		return nil, ierr.NewError("plan not found").
			WithHint("No plan uses this price").
			WithReportableDetails(map[string]interface{}{
				"price_id": priceID,
			}).
			Mark(ierr.ErrNotFound)
	}
	return plans[0].Copy(), nil
}

func (s *InMemoryPlanStore) List(ctx context.Context, filter *types.PlanFilter) ([]*plan.Plan, error) {
	if filter == nil {
		filter = types.NewPlanFilter()
	}

	plans, err := s.InMemoryStore.List(ctx, filter, planFilterFn, planSortFn)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list plans").
			Mark(ierr.ErrDatabase)
	}

	plans = paginate(plans, filter.GetLimit(), filter.GetOffset())
	return lo.Map(plans, func(p *plan.Plan, _ int) *plan.Plan { return p.Copy() }), nil
}

func (s *InMemoryPlanStore) Count(ctx context.Context, filter *types.PlanFilter) (int, error) {
	if filter == nil {
		filter = types.NewPlanFilter()
	}
	return s.InMemoryStore.Count(ctx, filter, planFilterFn)
}

func (s *InMemoryPlanStore) Update(ctx context.Context, p *plan.Plan) error {
	if p == nil {
		return ierr.NewError("plan cannot be nil").
			WithHint("Plan cannot be nil").
			Mark(ierr.ErrValidation)
	}
	if s.UpdateErr != nil {
		return s.UpdateErr
	}

	if err := s.InMemoryStore.Update(ctx, p.Key, p.Copy()); err != nil {
		return ierr.WithError(err).
			WithHintf("Plan %s not found", p.Key).
			Mark(ierr.ErrNotFound)
	}
	return nil
}

func (s *InMemoryPlanStore) Delete(ctx context.Context, key string) error {
	if err := s.InMemoryStore.Delete(ctx, key); err != nil {
		return ierr.WithError(err).
			WithHintf("Plan %s not found", key).
			Mark(ierr.ErrNotFound)
	}
	return nil
}

// planFilterFn implements filtering logic for plans
func planFilterFn(_ context.Context, p *plan.Plan, filter interface{}) bool {
	if p == nil {
		return false
	}

	f, ok := filter.(*types.PlanFilter)
	if !ok || f == nil {
		return true
	}

	if f.ActiveOnly && !p.Active {
		return false
	}

	if len(f.PlanKeys) > 0 && !lo.Contains(f.PlanKeys, p.Key) {
		return false
	}

	return true
}

// planSortFn orders plans by display order, then key.
func planSortFn(i, j *plan.Plan) bool {
	if i.DisplayOrder != j.DisplayOrder {
		return i.DisplayOrder < j.DisplayOrder
	}
	return i.Key < j.Key
}
