package service

import (
	"context"
	"strings"
	"time"

	"github.com/revuo/revuo/internal/api/dto"
	"github.com/revuo/revuo/internal/domain/plan"
	ierr "github.com/revuo/revuo/internal/errors"
	stripeint "github.com/revuo/revuo/internal/integration/stripe"
	"github.com/revuo/revuo/internal/interfaces"
	"github.com/revuo/revuo/internal/types"
	"github.com/samber/lo"
)

type PlanService = interfaces.PlanService

type planService struct {
	ServiceParams
}

func NewPlanService(
	params ServiceParams,
) PlanService {
	return &planService{
		ServiceParams: params,
	}
}

// CreatePlan stores the plan and synchronizes it. A failed sync deletes the local record again
// so no plan exists without its processor counterpart.
func (s *planService) CreatePlan(ctx context.Context, req dto.CreatePlanRequest) (*dto.PlanResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	p := req.ToPlan(ctx)

	if err := s.PlanRepo.Create(ctx, p); err != nil {
		return nil, err
	}

	if !p.NeedsSync() {
		return &dto.PlanResponse{Plan: p}, nil
	}

	result, err := s.PlanSync.Sync(ctx, p)
	if err == nil {
		result.Apply(p)
		err = s.PlanRepo.Update(ctx, p)
	}
	if err != nil {
		s.rollbackCreate(ctx, p.Key, err)
		return nil, err
	}

	s.Logger.WithContext(ctx).Infow("plan created",
		"plan_key", p.Key,
		"product_id", lo.FromPtr(p.RemoteProductID),
		"price_id", lo.FromPtr(p.RemotePriceID))

	return &dto.PlanResponse{Plan: p}, nil
}

func (s *planService) rollbackCreate(ctx context.Context, key string, cause error) {
	log := s.Logger.WithContext(ctx)
	log.Warnw("plan synchronization failed, rolling back creation",
		"plan_key", key,
		"error", cause)
	if err := s.PlanRepo.Delete(ctx, key); err != nil {
		log.Errorw("failed to roll back plan creation",
			"plan_key", key,
			"error", err)
	}
}

func (s *planService) GetPlan(ctx context.Context, key string) (*dto.PlanResponse, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ierr.NewError("plan key is required").
			WithHint("Please provide a valid plan key").
			Mark(ierr.ErrValidation)
	}

	p, err := s.PlanRepo.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	return &dto.PlanResponse{Plan: p}, nil
}

func (s *planService) ListPlans(ctx context.Context, filter *types.PlanFilter) (*dto.ListPlansResponse, error) {
	if filter == nil {
		filter = types.NewPlanFilter()
	}
	if filter.QueryFilter == nil {
		filter.QueryFilter = types.NewNoLimitQueryFilter()
	}

	if err := filter.Validate(); err != nil {
		return nil, err
	}

	plans, err := s.PlanRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	count, err := s.PlanRepo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	return &dto.ListPlansResponse{
		Items: lo.Map(plans, func(p *plan.Plan, _ int) *dto.PlanResponse {
			return &dto.PlanResponse{Plan: p}
		}),
		Pagination: types.NewPaginationResponse(count, filter.GetLimit(), filter.GetOffset()),
	}, nil
}

// UpdatePlan stages the edit on a copy, validates it, synchronizes it and only then commits.
// A sync failure leaves the stored plan untouched.
func (s *planService) UpdatePlan(ctx context.Context, key string, req dto.UpdatePlanRequest) (*dto.PlanResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.PlanRepo.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	staged := existing.Copy()
	req.Apply(ctx, staged)
	staged.UpdatedAt = time.Now().UTC()

	if err := staged.Validate(); err != nil {
		return nil, err
	}

	deactivating := existing.Active && !staged.Active
	if deactivating {
		if err := s.ensureUnused(ctx, staged); err != nil {
			return nil, err
		}
	}

	var synced *stripeint.SyncResult
	if staged.NeedsSync() {
		synced, err = s.PlanSync.Sync(ctx, staged)
		if err != nil {
			s.Logger.WithContext(ctx).Warnw("plan synchronization failed, update not committed",
				"plan_key", key,
				"error", err)
			return nil, err
		}
		synced.Apply(staged)
	}

	if err := s.PlanRepo.Update(ctx, staged); err != nil {
		if synced != nil && synced.PriceCreated {
			s.Logger.WithContext(ctx).Warnw("plan update failed after sync, new price left unreferenced",
				"plan_key", key,
				"price_id", synced.PriceID,
				"error", err)
		}
		return nil, err
	}

	s.PlanSync.RetirePrevious(ctx, staged, synced)

	if deactivating {
		s.PlanSync.Archive(ctx, staged)
	}

	return &dto.PlanResponse{Plan: staged}, nil
}

// DeactivatePlan soft-deletes a plan. Plans still backing an active business are refused.
func (s *planService) DeactivatePlan(ctx context.Context, key string) error {
	p, err := s.PlanRepo.Get(ctx, key)
	if err != nil {
		return err
	}

	if p.IsTrial() {
		return ierr.NewError("trial plan cannot be deactivated").
			WithHint("The trial plan is built in").
			Mark(ierr.ErrInvalidOperation)
	}

	if !p.Active {
		return nil
	}

	if err := s.ensureUnused(ctx, p); err != nil {
		return err
	}

	p.Active = false
	p.UpdatedAt = time.Now().UTC()
	p.UpdatedBy = types.GetUserID(ctx)

	if err := s.PlanRepo.Update(ctx, p); err != nil {
		return err
	}

	s.PlanSync.Archive(ctx, p)

	s.Logger.WithContext(ctx).Infow("plan deactivated", "plan_key", key)
	return nil
}

func (s *planService) ensureUnused(ctx context.Context, p *plan.Plan) error {
	count, err := s.BusinessRepo.CountActiveByPlanKey(ctx, p.Key)
	if err != nil {
		return err
	}
	if count > 0 {
		return ierr.NewError("plan is in use").
			WithHintf("Plan %s still has %d active businesses", p.Key, count).
			WithReportableDetails(map[string]any{
				"plan_key":          p.Key,
				"active_businesses": count,
			}).
			Mark(ierr.ErrInvalidOperation)
	}
	return nil
}
