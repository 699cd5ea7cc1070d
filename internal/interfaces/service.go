package interfaces

import (
	"context"

	"github.com/revuo/revuo/internal/api/dto"
	"github.com/revuo/revuo/internal/types"
)

type PlanService interface {
	CreatePlan(ctx context.Context, req dto.CreatePlanRequest) (*dto.PlanResponse, error)
	GetPlan(ctx context.Context, key string) (*dto.PlanResponse, error)
	ListPlans(ctx context.Context, filter *types.PlanFilter) (*dto.ListPlansResponse, error)
	UpdatePlan(ctx context.Context, key string, req dto.UpdatePlanRequest) (*dto.PlanResponse, error)
	DeactivatePlan(ctx context.Context, key string) error
}

type BusinessService interface {
	CreateBusiness(ctx context.Context, req dto.CreateBusinessRequest) (*dto.BusinessResponse, error)
	GetBusiness(ctx context.Context, id string) (*dto.BusinessResponse, error)
}

type SubscriptionService interface {
	GetSubscription(ctx context.Context, businessID string, expandRemote bool) (*dto.SubscriptionResponse, error)
	StartSetup(ctx context.Context, businessID string, req dto.StartSetupRequest) (*dto.SetupResponse, error)
	ChangeSubscription(ctx context.Context, businessID string, req dto.ChangeSubscriptionRequest) (*dto.ChangeSubscriptionResponse, error)
	ApplyAction(ctx context.Context, businessID string, action types.SubscriptionAction, req dto.SubscriptionActionRequest) (*dto.SubscriptionActionResponse, error)
	ListActivity(ctx context.Context, businessID string, filter *types.QueryFilter) (*dto.ListActivityResponse, error)
}
