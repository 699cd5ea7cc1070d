package service

import (
	"github.com/revuo/revuo/internal/config"
	"github.com/revuo/revuo/internal/domain/activitylog"
	"github.com/revuo/revuo/internal/domain/business"
	"github.com/revuo/revuo/internal/domain/plan"
	stripeint "github.com/revuo/revuo/internal/integration/stripe"
	"github.com/revuo/revuo/internal/logger"
)

// ServiceParams holds every dependency a service may need. Services embed it.
type ServiceParams struct {
	Logger *logger.Logger
	Config *config.Configuration

	PlanRepo        plan.Repository
	BusinessRepo    business.Repository
	ActivityLogRepo activitylog.Repository

	Gateway   stripeint.Gateway
	PlanSync  *stripeint.PlanSynchronizer
	Customers *stripeint.CustomerResolver
	Setup     *stripeint.SetupInitiator
}

func NewServiceParams(
	logger *logger.Logger,
	config *config.Configuration,
	planRepo plan.Repository,
	businessRepo business.Repository,
	activityLogRepo activitylog.Repository,
	gateway stripeint.Gateway,
) ServiceParams {
	customers := stripeint.NewCustomerResolver(gateway, logger)
	return ServiceParams{
		Logger:          logger,
		Config:          config,
		PlanRepo:        planRepo,
		BusinessRepo:    businessRepo,
		ActivityLogRepo: activityLogRepo,
		Gateway:         gateway,
		PlanSync:        stripeint.NewPlanSynchronizer(gateway, logger),
		Customers:       customers,
		Setup:           stripeint.NewSetupInitiator(gateway, customers, planRepo, logger),
	}
}
