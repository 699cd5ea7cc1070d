package testutil

import (
	"context"
	"time"

	"github.com/revuo/revuo/internal/config"
	"github.com/revuo/revuo/internal/domain/business"
	"github.com/revuo/revuo/internal/domain/plan"
	"github.com/revuo/revuo/internal/logger"
	"github.com/revuo/revuo/internal/types"
	"github.com/samber/lo"
	"github.com/stretchr/testify/suite"
)

// Stores holds the in-memory repositories a test suite runs against.
type Stores struct {
	PlanRepo        *InMemoryPlanStore
	BusinessRepo    *InMemoryBusinessStore
	ActivityLogRepo *InMemoryActivityLogStore
}

// BaseServiceTestSuite provides a fresh context, logger, config, stores and fake processor for
// every test.
type BaseServiceTestSuite struct {
	suite.Suite
	ctx     context.Context
	logger  *logger.Logger
	config  *config.Configuration
	stores  Stores
	gateway *FakeGateway
}

func (s *BaseServiceTestSuite) SetupTest() {
	s.ctx = types.WithUserID(context.Background(), "test_user")
	s.logger = logger.NewNoopLogger()

	s.config = config.GetDefaultConfig()
	s.config.Stripe.SecretKey = "sk_test_fake"
	s.config.Stripe.WebhookSecret = "whsec_test_fake"
	s.config.Webhook.ProcessedEventTTL = time.Hour

	s.stores = Stores{
		PlanRepo:        NewInMemoryPlanStore(),
		BusinessRepo:    NewInMemoryBusinessStore(),
		ActivityLogRepo: NewInMemoryActivityLogStore(),
	}
	s.gateway = NewFakeGateway()
}

func (s *BaseServiceTestSuite) TearDownTest() {
	s.stores.PlanRepo.Clear()
	s.stores.BusinessRepo.Clear()
	s.stores.ActivityLogRepo.Clear()
}

func (s *BaseServiceTestSuite) GetContext() context.Context {
	return s.ctx
}

func (s *BaseServiceTestSuite) GetLogger() *logger.Logger {
	return s.logger
}

func (s *BaseServiceTestSuite) GetConfig() *config.Configuration {
	return s.config
}

func (s *BaseServiceTestSuite) GetStores() Stores {
	return s.stores
}

func (s *BaseServiceTestSuite) GetGateway() *FakeGateway {
	return s.gateway
}

// CreateBusiness stores a fresh business on the trial plan.
func (s *BaseServiceTestSuite) CreateBusiness(name string) *business.Business {
	b := business.New(s.ctx, name, name+"@example.com")
	s.Require().NoError(s.stores.BusinessRepo.Create(s.ctx, b))
	return b
}

// CreateSyncedPlan stores an active plan and registers matching product and price objects with
// the fake processor.
func (s *BaseServiceTestSuite) CreateSyncedPlan(key string) *plan.Plan {
	p := NewTestPlan(key)
	p.RemoteProductID = lo.ToPtr("prod_" + key)
	p.RemotePriceID = lo.ToPtr("price_" + key)

	s.gateway.SeedPlan(p)
	s.Require().NoError(s.stores.PlanRepo.Create(s.ctx, p))
	return p
}

// GetBusiness reloads a business from the store.
func (s *BaseServiceTestSuite) GetBusiness(id string) *business.Business {
	b, err := s.stores.BusinessRepo.Get(s.ctx, id)
	s.Require().NoError(err)
	return b
}

// ActivityTypes returns the audit trail of a business, oldest first.
func (s *BaseServiceTestSuite) ActivityTypes(businessID string) []types.ActivityType {
	return s.stores.ActivityLogRepo.TypesFor(s.ctx, businessID)
}
