package service

import (
	"testing"

	"github.com/revuo/revuo/internal/api/dto"
	"github.com/revuo/revuo/internal/domain/business"
	ierr "github.com/revuo/revuo/internal/errors"
	"github.com/revuo/revuo/internal/testutil"
	"github.com/revuo/revuo/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/stripe/stripe-go/v82"
)

type SubscriptionServiceSuite struct {
	testutil.BaseServiceTestSuite
	service  SubscriptionService
	business *business.Business
}

func TestSubscriptionService(t *testing.T) {
	suite.Run(t, new(SubscriptionServiceSuite))
}

func (s *SubscriptionServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.service = NewSubscriptionService(NewServiceParams(
		s.GetLogger(),
		s.GetConfig(),
		s.GetStores().PlanRepo,
		s.GetStores().BusinessRepo,
		s.GetStores().ActivityLogRepo,
		s.GetGateway(),
	))
	s.business = s.CreateBusiness("pizzeria")
}

// subscribe puts the business on planKey with a live processor subscription.
func (s *SubscriptionServiceSuite) subscribe(planKey string, status types.SubscriptionStatus) string {
	subscriptionID := "sub_" + planKey
	s.GetGateway().SeedSubscription(subscriptionID, "cus_1", "price_"+planKey, stripe.SubscriptionStatusActive,
		map[string]string{"business_id": s.business.ID, "plan_key": planKey})

	b := s.GetBusiness(s.business.ID)
	b.Subscription.PlanKey = planKey
	b.Subscription.RemoteSubscriptionID = lo.ToPtr(subscriptionID)
	b.Subscription.RemoteCustomerID = lo.ToPtr("cus_1")
	b.ApplyStatus(status)
	s.Require().NoError(s.GetStores().BusinessRepo.UpdateSubscription(s.GetContext(), b, b.Revision))
	return subscriptionID
}

func (s *SubscriptionServiceSuite) TestGetSubscription() {
	s.CreateSyncedPlan("basic")
	subscriptionID := s.subscribe("basic", types.SubscriptionStatusActive)
	s.GetGateway().AddInvoice(subscriptionID, &stripe.Invoice{
		ID:         "in_1",
		Status:     stripe.InvoiceStatusPaid,
		AmountDue:  2990,
		AmountPaid: 2990,
		Currency:   stripe.CurrencyEUR,
	})

	s.Run("Local only", func() {
		s.GetGateway().ResetCalls()
		resp, err := s.service.GetSubscription(s.GetContext(), s.business.ID, false)
		s.Require().NoError(err)
		s.True(resp.Active)
		s.Equal("basic", resp.Plan.Key)
		s.Nil(resp.Remote)
		s.Empty(s.GetGateway().Calls)
	})

	s.Run("Expanded with invoices", func() {
		resp, err := s.service.GetSubscription(s.GetContext(), s.business.ID, true)
		s.Require().NoError(err)
		s.Require().NotNil(resp.Remote)
		s.Equal(subscriptionID, resp.Remote.ID)
		s.Equal("price_basic", resp.Remote.PriceID)
		s.Require().Len(resp.Remote.Invoices, 1)
		s.True(decimal.RequireFromString("29.90").Equal(resp.Remote.Invoices[0].AmountPaid))
		s.Empty(resp.RemoteError)
	})

	s.Run("Processor failure degrades to local state", func() {
		s.GetGateway().FailOn("GetSubscription", "Service unavailable")
		defer s.GetGateway().ClearFailures()

		resp, err := s.service.GetSubscription(s.GetContext(), s.business.ID, true)
		s.Require().NoError(err)
		s.Nil(resp.Remote)
		s.Equal("Service unavailable", resp.RemoteError)
		s.Equal(types.SubscriptionStatusActive, resp.Subscription.Status)
	})
}

func (s *SubscriptionServiceSuite) TestGetSubscriptionUnknownBusiness() {
	_, err := s.service.GetSubscription(s.GetContext(), "biz_missing", false)
	s.True(ierr.IsNotFound(err))
}

func (s *SubscriptionServiceSuite) TestStartSetup() {
	s.CreateSyncedPlan("basic")

	resp, err := s.service.StartSetup(s.GetContext(), s.business.ID, dto.StartSetupRequest{
		UserEmail: "Owner@Pizzeria.test",
		UserName:  "Owner",
		PlanKey:   "basic",
	})
	s.Require().NoError(err)
	s.NotEmpty(resp.ClientSecret)
	s.Equal("basic", resp.PlanKey)
	s.Equal("price_basic", resp.PriceID)

	params := s.GetGateway().LastSetupIntentParams
	s.Require().NotNil(params)
	s.Equal(string(stripe.SetupIntentUsageOffSession), lo.FromPtr(params.Usage))
	s.Equal(s.business.ID, params.Metadata["business_id"])
	s.Equal("basic", params.Metadata["plan_key"])

	s.Equal([]types.ActivityType{types.ActivitySubscriptionRequested}, s.ActivityTypes(s.business.ID))

	// local state only changes once the processor confirms
	s.Equal(types.SubscriptionStatusInactive, s.GetBusiness(s.business.ID).Subscription.Status)
}

func (s *SubscriptionServiceSuite) TestStartSetupRejectsTrialPlan() {
	trial := testutil.NewTestPlan(types.TrialPlanKey)
	trial.RecurringPrice = decimal.Zero
	s.Require().NoError(s.GetStores().PlanRepo.Create(s.GetContext(), trial))

	_, err := s.service.StartSetup(s.GetContext(), s.business.ID, dto.StartSetupRequest{
		UserEmail: "owner@pizzeria.test",
	})
	s.Error(err)
	s.True(ierr.Is(err, ierr.ErrInvalidOperation))
	s.Zero(s.GetGateway().CallCount("CreateSetupIntent"))
}

func (s *SubscriptionServiceSuite) TestStartSetupValidatesEmail() {
	_, err := s.service.StartSetup(s.GetContext(), s.business.ID, dto.StartSetupRequest{
		UserEmail: "not-an-email",
		PlanKey:   "basic",
	})
	s.True(ierr.IsValidation(err))
	s.Empty(s.GetGateway().Calls)
}

func (s *SubscriptionServiceSuite) TestChangeWithoutSubscriptionRequiresSetup() {
	s.CreateSyncedPlan("pro")

	resp, err := s.service.ChangeSubscription(s.GetContext(), s.business.ID, dto.ChangeSubscriptionRequest{
		PlanKey: "pro",
	})
	s.Require().NoError(err)
	s.Equal(dto.ChangeSubscriptionActionSetupRequired, resp.Action)
	s.Require().NotNil(resp.Setup)
	s.Equal("pro", resp.Setup.PlanKey)

	customer := s.GetGateway().Customers[resp.Setup.CustomerID]
	s.Require().NotNil(customer)
	s.Equal(s.business.OwnerEmail, customer.Email)
}

func (s *SubscriptionServiceSuite) TestChangePlan() {
	s.CreateSyncedPlan("basic")
	s.CreateSyncedPlan("pro")
	subscriptionID := s.subscribe("basic", types.SubscriptionStatusActive)

	resp, err := s.service.ChangeSubscription(s.GetContext(), s.business.ID, dto.ChangeSubscriptionRequest{
		PlanKey: "pro",
	})
	s.Require().NoError(err)
	s.Equal(dto.ChangeSubscriptionActionPlanChanged, resp.Action)
	s.Equal(subscriptionID, resp.RemoteSubscriptionID)

	params := s.GetGateway().LastSubscriptionParams
	s.Equal("create_prorations", lo.FromPtr(params.ProrationBehavior))
	s.Equal("pro", params.Metadata["plan_key"])

	remote := s.GetGateway().Subscriptions[subscriptionID]
	s.Equal("price_pro", remote.Items.Data[0].Price.ID)

	// the cached plan follows on the webhook
	s.Equal("basic", s.GetBusiness(s.business.ID).Subscription.PlanKey)
}

func (s *SubscriptionServiceSuite) TestChangePlanRejections() {
	s.CreateSyncedPlan("basic")
	s.subscribe("basic", types.SubscriptionStatusActive)

	s.Run("Same plan", func() {
		_, err := s.service.ChangeSubscription(s.GetContext(), s.business.ID, dto.ChangeSubscriptionRequest{PlanKey: "basic"})
		s.True(ierr.Is(err, ierr.ErrInvalidOperation))
	})

	s.Run("Trial plan", func() {
		_, err := s.service.ChangeSubscription(s.GetContext(), s.business.ID, dto.ChangeSubscriptionRequest{PlanKey: types.TrialPlanKey})
		s.True(ierr.IsValidation(err))
	})

	s.Run("Inactive plan", func() {
		p := s.CreateSyncedPlan("legacy")
		p.Active = false
		s.Require().NoError(s.GetStores().PlanRepo.Update(s.GetContext(), p))

		_, err := s.service.ChangeSubscription(s.GetContext(), s.business.ID, dto.ChangeSubscriptionRequest{PlanKey: "legacy"})
		s.True(ierr.Is(err, ierr.ErrInvalidOperation))
	})

	s.Run("Unknown plan", func() {
		_, err := s.service.ChangeSubscription(s.GetContext(), s.business.ID, dto.ChangeSubscriptionRequest{PlanKey: "gold"})
		s.True(ierr.IsNotFound(err))
	})

	s.Zero(s.GetGateway().CallCount("UpdateSubscription"))
}

func (s *SubscriptionServiceSuite) TestApplyActions() {
	s.CreateSyncedPlan("basic")
	subscriptionID := s.subscribe("basic", types.SubscriptionStatusActive)
	remote := s.GetGateway().Subscriptions[subscriptionID]

	s.Run("Pause", func() {
		resp, err := s.service.ApplyAction(s.GetContext(), s.business.ID, types.SubscriptionActionPause, dto.SubscriptionActionRequest{})
		s.Require().NoError(err)
		s.Equal(subscriptionID, resp.RemoteSubscriptionID)
		s.Require().NotNil(remote.PauseCollection)
		s.Equal(stripe.SubscriptionPauseCollectionBehaviorVoid, remote.PauseCollection.Behavior)
	})

	s.Run("Resume clears the collection pause", func() {
		_, err := s.service.ApplyAction(s.GetContext(), s.business.ID, types.SubscriptionActionResume, dto.SubscriptionActionRequest{})
		s.Require().NoError(err)
		s.Nil(remote.PauseCollection)
		s.Zero(s.GetGateway().CallCount("ResumeSubscription"))
	})

	s.Run("Resume a processor-paused subscription", func() {
		remote.Status = stripe.SubscriptionStatusPaused
		resp, err := s.service.ApplyAction(s.GetContext(), s.business.ID, types.SubscriptionActionResume, dto.SubscriptionActionRequest{})
		s.Require().NoError(err)
		s.Equal(string(stripe.SubscriptionStatusActive), resp.RemoteStatus)
		s.Equal(1, s.GetGateway().CallCount("ResumeSubscription"))
	})

	s.Run("Cancel at period end", func() {
		_, err := s.service.ApplyAction(s.GetContext(), s.business.ID, types.SubscriptionActionCancel, dto.SubscriptionActionRequest{AtPeriodEnd: true})
		s.Require().NoError(err)
		s.True(remote.CancelAtPeriodEnd)
		s.Equal(stripe.SubscriptionStatusActive, remote.Status)
	})

	s.Run("Cancel now", func() {
		resp, err := s.service.ApplyAction(s.GetContext(), s.business.ID, types.SubscriptionActionCancel, dto.SubscriptionActionRequest{})
		s.Require().NoError(err)
		s.Equal(string(stripe.SubscriptionStatusCanceled), resp.RemoteStatus)
	})

	s.Len(s.ActivityTypes(s.business.ID), 5)
	s.Equal(types.SubscriptionStatusActive, s.GetBusiness(s.business.ID).Subscription.Status)
}

func (s *SubscriptionServiceSuite) TestApplyActionRejections() {
	s.Run("Unknown action", func() {
		_, err := s.service.ApplyAction(s.GetContext(), s.business.ID, types.SubscriptionAction("refund"), dto.SubscriptionActionRequest{})
		s.True(ierr.IsValidation(err))
	})

	s.Run("No remote subscription", func() {
		_, err := s.service.ApplyAction(s.GetContext(), s.business.ID, types.SubscriptionActionPause, dto.SubscriptionActionRequest{})
		s.True(ierr.Is(err, ierr.ErrInvalidOperation))
	})

	s.Run("Canceled subscription", func() {
		s.subscribe("basic", types.SubscriptionStatusCanceled)
		_, err := s.service.ApplyAction(s.GetContext(), s.business.ID, types.SubscriptionActionResume, dto.SubscriptionActionRequest{})
		s.True(ierr.Is(err, ierr.ErrInvalidOperation))
	})

	s.Zero(s.GetGateway().CallCount("UpdateSubscription"))
}

func (s *SubscriptionServiceSuite) TestListActivity() {
	s.CreateSyncedPlan("basic")
	for range 3 {
		_, err := s.service.StartSetup(s.GetContext(), s.business.ID, dto.StartSetupRequest{
			UserEmail: "owner@pizzeria.test",
			PlanKey:   "basic",
		})
		s.Require().NoError(err)
	}

	filter := types.NewDefaultQueryFilter()
	filter.Limit = lo.ToPtr(2)
	resp, err := s.service.ListActivity(s.GetContext(), s.business.ID, filter)
	s.Require().NoError(err)
	s.Len(resp.Items, 2)
	s.Equal(types.ActivitySubscriptionRequested, resp.Items[0].Type)
	s.Equal(3, resp.Pagination.Total)
	s.Equal(2, resp.Pagination.Limit)

	filter.Offset = lo.ToPtr(2)
	resp, err = s.service.ListActivity(s.GetContext(), s.business.ID, filter)
	s.Require().NoError(err)
	s.Len(resp.Items, 1)
	s.Equal(3, resp.Pagination.Total)

	_, err = s.service.ListActivity(s.GetContext(), "biz_missing", nil)
	s.True(ierr.IsNotFound(err))
}
