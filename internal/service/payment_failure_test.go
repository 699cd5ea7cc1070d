package service

import (
	"testing"
	"time"

	"github.com/revuo/revuo/internal/integration/stripe/webhook"
	"github.com/revuo/revuo/internal/testutil"
	"github.com/revuo/revuo/internal/types"
	"github.com/stretchr/testify/suite"
)

type PaymentFailureSuite struct {
	testutil.BaseServiceTestSuite
	escalator  *PaymentFailureEscalator
	businessID string
	base       time.Time
}

func TestPaymentFailureEscalator(t *testing.T) {
	suite.Run(t, new(PaymentFailureSuite))
}

func (s *PaymentFailureSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.escalator = NewPaymentFailureEscalator(s.newParams())
	s.businessID = s.CreateBusiness("bistro").ID
	s.base = time.Now().Add(-time.Hour).Truncate(time.Second)
}

func (s *PaymentFailureSuite) newParams() ServiceParams {
	return NewServiceParams(
		s.GetLogger(),
		s.GetConfig(),
		s.GetStores().PlanRepo,
		s.GetStores().BusinessRepo,
		s.GetStores().ActivityLogRepo,
		s.GetGateway(),
	)
}

func (s *PaymentFailureSuite) attempt(n int, amount int64) PaymentAttempt {
	return PaymentAttempt{
		BusinessID: s.businessID,
		InvoiceID:  "in_1",
		Amount:     amount,
		Currency:   "eur",
		Event: &webhook.Event{
			ID:      "evt_" + string(rune('a'+n)),
			Kind:    webhook.EventKindInvoicePaymentFailed,
			Created: s.base.Add(time.Duration(n) * time.Minute),
		},
	}
}

func (s *PaymentFailureSuite) activate() {
	b := s.GetBusiness(s.businessID)
	b.ApplyStatus(types.SubscriptionStatusActive)
	s.Require().NoError(s.GetStores().BusinessRepo.UpdateSubscription(s.GetContext(), b, b.Revision))
}

func (s *PaymentFailureSuite) TestFailuresBelowThresholdKeepStatus() {
	s.activate()

	s.Require().NoError(s.escalator.OnFailure(s.GetContext(), s.attempt(1, 4990)))
	s.Require().NoError(s.escalator.OnFailure(s.GetContext(), s.attempt(2, 4990)))

	b := s.GetBusiness(s.businessID)
	s.Equal(2, b.Subscription.PaymentFailures)
	s.Equal(types.SubscriptionStatusActive, b.Subscription.Status)
	s.True(b.Active)
	s.NotNil(b.Subscription.LastPaymentAttempt)
	s.Equal([]types.ActivityType{types.ActivityPaymentFailed, types.ActivityPaymentFailed}, s.ActivityTypes(s.businessID))
}

func (s *PaymentFailureSuite) TestThresholdSuspends() {
	s.activate()

	for i := 1; i <= 3; i++ {
		s.Require().NoError(s.escalator.OnFailure(s.GetContext(), s.attempt(i, 4990)))
	}

	b := s.GetBusiness(s.businessID)
	s.Equal(3, b.Subscription.PaymentFailures)
	s.Equal(types.SubscriptionStatusSuspended, b.Subscription.Status)
	s.False(b.Active)
	s.Contains(s.ActivityTypes(s.businessID), types.ActivityBusinessSuspended)
}

func (s *PaymentFailureSuite) TestConfiguredThreshold() {
	s.GetConfig().Billing.MaxPaymentFailures = 1
	s.escalator = NewPaymentFailureEscalator(s.newParams())
	s.activate()

	s.Require().NoError(s.escalator.OnFailure(s.GetContext(), s.attempt(1, 4990)))

	s.Equal(types.SubscriptionStatusSuspended, s.GetBusiness(s.businessID).Subscription.Status)
}

func (s *PaymentFailureSuite) TestSuccessResetsAfterFailures() {
	s.activate()
	for i := 1; i <= 3; i++ {
		s.Require().NoError(s.escalator.OnFailure(s.GetContext(), s.attempt(i, 4990)))
	}

	periodEnd := s.base.AddDate(0, 1, 0).UTC()
	success := s.attempt(4, 4990)
	success.PeriodEnd = &periodEnd
	success.Event.Kind = webhook.EventKindInvoicePaid
	s.Require().NoError(s.escalator.OnSuccess(s.GetContext(), success))

	b := s.GetBusiness(s.businessID)
	s.Zero(b.Subscription.PaymentFailures)
	s.Equal(types.SubscriptionStatusActive, b.Subscription.Status)
	s.True(b.Active)
	s.Equal(periodEnd, *b.Subscription.CurrentPeriodEnd)
}

func (s *PaymentFailureSuite) TestOutOfOrderFailuresAreCounted() {
	s.activate()

	for _, n := range []int{5, 2, 7} {
		s.Require().NoError(s.escalator.OnFailure(s.GetContext(), s.attempt(n, 4990)))
	}

	b := s.GetBusiness(s.businessID)
	s.Equal(3, b.Subscription.PaymentFailures)
	s.Equal(types.SubscriptionStatusSuspended, b.Subscription.Status)
}

func (s *PaymentFailureSuite) TestFailureBeforeSuccessIsNotCounted() {
	s.activate()

	success := s.attempt(5, 4990)
	success.Event.Kind = webhook.EventKindInvoicePaid
	s.Require().NoError(s.escalator.OnSuccess(s.GetContext(), success))
	s.Require().NoError(s.escalator.OnFailure(s.GetContext(), s.attempt(2, 4990)))

	b := s.GetBusiness(s.businessID)
	s.Zero(b.Subscription.PaymentFailures)
	s.Require().NotNil(b.Subscription.LastPaymentSuccessAt)
	s.WithinDuration(success.Event.Created, *b.Subscription.LastPaymentSuccessAt, 0)
	s.Equal([]types.ActivityType{types.ActivityPaymentSucceeded}, s.ActivityTypes(s.businessID))

	// a failure reported after the success starts a new run
	s.Require().NoError(s.escalator.OnFailure(s.GetContext(), s.attempt(6, 4990)))
	s.Equal(1, s.GetBusiness(s.businessID).Subscription.PaymentFailures)
}

func (s *PaymentFailureSuite) TestUnknownBusinessIsIgnored() {
	attempt := s.attempt(1, 4990)
	attempt.BusinessID = "biz_missing"

	s.NoError(s.escalator.OnFailure(s.GetContext(), attempt))
	s.NoError(s.escalator.OnSuccess(s.GetContext(), attempt))
	s.Empty(s.ActivityTypes("biz_missing"))
}
