package service

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/revuo/revuo/internal/domain/business"
	"github.com/revuo/revuo/internal/idempotency"
	"github.com/revuo/revuo/internal/integration/stripe/webhook"
	"github.com/revuo/revuo/internal/testutil"
	"github.com/revuo/revuo/internal/types"
	"github.com/samber/lo"
	"github.com/stretchr/testify/suite"
	"github.com/stripe/stripe-go/v82"
)

type ReconcilerSuite struct {
	testutil.BaseServiceTestSuite
	params     ServiceParams
	reconciler *SubscriptionReconciler
	dispatcher *webhook.Dispatcher
	business   *business.Business
	base       time.Time
	seq        int
}

func TestSubscriptionReconciler(t *testing.T) {
	suite.Run(t, new(ReconcilerSuite))
}

func (s *ReconcilerSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.params = NewServiceParams(
		s.GetLogger(),
		s.GetConfig(),
		s.GetStores().PlanRepo,
		s.GetStores().BusinessRepo,
		s.GetStores().ActivityLogRepo,
		s.GetGateway(),
	)
	s.reconciler = NewSubscriptionReconciler(s.params, NewPaymentFailureEscalator(s.params))
	s.dispatcher = webhook.NewDispatcher(s.GetConfig(), s.reconciler, idempotency.NewInMemoryStore(time.Hour), s.GetLogger())

	s.business = s.CreateBusiness("osteria")
	s.base = time.Now().Add(-time.Hour).Truncate(time.Second)
	s.seq = 0
}

// deliver dispatches a processor event created offset after the suite's base time.
func (s *ReconcilerSuite) deliver(eventType stripe.EventType, offset time.Duration, object map[string]any) webhook.Outcome {
	s.seq++
	return s.deliverWithID(fmt.Sprintf("evt_%03d", s.seq), eventType, offset, object)
}

func (s *ReconcilerSuite) deliverWithID(id string, eventType stripe.EventType, offset time.Duration, object map[string]any) webhook.Outcome {
	data, err := json.Marshal(object)
	s.Require().NoError(err)
	return s.dispatcher.Dispatch(s.GetContext(), stripe.Event{
		ID:      id,
		Type:    eventType,
		Created: s.base.Add(offset).Unix(),
		Data:    &stripe.EventData{Raw: data},
	})
}

func (s *ReconcilerSuite) subscriptionObject(id, status string, metadata map[string]string) map[string]any {
	return map[string]any{
		"id":                   id,
		"object":               "subscription",
		"customer":             "cus_1",
		"status":               status,
		"metadata":             metadata,
		"cancel_at_period_end": false,
		"items": map[string]any{
			"data": []map[string]any{
				{
					"id":                 "si_" + id,
					"price":              map[string]any{"id": "price_basic"},
					"current_period_end": s.base.AddDate(0, 1, 0).Unix(),
				},
			},
		},
	}
}

func (s *ReconcilerSuite) invoiceObject(amountPaid int64) map[string]any {
	return map[string]any{
		"id":          "in_1",
		"object":      "invoice",
		"amount_due":  4990,
		"amount_paid": amountPaid,
		"currency":    "eur",
		"parent": map[string]any{
			"subscription_details": map[string]any{
				"subscription": "sub_1",
				"metadata":     map[string]string{"business_id": s.business.ID},
			},
		},
		"lines": map[string]any{
			"data": []map[string]any{
				{"period": map[string]any{"start": s.base.Unix(), "end": s.base.AddDate(0, 1, 0).Unix()}},
			},
		},
	}
}

func (s *ReconcilerSuite) meta() map[string]string {
	return map[string]string{"business_id": s.business.ID, "plan_key": "basic"}
}

func (s *ReconcilerSuite) reload() *business.Business {
	return s.GetBusiness(s.business.ID)
}

func (s *ReconcilerSuite) TestSubscriptionCreatedActivatesBusiness() {
	outcome := s.deliver("customer.subscription.created", 0, s.subscriptionObject("sub_1", "active", s.meta()))
	s.Equal(webhook.OutcomeHandled, outcome)

	b := s.reload()
	s.True(b.Active)
	s.Equal(types.SubscriptionStatusActive, b.Subscription.Status)
	s.Equal("basic", b.Subscription.PlanKey)
	s.Equal("sub_1", lo.FromPtr(b.Subscription.RemoteSubscriptionID))
	s.Equal("cus_1", lo.FromPtr(b.Subscription.RemoteCustomerID))
	s.Equal("price_basic", lo.FromPtr(b.Subscription.RemotePriceID))
	s.Require().NotNil(b.Subscription.CurrentPeriodEnd)
	s.Equal(s.base.AddDate(0, 1, 0).Unix(), b.Subscription.CurrentPeriodEnd.Unix())
	s.Equal([]types.ActivityType{types.ActivitySubscriptionCreated}, s.ActivityTypes(b.ID))
}

func (s *ReconcilerSuite) TestPlanKeyResolvedFromPrice() {
	s.CreateSyncedPlan("basic")

	s.deliver("customer.subscription.created", 0, s.subscriptionObject("sub_1", "trialing",
		map[string]string{"business_id": s.business.ID}))

	b := s.reload()
	s.Equal("basic", b.Subscription.PlanKey)
	s.Equal(types.SubscriptionStatusTrialing, b.Subscription.Status)
	s.True(b.Active)
}

func (s *ReconcilerSuite) TestUnknownPriceKeepsCurrentPlan() {
	s.deliver("customer.subscription.created", 0, s.subscriptionObject("sub_1", "active",
		map[string]string{"business_id": s.business.ID}))

	s.Equal(types.TrialPlanKey, s.reload().Subscription.PlanKey)
}

func (s *ReconcilerSuite) TestProcessorStatusMapping() {
	cases := map[string]types.SubscriptionStatus{
		"active":             types.SubscriptionStatusActive,
		"trialing":           types.SubscriptionStatusTrialing,
		"past_due":           types.SubscriptionStatusPastDue,
		"canceled":           types.SubscriptionStatusCanceled,
		"unpaid":             types.SubscriptionStatusSuspended,
		"paused":             types.SubscriptionStatusSuspended,
		"incomplete":         types.SubscriptionStatusInactive,
		"incomplete_expired": types.SubscriptionStatusInactive,
	}
	for remote, local := range cases {
		got, ok := MapProcessorStatus(remote)
		s.True(ok, remote)
		s.Equal(local, got, remote)
	}

	_, ok := MapProcessorStatus("mystery")
	s.False(ok)
}

func (s *ReconcilerSuite) TestRedeliveredUpdateIsIdempotent() {
	evt := s.subscriptionObject("sub_1", "past_due", s.meta())

	s.Equal(webhook.OutcomeHandled, s.deliverWithID("evt_same", "customer.subscription.updated", 0, evt))
	once := s.reload()

	s.Equal(webhook.OutcomeDuplicate, s.deliverWithID("evt_same", "customer.subscription.updated", 0, evt))
	s.Equal(once, s.reload())
}

func (s *ReconcilerSuite) TestUpsertHandlerIsSafeToRunTwice() {
	raw := s.subscriptionObject("sub_1", "active", s.meta())
	data, err := json.Marshal(raw)
	s.Require().NoError(err)
	var payload webhook.SubscriptionPayload
	s.Require().NoError(json.Unmarshal(data, &payload))

	evt := &webhook.Event{ID: "evt_1", Kind: webhook.EventKindSubscriptionUpdated, Created: s.base}

	s.Require().NoError(s.reconciler.HandleSubscriptionUpserted(s.GetContext(), evt, &payload))
	first := s.reload()
	s.Require().NoError(s.reconciler.HandleSubscriptionUpserted(s.GetContext(), evt, &payload))
	second := s.reload()

	s.Equal(first.Subscription, second.Subscription)
	s.Equal(first.Active, second.Active)
}

func (s *ReconcilerSuite) TestUpdatedActiveResetsFailureCounter() {
	s.deliver("invoice.payment_failed", 0, s.invoiceObject(0))
	s.deliver("invoice.payment_failed", time.Minute, s.invoiceObject(0))
	s.Equal(2, s.reload().Subscription.PaymentFailures)

	s.deliver("customer.subscription.updated", 2*time.Minute, s.subscriptionObject("sub_1", "active", s.meta()))
	b := s.reload()
	s.Zero(b.Subscription.PaymentFailures)
	s.True(b.Active)
}

func (s *ReconcilerSuite) TestMissingBusinessIDHasNoEffect() {
	before := s.reload()

	outcomes := []webhook.Outcome{
		s.deliver("customer.subscription.updated", 0, s.subscriptionObject("sub_1", "active", nil)),
		s.deliver("customer.subscription.deleted", 0, s.subscriptionObject("sub_1", "canceled", map[string]string{})),
		s.deliver("invoice.payment_failed", 0, map[string]any{"id": "in_9", "object": "invoice"}),
		s.deliver("charge.dispute.created", 0, map[string]any{"id": "dp_1", "object": "dispute"}),
		s.deliver("checkout.session.completed", 0, map[string]any{
			"id":                  "cs_1",
			"object":              "checkout.session",
			"client_reference_id": s.business.ID,
			"subscription":        "sub_1",
		}),
	}
	for _, outcome := range outcomes {
		s.Equal(webhook.OutcomeHandled, outcome)
	}

	s.Equal(before, s.reload())
	s.Empty(s.ActivityTypes(s.business.ID))
	s.Zero(s.GetGateway().CallCount("GetSubscription"))
}

func (s *ReconcilerSuite) TestStaleEventIsSkipped() {
	s.deliver("customer.subscription.updated", 10*time.Minute, s.subscriptionObject("sub_1", "active", s.meta()))
	s.deliver("customer.subscription.updated", 5*time.Minute, s.subscriptionObject("sub_1", "past_due", s.meta()))

	b := s.reload()
	s.Equal(types.SubscriptionStatusActive, b.Subscription.Status)
	s.Equal(s.base.Add(10*time.Minute).Unix(), b.Subscription.LastEventAt.Unix())
}

func (s *ReconcilerSuite) TestVersionConflictIsRetried() {
	s.GetStores().BusinessRepo.ConflictsToInject = 2

	s.Equal(webhook.OutcomeHandled,
		s.deliver("customer.subscription.created", 0, s.subscriptionObject("sub_1", "active", s.meta())))

	b := s.reload()
	s.True(b.Active)
	// two injected bumps plus the successful write
	s.Equal(int64(3), b.Revision)
}

func (s *ReconcilerSuite) TestLifecycleTransitions() {
	s.deliver("customer.subscription.created", 0, s.subscriptionObject("sub_1", "active", s.meta()))

	s.deliver("customer.subscription.paused", time.Minute, s.subscriptionObject("sub_1", "paused", s.meta()))
	b := s.reload()
	s.Equal(types.SubscriptionStatusSuspended, b.Subscription.Status)
	s.False(b.Active)

	s.deliver("invoice.payment_failed", 2*time.Minute, s.invoiceObject(0))
	s.deliver("customer.subscription.resumed", 3*time.Minute, s.subscriptionObject("sub_1", "active", s.meta()))
	b = s.reload()
	s.Equal(types.SubscriptionStatusActive, b.Subscription.Status)
	s.True(b.Active)
	s.Zero(b.Subscription.PaymentFailures)

	s.deliver("customer.subscription.deleted", 4*time.Minute, s.subscriptionObject("sub_1", "canceled", s.meta()))
	b = s.reload()
	s.Equal(types.SubscriptionStatusCanceled, b.Subscription.Status)
	s.False(b.Active)
}

func (s *ReconcilerSuite) TestCollectionPauseSuspends() {
	obj := s.subscriptionObject("sub_1", "active", s.meta())
	obj["pause_collection"] = map[string]any{"behavior": "void"}

	s.deliver("customer.subscription.updated", 0, obj)

	b := s.reload()
	s.Equal(types.SubscriptionStatusSuspended, b.Subscription.Status)
	s.False(b.Active)
}

func (s *ReconcilerSuite) TestEventsForSupersededSubscriptionAreIgnored() {
	s.deliver("customer.subscription.created", 0, s.subscriptionObject("sub_new", "active", s.meta()))

	s.deliver("customer.subscription.deleted", time.Minute, s.subscriptionObject("sub_old", "canceled", s.meta()))
	s.deliver("customer.subscription.updated", 2*time.Minute, s.subscriptionObject("sub_old", "past_due", s.meta()))

	b := s.reload()
	s.Equal("sub_new", lo.FromPtr(b.Subscription.RemoteSubscriptionID))
	s.Equal(types.SubscriptionStatusActive, b.Subscription.Status)
}

func (s *ReconcilerSuite) TestTrialEndingIsAuditOnly() {
	before := s.reload()

	obj := s.subscriptionObject("sub_1", "trialing", s.meta())
	obj["trial_end"] = s.base.Add(72 * time.Hour).Unix()
	s.deliver("customer.subscription.trial_will_end", 0, obj)

	s.Equal(before, s.reload())
	s.Equal([]types.ActivityType{types.ActivityTrialEnding}, s.ActivityTypes(s.business.ID))
}

func (s *ReconcilerSuite) TestAuditOnlyEvents() {
	s.deliver("invoice.upcoming", 0, s.invoiceObject(0))
	s.deliver("payment_intent.succeeded", 0, map[string]any{
		"id": "pi_1", "object": "payment_intent", "amount": 1500, "currency": "eur",
		"metadata": map[string]string{"business_id": s.business.ID},
	})
	s.deliver("payment_method.attached", 0, map[string]any{
		"id": "pm_1", "object": "payment_method",
		"metadata": map[string]string{"business_id": s.business.ID},
	})

	s.Equal(types.SubscriptionStatusInactive, s.reload().Subscription.Status)
	s.Equal([]types.ActivityType{
		types.ActivityInvoiceUpcoming,
		types.ActivityPaymentSucceeded,
		types.ActivityPaymentMethodChanged,
	}, s.ActivityTypes(s.business.ID))
}

func (s *ReconcilerSuite) TestInvoicePaidActivates() {
	s.deliver("invoice.payment_failed", 0, s.invoiceObject(0))

	s.deliver("invoice.paid", time.Minute, s.invoiceObject(4990))

	b := s.reload()
	s.True(b.Active)
	s.Equal(types.SubscriptionStatusActive, b.Subscription.Status)
	s.Zero(b.Subscription.PaymentFailures)
	s.Require().NotNil(b.Subscription.CurrentPeriodEnd)
	s.Equal(s.base.AddDate(0, 1, 0).Unix(), b.Subscription.CurrentPeriodEnd.Unix())
}

func (s *ReconcilerSuite) TestZeroInvoiceKeepsTrial() {
	s.deliver("customer.subscription.created", 0, s.subscriptionObject("sub_1", "trialing", s.meta()))
	s.deliver("invoice.paid", time.Minute, s.invoiceObject(0))

	b := s.reload()
	s.Equal(types.SubscriptionStatusTrialing, b.Subscription.Status)
	s.True(b.Active)
}

func (s *ReconcilerSuite) TestDisputeSuspendsImmediately() {
	s.deliver("customer.subscription.created", 0, s.subscriptionObject("sub_1", "active", s.meta()))
	s.Zero(s.reload().Subscription.PaymentFailures)

	s.deliver("charge.dispute.created", time.Minute, map[string]any{
		"id": "dp_1", "object": "dispute", "amount": 4990, "currency": "eur", "reason": "fraudulent",
		"metadata": map[string]string{"business_id": s.business.ID},
	})

	b := s.reload()
	s.Equal(types.SubscriptionStatusSuspended, b.Subscription.Status)
	s.False(b.Active)
	s.Contains(s.ActivityTypes(b.ID), types.ActivityDisputeCreated)
	s.Contains(s.ActivityTypes(b.ID), types.ActivityBusinessSuspended)
}

func (s *ReconcilerSuite) TestLateDisputeStillSuspends() {
	s.deliver("customer.subscription.updated", 10*time.Minute, s.subscriptionObject("sub_1", "active", s.meta()))

	s.Equal(webhook.OutcomeHandled, s.deliver("charge.dispute.created", 5*time.Minute, map[string]any{
		"id": "dp_1", "object": "dispute", "amount": 4990, "currency": "eur", "reason": "fraudulent",
		"metadata": map[string]string{"business_id": s.business.ID},
	}))

	b := s.reload()
	s.Equal(types.SubscriptionStatusSuspended, b.Subscription.Status)
	s.False(b.Active)
	s.Contains(s.ActivityTypes(b.ID), types.ActivityBusinessSuspended)
}

func (s *ReconcilerSuite) TestOutOfOrderPaymentFailuresEscalate() {
	s.deliver("customer.subscription.created", 0, s.subscriptionObject("sub_1", "active", s.meta()))

	s.deliver("invoice.payment_failed", 30*time.Minute, s.invoiceObject(0))
	s.deliver("invoice.payment_failed", 10*time.Minute, s.invoiceObject(0))
	s.deliver("invoice.payment_failed", 40*time.Minute, s.invoiceObject(0))

	b := s.reload()
	s.Equal(3, b.Subscription.PaymentFailures)
	s.Equal(types.SubscriptionStatusSuspended, b.Subscription.Status)
	s.False(b.Active)
}

func (s *ReconcilerSuite) TestFailureSettledByLaterPaymentIsSkipped() {
	s.deliver("customer.subscription.created", 0, s.subscriptionObject("sub_1", "active", s.meta()))
	s.deliver("invoice.paid", 20*time.Minute, s.invoiceObject(4990))

	s.Equal(webhook.OutcomeHandled, s.deliver("invoice.payment_failed", 10*time.Minute, s.invoiceObject(0)))

	b := s.reload()
	s.Zero(b.Subscription.PaymentFailures)
	s.True(b.Active)
	s.NotContains(s.ActivityTypes(b.ID), types.ActivityPaymentFailed)
}

func (s *ReconcilerSuite) TestSetupSucceededCreatesSubscription() {
	p := s.CreateSyncedPlan("basic")
	p.TrialDays = 14
	s.Require().NoError(s.GetStores().PlanRepo.Update(s.GetContext(), p))

	intent := map[string]any{
		"id":             "seti_1",
		"object":         "setup_intent",
		"customer":       "cus_1",
		"payment_method": "pm_1",
		"status":         "succeeded",
		"metadata": map[string]string{
			"business_id": s.business.ID,
			"plan_key":    "basic",
			"price_id":    "price_stale",
		},
	}
	s.Equal(webhook.OutcomeHandled, s.deliver("setup_intent.succeeded", 0, intent))

	params := s.GetGateway().LastSubscriptionParams
	s.Require().NotNil(params)
	s.Equal("pm_1", lo.FromPtr(params.DefaultPaymentMethod))
	s.Equal(int64(14), lo.FromPtr(params.TrialPeriodDays))
	s.Equal("price_basic", lo.FromPtr(params.Items[0].Price))

	b := s.reload()
	s.Equal(types.SubscriptionStatusTrialing, b.Subscription.Status)
	s.True(b.Active)
	s.Equal("basic", b.Subscription.PlanKey)
	s.Equal("cus_1", lo.FromPtr(b.Subscription.RemoteCustomerID))
	s.Equal([]types.ActivityType{
		types.ActivityPaymentMethodVerified,
		types.ActivitySubscriptionCreated,
	}, s.ActivityTypes(b.ID))

	s.Run("Redelivery with a new event id reuses the subscription", func() {
		s.deliver("setup_intent.succeeded", time.Minute, intent)
		s.Equal(1, len(s.GetGateway().Subscriptions))
	})
}

func (s *ReconcilerSuite) TestSetupSucceededWithLiveSubscriptionReplacesPaymentMethod() {
	s.CreateSyncedPlan("basic")
	s.GetGateway().SeedSubscription("sub_1", "cus_1", "price_basic", stripe.SubscriptionStatusActive, s.meta())
	s.deliver("customer.subscription.created", 0, s.subscriptionObject("sub_1", "active", s.meta()))

	s.deliver("setup_intent.succeeded", time.Minute, map[string]any{
		"id":             "seti_2",
		"object":         "setup_intent",
		"customer":       "cus_1",
		"payment_method": "pm_2",
		"metadata":       map[string]string{"business_id": s.business.ID, "plan_key": "basic"},
	})

	s.Zero(s.GetGateway().CallCount("CreateSubscription"))
	s.Equal("pm_2", s.GetGateway().Subscriptions["sub_1"].DefaultPaymentMethod.ID)
	s.Contains(s.ActivityTypes(s.business.ID), types.ActivityPaymentMethodChanged)
}

func (s *ReconcilerSuite) TestCheckoutCompletedFetchesSubscription() {
	s.CreateSyncedPlan("basic")
	s.GetGateway().SeedSubscription("sub_9", "cus_9", "price_basic", stripe.SubscriptionStatusActive, nil)

	s.deliver("checkout.session.completed", 0, map[string]any{
		"id":           "cs_1",
		"object":       "checkout.session",
		"mode":         "subscription",
		"subscription": "sub_9",
		"metadata":     map[string]string{"business_id": s.business.ID},
	})

	b := s.reload()
	s.True(b.Active)
	s.Equal("basic", b.Subscription.PlanKey)
	s.Equal("sub_9", lo.FromPtr(b.Subscription.RemoteSubscriptionID))
	s.Equal(1, s.GetGateway().CallCount("GetSubscription"))
}

func (s *ReconcilerSuite) TestRemoteFailureDuringWebhookStillAudits() {
	s.CreateSyncedPlan("basic")
	s.GetGateway().FailOn("CreateSubscription", "Your card was declined.")

	outcome := s.deliver("setup_intent.succeeded", 0, map[string]any{
		"id":             "seti_3",
		"object":         "setup_intent",
		"customer":       "cus_1",
		"payment_method": "pm_3",
		"metadata":       map[string]string{"business_id": s.business.ID, "plan_key": "basic"},
	})

	s.Equal(webhook.OutcomeFailed, outcome)
	s.Equal(types.SubscriptionStatusInactive, s.reload().Subscription.Status)
	s.Equal([]types.ActivityType{types.ActivityPaymentMethodVerified}, s.ActivityTypes(s.business.ID))
}
