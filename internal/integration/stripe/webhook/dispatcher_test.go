package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/revuo/revuo/internal/config"
	ierr "github.com/revuo/revuo/internal/errors"
	"github.com/revuo/revuo/internal/idempotency"
	"github.com/revuo/revuo/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/stripe/stripe-go/v82"
	stripewebhook "github.com/stripe/stripe-go/v82/webhook"
)

const testSecret = "whsec_test_secret"

type recordingHandler struct {
	calls []string
	err   error
}

func (h *recordingHandler) record(name string) error {
	h.calls = append(h.calls, name)
	return h.err
}

func (h *recordingHandler) HandleCheckoutCompleted(context.Context, *Event, *CheckoutSessionPayload) error {
	return h.record("checkout_completed")
}
func (h *recordingHandler) HandleSetupSucceeded(context.Context, *Event, *SetupIntentPayload) error {
	return h.record("setup_succeeded")
}
func (h *recordingHandler) HandleSubscriptionUpserted(_ context.Context, evt *Event, _ *SubscriptionPayload) error {
	return h.record("subscription_upserted:" + string(evt.Kind))
}
func (h *recordingHandler) HandleSubscriptionCanceled(context.Context, *Event, *SubscriptionPayload) error {
	return h.record("subscription_canceled")
}
func (h *recordingHandler) HandleSubscriptionPaused(context.Context, *Event, *SubscriptionPayload) error {
	return h.record("subscription_paused")
}
func (h *recordingHandler) HandleSubscriptionResumed(context.Context, *Event, *SubscriptionPayload) error {
	return h.record("subscription_resumed")
}
func (h *recordingHandler) HandleTrialEnding(context.Context, *Event, *SubscriptionPayload) error {
	return h.record("trial_ending")
}
func (h *recordingHandler) HandleInvoicePaid(context.Context, *Event, *InvoicePayload) error {
	return h.record("invoice_paid")
}
func (h *recordingHandler) HandleInvoicePaymentFailed(context.Context, *Event, *InvoicePayload) error {
	return h.record("invoice_payment_failed")
}
func (h *recordingHandler) HandleInvoiceUpcoming(context.Context, *Event, *InvoicePayload) error {
	return h.record("invoice_upcoming")
}
func (h *recordingHandler) HandlePaymentActivity(_ context.Context, evt *Event, _ *PaymentObjectPayload) error {
	return h.record("payment_activity:" + string(evt.Kind))
}
func (h *recordingHandler) HandleDisputeCreated(context.Context, *Event, *DisputePayload) error {
	return h.record("dispute_created")
}

// cancellableStore fails every call made with a done context.
type cancellableStore struct {
	idempotency.Store
}

func (c cancellableStore) Claim(ctx context.Context, eventID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return c.Store.Claim(ctx, eventID)
}

func (c cancellableStore) Release(ctx context.Context, eventID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.Store.Release(ctx, eventID)
}

type DispatcherSuite struct {
	suite.Suite
	handler    *recordingHandler
	dispatcher *Dispatcher
}

func TestDispatcher(t *testing.T) {
	suite.Run(t, new(DispatcherSuite))
}

func (s *DispatcherSuite) SetupTest() {
	cfg := config.GetDefaultConfig()
	cfg.Stripe.WebhookSecret = testSecret

	s.handler = &recordingHandler{}
	s.dispatcher = NewDispatcher(cfg, s.handler, idempotency.NewInMemoryStore(time.Hour), logger.NewNoopLogger())
}

func sampleObject(kind EventKind) map[string]any {
	switch kind {
	case EventKindCheckoutCompleted:
		return map[string]any{"id": "cs_1", "object": "checkout.session"}
	case EventKindSetupSucceeded:
		return map[string]any{"id": "seti_1", "object": "setup_intent", "customer": "cus_1"}
	case EventKindSubscriptionCreated, EventKindSubscriptionUpdated, EventKindSubscriptionCanceled,
		EventKindSubscriptionPaused, EventKindSubscriptionResumed, EventKindTrialEnding:
		return map[string]any{"id": "sub_1", "object": "subscription", "status": "active"}
	case EventKindInvoicePaid, EventKindInvoicePaymentFailed, EventKindInvoiceUpcoming:
		return map[string]any{"id": "in_1", "object": "invoice"}
	case EventKindDisputeCreated:
		return map[string]any{"id": "dp_1", "object": "dispute"}
	default:
		return map[string]any{"id": "pi_1", "object": "payment_intent"}
	}
}

func eventTypeFor(kind EventKind) stripe.EventType {
	for t, k := range eventKinds {
		if k == kind {
			return t
		}
	}
	return ""
}

func rawEvent(id string, eventType stripe.EventType, object map[string]any) stripe.Event {
	data, _ := json.Marshal(object)
	return stripe.Event{
		ID:      id,
		Type:    eventType,
		Created: time.Now().Unix(),
		Data:    &stripe.EventData{Raw: data},
	}
}

func (s *DispatcherSuite) TestEveryKindIsRouted() {
	for i, kind := range AllEventKinds() {
		eventType := eventTypeFor(kind)
		s.Require().NotEmpty(eventType, "no processor event type maps to %s", kind)

		before := len(s.handler.calls)
		outcome := s.dispatcher.Dispatch(context.Background(), rawEvent(fmt.Sprintf("evt_%d", i), eventType, sampleObject(kind)))

		s.Equal(OutcomeHandled, outcome, string(kind))
		s.Len(s.handler.calls, before+1, "kind %s did not reach a handler", kind)
	}
}

func (s *DispatcherSuite) TestClassifiedKindsAreDeclared() {
	declared := AllEventKinds()
	for eventType, kind := range eventKinds {
		s.Contains(declared, kind, string(eventType))
	}
}

func (s *DispatcherSuite) TestUnknownEventIsIgnored() {
	outcome := s.dispatcher.Dispatch(context.Background(), rawEvent("evt_x", "customer.tax_id.created", map[string]any{"id": "txi_1"}))
	s.Equal(OutcomeIgnored, outcome)
	s.Empty(s.handler.calls)
}

func (s *DispatcherSuite) TestDuplicateDeliveryRunsHandlersOnce() {
	evt := rawEvent("evt_dup", "customer.subscription.updated", sampleObject(EventKindSubscriptionUpdated))

	s.Equal(OutcomeHandled, s.dispatcher.Dispatch(context.Background(), evt))
	s.Equal(OutcomeDuplicate, s.dispatcher.Dispatch(context.Background(), evt))
	s.Len(s.handler.calls, 1)
}

func (s *DispatcherSuite) TestHandlerFailureReleasesEvent() {
	s.handler.err = ierr.NewError("boom").Mark(ierr.ErrDatabase)
	evt := rawEvent("evt_fail", "invoice.paid", sampleObject(EventKindInvoicePaid))

	s.Equal(OutcomeFailed, s.dispatcher.Dispatch(context.Background(), evt))

	s.handler.err = nil
	s.Equal(OutcomeHandled, s.dispatcher.Dispatch(context.Background(), evt))
	s.Len(s.handler.calls, 2)
}

func (s *DispatcherSuite) TestClientDisconnectDoesNotLoseEvent() {
	cfg := config.GetDefaultConfig()
	cfg.Stripe.WebhookSecret = testSecret
	store := cancellableStore{Store: idempotency.NewInMemoryStore(time.Hour)}
	dispatcher := NewDispatcher(cfg, s.handler, store, logger.NewNoopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s.Run("failed event is released", func() {
		s.handler.err = ierr.NewError("boom").Mark(ierr.ErrDatabase)
		evt := rawEvent("evt_gone_1", "invoice.payment_failed", sampleObject(EventKindInvoicePaymentFailed))
		s.Equal(OutcomeFailed, dispatcher.Dispatch(ctx, evt))

		s.handler.err = nil
		s.Equal(OutcomeHandled, dispatcher.Dispatch(context.Background(), evt))
	})

	s.Run("claimed event is handled", func() {
		evt := rawEvent("evt_gone_2", "invoice.paid", sampleObject(EventKindInvoicePaid))
		s.Equal(OutcomeHandled, dispatcher.Dispatch(ctx, evt))
		s.Equal(OutcomeDuplicate, dispatcher.Dispatch(context.Background(), evt))
	})
}

func (s *DispatcherSuite) TestPaymentSucceededAliasIsIgnored() {
	s.Equal(EventKindUnknown, Classify("invoice.payment_succeeded"))

	evt := rawEvent("evt_alias", "invoice.payment_succeeded", sampleObject(EventKindInvoicePaid))
	s.Equal(OutcomeIgnored, s.dispatcher.Dispatch(context.Background(), evt))
	s.Empty(s.handler.calls)
}

func (s *DispatcherSuite) TestAdditiveKindsSkipOrdering() {
	s.False(EventKindInvoicePaymentFailed.ChangesState())
	s.False(EventKindDisputeCreated.ChangesState())
	s.True(EventKindSubscriptionUpdated.ChangesState())
	s.True(EventKindInvoicePaid.ChangesState())
}

func (s *DispatcherSuite) TestMalformedPayloadIsRejected() {
	// subscription without status fails validation
	evt := rawEvent("evt_bad", "customer.subscription.updated", map[string]any{"id": "sub_1"})
	s.Equal(OutcomeRejected, s.dispatcher.Dispatch(context.Background(), evt))
	s.Empty(s.handler.calls)
}

func (s *DispatcherSuite) TestVerify() {
	payload := []byte(`{"id":"evt_sig","object":"event","type":"invoice.paid","created":1700000000,"data":{"object":{"id":"in_1","object":"invoice"}}}`)

	s.Run("valid signature", func() {
		signed := stripewebhook.GenerateTestSignedPayload(&stripewebhook.UnsignedPayload{
			Payload:   payload,
			Secret:    testSecret,
			Timestamp: time.Now(),
			Scheme:    "v1",
		})
		evt, err := s.dispatcher.Verify(signed.Payload, signed.Header)
		s.Require().NoError(err)
		s.Equal("evt_sig", evt.ID)
	})

	s.Run("wrong secret", func() {
		signed := stripewebhook.GenerateTestSignedPayload(&stripewebhook.UnsignedPayload{
			Payload:   payload,
			Secret:    "whsec_other",
			Timestamp: time.Now(),
			Scheme:    "v1",
		})
		_, err := s.dispatcher.Verify(signed.Payload, signed.Header)
		s.True(ierr.IsUnauthorized(err))
	})

	s.Run("missing header", func() {
		_, err := s.dispatcher.Verify(payload, "")
		s.True(ierr.IsUnauthorized(err))
	})
}

func TestInvoicePayloadBusinessIDLookup(t *testing.T) {
	raw := []byte(`{
		"id": "in_1",
		"customer": {"id": "cus_1", "object": "customer"},
		"parent": {"subscription_details": {"subscription": "sub_9", "metadata": {"business_id": "biz_1"}}},
		"lines": {"data": [{"period": {"start": 1700000000, "end": 1702592000}}]}
	}`)

	inv, err := decodePayload[InvoicePayload](raw)
	require.NoError(t, err)
	assert.Equal(t, "biz_1", inv.BusinessID())
	assert.Equal(t, "sub_9", inv.SubscriptionID())
	assert.Equal(t, "cus_1", inv.Customer.String())
	require.NotNil(t, inv.PeriodEnd())
	assert.Equal(t, int64(1702592000), inv.PeriodEnd().Unix())
}

func TestSubscriptionPayloadPeriodEndFromItems(t *testing.T) {
	raw := []byte(`{
		"id": "sub_1", "status": "active",
		"items": {"data": [{"id": "si_1", "price": {"id": "price_1"}, "current_period_end": 1702592000}]}
	}`)

	sub, err := decodePayload[SubscriptionPayload](raw)
	require.NoError(t, err)
	assert.Equal(t, "price_1", sub.PriceID())
	assert.Equal(t, "si_1", sub.ItemID())
	assert.Equal(t, int64(1702592000), sub.PeriodEnd().Unix())
	assert.Empty(t, sub.BusinessID())
}
