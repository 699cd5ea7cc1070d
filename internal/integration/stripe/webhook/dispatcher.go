package webhook

import (
	"context"
	"strings"
	"time"

	"github.com/revuo/revuo/internal/config"
	ierr "github.com/revuo/revuo/internal/errors"
	"github.com/revuo/revuo/internal/idempotency"
	"github.com/revuo/revuo/internal/logger"
	"github.com/revuo/revuo/internal/types"
	"github.com/stripe/stripe-go/v82"
	stripewebhook "github.com/stripe/stripe-go/v82/webhook"
)

// Event is a verified processor event with its data object decoded for its kind. Exactly one
// payload field is set for every kind except EventKindUnknown.
type Event struct {
	ID      string
	Type    stripe.EventType
	Kind    EventKind
	Created time.Time

	Subscription    *SubscriptionPayload
	Invoice         *InvoicePayload
	SetupIntent     *SetupIntentPayload
	CheckoutSession *CheckoutSessionPayload
	Dispute         *DisputePayload
	PaymentObject   *PaymentObjectPayload
}

// Handler reconciles decoded events into local state. Errors are logged by the dispatcher and
// never returned to the processor.
type Handler interface {
	HandleCheckoutCompleted(ctx context.Context, evt *Event, session *CheckoutSessionPayload) error
	HandleSetupSucceeded(ctx context.Context, evt *Event, intent *SetupIntentPayload) error
	// HandleSubscriptionUpserted serves both created and updated events; evt.Kind tells them apart.
	HandleSubscriptionUpserted(ctx context.Context, evt *Event, sub *SubscriptionPayload) error
	HandleSubscriptionCanceled(ctx context.Context, evt *Event, sub *SubscriptionPayload) error
	HandleSubscriptionPaused(ctx context.Context, evt *Event, sub *SubscriptionPayload) error
	HandleSubscriptionResumed(ctx context.Context, evt *Event, sub *SubscriptionPayload) error
	HandleTrialEnding(ctx context.Context, evt *Event, sub *SubscriptionPayload) error
	HandleInvoicePaid(ctx context.Context, evt *Event, invoice *InvoicePayload) error
	HandleInvoicePaymentFailed(ctx context.Context, evt *Event, invoice *InvoicePayload) error
	HandleInvoiceUpcoming(ctx context.Context, evt *Event, invoice *InvoicePayload) error
	// HandlePaymentActivity serves one-off payment and payment method events, which are audit only.
	HandlePaymentActivity(ctx context.Context, evt *Event, obj *PaymentObjectPayload) error
	HandleDisputeCreated(ctx context.Context, evt *Event, dispute *DisputePayload) error
}

// Outcome describes what happened to a verified event.
type Outcome string

const (
	OutcomeHandled   Outcome = "handled"
	OutcomeFailed    Outcome = "failed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeRejected  Outcome = "rejected"
)

// Dispatcher is the inbound boundary for processor webhooks. It is stateless per event apart
// from the processed-event store.
type Dispatcher struct {
	secret    string
	tolerance time.Duration
	handler   Handler
	processed idempotency.Store
	logger    *logger.Logger
}

func NewDispatcher(cfg *config.Configuration, handler Handler, processed idempotency.Store, log *logger.Logger) *Dispatcher {
	tolerance := cfg.Stripe.WebhookTolerance
	if tolerance <= 0 {
		tolerance = stripewebhook.DefaultTolerance
	}
	return &Dispatcher{
		secret:    cfg.Stripe.WebhookSecret,
		tolerance: tolerance,
		handler:   handler,
		processed: processed,
		logger:    log,
	}
}

// Verify checks the signature header against the shared secret and parses the event.
func (d *Dispatcher) Verify(payload []byte, signature string) (stripe.Event, error) {
	if strings.TrimSpace(signature) == "" {
		return stripe.Event{}, ierr.NewError("missing webhook signature").
			WithHint("Missing Stripe-Signature header").
			Mark(ierr.ErrUnauthorized)
	}

	event, err := stripewebhook.ConstructEventWithOptions(payload, signature, d.secret, stripewebhook.ConstructEventOptions{
		Tolerance:                d.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, ierr.WithError(err).
			WithHint("Invalid webhook signature").
			Mark(ierr.ErrUnauthorized)
	}
	return event, nil
}

// Dispatch routes a verified event. It never fails: the processor is acknowledged regardless,
// and the returned Outcome is for logging and tests. Processing is detached from ctx
// cancellation since a claimed event must either be applied or released.
func (d *Dispatcher) Dispatch(ctx context.Context, raw stripe.Event) Outcome {
	ctx = types.WithEventID(context.WithoutCancel(ctx), raw.ID)
	log := d.logger.WithContext(ctx)

	kind := Classify(raw.Type)
	if kind == EventKindUnknown {
		log.Infow("ignoring unhandled webhook event", "event_type", raw.Type)
		return OutcomeIgnored
	}

	evt, err := decodeEvent(raw, kind)
	if err != nil {
		log.Warnw("rejecting malformed webhook payload",
			"event_type", raw.Type,
			"error", err)
		return OutcomeRejected
	}

	claimed, err := d.processed.Claim(ctx, raw.ID)
	if err != nil {
		// Prefer applying a possible duplicate over dropping the event.
		log.Warnw("processed event store unavailable, handling without dedup", "error", err)
		claimed = true
	}
	if !claimed {
		log.Infow("skipping already processed webhook event", "event_type", raw.Type)
		return OutcomeDuplicate
	}

	if err := d.route(ctx, evt); err != nil {
		log.Errorw("webhook handler failed",
			"event_type", raw.Type,
			"event_kind", kind,
			"error", err)
		if releaseErr := d.processed.Release(ctx, raw.ID); releaseErr != nil {
			log.Warnw("failed to release processed event", "error", releaseErr)
		}
		return OutcomeFailed
	}

	log.Infow("webhook event handled", "event_type", raw.Type, "event_kind", kind)
	return OutcomeHandled
}

func (d *Dispatcher) route(ctx context.Context, evt *Event) error {
	h := d.handler
	switch evt.Kind {
	case EventKindCheckoutCompleted:
		return h.HandleCheckoutCompleted(ctx, evt, evt.CheckoutSession)
	case EventKindSetupSucceeded:
		return h.HandleSetupSucceeded(ctx, evt, evt.SetupIntent)
	case EventKindSubscriptionCreated, EventKindSubscriptionUpdated:
		return h.HandleSubscriptionUpserted(ctx, evt, evt.Subscription)
	case EventKindSubscriptionCanceled:
		return h.HandleSubscriptionCanceled(ctx, evt, evt.Subscription)
	case EventKindSubscriptionPaused:
		return h.HandleSubscriptionPaused(ctx, evt, evt.Subscription)
	case EventKindSubscriptionResumed:
		return h.HandleSubscriptionResumed(ctx, evt, evt.Subscription)
	case EventKindTrialEnding:
		return h.HandleTrialEnding(ctx, evt, evt.Subscription)
	case EventKindInvoicePaid:
		return h.HandleInvoicePaid(ctx, evt, evt.Invoice)
	case EventKindInvoicePaymentFailed:
		return h.HandleInvoicePaymentFailed(ctx, evt, evt.Invoice)
	case EventKindInvoiceUpcoming:
		return h.HandleInvoiceUpcoming(ctx, evt, evt.Invoice)
	case EventKindPaymentSucceeded, EventKindPaymentFailed,
		EventKindPaymentMethodAttached, EventKindPaymentMethodDetached, EventKindPaymentMethodUpdated:
		return h.HandlePaymentActivity(ctx, evt, evt.PaymentObject)
	case EventKindDisputeCreated:
		return h.HandleDisputeCreated(ctx, evt, evt.Dispute)
	case EventKindUnknown:
		return nil
	default:
		d.logger.WithContext(ctx).Warnw("no route for event kind", "event_kind", evt.Kind)
		return nil
	}
}

func decodeEvent(raw stripe.Event, kind EventKind) (*Event, error) {
	if raw.ID == "" {
		return nil, ierr.NewError("event id is missing").
			WithHint("Event id is required").
			Mark(ierr.ErrValidation)
	}
	if raw.Data == nil {
		return nil, ierr.NewError("event has no data").
			WithHint("Event data is required").
			Mark(ierr.ErrValidation)
	}

	evt := &Event{
		ID:   raw.ID,
		Type: raw.Type,
		Kind: kind,
	}
	if raw.Created > 0 {
		evt.Created = time.Unix(raw.Created, 0).UTC()
	}

	var err error
	switch kind {
	case EventKindCheckoutCompleted:
		evt.CheckoutSession, err = decodePayload[CheckoutSessionPayload](raw.Data.Raw)
	case EventKindSetupSucceeded:
		evt.SetupIntent, err = decodePayload[SetupIntentPayload](raw.Data.Raw)
	case EventKindSubscriptionCreated, EventKindSubscriptionUpdated, EventKindSubscriptionCanceled,
		EventKindSubscriptionPaused, EventKindSubscriptionResumed, EventKindTrialEnding:
		evt.Subscription, err = decodePayload[SubscriptionPayload](raw.Data.Raw)
	case EventKindInvoicePaid, EventKindInvoicePaymentFailed, EventKindInvoiceUpcoming:
		evt.Invoice, err = decodePayload[InvoicePayload](raw.Data.Raw)
	case EventKindPaymentSucceeded, EventKindPaymentFailed,
		EventKindPaymentMethodAttached, EventKindPaymentMethodDetached, EventKindPaymentMethodUpdated:
		evt.PaymentObject, err = decodePayload[PaymentObjectPayload](raw.Data.Raw)
	case EventKindDisputeCreated:
		evt.Dispute, err = decodePayload[DisputePayload](raw.Data.Raw)
	default:
		err = ierr.NewErrorf("no decoder for event kind %s", kind).
			Mark(ierr.ErrValidation)
	}
	if err != nil {
		return nil, err
	}
	return evt, nil
}
