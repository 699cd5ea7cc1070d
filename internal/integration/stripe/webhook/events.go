package webhook

import (
	"github.com/stripe/stripe-go/v82"
)

// EventKind is the closed set of processor event categories the billing core understands.
type EventKind string

const (
	EventKindUnknown               EventKind = "unknown"
	EventKindCheckoutCompleted     EventKind = "checkout_completed"
	EventKindSetupSucceeded        EventKind = "setup_succeeded"
	EventKindSubscriptionCreated   EventKind = "subscription_created"
	EventKindSubscriptionUpdated   EventKind = "subscription_updated"
	EventKindSubscriptionCanceled  EventKind = "subscription_canceled"
	EventKindSubscriptionPaused    EventKind = "subscription_paused"
	EventKindSubscriptionResumed   EventKind = "subscription_resumed"
	EventKindTrialEnding           EventKind = "trial_ending"
	EventKindInvoicePaid           EventKind = "invoice_paid"
	EventKindInvoicePaymentFailed  EventKind = "invoice_payment_failed"
	EventKindInvoiceUpcoming       EventKind = "invoice_upcoming"
	EventKindPaymentSucceeded      EventKind = "payment_succeeded"
	EventKindPaymentFailed         EventKind = "payment_failed"
	EventKindPaymentMethodAttached EventKind = "payment_method_attached"
	EventKindPaymentMethodDetached EventKind = "payment_method_detached"
	EventKindPaymentMethodUpdated  EventKind = "payment_method_updated"
	EventKindDisputeCreated        EventKind = "dispute_created"
)

// AllEventKinds lists every known kind except EventKindUnknown.
func AllEventKinds() []EventKind {
	return []EventKind{
		EventKindCheckoutCompleted,
		EventKindSetupSucceeded,
		EventKindSubscriptionCreated,
		EventKindSubscriptionUpdated,
		EventKindSubscriptionCanceled,
		EventKindSubscriptionPaused,
		EventKindSubscriptionResumed,
		EventKindTrialEnding,
		EventKindInvoicePaid,
		EventKindInvoicePaymentFailed,
		EventKindInvoiceUpcoming,
		EventKindPaymentSucceeded,
		EventKindPaymentFailed,
		EventKindPaymentMethodAttached,
		EventKindPaymentMethodDetached,
		EventKindPaymentMethodUpdated,
		EventKindDisputeCreated,
	}
}

var eventKinds = map[stripe.EventType]EventKind{
	"checkout.session.completed":           EventKindCheckoutCompleted,
	"setup_intent.succeeded":               EventKindSetupSucceeded,
	"customer.subscription.created":        EventKindSubscriptionCreated,
	"customer.subscription.updated":        EventKindSubscriptionUpdated,
	"customer.subscription.deleted":        EventKindSubscriptionCanceled,
	"customer.subscription.paused":         EventKindSubscriptionPaused,
	"customer.subscription.resumed":        EventKindSubscriptionResumed,
	"customer.subscription.trial_will_end": EventKindTrialEnding,
	"invoice.paid":                         EventKindInvoicePaid,
	"invoice.payment_failed":               EventKindInvoicePaymentFailed,
	"invoice.upcoming":                     EventKindInvoiceUpcoming,
	"payment_intent.succeeded":             EventKindPaymentSucceeded,
	"payment_intent.payment_failed":        EventKindPaymentFailed,
	"payment_method.attached":              EventKindPaymentMethodAttached,
	"payment_method.detached":              EventKindPaymentMethodDetached,
	"payment_method.updated":               EventKindPaymentMethodUpdated,
	"charge.dispute.created":               EventKindDisputeCreated,
}

// Classify maps a processor event type onto an EventKind.
func Classify(eventType stripe.EventType) EventKind {
	if kind, ok := eventKinds[eventType]; ok {
		return kind
	}
	return EventKindUnknown
}

// ChangesState reports whether events of this kind overwrite subscription state and are
// therefore skipped when they arrive after a newer event. Payment failures and disputes are
// additive and always applied.
func (k EventKind) ChangesState() bool {
	switch k {
	case EventKindCheckoutCompleted, EventKindSetupSucceeded, EventKindSubscriptionCreated,
		EventKindSubscriptionUpdated, EventKindSubscriptionCanceled, EventKindSubscriptionPaused,
		EventKindSubscriptionResumed, EventKindInvoicePaid:
		return true
	default:
		return false
	}
}
