package service

import (
	"context"

	"github.com/revuo/revuo/internal/domain/business"
	ierr "github.com/revuo/revuo/internal/errors"
	stripeint "github.com/revuo/revuo/internal/integration/stripe"
	"github.com/revuo/revuo/internal/integration/stripe/webhook"
	"github.com/revuo/revuo/internal/types"
	"github.com/samber/lo"
	"github.com/stripe/stripe-go/v82"
)

var _ webhook.Handler = (*SubscriptionReconciler)(nil)

// SubscriptionReconciler applies processor events to the local business subscription cache.
// The processor is the system of record; every handler is safe to run twice for one event.
type SubscriptionReconciler struct {
	subscriptionWriter
	escalator *PaymentFailureEscalator
}

func NewSubscriptionReconciler(params ServiceParams, escalator *PaymentFailureEscalator) *SubscriptionReconciler {
	return &SubscriptionReconciler{
		subscriptionWriter: subscriptionWriter{ServiceParams: params},
		escalator:          escalator,
	}
}

// MapProcessorStatus translates a processor subscription status into the local status.
func MapProcessorStatus(status string) (types.SubscriptionStatus, bool) {
	switch stripe.SubscriptionStatus(status) {
	case stripe.SubscriptionStatusActive:
		return types.SubscriptionStatusActive, true
	case stripe.SubscriptionStatusTrialing:
		return types.SubscriptionStatusTrialing, true
	case stripe.SubscriptionStatusPastDue:
		return types.SubscriptionStatusPastDue, true
	case stripe.SubscriptionStatusCanceled:
		return types.SubscriptionStatusCanceled, true
	case stripe.SubscriptionStatusUnpaid, stripe.SubscriptionStatusPaused:
		return types.SubscriptionStatusSuspended, true
	case stripe.SubscriptionStatusIncomplete, stripe.SubscriptionStatusIncompleteExpired:
		return types.SubscriptionStatusInactive, true
	default:
		return "", false
	}
}

func (r *SubscriptionReconciler) missingBusinessID(ctx context.Context, evt *webhook.Event, objectID string) error {
	r.Logger.WithContext(ctx).Warnw("event has no business_id metadata, ignoring",
		"event_kind", evt.Kind,
		"object_id", objectID)
	return nil
}

// sameSubscription guards against events for a subscription the business has already moved
// away from.
func sameSubscription(b *business.Business, subscriptionID string) bool {
	current := lo.FromPtr(b.Subscription.RemoteSubscriptionID)
	return current == "" || subscriptionID == "" || current == subscriptionID
}

func (r *SubscriptionReconciler) HandleSubscriptionUpserted(ctx context.Context, evt *webhook.Event, sub *webhook.SubscriptionPayload) error {
	businessID := sub.BusinessID()
	if businessID == "" {
		return r.missingBusinessID(ctx, evt, sub.ID)
	}
	return r.upsert(ctx, evt, businessID, sub)
}

// upsert copies plan, status, period and processor ids from sub onto the business.
func (r *SubscriptionReconciler) upsert(ctx context.Context, evt *webhook.Event, businessID string, sub *webhook.SubscriptionPayload) error {
	log := r.Logger.WithContext(ctx)

	status, known := MapProcessorStatus(sub.Status)
	if !known {
		log.Warnw("unknown processor subscription status, keeping local status",
			"business_id", businessID,
			"subscription_id", sub.ID,
			"status", sub.Status)
	}
	if known && status == types.SubscriptionStatusActive && sub.CollectionPaused() {
		status = types.SubscriptionStatusSuspended
	}

	planKey := r.resolvePlanKey(ctx, sub)
	replaces := evt.Kind != webhook.EventKindSubscriptionUpdated

	b, applied, err := r.apply(ctx, businessID, evt, func(b *business.Business) (bool, error) {
		if !replaces && !sameSubscription(b, sub.ID) {
			log.Infow("ignoring update for superseded subscription",
				"business_id", businessID,
				"subscription_id", sub.ID,
				"current_subscription_id", lo.FromPtr(b.Subscription.RemoteSubscriptionID))
			return false, nil
		}

		if planKey != "" {
			b.Subscription.PlanKey = planKey
		}
		b.Subscription.RemoteSubscriptionID = lo.ToPtr(sub.ID)
		if customer := sub.Customer.String(); customer != "" {
			b.Subscription.RemoteCustomerID = lo.ToPtr(customer)
		}
		if priceID := sub.PriceID(); priceID != "" {
			b.Subscription.RemotePriceID = lo.ToPtr(priceID)
		}
		if end := sub.PeriodEnd(); end != nil {
			b.Subscription.CurrentPeriodEnd = end
		}
		b.Subscription.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
		b.Subscription.TrialEnd = sub.TrialEndsAt()
		if known {
			b.ApplyStatus(status)
		}
		if evt.Kind == webhook.EventKindSubscriptionUpdated && status == types.SubscriptionStatusActive {
			b.Subscription.PaymentFailures = 0
			b.MarkPaymentSucceeded(evt.Created)
		}
		return true, nil
	})
	if err != nil || !applied {
		return err
	}

	activity := types.ActivitySubscriptionSynced
	if evt.Kind == webhook.EventKindSubscriptionCreated || evt.Kind == webhook.EventKindSetupSucceeded ||
		evt.Kind == webhook.EventKindCheckoutCompleted {
		activity = types.ActivitySubscriptionCreated
	}
	r.audit(ctx, businessID, activity, "Subscription synchronized from processor", map[string]any{
		"subscription_id": sub.ID,
		"status":          b.Subscription.Status,
		"plan_key":        b.Subscription.PlanKey,
		"revision":        b.Revision,
	})

	log.Infow("subscription reconciled",
		"business_id", businessID,
		"subscription_id", sub.ID,
		"status", b.Subscription.Status,
		"plan_key", b.Subscription.PlanKey)
	return nil
}

// resolvePlanKey prefers explicit metadata, then the plan that owns the subscribed price. An
// empty result keeps the business's current plan.
func (r *SubscriptionReconciler) resolvePlanKey(ctx context.Context, sub *webhook.SubscriptionPayload) string {
	if key := sub.PlanKey(); key != "" {
		return key
	}

	priceID := sub.PriceID()
	if priceID == "" {
		return ""
	}

	p, err := r.PlanRepo.GetByRemotePriceID(ctx, priceID)
	if err != nil {
		if !ierr.IsNotFound(err) {
			r.Logger.WithContext(ctx).Warnw("failed to resolve plan by price",
				"price_id", priceID,
				"error", err)
		}
		return ""
	}
	return p.Key
}

func (r *SubscriptionReconciler) HandleSubscriptionCanceled(ctx context.Context, evt *webhook.Event, sub *webhook.SubscriptionPayload) error {
	businessID := sub.BusinessID()
	if businessID == "" {
		return r.missingBusinessID(ctx, evt, sub.ID)
	}

	_, applied, err := r.apply(ctx, businessID, evt, func(b *business.Business) (bool, error) {
		if !sameSubscription(b, sub.ID) {
			return false, nil
		}
		b.ApplyStatus(types.SubscriptionStatusCanceled)
		b.Subscription.CancelAtPeriodEnd = false
		return true, nil
	})
	if err != nil || !applied {
		return err
	}

	r.audit(ctx, businessID, types.ActivitySubscriptionCanceled, "Subscription canceled", map[string]any{
		"subscription_id": sub.ID,
	})
	return nil
}

func (r *SubscriptionReconciler) HandleSubscriptionPaused(ctx context.Context, evt *webhook.Event, sub *webhook.SubscriptionPayload) error {
	businessID := sub.BusinessID()
	if businessID == "" {
		return r.missingBusinessID(ctx, evt, sub.ID)
	}

	_, applied, err := r.apply(ctx, businessID, evt, func(b *business.Business) (bool, error) {
		if !sameSubscription(b, sub.ID) {
			return false, nil
		}
		b.ApplyStatus(types.SubscriptionStatusSuspended)
		return true, nil
	})
	if err != nil || !applied {
		return err
	}

	r.audit(ctx, businessID, types.ActivitySubscriptionPaused, "Subscription paused", map[string]any{
		"subscription_id": sub.ID,
	})
	return nil
}

func (r *SubscriptionReconciler) HandleSubscriptionResumed(ctx context.Context, evt *webhook.Event, sub *webhook.SubscriptionPayload) error {
	businessID := sub.BusinessID()
	if businessID == "" {
		return r.missingBusinessID(ctx, evt, sub.ID)
	}

	_, applied, err := r.apply(ctx, businessID, evt, func(b *business.Business) (bool, error) {
		if !sameSubscription(b, sub.ID) {
			return false, nil
		}
		b.ApplyStatus(types.SubscriptionStatusActive)
		b.Subscription.PaymentFailures = 0
		b.MarkPaymentSucceeded(evt.Created)
		return true, nil
	})
	if err != nil || !applied {
		return err
	}

	r.audit(ctx, businessID, types.ActivitySubscriptionResumed, "Subscription resumed", map[string]any{
		"subscription_id": sub.ID,
	})
	return nil
}

func (r *SubscriptionReconciler) HandleTrialEnding(ctx context.Context, evt *webhook.Event, sub *webhook.SubscriptionPayload) error {
	businessID := sub.BusinessID()
	if businessID == "" {
		return r.missingBusinessID(ctx, evt, sub.ID)
	}

	r.audit(ctx, businessID, types.ActivityTrialEnding, "Trial ends soon", map[string]any{
		"subscription_id": sub.ID,
		"trial_end":       sub.TrialEndsAt(),
	})
	return nil
}

func (r *SubscriptionReconciler) HandleInvoicePaid(ctx context.Context, evt *webhook.Event, invoice *webhook.InvoicePayload) error {
	businessID := invoice.BusinessID()
	if businessID == "" {
		return r.missingBusinessID(ctx, evt, invoice.ID)
	}

	return r.escalator.OnSuccess(ctx, PaymentAttempt{
		BusinessID: businessID,
		InvoiceID:  invoice.ID,
		Amount:     invoice.AmountPaid,
		Currency:   invoice.Currency,
		PeriodEnd:  invoice.PeriodEnd(),
		Event:      evt,
	})
}

func (r *SubscriptionReconciler) HandleInvoicePaymentFailed(ctx context.Context, evt *webhook.Event, invoice *webhook.InvoicePayload) error {
	businessID := invoice.BusinessID()
	if businessID == "" {
		return r.missingBusinessID(ctx, evt, invoice.ID)
	}

	return r.escalator.OnFailure(ctx, PaymentAttempt{
		BusinessID: businessID,
		InvoiceID:  invoice.ID,
		Amount:     invoice.AmountDue,
		Currency:   invoice.Currency,
		Event:      evt,
	})
}

func (r *SubscriptionReconciler) HandleInvoiceUpcoming(ctx context.Context, evt *webhook.Event, invoice *webhook.InvoicePayload) error {
	businessID := invoice.BusinessID()
	if businessID == "" {
		return r.missingBusinessID(ctx, evt, invoice.ID)
	}

	r.audit(ctx, businessID, types.ActivityInvoiceUpcoming, "Upcoming invoice", map[string]any{
		"subscription_id": invoice.SubscriptionID(),
		"amount_due":      types.FromMinorUnits(invoice.AmountDue, invoice.Currency).String(),
		"currency":        invoice.Currency,
	})
	return nil
}

func (r *SubscriptionReconciler) HandlePaymentActivity(ctx context.Context, evt *webhook.Event, obj *webhook.PaymentObjectPayload) error {
	businessID := obj.BusinessID()
	if businessID == "" {
		// payment methods rarely carry metadata, so this is routine
		r.Logger.WithContext(ctx).Debugw("payment activity without business_id",
			"event_kind", evt.Kind,
			"object_id", obj.ID)
		return nil
	}

	var (
		activity    types.ActivityType
		description string
	)
	switch evt.Kind {
	case webhook.EventKindPaymentSucceeded:
		activity, description = types.ActivityPaymentSucceeded, "One-off payment succeeded"
	case webhook.EventKindPaymentFailed:
		activity, description = types.ActivityPaymentFailed, "One-off payment failed"
	default:
		activity, description = types.ActivityPaymentMethodChanged, "Payment method changed"
	}

	metadata := map[string]any{
		"object_id": obj.ID,
		"kind":      evt.Kind,
	}
	if obj.Amount > 0 {
		metadata["amount"] = types.FromMinorUnits(obj.Amount, obj.Currency).String()
		metadata["currency"] = obj.Currency
	}
	r.audit(ctx, businessID, activity, description, metadata)
	return nil
}

// HandleDisputeCreated suspends the business immediately, whatever its failure count.
func (r *SubscriptionReconciler) HandleDisputeCreated(ctx context.Context, evt *webhook.Event, dispute *webhook.DisputePayload) error {
	businessID := dispute.BusinessID()
	if businessID == "" {
		return r.missingBusinessID(ctx, evt, dispute.ID)
	}

	r.audit(ctx, businessID, types.ActivityDisputeCreated, "Payment disputed", map[string]any{
		"dispute_id": dispute.ID,
		"reason":     dispute.Reason,
		"amount":     types.FromMinorUnits(dispute.Amount, dispute.Currency).String(),
		"currency":   dispute.Currency,
	})

	_, applied, err := r.apply(ctx, businessID, evt, func(b *business.Business) (bool, error) {
		b.ApplyStatus(types.SubscriptionStatusSuspended)
		return true, nil
	})
	if err != nil || !applied {
		return err
	}

	r.audit(ctx, businessID, types.ActivityBusinessSuspended, "Business suspended after dispute", map[string]any{
		"dispute_id": dispute.ID,
	})
	r.Logger.WithContext(ctx).Warnw("business suspended after dispute",
		"business_id", businessID,
		"dispute_id", dispute.ID)
	return nil
}

// HandleCheckoutCompleted fetches the subscription the session created and upserts it. The
// session's own metadata is authoritative for the business id.
func (r *SubscriptionReconciler) HandleCheckoutCompleted(ctx context.Context, evt *webhook.Event, session *webhook.CheckoutSessionPayload) error {
	businessID := session.BusinessID()
	if businessID == "" {
		return r.missingBusinessID(ctx, evt, session.ID)
	}

	subscriptionID := session.Subscription.String()
	if subscriptionID == "" {
		r.Logger.WithContext(ctx).Infow("checkout session without subscription",
			"business_id", businessID,
			"session_id", session.ID,
			"mode", session.Mode)
		return nil
	}

	remote, err := r.Gateway.GetSubscription(ctx, subscriptionID)
	if err != nil {
		if ierr.IsNotFound(err) {
			r.Logger.WithContext(ctx).Warnw("checkout subscription no longer exists",
				"business_id", businessID,
				"subscription_id", subscriptionID)
			return nil
		}
		return err
	}

	return r.upsert(ctx, evt, businessID, webhook.SubscriptionFromRemote(remote))
}

// HandleSetupSucceeded turns a verified payment method into a subscription. A business that
// already has a live subscription only gets its default payment method replaced.
func (r *SubscriptionReconciler) HandleSetupSucceeded(ctx context.Context, evt *webhook.Event, intent *webhook.SetupIntentPayload) error {
	businessID := intent.BusinessID()
	if businessID == "" {
		return r.missingBusinessID(ctx, evt, intent.ID)
	}
	log := r.Logger.WithContext(ctx)

	r.audit(ctx, businessID, types.ActivityPaymentMethodVerified, "Payment method verified", map[string]any{
		"setup_intent_id":   intent.ID,
		"customer_id":       intent.Customer.String(),
		"payment_method_id": intent.PaymentMethod.String(),
	})

	b, err := r.BusinessRepo.Get(ctx, businessID)
	if err != nil {
		if ierr.IsNotFound(err) {
			log.Warnw("business not found, ignoring setup intent", "business_id", businessID)
			return nil
		}
		return err
	}

	if subscriptionID := lo.FromPtr(b.Subscription.RemoteSubscriptionID); subscriptionID != "" && hasLiveSubscription(b) {
		return r.replacePaymentMethod(ctx, businessID, subscriptionID, intent.PaymentMethod.String())
	}

	planKey := intent.PlanKey()
	if planKey == "" {
		log.Warnw("setup intent has no plan_key, not creating a subscription",
			"business_id", businessID,
			"setup_intent_id", intent.ID)
		return nil
	}

	// The current plan price is used rather than the one recorded at setup time, which may
	// have been superseded and deactivated in between.
	remote, err := r.Setup.CompleteSetup(ctx, stripeint.CompleteSetupRequest{
		SetupIntentID:   intent.ID,
		CustomerID:      intent.Customer.String(),
		PaymentMethodID: intent.PaymentMethod.String(),
		BusinessID:      businessID,
		PlanKey:         planKey,
	})
	if err != nil {
		return err
	}

	sub := webhook.SubscriptionFromRemote(remote)
	if sub.PlanKey() == "" {
		sub.Metadata[stripeint.MetadataPlanKey] = planKey
	}
	return r.upsert(ctx, evt, businessID, sub)
}

func (r *SubscriptionReconciler) replacePaymentMethod(ctx context.Context, businessID, subscriptionID, paymentMethodID string) error {
	if paymentMethodID == "" {
		return nil
	}

	params := &stripe.SubscriptionParams{DefaultPaymentMethod: stripe.String(paymentMethodID)}
	if _, err := r.Gateway.UpdateSubscription(ctx, subscriptionID, params); err != nil {
		return err
	}

	r.audit(ctx, businessID, types.ActivityPaymentMethodChanged, "Default payment method replaced", map[string]any{
		"subscription_id":   subscriptionID,
		"payment_method_id": paymentMethodID,
	})
	return nil
}

func hasLiveSubscription(b *business.Business) bool {
	switch b.Subscription.Status {
	case types.SubscriptionStatusActive, types.SubscriptionStatusTrialing,
		types.SubscriptionStatusPastDue, types.SubscriptionStatusSuspended:
		return true
	default:
		return false
	}
}
