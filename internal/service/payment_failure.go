package service

import (
	"context"
	"fmt"
	"time"

	"github.com/revuo/revuo/internal/domain/business"
	"github.com/revuo/revuo/internal/integration/stripe/webhook"
	"github.com/revuo/revuo/internal/types"
	"github.com/samber/lo"
)

// PaymentAttempt is one invoice payment outcome for a business.
type PaymentAttempt struct {
	BusinessID string
	InvoiceID  string
	// Amount is in the currency's smallest unit.
	Amount    int64
	Currency  string
	PeriodEnd *time.Time
	// Event is the processor event that reported the attempt, if any.
	Event *webhook.Event
}

// PaymentFailureEscalator counts consecutive failed payments and suspends a business once the
// configured threshold is reached. Processed-event deduplication upstream keeps a redelivered
// failure from counting twice.
type PaymentFailureEscalator struct {
	subscriptionWriter
	maxFailures int
}

func NewPaymentFailureEscalator(params ServiceParams) *PaymentFailureEscalator {
	return &PaymentFailureEscalator{
		subscriptionWriter: subscriptionWriter{ServiceParams: params},
		maxFailures:        max(params.Config.Billing.MaxPaymentFailures, 1),
	}
}

// OnFailure increments the failure counter and suspends the business at the threshold.
// Below the threshold the status is left untouched. Failures arrive in any order; only one
// reported before the last successful payment is dropped.
func (e *PaymentFailureEscalator) OnFailure(ctx context.Context, attempt PaymentAttempt) error {
	var (
		failures  int
		suspended bool
	)

	b, applied, err := e.apply(ctx, attempt.BusinessID, attempt.Event, func(b *business.Business) (bool, error) {
		if attempt.Event != nil && b.FailurePrecedesSuccess(attempt.Event.Created) {
			e.Logger.WithContext(ctx).Infow("skipping payment failure settled by a later payment",
				"business_id", attempt.BusinessID,
				"invoice_id", attempt.InvoiceID,
				"last_payment_success_at", b.Subscription.LastPaymentSuccessAt)
			return false, nil
		}

		failures = b.Subscription.PaymentFailures + 1
		suspended = failures >= e.maxFailures

		b.Subscription.PaymentFailures = failures
		b.Subscription.LastPaymentAttempt = lo.ToPtr(time.Now().UTC())
		if suspended {
			b.ApplyStatus(types.SubscriptionStatusSuspended)
		}
		return true, nil
	})
	if err != nil || !applied {
		return err
	}

	e.audit(ctx, attempt.BusinessID, types.ActivityPaymentFailed,
		fmt.Sprintf("Payment failed (attempt %d of %d)", failures, e.maxFailures),
		attemptMetadata(attempt, map[string]any{
			"failures":     failures,
			"max_failures": e.maxFailures,
		}))

	log := e.Logger.WithContext(ctx)
	if suspended {
		e.audit(ctx, attempt.BusinessID, types.ActivityBusinessSuspended, "Business suspended after repeated payment failures", map[string]any{
			"failures": failures,
		})
		log.Warnw("business suspended after repeated payment failures",
			"business_id", attempt.BusinessID,
			"failures", failures,
			"revision", b.Revision)
		return nil
	}

	log.Infow("payment failure recorded",
		"business_id", attempt.BusinessID,
		"failures", failures,
		"max_failures", e.maxFailures)
	return nil
}

// OnSuccess clears any run of failures and reactivates the business. A zero-amount invoice on a
// trialing subscription keeps the trial status, which already grants access.
func (e *PaymentFailureEscalator) OnSuccess(ctx context.Context, attempt PaymentAttempt) error {
	var previousFailures int

	b, applied, err := e.apply(ctx, attempt.BusinessID, attempt.Event, func(b *business.Business) (bool, error) {
		previousFailures = b.Subscription.PaymentFailures

		now := time.Now().UTC()
		paidAt := now
		if attempt.Event != nil && !attempt.Event.Created.IsZero() {
			paidAt = attempt.Event.Created
		}

		b.Subscription.PaymentFailures = 0
		b.Subscription.LastPaymentAttempt = lo.ToPtr(now)
		b.MarkPaymentSucceeded(paidAt)
		if attempt.PeriodEnd != nil {
			b.Subscription.CurrentPeriodEnd = attempt.PeriodEnd
		}
		if b.Subscription.Status == types.SubscriptionStatusTrialing && attempt.Amount == 0 {
			b.ApplyStatus(types.SubscriptionStatusTrialing)
		} else {
			b.ApplyStatus(types.SubscriptionStatusActive)
		}
		return true, nil
	})
	if err != nil || !applied {
		return err
	}

	e.audit(ctx, attempt.BusinessID, types.ActivityPaymentSucceeded, "Payment succeeded",
		attemptMetadata(attempt, map[string]any{
			"previous_failures": previousFailures,
		}))

	e.Logger.WithContext(ctx).Infow("payment success recorded",
		"business_id", attempt.BusinessID,
		"previous_failures", previousFailures,
		"status", b.Subscription.Status)
	return nil
}

func attemptMetadata(attempt PaymentAttempt, extra map[string]any) map[string]any {
	metadata := lo.Assign(map[string]any{}, extra)
	if attempt.InvoiceID != "" {
		metadata["invoice_id"] = attempt.InvoiceID
	}
	if attempt.Currency != "" {
		metadata["amount"] = types.FromMinorUnits(attempt.Amount, attempt.Currency).String()
		metadata["currency"] = attempt.Currency
	}
	return metadata
}
