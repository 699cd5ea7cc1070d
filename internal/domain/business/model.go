package business

import (
	"context"
	"time"

	"github.com/revuo/revuo/internal/types"
	"github.com/samber/lo"
)

// Business is a tenant account. Its subscription block is a cache of processor state and is
// only mutated through UpdateSubscription.
type Business struct {
	ID           string               `json:"id"`
	Name         string               `json:"name"`
	OwnerEmail   string               `json:"owner_email"`
	Active       bool                 `json:"active"`
	Subscription BusinessSubscription `json:"subscription"`
	// Revision is bumped on every subscription write and used for optimistic concurrency.
	Revision int64 `json:"revision"`
	types.BaseModel
}

// BusinessSubscription is the locally cached subscription state for a business.
type BusinessSubscription struct {
	PlanKey              string                   `json:"plan_key"`
	Status               types.SubscriptionStatus `json:"status"`
	RemoteCustomerID     *string                  `json:"remote_customer_id,omitempty"`
	RemoteSubscriptionID *string                  `json:"remote_subscription_id,omitempty"`
	RemotePriceID        *string                  `json:"remote_price_id,omitempty"`
	CurrentPeriodEnd     *time.Time               `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd    bool                     `json:"cancel_at_period_end"`
	TrialEnd             *time.Time               `json:"trial_end,omitempty"`
	PaymentFailures      int                      `json:"payment_failures"`
	LastPaymentAttempt   *time.Time               `json:"last_payment_attempt,omitempty"`
	// LastPaymentSuccessAt is the creation time of the newest paid invoice event. Failures
	// reported before it belong to a run that was already settled.
	LastPaymentSuccessAt *time.Time `json:"last_payment_success_at,omitempty"`
	// LastEventAt is the creation time of the newest processor event applied to this record.
	LastEventAt *time.Time `json:"last_event_at,omitempty"`
}

// New builds a business on the trial plan with an inactive subscription.
func New(ctx context.Context, name, ownerEmail string) *Business {
	return &Business{
		ID:         types.GenerateUUIDWithPrefix(types.UUID_PREFIX_BUSINESS),
		Name:       name,
		OwnerEmail: ownerEmail,
		Active:     false,
		Subscription: BusinessSubscription{
			PlanKey: types.TrialPlanKey,
			Status:  types.SubscriptionStatusInactive,
		},
		BaseModel: types.GetDefaultBaseModel(ctx),
	}
}

// ApplyStatus sets the subscription status and derives the business-level active flag from it.
// Every writer goes through here so Active can never disagree with Status.
func (b *Business) ApplyStatus(status types.SubscriptionStatus) {
	b.Subscription.Status = status
	b.Active = status.GrantsAccess()
}

// IsStale reports whether an event created at eventAt predates the last applied event.
func (b *Business) IsStale(eventAt time.Time) bool {
	if eventAt.IsZero() || b.Subscription.LastEventAt == nil {
		return false
	}
	return eventAt.Before(*b.Subscription.LastEventAt)
}

// MarkEventApplied advances LastEventAt, never moving it backwards.
func (b *Business) MarkEventApplied(eventAt time.Time) {
	if eventAt.IsZero() {
		return
	}
	if b.Subscription.LastEventAt == nil || eventAt.After(*b.Subscription.LastEventAt) {
		b.Subscription.LastEventAt = lo.ToPtr(eventAt.UTC())
	}
}

// FailurePrecedesSuccess reports whether a payment failure created at failedAt was already
// superseded by a successful payment.
func (b *Business) FailurePrecedesSuccess(failedAt time.Time) bool {
	if failedAt.IsZero() || b.Subscription.LastPaymentSuccessAt == nil {
		return false
	}
	return failedAt.Before(*b.Subscription.LastPaymentSuccessAt)
}

// MarkPaymentSucceeded advances LastPaymentSuccessAt, never moving it backwards.
func (b *Business) MarkPaymentSucceeded(paidAt time.Time) {
	if paidAt.IsZero() {
		return
	}
	if b.Subscription.LastPaymentSuccessAt == nil || paidAt.After(*b.Subscription.LastPaymentSuccessAt) {
		b.Subscription.LastPaymentSuccessAt = lo.ToPtr(paidAt.UTC())
	}
}

// Copy returns a deep copy of the business.
func (b *Business) Copy() *Business {
	if b == nil {
		return nil
	}
	c := *b
	c.Subscription = b.Subscription.copy()
	return &c
}

func (s BusinessSubscription) copy() BusinessSubscription {
	c := s
	c.RemoteCustomerID = clonePtr(s.RemoteCustomerID)
	c.RemoteSubscriptionID = clonePtr(s.RemoteSubscriptionID)
	c.RemotePriceID = clonePtr(s.RemotePriceID)
	c.CurrentPeriodEnd = clonePtr(s.CurrentPeriodEnd)
	c.TrialEnd = clonePtr(s.TrialEnd)
	c.LastPaymentAttempt = clonePtr(s.LastPaymentAttempt)
	c.LastPaymentSuccessAt = clonePtr(s.LastPaymentSuccessAt)
	c.LastEventAt = clonePtr(s.LastEventAt)
	return c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	return lo.ToPtr(*p)
}
