package dto

import (
	"time"

	"github.com/revuo/revuo/internal/domain/activitylog"
	"github.com/revuo/revuo/internal/domain/business"
	"github.com/revuo/revuo/internal/domain/plan"
	ierr "github.com/revuo/revuo/internal/errors"
	stripeint "github.com/revuo/revuo/internal/integration/stripe"
	"github.com/revuo/revuo/internal/types"
	"github.com/revuo/revuo/internal/validator"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
)

type CreateBusinessRequest struct {
	Name       string `json:"name" validate:"required"`
	OwnerEmail string `json:"owner_email" validate:"required,email"`
}

func (r *CreateBusinessRequest) Validate() error {
	return validator.ValidateRequest(r)
}

type BusinessResponse struct {
	*business.Business
}

// SubscriptionResponse is the local subscription cache, optionally enriched with live
// processor state.
type SubscriptionResponse struct {
	BusinessID   string                        `json:"business_id"`
	Active       bool                          `json:"active"`
	Revision     int64                         `json:"revision"`
	Subscription business.BusinessSubscription `json:"subscription"`
	Plan         *plan.Plan                    `json:"plan,omitempty"`
	Remote       *RemoteSubscription           `json:"remote,omitempty"`
	// RemoteError is set when enrichment was requested but the processor could not be reached.
	RemoteError string `json:"remote_error,omitempty"`
}

func NewSubscriptionResponse(b *business.Business, p *plan.Plan) *SubscriptionResponse {
	return &SubscriptionResponse{
		BusinessID:   b.ID,
		Active:       b.Active,
		Revision:     b.Revision,
		Subscription: b.Subscription,
		Plan:         p,
	}
}

type RemoteSubscription struct {
	ID                string           `json:"id"`
	Status            string           `json:"status"`
	CancelAtPeriodEnd bool             `json:"cancel_at_period_end"`
	CollectionPaused  bool             `json:"collection_paused"`
	CurrentPeriodEnd  *time.Time       `json:"current_period_end,omitempty"`
	PriceID           string           `json:"price_id,omitempty"`
	Invoices          []InvoiceSummary `json:"invoices"`
}

func NewRemoteSubscription(sub *stripe.Subscription, invoices []*stripe.Invoice) *RemoteSubscription {
	out := &RemoteSubscription{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		CollectionPaused:  sub.PauseCollection != nil,
		Invoices:          lo.Map(invoices, func(inv *stripe.Invoice, _ int) InvoiceSummary { return NewInvoiceSummary(inv) }),
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.Price != nil {
			out.PriceID = item.Price.ID
		}
		if item.CurrentPeriodEnd > 0 {
			out.CurrentPeriodEnd = lo.ToPtr(time.Unix(item.CurrentPeriodEnd, 0).UTC())
		}
	}
	return out
}

type InvoiceSummary struct {
	ID               string          `json:"id"`
	Number           string          `json:"number,omitempty"`
	Status           string          `json:"status"`
	AmountDue        decimal.Decimal `json:"amount_due" swaggertype:"string"`
	AmountPaid       decimal.Decimal `json:"amount_paid" swaggertype:"string"`
	Currency         string          `json:"currency"`
	CreatedAt        time.Time       `json:"created_at"`
	HostedInvoiceURL string          `json:"hosted_invoice_url,omitempty"`
}

func NewInvoiceSummary(inv *stripe.Invoice) InvoiceSummary {
	currency := string(inv.Currency)
	return InvoiceSummary{
		ID:               inv.ID,
		Number:           inv.Number,
		Status:           string(inv.Status),
		AmountDue:        types.FromMinorUnits(inv.AmountDue, currency),
		AmountPaid:       types.FromMinorUnits(inv.AmountPaid, currency),
		Currency:         currency,
		CreatedAt:        time.Unix(inv.Created, 0).UTC(),
		HostedInvoiceURL: inv.HostedInvoiceURL,
	}
}

// ChangeSubscriptionRequest starts a subscription or moves an existing one to another plan.
// Without a live subscription the contact fields are used to open a setup handshake.
type ChangeSubscriptionRequest struct {
	PlanKey     string                 `json:"plan_key" validate:"required,plan_key"`
	UserEmail   string                 `json:"user_email,omitempty" validate:"omitempty,email"`
	UserName    string                 `json:"user_name,omitempty"`
	BillingInfo *stripeint.BillingInfo `json:"billing_info,omitempty"`
}

func (r *ChangeSubscriptionRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if r.PlanKey == types.TrialPlanKey {
		return ierr.NewError("cannot subscribe to the trial plan").
			WithHint("Choose a paid plan").
			Mark(ierr.ErrValidation)
	}
	return nil
}

type ChangeSubscriptionAction string

const (
	ChangeSubscriptionActionSetupRequired ChangeSubscriptionAction = "setup_required"
	ChangeSubscriptionActionPlanChanged   ChangeSubscriptionAction = "plan_change_requested"
)

type ChangeSubscriptionResponse struct {
	Action               ChangeSubscriptionAction `json:"action"`
	PlanKey              string                   `json:"plan_key"`
	RemoteSubscriptionID string                   `json:"remote_subscription_id,omitempty"`
	Setup                *SetupResponse           `json:"setup,omitempty"`
}

type SubscriptionActionRequest struct {
	// AtPeriodEnd only applies to cancel.
	AtPeriodEnd bool `json:"at_period_end,omitempty"`
}

// SubscriptionActionResponse echoes the processor's view right after the request. Local state
// follows once the matching webhook arrives.
type SubscriptionActionResponse struct {
	BusinessID           string                   `json:"business_id"`
	Action               types.SubscriptionAction `json:"action"`
	RemoteSubscriptionID string                   `json:"remote_subscription_id"`
	RemoteStatus         string                   `json:"remote_status"`
}

type ListActivityResponse = types.ListResponse[*activitylog.Entry]
