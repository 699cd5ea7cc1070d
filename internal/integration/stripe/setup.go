package stripe

import (
	"context"

	"github.com/revuo/revuo/internal/domain/plan"
	ierr "github.com/revuo/revuo/internal/errors"
	"github.com/revuo/revuo/internal/logger"
	"github.com/samber/lo"
	"github.com/stripe/stripe-go/v82"
)

type StartSetupRequest struct {
	UserEmail   string
	BusinessID  string
	UserName    string
	PlanKey     string
	BillingInfo *BillingInfo
}

type SetupResult struct {
	ClientSecret  string
	SetupIntentID string
	CustomerID    string
	TaxIDRef      *string
	PlanKey       string
	PriceID       string
}

// CompleteSetupRequest describes a verified setup intent that should become a subscription.
type CompleteSetupRequest struct {
	SetupIntentID   string
	CustomerID      string
	PaymentMethodID string
	BusinessID      string
	PlanKey         string
	PriceID         string
}

// SetupInitiator runs the verified-payment-method handshake. Subscriptions are only created
// once the processor reports the setup intent succeeded.
type SetupInitiator struct {
	gateway   Gateway
	customers *CustomerResolver
	planRepo  plan.Repository
	logger    *logger.Logger
}

func NewSetupInitiator(gateway Gateway, customers *CustomerResolver, planRepo plan.Repository, log *logger.Logger) *SetupInitiator {
	return &SetupInitiator{
		gateway:   gateway,
		customers: customers,
		planRepo:  planRepo,
		logger:    log,
	}
}

// StartSetup resolves the customer and opens an off-session setup intent tagged with the
// correlation metadata the webhook path needs.
func (s *SetupInitiator) StartSetup(ctx context.Context, req StartSetupRequest) (*SetupResult, error) {
	target, err := s.subscribablePlan(ctx, req.PlanKey)
	if err != nil {
		return nil, err
	}

	customer, err := s.customers.Resolve(ctx, ResolveCustomerRequest{
		Email:       req.UserEmail,
		BusinessID:  req.BusinessID,
		Name:        req.UserName,
		BillingInfo: req.BillingInfo,
	})
	if err != nil {
		return nil, err
	}

	params := &stripe.SetupIntentParams{
		Customer: stripe.String(customer.CustomerID),
		Usage:    stripe.String(string(stripe.SetupIntentUsageOffSession)),
	}
	params.AddMetadata(MetadataBusinessID, req.BusinessID)
	params.AddMetadata(MetadataUserEmail, req.UserEmail)
	params.AddMetadata(MetadataPlanKey, target.Key)
	params.AddMetadata(MetadataPriceID, *target.RemotePriceID)

	intent, err := s.gateway.CreateSetupIntent(ctx, params)
	if err != nil {
		return nil, err
	}

	s.logger.Infow("setup intent created",
		"business_id", req.BusinessID,
		"customer_id", customer.CustomerID,
		"setup_intent_id", intent.ID,
		"plan_key", target.Key)

	return &SetupResult{
		ClientSecret:  intent.ClientSecret,
		SetupIntentID: intent.ID,
		CustomerID:    customer.CustomerID,
		TaxIDRef:      customer.TaxIDRef,
		PlanKey:       target.Key,
		PriceID:       *target.RemotePriceID,
	}, nil
}

// CompleteSetup creates the subscription for a succeeded setup intent. The idempotency key is
// derived from the intent so a redelivered event cannot create a second subscription.
func (s *SetupInitiator) CompleteSetup(ctx context.Context, req CompleteSetupRequest) (*stripe.Subscription, error) {
	target, err := s.subscribablePlan(ctx, req.PlanKey)
	if err != nil {
		return nil, err
	}

	priceID := req.PriceID
	if priceID == "" {
		priceID = *target.RemotePriceID
	}

	params := &stripe.SubscriptionParams{
		Customer: stripe.String(req.CustomerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(priceID)},
		},
	}
	if req.PaymentMethodID != "" {
		params.DefaultPaymentMethod = stripe.String(req.PaymentMethodID)
	}
	if target.TrialDays > 0 {
		params.TrialPeriodDays = stripe.Int64(int64(target.TrialDays))
	}
	if setup := target.SetupAmount(); setup > 0 {
		params.AddInvoiceItems = []*stripe.SubscriptionAddInvoiceItemParams{
			{
				PriceData: &stripe.InvoiceItemPriceDataParams{
					Currency:   stripe.String(target.Currency),
					Product:    stripe.String(lo.FromPtr(target.RemoteProductID)),
					UnitAmount: stripe.Int64(setup),
				},
				Quantity: stripe.Int64(1),
			},
		}
	}
	params.AddMetadata(MetadataBusinessID, req.BusinessID)
	params.AddMetadata(MetadataPlanKey, target.Key)
	params.SetIdempotencyKey("subscription-" + req.SetupIntentID)

	return s.gateway.CreateSubscription(ctx, params)
}

func (s *SetupInitiator) subscribablePlan(ctx context.Context, key string) (*plan.Plan, error) {
	if key == "" {
		return nil, ierr.NewError("plan key is required").
			WithHint("Choose a plan to subscribe to").
			Mark(ierr.ErrValidation)
	}

	p, err := s.planRepo.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	if p.IsTrial() || !p.Active {
		return nil, ierr.NewError("plan is not available for subscription").
			WithHintf("Plan %s cannot be subscribed to", key).
			WithReportableDetails(map[string]any{
				"plan_key": key,
				"active":   p.Active,
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	if !p.IsSynced() {
		return nil, ierr.NewError("plan is not synchronized with the processor").
			WithHintf("Plan %s has no processor price yet", key).
			WithReportableDetails(map[string]any{
				"plan_key": key,
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	return p, nil
}
