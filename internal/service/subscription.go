package service

import (
	"context"

	"github.com/revuo/revuo/internal/api/dto"
	"github.com/revuo/revuo/internal/domain/activitylog"
	"github.com/revuo/revuo/internal/domain/business"
	"github.com/revuo/revuo/internal/domain/plan"
	ierr "github.com/revuo/revuo/internal/errors"
	stripeint "github.com/revuo/revuo/internal/integration/stripe"
	"github.com/revuo/revuo/internal/interfaces"
	"github.com/revuo/revuo/internal/types"
	"github.com/samber/lo"
	"github.com/stripe/stripe-go/v82"
)

type SubscriptionService = interfaces.SubscriptionService

// subscriptionService is the administrative surface. Its writes go to the processor only; the
// local cache follows through the webhook path.
type subscriptionService struct {
	subscriptionWriter
}

func NewSubscriptionService(params ServiceParams) SubscriptionService {
	return &subscriptionService{
		subscriptionWriter: subscriptionWriter{ServiceParams: params},
	}
}

func (s *subscriptionService) GetSubscription(ctx context.Context, businessID string, expandRemote bool) (*dto.SubscriptionResponse, error) {
	b, err := s.BusinessRepo.Get(ctx, businessID)
	if err != nil {
		return nil, err
	}

	var current *plan.Plan
	if b.Subscription.PlanKey != "" {
		current, err = s.PlanRepo.Get(ctx, b.Subscription.PlanKey)
		if err != nil && !ierr.IsNotFound(err) {
			return nil, err
		}
	}

	resp := dto.NewSubscriptionResponse(b, current)

	subscriptionID := lo.FromPtr(b.Subscription.RemoteSubscriptionID)
	if !expandRemote || subscriptionID == "" {
		return resp, nil
	}

	// Enrichment is best-effort: the local cache is still a valid answer.
	remote, err := s.Gateway.GetSubscription(ctx, subscriptionID)
	if err != nil {
		s.Logger.WithContext(ctx).Warnw("failed to fetch remote subscription",
			"business_id", businessID,
			"subscription_id", subscriptionID,
			"error", err)
		resp.RemoteError = ierr.GetHint(err)
		return resp, nil
	}

	invoices, err := s.Gateway.ListInvoices(ctx, subscriptionID, s.Config.Billing.InvoiceHistorySize)
	if err != nil {
		s.Logger.WithContext(ctx).Warnw("failed to list invoices",
			"business_id", businessID,
			"subscription_id", subscriptionID,
			"error", err)
		resp.RemoteError = ierr.GetHint(err)
	}

	resp.Remote = dto.NewRemoteSubscription(remote, invoices)
	return resp, nil
}

// StartSetup opens the payment method handshake. Without an explicit plan the business's
// current plan is used.
func (s *subscriptionService) StartSetup(ctx context.Context, businessID string, req dto.StartSetupRequest) (*dto.SetupResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	b, err := s.BusinessRepo.Get(ctx, businessID)
	if err != nil {
		return nil, err
	}

	planKey := lo.Ternary(req.PlanKey != "", req.PlanKey, b.Subscription.PlanKey)

	result, err := s.Setup.StartSetup(ctx, stripeint.StartSetupRequest{
		UserEmail:   req.UserEmail,
		BusinessID:  b.ID,
		UserName:    req.UserName,
		PlanKey:     planKey,
		BillingInfo: req.BillingInfo,
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, b.ID, types.ActivitySubscriptionRequested, "Payment method setup started", map[string]any{
		"plan_key":        result.PlanKey,
		"setup_intent_id": result.SetupIntentID,
		"customer_id":     result.CustomerID,
	})

	return dto.NewSetupResponse(result), nil
}

// ChangeSubscription moves a live subscription to another plan's price, or opens a setup
// handshake when there is nothing to change yet.
func (s *subscriptionService) ChangeSubscription(ctx context.Context, businessID string, req dto.ChangeSubscriptionRequest) (*dto.ChangeSubscriptionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	b, err := s.BusinessRepo.Get(ctx, businessID)
	if err != nil {
		return nil, err
	}

	subscriptionID := lo.FromPtr(b.Subscription.RemoteSubscriptionID)
	if subscriptionID == "" || !hasLiveSubscription(b) {
		return s.requireSetup(ctx, b, req)
	}

	if b.Subscription.PlanKey == req.PlanKey {
		return nil, ierr.NewError("business is already on this plan").
			WithHintf("Business is already subscribed to %s", req.PlanKey).
			Mark(ierr.ErrInvalidOperation)
	}

	target, err := s.PlanRepo.Get(ctx, req.PlanKey)
	if err != nil {
		return nil, err
	}
	if !target.Active || !target.IsSynced() {
		return nil, ierr.NewError("plan is not available for subscription").
			WithHintf("Plan %s cannot be subscribed to", req.PlanKey).
			WithReportableDetails(map[string]any{
				"plan_key": req.PlanKey,
				"active":   target.Active,
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	remote, err := s.Gateway.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if remote.Items == nil || len(remote.Items.Data) == 0 {
		return nil, ierr.NewError("remote subscription has no items").
			WithHint("The processor subscription cannot be changed").
			WithReportableDetails(map[string]any{
				"subscription_id": subscriptionID,
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	params := &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{
			{
				ID:    stripe.String(remote.Items.Data[0].ID),
				Price: target.RemotePriceID,
			},
		},
		ProrationBehavior: stripe.String("create_prorations"),
	}
	params.AddMetadata(stripeint.MetadataPlanKey, target.Key)
	params.AddMetadata(stripeint.MetadataBusinessID, b.ID)

	updated, err := s.Gateway.UpdateSubscription(ctx, subscriptionID, params)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, b.ID, types.ActivitySubscriptionRequested, "Plan change requested", map[string]any{
		"subscription_id": subscriptionID,
		"from_plan_key":   b.Subscription.PlanKey,
		"to_plan_key":     target.Key,
	})

	return &dto.ChangeSubscriptionResponse{
		Action:               dto.ChangeSubscriptionActionPlanChanged,
		PlanKey:              target.Key,
		RemoteSubscriptionID: updated.ID,
	}, nil
}

func (s *subscriptionService) requireSetup(ctx context.Context, b *business.Business, req dto.ChangeSubscriptionRequest) (*dto.ChangeSubscriptionResponse, error) {
	email := lo.Ternary(req.UserEmail != "", req.UserEmail, b.OwnerEmail)
	if email == "" {
		return nil, ierr.NewError("user email is required to start a subscription").
			WithHint("Provide user_email to set up a payment method").
			Mark(ierr.ErrValidation)
	}

	setup, err := s.StartSetup(ctx, b.ID, dto.StartSetupRequest{
		UserEmail:   email,
		UserName:    req.UserName,
		PlanKey:     req.PlanKey,
		BillingInfo: req.BillingInfo,
	})
	if err != nil {
		return nil, err
	}

	return &dto.ChangeSubscriptionResponse{
		Action:  dto.ChangeSubscriptionActionSetupRequired,
		PlanKey: req.PlanKey,
		Setup:   setup,
	}, nil
}

// ApplyAction forwards pause, resume or cancel to the processor and records the request.
func (s *subscriptionService) ApplyAction(ctx context.Context, businessID string, action types.SubscriptionAction, req dto.SubscriptionActionRequest) (*dto.SubscriptionActionResponse, error) {
	if err := action.Validate(); err != nil {
		return nil, err
	}

	b, err := s.BusinessRepo.Get(ctx, businessID)
	if err != nil {
		return nil, err
	}

	subscriptionID := lo.FromPtr(b.Subscription.RemoteSubscriptionID)
	if subscriptionID == "" {
		return nil, ierr.NewError("business has no remote subscription").
			WithHint("This business has no subscription to change").
			WithReportableDetails(map[string]any{
				"business_id": businessID,
				"action":      action,
			}).
			Mark(ierr.ErrInvalidOperation)
	}
	if b.Subscription.Status == types.SubscriptionStatusCanceled {
		return nil, ierr.NewError("subscription is canceled").
			WithHint("A canceled subscription cannot be changed").
			Mark(ierr.ErrInvalidOperation)
	}

	var remote *stripe.Subscription
	switch action {
	case types.SubscriptionActionPause:
		params := &stripe.SubscriptionParams{
			PauseCollection: &stripe.SubscriptionPauseCollectionParams{
				Behavior: stripe.String(string(stripe.SubscriptionPauseCollectionBehaviorVoid)),
			},
		}
		remote, err = s.Gateway.UpdateSubscription(ctx, subscriptionID, params)
	case types.SubscriptionActionResume:
		remote, err = s.resume(ctx, subscriptionID)
	case types.SubscriptionActionCancel:
		if req.AtPeriodEnd {
			remote, err = s.Gateway.UpdateSubscription(ctx, subscriptionID, &stripe.SubscriptionParams{
				CancelAtPeriodEnd: stripe.Bool(true),
			})
		} else {
			remote, err = s.Gateway.CancelSubscription(ctx, subscriptionID)
		}
	}
	if err != nil {
		return nil, err
	}

	s.audit(ctx, b.ID, types.ActivitySubscriptionRequested, "Subscription "+string(action)+" requested", map[string]any{
		"subscription_id": subscriptionID,
		"action":          action,
		"at_period_end":   req.AtPeriodEnd,
		"remote_status":   remote.Status,
	})

	return &dto.SubscriptionActionResponse{
		BusinessID:           b.ID,
		Action:               action,
		RemoteSubscriptionID: subscriptionID,
		RemoteStatus:         string(remote.Status),
	}, nil
}

// resume clears a collection pause, or resumes a subscription the processor paused itself.
func (s *subscriptionService) resume(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	current, err := s.Gateway.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if current.Status == stripe.SubscriptionStatusPaused {
		return s.Gateway.ResumeSubscription(ctx, subscriptionID)
	}

	params := &stripe.SubscriptionParams{}
	params.AddExtra("pause_collection", "")
	return s.Gateway.UpdateSubscription(ctx, subscriptionID, params)
}

func (s *subscriptionService) ListActivity(ctx context.Context, businessID string, filter *types.QueryFilter) (*dto.ListActivityResponse, error) {
	if filter == nil {
		filter = types.NewDefaultQueryFilter()
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.BusinessRepo.Get(ctx, businessID); err != nil {
		return nil, err
	}

	entries, err := s.ActivityLogRepo.ListByBusiness(ctx, businessID, filter)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []*activitylog.Entry{}
	}

	total, err := s.ActivityLogRepo.CountByBusiness(ctx, businessID)
	if err != nil {
		return nil, err
	}

	return &dto.ListActivityResponse{
		Items:      entries,
		Pagination: types.NewPaginationResponse(total, filter.GetLimit(), filter.GetOffset()),
	}, nil
}
