package stripe

import (
	"context"
	"strconv"

	"github.com/revuo/revuo/internal/domain/plan"
	ierr "github.com/revuo/revuo/internal/errors"
	"github.com/revuo/revuo/internal/logger"
	"github.com/revuo/revuo/internal/types"
	"github.com/samber/lo"
	"github.com/stripe/stripe-go/v82"
)

// Metadata keys written on processor objects.
const (
	MetadataPlanKey         = "plan_key"
	MetadataBusinessID      = "business_id"
	MetadataUserEmail       = "user_email"
	MetadataPriceID         = "price_id"
	MetadataInterval        = "interval"
	MetadataTrialDays       = "trial_days"
	MetadataSetupPriceCents = "setup_price_cents"
)

// SyncResult carries the processor identifiers a plan should now reference.
type SyncResult struct {
	ProductID string
	PriceID   string
	// PreviousPriceID is the superseded price, empty when the price was reused or brand new.
	// It stays active until RetirePrevious is called.
	PreviousPriceID string
	PriceCreated    bool
}

// Apply stores the identifiers on the plan. The caller persists the plan.
func (r *SyncResult) Apply(p *plan.Plan) {
	p.RemoteProductID = lo.ToPtr(r.ProductID)
	p.RemotePriceID = lo.ToPtr(r.PriceID)
}

// PlanSynchronizer mirrors local plans into processor products and prices. Products are
// updated in place; prices are immutable and superseded by new ones so existing subscribers
// keep the price they signed up on.
type PlanSynchronizer struct {
	gateway Gateway
	logger  *logger.Logger
}

func NewPlanSynchronizer(gateway Gateway, log *logger.Logger) *PlanSynchronizer {
	return &PlanSynchronizer{
		gateway: gateway,
		logger:  log,
	}
}

// Sync pushes p to the processor. Any remote failure aborts the sync. A superseded price is
// reported in the result but left active, so the caller can retire it once the new
// identifiers are stored.
func (s *PlanSynchronizer) Sync(ctx context.Context, p *plan.Plan) (*SyncResult, error) {
	if p.IsTrial() {
		return &SyncResult{
			ProductID: types.TrialSentinelProductID,
			PriceID:   types.TrialSentinelPriceID,
		}, nil
	}

	productID, err := s.syncProduct(ctx, p)
	if err != nil {
		return nil, err
	}

	previousPriceID := lo.FromPtr(p.RemotePriceID)
	priceID, created, err := s.syncPrice(ctx, p, productID)
	if err != nil {
		return nil, err
	}

	result := &SyncResult{
		ProductID:    productID,
		PriceID:      priceID,
		PriceCreated: created,
	}

	if created && previousPriceID != "" && previousPriceID != priceID {
		result.PreviousPriceID = previousPriceID
	}

	s.logger.Infow("plan synchronized",
		"plan_key", p.Key,
		"product_id", productID,
		"price_id", priceID,
		"price_created", created)

	return result, nil
}

// RetirePrevious deactivates the price superseded by result. Best-effort: a stale active
// price is harmless once no plan references it.
func (s *PlanSynchronizer) RetirePrevious(ctx context.Context, p *plan.Plan, result *SyncResult) {
	if result == nil || result.PreviousPriceID == "" {
		return
	}
	if err := s.gateway.DeactivatePrice(ctx, result.PreviousPriceID); err != nil {
		s.logger.Warnw("failed to deactivate superseded price",
			"plan_key", p.Key,
			"price_id", result.PreviousPriceID,
			"new_price_id", result.PriceID,
			"error", err)
	}
}

// Archive marks the plan's product inactive. Best-effort: plan deactivation is a local
// decision and must not depend on the processor being reachable.
func (s *PlanSynchronizer) Archive(ctx context.Context, p *plan.Plan) {
	if !p.IsSynced() {
		return
	}
	if _, err := s.gateway.UpdateProduct(ctx, *p.RemoteProductID, &stripe.ProductParams{
		Active: stripe.Bool(false),
	}); err != nil {
		s.logger.Warnw("failed to archive product",
			"plan_key", p.Key,
			"product_id", *p.RemoteProductID,
			"error", err)
	}
}

func (s *PlanSynchronizer) syncProduct(ctx context.Context, p *plan.Plan) (string, error) {
	if productID := lo.FromPtr(p.RemoteProductID); productID != "" && productID != types.TrialSentinelProductID {
		existing, err := s.gateway.GetProduct(ctx, productID)
		switch {
		case err == nil && existing != nil && !existing.Deleted:
			updated, err := s.gateway.UpdateProduct(ctx, productID, productParams(p))
			if err != nil {
				return "", err
			}
			return updated.ID, nil
		case err != nil && !ierr.IsNotFound(err):
			return "", err
		}

		s.logger.Warnw("product no longer exists remotely, creating a new one",
			"plan_key", p.Key,
			"product_id", productID)
	}

	created, err := s.gateway.CreateProduct(ctx, productParams(p))
	if err != nil {
		return "", err
	}
	return created.ID, nil
}

// syncPrice returns the id of a price matching the plan, creating one unless the current
// price is still active and identical on every pricing-relevant field.
func (s *PlanSynchronizer) syncPrice(ctx context.Context, p *plan.Plan, productID string) (string, bool, error) {
	params := priceParams(p, productID)

	if previousID := lo.FromPtr(p.RemotePriceID); previousID != "" && previousID != types.TrialSentinelPriceID {
		existing, err := s.gateway.GetPrice(ctx, previousID)
		if err != nil {
			s.logger.Warnw("could not fetch current price, creating a new one",
				"plan_key", p.Key,
				"price_id", previousID,
				"error", err)
		} else if priceMatches(existing, params) {
			return existing.ID, false, nil
		}
	}

	created, err := s.gateway.CreatePrice(ctx, params)
	if err != nil {
		return "", false, err
	}
	return created.ID, true, nil
}

func planMetadata(p *plan.Plan) map[string]string {
	return map[string]string{
		MetadataPlanKey:         p.Key,
		MetadataInterval:        string(p.Interval),
		MetadataTrialDays:       strconv.Itoa(p.TrialDays),
		MetadataSetupPriceCents: strconv.FormatInt(p.SetupAmount(), 10),
	}
}

func productParams(p *plan.Plan) *stripe.ProductParams {
	params := &stripe.ProductParams{
		Name:   stripe.String(p.Name),
		Active: stripe.Bool(p.Active),
	}
	if p.Description != "" {
		params.Description = stripe.String(p.Description)
	}
	for k, v := range planMetadata(p) {
		params.AddMetadata(k, v)
	}
	return params
}

func priceParams(p *plan.Plan, productID string) *stripe.PriceParams {
	interval, count := p.Interval.Normalize()

	params := &stripe.PriceParams{
		Product:    stripe.String(productID),
		Currency:   stripe.String(p.Currency),
		UnitAmount: stripe.Int64(p.RecurringAmount()),
		Nickname:   stripe.String(p.Name),
		Recurring: &stripe.PriceRecurringParams{
			Interval:      stripe.String(string(interval)),
			IntervalCount: stripe.Int64(count),
		},
	}
	for k, v := range planMetadata(p) {
		params.AddMetadata(k, v)
	}
	return params
}

func priceMatches(existing *stripe.Price, want *stripe.PriceParams) bool {
	if existing == nil || !existing.Active || existing.Recurring == nil {
		return false
	}
	if existing.Product == nil || existing.Product.ID != lo.FromPtr(want.Product) {
		return false
	}
	return existing.UnitAmount == lo.FromPtr(want.UnitAmount) &&
		string(existing.Currency) == lo.FromPtr(want.Currency) &&
		string(existing.Recurring.Interval) == lo.FromPtr(want.Recurring.Interval) &&
		existing.Recurring.IntervalCount == lo.FromPtr(want.Recurring.IntervalCount) &&
		existing.Metadata[MetadataTrialDays] == want.Metadata[MetadataTrialDays]
}
