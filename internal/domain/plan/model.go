package plan

import (
	"github.com/revuo/revuo/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Plan is a locally authored subscription plan definition. Key is the join key between the
// local store, the processor metadata and every business subscription.
type Plan struct {
	Key             string                `json:"key"`
	Name            string                `json:"name"`
	Description     string                `json:"description"`
	SetupPrice      decimal.Decimal       `json:"setup_price" swaggertype:"string"`
	RecurringPrice  decimal.Decimal       `json:"recurring_price" swaggertype:"string"`
	OriginalPrice   *decimal.Decimal      `json:"original_price,omitempty" swaggertype:"string"`
	Currency        string                `json:"currency"`
	Interval        types.BillingInterval `json:"interval"`
	TrialDays       int                   `json:"trial_days"`
	Features        []string              `json:"features"`
	Active          bool                  `json:"active"`
	Popular         bool                  `json:"popular"`
	DisplayOrder    int                   `json:"display_order"`
	RemoteProductID *string               `json:"remote_product_id,omitempty"`
	RemotePriceID   *string               `json:"remote_price_id,omitempty"`
	Metadata        types.Metadata        `json:"metadata,omitempty"`
	types.BaseModel
}

// IsTrial reports whether this is the built-in trial plan.
func (p *Plan) IsTrial() bool {
	return p.Key == types.TrialPlanKey
}

// NeedsSync reports whether saving this plan must push it to the processor.
func (p *Plan) NeedsSync() bool {
	return p.Active && !p.IsTrial()
}

// IsSynced reports whether the plan carries real processor identifiers.
func (p *Plan) IsSynced() bool {
	return !p.IsTrial() && lo.FromPtr(p.RemoteProductID) != "" && lo.FromPtr(p.RemotePriceID) != ""
}

// RecurringAmount returns the recurring price in the currency's smallest unit.
func (p *Plan) RecurringAmount() int64 {
	return types.ToMinorUnits(p.RecurringPrice, p.Currency)
}

// SetupAmount returns the setup price in the currency's smallest unit.
func (p *Plan) SetupAmount() int64 {
	return types.ToMinorUnits(p.SetupPrice, p.Currency)
}

// Copy returns a deep copy so callers can stage edits without touching the stored record.
func (p *Plan) Copy() *Plan {
	if p == nil {
		return nil
	}
	c := *p
	c.Features = append([]string(nil), p.Features...)
	c.Metadata = lo.Assign(types.Metadata{}, p.Metadata)
	if p.OriginalPrice != nil {
		c.OriginalPrice = lo.ToPtr(*p.OriginalPrice)
	}
	if p.RemoteProductID != nil {
		c.RemoteProductID = lo.ToPtr(*p.RemoteProductID)
	}
	if p.RemotePriceID != nil {
		c.RemotePriceID = lo.ToPtr(*p.RemotePriceID)
	}
	return &c
}
