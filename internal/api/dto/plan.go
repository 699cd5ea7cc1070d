package dto

import (
	"context"
	"strings"

	"github.com/revuo/revuo/internal/domain/plan"
	ierr "github.com/revuo/revuo/internal/errors"
	"github.com/revuo/revuo/internal/types"
	"github.com/revuo/revuo/internal/validator"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

type CreatePlanRequest struct {
	Key            string                `json:"key" validate:"required,plan_key"`
	Name           string                `json:"name" validate:"required"`
	Description    string                `json:"description"`
	SetupPrice     decimal.Decimal       `json:"setup_price" swaggertype:"string"`
	RecurringPrice decimal.Decimal       `json:"recurring_price" swaggertype:"string"`
	OriginalPrice  *decimal.Decimal      `json:"original_price,omitempty" swaggertype:"string"`
	Currency       string                `json:"currency,omitempty"`
	Interval       types.BillingInterval `json:"interval,omitempty"`
	TrialDays      int                   `json:"trial_days"`
	Features       []string              `json:"features,omitempty"`
	// Active defaults to true.
	Active       *bool          `json:"active,omitempty"`
	Popular      bool           `json:"popular"`
	DisplayOrder int            `json:"display_order"`
	Metadata     types.Metadata `json:"metadata,omitempty"`
}

// Validate checks the request shape and then the plan invariants, so nothing invalid ever
// reaches the processor.
func (r *CreatePlanRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	return r.ToPlan(context.Background()).Validate()
}

func (r *CreatePlanRequest) ToPlan(ctx context.Context) *plan.Plan {
	p := &plan.Plan{
		Key:            strings.TrimSpace(r.Key),
		Name:           r.Name,
		Description:    r.Description,
		SetupPrice:     r.SetupPrice,
		RecurringPrice: r.RecurringPrice,
		OriginalPrice:  r.OriginalPrice,
		Currency:       lo.Ternary(r.Currency == "", types.DefaultCurrency, strings.ToLower(r.Currency)),
		Interval:       lo.Ternary(r.Interval == "", types.BillingIntervalMonth, r.Interval),
		TrialDays:      r.TrialDays,
		Features:       r.Features,
		Active:         lo.FromPtrOr(r.Active, true),
		Popular:        r.Popular,
		DisplayOrder:   r.DisplayOrder,
		Metadata:       r.Metadata,
		BaseModel:      types.GetDefaultBaseModel(ctx),
	}
	if p.Features == nil {
		p.Features = []string{}
	}
	return p
}

// UpdatePlanRequest is a partial update. The plan key is immutable.
type UpdatePlanRequest struct {
	Name           *string          `json:"name,omitempty"`
	Description    *string          `json:"description,omitempty"`
	SetupPrice     *decimal.Decimal `json:"setup_price,omitempty" swaggertype:"string"`
	RecurringPrice *decimal.Decimal `json:"recurring_price,omitempty" swaggertype:"string"`
	OriginalPrice  *decimal.Decimal `json:"original_price,omitempty" swaggertype:"string"`
	// ClearOriginalPrice removes a previously set original price.
	ClearOriginalPrice bool                   `json:"clear_original_price,omitempty"`
	Currency           *string                `json:"currency,omitempty"`
	Interval           *types.BillingInterval `json:"interval,omitempty"`
	TrialDays          *int                   `json:"trial_days,omitempty"`
	Features           []string               `json:"features,omitempty"`
	Active             *bool                  `json:"active,omitempty"`
	Popular            *bool                  `json:"popular,omitempty"`
	DisplayOrder       *int                   `json:"display_order,omitempty"`
	Metadata           types.Metadata         `json:"metadata,omitempty"`
}

func (r *UpdatePlanRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if r.ClearOriginalPrice && r.OriginalPrice != nil {
		return ierr.NewError("original_price and clear_original_price are mutually exclusive").
			WithHint("Either set an original price or clear it, not both").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// Apply copies the set fields onto p.
func (r *UpdatePlanRequest) Apply(ctx context.Context, p *plan.Plan) {
	if r.Name != nil {
		p.Name = *r.Name
	}
	if r.Description != nil {
		p.Description = *r.Description
	}
	if r.SetupPrice != nil {
		p.SetupPrice = *r.SetupPrice
	}
	if r.RecurringPrice != nil {
		p.RecurringPrice = *r.RecurringPrice
	}
	if r.OriginalPrice != nil {
		p.OriginalPrice = lo.ToPtr(*r.OriginalPrice)
	}
	if r.ClearOriginalPrice {
		p.OriginalPrice = nil
	}
	if r.Currency != nil {
		p.Currency = strings.ToLower(*r.Currency)
	}
	if r.Interval != nil {
		p.Interval = *r.Interval
	}
	if r.TrialDays != nil {
		p.TrialDays = *r.TrialDays
	}
	if r.Features != nil {
		p.Features = r.Features
	}
	if r.Active != nil {
		p.Active = *r.Active
	}
	if r.Popular != nil {
		p.Popular = *r.Popular
	}
	if r.DisplayOrder != nil {
		p.DisplayOrder = *r.DisplayOrder
	}
	if r.Metadata != nil {
		p.Metadata = r.Metadata
	}
	p.UpdatedBy = types.GetUserID(ctx)
}

type PlanResponse struct {
	*plan.Plan
}

type ListPlansResponse = types.ListResponse[*PlanResponse]
