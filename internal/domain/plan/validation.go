package plan

import (
	"strings"

	ierr "github.com/revuo/revuo/internal/errors"
	"github.com/revuo/revuo/internal/types"
	"github.com/shopspring/decimal"
)

// Validate enforces the plan invariants. It runs before any remote call is attempted.
func (p *Plan) Validate() error {
	if p.Key == "" {
		return ierr.NewError("plan key is required").
			WithHint("Plan key is required").
			Mark(ierr.ErrValidation)
	}

	if p.Name == "" {
		return ierr.NewError("plan name is required").
			WithHint("Plan name is required").
			Mark(ierr.ErrValidation)
	}

	if p.RecurringPrice.IsNegative() || p.SetupPrice.IsNegative() {
		return ierr.NewError("prices cannot be negative").
			WithHint("Setup and recurring prices must be zero or greater").
			WithReportableDetails(map[string]any{
				"setup_price":     p.SetupPrice.String(),
				"recurring_price": p.RecurringPrice.String(),
			}).
			Mark(ierr.ErrValidation)
	}

	if p.OriginalPrice != nil && !p.OriginalPrice.GreaterThan(p.RecurringPrice) {
		return ierr.NewError("original price must be greater than recurring price").
			WithHint("Original price must be strictly greater than the recurring price").
			WithReportableDetails(map[string]any{
				"original_price":  p.OriginalPrice.String(),
				"recurring_price": p.RecurringPrice.String(),
			}).
			Mark(ierr.ErrValidation)
	}

	if err := types.ValidateCurrencyCode(p.Currency); err != nil {
		return err
	}

	precision := types.GetCurrencyPrecision(p.Currency)
	prices := map[string]*decimal.Decimal{
		"setup_price":     &p.SetupPrice,
		"recurring_price": &p.RecurringPrice,
		"original_price":  p.OriginalPrice,
	}
	for field, price := range prices {
		if price != nil && !price.Equal(price.Round(precision)) {
			return ierr.NewErrorf("%s has more than %d decimal places", field, precision).
				WithHintf("Prices in %s allow at most %d decimal places", strings.ToUpper(p.Currency), precision).
				WithReportableDetails(map[string]any{
					field:      price.String(),
					"currency": p.Currency,
				}).
				Mark(ierr.ErrValidation)
		}
	}

	if err := p.Interval.Validate(); err != nil {
		return err
	}

	if p.TrialDays < 0 || p.TrialDays > 730 {
		return ierr.NewError("invalid trial length").
			WithHint("Trial length must be between 0 and 730 days").
			WithReportableDetails(map[string]any{
				"trial_days": p.TrialDays,
			}).
			Mark(ierr.ErrValidation)
	}

	return nil
}
