package types

import (
	ierr "github.com/revuo/revuo/internal/errors"
)

// TrialPlanKey is the built-in plan every business starts on. It is never synchronized.
const TrialPlanKey = "trial"

// Sentinel identifiers returned for the trial plan instead of processor ids.
const (
	TrialSentinelProductID = "local_trial_product"
	TrialSentinelPriceID   = "local_trial_price"
)

type BillingInterval string

const (
	BillingIntervalMonth    BillingInterval = "month"
	BillingIntervalQuarter  BillingInterval = "quarter"
	BillingIntervalSemester BillingInterval = "semester"
	BillingIntervalYear     BillingInterval = "year"
)

// RecurringInterval is one of the two cadences the processor natively supports.
type RecurringInterval string

const (
	RecurringIntervalMonth RecurringInterval = "month"
	RecurringIntervalYear  RecurringInterval = "year"
)

func (b BillingInterval) Validate() error {
	switch b {
	case BillingIntervalMonth, BillingIntervalQuarter, BillingIntervalSemester, BillingIntervalYear:
		return nil
	}
	return ierr.NewError("invalid billing interval").
		WithHint("Billing interval must be one of month, quarter, semester, year").
		WithReportableDetails(map[string]any{
			"interval": b,
		}).
		Mark(ierr.ErrValidation)
}

// Normalize maps the interval onto a native processor cadence and a count multiplier.
func (b BillingInterval) Normalize() (RecurringInterval, int64) {
	switch b {
	case BillingIntervalQuarter:
		return RecurringIntervalMonth, 3
	case BillingIntervalSemester:
		return RecurringIntervalMonth, 6
	case BillingIntervalYear:
		return RecurringIntervalYear, 1
	default:
		return RecurringIntervalMonth, 1
	}
}

// PlanFilter narrows plan listings.
type PlanFilter struct {
	*QueryFilter
	ActiveOnly bool     `json:"active_only,omitempty" form:"active_only"`
	PlanKeys   []string `json:"plan_keys,omitempty" form:"plan_keys"`
}

func NewPlanFilter() *PlanFilter {
	return &PlanFilter{
		QueryFilter: NewNoLimitQueryFilter(),
	}
}

func (f *PlanFilter) Validate() error {
	if f.QueryFilter != nil {
		if err := f.QueryFilter.Validate(); err != nil {
			return err
		}
	}
	for _, key := range f.PlanKeys {
		if key == "" {
			return ierr.NewError("plan key cannot be empty").
				WithHint("Plan key cannot be empty").
				Mark(ierr.ErrValidation)
		}
	}
	return nil
}

func (f *PlanFilter) GetLimit() int {
	if f.QueryFilter == nil {
		return NewNoLimitQueryFilter().GetLimit()
	}
	return f.QueryFilter.GetLimit()
}

func (f *PlanFilter) GetOffset() int {
	if f.QueryFilter == nil {
		return 0
	}
	return f.QueryFilter.GetOffset()
}
