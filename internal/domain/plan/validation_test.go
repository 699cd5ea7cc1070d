package plan

import (
	"testing"

	ierr "github.com/revuo/revuo/internal/errors"
	"github.com/revuo/revuo/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func validPlan() *Plan {
	return &Plan{
		Key:            "basic",
		Name:           "Basic",
		RecurringPrice: decimal.RequireFromString("10.00"),
		Currency:       "eur",
		Interval:       types.BillingIntervalMonth,
		Active:         true,
	}
}

func TestValidatePricePrecision(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *Plan)
		wantErr bool
	}{
		{
			name:   "two decimals in eur",
			mutate: func(p *Plan) { p.SetupPrice = decimal.RequireFromString("49.99") },
		},
		{
			name:   "trailing zeros are fine",
			mutate: func(p *Plan) { p.RecurringPrice = decimal.RequireFromString("10.000") },
		},
		{
			name:    "three decimals in eur",
			mutate:  func(p *Plan) { p.RecurringPrice = decimal.RequireFromString("10.005") },
			wantErr: true,
		},
		{
			name: "original price rounds onto recurring",
			mutate: func(p *Plan) {
				p.OriginalPrice = lo.ToPtr(decimal.RequireFromString("10.004"))
			},
			wantErr: true,
		},
		{
			name: "fractional yen",
			mutate: func(p *Plan) {
				p.Currency = "jpy"
				p.RecurringPrice = decimal.RequireFromString("990.5")
			},
			wantErr: true,
		},
		{
			name: "whole yen",
			mutate: func(p *Plan) {
				p.Currency = "jpy"
				p.RecurringPrice = decimal.RequireFromString("990")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPlan()
			tt.mutate(p)

			err := p.Validate()
			if tt.wantErr {
				assert.True(t, ierr.IsValidation(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}
