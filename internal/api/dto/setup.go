package dto

import (
	stripeint "github.com/revuo/revuo/internal/integration/stripe"
	"github.com/revuo/revuo/internal/validator"
)

// StartSetupRequest opens the payment method handshake for a business. PlanKey defaults to the
// business's current plan.
type StartSetupRequest struct {
	UserEmail   string                 `json:"user_email" validate:"required,email"`
	UserName    string                 `json:"user_name,omitempty"`
	PlanKey     string                 `json:"plan_key,omitempty" validate:"omitempty,plan_key"`
	BillingInfo *stripeint.BillingInfo `json:"billing_info,omitempty"`
}

func (r *StartSetupRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if r.BillingInfo != nil {
		return validator.ValidateRequest(r.BillingInfo)
	}
	return nil
}

// SetupResponse carries the client secret the front end uses to confirm the setup intent.
type SetupResponse struct {
	ClientSecret  string  `json:"client_secret"`
	SetupIntentID string  `json:"setup_intent_id"`
	CustomerID    string  `json:"customer_id"`
	TaxIDRef      *string `json:"tax_id_ref,omitempty"`
	PlanKey       string  `json:"plan_key"`
	PriceID       string  `json:"price_id"`
}

func NewSetupResponse(r *stripeint.SetupResult) *SetupResponse {
	return &SetupResponse{
		ClientSecret:  r.ClientSecret,
		SetupIntentID: r.SetupIntentID,
		CustomerID:    r.CustomerID,
		TaxIDRef:      r.TaxIDRef,
		PlanKey:       r.PlanKey,
		PriceID:       r.PriceID,
	}
}
