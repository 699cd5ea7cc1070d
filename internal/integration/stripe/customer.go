package stripe

import (
	"context"
	"strings"

	ierr "github.com/revuo/revuo/internal/errors"
	"github.com/revuo/revuo/internal/logger"
	"github.com/stripe/stripe-go/v82"
)

// DefaultTaxIDType is used when billing info carries a tax id without a type.
const DefaultTaxIDType = "eu_vat"

// BillingInfo is the optional invoicing identity attached to a customer.
type BillingInfo struct {
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	State      string `json:"state,omitempty"`
	Country    string `json:"country,omitempty" validate:"omitempty,iso3166_1_alpha2"`
	Phone      string `json:"phone,omitempty"`
	TaxID      string `json:"tax_id,omitempty"`
	TaxIDType  string `json:"tax_id_type,omitempty"`
}

func (b *BillingInfo) hasAddress() bool {
	return b.Line1 != "" || b.Line2 != "" || b.City != "" || b.PostalCode != "" || b.State != "" || b.Country != ""
}

type ResolveCustomerRequest struct {
	Email       string
	BusinessID  string
	Name        string
	BillingInfo *BillingInfo
}

type ResolvedCustomer struct {
	CustomerID string
	// TaxIDRef is nil when no tax id was supplied or it could not be attached.
	TaxIDRef *string
	Created  bool
}

// CustomerResolver maps a business contact email to a single processor customer.
type CustomerResolver struct {
	gateway Gateway
	logger  *logger.Logger
}

func NewCustomerResolver(gateway Gateway, log *logger.Logger) *CustomerResolver {
	return &CustomerResolver{
		gateway: gateway,
		logger:  log,
	}
}

// Resolve finds the customer by email and refreshes it, or creates it. Repeated calls with the
// same email converge on one customer.
func (r *CustomerResolver) Resolve(ctx context.Context, req ResolveCustomerRequest) (*ResolvedCustomer, error) {
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" || req.BusinessID == "" {
		return nil, ierr.NewError("email and business id are required").
			WithHint("A billing email and business id are required to resolve a customer").
			Mark(ierr.ErrValidation)
	}

	existing, err := r.gateway.FindCustomerByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	result := &ResolvedCustomer{}
	switch {
	case existing != nil && (req.Name != "" || req.BillingInfo != nil):
		updated, err := r.gateway.UpdateCustomer(ctx, existing.ID, customerParams(req, false))
		if err != nil {
			return nil, err
		}
		result.CustomerID = updated.ID
	case existing != nil:
		result.CustomerID = existing.ID
	default:
		params := customerParams(req, true)
		params.Email = stripe.String(email)
		created, err := r.gateway.CreateCustomer(ctx, params)
		if err != nil {
			return nil, err
		}
		result.CustomerID = created.ID
		result.Created = true
	}

	if req.BillingInfo != nil && req.BillingInfo.TaxID != "" {
		result.TaxIDRef = r.ensureTaxID(ctx, result.CustomerID, req.BillingInfo)
	}

	r.logger.Infow("customer resolved",
		"business_id", req.BusinessID,
		"customer_id", result.CustomerID,
		"created", result.Created,
		"has_tax_id", result.TaxIDRef != nil)

	return result, nil
}

// ensureTaxID attaches the tax id unless an equivalent one exists. Failures are logged and
// swallowed since invoicing works without it.
func (r *CustomerResolver) ensureTaxID(ctx context.Context, customerID string, info *BillingInfo) *string {
	taxType := info.TaxIDType
	if taxType == "" {
		taxType = DefaultTaxIDType
	}
	value := normalizeTaxID(info.TaxID)

	existing, err := r.gateway.ListTaxIDs(ctx, customerID)
	if err != nil {
		r.logger.Warnw("failed to list tax ids", "customer_id", customerID, "error", err)
		return nil
	}
	for _, t := range existing {
		if string(t.Type) == taxType && normalizeTaxID(t.Value) == value {
			return stripe.String(t.ID)
		}
	}

	created, err := r.gateway.CreateTaxID(ctx, &stripe.TaxIDParams{
		Customer: stripe.String(customerID),
		Type:     stripe.String(taxType),
		Value:    stripe.String(value),
	})
	if err != nil {
		r.logger.Warnw("failed to create tax id",
			"customer_id", customerID,
			"tax_id_type", taxType,
			"error", err)
		return nil
	}
	return stripe.String(created.ID)
}

func customerParams(req ResolveCustomerRequest, creating bool) *stripe.CustomerParams {
	params := &stripe.CustomerParams{}
	if req.Name != "" {
		params.Name = stripe.String(req.Name)
	}
	params.AddMetadata(MetadataBusinessID, req.BusinessID)

	info := req.BillingInfo
	if info == nil {
		return params
	}
	if info.Phone != "" {
		params.Phone = stripe.String(info.Phone)
	}
	if info.hasAddress() {
		params.Address = &stripe.AddressParams{
			Line1:      stripe.String(info.Line1),
			Line2:      stripe.String(info.Line2),
			City:       stripe.String(info.City),
			PostalCode: stripe.String(info.PostalCode),
			State:      stripe.String(info.State),
			Country:    stripe.String(strings.ToUpper(info.Country)),
		}
	}
	if creating && info.TaxID != "" {
		params.AddMetadata("tax_id", normalizeTaxID(info.TaxID))
	}
	return params
}

func normalizeTaxID(v string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(v), " ", ""))
}
