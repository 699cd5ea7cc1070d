package stripe

import (
	"context"
	"errors"
	"net/http"

	"github.com/revuo/revuo/internal/config"
	ierr "github.com/revuo/revuo/internal/errors"
	"github.com/revuo/revuo/internal/logger"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// Gateway is the subset of the processor API the billing core calls. Production uses Client;
// tests substitute testutil.FakeGateway.
type Gateway interface {
	GetProduct(ctx context.Context, id string) (*stripe.Product, error)
	CreateProduct(ctx context.Context, params *stripe.ProductParams) (*stripe.Product, error)
	UpdateProduct(ctx context.Context, id string, params *stripe.ProductParams) (*stripe.Product, error)

	GetPrice(ctx context.Context, id string) (*stripe.Price, error)
	CreatePrice(ctx context.Context, params *stripe.PriceParams) (*stripe.Price, error)
	DeactivatePrice(ctx context.Context, id string) error

	// FindCustomerByEmail returns the first customer with this email, or nil when none exists.
	FindCustomerByEmail(ctx context.Context, email string) (*stripe.Customer, error)
	CreateCustomer(ctx context.Context, params *stripe.CustomerParams) (*stripe.Customer, error)
	UpdateCustomer(ctx context.Context, id string, params *stripe.CustomerParams) (*stripe.Customer, error)
	ListTaxIDs(ctx context.Context, customerID string) ([]*stripe.TaxID, error)
	CreateTaxID(ctx context.Context, params *stripe.TaxIDParams) (*stripe.TaxID, error)

	CreateSetupIntent(ctx context.Context, params *stripe.SetupIntentParams) (*stripe.SetupIntent, error)

	GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error)
	CreateSubscription(ctx context.Context, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
	UpdateSubscription(ctx context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
	CancelSubscription(ctx context.Context, id string) (*stripe.Subscription, error)
	// ResumeSubscription resumes a subscription the processor itself paused.
	ResumeSubscription(ctx context.Context, id string) (*stripe.Subscription, error)

	ListInvoices(ctx context.Context, subscriptionID string, limit int64) ([]*stripe.Invoice, error)
}

// Client implements Gateway on top of an explicitly constructed stripe client.API. The
// package-level stripe.Key is never touched.
type Client struct {
	api    *client.API
	logger *logger.Logger
}

// NewClient builds the processor client from validated configuration.
func NewClient(cfg *config.Configuration, log *logger.Logger) *Client {
	backends := stripe.NewBackendsWithConfig(&stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(cfg.Stripe.MaxNetworkRetries),
		LeveledLogger:     log.GetStripeLogger(),
	})

	return &Client{
		api:    client.New(cfg.Stripe.SecretKey, backends),
		logger: log,
	}
}

var _ Gateway = (*Client)(nil)

func (c *Client) GetProduct(ctx context.Context, id string) (*stripe.Product, error) {
	params := &stripe.ProductParams{}
	params.Context = ctx
	product, err := c.api.Products.Get(id, params)
	if err != nil {
		return nil, WrapError(err, "failed to fetch product")
	}
	return product, nil
}

func (c *Client) CreateProduct(ctx context.Context, params *stripe.ProductParams) (*stripe.Product, error) {
	params.Context = ctx
	product, err := c.api.Products.New(params)
	if err != nil {
		return nil, WrapError(err, "failed to create product")
	}
	return product, nil
}

func (c *Client) UpdateProduct(ctx context.Context, id string, params *stripe.ProductParams) (*stripe.Product, error) {
	params.Context = ctx
	product, err := c.api.Products.Update(id, params)
	if err != nil {
		return nil, WrapError(err, "failed to update product")
	}
	return product, nil
}

func (c *Client) GetPrice(ctx context.Context, id string) (*stripe.Price, error) {
	params := &stripe.PriceParams{}
	params.Context = ctx
	price, err := c.api.Prices.Get(id, params)
	if err != nil {
		return nil, WrapError(err, "failed to fetch price")
	}
	return price, nil
}

func (c *Client) CreatePrice(ctx context.Context, params *stripe.PriceParams) (*stripe.Price, error) {
	params.Context = ctx
	price, err := c.api.Prices.New(params)
	if err != nil {
		return nil, WrapError(err, "failed to create price")
	}
	return price, nil
}

func (c *Client) DeactivatePrice(ctx context.Context, id string) error {
	params := &stripe.PriceParams{Active: stripe.Bool(false)}
	params.Context = ctx
	if _, err := c.api.Prices.Update(id, params); err != nil {
		return WrapError(err, "failed to deactivate price")
	}
	return nil
}

func (c *Client) FindCustomerByEmail(ctx context.Context, email string) (*stripe.Customer, error) {
	params := &stripe.CustomerListParams{Email: stripe.String(email)}
	params.Context = ctx
	params.Limit = stripe.Int64(1)

	iter := c.api.Customers.List(params)
	if iter.Next() {
		return iter.Customer(), nil
	}
	if err := iter.Err(); err != nil {
		return nil, WrapError(err, "failed to look up customer")
	}
	return nil, nil
}

func (c *Client) CreateCustomer(ctx context.Context, params *stripe.CustomerParams) (*stripe.Customer, error) {
	params.Context = ctx
	customer, err := c.api.Customers.New(params)
	if err != nil {
		return nil, WrapError(err, "failed to create customer")
	}
	return customer, nil
}

func (c *Client) UpdateCustomer(ctx context.Context, id string, params *stripe.CustomerParams) (*stripe.Customer, error) {
	params.Context = ctx
	customer, err := c.api.Customers.Update(id, params)
	if err != nil {
		return nil, WrapError(err, "failed to update customer")
	}
	return customer, nil
}

func (c *Client) ListTaxIDs(ctx context.Context, customerID string) ([]*stripe.TaxID, error) {
	params := &stripe.TaxIDListParams{Customer: stripe.String(customerID)}
	params.Context = ctx

	var taxIDs []*stripe.TaxID
	iter := c.api.TaxIDs.List(params)
	for iter.Next() {
		taxIDs = append(taxIDs, iter.TaxID())
	}
	if err := iter.Err(); err != nil {
		return nil, WrapError(err, "failed to list tax ids")
	}
	return taxIDs, nil
}

func (c *Client) CreateTaxID(ctx context.Context, params *stripe.TaxIDParams) (*stripe.TaxID, error) {
	params.Context = ctx
	taxID, err := c.api.TaxIDs.New(params)
	if err != nil {
		return nil, WrapError(err, "failed to create tax id")
	}
	return taxID, nil
}

func (c *Client) CreateSetupIntent(ctx context.Context, params *stripe.SetupIntentParams) (*stripe.SetupIntent, error) {
	params.Context = ctx
	intent, err := c.api.SetupIntents.New(params)
	if err != nil {
		return nil, WrapError(err, "failed to create setup intent")
	}
	return intent, nil
}

func (c *Client) GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := c.api.Subscriptions.Get(id, params)
	if err != nil {
		return nil, WrapError(err, "failed to fetch subscription")
	}
	return sub, nil
}

func (c *Client) CreateSubscription(ctx context.Context, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	params.Context = ctx
	sub, err := c.api.Subscriptions.New(params)
	if err != nil {
		return nil, WrapError(err, "failed to create subscription")
	}
	return sub, nil
}

func (c *Client) UpdateSubscription(ctx context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	params.Context = ctx
	sub, err := c.api.Subscriptions.Update(id, params)
	if err != nil {
		return nil, WrapError(err, "failed to update subscription")
	}
	return sub, nil
}

func (c *Client) CancelSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	sub, err := c.api.Subscriptions.Cancel(id, params)
	if err != nil {
		return nil, WrapError(err, "failed to cancel subscription")
	}
	return sub, nil
}

func (c *Client) ResumeSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionResumeParams{
		BillingCycleAnchor: stripe.String("unchanged"),
	}
	params.Context = ctx
	sub, err := c.api.Subscriptions.Resume(id, params)
	if err != nil {
		return nil, WrapError(err, "failed to resume subscription")
	}
	return sub, nil
}

func (c *Client) ListInvoices(ctx context.Context, subscriptionID string, limit int64) ([]*stripe.Invoice, error) {
	params := &stripe.InvoiceListParams{Subscription: stripe.String(subscriptionID)}
	params.Context = ctx
	params.Limit = stripe.Int64(limit)
	params.Single = true

	var invoices []*stripe.Invoice
	iter := c.api.Invoices.List(params)
	for iter.Next() {
		invoices = append(invoices, iter.Invoice())
	}
	if err := iter.Err(); err != nil {
		return nil, WrapError(err, "failed to list invoices")
	}
	return invoices, nil
}

// WrapError converts a processor error into ErrProcessor carrying the processor's own code and
// message, so operators can tell a declined card from invalid input.
func WrapError(err error, msg string) error {
	if err == nil {
		return nil
	}

	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return ierr.WithError(err).
			WithMessage(msg).
			WithHint("Payment processor request failed").
			Mark(ierr.ErrProcessor)
	}

	details := map[string]any{
		"code":        string(stripeErr.Code),
		"type":        string(stripeErr.Type),
		"message":     stripeErr.Msg,
		"http_status": stripeErr.HTTPStatusCode,
	}
	if stripeErr.DeclineCode != "" {
		details["decline_code"] = string(stripeErr.DeclineCode)
	}
	if stripeErr.RequestID != "" {
		details["request_id"] = stripeErr.RequestID
	}

	builder := ierr.WithError(err).
		WithMessage(msg).
		WithHint(stripeErr.Msg).
		WithReportableDetails(details)

	if IsResourceMissing(err) {
		return builder.Mark(ierr.ErrNotFound)
	}
	return builder.Mark(ierr.ErrProcessor)
}

// IsResourceMissing reports whether the processor said the referenced object does not exist.
func IsResourceMissing(err error) bool {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return false
	}
	return stripeErr.Code == stripe.ErrorCodeResourceMissing || stripeErr.HTTPStatusCode == http.StatusNotFound
}
