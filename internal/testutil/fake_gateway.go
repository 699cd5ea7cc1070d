package testutil

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	stripeint "github.com/revuo/revuo/internal/integration/stripe"
	"github.com/samber/lo"
	"github.com/stripe/stripe-go/v82"
)

var _ stripeint.Gateway = (*FakeGateway)(nil)

// FakeGateway is an in-memory processor. It records every call and can be told to fail
// specific methods.
type FakeGateway struct {
	mu sync.Mutex

	Products      map[string]*stripe.Product
	Prices        map[string]*stripe.Price
	Customers     map[string]*stripe.Customer
	TaxIDs        map[string][]*stripe.TaxID
	SetupIntents  map[string]*stripe.SetupIntent
	Subscriptions map[string]*stripe.Subscription
	Invoices      map[string][]*stripe.Invoice

	Calls []string

	LastPriceParams        *stripe.PriceParams
	LastSubscriptionParams *stripe.SubscriptionParams
	LastSetupIntentParams  *stripe.SetupIntentParams

	failures   map[string]error
	idempotent map[string]string
	seq        int
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		Products:      map[string]*stripe.Product{},
		Prices:        map[string]*stripe.Price{},
		Customers:     map[string]*stripe.Customer{},
		TaxIDs:        map[string][]*stripe.TaxID{},
		SetupIntents:  map[string]*stripe.SetupIntent{},
		Subscriptions: map[string]*stripe.Subscription{},
		Invoices:      map[string][]*stripe.Invoice{},
		failures:      map[string]error{},
		idempotent:    map[string]string{},
	}
}

// FailOn makes every subsequent call to method fail with a processor error.
func (g *FakeGateway) FailOn(method string, message string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures[method] = &stripe.Error{
		Code:           stripe.ErrorCode("fake_failure"),
		Type:           stripe.ErrorTypeInvalidRequest,
		Msg:            message,
		HTTPStatusCode: http.StatusBadRequest,
	}
}

// ClearFailures removes all injected failures.
func (g *FakeGateway) ClearFailures() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures = map[string]error{}
}

// CallCount returns how many times method was called.
func (g *FakeGateway) CallCount(method string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return lo.Count(g.Calls, method)
}

// ResetCalls clears the call log.
func (g *FakeGateway) ResetCalls() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Calls = nil
}

// AddInvoice registers an invoice for a subscription.
func (g *FakeGateway) AddInvoice(subscriptionID string, inv *stripe.Invoice) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Invoices[subscriptionID] = append(g.Invoices[subscriptionID], inv)
}

func (g *FakeGateway) begin(method string) error {
	g.Calls = append(g.Calls, method)
	if err, ok := g.failures[method]; ok {
		return stripeint.WrapError(err, "fake "+method+" failed")
	}
	return nil
}

func (g *FakeGateway) nextID(prefix string) string {
	g.seq++
	return fmt.Sprintf("%s_%04d", prefix, g.seq)
}

func missing(kind, id string) error {
	return stripeint.WrapError(&stripe.Error{
		Code:           stripe.ErrorCodeResourceMissing,
		Type:           stripe.ErrorTypeInvalidRequest,
		Msg:            fmt.Sprintf("No such %s: '%s'", kind, id),
		HTTPStatusCode: http.StatusNotFound,
	}, "fake lookup failed")
}

func (g *FakeGateway) GetProduct(_ context.Context, id string) (*stripe.Product, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin("GetProduct"); err != nil {
		return nil, err
	}
	p, ok := g.Products[id]
	if !ok {
		return nil, missing("product", id)
	}
	return p, nil
}

func (g *FakeGateway) CreateProduct(_ context.Context, params *stripe.ProductParams) (*stripe.Product, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin("CreateProduct"); err != nil {
		return nil, err
	}
	p := &stripe.Product{
		ID:          g.nextID("prod"),
		Name:        lo.FromPtr(params.Name),
		Description: lo.FromPtr(params.Description),
		Active:      lo.FromPtrOr(params.Active, true),
		Metadata:    lo.Assign(map[string]string{}, params.Metadata),
	}
	g.Products[p.ID] = p
	return p, nil
}

func (g *FakeGateway) UpdateProduct(_ context.Context, id string, params *stripe.ProductParams) (*stripe.Product, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin("UpdateProduct"); err != nil {
		return nil, err
	}
	p, ok := g.Products[id]
	if !ok {
		return nil, missing("product", id)
	}
	if params.Name != nil {
		p.Name = *params.Name
	}
	if params.Description != nil {
		p.Description = *params.Description
	}
	if params.Active != nil {
		p.Active = *params.Active
	}
	p.Metadata = lo.Assign(p.Metadata, params.Metadata)
	return p, nil
}

func (g *FakeGateway) GetPrice(_ context.Context, id string) (*stripe.Price, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin("GetPrice"); err != nil {
		return nil, err
	}
	p, ok := g.Prices[id]
	if !ok {
		return nil, missing("price", id)
	}
	return p, nil
}

func (g *FakeGateway) CreatePrice(_ context.Context, params *stripe.PriceParams) (*stripe.Price, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.LastPriceParams = params
	if err := g.begin("CreatePrice"); err != nil {
		return nil, err
	}
	p := &stripe.Price{
		ID:         g.nextID("price"),
		Active:     true,
		Currency:   stripe.Currency(lo.FromPtr(params.Currency)),
		UnitAmount: lo.FromPtr(params.UnitAmount),
		Product:    &stripe.Product{ID: lo.FromPtr(params.Product)},
		Metadata:   lo.Assign(map[string]string{}, params.Metadata),
	}
	if params.Recurring != nil {
		p.Recurring = &stripe.PriceRecurring{
			Interval:      stripe.PriceRecurringInterval(lo.FromPtr(params.Recurring.Interval)),
			IntervalCount: lo.FromPtr(params.Recurring.IntervalCount),
		}
	}
	g.Prices[p.ID] = p
	return p, nil
}

func (g *FakeGateway) DeactivatePrice(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin("DeactivatePrice"); err != nil {
		return err
	}
	p, ok := g.Prices[id]
	if !ok {
		return missing("price", id)
	}
	p.Active = false
	return nil
}

func (g *FakeGateway) FindCustomerByEmail(_ context.Context, email string) (*stripe.Customer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin("FindCustomerByEmail"); err != nil {
		return nil, err
	}
	// first created wins, like the processor's default ordering reversed
	var found *stripe.Customer
	for _, c := range g.Customers {
		if c.Email == email && (found == nil || c.ID < found.ID) {
			found = c
		}
	}
	return found, nil
}

func (g *FakeGateway) CreateCustomer(_ context.Context, params *stripe.CustomerParams) (*stripe.Customer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin("CreateCustomer"); err != nil {
		return nil, err
	}
	c := &stripe.Customer{
		ID:       g.nextID("cus"),
		Email:    lo.FromPtr(params.Email),
		Name:     lo.FromPtr(params.Name),
		Phone:    lo.FromPtr(params.Phone),
		Metadata: lo.Assign(map[string]string{}, params.Metadata),
	}
	if params.Address != nil {
		c.Address = &stripe.Address{
			Line1:      lo.FromPtr(params.Address.Line1),
			City:       lo.FromPtr(params.Address.City),
			PostalCode: lo.FromPtr(params.Address.PostalCode),
			Country:    lo.FromPtr(params.Address.Country),
		}
	}
	g.Customers[c.ID] = c
	return c, nil
}

func (g *FakeGateway) UpdateCustomer(_ context.Context, id string, params *stripe.CustomerParams) (*stripe.Customer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin("UpdateCustomer"); err != nil {
		return nil, err
	}
	c, ok := g.Customers[id]
	if !ok {
		return nil, missing("customer", id)
	}
	if params.Name != nil {
		c.Name = *params.Name
	}
	if params.Phone != nil {
		c.Phone = *params.Phone
	}
	if params.Address != nil {
		c.Address = &stripe.Address{
			Line1:      lo.FromPtr(params.Address.Line1),
			City:       lo.FromPtr(params.Address.City),
			PostalCode: lo.FromPtr(params.Address.PostalCode),
			Country:    lo.FromPtr(params.Address.Country),
		}
	}
	c.Metadata = lo.Assign(c.Metadata, params.Metadata)
	return c, nil
}

func (g *FakeGateway) ListTaxIDs(_ context.Context, customerID string) ([]*stripe.TaxID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin("ListTaxIDs"); err != nil {
		return nil, err
	}
	return append([]*stripe.TaxID(nil), g.TaxIDs[customerID]...), nil
}

func (g *FakeGateway) CreateTaxID(_ context.Context, params *stripe.TaxIDParams) (*stripe.TaxID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin("CreateTaxID"); err != nil {
		return nil, err
	}
	t := &stripe.TaxID{
		ID:    g.nextID("txi"),
		Type:  stripe.TaxIDType(lo.FromPtr(params.Type)),
		Value: lo.FromPtr(params.Value),
	}
	customerID := lo.FromPtr(params.Customer)
	g.TaxIDs[customerID] = append(g.TaxIDs[customerID], t)
	return t, nil
}

func (g *FakeGateway) CreateSetupIntent(_ context.Context, params *stripe.SetupIntentParams) (*stripe.SetupIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.LastSetupIntentParams = params
	if err := g.begin("CreateSetupIntent"); err != nil {
		return nil, err
	}
	id := g.nextID("seti")
	si := &stripe.SetupIntent{
		ID:           id,
		ClientSecret: id + "_secret_fake",
		Customer:     &stripe.Customer{ID: lo.FromPtr(params.Customer)},
		Usage:        stripe.SetupIntentUsage(lo.FromPtr(params.Usage)),
		Metadata:     lo.Assign(map[string]string{}, params.Metadata),
	}
	g.SetupIntents[id] = si
	return si, nil
}

func (g *FakeGateway) GetSubscription(_ context.Context, id string) (*stripe.Subscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin("GetSubscription"); err != nil {
		return nil, err
	}
	sub, ok := g.Subscriptions[id]
	if !ok {
		return nil, missing("subscription", id)
	}
	return sub, nil
}

func (g *FakeGateway) CreateSubscription(_ context.Context, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.LastSubscriptionParams = params
	if err := g.begin("CreateSubscription"); err != nil {
		return nil, err
	}

	if key := lo.FromPtr(params.IdempotencyKey); key != "" {
		if existing, ok := g.idempotent[key]; ok {
			return g.Subscriptions[existing], nil
		}
	}

	status := stripe.SubscriptionStatusActive
	var trialEnd int64
	if days := lo.FromPtr(params.TrialPeriodDays); days > 0 {
		status = stripe.SubscriptionStatusTrialing
		trialEnd = time.Now().Add(time.Duration(days) * 24 * time.Hour).Unix()
	}

	sub := &stripe.Subscription{
		ID:       g.nextID("sub"),
		Status:   status,
		Customer: &stripe.Customer{ID: lo.FromPtr(params.Customer)},
		Metadata: lo.Assign(map[string]string{}, params.Metadata),
		TrialEnd: trialEnd,
		Created:  time.Now().Unix(),
		Items:    &stripe.SubscriptionItemList{},
	}
	for _, item := range params.Items {
		sub.Items.Data = append(sub.Items.Data, &stripe.SubscriptionItem{
			ID:               g.nextID("si"),
			Price:            &stripe.Price{ID: lo.FromPtr(item.Price)},
			CurrentPeriodEnd: time.Now().AddDate(0, 1, 0).Unix(),
		})
	}
	g.Subscriptions[sub.ID] = sub
	if key := lo.FromPtr(params.IdempotencyKey); key != "" {
		g.idempotent[key] = sub.ID
	}
	return sub, nil
}

func (g *FakeGateway) UpdateSubscription(_ context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.LastSubscriptionParams = params
	if err := g.begin("UpdateSubscription"); err != nil {
		return nil, err
	}
	sub, ok := g.Subscriptions[id]
	if !ok {
		return nil, missing("subscription", id)
	}
	if params.PauseCollection != nil {
		sub.PauseCollection = &stripe.SubscriptionPauseCollection{
			Behavior: stripe.SubscriptionPauseCollectionBehavior(lo.FromPtr(params.PauseCollection.Behavior)),
		}
	}
	if params.Extra != nil && params.Extra.Has("pause_collection") {
		sub.PauseCollection = nil
	}
	if params.CancelAtPeriodEnd != nil {
		sub.CancelAtPeriodEnd = *params.CancelAtPeriodEnd
	}
	if params.DefaultPaymentMethod != nil {
		sub.DefaultPaymentMethod = &stripe.PaymentMethod{ID: *params.DefaultPaymentMethod}
	}
	for _, item := range params.Items {
		for _, existing := range sub.Items.Data {
			if existing.ID == lo.FromPtr(item.ID) {
				existing.Price = &stripe.Price{ID: lo.FromPtr(item.Price)}
			}
		}
	}
	sub.Metadata = lo.Assign(sub.Metadata, params.Metadata)
	return sub, nil
}

func (g *FakeGateway) CancelSubscription(_ context.Context, id string) (*stripe.Subscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin("CancelSubscription"); err != nil {
		return nil, err
	}
	sub, ok := g.Subscriptions[id]
	if !ok {
		return nil, missing("subscription", id)
	}
	sub.Status = stripe.SubscriptionStatusCanceled
	return sub, nil
}

func (g *FakeGateway) ResumeSubscription(_ context.Context, id string) (*stripe.Subscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin("ResumeSubscription"); err != nil {
		return nil, err
	}
	sub, ok := g.Subscriptions[id]
	if !ok {
		return nil, missing("subscription", id)
	}
	sub.Status = stripe.SubscriptionStatusActive
	return sub, nil
}

func (g *FakeGateway) ListInvoices(_ context.Context, subscriptionID string, limit int64) ([]*stripe.Invoice, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin("ListInvoices"); err != nil {
		return nil, err
	}
	invoices := g.Invoices[subscriptionID]
	if limit > 0 && int64(len(invoices)) > limit {
		invoices = invoices[:limit]
	}
	return append([]*stripe.Invoice(nil), invoices...), nil
}
