package testutil

import (
	"context"
	"strconv"
	"time"

	"github.com/revuo/revuo/internal/domain/business"
	"github.com/revuo/revuo/internal/domain/plan"
	stripeint "github.com/revuo/revuo/internal/integration/stripe"
	"github.com/revuo/revuo/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
)

// NewTestPlan returns an active monthly plan that has not been synchronized.
func NewTestPlan(key string) *plan.Plan {
	return &plan.Plan{
		Key:            key,
		Name:           "Plan " + key,
		Description:    "Test plan " + key,
		RecurringPrice: decimal.RequireFromString("29.90"),
		Currency:       types.DefaultCurrency,
		Interval:       types.BillingIntervalMonth,
		Features:       []string{"menu", "qr"},
		Active:         true,
		BaseModel:      types.GetDefaultBaseModel(context.Background()),
	}
}

func newTestBusiness() *business.Business {
	return business.New(context.Background(), "Trattoria", "owner@trattoria.test")
}

// SeedPlan registers the product and price a synchronized plan points at.
func (g *FakeGateway) SeedPlan(p *plan.Plan) {
	g.mu.Lock()
	defer g.mu.Unlock()

	interval, count := p.Interval.Normalize()
	g.Products[*p.RemoteProductID] = &stripe.Product{
		ID:       *p.RemoteProductID,
		Name:     p.Name,
		Active:   true,
		Metadata: map[string]string{stripeint.MetadataPlanKey: p.Key},
	}
	g.Prices[*p.RemotePriceID] = &stripe.Price{
		ID:         *p.RemotePriceID,
		Active:     true,
		Currency:   stripe.Currency(p.Currency),
		UnitAmount: p.RecurringAmount(),
		Product:    &stripe.Product{ID: *p.RemoteProductID},
		Recurring: &stripe.PriceRecurring{
			Interval:      stripe.PriceRecurringInterval(interval),
			IntervalCount: count,
		},
		Metadata: map[string]string{
			stripeint.MetadataPlanKey:   p.Key,
			stripeint.MetadataTrialDays: strconv.Itoa(p.TrialDays),
		},
	}
}

// SeedSubscription registers an existing processor subscription on priceID.
func (g *FakeGateway) SeedSubscription(id, customerID, priceID string, status stripe.SubscriptionStatus, metadata map[string]string) *stripe.Subscription {
	g.mu.Lock()
	defer g.mu.Unlock()

	sub := &stripe.Subscription{
		ID:       id,
		Status:   status,
		Customer: &stripe.Customer{ID: customerID},
		Metadata: metadata,
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{
				{
					ID:               "si_" + id,
					Price:            &stripe.Price{ID: priceID},
					CurrentPeriodEnd: time.Now().AddDate(0, 1, 0).Unix(),
				},
			},
		},
	}
	g.Subscriptions[id] = sub
	return sub
}
