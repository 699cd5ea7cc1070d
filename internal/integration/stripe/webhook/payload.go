package webhook

import (
	"bytes"
	"encoding/json"
	"time"

	ierr "github.com/revuo/revuo/internal/errors"
	"github.com/revuo/revuo/internal/validator"
	"github.com/samber/lo"
	"github.com/stripe/stripe-go/v82"
)

const metadataBusinessID = "business_id"
const metadataPlanKey = "plan_key"

// ObjectID accepts either a bare id or an expanded object carrying an "id" field.
type ObjectID string

func (o *ObjectID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*o = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*o = ObjectID(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*o = ObjectID(obj.ID)
	return nil
}

func (o ObjectID) String() string { return string(o) }

// SubscriptionPayload is the subset of a processor subscription the reconciler reads.
type SubscriptionPayload struct {
	ID                string            `json:"id" validate:"required"`
	Customer          ObjectID          `json:"customer"`
	Status            string            `json:"status" validate:"required"`
	Metadata          map[string]string `json:"metadata"`
	CancelAtPeriodEnd bool              `json:"cancel_at_period_end"`
	// CurrentPeriodEnd is only populated by older API versions; newer ones carry it per item.
	CurrentPeriodEnd int64 `json:"current_period_end"`
	TrialEnd         int64 `json:"trial_end"`
	PauseCollection  *struct {
		Behavior string `json:"behavior"`
	} `json:"pause_collection"`
	Items struct {
		Data []SubscriptionItemPayload `json:"data"`
	} `json:"items"`
}

type SubscriptionItemPayload struct {
	ID    string `json:"id"`
	Price struct {
		ID string `json:"id"`
	} `json:"price"`
	CurrentPeriodEnd int64 `json:"current_period_end"`
}

func (s *SubscriptionPayload) BusinessID() string { return s.Metadata[metadataBusinessID] }
func (s *SubscriptionPayload) PlanKey() string    { return s.Metadata[metadataPlanKey] }

// PriceID returns the price of the first subscription item.
func (s *SubscriptionPayload) PriceID() string {
	if len(s.Items.Data) == 0 {
		return ""
	}
	return s.Items.Data[0].Price.ID
}

// ItemID returns the id of the first subscription item.
func (s *SubscriptionPayload) ItemID() string {
	if len(s.Items.Data) == 0 {
		return ""
	}
	return s.Items.Data[0].ID
}

func (s *SubscriptionPayload) PeriodEnd() *time.Time {
	if s.CurrentPeriodEnd > 0 {
		return unixPtr(s.CurrentPeriodEnd)
	}
	for _, item := range s.Items.Data {
		if item.CurrentPeriodEnd > 0 {
			return unixPtr(item.CurrentPeriodEnd)
		}
	}
	return nil
}

func (s *SubscriptionPayload) TrialEndsAt() *time.Time {
	return unixPtr(s.TrialEnd)
}

// CollectionPaused reports whether billing is paused while the subscription stays nominally active.
func (s *SubscriptionPayload) CollectionPaused() bool {
	return s.PauseCollection != nil && s.PauseCollection.Behavior != ""
}

// SubscriptionFromRemote projects a fetched processor subscription onto the webhook payload shape.
func SubscriptionFromRemote(sub *stripe.Subscription) *SubscriptionPayload {
	out := &SubscriptionPayload{
		ID:                sub.ID,
		Status:            string(sub.Status),
		Metadata:          lo.Assign(map[string]string{}, sub.Metadata),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		TrialEnd:          sub.TrialEnd,
	}
	if sub.Customer != nil {
		out.Customer = ObjectID(sub.Customer.ID)
	}
	if sub.PauseCollection != nil {
		out.PauseCollection = &struct {
			Behavior string `json:"behavior"`
		}{Behavior: string(sub.PauseCollection.Behavior)}
	}
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			payload := SubscriptionItemPayload{ID: item.ID, CurrentPeriodEnd: item.CurrentPeriodEnd}
			if item.Price != nil {
				payload.Price.ID = item.Price.ID
			}
			out.Items.Data = append(out.Items.Data, payload)
		}
	}
	return out
}

// InvoicePayload is the subset of a processor invoice the reconciler reads.
type InvoicePayload struct {
	ID           string            `json:"id" validate:"required"`
	Customer     ObjectID          `json:"customer"`
	Status       string            `json:"status"`
	Number       string            `json:"number"`
	AmountDue    int64             `json:"amount_due"`
	AmountPaid   int64             `json:"amount_paid"`
	Currency     string            `json:"currency"`
	AttemptCount int64             `json:"attempt_count"`
	Metadata     map[string]string `json:"metadata"`
	// Subscription is only populated by older API versions.
	Subscription ObjectID `json:"subscription"`
	Parent       *struct {
		SubscriptionDetails *invoiceSubscriptionDetails `json:"subscription_details"`
	} `json:"parent"`
	SubscriptionDetails *invoiceSubscriptionDetails `json:"subscription_details"`
	Lines               struct {
		Data []struct {
			Period struct {
				Start int64 `json:"start"`
				End   int64 `json:"end"`
			} `json:"period"`
		} `json:"data"`
	} `json:"lines"`
}

type invoiceSubscriptionDetails struct {
	Subscription ObjectID          `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

// BusinessID looks in the invoice metadata first, then in the subscription details snapshot.
func (i *InvoicePayload) BusinessID() string {
	if id := i.Metadata[metadataBusinessID]; id != "" {
		return id
	}
	if i.Parent != nil && i.Parent.SubscriptionDetails != nil {
		if id := i.Parent.SubscriptionDetails.Metadata[metadataBusinessID]; id != "" {
			return id
		}
	}
	if i.SubscriptionDetails != nil {
		return i.SubscriptionDetails.Metadata[metadataBusinessID]
	}
	return ""
}

func (i *InvoicePayload) SubscriptionID() string {
	if i.Parent != nil && i.Parent.SubscriptionDetails != nil && i.Parent.SubscriptionDetails.Subscription != "" {
		return i.Parent.SubscriptionDetails.Subscription.String()
	}
	return i.Subscription.String()
}

// PeriodEnd is the end of the billing period the invoice covers.
func (i *InvoicePayload) PeriodEnd() *time.Time {
	var end int64
	for _, line := range i.Lines.Data {
		end = max(end, line.Period.End)
	}
	return unixPtr(end)
}

type SetupIntentPayload struct {
	ID            string            `json:"id" validate:"required"`
	Customer      ObjectID          `json:"customer" validate:"required"`
	PaymentMethod ObjectID          `json:"payment_method"`
	Status        string            `json:"status"`
	Metadata      map[string]string `json:"metadata"`
}

func (s *SetupIntentPayload) BusinessID() string { return s.Metadata[metadataBusinessID] }
func (s *SetupIntentPayload) PlanKey() string    { return s.Metadata[metadataPlanKey] }
func (s *SetupIntentPayload) PriceID() string    { return s.Metadata["price_id"] }

type CheckoutSessionPayload struct {
	ID                string            `json:"id" validate:"required"`
	Customer          ObjectID          `json:"customer"`
	Subscription      ObjectID          `json:"subscription"`
	Mode              string            `json:"mode"`
	Status            string            `json:"status"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

// BusinessID reads metadata only. client_reference_id is deliberately not consulted.
func (c *CheckoutSessionPayload) BusinessID() string { return c.Metadata[metadataBusinessID] }

type DisputePayload struct {
	ID       string            `json:"id" validate:"required"`
	Charge   ObjectID          `json:"charge"`
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Reason   string            `json:"reason"`
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata"`
}

func (d *DisputePayload) BusinessID() string { return d.Metadata[metadataBusinessID] }

// PaymentObjectPayload covers payment intents and payment methods, which are only audited.
type PaymentObjectPayload struct {
	ID       string            `json:"id" validate:"required"`
	Object   string            `json:"object"`
	Customer ObjectID          `json:"customer"`
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Status   string            `json:"status"`
	Type     string            `json:"type"`
	Metadata map[string]string `json:"metadata"`
}

func (p *PaymentObjectPayload) BusinessID() string { return p.Metadata[metadataBusinessID] }

// decodePayload unmarshals and validates a raw event object.
func decodePayload[T any](raw json.RawMessage) (*T, error) {
	if len(raw) == 0 {
		return nil, ierr.NewError("event has no data object").
			WithHint("Event payload is empty").
			Mark(ierr.ErrValidation)
	}

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Event payload could not be decoded").
			Mark(ierr.ErrValidation)
	}

	if err := validator.ValidateRequest(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func unixPtr(ts int64) *time.Time {
	if ts <= 0 {
		return nil
	}
	return lo.ToPtr(time.Unix(ts, 0).UTC())
}
