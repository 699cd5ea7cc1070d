package types

import (
	ierr "github.com/revuo/revuo/internal/errors"
)

// SubscriptionStatus is the locally cached state of a business subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusInactive  SubscriptionStatus = "inactive"
	SubscriptionStatusSuspended SubscriptionStatus = "suspended"
	SubscriptionStatusCanceled  SubscriptionStatus = "canceled"
	SubscriptionStatusPastDue   SubscriptionStatus = "past_due"
	SubscriptionStatusTrialing  SubscriptionStatus = "trialing"
)

// GrantsAccess reports whether a business in this status is considered active.
func (s SubscriptionStatus) GrantsAccess() bool {
	return s == SubscriptionStatusActive || s == SubscriptionStatusTrialing
}

func (s SubscriptionStatus) Validate() error {
	switch s {
	case SubscriptionStatusActive, SubscriptionStatusInactive, SubscriptionStatusSuspended,
		SubscriptionStatusCanceled, SubscriptionStatusPastDue, SubscriptionStatusTrialing:
		return nil
	}
	return ierr.NewError("invalid subscription status").
		WithHint("Unknown subscription status").
		WithReportableDetails(map[string]any{
			"status": s,
		}).
		Mark(ierr.ErrValidation)
}

// SubscriptionAction is an explicit administrative lifecycle request.
type SubscriptionAction string

const (
	SubscriptionActionPause  SubscriptionAction = "pause"
	SubscriptionActionResume SubscriptionAction = "resume"
	SubscriptionActionCancel SubscriptionAction = "cancel"
)

func (a SubscriptionAction) Validate() error {
	switch a {
	case SubscriptionActionPause, SubscriptionActionResume, SubscriptionActionCancel:
		return nil
	}
	return ierr.NewError("invalid subscription action").
		WithHint("Action must be one of pause, resume, cancel").
		WithReportableDetails(map[string]any{
			"action": a,
		}).
		Mark(ierr.ErrValidation)
}
