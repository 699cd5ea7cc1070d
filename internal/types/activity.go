package types

// ActivityType tags an audit log entry.
type ActivityType string

const (
	ActivitySubscriptionSynced    ActivityType = "subscription_synced"
	ActivitySubscriptionCreated   ActivityType = "subscription_created"
	ActivitySubscriptionCanceled  ActivityType = "subscription_canceled"
	ActivitySubscriptionPaused    ActivityType = "subscription_paused"
	ActivitySubscriptionResumed   ActivityType = "subscription_resumed"
	ActivityTrialEnding           ActivityType = "trial_ending"
	ActivityPaymentSucceeded      ActivityType = "payment_succeeded"
	ActivityPaymentFailed         ActivityType = "payment_failed"
	ActivityInvoiceUpcoming       ActivityType = "invoice_upcoming"
	ActivityPaymentMethodChanged  ActivityType = "payment_method_changed"
	ActivityDisputeCreated        ActivityType = "dispute_created"
	ActivityBusinessSuspended     ActivityType = "business_suspended"
	ActivityPaymentMethodVerified ActivityType = "payment_method_verified"
	ActivitySubscriptionRequested ActivityType = "subscription_requested"
)
