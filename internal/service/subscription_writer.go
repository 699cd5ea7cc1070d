package service

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/revuo/revuo/internal/domain/activitylog"
	"github.com/revuo/revuo/internal/domain/business"
	ierr "github.com/revuo/revuo/internal/errors"
	"github.com/revuo/revuo/internal/integration/stripe/webhook"
	"github.com/revuo/revuo/internal/types"
)

var errStaleEvent = errors.New("event predates the last applied event")

// mutation edits a freshly loaded business. Returning false skips the write.
type mutation func(b *business.Business) (bool, error)

// subscriptionWriter is the single write path for subscription state. Each attempt re-reads the
// business, applies the mutation and writes conditionally on the revision it read; conflicts
// are retried with backoff.
type subscriptionWriter struct {
	ServiceParams
}

// apply runs fn against businessID. The returned business is nil when the event was skipped as
// stale or the business does not exist; applied is false when nothing was written.
func (w *subscriptionWriter) apply(ctx context.Context, businessID string, evt *webhook.Event, fn mutation) (*business.Business, bool, error) {
	log := w.Logger.WithContext(ctx)

	var (
		result  *business.Business
		applied bool
	)

	operation := func() error {
		b, err := w.BusinessRepo.Get(ctx, businessID)
		if err != nil {
			return backoff.Permanent(err)
		}

		if evt != nil && evt.Kind.ChangesState() && b.IsStale(evt.Created) {
			return backoff.Permanent(errStaleEvent)
		}

		expected := b.Revision
		ok, err := fn(b)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			result, applied = b, false
			return nil
		}

		if evt != nil {
			b.MarkEventApplied(evt.Created)
		}
		b.UpdatedAt = time.Now().UTC()

		if err := w.BusinessRepo.UpdateSubscription(ctx, b, expected); err != nil {
			if ierr.IsVersionConflict(err) {
				log.Debugw("subscription write conflicted, retrying",
					"business_id", businessID,
					"expected_revision", expected)
				return err
			}
			return backoff.Permanent(err)
		}

		result, applied = b, true
		return nil
	}

	if err := backoff.Retry(operation, w.retryPolicy(ctx)); err != nil {
		if errors.Is(err, errStaleEvent) {
			log.Infow("skipping stale event",
				"business_id", businessID,
				"event_kind", evt.Kind,
				"event_created", evt.Created)
			return nil, false, nil
		}
		if ierr.IsNotFound(err) {
			log.Warnw("business not found, ignoring event", "business_id", businessID)
			return nil, false, nil
		}
		return nil, false, err
	}

	return result, applied, nil
}

func (w *subscriptionWriter) retryPolicy(ctx context.Context) backoff.BackOffContext {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 20 * time.Millisecond
	policy.MaxInterval = 500 * time.Millisecond
	policy.MaxElapsedTime = 5 * time.Second
	return backoff.WithContext(backoff.WithMaxRetries(policy, w.Config.Webhook.ConflictRetries), ctx)
}

// audit appends an activity log entry. Audit failures never fail the caller.
func (w *subscriptionWriter) audit(ctx context.Context, businessID string, typ types.ActivityType, description string, metadata map[string]any) {
	entry := activitylog.NewEntry(ctx, businessID, typ, description, metadata)
	if err := w.ActivityLogRepo.Append(ctx, entry); err != nil {
		w.Logger.WithContext(ctx).Errorw("failed to write activity log",
			"business_id", businessID,
			"activity_type", typ,
			"error", err)
	}
}
