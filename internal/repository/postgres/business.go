package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/revuo/revuo/internal/domain/business"
	ierr "github.com/revuo/revuo/internal/errors"
	"github.com/revuo/revuo/internal/logger"
	pg "github.com/revuo/revuo/internal/postgres"
	"github.com/revuo/revuo/internal/types"
)

const businessColumns = `id, name, owner_email, active, plan_key, subscription_status, remote_customer_id,
	remote_subscription_id, remote_price_id, current_period_end, cancel_at_period_end, trial_end,
	payment_failures, last_payment_attempt, last_payment_success_at, last_event_at, revision, status,
	created_at, updated_at, created_by, updated_by`

type businessRepository struct {
	client pg.IClient
	log    *logger.Logger
}

func NewBusinessRepository(client pg.IClient, log *logger.Logger) business.Repository {
	return &businessRepository{
		client: client,
		log:    log,
	}
}

func (r *businessRepository) Create(ctx context.Context, b *business.Business) error {
	r.log.Debugw("creating business", "business_id", b.ID)

	span := StartRepositorySpan(ctx, "business", "create", map[string]any{
		"business_id": b.ID,
	})
	defer FinishSpan(span)

	sub := b.Subscription
	_, err := r.client.Writer(ctx).ExecContext(ctx,
		`INSERT INTO `+string(types.TableNameBusinesses)+` (`+businessColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`,
		b.ID, b.Name, b.OwnerEmail, b.Active, sub.PlanKey, string(sub.Status), nullString(sub.RemoteCustomerID),
		nullString(sub.RemoteSubscriptionID), nullString(sub.RemotePriceID), nullTime(sub.CurrentPeriodEnd),
		sub.CancelAtPeriodEnd, nullTime(sub.TrialEnd), sub.PaymentFailures, nullTime(sub.LastPaymentAttempt),
		nullTime(sub.LastPaymentSuccessAt), nullTime(sub.LastEventAt), b.Revision, string(b.Status), b.CreatedAt,
		b.UpdatedAt, b.CreatedBy, b.UpdatedBy,
	)
	if err != nil {
		SetSpanError(span, err)
		if pg.IsUniqueViolation(err) {
			return ierr.WithError(err).
				WithHint("Business already exists").
				WithReportableDetails(map[string]any{
					"business_id": b.ID,
				}).
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithHint("Failed to create business").
			Mark(ierr.ErrDatabase)
	}

	SetSpanSuccess(span)
	return nil
}

func (r *businessRepository) Get(ctx context.Context, id string) (*business.Business, error) {
	span := StartRepositorySpan(ctx, "business", "get", map[string]any{
		"business_id": id,
	})
	defer FinishSpan(span)

	row := r.client.Reader(ctx).QueryRowContext(ctx,
		`SELECT `+businessColumns+` FROM `+string(types.TableNameBusinesses)+` WHERE id = $1`, id)

	b, err := scanBusiness(row)
	if err != nil {
		SetSpanError(span, err)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.WithError(err).
				WithHintf("Business %s not found", id).
				WithReportableDetails(map[string]any{
					"business_id": id,
				}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHintf("Failed to get business %s", id).
			Mark(ierr.ErrDatabase)
	}

	SetSpanSuccess(span)
	return b, nil
}

// UpdateSubscription is a compare-and-swap on revision. Zero affected rows means either the
// business is gone or another writer got there first; a second query tells them apart.
func (r *businessRepository) UpdateSubscription(ctx context.Context, b *business.Business, expectedRevision int64) error {
	span := StartRepositorySpan(ctx, "business", "update_subscription", map[string]any{
		"business_id":       b.ID,
		"expected_revision": expectedRevision,
	})
	defer FinishSpan(span)

	sub := b.Subscription
	var revision int64
	err := r.client.Writer(ctx).QueryRowContext(ctx,
		`UPDATE `+string(types.TableNameBusinesses)+` SET
			active = $3, plan_key = $4, subscription_status = $5, remote_customer_id = $6,
			remote_subscription_id = $7, remote_price_id = $8, current_period_end = $9,
			cancel_at_period_end = $10, trial_end = $11, payment_failures = $12,
			last_payment_attempt = $13, last_payment_success_at = $14, last_event_at = $15,
			updated_at = $16, updated_by = $17, revision = revision + 1
		WHERE id = $1 AND revision = $2
		RETURNING revision`,
		b.ID, expectedRevision, b.Active, sub.PlanKey, string(sub.Status), nullString(sub.RemoteCustomerID),
		nullString(sub.RemoteSubscriptionID), nullString(sub.RemotePriceID), nullTime(sub.CurrentPeriodEnd),
		sub.CancelAtPeriodEnd, nullTime(sub.TrialEnd), sub.PaymentFailures, nullTime(sub.LastPaymentAttempt),
		nullTime(sub.LastPaymentSuccessAt), nullTime(sub.LastEventAt), b.UpdatedAt, b.UpdatedBy,
	).Scan(&revision)

	switch {
	case err == nil:
		b.Revision = revision
		SetSpanSuccess(span)
		return nil
	case errors.Is(err, sql.ErrNoRows):
		SetSpanError(span, err)
		if _, getErr := r.Get(ctx, b.ID); getErr != nil {
			return getErr
		}
		return ierr.NewError("business revision has advanced").
			WithHint("The business was modified concurrently").
			WithReportableDetails(map[string]any{
				"business_id":       b.ID,
				"expected_revision": expectedRevision,
			}).
			Mark(ierr.ErrVersionConflict)
	default:
		SetSpanError(span, err)
		return ierr.WithError(err).
			WithHintf("Failed to update subscription of business %s", b.ID).
			Mark(ierr.ErrDatabase)
	}
}

func (r *businessRepository) CountActiveByPlanKey(ctx context.Context, planKey string) (int, error) {
	var count int
	err := r.client.Reader(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM `+string(types.TableNameBusinesses)+` WHERE active AND plan_key = $1`, planKey).
		Scan(&count)
	if err != nil {
		return 0, ierr.WithError(err).
			WithHint("Failed to count businesses on plan").
			WithReportableDetails(map[string]any{
				"plan_key": planKey,
			}).
			Mark(ierr.ErrDatabase)
	}
	return count, nil
}

func scanBusiness(row rowScanner) (*business.Business, error) {
	var (
		b                  business.Business
		subscriptionStatus string
		status             string
		customerID         sql.NullString
		subscriptionID     sql.NullString
		priceID            sql.NullString
		periodEnd          sql.NullTime
		trialEnd           sql.NullTime
		lastAttempt        sql.NullTime
		lastSuccess        sql.NullTime
		lastEvent          sql.NullTime
	)
	err := row.Scan(
		&b.ID, &b.Name, &b.OwnerEmail, &b.Active, &b.Subscription.PlanKey, &subscriptionStatus, &customerID,
		&subscriptionID, &priceID, &periodEnd, &b.Subscription.CancelAtPeriodEnd, &trialEnd,
		&b.Subscription.PaymentFailures, &lastAttempt, &lastSuccess, &lastEvent, &b.Revision, &status,
		&b.CreatedAt, &b.UpdatedAt, &b.CreatedBy, &b.UpdatedBy,
	)
	if err != nil {
		return nil, err
	}

	b.Subscription.Status = types.SubscriptionStatus(subscriptionStatus)
	b.Subscription.RemoteCustomerID = stringPtr(customerID)
	b.Subscription.RemoteSubscriptionID = stringPtr(subscriptionID)
	b.Subscription.RemotePriceID = stringPtr(priceID)
	b.Subscription.CurrentPeriodEnd = timePtr(periodEnd)
	b.Subscription.TrialEnd = timePtr(trialEnd)
	b.Subscription.LastPaymentAttempt = timePtr(lastAttempt)
	b.Subscription.LastPaymentSuccessAt = timePtr(lastSuccess)
	b.Subscription.LastEventAt = timePtr(lastEvent)
	b.Status = types.Status(status)
	return &b, nil
}
