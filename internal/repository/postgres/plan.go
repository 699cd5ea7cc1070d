package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/revuo/revuo/internal/domain/plan"
	ierr "github.com/revuo/revuo/internal/errors"
	"github.com/revuo/revuo/internal/logger"
	pg "github.com/revuo/revuo/internal/postgres"
	"github.com/revuo/revuo/internal/types"
	"github.com/shopspring/decimal"
)

const planColumns = `key, name, description, setup_price, recurring_price, original_price, currency,
	interval, trial_days, features, active, popular, display_order, remote_product_id,
	remote_price_id, metadata, status, created_at, updated_at, created_by, updated_by`

type planRepository struct {
	client pg.IClient
	log    *logger.Logger
}

func NewPlanRepository(client pg.IClient, log *logger.Logger) plan.Repository {
	return &planRepository{
		client: client,
		log:    log,
	}
}

func (r *planRepository) Create(ctx context.Context, p *plan.Plan) error {
	r.log.Debugw("creating plan", "plan_key", p.Key)

	span := StartRepositorySpan(ctx, "plan", "create", map[string]any{
		"plan_key": p.Key,
	})
	defer FinishSpan(span)

	metadata, err := marshalMetadata(p.Metadata)
	if err != nil {
		SetSpanError(span, err)
		return err
	}

	_, err = r.client.Writer(ctx).ExecContext(ctx,
		`INSERT INTO `+string(types.TableNameSubscriptionPlans)+` (`+planColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		p.Key, p.Name, p.Description, p.SetupPrice, p.RecurringPrice, nullDecimal(p.OriginalPrice), p.Currency,
		string(p.Interval), p.TrialDays, pq.Array(p.Features), p.Active, p.Popular, p.DisplayOrder,
		nullString(p.RemoteProductID), nullString(p.RemotePriceID), metadata, string(p.Status),
		p.CreatedAt, p.UpdatedAt, p.CreatedBy, p.UpdatedBy,
	)
	if err != nil {
		SetSpanError(span, err)
		if pg.IsUniqueViolation(err) {
			return ierr.WithError(err).
				WithHintf("A plan with key %s already exists", p.Key).
				WithReportableDetails(map[string]any{
					"plan_key": p.Key,
				}).
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithHint("Failed to create plan").
			WithReportableDetails(map[string]any{
				"plan_key": p.Key,
			}).
			Mark(ierr.ErrDatabase)
	}

	SetSpanSuccess(span)
	return nil
}

func (r *planRepository) Get(ctx context.Context, key string) (*plan.Plan, error) {
	span := StartRepositorySpan(ctx, "plan", "get", map[string]any{
		"plan_key": key,
	})
	defer FinishSpan(span)

	row := r.client.Reader(ctx).QueryRowContext(ctx,
		`SELECT `+planColumns+` FROM `+string(types.TableNameSubscriptionPlans)+` WHERE key = $1`, key)

	p, err := scanPlan(row)
	if err != nil {
		SetSpanError(span, err)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.WithError(err).
				WithHintf("Plan %s was not found", key).
				WithReportableDetails(map[string]any{
					"plan_key": key,
				}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHintf("Failed to get plan %s", key).
			Mark(ierr.ErrDatabase)
	}

	SetSpanSuccess(span)
	return p, nil
}

func (r *planRepository) GetByRemotePriceID(ctx context.Context, priceID string) (*plan.Plan, error) {
	span := StartRepositorySpan(ctx, "plan", "get_by_remote_price_id", map[string]any{
		"price_id": priceID,
	})
	defer FinishSpan(span)

	row := r.client.Reader(ctx).QueryRowContext(ctx,
		`SELECT `+planColumns+` FROM `+string(types.TableNameSubscriptionPlans)+`
		WHERE remote_price_id = $1 ORDER BY display_order, key LIMIT 1`, priceID)

	p, err := scanPlan(row)
	if err != nil {
		SetSpanError(span, err)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.WithError(err).
				WithHint("No plan uses this price").
				WithReportableDetails(map[string]any{
					"price_id": priceID,
				}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to look up plan by price").
			Mark(ierr.ErrDatabase)
	}

	SetSpanSuccess(span)
	return p, nil
}

func (r *planRepository) List(ctx context.Context, filter *types.PlanFilter) ([]*plan.Plan, error) {
	if filter == nil {
		filter = types.NewPlanFilter()
	}

	span := StartRepositorySpan(ctx, "plan", "list", map[string]any{
		"active_only": filter.ActiveOnly,
	})
	defer FinishSpan(span)

	where, args := planWhere(filter)
	query := `SELECT ` + planColumns + ` FROM ` + string(types.TableNameSubscriptionPlans) + where +
		` ORDER BY display_order, key`
	if limit := filter.GetLimit(); limit > 0 {
		args = append(args, limit, filter.GetOffset())
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := r.client.Reader(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		SetSpanError(span, err)
		return nil, ierr.WithError(err).
			WithHint("Failed to list plans").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	var plans []*plan.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			SetSpanError(span, err)
			return nil, ierr.WithError(err).
				WithHint("Failed to read plan").
				Mark(ierr.ErrDatabase)
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		SetSpanError(span, err)
		return nil, ierr.WithError(err).
			WithHint("Failed to list plans").
			Mark(ierr.ErrDatabase)
	}

	SetSpanSuccess(span)
	return plans, nil
}

func (r *planRepository) Count(ctx context.Context, filter *types.PlanFilter) (int, error) {
	if filter == nil {
		filter = types.NewPlanFilter()
	}

	where, args := planWhere(filter)
	var count int
	err := r.client.Reader(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM `+string(types.TableNameSubscriptionPlans)+where, args...).Scan(&count)
	if err != nil {
		return 0, ierr.WithError(err).
			WithHint("Failed to count plans").
			Mark(ierr.ErrDatabase)
	}
	return count, nil
}

func (r *planRepository) Update(ctx context.Context, p *plan.Plan) error {
	r.log.Debugw("updating plan", "plan_key", p.Key)

	span := StartRepositorySpan(ctx, "plan", "update", map[string]any{
		"plan_key": p.Key,
	})
	defer FinishSpan(span)

	metadata, err := marshalMetadata(p.Metadata)
	if err != nil {
		SetSpanError(span, err)
		return err
	}

	result, err := r.client.Writer(ctx).ExecContext(ctx,
		`UPDATE `+string(types.TableNameSubscriptionPlans)+` SET
			name = $2, description = $3, setup_price = $4, recurring_price = $5, original_price = $6,
			currency = $7, interval = $8, trial_days = $9, features = $10, active = $11, popular = $12,
			display_order = $13, remote_product_id = $14, remote_price_id = $15, metadata = $16,
			status = $17, updated_at = $18, updated_by = $19
		WHERE key = $1`,
		p.Key, p.Name, p.Description, p.SetupPrice, p.RecurringPrice, nullDecimal(p.OriginalPrice),
		p.Currency, string(p.Interval), p.TrialDays, pq.Array(p.Features), p.Active, p.Popular,
		p.DisplayOrder, nullString(p.RemoteProductID), nullString(p.RemotePriceID), metadata,
		string(p.Status), p.UpdatedAt, p.UpdatedBy,
	)
	if err != nil {
		SetSpanError(span, err)
		return ierr.WithError(err).
			WithHintf("Failed to update plan %s", p.Key).
			Mark(ierr.ErrDatabase)
	}

	if err := expectOneRow(result, "plan", p.Key); err != nil {
		SetSpanError(span, err)
		return err
	}

	SetSpanSuccess(span)
	return nil
}

func (r *planRepository) Delete(ctx context.Context, key string) error {
	r.log.Debugw("deleting plan", "plan_key", key)

	result, err := r.client.Writer(ctx).ExecContext(ctx,
		`DELETE FROM `+string(types.TableNameSubscriptionPlans)+` WHERE key = $1`, key)
	if err != nil {
		return ierr.WithError(err).
			WithHintf("Failed to delete plan %s", key).
			Mark(ierr.ErrDatabase)
	}
	return expectOneRow(result, "plan", key)
}

func planWhere(filter *types.PlanFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if filter.ActiveOnly {
		clauses = append(clauses, "active")
	}
	if len(filter.PlanKeys) > 0 {
		args = append(args, pq.Array(filter.PlanKeys))
		clauses = append(clauses, fmt.Sprintf("key = ANY($%d)", len(args)))
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlan(row rowScanner) (*plan.Plan, error) {
	var (
		p             plan.Plan
		interval      string
		status        string
		originalPrice decimal.NullDecimal
		productID     sql.NullString
		priceID       sql.NullString
		metadata      []byte
	)
	err := row.Scan(
		&p.Key, &p.Name, &p.Description, &p.SetupPrice, &p.RecurringPrice, &originalPrice, &p.Currency,
		&interval, &p.TrialDays, pq.Array(&p.Features), &p.Active, &p.Popular, &p.DisplayOrder,
		&productID, &priceID, &metadata, &status, &p.CreatedAt, &p.UpdatedAt, &p.CreatedBy, &p.UpdatedBy,
	)
	if err != nil {
		return nil, err
	}

	p.Interval = types.BillingInterval(interval)
	p.Status = types.Status(status)
	p.RemoteProductID = stringPtr(productID)
	p.RemotePriceID = stringPtr(priceID)
	if originalPrice.Valid {
		p.OriginalPrice = &originalPrice.Decimal
	}
	if p.Features == nil {
		p.Features = []string{}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &p.Metadata); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func marshalMetadata(v any) ([]byte, error) {
	if v == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Metadata could not be encoded").
			Mark(ierr.ErrValidation)
	}
	if string(data) == "null" {
		return []byte("{}"), nil
	}
	return data, nil
}

func expectOneRow(result sql.Result, entity, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to read affected rows").
			Mark(ierr.ErrDatabase)
	}
	if n == 0 {
		return ierr.NewErrorf("%s %s not found", entity, id).
			WithHintf("%s %s was not found", strings.ToUpper(entity[:1])+entity[1:], id).
			WithReportableDetails(map[string]any{
				"id": id,
			}).
			Mark(ierr.ErrNotFound)
	}
	return nil
}
