package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/revuo/revuo/internal/domain/activitylog"
	ierr "github.com/revuo/revuo/internal/errors"
	"github.com/revuo/revuo/internal/logger"
	pg "github.com/revuo/revuo/internal/postgres"
	"github.com/revuo/revuo/internal/types"
)

type activityLogRepository struct {
	client pg.IClient
	log    *logger.Logger
}

func NewActivityLogRepository(client pg.IClient, log *logger.Logger) activitylog.Repository {
	return &activityLogRepository{
		client: client,
		log:    log,
	}
}

func (r *activityLogRepository) Append(ctx context.Context, entry *activitylog.Entry) error {
	metadata, err := marshalMetadata(entry.Metadata)
	if err != nil {
		return err
	}

	_, err = r.client.Writer(ctx).ExecContext(ctx,
		`INSERT INTO `+string(types.TableNameActivityLogs)+` (id, business_id, type, description, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.BusinessID, string(entry.Type), entry.Description, metadata, entry.CreatedAt,
	)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to record activity").
			WithReportableDetails(map[string]any{
				"business_id": entry.BusinessID,
				"type":        entry.Type,
			}).
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *activityLogRepository) ListByBusiness(ctx context.Context, businessID string, filter *types.QueryFilter) ([]*activitylog.Entry, error) {
	span := StartRepositorySpan(ctx, "activity_log", "list_by_business", map[string]any{
		"business_id": businessID,
	})
	defer FinishSpan(span)

	args := []any{businessID}
	query := `SELECT id, business_id, type, description, metadata, created_at
		FROM ` + string(types.TableNameActivityLogs) + `
		WHERE business_id = $1
		ORDER BY created_at DESC, id DESC`
	if limit := filter.GetLimit(); limit > 0 {
		args = append(args, limit, filter.GetOffset())
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := r.client.Reader(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		SetSpanError(span, err)
		return nil, ierr.WithError(err).
			WithHint("Failed to list activity").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	var entries []*activitylog.Entry
	for rows.Next() {
		var (
			e        activitylog.Entry
			typ      string
			metadata []byte
		)
		if err := rows.Scan(&e.ID, &e.BusinessID, &typ, &e.Description, &metadata, &e.CreatedAt); err != nil {
			SetSpanError(span, err)
			return nil, ierr.WithError(err).
				WithHint("Failed to read activity").
				Mark(ierr.ErrDatabase)
		}
		e.Type = types.ActivityType(typ)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				r.log.Warnw("activity metadata is not valid json", "activity_id", e.ID, "error", err)
			}
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		SetSpanError(span, err)
		return nil, ierr.WithError(err).
			WithHint("Failed to list activity").
			Mark(ierr.ErrDatabase)
	}

	SetSpanSuccess(span)
	return entries, nil
}

func (r *activityLogRepository) CountByBusiness(ctx context.Context, businessID string) (int, error) {
	var count int
	err := r.client.Reader(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM `+string(types.TableNameActivityLogs)+` WHERE business_id = $1`, businessID).
		Scan(&count)
	if err != nil {
		return 0, ierr.WithError(err).
			WithHint("Failed to count activity").
			WithReportableDetails(map[string]any{
				"business_id": businessID,
			}).
			Mark(ierr.ErrDatabase)
	}
	return count, nil
}
