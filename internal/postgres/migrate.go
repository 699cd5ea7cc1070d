package postgres

import (
	"context"
	"embed"

	"github.com/pressly/goose/v3"
	ierr "github.com/revuo/revuo/internal/errors"
)

//go:embed migrations/*.sql
var migrations embed.FS

const migrationLockKey = "revuo:migrations"

// Migrate applies pending schema migrations. Instances starting together serialize on an
// advisory lock held by a separate transaction for the duration of the run.
func (c *Client) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to configure migrations").
			Mark(ierr.ErrInternal)
	}

	return c.WithTx(ctx, func(ctx context.Context) error {
		if err := c.LockKey(ctx, migrationLockKey, 0); err != nil {
			return err
		}

		before, err := goose.GetDBVersionContext(ctx, c.db)
		if err != nil {
			return ierr.WithError(err).
				WithHint("Failed to read schema version").
				Mark(ierr.ErrDatabase)
		}

		if err := goose.UpContext(ctx, c.db, "migrations"); err != nil {
			return ierr.WithError(err).
				WithHint("Failed to apply migrations").
				Mark(ierr.ErrDatabase)
		}

		after, err := goose.GetDBVersionContext(ctx, c.db)
		if err != nil {
			return ierr.WithError(err).
				WithHint("Failed to read schema version").
				Mark(ierr.ErrDatabase)
		}

		c.log.Infow("database migrations applied", "from_version", before, "to_version", after)
		return nil
	})
}
