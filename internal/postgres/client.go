package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/revuo/revuo/internal/config"
	ierr "github.com/revuo/revuo/internal/errors"
	"github.com/revuo/revuo/internal/logger"
)

// pq error codes the repositories branch on.
const (
	codeUniqueViolation = "23505"
	codeLockTimeout     = "55P03"
)

// Querier is the subset of *sql.DB and *sql.Tx the repositories use.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// IClient hands out the connection a repository call should run on. Inside WithTx both
// Writer and Reader return the transaction.
type IClient interface {
	Writer(ctx context.Context) Querier
	Reader(ctx context.Context) Querier
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	TxFromContext(ctx context.Context) *sql.Tx
}

type txKey struct{}

type Client struct {
	db           *sql.DB
	log          *logger.Logger
	queryTimeout time.Duration
}

// NewDB opens the connection pool and verifies it with a ping.
func NewDB(cfg *config.Configuration, log *logger.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.Postgres.GetDSN())
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to open database connection").
			Mark(ierr.ErrDatabase)
	}

	db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Postgres.ConnMaxLifetimeMinutes) * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, ierr.WithError(err).
			WithHint("Failed to connect to the database").
			WithReportableDetails(map[string]any{
				"host":   cfg.Postgres.Host,
				"dbname": cfg.Postgres.DBName,
			}).
			Mark(ierr.ErrDatabase)
	}

	log.Infow("connected to postgres",
		"host", cfg.Postgres.Host,
		"dbname", cfg.Postgres.DBName)
	return db, nil
}

func NewClient(db *sql.DB, cfg *config.Configuration, log *logger.Logger) *Client {
	return &Client{
		db:           db,
		log:          log,
		queryTimeout: cfg.Postgres.QueryTimeout,
	}
}

var _ IClient = (*Client)(nil)

func (c *Client) Writer(ctx context.Context) Querier {
	if tx := c.TxFromContext(ctx); tx != nil {
		return tx
	}
	return c.db
}

// Reader uses the same pool as Writer. There is no replica yet.
func (c *Client) Reader(ctx context.Context) Querier {
	return c.Writer(ctx)
}

func (c *Client) TxFromContext(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(txKey{}).(*sql.Tx)
	return tx
}

// WithTx runs fn inside a transaction. A nested call joins the outer transaction.
func (c *Client) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if c.TxFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to start transaction").
			Mark(ierr.ErrDatabase)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			c.log.Errorw("failed to roll back transaction", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to commit transaction").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

// WithTimeout bounds a single statement by the configured query timeout.
func (c *Client) WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.queryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.queryTimeout)
}

func (c *Client) DB() *sql.DB {
	return c.db
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) Close() error {
	return c.db.Close()
}

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	return hasCode(err, codeUniqueViolation)
}

func hasCode(err error, code pq.ErrorCode) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == code
	}
	return false
}
