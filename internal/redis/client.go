package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/revuo/revuo/internal/config"
	ierr "github.com/revuo/revuo/internal/errors"
	"github.com/revuo/revuo/internal/logger"
)

// Client wraps the go-redis client used for shared processed-event bookkeeping.
type Client struct {
	rdb *redis.Client
	log *logger.Logger
}

// NewClient connects to Redis and verifies the connection with a ping.
func NewClient(cfg *config.Configuration, log *logger.Logger) (*Client, error) {
	opts := &redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  cfg.Redis.Timeout,
		ReadTimeout:  cfg.Redis.Timeout,
		WriteTimeout: cfg.Redis.Timeout,
		PoolSize:     cfg.Redis.PoolSize,
	}

	if cfg.Redis.UseTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, ierr.WithError(err).
			WithHint("Failed to connect to Redis").
			WithReportableDetails(map[string]any{
				"addr": opts.Addr,
			}).
			Mark(ierr.ErrInternal)
	}

	log.Infow("connected to redis", "addr", opts.Addr, "db", opts.DB)

	return &Client{
		rdb: rdb,
		log: log,
	}, nil
}

// NewFromRedis wraps an existing go-redis client. Used by tests.
func NewFromRedis(rdb *redis.Client, log *logger.Logger) *Client {
	return &Client{rdb: rdb, log: log}
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis client connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the Redis connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
