// Package idempotency remembers which processor events were already applied so redelivered
// webhooks do not run their handlers twice.
package idempotency

import (
	"context"
	"time"

	"github.com/revuo/revuo/internal/config"
	"github.com/revuo/revuo/internal/logger"
	"github.com/revuo/revuo/internal/redis"
)

// StoreType selects the backing implementation.
type StoreType string

const (
	StoreTypeInMemory StoreType = "inmemory"
	StoreTypeRedis    StoreType = "redis"
)

// DefaultRetention bounds how long a processed event id is remembered.
const DefaultRetention = 72 * time.Hour

const keyPrefix = "revuo:processed_event:"

// Store records processed event ids for a bounded retention window.
type Store interface {
	// Claim marks eventID as processed. It returns false when the id was already claimed.
	Claim(ctx context.Context, eventID string) (bool, error)
	// Release forgets eventID so a later delivery is processed again.
	Release(ctx context.Context, eventID string) error
}

// NewStore builds the store configured by cache.type. Redis is required for multi-instance
// deployments since the in-memory store only sees its own process.
func NewStore(cfg *config.Configuration, log *logger.Logger) (Store, error) {
	ttl := cfg.Webhook.ProcessedEventTTL
	if ttl <= 0 {
		ttl = DefaultRetention
	}

	switch StoreType(cfg.Cache.Type) {
	case StoreTypeRedis:
		client, err := redis.NewClient(cfg, log)
		if err != nil {
			return nil, err
		}
		log.Infow("processed event store initialized", "type", StoreTypeRedis, "retention", ttl.String())
		return NewRedisStore(client, ttl, log), nil
	default:
		log.Infow("processed event store initialized", "type", StoreTypeInMemory, "retention", ttl.String())
		return NewInMemoryStore(ttl), nil
	}
}

func key(eventID string) string {
	return keyPrefix + eventID
}
