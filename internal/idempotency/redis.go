package idempotency

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
	ierr "github.com/revuo/revuo/internal/errors"
	"github.com/revuo/revuo/internal/logger"
	"github.com/revuo/revuo/internal/redis"
)

// RedisStore shares processed event ids across instances using SETNX with a TTL.
type RedisStore struct {
	client    *redis.Client
	retention time.Duration
	log       *logger.Logger
}

func NewRedisStore(client *redis.Client, retention time.Duration, log *logger.Logger) *RedisStore {
	return &RedisStore{
		client:    client,
		retention: retention,
		log:       log,
	}
}

func (s *RedisStore) Claim(ctx context.Context, eventID string) (bool, error) {
	span := startSpan(ctx, "claim", eventID)
	defer span.Finish()

	claimed, err := s.client.GetClient().SetNX(ctx, key(eventID), time.Now().UTC().Unix(), s.retention).Result()
	if err != nil {
		span.Status = sentry.SpanStatusInternalError
		return false, ierr.WithError(err).
			WithHint("Failed to record processed event").
			WithReportableDetails(map[string]any{
				"event_id": eventID,
			}).
			Mark(ierr.ErrInternal)
	}
	return claimed, nil
}

func (s *RedisStore) Release(ctx context.Context, eventID string) error {
	span := startSpan(ctx, "release", eventID)
	defer span.Finish()

	if err := s.client.GetClient().Del(ctx, key(eventID)).Err(); err != nil {
		span.Status = sentry.SpanStatusInternalError
		s.log.Warnw("failed to release processed event", "event_id", eventID, "error", err)
		return ierr.WithError(err).
			WithHint("Failed to release processed event").
			Mark(ierr.ErrInternal)
	}
	return nil
}

func startSpan(ctx context.Context, operation, eventID string) *sentry.Span {
	span := sentry.StartSpan(ctx, "cache.processed_event."+operation)
	span.Description = "processed_event." + operation
	span.SetData("event_id", eventID)
	return span
}
