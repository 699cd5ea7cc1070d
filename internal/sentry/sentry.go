package sentry

import (
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/revuo/revuo/internal/config"
	"github.com/revuo/revuo/internal/logger"
)

const flushTimeout = 2 * time.Second

type Service struct {
	cfg    *config.Configuration
	logger *logger.Logger
}

// NewSentryService initializes the sentry client when enabled. A failed init disables
// reporting rather than blocking startup.
func NewSentryService(cfg *config.Configuration, log *logger.Logger) *Service {
	if cfg.Sentry.Enabled {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Sentry.DSN,
			Environment:      cfg.Sentry.Environment,
			EnableTracing:    true,
			TracesSampleRate: cfg.Sentry.SampleRate,
			AttachStacktrace: true,
		})
		if err != nil {
			log.Errorw("failed to initialize sentry", "error", err)
			cfg.Sentry.Enabled = false
		} else {
			log.Infow("sentry initialized", "environment", cfg.Sentry.Environment)
		}
	}

	return &Service{
		cfg:    cfg,
		logger: log,
	}
}

func (s *Service) Flush() {
	if s.cfg.Sentry.Enabled {
		sentry.Flush(flushTimeout)
	}
}
