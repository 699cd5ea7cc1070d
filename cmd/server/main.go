package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/revuo/revuo/internal/api"
	v1 "github.com/revuo/revuo/internal/api/v1"
	"github.com/revuo/revuo/internal/config"
	"github.com/revuo/revuo/internal/idempotency"
	stripeint "github.com/revuo/revuo/internal/integration/stripe"
	"github.com/revuo/revuo/internal/integration/stripe/webhook"
	"github.com/revuo/revuo/internal/logger"
	"github.com/revuo/revuo/internal/postgres"
	pgrepo "github.com/revuo/revuo/internal/repository/postgres"
	"github.com/revuo/revuo/internal/sentry"
	"github.com/revuo/revuo/internal/service"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		fx.Provide(
			config.NewConfig,
			logger.NewLogger,
			sentry.NewSentryService,

			postgres.NewDB,
			postgres.NewClient,
			func(c *postgres.Client) postgres.IClient { return c },

			pgrepo.NewPlanRepository,
			pgrepo.NewBusinessRepository,
			pgrepo.NewActivityLogRepository,

			provideGateway,
			idempotency.NewStore,

			service.NewServiceParams,
			service.NewPlanService,
			service.NewBusinessService,
			service.NewSubscriptionService,
			service.NewPaymentFailureEscalator,
			service.NewSubscriptionReconciler,
			provideDispatcher,

			provideHandlers,
			api.NewRouter,
		),
		fx.Invoke(
			validateConfig,
			migrate,
			startServer,
		),
	)

	app.Run()
}

func provideGateway(cfg *config.Configuration, log *logger.Logger) stripeint.Gateway {
	return stripeint.NewClient(cfg, log)
}

func provideDispatcher(
	cfg *config.Configuration,
	reconciler *service.SubscriptionReconciler,
	store idempotency.Store,
	log *logger.Logger,
) *webhook.Dispatcher {
	return webhook.NewDispatcher(cfg, reconciler, store, log)
}

func provideHandlers(
	cfg *config.Configuration,
	log *logger.Logger,
	planService service.PlanService,
	businessService service.BusinessService,
	subscriptionService service.SubscriptionService,
	dispatcher *webhook.Dispatcher,
) api.Handlers {
	return api.Handlers{
		Plan:         v1.NewPlanHandler(planService, log),
		Business:     v1.NewBusinessHandler(businessService, log),
		Subscription: v1.NewSubscriptionHandler(subscriptionService, log),
		Webhook:      v1.NewWebhookHandler(cfg, dispatcher, log),
	}
}

func validateConfig(cfg *config.Configuration, log *logger.Logger) {
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
}

func migrate(lc fx.Lifecycle, cfg *config.Configuration, client *postgres.Client, log *logger.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if !cfg.Postgres.AutoMigrate {
				log.Infow("skipping migrations, auto_migrate is disabled")
				return nil
			}
			return client.Migrate(ctx)
		},
	})
}

func startServer(
	lc fx.Lifecycle,
	cfg *config.Configuration,
	router *gin.Engine,
	db *sql.DB,
	sentryService *sentry.Service,
	log *logger.Logger,
) {
	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: router,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Infow("starting server", "address", cfg.Server.Address, "mode", cfg.Deployment.Mode)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatalf("server failed: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()

			err := srv.Shutdown(shutdownCtx)
			sentryService.Flush()
			if closeErr := db.Close(); closeErr != nil {
				log.Errorw("failed to close database", "error", closeErr)
			}
			_ = log.Sync()
			return err
		},
	})
}
