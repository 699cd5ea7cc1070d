package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	v1 "github.com/revuo/revuo/internal/api/v1"
	"github.com/revuo/revuo/internal/config"
	"github.com/revuo/revuo/internal/logger"
	"github.com/revuo/revuo/internal/rest/middleware"
	"github.com/revuo/revuo/internal/types"
)

type Handlers struct {
	Plan         *v1.PlanHandler
	Business     *v1.BusinessHandler
	Subscription *v1.SubscriptionHandler
	Webhook      *v1.WebhookHandler
}

func NewRouter(handlers Handlers, cfg *config.Configuration, log *logger.Logger) *gin.Engine {
	if cfg.Logging.Level != types.LogLevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(
		gin.RecoveryWithWriter(log.GetGinLogger()),
		middleware.RequestIDMiddleware,
		middleware.SentryMiddleware(cfg),
		middleware.LoggingMiddleware(log),
		middleware.ErrorHandler(log),
	)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1Router := router.Group("/v1")

	// The processor authenticates with its signature, verified by the handler.
	webhooks := v1Router.Group("/webhooks")
	{
		webhooks.POST("/stripe", handlers.Webhook.HandleStripeWebhook)
	}

	plans := v1Router.Group("/plans")
	{
		plans.POST("", handlers.Plan.CreatePlan)
		plans.GET("", handlers.Plan.ListPlans)
		plans.GET("/:key", handlers.Plan.GetPlan)
		plans.PUT("/:key", handlers.Plan.UpdatePlan)
		plans.DELETE("/:key", handlers.Plan.DeactivatePlan)
	}

	businesses := v1Router.Group("/businesses")
	{
		businesses.POST("", handlers.Business.CreateBusiness)

		business := businesses.Group("/:id", middleware.SentryScopeMiddleware)
		business.GET("", handlers.Business.GetBusiness)
		business.GET("/subscription", handlers.Subscription.GetSubscription)
		business.POST("/subscription", handlers.Subscription.ChangeSubscription)
		business.POST("/subscription/setup", handlers.Subscription.StartSetup)
		business.POST("/subscription/:action", handlers.Subscription.ApplyAction)
		business.GET("/activity", handlers.Subscription.ListActivity)
	}

	return router
}
