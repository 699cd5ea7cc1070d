package middleware

import (
	"time"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/revuo/revuo/internal/config"
	"github.com/revuo/revuo/internal/types"
)

const sentryFlushTimeout = 2 * time.Second

// SentryMiddleware attaches a sentry hub and transaction to each request. With sentry
// disabled it is a pass-through, and repository spans are skipped for lack of a transaction.
func SentryMiddleware(cfg *config.Configuration) gin.HandlerFunc {
	if !cfg.Sentry.Enabled {
		return func(c *gin.Context) { c.Next() }
	}

	return sentrygin.New(sentrygin.Options{
		Repanic: true,
		Timeout: sentryFlushTimeout,
	})
}

// SentryScopeMiddleware tags events raised while serving a business route.
func SentryScopeMiddleware(c *gin.Context) {
	if hub := sentrygin.GetHubFromContext(c); hub != nil {
		hub.Scope().SetTags(map[string]string{
			"business_id": c.Param("id"),
			"request_id":  types.GetRequestID(c.Request.Context()),
		})
	}
	c.Next()
}
