package v1

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/revuo/revuo/internal/config"
	ierr "github.com/revuo/revuo/internal/errors"
	"github.com/revuo/revuo/internal/integration/stripe/webhook"
	"github.com/revuo/revuo/internal/logger"
	"github.com/revuo/revuo/internal/types"
)

const defaultMaxBodyBytes = int64(1 << 20)

type WebhookHandler struct {
	dispatcher   *webhook.Dispatcher
	maxBodyBytes int64
	log          *logger.Logger
}

func NewWebhookHandler(cfg *config.Configuration, dispatcher *webhook.Dispatcher, log *logger.Logger) *WebhookHandler {
	maxBodyBytes := cfg.Webhook.MaxBodyBytes
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}
	return &WebhookHandler{
		dispatcher:   dispatcher,
		maxBodyBytes: maxBodyBytes,
		log:          log,
	}
}

// @Summary Receive processor webhooks
// @Description Verifies the signature and reconciles the event. Any verified event is acknowledged.
// @Tags Webhooks
// @Accept json
// @Produce json
// @Param Stripe-Signature header string true "Processor signature"
// @Success 200 {object} map[string]bool
// @Failure 400 {object} ierr.ErrorResponse
// @Router /webhooks/stripe [post]
func (h *WebhookHandler) HandleStripeWebhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes)
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.log.Warnw("failed to read webhook body", "error", err)
		c.Error(ierr.WithError(err).
			WithHint("Webhook body could not be read").
			Mark(ierr.ErrValidation))
		return
	}

	event, err := h.dispatcher.Verify(payload, c.GetHeader(types.HeaderStripeSignature))
	if err != nil {
		h.log.Warnw("rejected webhook", "error", err)
		c.Error(err)
		return
	}

	outcome := h.dispatcher.Dispatch(c.Request.Context(), event)
	h.log.Debugw("webhook acknowledged",
		"event_id", event.ID,
		"event_type", event.Type,
		"outcome", outcome,
	)

	c.JSON(http.StatusOK, gin.H{"received": true})
}
