package v1

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/revuo/revuo/internal/api/dto"
	ierr "github.com/revuo/revuo/internal/errors"
	"github.com/revuo/revuo/internal/logger"
	"github.com/revuo/revuo/internal/service"
	"github.com/revuo/revuo/internal/types"
)

type SubscriptionHandler struct {
	service service.SubscriptionService
	log     *logger.Logger
}

func NewSubscriptionHandler(service service.SubscriptionService, log *logger.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{
		service: service,
		log:     log,
	}
}

// @Summary Get a business subscription
// @Description Local subscription state; expand=remote adds the live processor view and recent invoices
// @Tags Subscriptions
// @Produce json
// @Param id path string true "Business ID"
// @Param expand query string false "remote"
// @Success 200 {object} dto.SubscriptionResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Router /businesses/{id}/subscription [get]
func (h *SubscriptionHandler) GetSubscription(c *gin.Context) {
	expand := c.Query("expand") == "remote"

	resp, err := h.service.GetSubscription(c.Request.Context(), c.Param("id"), expand)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Start payment method setup
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Param id path string true "Business ID"
// @Param setup body dto.StartSetupRequest true "Setup request"
// @Success 201 {object} dto.SetupResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 502 {object} ierr.ErrorResponse
// @Router /businesses/{id}/subscription/setup [post]
func (h *SubscriptionHandler) StartSetup(c *gin.Context) {
	var req dto.StartSetupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Errorw("failed to bind JSON", "error", err)
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.StartSetup(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// @Summary Create or change a subscription
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Param id path string true "Business ID"
// @Param subscription body dto.ChangeSubscriptionRequest true "Target plan"
// @Success 200 {object} dto.ChangeSubscriptionResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 502 {object} ierr.ErrorResponse
// @Router /businesses/{id}/subscription [post]
func (h *SubscriptionHandler) ChangeSubscription(c *gin.Context) {
	var req dto.ChangeSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Errorw("failed to bind JSON", "error", err)
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.ChangeSubscription(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Pause, resume or cancel a subscription
// @Description The request is forwarded to the processor; local state follows its webhook
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Param id path string true "Business ID"
// @Param action path string true "pause, resume or cancel"
// @Param request body dto.SubscriptionActionRequest false "Options"
// @Success 200 {object} dto.SubscriptionActionResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 502 {object} ierr.ErrorResponse
// @Router /businesses/{id}/subscription/{action} [post]
func (h *SubscriptionHandler) ApplyAction(c *gin.Context) {
	var req dto.SubscriptionActionRequest
	// the body is optional
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.log.Errorw("failed to bind JSON", "error", err)
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	action := types.SubscriptionAction(c.Param("action"))
	resp, err := h.service.ApplyAction(c.Request.Context(), c.Param("id"), action, req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary List subscription activity
// @Tags Subscriptions
// @Produce json
// @Param id path string true "Business ID"
// @Param filter query types.QueryFilter false "Pagination"
// @Success 200 {object} dto.ListActivityResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Router /businesses/{id}/activity [get]
func (h *SubscriptionHandler) ListActivity(c *gin.Context) {
	filter := types.NewDefaultQueryFilter()
	if err := c.ShouldBindQuery(filter); err != nil {
		h.log.Errorw("failed to bind query parameters", "error", err)
		c.Error(ierr.WithError(err).
			WithHint("Invalid filter parameters").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.ListActivity(c.Request.Context(), c.Param("id"), filter)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
