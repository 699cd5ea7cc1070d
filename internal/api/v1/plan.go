package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/revuo/revuo/internal/api/dto"
	ierr "github.com/revuo/revuo/internal/errors"
	"github.com/revuo/revuo/internal/logger"
	"github.com/revuo/revuo/internal/service"
	"github.com/revuo/revuo/internal/types"
)

type PlanHandler struct {
	service service.PlanService
	log     *logger.Logger
}

func NewPlanHandler(service service.PlanService, log *logger.Logger) *PlanHandler {
	return &PlanHandler{
		service: service,
		log:     log,
	}
}

// @Summary Create a plan
// @Description Create a subscription plan and publish it to the payment processor
// @Tags Plans
// @Accept json
// @Produce json
// @Param plan body dto.CreatePlanRequest true "Plan configuration"
// @Success 201 {object} dto.PlanResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 502 {object} ierr.ErrorResponse
// @Router /plans [post]
func (h *PlanHandler) CreatePlan(c *gin.Context) {
	var req dto.CreatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Errorw("failed to bind JSON", "error", err)
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.CreatePlan(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// @Summary Get a plan
// @Tags Plans
// @Produce json
// @Param key path string true "Plan key"
// @Success 200 {object} dto.PlanResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Router /plans/{key} [get]
func (h *PlanHandler) GetPlan(c *gin.Context) {
	key := c.Param("key")
	if key == "" {
		c.Error(ierr.NewError("key is required").
			WithHint("Plan key is required").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.GetPlan(c.Request.Context(), key)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary List plans
// @Tags Plans
// @Produce json
// @Param filter query types.PlanFilter false "Filter"
// @Success 200 {object} dto.ListPlansResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Router /plans [get]
func (h *PlanHandler) ListPlans(c *gin.Context) {
	filter := types.NewPlanFilter()
	if err := c.ShouldBindQuery(filter); err != nil {
		h.log.Errorw("failed to bind query parameters", "error", err)
		c.Error(ierr.WithError(err).
			WithHint("Invalid filter parameters").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.ListPlans(c.Request.Context(), filter)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Update a plan
// @Description Update a plan; price changes mint a new processor price
// @Tags Plans
// @Accept json
// @Produce json
// @Param key path string true "Plan key"
// @Param plan body dto.UpdatePlanRequest true "Plan changes"
// @Success 200 {object} dto.PlanResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Failure 502 {object} ierr.ErrorResponse
// @Router /plans/{key} [put]
func (h *PlanHandler) UpdatePlan(c *gin.Context) {
	key := c.Param("key")

	var req dto.UpdatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Errorw("failed to bind JSON", "error", err)
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.UpdatePlan(c.Request.Context(), key, req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Deactivate a plan
// @Description Deactivate a plan and archive its processor product
// @Tags Plans
// @Param key path string true "Plan key"
// @Success 204 "No Content"
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Router /plans/{key} [delete]
func (h *PlanHandler) DeactivatePlan(c *gin.Context) {
	if err := h.service.DeactivatePlan(c.Request.Context(), c.Param("key")); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}
