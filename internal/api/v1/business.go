package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/revuo/revuo/internal/api/dto"
	ierr "github.com/revuo/revuo/internal/errors"
	"github.com/revuo/revuo/internal/logger"
	"github.com/revuo/revuo/internal/service"
)

type BusinessHandler struct {
	service service.BusinessService
	log     *logger.Logger
}

func NewBusinessHandler(service service.BusinessService, log *logger.Logger) *BusinessHandler {
	return &BusinessHandler{
		service: service,
		log:     log,
	}
}

// @Summary Register a business
// @Description Register a business on the free trial plan
// @Tags Businesses
// @Accept json
// @Produce json
// @Param business body dto.CreateBusinessRequest true "Business"
// @Success 201 {object} dto.BusinessResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Router /businesses [post]
func (h *BusinessHandler) CreateBusiness(c *gin.Context) {
	var req dto.CreateBusinessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Errorw("failed to bind JSON", "error", err)
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.CreateBusiness(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// @Summary Get a business
// @Tags Businesses
// @Produce json
// @Param id path string true "Business ID"
// @Success 200 {object} dto.BusinessResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Router /businesses/{id} [get]
func (h *BusinessHandler) GetBusiness(c *gin.Context) {
	resp, err := h.service.GetBusiness(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
