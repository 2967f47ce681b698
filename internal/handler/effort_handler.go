package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clinsight/ctr-registry-api/internal/dto"
	"github.com/clinsight/ctr-registry-api/internal/service"
	appErrors "github.com/clinsight/ctr-registry-api/pkg/errors"
	"github.com/clinsight/ctr-registry-api/pkg/response"
)

// EffortHandler exposes reporting effort endpoints.
type EffortHandler struct {
	efforts *service.EffortService
}

// NewEffortHandler constructs EffortHandler.
func NewEffortHandler(efforts *service.EffortService) *EffortHandler {
	return &EffortHandler{efforts: efforts}
}

func (h *EffortHandler) ListByRelease(c *gin.Context) {
	efforts, err := h.efforts.ListByRelease(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, efforts, nil)
}

func (h *EffortHandler) ListByStudy(c *gin.Context) {
	efforts, err := h.efforts.ListByStudy(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, efforts, nil)
}

func (h *EffortHandler) Get(c *gin.Context) {
	effort, err := h.efforts.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, effort, nil)
}

func (h *EffortHandler) Create(c *gin.Context) {
	var req dto.CreateEffortRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	effort, err := h.efforts.Create(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, effort)
}

func (h *EffortHandler) Update(c *gin.Context) {
	var req dto.UpdateEffortRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	effort, err := h.efforts.Update(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, effort, nil)
}
