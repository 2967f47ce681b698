package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clinsight/ctr-registry-api/internal/dto"
	"github.com/clinsight/ctr-registry-api/internal/service"
	appErrors "github.com/clinsight/ctr-registry-api/pkg/errors"
	"github.com/clinsight/ctr-registry-api/pkg/response"
)

// TrackerHandler exposes tracker endpoints.
type TrackerHandler struct {
	trackers *service.TrackerService
}

// NewTrackerHandler constructs TrackerHandler.
func NewTrackerHandler(trackers *service.TrackerService) *TrackerHandler {
	return &TrackerHandler{trackers: trackers}
}

// ListByEffort returns the effort's full tracker matrix.
func (h *TrackerHandler) ListByEffort(c *gin.Context) {
	rows, err := h.trackers.ListByEffort(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

func (h *TrackerHandler) Get(c *gin.Context) {
	tracker, err := h.trackers.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tracker, nil)
}

func (h *TrackerHandler) GetByItem(c *gin.Context) {
	tracker, err := h.trackers.GetByItemID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tracker, nil)
}

func (h *TrackerHandler) Update(c *gin.Context) {
	var req dto.UpdateTrackerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	tracker, err := h.trackers.Update(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tracker, nil)
}
