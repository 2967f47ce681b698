package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/clinsight/ctr-registry-api/internal/models"
	"github.com/clinsight/ctr-registry-api/internal/service"
	"github.com/clinsight/ctr-registry-api/pkg/response"
)

// AuditHandler exposes the read side of the audit trail.
type AuditHandler struct {
	audit *service.AuditService
}

// NewAuditHandler constructs AuditHandler.
func NewAuditHandler(audit *service.AuditService) *AuditHandler {
	return &AuditHandler{audit: audit}
}

func (h *AuditHandler) List(c *gin.Context) {
	var filter models.AuditFilter
	filter.TableName = c.Query("table")
	filter.RecordID = c.Query("record_id")
	filter.Action = c.Query("action")
	filter.ActorID = c.Query("actor_id")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil {
		filter.PageSize = size
	}

	entries, pagination, err := h.audit.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, pagination)
}
