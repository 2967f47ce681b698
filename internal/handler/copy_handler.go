package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clinsight/ctr-registry-api/internal/dto"
	"github.com/clinsight/ctr-registry-api/internal/service"
	appErrors "github.com/clinsight/ctr-registry-api/pkg/errors"
	"github.com/clinsight/ctr-registry-api/pkg/response"
)

// CopyHandler exposes the item copy endpoint.
type CopyHandler struct {
	copies *service.CopyService
}

// NewCopyHandler constructs CopyHandler.
func NewCopyHandler(copies *service.CopyService) *CopyHandler {
	return &CopyHandler{copies: copies}
}

// Copy runs one copy operation and returns its report. The report is
// 200 even when every candidate was skipped; skips are outcomes, not
// errors.
func (h *CopyHandler) Copy(c *gin.Context) {
	var req dto.CopyItemsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	report, err := h.copies.CopyItems(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}
