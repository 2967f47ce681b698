package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clinsight/ctr-registry-api/internal/dto"
	"github.com/clinsight/ctr-registry-api/internal/service"
	appErrors "github.com/clinsight/ctr-registry-api/pkg/errors"
	"github.com/clinsight/ctr-registry-api/pkg/response"
)

// ExportHandler exposes tracker matrix export endpoints.
type ExportHandler struct {
	exports *service.ExportService
}

// NewExportHandler constructs ExportHandler.
func NewExportHandler(exports *service.ExportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// Create queues an export for one effort.
func (h *ExportHandler) Create(c *gin.Context) {
	var req dto.CreateExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	status, err := h.exports.Request(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, status, nil)
}

// Status reports the state of one export.
func (h *ExportHandler) Status(c *gin.Context) {
	status, err := h.exports.Status(c.Param("exportId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Download streams the rendered export.
func (h *ExportHandler) Download(c *gin.Context) {
	content, format, err := h.exports.Result(c.Param("exportId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	switch format {
	case dto.ExportFormatCSV:
		c.Header("Content-Disposition", `attachment; filename="tracker-matrix.csv"`)
		c.Data(http.StatusOK, "text/csv", content)
	case dto.ExportFormatPDF:
		c.Header("Content-Disposition", `attachment; filename="tracker-matrix.pdf"`)
		c.Data(http.StatusOK, "application/pdf", content)
	default:
		c.Data(http.StatusOK, "application/octet-stream", content)
	}
}
