package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clinsight/ctr-registry-api/internal/dto"
	"github.com/clinsight/ctr-registry-api/internal/service"
	"github.com/clinsight/ctr-registry-api/pkg/response"
)

// Routes spell resources with hyphens; entity names double as audit
// table names and keep underscores. Unmapped segments pass through so
// the canonical names stay accepted.
var entityFromRoute = map[string]string{
	"database-releases": dto.EntityDatabaseRelease,
	"reporting-efforts": dto.EntityReportingEffort,
	"items":             dto.EntityItem,
	"package-items":     dto.EntityPackageItem,
	"text-elements":     dto.EntityTextElement,
}

func normalizeEntity(segment string) string {
	if mapped, ok := entityFromRoute[segment]; ok {
		return mapped
	}
	return segment
}

// DeleteHandler exposes the policy-checked delete endpoint.
type DeleteHandler struct {
	deletes *service.DeleteService
}

// NewDeleteHandler constructs DeleteHandler.
func NewDeleteHandler(deletes *service.DeleteService) *DeleteHandler {
	return &DeleteHandler{deletes: deletes}
}

// Delete removes one entity under its integrity policy. A rejection
// (blocking dependents) comes back 409 with the conflict details; a
// successful delete returns the cascade summary.
func (h *DeleteHandler) Delete(c *gin.Context) {
	result, err := h.deletes.ApplyDelete(c.Request.Context(), normalizeEntity(c.Param("entity")), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	if result.Rejected {
		response.JSON(c, http.StatusConflict, result, nil)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
