package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/clinsight/ctr-registry-api/internal/middleware"
	"github.com/clinsight/ctr-registry-api/internal/models"
)

// claimsFromContext returns the authenticated actor, or nil for an
// anonymous request. Services decide whether nil is acceptable; reads
// generally tolerate it, mutations do not.
func claimsFromContext(c *gin.Context) *models.JWTClaims {
	if value, ok := c.Get(middleware.ContextUserKey); ok {
		if claims, ok := value.(*models.JWTClaims); ok {
			return claims
		}
	}
	return nil
}
