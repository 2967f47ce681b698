package requestid

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Header is the wire header for request correlation. Inbound values
// are kept so an upstream proxy can thread its own ids through;
// requests without one get a fresh uuid.
const Header = "X-Request-ID"

const contextKey = "request_id"

// Middleware ensures every request carries a correlation id and
// reflects it on the response.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(Header)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(contextKey, id)
		c.Writer.Header().Set(Header, id)
		c.Next()
	}
}

// Value returns the request id for the current request, or "" when the
// middleware did not run.
func Value(c *gin.Context) string {
	return c.GetString(contextKey)
}
