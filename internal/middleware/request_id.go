package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chat-presence/internal/observability"
)

const requestIDHeader = "X-Request-ID"

// RequestID makes sure every request carries an id, generating one when the
// client sent none. The id is echoed in the response and stored on the
// request context for published events.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
			c.Request.Header.Set(requestIDHeader, id)
		}
		c.Set("request_id", id)
		c.Writer.Header().Set(requestIDHeader, id)
		c.Request = c.Request.WithContext(observability.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}
