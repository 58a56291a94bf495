package http

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	RequestIDHeader     = "X-Request-Id"
	contextKeyRequestID = "request_id"
	maxRequestIDLength  = 128
)

// RequestIDMiddleware tags every request with an ID, reusing a
// client-supplied one when it is reasonably short.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > maxRequestIDLength {
			id = uuid.NewString()
		}
		c.Set(contextKeyRequestID, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// GetRequestID returns the ID assigned by RequestIDMiddleware, or "".
func GetRequestID(c *gin.Context) string {
	return c.GetString(contextKeyRequestID)
}
