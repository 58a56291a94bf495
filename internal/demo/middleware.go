// Package demo serves a seeded library read-only, so a public instance
// can be browsed without anyone changing its catalog or borrows.
package demo

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const blockedMessage = "This action is disabled in demo mode"

// writablePrefixes stay open in demo mode so visitors can log in.
var writablePrefixes = []string{
	"/login",
	"/logout",
	"/api/auth/face-login",
}

// Middleware rejects every state-changing request while demo mode is on.
type Middleware struct {
	enabled bool
}

// NewMiddleware creates a demo mode middleware.
func NewMiddleware(enabled bool) *Middleware {
	return &Middleware{enabled: enabled}
}

// IsEnabled returns whether demo mode is active.
func (m *Middleware) IsEnabled() bool {
	return m.enabled
}

// Handler returns a Gin middleware that blocks write operations.
func (m *Middleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.enabled || isReadOnly(c.Request.Method) || isWritablePath(c.Request.URL.Path) {
			c.Next()
			return
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error": blockedMessage,
			"code":  "demo_mode",
		})
	}
}

func isReadOnly(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func isWritablePath(path string) bool {
	for _, prefix := range writablePrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
