package auth

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

const apiContentSecurityPolicy = "default-src 'none'; frame-ancestors 'none'; base-uri 'none'"

// SecurityHeadersMiddleware adds headers suitable for a JSON API.
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "no-referrer")
		c.Header("Content-Security-Policy", apiContentSecurityPolicy)
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}

// HSTSMiddleware sets Strict-Transport-Security. Only enable it when the
// service is reached over HTTPS.
func HSTSMiddleware(maxAge int, includeSubdomains bool) gin.HandlerFunc {
	if maxAge <= 0 {
		maxAge = 31536000
	}
	value := "max-age=" + strconv.Itoa(maxAge)
	if includeSubdomains {
		value += "; includeSubDomains"
	}

	return func(c *gin.Context) {
		c.Header("Strict-Transport-Security", value)
		c.Next()
	}
}
