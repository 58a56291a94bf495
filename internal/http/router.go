package http

import (
	"github.com/gin-gonic/gin"

	"github.com/mrlokans/librarian/internal/auth"
)

// NewRouter creates and configures the HTTP router with all endpoints.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(RequestIDMiddleware())
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// Apply security headers to all responses
	router.Use(auth.SecurityHeadersMiddleware())
	if cfg.AuthConfig.SecureCookies && cfg.HSTSMaxAge > 0 {
		router.Use(auth.HSTSMiddleware(cfg.HSTSMaxAge, false))
	}

	if cfg.DemoMiddleware != nil {
		router.Use(cfg.DemoMiddleware.Handler())
	}

	// CSRF must run before session so that session context is preserved
	if len(cfg.CSRFSecret) > 0 {
		var tokens auth.TokenValidator
		if cfg.AuthService != nil {
			tokens = cfg.AuthService
		}
		router.Use(auth.CSRFMiddleware(cfg.CSRFSecret, cfg.AuthConfig.SecureCookies, tokens))
	}

	// Session runs after CSRF so session context isn't overwritten by CSRF's request replacement
	if cfg.SessionManager != nil {
		router.Use(cfg.SessionManager.LoadAndSaveGin())
	}

	if cfg.AuthMiddleware != nil {
		router.Use(cfg.AuthMiddleware.Handler())
	} else {
		router.Use(func(c *gin.Context) {
			c.Set(auth.ContextKeyPersonID, auth.AnonymousPersonID)
			c.Set(auth.ContextKeyAuthType, auth.AuthTypeNone)
			c.Set(auth.ContextKeyDisabled, true)
			c.Next()
		})
	}

	NewHealthController(cfg.Database, cfg.SweepStatus, cfg.Version).RegisterRoutes(router)

	if cfg.AuthController != nil {
		cfg.AuthController.RegisterRoutes(router)
	}

	api := router.Group("/api")

	NewBorrowsController(cfg.Borrows, cfg.Sweeper, cfg.Auditor, cfg.retryPolicy(), cfg.Circulation.DefaultLoanDays).RegisterRoutes(api)
	NewCatalogController(cfg.Catalog, cfg.Covers, cfg.Auditor, cfg.MaxImageBytes).RegisterRoutes(api)

	var accounts AccountCreator
	if cfg.AuthService != nil {
		accounts = cfg.AuthService
	}
	if cfg.Persons != nil && accounts != nil {
		NewPersonsController(cfg.Persons, accounts, cfg.Faces, cfg.Auditor, cfg.MaxImageBytes).RegisterRoutes(api)
	}

	if cfg.Reports != nil {
		NewStatsController(cfg.Reports).RegisterRoutes(api)
	}
	if cfg.AuditLog != nil {
		NewAuditController(cfg.AuditLog).RegisterRoutes(api)
	}
	if cfg.TaskQueue != nil {
		NewTasksController(cfg.TaskQueue, cfg.RetentionDays).RegisterRoutes(api)
	}

	return router
}
