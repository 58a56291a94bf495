package http

import (
	"github.com/mrlokans/librarian/internal/auth"
	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/database"
	"github.com/mrlokans/librarian/internal/demo"
)

// RouterConfig contains all dependencies and configuration needed
// to create the HTTP router. Optional dependencies left nil switch the
// matching endpoints off.
type RouterConfig struct {
	// Core dependencies
	Database *database.Database
	Borrows  BorrowService
	Catalog  CatalogStore
	Persons  PersonStore
	Reports  ReportsStore
	Auditor  Auditor

	// Overdue sweeps (optional)
	Sweeper     OverdueSweeper
	SweepStatus SweepStatus

	// Audit log reader (optional)
	AuditLog AuditReader

	// Recognition (optional)
	Faces  FaceRegistry
	Covers CoverIdentifier

	// Task queue (optional)
	TaskQueue TaskQueue

	// Authentication
	AuthService    *auth.Service
	SessionManager *auth.SessionManager
	AuthMiddleware *auth.Middleware
	AuthController *auth.AuthController
	AuthConfig     config.Auth
	CSRFSecret     []byte
	HSTSMaxAge     int

	// Read-only demo mode (optional)
	DemoMiddleware *demo.Middleware

	Circulation   config.Circulation
	RetentionDays int
	MaxImageBytes int64

	// Application info
	Version string
}

func (cfg RouterConfig) retryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:  cfg.Circulation.ConflictRetries,
		BaseDelay: cfg.Circulation.ConflictRetryDelay,
	}
}
