package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/librarian/internal/database"
)

const healthPingTimeout = 2 * time.Second

type HealthResponse struct {
	Status  string            `json:"status"`
	Time    string            `json:"time"`
	Version string            `json:"version,omitempty"`
	Checks  map[string]string `json:"checks"`
}

// SweepStatus reports the state of the overdue sweep schedule.
type SweepStatus interface {
	IsRunning() bool
	GetNextRunTime() *time.Time
}

type HealthController struct {
	db      *database.Database
	sweep   SweepStatus
	version string
}

// NewHealthController creates a HealthController. sweep may be nil.
func NewHealthController(db *database.Database, sweep SweepStatus, version string) *HealthController {
	return &HealthController{
		db:      db,
		sweep:   sweep,
		version: version,
	}
}

func (h *HealthController) RegisterRoutes(router gin.IRouter) {
	router.GET("/health", h.Status)
	router.GET("/ping", h.Ping)
}

func (h *HealthController) Status(c *gin.Context) {
	checks := make(map[string]string)
	status := "healthy"

	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthPingTimeout)
		defer cancel()

		sqlDB, err := h.db.DB.DB()
		if err != nil {
			checks["database"] = "error: " + err.Error()
			status = "unhealthy"
		} else if err := sqlDB.PingContext(ctx); err != nil {
			checks["database"] = "error: " + err.Error()
			status = "unhealthy"
		} else {
			checks["database"] = "ok (" + h.db.Driver + ")"
		}
	} else {
		checks["database"] = "not configured"
	}

	switch {
	case h.sweep == nil:
		checks["overdue_sweep"] = "disabled"
	case !h.sweep.IsRunning():
		checks["overdue_sweep"] = "stopped"
	default:
		checks["overdue_sweep"] = "ok"
		if next := h.sweep.GetNextRunTime(); next != nil {
			checks["overdue_sweep"] = "next run " + next.Format(time.RFC3339)
		}
	}

	health := HealthResponse{
		Status:  status,
		Time:    time.Now().Format(time.RFC3339),
		Version: h.version,
		Checks:  checks,
	}

	statusCode := http.StatusOK
	if status != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}

	c.IndentedJSON(statusCode, health)
}

func (h *HealthController) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}
