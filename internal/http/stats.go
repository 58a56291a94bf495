package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/librarian/internal/reports"
)

// StatsController serves library statistics.
type StatsController struct {
	reports ReportsStore
	now     func() time.Time
}

func NewStatsController(store ReportsStore) *StatsController {
	return &StatsController{reports: store, now: time.Now}
}

// RegisterRoutes mounts the stats endpoints on an /api group.
func (sc *StatsController) RegisterRoutes(api gin.IRouter) {
	api.GET("/stats", sc.Summary)
	api.GET("/stats/monthly", sc.Monthly)
	api.GET("/stats/top-works", sc.TopWorks)
}

// Summary handles GET /api/stats
func (sc *StatsController) Summary(c *gin.Context) {
	summary, err := sc.reports.Summary(c.Request.Context())
	if err != nil {
		respondInternalError(c, err, "stats summary")
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Monthly handles GET /api/stats/monthly?months=6
func (sc *StatsController) Monthly(c *gin.Context) {
	months, ok := parsePositiveQueryInt(c, "months", reports.DefaultMonths)
	if !ok {
		return
	}
	counts, err := sc.reports.MonthlyBorrows(c.Request.Context(), months, sc.now())
	if err != nil {
		respondInternalError(c, err, "monthly stats")
		return
	}
	c.JSON(http.StatusOK, gin.H{"months": counts})
}

// TopWorks handles GET /api/stats/top-works?limit=10
func (sc *StatsController) TopWorks(c *gin.Context) {
	limit, ok := parsePositiveQueryInt(c, "limit", reports.DefaultTopLimit)
	if !ok {
		return
	}
	works, err := sc.reports.TopWorks(c.Request.Context(), limit)
	if err != nil {
		respondInternalError(c, err, "top works")
		return
	}
	c.JSON(http.StatusOK, gin.H{"works": works})
}

func parsePositiveQueryInt(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		respondBadRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}
