package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/librarian/internal/auth"
	auditRepo "github.com/mrlokans/librarian/internal/database/audit"
	"github.com/mrlokans/librarian/internal/entities"
)

type AuditController struct {
	reader AuditReader
}

func NewAuditController(reader AuditReader) *AuditController {
	return &AuditController{reader: reader}
}

// RegisterRoutes mounts the audit log on an /api group. Admin only.
func (ac *AuditController) RegisterRoutes(api gin.IRouter) {
	api.GET("/audit", auth.RequireRole(entities.RoleAdmin), ac.GetAuditEvents)
}

// GetAuditEvents returns paginated audit events as JSON
// GET /api/audit?type=&actor_id=&entity_type=&entity_id=&since=&limit=&offset=
func (ac *AuditController) GetAuditEvents(c *gin.Context) {
	limit, offset, ok := parsePagination(c)
	if !ok {
		return
	}
	filter := auditRepo.Filter{
		EventType:  entities.AuditEventType(strings.ToLower(c.Query("type"))),
		EntityType: c.Query("entity_type"),
		Limit:      limit,
		Offset:     offset,
	}
	if filter.ActorID, ok = parseOptionalQueryID(c, "actor_id"); !ok {
		return
	}
	if filter.EntityID, ok = parseOptionalQueryID(c, "entity_id"); !ok {
		return
	}
	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondBadRequest(c, "since must be an RFC3339 timestamp")
			return
		}
		filter.Since = since
	}

	events, total, err := ac.reader.GetEvents(c.Request.Context(), filter)
	if err != nil {
		respondInternalError(c, err, "audit events")
		return
	}
	if events == nil {
		events = []entities.AuditEvent{}
	}
	c.JSON(http.StatusOK, newPage(events, total, limit, offset))
}
