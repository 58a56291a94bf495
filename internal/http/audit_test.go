package http

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/entities"
)

type auditPage struct {
	Data  []entities.AuditEvent `json:"data"`
	Total int64                 `json:"total"`
}

func TestAuditController(t *testing.T) {
	f := newAPIFixture(t, config.AuthModeLocal)
	admin := f.person(t, "admin", entities.RoleAdmin)
	librarian := f.person(t, "librarian", entities.RoleStaff)
	adminToken := f.token(t, admin)

	f.audit.LogCatalog(librarian.ID, "work_create", "work", 1, "Created work 1")
	f.audit.LogCatalog(librarian.ID, "copy_lost", "copy", 2, "Marked copy 2 lost")
	f.audit.LogPerson(admin.ID, "person_create", 3, "Created borrower")
	f.audit.Flush()

	w := f.do(t, http.MethodGet, "/api/audit", f.token(t, librarian), nil)
	assertStatus(t, w, http.StatusForbidden)

	w = f.do(t, http.MethodGet, "/api/audit", adminToken, nil)
	assertStatus(t, w, http.StatusOK)
	assert.Equal(t, int64(3), decode[auditPage](t, w).Total)

	w = f.do(t, http.MethodGet, "/api/audit?type=catalog", adminToken, nil)
	assertStatus(t, w, http.StatusOK)
	assert.Equal(t, int64(2), decode[auditPage](t, w).Total)

	w = f.do(t, http.MethodGet, fmt.Sprintf("/api/audit?actor_id=%d&entity_type=copy", librarian.ID), adminToken, nil)
	assertStatus(t, w, http.StatusOK)
	page := decode[auditPage](t, w)
	assert.Equal(t, int64(1), page.Total)
	assert.Equal(t, "copy_lost", page.Data[0].Action)

	w = f.do(t, http.MethodGet, "/api/audit?since=yesterday", adminToken, nil)
	assertStatus(t, w, http.StatusBadRequest)
}
