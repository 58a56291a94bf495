package http

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/librarian/internal/auth"
	"github.com/mrlokans/librarian/internal/database/persons"
	"github.com/mrlokans/librarian/internal/entities"
)

// PersonsController manages borrower and staff records. Staff may look
// people up; every change needs an admin.
type PersonsController struct {
	store         PersonStore
	accounts      AccountCreator
	faces         FaceRegistry
	auditor       Auditor
	maxImageBytes int64
}

// NewPersonsController creates a PersonsController. faces may be nil.
func NewPersonsController(store PersonStore, accounts AccountCreator, faces FaceRegistry, auditor Auditor, maxImageBytes int64) *PersonsController {
	if auditor == nil {
		auditor = nopAuditor{}
	}
	if maxImageBytes <= 0 {
		maxImageBytes = defaultMaxImageBytes
	}
	return &PersonsController{store: store, accounts: accounts, faces: faces, auditor: auditor, maxImageBytes: maxImageBytes}
}

// RegisterRoutes mounts the person endpoints on an /api group.
func (pc *PersonsController) RegisterRoutes(api gin.IRouter) {
	staff := auth.RequireRole(entities.RoleStaff)
	admin := auth.RequireRole(entities.RoleAdmin)

	group := api.Group("/persons")
	group.GET("", staff, pc.ListPersons)
	group.GET("/:id", staff, pc.GetPerson)
	group.POST("", admin, pc.CreatePerson)
	group.PATCH("/:id", admin, pc.UpdatePerson)
	group.DELETE("/:id", admin, pc.DeactivatePerson)
	group.POST("/:id/activate", admin, pc.ActivatePerson)
	group.POST("/:id/password", admin, pc.ResetPassword)
	group.POST("/:id/face", admin, pc.EnrollFace)
	group.DELETE("/:id/face", admin, pc.RemoveFace)
}

// CreatePersonRequest is the body of POST /api/persons. Password is
// required for staff and admin accounts.
type CreatePersonRequest struct {
	Username string        `json:"username" binding:"required"`
	Email    string        `json:"email"`
	FullName string        `json:"full_name"`
	Phone    string        `json:"phone"`
	Role     entities.Role `json:"role"`
	Password string        `json:"password"`
}

// UpdatePersonRequest is the body of PATCH /api/persons/:id. Empty fields
// are left unchanged.
type UpdatePersonRequest struct {
	Email    string        `json:"email"`
	FullName string        `json:"full_name"`
	Phone    string        `json:"phone"`
	Role     entities.Role `json:"role"`
}

// ListPersons handles GET /api/persons?role=&q=&active=&limit=&offset=
func (pc *PersonsController) ListPersons(c *gin.Context) {
	limit, offset, ok := parsePagination(c)
	if !ok {
		return
	}
	filter := persons.Filter{
		Role:       entities.Role(strings.ToLower(c.Query("role"))),
		ActiveOnly: c.Query("active") == "true",
		Query:      c.Query("q"),
		Limit:      limit,
		Offset:     offset,
	}
	if filter.Role != "" && !filter.Role.Valid() {
		respondBadRequest(c, "invalid role")
		return
	}

	list, total, err := pc.store.ListPersons(c.Request.Context(), filter)
	if err != nil {
		respondDomainError(c, err, "list persons")
		return
	}
	c.JSON(http.StatusOK, newPage(list, total, limit, offset))
}

// GetPerson handles GET /api/persons/:id
func (pc *PersonsController) GetPerson(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	person, err := pc.store.GetPersonByID(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err, "get person")
		return
	}
	c.JSON(http.StatusOK, person)
}

// CreatePerson handles POST /api/persons
func (pc *PersonsController) CreatePerson(c *gin.Context) {
	var body CreatePersonRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if body.Role == "" {
		body.Role = entities.RoleBorrower
	}

	person, err := pc.accounts.CreateAccount(auth.AccountInput{
		Username: body.Username,
		Email:    body.Email,
		FullName: body.FullName,
		Phone:    body.Phone,
		Password: body.Password,
		Role:     body.Role,
	})
	if err != nil {
		respondDomainError(c, err, "create person")
		return
	}
	pc.auditor.LogPerson(auth.GetPersonID(c), "person_create", person.ID, fmt.Sprintf("Created %s %s", person.Role, person.Username))
	respondCreated(c, person)
}

// UpdatePerson handles PATCH /api/persons/:id
func (pc *PersonsController) UpdatePerson(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var body UpdatePersonRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if id == auth.GetPersonID(c) && body.Role != "" && body.Role != entities.RoleAdmin {
		respondForbidden(c, "admins cannot demote themselves")
		return
	}

	person, err := pc.store.UpdateProfile(c.Request.Context(), id, body.FullName, body.Email, body.Phone, body.Role)
	if err != nil {
		respondDomainError(c, err, "update person")
		return
	}
	pc.auditor.LogPerson(auth.GetPersonID(c), "person_update", id, fmt.Sprintf("Updated person %s", person.Username))
	c.JSON(http.StatusOK, person)
}

// DeactivatePerson handles DELETE /api/persons/:id. Persons are kept so
// their borrow history stays intact.
func (pc *PersonsController) DeactivatePerson(c *gin.Context) {
	pc.setActive(c, false)
}

// ActivatePerson handles POST /api/persons/:id/activate
func (pc *PersonsController) ActivatePerson(c *gin.Context) {
	pc.setActive(c, true)
}

func (pc *PersonsController) setActive(c *gin.Context, active bool) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if !active && id == auth.GetPersonID(c) {
		respondForbidden(c, "admins cannot deactivate themselves")
		return
	}
	if err := pc.store.SetActive(c.Request.Context(), id, active); err != nil {
		respondDomainError(c, err, "set person active")
		return
	}

	action := "person_deactivate"
	if active {
		action = "person_activate"
	}
	pc.auditor.LogPerson(auth.GetPersonID(c), action, id, fmt.Sprintf("Set person %d active=%t", id, active))
	c.JSON(http.StatusOK, gin.H{"id": id, "active": active})
}

// ResetPassword handles POST /api/persons/:id/password
func (pc *PersonsController) ResetPassword(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var body struct {
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBadRequest(c, "password is required")
		return
	}
	if err := pc.accounts.SetPassword(id, body.Password); err != nil {
		respondDomainError(c, err, "reset password")
		return
	}
	pc.auditor.LogPerson(auth.GetPersonID(c), "person_password_reset", id, fmt.Sprintf("Reset password of person %d", id))
	respondSuccess(c, "password updated")
}

// EnrollFace handles POST /api/persons/:id/face (multipart "image").
func (pc *PersonsController) EnrollFace(c *gin.Context) {
	if pc.faces == nil || !pc.faces.FaceEnabled() {
		respondError(c, http.StatusNotImplemented, "not_configured", "face recognition is not configured")
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if _, err := pc.store.GetPersonByID(c.Request.Context(), id); err != nil {
		respondDomainError(c, err, "enroll face")
		return
	}
	image, err := readImage(c, pc.maxImageBytes)
	if err != nil {
		respondBadRequest(c, err.Error())
		return
	}
	if err := pc.faces.EnrollFace(c.Request.Context(), id, image); err != nil {
		respondDomainError(c, err, "enroll face")
		return
	}
	pc.auditor.LogPerson(auth.GetPersonID(c), "face_enroll", id, fmt.Sprintf("Enrolled face for person %d", id))
	respondCreated(c, gin.H{"person_id": id, "enrolled": true})
}

// RemoveFace handles DELETE /api/persons/:id/face
func (pc *PersonsController) RemoveFace(c *gin.Context) {
	if pc.faces == nil || !pc.faces.FaceEnabled() {
		respondError(c, http.StatusNotImplemented, "not_configured", "face recognition is not configured")
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	removed, err := pc.faces.RemoveFace(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err, "remove face")
		return
	}
	if !removed {
		respondNotFound(c, "face encoding")
		return
	}
	pc.auditor.LogPerson(auth.GetPersonID(c), "face_remove", id, fmt.Sprintf("Removed face of person %d", id))
	respondSuccess(c, "face encoding removed")
}
