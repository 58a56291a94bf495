package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/entities"
)

// Context keys for person data
const (
	ContextKeyPersonID = "auth_person_id"
	ContextKeyUsername = "auth_username"
	ContextKeyRole     = "auth_role"
	ContextKeyAuthType = "auth_type"
	ContextKeyDisabled = "auth_disabled"
)

// AuthType indicates how the caller was authenticated
type AuthType string

const (
	AuthTypeNone    AuthType = "none"
	AuthTypeSession AuthType = "session"
	AuthTypeBearer  AuthType = "bearer"
)

// AnonymousPersonID is stored in the context of unauthenticated requests and
// of every request when authentication is disabled.
const AnonymousPersonID = uint(0)

// Middleware authenticates HTTP requests by bearer token or session cookie.
type Middleware struct {
	service        *Service
	sessionManager *SessionManager
	config         config.Auth
	publicPaths    map[string]bool
}

// NewMiddleware creates a new authentication middleware.
func NewMiddleware(service *Service, sessionManager *SessionManager, cfg config.Auth) *Middleware {
	return &Middleware{
		service:        service,
		sessionManager: sessionManager,
		config:         cfg,
		publicPaths: map[string]bool{
			"/health":               true,
			"/ping":                 true,
			"/login":                true,
			"/logout":               true,
			"/setup":                true,
			"/api/auth/csrf":        true,
			"/api/auth/face-login":  true,
			"/api/auth/setup-state": true,
		},
	}
}

// Handler returns the gin middleware that authenticates requests.
func (m *Middleware) Handler() gin.HandlerFunc {
	if m.config.Mode == config.AuthModeNone {
		return func(c *gin.Context) {
			c.Set(ContextKeyPersonID, AnonymousPersonID)
			c.Set(ContextKeyAuthType, AuthTypeNone)
			c.Set(ContextKeyDisabled, true)
			c.Next()
		}
	}

	return func(c *gin.Context) {
		if person := m.tryBearerAuth(c); person != nil {
			setPersonContext(c, person, AuthTypeBearer)
			c.Next()
			return
		}
		if person := m.trySessionAuth(c); person != nil {
			setPersonContext(c, person, AuthTypeSession)
			c.Next()
			return
		}

		if m.publicPaths[c.Request.URL.Path] {
			c.Set(ContextKeyPersonID, AnonymousPersonID)
			c.Set(ContextKeyAuthType, AuthTypeNone)
			c.Next()
			return
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": ErrAuthRequired.Error(),
			"code":  "unauthenticated",
		})
	}
}

func (m *Middleware) tryBearerAuth(c *gin.Context) *entities.Person {
	token, ok := bearerToken(c.GetHeader("Authorization"))
	if !ok {
		return nil
	}
	person, err := m.service.ValidateToken(token)
	if err != nil {
		return nil
	}
	return person
}

func (m *Middleware) trySessionAuth(c *gin.Context) *entities.Person {
	if m.sessionManager == nil {
		return nil
	}
	personID := m.sessionManager.GetPersonID(c.Request)
	if personID == 0 {
		return nil
	}
	// Reload so deactivation and role changes take effect immediately.
	person, err := m.service.GetPersonByID(personID)
	if err != nil {
		return nil
	}
	return person
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func setPersonContext(c *gin.Context, person *entities.Person, authType AuthType) {
	c.Set(ContextKeyPersonID, person.ID)
	c.Set(ContextKeyUsername, person.Username)
	c.Set(ContextKeyRole, person.Role)
	c.Set(ContextKeyAuthType, authType)
}

// RequireRole rejects callers whose role does not include role. Admins pass
// every staff check. With authentication disabled every caller passes.
func RequireRole(role entities.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetBool(ContextKeyDisabled) {
			c.Next()
			return
		}
		if GetPersonID(c) == AnonymousPersonID {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": ErrAuthRequired.Error(),
				"code":  "unauthenticated",
			})
			return
		}
		if !GetRole(c).Includes(role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "insufficient permissions",
				"code":  "unauthorized",
			})
			return
		}
		c.Next()
	}
}

// GetPersonID returns the authenticated person's ID, or AnonymousPersonID.
func GetPersonID(c *gin.Context) uint {
	if id, exists := c.Get(ContextKeyPersonID); exists {
		if personID, ok := id.(uint); ok {
			return personID
		}
	}
	return AnonymousPersonID
}

// GetUsername returns the authenticated person's username.
func GetUsername(c *gin.Context) string {
	return c.GetString(ContextKeyUsername)
}

// GetRole returns the authenticated person's role.
func GetRole(c *gin.Context) entities.Role {
	if r, exists := c.Get(ContextKeyRole); exists {
		if role, ok := r.(entities.Role); ok {
			return role
		}
	}
	return ""
}

// GetAuthType returns how the request was authenticated.
func GetAuthType(c *gin.Context) AuthType {
	if t, exists := c.Get(ContextKeyAuthType); exists {
		if authType, ok := t.(AuthType); ok {
			return authType
		}
	}
	return AuthTypeNone
}

// IsStaff reports whether the caller may act as staff. With authentication
// disabled everyone may.
func IsStaff(c *gin.Context) bool {
	if c.GetBool(ContextKeyDisabled) {
		return true
	}
	return GetRole(c).Includes(entities.RoleStaff)
}
