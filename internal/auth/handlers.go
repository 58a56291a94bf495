package auth

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/entities"
	"github.com/mrlokans/librarian/internal/recognition"
)

// setupMutex serializes first-admin setup so two concurrent requests cannot
// both observe an empty staff table.
var setupMutex sync.Mutex

const defaultMaxImageBytes = 5 << 20

// FaceIdentifier resolves a face photo to an active person.
type FaceIdentifier interface {
	FaceEnabled() bool
	IdentifyPerson(ctx context.Context, image []byte) (*entities.Person, error)
}

// EventRecorder receives authentication events for the audit trail.
type EventRecorder interface {
	LogAuth(personID uint, action string, ipAddr, userAgent string, success bool)
}

// AuthController handles authentication endpoints.
type AuthController struct {
	service        *Service
	sessionManager *SessionManager
	rateLimiter    *RateLimiter
	faces          FaceIdentifier
	events         EventRecorder
	config         config.Auth
	maxImageBytes  int64
}

// ControllerOptions holds the optional collaborators of AuthController.
type ControllerOptions struct {
	Faces         FaceIdentifier
	Events        EventRecorder
	MaxImageBytes int64
}

// NewAuthController creates a new authentication controller with its own
// login rate limiter.
func NewAuthController(service *Service, sessionManager *SessionManager, cfg config.Auth, opts ControllerOptions) *AuthController {
	if opts.MaxImageBytes <= 0 {
		opts.MaxImageBytes = defaultMaxImageBytes
	}
	return &AuthController{
		service:        service,
		sessionManager: sessionManager,
		rateLimiter: NewRateLimiter(RateLimitConfig{
			MaxAttempts:     cfg.MaxLoginAttempts,
			WindowDuration:  cfg.RateLimitWindow,
			LockoutDuration: cfg.LockoutDuration,
		}),
		faces:         opts.Faces,
		events:        opts.Events,
		config:        cfg,
		maxImageBytes: opts.MaxImageBytes,
	}
}

// RegisterRoutes registers authentication routes. Token management routes
// require an authenticated caller, which the auth middleware enforces.
func (ac *AuthController) RegisterRoutes(router gin.IRouter) {
	limited := ac.rateLimiter.Middleware()

	router.POST("/login", limited, ac.Login)
	router.POST("/logout", ac.Logout)
	router.POST("/setup", ac.Setup)

	api := router.Group("/api/auth")
	api.GET("/setup-state", ac.SetupState)
	api.GET("/csrf", ac.CSRFToken)
	api.GET("/me", ac.Me)
	api.POST("/face-login", limited, ac.FaceLogin)
	api.POST("/token", ac.GenerateToken)
	api.DELETE("/token", ac.RevokeToken)
	api.POST("/password", ac.ChangePassword)
}

// Stop stops the rate limiter's cleanup goroutine.
func (ac *AuthController) Stop() {
	ac.rateLimiter.Stop()
}

type loginRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

// Login authenticates with username and password and starts a session.
// Both JSON and form bodies are accepted.
func (ac *AuthController) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid login request", "code": "validation"})
		return
	}

	clientIP := c.ClientIP()
	if allowed, retryAfter := ac.rateLimiter.Allow(clientIP, req.Username); !allowed {
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":       "too many login attempts",
			"code":        "rate_limited",
			"retry_after": retryAfter.String(),
		})
		return
	}

	person, err := ac.service.Authenticate(req.Username, req.Password)
	if err != nil {
		ac.rateLimiter.RecordFailure(clientIP, req.Username)
		ac.recordEvent(c, 0, "login_failed", false)

		if errors.Is(err, ErrAccountLocked) {
			c.JSON(http.StatusLocked, gin.H{"error": "account is locked, try again later", "code": "locked"})
			return
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password", "code": "unauthenticated"})
		return
	}

	ac.rateLimiter.RecordSuccess(clientIP, req.Username)
	ac.startSession(c, person, LoginMethodPassword)
}

// FaceLogin identifies the caller from a multipart "image" upload and starts
// a session for the matched person.
func (ac *AuthController) FaceLogin(c *gin.Context) {
	if ac.faces == nil || !ac.faces.FaceEnabled() {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "face login is not configured", "code": "not_configured"})
		return
	}

	image, err := readImage(c, ac.maxImageBytes)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "validation"})
		return
	}

	person, err := ac.faces.IdentifyPerson(c.Request.Context(), image)
	if err != nil {
		ac.recordEvent(c, 0, "face_login_failed", false)
		if errors.Is(err, recognition.ErrNoMatch) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "face not recognized", "code": "unauthenticated"})
			return
		}
		log.Printf("[Auth] Face identification failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "face recognition unavailable", "code": "upstream"})
		return
	}

	ac.service.RecordLogin(person)
	ac.startSession(c, person, LoginMethodFace)
}

func (ac *AuthController) startSession(c *gin.Context, person *entities.Person, method string) {
	if ac.sessionManager != nil {
		if err := ac.sessionManager.CreateSession(c.Request, person, method); err != nil {
			log.Printf("[Auth] Failed to create session for person %d: %v", person.ID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session", "code": "internal"})
			return
		}
	}
	ac.recordEvent(c, person.ID, method+"_login", true)

	c.JSON(http.StatusOK, gin.H{"person": person, "method": method})
}

// Logout destroys the current session.
func (ac *AuthController) Logout(c *gin.Context) {
	if ac.sessionManager != nil {
		personID := ac.sessionManager.GetPersonID(c.Request)
		if err := ac.sessionManager.DestroySession(c.Request); err != nil {
			log.Printf("[Auth] Failed to destroy session: %v", err)
		}
		if personID != 0 {
			ac.recordEvent(c, personID, "logout", true)
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Me returns the authenticated person.
func (ac *AuthController) Me(c *gin.Context) {
	personID := GetPersonID(c)
	if personID == AnonymousPersonID {
		c.JSON(http.StatusUnauthorized, gin.H{"error": ErrAuthRequired.Error(), "code": "unauthenticated"})
		return
	}
	person, err := ac.service.GetPersonByID(personID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "code": "unauthenticated"})
		return
	}

	resp := gin.H{"person": person, "auth_type": GetAuthType(c)}
	if ac.sessionManager != nil {
		if data := ac.sessionManager.GetSessionData(c.Request); data != nil {
			resp["login_method"] = data.Method
			resp["login_at"] = data.LoginAt
		}
	}
	c.JSON(http.StatusOK, resp)
}

// CSRFToken returns the token session clients echo in X-CSRF-Token.
func (ac *AuthController) CSRFToken(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"token": GetCSRFToken(c), "header": CSRFTokenHeader})
}

// SetupState reports whether the first administrator still has to be created.
func (ac *AuthController) SetupState(c *gin.Context) {
	hasStaff, err := ac.service.HasStaff()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database error", "code": "internal"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"needs_setup": !hasStaff, "auth_mode": ac.service.GetAuthMode()})
}

type setupRequest struct {
	Username        string `json:"username" form:"username"`
	Email           string `json:"email" form:"email"`
	FullName        string `json:"full_name" form:"full_name"`
	Password        string `json:"password" form:"password"`
	ConfirmPassword string `json:"confirm_password" form:"confirm_password"`
}

// Setup creates the first administrator. It is refused once any staff
// account exists.
func (ac *AuthController) Setup(c *gin.Context) {
	setupMutex.Lock()
	defer setupMutex.Unlock()

	hasStaff, err := ac.service.HasStaff()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database error", "code": "internal"})
		return
	}
	if hasStaff {
		c.JSON(http.StatusConflict, gin.H{"error": "setup already completed", "code": "conflict"})
		return
	}

	var req setupRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid setup request", "code": "validation"})
		return
	}
	if req.Password != req.ConfirmPassword {
		c.JSON(http.StatusBadRequest, gin.H{"error": "passwords do not match", "code": "validation"})
		return
	}

	person, err := ac.service.CreateAccount(AccountInput{
		Username: req.Username,
		Email:    req.Email,
		FullName: req.FullName,
		Password: req.Password,
		Role:     entities.RoleAdmin,
	})
	if err != nil {
		if errors.Is(err, ErrPersonExists) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": "conflict"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "validation"})
		return
	}

	log.Printf("[Auth] Created initial administrator %q", person.Username)
	ac.startSession(c, person, LoginMethodPassword)
}

// GenerateToken issues a new API token for the caller, replacing any old one.
func (ac *AuthController) GenerateToken(c *gin.Context) {
	personID := GetPersonID(c)
	if personID == AnonymousPersonID {
		c.JSON(http.StatusUnauthorized, gin.H{"error": ErrAuthRequired.Error(), "code": "unauthenticated"})
		return
	}

	token, err := ac.service.GenerateToken(personID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token", "code": "internal"})
		return
	}
	ac.recordEvent(c, personID, "token_generate", true)

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_in": ac.config.TokenExpiry.String(),
		"message":    "store this token securely, it will not be shown again",
	})
}

// RevokeToken revokes the caller's API token.
func (ac *AuthController) RevokeToken(c *gin.Context) {
	personID := GetPersonID(c)
	if personID == AnonymousPersonID {
		c.JSON(http.StatusUnauthorized, gin.H{"error": ErrAuthRequired.Error(), "code": "unauthenticated"})
		return
	}

	if err := ac.service.RevokeToken(personID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke token", "code": "internal"})
		return
	}
	ac.recordEvent(c, personID, "token_revoke", true)
	c.JSON(http.StatusOK, gin.H{"message": "token revoked"})
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// ChangePassword changes the caller's password after verifying the old one.
func (ac *AuthController) ChangePassword(c *gin.Context) {
	personID := GetPersonID(c)
	if personID == AnonymousPersonID {
		c.JSON(http.StatusUnauthorized, gin.H{"error": ErrAuthRequired.Error(), "code": "unauthenticated"})
		return
	}

	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "old_password and new_password are required", "code": "validation"})
		return
	}

	if err := ac.service.ChangePassword(personID, req.OldPassword, req.NewPassword); err != nil {
		ac.recordEvent(c, personID, "password_change", false)
		if errors.Is(err, ErrInvalidPassword) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "code": "unauthenticated"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "validation"})
		return
	}
	ac.recordEvent(c, personID, "password_change", true)
	c.JSON(http.StatusOK, gin.H{"message": "password changed"})
}

func (ac *AuthController) recordEvent(c *gin.Context, personID uint, action string, success bool) {
	if ac.events == nil {
		return
	}
	ac.events.LogAuth(personID, action, c.ClientIP(), c.Request.UserAgent(), success)
}

func readImage(c *gin.Context, maxBytes int64) ([]byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+1024)
	file, _, err := c.Request.FormFile("image")
	if err != nil {
		return nil, errors.New("multipart field \"image\" is required")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		return nil, errors.New("failed to read image")
	}
	if int64(len(data)) > maxBytes {
		return nil, errors.New("image too large")
	}
	if len(data) == 0 {
		return nil, errors.New("image is empty")
	}
	return data, nil
}
