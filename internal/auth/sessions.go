package auth

import (
	"database/sql"
	"encoding/gob"
	"fmt"
	"net/http"
	"time"

	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"
	"github.com/alexedwards/scs/v2/memstore"

	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/entities"
)

// Session data keys
const (
	SessionKeyPersonID = "person_id"
	SessionKeyUsername = "username"
	SessionKeyRole     = "role"
	SessionKeyLoginAt  = "login_at"
	SessionKeyMethod   = "login_method"
)

// Login methods recorded in the session.
const (
	LoginMethodPassword = "password"
	LoginMethodFace     = "face"
)

const sqliteSessionsSchema = `CREATE TABLE IF NOT EXISTS sessions (
	token TEXT PRIMARY KEY,
	data BLOB NOT NULL,
	expiry REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS sessions_expiry_idx ON sessions(expiry);`

func init() {
	gob.Register(entities.Role(""))
	gob.Register(time.Time{})
}

// SessionManager wraps scs.SessionManager with person-aware helpers.
type SessionManager struct {
	*scs.SessionManager
}

// NewSessionManager creates a session manager. SQLite deployments keep
// sessions in the application database; Postgres deployments keep them in
// memory.
func NewSessionManager(sqlDB *sql.DB, driver string, cfg config.Auth) (*SessionManager, error) {
	sm := scs.New()

	switch driver {
	case "", config.DriverSQLite:
		if _, err := sqlDB.Exec(sqliteSessionsSchema); err != nil {
			return nil, fmt.Errorf("failed to create sessions table: %w", err)
		}
		sm.Store = sqlite3store.New(sqlDB)
	case config.DriverPostgres:
		sm.Store = memstore.New()
	default:
		return nil, fmt.Errorf("unsupported session store driver %q", driver)
	}

	lifetime := cfg.SessionLifetime
	if lifetime <= 0 {
		lifetime = 24 * time.Hour
	}
	sm.Lifetime = lifetime
	sm.IdleTimeout = lifetime / 2

	sm.Cookie.Name = "librarian_session"
	sm.Cookie.HttpOnly = true
	sm.Cookie.Secure = cfg.SecureCookies
	sm.Cookie.SameSite = http.SameSiteStrictMode
	sm.Cookie.Path = "/"

	return &SessionManager{SessionManager: sm}, nil
}

// CreateSession starts a session for person. The token is renewed first to
// prevent session fixation.
func (sm *SessionManager) CreateSession(r *http.Request, person *entities.Person, method string) error {
	if err := sm.RenewToken(r.Context()); err != nil {
		return err
	}

	ctx := r.Context()
	sm.Put(ctx, SessionKeyPersonID, int(person.ID))
	sm.Put(ctx, SessionKeyUsername, person.Username)
	sm.Put(ctx, SessionKeyRole, person.Role)
	sm.Put(ctx, SessionKeyLoginAt, time.Now().UTC())
	sm.Put(ctx, SessionKeyMethod, method)
	return nil
}

// DestroySession removes all session data and invalidates the session.
func (sm *SessionManager) DestroySession(r *http.Request) error {
	return sm.Destroy(r.Context())
}

// GetPersonID returns the person in the session, or 0.
func (sm *SessionManager) GetPersonID(r *http.Request) uint {
	return uint(sm.GetInt(r.Context(), SessionKeyPersonID))
}

// IsAuthenticated returns true if the request has a valid session.
func (sm *SessionManager) IsAuthenticated(r *http.Request) bool {
	return sm.GetPersonID(r) != 0
}

// SessionData holds the session information for a request.
type SessionData struct {
	PersonID uint          `json:"person_id"`
	Username string        `json:"username"`
	Role     entities.Role `json:"role"`
	Method   string        `json:"login_method"`
	LoginAt  time.Time     `json:"login_at"`
}

// GetSessionData returns the session contents, or nil without a session.
func (sm *SessionManager) GetSessionData(r *http.Request) *SessionData {
	personID := sm.GetPersonID(r)
	if personID == 0 {
		return nil
	}

	ctx := r.Context()
	role, _ := sm.Get(ctx, SessionKeyRole).(entities.Role)
	loginAt, _ := sm.Get(ctx, SessionKeyLoginAt).(time.Time)
	return &SessionData{
		PersonID: personID,
		Username: sm.GetString(ctx, SessionKeyUsername),
		Role:     role,
		Method:   sm.GetString(ctx, SessionKeyMethod),
		LoginAt:  loginAt,
	}
}
