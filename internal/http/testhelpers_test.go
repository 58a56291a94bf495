package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/librarian/internal/audit"
	"github.com/mrlokans/librarian/internal/auth"
	"github.com/mrlokans/librarian/internal/circulation"
	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/database"
	auditRepo "github.com/mrlokans/librarian/internal/database/audit"
	"github.com/mrlokans/librarian/internal/database/borrows"
	"github.com/mrlokans/librarian/internal/database/catalog"
	"github.com/mrlokans/librarian/internal/database/persons"
	"github.com/mrlokans/librarian/internal/entities"
	"github.com/mrlokans/librarian/internal/reports"
)

const testPassword = "correct-horse-battery"

func init() {
	gin.SetMode(gin.TestMode)
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// apiFixture is a fully wired router over a throwaway SQLite database.
type apiFixture struct {
	router   *gin.Engine
	db       *database.Database
	service  *circulation.Service
	catalog  *catalog.Repository
	persons  *persons.Repository
	accounts *auth.Service
	audit    *audit.Service
	clock    *fixedClock
}

type fixtureOption func(*RouterConfig)

func defaultCirculation() config.Circulation {
	return config.Circulation{
		RequiresApproval:      true,
		StaffBypassesApproval: true,
		OneOpenBorrowPerWork:  true,
		DefaultLoanDays:       14,
		MaxLoanDays:           90,
		ConflictRetries:       3,
		ConflictRetryDelay:    time.Millisecond,
	}
}

func newAPIFixture(t *testing.T, mode config.AuthMode, opts ...fixtureOption) *apiFixture {
	t.Helper()
	db, err := database.Open(database.Options{
		Driver:   config.DriverSQLite,
		Path:     filepath.Join(t.TempDir(), "api.db"),
		LogLevel: logger.Silent,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	authCfg := config.Auth{
		Mode:        mode,
		TokenExpiry: 24 * time.Hour,
		BcryptCost:  bcrypt.MinCost,
	}
	cfg := RouterConfig{
		Database:      db,
		AuthConfig:    authCfg,
		Circulation:   defaultCirculation(),
		RetentionDays: 90,
		Version:       "test",
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	clock := &fixedClock{now: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	personRepo := persons.NewRepository(db.DB)
	catalogRepo := catalog.NewRepository(db.DB)
	svc := circulation.NewService(borrows.NewRepository(db.DB), personRepo, circulation.PolicyFromConfig(cfg.Circulation), clock)
	accounts := auth.NewService(db.DB, authCfg)
	auditSvc := audit.NewService(auditRepo.NewRepository(db.DB))
	reportsRepo, err := reports.NewRepository(db.DB, db.Driver)
	require.NoError(t, err)

	cfg.Borrows = svc
	cfg.Catalog = catalogRepo
	cfg.Persons = personRepo
	cfg.Reports = reportsRepo
	cfg.Auditor = auditSvc
	cfg.AuditLog = auditSvc
	cfg.AuthService = accounts
	if mode == config.AuthModeLocal {
		cfg.AuthMiddleware = auth.NewMiddleware(accounts, nil, authCfg)
	}

	return &apiFixture{
		router:   NewRouter(cfg),
		db:       db,
		service:  svc,
		catalog:  catalogRepo,
		persons:  personRepo,
		accounts: accounts,
		audit:    auditSvc,
		clock:    clock,
	}
}

func (f *apiFixture) person(t *testing.T, username string, role entities.Role) *entities.Person {
	t.Helper()
	in := auth.AccountInput{Username: username, FullName: username, Role: role}
	if role != entities.RoleBorrower {
		in.Password = testPassword
	}
	p, err := f.accounts.CreateAccount(in)
	require.NoError(t, err)
	return p
}

// token returns a bearer token for person.
func (f *apiFixture) token(t *testing.T, person *entities.Person) string {
	t.Helper()
	token, err := f.accounts.GenerateToken(person.ID)
	require.NoError(t, err)
	return token
}

func (f *apiFixture) work(t *testing.T, title string, copies int) *entities.WorkView {
	t.Helper()
	ctx := context.Background()
	w, err := f.catalog.CreateWork(ctx, catalog.WorkInput{Title: title})
	require.NoError(t, err)
	for i := 0; i < copies; i++ {
		_, err := f.catalog.AddCopy(ctx, w.ID, nil, "")
		require.NoError(t, err)
	}
	return w
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[ErrorResponse](t, w).Code
}

func assertStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	require.Equal(t, want, w.Code, "%s", w.Body.String())
}
