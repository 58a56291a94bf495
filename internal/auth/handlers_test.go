package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/entities"
	"github.com/mrlokans/librarian/internal/recognition"
)

type stubFaces struct {
	enabled bool
	person  *entities.Person
	err     error
}

func (s *stubFaces) FaceEnabled() bool { return s.enabled }

func (s *stubFaces) IdentifyPerson(ctx context.Context, image []byte) (*entities.Person, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.person, nil
}

type recordedEvent struct {
	personID uint
	action   string
	success  bool
}

type eventLog struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (l *eventLog) LogAuth(personID uint, action string, ipAddr, userAgent string, success bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, recordedEvent{personID, action, success})
}

func (l *eventLog) has(action string, success bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.events {
		if e.action == action && e.success == success {
			return true
		}
	}
	return false
}

type authFixture struct {
	router *gin.Engine
	svc    *Service
	faces  *stubFaces
	events *eventLog
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	db, sqlDB := setupTestDB(t)
	cfg := testAuthConfig()
	svc := NewService(db, cfg)
	sm, err := NewSessionManager(sqlDB, config.DriverSQLite, cfg)
	if err != nil {
		t.Fatal(err)
	}

	f := &authFixture{svc: svc, faces: &stubFaces{}, events: &eventLog{}}
	ac := NewAuthController(svc, sm, cfg, ControllerOptions{Faces: f.faces, Events: f.events, MaxImageBytes: 1024})
	t.Cleanup(ac.Stop)

	router := gin.New()
	router.Use(sm.LoadAndSaveGin())
	router.Use(NewMiddleware(svc, sm, cfg).Handler())
	ac.RegisterRoutes(router)
	f.router = router
	return f
}

func (f *authFixture) do(t *testing.T, method, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func imageUpload(t *testing.T, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", "face.jpg")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func TestAuthController_SetupFlow(t *testing.T) {
	f := newAuthFixture(t)

	w := f.do(t, http.MethodGet, "/api/auth/setup-state", nil, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"needs_setup":true`) {
		t.Fatalf("setup-state = %d %s", w.Code, w.Body.String())
	}

	mismatch := map[string]string{"username": "root", "password": testPassword, "confirm_password": "different-secret"}
	if w := f.do(t, http.MethodPost, "/setup", mismatch, nil); w.Code != http.StatusBadRequest {
		t.Errorf("mismatched passwords status = %d, want 400", w.Code)
	}

	req := map[string]string{"username": "root", "password": testPassword, "confirm_password": testPassword}
	w = f.do(t, http.MethodPost, "/setup", req, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("setup status = %d, body = %s", w.Code, w.Body.String())
	}
	cookie := findSessionCookie(w)
	if cookie == nil {
		t.Fatal("setup should start a session")
	}

	w = f.do(t, http.MethodGet, "/api/auth/me", nil, cookie)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"role":"admin"`) {
		t.Errorf("me = %d %s", w.Code, w.Body.String())
	}

	req["username"] = "second"
	if w := f.do(t, http.MethodPost, "/setup", req, nil); w.Code != http.StatusConflict {
		t.Errorf("second setup status = %d, want 409", w.Code)
	}
}

func TestAuthController_PasswordLogin(t *testing.T) {
	f := newAuthFixture(t)
	createTestPerson(t, f.svc, "desk", entities.RoleStaff)

	if w := f.do(t, http.MethodGet, "/api/auth/me", nil, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("anonymous me status = %d, want 401", w.Code)
	}

	bad := map[string]string{"username": "desk", "password": "wrong-password-here"}
	if w := f.do(t, http.MethodPost, "/login", bad, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong password status = %d, want 401", w.Code)
	}
	if !f.events.has("login_failed", false) {
		t.Error("failed login should be recorded")
	}

	good := map[string]string{"username": "desk", "password": testPassword}
	w := f.do(t, http.MethodPost, "/login", good, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", w.Code, w.Body.String())
	}
	cookie := findSessionCookie(w)
	if cookie == nil {
		t.Fatal("login should set a session cookie")
	}
	if !f.events.has("password_login", true) {
		t.Error("successful login should be recorded")
	}

	w = f.do(t, http.MethodGet, "/api/auth/me", nil, cookie)
	if w.Code != http.StatusOK {
		t.Fatalf("me status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"login_method":"password"`) || !strings.Contains(w.Body.String(), `"auth_type":"session"`) {
		t.Errorf("me body = %s", w.Body.String())
	}

	if w := f.do(t, http.MethodPost, "/logout", nil, cookie); w.Code != http.StatusOK {
		t.Fatalf("logout status = %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/api/auth/me", nil, cookie); w.Code != http.StatusUnauthorized {
		t.Errorf("me after logout status = %d, want 401", w.Code)
	}
}

func TestAuthController_LoginRateLimited(t *testing.T) {
	f := newAuthFixture(t)
	createTestPerson(t, f.svc, "victim", entities.RoleStaff)

	bad := map[string]string{"username": "victim", "password": "wrong-password-here"}
	var last int
	for i := 0; i < 6; i++ {
		last = f.do(t, http.MethodPost, "/login", bad, nil).Code
	}
	if last != http.StatusTooManyRequests && last != http.StatusLocked {
		t.Errorf("repeated failures status = %d, want 429 or 423", last)
	}
}

func TestAuthController_Tokens(t *testing.T) {
	f := newAuthFixture(t)
	createTestPerson(t, f.svc, "integrator", entities.RoleStaff)

	w := f.do(t, http.MethodPost, "/login", map[string]string{"username": "integrator", "password": testPassword}, nil)
	cookie := findSessionCookie(w)
	if cookie == nil {
		t.Fatal("login failed")
	}

	w = f.do(t, http.MethodPost, "/api/auth/token", nil, cookie)
	if w.Code != http.StatusOK {
		t.Fatalf("token status = %d", w.Code)
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.Token == "" {
		t.Fatalf("token response %s: %v", w.Body.String(), err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+resp.Token)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"auth_type":"bearer"`) {
		t.Errorf("bearer me = %d %s", rec.Code, rec.Body.String())
	}

	if w := f.do(t, http.MethodDelete, "/api/auth/token", nil, cookie); w.Code != http.StatusOK {
		t.Fatalf("revoke status = %d", w.Code)
	}
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("revoked token status = %d, want 401", rec.Code)
	}
}

func TestAuthController_ChangePassword(t *testing.T) {
	f := newAuthFixture(t)
	createTestPerson(t, f.svc, "rotator", entities.RoleStaff)

	cookie := findSessionCookie(f.do(t, http.MethodPost, "/login", map[string]string{"username": "rotator", "password": testPassword}, nil))
	if cookie == nil {
		t.Fatal("login failed")
	}

	wrong := map[string]string{"old_password": "wrong-password-here", "new_password": "fresh-long-password"}
	if w := f.do(t, http.MethodPost, "/api/auth/password", wrong, cookie); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong old password status = %d, want 401", w.Code)
	}

	ok := map[string]string{"old_password": testPassword, "new_password": "fresh-long-password"}
	if w := f.do(t, http.MethodPost, "/api/auth/password", ok, cookie); w.Code != http.StatusOK {
		t.Fatalf("change status = %d, body = %s", w.Code, w.Body.String())
	}
	if _, err := f.svc.Authenticate("rotator", "fresh-long-password"); err != nil {
		t.Errorf("new password rejected: %v", err)
	}
}

func TestAuthController_FaceLogin(t *testing.T) {
	f := newAuthFixture(t)
	reader := createTestPerson(t, f.svc, "patron", entities.RoleBorrower)

	post := func(data []byte) *httptest.ResponseRecorder {
		body, contentType := imageUpload(t, data)
		req := httptest.NewRequest(http.MethodPost, "/api/auth/face-login", body)
		req.Header.Set("Content-Type", contentType)
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)
		return w
	}

	t.Run("not configured", func(t *testing.T) {
		if w := post([]byte("jpeg")); w.Code != http.StatusNotImplemented {
			t.Errorf("status = %d, want 501", w.Code)
		}
	})

	f.faces.enabled = true

	t.Run("match starts session", func(t *testing.T) {
		f.faces.person, f.faces.err = reader, nil
		w := post([]byte("jpeg"))
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
		}
		cookie := findSessionCookie(w)
		if cookie == nil {
			t.Fatal("face login should set a session cookie")
		}
		me := f.do(t, http.MethodGet, "/api/auth/me", nil, cookie)
		if !strings.Contains(me.Body.String(), `"login_method":"face"`) {
			t.Errorf("me body = %s", me.Body.String())
		}
	})

	t.Run("no match", func(t *testing.T) {
		f.faces.person, f.faces.err = nil, recognition.ErrNoMatch
		if w := post([]byte("jpeg")); w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
		if !f.events.has("face_login_failed", false) {
			t.Error("failed face login should be recorded")
		}
	})

	t.Run("encoder failure", func(t *testing.T) {
		f.faces.person, f.faces.err = nil, errors.New("connection refused")
		if w := post([]byte("jpeg")); w.Code != http.StatusBadGateway {
			t.Errorf("status = %d, want 502", w.Code)
		}
	})

	t.Run("image too large", func(t *testing.T) {
		f.faces.person, f.faces.err = reader, nil
		if w := post(bytes.Repeat([]byte("x"), 2048)); w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("missing image", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/face-login", nil)
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})
}
