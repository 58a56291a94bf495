package auth

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(t *testing.T) (*RateLimiter, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(RateLimitConfig{
		MaxAttempts:     3,
		WindowDuration:  time.Minute,
		LockoutDuration: 5 * time.Minute,
		CleanupInterval: time.Hour,
		Now:             clock.Now,
	})
	t.Cleanup(rl.Stop)
	return rl, clock
}

func TestRateLimiter_LockoutAfterMaxAttempts(t *testing.T) {
	rl, clock := newTestLimiter(t)

	for i := 0; i < 2; i++ {
		if locked, _ := rl.RecordFailure("1.2.3.4", "alice"); locked {
			t.Fatalf("locked after %d failures", i+1)
		}
	}
	locked, retry := rl.RecordFailure("1.2.3.4", "alice")
	if !locked || retry != 5*time.Minute {
		t.Fatalf("third failure: locked=%v retry=%v", locked, retry)
	}

	if allowed, _ := rl.Allow("1.2.3.4", "alice"); allowed {
		t.Error("locked client should be refused")
	}
	if allowed, _ := rl.Allow("1.2.3.4", "ALICE"); allowed {
		t.Error("usernames are case-insensitive")
	}
	if allowed, _ := rl.Allow("5.6.7.8", "alice"); !allowed {
		t.Error("other IPs should be unaffected")
	}

	clock.Advance(5*time.Minute + time.Second)
	if allowed, _ := rl.Allow("1.2.3.4", "alice"); !allowed {
		t.Error("lockout should expire")
	}
	if locked, _ := rl.RecordFailure("1.2.3.4", "alice"); locked {
		t.Error("counter should restart after lockout expiry")
	}
}

func TestRateLimiter_WindowReset(t *testing.T) {
	rl, clock := newTestLimiter(t)

	rl.RecordFailure("ip", "bob")
	rl.RecordFailure("ip", "bob")
	clock.Advance(2 * time.Minute)

	if locked, _ := rl.RecordFailure("ip", "bob"); locked {
		t.Error("failures outside the window should not accumulate")
	}
}

func TestRateLimiter_SuccessClears(t *testing.T) {
	rl, _ := newTestLimiter(t)

	rl.RecordFailure("ip", "carol")
	rl.RecordFailure("ip", "carol")
	rl.RecordSuccess("ip", "carol")

	if rl.size() != 0 {
		t.Errorf("size = %d, want 0", rl.size())
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl, clock := newTestLimiter(t)

	rl.RecordFailure("ip", "dave")
	for i := 0; i < 3; i++ {
		rl.RecordFailure("ip", "erin")
	}

	clock.Advance(2 * time.Minute)
	rl.cleanup()
	if rl.size() != 1 {
		t.Fatalf("size = %d, want 1 (locked record kept)", rl.size())
	}

	clock.Advance(5 * time.Minute)
	rl.cleanup()
	if rl.size() != 0 {
		t.Errorf("size = %d, want 0", rl.size())
	}
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl, _ := newTestLimiter(t)
	for i := 0; i < 3; i++ {
		rl.RecordFailure("192.0.2.1", "frank")
	}

	router := gin.New()
	router.POST("/login", rl.Middleware(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = "192.0.2.1:4000"
	req.Header.Set("X-Login-Username", "frank")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") != "300" {
		t.Errorf("Retry-After = %q, want 300", w.Header().Get("Retry-After"))
	}

	req = httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = "192.0.2.1:4000"
	req.Header.Set("X-Login-Username", "grace")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("other username status = %d, want 200", w.Code)
	}
}
