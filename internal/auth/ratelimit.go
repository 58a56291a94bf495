package auth

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimiter throttles login attempts per client IP and username within a
// fixed window. It complements the per-account lockout in Service, which
// survives restarts but cannot see attacks spread over unknown usernames.
type RateLimiter struct {
	mu              sync.Mutex
	attempts        map[string]*attemptRecord
	maxAttempts     int
	windowDuration  time.Duration
	lockoutDuration time.Duration
	cleanupInterval time.Duration
	now             func() time.Time
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

type attemptRecord struct {
	count        int
	firstAttempt time.Time
	lockedUntil  time.Time
}

// RateLimitConfig contains configuration for the rate limiter.
type RateLimitConfig struct {
	MaxAttempts     int
	WindowDuration  time.Duration
	LockoutDuration time.Duration
	CleanupInterval time.Duration
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// DefaultRateLimitConfig returns the defaults used when config leaves values unset.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxAttempts:     5,
		WindowDuration:  15 * time.Minute,
		LockoutDuration: 30 * time.Minute,
		CleanupInterval: 5 * time.Minute,
	}
}

// NewRateLimiter creates a rate limiter and starts its cleanup loop.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	def := DefaultRateLimitConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.WindowDuration <= 0 {
		cfg.WindowDuration = def.WindowDuration
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = def.LockoutDuration
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	rl := &RateLimiter{
		attempts:        make(map[string]*attemptRecord),
		maxAttempts:     cfg.MaxAttempts,
		windowDuration:  cfg.WindowDuration,
		lockoutDuration: cfg.LockoutDuration,
		cleanupInterval: cfg.CleanupInterval,
		now:             cfg.Now,
		stopCleanup:     make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Stop stops the background cleanup goroutine. Safe to call twice.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCleanup) })
}

func makeKey(ip, username string) string {
	return ip + "|" + strings.ToLower(username)
}

// Allow reports whether a login attempt may proceed. When it may not,
// the returned duration is how long the caller should wait.
func (rl *RateLimiter) Allow(ip, username string) (bool, time.Duration) {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	record, exists := rl.attempts[makeKey(ip, username)]
	if !exists {
		return true, 0
	}
	if !record.lockedUntil.IsZero() {
		if now.Before(record.lockedUntil) {
			return false, record.lockedUntil.Sub(now)
		}
		return true, 0
	}
	if now.Sub(record.firstAttempt) > rl.windowDuration {
		return true, 0
	}
	return record.count < rl.maxAttempts, 0
}

// RecordFailure records a failed attempt and reports whether it triggered a lockout.
func (rl *RateLimiter) RecordFailure(ip, username string) (bool, time.Duration) {
	key := makeKey(ip, username)
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	record, exists := rl.attempts[key]
	if !exists || rl.expired(record, now) {
		record = &attemptRecord{firstAttempt: now}
		rl.attempts[key] = record
	}

	record.count++
	if record.count >= rl.maxAttempts {
		record.lockedUntil = now.Add(rl.lockoutDuration)
		return true, rl.lockoutDuration
	}
	return false, 0
}

// RecordSuccess clears the failure record after a successful login.
func (rl *RateLimiter) RecordSuccess(ip, username string) {
	rl.mu.Lock()
	delete(rl.attempts, makeKey(ip, username))
	rl.mu.Unlock()
}

func (rl *RateLimiter) expired(record *attemptRecord, now time.Time) bool {
	if !record.lockedUntil.IsZero() {
		return !now.Before(record.lockedUntil)
	}
	return now.Sub(record.firstAttempt) > rl.windowDuration
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCleanup:
			return
		}
	}
}

func (rl *RateLimiter) cleanup() {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, record := range rl.attempts {
		if rl.expired(record, now) {
			delete(rl.attempts, key)
		}
	}
}

// size returns the number of tracked keys.
func (rl *RateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.attempts)
}

// Middleware rejects login requests from locked-out clients with 429.
// The username is read from the form or from the X-Login-Username header
// that JSON clients send, so the request body stays unread.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost {
			c.Next()
			return
		}

		username := loginUsernameHint(c)
		allowed, retryAfter := rl.Allow(c.ClientIP(), username)
		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(retryAfter.Round(time.Second).Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "too many login attempts",
				"code":        "rate_limited",
				"retry_after": retryAfter.Round(time.Second).String(),
			})
			return
		}
		c.Next()
	}
}

func loginUsernameHint(c *gin.Context) string {
	if u := c.GetHeader("X-Login-Username"); u != "" {
		return u
	}
	if strings.HasPrefix(c.ContentType(), "application/x-www-form-urlencoded") {
		return c.PostForm("username")
	}
	return ""
}
