package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type AuthMode string

const (
	AuthModeNone  AuthMode = "none"  // No authentication required
	AuthModeLocal AuthMode = "local" // Person accounts with sessions and API tokens (default)
)

type (
	Config struct {
		HTTP
		Global
		Database
		Circulation
		OverdueSweep
		Audit
		Tasks
		Auth
		Recognition
		Demo
	}

	HTTP struct {
		Port int32
		Host string
	}

	Global struct {
		ShutdownTimeoutInSeconds int
	}

	Database struct {
		Driver string // "sqlite" or "postgres"
		Path   string // SQLite file path
		DSN    string // Postgres connection string
		LogSQL bool
	}

	// Circulation holds the borrow policy. Every flag is explicit so that the
	// approval workflow never depends on who happens to be calling.
	Circulation struct {
		RequiresApproval      bool
		StaffBypassesApproval bool
		HoldPendingCopies     bool
		OneOpenBorrowPerWork  bool
		DefaultLoanDays       int
		MaxLoanDays           int
		ConflictRetries       int           // Retries of a transaction that lost a race (HTTP layer only)
		ConflictRetryDelay    time.Duration // Base delay between those retries
	}

	OverdueSweep struct {
		Enabled  bool
		Schedule string // Cron format: "0 * * * *" = hourly
	}

	Audit struct {
		RetentionDays int // Days to keep audit events (default: 90)
	}

	Tasks struct {
		Enabled           bool
		Workers           int
		MaxRetries        int
		RetryDelay        time.Duration
		TaskTimeout       time.Duration
		ReleaseAfter      time.Duration
		CleanupInterval   time.Duration
		RetentionDuration time.Duration
	}

	Auth struct {
		Mode            AuthMode
		SessionSecret   string
		SessionLifetime time.Duration
		TokenExpiry     time.Duration
		BcryptCost      int
		SecureCookies   bool // Set to false for local dev without HTTPS

		// Rate limiting configuration
		MaxLoginAttempts int           // Max failed attempts before lockout (default: 5)
		RateLimitWindow  time.Duration // Time window for counting attempts (default: 15m)
		LockoutDuration  time.Duration // How long to lock out (default: 30m)
	}

	Recognition struct {
		FaceTolerance      float64 // Max euclidean distance for a face match
		MaxImageBytes      int64
		FaceEncoderURL     string // Inference endpoint returning {"encoding": [...]}; empty disables face login
		CoverClassifierURL string // Inference endpoint returning {"label": "...", "confidence": 0.9}
		MinCoverConfidence float64
		InferenceTimeout   time.Duration
		EncryptionKey      string // base64 AES-256 key sealing stored face encodings; empty stores them plain
	}

	// Demo serves the library read-only.
	Demo struct {
		Enabled bool
	}
)

// loadDotEnv reads .env files into the process environment. Variables that
// are already set win over file values.
func loadDotEnv() {
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")
}

func NewConfig() *Config {
	loadDotEnv()

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("port", 8188)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("shutdown_timeout_in_seconds", 2)
	v.SetDefault("database_driver", DriverSQLite)
	v.SetDefault("database_path", DefaultDatabasePath)
	v.SetDefault("database_dsn", "")
	v.SetDefault("log_sql", false)
	v.SetDefault("audit_retention_days", 90)

	// Circulation policy defaults
	v.SetDefault("circulation_requires_approval", true)
	v.SetDefault("circulation_staff_bypasses_approval", true)
	v.SetDefault("circulation_hold_pending_copies", false)
	v.SetDefault("circulation_one_open_borrow_per_work", true)
	v.SetDefault("circulation_default_loan_days", 14)
	v.SetDefault("circulation_max_loan_days", 90)
	v.SetDefault("circulation_conflict_retries", 3)
	v.SetDefault("circulation_conflict_retry_delay", "20ms")

	v.SetDefault("overdue_sweep_enabled", true)
	v.SetDefault("overdue_sweep_schedule", "*/15 * * * *") // Every 15 minutes

	// Auth defaults
	v.SetDefault("auth_mode", "local")
	v.SetDefault("auth_session_secret", "")       // Auto-generated if empty
	v.SetDefault("auth_session_lifetime", "24h")  // 24 hours
	v.SetDefault("auth_token_expiry", "720h")     // 30 days
	v.SetDefault("auth_bcrypt_cost", 12)          // bcrypt cost factor
	v.SetDefault("auth_secure_cookies", true)     // HTTPS-only cookies
	v.SetDefault("auth_max_login_attempts", 5)    // Max failed attempts
	v.SetDefault("auth_rate_limit_window", "15m") // Window for counting attempts
	v.SetDefault("auth_lockout_duration", "30m")  // Lockout duration

	v.SetDefault("face_tolerance", DefaultFaceTolerance)
	v.SetDefault("recognition_max_image_bytes", 8<<20)
	v.SetDefault("face_encoder_url", "")
	v.SetDefault("cover_classifier_url", "")
	v.SetDefault("cover_min_confidence", 0.6)
	v.SetDefault("inference_timeout", "10s")
	v.SetDefault("face_encryption_key", "")
	v.SetDefault("demo_mode", false)

	// Task queue defaults
	v.SetDefault("tasks_enabled", true)
	v.SetDefault("task_workers", 2)
	v.SetDefault("task_max_retries", 3)
	v.SetDefault("task_retry_delay", "1m")
	v.SetDefault("task_timeout", "5m")
	v.SetDefault("task_release_after", "15m")
	v.SetDefault("task_cleanup_interval", "1h")
	v.SetDefault("task_retention_duration", "24h")

	return &Config{
		HTTP: HTTP{
			Port: v.GetInt32("PORT"),
			Host: v.GetString("HOST"),
		},
		Global: Global{
			ShutdownTimeoutInSeconds: v.GetInt("SHUTDOWN_TIMEOUT_IN_SECONDS"),
		},
		Database: Database{
			Driver: v.GetString("DATABASE_DRIVER"),
			Path:   v.GetString("DATABASE_PATH"),
			DSN:    v.GetString("DATABASE_DSN"),
			LogSQL: v.GetBool("LOG_SQL"),
		},
		Circulation: Circulation{
			RequiresApproval:      v.GetBool("CIRCULATION_REQUIRES_APPROVAL"),
			StaffBypassesApproval: v.GetBool("CIRCULATION_STAFF_BYPASSES_APPROVAL"),
			HoldPendingCopies:     v.GetBool("CIRCULATION_HOLD_PENDING_COPIES"),
			OneOpenBorrowPerWork:  v.GetBool("CIRCULATION_ONE_OPEN_BORROW_PER_WORK"),
			DefaultLoanDays:       v.GetInt("CIRCULATION_DEFAULT_LOAN_DAYS"),
			MaxLoanDays:           v.GetInt("CIRCULATION_MAX_LOAN_DAYS"),
			ConflictRetries:       v.GetInt("CIRCULATION_CONFLICT_RETRIES"),
			ConflictRetryDelay:    v.GetDuration("CIRCULATION_CONFLICT_RETRY_DELAY"),
		},
		OverdueSweep: OverdueSweep{
			Enabled:  v.GetBool("OVERDUE_SWEEP_ENABLED"),
			Schedule: v.GetString("OVERDUE_SWEEP_SCHEDULE"),
		},
		Audit: Audit{
			RetentionDays: v.GetInt("AUDIT_RETENTION_DAYS"),
		},
		Tasks: Tasks{
			Enabled:           v.GetBool("TASKS_ENABLED"),
			Workers:           v.GetInt("TASK_WORKERS"),
			MaxRetries:        v.GetInt("TASK_MAX_RETRIES"),
			RetryDelay:        v.GetDuration("TASK_RETRY_DELAY"),
			TaskTimeout:       v.GetDuration("TASK_TIMEOUT"),
			ReleaseAfter:      v.GetDuration("TASK_RELEASE_AFTER"),
			CleanupInterval:   v.GetDuration("TASK_CLEANUP_INTERVAL"),
			RetentionDuration: v.GetDuration("TASK_RETENTION_DURATION"),
		},
		Auth: Auth{
			Mode:             AuthMode(v.GetString("AUTH_MODE")),
			SessionSecret:    v.GetString("AUTH_SESSION_SECRET"),
			SessionLifetime:  v.GetDuration("AUTH_SESSION_LIFETIME"),
			TokenExpiry:      v.GetDuration("AUTH_TOKEN_EXPIRY"),
			BcryptCost:       v.GetInt("AUTH_BCRYPT_COST"),
			SecureCookies:    v.GetBool("AUTH_SECURE_COOKIES"),
			MaxLoginAttempts: v.GetInt("AUTH_MAX_LOGIN_ATTEMPTS"),
			RateLimitWindow:  v.GetDuration("AUTH_RATE_LIMIT_WINDOW"),
			LockoutDuration:  v.GetDuration("AUTH_LOCKOUT_DURATION"),
		},
		Recognition: Recognition{
			FaceTolerance:      v.GetFloat64("FACE_TOLERANCE"),
			MaxImageBytes:      v.GetInt64("RECOGNITION_MAX_IMAGE_BYTES"),
			FaceEncoderURL:     v.GetString("FACE_ENCODER_URL"),
			CoverClassifierURL: v.GetString("COVER_CLASSIFIER_URL"),
			MinCoverConfidence: v.GetFloat64("COVER_MIN_CONFIDENCE"),
			InferenceTimeout:   v.GetDuration("INFERENCE_TIMEOUT"),
			EncryptionKey:      v.GetString("FACE_ENCRYPTION_KEY"),
		},
		Demo: Demo{
			Enabled: v.GetBool("DEMO_MODE"),
		},
	}
}
