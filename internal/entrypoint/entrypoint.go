package entrypoint

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/librarian/internal/audit"
	"github.com/mrlokans/librarian/internal/auth"
	"github.com/mrlokans/librarian/internal/circulation"
	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/crypto"
	"github.com/mrlokans/librarian/internal/database"
	auditRepo "github.com/mrlokans/librarian/internal/database/audit"
	"github.com/mrlokans/librarian/internal/database/borrows"
	"github.com/mrlokans/librarian/internal/database/catalog"
	"github.com/mrlokans/librarian/internal/database/faces"
	"github.com/mrlokans/librarian/internal/database/persons"
	"github.com/mrlokans/librarian/internal/demo"
	http_controllers "github.com/mrlokans/librarian/internal/http"
	"github.com/mrlokans/librarian/internal/recognition"
	"github.com/mrlokans/librarian/internal/reports"
	"github.com/mrlokans/librarian/internal/scheduler"
	"github.com/mrlokans/librarian/internal/tasks"
)

// hstsMaxAge is sent when secure cookies are on (one year).
const hstsMaxAge = 31536000

// ShutdownFunc is called during graceful shutdown to clean up resources.
type ShutdownFunc func(ctx context.Context)

// App holds the long-lived components shared by the server and the CLI.
type App struct {
	Config      *config.Config
	DB          *database.Database
	Persons     *persons.Repository
	Catalog     *catalog.Repository
	Circulation *circulation.Service
	Audit       *audit.Service
	Reports     *reports.Repository
	Recognition *recognition.Service
}

// NewApp opens the database and builds the domain services on top of it.
func NewApp(cfg *config.Config) (*App, error) {
	db, err := database.FromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	personRepo := persons.NewRepository(db.DB)
	catalogRepo := catalog.NewRepository(db.DB)

	reportsRepo, err := reports.NewRepository(db.DB, db.Driver)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize reports: %w", err)
	}

	app := &App{
		Config:  cfg,
		DB:      db,
		Persons: personRepo,
		Catalog: catalogRepo,
		Circulation: circulation.NewService(
			borrows.NewRepository(db.DB),
			personRepo,
			circulation.PolicyFromConfig(cfg.Circulation),
			circulation.SystemClock{},
		),
		Audit:   audit.NewService(auditRepo.NewRepository(db.DB)),
		Reports: reportsRepo,
	}

	rc := cfg.Recognition
	if rc.FaceEncoderURL != "" || rc.CoverClassifierURL != "" {
		var encoder recognition.FaceEncoder
		if rc.FaceEncoderURL != "" {
			encoder = recognition.NewRemoteFaceEncoder(rc.FaceEncoderURL, rc.InferenceTimeout)
		}
		var classifier recognition.CoverClassifier
		if rc.CoverClassifierURL != "" {
			classifier = recognition.NewRemoteCoverClassifier(rc.CoverClassifierURL, rc.InferenceTimeout)
		}
		faceRepo := faces.NewRepository(db.DB)
		if rc.EncryptionKey != "" {
			sealer, err := crypto.NewSealerFromBase64(rc.EncryptionKey)
			if err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("invalid FACE_ENCRYPTION_KEY: %w", err)
			}
			faceRepo.WithSealer(sealer)
		} else if encoder != nil {
			log.Printf("WARNING: FACE_ENCRYPTION_KEY is not set. Face encodings are stored unencrypted.")
		}
		index := recognition.NewFaceIndex(faceRepo, rc.FaceTolerance)
		app.Recognition = recognition.NewService(index, personRepo, catalogRepo, encoder, classifier, rc.MinCoverConfidence)
		log.Printf("Recognition enabled (faces: %t, covers: %t)", encoder != nil, classifier != nil)
	}

	return app, nil
}

// Close flushes pending audit events and closes the database.
func (a *App) Close() {
	a.Audit.Flush()
	if err := a.DB.Close(); err != nil {
		log.Printf("Error closing database: %v", err)
	}
}

func Serve(router *gin.Engine, cfg *config.Config, onShutdown ShutdownFunc) {
	timeout := time.Duration(cfg.Global.ShutdownTimeoutInSeconds) * time.Second

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Starting server at %s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("Shutdown Server, waiting %v before killing\n", timeout)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Background work stops before in-flight requests are drained.
	if onShutdown != nil {
		onShutdown(ctx)
	}

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}

	log.Println("Server exiting")
}

func Run(cfg *config.Config, version string) {
	log.Printf("Starting Librarian v%s", version)

	app, err := NewApp(cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer app.Close()

	// Initialize task queue if enabled
	var taskClient *tasks.Client
	var taskCtxCancel context.CancelFunc
	if cfg.Tasks.Enabled {
		taskClient, err = tasks.NewClient(cfg.Database.Path, tasks.ConfigFrom(cfg.Tasks))
		if err != nil {
			log.Fatalf("Failed to initialize task queue: %v", err)
		}
		defer func() {
			if err := taskClient.Close(); err != nil {
				log.Printf("Error closing task client: %v", err)
			}
		}()

		taskClient.Register(
			tasks.NewOverdueSweepQueue(app.Circulation, app.Audit),
			tasks.NewCleanupAuditEventsQueue(app.Audit),
		)

		var taskCtx context.Context
		taskCtx, taskCtxCancel = context.WithCancel(context.Background())
		go taskClient.Start(taskCtx)
	}

	// The scheduler also serves manual sweeps, so it exists even when its
	// cron runner is off.
	sweepOpts := scheduler.Options{
		Schedule:      cfg.OverdueSweep.Schedule,
		RetentionDays: cfg.Audit.RetentionDays,
		Sweeper:       app.Circulation,
		Recorder:      app.Audit,
		Cleaner:       app.Audit,
	}
	if taskClient != nil {
		sweepOpts.Queue = taskClient
	}
	sweepScheduler := scheduler.NewOverdueSweepScheduler(sweepOpts)
	if cfg.OverdueSweep.Enabled {
		if err := sweepScheduler.Start(context.Background()); err != nil {
			log.Fatalf("Failed to start overdue sweep scheduler: %v", err)
		}
	} else {
		log.Printf("Overdue sweep scheduler disabled")
	}

	// Initialize authentication if enabled
	var authService *auth.Service
	var authMiddleware *auth.Middleware
	var sessionManager *auth.SessionManager
	var authController *auth.AuthController
	var csrfSecret []byte

	if cfg.Auth.Mode == config.AuthModeLocal {
		log.Printf("Authentication mode: local")

		authService = auth.NewService(app.DB.DB, cfg.Auth)

		sqlDB, err := app.DB.DB.DB()
		if err != nil {
			log.Fatalf("Failed to get SQL DB for sessions: %v", err)
		}

		sessionManager, err = auth.NewSessionManager(sqlDB, app.DB.Driver, cfg.Auth)
		if err != nil {
			log.Fatalf("Failed to initialize session manager: %v", err)
		}

		authMiddleware = auth.NewMiddleware(authService, sessionManager, cfg.Auth)

		opts := auth.ControllerOptions{
			Events:        app.Audit,
			MaxImageBytes: cfg.Recognition.MaxImageBytes,
		}
		if app.Recognition != nil {
			opts.Faces = app.Recognition
		}
		authController = auth.NewAuthController(authService, sessionManager, cfg.Auth, opts)

		if cfg.Auth.SessionSecret != "" {
			csrfSecret, err = hex.DecodeString(cfg.Auth.SessionSecret)
			if err != nil {
				// Not hex, use as raw bytes
				csrfSecret = []byte(cfg.Auth.SessionSecret)
			}
		} else {
			secret, err := auth.GenerateSessionSecret()
			if err != nil {
				log.Fatalf("Failed to generate CSRF secret: %v", err)
			}
			csrfSecret, _ = hex.DecodeString(secret)
			log.Printf("Generated session secret (set AUTH_SESSION_SECRET to persist)")
		}

		hasStaff, _ := authService.HasStaff()
		if !hasStaff {
			log.Printf("No staff accounts found. POST /auth/setup or run 'librarian create-person --role admin'.")
		}
	} else {
		log.Printf("Authentication mode: none (no authentication required)")
	}

	routerCfg := http_controllers.RouterConfig{
		Database:       app.DB,
		Borrows:        app.Circulation,
		Catalog:        app.Catalog,
		Reports:        app.Reports,
		Auditor:        app.Audit,
		Sweeper:        sweepScheduler,
		AuditLog:       app.Audit,
		AuthService:    authService,
		SessionManager: sessionManager,
		AuthMiddleware: authMiddleware,
		AuthController: authController,
		AuthConfig:     cfg.Auth,
		CSRFSecret:     csrfSecret,
		Circulation:    cfg.Circulation,
		RetentionDays:  cfg.Audit.RetentionDays,
		MaxImageBytes:  cfg.Recognition.MaxImageBytes,
		Version:        version,
	}
	if authService != nil {
		routerCfg.Persons = app.Persons
	}
	if cfg.Auth.SecureCookies {
		routerCfg.HSTSMaxAge = hstsMaxAge
	}
	if cfg.Demo.Enabled {
		log.Printf("Demo mode enabled - write operations will be blocked")
		routerCfg.DemoMiddleware = demo.NewMiddleware(true)
	}
	if cfg.OverdueSweep.Enabled {
		routerCfg.SweepStatus = sweepScheduler
	}
	if taskClient != nil {
		routerCfg.TaskQueue = taskClient
	}
	if app.Recognition != nil {
		routerCfg.Faces = app.Recognition
		routerCfg.Covers = app.Recognition
	}

	router := http_controllers.NewRouter(routerCfg)

	onShutdown := func(ctx context.Context) {
		sweepScheduler.Stop()
		if taskClient != nil && taskCtxCancel != nil {
			taskClient.Stop(ctx)
			taskCtxCancel()
		}
		if authController != nil {
			authController.Stop()
		}
		app.Audit.Flush()
	}

	Serve(router, cfg, onShutdown)
}
