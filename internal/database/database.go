package database

import (
	"fmt"
	"log"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/entities"
)

// sqliteParams make every write transaction take the database lock at BEGIN
// and wait for a busy lock instead of failing immediately.
const sqliteParams = "_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate&_foreign_keys=on"

// Models lists every table managed by AutoMigrate, parents first.
var Models = []any{
	&entities.Author{},
	&entities.Publisher{},
	&entities.Category{},
	&entities.Bookshelf{},
	&entities.Work{},
	&entities.Copy{},
	&entities.Person{},
	&entities.Borrow{},
	&entities.FaceEncoding{},
	&entities.AuditEvent{},
}

type Database struct {
	DB     *gorm.DB
	Driver string
}

// Options selects the backing store.
type Options struct {
	Driver   string // config.DriverSQLite (default) or config.DriverPostgres
	Path     string
	DSN      string
	LogLevel logger.LogLevel
}

// NewDatabase opens (and migrates) a SQLite database at dbPath.
func NewDatabase(dbPath string) (*Database, error) {
	return Open(Options{Driver: config.DriverSQLite, Path: dbPath, LogLevel: logger.Warn})
}

// FromConfig opens the database described by the application config.
func FromConfig(cfg config.Database) (*Database, error) {
	level := logger.Warn
	if cfg.LogSQL {
		level = logger.Info
	}
	return Open(Options{Driver: cfg.Driver, Path: cfg.Path, DSN: cfg.DSN, LogLevel: level})
}

func Open(opts Options) (*Database, error) {
	if opts.LogLevel == 0 {
		opts.LogLevel = logger.Warn
	}

	var dialector gorm.Dialector
	switch opts.Driver {
	case "", config.DriverSQLite:
		opts.Driver = config.DriverSQLite
		dialector = sqlite.Open(SQLiteDSN(opts.Path))
	case config.DriverPostgres:
		if opts.DSN == "" {
			return nil, fmt.Errorf("postgres driver requires DATABASE_DSN")
		}
		dialector = postgres.Open(opts.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(opts.LogLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	database := &Database{DB: db, Driver: opts.Driver}
	if err := database.Migrate(); err != nil {
		_ = database.Close()
		return nil, err
	}

	if opts.Driver == config.DriverSQLite {
		log.Printf("Database initialized successfully at %s", opts.Path)
	} else {
		log.Printf("Database initialized successfully (%s)", opts.Driver)
	}

	return database, nil
}

// Migrate creates or updates every table.
func (d *Database) Migrate() error {
	if err := d.DB.AutoMigrate(Models...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SQLiteDSN appends the locking parameters to a SQLite path.
// In-memory databases are returned unchanged.
func SQLiteDSN(path string) string {
	if path == ":memory:" || strings.Contains(path, "mode=memory") {
		return path
	}
	if strings.Contains(path, "?") {
		return path + "&" + sqliteParams
	}
	return "file:" + path + "?" + sqliteParams
}
