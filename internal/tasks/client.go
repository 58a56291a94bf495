package tasks

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mikestefanello/backlite"
)

// Client wraps backlite. Tasks live in a dedicated SQLite file next to the
// main database so a Postgres deployment still gets a durable local queue.
type Client struct {
	client *backlite.Client
	db     *sql.DB
	config Config

	mu      sync.Mutex
	started bool
}

// TasksDBPath returns the queue database path for a main database path.
// An empty or in-memory path yields "librarian-tasks.db" in the working
// directory.
func TasksDBPath(mainDBPath string) string {
	if mainDBPath == "" || strings.Contains(mainDBPath, ":memory:") {
		return "librarian-tasks.db"
	}
	dir := filepath.Dir(mainDBPath)
	base := filepath.Base(mainDBPath)
	ext := filepath.Ext(base)
	return filepath.Join(dir, strings.TrimSuffix(base, ext)+"-tasks"+ext)
}

// NewClient opens the queue database and installs the backlite schema.
func NewClient(mainDBPath string, cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()

	db, err := sql.Open("sqlite3", TasksDBPath(mainDBPath)+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open tasks database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Workers + 5)
	db.SetMaxIdleConns(cfg.Workers + 2)
	db.SetConnMaxLifetime(time.Hour)

	client, err := backlite.NewClient(backlite.ClientConfig{
		DB:              db,
		NumWorkers:      cfg.Workers,
		ReleaseAfter:    cfg.ReleaseAfter,
		CleanupInterval: cfg.CleanupInterval,
		Logger:          logAdapter{},
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create backlite client: %w", err)
	}
	if err := client.Install(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to install backlite schema: %w", err)
	}

	return &Client{client: client, db: db, config: cfg}, nil
}

// Register adds queues. Call before Start.
func (c *Client) Register(queues ...backlite.Queue) {
	for _, q := range queues {
		c.client.Register(q)
	}
}

// Start begins processing tasks. It does not block.
func (c *Client) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	log.Printf("[TASK] Queue started with %d workers", c.config.Workers)
	c.client.Start(ctx)
}

// Stop waits for running tasks until ctx expires. It reports whether every
// worker finished in time.
func (c *Client) Stop(ctx context.Context) bool {
	c.mu.Lock()
	started := c.started
	c.started = false
	c.mu.Unlock()
	if !started {
		return true
	}

	ok := c.client.Stop(ctx)
	if ok {
		log.Println("[TASK] Queue stopped")
	} else {
		log.Println("[TASK] Queue stopped before all tasks completed")
	}
	return ok
}

// Close releases the queue database. Call after Stop.
func (c *Client) Close() error {
	return c.db.Close()
}

// Enqueue saves tasks and returns their IDs.
func (c *Client) Enqueue(ctx context.Context, tasks ...backlite.Task) ([]string, error) {
	ids, err := c.client.Add(tasks...).Ctx(ctx).Save()
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue: %w", err)
	}
	return ids, nil
}

// Status returns the status of a task by ID.
func (c *Client) Status(ctx context.Context, taskID string) (backlite.TaskStatus, error) {
	return c.client.Status(ctx, taskID)
}

type logAdapter struct{}

func (logAdapter) Info(message string, params ...any) {
	log.Printf("[TASK] %s %v", message, params)
}

func (logAdapter) Error(message string, params ...any) {
	log.Printf("[TASK ERROR] %s %v", message, params)
}
