package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mikestefanello/backlite"
	"github.com/robfig/cron/v3"

	"github.com/mrlokans/librarian/internal/tasks"
)

// DefaultSchedule runs the overdue sweep at the top of every hour.
const DefaultSchedule = "0 * * * *"

// AuditRetentionSchedule runs audit cleanup daily at 03:30.
const AuditRetentionSchedule = "30 3 * * *"

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateSchedule checks a five-field cron expression.
func ValidateSchedule(schedule string) error {
	_, err := parser.Parse(schedule)
	return err
}

// NextRun returns the next activation of schedule after from.
func NextRun(schedule string, from time.Time) (time.Time, error) {
	sched, err := parser.Parse(schedule)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(from), nil
}

// Enqueuer hands tasks to the background queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, tasks ...backlite.Task) ([]string, error)
}

// Options configures an OverdueSweepScheduler.
type Options struct {
	Schedule      string
	RetentionDays int // 0 disables the audit retention job

	Sweeper  tasks.Sweeper
	Recorder tasks.SweepRecorder
	Cleaner  tasks.AuditEventCleaner
	// Queue, when set, receives tasks instead of running them inline.
	Queue Enqueuer

	Now func() time.Time
}

// OverdueSweepScheduler periodically marks late borrows overdue and prunes
// old audit events.
type OverdueSweepScheduler struct {
	opts Options

	cron       *cron.Cron
	entryID    cron.EntryID
	mu         sync.RWMutex
	isRunning  bool
	cancelFunc context.CancelFunc
	runMu      sync.Mutex
}

// NewOverdueSweepScheduler creates a scheduler. It does nothing until Start.
func NewOverdueSweepScheduler(opts Options) *OverdueSweepScheduler {
	if opts.Schedule == "" {
		opts.Schedule = DefaultSchedule
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &OverdueSweepScheduler{
		opts: opts,
		cron: cron.New(cron.WithParser(parser)),
	}
}

// Start registers the jobs and starts the cron runner. The scheduler stops
// when ctx is cancelled.
func (s *OverdueSweepScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}
	if s.opts.Sweeper == nil && s.opts.Queue == nil {
		return fmt.Errorf("overdue sweep scheduler needs a sweeper or a queue")
	}
	if err := ValidateSchedule(s.opts.Schedule); err != nil {
		return fmt.Errorf("invalid cron schedule '%s': %w", s.opts.Schedule, err)
	}

	entryID, err := s.cron.AddFunc(s.opts.Schedule, func() {
		s.dispatchSweep("schedule")
	})
	if err != nil {
		return fmt.Errorf("failed to schedule overdue sweep: %w", err)
	}
	s.entryID = entryID

	if s.opts.RetentionDays > 0 {
		if _, err := s.cron.AddFunc(AuditRetentionSchedule, s.dispatchAuditCleanup); err != nil {
			return fmt.Errorf("failed to schedule audit retention: %w", err)
		}
	}

	var cancelCtx context.Context
	cancelCtx, s.cancelFunc = context.WithCancel(ctx)

	s.cron.Start()
	s.isRunning = true

	next, _ := NextRun(s.opts.Schedule, s.opts.Now())
	log.Printf("[SWEEP] Scheduler started with schedule '%s'. Next run: %v", s.opts.Schedule, next)

	go func() {
		<-cancelCtx.Done()
		s.Stop()
	}()

	return nil
}

// Stop waits for running jobs and stops the scheduler.
func (s *OverdueSweepScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	<-s.cron.Stop().Done()
	s.isRunning = false
	if s.cancelFunc != nil {
		s.cancelFunc()
		s.cancelFunc = nil
	}

	log.Printf("[SWEEP] Scheduler stopped")
}

// RunNow sweeps immediately and waits for the result. It bypasses the queue
// so the caller gets the count.
func (s *OverdueSweepScheduler) RunNow(ctx context.Context) (int64, error) {
	if s.opts.Sweeper == nil {
		return 0, fmt.Errorf("overdue sweeper not configured")
	}
	return s.sweep(ctx, "manual")
}

// IsRunning reports whether the cron runner is active.
func (s *OverdueSweepScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetNextRunTime returns when the next sweep will occur.
func (s *OverdueSweepScheduler) GetNextRunTime() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return nil
	}
	for _, entry := range s.cron.Entries() {
		if entry.ID == s.entryID {
			t := entry.Next
			return &t
		}
	}
	return nil
}

func (s *OverdueSweepScheduler) dispatchSweep(trigger string) {
	ctx := context.Background()

	if s.opts.Queue != nil {
		if _, err := s.opts.Queue.Enqueue(ctx, tasks.OverdueSweepTask{Trigger: trigger}); err != nil {
			log.Printf("[SWEEP] Failed to enqueue sweep: %v", err)
		}
		return
	}

	if _, err := s.sweep(ctx, trigger); err != nil {
		log.Printf("[SWEEP] Sweep failed: %v", err)
	}
}

// sweep runs one sweep inline. Overlapping runs are serialized; the sweep
// itself is idempotent.
func (s *OverdueSweepScheduler) sweep(ctx context.Context, trigger string) (int64, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	marked, err := s.opts.Sweeper.MarkOverdueSweep(ctx, s.opts.Now())
	if s.opts.Recorder != nil {
		s.opts.Recorder.LogSweep(trigger, marked, err)
	}
	if err != nil {
		return 0, err
	}
	if marked > 0 {
		log.Printf("[SWEEP] Marked %d borrows overdue (%s)", marked, trigger)
	}
	return marked, nil
}

func (s *OverdueSweepScheduler) dispatchAuditCleanup() {
	ctx := context.Background()
	task := tasks.CleanupAuditEventsTask{RetentionDays: s.opts.RetentionDays}

	if s.opts.Queue != nil {
		if _, err := s.opts.Queue.Enqueue(ctx, task); err != nil {
			log.Printf("[SWEEP] Failed to enqueue audit cleanup: %v", err)
		}
		return
	}
	if s.opts.Cleaner == nil {
		return
	}
	if err := tasks.CleanupAuditEventsProcessor(s.opts.Cleaner)(ctx, task); err != nil {
		log.Printf("[SWEEP] Audit cleanup failed: %v", err)
	}
}
