package tasks

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"
)

// Sweeper marks active borrows past their due date as overdue.
type Sweeper interface {
	MarkOverdueSweep(ctx context.Context, now time.Time) (int64, error)
}

// SweepRecorder records the outcome of a sweep.
type SweepRecorder interface {
	LogSweep(trigger string, marked int64, err error)
}

// OverdueSweepTask runs one overdue sweep. At pins the sweep instant; zero
// means the time the task executes.
type OverdueSweepTask struct {
	Trigger string    `json:"trigger"`
	At      time.Time `json:"at,omitempty"`
}

// Config returns the queue configuration for overdue sweeps.
func (t OverdueSweepTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "overdue_sweep",
		MaxAttempts: 3,
		Backoff:     30 * time.Second,
		Timeout:     time.Minute,
		Retention: &backlite.Retention{
			Duration:   7 * 24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// OverdueSweepProcessor creates the processor for OverdueSweepTask.
func OverdueSweepProcessor(sweeper Sweeper, recorder SweepRecorder) backlite.QueueProcessor[OverdueSweepTask] {
	return func(ctx context.Context, task OverdueSweepTask) error {
		if sweeper == nil {
			return errors.New("overdue sweeper not configured")
		}

		now := task.At
		if now.IsZero() {
			now = time.Now()
		}
		trigger := task.Trigger
		if trigger == "" {
			trigger = "task"
		}

		marked, err := sweeper.MarkOverdueSweep(ctx, now)
		if recorder != nil {
			recorder.LogSweep(trigger, marked, err)
		}
		if err != nil {
			return fmt.Errorf("overdue sweep: %w", err)
		}

		log.Printf("[SWEEP] Marked %d borrows overdue (%s)", marked, trigger)
		return nil
	}
}

// NewOverdueSweepQueue creates the backlite queue for overdue sweeps.
func NewOverdueSweepQueue(sweeper Sweeper, recorder SweepRecorder) backlite.Queue {
	return backlite.NewQueue(OverdueSweepProcessor(sweeper, recorder))
}
