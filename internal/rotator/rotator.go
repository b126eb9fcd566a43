// Package rotator drives an expiringbloom.Filter's background rotation and
// incremental-snapshot schedule (spec.md §4.5), the way the teacher's
// orchestrator package drove store rotation with a gocron/v2 job: a single
// periodic task, started and stopped cleanly, logging and swallowing
// recoverable per-tick errors rather than propagating them to the caller.
package rotator

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"bloomkeep/bloomerr"
	"bloomkeep/internal/logging"
)

// Target is the subset of expiringbloom.Filter's API the rotator drives.
// Defined as an interface here (rather than importing expiringbloom
// directly) to keep the dependency direction leaf-ward.
type Target interface {
	DueForRotation() bool
	Rotate() error
	Snapshot() error
}

// Rotator periodically checks Target for a due rotation and otherwise takes
// an incremental snapshot, per spec.md §4.5.
type Rotator struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger
}

// DefaultInterval returns min(levelDuration/4, 1s), the interval spec.md
// §4.5 recommends absent an explicit override.
func DefaultInterval(levelDuration time.Duration) time.Duration {
	quarter := levelDuration / 4
	if quarter > time.Second {
		return time.Second
	}
	if quarter <= 0 {
		return time.Millisecond
	}
	return quarter
}

// Start builds and starts a scheduler that ticks target every interval.
// The caller owns the returned Rotator and must call Stop to release the
// scheduler's goroutine.
func Start(target Target, interval time.Duration, logger *slog.Logger) (*Rotator, error) {
	if interval <= 0 {
		return nil, bloomerr.InvalidParamsf("rotator interval must be > 0")
	}

	logger = logging.Default(logger).With("component", "rotator")

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, bloomerr.Storagef(err, false, "create rotator scheduler")
	}

	r := &Rotator{scheduler: scheduler, logger: logger}

	_, err = scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(r.tick, target),
	)
	if err != nil {
		return nil, bloomerr.Storagef(err, false, "schedule rotator job")
	}

	scheduler.Start()
	return r, nil
}

func (r *Rotator) tick(target Target) {
	if target.DueForRotation() {
		if err := target.Rotate(); err != nil {
			r.logger.Warn("rotation tick failed, will retry next interval", "error", err)
		}
		return
	}
	if err := target.Snapshot(); err != nil {
		r.logger.Warn("incremental snapshot tick failed, will retry next interval", "error", err)
	}
}

// Stop signals the scheduler to stop after any in-flight tick completes.
// A caller wanting a final incremental snapshot should call target.Snapshot
// itself after Stop returns (spec.md §4.5).
func (r *Rotator) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- r.scheduler.Shutdown() }()
	select {
	case err := <-done:
		if err != nil {
			return bloomerr.Storagef(err, false, "stop rotator scheduler")
		}
		return nil
	case <-ctx.Done():
		return bloomerr.Storagef(ctx.Err(), false, "stop rotator scheduler timed out")
	}
}
