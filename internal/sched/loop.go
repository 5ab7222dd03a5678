// Package sched provides the shared periodic loop runner used by the
// flywheel background tasks.
//
// Each loop sleeps for its configured interval, runs its task once, and
// repeats until stopped. A task error or panic does not kill the loop; the
// next iteration is scheduled after a fixed error back-off instead of the
// normal interval. Shutdown stops the loop after the current iteration
// completes, never mid-task.
package sched

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is one iteration of a loop's work. Errors are captured and logged
// by the loop; they trigger the back-off but are otherwise swallowed.
type Task func(ctx context.Context) error

// Config configures a Loop.
type Config struct {
	// Name identifies the loop in logs and status snapshots.
	Name string

	// Interval between iterations. Default: 1 hour.
	Interval time.Duration

	// Backoff replaces Interval for the iteration following a failure.
	// Default: 5 minutes.
	Backoff time.Duration

	// Task runs once per iteration. Required.
	Task Task
}

// Status is a point-in-time snapshot of a loop's liveness.
type Status struct {
	Name      string    `json:"name"`
	Running   bool      `json:"running"`
	Cycles    uint64    `json:"cycles"`
	Failures  uint64    `json:"failures"`
	LastRun   time.Time `json:"last_run,omitzero"`
	LastError string    `json:"last_error,omitempty"`
}

// Loop runs a Task on a fixed interval in a background goroutine.
//
// Thread Safety: all public methods are safe for concurrent use. The
// running state is protected by a mutex so Start and Stop cannot race.
type Loop struct {
	name     string
	interval time.Duration
	backoff  time.Duration
	task     Task
	logger   *zap.Logger

	mu       sync.RWMutex
	running  bool
	cycles   uint64
	failures uint64
	lastRun  time.Time
	lastErr  error

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewLoop creates a loop from cfg. The loop does not start automatically;
// call Start to begin iterating.
func NewLoop(cfg Config, logger *zap.Logger) (*Loop, error) {
	if cfg.Task == nil {
		return nil, fmt.Errorf("task cannot be nil")
	}
	if cfg.Name == "" {
		return nil, fmt.Errorf("name cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 5 * time.Minute
	}

	return &Loop{
		name:     cfg.Name,
		interval: cfg.Interval,
		backoff:  cfg.Backoff,
		task:     cfg.Task,
		logger:   logger.Named(cfg.Name),
	}, nil
}

// Start begins the background loop. It is an error to start a loop that is
// already running; a stopped loop may be started again.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return fmt.Errorf("loop %q is already running", l.name)
	}

	// Fresh channels for this run so a stopped loop can restart.
	l.stopCh = make(chan struct{})
	l.doneCh = make(chan struct{})
	l.running = true

	l.logger.Info("loop started",
		zap.Duration("interval", l.interval),
		zap.Duration("backoff", l.backoff))

	go l.run(ctx, l.stopCh, l.doneCh)

	return nil
}

// Stop signals the loop to stop and waits for the current iteration to
// finish. Stopping a loop that is not running is a no-op.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	// Clear running before releasing the lock so a concurrent Stop
	// cannot close stopCh a second time.
	l.running = false
	stopCh, doneCh := l.stopCh, l.doneCh
	l.mu.Unlock()

	close(stopCh)
	<-doneCh

	l.logger.Info("loop stopped")
}

// IsRunning reports whether the loop is currently active.
func (l *Loop) IsRunning() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.running
}

// LastRun returns the start time of the most recent iteration, or the zero
// time if the loop has not yet completed an iteration.
func (l *Loop) LastRun() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastRun
}

// LastError returns the error from the most recent iteration, or nil.
func (l *Loop) LastError() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastErr
}

// Status returns a snapshot of the loop's liveness counters.
func (l *Loop) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s := Status{
		Name:     l.name,
		Running:  l.running,
		Cycles:   l.cycles,
		Failures: l.failures,
		LastRun:  l.lastRun,
	}
	if l.lastErr != nil {
		s.LastError = l.lastErr.Error()
	}
	return s
}

// run is the loop goroutine. It sleeps first, so the initial iteration
// happens one interval after Start.
func (l *Loop) run(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	timer := time.NewTimer(l.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Debug("loop exiting: context canceled")
			return
		case <-stopCh:
			l.logger.Debug("loop exiting: stop requested")
			return
		case <-timer.C:
			if err := l.iterate(ctx); err != nil {
				timer.Reset(l.backoff)
			} else {
				timer.Reset(l.interval)
			}
		}
	}
}

// iterate runs one task invocation and records its outcome.
func (l *Loop) iterate(ctx context.Context) error {
	start := time.Now()
	err := l.safeTask(ctx)

	l.mu.Lock()
	l.cycles++
	l.lastRun = start
	l.lastErr = err
	if err != nil {
		l.failures++
	}
	l.mu.Unlock()

	if err != nil {
		l.logger.Error("loop iteration failed",
			zap.Error(err),
			zap.Duration("elapsed", time.Since(start)),
			zap.Duration("backoff", l.backoff))
		return err
	}

	l.logger.Debug("loop iteration completed",
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// safeTask wraps the task with panic recovery so a single bad iteration
// cannot crash the loop goroutine.
func (l *Loop) safeTask(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("loop iteration panicked, continuing",
				zap.Any("panic", r),
				zap.Stack("stack"))
			err = fmt.Errorf("iteration panicked: %v", r)
		}
	}()
	return l.task(ctx)
}
