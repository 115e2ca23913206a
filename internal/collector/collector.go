package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/robfig/cron/v3"

	"signverse/internal/config"
	"signverse/internal/logging"
	"signverse/internal/scripture"
)

// ErrAlreadyRunning is returned by Start when another collector holds the lock.
var ErrAlreadyRunning = errors.New("another collector instance is already running")

// Sweeper deletes orphaned artifact rows and returns them.
type Sweeper interface {
	Sweep(ctx context.Context, olderThan time.Duration) ([]scripture.Artifact, error)
}

// Remover deletes a published clip.
type Remover interface {
	Remove(ctx context.Context, handle scripture.Handle) error
}

// Pruner trims the downloaded media cache.
type Pruner interface {
	Prune(ctx context.Context, keepPath string) error
}

// Summary reports one collection run.
type Summary struct {
	Swept   int
	Removed int
	Failed  int
	Elapsed time.Duration
}

// Collector sweeps orphaned artifacts on a schedule.
type Collector struct {
	schedule string
	grace    time.Duration
	sweeper  Sweeper
	remover  Remover
	pruner   Pruner
	logger   *slog.Logger

	lockPath string
	lock     *flock.Flock

	mu      sync.Mutex
	cron    *cron.Cron
	running atomic.Bool
	runMu   sync.Mutex
}

// New constructs a collector. pruner may be nil.
func New(cfg *config.Config, sweeper Sweeper, remover Remover, pruner Pruner, logger *slog.Logger) *Collector {
	lockPath := filepath.Join(cfg.LockDir(), "collector.lock")
	return &Collector{
		schedule: cfg.Collector.Schedule,
		grace:    cfg.CollectorGrace(),
		sweeper:  sweeper,
		remover:  remover,
		pruner:   pruner,
		logger:   logging.NewComponentLogger(logger, "collector"),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
}

// LockPath returns the single-instance lock file.
func (c *Collector) LockPath() string { return c.lockPath }

// RunOnce performs a single collection pass.
func (c *Collector) RunOnce(ctx context.Context) (Summary, error) {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	started := time.Now()
	swept, err := c.sweeper.Sweep(ctx, c.grace)
	if err != nil {
		return Summary{}, fmt.Errorf("sweep artifacts: %w", err)
	}
	summary := Summary{Swept: len(swept)}
	for _, a := range swept {
		if err := c.remover.Remove(ctx, a.Handle); err != nil {
			summary.Failed++
			logging.WarnWithContext(c.logger, "failed to remove swept clip", "clip_remove_failed",
				logging.String("handle", a.Handle.ID),
				logging.String(logging.FieldChecksum, a.Key.Checksum),
				logging.Error(err),
				logging.String(logging.FieldImpact, "clip file stays on disk without a cache entry"),
			)
			continue
		}
		summary.Removed++
	}
	if c.pruner != nil {
		if err := c.pruner.Prune(ctx, ""); err != nil {
			logging.WarnWithContext(c.logger, "media prune failed", "media_prune_failed", logging.Error(err))
		}
	}
	summary.Elapsed = time.Since(started)

	c.logger.InfoContext(ctx, "collection finished",
		logging.String(logging.FieldEventType, "collection_finished"),
		logging.Int("swept", summary.Swept),
		logging.Int("removed", summary.Removed),
		logging.Int("failed", summary.Failed),
		logging.Duration("elapsed", summary.Elapsed),
	)
	return summary, nil
}

// Start acquires the lock and schedules collection runs.
func (c *Collector) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running.Load() {
		return errors.New("collector already started")
	}

	if err := os.MkdirAll(filepath.Dir(c.lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}
	ok, err := c.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}

	cl := cronLogger{logger: c.logger}
	sched := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	if _, err := sched.AddFunc(c.schedule, func() {
		if _, err := c.RunOnce(ctx); err != nil {
			logging.ErrorWithContext(c.logger, "collection failed", "collection_failed", logging.Error(err))
		}
	}); err != nil {
		_ = c.lock.Unlock()
		return fmt.Errorf("schedule %q: %w", c.schedule, err)
	}
	sched.Start()
	c.cron = sched
	c.running.Store(true)
	c.logger.InfoContext(ctx, "collector started",
		logging.String("schedule", c.schedule),
		logging.Duration("grace", c.grace),
		logging.String("lock", c.lockPath),
	)
	return nil
}

// Stop waits for an in-flight run and releases the lock.
func (c *Collector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running.Load() {
		return
	}
	<-c.cron.Stop().Done()
	c.cron = nil
	if err := c.lock.Unlock(); err != nil {
		c.logger.Warn("failed to release collector lock", logging.Error(err))
	}
	c.running.Store(false)
	c.logger.Info("collector stopped")
}

// Run starts the collector and blocks until ctx is cancelled.
func (c *Collector) Run(ctx context.Context) error {
	if err := c.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	c.Stop()
	return nil
}

// cronLogger routes scheduler messages into slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Warn(msg, append(keysAndValues, logging.Error(err))...)
}
