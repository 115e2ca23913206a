package artifact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/singleflight"

	"signverse/internal/config"
	"signverse/internal/logging"
	"signverse/internal/scripture"
)

// lockRetryDelay is the polling interval while waiting for another producer.
const lockRetryDelay = 100 * time.Millisecond

// ErrLockTimeout reports that another producer held the key longer than the
// configured lock timeout.
var ErrLockTimeout = errors.New("timed out waiting for artifact producer")

// Repository is the persistence the cache needs.
type Repository interface {
	GetArtifact(ctx context.Context, key scripture.ArtifactKey) (*scripture.Artifact, error)
	PutArtifact(ctx context.Context, a scripture.Artifact) (scripture.Artifact, error)
	ListArtifacts(ctx context.Context, language string, limit int) ([]scripture.Artifact, error)
	SweepArtifacts(ctx context.Context, cutoff time.Time) ([]scripture.Artifact, error)
}

// ProduceFunc renders and publishes a clip for a key. The cache fills in the
// key and stores the result; a returned error stores nothing.
type ProduceFunc func(ctx context.Context) (scripture.Artifact, error)

// Cache looks up, stores and produces artifacts.
type Cache struct {
	repo           Repository
	lockDir        string
	lockTimeout    time.Duration
	produceTimeout time.Duration
	group          singleflight.Group
	now            func() time.Time
	logger         *slog.Logger
}

type produced struct {
	artifact scripture.Artifact
	hit      bool
}

// New builds a cache over repo.
func New(cfg *config.Config, repo Repository, logger *slog.Logger) *Cache {
	return &Cache{
		repo:           repo,
		lockDir:        cfg.LockDir(),
		lockTimeout:    cfg.LockTimeout(),
		produceTimeout: cfg.ProduceTimeout(),
		now:            time.Now,
		logger:         logging.NewComponentLogger(logger, "artifact"),
	}
}

// Lookup returns the artifact stored under key.
func (c *Cache) Lookup(ctx context.Context, key Key) (scripture.Artifact, bool, error) {
	a, err := c.repo.GetArtifact(ctx, key.Record())
	if err != nil {
		return scripture.Artifact{}, false, fmt.Errorf("lookup artifact %s: %w", key, err)
	}
	if a == nil {
		return scripture.Artifact{}, false, nil
	}
	return *a, true, nil
}

// Store records an artifact and returns it with its id and creation time.
func (c *Cache) Store(ctx context.Context, a scripture.Artifact) (scripture.Artifact, error) {
	if a.Key.Overlay == "" {
		a.Key.Overlay = scripture.OverlayNone
	}
	stored, err := c.repo.PutArtifact(ctx, a)
	if err != nil {
		return scripture.Artifact{}, err
	}
	c.logger.DebugContext(ctx, "artifact stored",
		logging.String(logging.FieldEventType, "artifact_stored"),
		logging.String(logging.FieldChecksum, a.Key.Checksum),
		logging.String(logging.FieldVerses, a.Key.Verses),
		logging.String("handle", a.Handle.ID),
	)
	return stored, nil
}

// List returns recent artifacts, newest first.
func (c *Cache) List(ctx context.Context, language string, limit int) ([]scripture.Artifact, error) {
	return c.repo.ListArtifacts(ctx, language, limit)
}

// Produce returns the artifact for key, running fn when nothing is stored.
// At most one fn runs per key across goroutines and processes. hit reports
// whether the artifact already existed, including when another producer
// stored it while this caller waited.
//
// The production itself is detached from ctx and bounded by the produce
// timeout, so a caller that gives up only abandons its own wait.
func (c *Cache) Produce(ctx context.Context, key Key, fn ProduceFunc) (a scripture.Artifact, hit bool, err error) {
	ch := c.group.DoChan(key.Digest(), func() (any, error) {
		pctx := context.WithoutCancel(ctx)
		if c.produceTimeout > 0 {
			var cancel context.CancelFunc
			pctx, cancel = context.WithTimeout(pctx, c.produceTimeout)
			defer cancel()
		}
		return c.produce(pctx, key, fn)
	})
	select {
	case <-ctx.Done():
		return scripture.Artifact{}, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return scripture.Artifact{}, false, res.Err
		}
		p := res.Val.(produced)
		return p.artifact, p.hit, nil
	}
}

func (c *Cache) produce(ctx context.Context, key Key, fn ProduceFunc) (produced, error) {
	if existing, ok, err := c.Lookup(ctx, key); err != nil || ok {
		return produced{artifact: existing, hit: ok}, err
	}

	unlock, err := c.lock(ctx, key)
	if err != nil {
		return produced{}, err
	}
	defer unlock()

	// Another process may have finished while we waited for the lock.
	if existing, ok, err := c.Lookup(ctx, key); err != nil || ok {
		return produced{artifact: existing, hit: ok}, err
	}

	a, err := fn(ctx)
	if err != nil {
		return produced{}, err
	}
	a.Key = key.Record()
	stored, err := c.Store(ctx, a)
	if err != nil {
		return produced{}, fmt.Errorf("store artifact %s: %w", key, err)
	}
	return produced{artifact: stored}, nil
}

// LockPath returns the lock file guarding production of key.
func (c *Cache) LockPath(key Key) string {
	return filepath.Join(c.lockDir, key.Digest()+".lock")
}

func (c *Cache) lock(ctx context.Context, key Key) (func(), error) {
	if err := os.MkdirAll(c.lockDir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	fl := flock.New(c.LockPath(key))

	lctx := ctx
	if c.lockTimeout > 0 {
		var cancel context.CancelFunc
		lctx, cancel = context.WithTimeout(ctx, c.lockTimeout)
		defer cancel()
	}
	ok, err := fl.TryLockContext(lctx, lockRetryDelay)
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
	}
	if err != nil {
		return nil, fmt.Errorf("acquire artifact lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			c.logger.Warn("failed to release artifact lock",
				logging.String(logging.FieldEventType, "artifact_unlock_failed"),
				logging.String("lock", fl.Path()),
				logging.Error(err),
			)
		}
	}, nil
}

// Sweep deletes orphaned artifacts older than olderThan and returns them so
// the caller can remove their published files. Lock files stay in place: a
// removed lock path can be recreated while an earlier opener still holds the
// unlinked inode, letting two producers run for one key.
func (c *Cache) Sweep(ctx context.Context, olderThan time.Duration) ([]scripture.Artifact, error) {
	cutoff := c.now().Add(-olderThan)
	removed, err := c.repo.SweepArtifacts(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("sweep artifacts: %w", err)
	}
	c.logger.InfoContext(ctx, "artifact sweep finished",
		logging.String(logging.FieldEventType, "artifact_sweep"),
		logging.Int("artifacts_removed", len(removed)),
	)
	return removed, nil
}
