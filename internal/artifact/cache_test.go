package artifact_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"signverse/internal/artifact"
	"signverse/internal/logging"
	"signverse/internal/scripture"
	"signverse/internal/store"
	"signverse/internal/testsupport"
)

func TestNewKeyCanonicalizes(t *testing.T) {
	a := artifact.NewKey("LSE", 40, "sum", []int{3, 1, 2, 2}, "720P", "")
	b := artifact.NewKey("LSE", 40, "sum", []int{1, 2, 3}, "720p", "none")

	if a != b {
		t.Fatalf("expected equal keys, got %#v and %#v", a, b)
	}
	if a.Verses != "1 2 3" || a.Overlay != scripture.OverlayNone {
		t.Fatalf("unexpected canonical key %#v", a)
	}
	if a.Digest() != b.Digest() || len(a.Digest()) != 64 {
		t.Fatalf("unexpected digest %q", a.Digest())
	}
	if got := a.VerseNumbers(); len(got) != 3 || got[2] != 3 {
		t.Fatalf("unexpected verse numbers %v", got)
	}
}

func TestDigestDependsOnEveryField(t *testing.T) {
	base := artifact.NewKey("LSE", 40, "sum", []int{1}, "720p", "")
	variants := map[string]artifact.Key{
		"language": artifact.NewKey("ASL", 40, "sum", []int{1}, "720p", ""),
		"book":     artifact.NewKey("LSE", 41, "sum", []int{1}, "720p", ""),
		"checksum": artifact.NewKey("LSE", 40, "other", []int{1}, "720p", ""),
		"verses":   artifact.NewKey("LSE", 40, "sum", []int{1, 2}, "720p", ""),
		"quality":  artifact.NewKey("LSE", 40, "sum", []int{1}, "240p", ""),
		"overlay":  artifact.NewKey("LSE", 40, "sum", []int{1}, "720p", "Mateo 5:1"),
	}
	for name, key := range variants {
		if key.Digest() == base.Digest() {
			t.Errorf("%s: digest did not change", name)
		}
	}
}

func newCache(t *testing.T) (*artifact.Cache, *store.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Cache.LockTimeoutSeconds = 1
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.SeedReference(t, st)
	return artifact.New(cfg, st, logging.NewNop()), st
}

func clipFor(id string) scripture.Artifact {
	return scripture.Artifact{
		Chapter: 5,
		Handle:  scripture.Handle{ID: id, Size: 2048, Duration: 9 * time.Second, Width: 1280, Height: 720},
		Label:   "Mateo 5:1",
	}
}

func TestProduceRunsOnceForConcurrentCallers(t *testing.T) {
	cache, _ := newCache(t)
	key := artifact.NewKey("LSE", 40, "sum", []int{1}, "720p", "")

	var calls atomic.Int32
	release := make(chan struct{})
	fn := func(context.Context) (scripture.Artifact, error) {
		calls.Add(1)
		<-release
		return clipFor("handle-1"), nil
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make([]scripture.Artifact, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _, errs[i] = cache.Produce(context.Background(), key, fn)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("expected one producer run, got %d", calls.Load())
	}
	for i := range callers {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if results[i].Handle.ID != "handle-1" || results[i].Key != key.Record() {
			t.Fatalf("caller %d got %#v", i, results[i])
		}
	}

	_, hit, err := cache.Produce(context.Background(), key, fn)
	if err != nil || !hit {
		t.Fatalf("expected cached artifact on second produce, hit=%v err=%v", hit, err)
	}
	if calls.Load() != 1 {
		t.Fatalf("cached produce must not run fn")
	}
}

func TestProduceOutlivesCancelledFirstCaller(t *testing.T) {
	cache, _ := newCache(t)
	key := artifact.NewKey("LSE", 40, "sum", []int{3}, "720p", "")

	started := make(chan struct{})
	release := make(chan struct{})
	var produceErr atomic.Value
	fn := func(ctx context.Context) (scripture.Artifact, error) {
		close(started)
		<-release
		if err := ctx.Err(); err != nil {
			produceErr.Store(err)
			return scripture.Artifact{}, err
		}
		return clipFor("shared"), nil
	}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstDone := make(chan error, 1)
	go func() {
		_, _, err := cache.Produce(firstCtx, key, fn)
		firstDone <- err
	}()
	<-started

	type result struct {
		a   scripture.Artifact
		err error
	}
	secondDone := make(chan result, 1)
	go func() {
		a, _, err := cache.Produce(context.Background(), key, fn)
		secondDone <- result{a, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelFirst()
	if err := <-firstDone; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected first caller to see its own cancellation, got %v", err)
	}
	close(release)

	second := <-secondDone
	if second.err != nil {
		t.Fatalf("second caller failed after first cancelled: %v", second.err)
	}
	if second.a.Handle.ID != "shared" {
		t.Fatalf("unexpected artifact %#v", second.a)
	}
	if v := produceErr.Load(); v != nil {
		t.Fatalf("production context was cancelled: %v", v)
	}
	if _, ok, err := cache.Lookup(context.Background(), key); err != nil || !ok {
		t.Fatalf("expected artifact stored, ok=%v err=%v", ok, err)
	}
}

func TestProduceErrorStoresNothing(t *testing.T) {
	cache, _ := newCache(t)
	key := artifact.NewKey("LSE", 40, "sum", []int{2}, "720p", "")
	boom := errors.New("ffmpeg exploded")

	_, _, err := cache.Produce(context.Background(), key, func(context.Context) (scripture.Artifact, error) {
		return scripture.Artifact{}, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected producer error, got %v", err)
	}
	if _, ok, err := cache.Lookup(context.Background(), key); err != nil || ok {
		t.Fatalf("expected no stored artifact, ok=%v err=%v", ok, err)
	}

	lock := flock.New(cache.LockPath(key))
	ok, err := lock.TryLock()
	if err != nil || !ok {
		t.Fatalf("expected lock to be released after failure, ok=%v err=%v", ok, err)
	}
	_ = lock.Unlock()
}

func TestProduceRechecksAfterWaitingForLock(t *testing.T) {
	cache, st := newCache(t)
	key := artifact.NewKey("LSE", 40, "sum", []int{4}, "720p", "")

	if err := os.MkdirAll(testLockDir(cache, key), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	other := flock.New(cache.LockPath(key))
	if ok, err := other.TryLock(); err != nil || !ok {
		t.Fatalf("TryLock: ok=%v err=%v", ok, err)
	}

	done := make(chan struct{})
	var (
		got  scripture.Artifact
		hit  bool
		perr error
	)
	go func() {
		defer close(done)
		got, hit, perr = cache.Produce(context.Background(), key, func(context.Context) (scripture.Artifact, error) {
			return scripture.Artifact{}, errors.New("must not run")
		})
	}()

	time.Sleep(150 * time.Millisecond)
	a := clipFor("from-other-process")
	a.Key = key.Record()
	if _, err := st.PutArtifact(context.Background(), a); err != nil {
		t.Fatalf("PutArtifact: %v", err)
	}
	_ = other.Unlock()
	<-done

	if perr != nil {
		t.Fatalf("Produce: %v", perr)
	}
	if !hit || got.Handle.ID != "from-other-process" {
		t.Fatalf("expected artifact stored by the other producer, got %#v hit=%v", got, hit)
	}
}

func TestProduceTimesOutOnHeldLock(t *testing.T) {
	cache, _ := newCache(t)
	key := artifact.NewKey("LSE", 40, "sum", []int{5}, "720p", "")

	if err := os.MkdirAll(testLockDir(cache, key), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	other := flock.New(cache.LockPath(key))
	if ok, err := other.TryLock(); err != nil || !ok {
		t.Fatalf("TryLock: ok=%v err=%v", ok, err)
	}
	defer func() { _ = other.Unlock() }()

	_, _, err := cache.Produce(context.Background(), key, func(context.Context) (scripture.Artifact, error) {
		return clipFor("never"), nil
	})
	if !errors.Is(err, artifact.ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}
}

func TestSweepRemovesOnlyOrphans(t *testing.T) {
	cache, st := newCache(t)
	ctx := context.Background()

	if _, _, err := st.ReplaceChapterEpoch(ctx, scripture.Chapter{
		Language: testsupport.FixtureLanguage, BookNumber: 40, Number: 5, Checksum: "current",
	}); err != nil {
		t.Fatalf("ReplaceChapterEpoch: %v", err)
	}

	old := time.Now().Add(-48 * time.Hour)
	for _, checksum := range []string{"current", "replaced"} {
		a := clipFor("handle-" + checksum)
		a.Key = artifact.NewKey(testsupport.FixtureLanguage, 40, checksum, []int{1}, "720p", "").Record()
		a.CreatedAt = old
		if _, err := cache.Store(ctx, a); err != nil {
			t.Fatalf("Store: %v", err)
		}
	}

	removed, err := cache.Sweep(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(removed) != 1 || removed[0].Key.Checksum != "replaced" {
		t.Fatalf("expected only the orphaned artifact to be swept, got %#v", removed)
	}

	remaining, err := cache.List(ctx, testsupport.FixtureLanguage, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(remaining) != 1 || remaining[0].Key.Checksum != "current" {
		t.Fatalf("unexpected remaining artifacts %#v", remaining)
	}
}

func TestSweepKeepsLockFiles(t *testing.T) {
	cache, _ := newCache(t)
	ctx := context.Background()
	key := artifact.NewKey(testsupport.FixtureLanguage, 40, "replaced", []int{7}, "720p", "")

	if _, _, err := cache.Produce(ctx, key, func(context.Context) (scripture.Artifact, error) {
		return clipFor("locked"), nil
	}); err != nil {
		t.Fatalf("Produce: %v", err)
	}
	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(cache.LockPath(key), old, old); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	if _, err := cache.Sweep(ctx, time.Hour); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if _, err := os.Stat(cache.LockPath(key)); err != nil {
		t.Fatalf("expected lock file to survive the sweep: %v", err)
	}
}

func testLockDir(cache *artifact.Cache, key artifact.Key) string {
	path := cache.LockPath(key)
	return path[:len(path)-len(key.Digest()+".lock")]
}
