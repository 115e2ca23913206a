package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"signverse/internal/config"
	"signverse/internal/logging"
)

// ErrInsufficientSpace is returned when the media directory is too full.
var ErrInsufficientSpace = errors.New("insufficient free space for media download")

// HTTPDoer describes the HTTP client used for downloads.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// statfsFunc allows tests to stub filesystem stats.
type statfsFunc func(path string) (total uint64, free uint64, err error)

// Fetcher downloads media into root and keeps at most keep files there.
type Fetcher struct {
	root      string
	keep      int
	minFree   uint64
	userAgent string
	client    HTTPDoer
	statfs    statfsFunc
	inUse     time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// New builds a fetcher from configuration.
func New(cfg *config.Config, client HTTPDoer, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: cfg.RenderTimeout()}
	}
	return &Fetcher{
		root:      cfg.Paths.MediaDir,
		keep:      cfg.Cache.KeepMediaFiles,
		minFree:   uint64(cfg.Render.MinFreeGiB) * 1024 * 1024 * 1024,
		userAgent: cfg.Sources.UserAgent,
		client:    client,
		statfs:    realStatfs,
		inUse:     cfg.ProduceTimeout(),
		now:       time.Now,
		logger:    logging.NewComponentLogger(logger, "fetch"),
	}
}

// Open returns a local path holding the media at rawURL for the given
// checksum, downloading it when absent.
func (f *Fetcher) Open(ctx context.Context, rawURL, checksum string) (string, error) {
	target, err := f.pathFor(rawURL, checksum)
	if err != nil {
		return "", err
	}
	if info, err := os.Stat(target); err == nil && info.Size() > 0 {
		now := f.now()
		_ = os.Chtimes(target, now, now)
		f.logger.DebugContext(ctx, "media cache hit", logging.String("path", target))
		return target, nil
	}

	if err := os.MkdirAll(f.root, 0o755); err != nil {
		return "", fmt.Errorf("create media dir: %w", err)
	}
	if err := f.ensureFreeSpace(); err != nil {
		return "", err
	}

	started := time.Now()
	size, err := f.download(ctx, rawURL, target)
	if err != nil {
		return "", err
	}
	f.logger.InfoContext(ctx, "media downloaded",
		logging.String(logging.FieldEventType, "media_downloaded"),
		logging.String("path", target),
		logging.Int64("bytes", size),
		logging.Duration("elapsed", time.Since(started)),
	)

	if err := f.Prune(ctx, target); err != nil {
		logging.WarnWithContext(f.logger, "media prune failed", "media_prune_failed",
			logging.String(logging.FieldErrorHint, "check permissions on the media directory"),
			logging.String(logging.FieldImpact, "media cache may grow beyond its limit"),
			logging.Error(err),
		)
	}
	return target, nil
}

func (f *Fetcher) download(ctx context.Context, rawURL, target string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("build media request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download media: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		return 0, fmt.Errorf("download media: %s returned %d", rawURL, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(f.root, ".download-*")
	if err != nil {
		return 0, fmt.Errorf("create temp media file: %w", err)
	}
	tmpName := tmp.Name()
	size, copyErr := io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr == nil && size == 0 {
		copyErr = errors.New("empty response body")
	}
	if copyErr != nil {
		_ = os.Remove(tmpName)
		return 0, fmt.Errorf("write media: %w", copyErr)
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return 0, fmt.Errorf("finalize media: %w", err)
	}
	return size, nil
}

// Prune removes the oldest cached files beyond the configured count. The
// file at keepPath is never removed, nor is any file opened within the last
// production timeout, since another clip may still be reading it.
func (f *Fetcher) Prune(ctx context.Context, keepPath string) error {
	if f.keep <= 0 {
		return nil
	}
	entries, err := os.ReadDir(f.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read media dir: %w", err)
	}
	type candidate struct {
		path    string
		modTime time.Time
	}
	var files []candidate
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, candidate{path: filepath.Join(f.root, entry.Name()), modTime: info.ModTime()})
	}
	if len(files) <= f.keep {
		return nil
	}
	sort.Slice(files, func(i, j int) bool { return files[i].modTime.After(files[j].modTime) })
	cutoff := f.now().Add(-f.inUse)
	for _, c := range files[f.keep:] {
		if c.path == keepPath || c.modTime.After(cutoff) {
			continue
		}
		if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", c.path, err)
		}
		f.logger.DebugContext(ctx, "pruned media file", logging.String("path", c.path))
	}
	return nil
}

func (f *Fetcher) ensureFreeSpace() error {
	if f.minFree == 0 || f.statfs == nil {
		return nil
	}
	_, free, err := f.statfs(f.root)
	if err != nil {
		return fmt.Errorf("statfs media dir: %w", err)
	}
	if free < f.minFree {
		return fmt.Errorf("%w: %d bytes free, %d required", ErrInsufficientSpace, free, f.minFree)
	}
	return nil
}

func (f *Fetcher) pathFor(rawURL, checksum string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Path == "" {
		return "", fmt.Errorf("invalid media url %q", rawURL)
	}
	name := sanitize(path.Base(u.Path))
	if prefix := sanitize(checksum); prefix != "" {
		if len(prefix) > 16 {
			prefix = prefix[:16]
		}
		name = prefix + "_" + name
	}
	return filepath.Join(f.root, name), nil
}

func sanitize(value string) string {
	replacer := strings.NewReplacer(
		"/", "-",
		"\\", "-",
		":", "-",
		"*", "",
		"?", "",
		"\"", "",
		"<", "",
		">", "",
		"|", "",
	)
	value = replacer.Replace(strings.TrimSpace(value))
	return strings.Trim(value, "-_.")
}

func realStatfs(path string) (uint64, uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}
	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bavail * uint64(stat.Bsize)
	return total, free, nil
}
