package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"signverse/internal/config"
	"signverse/internal/logging"
	"signverse/internal/scripture"
)

// ErrUnknownHandle reports a handle that does not resolve to a published clip.
var ErrUnknownHandle = errors.New("unknown clip handle")

// Metadata describes the clip being published. Name is the content address
// of the clip, usually the artifact key digest.
type Metadata struct {
	Language string
	Book     int
	Name     string
	Label    string
	Duration time.Duration
	Width    int
	Height   int
}

// Library publishes clips into a directory tree.
type Library struct {
	root     string
	moveFunc func(string, string) error
	logger   *slog.Logger
}

// NewLibrary builds a publisher rooted at the configured library directory.
func NewLibrary(cfg *config.Config, logger *slog.Logger) *Library {
	return &Library{
		root:     cfg.Paths.LibraryDir,
		moveFunc: MoveFile,
		logger:   logging.NewComponentLogger(logger, "publish"),
	}
}

// Publish moves the clip at path into the library and returns its handle.
// The source file no longer exists afterwards. Publishing the same name twice
// replaces the earlier clip.
func (l *Library) Publish(ctx context.Context, path string, meta Metadata) (scripture.Handle, error) {
	if err := ctx.Err(); err != nil {
		return scripture.Handle{}, err
	}
	name := strings.TrimSpace(meta.Name)
	if name == "" {
		return scripture.Handle{}, errors.New("publish: clip name is required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return scripture.Handle{}, fmt.Errorf("publish: inspect clip: %w", err)
	}
	if info.Size() == 0 {
		return scripture.Handle{}, fmt.Errorf("publish: clip %s is empty", path)
	}

	ext := filepath.Ext(path)
	if ext == "" {
		ext = ".mp4"
	}
	id := filepath.ToSlash(filepath.Join(sanitize(meta.Language), strconv.Itoa(meta.Book), sanitize(name)+ext))
	target := filepath.Join(l.root, filepath.FromSlash(id))
	if err := l.moveFunc(path, target); err != nil {
		return scripture.Handle{}, fmt.Errorf("publish %s: %w", id, err)
	}

	handle := scripture.Handle{
		ID:       id,
		Size:     info.Size(),
		Duration: meta.Duration,
		Width:    meta.Width,
		Height:   meta.Height,
	}
	l.logger.InfoContext(ctx, "clip published",
		logging.String(logging.FieldEventType, "clip_published"),
		logging.String("handle", id),
		logging.String("label", meta.Label),
		logging.String("size", humanize.Bytes(uint64(info.Size()))),
	)
	return handle, nil
}

// Fetch copies the published clip behind handle to dest.
func (l *Library) Fetch(ctx context.Context, handle scripture.Handle, dest string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src, err := l.Path(handle)
	if err != nil {
		return err
	}
	if _, err := os.Stat(src); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrUnknownHandle, handle.ID)
		}
		return fmt.Errorf("fetch %s: %w", handle.ID, err)
	}
	if err := copyFile(src, dest); err != nil {
		return fmt.Errorf("fetch %s: %w", handle.ID, err)
	}
	return nil
}

// Remove deletes the published clip behind handle. Missing clips are not an
// error.
func (l *Library) Remove(ctx context.Context, handle scripture.Handle) error {
	path, err := l.Path(handle)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", handle.ID, err)
	}
	l.logger.DebugContext(ctx, "clip removed", logging.String("handle", handle.ID))
	return nil
}

// Path resolves handle to its file inside the library.
func (l *Library) Path(handle scripture.Handle) (string, error) {
	id := filepath.FromSlash(strings.TrimSpace(handle.ID))
	if id == "" || !filepath.IsLocal(id) {
		return "", fmt.Errorf("%w: %q", ErrUnknownHandle, handle.ID)
	}
	return filepath.Join(l.root, id), nil
}

func sanitize(value string) string {
	value = strings.TrimSpace(value)
	replacer := strings.NewReplacer(
		"/", "-",
		"\\", "-",
		" ", "-",
		":", "-",
		"*", "",
		"?", "",
		"\"", "",
		"<", "",
		">", "",
		"|", "",
	)
	value = strings.Trim(replacer.Replace(value), "-_.")
	if value == "" {
		return "clip"
	}
	return value
}
