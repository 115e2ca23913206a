package publish

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
)

// MoveFile moves sourcePath to targetPath, copying across devices.
func MoveFile(sourcePath, targetPath string) error {
	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return fmt.Errorf("create target directory: %w", err)
	}
	if err := os.Rename(sourcePath, targetPath); err != nil {
		var linkErr *os.LinkError
		if errors.As(err, &linkErr) && errors.Is(linkErr.Err, syscall.EXDEV) {
			if err := copyFile(sourcePath, targetPath); err != nil {
				return fmt.Errorf("copy file across devices: %w", err)
			}
			if err := os.Remove(sourcePath); err != nil {
				return fmt.Errorf("remove source after copy: %w", err)
			}
			return nil
		}
		return fmt.Errorf("move file: %w", err)
	}
	return nil
}

// copyFile writes sourcePath to a temp file beside targetPath and renames it
// into place so readers never see a partial clip.
func copyFile(sourcePath, targetPath string) error {
	source, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer source.Close()

	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return fmt.Errorf("create target directory: %w", err)
	}
	dest, err := os.CreateTemp(filepath.Dir(targetPath), ".publish-*")
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	tmp := dest.Name()
	cleanup := func() { _ = os.Remove(tmp) }

	if _, err := io.Copy(dest, source); err != nil {
		dest.Close()
		cleanup()
		return fmt.Errorf("copy data: %w", err)
	}
	if err := dest.Sync(); err != nil {
		dest.Close()
		cleanup()
		return fmt.Errorf("sync destination: %w", err)
	}
	if err := dest.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close destination: %w", err)
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("chmod destination: %w", err)
	}
	if err := os.Rename(tmp, targetPath); err != nil {
		cleanup()
		return fmt.Errorf("rename destination: %w", err)
	}
	return nil
}
