package segment

import (
	"errors"
	"os"
	"sync"
	"time"
)

// Clip is a scoped temp file holding a rendered segment.
type Clip struct {
	Path     string
	Duration time.Duration
	Width    int
	Height   int

	once sync.Once
	err  error
}

// Close removes the clip file. It is safe to call more than once.
func (c *Clip) Close() error {
	if c == nil {
		return nil
	}
	c.once.Do(func() {
		if c.Path == "" {
			return
		}
		if err := os.Remove(c.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			c.err = err
		}
	})
	return c.err
}

// Size returns the current file size, or 0 when the file is gone.
func (c *Clip) Size() int64 {
	if c == nil {
		return 0
	}
	info, err := os.Stat(c.Path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// CloseAll closes every clip and returns the first error.
func CloseAll(clips []*Clip) error {
	var first error
	for _, c := range clips {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
