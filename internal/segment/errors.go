package segment

import (
	"fmt"
	"strings"
)

// SegmentFailedError reports that ffmpeg could not produce a clip.
type SegmentFailedError struct {
	Op     string
	Source string
	Stderr string
	Err    error
}

func (e *SegmentFailedError) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Op, e.Source, e.Err)
	if tail := strings.TrimSpace(e.Stderr); tail != "" {
		msg += ": " + tail
	}
	return msg
}

func (e *SegmentFailedError) Unwrap() error { return e.Err }

// ProbeFailedError reports that a produced or source file could not be
// inspected.
type ProbeFailedError struct {
	Path string
	Err  error
}

func (e *ProbeFailedError) Error() string {
	return fmt.Sprintf("probe %s: %v", e.Path, e.Err)
}

func (e *ProbeFailedError) Unwrap() error { return e.Err }
