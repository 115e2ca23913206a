package markers

import (
	"errors"
	"fmt"

	"signverse/internal/scripture"
)

// ErrUnknownLanguage reports a chapter request for a language with no
// reference data.
var ErrUnknownLanguage = errors.New("unknown language")

// errStaleChecksum signals that the chapter changed while markers were being
// resolved. The resolver restarts instead of returning it.
var errStaleChecksum = errors.New("chapter checksum changed during resolution")

// SourceUnavailableError reports that the metadata source has no media for
// the chapter. It is terminal for the request.
type SourceUnavailableError struct {
	Chapter scripture.ChapterKey
	Err     error
}

func (e *SourceUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("no media available for %s", e.Chapter)
	}
	return fmt.Sprintf("no media available for %s: %v", e.Chapter, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error { return e.Err }

// ScrapeFailedError reports a failed scrape tier. The resolver logs it and
// moves on to the next tier.
type ScrapeFailedError struct {
	Chapter scripture.ChapterKey
	Err     error
}

func (e *ScrapeFailedError) Error() string {
	return fmt.Sprintf("scrape markers for %s: %v", e.Chapter, e.Err)
}

func (e *ScrapeFailedError) Unwrap() error { return e.Err }

// ProbeFailedError reports that the last tier could not produce markers.
type ProbeFailedError struct {
	Chapter scripture.ChapterKey
	Target  string
	Err     error
}

func (e *ProbeFailedError) Error() string {
	return fmt.Sprintf("probe markers for %s (%s): %v", e.Chapter, e.Target, e.Err)
}

func (e *ProbeFailedError) Unwrap() error { return e.Err }
