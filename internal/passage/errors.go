package passage

import (
	"errors"
	"fmt"
	"strings"
)

// ErrVersesRequired reports a whole-chapter request passed to Satisfy. Use
// AvailableVerses to list a chapter instead.
var ErrVersesRequired = errors.New("passage needs at least one verse")

// QualityUnavailableError reports a quality the chapter is not published in.
type QualityUnavailableError struct {
	Requested string
	Available []string
}

func (e *QualityUnavailableError) Error() string {
	return fmt.Sprintf("quality %q not available (have %s)", e.Requested, strings.Join(e.Available, ", "))
}
