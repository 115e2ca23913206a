package citation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrBookNotFound is wrapped by BookNotFoundError.
	ErrBookNotFound = errors.New("book not found")
	// ErrMissingChapterNumber reports verses given without a chapter.
	ErrMissingChapterNumber = errors.New("missing chapter number")
	// ErrSyntax reports text that does not follow the citation grammar.
	ErrSyntax = errors.New("invalid citation syntax")
)

// BookNotFoundError reports an alias that matches no book.
type BookNotFoundError struct {
	Alias string
}

func (e *BookNotFoundError) Error() string {
	return fmt.Sprintf("book not found: %q", e.Alias)
}

func (e *BookNotFoundError) Unwrap() error { return ErrBookNotFound }

// AmbiguousBookError reports an alias fragment shared by several books.
// Candidates is sorted by book number.
type AmbiguousBookError struct {
	Alias      string
	Candidates []int
}

func (e *AmbiguousBookError) Error() string {
	return fmt.Sprintf("ambiguous book %q: candidates %s", e.Alias, joinInts(e.Candidates, ", "))
}

// ApocryphaError reports an alias naming a book outside the supported canon.
type ApocryphaError struct {
	Alias string
	Book  int
}

func (e *ApocryphaError) Error() string {
	return fmt.Sprintf("book %q (%d) is outside the supported canon", e.Alias, e.Book)
}

// ChapterNotExistsError reports a chapter beyond the last one in the book.
type ChapterNotExistsError struct {
	Requested int
	LastValid int
}

func (e *ChapterNotExistsError) Error() string {
	return fmt.Sprintf("chapter %d does not exist (last chapter is %d)", e.Requested, e.LastValid)
}

// VerseNotExistsError reports requested verses that the chapter does not have.
type VerseNotExistsError struct {
	Requested    []int
	LastValid    int
	Missing      []int
	MissingCount int
}

func (e *VerseNotExistsError) Error() string {
	if e.MissingCount == 1 {
		return fmt.Sprintf("verse %s does not exist (last verse is %d)", joinInts(e.Missing, ", "), e.LastValid)
	}
	return fmt.Sprintf("%d verses do not exist: %s (last verse is %d)", e.MissingCount, joinInts(e.Missing, ", "), e.LastValid)
}

func joinInts(values []int, sep string) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, sep)
}
