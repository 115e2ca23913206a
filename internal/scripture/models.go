package scripture

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Language is immutable reference data for one sign language.
type Language struct {
	Code           string `json:"code"`
	MepsSymbol     string `json:"meps_symbol"`
	Name           string `json:"name"`
	Vernacular     string `json:"vernacular"`
	Script         string `json:"script"`
	IsRTL          bool   `json:"is_rtl"`
	IsSignLanguage bool   `json:"is_sign_language"`
	// Locale, RSConf and Lib route requests to the companion web page.
	Locale string `json:"locale"`
	RSConf string `json:"rsconf"`
	Lib    string `json:"lib"`
}

// Book is one book of an edition. Editions are keyed by language code.
type Book struct {
	Language                     string    `json:"language"`
	Number                       int       `json:"number"`
	Name                         string    `json:"name"`
	StandardAbbreviation         string    `json:"standard_abbreviation"`
	OfficialAbbreviation         string    `json:"official_abbreviation"`
	StandardSingularName         string    `json:"standard_singular_name"`
	StandardSingularAbbreviation string    `json:"standard_singular_abbreviation"`
	OfficialSingularAbbreviation string    `json:"official_singular_abbreviation"`
	StandardPluralName           string    `json:"standard_plural_name"`
	StandardPluralAbbreviation   string    `json:"standard_plural_abbreviation"`
	OfficialPluralAbbreviation   string    `json:"official_plural_abbreviation"`
	RefreshedAt                  time.Time `json:"refreshed_at,omitzero"`
}

// Aliases returns every non-empty name variant of the book, deduplicated.
func (b Book) Aliases() []string {
	raw := []string{
		b.Name,
		b.StandardAbbreviation,
		b.OfficialAbbreviation,
		b.StandardSingularName,
		b.StandardSingularAbbreviation,
		b.OfficialSingularAbbreviation,
		b.StandardPluralName,
		b.StandardPluralAbbreviation,
		b.OfficialPluralAbbreviation,
	}
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, alias := range raw {
		alias = strings.TrimSpace(alias)
		if alias == "" {
			continue
		}
		if _, ok := seen[alias]; ok {
			continue
		}
		seen[alias] = struct{}{}
		out = append(out, alias)
	}
	return out
}

// Chapter is the current state of one chapter recording.
type Chapter struct {
	ID          int64
	Language    string
	BookNumber  int
	Number      int
	Title       string
	Checksum    string
	URL         string
	ModifiedAt  time.Time
	RefreshedAt time.Time
}

// Key identifies the chapter independently of its database row.
func (c Chapter) Key() ChapterKey {
	return ChapterKey{Language: c.Language, Book: c.BookNumber, Chapter: c.Number}
}

// ChapterKey addresses a chapter by language, book, and chapter number.
type ChapterKey struct {
	Language string
	Book     int
	Chapter  int
}

func (k ChapterKey) String() string {
	return fmt.Sprintf("%s/%d/%d", k.Language, k.Book, k.Chapter)
}

// VideoMarker locates one verse inside a chapter recording. Markers belong to
// exactly one checksum epoch of their chapter.
type VideoMarker struct {
	ChapterID             int64
	Checksum              string
	VerseNumber           int
	StartTime             time.Duration
	Duration              time.Duration
	EndTransitionDuration time.Duration
	Label                 string
	// VerseID is an optional back-reference to a canonical verse identifier; 0 when unknown.
	VerseID int64
}

// End returns the exclusive end of the cut including the end transition.
func (m VideoMarker) End() time.Duration {
	return m.StartTime + m.Duration + m.EndTransitionDuration
}

// SortMarkers orders markers by ascending verse number.
func SortMarkers(markers []VideoMarker) {
	sort.SliceStable(markers, func(i, j int) bool {
		return markers[i].VerseNumber < markers[j].VerseNumber
	})
}

// VerseNumbers lists the verse numbers covered by markers in ascending order.
func VerseNumbers(markers []VideoMarker) []int {
	out := make([]int, 0, len(markers))
	for _, m := range markers {
		out = append(out, m.VerseNumber)
	}
	sort.Ints(out)
	return out
}

// Passage is a structured scripture reference. A zero Chapter means the whole
// book; empty Verses means the whole chapter.
type Passage struct {
	Language   string
	BookNumber int
	Chapter    int
	Verses     []int
}

// ErrInvalidPassage is returned by Passage.Validate.
var ErrInvalidPassage = errors.New("invalid passage")

// Validate checks the structural invariants of a passage.
func (p Passage) Validate() error {
	if p.BookNumber <= 0 {
		return fmt.Errorf("%w: book number %d", ErrInvalidPassage, p.BookNumber)
	}
	if p.Chapter < 0 {
		return fmt.Errorf("%w: chapter %d", ErrInvalidPassage, p.Chapter)
	}
	if len(p.Verses) > 0 && p.Chapter == 0 {
		return fmt.Errorf("%w: verses without chapter", ErrInvalidPassage)
	}
	for i, v := range p.Verses {
		if v <= 0 {
			return fmt.Errorf("%w: verse %d", ErrInvalidPassage, v)
		}
		if i > 0 && v <= p.Verses[i-1] {
			return fmt.Errorf("%w: verses must be strictly ascending", ErrInvalidPassage)
		}
	}
	return nil
}

// NormalizeVerses returns a sorted copy of verses without duplicates or
// non-positive values.
func NormalizeVerses(verses []int) []int {
	if len(verses) == 0 {
		return nil
	}
	cp := make([]int, 0, len(verses))
	for _, v := range verses {
		if v > 0 {
			cp = append(cp, v)
		}
	}
	sort.Ints(cp)
	out := cp[:0]
	for i, v := range cp {
		if i > 0 && v == cp[i-1] {
			continue
		}
		out = append(out, v)
	}
	return out
}

// CanonicalVerses renders a verse set as the space separated canonical form
// used in artifact keys ("1 2 5").
func CanonicalVerses(verses []int) string {
	norm := NormalizeVerses(verses)
	parts := make([]string, len(norm))
	for i, v := range norm {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, " ")
}

// Handle is the opaque delivery handle of a published clip.
type Handle struct {
	ID       string        `json:"id"`
	Size     int64         `json:"size"`
	Duration time.Duration `json:"duration"`
	Width    int           `json:"width"`
	Height   int           `json:"height"`
}

// OverlayNone is the canonical overlay value for clips without burned-in text.
const OverlayNone = "none"

// ArtifactKey identifies one produced clip. Verses is the canonical space
// separated verse string; see CanonicalVerses.
type ArtifactKey struct {
	Language   string
	BookNumber int
	Checksum   string
	Verses     string
	Quality    string
	Overlay    string
}

// Artifact is a cached clip. Artifacts are immutable once stored; a chapter
// checksum change makes them unreachable rather than mutating them.
type Artifact struct {
	ID        string
	Key       ArtifactKey
	Chapter   int
	Handle    Handle
	Label     string
	CreatedAt time.Time
}
