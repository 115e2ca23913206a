package citation

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"signverse/internal/scripture"
)

// Canon bounds of the supported book numbering.
const (
	MinBook = 1
	MaxBook = 66
)

// AliasTable maps folded book aliases to book numbers for one edition.
type AliasTable struct {
	language string
	aliases  map[string][]int
	names    map[int]string
}

// NewAliasTable indexes every name variant of books.
func NewAliasTable(language string, books []scripture.Book) *AliasTable {
	t := &AliasTable{
		language: language,
		aliases:  make(map[string][]int),
		names:    make(map[int]string, len(books)),
	}
	for _, book := range books {
		if book.Name != "" {
			t.names[book.Number] = book.Name
		}
		for _, alias := range book.Aliases() {
			t.Add(alias, book.Number)
		}
	}
	return t
}

// Add registers an extra alias for a book.
func (t *AliasTable) Add(alias string, book int) {
	key := Fold(alias)
	if key == "" {
		return
	}
	for _, existing := range t.aliases[key] {
		if existing == book {
			return
		}
	}
	t.aliases[key] = append(t.aliases[key], book)
}

// Language returns the edition the table was built for.
func (t *AliasTable) Language() string { return t.language }

// Name returns the display name of a book, or "" when unknown.
func (t *AliasTable) Name(book int) string { return t.names[book] }

// Lookup resolves alias to a single book number. An exact folded match wins;
// otherwise every alias starting with the fragment is considered, with or
// without its leading ordinal digit.
func (t *AliasTable) Lookup(alias string) (int, error) {
	key := Fold(alias)
	if key == "" {
		return 0, &BookNotFoundError{Alias: alias}
	}
	if books, ok := t.aliases[key]; ok {
		return t.single(alias, books)
	}

	seen := make(map[int]struct{})
	for candidate, books := range t.aliases {
		if !strings.HasPrefix(candidate, key) && !strings.HasPrefix(stripOrdinal(candidate), key) {
			continue
		}
		for _, b := range books {
			seen[b] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return 0, &BookNotFoundError{Alias: alias}
	}
	books := make([]int, 0, len(seen))
	for b := range seen {
		books = append(books, b)
	}
	return t.single(alias, books)
}

func (t *AliasTable) single(alias string, books []int) (int, error) {
	if len(books) > 1 {
		candidates := append([]int(nil), books...)
		sort.Ints(candidates)
		return 0, &AmbiguousBookError{Alias: alias, Candidates: candidates}
	}
	book := books[0]
	if book < MinBook || book > MaxBook {
		return 0, &ApocryphaError{Alias: alias, Book: book}
	}
	return book, nil
}

// Fold lower-cases s, removes diacritics, and drops whitespace and periods so
// "1 Corintios." and "1corintios" compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if unicode.IsSpace(r) || r == '.' {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

func stripOrdinal(key string) string {
	return strings.TrimLeftFunc(key, unicode.IsDigit)
}
