package citation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"signverse/internal/scripture"
)

// maxVerseNumber bounds range expansion; no chapter is longer.
const maxVerseNumber = 200

type citationAST struct {
	Book    string       `parser:"@Book"`
	Chapter *int         `parser:"@Number?"`
	Verses  []*verseItem `parser:"( \":\" @@ ( \",\" @@ )* )?"`
}

type verseItem struct {
	First int  `parser:"@Number"`
	Last  *int `parser:"( \"-\" @Number )?"`
}

var citationLexer = lexer.MustSimple([]lexer.SimpleRule{
	// Book names may carry a leading ordinal and span several words:
	// "Mt", "Mt.", "1 Corintios", "Cantar de los Cantares".
	{Name: "Book", Pattern: `(?:\d\s*)?\p{L}+(?:\s+\p{L}+)*\.?`},
	{Name: "Number", Pattern: `\d+`},
	{Name: "Punct", Pattern: `[:,\-]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var citationParser = participle.MustBuild[citationAST](
	participle.Lexer(citationLexer),
	participle.Elide("Whitespace"),
)

var (
	dotSeparator = regexp.MustCompile(`(\d)\s*\.\s*(\d)`)
	dashVariants = strings.NewReplacer("–", "-", "—", "-", "−", "-")
)

// Parser turns citation text into a scripture.Passage for one edition.
type Parser struct {
	table *AliasTable
}

// NewParser binds a parser to an alias table.
func NewParser(table *AliasTable) *Parser {
	return &Parser{table: table}
}

// Table exposes the alias table backing the parser.
func (p *Parser) Table() *AliasTable { return p.table }

// Parse parses text such as "Mt 3:1-3, 5" or "/2 Timoteo 3". A leading slash
// is accepted so chat commands can be passed through unchanged.
func (p *Parser) Parse(text string) (scripture.Passage, error) {
	normalized := normalizeInput(text)
	if normalized == "" {
		return scripture.Passage{}, fmt.Errorf("%w: empty citation", ErrSyntax)
	}

	ast, err := citationParser.ParseString("", normalized)
	if err != nil {
		return scripture.Passage{}, fmt.Errorf("%w: %q: %v", ErrSyntax, text, err)
	}

	book, err := p.table.Lookup(strings.TrimSuffix(ast.Book, "."))
	if err != nil {
		return scripture.Passage{}, err
	}

	passage := scripture.Passage{Language: p.table.Language(), BookNumber: book}
	if ast.Chapter == nil {
		if len(ast.Verses) > 0 {
			return scripture.Passage{}, ErrMissingChapterNumber
		}
		return passage, nil
	}
	if *ast.Chapter <= 0 {
		return scripture.Passage{}, fmt.Errorf("%w: chapter %d", ErrSyntax, *ast.Chapter)
	}
	passage.Chapter = *ast.Chapter

	verses, err := expandVerses(ast.Verses)
	if err != nil {
		return scripture.Passage{}, err
	}
	passage.Verses = verses
	return passage, nil
}

// Citation formats passage with the edition's display name for its book.
func (p *Parser) Citation(passage scripture.Passage) string {
	name := p.table.Name(passage.BookNumber)
	if name == "" {
		name = fmt.Sprintf("%d", passage.BookNumber)
	}
	return Format(name, passage.Chapter, passage.Verses)
}

func expandVerses(items []*verseItem) ([]int, error) {
	if len(items) == 0 {
		return nil, nil
	}
	var verses []int
	for _, item := range items {
		last := item.First
		if item.Last != nil {
			last = *item.Last
		}
		if item.First <= 0 || last < item.First {
			return nil, fmt.Errorf("%w: verse range %d-%d", ErrSyntax, item.First, last)
		}
		if last > maxVerseNumber {
			return nil, fmt.Errorf("%w: verse %d out of range", ErrSyntax, last)
		}
		for v := item.First; v <= last; v++ {
			verses = append(verses, v)
		}
	}
	return scripture.NormalizeVerses(verses), nil
}

func normalizeInput(text string) string {
	s := strings.TrimSpace(text)
	s = strings.TrimPrefix(s, "/")
	s = dashVariants.Replace(s)
	s = dotSeparator.ReplaceAllString(s, "$1:$2")
	return strings.TrimSpace(s)
}
