package citation

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	looksLikeCitation = regexp.MustCompile(`^/?\s*(?:\d\s*)?\p{L}[\p{L}\s.]*?\s*\d+(?:\s*[:.]\s*\d+(?:\s*[-,\x{2013}]\s*\d+)*)?$`)
	titleChapterVerse = regexp.MustCompile(`(\d+)\s*:\s*(\d+)\s*$`)
	titleNumber       = regexp.MustCompile(`\d+`)
)

// LooksLikeCitation reports whether text has the shape of a citation, even if
// its book name is unknown. Callers use it to tell a misspelled book apart
// from ordinary chatter.
func LooksLikeCitation(text string) bool {
	s := strings.TrimSpace(text)
	if s == "" || len(s) > 64 {
		return false
	}
	return looksLikeCitation.MatchString(s)
}

// RecognizeTitle maps an embedded chapter title such as "Mt 3:5" to its
// chapter and verse. Titles carrying only a number ("Versículo 5") map the
// last number to the verse and report chapter 0.
func RecognizeTitle(title string) (chapter, verse int, ok bool) {
	title = strings.TrimSpace(title)
	if m := titleChapterVerse.FindStringSubmatch(title); m != nil {
		c, errC := strconv.Atoi(m[1])
		v, errV := strconv.Atoi(m[2])
		if errC == nil && errV == nil && v > 0 {
			return c, v, true
		}
	}
	numbers := titleNumber.FindAllString(title, -1)
	if len(numbers) == 0 {
		return 0, 0, false
	}
	v, err := strconv.Atoi(numbers[len(numbers)-1])
	if err != nil || v <= 0 {
		return 0, 0, false
	}
	return 0, v, true
}
