package citation

import (
	"strconv"
	"strings"

	"signverse/internal/scripture"
)

// Format renders a citation in compact range notation. Runs of three or more
// consecutive verses collapse to "first-last"; a pair stays "a, b" and
// everything else is comma separated. A zero chapter yields the bare book
// name and empty verses yield "Book chapter".
func Format(bookName string, chapter int, verses []int) string {
	if chapter <= 0 {
		return bookName
	}
	head := bookName + " " + strconv.Itoa(chapter)
	ranges := FormatVerses(verses)
	if ranges == "" {
		return head
	}
	return head + ":" + ranges
}

// FormatVerses renders only the verse part: [1 2 3 5 6] -> "1-3, 5, 6".
func FormatVerses(verses []int) string {
	norm := scripture.NormalizeVerses(verses)
	if len(norm) == 0 {
		return ""
	}
	var parts []string
	start := norm[0]
	prev := norm[0]
	flush := func() {
		switch prev - start {
		case 0:
			parts = append(parts, strconv.Itoa(start))
			return
		case 1:
			parts = append(parts, strconv.Itoa(start), strconv.Itoa(prev))
			return
		}
		parts = append(parts, strconv.Itoa(start)+"-"+strconv.Itoa(prev))
	}
	for _, v := range norm[1:] {
		if v == prev+1 {
			prev = v
			continue
		}
		flush()
		start, prev = v, v
	}
	flush()
	return strings.Join(parts, ", ")
}
