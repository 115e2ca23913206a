package citation

import "sort"

// CheckChapter validates requested against the last chapter of a book.
func CheckChapter(requested, last int) error {
	if requested < 1 || requested > last {
		return &ChapterNotExistsError{Requested: requested, LastValid: last}
	}
	return nil
}

// CheckVerses validates requested verses against those available for the
// chapter. Every missing verse is reported, not only the first.
func CheckVerses(requested, available []int) error {
	have := make(map[int]struct{}, len(available))
	lastValid := 0
	for _, v := range available {
		have[v] = struct{}{}
		if v > lastValid {
			lastValid = v
		}
	}
	var missing []int
	for _, v := range requested {
		if _, ok := have[v]; !ok {
			missing = append(missing, v)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Ints(missing)
	return &VerseNotExistsError{
		Requested:    append([]int(nil), requested...),
		LastValid:    lastValid,
		Missing:      missing,
		MissingCount: len(missing),
	}
}
