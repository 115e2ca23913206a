package markers

import (
	"context"
	"errors"
	"fmt"

	"signverse/internal/logging"
	"signverse/internal/scripture"
	"signverse/internal/sources/pubmedia"
)

// RefreshSummary reports what RefreshBook changed.
type RefreshSummary struct {
	Skipped        bool
	Chapters       int
	Replaced       int
	WithMarkers    int
	WithoutMarkers []int
}

// RefreshBook re-checks every chapter of a book against the metadata source
// and stores embedded markers where the API publishes them. It only uses the
// metadata tier. A book refreshed within the book TTL is skipped unless force
// is set.
func (r *Resolver) RefreshBook(ctx context.Context, language string, book int, force bool) (RefreshSummary, error) {
	logger := r.logger.With(
		logging.String(logging.FieldLanguage, language),
		logging.Int(logging.FieldBook, book),
	)

	stored, err := r.repo.GetBook(ctx, language, book)
	if err != nil {
		return RefreshSummary{}, err
	}
	if stored == nil {
		return RefreshSummary{}, fmt.Errorf("book %d not found for %s", book, language)
	}
	if !force && !stored.RefreshedAt.IsZero() && r.now().Sub(stored.RefreshedAt) < r.bookTTL {
		logger.DebugContext(ctx, "book refreshed recently; skipping")
		return RefreshSummary{Skipped: true}, nil
	}

	lang, err := r.repo.GetLanguage(ctx, language)
	if err != nil {
		return RefreshSummary{}, err
	}
	if lang == nil {
		return RefreshSummary{}, fmt.Errorf("%w: %s", ErrUnknownLanguage, language)
	}

	tctx, cancel := context.WithTimeout(ctx, r.requestTimeout)
	doc, err := r.meta.FetchChapterMedia(tctx, apiLanguage(*lang), book)
	cancel()
	if errors.Is(err, pubmedia.ErrNotFound) {
		return RefreshSummary{}, &SourceUnavailableError{
			Chapter: scripture.ChapterKey{Language: language, Book: book},
			Err:     err,
		}
	}
	if err != nil {
		return RefreshSummary{}, fmt.Errorf("fetch book metadata: %w", err)
	}

	var summary RefreshSummary
	now := r.now().UTC()
	for _, number := range doc.Chapters() {
		track, ok := doc.Representative(number)
		if !ok {
			continue
		}
		summary.Chapters++
		observed := track.Chapter(language, book)
		observed.RefreshedAt = now
		chapter, changed, err := r.repo.ReplaceChapterEpoch(ctx, observed)
		if err != nil {
			return summary, err
		}
		if changed {
			summary.Replaced++
		}

		markers, _ := metadataMarkers(doc, number)
		if len(markers) == 0 {
			summary.WithoutMarkers = append(summary.WithoutMarkers, number)
			continue
		}
		if !changed {
			existing, err := r.repo.ListMarkers(ctx, chapter.ID, chapter.Checksum)
			if err != nil {
				return summary, err
			}
			if len(existing) > 0 {
				summary.WithMarkers++
				continue
			}
		}
		for i := range markers {
			markers[i].ChapterID = chapter.ID
			markers[i].Checksum = chapter.Checksum
		}
		if err := r.repo.ReplaceMarkers(ctx, chapter.ID, chapter.Checksum, markers); err != nil {
			return summary, fmt.Errorf("store markers for chapter %d: %w", number, err)
		}
		summary.WithMarkers++
	}

	if err := r.repo.MarkBookRefreshed(ctx, language, book, now); err != nil {
		return summary, err
	}
	if len(summary.WithoutMarkers) > 0 {
		logging.WarnWithContext(logger, "chapters without embedded markers", "book_markers_incomplete",
			logging.Any("chapters", summary.WithoutMarkers),
			logging.String(logging.FieldErrorHint, "markers for these chapters are acquired on demand"),
			logging.String(logging.FieldImpact, "first request per chapter is slower"),
		)
	}
	logger.InfoContext(ctx, "book refreshed",
		logging.String(logging.FieldEventType, "book_refreshed"),
		logging.Int("chapters", summary.Chapters),
		logging.Int("replaced", summary.Replaced),
	)
	return summary, nil
}
