package passage

import (
	"context"
	"errors"

	"signverse/internal/citation"
	"signverse/internal/markers"
	"signverse/internal/scripture"
	"signverse/internal/services"
)

// Listing answers requests that name a book or chapter without verses.
type Listing struct {
	Citation string
	Chapters []int
	Verses   []int
}

// AvailableVerses lists the verses of a chapter that have markers.
func (s *Service) AvailableVerses(ctx context.Context, language string, book, chapter int) (Listing, error) {
	ctx = services.WithPassage(ctx, language, book, chapter)
	b, err := s.book(ctx, language, book)
	if err != nil {
		return Listing{}, err
	}
	key := scripture.ChapterKey{Language: language, Book: book, Chapter: chapter}
	res, err := s.markers.Resolve(ctx, key)
	if err != nil {
		return Listing{}, s.resolveError(ctx, key, err)
	}
	return Listing{
		Citation: citation.Format(b.Name, chapter, nil),
		Verses:   res.Verses(),
	}, nil
}

// AvailableChapters lists the chapters of a book, refreshing the book's
// chapter index when it is older than the book TTL.
func (s *Service) AvailableChapters(ctx context.Context, language string, book int) ([]int, error) {
	if _, err := s.markers.RefreshBook(ctx, language, book, false); err != nil {
		var unavailable *markers.SourceUnavailableError
		switch {
		case errors.As(err, &unavailable):
			return nil, services.Wrap(services.ErrNotFound, "passage", "refresh book", "", err)
		case errors.Is(err, markers.ErrUnknownLanguage):
			return nil, services.Wrap(services.ErrValidation, "passage", "refresh book", "", err)
		default:
			return nil, services.Wrap(services.TimeoutMarker(err, services.ErrTransient), "passage", "refresh book", "", err)
		}
	}
	chapters, err := s.ref.ListChapters(ctx, language, book)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "passage", "list chapters", "", err)
	}
	out := make([]int, 0, len(chapters))
	for _, ch := range chapters {
		out = append(out, ch.Number)
	}
	return out, nil
}

// BookListing wraps AvailableChapters with the book's citation.
func (s *Service) BookListing(ctx context.Context, language string, book int) (Listing, error) {
	b, err := s.book(ctx, language, book)
	if err != nil {
		return Listing{}, err
	}
	chapters, err := s.AvailableChapters(ctx, language, book)
	if err != nil {
		return Listing{}, err
	}
	return Listing{Citation: b.Name, Chapters: chapters}, nil
}
