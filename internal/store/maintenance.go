package store

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// Stats summarizes table sizes for diagnostic output.
type Stats struct {
	Languages       int
	Books           int
	Chapters        int
	Markers         int
	Artifacts       int
	OrphanArtifacts int
	DatabaseBytes   int64
}

// Stats counts rows per table.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	counts := []struct {
		dest  *int
		query string
	}{
		{&st.Languages, `SELECT COUNT(1) FROM languages`},
		{&st.Books, `SELECT COUNT(1) FROM books`},
		{&st.Chapters, `SELECT COUNT(1) FROM chapters`},
		{&st.Markers, `SELECT COUNT(1) FROM video_markers`},
		{&st.Artifacts, `SELECT COUNT(1) FROM artifacts`},
		{&st.OrphanArtifacts, `SELECT COUNT(1) FROM artifacts a WHERE NOT EXISTS (
            SELECT 1 FROM chapters c
            WHERE c.language = a.language AND c.book = a.book AND c.checksum = a.checksum)`},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return Stats{}, fmt.Errorf("store stats: %w", err)
		}
	}
	if s.path != "" {
		info, err := os.Stat(s.path)
		switch {
		case err == nil:
			st.DatabaseBytes = info.Size()
		case !errors.Is(err, os.ErrNotExist):
			return Stats{}, fmt.Errorf("stat database: %w", err)
		}
	}
	return st, nil
}
