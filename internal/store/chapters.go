package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"signverse/internal/scripture"
)

const chapterColumns = "id, language, book, number, title, checksum, url, modified_at, refreshed_at"

// GetChapter returns the stored chapter for key, or nil when unknown.
func (s *Store) GetChapter(ctx context.Context, key scripture.ChapterKey) (*scripture.Chapter, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+chapterColumns+` FROM chapters WHERE language = ? AND book = ? AND number = ?`,
		key.Language, key.Book, key.Chapter)
	ch, err := scanChapter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get chapter: %w", err)
	}
	return ch, nil
}

// ListChapters returns the stored chapters of a book in order.
func (s *Store) ListChapters(ctx context.Context, language string, book int) ([]scripture.Chapter, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chapterColumns+` FROM chapters WHERE language = ? AND book = ? ORDER BY number`,
		language, book)
	if err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}
	defer rows.Close()

	var out []scripture.Chapter
	for rows.Next() {
		ch, err := scanChapter(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chapter: %w", err)
		}
		out = append(out, *ch)
	}
	return out, rows.Err()
}

// ReplaceChapterEpoch stores the observed state of a chapter. When the
// checksum differs from the stored one, every marker of the chapter is deleted
// in the same transaction that records the new checksum. The returned flag
// reports whether a new epoch started.
func (s *Store) ReplaceChapterEpoch(ctx context.Context, ch scripture.Chapter) (scripture.Chapter, bool, error) {
	if ch.Checksum == "" {
		return scripture.Chapter{}, false, errors.New("chapter checksum is required")
	}
	if ch.RefreshedAt.IsZero() {
		ch.RefreshedAt = time.Now().UTC()
	}

	var changed bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		changed = false
		var (
			id       int64
			checksum string
		)
		err := tx.QueryRowContext(ctx,
			`SELECT id, checksum FROM chapters WHERE language = ? AND book = ? AND number = ?`,
			ch.Language, ch.BookNumber, ch.Number,
		).Scan(&id, &checksum)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			res, err := tx.ExecContext(ctx,
				`INSERT INTO chapters (language, book, number, title, checksum, url, modified_at, refreshed_at)
                 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				ch.Language, ch.BookNumber, ch.Number,
				nullableString(ch.Title), ch.Checksum, nullableString(ch.URL),
				nullableTime(ch.ModifiedAt), nullableTime(ch.RefreshedAt))
			if err != nil {
				return fmt.Errorf("insert chapter: %w", err)
			}
			if ch.ID, err = res.LastInsertId(); err != nil {
				return fmt.Errorf("last insert id: %w", err)
			}
			changed = true
			return nil
		case err != nil:
			return fmt.Errorf("read chapter: %w", err)
		}

		ch.ID = id
		if checksum != ch.Checksum {
			if _, err := tx.ExecContext(ctx, `DELETE FROM video_markers WHERE chapter_id = ?`, id); err != nil {
				return fmt.Errorf("purge markers: %w", err)
			}
			changed = true
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE chapters SET title = ?, checksum = ?, url = ?, modified_at = ?, refreshed_at = ?
             WHERE id = ?`,
			nullableString(ch.Title), ch.Checksum, nullableString(ch.URL),
			nullableTime(ch.ModifiedAt), nullableTime(ch.RefreshedAt), id,
		); err != nil {
			return fmt.Errorf("update chapter: %w", err)
		}
		return nil
	})
	if err != nil {
		return scripture.Chapter{}, false, err
	}
	return ch, changed, nil
}

// TouchChapter records a freshness check that found the chapter unchanged.
func (s *Store) TouchChapter(ctx context.Context, id int64, at time.Time) error {
	_, err := s.execWithRetry(ctx, `UPDATE chapters SET refreshed_at = ? WHERE id = ?`, nullableTime(at), id)
	if err != nil {
		return fmt.Errorf("touch chapter: %w", err)
	}
	return nil
}

func scanChapter(scanner interface{ Scan(dest ...any) error }) (*scripture.Chapter, error) {
	var (
		ch                                 scripture.Chapter
		title, url, modified, refreshedRaw sql.NullString
	)
	if err := scanner.Scan(&ch.ID, &ch.Language, &ch.BookNumber, &ch.Number,
		&title, &ch.Checksum, &url, &modified, &refreshedRaw); err != nil {
		return nil, err
	}
	ch.Title = title.String
	ch.URL = url.String
	ch.ModifiedAt = parseTimeOrZero(modified.String)
	ch.RefreshedAt = parseTimeOrZero(refreshedRaw.String)
	return &ch, nil
}
