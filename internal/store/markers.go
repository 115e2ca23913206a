package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"signverse/internal/scripture"
)

// ListMarkers returns the markers of one chapter epoch ordered by verse.
func (s *Store) ListMarkers(ctx context.Context, chapterID int64, checksum string) ([]scripture.VideoMarker, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chapter_id, checksum, verse_number, start_ns, duration_ns, end_transition_ns, label, verse_id
         FROM video_markers WHERE chapter_id = ? AND checksum = ? ORDER BY verse_number`,
		chapterID, checksum)
	if err != nil {
		return nil, fmt.Errorf("list markers: %w", err)
	}
	defer rows.Close()

	var out []scripture.VideoMarker
	for rows.Next() {
		var (
			m                    scripture.VideoMarker
			start, dur, endTrans int64
			label                sql.NullString
			verseID              sql.NullInt64
		)
		if err := rows.Scan(&m.ChapterID, &m.Checksum, &m.VerseNumber, &start, &dur, &endTrans, &label, &verseID); err != nil {
			return nil, fmt.Errorf("scan marker: %w", err)
		}
		m.StartTime = time.Duration(start)
		m.Duration = time.Duration(dur)
		m.EndTransitionDuration = time.Duration(endTrans)
		m.Label = label.String
		m.VerseID = verseID.Int64
		out = append(out, m)
	}
	return out, rows.Err()
}

// ReplaceMarkers swaps the full marker set of a chapter in one transaction.
// It fails with ErrChecksumMismatch when the chapter's stored checksum is no
// longer checksum; nothing is written in that case.
func (s *Store) ReplaceMarkers(ctx context.Context, chapterID int64, checksum string, markers []scripture.VideoMarker) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var current string
		err := tx.QueryRowContext(ctx, `SELECT checksum FROM chapters WHERE id = ?`, chapterID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("chapter %d: %w", chapterID, ErrChecksumMismatch)
		}
		if err != nil {
			return fmt.Errorf("read chapter checksum: %w", err)
		}
		if current != checksum {
			return ErrChecksumMismatch
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM video_markers WHERE chapter_id = ?`, chapterID); err != nil {
			return fmt.Errorf("delete markers: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO video_markers (chapter_id, checksum, verse_number, start_ns, duration_ns, end_transition_ns, label, verse_id)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare marker insert: %w", err)
		}
		defer stmt.Close()

		for _, m := range markers {
			if _, err := stmt.ExecContext(ctx, chapterID, checksum, m.VerseNumber,
				int64(m.StartTime), int64(m.Duration), int64(m.EndTransitionDuration),
				nullableString(m.Label), nullableInt64(m.VerseID)); err != nil {
				return fmt.Errorf("insert marker %d: %w", m.VerseNumber, err)
			}
		}
		return nil
	})
}
