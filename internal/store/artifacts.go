package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"signverse/internal/scripture"
)

// sortableTime keeps a fixed fraction width so created_at compares as text.
const sortableTime = "2006-01-02T15:04:05.000000000Z07:00"

const artifactColumns = `id, language, book, chapter, checksum, verses, quality, overlay,
    handle_id, size, duration_ns, width, height, label, created_at`

// GetArtifact returns the artifact stored under key, or nil on a miss.
func (s *Store) GetArtifact(ctx context.Context, key scripture.ArtifactKey) (*scripture.Artifact, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+artifactColumns+` FROM artifacts
         WHERE language = ? AND book = ? AND checksum = ? AND verses = ? AND quality = ? AND overlay = ?`,
		key.Language, key.BookNumber, key.Checksum, key.Verses, key.Quality, key.Overlay)
	a, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get artifact: %w", err)
	}
	return a, nil
}

// PutArtifact records a produced artifact. Storing the same key twice keeps
// the latest handle.
func (s *Store) PutArtifact(ctx context.Context, a scripture.Artifact) (scripture.Artifact, error) {
	if a.Handle.ID == "" {
		return scripture.Artifact{}, errors.New("artifact handle is required")
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO artifacts (`+artifactColumns+`)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(language, book, checksum, verses, quality, overlay) DO UPDATE SET
             handle_id = excluded.handle_id, size = excluded.size,
             duration_ns = excluded.duration_ns, width = excluded.width,
             height = excluded.height, label = excluded.label`,
		a.ID, a.Key.Language, a.Key.BookNumber, a.Chapter, a.Key.Checksum, a.Key.Verses,
		a.Key.Quality, a.Key.Overlay, a.Handle.ID, a.Handle.Size, int64(a.Handle.Duration),
		a.Handle.Width, a.Handle.Height, nullableString(a.Label),
		a.CreatedAt.UTC().Format(sortableTime),
	)
	if err != nil {
		return scripture.Artifact{}, fmt.Errorf("put artifact: %w", err)
	}
	stored, err := s.GetArtifact(ctx, a.Key)
	if err != nil {
		return scripture.Artifact{}, err
	}
	if stored == nil {
		return scripture.Artifact{}, fmt.Errorf("put artifact: row for %+v missing after upsert", a.Key)
	}
	return *stored, nil
}

// ListArtifacts returns the most recent artifacts, newest first. A non-empty
// language restricts the listing; limit <= 0 means no limit.
func (s *Store) ListArtifacts(ctx context.Context, language string, limit int) ([]scripture.Artifact, error) {
	query := `SELECT ` + artifactColumns + ` FROM artifacts`
	var args []any
	if language != "" {
		query += ` WHERE language = ?`
		args = append(args, language)
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()
	return collectArtifacts(rows)
}

// SweepArtifacts deletes artifacts created before cutoff whose checksum no
// longer matches any stored chapter of their book, returning what it removed.
func (s *Store) SweepArtifacts(ctx context.Context, cutoff time.Time) ([]scripture.Artifact, error) {
	var removed []scripture.Artifact
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		removed = nil
		rows, err := tx.QueryContext(ctx,
			`SELECT `+artifactColumns+` FROM artifacts a
             WHERE a.created_at < ?
               AND NOT EXISTS (
                   SELECT 1 FROM chapters c
                   WHERE c.language = a.language AND c.book = a.book AND c.checksum = a.checksum
               )`,
			cutoff.UTC().Format(sortableTime))
		if err != nil {
			return fmt.Errorf("select orphaned artifacts: %w", err)
		}
		found, err := collectArtifacts(rows)
		rows.Close()
		if err != nil {
			return err
		}
		for _, a := range found {
			if _, err := tx.ExecContext(ctx, `DELETE FROM artifacts WHERE id = ?`, a.ID); err != nil {
				return fmt.Errorf("delete artifact %s: %w", a.ID, err)
			}
		}
		removed = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

func collectArtifacts(rows *sql.Rows) ([]scripture.Artifact, error) {
	var out []scripture.Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func scanArtifact(scanner interface{ Scan(dest ...any) error }) (*scripture.Artifact, error) {
	var (
		a          scripture.Artifact
		durationNs int64
		label      sql.NullString
		createdRaw string
	)
	if err := scanner.Scan(
		&a.ID, &a.Key.Language, &a.Key.BookNumber, &a.Chapter, &a.Key.Checksum, &a.Key.Verses,
		&a.Key.Quality, &a.Key.Overlay, &a.Handle.ID, &a.Handle.Size, &durationNs,
		&a.Handle.Width, &a.Handle.Height, &label, &createdRaw,
	); err != nil {
		return nil, err
	}
	a.Handle.Duration = time.Duration(durationNs)
	a.Label = label.String
	a.CreatedAt = parseTimeOrZero(createdRaw)
	return &a, nil
}
