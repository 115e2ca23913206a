package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"signverse/internal/scripture"
)

const languageColumns = "code, meps_symbol, name, vernacular, script, is_rtl, is_sign_language, locale, rsconf, lib"

const bookColumns = `language, number, name, standard_abbreviation, official_abbreviation,
    standard_singular_name, standard_singular_abbreviation, official_singular_abbreviation,
    standard_plural_name, standard_plural_abbreviation, official_plural_abbreviation, refreshed_at`

// UpsertLanguage inserts or replaces a language row.
func (s *Store) UpsertLanguage(ctx context.Context, lang scripture.Language) error {
	if lang.Code == "" {
		return errors.New("language code is required")
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO languages (`+languageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(code) DO UPDATE SET
             meps_symbol = excluded.meps_symbol, name = excluded.name,
             vernacular = excluded.vernacular, script = excluded.script,
             is_rtl = excluded.is_rtl, is_sign_language = excluded.is_sign_language,
             locale = excluded.locale, rsconf = excluded.rsconf, lib = excluded.lib`,
		lang.Code,
		nullableString(lang.MepsSymbol),
		nullableString(lang.Name),
		nullableString(lang.Vernacular),
		nullableString(lang.Script),
		boolToInt(lang.IsRTL),
		boolToInt(lang.IsSignLanguage),
		nullableString(lang.Locale),
		nullableString(lang.RSConf),
		nullableString(lang.Lib),
	)
	if err != nil {
		return fmt.Errorf("upsert language: %w", err)
	}
	return nil
}

// GetLanguage returns the language with code, or nil when unknown.
func (s *Store) GetLanguage(ctx context.Context, code string) (*scripture.Language, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+languageColumns+` FROM languages WHERE code = ?`, code)
	lang, err := scanLanguage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get language: %w", err)
	}
	return lang, nil
}

// ListLanguages returns every known language ordered by code.
func (s *Store) ListLanguages(ctx context.Context) ([]scripture.Language, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+languageColumns+` FROM languages ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("list languages: %w", err)
	}
	defer rows.Close()

	var out []scripture.Language
	for rows.Next() {
		lang, err := scanLanguage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan language: %w", err)
		}
		out = append(out, *lang)
	}
	return out, rows.Err()
}

func scanLanguage(scanner interface{ Scan(dest ...any) error }) (*scripture.Language, error) {
	var (
		lang                           scripture.Language
		meps, name, vernacular, script sql.NullString
		locale, rsconf, lib            sql.NullString
		rtl, sign                      int
	)
	if err := scanner.Scan(&lang.Code, &meps, &name, &vernacular, &script, &rtl, &sign, &locale, &rsconf, &lib); err != nil {
		return nil, err
	}
	lang.MepsSymbol = meps.String
	lang.Name = name.String
	lang.Vernacular = vernacular.String
	lang.Script = script.String
	lang.IsRTL = rtl != 0
	lang.IsSignLanguage = sign != 0
	lang.Locale = locale.String
	lang.RSConf = rsconf.String
	lang.Lib = lib.String
	return &lang, nil
}

// UpsertBooks stores a whole edition's book list in one transaction.
func (s *Store) UpsertBooks(ctx context.Context, books []scripture.Book) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, b := range books {
			if b.Language == "" || b.Number <= 0 {
				return fmt.Errorf("invalid book %q/%d", b.Language, b.Number)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO books (`+bookColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
                 ON CONFLICT(language, number) DO UPDATE SET
                     name = excluded.name,
                     standard_abbreviation = excluded.standard_abbreviation,
                     official_abbreviation = excluded.official_abbreviation,
                     standard_singular_name = excluded.standard_singular_name,
                     standard_singular_abbreviation = excluded.standard_singular_abbreviation,
                     official_singular_abbreviation = excluded.official_singular_abbreviation,
                     standard_plural_name = excluded.standard_plural_name,
                     standard_plural_abbreviation = excluded.standard_plural_abbreviation,
                     official_plural_abbreviation = excluded.official_plural_abbreviation`,
				b.Language,
				b.Number,
				nullableString(b.Name),
				nullableString(b.StandardAbbreviation),
				nullableString(b.OfficialAbbreviation),
				nullableString(b.StandardSingularName),
				nullableString(b.StandardSingularAbbreviation),
				nullableString(b.OfficialSingularAbbreviation),
				nullableString(b.StandardPluralName),
				nullableString(b.StandardPluralAbbreviation),
				nullableString(b.OfficialPluralAbbreviation),
				nullableTime(b.RefreshedAt),
			); err != nil {
				return fmt.Errorf("upsert book %d: %w", b.Number, err)
			}
		}
		return nil
	})
}

// GetBook returns one book of an edition, or nil when unknown.
func (s *Store) GetBook(ctx context.Context, language string, number int) (*scripture.Book, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+bookColumns+` FROM books WHERE language = ? AND number = ?`, language, number)
	book, err := scanBook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	return book, nil
}

// ListBooks returns an edition's books in canonical order.
func (s *Store) ListBooks(ctx context.Context, language string) ([]scripture.Book, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+bookColumns+` FROM books WHERE language = ? ORDER BY number`, language)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	var out []scripture.Book
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		out = append(out, *book)
	}
	return out, rows.Err()
}

// MarkBookRefreshed records when a bulk chapter refresh last completed.
func (s *Store) MarkBookRefreshed(ctx context.Context, language string, number int, at time.Time) error {
	_, err := s.execWithRetry(ctx,
		`UPDATE books SET refreshed_at = ? WHERE language = ? AND number = ?`,
		nullableTime(at), language, number)
	if err != nil {
		return fmt.Errorf("mark book refreshed: %w", err)
	}
	return nil
}

func scanBook(scanner interface{ Scan(dest ...any) error }) (*scripture.Book, error) {
	var (
		book      scripture.Book
		fields    [9]sql.NullString
		refreshed sql.NullString
	)
	if err := scanner.Scan(
		&book.Language, &book.Number,
		&fields[0], &fields[1], &fields[2], &fields[3], &fields[4],
		&fields[5], &fields[6], &fields[7], &fields[8],
		&refreshed,
	); err != nil {
		return nil, err
	}
	book.Name = fields[0].String
	book.StandardAbbreviation = fields[1].String
	book.OfficialAbbreviation = fields[2].String
	book.StandardSingularName = fields[3].String
	book.StandardSingularAbbreviation = fields[4].String
	book.OfficialSingularAbbreviation = fields[5].String
	book.StandardPluralName = fields[6].String
	book.StandardPluralAbbreviation = fields[7].String
	book.OfficialPluralAbbreviation = fields[8].String
	book.RefreshedAt = parseTimeOrZero(refreshed.String)
	return &book, nil
}
