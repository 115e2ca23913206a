package testsupport

import (
	"context"
	"testing"

	"signverse/internal/config"
	"signverse/internal/scripture"
	"signverse/internal/store"
)

// FixtureLanguage is the sign language seeded by SeedReference.
const FixtureLanguage = "LSE"

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

// FixtureBooks returns a small Spanish sign language edition.
func FixtureBooks() []scripture.Book {
	return []scripture.Book{
		{Language: FixtureLanguage, Number: 1, Name: "Génesis", StandardAbbreviation: "Gén.", OfficialAbbreviation: "Gé"},
		{Language: FixtureLanguage, Number: 40, Name: "Mateo", StandardAbbreviation: "Mat.", OfficialAbbreviation: "Mt"},
		{Language: FixtureLanguage, Number: 46, Name: "1 Corintios", StandardAbbreviation: "1 Cor.", OfficialAbbreviation: "1Co"},
		{Language: FixtureLanguage, Number: 47, Name: "2 Corintios", StandardAbbreviation: "2 Cor.", OfficialAbbreviation: "2Co"},
		{Language: FixtureLanguage, Number: 55, Name: "2 Timoteo", StandardAbbreviation: "2 Tim.", OfficialAbbreviation: "2Ti"},
	}
}

// SeedReference stores the fixture language and its books.
func SeedReference(t testing.TB, st *store.Store) scripture.Language {
	t.Helper()

	lang := scripture.Language{
		Code:           FixtureLanguage,
		MepsSymbol:     "LSE",
		Name:           "Spanish Sign Language",
		Vernacular:     "lengua de signos española",
		Script:         "ROMAN",
		IsSignLanguage: true,
		Locale:         "lse",
		RSConf:         "r377",
		Lib:            "lp-lse",
	}
	ctx := context.Background()
	if err := st.UpsertLanguage(ctx, lang); err != nil {
		t.Fatalf("seed language: %v", err)
	}
	if err := st.UpsertBooks(ctx, FixtureBooks()); err != nil {
		t.Fatalf("seed books: %v", err)
	}
	return lang
}
