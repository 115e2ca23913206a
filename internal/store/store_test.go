package store_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"signverse/internal/scripture"
	"signverse/internal/store"
	"signverse/internal/testsupport"
)

func seedChapter(t *testing.T, st *store.Store, checksum string) scripture.Chapter {
	t.Helper()
	ch, _, err := st.ReplaceChapterEpoch(context.Background(), scripture.Chapter{
		Language:   testsupport.FixtureLanguage,
		BookNumber: 40,
		Number:     5,
		Checksum:   checksum,
		URL:        "https://cdn.example/nwt_40_Mt_LSE_05_r720P.mp4",
	})
	if err != nil {
		t.Fatalf("ReplaceChapterEpoch: %v", err)
	}
	return ch
}

func sampleMarkers(verses ...int) []scripture.VideoMarker {
	out := make([]scripture.VideoMarker, 0, len(verses))
	for i, v := range verses {
		out = append(out, scripture.VideoMarker{
			VerseNumber:           v,
			StartTime:             time.Duration(i)*10*time.Second + 250*time.Millisecond,
			Duration:              9500 * time.Millisecond,
			EndTransitionDuration: 120 * time.Millisecond,
			Label:                 fmt.Sprintf("Mateo 5:%d", v),
		})
	}
	return out
}

func TestOpenCreatesSchemaAndReopens(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.SeedReference(t, st)
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := testsupport.MustOpenStore(t, cfg)
	books, err := reopened.ListBooks(context.Background(), testsupport.FixtureLanguage)
	if err != nil {
		t.Fatalf("ListBooks: %v", err)
	}
	if len(books) != len(testsupport.FixtureBooks()) {
		t.Fatalf("expected %d books after reopen, got %d", len(testsupport.FixtureBooks()), len(books))
	}
	if books[0].Number != 1 || books[0].Name != "Génesis" {
		t.Fatalf("unexpected first book %#v", books[0])
	}
}

func TestLanguageRoundTrip(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	want := testsupport.SeedReference(t, st)

	got, err := st.GetLanguage(context.Background(), want.Code)
	if err != nil {
		t.Fatalf("GetLanguage: %v", err)
	}
	if got == nil || *got != want {
		t.Fatalf("GetLanguage = %#v, want %#v", got, want)
	}
	missing, err := st.GetLanguage(context.Background(), "XXX")
	if err != nil || missing != nil {
		t.Fatalf("expected nil for unknown language, got %#v, %v", missing, err)
	}
}

func TestReplaceChapterEpochPurgesMarkersOnChecksumChange(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	testsupport.SeedReference(t, st)
	ctx := context.Background()

	ch := seedChapter(t, st, "aaa")
	if err := st.ReplaceMarkers(ctx, ch.ID, "aaa", sampleMarkers(1, 2, 3)); err != nil {
		t.Fatalf("ReplaceMarkers: %v", err)
	}

	same, changed, err := st.ReplaceChapterEpoch(ctx, ch)
	if err != nil {
		t.Fatalf("ReplaceChapterEpoch same checksum: %v", err)
	}
	if changed || same.ID != ch.ID {
		t.Fatalf("expected unchanged epoch, got changed=%v id=%d", changed, same.ID)
	}
	markers, err := st.ListMarkers(ctx, ch.ID, "aaa")
	if err != nil || len(markers) != 3 {
		t.Fatalf("expected markers to survive, got %d (%v)", len(markers), err)
	}

	ch.Checksum = "bbb"
	next, changed, err := st.ReplaceChapterEpoch(ctx, ch)
	if err != nil {
		t.Fatalf("ReplaceChapterEpoch new checksum: %v", err)
	}
	if !changed || next.ID != ch.ID {
		t.Fatalf("expected new epoch on same row, got changed=%v id=%d", changed, next.ID)
	}
	old, err := st.ListMarkers(ctx, ch.ID, "aaa")
	if err != nil || len(old) != 0 {
		t.Fatalf("expected old markers purged, got %d (%v)", len(old), err)
	}

	stored, err := st.GetChapter(ctx, ch.Key())
	if err != nil || stored == nil || stored.Checksum != "bbb" {
		t.Fatalf("unexpected stored chapter %#v (%v)", stored, err)
	}
}

func TestReplaceMarkersRejectsStaleChecksum(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	testsupport.SeedReference(t, st)
	ctx := context.Background()

	ch := seedChapter(t, st, "aaa")
	if err := st.ReplaceMarkers(ctx, ch.ID, "aaa", sampleMarkers(1, 2)); err != nil {
		t.Fatalf("ReplaceMarkers: %v", err)
	}
	err := st.ReplaceMarkers(ctx, ch.ID, "stale", sampleMarkers(1, 2, 3, 4))
	if !errors.Is(err, store.ErrChecksumMismatch) {
		t.Fatalf("expected ErrChecksumMismatch, got %v", err)
	}
	markers, err := st.ListMarkers(ctx, ch.ID, "aaa")
	if err != nil || len(markers) != 2 {
		t.Fatalf("expected previous marker set intact, got %d (%v)", len(markers), err)
	}
}

func TestMarkersPreserveFractionalTimes(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	testsupport.SeedReference(t, st)
	ctx := context.Background()

	ch := seedChapter(t, st, "aaa")
	want := sampleMarkers(3, 1, 2)
	if err := st.ReplaceMarkers(ctx, ch.ID, "aaa", want); err != nil {
		t.Fatalf("ReplaceMarkers: %v", err)
	}
	got, err := st.ListMarkers(ctx, ch.ID, "aaa")
	if err != nil {
		t.Fatalf("ListMarkers: %v", err)
	}
	if len(got) != 3 || got[0].VerseNumber != 1 || got[2].VerseNumber != 3 {
		t.Fatalf("expected ascending verses, got %#v", got)
	}
	if got[2].StartTime != 250*time.Millisecond || got[2].EndTransitionDuration != 120*time.Millisecond {
		t.Fatalf("times lost precision: %#v", got[2])
	}
}

func TestArtifactPutGetAndSweep(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	testsupport.SeedReference(t, st)
	ctx := context.Background()

	ch := seedChapter(t, st, "aaa")
	key := scripture.ArtifactKey{
		Language:   testsupport.FixtureLanguage,
		BookNumber: 40,
		Checksum:   "aaa",
		Verses:     "1 2 3",
		Quality:    "720p",
		Overlay:    scripture.OverlayNone,
	}
	old := time.Now().Add(-100 * time.Hour)
	stored, err := st.PutArtifact(ctx, scripture.Artifact{
		Key:       key,
		Chapter:   ch.Number,
		Handle:    scripture.Handle{ID: "h-1", Size: 1024, Duration: 3 * time.Second},
		Label:     "Mateo 5:1-3",
		CreatedAt: old,
	})
	if err != nil {
		t.Fatalf("PutArtifact: %v", err)
	}
	if stored.ID == "" {
		t.Fatal("expected generated artifact id")
	}

	got, err := st.GetArtifact(ctx, key)
	if err != nil || got == nil || got.Handle.ID != "h-1" || got.Handle.Duration != 3*time.Second {
		t.Fatalf("GetArtifact = %#v (%v)", got, err)
	}

	removed, err := st.SweepArtifacts(ctx, time.Now().Add(-72*time.Hour))
	if err != nil || len(removed) != 0 {
		t.Fatalf("expected current-checksum artifact kept, removed %d (%v)", len(removed), err)
	}

	ch.Checksum = "bbb"
	if _, _, err := st.ReplaceChapterEpoch(ctx, ch); err != nil {
		t.Fatalf("ReplaceChapterEpoch: %v", err)
	}
	removed, err = st.SweepArtifacts(ctx, time.Now().Add(-200*time.Hour))
	if err != nil || len(removed) != 0 {
		t.Fatalf("expected grace period to protect artifact, removed %d (%v)", len(removed), err)
	}
	removed, err = st.SweepArtifacts(ctx, time.Now().Add(-72*time.Hour))
	if err != nil || len(removed) != 1 || removed[0].ID != stored.ID {
		t.Fatalf("expected orphan swept, got %#v (%v)", removed, err)
	}
	if miss, _ := st.GetArtifact(ctx, key); miss != nil {
		t.Fatalf("expected artifact deleted, got %#v", miss)
	}
}

func TestPutArtifactReturnsStoredIDOnConflict(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	testsupport.SeedReference(t, st)
	ctx := context.Background()

	ch := seedChapter(t, st, "aaa")
	key := scripture.ArtifactKey{
		Language:   testsupport.FixtureLanguage,
		BookNumber: 40,
		Checksum:   "aaa",
		Verses:     "4",
		Quality:    "720p",
		Overlay:    scripture.OverlayNone,
	}
	first, err := st.PutArtifact(ctx, scripture.Artifact{
		Key: key, Chapter: ch.Number,
		Handle: scripture.Handle{ID: "h-1", Size: 10},
	})
	if err != nil {
		t.Fatalf("PutArtifact: %v", err)
	}
	second, err := st.PutArtifact(ctx, scripture.Artifact{
		Key: key, Chapter: ch.Number,
		Handle: scripture.Handle{ID: "h-2", Size: 20},
	})
	if err != nil {
		t.Fatalf("second PutArtifact: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected stored id %q on conflict, got %q", first.ID, second.ID)
	}
	if second.Handle.ID != "h-2" {
		t.Fatalf("expected latest handle, got %q", second.Handle.ID)
	}
	got, err := st.GetArtifact(ctx, key)
	if err != nil || got == nil || got.ID != first.ID {
		t.Fatalf("GetArtifact = %#v (%v)", got, err)
	}
}

func TestStatsCountsRows(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	testsupport.SeedReference(t, st)

	stats, err := st.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Languages != 1 || stats.Books != len(testsupport.FixtureBooks()) || stats.Artifacts != 0 {
		t.Fatalf("unexpected stats %#v", stats)
	}
}
