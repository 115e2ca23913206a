package passage_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"signverse/internal/artifact"
	"signverse/internal/citation"
	"signverse/internal/logging"
	"signverse/internal/markers"
	"signverse/internal/passage"
	"signverse/internal/publish"
	"signverse/internal/scripture"
	"signverse/internal/segment"
	"signverse/internal/services"
	"signverse/internal/sources/pubmedia"
	"signverse/internal/store"
	"signverse/internal/testsupport"
)

const chapterChecksum = "sum-5"

type fakeResolver struct {
	mu         sync.Mutex
	res        markers.Resolution
	err        error
	resolves   int
	refreshes  int
	refreshErr error
}

func (f *fakeResolver) Resolve(_ context.Context, key scripture.ChapterKey) (markers.Resolution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolves++
	if f.err != nil {
		return markers.Resolution{}, f.err
	}
	res := f.res
	res.Chapter.Language, res.Chapter.BookNumber, res.Chapter.Number = key.Language, key.Book, key.Chapter
	return res, nil
}

func (f *fakeResolver) Document(context.Context, scripture.ChapterKey) (pubmedia.Document, error) {
	if f.res.Document == nil {
		return pubmedia.Document{}, errors.New("no document")
	}
	return *f.res.Document, nil
}

func (f *fakeResolver) RefreshBook(context.Context, string, int, bool) (markers.RefreshSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	return markers.RefreshSummary{}, f.refreshErr
}

type fakeSegmenter struct {
	dir string

	mu       sync.Mutex
	splits   []int
	overlays []string
	concats  [][]string
	seq      int
	splitErr error
}

func (f *fakeSegmenter) path(prefix string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	return filepath.Join(f.dir, fmt.Sprintf("%s-%d.mp4", prefix, f.seq))
}

func (f *fakeSegmenter) SplitOne(_ context.Context, src string, marker scripture.VideoMarker, overlay string) (*segment.Clip, error) {
	if _, err := os.Stat(src); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.splits = append(f.splits, marker.VerseNumber)
	f.overlays = append(f.overlays, overlay)
	err := f.splitErr
	f.mu.Unlock()
	if err != nil {
		return nil, &segment.SegmentFailedError{Op: "split", Source: src, Err: err}
	}
	path := f.path("split")
	if err := os.WriteFile(path, []byte(fmt.Sprintf("verse %d", marker.VerseNumber)), 0o644); err != nil {
		return nil, err
	}
	return &segment.Clip{Path: path, Duration: marker.Duration, Width: 1280, Height: 720}, nil
}

func (f *fakeSegmenter) Concatenate(_ context.Context, clips []*segment.Clip, titles []string, _ string) (*segment.Clip, error) {
	var joined []byte
	var total time.Duration
	for _, c := range clips {
		data, err := os.ReadFile(c.Path)
		if err != nil {
			return nil, err
		}
		joined = append(joined, data...)
		total += c.Duration
	}
	f.mu.Lock()
	f.concats = append(f.concats, append([]string(nil), titles...))
	f.mu.Unlock()
	path := f.path("joined")
	if err := os.WriteFile(path, joined, 0o644); err != nil {
		return nil, err
	}
	return &segment.Clip{Path: path, Duration: total, Width: 1280, Height: 720}, nil
}

func (f *fakeSegmenter) Scratch(string) (*segment.Clip, error) {
	path := f.path("scratch")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		return nil, err
	}
	return &segment.Clip{Path: path}, nil
}

func (f *fakeSegmenter) splitVerses() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.splits...)
}

type fakeMedia struct {
	path string

	mu    sync.Mutex
	opens []string
}

func (f *fakeMedia) Open(_ context.Context, rawURL, checksum string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens = append(f.opens, rawURL+"#"+checksum)
	return f.path, nil
}

type harness struct {
	svc      *passage.Service
	resolver *fakeResolver
	seg      *fakeSegmenter
	media    *fakeMedia
	library  *publish.Library
	store    *store.Store
}

func chapterDocument() *pubmedia.Document {
	track := func(label, checksum string) pubmedia.Track {
		return pubmedia.Track{
			Title: "Mateo 5",
			Label: label,
			Track: 5,
			File: pubmedia.File{
				URL:      "https://cdn.example/nwt_40_Mt_LSE_05_r" + label + ".mp4",
				Checksum: checksum,
			},
		}
	}
	return &pubmedia.Document{
		PubName:  "nwt",
		BookNum:  40,
		Language: testsupport.FixtureLanguage,
		Files: map[string]map[string][]pubmedia.Track{
			testsupport.FixtureLanguage: {"MP4": {track("240p", "sum-5-low"), track("720p", chapterChecksum)}},
		},
	}
}

func verseMarkers(n int) []scripture.VideoMarker {
	out := make([]scripture.VideoMarker, 0, n)
	for v := 1; v <= n; v++ {
		out = append(out, scripture.VideoMarker{
			VerseNumber: v,
			StartTime:   time.Duration(v-1) * 5 * time.Second,
			Duration:    5 * time.Second,
			Label:       fmt.Sprintf("Mateo 5:%d", v),
		})
	}
	return out
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Render.DefaultQuality = "720p"
	cfg.Render.Parallelism = 2
	cfg.Cache.LockTimeoutSeconds = 2
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.SeedReference(t, st)

	src := filepath.Join(cfg.Paths.MediaDir, "chapter.mp4")
	testsupport.WriteFile(t, src, 1024)

	h := &harness{
		resolver: &fakeResolver{res: markers.Resolution{
			Chapter:  scripture.Chapter{ID: 1, Checksum: chapterChecksum},
			Markers:  verseMarkers(5),
			Tier:     markers.TierMetadata,
			Document: chapterDocument(),
		}},
		seg:     &fakeSegmenter{dir: t.TempDir()},
		media:   &fakeMedia{path: src},
		library: publish.NewLibrary(cfg, logging.NewNop()),
		store:   st,
	}
	h.svc = passage.New(cfg, passage.Dependencies{
		Reference: st,
		Markers:   h.resolver,
		Cache:     artifact.New(cfg, st, logging.NewNop()),
		Segmenter: h.seg,
		Media:     h.media,
		Publisher: h.library,
	}, logging.NewNop())
	return h
}

func request(verses ...int) passage.Request {
	return passage.Request{Passage: scripture.Passage{
		Language:   testsupport.FixtureLanguage,
		BookNumber: 40,
		Chapter:    5,
		Verses:     verses,
	}}
}

func satisfyOne(t *testing.T, h *harness, req passage.Request) passage.Delivery {
	t.Helper()
	deliveries, err := h.svc.Satisfy(context.Background(), req)
	if err != nil {
		t.Fatalf("Satisfy: %v", err)
	}
	if len(deliveries) != 1 {
		t.Fatalf("expected one delivery, got %d", len(deliveries))
	}
	return deliveries[0]
}

func TestSatisfyRendersThenServesFromCache(t *testing.T) {
	h := newHarness(t)

	first := satisfyOne(t, h, request(1))
	if first.CacheHit || first.State != passage.StateDelivered {
		t.Fatalf("unexpected first delivery %#v", first)
	}
	if first.Citation != "Mateo 5:1" {
		t.Fatalf("unexpected citation %q", first.Citation)
	}
	path, err := h.library.Path(first.Artifact.Handle)
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	if data, err := os.ReadFile(path); err != nil || string(data) != "verse 1" {
		t.Fatalf("expected published clip, data=%q err=%v", data, err)
	}

	second := satisfyOne(t, h, request(1))
	if !second.CacheHit {
		t.Fatalf("expected cache hit on second request")
	}
	if second.Artifact.Handle.ID != first.Artifact.Handle.ID {
		t.Fatalf("expected same handle, got %q and %q", first.Artifact.Handle.ID, second.Artifact.Handle.ID)
	}
	if got := h.seg.splitVerses(); len(got) != 1 {
		t.Fatalf("expected one split, got %v", got)
	}
	if len(h.media.opens) != 1 || h.media.opens[0] != "https://cdn.example/nwt_40_Mt_LSE_05_r720p.mp4#"+chapterChecksum {
		t.Fatalf("unexpected media opens %v", h.media.opens)
	}
}

func TestSatisfyMultiVerseReusesCachedSingles(t *testing.T) {
	h := newHarness(t)
	satisfyOne(t, h, request(2))

	d := satisfyOne(t, h, request(3, 1, 2))
	if d.CacheHit || d.Citation != "Mateo 5:1-3" {
		t.Fatalf("unexpected delivery %#v", d)
	}
	splits := h.seg.splitVerses()
	if len(splits) != 3 {
		t.Fatalf("expected verse 2 once and verses 1 and 3 split, got %v", splits)
	}
	for _, v := range splits[1:] {
		if v == 2 {
			t.Fatalf("cached verse 2 was split again: %v", splits)
		}
	}
	if len(h.seg.concats) != 1 || len(h.seg.concats[0]) != 3 || h.seg.concats[0][1] != "Mateo 5:2" {
		t.Fatalf("unexpected concat titles %v", h.seg.concats)
	}

	path, _ := h.library.Path(d.Artifact.Handle)
	if data, err := os.ReadFile(path); err != nil || string(data) != "verse 1verse 2verse 3" {
		t.Fatalf("unexpected joined clip %q err=%v", data, err)
	}

	single := satisfyOne(t, h, request(3))
	if !single.CacheHit {
		t.Fatalf("expected verse split during the multi-verse render to be stored")
	}
}

func TestSatisfyMultiVerseSplitsEachVerseOnce(t *testing.T) {
	h := newHarness(t)

	d := satisfyOne(t, h, request(5, 1, 4, 2))
	if d.CacheHit || d.Citation != "Mateo 5:1, 2, 4, 5" {
		t.Fatalf("unexpected delivery %#v", d)
	}
	seen := map[int]int{}
	for _, v := range h.seg.splitVerses() {
		seen[v]++
	}
	for _, v := range []int{1, 2, 4, 5} {
		if seen[v] != 1 {
			t.Fatalf("expected verse %d split once, got splits %v", v, h.seg.splitVerses())
		}
	}
	if len(seen) != 4 {
		t.Fatalf("unexpected splits %v", h.seg.splitVerses())
	}
	path, err := h.library.Path(d.Artifact.Handle)
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read joined clip: %v", err)
	}
	if string(data) != "verse 1verse 2verse 4verse 5" {
		t.Fatalf("clips joined out of order: %q", data)
	}
}

func TestSatisfyOverlayUsesBookName(t *testing.T) {
	h := newHarness(t)
	req := request(4)
	req.Overlay = testsupport.FixtureLanguage

	d := satisfyOne(t, h, req)
	if d.Artifact.Key.Overlay != testsupport.FixtureLanguage {
		t.Fatalf("unexpected key %#v", d.Artifact.Key)
	}
	if len(h.seg.overlays) != 1 || h.seg.overlays[0] != "Mateo 5:4" {
		t.Fatalf("unexpected overlays %v", h.seg.overlays)
	}

	plain := satisfyOne(t, h, request(4))
	if plain.CacheHit {
		t.Fatalf("overlay and plain clips must not share a cache entry")
	}
}

func TestSatisfyMissingVerses(t *testing.T) {
	tests := []struct {
		name    string
		verses  []int
		missing []int
	}{
		{name: "one missing", verses: []int{4, 6}, missing: []int{6}},
		{name: "three missing", verses: []int{5, 6, 7, 9}, missing: []int{6, 7, 9}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			_, err := h.svc.Satisfy(context.Background(), request(tt.verses...))
			var verseErr *citation.VerseNotExistsError
			if !errors.As(err, &verseErr) {
				t.Fatalf("expected VerseNotExistsError, got %v", err)
			}
			if verseErr.MissingCount != len(tt.missing) || verseErr.LastValid != 5 {
				t.Fatalf("unexpected error %#v", verseErr)
			}
			for i, v := range tt.missing {
				if verseErr.Missing[i] != v {
					t.Fatalf("missing = %v, want %v", verseErr.Missing, tt.missing)
				}
			}
			if !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation marker, got %v", err)
			}
			if len(h.seg.splitVerses()) != 0 {
				t.Fatalf("nothing should be rendered")
			}
		})
	}
}

func TestSatisfyQualityUnavailable(t *testing.T) {
	h := newHarness(t)
	req := request(1)
	req.Quality = "1080P"

	_, err := h.svc.Satisfy(context.Background(), req)
	var qErr *passage.QualityUnavailableError
	if !errors.As(err, &qErr) {
		t.Fatalf("expected QualityUnavailableError, got %v", err)
	}
	if qErr.Requested != "1080p" || len(qErr.Available) != 2 || qErr.Available[0] != "240p" {
		t.Fatalf("unexpected error %#v", qErr)
	}
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation marker, got %v", err)
	}
}

func TestSatisfySegmentFailureStoresNothing(t *testing.T) {
	h := newHarness(t)
	h.seg.splitErr = errors.New("exit status 1")

	_, err := h.svc.Satisfy(context.Background(), request(1))
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool marker, got %v", err)
	}

	h.seg.splitErr = nil
	d := satisfyOne(t, h, request(1))
	if d.CacheHit {
		t.Fatalf("failed render must not leave a cached artifact")
	}
}

func TestSatisfyChapterBeyondBook(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for n := 1; n <= 3; n++ {
		if _, _, err := h.store.ReplaceChapterEpoch(ctx, scripture.Chapter{
			Language: testsupport.FixtureLanguage, BookNumber: 40, Number: n, Checksum: fmt.Sprintf("c%d", n),
		}); err != nil {
			t.Fatalf("ReplaceChapterEpoch: %v", err)
		}
	}
	h.resolver.err = &markers.SourceUnavailableError{Chapter: scripture.ChapterKey{Language: testsupport.FixtureLanguage, Book: 40, Chapter: 5}}

	_, err := h.svc.Satisfy(ctx, request(1))
	var chErr *citation.ChapterNotExistsError
	if !errors.As(err, &chErr) {
		t.Fatalf("expected ChapterNotExistsError, got %v", err)
	}
	if chErr.Requested != 5 || chErr.LastValid != 3 {
		t.Fatalf("unexpected error %#v", chErr)
	}
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found marker, got %v", err)
	}
	if services.ExitCode(err) != 2 {
		t.Fatalf("unexpected exit code %d", services.ExitCode(err))
	}
}

func TestSatisfyValidation(t *testing.T) {
	h := newHarness(t)
	tests := []struct {
		name string
		req  passage.Request
		want error
	}{
		{name: "no verses", req: request(), want: passage.ErrVersesRequired},
		{name: "no chapter", req: passage.Request{Passage: scripture.Passage{Language: testsupport.FixtureLanguage, BookNumber: 40}}, want: passage.ErrVersesRequired},
		{name: "bad book", req: passage.Request{Passage: scripture.Passage{Language: testsupport.FixtureLanguage, Chapter: 1, Verses: []int{1}}}, want: scripture.ErrInvalidPassage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.Satisfy(context.Background(), tt.req)
			if !errors.Is(err, tt.want) || !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
	if h.resolver.resolves != 0 {
		t.Fatalf("invalid requests must not resolve markers")
	}
}

func TestSatisfyUnknownBook(t *testing.T) {
	h := newHarness(t)
	req := request(1)
	req.Passage.BookNumber = 66

	_, err := h.svc.Satisfy(context.Background(), req)
	if !errors.Is(err, citation.ErrBookNotFound) || !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected book not found, got %v", err)
	}
}

func TestListings(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	verses, err := h.svc.AvailableVerses(ctx, testsupport.FixtureLanguage, 40, 5)
	if err != nil {
		t.Fatalf("AvailableVerses: %v", err)
	}
	if verses.Citation != "Mateo 5" || len(verses.Verses) != 5 {
		t.Fatalf("unexpected listing %#v", verses)
	}

	for _, n := range []int{2, 1} {
		if _, _, err := h.store.ReplaceChapterEpoch(ctx, scripture.Chapter{
			Language: testsupport.FixtureLanguage, BookNumber: 40, Number: n, Checksum: "x",
		}); err != nil {
			t.Fatalf("ReplaceChapterEpoch: %v", err)
		}
	}
	book, err := h.svc.BookListing(ctx, testsupport.FixtureLanguage, 40)
	if err != nil {
		t.Fatalf("BookListing: %v", err)
	}
	if book.Citation != "Mateo" || len(book.Chapters) != 2 || book.Chapters[0] != 1 {
		t.Fatalf("unexpected book listing %#v", book)
	}
	if h.resolver.refreshes != 1 {
		t.Fatalf("expected book refresh, got %d", h.resolver.refreshes)
	}

	h.resolver.refreshErr = markers.ErrUnknownLanguage
	if _, err := h.svc.AvailableChapters(ctx, "XX", 40); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
