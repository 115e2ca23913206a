package markers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"signverse/internal/citation"
	"signverse/internal/config"
	"signverse/internal/logging"
	"signverse/internal/media/ffprobe"
	"signverse/internal/scripture"
	"signverse/internal/sources/pubmedia"
	"signverse/internal/sources/wol"
	"signverse/internal/store"
)

// maxRestarts bounds how often a resolution restarts after the chapter
// checksum moved underneath it.
const maxRestarts = 3

// MetadataSource provides publication media documents.
type MetadataSource interface {
	FetchChapterMedia(ctx context.Context, language string, book int) (pubmedia.Document, error)
	FetchSingleTrack(ctx context.Context, language string, book, chapter int) (pubmedia.Document, error)
}

// ScrapeSource provides markers from the companion web page.
type ScrapeSource interface {
	FetchMarkerPage(ctx context.Context, loc wol.Locale, book, chapter int) ([]wol.RawMarker, error)
}

// Prober reads embedded chapter markers from a media container.
type Prober interface {
	Chapters(ctx context.Context, target string) ([]ffprobe.Chapter, error)
}

// Repository is the persistence the resolver needs.
type Repository interface {
	GetLanguage(ctx context.Context, code string) (*scripture.Language, error)
	GetBook(ctx context.Context, language string, number int) (*scripture.Book, error)
	MarkBookRefreshed(ctx context.Context, language string, number int, at time.Time) error
	GetChapter(ctx context.Context, key scripture.ChapterKey) (*scripture.Chapter, error)
	ReplaceChapterEpoch(ctx context.Context, ch scripture.Chapter) (scripture.Chapter, bool, error)
	TouchChapter(ctx context.Context, id int64, at time.Time) error
	ListMarkers(ctx context.Context, chapterID int64, checksum string) ([]scripture.VideoMarker, error)
	ReplaceMarkers(ctx context.Context, chapterID int64, checksum string, markers []scripture.VideoMarker) error
}

// Resolution is the outcome of Resolve.
type Resolution struct {
	Chapter scripture.Chapter
	Markers []scripture.VideoMarker
	Tier    Tier
	// Document is set when the metadata source was consulted.
	Document *pubmedia.Document
}

// Verses lists the verse numbers the resolution covers.
func (r Resolution) Verses() []int { return scripture.VerseNumbers(r.Markers) }

// Marker returns the marker of verse.
func (r Resolution) Marker(verse int) (scripture.VideoMarker, bool) {
	for _, m := range r.Markers {
		if m.VerseNumber == verse {
			return m, true
		}
	}
	return scripture.VideoMarker{}, false
}

// Resolver serves chapter markers, acquiring them when needed.
type Resolver struct {
	repo           Repository
	meta           MetadataSource
	scrape         ScrapeSource
	probe          Prober
	ttl            time.Duration
	bookTTL        time.Duration
	requestTimeout time.Duration
	probeTimeout   time.Duration
	resolveTimeout time.Duration
	probeEnabled   bool
	group          singleflight.Group
	now            func() time.Time
	logger         *slog.Logger
}

// New constructs a resolver. scrape and probe may be nil to disable a tier.
func New(cfg *config.Config, repo Repository, meta MetadataSource, scrape ScrapeSource, probe Prober, logger *slog.Logger) *Resolver {
	return &Resolver{
		repo:           repo,
		meta:           meta,
		scrape:         scrape,
		probe:          probe,
		ttl:            cfg.MarkerTTL(),
		bookTTL:        cfg.BookTTL(),
		requestTimeout: cfg.RequestTimeout(),
		probeTimeout:   cfg.ProbeTimeout(),
		resolveTimeout: maxRestarts * (2*cfg.RequestTimeout() + cfg.ProbeTimeout()),
		probeEnabled:   cfg.Markers.ProbeEnabled,
		now:            time.Now,
		logger:         logging.NewComponentLogger(logger, "markers"),
	}
}

// IsFresh reports whether the stored chapter was confirmed against the
// metadata source within the TTL.
func (r *Resolver) IsFresh(ch scripture.Chapter) bool {
	if ch.RefreshedAt.IsZero() || ch.Checksum == "" {
		return false
	}
	return r.now().Sub(ch.RefreshedAt) < r.ttl
}

// Resolve returns the markers of a chapter for its current checksum.
// Concurrent calls for the same chapter share one resolution, which runs
// detached from any single caller and is bounded by every tier timeout
// across the allowed restarts. A caller whose ctx ends stops waiting alone.
func (r *Resolver) Resolve(ctx context.Context, key scripture.ChapterKey) (Resolution, error) {
	ch := r.group.DoChan(key.String(), func() (any, error) {
		rctx := context.WithoutCancel(ctx)
		if r.resolveTimeout > 0 {
			var cancel context.CancelFunc
			rctx, cancel = context.WithTimeout(rctx, r.resolveTimeout)
			defer cancel()
		}
		return r.resolve(rctx, key)
	})
	select {
	case <-ctx.Done():
		return Resolution{}, ctx.Err()
	case out := <-ch:
		if out.Err != nil {
			return Resolution{}, out.Err
		}
		res := out.Val.(Resolution)
		res.Markers = append([]scripture.VideoMarker(nil), res.Markers...)
		return res, nil
	}
}

func (r *Resolver) resolve(ctx context.Context, key scripture.ChapterKey) (Resolution, error) {
	logger := r.logger.With(
		logging.String(logging.FieldLanguage, key.Language),
		logging.Int(logging.FieldBook, key.Book),
		logging.Int(logging.FieldChapter, key.Chapter),
	)

	stored, err := r.repo.GetChapter(ctx, key)
	if err != nil {
		return Resolution{}, err
	}
	if stored != nil && r.IsFresh(*stored) {
		markers, err := r.repo.ListMarkers(ctx, stored.ID, stored.Checksum)
		if err != nil {
			return Resolution{}, err
		}
		if len(markers) > 0 {
			logger.DebugContext(ctx, "markers served from store", logging.String(logging.FieldChecksum, stored.Checksum))
			return Resolution{Chapter: *stored, Markers: markers, Tier: TierStored}, nil
		}
	}

	lang, err := r.repo.GetLanguage(ctx, key.Language)
	if err != nil {
		return Resolution{}, err
	}
	if lang == nil {
		return Resolution{}, fmt.Errorf("%w: %s", ErrUnknownLanguage, key.Language)
	}

	for attempt := 0; ; attempt++ {
		res, err := r.acquire(ctx, logger, *lang, key)
		if !errors.Is(err, errStaleChecksum) {
			return res, err
		}
		if attempt+1 >= maxRestarts {
			return Resolution{}, fmt.Errorf("resolve markers for %s: chapter kept changing after %d attempts", key, maxRestarts)
		}
		logger.InfoContext(ctx, "chapter changed during resolution; restarting",
			logging.String(logging.FieldEventType, "markers_restart"),
			logging.Int("attempt", attempt+1),
		)
	}
}

// acquire re-checks the chapter epoch and, if needed, walks the tiers.
func (r *Resolver) acquire(ctx context.Context, logger *slog.Logger, lang scripture.Language, key scripture.ChapterKey) (Resolution, error) {
	doc, err := r.fetchDocument(ctx, lang, key)
	if err != nil {
		return Resolution{}, err
	}
	track, ok := doc.Representative(key.Chapter)
	if !ok {
		return Resolution{}, &SourceUnavailableError{Chapter: key, Err: pubmedia.ErrNotFound}
	}

	observed := track.Chapter(key.Language, key.Book)
	observed.RefreshedAt = r.now().UTC()
	chapter, changed, err := r.repo.ReplaceChapterEpoch(ctx, observed)
	if err != nil {
		return Resolution{}, err
	}
	if changed {
		logger.InfoContext(ctx, "chapter epoch replaced",
			logging.String(logging.FieldEventType, "chapter_epoch_replaced"),
			logging.String(logging.FieldChecksum, chapter.Checksum),
		)
	}

	if !changed {
		markers, err := r.repo.ListMarkers(ctx, chapter.ID, chapter.Checksum)
		if err != nil {
			return Resolution{}, err
		}
		if len(markers) > 0 {
			return Resolution{Chapter: chapter, Markers: markers, Tier: TierStored, Document: &doc}, nil
		}
	}

	apiMarkers, transitions := metadataMarkers(doc, key.Chapter)
	markers, tier, err := r.runTiers(ctx, logger, lang, key, doc, apiMarkers, transitions)
	if err != nil {
		return Resolution{}, err
	}
	for i := range markers {
		markers[i].ChapterID = chapter.ID
		markers[i].Checksum = chapter.Checksum
	}

	if err := r.repo.ReplaceMarkers(ctx, chapter.ID, chapter.Checksum, markers); err != nil {
		if errors.Is(err, store.ErrChecksumMismatch) {
			return Resolution{}, errStaleChecksum
		}
		return Resolution{}, err
	}
	logger.InfoContext(ctx, "markers resolved",
		logging.String(logging.FieldEventType, "markers_resolved"),
		logging.String(logging.FieldTier, tier.String()),
		logging.String(logging.FieldChecksum, chapter.Checksum),
		logging.Int("markers", len(markers)),
	)
	return Resolution{Chapter: chapter, Markers: markers, Tier: tier, Document: &doc}, nil
}

func (r *Resolver) fetchDocument(ctx context.Context, lang scripture.Language, key scripture.ChapterKey) (pubmedia.Document, error) {
	symbol := apiLanguage(lang)
	tctx, cancel := context.WithTimeout(ctx, r.requestTimeout)
	defer cancel()

	doc, err := r.meta.FetchSingleTrack(tctx, symbol, key.Book, key.Chapter)
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, pubmedia.ErrNotFound) {
		return pubmedia.Document{}, fmt.Errorf("fetch chapter metadata: %w", err)
	}
	doc, err = r.meta.FetchChapterMedia(tctx, symbol, key.Book)
	if errors.Is(err, pubmedia.ErrNotFound) {
		return pubmedia.Document{}, &SourceUnavailableError{Chapter: key, Err: err}
	}
	if err != nil {
		return pubmedia.Document{}, fmt.Errorf("fetch book metadata: %w", err)
	}
	return doc, nil
}

func (r *Resolver) runTiers(ctx context.Context, logger *slog.Logger, lang scripture.Language, key scripture.ChapterKey, doc pubmedia.Document, apiMarkers []scripture.VideoMarker, transitions map[int]time.Duration) ([]scripture.VideoMarker, Tier, error) {
	if len(apiMarkers) > 0 {
		return apiMarkers, TierMetadata, nil
	}

	if r.scrape != nil {
		markers, err := r.scrapeTier(ctx, lang, key, doc)
		if err == nil {
			return enrich(markers, transitions), TierScrape, nil
		}
		logging.WarnWithContext(logger, "scrape tier failed; falling back to probe", "markers_scrape_failed",
			logging.String(logging.FieldTier, TierScrape.String()),
			logging.String(logging.FieldErrorHint, "the companion page may not publish markers for this language"),
			logging.String(logging.FieldImpact, "slower probe tier will be used"),
			logging.Error(err),
		)
	}

	if r.probe == nil || !r.probeEnabled {
		return nil, TierProbe, &ProbeFailedError{Chapter: key, Err: errors.New("probe tier disabled")}
	}
	markers, err := r.probeTier(ctx, key, doc)
	if err != nil {
		return nil, TierProbe, err
	}
	return enrich(markers, transitions), TierProbe, nil
}

func (r *Resolver) scrapeTier(ctx context.Context, lang scripture.Language, key scripture.ChapterKey, doc pubmedia.Document) ([]scripture.VideoMarker, error) {
	tctx, cancel := context.WithTimeout(ctx, r.requestTimeout)
	defer cancel()

	raw, err := r.scrape.FetchMarkerPage(tctx, wol.LocaleOf(lang), key.Book, key.Chapter)
	if err != nil {
		return nil, &ScrapeFailedError{Chapter: key, Err: err}
	}
	bookName := doc.PubName
	out := make([]scripture.VideoMarker, 0, len(raw))
	for _, m := range raw {
		out = append(out, scripture.VideoMarker{
			VerseNumber: m.Verse,
			StartTime:   m.StartTime,
			Duration:    m.Duration,
			Label:       citation.Format(bookName, key.Chapter, []int{m.Verse}),
		})
	}
	return dedupe(out), nil
}

func (r *Resolver) probeTier(ctx context.Context, key scripture.ChapterKey, doc pubmedia.Document) ([]scripture.VideoMarker, error) {
	target := ""
	if track, ok := doc.Match(key.Chapter, doc.LowestQuality()); ok {
		target = track.File.URL
	} else if track, ok := doc.Representative(key.Chapter); ok {
		target = track.File.URL
	}
	if target == "" {
		return nil, &ProbeFailedError{Chapter: key, Err: errors.New("no media url to probe")}
	}

	tctx, cancel := context.WithTimeout(ctx, r.probeTimeout)
	defer cancel()
	chapters, err := r.probe.Chapters(tctx, target)
	if err != nil {
		return nil, &ProbeFailedError{Chapter: key, Target: target, Err: err}
	}

	var out []scripture.VideoMarker
	for _, c := range chapters {
		_, verse, ok := citation.RecognizeTitle(c.Title())
		if !ok || c.Duration() <= 0 {
			continue
		}
		out = append(out, scripture.VideoMarker{
			VerseNumber: verse,
			StartTime:   c.Start(),
			Duration:    c.Duration(),
			Label:       c.Title(),
		})
	}
	if len(out) == 0 {
		return nil, &ProbeFailedError{Chapter: key, Target: target, Err: errors.New("no verse chapters embedded in media")}
	}
	return dedupe(out), nil
}

// metadataMarkers returns the trusted embedded markers of the chapter from
// any rendition that carries them, plus every end transition the document
// publishes for the chapter.
func metadataMarkers(doc pubmedia.Document, chapter int) ([]scripture.VideoMarker, map[int]time.Duration) {
	transitions := make(map[int]time.Duration)
	var markers []scripture.VideoMarker
	if track, ok := doc.Representative(chapter); ok {
		markers, _ = track.VideoMarkers()
	}
	for _, track := range doc.Tracks() {
		if track.Track != chapter {
			continue
		}
		for verse, d := range track.EndTransitions() {
			if _, seen := transitions[verse]; !seen {
				transitions[verse] = d
			}
		}
		if len(markers) == 0 {
			if m, ok := track.VideoMarkers(); ok {
				markers = m
			}
		}
	}
	return markers, transitions
}

// enrich overlays end transitions published by the API onto markers from
// another tier. Nothing else is merged.
func enrich(markers []scripture.VideoMarker, transitions map[int]time.Duration) []scripture.VideoMarker {
	for i := range markers {
		if d, ok := transitions[markers[i].VerseNumber]; ok {
			markers[i].EndTransitionDuration = d
		}
	}
	return markers
}

// dedupe keeps the first marker per verse and orders by verse.
func dedupe(markers []scripture.VideoMarker) []scripture.VideoMarker {
	seen := make(map[int]struct{}, len(markers))
	out := markers[:0]
	for _, m := range markers {
		if _, ok := seen[m.VerseNumber]; ok {
			continue
		}
		seen[m.VerseNumber] = struct{}{}
		out = append(out, m)
	}
	scripture.SortMarkers(out)
	return out
}

func apiLanguage(lang scripture.Language) string {
	if lang.MepsSymbol != "" {
		return lang.MepsSymbol
	}
	return lang.Code
}

// Document fetches the current metadata document for a chapter. Callers use
// it to locate renditions when the markers came from the store.
func (r *Resolver) Document(ctx context.Context, key scripture.ChapterKey) (pubmedia.Document, error) {
	lang, err := r.repo.GetLanguage(ctx, key.Language)
	if err != nil {
		return pubmedia.Document{}, err
	}
	if lang == nil {
		return pubmedia.Document{}, fmt.Errorf("%w: %s", ErrUnknownLanguage, key.Language)
	}
	return r.fetchDocument(ctx, *lang, key)
}
