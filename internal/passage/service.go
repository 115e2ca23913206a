package passage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"signverse/internal/artifact"
	"signverse/internal/citation"
	"signverse/internal/config"
	"signverse/internal/logging"
	"signverse/internal/markers"
	"signverse/internal/publish"
	"signverse/internal/scripture"
	"signverse/internal/segment"
	"signverse/internal/services"
	"signverse/internal/sources/pubmedia"
)

// MarkerResolver provides fresh chapter markers.
type MarkerResolver interface {
	Resolve(ctx context.Context, key scripture.ChapterKey) (markers.Resolution, error)
	Document(ctx context.Context, key scripture.ChapterKey) (pubmedia.Document, error)
	RefreshBook(ctx context.Context, language string, book int, force bool) (markers.RefreshSummary, error)
}

// ArtifactCache stores produced clips.
type ArtifactCache interface {
	Lookup(ctx context.Context, key artifact.Key) (scripture.Artifact, bool, error)
	Produce(ctx context.Context, key artifact.Key, fn artifact.ProduceFunc) (scripture.Artifact, bool, error)
}

// Segmenter cuts and joins clips.
type Segmenter interface {
	SplitOne(ctx context.Context, src string, marker scripture.VideoMarker, overlay string) (*segment.Clip, error)
	Concatenate(ctx context.Context, clips []*segment.Clip, titles []string, outTitle string) (*segment.Clip, error)
	Scratch(pattern string) (*segment.Clip, error)
}

// MediaSource makes a chapter recording available as a local file.
type MediaSource interface {
	Open(ctx context.Context, rawURL, checksum string) (string, error)
}

// Publisher hands out delivery handles for clips.
type Publisher interface {
	Publish(ctx context.Context, path string, meta publish.Metadata) (scripture.Handle, error)
	Fetch(ctx context.Context, handle scripture.Handle, dest string) error
}

// Reference reads book and chapter reference data.
type Reference interface {
	GetBook(ctx context.Context, language string, number int) (*scripture.Book, error)
	ListChapters(ctx context.Context, language string, book int) ([]scripture.Chapter, error)
}

// Dependencies wires the collaborators of a Service.
type Dependencies struct {
	Reference Reference
	Markers   MarkerResolver
	Cache     ArtifactCache
	Segmenter Segmenter
	Media     MediaSource
	Publisher Publisher
}

// Request asks for one passage. Quality defaults to the configured quality;
// Overlay names the language whose book name is burned into the picture, or
// is empty for none.
type Request struct {
	Passage scripture.Passage
	Quality string
	Overlay string
}

// Delivery is one clip ready to hand to the caller.
type Delivery struct {
	Artifact scripture.Artifact
	Citation string
	CacheHit bool
	State    State
}

// Service satisfies passage requests.
type Service struct {
	ref            Reference
	markers        MarkerResolver
	cache          ArtifactCache
	seg            Segmenter
	media          MediaSource
	pub            Publisher
	defaultQuality string
	parallelism    int
	logger         *slog.Logger
}

// New constructs a passage service.
func New(cfg *config.Config, deps Dependencies, logger *slog.Logger) *Service {
	parallelism := cfg.Render.Parallelism
	if parallelism <= 0 {
		parallelism = 1
	}
	return &Service{
		ref:            deps.Reference,
		markers:        deps.Markers,
		cache:          deps.Cache,
		seg:            deps.Segmenter,
		media:          deps.Media,
		pub:            deps.Publisher,
		defaultQuality: strings.ToLower(strings.TrimSpace(cfg.Render.DefaultQuality)),
		parallelism:    parallelism,
		logger:         logging.NewComponentLogger(logger, "passage"),
	}
}

// Satisfy resolves, renders or reuses the clip for req.
func (s *Service) Satisfy(ctx context.Context, req Request) ([]Delivery, error) {
	p := req.Passage
	p.Verses = scripture.NormalizeVerses(p.Verses)
	if err := p.Validate(); err != nil {
		return nil, services.Wrap(services.ErrValidation, "passage", "validate", "", err)
	}
	if p.Chapter == 0 || len(p.Verses) == 0 {
		return nil, services.Wrap(services.ErrValidation, "passage", "validate", "", ErrVersesRequired)
	}

	ctx = services.WithPassage(ctx, p.Language, p.BookNumber, p.Chapter)
	tr := &tracker{logger: logging.WithContext(ctx, s.logger).With(
		logging.String(logging.FieldVerses, scripture.CanonicalVerses(p.Verses)),
	)}
	tr.enter(ctx, StateParsed)

	book, err := s.book(ctx, p.Language, p.BookNumber)
	if err != nil {
		return nil, tr.fail(ctx, err)
	}

	key := scripture.ChapterKey{Language: p.Language, Book: p.BookNumber, Chapter: p.Chapter}
	res, err := s.markers.Resolve(ctx, key)
	if err != nil {
		return nil, tr.fail(ctx, s.resolveError(ctx, key, err))
	}
	tr.enter(ctx, StateMetadataFresh, logging.String(logging.FieldChecksum, res.Chapter.Checksum))
	tr.enter(ctx, StateMarkersResolved,
		logging.String(logging.FieldTier, res.Tier.String()),
		logging.Int("markers", len(res.Markers)),
	)

	if err := citation.CheckVerses(p.Verses, res.Verses()); err != nil {
		return nil, tr.fail(ctx, services.Wrap(services.ErrValidation, "passage", "check verses", "", err))
	}

	quality := strings.ToLower(strings.TrimSpace(req.Quality))
	if quality == "" {
		quality = s.defaultQuality
	}
	j := &job{
		svc:       s,
		passage:   p,
		book:      *book,
		res:       res,
		quality:   quality,
		overlay:   strings.TrimSpace(req.Overlay),
		caption:   s.captionName(ctx, *book, req.Overlay),
		chapterID: key,
	}
	wholeKey := j.key(p.Verses)
	cit := citation.Format(book.Name, p.Chapter, p.Verses)

	a, hit, err := s.cache.Lookup(ctx, wholeKey)
	if err != nil {
		return nil, tr.fail(ctx, services.Wrap(services.ErrTransient, "passage", "cache lookup", "", err))
	}
	if !hit {
		a, hit, err = s.cache.Produce(ctx, wholeKey, j.render)
		if err != nil {
			return nil, tr.fail(ctx, renderError(err))
		}
	}
	state := StateRendered
	if hit {
		state = StateCacheHit
	}
	tr.enter(ctx, state, logging.String("handle", a.Handle.ID))
	tr.enter(ctx, StateDelivered)

	return []Delivery{{
		Artifact: a,
		Citation: cit,
		CacheHit: hit,
		State:    StateDelivered,
	}}, nil
}

func (s *Service) book(ctx context.Context, language string, number int) (*scripture.Book, error) {
	book, err := s.ref.GetBook(ctx, language, number)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "passage", "load book", "", err)
	}
	if book == nil {
		return nil, services.Wrap(services.ErrNotFound, "passage", "load book", "",
			&citation.BookNotFoundError{Alias: strconv.Itoa(number)})
	}
	return book, nil
}

// captionName returns the book name burned into overlays: the name in the
// overlay language when that edition is known, else the sign language name.
func (s *Service) captionName(ctx context.Context, book scripture.Book, overlay string) string {
	overlay = strings.TrimSpace(overlay)
	if overlay == "" || overlay == scripture.OverlayNone {
		return ""
	}
	if other, err := s.ref.GetBook(ctx, overlay, book.Number); err == nil && other != nil && other.Name != "" {
		return other.Name
	}
	return book.Name
}

func (s *Service) resolveError(ctx context.Context, key scripture.ChapterKey, err error) error {
	var (
		unavailable *markers.SourceUnavailableError
		probeFailed *markers.ProbeFailedError
	)
	switch {
	case errors.As(err, &unavailable):
		if chapters, cerr := s.AvailableChapters(ctx, key.Language, key.Book); cerr == nil && len(chapters) > 0 {
			if !containsInt(chapters, key.Chapter) {
				return services.Wrap(services.ErrNotFound, "passage", "resolve markers", "",
					citation.CheckChapter(key.Chapter, chapters[len(chapters)-1]))
			}
		}
		return services.Wrap(services.ErrNotFound, "passage", "resolve markers", "", err)
	case errors.Is(err, markers.ErrUnknownLanguage):
		return services.Wrap(services.ErrValidation, "passage", "resolve markers", "", err)
	case errors.As(err, &probeFailed):
		return services.Wrap(services.TimeoutMarker(err, services.ErrExternalTool), "passage", "resolve markers", "", err)
	default:
		return services.Wrap(services.TimeoutMarker(err, services.ErrTransient), "passage", "resolve markers", "", err)
	}
}

func renderError(err error) error {
	var (
		quality     *QualityUnavailableError
		segFailed   *segment.SegmentFailedError
		probeFailed *segment.ProbeFailedError
	)
	switch {
	case errors.As(err, &quality):
		return services.Wrap(services.ErrValidation, "passage", "render", "", err)
	case errors.As(err, &segFailed), errors.As(err, &probeFailed):
		return services.Wrap(services.TimeoutMarker(err, services.ErrExternalTool), "passage", "render", "", err)
	case errors.Is(err, artifact.ErrLockTimeout):
		return services.Wrap(services.ErrTimeout, "passage", "render", "", err)
	default:
		return services.Wrap(services.TimeoutMarker(err, services.ErrTransient), "passage", "render", "", err)
	}
}

// job carries the per-request state of a render.
type job struct {
	svc       *Service
	passage   scripture.Passage
	book      scripture.Book
	res       markers.Resolution
	quality   string
	overlay   string
	caption   string
	chapterID scripture.ChapterKey

	srcOnce sync.Once
	src     string
	srcErr  error
}

func (j *job) key(verses []int) artifact.Key {
	return artifact.NewKey(j.passage.Language, j.passage.BookNumber, j.res.Chapter.Checksum, verses, j.quality, j.overlay)
}

func (j *job) label(verses []int) string {
	return citation.Format(j.book.Name, j.passage.Chapter, verses)
}

// render produces the whole passage. A single verse is split directly;
// several verses are gathered one by one and joined.
func (j *job) render(ctx context.Context) (scripture.Artifact, error) {
	verses := j.passage.Verses
	if len(verses) == 1 {
		return j.single(ctx, verses[0])
	}

	clips := make([]*segment.Clip, len(verses))
	defer segment.CloseAll(clips)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.svc.parallelism)
	for i, v := range verses {
		i, v := i, v
		g.Go(func() error {
			clip, err := j.verseClip(gctx, v)
			clips[i] = clip
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return scripture.Artifact{}, err
	}

	titles := make([]string, len(verses))
	for i, v := range verses {
		titles[i] = j.verseTitle(v)
	}
	joined, err := j.svc.seg.Concatenate(ctx, clips, titles, j.label(verses))
	if err != nil {
		return scripture.Artifact{}, err
	}
	defer joined.Close()
	return j.publish(ctx, joined, j.key(verses), j.label(verses))
}

// verseClip returns a local copy of one verse, producing and backing it up in
// the cache when it is not stored yet.
func (j *job) verseClip(ctx context.Context, verse int) (*segment.Clip, error) {
	key := j.key([]int{verse})
	a, _, err := j.svc.cache.Produce(ctx, key, func(ctx context.Context) (scripture.Artifact, error) {
		return j.single(ctx, verse)
	})
	if err != nil {
		return nil, err
	}
	clip, err := j.svc.seg.Scratch(fmt.Sprintf("cached-%03d-*.mp4", verse))
	if err != nil {
		return nil, err
	}
	if err := j.svc.pub.Fetch(ctx, a.Handle, clip.Path); err != nil {
		_ = clip.Close()
		return nil, fmt.Errorf("fetch cached verse %d: %w", verse, err)
	}
	clip.Duration = a.Handle.Duration
	clip.Width, clip.Height = a.Handle.Width, a.Handle.Height
	return clip, nil
}

func (j *job) single(ctx context.Context, verse int) (scripture.Artifact, error) {
	src, err := j.source(ctx)
	if err != nil {
		return scripture.Artifact{}, err
	}
	marker, ok := j.res.Marker(verse)
	if !ok {
		return scripture.Artifact{}, citation.CheckVerses([]int{verse}, j.res.Verses())
	}
	clip, err := j.svc.seg.SplitOne(ctx, src, marker, j.overlayText(verse))
	if err != nil {
		return scripture.Artifact{}, err
	}
	defer clip.Close()
	return j.publish(ctx, clip, j.key([]int{verse}), j.label([]int{verse}))
}

func (j *job) publish(ctx context.Context, clip *segment.Clip, key artifact.Key, label string) (scripture.Artifact, error) {
	handle, err := j.svc.pub.Publish(ctx, clip.Path, publish.Metadata{
		Language: j.passage.Language,
		Book:     j.passage.BookNumber,
		Name:     key.Digest(),
		Label:    label,
		Duration: clip.Duration,
		Width:    clip.Width,
		Height:   clip.Height,
	})
	if err != nil {
		return scripture.Artifact{}, err
	}
	return scripture.Artifact{
		Key:     key.Record(),
		Chapter: j.passage.Chapter,
		Handle:  handle,
		Label:   label,
	}, nil
}

func (j *job) verseTitle(verse int) string {
	if m, ok := j.res.Marker(verse); ok && strings.TrimSpace(m.Label) != "" {
		return m.Label
	}
	return j.label([]int{verse})
}

func (j *job) overlayText(verse int) string {
	if j.caption == "" {
		return ""
	}
	return citation.Format(j.caption, j.passage.Chapter, []int{verse})
}

// source opens the chapter recording in the requested quality once per job.
func (j *job) source(ctx context.Context) (string, error) {
	j.srcOnce.Do(func() {
		j.src, j.srcErr = j.openSource(ctx)
	})
	return j.src, j.srcErr
}

func (j *job) openSource(ctx context.Context) (string, error) {
	doc := j.res.Document
	if doc == nil {
		fetched, err := j.svc.markers.Document(ctx, j.chapterID)
		if err != nil {
			return "", err
		}
		doc = &fetched
	}
	if rep, ok := doc.Representative(j.passage.Chapter); ok && rep.File.Checksum != j.res.Chapter.Checksum {
		return "", fmt.Errorf("chapter %s changed during render (checksum %s, now %s)",
			j.chapterID, j.res.Chapter.Checksum, rep.File.Checksum)
	}
	track, ok := doc.Match(j.passage.Chapter, j.quality)
	if !ok {
		return "", &QualityUnavailableError{Requested: j.quality, Available: doc.Qualities()}
	}
	return j.svc.media.Open(ctx, track.File.URL, track.File.Checksum)
}

type tracker struct {
	logger *slog.Logger
	state  State
}

func (t *tracker) enter(ctx context.Context, state State, attrs ...logging.Attr) {
	t.state = state
	args := append([]any{logging.String(logging.FieldState, state.String())}, logging.Args(attrs...)...)
	if state == StateDelivered {
		t.logger.InfoContext(ctx, "passage delivered", args...)
		return
	}
	t.logger.DebugContext(ctx, "passage state", args...)
}

func (t *tracker) fail(ctx context.Context, err error) error {
	t.logger.InfoContext(ctx, "passage request failed",
		logging.String(logging.FieldState, StateFailed.String()),
		logging.String("failed_after", t.state.String()),
		logging.String(logging.FieldEventType, "passage_failed"),
		logging.Error(err),
	)
	t.state = StateFailed
	return err
}

func containsInt(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
