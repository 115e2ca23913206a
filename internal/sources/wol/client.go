package wol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/antchfx/htmlquery"
	"golang.org/x/time/rate"

	"signverse/internal/config"
	"signverse/internal/logging"
	"signverse/internal/scripture"
)

// ErrNoMarkers reports a page without usable marker data.
var ErrNoMarkers = errors.New("no video markers on page")

const markerXPath = `//input[@id="videoMarkers"]`

// Locale carries the routing tokens of a language on the web site.
type Locale struct {
	Locale string
	RSConf string
	Lib    string
}

// LocaleOf extracts the routing tokens of a language.
func LocaleOf(lang scripture.Language) Locale {
	return Locale{Locale: lang.Locale, RSConf: lang.RSConf, Lib: lang.Lib}
}

// RawMarker is one scraped marker. The page carries no end transition.
type RawMarker struct {
	Verse     int
	StartTime time.Duration
	Duration  time.Duration
}

// HTTPDoer describes the HTTP client used for scraping.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client fetches and parses marker pages.
type Client struct {
	pageURL   string
	userAgent string
	client    HTTPDoer
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// NewClient constructs a scraper from configuration.
func NewClient(cfg *config.Config, client HTTPDoer, logger *slog.Logger) *Client {
	if client == nil {
		client = &http.Client{Timeout: cfg.RequestTimeout()}
	}
	limit := rate.Inf
	if cfg.Sources.ScrapeRatePerSecond > 0 {
		limit = rate.Limit(cfg.Sources.ScrapeRatePerSecond)
	}
	burst := cfg.Sources.ScrapeBurst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		pageURL:   cfg.Sources.MarkerPageURL,
		userAgent: cfg.Sources.UserAgent,
		client:    client,
		limiter:   rate.NewLimiter(limit, burst),
		logger:    logging.NewComponentLogger(logger, "wol"),
	}
}

// FetchMarkerPage returns the markers published for a chapter, ordered by
// verse. It returns ErrNoMarkers when the page has none.
func (c *Client) FetchMarkerPage(ctx context.Context, loc Locale, book, chapter int) ([]RawMarker, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wol rate limit: %w", err)
	}
	pageURL := c.buildURL(loc, book, chapter)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build wol request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wol request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNoMarkers
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("wol returned %d", resp.StatusCode)
	}

	doc, err := htmlquery.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse wol page: %w", err)
	}
	node, err := htmlquery.Query(doc, markerXPath)
	if err != nil {
		return nil, fmt.Errorf("query wol page: %w", err)
	}
	if node == nil {
		return nil, ErrNoMarkers
	}
	payload := strings.TrimSpace(htmlquery.SelectAttr(node, "data-json-markers"))
	if payload == "" {
		return nil, ErrNoMarkers
	}

	markers, err := ParseMarkers([]byte(payload))
	if err != nil {
		return nil, err
	}
	c.logger.DebugContext(ctx, "wol markers scraped",
		logging.Int(logging.FieldBook, book),
		logging.Int(logging.FieldChapter, chapter),
		logging.Int("markers", len(markers)),
	)
	return markers, nil
}

func (c *Client) buildURL(loc Locale, book, chapter int) string {
	return strings.NewReplacer(
		"{locale}", loc.Locale,
		"{rsconf}", loc.RSConf,
		"{lib}", loc.Lib,
		"{book}", strconv.Itoa(book),
		"{chapter}", strconv.Itoa(chapter),
	).Replace(c.pageURL)
}

type rawEntry struct {
	Verse     flexString `json:"verse"`
	StartTime flexString `json:"startTime"`
	Duration  flexString `json:"duration"`
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// ParseMarkers decodes a marker payload, which is either a JSON list or an
// object keyed by list index ("0", "1", ...). Entries with unusable values
// are skipped; an empty result is ErrNoMarkers.
func ParseMarkers(payload []byte) ([]RawMarker, error) {
	var entries []rawEntry
	if err := json.Unmarshal(payload, &entries); err != nil {
		var keyed map[string]rawEntry
		if errMap := json.Unmarshal(payload, &keyed); errMap != nil {
			return nil, fmt.Errorf("decode wol markers: %w", err)
		}
		keys := make([]string, 0, len(keyed))
		for k := range keyed {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			a, errA := strconv.Atoi(keys[i])
			b, errB := strconv.Atoi(keys[j])
			if errA != nil || errB != nil {
				return keys[i] < keys[j]
			}
			return a < b
		})
		entries = make([]rawEntry, 0, len(keys))
		for _, k := range keys {
			entries = append(entries, keyed[k])
		}
	}

	out := make([]RawMarker, 0, len(entries))
	for _, e := range entries {
		verse, err := strconv.Atoi(strings.TrimSpace(string(e.Verse)))
		if err != nil || verse <= 0 {
			continue
		}
		start, err := scripture.ParseTimecode(string(e.StartTime))
		if err != nil {
			continue
		}
		dur, err := scripture.ParseTimecode(string(e.Duration))
		if err != nil || dur <= 0 {
			continue
		}
		out = append(out, RawMarker{Verse: verse, StartTime: start, Duration: dur})
	}
	if len(out) == 0 {
		return nil, ErrNoMarkers
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Verse < out[j].Verse })
	return out, nil
}
