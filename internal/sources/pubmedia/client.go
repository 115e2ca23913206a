package pubmedia

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"signverse/internal/config"
	"signverse/internal/logging"
)

// ErrNotFound reports that the API has no media for the requested book or
// track. Transport failures are returned as other errors.
var ErrNotFound = errors.New("publication media not found")

// HTTPDoer describes the HTTP client used by the API client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client queries the publication media API.
type Client struct {
	baseURL     string
	publication string
	userAgent   string
	client      HTTPDoer
	logger      *slog.Logger
}

// NewClient constructs a client from configuration.
func NewClient(cfg *config.Config, client HTTPDoer, logger *slog.Logger) *Client {
	if client == nil {
		client = &http.Client{Timeout: cfg.RequestTimeout()}
	}
	return &Client{
		baseURL:     strings.TrimSpace(cfg.Sources.PubMediaURL),
		publication: cfg.Sources.PublicationSymbol,
		userAgent:   cfg.Sources.UserAgent,
		client:      client,
		logger:      logging.NewComponentLogger(logger, "pubmedia"),
	}
}

// FetchChapterMedia returns the document listing every chapter of a book.
// language is the API's language symbol.
func (c *Client) FetchChapterMedia(ctx context.Context, language string, book int) (Document, error) {
	return c.fetch(ctx, language, book, 0)
}

// FetchSingleTrack returns the document for one chapter only.
func (c *Client) FetchSingleTrack(ctx context.Context, language string, book, chapter int) (Document, error) {
	if chapter <= 0 {
		return Document{}, fmt.Errorf("pubmedia: invalid chapter %d", chapter)
	}
	return c.fetch(ctx, language, book, chapter)
}

func (c *Client) fetch(ctx context.Context, language string, book, chapter int) (Document, error) {
	endpoint, err := c.endpoint(language, book, chapter)
	if err != nil {
		return Document{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Document{}, fmt.Errorf("build pubmedia request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Document{}, fmt.Errorf("pubmedia request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return Document{}, fmt.Errorf("%w: %s book %d track %d", ErrNotFound, language, book, chapter)
	case resp.StatusCode >= http.StatusMultipleChoices:
		return Document{}, fmt.Errorf("pubmedia returned %d", resp.StatusCode)
	}

	var doc Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("decode pubmedia response: %w", err)
	}
	doc.Language = language
	if len(doc.Tracks()) == 0 {
		return Document{}, fmt.Errorf("%w: %s book %d track %d has no playable files", ErrNotFound, language, book, chapter)
	}

	c.logger.DebugContext(ctx, "pubmedia document fetched",
		logging.String(logging.FieldLanguage, language),
		logging.Int(logging.FieldBook, book),
		logging.Int(logging.FieldChapter, chapter),
		logging.Int("tracks", len(doc.Tracks())),
	)
	return doc, nil
}

func (c *Client) endpoint(language string, book, chapter int) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse pubmedia url: %w", err)
	}
	q := u.Query()
	q.Set("output", "json")
	q.Set("pub", c.publication)
	q.Set("fileformat", "MP4")
	q.Set("alllangs", "0")
	q.Set("langwritten", language)
	q.Set("txtCMSLang", language)
	q.Set("booknum", strconv.Itoa(book))
	if chapter > 0 {
		q.Set("track", strconv.Itoa(chapter))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
