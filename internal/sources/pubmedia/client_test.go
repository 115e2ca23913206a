package pubmedia

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"signverse/internal/logging"
	"signverse/internal/testsupport"
)

const sampleDocument = `{
  "pubName": "Mateo",
  "booknum": 40,
  "files": {
    "LSE": {
      "MP4": [
        {"title": "Mateo&nbsp;5", "label": "240p", "track": 5, "hasTrack": true,
         "file": {"url": "https://cdn.example/nwt_40_Mt_LSE_05_r240P.mp4", "checksum": "low5", "modifiedDatetime": "2024-03-01T10:00:00Z"},
         "markers": null},
        {"title": "Mateo 5", "label": "720p", "track": 5, "hasTrack": true, "frameWidth": 1280, "frameHeight": 720,
         "file": {"url": "https://cdn.example/nwt_40_Mt_LSE_05_r720P.mp4", "checksum": "hi5", "modifiedDatetime": "2024-03-01T10:00:00Z"},
         "markers": {"markers": [
           {"verseNumber": 2, "label": "Mateo 5:2", "startTime": "00:00:10.500", "duration": "00:00:08.250", "endTransitionDuration": "00:00:00.400"},
           {"verseNumber": 1, "label": "Mateo 5:1", "startTime": "00:00:01.000", "duration": "00:00:09.000", "endTransitionDuration": "00:00:00.500"}
         ]}},
        {"title": "Mateo 6", "label": "1080p", "track": 6, "hasTrack": true,
         "file": {"url": "https://cdn.example/nwt_40_Mt_LSE_06_r1080P.mp4", "checksum": "hi6"}},
        {"title": "Mateo", "label": "720p", "track": 0, "hasTrack": false,
         "file": {"url": "https://cdn.example/nwt_40_Mt_LSE.zip", "checksum": "zip"}}
      ],
      "3GP": [
        {"title": "Mateo 5", "label": "144p", "track": 5, "hasTrack": true,
         "file": {"url": "https://cdn.example/nwt_40_Mt_LSE_05.3gp", "checksum": "3gp"}}
      ]
    }
  }
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	cfg := testsupport.NewConfig(t, testsupport.WithSourceURLs(server.URL+"/GETPUBMEDIALINKS", ""))
	return NewClient(cfg, server.Client(), logging.NewNop())
}

func TestFetchSingleTrackDecodesDocument(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("langwritten") != "LSE" || q.Get("booknum") != "40" || q.Get("track") != "5" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(sampleDocument))
	})

	doc, err := client.FetchSingleTrack(context.Background(), "LSE", 40, 5)
	if err != nil {
		t.Fatalf("FetchSingleTrack: %v", err)
	}
	if got := doc.Qualities(); len(got) != 3 || got[0] != "240p" || got[2] != "1080p" {
		t.Fatalf("unexpected qualities %v", got)
	}
	if doc.BestQuality() != "1080p" || doc.LowestQuality() != "240p" {
		t.Fatalf("unexpected best/lowest %q/%q", doc.BestQuality(), doc.LowestQuality())
	}
	if chapters := doc.Chapters(); len(chapters) != 2 || chapters[0] != 5 || chapters[1] != 6 {
		t.Fatalf("unexpected chapters %v", chapters)
	}

	rep, ok := doc.Representative(5)
	if !ok || rep.File.Checksum != "hi5" {
		t.Fatalf("expected 720p representative, got %#v", rep)
	}
	ch := rep.Chapter("LSE", 40)
	if ch.Number != 5 || ch.Title != "Mateo 5" || ch.ModifiedAt.IsZero() {
		t.Fatalf("unexpected chapter %#v", ch)
	}

	markers, ok := rep.VideoMarkers()
	if !ok || len(markers) != 2 {
		t.Fatalf("expected 2 markers, got %v", markers)
	}
	if markers[0].VerseNumber != 1 || markers[1].StartTime != 10500*time.Millisecond || markers[1].EndTransitionDuration != 400*time.Millisecond {
		t.Fatalf("unexpected markers %#v", markers)
	}

	if low, ok := doc.Match(5, "240p"); !ok {
		t.Fatal("expected 240p match")
	} else if _, has := low.VideoMarkers(); has {
		t.Fatal("expected no markers on 240p track")
	}
}

func TestFetchReportsNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	_, err := client.FetchChapterMedia(context.Background(), "LSE", 40)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFetchTreatsMissingLanguageAsNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"pubName":"Mateo","files":{"ASL":{}}}`))
	})
	_, err := client.FetchChapterMedia(context.Background(), "LSE", 40)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFetchSurfacesServerErrors(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := client.FetchChapterMedia(context.Background(), "LSE", 40)
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestChapterFromURL(t *testing.T) {
	if got := ChapterFromURL("https://cdn.example/a/nwt_40_Mt_LSE_05_r720P.mp4"); got != 5 {
		t.Fatalf("ChapterFromURL = %d", got)
	}
	if got := ChapterFromURL("https://cdn.example/other.mp4"); got != 0 {
		t.Fatalf("expected 0 for unknown layout, got %d", got)
	}
}

func TestPartialMarkersAreNotTrustedButKeepTransitions(t *testing.T) {
	track := Track{Markers: &MarkerSet{Markers: []Marker{
		{VerseNumber: 1, StartTime: "00:00:01.000", Duration: "00:00:05.000", EndTransitionDuration: "00:00:00.300"},
		{VerseNumber: 2, StartTime: "", Duration: "00:00:05.000", EndTransitionDuration: "00:00:00.700"},
	}}}
	if _, ok := track.VideoMarkers(); ok {
		t.Fatal("expected partial marker set to be rejected")
	}
	transitions := track.EndTransitions()
	if transitions[1] != 300*time.Millisecond || transitions[2] != 700*time.Millisecond {
		t.Fatalf("unexpected transitions %v", transitions)
	}
}
