package wol

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"signverse/internal/logging"
	"signverse/internal/testsupport"
)

func markerPage(payload string) string {
	return fmt.Sprintf(`<!DOCTYPE html><html><body>
<div id="content"><input type="hidden" id="videoMarkers" data-json-markers="%s"/></div>
</body></html>`, html.EscapeString(payload))
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	cfg := testsupport.NewConfig(t, testsupport.WithSourceURLs("", server.URL+"/{locale}/wol/b/{rsconf}/{lib}/nwtsty/{book}/{chapter}"))
	cfg.Sources.ScrapeRatePerSecond = 0
	return NewClient(cfg, server.Client(), logging.NewNop())
}

func TestFetchMarkerPageParsesList(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ase/wol/b/r1/lp-ase/nwtsty/40/5" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(markerPage(`[{"verse":"2","startTime":"00:00:10.5","duration":"8.25"},{"verse":1,"startTime":1.0,"duration":9}]`)))
	})

	markers, err := client.FetchMarkerPage(context.Background(), Locale{Locale: "ase", RSConf: "r1", Lib: "lp-ase"}, 40, 5)
	if err != nil {
		t.Fatalf("FetchMarkerPage: %v", err)
	}
	if len(markers) != 2 || markers[0].Verse != 1 || markers[1].StartTime != 10500*time.Millisecond || markers[1].Duration != 8250*time.Millisecond {
		t.Fatalf("unexpected markers %#v", markers)
	}
}

func TestFetchMarkerPageWithoutMarkers(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><p>nothing here</p></body></html>`))
	})
	_, err := client.FetchMarkerPage(context.Background(), Locale{}, 40, 5)
	if !errors.Is(err, ErrNoMarkers) {
		t.Fatalf("expected ErrNoMarkers, got %v", err)
	}
}

func TestParseMarkersKeyedByIndex(t *testing.T) {
	markers, err := ParseMarkers([]byte(`{"10":{"verse":11,"startTime":"50","duration":"4"},"2":{"verse":3,"startTime":"10","duration":"5"},"0":{"verse":1,"startTime":"0","duration":"5"}}`))
	if err != nil {
		t.Fatalf("ParseMarkers: %v", err)
	}
	if len(markers) != 3 || markers[0].Verse != 1 || markers[1].Verse != 3 || markers[2].Verse != 11 {
		t.Fatalf("unexpected order %#v", markers)
	}
}

func TestParseMarkersRejectsGarbage(t *testing.T) {
	if _, err := ParseMarkers([]byte(`"nope"`)); err == nil || errors.Is(err, ErrNoMarkers) {
		t.Fatalf("expected decode error, got %v", err)
	}
	if _, err := ParseMarkers([]byte(`[{"verse":"x","startTime":"1","duration":"1"}]`)); !errors.Is(err, ErrNoMarkers) {
		t.Fatalf("expected ErrNoMarkers, got %v", err)
	}
}
