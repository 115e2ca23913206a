package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"signverse/internal/testsupport"
)

func TestCheckDirectoryAccess(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
		want bool
	}{
		{name: "temp dir", path: t.TempDir(), want: true},
		{name: "missing", path: filepath.Join(t.TempDir(), "nope")},
		{name: "file", path: file},
		{name: "unset", path: " "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CheckDirectoryAccess("test", tt.path)
			if result.Passed != tt.want {
				t.Fatalf("Passed = %v, want %v (%s)", result.Passed, tt.want, result.Detail)
			}
			if result.Detail == "" {
				t.Fatal("expected non-empty detail")
			}
		})
	}
}

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()
	if result := CheckFreeSpace("space", dir, 0); !result.Passed {
		t.Fatalf("expected pass with zero minimum, got: %s", result.Detail)
	}
	if result := CheckFreeSpace("space", dir, 1<<30); result.Passed {
		t.Fatalf("expected failure for an impossible minimum, got: %s", result.Detail)
	}
	if result := CheckFreeSpace("space", filepath.Join(dir, "missing"), 0); result.Passed {
		t.Fatal("expected failure for missing path")
	}
}

func TestCheckDatabase(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure dirs: %v", err)
	}

	empty := CheckDatabase(context.Background(), cfg.DatabasePath())
	if empty.Passed || !strings.Contains(empty.Detail, "books import") {
		t.Fatalf("expected empty database to fail with import hint, got: %+v", empty)
	}

	st := testsupport.MustOpenStore(t, cfg)
	testsupport.SeedReference(t, st)
	st.Close()

	seeded := CheckDatabase(context.Background(), cfg.DatabasePath())
	if !seeded.Passed || !strings.Contains(seeded.Detail, "1 languages") {
		t.Fatalf("expected seeded database to pass, got: %+v", seeded)
	}
}

func TestCheckEndpoint(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	result := CheckEndpoint(context.Background(), "Publication media", srv.URL+"/apis/pub-media/GETPUBMEDIALINKS")
	if !result.Passed || !result.Optional {
		t.Fatalf("expected optional pass for 404, got: %+v", result)
	}
	if len(paths) != 1 || paths[0] != "/" {
		t.Fatalf("expected request to the host root, got %v", paths)
	}

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer broken.Close()
	if result := CheckEndpoint(context.Background(), "broken", broken.URL); result.Passed {
		t.Fatalf("expected failure for 502, got: %+v", result)
	}
	if result := CheckEndpoint(context.Background(), "invalid", "not a url"); result.Passed {
		t.Fatal("expected failure for invalid url")
	}
}

func TestRunAllAndFailed(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure dirs: %v", err)
	}
	cfg.Render.MinFreeGiB = 0

	results := RunAll(context.Background(), cfg)
	names := make(map[string]Result, len(results))
	for _, r := range results {
		names[r.Name] = r
	}
	for _, want := range []string{"Data directory", "Media free space", "Database", "FFmpeg", "FFprobe"} {
		if _, ok := names[want]; !ok {
			t.Fatalf("missing check %q in %+v", want, results)
		}
	}

	failed := Failed(results)
	if len(failed) != 1 || failed[0].Name != "Database" {
		t.Fatalf("expected only the empty database to fail, got %+v", failed)
	}
	if RunAll(context.Background(), nil) != nil {
		t.Fatal("expected nil results for nil config")
	}
}
