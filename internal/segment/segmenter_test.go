package segment

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"signverse/internal/config"
	"signverse/internal/logging"
	"signverse/internal/scripture"
	"signverse/internal/testsupport"
)

const recordingFFmpeg = `#!/bin/sh
echo "$@" >> "$(dirname "$0")/ffmpeg.args"
for last; do :; done
printf 'rendered' > "$last"
`

const fixedFFprobe = `#!/bin/sh
cat <<'JSON'
{"streams":[{"index":0,"codec_type":"video","codec_name":"h264","width":1280,"height":720}],
 "format":{"duration":"4.500000","size":"2048"}}
JSON
`

func newSegmenter(t *testing.T, ffmpegScript string) (*Segmenter, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t,
		testsupport.WithStubScript("ffmpeg", ffmpegScript),
		testsupport.WithStubScript("ffprobe", fixedFFprobe),
	)
	return New(cfg, logging.NewNop()), cfg
}

func writeSource(t *testing.T, cfg *config.Config) string {
	t.Helper()
	path := filepath.Join(cfg.Paths.MediaDir, "chapter.mp4")
	testsupport.WriteFile(t, path, 1024)
	return path
}

func recordedArgs(t *testing.T, cfg *config.Config) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(filepath.Dir(cfg.Render.FFmpegBinary), "ffmpeg.args"))
	if err != nil {
		t.Fatalf("read recorded args: %v", err)
	}
	return string(data)
}

func TestSplitOneCutsMarkerRange(t *testing.T) {
	seg, cfg := newSegmenter(t, recordingFFmpeg)
	src := writeSource(t, cfg)

	clip, err := seg.SplitOne(context.Background(), src, scripture.VideoMarker{
		VerseNumber:           3,
		StartTime:             12500 * time.Millisecond,
		Duration:              9 * time.Second,
		EndTransitionDuration: 400 * time.Millisecond,
	}, "")
	if err != nil {
		t.Fatalf("SplitOne: %v", err)
	}
	defer clip.Close()

	args := recordedArgs(t, cfg)
	if !strings.Contains(args, "-ss 12.500 -i "+src+" -t 9.400") {
		t.Fatalf("unexpected ffmpeg args: %s", args)
	}
	if strings.Contains(args, "drawtext") {
		t.Fatalf("no overlay expected: %s", args)
	}
	if clip.Width != 1280 || clip.Height != 720 || clip.Duration != 4500*time.Millisecond {
		t.Fatalf("unexpected clip %#v", clip)
	}
	if clip.Size() == 0 {
		t.Fatalf("expected clip file to exist")
	}

	if err := clip.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(clip.Path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected clip to be removed, stat err=%v", err)
	}
	if err := clip.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestSplitOneBurnsOverlay(t *testing.T) {
	seg, cfg := newSegmenter(t, recordingFFmpeg)
	src := writeSource(t, cfg)

	clip, err := seg.SplitOne(context.Background(), src, scripture.VideoMarker{
		VerseNumber: 1,
		StartTime:   time.Second,
		Duration:    2 * time.Second,
	}, "Mateo 5:1")
	if err != nil {
		t.Fatalf("SplitOne: %v", err)
	}
	defer clip.Close()

	if args := recordedArgs(t, cfg); !strings.Contains(args, "drawtext=") || !strings.Contains(args, "text='Mateo 5:1'") {
		t.Fatalf("expected drawtext overlay, got %s", args)
	}
}

func TestSplitOneFailuresLeaveNoFiles(t *testing.T) {
	tests := []struct {
		name   string
		script string
		stderr string
	}{
		{name: "non-zero exit", script: "#!/bin/sh\necho 'Invalid data found when processing input' >&2\nexit 1\n", stderr: "Invalid data"},
		{name: "empty output", script: "#!/bin/sh\nexit 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seg, cfg := newSegmenter(t, tt.script)
			src := writeSource(t, cfg)

			_, err := seg.SplitOne(context.Background(), src, scripture.VideoMarker{VerseNumber: 1, Duration: time.Second}, "")
			var segErr *SegmentFailedError
			if !errors.As(err, &segErr) {
				t.Fatalf("expected SegmentFailedError, got %v", err)
			}
			if tt.stderr != "" && !strings.Contains(segErr.Stderr, tt.stderr) {
				t.Fatalf("expected stderr tail, got %q", segErr.Stderr)
			}
			entries, _ := os.ReadDir(filepath.Join(cfg.Paths.WorkDir, "clips"))
			if len(entries) != 0 {
				t.Fatalf("expected partial output to be removed, found %d files", len(entries))
			}
		})
	}
}

func TestSplitOneRejectsUnreadableOutput(t *testing.T) {
	tests := []struct {
		name    string
		ffprobe string
	}{
		{name: "ffprobe fails", ffprobe: "#!/bin/sh\necho 'Invalid data found when processing input' >&2\nexit 1\n"},
		{name: "zero duration", ffprobe: "#!/bin/sh\necho '{\"streams\":[],\"format\":{\"duration\":\"0\"}}'\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testsupport.NewConfig(t,
				testsupport.WithStubScript("ffmpeg", recordingFFmpeg),
				testsupport.WithStubScript("ffprobe", tt.ffprobe),
			)
			seg := New(cfg, logging.NewNop())
			src := writeSource(t, cfg)

			clip, err := seg.SplitOne(context.Background(), src, scripture.VideoMarker{VerseNumber: 1, Duration: time.Second}, "")
			var probeErr *ProbeFailedError
			if !errors.As(err, &probeErr) {
				t.Fatalf("expected ProbeFailedError, got clip=%#v err=%v", clip, err)
			}
			if clip != nil {
				t.Fatalf("expected no clip, got %#v", clip)
			}
			if _, err := os.Stat(probeErr.Path); !errors.Is(err, os.ErrNotExist) {
				t.Fatalf("expected unreadable output to be removed, stat err=%v", err)
			}
		})
	}
}

func TestSplitOneMissingSource(t *testing.T) {
	seg, cfg := newSegmenter(t, recordingFFmpeg)
	_, err := seg.SplitOne(context.Background(), filepath.Join(cfg.Paths.MediaDir, "absent.mp4"), scripture.VideoMarker{VerseNumber: 1, Duration: time.Second}, "")
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestConcatenateWritesChapters(t *testing.T) {
	seg, cfg := newSegmenter(t, recordingFFmpeg)

	var clips []*Clip
	for i := 0; i < 2; i++ {
		c, err := seg.Scratch("input-*.mp4")
		if err != nil {
			t.Fatalf("Scratch: %v", err)
		}
		clips = append(clips, c)
	}
	defer CloseAll(clips)

	out, err := seg.Concatenate(context.Background(), clips, []string{"Mateo 5:1", "Mateo 5:2"}, "Mateo 5:1, 2")
	if err != nil {
		t.Fatalf("Concatenate: %v", err)
	}
	defer out.Close()

	args := recordedArgs(t, cfg)
	if !strings.Contains(args, "-f concat -safe 0") || !strings.Contains(args, "-map_chapters 1") {
		t.Fatalf("unexpected concat args: %s", args)
	}
	entries, _ := os.ReadDir(filepath.Join(cfg.Paths.WorkDir, "clips"))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".txt") {
			t.Fatalf("expected list and metadata files to be removed, found %s", e.Name())
		}
	}

	if _, err := seg.Concatenate(context.Background(), clips, []string{"only one"}, "x"); err == nil {
		t.Fatalf("expected mismatched titles to fail")
	}
}

const chapterCopyFFmpeg = `#!/bin/sh
for arg; do
	case "$arg" in
	*chapters-*.txt) cp "$arg" "$(dirname "$0")/chapters.meta" ;;
	esac
	last="$arg"
done
printf 'rendered' > "$last"
`

// Inputs report one second each; the joined output reports the sum.
const perClipFFprobe = `#!/bin/sh
for last; do :; done
case "$last" in
*passage-*) duration="3.000000" ;;
*) duration="1.000000" ;;
esac
echo "{\"streams\":[{\"index\":0,\"codec_type\":\"video\",\"width\":640,\"height\":360}],\"format\":{\"duration\":\"$duration\"}}"
`

func TestConcatenateDurationMatchesInputs(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithStubScript("ffmpeg", chapterCopyFFmpeg),
		testsupport.WithStubScript("ffprobe", perClipFFprobe),
	)
	seg := New(cfg, logging.NewNop())

	const n = 3
	var clips []*Clip
	titles := make([]string, 0, n)
	for i := range n {
		c, err := seg.Scratch("input-*.mp4")
		if err != nil {
			t.Fatalf("Scratch: %v", err)
		}
		clips = append(clips, c)
		titles = append(titles, fmt.Sprintf("Mateo 5:%d", i+1))
	}
	defer CloseAll(clips)

	out, err := seg.Concatenate(context.Background(), clips, titles, "Mateo 5:1-3")
	if err != nil {
		t.Fatalf("Concatenate: %v", err)
	}
	defer out.Close()

	const epsilon = 50 * time.Millisecond
	if diff := out.Duration - n*time.Second; diff < -epsilon || diff > epsilon {
		t.Fatalf("expected about %ds, got %s", n, out.Duration)
	}

	data, err := os.ReadFile(filepath.Join(filepath.Dir(cfg.Render.FFmpegBinary), "chapters.meta"))
	if err != nil {
		t.Fatalf("read chapter metadata: %v", err)
	}
	var starts, ends []int64
	for _, line := range strings.Split(string(data), "\n") {
		key, value, ok := strings.Cut(line, "=")
		if !ok || (key != "START" && key != "END") {
			continue
		}
		v, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			t.Fatalf("parse %q: %v", line, err)
		}
		if key == "START" {
			starts = append(starts, v)
		} else {
			ends = append(ends, v)
		}
	}
	if len(starts) != n || len(ends) != n {
		t.Fatalf("expected %d chapters, got starts=%v ends=%v", n, starts, ends)
	}
	var prev int64
	for i := range n {
		if starts[i] != prev || ends[i]-starts[i] != 1000 {
			t.Fatalf("chapter %d spans %d-%d, want %d-%d", i, starts[i], ends[i], prev, prev+1000)
		}
		prev = ends[i]
	}
	if got := time.Duration(prev) * time.Millisecond; got != n*time.Second {
		t.Fatalf("chapters cover %s, want %ds", got, n)
	}
}

func TestChapterMetadata(t *testing.T) {
	got := chapterMetadata("Mateo 5:1, 2", []string{"Mateo 5:1", "Mateo 5:2"}, []time.Duration{4500 * time.Millisecond, 3250 * time.Millisecond})
	want := ";FFMETADATA1\n" +
		"title=Mateo 5:1, 2\n" +
		"\n[CHAPTER]\nTIMEBASE=1/1000\nSTART=0\nEND=4500\ntitle=Mateo 5:1\n" +
		"\n[CHAPTER]\nTIMEBASE=1/1000\nSTART=4500\nEND=7750\ntitle=Mateo 5:2\n"
	if got != want {
		t.Fatalf("unexpected metadata:\n%s\nwant:\n%s", got, want)
	}
	if esc := escapeMetadata("a=b;c#d"); esc != `a\=b\;c\#d` {
		t.Fatalf("unexpected escape %q", esc)
	}
}

func TestConcatListQuotesPaths(t *testing.T) {
	got := concatList([]string{"/tmp/a.mp4", "/tmp/it's.mp4"})
	want := "file '/tmp/a.mp4'\nfile '/tmp/it'\\''s.mp4'\n"
	if got != want {
		t.Fatalf("unexpected list %q", got)
	}
}

func TestThumbnailAndStreamInfo(t *testing.T) {
	seg, _ := newSegmenter(t, recordingFFmpeg)
	clip, err := seg.Scratch("input-*.mp4")
	if err != nil {
		t.Fatalf("Scratch: %v", err)
	}
	defer clip.Close()

	thumb, err := seg.Thumbnail(context.Background(), clip)
	if err != nil {
		t.Fatalf("Thumbnail: %v", err)
	}
	defer os.Remove(thumb)
	if filepath.Ext(thumb) != ".jpg" {
		t.Fatalf("unexpected thumbnail path %s", thumb)
	}

	info, err := seg.ProbeStreams(context.Background(), clip.Path)
	if err != nil {
		t.Fatalf("ProbeStreams: %v", err)
	}
	if info.RoundedSeconds() != 5 || info.Width != 1280 {
		t.Fatalf("unexpected rounded seconds %d", info.RoundedSeconds())
	}
	if (StreamInfo{Duration: 2600 * time.Millisecond}).RoundedSeconds() != 3 {
		t.Fatalf("expected 2.6s to round to 3")
	}
}
