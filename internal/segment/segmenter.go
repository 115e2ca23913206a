package segment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"signverse/internal/config"
	"signverse/internal/logging"
	"signverse/internal/media/ffprobe"
	"signverse/internal/scripture"
)

// stderrTail bounds how much ffmpeg output is kept in errors.
const stderrTail = 600

// commandRunner executes a binary and returns its combined output.
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// StreamInfo describes the video stream of a clip.
type StreamInfo struct {
	Width    int
	Height   int
	Duration time.Duration
}

// RoundedSeconds returns the duration rounded to whole seconds for display.
func (s StreamInfo) RoundedSeconds() int {
	return int(math.Round(s.Duration.Seconds()))
}

// Segmenter runs ffmpeg to cut and join clips.
type Segmenter struct {
	ffmpeg  string
	ffprobe string
	workDir string
	font    string
	timeout time.Duration
	logger  *slog.Logger
	run     commandRunner
}

// New builds a segmenter from the render configuration.
func New(cfg *config.Config, logger *slog.Logger) *Segmenter {
	return &Segmenter{
		ffmpeg:  binaryOrDefault(cfg.Render.FFmpegBinary, "ffmpeg"),
		ffprobe: binaryOrDefault(cfg.Render.FFprobeBinary, "ffprobe"),
		workDir: filepath.Join(cfg.Paths.WorkDir, "clips"),
		font:    strings.TrimSpace(cfg.Render.OverlayFont),
		timeout: cfg.RenderTimeout(),
		logger:  logging.NewComponentLogger(logger, "segment"),
		run:     defaultCommandRunner,
	}
}

// Scratch creates an empty clip file the caller can fill, for example with a
// cached clip fetched back from the publisher.
func (s *Segmenter) Scratch(pattern string) (*Clip, error) {
	path, err := s.tempFile(pattern)
	if err != nil {
		return nil, err
	}
	return &Clip{Path: path}, nil
}

// SplitOne cuts the verse described by marker out of src. The cut spans the
// verse duration plus its end transition. A non-empty overlay is burned into
// the picture.
func (s *Segmenter) SplitOne(ctx context.Context, src string, marker scripture.VideoMarker, overlay string) (*Clip, error) {
	if _, err := os.Stat(src); err != nil {
		return nil, &SegmentFailedError{Op: "split", Source: src, Err: err}
	}
	length := marker.Duration + marker.EndTransitionDuration
	if length <= 0 {
		return nil, &SegmentFailedError{Op: "split", Source: src, Err: fmt.Errorf("verse %d has no duration", marker.VerseNumber)}
	}

	out, err := s.tempFile(fmt.Sprintf("verse-%03d-*.mp4", marker.VerseNumber))
	if err != nil {
		return nil, err
	}
	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-ss", scripture.FormatSeconds(marker.StartTime),
		"-i", src,
		"-t", scripture.FormatSeconds(length),
		"-map", "0:v:0", "-map", "0:a?",
	}
	if filter := s.drawtext(overlay); filter != "" {
		args = append(args, "-vf", filter)
	}
	args = append(args,
		"-c:v", "libx264", "-preset", "veryfast", "-crf", "23",
		"-c:a", "aac",
		"-movflags", "+faststart",
		out,
	)

	s.logger.DebugContext(ctx, "splitting verse",
		logging.Int("verse", marker.VerseNumber),
		logging.Duration("start", marker.StartTime),
		logging.Duration("length", length),
		logging.Bool("overlay", overlay != ""),
	)
	if err := s.exec(ctx, "split", src, out, s.ffmpeg, args...); err != nil {
		return nil, err
	}
	return s.finish(ctx, out, length)
}

// Concatenate joins clips in order into one clip carrying a chapter entry per
// input, titled with titles[i], and a global title.
func (s *Segmenter) Concatenate(ctx context.Context, clips []*Clip, titles []string, outTitle string) (*Clip, error) {
	if len(clips) == 0 {
		return nil, &SegmentFailedError{Op: "concat", Err: errors.New("no clips to join")}
	}
	if len(titles) != len(clips) {
		return nil, &SegmentFailedError{Op: "concat", Err: fmt.Errorf("%d titles for %d clips", len(titles), len(clips))}
	}

	durations := make([]time.Duration, len(clips))
	paths := make([]string, len(clips))
	for i, c := range clips {
		info, err := s.ProbeStreams(ctx, c.Path)
		if err != nil {
			return nil, err
		}
		durations[i] = info.Duration
		paths[i] = c.Path
	}

	listPath, err := s.tempFile("concat-*.txt")
	if err != nil {
		return nil, err
	}
	defer os.Remove(listPath)
	if err := os.WriteFile(listPath, []byte(concatList(paths)), 0o644); err != nil {
		return nil, fmt.Errorf("write concat list: %w", err)
	}

	metaPath, err := s.tempFile("chapters-*.txt")
	if err != nil {
		return nil, err
	}
	defer os.Remove(metaPath)
	if err := os.WriteFile(metaPath, []byte(chapterMetadata(outTitle, titles, durations)), 0o644); err != nil {
		return nil, fmt.Errorf("write chapter metadata: %w", err)
	}

	out, err := s.tempFile("passage-*.mp4")
	if err != nil {
		return nil, err
	}
	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-f", "concat", "-safe", "0", "-i", listPath,
		"-i", metaPath,
		"-map", "0",
		"-map_metadata", "1",
		"-map_chapters", "1",
		"-c", "copy",
		"-movflags", "+faststart",
		out,
	}
	if err := s.exec(ctx, "concat", listPath, out, s.ffmpeg, args...); err != nil {
		return nil, err
	}

	var total time.Duration
	for _, d := range durations {
		total += d
	}
	return s.finish(ctx, out, total)
}

// ProbeStreams inspects path and reports its video geometry and duration.
func (s *Segmenter) ProbeStreams(ctx context.Context, path string) (StreamInfo, error) {
	tctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result, err := ffprobe.Inspect(tctx, s.ffprobe, path)
	if err != nil {
		return StreamInfo{}, &ProbeFailedError{Path: path, Err: err}
	}
	info := StreamInfo{Duration: time.Duration(result.DurationSeconds() * float64(time.Second))}
	if stream, ok := result.FirstVideoStream(); ok {
		info.Width = stream.Width
		info.Height = stream.Height
	}
	return info, nil
}

// Thumbnail extracts the first frame of clip as a jpeg next to it and returns
// its path. The caller removes the file.
func (s *Segmenter) Thumbnail(ctx context.Context, clip *Clip) (string, error) {
	out, err := s.tempFile("thumb-*.jpg")
	if err != nil {
		return "", err
	}
	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", clip.Path,
		"-frames:v", "1",
		"-q:v", "3",
		out,
	}
	if err := s.exec(ctx, "thumbnail", clip.Path, out, s.ffmpeg, args...); err != nil {
		return "", err
	}
	if err := nonEmpty(out); err != nil {
		_ = os.Remove(out)
		return "", &SegmentFailedError{Op: "thumbnail", Source: clip.Path, Err: err}
	}
	return out, nil
}

func (s *Segmenter) finish(ctx context.Context, out string, expected time.Duration) (*Clip, error) {
	if err := nonEmpty(out); err != nil {
		_ = os.Remove(out)
		return nil, &SegmentFailedError{Op: "verify", Source: out, Err: err}
	}
	info, err := s.ProbeStreams(ctx, out)
	if err == nil && info.Duration <= 0 {
		err = &ProbeFailedError{Path: out, Err: errors.New("output reports no duration")}
	}
	if err != nil {
		_ = os.Remove(out)
		logging.WarnWithContext(s.logger, "rendered clip is unreadable", "clip_probe_failed",
			logging.String("path", out),
			logging.Duration("expected", expected),
			logging.String(logging.FieldErrorHint, "check the ffprobe binary configured under render and the source recording"),
			logging.String(logging.FieldImpact, "clip discarded"),
			logging.Error(err),
		)
		return nil, err
	}
	return &Clip{Path: out, Duration: info.Duration, Width: info.Width, Height: info.Height}, nil
}

func (s *Segmenter) exec(ctx context.Context, op, source, out, binary string, args ...string) error {
	tctx, cancel := s.withTimeout(ctx)
	defer cancel()

	output, err := s.run(tctx, binary, args...)
	if err != nil {
		_ = os.Remove(out)
		if tctx.Err() != nil && ctx.Err() == nil {
			err = fmt.Errorf("%w: %w", err, tctx.Err())
		}
		return &SegmentFailedError{Op: op, Source: source, Stderr: tail(string(output)), Err: err}
	}
	return nil
}

func (s *Segmenter) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Segmenter) tempFile(pattern string) (string, error) {
	if err := os.MkdirAll(s.workDir, 0o755); err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	f, err := os.CreateTemp(s.workDir, pattern)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}

func (s *Segmenter) drawtext(text string) string {
	text = strings.TrimSpace(text)
	if text == "" || text == scripture.OverlayNone {
		return ""
	}
	var parts []string
	if s.font != "" {
		parts = append(parts, "fontfile="+escapeFilterValue(s.font))
	}
	parts = append(parts,
		"text="+escapeFilterValue(text),
		"fontcolor=white",
		"fontsize=h/16",
		"box=1",
		"boxcolor=black@0.55",
		"boxborderw=12",
		"x=(w-text_w)/2",
		"y=h-text_h-h/12",
	)
	return "drawtext=" + strings.Join(parts, ":")
}

// escapeFilterValue quotes a drawtext option value.
func escapeFilterValue(value string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `'\''`, `%`, `\%`)
	return "'" + r.Replace(value) + "'"
}

func concatList(paths []string) string {
	var b strings.Builder
	for _, p := range paths {
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(p, "'", `'\''`))
		b.WriteString("'\n")
	}
	return b.String()
}

// chapterMetadata renders an ffmetadata document with one chapter per clip.
func chapterMetadata(title string, titles []string, durations []time.Duration) string {
	var b strings.Builder
	b.WriteString(";FFMETADATA1\n")
	if title != "" {
		fmt.Fprintf(&b, "title=%s\n", escapeMetadata(title))
	}
	var start int64
	for i, d := range durations {
		end := start + d.Milliseconds()
		b.WriteString("\n[CHAPTER]\nTIMEBASE=1/1000\n")
		fmt.Fprintf(&b, "START=%d\nEND=%d\n", start, end)
		fmt.Fprintf(&b, "title=%s\n", escapeMetadata(titles[i]))
		start = end
	}
	return b.String()
}

func escapeMetadata(value string) string {
	r := strings.NewReplacer(`\`, `\\`, "=", `\=`, ";", `\;`, "#", `\#`, "\n", `\`+"\n")
	return r.Replace(value)
}

func nonEmpty(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return errors.New("output is empty")
	}
	return nil
}

func tail(output string) string {
	output = strings.TrimSpace(output)
	if len(output) <= stderrTail {
		return output
	}
	return "..." + output[len(output)-stderrTail:]
}

func binaryOrDefault(value, fallback string) string {
	if value = strings.TrimSpace(value); value != "" {
		return value
	}
	return fallback
}

func defaultCommandRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.CombinedOutput()
}
