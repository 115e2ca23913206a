// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Key types:
//   - Result: parsed ffprobe output containing streams and format metadata
//   - Stream: individual audio/video/subtitle stream properties
//   - Chapter: an embedded chapter marker with its title tag
//
// Entry points:
//   - Inspect: executes ffprobe and returns parsed streams and format
//   - ProbeChapters: executes ffprobe -show_chapters against a path or URL
//   - Prober: binds a binary path so callers can depend on an interface
package ffprobe
