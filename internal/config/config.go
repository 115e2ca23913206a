package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// EnvPrefix is prepended to every environment override key.
const EnvPrefix = "SIGNVERSE_"

// Paths contains directory configuration.
type Paths struct {
	DataDir    string `toml:"data_dir" env:"DATA_DIR"`
	WorkDir    string `toml:"work_dir" env:"WORK_DIR"`
	MediaDir   string `toml:"media_dir" env:"MEDIA_DIR"`
	LibraryDir string `toml:"library_dir" env:"LIBRARY_DIR"`
	LogDir     string `toml:"log_dir" env:"LOG_DIR"`
}

// Sources contains upstream endpoints for chapter metadata and marker pages.
type Sources struct {
	PubMediaURL           string  `toml:"pub_media_url" env:"PUB_MEDIA_URL"`
	PublicationSymbol     string  `toml:"publication_symbol" env:"PUBLICATION_SYMBOL"`
	MarkerPageURL         string  `toml:"marker_page_url" env:"MARKER_PAGE_URL"`
	UserAgent             string  `toml:"user_agent" env:"USER_AGENT"`
	RequestTimeoutSeconds int     `toml:"request_timeout_seconds" env:"REQUEST_TIMEOUT_SECONDS"`
	ScrapeRatePerSecond   float64 `toml:"scrape_rate_per_second" env:"SCRAPE_RATE_PER_SECOND"`
	ScrapeBurst           int     `toml:"scrape_burst" env:"SCRAPE_BURST"`
}

// Markers contains marker freshness and probe settings.
type Markers struct {
	TTLMinutes          int  `toml:"ttl_minutes" env:"MARKERS_TTL_MINUTES"`
	BookTTLMinutes      int  `toml:"book_ttl_minutes" env:"MARKERS_BOOK_TTL_MINUTES"`
	ProbeTimeoutSeconds int  `toml:"probe_timeout_seconds" env:"PROBE_TIMEOUT_SECONDS"`
	ProbeEnabled        bool `toml:"probe_enabled" env:"PROBE_ENABLED"`
}

// Render contains video segmenter settings.
type Render struct {
	FFmpegBinary   string `toml:"ffmpeg_binary" env:"FFMPEG_BINARY"`
	FFprobeBinary  string `toml:"ffprobe_binary" env:"FFPROBE_BINARY"`
	TimeoutSeconds int    `toml:"timeout_seconds" env:"RENDER_TIMEOUT_SECONDS"`
	Parallelism    int    `toml:"parallelism" env:"RENDER_PARALLELISM"`
	DefaultQuality string `toml:"default_quality" env:"DEFAULT_QUALITY"`
	OverlayFont    string `toml:"overlay_font" env:"OVERLAY_FONT"`
	MinFreeGiB     int    `toml:"min_free_gib" env:"MIN_FREE_GIB"`
}

// Cache contains artifact cache settings.
type Cache struct {
	LockTimeoutSeconds    int `toml:"lock_timeout_seconds" env:"CACHE_LOCK_TIMEOUT_SECONDS"`
	ProduceTimeoutSeconds int `toml:"produce_timeout_seconds" env:"CACHE_PRODUCE_TIMEOUT_SECONDS"`
	KeepMediaFiles        int `toml:"keep_media_files" env:"CACHE_KEEP_MEDIA_FILES"`
}

// Collector contains settings for the stale artifact collector.
type Collector struct {
	Schedule   string `toml:"schedule" env:"COLLECTOR_SCHEDULE"`
	GraceHours int    `toml:"grace_hours" env:"COLLECTOR_GRACE_HOURS"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format" env:"LOG_FORMAT"`
	Level  string `toml:"level" env:"LOG_LEVEL"`
}

// Config encapsulates all configuration values for signverse.
//
// Configuration sections by subsystem:
//   - Paths: database, scratch, media, library, and log directories
//   - Sources: metadata API and marker page endpoints
//   - Markers: freshness TTLs and the probe tier
//   - Render: ffmpeg/ffprobe binaries, timeouts, and fan-out
//   - Cache: artifact production locking
//   - Collector: stale artifact sweeping
//   - Logging: log format and level
type Config struct {
	Paths     Paths     `toml:"paths"`
	Sources   Sources   `toml:"sources"`
	Markers   Markers   `toml:"markers"`
	Render    Render    `toml:"render"`
	Cache     Cache     `toml:"cache"`
	Collector Collector `toml:"collector"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, "", false, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// applyEnv loads ./.env when present (existing variables win) and then
// overlays SIGNVERSE_* variables onto cfg.
func applyEnv(cfg *Config) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("signverse.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for pipeline operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.WorkDir, c.Paths.MediaDir, c.Paths.LibraryDir, c.Paths.LogDir, c.LockDir()} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "signverse.db")
}

// LockDir returns the directory holding per-artifact production locks.
func (c *Config) LockDir() string {
	return filepath.Join(c.Paths.WorkDir, "locks")
}

// RequestTimeout returns the per-call timeout for upstream HTTP requests.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Sources.RequestTimeoutSeconds) * time.Second
}

// ProbeTimeout returns the timeout applied to a single ffprobe invocation.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Markers.ProbeTimeoutSeconds) * time.Second
}

// RenderTimeout returns the timeout applied to a single ffmpeg invocation.
func (c *Config) RenderTimeout() time.Duration {
	return time.Duration(c.Render.TimeoutSeconds) * time.Second
}

// MarkerTTL returns how long chapter metadata is trusted before a re-check.
func (c *Config) MarkerTTL() time.Duration {
	return time.Duration(c.Markers.TTLMinutes) * time.Minute
}

// BookTTL returns how long a bulk book refresh is trusted.
func (c *Config) BookTTL() time.Duration {
	return time.Duration(c.Markers.BookTTLMinutes) * time.Minute
}

// LockTimeout bounds how long a caller waits for another producer of the same artifact.
func (c *Config) LockTimeout() time.Duration {
	return time.Duration(c.Cache.LockTimeoutSeconds) * time.Second
}

// ProduceTimeout bounds one shared clip production, which outlives the
// request that started it.
func (c *Config) ProduceTimeout() time.Duration {
	return time.Duration(c.Cache.ProduceTimeoutSeconds) * time.Second
}

// CollectorGrace returns the minimum age of an orphaned artifact before sweeping.
func (c *Config) CollectorGrace() time.Duration {
	return time.Duration(c.Collector.GraceHours) * time.Hour
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
