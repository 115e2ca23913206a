package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeSources()
	c.normalizeMarkers()
	c.normalizeRender()
	c.normalizeCache()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	fields := []struct {
		name  string
		value *string
		def   string
	}{
		{"paths.data_dir", &c.Paths.DataDir, defaultDataDir},
		{"paths.work_dir", &c.Paths.WorkDir, defaultWorkDir},
		{"paths.media_dir", &c.Paths.MediaDir, defaultMediaDir},
		{"paths.library_dir", &c.Paths.LibraryDir, defaultLibraryDir},
		{"paths.log_dir", &c.Paths.LogDir, defaultLogDir},
	}
	for _, field := range fields {
		if strings.TrimSpace(*field.value) == "" {
			*field.value = field.def
		}
		expanded, err := expandPath(strings.TrimSpace(*field.value))
		if err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
		*field.value = expanded
	}
	return nil
}

func (c *Config) normalizeSources() {
	c.Sources.PubMediaURL = strings.TrimSpace(c.Sources.PubMediaURL)
	if c.Sources.PubMediaURL == "" {
		c.Sources.PubMediaURL = defaultPubMediaURL
	}
	c.Sources.PublicationSymbol = strings.ToLower(strings.TrimSpace(c.Sources.PublicationSymbol))
	if c.Sources.PublicationSymbol == "" {
		c.Sources.PublicationSymbol = defaultPublicationSymbol
	}
	c.Sources.MarkerPageURL = strings.TrimSpace(c.Sources.MarkerPageURL)
	if c.Sources.MarkerPageURL == "" {
		c.Sources.MarkerPageURL = defaultMarkerPageURL
	}
	c.Sources.UserAgent = strings.TrimSpace(c.Sources.UserAgent)
	if c.Sources.UserAgent == "" {
		c.Sources.UserAgent = defaultUserAgent
	}
	if c.Sources.RequestTimeoutSeconds <= 0 {
		c.Sources.RequestTimeoutSeconds = defaultRequestTimeoutSeconds
	}
	if c.Sources.ScrapeRatePerSecond <= 0 {
		c.Sources.ScrapeRatePerSecond = defaultScrapeRatePerSecond
	}
	if c.Sources.ScrapeBurst <= 0 {
		c.Sources.ScrapeBurst = defaultScrapeBurst
	}
}

func (c *Config) normalizeMarkers() {
	if c.Markers.TTLMinutes <= 0 {
		c.Markers.TTLMinutes = defaultMarkersTTLMinutes
	}
	if c.Markers.BookTTLMinutes <= 0 {
		c.Markers.BookTTLMinutes = defaultBookTTLMinutes
	}
	if c.Markers.ProbeTimeoutSeconds <= 0 {
		c.Markers.ProbeTimeoutSeconds = defaultProbeTimeoutSeconds
	}
}

func (c *Config) normalizeRender() {
	c.Render.FFmpegBinary = strings.TrimSpace(c.Render.FFmpegBinary)
	if c.Render.FFmpegBinary == "" {
		c.Render.FFmpegBinary = "ffmpeg"
	}
	c.Render.FFprobeBinary = strings.TrimSpace(c.Render.FFprobeBinary)
	if c.Render.FFprobeBinary == "" {
		c.Render.FFprobeBinary = "ffprobe"
	}
	if c.Render.TimeoutSeconds <= 0 {
		c.Render.TimeoutSeconds = defaultRenderTimeoutSeconds
	}
	if c.Render.Parallelism <= 0 {
		c.Render.Parallelism = defaultRenderParallelism
	}
	c.Render.DefaultQuality = strings.ToLower(strings.TrimSpace(c.Render.DefaultQuality))
	if c.Render.DefaultQuality == "" {
		c.Render.DefaultQuality = defaultQuality
	}
	c.Render.OverlayFont = strings.TrimSpace(c.Render.OverlayFont)
	if c.Render.MinFreeGiB < 0 {
		c.Render.MinFreeGiB = 0
	}
}

func (c *Config) normalizeCache() {
	if c.Cache.LockTimeoutSeconds <= 0 {
		c.Cache.LockTimeoutSeconds = defaultLockTimeoutSeconds
	}
	if c.Cache.ProduceTimeoutSeconds <= 0 {
		c.Cache.ProduceTimeoutSeconds = defaultProduceTimeoutSeconds
	}
	if c.Cache.KeepMediaFiles <= 0 {
		c.Cache.KeepMediaFiles = defaultKeepMediaFiles
	}
	c.Collector.Schedule = strings.TrimSpace(c.Collector.Schedule)
	if c.Collector.Schedule == "" {
		c.Collector.Schedule = defaultCollectorSchedule
	}
	if c.Collector.GraceHours <= 0 {
		c.Collector.GraceHours = defaultCollectorGraceHours
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
