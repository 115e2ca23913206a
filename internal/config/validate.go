package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateSources(); err != nil {
		return err
	}
	if err := c.validateRender(); err != nil {
		return err
	}
	if err := c.validateCollector(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateSources() error {
	parsed, err := url.Parse(c.Sources.PubMediaURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("sources.pub_media_url must be an absolute URL, got %q", c.Sources.PubMediaURL)
	}
	for _, placeholder := range []string{"{book}", "{chapter}"} {
		if !strings.Contains(c.Sources.MarkerPageURL, placeholder) {
			return fmt.Errorf("sources.marker_page_url must contain %s", placeholder)
		}
	}
	return nil
}

func (c *Config) validateRender() error {
	if c.Render.Parallelism > 16 {
		return errors.New("render.parallelism must be 16 or less")
	}
	return nil
}

func (c *Config) validateCollector() error {
	if _, err := cron.ParseStandard(c.Collector.Schedule); err != nil {
		return fmt.Errorf("collector.schedule: %w", err)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "auto", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
