package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"signverse/internal/artifact"
	"signverse/internal/citation"
	"signverse/internal/config"
	"signverse/internal/logging"
	"signverse/internal/markers"
	"signverse/internal/media/fetch"
	"signverse/internal/media/ffprobe"
	"signverse/internal/passage"
	"signverse/internal/publish"
	"signverse/internal/scripture"
	"signverse/internal/segment"
	"signverse/internal/services"
	"signverse/internal/sources/pubmedia"
	"signverse/internal/sources/wol"
	"signverse/internal/store"
)

type commandContext struct {
	configFlag *string
	logLevel   *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, logLevel *string) *commandContext {
	return &commandContext{configFlag: configFlag, logLevel: logLevel}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = services.Wrap(services.ErrConfiguration, "cli", "load config", "", err)
			return
		}
		if c.logLevel != nil && strings.TrimSpace(*c.logLevel) != "" {
			cfg.Logging.Level = strings.TrimSpace(*c.logLevel)
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = services.Wrap(services.ErrConfiguration, "cli", "ensure directories", "", err)
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// app holds the wired components of one command invocation.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *store.Store
	resolver  *markers.Resolver
	cache     *artifact.Cache
	library   *publish.Library
	fetcher   *fetch.Fetcher
	segmenter *segment.Segmenter
	service   *passage.Service
}

// withApp opens the store, wires every component, and closes the store
// after fn returns.
func (c *commandContext) withApp(fn func(*app) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	st, err := store.Open(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	a := &app{
		cfg:       cfg,
		logger:    logger,
		store:     st,
		cache:     artifact.New(cfg, st, logger),
		library:   publish.NewLibrary(cfg, logger),
		fetcher:   fetch.New(cfg, nil, logger),
		segmenter: segment.New(cfg, logger),
	}
	a.resolver = markers.New(cfg, st,
		pubmedia.NewClient(cfg, nil, logger),
		wol.NewClient(cfg, nil, logger),
		ffprobe.Prober{Binary: cfg.Render.FFprobeBinary},
		logger,
	)
	a.service = passage.New(cfg, passage.Dependencies{
		Reference: st,
		Markers:   a.resolver,
		Cache:     a.cache,
		Segmenter: a.segmenter,
		Media:     a.fetcher,
		Publisher: a.library,
	}, logger)
	return fn(a)
}

// parser builds a citation parser from the imported books of language.
func (a *app) parser(ctx context.Context, language string) (*citation.Parser, error) {
	language = strings.TrimSpace(language)
	if language == "" {
		return nil, services.Wrap(services.ErrValidation, "cli", "parse citation", "", errors.New("--lang is required"))
	}
	books, err := a.store.ListBooks(ctx, language)
	if err != nil {
		return nil, err
	}
	if len(books) == 0 {
		return nil, services.Wrap(services.ErrNotFound, "cli", "parse citation",
			"import reference data with `signverse books import`",
			fmt.Errorf("no books stored for language %s", language))
	}
	return citation.NewParser(citation.NewAliasTable(language, books)), nil
}

// parseCitation parses text and wraps parse failures as validation errors.
func (a *app) parseCitation(ctx context.Context, language, text string) (scripture.Passage, *citation.Parser, error) {
	p, err := a.parser(ctx, language)
	if err != nil {
		return scripture.Passage{}, nil, err
	}
	psg, err := p.Parse(text)
	if err != nil {
		marker := services.ErrValidation
		if errors.Is(err, citation.ErrBookNotFound) {
			marker = services.ErrNotFound
		}
		return scripture.Passage{}, nil, services.Wrap(marker, "cli", "parse citation", "", err)
	}
	return psg, p, nil
}

func defaultLanguage() string {
	return strings.TrimSpace(os.Getenv(config.EnvPrefix + "LANGUAGE"))
}

func addLanguageFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVarP(target, "lang", "l", defaultLanguage(), "Sign language code (defaults to $"+config.EnvPrefix+"LANGUAGE)")
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
