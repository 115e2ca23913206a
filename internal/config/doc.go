// Package config loads, normalizes, and validates signverse configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads an optional .env file, and applies
// SIGNVERSE_* environment overrides on top of the file values. The Config type
// centralizes every knob the CLI and passage pipeline need, so work
// directories, upstream endpoints, and external tool timeouts are discovered
// in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
