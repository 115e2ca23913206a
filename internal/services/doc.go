// Package services defines shared utilities consumed by the passage pipeline
// and its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp correlation identifiers and the passage being
//     served for logging.
//   - Structured error markers plus the Wrap helper that classify failures
//     (validation, not found, external tool, timeout) for the CLI exit status.
//
// Use these helpers when wiring new pipeline logic so error handling and
// observability stay uniform across components.
package services
