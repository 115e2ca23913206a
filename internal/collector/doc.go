// Package collector removes artifacts that a chapter checksum change has made
// unreachable.
//
// A Collector sweeps orphaned artifact rows older than the configured grace
// period, deletes their published clips, and trims the downloaded media
// cache. It runs on a cron schedule and holds a lock file so only one
// collector works against a data directory at a time.
package collector
