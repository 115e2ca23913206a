// Package store persists reference data, chapter epochs, verse markers, and
// cached artifacts in SQLite.
//
// The schema is embedded and versioned; an incompatible database is refused
// rather than migrated. Every write that must be atomic with respect to a
// chapter's checksum (replacing a chapter epoch, replacing its marker set)
// happens inside a single transaction, so readers observe either the previous
// complete state or the new one.
package store
