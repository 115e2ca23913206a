// Package artifact caches produced passage clips.
//
// Artifacts are addressed by Key, the canonical tuple of language, book,
// chapter checksum, verse set, quality and overlay. Because the checksum is
// part of the key, artifacts of a replaced recording simply stop matching;
// Sweep later removes them once they are past the grace period.
//
// Produce guarantees at most one producer per key: an in-process
// singleflight group collapses concurrent callers, and a lock file under the
// work directory excludes other processes sharing the same store.
package artifact
