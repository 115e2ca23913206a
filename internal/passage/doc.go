// Package passage satisfies passage requests end to end.
//
// A request moves through PARSED, METADATA_FRESH and MARKERS_RESOLVED, then
// either CACHE_HIT or RENDERED, and finally DELIVERED. Rendering always
// stores the artifact before delivery, so an identical follow-up request is
// a cache hit. Multi-verse passages reuse cached single verses and back up
// every verse they have to cut.
package passage
