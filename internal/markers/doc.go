// Package markers resolves the per-verse timing markers of a chapter
// recording.
//
// Markers are tied to the checksum of the chapter media they were measured
// on. Before markers are served the chapter's checksum is re-checked against
// the publication media API whenever the stored copy is older than the
// configured TTL; a changed checksum purges the old marker set in the same
// transaction that records the new checksum.
//
// Missing markers are acquired through three tiers tried strictly in order:
// markers embedded in the API document, markers scraped from the companion
// web page, and finally chapter titles probed from the media container. The
// probe tier is slow and only ever runs for a single on-demand chapter, never
// for RefreshBook.
package markers
