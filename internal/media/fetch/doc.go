// Package fetch downloads chapter recordings into a local media cache.
//
// Files are named after the chapter checksum so a re-published chapter never
// reuses a stale download. Before each download the target filesystem must
// keep a configurable amount of free space, and after each download the cache
// is pruned to the most recent files.
package fetch
