// Package preflight provides readiness checks for the filesystem paths,
// binaries, database, and upstream endpoints signverse depends on.
//
// The CLI "signverse doctor" command runs RunAll and, on request, the
// endpoint checks. Failed required checks make the command exit non-zero.
package preflight
