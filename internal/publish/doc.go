// Package publish stores finished clips in the local library directory and
// hands out opaque handles for them.
//
// A handle ID is the clip's path relative to the library root. Publishing
// moves the clip into place, falling back to copy and remove when the work
// directory and library live on different filesystems.
package publish
