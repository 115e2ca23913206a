// Package deps reports whether the external binaries signverse shells out to
// are installed and usable.
package deps
