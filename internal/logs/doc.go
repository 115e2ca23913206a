// Package logs reads the signverse log file for `signverse logs`.
//
// Tail returns the last lines of the file together with the offset reached,
// and Follow streams lines appended after that offset until the context ends.
// A Filter narrows JSON-formatted lines by minimum level and component.
package logs
