// Package pubmedia is a client for the publication media JSON API that lists
// the chapter recordings of a sign language Bible edition.
//
// A Document is scoped to one language: every accessor reads only that
// language's file groups, skips 3GP renditions, and skips archive (.zip)
// downloads, which carry no playable video.
package pubmedia
