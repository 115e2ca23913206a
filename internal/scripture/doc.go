// Package scripture holds the plain value types shared by the passage
// pipeline: languages, books, chapters, per-verse video markers, passages, and
// cached artifact handles.
//
// These are data carriers only. Persistence lives in internal/store and
// behaviour lives in the components that consume them, so reading a field
// never performs I/O.
package scripture
