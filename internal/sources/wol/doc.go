// Package wol scrapes per-verse video markers from the companion web page of
// a chapter, where they are published as JSON inside the data-json-markers
// attribute of the videoMarkers input element.
//
// Requests are rate limited per client so bulk use never hammers the site.
package wol
