package pubmedia

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"signverse/internal/scripture"
)

// Document is the decoded API response for one book (or one track of it).
type Document struct {
	PubName  string                        `json:"pubName"`
	BookNum  int                           `json:"booknum"`
	Files    map[string]map[string][]Track `json:"files"`
	Language string                        `json:"-"`
}

// Track is one rendition of one chapter recording.
type Track struct {
	Title       string     `json:"title"`
	Label       string     `json:"label"`
	Track       int        `json:"track"`
	HasTrack    bool       `json:"hasTrack"`
	FileSize    int64      `json:"filesize"`
	FrameWidth  int        `json:"frameWidth"`
	FrameHeight int        `json:"frameHeight"`
	Duration    float64    `json:"duration"`
	File        File       `json:"file"`
	Markers     *MarkerSet `json:"markers"`
}

// File locates the downloadable media of a track.
type File struct {
	URL              string `json:"url"`
	Checksum         string `json:"checksum"`
	ModifiedDatetime string `json:"modifiedDatetime"`
}

// MarkerSet wraps the per-verse markers embedded in a track.
type MarkerSet struct {
	Markers []Marker `json:"markers"`
}

// Marker is a verse marker as published by the API. Times are timecodes.
type Marker struct {
	VerseNumber           int    `json:"verseNumber"`
	Label                 string `json:"label"`
	StartTime             string `json:"startTime"`
	Duration              string `json:"duration"`
	EndTransitionDuration string `json:"endTransitionDuration"`
}

// Tracks returns the playable tracks of the document's language.
func (d Document) Tracks() []Track {
	groups := d.Files[d.Language]
	formats := make([]string, 0, len(groups))
	for format := range groups {
		formats = append(formats, format)
	}
	sort.Strings(formats)

	var out []Track
	for _, format := range formats {
		if strings.EqualFold(format, "3GP") {
			continue
		}
		for _, t := range groups[format] {
			if strings.HasSuffix(strings.ToLower(t.File.URL), ".zip") {
				continue
			}
			out = append(out, t)
		}
	}
	return out
}

// Qualities lists distinct quality labels from lowest to highest.
func (d Document) Qualities() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, t := range d.Tracks() {
		if t.Label == "" {
			continue
		}
		if _, ok := seen[t.Label]; ok {
			continue
		}
		seen[t.Label] = struct{}{}
		out = append(out, t.Label)
	}
	SortQualities(out)
	return out
}

// BestQuality returns the highest available quality label.
func (d Document) BestQuality() string {
	q := d.Qualities()
	if len(q) == 0 {
		return ""
	}
	return q[len(q)-1]
}

// LowestQuality returns the lowest available quality label.
func (d Document) LowestQuality() string {
	q := d.Qualities()
	if len(q) == 0 {
		return ""
	}
	return q[0]
}

// Match returns the track for chapter in the requested quality.
func (d Document) Match(chapter int, quality string) (Track, bool) {
	for _, t := range d.Tracks() {
		if t.Track == chapter && strings.EqualFold(t.Label, quality) {
			return t, true
		}
	}
	return Track{}, false
}

// Representative returns the best-quality track of chapter. Its checksum is
// the one recorded for the chapter.
func (d Document) Representative(chapter int) (Track, bool) {
	var (
		best  Track
		found bool
	)
	for _, t := range d.Tracks() {
		if t.Track != chapter {
			continue
		}
		if !found || qualityRank(t.Label) > qualityRank(best.Label) {
			best, found = t, true
		}
	}
	return best, found
}

// Chapters lists the chapter numbers that have a track.
func (d Document) Chapters() []int {
	seen := make(map[int]struct{})
	var out []int
	for _, t := range d.Tracks() {
		if t.Track <= 0 {
			continue
		}
		if _, ok := seen[t.Track]; ok {
			continue
		}
		seen[t.Track] = struct{}{}
		out = append(out, t.Track)
	}
	sort.Ints(out)
	return out
}

// Chapter converts a track into the stored chapter representation.
func (t Track) Chapter(language string, book int) scripture.Chapter {
	ch := scripture.Chapter{
		Language:   language,
		BookNumber: book,
		Number:     t.Track,
		Title:      cleanTitle(t.Title),
		Checksum:   t.File.Checksum,
		URL:        t.File.URL,
	}
	if modified, err := time.Parse(time.RFC3339, t.File.ModifiedDatetime); err == nil {
		ch.ModifiedAt = modified.UTC()
	} else if modified, err := time.Parse("2006-01-02T15:04:05", t.File.ModifiedDatetime); err == nil {
		ch.ModifiedAt = modified.UTC()
	}
	if ch.Number == 0 {
		ch.Number = ChapterFromURL(t.File.URL)
	}
	return ch
}

// VideoMarkers converts embedded markers. ok is true only when the track
// carries markers and every one of them has a usable start and duration; a
// partially broken set is not trusted as a whole.
func (t Track) VideoMarkers() (markers []scripture.VideoMarker, ok bool) {
	if t.Markers == nil || len(t.Markers.Markers) == 0 {
		return nil, false
	}
	for _, m := range t.Markers.Markers {
		start, err := scripture.ParseTimecode(m.StartTime)
		if err != nil {
			return nil, false
		}
		dur, err := scripture.ParseTimecode(m.Duration)
		if err != nil || dur <= 0 || m.VerseNumber <= 0 {
			return nil, false
		}
		var endTrans time.Duration
		if m.EndTransitionDuration != "" {
			endTrans, _ = scripture.ParseTimecode(m.EndTransitionDuration)
		}
		markers = append(markers, scripture.VideoMarker{
			VerseNumber:           m.VerseNumber,
			StartTime:             start,
			Duration:              dur,
			EndTransitionDuration: endTrans,
			Label:                 strings.TrimSpace(m.Label),
		})
	}
	scripture.SortMarkers(markers)
	return markers, true
}

// EndTransitions returns the end transition of every embedded marker whose
// transition parses, even when the rest of the marker is unusable.
func (t Track) EndTransitions() map[int]time.Duration {
	if t.Markers == nil {
		return nil
	}
	out := make(map[int]time.Duration)
	for _, m := range t.Markers.Markers {
		if m.VerseNumber <= 0 || strings.TrimSpace(m.EndTransitionDuration) == "" {
			continue
		}
		if d, err := scripture.ParseTimecode(m.EndTransitionDuration); err == nil {
			out[m.VerseNumber] = d
		}
	}
	return out
}

// ChapterFromURL extracts the chapter number from a media file name such as
// ".../nwt_40_Mt_LSE_05_r720P.mp4". It returns 0 when the name does not
// follow that layout.
func ChapterFromURL(rawURL string) int {
	name := rawURL
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	parts := strings.Split(name, "_")
	if len(parts) < 5 {
		return 0
	}
	n, err := strconv.Atoi(parts[4])
	if err != nil {
		return 0
	}
	return n
}

// SortQualities orders labels such as "240p", "720p", "1080p" numerically.
func SortQualities(labels []string) {
	sort.SliceStable(labels, func(i, j int) bool {
		ri, rj := qualityRank(labels[i]), qualityRank(labels[j])
		if ri != rj {
			return ri < rj
		}
		return labels[i] < labels[j]
	})
}

func qualityRank(label string) int {
	digits := strings.TrimRightFunc(strings.ToLower(strings.TrimSpace(label)), func(r rune) bool {
		return r < '0' || r > '9'
	})
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return n
}

var titleCleaner = strings.NewReplacer("&nbsp;", " ", "&amp;", "&", " ", " ")

func cleanTitle(title string) string {
	return strings.Join(strings.Fields(titleCleaner.Replace(title)), " ")
}
