package artifact

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/zeebo/blake3"

	"signverse/internal/scripture"
)

// Key is the canonical identity of a clip.
type Key scripture.ArtifactKey

// NewKey canonicalizes its inputs: verses are sorted and deduplicated and an
// empty overlay becomes scripture.OverlayNone.
func NewKey(language string, book int, checksum string, verses []int, quality, overlay string) Key {
	overlay = strings.TrimSpace(overlay)
	if overlay == "" {
		overlay = scripture.OverlayNone
	}
	return Key{
		Language:   strings.TrimSpace(language),
		BookNumber: book,
		Checksum:   strings.TrimSpace(checksum),
		Verses:     scripture.CanonicalVerses(verses),
		Quality:    strings.ToLower(strings.TrimSpace(quality)),
		Overlay:    overlay,
	}
}

// Record converts the key to its stored form.
func (k Key) Record() scripture.ArtifactKey { return scripture.ArtifactKey(k) }

// VerseNumbers parses the canonical verse string back into numbers.
func (k Key) VerseNumbers() []int {
	fields := strings.Fields(k.Verses)
	out := make([]int, 0, len(fields))
	for _, f := range fields {
		if n, err := strconv.Atoi(f); err == nil {
			out = append(out, n)
		}
	}
	return out
}

// Digest returns the hex BLAKE3-256 digest of the key. It names lock files
// and serves as the content address of the clip.
func (k Key) Digest() string {
	payload := strings.Join([]string{
		k.Language,
		strconv.Itoa(k.BookNumber),
		k.Checksum,
		k.Verses,
		k.Quality,
		k.Overlay,
	}, "\x00")
	sum := blake3.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

func (k Key) String() string {
	return k.Language + "/" + strconv.Itoa(k.BookNumber) + "/" + k.Checksum + "/[" + k.Verses + "]/" + k.Quality + "/" + k.Overlay
}
