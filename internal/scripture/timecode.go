package scripture

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ParseTimecode accepts "HH:MM:SS.fff", "MM:SS.fff", or plain seconds
// ("12.345") and returns the offset with sub-second precision preserved.
func ParseTimecode(value string) (time.Duration, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return 0, fmt.Errorf("empty timecode")
	}
	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("invalid timecode %q", value)
	}
	var total float64
	for i, part := range parts {
		n, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil || n < 0 || math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, fmt.Errorf("invalid timecode %q", value)
		}
		if i < len(parts)-1 && n != math.Trunc(n) {
			return 0, fmt.Errorf("invalid timecode %q", value)
		}
		total = total*60 + n
	}
	return time.Duration(math.Round(total * float64(time.Second))), nil
}

// FormatSeconds renders d as seconds with millisecond precision, the form
// ffmpeg accepts for -ss and -t.
func FormatSeconds(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return strconv.FormatFloat(d.Round(time.Millisecond).Seconds(), 'f', 3, 64)
}
