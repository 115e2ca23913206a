package scripture

import (
	"testing"
	"time"
)

func TestParseTimecode(t *testing.T) {
	cases := map[string]time.Duration{
		"00:00:05.605": 5605 * time.Millisecond,
		"01:02:03":     time.Hour + 2*time.Minute + 3*time.Second,
		"2:30.5":       150500 * time.Millisecond,
		"12.345":       12345 * time.Millisecond,
		" 7 ":          7 * time.Second,
	}
	for in, want := range cases {
		got, err := ParseTimecode(in)
		if err != nil {
			t.Fatalf("ParseTimecode(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseTimecode(%q) = %s, want %s", in, got, want)
		}
	}
	for _, bad := range []string{"", "abc", "1:2:3:4", "-1", "1.5:00"} {
		if _, err := ParseTimecode(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestFormatSeconds(t *testing.T) {
	if got := FormatSeconds(5605 * time.Millisecond); got != "5.605" {
		t.Fatalf("FormatSeconds = %q", got)
	}
	if got := FormatSeconds(-time.Second); got != "0.000" {
		t.Fatalf("FormatSeconds negative = %q", got)
	}
}
