package songkey

import (
	"strings"
	"testing"
)

func TestNormalizeFoldsCase(t *testing.T) {
	if got := Normalize("Through the Fire and Flames"); got != "through the fire and flames" {
		t.Errorf("unexpected key: %q", got)
	}
}

func TestNormalizeCollapsesWhitespace(t *testing.T) {
	cases := map[string]string{
		"  Song   A  ":      "song a",
		"Song\tA":           "song a",
		"Song A":            "song a",
		"\n  MIXED\t Case ": "mixed case",
	}
	for raw, want := range cases {
		if got := Normalize(raw); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestNormalizeIsStable(t *testing.T) {
	raw := "Freebird!!"
	first := Normalize(raw)
	for i := 0; i < 10; i++ {
		if got := Normalize(raw); got != first {
			t.Fatalf("Normalize not stable: %q vs %q", got, first)
		}
	}
	// A normalized key must normalize to itself.
	if got := Normalize(first); got != first {
		t.Errorf("Normalize not idempotent: %q -> %q", first, got)
	}
}

func TestTooLongBoundary(t *testing.T) {
	exactly := strings.Repeat("a", MaxKeyLen)
	if TooLong(exactly) {
		t.Errorf("key of %d runes should be accepted", MaxKeyLen)
	}
	if !TooLong(exactly + "a") {
		t.Errorf("key of %d runes should be rejected", MaxKeyLen+1)
	}
}

func TestTooLongCountsRunes(t *testing.T) {
	// 30 multi-byte runes are still 30 characters.
	if TooLong(strings.Repeat("ä", MaxKeyLen)) {
		t.Error("multi-byte runes must count as one character each")
	}
}
