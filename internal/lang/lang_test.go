package lang

import (
	"strings"
	"testing"
)

func TestGetFormatsArgs(t *testing.T) {
	r := NewRegistry()
	got := r.Get("songrequest.request.accepted", "Freebird", 3)
	if !strings.Contains(got, "Freebird") || !strings.Contains(got, "3") {
		t.Errorf("args not rendered: %q", got)
	}
}

func TestGetWithoutArgs(t *testing.T) {
	r := NewRegistry()
	got := r.Get("songrequest.norequests")
	if got == "" || strings.Contains(got, "%") {
		t.Errorf("template leaked: %q", got)
	}
}

func TestGetUnknownKeyFailsSoft(t *testing.T) {
	r := NewRegistry()
	if got := r.Get("songrequest.not.a.key"); got != "songrequest.not.a.key" {
		t.Errorf("unknown key should render as itself, got %q", got)
	}
}

func TestSetOverrides(t *testing.T) {
	r := NewRegistry()
	r.Set("songrequest.norequests", "nichts da")
	if got := r.Get("songrequest.norequests"); got != "nichts da" {
		t.Errorf("override not applied: %q", got)
	}
}
