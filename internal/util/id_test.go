package util

import (
	"strings"
	"testing"
)

func TestNewID(t *testing.T) {
	id := NewID("lead")
	if !strings.HasPrefix(id, "lead_") {
		t.Fatalf("expected lead_ prefix, got %s", id)
	}
	if len(id) != len("lead_")+32 {
		t.Fatalf("unexpected id length: %s", id)
	}
	if NewID("lead") == id {
		t.Fatal("ids must be unique")
	}
	if bare := NewID(""); strings.Contains(bare, "_") {
		t.Fatalf("empty prefix must not add a separator: %s", bare)
	}
}

func TestAlternateCaseNumber(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"L100", "C100"},
		{"C42", "L42"},
		{"100", ""},
		{"", ""},
		{"X9", ""},
	}
	for _, tc := range cases {
		if got := AlternateCaseNumber(tc.in); got != tc.want {
			t.Errorf("AlternateCaseNumber(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSanitizeFileName(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"passport.pdf", "passport.pdf"},
		{"scan:2025?.pdf", "scan_2025_.pdf"},
		{"../../etc/passwd", "_.._etc_passwd"},
		{"  trimmed.txt. ", "trimmed.txt"},
		{"...", "file"},
		{"", "file"},
	}
	for _, tc := range cases {
		if got := SanitizeFileName(tc.in); got != tc.want {
			t.Errorf("SanitizeFileName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
