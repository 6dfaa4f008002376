package utils

import (
	"strings"
	"testing"
)

func TestGenerateIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := GenerateID()
		if len(id) != 32 {
			t.Fatalf("expected 32 hex chars, got %q", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestGenerateSessionID(t *testing.T) {
	id := GenerateSessionID()
	if !strings.HasPrefix(id, "session_") {
		t.Fatalf("expected session_ prefix, got %q", id)
	}
}

func TestValidateMessage(t *testing.T) {
	if ValidateMessage("") {
		t.Error("empty message must be invalid")
	}
	if !ValidateMessage("hello") {
		t.Error("short message must be valid")
	}
	if !ValidateMessage(strings.Repeat("a", 4096)) {
		t.Error("4096 chars must be valid")
	}
	if ValidateMessage(strings.Repeat("a", 4097)) {
		t.Error("4097 chars must be invalid")
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Alice@Example.COM "); got != "alice@example.com" {
		t.Fatalf("got %q", got)
	}
	if got := NormalizeEmail(""); got != "" {
		t.Fatalf("got %q", got)
	}
}

func TestCSVField(t *testing.T) {
	if got := CSVField(`plain`); got != `"plain"` {
		t.Fatalf("got %s", got)
	}
	if got := CSVField(`he said "hi"`); got != `"he said ""hi"""` {
		t.Fatalf("got %s", got)
	}
}

func TestFormatCents(t *testing.T) {
	cases := map[int]string{
		0:     "$0.00",
		5:     "$0.05",
		4599:  "$45.99",
		10000: "$100.00",
	}
	for cents, want := range cases {
		if got := FormatCents(cents); got != want {
			t.Errorf("FormatCents(%d) = %q, want %q", cents, got, want)
		}
	}
}
