package provision

import (
	"strings"
	"testing"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"My Bot 123", "my-bot-123"},
		{"123x", "a123x"},
		{"simple", "simple"},
		{"UPPER_case.name", "upper-case-name"},
		{"--weird--", "weird"},
		{"", "ax"},
		{"!!!", "ax"},
	}

	for _, tt := range tests {
		got := SanitizeName(tt.in)
		if got != tt.want {
			t.Errorf("SanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeNameInvariants(t *testing.T) {
	long := strings.Repeat("very-long-profile-name-", 10)
	got := SanitizeName(long)
	if len(got) > 63 {
		t.Errorf("sanitized name exceeds 63 chars: %d", len(got))
	}
	if got[0] < 'a' || got[0] > 'z' {
		t.Errorf("sanitized name must start with a letter, got %q", got)
	}
	if strings.HasSuffix(got, "-") {
		t.Errorf("sanitized name must not end with a hyphen: %q", got)
	}
}

func TestShortHashStable(t *testing.T) {
	a := ShortHash("sub-123", "my-group")
	b := ShortHash("sub-123", "my-group")
	if a != b {
		t.Errorf("same inputs must hash identically: %q vs %q", a, b)
	}
	if len(a) != 6 {
		t.Errorf("expected 6 hex characters, got %q", a)
	}

	c := ShortHash("sub-123", "other-group")
	if a == c {
		t.Errorf("different inputs produced the same hash %q", a)
	}
}

func TestDeterministicIDStable(t *testing.T) {
	scope := "/subscriptions/s/resourceGroups/rg"
	first := DeterministicID(scope, "principal-1", "role-a")
	second := DeterministicID(scope, "principal-1", "role-a")
	if first != second {
		t.Errorf("same assignment inputs must derive the same ID: %q vs %q", first, second)
	}

	other := DeterministicID(scope, "principal-1", "role-b")
	if first == other {
		t.Errorf("distinct roles derived the same assignment ID %q", first)
	}

	// Must be a well-formed UUID for providers that require GUID names.
	if len(first) != 36 || strings.Count(first, "-") != 4 {
		t.Errorf("expected UUID-shaped ID, got %q", first)
	}
}
