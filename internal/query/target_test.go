package query

import (
	"errors"
	"testing"
)

func TestNormalizeTarget(t *testing.T) {
	t.Parallel()

	valid := []struct {
		input    string
		expected string
	}{
		{"", ""},
		{"example.com", "example.com"},
		{"Example.COM", "example.com"},
		{"https://www.example.com/login?next=/", "www.example.com"},
		{"example.co.uk:8443", "example.co.uk"},
		{"example.com.", "example.com"},
		{"*.example.org", "example.org"},
		{"  sub.example.net/path  ", "sub.example.net"},
	}

	for _, tc := range valid {
		t.Run("normalizes "+tc.input, func(t *testing.T) {
			t.Parallel()
			got, err := NormalizeTarget(tc.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.expected {
				t.Errorf("NormalizeTarget(%q) = %q, expected %q", tc.input, got, tc.expected)
			}
		})
	}

	invalid := []string{
		"com",
		"co.uk",
		"192.168.1.1",
		"exa mple.com",
		"-bad.example.com",
		"example..com",
		"https://",
	}

	for _, input := range invalid {
		t.Run("rejects "+input, func(t *testing.T) {
			t.Parallel()
			if _, err := NormalizeTarget(input); !errors.Is(err, ErrInvalidTarget) {
				t.Errorf("expected ErrInvalidTarget for %q, got %v", input, err)
			}
		})
	}
}
