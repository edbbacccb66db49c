package search

import (
	"errors"
	"fmt"
	"testing"
)

func TestParseSelector(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		input    string
		expected Selector
	}{
		{"", SelectorAuto},
		{"auto", SelectorAuto},
		{"API", SelectorAPI},
		{" scrape ", SelectorScrape},
	}
	for _, tc := range testCases {
		t.Run("parses "+tc.input, func(t *testing.T) {
			t.Parallel()
			got, err := ParseSelector(tc.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.expected {
				t.Errorf("expected %q, got %q", tc.expected, got)
			}
		})
	}

	t.Run("rejects unknown selector", func(t *testing.T) {
		t.Parallel()
		if _, err := ParseSelector("bing"); !errors.Is(err, ErrUnknownSelector) {
			t.Errorf("expected ErrUnknownSelector, got %v", err)
		}
	})
}

func TestSelect(t *testing.T) {
	t.Parallel()

	full := Credentials{APIKey: "k", EngineID: "cx"}

	testCases := []struct {
		name     string
		selector Selector
		creds    Credentials
		expected string
		err      error
	}{
		{"auto with credentials uses the API", SelectorAuto, full, "google-cse", nil},
		{"auto without credentials scrapes", SelectorAuto, Credentials{APIKey: "k"}, "duckduckgo", nil},
		{"api with credentials", SelectorAPI, full, "google-cse", nil},
		{"api without credentials fails", SelectorAPI, Credentials{}, "", ErrMissingCredentials},
		{"scrape ignores credentials", SelectorScrape, full, "duckduckgo", nil},
		{"unknown selector fails", Selector("bing"), full, "", ErrUnknownSelector},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			b, err := Select(tc.selector, tc.creds, nil)
			if tc.err != nil {
				if !errors.Is(err, tc.err) {
					t.Fatalf("expected %v, got %v", tc.err, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if b.Name() != tc.expected {
				t.Errorf("expected backend %q, got %q", tc.expected, b.Name())
			}
		})
	}
}

func TestBackendError(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	err := fmt.Errorf("query failed: %w", &BackendError{Backend: "duckduckgo", Kind: KindRateLimited, Status: 429, Err: cause})

	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable through Unwrap")
	}
	if kind, ok := KindOf(err); !ok || kind != KindRateLimited {
		t.Errorf("expected rate-limited kind, got %q", kind)
	}
	if _, ok := KindOf(cause); ok {
		t.Error("plain error should have no kind")
	}

	want := "query failed: duckduckgo: rate-limited (HTTP 429): boom"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}

	noStatus := &BackendError{Backend: "google-cse", Kind: KindNetworkFailure, Err: cause}
	if noStatus.Error() != "google-cse: network-failure: boom" {
		t.Errorf("unexpected message %q", noStatus.Error())
	}
}
