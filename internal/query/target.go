package query

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// ErrInvalidTarget is returned when a target cannot be used as a site: scope.
var ErrInvalidTarget = errors.New("invalid target domain")

// NormalizeTarget turns user input such as "https://Example.com:443/path"
// into a bare lowercase domain ("example.com").
// An empty input returns an empty target and no error.
func NormalizeTarget(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", nil
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return "", fmt.Errorf("%w: %q: %w", ErrInvalidTarget, raw, err)
		}
		s = u.Host
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	s = strings.TrimSuffix(strings.ToLower(s), ".")
	s = strings.TrimPrefix(s, "*.")

	if s == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidTarget, raw)
	}
	if net.ParseIP(s) != nil {
		return "", fmt.Errorf("%w: %q is an IP address", ErrInvalidTarget, raw)
	}
	for _, label := range strings.Split(s, ".") {
		if !validLabel(label) {
			return "", fmt.Errorf("%w: %q", ErrInvalidTarget, raw)
		}
	}
	if _, err := publicsuffix.EffectiveTLDPlusOne(s); err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrInvalidTarget, raw, err)
	}

	return s, nil
}

func validLabel(label string) bool {
	if label == "" || len(label) > 63 {
		return false
	}
	if label[0] == '-' || label[len(label)-1] == '-' {
		return false
	}
	for _, r := range label {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
