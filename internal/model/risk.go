package model

import "strings"

// Risk is the risk level a catalog category declares for its dorks.
// Levels are ordered so they can be compared directly.
type Risk int

const (
	// RiskNone is used when the catalog does not declare a level.
	RiskNone Risk = iota

	// RiskLow indicates dorks that surface publicly intended content,
	// such as login pages or technology fingerprints.
	RiskLow

	// RiskMedium indicates dorks that surface content operators usually
	// do not mean to index, such as directory listings.
	RiskMedium

	// RiskHigh indicates dorks that commonly surface configuration files,
	// backups or database dumps.
	RiskHigh

	// RiskCritical indicates dorks that target credentials and private keys.
	RiskCritical
)

// String returns a human-readable representation of the risk level.
func (r Risk) String() string {
	switch r {
	case RiskNone:
		return "NONE"
	case RiskLow:
		return "LOW"
	case RiskMedium:
		return "MEDIUM"
	case RiskHigh:
		return "HIGH"
	case RiskCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Sensitive reports whether dorks of this level must be gated
// behind the allow-sensitive switch.
func (r Risk) Sensitive() bool {
	return r >= RiskHigh
}

// ParseRisk converts a catalog risk string (case-insensitive) to a Risk.
// The second return value is false for unrecognized input.
func ParseRisk(s string) (Risk, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "info":
		return RiskNone, true
	case "low":
		return RiskLow, true
	case "medium", "moderate":
		return RiskMedium, true
	case "high":
		return RiskHigh, true
	case "critical":
		return RiskCritical, true
	default:
		return RiskNone, false
	}
}
