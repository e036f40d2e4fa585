package model

import (
	"fmt"
	"strings"
)

// PrivacyMode controls how much of a source event a mirror reveals.
type PrivacyMode string

const (
	// PrivacyPublic copies title, description, location and attendees.
	PrivacyPublic PrivacyMode = "public"

	// PrivacyPrivate replaces the title with a label and drops details.
	PrivacyPrivate PrivacyMode = "private"
)

// DefaultPrivacyLabel is used as the private title when none is configured.
const DefaultPrivacyLabel = "Busy"

// IsValid returns true if the mode is recognized.
func (m PrivacyMode) IsValid() bool {
	switch m {
	case PrivacyPublic, PrivacyPrivate:
		return true
	default:
		return false
	}
}

// AllPrivacyModes returns all supported modes.
func AllPrivacyModes() []PrivacyMode {
	return []PrivacyMode{PrivacyPublic, PrivacyPrivate}
}

// String returns the string representation of the mode.
func (m PrivacyMode) String() string {
	return string(m)
}

// ParsePrivacyMode converts a string to a PrivacyMode.
// Empty input yields PrivacyPublic.
func ParsePrivacyMode(s string) (PrivacyMode, error) {
	normalized := PrivacyMode(strings.ToLower(strings.TrimSpace(s)))
	if normalized == "" {
		return PrivacyPublic, nil
	}
	if normalized.IsValid() {
		return normalized, nil
	}
	return PrivacyPublic, fmt.Errorf("unknown privacy mode %q (valid: public, private)", s)
}
