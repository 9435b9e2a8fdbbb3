package util

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Pre-compiled regex for WebFinger username validation
var webFingerValidCharsRegex = regexp.MustCompile(`^[A-Za-z0-9\-._~!$&'()*+,;=]+$`)

// IsValidWebFingerUsername validates that a username meets WebFinger/ActivityPub requirements.
//
// WebFinger allows these characters without percent-encoding:
// A-Z a-z 0-9 - . _ ~ ! $ & ' ( ) * + , ; =
//
// Any other Unicode character (like ä, 字, 🔥) must be percent-encoded and is rejected here.
// Non-printable/control characters are also rejected.
//
// Returns (true, "") if valid, or (false, "error message") if invalid.
func IsValidWebFingerUsername(username string) (bool, string) {
	if len(username) == 0 {
		return false, "Username must be at least 1 character"
	}

	if !webFingerValidCharsRegex.MatchString(username) {
		return false, "Username contains invalid characters. Only A-Z, a-z, 0-9, and -._~!$&'()*+,;= are allowed"
	}

	for _, r := range username {
		if unicode.IsControl(r) || !unicode.IsPrint(r) {
			return false, "Username contains non-printable characters"
		}
	}

	return true, ""
}

const (
	MaxTitleLength = 200
	MaxTagLength   = 50
)

// ValidateEventTitle checks the 1..200 character bound on event titles.
func ValidateEventTitle(title string) error {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return fmt.Errorf("title must not be empty")
	}
	if utf8.RuneCountInString(trimmed) > MaxTitleLength {
		return fmt.Errorf("title exceeds %d characters", MaxTitleLength)
	}
	return nil
}

// NormalizeTag strips leading '#' characters and lowercases a tag.
// Returns an error for empty or over-long tags.
func NormalizeTag(tag string) (string, error) {
	normalized := strings.TrimSpace(tag)
	normalized = strings.TrimLeft(normalized, "#")
	normalized = strings.ToLower(normalized)
	if normalized == "" {
		return "", fmt.Errorf("tag must not be empty")
	}
	if utf8.RuneCountInString(normalized) > MaxTagLength {
		return "", fmt.Errorf("tag exceeds %d characters", MaxTagLength)
	}
	return normalized, nil
}

// NormalizeTags normalizes every tag and collapses duplicates, preserving
// first-seen order.
func NormalizeTags(tags []string) ([]string, error) {
	seen := make(map[string]bool)
	normalized := make([]string, 0, len(tags))
	for _, tag := range tags {
		n, err := NormalizeTag(tag)
		if err != nil {
			return nil, err
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		normalized = append(normalized, n)
	}
	return normalized, nil
}

// ValidateCoordinates enforces that latitude and longitude come as a pair
// within the WGS84 bounds.
func ValidateCoordinates(lat, lon *float64) error {
	if (lat == nil) != (lon == nil) {
		return fmt.Errorf("latitude and longitude must be set together")
	}
	if lat == nil {
		return nil
	}
	if *lat < -90 || *lat > 90 {
		return fmt.Errorf("latitude out of range [-90, 90]")
	}
	if *lon < -180 || *lon > 180 {
		return fmt.Errorf("longitude out of range [-180, 180]")
	}
	return nil
}

// ValidateTimezone checks that tz names a zone recognized by the platform
// zone database.
func ValidateTimezone(tz string) error {
	if tz == "" {
		return nil
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return fmt.Errorf("unrecognized timezone %q", tz)
	}
	return nil
}
