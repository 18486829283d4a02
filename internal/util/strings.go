// Package util provides small helpers shared across ansible-ssh. It imports
// nothing from other internal packages.
package util

import "strings"

// DefaultString returns fallback when v is empty or whitespace-only.
//
//	DefaultString("hello", "world") → "hello"
//	DefaultString("  ",    "world") → "world"
func DefaultString(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

// EmptyDash returns "-" for a blank value so table columns stay aligned.
func EmptyDash(s string) string {
	return DefaultString(s, "-")
}

// FirstNonEmpty returns the first value that is not blank, or "".
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// ExpandHome turns a leading "~/" into the given home directory.
func ExpandHome(path, home string) string {
	if home == "" {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return home + path[1:]
	}
	return path
}
