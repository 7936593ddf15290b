// Package util provides small shared helpers that don't fit into
// domain-specific packages.
package util

import "strings"

// SafeTruncate truncates a string to maxLen characters without panicking.
// Used when logging credential prefixes, where only the first few characters
// should ever appear.
func SafeTruncate(s string, maxLen int) string {
	if maxLen < 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// NormalizeURL normalizes a URL for comparison by removing trailing slashes.
func NormalizeURL(url string) string {
	return strings.TrimRight(url, "/")
}
