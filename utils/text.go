package utils

import "strings"

// CleanText collapses runs of whitespace into single spaces and trims the ends
func CleanText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// ContainsFold reports whether substr is within s, ignoring case
func ContainsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
