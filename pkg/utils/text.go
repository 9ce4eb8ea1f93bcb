package utils

import "strings"

// CollapseNewlines replaces every newline in s with a single space.
// Embedding models are whitespace-sensitive; text is normalized this way
// before it is sent for embedding.
func CollapseNewlines(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "\r\n", " "), "\n", " ")
}

// Truncate returns s truncated to maxLen characters, with "..." appended if truncated.
// If maxLen is 0 or negative, returns s unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
