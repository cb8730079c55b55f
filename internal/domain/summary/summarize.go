package summary

import "strings"

const (
	DefaultMaxWords   = 60
	DefaultPreviewLen = 120

	continuationMarker = " ..."
)

// Summarize keeps the first maxWords whitespace-separated words of text.
// A continuation marker is appended only when words were dropped.
func Summarize(text string, maxWords int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	if maxWords <= 0 {
		maxWords = DefaultMaxWords
	}
	if len(words) <= maxWords {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:maxWords], " ") + continuationMarker
}

// Preview returns at most n runes of s.
func Preview(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
