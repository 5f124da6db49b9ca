// Package dedup canonicalizes post text, derives content fingerprints and collapses
// repeated content inside a single fetched batch.
package dedup

import (
	"html"
	"regexp"
	"strings"
)

var (
	urlPattern       = regexp.MustCompile(`(?i)https?://\S+`)
	retweetPrefix    = regexp.MustCompile(`(?i)^rt\s+@[\p{L}\p{N}_]+:\s*`)
	trailingPunct    = regexp.MustCompile(`[.!?]+$`)
	smartPunctuation = strings.NewReplacer(
		"’", "'", // right single quote
		"‘", "'", // left single quote
		"´", "'", // acute accent
		"`", "'",
		"“", `"`,
		"”", `"`,
		"–", "-", // en dash
		"—", "-", // em dash
		"…", "...",
		"\u00a0", " ", // non-breaking space
	)
)

// Normalize maps cosmetic variants of the same text (case, smart punctuation, URLs,
// retweet prefixes, trailing punctuation, whitespace) onto one canonical string.
// It never stems or drops words: two different opinions must stay different.
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	s := html.UnescapeString(text)
	s = smartPunctuation.Replace(s)
	s = strings.ToLower(s)
	s = retweetPrefix.ReplaceAllString(s, "")
	s = urlPattern.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(s), " ")
	s = strings.Trim(s, `"`)
	s = strings.Trim(s, "'")
	s = trailingPunct.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
