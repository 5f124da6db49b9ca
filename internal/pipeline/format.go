package pipeline

import (
	"regexp"
	"strings"

	"github.com/nationradar/nation-radar/internal/domain"
)

// FormatForScoring renders a post the way the scoring agent expects it.
func FormatForScoring(post domain.Post) string {
	return post.Text + "\n\nEngagement: " + post.Engagement.String()
}

// tickerMatcher returns a predicate for "$NAME" keywords that only accepts texts carrying
// $NAME as a whole token. Other keywords match everything.
func tickerMatcher(keyword string) func(text string) bool {
	name, ok := strings.CutPrefix(strings.TrimSpace(keyword), "$")
	if !ok || name == "" {
		return func(string) bool { return true }
	}
	re := regexp.MustCompile(`(?i)\$` + regexp.QuoteMeta(name) + `\b`)
	return re.MatchString
}
