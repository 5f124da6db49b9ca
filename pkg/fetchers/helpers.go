package fetchers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nationradar/nation-radar/internal/dedup"
	"github.com/nationradar/nation-radar/internal/domain"
)

func responseSnippet(body []byte) string {
	const maxLen = 512
	s := strings.TrimSpace(string(body))
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	if s == "" {
		return "<empty>"
	}
	return s
}

// statusError is a non-2xx response from a source.
type statusError struct {
	source string
	code   int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s returned status %d body: %s", e.source, e.code, e.body)
}

func fetchBody(ctx context.Context, client HTTPClient, url, sourceID string, params, headers map[string]string) ([]byte, error) {
	resp, err := client.Get(ctx, url, params, headers)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", sourceID, err)
	}
	body := resp.Body()
	if resp.StatusCode() != http.StatusOK {
		return nil, &statusError{source: sourceID, code: resp.StatusCode(), body: responseSnippet(body)}
	}
	return body, nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// uniqueByID keeps the first post for every id, dropping posts without one.
func uniqueByID(posts []domain.Post) []domain.Post {
	seen := make(map[string]struct{}, len(posts))
	out := make([]domain.Post, 0, len(posts))
	for _, p := range posts {
		if p.ID == "" {
			continue
		}
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out
}

// withinLookback drops posts older than cutoff. Posts with no timestamp are dropped;
// posts whose timestamp cannot be parsed are kept.
func withinLookback(posts []domain.Post, cutoff time.Time) []domain.Post {
	out := make([]domain.Post, 0, len(posts))
	for _, p := range posts {
		if strings.TrimSpace(p.CreatedAt) == "" {
			continue
		}
		created, ok := dedup.ParseCreatedAt(p.CreatedAt)
		if ok && created.Before(cutoff) {
			continue
		}
		out = append(out, p)
	}
	return out
}

var defaultSpamIndicators = []string{
	"follow me", "retweet", "like", "dm me", "send me",
	"airdrop", "free", "claim", "moon", "pump", "100x",
	"🚀", "💎", "🔥", "📈", "💰",
}

const (
	minQualityLength = 20
	maxHashtags      = 5
	maxMentions      = 3
)

// qualityFilter drops short, spammy, tag-heavy or off-topic posts.
type qualityFilter struct {
	spam []string
}

func newQualityFilter(spam []string) qualityFilter {
	lowered := make([]string, 0, len(spam))
	for _, s := range spam {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			lowered = append(lowered, s)
		}
	}
	return qualityFilter{spam: lowered}
}

func (q qualityFilter) keep(text, keyword string) bool {
	lower := strings.ToLower(text)
	if len(lower) < minQualityLength {
		return false
	}
	for _, s := range q.spam {
		if strings.Contains(lower, s) {
			return false
		}
	}
	if strings.Count(lower, "#") > maxHashtags || strings.Count(lower, "@") > maxMentions {
		return false
	}

	kw := strings.ToLower(keyword)
	kw = strings.NewReplacer("$", "", `"`, "").Replace(kw)
	return strings.Contains(lower, kw) || strings.Contains(lower, strings.ReplaceAll(kw, " ", ""))
}

func (q qualityFilter) apply(posts []domain.Post, keyword string) []domain.Post {
	out := make([]domain.Post, 0, len(posts))
	for _, p := range posts {
		if q.keep(p.Text, keyword) {
			out = append(out, p)
		}
	}
	return out
}
