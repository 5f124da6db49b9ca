package pipeline

import (
	"sort"
	"time"

	"github.com/nationradar/nation-radar/internal/domain"
)

// TopPost is a stored post listed in the run summary.
type TopPost struct {
	ID       string  `json:"id"`
	Username string  `json:"username"`
	Score    float64 `json:"score"`
	Keyword  string  `json:"keyword"`
}

// RunStats summarises one orchestrator run. It is informational only.
type RunStats struct {
	RunID             string        `json:"run_id"`
	StartedAt         time.Time     `json:"started_at"`
	Duration          time.Duration `json:"duration"`
	KeywordsProcessed int           `json:"keywords_processed"`
	PostsFound        int           `json:"posts_found"`
	PostsConsidered   int           `json:"posts_considered"`
	PostsStored       int           `json:"posts_stored"`
	DuplicatesSkipped int           `json:"duplicates_skipped"`
	SeenSetSkips      int           `json:"seen_set_skips"`
	ScoringErrors     int           `json:"scoring_errors"`
	StoreErrors       int           `json:"store_errors"`
	FetchErrors       int           `json:"fetch_errors"`
	Top               []TopPost     `json:"top"`

	stored []TopPost
}

// Degraded reports whether any post failed to persist.
func (s RunStats) Degraded() bool {
	return s.StoreErrors > 0
}

func (s *RunStats) recordStored(keyword string, post domain.ScoredPost) {
	s.PostsStored++
	s.stored = append(s.stored, TopPost{
		ID:       post.ID,
		Username: post.Username,
		Score:    post.Score,
		Keyword:  keyword,
	})
}

// finish fills Duration and the top-n list.
func (s *RunStats) finish(now time.Time, n int) {
	s.Duration = now.Sub(s.StartedAt)

	top := make([]TopPost, len(s.stored))
	copy(top, s.stored)
	sort.SliceStable(top, func(i, j int) bool { return top[i].Score > top[j].Score })
	if n >= 0 && len(top) > n {
		top = top[:n]
	}
	s.Top = top
}

// Fields flattens the summary for structured logging.
func (s RunStats) Fields() map[string]any {
	return map[string]any{
		"run_id":             s.RunID,
		"duration_ms":        s.Duration.Milliseconds(),
		"keywords_processed": s.KeywordsProcessed,
		"posts_found":        s.PostsFound,
		"posts_considered":   s.PostsConsidered,
		"posts_stored":       s.PostsStored,
		"duplicates_skipped": s.DuplicatesSkipped,
		"seen_set_skips":     s.SeenSetSkips,
		"scoring_errors":     s.ScoringErrors,
		"store_errors":       s.StoreErrors,
		"fetch_errors":       s.FetchErrors,
		"degraded":           s.Degraded(),
		"top":                s.Top,
	}
}
