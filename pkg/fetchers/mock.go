package fetchers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/nationradar/nation-radar/internal/domain"
)

// mockFetcher serves posts from a fixture file, for offline runs and demos.
type mockFetcher struct {
	id    string
	posts []domain.Post
}

type fixtureFile struct {
	Posts []domain.Post `json:"posts" yaml:"posts"`
}

var builtinSamples = []domain.Post{
	{ID: "1001", Username: "nation_builder", CreatedAt: "Mon Aug 11 09:00:00 +0000 2025",
		Text:       "Crestal Network is shipping fast, the new $NATION agent tooling is solid",
		Engagement: domain.Engagement{Likes: 42, Retweets: 7, Replies: 3, Views: 1200}},
	{ID: "1002", Username: "radar_fan", CreatedAt: "Mon Aug 11 10:30:00 +0000 2025",
		Text:       "RT @nation_builder: Crestal Network is shipping fast, the new $NATION agent tooling is solid!",
		Engagement: domain.Engagement{Retweets: 1}},
	{ID: "1003", Username: "onchain_dev", CreatedAt: "Mon Aug 11 11:00:00 +0000 2025",
		Text: "Wrote a thread on how nation.fun agents handle memory https://t.co/abc"},
}

// NewMockFetcher loads the fixture named by config key "fixture_file", or serves built-in
// samples when none is configured.
func NewMockFetcher(src Source, _ HTTPClient) (Fetcher, error) {
	path := ConfigString(src, "fixture_file", "")
	if path == "" {
		return &mockFetcher{id: src.ID, posts: builtinSamples}, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture file: %w", err)
	}
	var fx fixtureFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(raw, &fx)
	default:
		err = yaml.Unmarshal(raw, &fx)
	}
	if err != nil {
		return nil, fmt.Errorf("decode fixture file %s: %w", path, err)
	}
	return &mockFetcher{id: src.ID, posts: fx.Posts}, nil
}

func (f *mockFetcher) ID() string { return f.id }

// Fetch returns the fixture posts whose text mentions keyword (ignoring a leading '$').
func (f *mockFetcher) Fetch(ctx context.Context, keyword string) ([]domain.Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	kw := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(keyword), "$"))

	out := make([]domain.Post, 0, len(f.posts))
	for _, p := range f.posts {
		if kw == "" || strings.Contains(strings.ToLower(p.Text), kw) {
			p.Engagement = p.Engagement.Sanitize()
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoResults
	}
	return out, nil
}
