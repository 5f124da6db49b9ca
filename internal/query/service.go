package query

import (
	"context"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/nationradar/nation-radar/internal/dedup"
	"github.com/nationradar/nation-radar/internal/domain"
	"github.com/nationradar/nation-radar/internal/metrics"
)

// Default and maximum result sizes.
const (
	DefaultLatestLimit      = 50
	DefaultLeaderboardLimit = 20
	DefaultSearchLimit      = 20
	MaxLimit                = 500
)

// Stats summarises the stored posts.
type Stats struct {
	TotalPosts   int       `json:"total_tweets"`
	ScoredPosts  int       `json:"scored_tweets"`
	AverageScore float64   `json:"average_score"`
	LastUpdate   string    `json:"last_update"`
	LastInserted time.Time `json:"last_inserted"`
	UniqueUsers  int       `json:"unique_users"`
}

// Service answers dashboard queries from a Source, caching encoded answers.
type Service struct {
	source  Source
	cache   Cache
	metrics metrics.Recorder
}

// NewService builds a query service. A nil cache disables caching.
func NewService(source Source, cache Cache, rec metrics.Recorder) *Service {
	if cache == nil {
		cache = noopCache{}
	}
	if rec == nil {
		rec = metrics.Noop{}
	}
	return &Service{source: source, cache: cache, metrics: rec}
}

// All returns every stored post in no particular order.
func (s *Service) All(ctx context.Context) ([]domain.StoredPost, error) {
	return cached(s, "all", func() ([]domain.StoredPost, error) {
		return s.source.ListAll(ctx)
	})
}

// Latest returns scored posts, newest created_at first.
func (s *Service) Latest(ctx context.Context, limit int) ([]domain.StoredPost, error) {
	limit = clampLimit(limit, DefaultLatestLimit)
	return cached(s, "latest:"+strconv.Itoa(limit), func() ([]domain.StoredPost, error) {
		posts, err := s.scored(ctx)
		if err != nil {
			return nil, err
		}
		sortByCreatedDesc(posts)
		return head(posts, limit), nil
	})
}

// Leaderboard returns scored posts, highest score first.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]domain.StoredPost, error) {
	limit = clampLimit(limit, DefaultLeaderboardLimit)
	return cached(s, "leaderboard:"+strconv.Itoa(limit), func() ([]domain.StoredPost, error) {
		posts, err := s.scored(ctx)
		if err != nil {
			return nil, err
		}
		sortByScoreDesc(posts)
		return head(posts, limit), nil
	})
}

// Search returns scored posts whose text contains q, case-insensitively, highest score first.
func (s *Service) Search(ctx context.Context, q string, limit int) ([]domain.StoredPost, error) {
	needle := strings.ToLower(strings.TrimSpace(q))
	limit = clampLimit(limit, DefaultSearchLimit)
	return cached(s, "search:"+strconv.Itoa(limit)+":"+needle, func() ([]domain.StoredPost, error) {
		posts, err := s.scored(ctx)
		if err != nil {
			return nil, err
		}
		matches := posts[:0]
		for _, p := range posts {
			if strings.Contains(strings.ToLower(p.Text), needle) {
				matches = append(matches, p)
			}
		}
		sortByScoreDesc(matches)
		return head(matches, limit), nil
	})
}

// Stats computes store-wide figures.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	return cached(s, "stats", func() (Stats, error) {
		posts, err := s.source.ListAll(ctx)
		if err != nil {
			return Stats{}, err
		}

		var (
			st       = Stats{TotalPosts: len(posts)}
			sum      float64
			users    = make(map[string]struct{})
			lastTime time.Time
		)
		for _, p := range posts {
			if p.Score > 0 {
				st.ScoredPosts++
				sum += p.Score
			}
			if p.Username != "" {
				users[strings.ToLower(p.Username)] = struct{}{}
			}
			if t, ok := dedup.ParseCreatedAt(p.CreatedAt); ok && t.After(lastTime) {
				lastTime = t
				st.LastUpdate = p.CreatedAt
			}
			if p.InsertedAt.After(st.LastInserted) {
				st.LastInserted = p.InsertedAt
			}
		}
		if st.ScoredPosts > 0 {
			st.AverageScore = math.Round(sum/float64(st.ScoredPosts)*1000) / 1000
		}
		st.UniqueUsers = len(users)
		return st, nil
	})
}

func (s *Service) scored(ctx context.Context) ([]domain.StoredPost, error) {
	posts, err := s.source.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.StoredPost, 0, len(posts))
	for _, p := range posts {
		if p.Score > 0 {
			out = append(out, p)
		}
	}
	return out, nil
}

// cached serves key from the cache or computes, encodes and stores it. Errors are never cached.
func cached[T any](s *Service, key string, compute func() (T, error)) (T, error) {
	if raw, ok := s.cache.Get(key); ok {
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			s.metrics.IncCacheHit()
			return v, nil
		}
	}
	s.metrics.IncCacheMiss()

	v, err := compute()
	if err != nil {
		return v, err
	}
	if raw, err := json.Marshal(v); err == nil {
		s.cache.Set(key, raw)
	}
	return v, nil
}

func clampLimit(limit, def int) int {
	switch {
	case limit <= 0:
		return def
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

func head(posts []domain.StoredPost, n int) []domain.StoredPost {
	if len(posts) > n {
		return posts[:n]
	}
	return posts
}

func sortByScoreDesc(posts []domain.StoredPost) {
	sort.SliceStable(posts, func(i, j int) bool {
		if posts[i].Score != posts[j].Score {
			return posts[i].Score > posts[j].Score
		}
		return posts[i].ID < posts[j].ID
	})
}

// sortByCreatedDesc puts unparseable timestamps last.
func sortByCreatedDesc(posts []domain.StoredPost) {
	times := make(map[string]time.Time, len(posts))
	valid := make(map[string]bool, len(posts))
	for _, p := range posts {
		times[p.ID], valid[p.ID] = dedup.ParseCreatedAt(p.CreatedAt)
	}
	sort.SliceStable(posts, func(i, j int) bool {
		vi, vj := valid[posts[i].ID], valid[posts[j].ID]
		if vi != vj {
			return vi
		}
		return times[posts[i].ID].After(times[posts[j].ID])
	})
}
