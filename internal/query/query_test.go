package query

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nationradar/nation-radar/internal/domain"
)

type countingSource struct {
	posts []domain.StoredPost
	err   error
	calls int
}

func (c *countingSource) ListAll(context.Context) ([]domain.StoredPost, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	out := make([]domain.StoredPost, len(c.posts))
	copy(out, c.posts)
	return out, nil
}

func stored(id, user, text, created string, score float64) domain.StoredPost {
	return domain.StoredPost{
		ScoredPost: domain.ScoredPost{
			Post:  domain.Post{ID: id, Username: user, Text: text, CreatedAt: created},
			Score: score,
		},
		URL:        domain.Permalink(user, id),
		InsertedAt: time.Date(2025, 8, 12, 0, 0, 0, 0, time.UTC),
	}
}

func fixture() []domain.StoredPost {
	return []domain.StoredPost{
		stored("1", "alice", "Crestal launch is live", "Mon Aug 11 12:00:00 +0000 2025", 1.2),
		stored("2", "bob", "Nation radar update", "Tue Aug 12 09:00:00 +0000 2025", 1.8),
		stored("3", "Alice", "unscored crestal post", "Wed Aug 13 09:00:00 +0000 2025", 0),
		stored("4", "carol", "CRESTAL agents everywhere", "garbage date", 0.5),
	}
}

func ids(posts []domain.StoredPost) []string {
	out := make([]string, 0, len(posts))
	for _, p := range posts {
		out = append(out, p.ID)
	}
	return out
}

func TestLatestSkipsUnscoredAndOrdersByCreatedAt(t *testing.T) {
	svc := NewService(&countingSource{posts: fixture()}, nil, nil)

	posts, err := svc.Latest(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "1", "4"}, ids(posts))
}

func TestLeaderboardOrdersByScoreAndLimits(t *testing.T) {
	svc := NewService(&countingSource{posts: fixture()}, nil, nil)

	posts, err := svc.Leaderboard(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "1"}, ids(posts))
}

func TestSearchIsCaseInsensitive(t *testing.T) {
	svc := NewService(&countingSource{posts: fixture()}, nil, nil)

	posts, err := svc.Search(context.Background(), "crestal", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "4"}, ids(posts))
}

func TestStats(t *testing.T) {
	svc := NewService(&countingSource{posts: fixture()}, nil, nil)

	st, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, st.TotalPosts)
	assert.Equal(t, 3, st.ScoredPosts)
	assert.Equal(t, 1.167, st.AverageScore)
	assert.Equal(t, "Wed Aug 13 09:00:00 +0000 2025", st.LastUpdate)
	assert.Equal(t, 3, st.UniqueUsers)
}

func TestServiceCachesResults(t *testing.T) {
	src := &countingSource{posts: fixture()}
	svc := NewService(src, NewCache(1, 60), nil)

	first, err := svc.Leaderboard(context.Background(), 5)
	require.NoError(t, err)
	second, err := svc.Leaderboard(context.Background(), 5)
	require.NoError(t, err)

	assert.Equal(t, 1, src.calls)
	assert.Equal(t, ids(first), ids(second))

	_, err = svc.Leaderboard(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls, "different limit is a different key")
}

func TestServiceDoesNotCacheErrors(t *testing.T) {
	src := &countingSource{err: errors.New("disk gone")}
	svc := NewService(NewStoreSource(src), NewCache(1, 60), nil)

	_, err := svc.Stats(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)

	src.err = nil
	src.posts = fixture()
	st, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, st.TotalPosts)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 50, clampLimit(0, 50))
	assert.Equal(t, 7, clampLimit(7, 50))
	assert.Equal(t, MaxLimit, clampLimit(MaxLimit+1, 50))
}

func TestNewCacheDisabled(t *testing.T) {
	c := NewCache(0, 30)
	c.Set("k", []byte("v"))
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestRemoteSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, RemotePostsPath, r.URL.Path)
		body, _ := json.Marshal(map[string]any{"success": true, "data": fixture(), "count": 4})
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	}))
	defer srv.Close()

	src, err := NewRemoteSource(srv.URL+"/", nil)
	require.NoError(t, err)

	posts, err := src.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 4)
	assert.Equal(t, "https://x.com/alice/status/1", posts[0].URL)
	assert.Equal(t, 1.2, posts[0].Score)
}

func TestRemoteSourceErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	src, err := NewRemoteSource(srv.URL, nil)
	require.NoError(t, err)
	_, err = src.ListAll(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = NewRemoteSource("  ", nil)
	assert.Error(t, err)
}
