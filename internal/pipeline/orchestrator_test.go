package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nationradar/nation-radar/internal/dedup"
	"github.com/nationradar/nation-radar/internal/domain"
	"github.com/nationradar/nation-radar/internal/seenset"
	"github.com/nationradar/nation-radar/internal/storage"
	"github.com/nationradar/nation-radar/pkg/publishers"
)

// fakeFetcher returns preset posts per keyword or an error.
type fakeFetcher struct {
	posts map[string][]domain.Post
	errs  map[string]error
	calls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, keyword string) ([]domain.Post, error) {
	f.calls = append(f.calls, keyword)
	if err := f.errs[keyword]; err != nil {
		return nil, err
	}
	return f.posts[keyword], nil
}

// fakeScorer records the texts it was asked to score.
type fakeScorer struct {
	mu     sync.Mutex
	inputs []string
	score  float64
	err    error
}

func (f *fakeScorer) Score(_ context.Context, formatted string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, formatted)
	if f.err != nil {
		return 0, f.err
	}
	return f.score, nil
}

// failingStore fails every append.
type failingStore struct{}

func (failingStore) Append(context.Context, domain.ScoredPost) (bool, error) {
	return false, fmt.Errorf("append: %w", storage.ErrStorage)
}

func (failingStore) LookupFingerprint(context.Context, string) (domain.SeenFingerprintRecord, bool, error) {
	return domain.SeenFingerprintRecord{}, false, nil
}

// cancellingStore cancels the run while an append is in flight.
type cancellingStore struct {
	cancel context.CancelFunc
}

func (c cancellingStore) Append(ctx context.Context, _ domain.ScoredPost) (bool, error) {
	c.cancel()
	return false, ctx.Err()
}

func (cancellingStore) LookupFingerprint(context.Context, string) (domain.SeenFingerprintRecord, bool, error) {
	return domain.SeenFingerprintRecord{}, false, nil
}

// memorySeen is an in-memory seen-set.
type memorySeen struct {
	set     dedup.Set
	saves   int
	loadErr error
	saveErr error
}

func (m *memorySeen) Load(context.Context) (dedup.Set, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	out := make(dedup.Set, len(m.set))
	for fp := range m.set {
		out.Add(fp)
	}
	return out, nil
}

func (m *memorySeen) Save(_ context.Context, set dedup.Set) error {
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.set = set
	return nil
}

// fakePublisher records published events.
type fakePublisher struct {
	events []publishers.Event
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, evt publishers.Event) (int, error) {
	f.events = append(f.events, evt)
	if f.err != nil {
		return 0, f.err
	}
	return 1, nil
}

func newTestStore(t *testing.T) storage.Store {
	t.Helper()
	store, err := storage.NewStore(storage.TypeBBolt, filepath.Join(t.TempDir(), "posts.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func post(id, text, created string) domain.Post {
	return domain.Post{ID: id, Text: text, Username: "u" + id, CreatedAt: created}
}

func noSleep(context.Context, time.Duration) error { return nil }

func newOrchestrator(deps Deps, opts Options) *Orchestrator {
	o := New(deps, opts)
	o.sleep = noSleep
	return o
}

func TestRunStoresEarliestAndPublishes(t *testing.T) {
	fetcher := &fakeFetcher{posts: map[string][]domain.Post{
		"crestal": {
			post("2", "Hello World", "2025-08-11T12:01:00Z"),
			post("1", "Hello World", "2025-08-11T12:00:00Z"),
			post("3", "Different text", "2025-08-11T12:02:00Z"),
		},
	}}
	scorer := &fakeScorer{score: 1.5}
	pub := &fakePublisher{}
	store := newTestStore(t)

	o := newOrchestrator(Deps{Fetcher: fetcher, Scorer: scorer, Store: store, Publisher: pub}, Options{})
	stats, err := o.Run(context.Background(), []string{"crestal"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.PostsFound != 3 || stats.PostsStored != 2 || stats.KeywordsProcessed != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.RunID == "" || stats.Degraded() {
		t.Fatalf("expected run id and clean run, got %+v", stats)
	}

	posts, err := store.ListAll(context.Background())
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	ids := map[string]bool{}
	for _, p := range posts {
		ids[p.ID] = true
	}
	if len(ids) != 2 || !ids["1"] || !ids["3"] {
		t.Fatalf("expected posts 1 and 3, got %v", ids)
	}

	if len(pub.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(pub.events))
	}
	if pub.events[0].RunID != stats.RunID || pub.events[0].Keyword != "crestal" {
		t.Fatalf("unexpected event %+v", pub.events[0])
	}
	if pub.events[0].Post.URL != "https://x.com/u1/status/1" {
		t.Fatalf("unexpected event url %q", pub.events[0].Post.URL)
	}
}

func TestRunSeenSetSuppressesRescoringAcrossRuns(t *testing.T) {
	store := newTestStore(t)
	seen := seenset.NewFile(filepath.Join(t.TempDir(), "seen.txt"))
	scorer := &fakeScorer{score: 1}

	first := newOrchestrator(Deps{
		Fetcher: &fakeFetcher{posts: map[string][]domain.Post{"k": {post("1", "Crestal Network is awesome! https://x.com/abc", "")}}},
		Scorer:  scorer,
		Store:   store,
		SeenSet: seen,
	}, Options{})
	if _, err := first.Run(context.Background(), []string{"k"}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if len(scorer.inputs) != 1 {
		t.Fatalf("expected one scorer call, got %d", len(scorer.inputs))
	}

	second := newOrchestrator(Deps{
		Fetcher: &fakeFetcher{posts: map[string][]domain.Post{"k": {post("99", "  crestal network is AWESOME!  https://x.com/def  ", "")}}},
		Scorer:  scorer,
		Store:   store,
		SeenSet: seen,
	}, Options{})
	stats, err := second.Run(context.Background(), []string{"k"})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(scorer.inputs) != 1 {
		t.Fatalf("scorer must not be called for repost, got %d calls", len(scorer.inputs))
	}
	if stats.SeenSetSkips != 1 || stats.PostsStored != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestRunIsolatesFetchFailures(t *testing.T) {
	fetcher := &fakeFetcher{
		posts: map[string][]domain.Post{"b": {post("1", "keyword b post", "")}},
		errs:  map[string]error{"a": errors.New("rate limited")},
	}
	o := newOrchestrator(Deps{Fetcher: fetcher, Scorer: &fakeScorer{score: 1}, Store: newTestStore(t)}, Options{})

	stats, err := o.Run(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.KeywordsProcessed != 2 || stats.FetchErrors != 1 || stats.PostsStored != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestRunScoringFailureStoresZeroScore(t *testing.T) {
	store := newTestStore(t)
	o := newOrchestrator(Deps{
		Fetcher: &fakeFetcher{posts: map[string][]domain.Post{"k": {post("1", "scored anyway", "")}}},
		Scorer:  &fakeScorer{err: errors.New("agent down")},
		Store:   store,
	}, Options{})

	stats, err := o.Run(context.Background(), []string{"k"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.ScoringErrors != 1 || stats.PostsStored != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	posts, _ := store.ListAll(context.Background())
	if len(posts) != 1 || posts[0].Score != 0 {
		t.Fatalf("expected stored post with zero score, got %+v", posts)
	}
}

func TestRunStoreFailureMarksDegradedAndStillMarksSeen(t *testing.T) {
	seen := &memorySeen{}
	o := newOrchestrator(Deps{
		Fetcher: &fakeFetcher{posts: map[string][]domain.Post{"k": {post("1", "will not persist", "")}}},
		Scorer:  &fakeScorer{score: 1},
		Store:   failingStore{},
		SeenSet: seen,
	}, Options{})

	stats, err := o.Run(context.Background(), []string{"k"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !stats.Degraded() || stats.StoreErrors != 1 || stats.DuplicatesSkipped != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if !seen.set.Has(dedup.FingerprintOf("will not persist")) {
		t.Fatalf("fingerprint should be saved even when the store fails")
	}
}

func TestRunCountsStoreDuplicates(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Append(context.Background(), domain.ScoredPost{Post: post("old", "already stored text", "")}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	o := newOrchestrator(Deps{
		Fetcher: &fakeFetcher{posts: map[string][]domain.Post{"k": {post("new", "Already stored text!", "")}}},
		Scorer:  &fakeScorer{score: 1},
		Store:   store,
	}, Options{})

	stats, err := o.Run(context.Background(), []string{"k"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.DuplicatesSkipped != 1 || stats.PostsStored != 0 || stats.Degraded() {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestRunAppliesCapAndSkipsRepeatedIDs(t *testing.T) {
	var posts []domain.Post
	for i := 0; i < 5; i++ {
		posts = append(posts, post(fmt.Sprint(i), fmt.Sprintf("distinct post number %d", i), ""))
	}
	fetcher := &fakeFetcher{posts: map[string][]domain.Post{"a": posts, "b": posts}}
	scorer := &fakeScorer{score: 1}
	o := newOrchestrator(Deps{Fetcher: fetcher, Scorer: scorer, Store: newTestStore(t)}, Options{PerKeywordCap: 2, TopN: 1})

	stats, err := o.Run(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// "a" stores ids 0 and 1; "b" skips them as already processed and stores 2 and 3.
	if stats.PostsStored != 4 {
		t.Fatalf("expected 4 stored posts, got %+v", stats)
	}
	if len(scorer.inputs) != 4 {
		t.Fatalf("expected 4 scorer calls, got %d", len(scorer.inputs))
	}
	if len(stats.Top) != 1 {
		t.Fatalf("expected top list of 1, got %d", len(stats.Top))
	}
}

func TestRunTickerKeywordRequiresWholeToken(t *testing.T) {
	fetcher := &fakeFetcher{posts: map[string][]domain.Post{"$NATION": {
		post("1", "bullish on $nation today", ""),
		post("2", "#NATION is trending", ""),
		post("3", "$NATIONAL is a different coin", ""),
	}}}
	scorer := &fakeScorer{score: 1}
	o := newOrchestrator(Deps{Fetcher: fetcher, Scorer: scorer, Store: newTestStore(t)}, Options{})

	stats, err := o.Run(context.Background(), []string{"$NATION"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.PostsStored != 1 || len(scorer.inputs) != 1 {
		t.Fatalf("expected only the $nation post, got %+v", stats)
	}
}

func TestRunFormatsEngagementForScorer(t *testing.T) {
	p := post("1", "with engagement", "")
	p.Engagement = domain.Engagement{Likes: 3, Views: -4, Replies: 1}
	scorer := &fakeScorer{score: 1}
	o := newOrchestrator(Deps{
		Fetcher: &fakeFetcher{posts: map[string][]domain.Post{"k": {p}}},
		Scorer:  scorer,
		Store:   newTestStore(t),
	}, Options{})

	if _, err := o.Run(context.Background(), []string{"k"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := "with engagement\n\nEngagement: Likes: 3, Retweets: 0, Replies: 1, Views: 0, Bookmarks: 0, Quote Tweets: 0"
	if len(scorer.inputs) != 1 || scorer.inputs[0] != want {
		t.Fatalf("unexpected scorer input %q", scorer.inputs)
	}
}

func TestRunCancellationReturnsPartialStatsAndSavesSeenSet(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	seen := &memorySeen{}
	fetcher := &fakeFetcher{posts: map[string][]domain.Post{"a": {post("1", "first keyword post", "")}}}
	o := New(Deps{Fetcher: fetcher, Scorer: &fakeScorer{score: 1}, Store: newTestStore(t), SeenSet: seen}, Options{KeywordDelay: time.Hour})
	o.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return sleepCtx(ctx, time.Hour)
	}

	stats, err := o.Run(ctx, []string{"a", "b"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if stats.KeywordsProcessed != 1 || stats.PostsStored != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if strings.Join(fetcher.calls, ",") != "a" {
		t.Fatalf("second keyword must not be fetched, calls=%v", fetcher.calls)
	}
	if seen.saves != 1 || len(seen.set) != 1 {
		t.Fatalf("seen-set must be saved once on cancellation, saves=%d size=%d", seen.saves, len(seen.set))
	}
}

func TestRunSeenSetSaveFailureIsNotFatal(t *testing.T) {
	seen := &memorySeen{saveErr: errors.New("read-only filesystem")}
	o := newOrchestrator(Deps{
		Fetcher: &fakeFetcher{posts: map[string][]domain.Post{"k": {post("1", "text", "")}}},
		Scorer:  &fakeScorer{score: 1},
		Store:   newTestStore(t),
		SeenSet: seen,
	}, Options{})

	if _, err := o.Run(context.Background(), []string{"k"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if seen.saves != 1 {
		t.Fatalf("expected one save attempt, got %d", seen.saves)
	}
}

func TestRunCancelledAppendIsNotAStoreError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	seen := &memorySeen{}
	o := newOrchestrator(Deps{
		Fetcher: &fakeFetcher{posts: map[string][]domain.Post{"k": {post("1", "interrupted write", "")}}},
		Scorer:  &fakeScorer{score: 1},
		Store:   cancellingStore{cancel: cancel},
		SeenSet: seen,
	}, Options{})

	stats, err := o.Run(ctx, []string{"k"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if stats.StoreErrors != 0 || stats.Degraded() {
		t.Fatalf("cancellation must not degrade the run: %+v", stats)
	}
	if seen.saves != 1 || seen.set.Has(dedup.FingerprintOf("interrupted write")) {
		t.Fatalf("interrupted post must stay eligible, saves=%d size=%d", seen.saves, len(seen.set))
	}
}

func TestRunSkipsSeenSetSaveWhenLoadFailed(t *testing.T) {
	seen := &memorySeen{loadErr: errors.New("corrupt seen-set")}
	scorer := &fakeScorer{score: 1}
	o := newOrchestrator(Deps{
		Fetcher: &fakeFetcher{posts: map[string][]domain.Post{"k": {post("1", "fresh take", "")}}},
		Scorer:  scorer,
		Store:   newTestStore(t),
		SeenSet: seen,
	}, Options{})

	stats, err := o.Run(context.Background(), []string{"k"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.PostsStored != 1 || len(scorer.inputs) != 1 {
		t.Fatalf("run must proceed with an empty set: %+v", stats)
	}
	if seen.saves != 0 {
		t.Fatalf("a set that failed to load must not be overwritten, saves=%d", seen.saves)
	}
}

func TestRunRequiresCollaborators(t *testing.T) {
	if _, err := New(Deps{}, Options{}).Run(context.Background(), []string{"k"}); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	var o *Orchestrator
	if _, err := o.Run(context.Background(), nil); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized for nil orchestrator, got %v", err)
	}
}

func TestTickerMatcher(t *testing.T) {
	match := tickerMatcher("$NATION")
	cases := map[string]bool{
		"$NATION to the moon": true,
		"loving $nation.":     true,
		"#NATION":             false,
		"$NATIONS":            false,
		"nation":              false,
	}
	for text, want := range cases {
		if got := match(text); got != want {
			t.Fatalf("match(%q) = %v, want %v", text, got, want)
		}
	}
	if !tickerMatcher("crestal")("anything") {
		t.Fatalf("plain keywords match everything")
	}
}
