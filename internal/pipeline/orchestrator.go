// Package pipeline runs the keyword ingestion loop: fetch, dedupe, score and persist.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/nationradar/nation-radar/internal/dedup"
	"github.com/nationradar/nation-radar/internal/domain"
	"github.com/nationradar/nation-radar/internal/logger"
	"github.com/nationradar/nation-radar/internal/metrics"
	"github.com/nationradar/nation-radar/pkg/publishers"
)

// ErrNotInitialized is returned when Run is called on an orchestrator missing a collaborator.
var ErrNotInitialized = errors.New("orchestrator is not initialized")

const (
	DefaultPerKeywordCap = 300
	DefaultTopN          = 5

	seenSetSaveTimeout = 10 * time.Second
)

// Post outcomes logged at debug level.
const (
	stateSeenSetSkip       = "seen_set_skip"
	stateStored            = "stored"
	stateRejectedDuplicate = "rejected_duplicate"
	stateStoreError        = "store_error"
)

// Options tunes a run.
type Options struct {
	// PerKeywordCap bounds how many posts are stored per keyword. Zero means the default.
	PerKeywordCap int
	// TopN is the length of RunStats.Top. Zero means the default.
	TopN         int
	KeywordDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.PerKeywordCap <= 0 {
		o.PerKeywordCap = DefaultPerKeywordCap
	}
	if o.TopN <= 0 {
		o.TopN = DefaultTopN
	}
	if o.KeywordDelay < 0 {
		o.KeywordDelay = 0
	}
	return o
}

// Deps are the collaborators of an Orchestrator. Publisher, SeenSet, Metrics and Logger
// are optional.
type Deps struct {
	Fetcher   Fetcher
	Scorer    Scorer
	Store     ContentStore
	SeenSet   SeenSet
	Publisher EventPublisher
	Metrics   metrics.Recorder
	Logger    logger.Logger
}

// Orchestrator processes keywords one at a time and posts one at a time.
type Orchestrator struct {
	fetcher   Fetcher
	scorer    Scorer
	store     ContentStore
	seen      SeenSet
	publisher EventPublisher
	metrics   metrics.Recorder
	log       logger.Logger
	opts      Options
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
}

// New wires an orchestrator.
func New(deps Deps, opts Options) *Orchestrator {
	rec := deps.Metrics
	if rec == nil {
		rec = metrics.Noop{}
	}
	return &Orchestrator{
		fetcher:   deps.Fetcher,
		scorer:    deps.Scorer,
		store:     deps.Store,
		seen:      deps.SeenSet,
		publisher: deps.Publisher,
		metrics:   rec,
		log:       logger.Ensure(deps.Logger),
		opts:      opts.withDefaults(),
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

// keywordRun carries the state shared across the keywords of one run.
type keywordRun struct {
	stats     *RunStats
	seen      dedup.Set
	seenOK    bool
	processed map[string]struct{}
}

// Run processes keywords in order. A keyword whose fetch fails is counted with zero posts and
// the run moves on. Cancellation stops the run between posts or keywords and returns the
// stats gathered so far together with ctx.Err(). The seen-set is saved once either way.
func (o *Orchestrator) Run(ctx context.Context, keywords []string) (RunStats, error) {
	if o == nil || o.fetcher == nil || o.scorer == nil || o.store == nil {
		return RunStats{}, ErrNotInitialized
	}

	stats := RunStats{
		RunID:     uuid.NewString(),
		StartedAt: o.now().UTC(),
	}
	seen, seenOK := o.loadSeen(ctx)
	run := &keywordRun{
		stats:     &stats,
		seen:      seen,
		seenOK:    seenOK,
		processed: make(map[string]struct{}),
	}

	o.log.InfoObj("run started", "run_meta", map[string]any{
		"run_id":          stats.RunID,
		"keywords":        keywords,
		"seen_set_size":   len(run.seen),
		"per_keyword_cap": o.opts.PerKeywordCap,
	})

	var runErr error
	for i, keyword := range keywords {
		if i > 0 && o.opts.KeywordDelay > 0 {
			if err := o.sleep(ctx, o.opts.KeywordDelay); err != nil {
				runErr = err
				break
			}
		}
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		if err := o.processKeyword(ctx, keyword, run); err != nil {
			runErr = err
			break
		}
		stats.KeywordsProcessed++
	}

	if run.seenOK {
		o.saveSeen(ctx, run.seen)
	} else {
		o.log.WarnObj("seen-set not saved; it failed to load at run start", "seen_set_size", len(run.seen))
	}

	finished := o.now()
	stats.finish(finished, o.opts.TopN)
	o.metrics.ObserveRun(stats.Duration, finished)

	fields := stats.Fields()
	switch {
	case runErr != nil:
		fields["error"] = runErr.Error()
		o.log.WarnObj("run interrupted", "run_stats", fields)
	case stats.Degraded():
		o.log.ErrorObj("run completed with store errors", "run_stats", fields)
	default:
		o.log.InfoObj("run completed", "run_stats", fields)
	}
	return stats, runErr
}

// processKeyword only returns an error when ctx is done.
func (o *Orchestrator) processKeyword(ctx context.Context, keyword string, run *keywordRun) error {
	posts, err := o.fetcher.Fetch(ctx, keyword)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		run.stats.FetchErrors++
		o.metrics.IncFetchError(keyword)
		o.log.WarnObj("fetch failed", "keyword_error", map[string]any{
			"keyword": keyword,
			"error":   err.Error(),
		})
		return nil
	}

	run.stats.PostsFound += len(posts)
	o.metrics.AddPostsFound(keyword, len(posts))
	if len(posts) == 0 {
		o.log.InfoObj("no posts found", "keyword", keyword)
		return nil
	}

	survivors := dedup.DedupeEarliest(posts)
	matches := tickerMatcher(keyword)
	stored := 0

	for _, post := range survivors {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !matches(post.Text) {
			continue
		}
		if stored >= o.opts.PerKeywordCap {
			break
		}
		if post.ID == "" {
			continue
		}
		if _, done := run.processed[post.ID]; done {
			continue
		}
		run.processed[post.ID] = struct{}{}
		run.stats.PostsConsidered++

		ok, err := o.processPost(ctx, keyword, post, run)
		if err != nil {
			return err
		}
		if ok {
			stored++
		}
	}

	o.log.InfoObj("keyword processed", "keyword_result", map[string]any{
		"keyword": keyword,
		"found":   len(posts),
		"unique":  len(survivors),
		"stored":  stored,
		"run_id":  run.stats.RunID,
	})
	return nil
}

// processPost reports whether the post was stored. It only returns an error when ctx is done.
func (o *Orchestrator) processPost(ctx context.Context, keyword string, post domain.Post, run *keywordRun) (bool, error) {
	if post.Engagement.HasSignal() {
		post.Engagement = post.Engagement.Sanitize()
	} else {
		post.Engagement = domain.Engagement{}
	}

	fp := dedup.FingerprintOf(post.Text)
	if run.seen.Has(fp) {
		run.stats.SeenSetSkips++
		o.metrics.IncSeenSetSkip(keyword)
		o.logState(stateSeenSetSkip, keyword, post.ID, nil)
		return false, nil
	}

	score, err := o.scorer.Score(ctx, FormatForScoring(post))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		score = 0
		run.stats.ScoringErrors++
		o.metrics.IncScoringError()
		o.log.WarnObj("scoring failed", "score_error", map[string]any{
			"keyword": keyword,
			"post_id": post.ID,
			"error":   err.Error(),
		})
	}

	scored := domain.ScoredPost{Post: post, Score: score}
	ok, err := o.store.Append(ctx, scored)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			// Interrupted, not failed: the post stays eligible for the next run.
			return false, ctxErr
		}
	}

	// From here the fingerprint counts as seen whatever the store decided.
	run.seen.Add(fp)
	switch {
	case err != nil:
		run.stats.StoreErrors++
		o.metrics.IncStoreError()
		o.log.ErrorObj("store append failed", "store_error", map[string]any{
			"keyword": keyword,
			"post_id": post.ID,
			"error":   err.Error(),
		})
		o.logState(stateStoreError, keyword, post.ID, nil)
		return false, nil
	case !ok:
		run.stats.DuplicatesSkipped++
		o.metrics.IncDuplicate(keyword)
		o.logState(stateRejectedDuplicate, keyword, post.ID, o.canonicalOf(ctx, fp))
		return false, nil
	}

	run.stats.recordStored(keyword, scored)
	o.metrics.IncStored(keyword)
	o.logState(stateStored, keyword, post.ID, map[string]any{"score": score})
	o.publish(ctx, run.stats.RunID, keyword, scored)
	return true, nil
}

func (o *Orchestrator) canonicalOf(ctx context.Context, fp dedup.Fingerprint) map[string]any {
	rec, found, err := o.store.LookupFingerprint(ctx, fp.String())
	if err != nil || !found {
		return nil
	}
	return map[string]any{"canonical_id": rec.CanonicalID}
}

func (o *Orchestrator) publish(ctx context.Context, runID, keyword string, post domain.ScoredPost) {
	if o.publisher == nil {
		return
	}
	evt := publishers.NewEvent(runID, keyword, domain.StoredPost{
		ScoredPost: post,
		URL:        domain.Permalink(post.Username, post.ID),
		InsertedAt: o.now().UTC(),
	})
	if _, err := o.publisher.Publish(ctx, evt); err != nil {
		o.log.WarnObj("publish failed", "publish_error", map[string]any{
			"keyword": keyword,
			"post_id": post.ID,
			"error":   err.Error(),
		})
	}
}

func (o *Orchestrator) logState(state, keyword, postID string, extra map[string]any) {
	fields := map[string]any{
		"state":   state,
		"keyword": keyword,
		"post_id": postID,
	}
	for k, v := range extra {
		fields[k] = v
	}
	o.log.DebugObj("post processed", "post_state", fields)
}

// loadSeen reports false when the set could not be read. Such a run starts empty and must not
// save, or it would overwrite the persisted history with this run's fingerprints alone.
func (o *Orchestrator) loadSeen(ctx context.Context) (dedup.Set, bool) {
	if o.seen == nil {
		return make(dedup.Set), true
	}
	set, err := o.seen.Load(ctx)
	if err != nil {
		o.log.WarnObj("seen-set load failed; starting empty", "error", err.Error())
		return make(dedup.Set), false
	}
	if set == nil {
		set = make(dedup.Set)
	}
	return set, true
}

// saveSeen is best-effort and still runs after ctx is cancelled.
func (o *Orchestrator) saveSeen(ctx context.Context, set dedup.Set) {
	if o.seen == nil {
		return
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), seenSetSaveTimeout)
	defer cancel()

	if err := o.seen.Save(saveCtx, set); err != nil {
		o.log.WarnObj("seen-set save failed", "error", err.Error())
		return
	}
	o.log.DebugObj("seen-set saved", "seen_set_size", len(set))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
