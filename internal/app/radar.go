package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nationradar/nation-radar/internal/config"
	"github.com/nationradar/nation-radar/internal/logger"
	"github.com/nationradar/nation-radar/internal/metrics"
	"github.com/nationradar/nation-radar/internal/pipeline"
	"github.com/nationradar/nation-radar/internal/seenset"
	"github.com/nationradar/nation-radar/internal/storage"
	"github.com/nationradar/nation-radar/pkg/fetchers"
	"github.com/nationradar/nation-radar/pkg/publishers"
	"github.com/nationradar/nation-radar/pkg/scorer"
)

// Radar is the ingestion runtime. It opens the store, the seen-set, the fetcher, the scorer
// and the publishers once and runs the orchestrator on a fixed interval.
type Radar struct {
	cfg          *config.Config
	keywords     []string
	store        storage.Store
	seen         seenset.Set
	fanout       *publishers.Fanout
	orchestrator *pipeline.Orchestrator
	interval     time.Duration
	log          logger.Logger
}

// NewRadar builds the runtime from config. Resources opened before a failure are released.
func NewRadar(ctx context.Context, cfg *config.Config, log logger.Logger, rec metrics.Recorder) (r *Radar, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	log = logger.Ensure(log)
	if rec == nil {
		rec = metrics.Noop{}
	}

	fetcher, err := buildFetcher(cfg, log)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewStore(cfg.StorageType, cfg.StoragePath())
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	defer func() {
		if err != nil {
			store.Close()
		}
	}()
	log.InfoObj("storage initialized", "storage_config", map[string]any{
		"type": cfg.StorageType,
		"path": cfg.StoragePath(),
	})

	seen, err := seenset.New(seenset.Options{
		Type:      cfg.SeenSetType,
		Path:      cfg.SeenSetPath,
		RedisAddr: cfg.RedisAddr,
		RedisKey:  cfg.RedisKey,
	})
	if err != nil {
		return nil, fmt.Errorf("init seen-set: %w", err)
	}
	defer func() {
		if err != nil {
			seen.Close()
		}
	}()

	fanout, err := buildFanout(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	if cfg.ScorerAPIKey == "" {
		log.WarnObj("scorer api key is empty; scoring calls may be rejected", "scorer_base_url", cfg.ScorerBaseURL)
	}
	sc := scorer.NewAgentScorer(scorer.Options{
		BaseURL:     cfg.ScorerBaseURL,
		APIKey:      cfg.ScorerAPIKey,
		Timeout:     cfg.ScorerTimeout,
		MinInterval: cfg.ScorerMinInterval,
		MaxRetries:  cfg.ScorerMaxRetries,
	})

	orch := pipeline.New(pipeline.Deps{
		Fetcher:   fetcher,
		Scorer:    sc,
		Store:     store,
		SeenSet:   seen,
		Publisher: fanout,
		Metrics:   rec,
		Logger:    log,
	}, pipeline.Options{
		PerKeywordCap: cfg.PerKeywordCap,
		TopN:          cfg.TopN,
		KeywordDelay:  cfg.KeywordDelay,
	})

	return &Radar{
		cfg:          cfg,
		keywords:     cfg.Keywords,
		store:        store,
		seen:         seen,
		fanout:       fanout,
		orchestrator: orch,
		interval:     cfg.CrawlInterval,
		log:          log,
	}, nil
}

func buildFetcher(cfg *config.Config, log logger.Logger) (fetchers.Fetcher, error) {
	sources, err := fetchers.LoadSources(cfg.FetchersFile)
	if err != nil {
		return nil, fmt.Errorf("load fetchers registry: %w", err)
	}
	src, ok := sources.ByID(cfg.FetcherID)
	if !ok {
		return nil, fmt.Errorf("fetcher %q not found in %s", cfg.FetcherID, cfg.FetchersFile)
	}
	fetcher, err := fetchers.DefaultRegistry(nil).FetcherFor(src)
	if err != nil {
		return nil, fmt.Errorf("build fetcher %s: %w", src.ID, err)
	}
	log.InfoObj("fetcher selected", "fetcher_meta", map[string]any{
		"id":            src.ID,
		"type":          src.Type,
		"days_lookback": src.DaysLookback,
	})
	return fetcher, nil
}

// buildFanout returns an empty fanout when no publishers file is configured.
func buildFanout(ctx context.Context, cfg *config.Config, log logger.Logger) (*publishers.Fanout, error) {
	if cfg.PublishersFile == "" {
		log.InfoObj("no publishers configured", "publishers_file", "")
		return publishers.NewFanout(nil), nil
	}

	reg, err := publishers.LoadRegistry(cfg.PublishersFile)
	if err != nil {
		return nil, fmt.Errorf("load publishers registry: %w", err)
	}
	enabled := reg.Enabled()
	clients, err := publishers.BuildAll(ctx, publishers.DefaultRegistry(), reg.All(), log)
	if err != nil {
		return nil, fmt.Errorf("build publishers: %w", err)
	}

	summaries := make([]map[string]string, 0, len(enabled))
	for _, p := range enabled {
		summaries = append(summaries, map[string]string{"id": p.ID, "type": p.Type})
	}
	log.InfoObj("publishers registry loaded", "publishers_meta", map[string]any{
		"count":      len(summaries),
		"publishers": summaries,
	})
	return publishers.NewFanout(clients), nil
}

// RunOnce performs a single ingestion run over the configured keywords.
func (r *Radar) RunOnce(ctx context.Context) (pipeline.RunStats, error) {
	if r == nil || r.orchestrator == nil {
		return pipeline.RunStats{}, fmt.Errorf("radar is not initialized")
	}
	if len(r.keywords) == 0 {
		return pipeline.RunStats{}, fmt.Errorf("no keywords configured")
	}
	return r.orchestrator.Run(ctx, r.keywords)
}

// Run performs an initial run and then one per interval until ctx is cancelled.
func (r *Radar) Run(ctx context.Context) error {
	if r == nil || r.orchestrator == nil {
		return fmt.Errorf("radar is not initialized")
	}
	if len(r.keywords) == 0 {
		r.log.WarnObj("no keywords configured; radar idle", "keywords", r.cfg.KeywordsRaw)
		<-ctx.Done()
		return nil
	}

	r.log.InfoObj("radar loop starting", "radar_state", map[string]any{
		"keywords":         r.keywords,
		"publishers_count": r.fanout.Size(),
		"crawl_interval":   r.interval.String(),
	})

	r.runLogged(ctx, "initial run failed")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.InfoObj("radar loop exiting", "reason", ctx.Err().Error())
			return nil
		case <-ticker.C:
			r.runLogged(ctx, "scheduled run failed")
		}
	}
}

func (r *Radar) runLogged(ctx context.Context, msg string) {
	if _, err := r.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
		r.log.ErrorObj(msg, "error", err.Error())
	}
}

// Store exposes the content store so the API can share the handle.
func (r *Radar) Store() storage.Store { return r.store }

// Close releases the store, the seen-set and the publishers.
func (r *Radar) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	if r.fanout != nil {
		if err := r.fanout.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publishers: %w", err))
		}
	}
	if r.seen != nil {
		if err := r.seen.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close seen-set: %w", err))
		}
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close storage: %w", err))
		}
	}
	return errors.Join(errs...)
}
