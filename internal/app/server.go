package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nationradar/nation-radar/internal/api"
	"github.com/nationradar/nation-radar/internal/config"
	"github.com/nationradar/nation-radar/internal/logger"
	"github.com/nationradar/nation-radar/internal/metrics"
	"github.com/nationradar/nation-radar/internal/query"
	"github.com/nationradar/nation-radar/internal/storage"
)

const shutdownTimeout = 10 * time.Second

// Server runs the read-only dashboard API.
type Server struct {
	srv *http.Server
	log logger.Logger
}

// NewServer wires the query layer and router for source.
func NewServer(cfg *config.Config, source query.Source, rec metrics.Recorder, log logger.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if source == nil {
		return nil, fmt.Errorf("query source must not be nil")
	}
	log = logger.Ensure(log)

	svc := query.NewService(source, query.NewCache(cfg.CacheSizeMB, cfg.CacheTTLSecs), rec)
	router := api.NewRouter(svc, api.Options{
		ServiceName: cfg.AppName,
		Release:     cfg.Env == "production",
		Metrics:     rec,
		Logger:      log,
	})

	return &Server{
		srv: &http.Server{
			Addr:              cfg.APIAddr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		log: log,
	}, nil
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.InfoObj("api server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	s.log.InfoObj("api server stopped", "addr", s.srv.Addr)
	return nil
}

// OpenQuerySource resolves the configured query source. When query_source is local and
// store is nil, the store is opened here and the returned close func releases it.
func OpenQuerySource(cfg *config.Config, store storage.Store) (query.Source, func() error, error) {
	noop := func() error { return nil }

	if cfg.QuerySource == "remote" {
		src, err := query.NewRemoteSource(cfg.RemoteStoreURL, nil)
		if err != nil {
			return nil, noop, err
		}
		return src, noop, nil
	}

	if store != nil {
		return query.NewStoreSource(store), noop, nil
	}
	opened, err := storage.NewStore(cfg.StorageType, cfg.StoragePath())
	if err != nil {
		return nil, noop, fmt.Errorf("init storage: %w", err)
	}
	return query.NewStoreSource(opened), opened.Close, nil
}
