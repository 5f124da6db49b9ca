// Package metrics exposes pipeline and API counters to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder receives pipeline and API events.
type Recorder interface {
	AddPostsFound(keyword string, n int)
	IncStored(keyword string)
	IncDuplicate(keyword string)
	IncSeenSetSkip(keyword string)
	IncScoringError()
	IncStoreError()
	IncFetchError(keyword string)
	ObserveRun(duration time.Duration, finishedAt time.Time)
	IncCacheHit()
	IncCacheMiss()
	ObserveRequest(route string, status int, duration time.Duration)
	// Handler serves the exposition format, or nil when metrics are disabled.
	Handler() http.Handler
}

const namespace = "radar"

// Prometheus is a Recorder backed by its own registry.
type Prometheus struct {
	registry        *prometheus.Registry
	postsFound      *prometheus.CounterVec
	postsStored     *prometheus.CounterVec
	duplicates      *prometheus.CounterVec
	seenSetSkips    *prometheus.CounterVec
	fetchErrors     *prometheus.CounterVec
	scoringErrors   prometheus.Counter
	storeErrors     prometheus.Counter
	runDuration     prometheus.Histogram
	lastRun         prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New returns a Prometheus recorder, or a no-op recorder when enabled is false.
func New(enabled bool) Recorder {
	if !enabled {
		return Noop{}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Prometheus{
		registry: reg,
		postsFound: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "posts_found_total",
			Help: "Posts returned by the fetcher",
		}, []string{"keyword"}),
		postsStored: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "posts_stored_total",
			Help: "Posts admitted to the content store",
		}, []string{"keyword"}),
		duplicates: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "duplicates_skipped_total",
			Help: "Posts rejected by the content store as duplicates",
		}, []string{"keyword"}),
		seenSetSkips: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "seen_set_skips_total",
			Help: "Posts skipped because their content was seen in an earlier run",
		}, []string{"keyword"}),
		fetchErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "fetch_errors_total",
			Help: "Keyword fetches that failed",
		}, []string{"keyword"}),
		scoringErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "scoring_errors_total",
			Help: "Scoring calls that failed",
		}),
		storeErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "store_errors_total",
			Help: "Content store failures",
		}),
		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "run_duration_seconds",
			Help:    "Duration of ingestion runs",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
		}),
		lastRun: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "last_run_timestamp_seconds",
			Help: "Unix time the last ingestion run finished",
		}),
		cacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "query_cache_hits_total",
			Help: "Query cache hits",
		}),
		cacheMisses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "query_cache_misses_total",
			Help: "Query cache misses",
		}),
		requestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"route", "status"}),
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

func (m *Prometheus) AddPostsFound(keyword string, n int) {
	m.postsFound.WithLabelValues(keyword).Add(float64(n))
}
func (m *Prometheus) IncStored(keyword string)      { m.postsStored.WithLabelValues(keyword).Inc() }
func (m *Prometheus) IncDuplicate(keyword string)   { m.duplicates.WithLabelValues(keyword).Inc() }
func (m *Prometheus) IncSeenSetSkip(keyword string) { m.seenSetSkips.WithLabelValues(keyword).Inc() }
func (m *Prometheus) IncFetchError(keyword string)  { m.fetchErrors.WithLabelValues(keyword).Inc() }
func (m *Prometheus) IncScoringError()              { m.scoringErrors.Inc() }
func (m *Prometheus) IncStoreError()                { m.storeErrors.Inc() }
func (m *Prometheus) IncCacheHit()                  { m.cacheHits.Inc() }
func (m *Prometheus) IncCacheMiss()                 { m.cacheMisses.Inc() }

func (m *Prometheus) ObserveRun(duration time.Duration, finishedAt time.Time) {
	m.runDuration.Observe(duration.Seconds())
	m.lastRun.Set(float64(finishedAt.Unix()))
}

func (m *Prometheus) ObserveRequest(route string, status int, duration time.Duration) {
	m.requestsTotal.WithLabelValues(route, httpStatusBucket(status)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

func (m *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Prometheus) Registry() *prometheus.Registry { return m.registry }

func httpStatusBucket(code int) string {
	switch {
	case code <= 0:
		return strconv.Itoa(code)
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

// Noop discards everything.
type Noop struct{}

func (Noop) AddPostsFound(string, int)                 {}
func (Noop) IncStored(string)                          {}
func (Noop) IncDuplicate(string)                       {}
func (Noop) IncSeenSetSkip(string)                     {}
func (Noop) IncScoringError()                          {}
func (Noop) IncStoreError()                            {}
func (Noop) IncFetchError(string)                      {}
func (Noop) ObserveRun(time.Duration, time.Time)       {}
func (Noop) IncCacheHit()                              {}
func (Noop) IncCacheMiss()                             {}
func (Noop) ObserveRequest(string, int, time.Duration) {}
func (Noop) Handler() http.Handler                     { return nil }
