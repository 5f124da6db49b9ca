package fetchers

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nationradar/nation-radar/pkg/httpclient"
)

const (
	TypeRapidAPITwitter = "rapidapi_twitter"
	TypeWebScraper      = "web_scraper"
	TypeMock            = "mock"
)

// Registry resolves the Fetcher for a registry source by its type.
type Registry struct {
	mu       sync.RWMutex
	builders map[string]Builder
	client   HTTPClient
}

// NewRegistry builds a registry over the given builders. A nil client selects the default.
func NewRegistry(client HTTPClient, builders map[string]Builder) *Registry {
	if client == nil {
		client = DefaultHTTPClient()
	}
	r := &Registry{builders: make(map[string]Builder), client: client}
	for typ, b := range builders {
		r.Register(typ, b)
	}
	return r
}

// Register associates a builder with a source type.
func (r *Registry) Register(typ string, b Builder) {
	key := strings.ToLower(strings.TrimSpace(typ))
	if key == "" || b == nil {
		return
	}
	r.mu.Lock()
	r.builders[key] = b
	r.mu.Unlock()
}

// FetcherFor builds the fetcher for src.
func (r *Registry) FetcherFor(src Source) (Fetcher, error) {
	if r == nil {
		return nil, fmt.Errorf("fetcher registry is nil")
	}
	if strings.TrimSpace(src.ID) == "" {
		return nil, fmt.Errorf("fetcher id is empty")
	}

	r.mu.RLock()
	b := r.builders[strings.ToLower(strings.TrimSpace(src.Type))]
	r.mu.RUnlock()

	if b == nil {
		return nil, fmt.Errorf("no fetcher registered for source %q (type %q)", src.ID, src.Type)
	}
	return b(src, r.client)
}

// DefaultHTTPClient returns a tuned client for fetchers.
func DefaultHTTPClient() HTTPClient { return httpclient.NewRestyClient(30 * time.Second) }

// DefaultRegistry wires up the known fetcher types.
func DefaultRegistry(client HTTPClient) *Registry {
	return NewRegistry(client, map[string]Builder{
		TypeRapidAPITwitter: NewTwitterFetcher,
		TypeWebScraper:      NewScraperFetcher,
		TypeMock:            NewMockFetcher,
	})
}
