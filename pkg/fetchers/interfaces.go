package fetchers

import (
	"context"
	"errors"

	"github.com/nationradar/nation-radar/internal/domain"
	"github.com/nationradar/nation-radar/pkg/httpclient"
)

// ErrNoResults reports a fetch that completed but produced no posts.
var ErrNoResults = errors.New("no results")

// Fetcher retrieves the posts currently matching a keyword.
type Fetcher interface {
	ID() string
	Fetch(ctx context.Context, keyword string) ([]domain.Post, error)
}

// Builder creates a Fetcher for a registry source.
type Builder func(src Source, client HTTPClient) (Fetcher, error)

// HTTPClient aliases the shared httpclient.Client interface for clarity within fetchers.
type HTTPClient = httpclient.Client
