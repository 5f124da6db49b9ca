// Package query is the read-only view over stored posts used by the dashboard API.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/nationradar/nation-radar/internal/domain"
	"github.com/nationradar/nation-radar/pkg/httpclient"
)

// ErrUnavailable marks a source that could not be read.
var ErrUnavailable = errors.New("post source unavailable")

// Source lists every stored post.
type Source interface {
	ListAll(ctx context.Context) ([]domain.StoredPost, error)
}

// StoreSource reads from a local content store handle such as storage.Store.
type StoreSource struct {
	store Source
}

// NewStoreSource wraps a store opened by the caller. The caller keeps ownership.
func NewStoreSource(store Source) *StoreSource {
	return &StoreSource{store: store}
}

func (s *StoreSource) ListAll(ctx context.Context) ([]domain.StoredPost, error) {
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("%w: no store configured", ErrUnavailable)
	}
	posts, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return posts, nil
}

// RemotePostsPath is the endpoint a remote radar serves its full post list on.
const RemotePostsPath = "/api/posts/all"

// DefaultRemoteTimeout bounds remote reads.
const DefaultRemoteTimeout = 15 * time.Second

// RemoteSource reads the post list from another radar's API.
type RemoteSource struct {
	baseURL string
	client  httpclient.Client
}

// NewRemoteSource targets baseURL. A nil client gets a resty client.
func NewRemoteSource(baseURL string, client httpclient.Client) (*RemoteSource, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("remote source requires a base url")
	}
	if client == nil {
		client = httpclient.NewRestyClient(DefaultRemoteTimeout)
	}
	return &RemoteSource{baseURL: baseURL, client: client}, nil
}

type remotePostsResponse struct {
	Success bool                `json:"success"`
	Data    []domain.StoredPost `json:"data"`
}

func (r *RemoteSource) ListAll(ctx context.Context) ([]domain.StoredPost, error) {
	resp, err := r.client.Get(ctx, r.baseURL+RemotePostsPath, nil, map[string]string{"Accept": "application/json"})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if code := resp.StatusCode(); code < 200 || code >= 300 {
		return nil, fmt.Errorf("%w: remote returned status %d", ErrUnavailable, code)
	}

	var payload remotePostsResponse
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return nil, fmt.Errorf("%w: decode remote posts: %w", ErrUnavailable, err)
	}
	return payload.Data, nil
}
