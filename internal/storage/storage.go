// Package storage provides the durable content store: posts keyed by id plus a
// content-fingerprint index that admits each distinct content at most once.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nationradar/nation-radar/internal/dedup"
	"github.com/nationradar/nation-radar/internal/domain"
)

// ErrStorage marks failures of the underlying storage layer. A rejected duplicate is never
// reported through this error.
var ErrStorage = errors.New("storage failure")

// Store persists scored posts at most once per id and at most once per content fingerprint.
type Store interface {
	// Append persists post and reports true, or reports false when either its id or its
	// content fingerprint is already stored. The check and the insert are one atomic step.
	Append(ctx context.Context, post domain.ScoredPost) (bool, error)
	// ListAll returns every persisted post in no particular order.
	ListAll(ctx context.Context) ([]domain.StoredPost, error)
	// LookupFingerprint returns the fingerprint index entry for a hex fingerprint.
	LookupFingerprint(ctx context.Context, fp string) (domain.SeenFingerprintRecord, bool, error)
	// Count returns the number of persisted posts.
	Count(ctx context.Context) (int, error)
	// Purge removes every post and fingerprint.
	Purge(ctx context.Context) error
	Close() error
}

const (
	TypeBBolt  = "bbolt"
	TypeSQLite = "sqlite"
)

// NewStore opens the configured storage backend.
func NewStore(typ, path string) (Store, error) {
	typ = strings.TrimSpace(strings.ToLower(typ))
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%s storage requires a path", typ)
	}

	switch typ {
	case "", TypeBBolt:
		store, err := openBolt(path)
		if err != nil {
			return nil, err
		}
		return store, nil
	case TypeSQLite:
		store, err := openSQLite(path)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported storage type %q", typ)
	}
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

// row is the persisted form of a post, shared by both backends.
type row struct {
	ID         string            `json:"id"`
	Username   string            `json:"username"`
	Text       string            `json:"text"`
	Score      float64           `json:"score"`
	URL        string            `json:"url"`
	CreatedAt  string            `json:"created_at"`
	Engagement domain.Engagement `json:"engagement"`
	InsertedAt time.Time         `json:"inserted_at"`
}

func newRow(post domain.ScoredPost, now time.Time) row {
	return row{
		ID:         post.ID,
		Username:   post.Username,
		Text:       post.Text,
		Score:      post.Score,
		URL:        domain.Permalink(post.Username, post.ID),
		CreatedAt:  post.CreatedAt,
		Engagement: post.Engagement.Sanitize(),
		InsertedAt: now.UTC(),
	}
}

func (r row) stored() domain.StoredPost {
	return domain.StoredPost{
		ScoredPost: domain.ScoredPost{
			Post: domain.Post{
				ID:         r.ID,
				Text:       r.Text,
				Username:   r.Username,
				CreatedAt:  r.CreatedAt,
				Engagement: r.Engagement,
			},
			Score: r.Score,
		},
		URL:        r.URL,
		InsertedAt: r.InsertedAt,
	}
}

// fingerprintKey is the index key for a post's content.
func fingerprintKey(post domain.ScoredPost) string {
	return dedup.FingerprintOf(post.Text).String()
}
