package pipeline

import (
	"context"

	"github.com/nationradar/nation-radar/internal/dedup"
	"github.com/nationradar/nation-radar/internal/domain"
	"github.com/nationradar/nation-radar/pkg/publishers"
)

// Fetcher returns candidate posts for a keyword.
type Fetcher interface {
	Fetch(ctx context.Context, keyword string) ([]domain.Post, error)
}

// Scorer rates a formatted post.
type Scorer interface {
	Score(ctx context.Context, formatted string) (float64, error)
}

// ContentStore is the part of the durable store the orchestrator writes through.
type ContentStore interface {
	Append(ctx context.Context, post domain.ScoredPost) (bool, error)
	LookupFingerprint(ctx context.Context, fp string) (domain.SeenFingerprintRecord, bool, error)
}

// SeenSet persists fingerprints scored in earlier runs.
type SeenSet interface {
	Load(ctx context.Context) (dedup.Set, error)
	Save(ctx context.Context, set dedup.Set) error
}

// EventPublisher publishes newly stored posts downstream.
type EventPublisher interface {
	Publish(ctx context.Context, evt publishers.Event) (int, error)
}
