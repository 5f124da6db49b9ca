// Package seenset persists the fingerprints of content the pipeline has already
// considered, so later runs skip it before spending a scoring call.
package seenset

import (
	"context"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/nationradar/nation-radar/internal/dedup"
)

// Set loads and saves the cross-run fingerprint set.
type Set interface {
	// Load returns the persisted set. A set that was never saved loads as empty.
	Load(ctx context.Context) (dedup.Set, error)
	// Save persists every fingerprint in set.
	Save(ctx context.Context, set dedup.Set) error
	// Clear removes the persisted set.
	Clear(ctx context.Context) error
	Close() error
}

const (
	TypeFile  = "file"
	TypeRedis = "redis"
)

// Options selects and configures a backend.
type Options struct {
	Type      string
	Path      string
	RedisAddr string
	RedisKey  string
}

// New opens the configured seen-set backend.
func New(opts Options) (Set, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Type)) {
	case "", TypeFile:
		if strings.TrimSpace(opts.Path) == "" {
			return nil, fmt.Errorf("file seen-set requires a path")
		}
		return NewFile(opts.Path), nil
	case TypeRedis:
		if strings.TrimSpace(opts.RedisAddr) == "" {
			return nil, fmt.Errorf("redis seen-set requires an address")
		}
		client := goredis.NewClient(&goredis.Options{Addr: opts.RedisAddr})
		return NewRedis(client, opts.RedisKey), nil
	default:
		return nil, fmt.Errorf("unsupported seen-set type %q", opts.Type)
	}
}
