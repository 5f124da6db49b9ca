package seenset

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/nationradar/nation-radar/internal/dedup"
)

const (
	DefaultRedisKey = "nation-radar:seen"
	saddChunk       = 500
)

// Redis keeps the set in a single Redis set key, shared by every process that points at it.
type Redis struct {
	client *goredis.Client
	key    string
}

// NewRedis wraps client. An empty key selects DefaultRedisKey.
func NewRedis(client *goredis.Client, key string) *Redis {
	if key == "" {
		key = DefaultRedisKey
	}
	return &Redis{client: client, key: key}
}

func (r *Redis) Load(ctx context.Context) (dedup.Set, error) {
	members, err := r.client.SMembers(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers %s: %w", r.key, err)
	}
	set := make(dedup.Set, len(members))
	for _, m := range members {
		fp, err := dedup.ParseFingerprint(m)
		if err != nil {
			continue
		}
		set.Add(fp)
	}
	return set, nil
}

// Save adds every fingerprint to the key. Members are never removed, so concurrent
// writers converge on the union.
func (r *Redis) Save(ctx context.Context, set dedup.Set) error {
	if len(set) == 0 {
		return nil
	}

	pipe := r.client.Pipeline()
	batch := make([]interface{}, 0, saddChunk)
	for fp := range set {
		batch = append(batch, fp.String())
		if len(batch) == saddChunk {
			pipe.SAdd(ctx, r.key, batch...)
			batch = make([]interface{}, 0, saddChunk)
		}
	}
	if len(batch) > 0 {
		pipe.SAdd(ctx, r.key, batch...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis sadd %s: %w", r.key, err)
	}
	return nil
}

func (r *Redis) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", r.key, err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
