package redislimiter

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/PaulFidika/accesskit/ratelimit"
)

// Store is a ratelimit.WindowStore over Redis hashes. Each window is one key
// carrying count and updated_at fields; keys expire after the window plus
// ratelimit.Retention, so DeleteBefore has nothing to do.
type Store struct {
	rdb    redis.UniversalClient
	prefix string
}

// New returns a store writing keys under prefix (default "rl:").
func New(rdb redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "rl:"
	}
	return &Store{rdb: rdb, prefix: prefix}
}

func (s *Store) key(k ratelimit.Key, g ratelimit.Granularity, start time.Time) string {
	return fmt.Sprintf("%s%s:%s:%s:%s:%d", s.prefix, k.FunctionName, k.IdentifierType, k.Identifier, g, start.UTC().Unix())
}

func ttl(g ratelimit.Granularity) time.Duration { return g.Size() + ratelimit.Retention }

// DeleteBefore is a no-op; expiry is handled by key TTLs.
func (s *Store) DeleteBefore(context.Context, time.Time) (int64, error) { return 0, nil }

func (s *Store) Latest(ctx context.Context, key ratelimit.Key, g ratelimit.Granularity, since time.Time) (*ratelimit.Window, error) {
	// Windows are aligned, so the candidates are the boundaries between since and since+size.
	for start := g.Start(since.Add(g.Size())); !start.Before(since); start = start.Add(-g.Size()) {
		w, err := s.Get(ctx, key, g, start)
		if err != nil || w != nil {
			return w, err
		}
	}
	return nil, nil
}

func (s *Store) Get(ctx context.Context, key ratelimit.Key, g ratelimit.Granularity, start time.Time) (*ratelimit.Window, error) {
	vals, err := s.rdb.HGetAll(ctx, s.key(key, g, start)).Result()
	if err != nil {
		return nil, err
	}
	raw, ok := vals["count"]
	if !ok {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("redislimiter: bad count %q: %w", raw, err)
	}
	w := &ratelimit.Window{Key: key, Granularity: g, WindowStart: start.UTC(), RequestCount: n}
	if ms, err := strconv.ParseInt(vals["updated_at"], 10, 64); err == nil {
		w.UpdatedAt = time.UnixMilli(ms).UTC()
	}
	return w, nil
}

func (s *Store) Insert(ctx context.Context, w ratelimit.Window) error {
	k := s.key(w.Key, w.Granularity, w.WindowStart)
	ok, err := s.rdb.HSetNX(ctx, k, "count", w.RequestCount).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ratelimit.ErrWindowExists
	}
	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, k, "updated_at", w.UpdatedAt.UnixMilli())
	pipe.Expire(ctx, k, ttl(w.Granularity))
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Store) SetCount(ctx context.Context, key ratelimit.Key, g ratelimit.Granularity, start time.Time, count int, at time.Time) error {
	k := s.key(key, g, start)
	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, k, "count", count, "updated_at", at.UnixMilli())
	pipe.Expire(ctx, k, ttl(g))
	_, err := pipe.Exec(ctx)
	return err
}

// Increment implements ratelimit.AtomicIncrementer with HINCRBY.
func (s *Store) Increment(ctx context.Context, key ratelimit.Key, g ratelimit.Granularity, start, at time.Time) error {
	k := s.key(key, g, start)
	pipe := s.rdb.TxPipeline()
	pipe.HIncrBy(ctx, k, "count", 1)
	pipe.HSet(ctx, k, "updated_at", at.UnixMilli())
	pipe.Expire(ctx, k, ttl(g))
	_, err := pipe.Exec(ctx)
	return err
}
