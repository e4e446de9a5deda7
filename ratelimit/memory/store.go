package memorylimiter

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/PaulFidika/accesskit/ratelimit"
)

// Store is an in-memory ratelimit.WindowStore.
// It is intended for tests and single-node development. Each method locks
// on its own, so the limiter's read-then-write sequence can still interleave
// exactly as it does against the shared database.
type Store struct {
	mu      sync.Mutex
	windows map[string]*ratelimit.Window
}

// New constructs an empty store.
func New() *Store {
	return &Store{windows: make(map[string]*ratelimit.Window)}
}

func rowKey(key ratelimit.Key, g ratelimit.Granularity, start time.Time) string {
	return fmt.Sprintf("%s:%s:%s:%s:%d", key.FunctionName, key.IdentifierType, key.Identifier, g, start.UTC().Unix())
}

func (s *Store) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, w := range s.windows {
		if w.WindowStart.Before(cutoff) {
			delete(s.windows, k)
			n++
		}
	}
	return n, nil
}

func (s *Store) Latest(_ context.Context, key ratelimit.Key, g ratelimit.Granularity, since time.Time) (*ratelimit.Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *ratelimit.Window
	for _, w := range s.windows {
		if w.Key != key || w.Granularity != g || w.WindowStart.Before(since) {
			continue
		}
		if best == nil || w.WindowStart.After(best.WindowStart) {
			best = w
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (s *Store) Get(_ context.Context, key ratelimit.Key, g ratelimit.Granularity, start time.Time) (*ratelimit.Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[rowKey(key, g, start)]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (s *Store) Insert(_ context.Context, w ratelimit.Window) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := rowKey(w.Key, w.Granularity, w.WindowStart)
	if _, ok := s.windows[k]; ok {
		return ratelimit.ErrWindowExists
	}
	w.WindowStart = w.WindowStart.UTC()
	s.windows[k] = &w
	return nil
}

func (s *Store) SetCount(_ context.Context, key ratelimit.Key, g ratelimit.Granularity, start time.Time, count int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[rowKey(key, g, start)]
	if !ok {
		// Swept between read and write; the update is lost, as with UPDATE on a missing row.
		return nil
	}
	w.RequestCount = count
	w.UpdatedAt = at
	return nil
}

// Increment implements ratelimit.AtomicIncrementer.
func (s *Store) Increment(_ context.Context, key ratelimit.Key, g ratelimit.Granularity, start, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := rowKey(key, g, start)
	w, ok := s.windows[k]
	if !ok {
		s.windows[k] = &ratelimit.Window{Key: key, Granularity: g, WindowStart: start.UTC(), RequestCount: 1, UpdatedAt: at}
		return nil
	}
	w.RequestCount++
	w.UpdatedAt = at
	return nil
}

// Windows returns a copy of all rows ordered by window start, for inspection.
func (s *Store) Windows() []ratelimit.Window {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ratelimit.Window, 0, len(s.windows))
	for _, w := range s.windows {
		out = append(out, *w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WindowStart.Before(out[j].WindowStart) })
	return out
}
