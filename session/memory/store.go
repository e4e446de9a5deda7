package memorysession

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/PaulFidika/accesskit/session"
)

// Store is an in-memory session.Store for tests and single-node development.
// A background loop drops expired rows every minute until Close.
type Store struct {
	mu      sync.Mutex
	byToken map[string]*session.Session
	closed  chan struct{}
	once    sync.Once
}

// New creates a store and starts its cleanup loop.
func New() *Store {
	s := &Store{byToken: make(map[string]*session.Session), closed: make(chan struct{})}
	go s.cleanupLoop()
	return s
}

func (s *Store) GetByToken(_ context.Context, token string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.byToken[token]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

func (s *Store) Create(_ context.Context, row session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byToken[row.Token]; ok {
		return session.ErrSessionExists
	}
	s.byToken[row.Token] = &row
	return nil
}

func (s *Store) Touch(_ context.Context, id string, at time.Time, ip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.byToken {
		if row.ID == id {
			row.LastAccessed = at
			if ip != "" {
				row.IPAddress = ip
			}
		}
	}
	return nil
}

func (s *Store) Revoke(_ context.Context, userID, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.byToken {
		if row.ID == id && row.UserID == userID && row.RevokedAt == nil {
			t := at
			row.RevokedAt = &t
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) RevokeToken(_ context.Context, token string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.byToken[token]
	if !ok || row.RevokedAt != nil {
		return false, nil
	}
	t := at
	row.RevokedAt = &t
	return true, nil
}

func (s *Store) RevokeAllForUser(_ context.Context, userID string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, row := range s.byToken {
		if row.UserID == userID && row.RevokedAt == nil {
			t := at
			row.RevokedAt = &t
			n++
		}
	}
	return n, nil
}

func (s *Store) ListForUser(_ context.Context, userID string) ([]session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []session.Session
	for _, row := range s.byToken {
		if row.UserID == userID {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, row := range s.byToken {
		if row.ExpiresAt.Before(cutoff) {
			delete(s.byToken, k)
			n++
		}
	}
	return n, nil
}

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_, _ = s.DeleteExpired(context.Background(), time.Now())
		case <-s.closed:
			return
		}
	}
}

// Close stops the cleanup loop.
func (s *Store) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}
