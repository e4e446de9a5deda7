package memoryentitlements

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PaulFidika/accesskit/entitlements"
)

// Store is an in-memory entitlements.Source and entitlements.AdminStore.
// Purchases and family memberships are seeded directly, standing in for the
// payment webhooks that own them in production.
type Store struct {
	mu           sync.Mutex
	now          func() time.Time
	products     map[string][]entitlements.Purchase
	services     map[string][]entitlements.Purchase
	family       map[string]bool
	entitlements map[string]*entitlements.Entitlement
}

func New() *Store {
	return &Store{
		now:          time.Now,
		products:     make(map[string][]entitlements.Purchase),
		services:     make(map[string][]entitlements.Purchase),
		family:       make(map[string]bool),
		entitlements: make(map[string]*entitlements.Entitlement),
	}
}

func key(userID, appID string) string { return userID + "\x00" + appID }

// AddProductPurchase seeds a product_purchases row.
func (s *Store) AddProductPurchase(userID string, p entitlements.Purchase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[userID] = append(s.products[userID], p)
}

// AddServicePurchase seeds a service_purchases row.
func (s *Store) AddServicePurchase(userID string, p entitlements.Purchase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[userID] = append(s.services[userID], p)
}

// SetFamilyMember sets the family-subscription membership answer.
func (s *Store) SetFamilyMember(userID string, member bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.family[userID] = member
}

func (s *Store) DirectPurchases(_ context.Context, userID, productRef string) ([]entitlements.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entitlements.Purchase
	for _, p := range s.products[userID] {
		if p.ProductID == productRef {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) ServicePurchases(_ context.Context, userID string, slugs []string) ([]entitlements.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entitlements.Purchase
	for _, p := range s.services[userID] {
		if p.Status == entitlements.StatusActive && slices.Contains(slugs, p.ServiceSlug) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) IsFamilySubscriptionMember(_ context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.family[userID], nil
}

func (s *Store) Entitlements(_ context.Context, userID, productRef string) ([]entitlements.Entitlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entitlements.Entitlement
	for _, app := range []string{productRef, entitlements.WildcardApp} {
		if e, ok := s.entitlements[key(userID, app)]; ok {
			out = append(out, *e)
		}
	}
	return out, nil
}

// Grant upserts on (user_id, app_id) and reactivates the row.
func (s *Store) Grant(_ context.Context, g entitlements.Grant) (entitlements.Entitlement, error) {
	if err := g.Validate(); err != nil {
		return entitlements.Entitlement{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	e, ok := s.entitlements[key(g.UserID, g.AppID)]
	if !ok {
		e = &entitlements.Entitlement{ID: uuid.NewString(), UserID: g.UserID, AppID: g.AppID, CreatedAt: now}
		s.entitlements[key(g.UserID, g.AppID)] = e
	}
	e.Active = true
	e.ExpiresAt = g.ExpiresAt
	e.GrantType = g.GrantType
	e.GrantedBy = g.GrantedBy
	e.GrantReason = g.Reason
	e.UpdatedAt = now
	return *e, nil
}

func (s *Store) Deactivate(_ context.Context, userID, appID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entitlements[key(userID, appID)]
	if !ok || !e.Active {
		return false, nil
	}
	e.Active = false
	e.UpdatedAt = s.now().UTC()
	return true, nil
}

func (s *Store) ListForUser(_ context.Context, userID string) ([]entitlements.Entitlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entitlements.Entitlement
	for _, e := range s.entitlements {
		if e.UserID == userID {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AppID < out[j].AppID })
	return out, nil
}
