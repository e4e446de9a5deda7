// Package session decides whether a verified bearer credential still maps to
// a live session. A credential that verifies cryptographically is refused
// once its session row is revoked; a never-seen credential is registered on
// first use.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/PaulFidika/accesskit/core"
)

var (
	// ErrInvalidCredential is terminal and never subject to the failure policy.
	ErrInvalidCredential = errors.New("session: invalid credential")
	ErrSessionRevoked    = errors.New("session: revoked")
	ErrSessionExpired    = errors.New("session: expired")
	ErrSessionNotFound   = errors.New("session: not found")
	// ErrSessionExists is returned by Store.Create for a duplicate token.
	ErrSessionExists = errors.New("session: already exists")
	// ErrStoreUnavailable is returned only under core.FailClosed.
	ErrStoreUnavailable = errors.New("session: store unavailable")
)

// Session is one row of user_sessions.
type Session struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	Token        string     `json:"-"`
	ExpiresAt    time.Time  `json:"expires_at"`
	LastAccessed time.Time  `json:"last_accessed"`
	IPAddress    string     `json:"ip_address,omitempty"`
	UserAgent    string     `json:"user_agent,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
}

// Active reports whether the session is neither revoked nor expired at now.
func (s *Session) Active(now time.Time) bool {
	return s != nil && s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

// Store persists sessions. Lookups that find nothing return (nil, nil).
type Store interface {
	GetByToken(ctx context.Context, token string) (*Session, error)
	Create(ctx context.Context, s Session) error
	Touch(ctx context.Context, id string, at time.Time, ip string) error
	// Revoke marks one of userID's sessions revoked; false if no live row matched.
	Revoke(ctx context.Context, userID, id string, at time.Time) (bool, error)
	RevokeToken(ctx context.Context, token string, at time.Time) (bool, error)
	RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error)
	ListForUser(ctx context.Context, userID string) ([]Session, error)
	// DeleteExpired physically removes rows that expired before cutoff.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// CredentialVerifier checks a bearer credential's signature and expiry.
type CredentialVerifier interface {
	Verify(ctx context.Context, credential string) (core.Claims, error)
}

// RequestMeta is recorded on the session row.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// Result describes an accepted credential.
type Result struct {
	UserID       string
	SessionID    string
	IsNewSession bool
	// Degraded is set when the store failed and the identity was trusted anyway.
	Degraded bool
	Claims   core.Claims
}

// TokenDigest is the value stored in session_token for a credential.
// Raw bearer credentials are never persisted.
func TokenDigest(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:])
}
