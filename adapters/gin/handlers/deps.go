package handlers

import (
	"context"

	"github.com/PaulFidika/accesskit/entitlements"
	"github.com/PaulFidika/accesskit/identity"
	"github.com/PaulFidika/accesskit/ratelimit"
	"github.com/PaulFidika/accesskit/session"
)

// SessionManager is implemented by *session.Validator.
type SessionManager interface {
	List(ctx context.Context, userID string) ([]session.Session, error)
	Revoke(ctx context.Context, userID, sessionID string) error
	RevokeAll(ctx context.Context, userID string) (int64, error)
	Logout(ctx context.Context, credential string) error
}

// EntitlementChecker is implemented by *access.Gate.
type EntitlementChecker interface {
	Entitled(ctx context.Context, userID, productRef string) (entitlements.Decision, error)
}

// IPThrottler is implemented by *access.Gate.
type IPThrottler interface {
	CheckIP(ctx context.Context, ip, functionName string, limits ratelimit.Limits) (ratelimit.Decision, error)
}

// UserDirectory is implemented by *identity.Store.
type UserDirectory interface {
	GetByID(ctx context.Context, id string) (*identity.User, error)
	GetByEmail(ctx context.Context, email string) (*identity.User, error)
	GetEmailsByIDs(ctx context.Context, ids []string) (map[string]string, error)
}
