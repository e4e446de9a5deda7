// Package access composes session validation, rate limiting and entitlement
// resolution into the check every protected entry point runs.
package access

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/PaulFidika/accesskit/entitlements"
	"github.com/PaulFidika/accesskit/ratelimit"
	"github.com/PaulFidika/accesskit/session"
)

// Reason codes for credential and session denials.
const (
	ReasonInvalidUser    = "invalid_user"
	ReasonSessionRevoked = "session_revoked"
	ReasonSessionExpired = "session_expired"
)

type SessionValidator interface {
	Validate(ctx context.Context, credential string, meta session.RequestMeta) (session.Result, error)
}

type RateLimiter interface {
	Check(ctx context.Context, identifier string, identifierType ratelimit.IdentifierType, functionName string, limits ratelimit.Limits) (ratelimit.Decision, error)
}

type EntitlementResolver interface {
	Resolve(ctx context.Context, userID, productRef string) (entitlements.Decision, error)
}

// Request is one protected call.
type Request struct {
	Credential   string
	IP           string
	UserAgent    string
	FunctionName string
	Limits       ratelimit.Limits
	// ProductRef, when set, also requires an entitlement to the product.
	ProductRef string
}

// Outcome is what an allowed request learned on the way through.
type Outcome struct {
	Session     session.Result
	RateLimit   ratelimit.Decision
	Entitlement *entitlements.Decision
}

// Gate runs validate, rate-limit and resolve in that order. The limiter and
// the resolver never see each other.
type Gate struct {
	sessions SessionValidator
	limiter  RateLimiter
	resolver EntitlementResolver
	log      logrus.FieldLogger
}

func NewGate(sessions SessionValidator, limiter RateLimiter, resolver EntitlementResolver, log logrus.FieldLogger) *Gate {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Gate{sessions: sessions, limiter: limiter, resolver: resolver, log: log}
}

// Authorize runs the full chain for req. Refusals are *Denial errors.
func (g *Gate) Authorize(ctx context.Context, req Request) (Outcome, error) {
	var out Outcome
	res, err := g.Authenticate(ctx, req.Credential, session.RequestMeta{IP: req.IP, UserAgent: req.UserAgent})
	if err != nil {
		return out, err
	}
	out.Session = res

	out.RateLimit, err = g.Throttle(ctx, res.UserID, ratelimit.IdentifierUser, req.FunctionName, req.Limits)
	if err != nil {
		return out, err
	}

	if req.ProductRef != "" {
		d, err := g.Entitled(ctx, res.UserID, req.ProductRef)
		out.Entitlement = &d
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

// Authenticate validates credential and its session.
func (g *Gate) Authenticate(ctx context.Context, credential string, meta session.RequestMeta) (session.Result, error) {
	res, err := g.sessions.Validate(ctx, credential, meta)
	switch {
	case err == nil:
		return res, nil
	case errors.Is(err, session.ErrInvalidCredential):
		return res, &Denial{Kind: DenialInvalidCredential, Reason: ReasonInvalidUser}
	case errors.Is(err, session.ErrSessionRevoked), errors.Is(err, session.ErrSessionNotFound):
		return res, &Denial{Kind: DenialSession, Reason: ReasonSessionRevoked}
	case errors.Is(err, session.ErrSessionExpired):
		return res, &Denial{Kind: DenialSession, Reason: ReasonSessionExpired}
	case errors.Is(err, session.ErrStoreUnavailable):
		return res, &Denial{Kind: DenialUnavailable, Reason: entitlements.ReasonStoreUnavailable}
	}
	return res, err
}

// Throttle charges one request to identifier under functionName.
func (g *Gate) Throttle(ctx context.Context, identifier string, typ ratelimit.IdentifierType, functionName string, limits ratelimit.Limits) (ratelimit.Decision, error) {
	d, err := g.limiter.Check(ctx, identifier, typ, functionName, limits)
	if err != nil {
		return d, err
	}
	if !d.Allowed {
		g.log.WithFields(logrus.Fields{
			"identifier": identifier,
			"function":   functionName,
			"window":     d.Window,
			"reason":     d.Reason,
		}).Info("access: rate limited")
		return d, &Denial{Kind: DenialRateLimited, Reason: d.Reason, RetryAfterSeconds: d.RetryAfterSeconds}
	}
	return d, nil
}

// CheckIP rate-limits an unauthenticated entry point by client address.
func (g *Gate) CheckIP(ctx context.Context, ip, functionName string, limits ratelimit.Limits) (ratelimit.Decision, error) {
	return g.Throttle(ctx, ip, ratelimit.IdentifierIP, functionName, limits)
}

// Entitled resolves userID's access to productRef.
func (g *Gate) Entitled(ctx context.Context, userID, productRef string) (entitlements.Decision, error) {
	d, err := g.resolver.Resolve(ctx, userID, productRef)
	if errors.Is(err, entitlements.ErrStoreUnavailable) {
		return d, &Denial{Kind: DenialUnavailable, Reason: entitlements.ReasonStoreUnavailable}
	}
	if err != nil {
		return d, err
	}
	if !d.Allowed {
		return d, &Denial{Kind: DenialNotEntitled, Reason: d.Reason}
	}
	return d, nil
}
