package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/PaulFidika/accesskit/core"
)

// Options configures a Validator.
type Options struct {
	Logger logrus.FieldLogger
	Now    func() time.Time
	// OnStoreError defaults to core.FailOpen: the verified identity is trusted.
	OnStoreError core.FailurePolicy
	// MaxFirstSightingAge, when positive, refuses to register credentials
	// issued longer ago than this; they are treated as revoked.
	MaxFirstSightingAge time.Duration
}

// Validator maps credentials to sessions.
type Validator struct {
	verifier CredentialVerifier
	store    Store
	log      logrus.FieldLogger
	now      func() time.Time
	policy   core.FailurePolicy
	maxAge   time.Duration
}

func NewValidator(verifier CredentialVerifier, store Store, opts Options) *Validator {
	v := &Validator{
		verifier: verifier,
		store:    store,
		log:      opts.Logger,
		now:      opts.Now,
		policy:   opts.OnStoreError,
		maxAge:   opts.MaxFirstSightingAge,
	}
	if v.log == nil {
		v.log = logrus.StandardLogger()
	}
	if v.now == nil {
		v.now = time.Now
	}
	return v
}

// Validate verifies credential and resolves its session, registering it on
// first sighting.
func (v *Validator) Validate(ctx context.Context, credential string, meta RequestMeta) (Result, error) {
	claims, err := v.verify(ctx, credential)
	if err != nil {
		return Result{}, err
	}
	now := v.now().UTC()
	token := TokenDigest(credential)
	res := Result{UserID: claims.Subject, Claims: claims}
	log := v.log.WithField("user_id", claims.Subject)

	s, err := v.store.GetByToken(ctx, token)
	if err != nil {
		return v.storeFailure(log, "get", err, res)
	}
	if s == nil {
		return v.firstSighting(ctx, log, token, claims, meta, now, res)
	}
	if err := check(s, claims.Subject, now); err != nil {
		return Result{}, err
	}
	res.SessionID = s.ID
	if err := v.store.Touch(ctx, s.ID, now, meta.IP); err != nil {
		log.WithError(err).Warn("session: touch failed")
	}
	return res, nil
}

// Register records credential's session at login. Registering an already
// known credential is a no-op.
func (v *Validator) Register(ctx context.Context, credential string, meta RequestMeta) (Result, error) {
	return v.Validate(ctx, credential, meta)
}

func (v *Validator) firstSighting(ctx context.Context, log logrus.FieldLogger, token string, claims core.Claims, meta RequestMeta, now time.Time, res Result) (Result, error) {
	if v.maxAge > 0 && !claims.IssuedAt.IsZero() && now.Sub(claims.IssuedAt) > v.maxAge {
		log.WithField("issued_at", claims.IssuedAt).Info("session: refusing to register stale credential")
		return Result{}, ErrSessionRevoked
	}
	s := Session{
		ID:           uuid.NewString(),
		UserID:       claims.Subject,
		Token:        token,
		ExpiresAt:    claims.ExpiresAt.UTC(),
		LastAccessed: now,
		IPAddress:    meta.IP,
		UserAgent:    meta.UserAgent,
		CreatedAt:    now,
	}
	err := v.store.Create(ctx, s)
	if errors.Is(err, ErrSessionExists) {
		// A concurrent first request registered it.
		existing, gerr := v.store.GetByToken(ctx, token)
		if gerr != nil {
			return v.storeFailure(log, "get", gerr, res)
		}
		if cerr := check(existing, claims.Subject, now); cerr != nil {
			return Result{}, cerr
		}
		res.SessionID = existing.ID
		return res, nil
	}
	if err != nil {
		return v.storeFailure(log, "create", err, res)
	}
	log.WithField("session_id", s.ID).Debug("session: registered")
	res.SessionID = s.ID
	res.IsNewSession = true
	return res, nil
}

func check(s *Session, subject string, now time.Time) error {
	switch {
	case s == nil:
		return ErrSessionNotFound
	case s.RevokedAt != nil:
		return ErrSessionRevoked
	case !now.Before(s.ExpiresAt):
		return ErrSessionExpired
	case s.UserID != subject:
		// Digest collision or a tampered row; never hand out someone else's session.
		return ErrSessionRevoked
	}
	return nil
}

func (v *Validator) verify(ctx context.Context, credential string) (core.Claims, error) {
	if credential == "" || v.verifier == nil {
		return core.Claims{}, ErrInvalidCredential
	}
	claims, err := v.verifier.Verify(ctx, credential)
	if err != nil {
		return core.Claims{}, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	if claims.Subject == "" || claims.ExpiresAt.IsZero() {
		return core.Claims{}, ErrInvalidCredential
	}
	return claims, nil
}

func (v *Validator) storeFailure(log logrus.FieldLogger, op string, err error, res Result) (Result, error) {
	log.WithError(err).WithFields(logrus.Fields{
		"op":     op,
		"policy": v.policy.String(),
	}).Warn("session: store error")
	if v.policy == core.FailClosed {
		return Result{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	res.Degraded = true
	return res, nil
}

// Logout revokes the session belonging to credential.
func (v *Validator) Logout(ctx context.Context, credential string) error {
	if _, err := v.verify(ctx, credential); err != nil {
		return err
	}
	ok, err := v.store.RevokeToken(ctx, TokenDigest(credential), v.now().UTC())
	if err != nil {
		return err
	}
	if !ok {
		return ErrSessionNotFound
	}
	return nil
}

// Revoke revokes one of userID's sessions.
func (v *Validator) Revoke(ctx context.Context, userID, sessionID string) error {
	ok, err := v.store.Revoke(ctx, userID, sessionID, v.now().UTC())
	if err != nil {
		return err
	}
	if !ok {
		return ErrSessionNotFound
	}
	return nil
}

// RevokeAll revokes every live session of userID and returns how many.
func (v *Validator) RevokeAll(ctx context.Context, userID string) (int64, error) {
	n, err := v.store.RevokeAllForUser(ctx, userID, v.now().UTC())
	if err != nil {
		return 0, err
	}
	v.log.WithFields(logrus.Fields{"user_id": userID, "revoked": n}).Info("session: revoked all")
	return n, nil
}

// List returns userID's sessions, newest first.
func (v *Validator) List(ctx context.Context, userID string) ([]Session, error) {
	return v.store.ListForUser(ctx, userID)
}
