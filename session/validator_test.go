package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PaulFidika/accesskit/core"
	"github.com/PaulFidika/accesskit/session"
	memorysession "github.com/PaulFidika/accesskit/session/memory"
)

var now = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

// stubVerifier accepts exactly the credentials it knows.
type stubVerifier map[string]core.Claims

func (s stubVerifier) Verify(_ context.Context, credential string) (core.Claims, error) {
	c, ok := s[credential]
	if !ok {
		return core.Claims{}, errors.New("bad signature")
	}
	return c, nil
}

func verifier() stubVerifier {
	return stubVerifier{
		"tok-u1": {Subject: "u1", IssuedAt: now.Add(-time.Minute), ExpiresAt: now.Add(time.Hour)},
		"tok-u1b": {Subject: "u1", IssuedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(time.Hour)},
		"tok-u2": {Subject: "u2", IssuedAt: now, ExpiresAt: now.Add(time.Hour)},
	}
}

func newValidator(t *testing.T, store session.Store, opts session.Options) *session.Validator {
	t.Helper()
	opts.Now = func() time.Time { return now }
	return session.NewValidator(verifier(), store, opts)
}

func memStore(t *testing.T) *memorysession.Store {
	s := memorysession.New()
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestFirstSightingRegisters(t *testing.T) {
	store := memStore(t)
	v := newValidator(t, store, session.Options{})
	ctx := context.Background()

	res, err := v.Validate(ctx, "tok-u1", session.RequestMeta{IP: "10.0.0.1", UserAgent: "curl"})
	require.NoError(t, err)
	assert.True(t, res.IsNewSession)
	assert.Equal(t, "u1", res.UserID)
	require.NotEmpty(t, res.SessionID)

	row, err := store.GetByToken(ctx, session.TokenDigest("tok-u1"))
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, now.Add(time.Hour), row.ExpiresAt)
	assert.Equal(t, "10.0.0.1", row.IPAddress)
	assert.NotEqual(t, "tok-u1", row.Token, "raw credential must not be stored")

	again, err := v.Validate(ctx, "tok-u1", session.RequestMeta{})
	require.NoError(t, err)
	assert.False(t, again.IsNewSession)
	assert.Equal(t, res.SessionID, again.SessionID)
}

func TestInvalidCredentialIsTerminal(t *testing.T) {
	v := newValidator(t, &brokenStore{}, session.Options{})
	_, err := v.Validate(context.Background(), "forged", session.RequestMeta{})
	assert.ErrorIs(t, err, session.ErrInvalidCredential)
	_, err = v.Validate(context.Background(), "", session.RequestMeta{})
	assert.ErrorIs(t, err, session.ErrInvalidCredential)
}

func TestRevokedSessionDeniesValidCredential(t *testing.T) {
	store := memStore(t)
	v := newValidator(t, store, session.Options{})
	ctx := context.Background()

	res, err := v.Validate(ctx, "tok-u1", session.RequestMeta{})
	require.NoError(t, err)
	require.NoError(t, v.Revoke(ctx, "u1", res.SessionID))

	_, err = v.Validate(ctx, "tok-u1", session.RequestMeta{})
	assert.ErrorIs(t, err, session.ErrSessionRevoked)
}

func TestExpiredSessionRowDenies(t *testing.T) {
	store := memStore(t)
	require.NoError(t, store.Create(context.Background(), session.Session{
		ID: "s1", UserID: "u1", Token: session.TokenDigest("tok-u1"), ExpiresAt: now.Add(-time.Second), CreatedAt: now.Add(-time.Hour),
	}))
	v := newValidator(t, store, session.Options{})
	_, err := v.Validate(context.Background(), "tok-u1", session.RequestMeta{})
	assert.ErrorIs(t, err, session.ErrSessionExpired)
}

func TestSessionOfAnotherUserIsRefused(t *testing.T) {
	store := memStore(t)
	require.NoError(t, store.Create(context.Background(), session.Session{
		ID: "s1", UserID: "u2", Token: session.TokenDigest("tok-u1"), ExpiresAt: now.Add(time.Hour), CreatedAt: now,
	}))
	v := newValidator(t, store, session.Options{})
	_, err := v.Validate(context.Background(), "tok-u1", session.RequestMeta{})
	assert.ErrorIs(t, err, session.ErrSessionRevoked)
}

func TestMaxFirstSightingAge(t *testing.T) {
	v := newValidator(t, memStore(t), session.Options{MaxFirstSightingAge: time.Hour})
	_, err := v.Validate(context.Background(), "tok-u1b", session.RequestMeta{})
	assert.ErrorIs(t, err, session.ErrSessionRevoked)
	res, err := v.Validate(context.Background(), "tok-u1", session.RequestMeta{})
	require.NoError(t, err)
	assert.True(t, res.IsNewSession)
}

func TestLogoutRevokesOwnSession(t *testing.T) {
	store := memStore(t)
	v := newValidator(t, store, session.Options{})
	ctx := context.Background()
	_, err := v.Validate(ctx, "tok-u1", session.RequestMeta{})
	require.NoError(t, err)

	require.NoError(t, v.Logout(ctx, "tok-u1"))
	assert.ErrorIs(t, v.Logout(ctx, "tok-u1"), session.ErrSessionNotFound)
	_, err = v.Validate(ctx, "tok-u1", session.RequestMeta{})
	assert.ErrorIs(t, err, session.ErrSessionRevoked)
}

func TestRevokeScopedToOwner(t *testing.T) {
	store := memStore(t)
	v := newValidator(t, store, session.Options{})
	ctx := context.Background()
	res, err := v.Validate(ctx, "tok-u1", session.RequestMeta{})
	require.NoError(t, err)
	assert.ErrorIs(t, v.Revoke(ctx, "u2", res.SessionID), session.ErrSessionNotFound)
}

func TestRevokeAllAndList(t *testing.T) {
	store := memStore(t)
	v := newValidator(t, store, session.Options{})
	ctx := context.Background()
	_, err := v.Validate(ctx, "tok-u1", session.RequestMeta{})
	require.NoError(t, err)
	_, err = v.Validate(ctx, "tok-u1b", session.RequestMeta{})
	require.NoError(t, err)
	_, err = v.Validate(ctx, "tok-u2", session.RequestMeta{})
	require.NoError(t, err)

	list, err := v.List(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	n, err := v.RevokeAll(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	_, err = v.Validate(ctx, "tok-u1b", session.RequestMeta{})
	assert.ErrorIs(t, err, session.ErrSessionRevoked)
	_, err = v.Validate(ctx, "tok-u2", session.RequestMeta{})
	assert.NoError(t, err)
}

// brokenStore fails every call.
type brokenStore struct{ memorysession.Store }

var errDown = errors.New("db unreachable")

func (*brokenStore) GetByToken(context.Context, string) (*session.Session, error) { return nil, errDown }
func (*brokenStore) Create(context.Context, session.Session) error                { return errDown }

func TestStoreErrorFailsOpenByDefault(t *testing.T) {
	v := newValidator(t, &brokenStore{}, session.Options{})
	res, err := v.Validate(context.Background(), "tok-u1", session.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, "u1", res.UserID)
	assert.True(t, res.Degraded)
	assert.False(t, res.IsNewSession)
}

func TestStoreErrorFailsClosedWhenAsked(t *testing.T) {
	v := newValidator(t, &brokenStore{}, session.Options{OnStoreError: core.FailClosed})
	_, err := v.Validate(context.Background(), "tok-u1", session.RequestMeta{})
	assert.ErrorIs(t, err, session.ErrStoreUnavailable)
}

// createFailStore reads fine but cannot write.
type createFailStore struct{ *memorysession.Store }

func (createFailStore) Create(context.Context, session.Session) error { return errDown }

func TestRegistrationFailureFailsOpen(t *testing.T) {
	v := newValidator(t, createFailStore{memStore(t)}, session.Options{})
	res, err := v.Validate(context.Background(), "tok-u1", session.RequestMeta{})
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Empty(t, res.SessionID)
}

// racingStore reports a duplicate on Create after another request won the insert.
type racingStore struct{ *memorysession.Store }

func (r racingStore) Create(ctx context.Context, s session.Session) error {
	winner := s
	winner.ID = "winner"
	_ = r.Store.Create(ctx, winner)
	return session.ErrSessionExists
}

func TestConcurrentFirstSightingReusesWinner(t *testing.T) {
	v := newValidator(t, racingStore{memStore(t)}, session.Options{})
	res, err := v.Validate(context.Background(), "tok-u1", session.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, "winner", res.SessionID)
	assert.False(t, res.IsNewSession)
}
