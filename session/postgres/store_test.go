package pgsession

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PaulFidika/accesskit/session"
)

var cols = []string{"id", "user_id", "session_token", "expires_at", "last_accessed", "ip_address", "user_agent", "created_at", "revoked_at"}

func newMock(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return New(mock, "auth"), mock
}

func TestGetByToken(t *testing.T) {
	s, mock := newMock(t)
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	ip := "10.0.0.1"
	mock.ExpectQuery(`SELECT .* FROM auth\.user_sessions WHERE session_token=\$1`).
		WithArgs("digest").
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow("s1", "u1", "digest", now.Add(time.Hour), now, &ip, (*string)(nil), now, (*time.Time)(nil)))

	got, err := s.GetByToken(context.Background(), "digest")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "s1", got.ID)
	assert.Equal(t, "10.0.0.1", got.IPAddress)
	assert.Empty(t, got.UserAgent)
	assert.Nil(t, got.RevokedAt)
	assert.True(t, got.Active(now))
}

func TestGetByTokenMissing(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(`FROM auth\.user_sessions`).WithArgs("nope").WillReturnError(pgx.ErrNoRows)
	got, err := s.GetByToken(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetByTokenError(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(`FROM auth\.user_sessions`).WithArgs("x").WillReturnError(errors.New("conn reset"))
	_, err := s.GetByToken(context.Background(), "x")
	assert.Error(t, err)
}

func TestCreateDuplicate(t *testing.T) {
	s, mock := newMock(t)
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec(`INSERT INTO auth\.user_sessions`).
		WithArgs("s1", "u1", "digest", now.Add(time.Hour), now, pgxmock.AnyArg(), pgxmock.AnyArg(), now).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := s.Create(context.Background(), session.Session{ID: "s1", UserID: "u1", Token: "digest", ExpiresAt: now.Add(time.Hour), LastAccessed: now, CreatedAt: now})
	assert.ErrorIs(t, err, session.ErrSessionExists)
}

func TestRevokeReportsMatch(t *testing.T) {
	s, mock := newMock(t)
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec(`UPDATE auth\.user_sessions SET revoked_at=\$3 WHERE id=\$1 AND user_id=\$2`).
		WithArgs("s1", "u1", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE auth\.user_sessions SET revoked_at=\$3`).
		WithArgs("s1", "u2", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err := s.Revoke(context.Background(), "u1", "s1", now)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Revoke(context.Background(), "u2", "s1", now)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRevokeAllAndDeleteExpired(t *testing.T) {
	s, mock := newMock(t)
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec(`WHERE user_id=\$1 AND revoked_at IS NULL`).
		WithArgs("u1", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))
	mock.ExpectExec(`DELETE FROM auth\.user_sessions WHERE expires_at < \$1`).
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("DELETE", 7))

	n, err := s.RevokeAllForUser(context.Background(), "u1", now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	n, err = s.DeleteExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
}

func TestListForUser(t *testing.T) {
	s, mock := newMock(t)
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	revoked := now.Add(-time.Minute)
	mock.ExpectQuery(`WHERE user_id=\$1 ORDER BY created_at DESC`).
		WithArgs("u1").
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow("s2", "u1", "d2", now.Add(time.Hour), now, (*string)(nil), (*string)(nil), now, (*time.Time)(nil)).
			AddRow("s1", "u1", "d1", now.Add(time.Hour), now, (*string)(nil), (*string)(nil), now.Add(-time.Hour), &revoked))

	list, err := s.ListForUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "s2", list[0].ID)
	require.NotNil(t, list[1].RevokedAt)
	assert.False(t, list[1].Active(now))
}
