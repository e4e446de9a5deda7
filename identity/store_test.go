package identity

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewStore(mock, ""), mock
}

func TestGetByID(t *testing.T) {
	s, mock := newMock(t)
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	email := "a@example.com"
	mock.ExpectQuery(`SELECT id::text, email, created_at, last_sign_in_at FROM auth\.users WHERE id::text=\$1`).
		WithArgs("u1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "email", "created_at", "last_sign_in_at"}).
			AddRow("u1", &email, created, (*time.Time)(nil)))

	u, err := s.GetByID(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "a@example.com", u.Email)
	assert.Equal(t, created, u.CreatedAt)
}

func TestGetByEmailMissing(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(`WHERE lower\(email\)=lower\(\$1\)`).
		WithArgs("nobody@example.com").
		WillReturnError(pgx.ErrNoRows)
	u, err := s.GetByEmail(context.Background(), " nobody@example.com ")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestEmptyInputsSkipQueries(t *testing.T) {
	s, mock := newMock(t)
	u, err := s.GetByID(context.Background(), " ")
	require.NoError(t, err)
	assert.Nil(t, u)
	m, err := s.GetEmailsByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, m)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetEmailsByIDs(t *testing.T) {
	s, mock := newMock(t)
	ids := []string{"u1", "u2"}
	mock.ExpectQuery(`WHERE id::text = ANY\(\$1\)`).
		WithArgs(ids).
		WillReturnRows(pgxmock.NewRows([]string{"id", "email"}).AddRow("u1", "a@example.com").AddRow("u2", ""))
	m, err := s.GetEmailsByIDs(context.Background(), ids)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"u1": "a@example.com", "u2": ""}, m)
}
