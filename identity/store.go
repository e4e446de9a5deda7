// Package identity reads users from the identity provider's schema. The
// provider owns these rows; this package never writes them.
package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	CreatedAt    time.Time  `json:"created_at"`
	LastSignInAt *time.Time `json:"last_sign_in_at,omitempty"`
}

// Store provides lookups against <schema>.users.
type Store struct {
	pg     DB
	schema string
}

func NewStore(pg DB, schema string) *Store {
	s := strings.TrimSpace(schema)
	if s == "" {
		s = "auth"
	}
	return &Store{pg: pg, schema: s}
}

func (s *Store) usersTable() string { return s.schema + ".users" }

func (s *Store) one(ctx context.Context, where string, arg any) (*User, error) {
	var u User
	var email *string
	err := s.pg.QueryRow(ctx, `SELECT id::text, email, created_at, last_sign_in_at FROM `+s.usersTable()+` WHERE `+where+` LIMIT 1`, arg).
		Scan(&u.ID, &email, &u.CreatedAt, &u.LastSignInAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if email != nil {
		u.Email = *email
	}
	return &u, nil
}

// GetByID returns the user or nil if there is none.
func (s *Store) GetByID(ctx context.Context, id string) (*User, error) {
	if s.pg == nil || strings.TrimSpace(id) == "" {
		return nil, nil
	}
	return s.one(ctx, `id::text=$1`, id)
}

// GetByEmail matches case-insensitively.
func (s *Store) GetByEmail(ctx context.Context, email string) (*User, error) {
	if s.pg == nil || strings.TrimSpace(email) == "" {
		return nil, nil
	}
	return s.one(ctx, `lower(email)=lower($1)`, strings.TrimSpace(email))
}

// GetEmailsByIDs returns user_id -> email.
func (s *Store) GetEmailsByIDs(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 || s.pg == nil {
		return out, nil
	}
	rows, err := s.pg.Query(ctx, `SELECT id::text, COALESCE(email,'') FROM `+s.usersTable()+` WHERE id::text = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id, email string
		if err := rows.Scan(&id, &email); err != nil {
			return nil, err
		}
		out[id] = email
	}
	return out, rows.Err()
}
