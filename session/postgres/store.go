package pgsession

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/PaulFidika/accesskit/session"
)

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const columns = `id::text, user_id, session_token, expires_at, last_accessed, ip_address, user_agent, created_at, revoked_at`

// Store keeps sessions in the user_sessions table.
type Store struct {
	pg    DB
	table string
}

func New(pg DB, schema string) *Store {
	s := strings.TrimSpace(schema)
	if s == "" {
		s = "public"
	}
	return &Store{pg: pg, table: s + ".user_sessions"}
}

func scan(row pgx.Row) (*session.Session, error) {
	var s session.Session
	var ip, ua *string
	if err := row.Scan(&s.ID, &s.UserID, &s.Token, &s.ExpiresAt, &s.LastAccessed, &ip, &ua, &s.CreatedAt, &s.RevokedAt); err != nil {
		return nil, err
	}
	if ip != nil {
		s.IPAddress = *ip
	}
	if ua != nil {
		s.UserAgent = *ua
	}
	return &s, nil
}

func nullable(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func (s *Store) GetByToken(ctx context.Context, token string) (*session.Session, error) {
	row, err := scan(s.pg.QueryRow(ctx, `SELECT `+columns+` FROM `+s.table+` WHERE session_token=$1`, token))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return row, err
}

func (s *Store) Create(ctx context.Context, row session.Session) error {
	_, err := s.pg.Exec(ctx, `INSERT INTO `+s.table+`
		(id, user_id, session_token, expires_at, last_accessed, ip_address, user_agent, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		row.ID, row.UserID, row.Token, row.ExpiresAt, row.LastAccessed, nullable(row.IPAddress), nullable(row.UserAgent), row.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return session.ErrSessionExists
	}
	return err
}

func (s *Store) Touch(ctx context.Context, id string, at time.Time, ip string) error {
	_, err := s.pg.Exec(ctx, `UPDATE `+s.table+` SET last_accessed=$2, ip_address=COALESCE($3, ip_address) WHERE id=$1`,
		id, at, nullable(ip))
	return err
}

func (s *Store) Revoke(ctx context.Context, userID, id string, at time.Time) (bool, error) {
	tag, err := s.pg.Exec(ctx, `UPDATE `+s.table+` SET revoked_at=$3 WHERE id=$1 AND user_id=$2 AND revoked_at IS NULL`, id, userID, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) RevokeToken(ctx context.Context, token string, at time.Time) (bool, error) {
	tag, err := s.pg.Exec(ctx, `UPDATE `+s.table+` SET revoked_at=$2 WHERE session_token=$1 AND revoked_at IS NULL`, token, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	tag, err := s.pg.Exec(ctx, `UPDATE `+s.table+` SET revoked_at=$2 WHERE user_id=$1 AND revoked_at IS NULL`, userID, at)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) ListForUser(ctx context.Context, userID string) ([]session.Session, error) {
	rows, err := s.pg.Query(ctx, `SELECT `+columns+` FROM `+s.table+` WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []session.Session
	for rows.Next() {
		row, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *row)
	}
	return out, rows.Err()
}

func (s *Store) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pg.Exec(ctx, `DELETE FROM `+s.table+` WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
