package pglimiter

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/PaulFidika/accesskit/ratelimit"
)

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const uniqueViolation = "23505"

// Store keeps rate-limit windows in the rate_limit_windows table.
type Store struct {
	pg    DB
	table string
}

// New returns a store over schema.rate_limit_windows. An empty schema uses "public".
func New(pg DB, schema string) *Store {
	s := strings.TrimSpace(schema)
	if s == "" {
		s = "public"
	}
	return &Store{pg: pg, table: s + ".rate_limit_windows"}
}

func (s *Store) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pg.Exec(ctx, `DELETE FROM `+s.table+` WHERE window_start < $1`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) Latest(ctx context.Context, key ratelimit.Key, g ratelimit.Granularity, since time.Time) (*ratelimit.Window, error) {
	return s.one(ctx, `SELECT window_start, request_count, updated_at FROM `+s.table+`
		WHERE identifier=$1 AND identifier_type=$2 AND function_name=$3 AND granularity=$4 AND window_start >= $5
		ORDER BY window_start DESC LIMIT 1`, key, g, since.UTC())
}

func (s *Store) Get(ctx context.Context, key ratelimit.Key, g ratelimit.Granularity, start time.Time) (*ratelimit.Window, error) {
	return s.one(ctx, `SELECT window_start, request_count, updated_at FROM `+s.table+`
		WHERE identifier=$1 AND identifier_type=$2 AND function_name=$3 AND granularity=$4 AND window_start = $5`, key, g, start.UTC())
}

func (s *Store) one(ctx context.Context, q string, key ratelimit.Key, g ratelimit.Granularity, at time.Time) (*ratelimit.Window, error) {
	w := ratelimit.Window{Key: key, Granularity: g}
	err := s.pg.QueryRow(ctx, q, key.Identifier, string(key.IdentifierType), key.FunctionName, string(g), at).
		Scan(&w.WindowStart, &w.RequestCount, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *Store) Insert(ctx context.Context, w ratelimit.Window) error {
	_, err := s.pg.Exec(ctx, `INSERT INTO `+s.table+`
		(id, identifier, identifier_type, function_name, granularity, window_start, request_count, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		uuid.New(), w.Identifier, string(w.IdentifierType), w.FunctionName, string(w.Granularity),
		w.WindowStart.UTC(), w.RequestCount, w.UpdatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ratelimit.ErrWindowExists
	}
	return err
}

func (s *Store) SetCount(ctx context.Context, key ratelimit.Key, g ratelimit.Granularity, start time.Time, count int, at time.Time) error {
	_, err := s.pg.Exec(ctx, `UPDATE `+s.table+` SET request_count=$6, updated_at=$7
		WHERE identifier=$1 AND identifier_type=$2 AND function_name=$3 AND granularity=$4 AND window_start=$5`,
		key.Identifier, string(key.IdentifierType), key.FunctionName, string(g), start.UTC(), count, at.UTC())
	return err
}

// Increment implements ratelimit.AtomicIncrementer.
func (s *Store) Increment(ctx context.Context, key ratelimit.Key, g ratelimit.Granularity, start, at time.Time) error {
	_, err := s.pg.Exec(ctx, `INSERT INTO `+s.table+`
		(id, identifier, identifier_type, function_name, granularity, window_start, request_count, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,1,$7)
		ON CONFLICT (identifier, identifier_type, function_name, granularity, window_start)
		DO UPDATE SET request_count = `+s.table+`.request_count + 1, updated_at = EXCLUDED.updated_at`,
		uuid.New(), key.Identifier, string(key.IdentifierType), key.FunctionName, string(g), start.UTC(), at.UTC())
	return err
}
