// Package pg implements the tracker remote store over Postgres. Records live in one
// table per collection and blobs in a bytea table keyed by (bucket, path).
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"meritlog.org/internal/tracker"
)

const (
	pgErrUniqueViolation = "23505"
	pgErrCheckViolation  = "23514"
)

type Store struct {
	db      *sql.DB
	baseURL string
}

var _ tracker.Remote = (*Store)(nil)

// Option configures Store.
type Option func(*Store)

// WithPublicBaseURL sets the origin public blob URLs are built from.
func WithPublicBaseURL(base string) Option {
	return func(s *Store) {
		s.baseURL = strings.TrimRight(base, "/")
	}
}

func Open(dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return New(db, opts...), nil
}

// New wraps an existing handle.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Profiles(context.Context) tracker.ProfileStore { return profiles{s.db} }

func (s *Store) Achievements(context.Context) tracker.AchievementStore {
	return achievements{s.db}
}

func (s *Store) Goals(context.Context) tracker.GoalStore { return goals{s.db} }

func (s *Store) Blobs(_ context.Context, bucket string) tracker.BlobStore {
	return blobs{db: s.db, bucket: bucket, baseURL: s.baseURL}
}

// --- helpers ---

// validID reports whether id can address a uuid-keyed row. Anything else cannot exist.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func mapErr(err error) error {
	if pgErr, ok := maybePgError(err); ok {
		switch pgErr.Code {
		case pgErrUniqueViolation, pgErrCheckViolation:
			return fmt.Errorf("%w: %s", tracker.ErrInvalidInput, pgErr.Message)
		}
	}
	return err
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDate(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func datePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

// setClause accumulates "col = $n" assignments for partial updates.
type setClause struct {
	cols []string
	args []any
}

func (c *setClause) add(col string, v any) {
	c.args = append(c.args, v)
	c.cols = append(c.cols, fmt.Sprintf("%s = $%d", col, len(c.args)))
}

func (c *setClause) empty() bool { return len(c.cols) == 0 }

// update runs "update table set ... where id = $a and user_id = $b" and maps zero
// affected rows to tracker.ErrNotFound.
func (c *setClause) update(ctx context.Context, db *sql.DB, table, userID, id string) error {
	args := append(c.args, id, userID)
	q := fmt.Sprintf(`update %s set %s where id = $%d and user_id = $%d`,
		table, strings.Join(c.cols, ", "), len(args)-1, len(args))
	res, err := db.ExecContext(ctx, q, args...)
	if err != nil {
		return mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return tracker.ErrNotFound
	}
	return nil
}

func deleteOwned(ctx context.Context, db *sql.DB, table, userID, id string) error {
	if !validID(id) {
		return tracker.ErrNotFound
	}
	res, err := db.ExecContext(ctx, fmt.Sprintf(`delete from %s where id = $1 and user_id = $2`, table), id, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return tracker.ErrNotFound
	}
	return nil
}
