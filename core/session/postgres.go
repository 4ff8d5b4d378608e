package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/finbot/core/logger"
)

const sessionsTable = "bot_sessions"

// PostgresStore persists session entries in the bot_sessions table.
// Expired rows are treated as absent on read and deleted lazily; the TTL set
// on every write is the backstop bounding unbounded growth, independent from
// the application-level staleness window enforced by the Manager.
type PostgresStore struct {
	db  *sqlx.DB
	sb  sq.StatementBuilderType
	now func() time.Time
}

// NewPostgresStore wraps an established database connection.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{
		db:  db,
		sb:  sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		now: time.Now,
	}
}

// Put upserts the entry for key with a fresh expiration.
func (s *PostgresStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	expiresAt := s.now().Add(ttl)
	query, args, err := s.sb.
		Insert(sessionsTable).
		Columns("key", "value", "expires_at").
		Values(key, value, expiresAt).
		Suffix("ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("session: build put query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("session: store put: %w", err)
	}
	return nil
}

// Get returns the live value for key, ErrNotFound when the key is absent or
// past its expiration, and a wrapped infrastructure error otherwise.
func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	query, args, err := s.sb.
		Select("value", "expires_at").
		From(sessionsTable).
		Where(sq.Eq{"key": key}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("session: build get query: %w", err)
	}

	var (
		value     []byte
		expiresAt time.Time
	)
	row := s.db.QueryRowxContext(ctx, query, args...)
	if err := row.Scan(&value, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("session: store get: %w", err)
	}

	if s.now().After(expiresAt) {
		if delErr := s.Delete(ctx, key); delErr != nil {
			logger.Warn(ctx, "session", "store.expire.delete_failed",
				slog.String("key", key),
				slog.String("err", delErr.Error()),
			)
		}
		return nil, ErrNotFound
	}
	return value, nil
}

// Delete removes the entry for key. Deleting a missing key is not an error.
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	query, args, err := s.sb.
		Delete(sessionsTable).
		Where(sq.Eq{"key": key}).
		ToSql()
	if err != nil {
		return fmt.Errorf("session: build delete query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("session: store delete: %w", err)
	}
	return nil
}
