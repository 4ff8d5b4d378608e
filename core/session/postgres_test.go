package session

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "fsm:v1:42"

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock, *fakeClock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	store := NewPostgresStore(sqlx.NewDb(db, "sqlmock"))
	store.now = clock.now
	return store, mock, clock
}

func TestPostgresPutUpserts(t *testing.T) {
	store, mock, clock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(
		"INSERT INTO bot_sessions (key,value,expires_at) VALUES ($1,$2,$3) "+
			"ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at",
	)).
		WithArgs(testKey, []byte(`{"position":"P"}`), clock.t.Add(time.Hour)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Put(context.Background(), testKey, []byte(`{"position":"P"}`), time.Hour)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetLiveRow(t *testing.T) {
	store, mock, clock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"value", "expires_at"}).
		AddRow([]byte(`{"position":"P"}`), clock.t.Add(time.Hour))
	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT value, expires_at FROM bot_sessions WHERE key = $1",
	)).
		WithArgs(testKey).
		WillReturnRows(rows)

	value, err := store.Get(context.Background(), testKey)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"position":"P"}`), value)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetMissingRow(t *testing.T) {
	store, mock, _ := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT value, expires_at FROM bot_sessions WHERE key = $1",
	)).
		WithArgs(testKey).
		WillReturnRows(sqlmock.NewRows([]string{"value", "expires_at"}))

	_, err := store.Get(context.Background(), testKey)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetExpiredRowDeletedLazily(t *testing.T) {
	store, mock, clock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"value", "expires_at"}).
		AddRow([]byte(`{"position":"P"}`), clock.t.Add(-time.Minute))
	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT value, expires_at FROM bot_sessions WHERE key = $1",
	)).
		WithArgs(testKey).
		WillReturnRows(rows)
	mock.ExpectExec(regexp.QuoteMeta(
		"DELETE FROM bot_sessions WHERE key = $1",
	)).
		WithArgs(testKey).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := store.Get(context.Background(), testKey)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetInfraErrorIsNotAbsence(t *testing.T) {
	store, mock, _ := newMockStore(t)

	dbErr := errors.New("connection refused")
	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT value, expires_at FROM bot_sessions WHERE key = $1",
	)).
		WithArgs(testKey).
		WillReturnError(dbErr)

	_, err := store.Get(context.Background(), testKey)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, dbErr)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDelete(t *testing.T) {
	store, mock, _ := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(
		"DELETE FROM bot_sessions WHERE key = $1",
	)).
		WithArgs(testKey).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.Delete(context.Background(), testKey))
	require.NoError(t, mock.ExpectationsWereMet())
}
