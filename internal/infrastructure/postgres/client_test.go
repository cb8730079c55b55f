package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskstream/internal/domain/record"
)

func TestIsUniqueViolation(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505", ConstraintName: "transactions_idempotency_key_key"}

	assert.True(t, isUniqueViolation(dup))
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", dup)))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("boom")))
	assert.False(t, isUniqueViolation(nil))
}

func TestMapError(t *testing.T) {
	require.NoError(t, mapError("op", nil))
	assert.ErrorIs(t, mapError("op", pgx.ErrNoRows), record.ErrNotFound)
	assert.ErrorIs(t, mapError("op", &pgconn.PgError{Code: "23505"}), record.ErrDuplicateKey)

	err := mapError("insert transaction", errors.New("conn reset"))
	assert.EqualError(t, err, "insert transaction: conn reset")
	assert.NotErrorIs(t, err, record.ErrDuplicateKey)
}

func TestConfigDSN(t *testing.T) {
	cfg := Config{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "taskstream"}
	assert.Equal(t, "postgres://u:p@db:5432/taskstream", cfg.dsn())

	cfg.MaxConns = 10
	assert.Equal(t, "postgres://u:p@db:5432/taskstream?pool_max_conns=10", cfg.dsn())
}
