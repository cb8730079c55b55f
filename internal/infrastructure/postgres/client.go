package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"taskstream/internal/domain/record"
)

const uniqueViolation = "23505"

type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	MaxConns int
}

func (c Config) dsn() string {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s", c.User, c.Password, c.Host, c.Port, c.DBName)
	if c.MaxConns > 0 {
		dsn += fmt.Sprintf("?pool_max_conns=%d", c.MaxConns)
	}
	return dsn
}

func NewClient(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return pool, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// mapError translates driver errors into the record package's sentinels.
func mapError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return record.ErrNotFound
	case isUniqueViolation(err):
		return record.ErrDuplicateKey
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
