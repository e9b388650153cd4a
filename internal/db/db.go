// Package db is the logical store facade: traders, bets, markets, stats,
// signals, topics, alerts, and the backtest cache, all upserted under
// natural keys so replays and duplicate deliveries are harmless.
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// ErrNotFound is returned when a lookup matches nothing.
var ErrNotFound = errors.New("not found")

// Querier is the subset of pgxpool.Pool the store uses. Tests substitute
// a pgxmock pool.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// DB wraps the PostgreSQL connection pool.
type DB struct {
	pool Querier
	raw  *pgxpool.Pool // nil when constructed over a mock
}

// New creates a database facade over a new connection pool.
func New(ctx context.Context, dsn string, poolSize int) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database DSN: %w", err)
	}

	cfg.MaxConns = int32(poolSize)
	cfg.MinConns = 2
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Database connection pool created")

	return &DB{pool: pool, raw: pool}, nil
}

// NewWithPool creates a facade over an existing pool or mock.
func NewWithPool(pool Querier) *DB {
	return &DB{pool: pool}
}

// Close closes the underlying pool.
func (db *DB) Close() {
	if db.raw != nil {
		db.raw.Close()
		log.Info().Msg("Database connection pool closed")
	}
}

// Health checks database connectivity.
func (db *DB) Health(ctx context.Context) error {
	if db.raw != nil {
		return db.raw.Ping(ctx)
	}
	return nil
}

// isUniqueViolation reports whether err is a unique-constraint conflict,
// which idempotent writers treat as success.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
