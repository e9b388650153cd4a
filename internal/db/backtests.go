package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// GetBacktestCache returns the cached result JSON for a settings hash, or
// ErrNotFound when absent or expired.
func (db *DB) GetBacktestCache(ctx context.Context, cacheKey string, now time.Time) (json.RawMessage, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT result FROM backtest_cache
		WHERE cache_key = $1 AND expires_at > $2`, cacheKey, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query backtest cache: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}

	var result []byte
	if err := rows.Scan(&result); err != nil {
		return nil, fmt.Errorf("failed to scan backtest cache: %w", err)
	}
	return result, nil
}

// PutBacktestCache stores a backtest result under its settings hash with a
// TTL. Identical inputs hit the cache instead of replaying.
func (db *DB) PutBacktestCache(ctx context.Context, cacheKey, leader string, rangeStart, rangeEnd time.Time, result json.RawMessage, ttl time.Duration, now time.Time) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO backtest_cache
			(cache_key, leader, range_start, range_end, result, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (cache_key) DO UPDATE SET
			result     = EXCLUDED.result,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at`,
		cacheKey, leader, rangeStart, rangeEnd, []byte(result), now, now.Add(ttl))
	if err != nil {
		return fmt.Errorf("failed to store backtest cache: %w", err)
	}
	return nil
}

// PruneBacktestCache deletes expired cache rows.
func (db *DB) PruneBacktestCache(ctx context.Context, now time.Time) (int64, error) {
	tag, err := db.pool.Exec(ctx,
		`DELETE FROM backtest_cache WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to prune backtest cache: %w", err)
	}
	return tag.RowsAffected(), nil
}
