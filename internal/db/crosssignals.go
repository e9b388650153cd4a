package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/truthplane/engine/internal/models"
)

// UpsertCrossSignal writes a fused cross-venue signal keyed by topic.
func (db *DB) UpsertCrossSignal(ctx context.Context, s *models.CrossPlatformSignal) error {
	platforms, err := json.Marshal(s.Platforms)
	if err != nil {
		return fmt.Errorf("failed to marshal cross-signal platforms: %w", err)
	}

	_, err = db.pool.Exec(ctx, `
		INSERT INTO cross_platform_signals
			(topic, consensus, confidence, probability_bps, platforms,
			 total_volume, market_count, generated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (topic) DO UPDATE SET
			consensus       = EXCLUDED.consensus,
			confidence      = EXCLUDED.confidence,
			probability_bps = EXCLUDED.probability_bps,
			platforms       = EXCLUDED.platforms,
			total_volume    = EXCLUDED.total_volume,
			market_count    = EXCLUDED.market_count,
			generated_at    = EXCLUDED.generated_at,
			expires_at      = EXCLUDED.expires_at`,
		s.Topic, string(s.Consensus), s.Confidence, s.ProbabilityBps,
		platforms, s.TotalVolume, s.MarketCount, s.GeneratedAt, s.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to upsert cross-signal %q: %w", s.Topic, err)
	}
	return nil
}

// GetActiveCrossSignals returns unexpired fused signals, strongest
// divergence from 50% first.
func (db *DB) GetActiveCrossSignals(ctx context.Context, now time.Time, limit int) ([]*models.CrossPlatformSignal, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT topic, consensus, confidence, probability_bps, platforms,
		       total_volume, market_count, generated_at, expires_at
		FROM cross_platform_signals
		WHERE expires_at > $1
		ORDER BY ABS(probability_bps - 5000) DESC, total_volume DESC
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query cross-signals: %w", err)
	}
	defer rows.Close()

	var out []*models.CrossPlatformSignal
	for rows.Next() {
		s, err := scanCrossSignal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetCrossSignal fetches one fused signal by topic.
func (db *DB) GetCrossSignal(ctx context.Context, topic string) (*models.CrossPlatformSignal, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT topic, consensus, confidence, probability_bps, platforms,
		       total_volume, market_count, generated_at, expires_at
		FROM cross_platform_signals
		WHERE topic = $1`, topic)
	if err != nil {
		return nil, fmt.Errorf("failed to query cross-signal %q: %w", topic, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return scanCrossSignal(rows)
}

func scanCrossSignal(rows pgx.Rows) (*models.CrossPlatformSignal, error) {
	var (
		s         models.CrossPlatformSignal
		consensus string
		platforms []byte
	)
	err := rows.Scan(&s.Topic, &consensus, &s.Confidence, &s.ProbabilityBps,
		&platforms, &s.TotalVolume, &s.MarketCount, &s.GeneratedAt, &s.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan cross-signal: %w", err)
	}
	s.Consensus = models.CrossConsensus(consensus)
	if len(platforms) > 0 {
		if err := json.Unmarshal(platforms, &s.Platforms); err != nil {
			return nil, fmt.Errorf("failed to unmarshal cross-signal platforms: %w", err)
		}
	}
	return &s, nil
}
