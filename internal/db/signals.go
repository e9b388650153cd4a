package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/truthplane/engine/internal/models"
)

// UpsertSignal writes a smart-money signal. One signal per (platform, epoch):
// a regenerated signal for the same round replaces the previous one.
func (db *DB) UpsertSignal(ctx context.Context, s *models.SmartMoneySignal) error {
	bets, err := json.Marshal(s.Bets)
	if err != nil {
		return fmt.Errorf("failed to marshal signal bets: %w", err)
	}

	_, err = db.pool.Exec(ctx, `
		INSERT INTO signals
			(platform, epoch, consensus, confidence, weighted_bull_pct,
			 participants, diamond_traders, platinum_traders, total_volume,
			 strength, top_agreement, bets, generated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (platform, epoch) DO UPDATE SET
			consensus         = EXCLUDED.consensus,
			confidence        = EXCLUDED.confidence,
			weighted_bull_pct = EXCLUDED.weighted_bull_pct,
			participants      = EXCLUDED.participants,
			diamond_traders   = EXCLUDED.diamond_traders,
			platinum_traders  = EXCLUDED.platinum_traders,
			total_volume      = EXCLUDED.total_volume,
			strength          = EXCLUDED.strength,
			top_agreement     = EXCLUDED.top_agreement,
			bets              = EXCLUDED.bets,
			generated_at      = EXCLUDED.generated_at`,
		string(s.Platform), s.Epoch, string(s.Consensus), s.Confidence,
		s.WeightedBullPercent, s.Participants, s.DiamondTraders,
		s.PlatinumTraders, s.TotalVolume.String(), string(s.Strength),
		s.TopTraderAgreement, bets, s.GeneratedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert signal %s/%d: %w", s.Platform, s.Epoch, err)
	}
	return nil
}

// GetSignal fetches the signal for one round.
func (db *DB) GetSignal(ctx context.Context, platform models.Platform, epoch int64) (*models.SmartMoneySignal, error) {
	rows, err := db.pool.Query(ctx, signalSelect+`
		WHERE platform = $1 AND epoch = $2`, string(platform), epoch)
	if err != nil {
		return nil, fmt.Errorf("failed to query signal %s/%d: %w", platform, epoch, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return scanSignal(rows)
}

// GetSignalHistory returns the most recent signals on one platform.
func (db *DB) GetSignalHistory(ctx context.Context, platform models.Platform, limit int) ([]*models.SmartMoneySignal, error) {
	rows, err := db.pool.Query(ctx, signalSelect+`
		WHERE platform = $1
		ORDER BY epoch DESC
		LIMIT $2`, string(platform), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query signal history on %s: %w", platform, err)
	}
	defer rows.Close()

	var out []*models.SmartMoneySignal
	for rows.Next() {
		s, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetSignalsSince returns signals generated after the cutoff, across all
// platforms, newest first.
func (db *DB) GetSignalsSince(ctx context.Context, since time.Time) ([]*models.SmartMoneySignal, error) {
	rows, err := db.pool.Query(ctx, signalSelect+`
		WHERE generated_at >= $1
		ORDER BY generated_at DESC`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals since %s: %w", since, err)
	}
	defer rows.Close()

	var out []*models.SmartMoneySignal
	for rows.Next() {
		s, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

const signalSelect = `
		SELECT platform, epoch, consensus, confidence, weighted_bull_pct,
		       participants, diamond_traders, platinum_traders, total_volume,
		       strength, top_agreement, bets, generated_at
		FROM signals`

func scanSignal(rows pgx.Rows) (*models.SmartMoneySignal, error) {
	var (
		s         models.SmartMoneySignal
		platform  string
		consensus string
		volume    string
		strength  string
		bets      []byte
	)
	err := rows.Scan(&platform, &s.Epoch, &consensus, &s.Confidence,
		&s.WeightedBullPercent, &s.Participants, &s.DiamondTraders,
		&s.PlatinumTraders, &volume, &strength, &s.TopTraderAgreement,
		&bets, &s.GeneratedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan signal: %w", err)
	}

	p, err := models.ParsePlatform(platform)
	if err != nil {
		return nil, err
	}
	s.Platform = p
	s.Consensus = models.Consensus(consensus)
	s.Strength = models.Strength(strength)

	if s.TotalVolume, err = decimal.NewFromString(volume); err != nil {
		return nil, fmt.Errorf("invalid signal volume %q: %w", volume, err)
	}
	if len(bets) > 0 {
		if err := json.Unmarshal(bets, &s.Bets); err != nil {
			return nil, fmt.Errorf("failed to unmarshal signal bets: %w", err)
		}
	}
	return &s, nil
}
