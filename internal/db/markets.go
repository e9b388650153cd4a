package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/truthplane/engine/internal/models"
)

// UpsertMarket writes a canonical market snapshot.
func (db *DB) UpsertMarket(ctx context.Context, m *models.Market) error {
	var winner *string
	if m.Winner != nil {
		w := string(*m.Winner)
		winner = &w
	}

	_, err := db.pool.Exec(ctx, `
		INSERT INTO markets
			(platform, market_id, title, category, start_time, lock_time,
			 close_time, bull_amount, bear_amount, total_amount, yes_price_bps,
			 volume_usd, oracle_called, winner, resolved_at, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (platform, market_id) DO UPDATE SET
			title         = EXCLUDED.title,
			category      = EXCLUDED.category,
			lock_time     = EXCLUDED.lock_time,
			close_time    = EXCLUDED.close_time,
			bull_amount   = EXCLUDED.bull_amount,
			bear_amount   = EXCLUDED.bear_amount,
			total_amount  = EXCLUDED.total_amount,
			yes_price_bps = EXCLUDED.yes_price_bps,
			volume_usd    = EXCLUDED.volume_usd,
			oracle_called = EXCLUDED.oracle_called,
			winner        = EXCLUDED.winner,
			resolved_at   = EXCLUDED.resolved_at,
			active        = EXCLUDED.active`,
		string(m.Platform), m.ID, m.Title, m.Category,
		nullableTime(m.StartTime), nullableTime(m.LockTime), nullableTime(m.CloseTime),
		m.BullAmount.String(), m.BearAmount.String(), m.TotalAmount.String(),
		m.YesPriceBps, m.VolumeUSD, m.OracleCalled, winner, m.ResolvedAt, m.Active)
	if err != nil {
		return fmt.Errorf("failed to upsert market %s/%s: %w", m.Platform, m.ID, err)
	}
	return nil
}

// GetMarket fetches one market.
func (db *DB) GetMarket(ctx context.Context, platform models.Platform, marketID string) (*models.Market, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT platform, market_id, title, category, start_time, lock_time,
		       close_time, bull_amount, bear_amount, total_amount, yes_price_bps,
		       volume_usd, oracle_called, winner, resolved_at, active
		FROM markets
		WHERE platform = $1 AND market_id = $2`, string(platform), marketID)
	if err != nil {
		return nil, fmt.Errorf("failed to query market %s/%s: %w", platform, marketID, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return scanMarket(rows)
}

// GetActiveMarkets returns unresolved markets on one platform ordered by
// USD volume, largest first.
func (db *DB) GetActiveMarkets(ctx context.Context, platform models.Platform) ([]*models.Market, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT platform, market_id, title, category, start_time, lock_time,
		       close_time, bull_amount, bear_amount, total_amount, yes_price_bps,
		       volume_usd, oracle_called, winner, resolved_at, active
		FROM markets
		WHERE platform = $1 AND active = TRUE
		ORDER BY volume_usd DESC`, string(platform))
	if err != nil {
		return nil, fmt.Errorf("failed to query active markets on %s: %w", platform, err)
	}
	defer rows.Close()

	var out []*models.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetAllActiveMarkets returns active markets across every platform, for
// trend clustering and cross-venue fusion.
func (db *DB) GetAllActiveMarkets(ctx context.Context) ([]*models.Market, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT platform, market_id, title, category, start_time, lock_time,
		       close_time, bull_amount, bear_amount, total_amount, yes_price_bps,
		       volume_usd, oracle_called, winner, resolved_at, active
		FROM markets
		WHERE active = TRUE
		ORDER BY volume_usd DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active markets: %w", err)
	}
	defer rows.Close()

	var out []*models.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ResolveMarket records a market outcome and deactivates the market.
// A nil winner marks a draw or void round.
func (db *DB) ResolveMarket(ctx context.Context, platform models.Platform, marketID string, outcome models.Outcome) error {
	var winner *string
	if outcome.Winner != nil {
		w := string(*outcome.Winner)
		winner = &w
	}
	_, err := db.pool.Exec(ctx, `
		UPDATE markets
		SET oracle_called = TRUE, winner = $3, resolved_at = $4, active = FALSE
		WHERE platform = $1 AND market_id = $2`,
		string(platform), marketID, winner, outcome.ResolvedAt)
	if err != nil {
		return fmt.Errorf("failed to resolve market %s/%s: %w", platform, marketID, err)
	}
	return nil
}

func scanMarket(rows pgx.Rows) (*models.Market, error) {
	var (
		m        models.Market
		platform string
		start    *time.Time
		lock     *time.Time
		closeT   *time.Time
		bull     string
		bear     string
		total    string
		winner   *string
	)
	err := rows.Scan(&platform, &m.ID, &m.Title, &m.Category, &start, &lock,
		&closeT, &bull, &bear, &total, &m.YesPriceBps, &m.VolumeUSD,
		&m.OracleCalled, &winner, &m.ResolvedAt, &m.Active)
	if err != nil {
		return nil, fmt.Errorf("failed to scan market: %w", err)
	}

	p, err := models.ParsePlatform(platform)
	if err != nil {
		return nil, err
	}
	m.Platform = p

	if start != nil {
		m.StartTime = *start
	}
	if lock != nil {
		m.LockTime = *lock
	}
	if closeT != nil {
		m.CloseTime = *closeT
	}

	if m.BullAmount, err = decimal.NewFromString(bull); err != nil {
		return nil, fmt.Errorf("invalid bull amount %q: %w", bull, err)
	}
	if m.BearAmount, err = decimal.NewFromString(bear); err != nil {
		return nil, fmt.Errorf("invalid bear amount %q: %w", bear, err)
	}
	if m.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("invalid total amount %q: %w", total, err)
	}

	if winner != nil {
		d, err := models.ParseDirection(*winner)
		if err != nil {
			return nil, err
		}
		m.Winner = &d
	}
	return &m, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
