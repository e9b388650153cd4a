package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/truthplane/engine/internal/models"
)

// InsertBet writes a canonical bet under its natural key. Re-inserting the
// same bet is a no-op: duplicate deliveries never double-count.
// Returns true when the row was new.
func (db *DB) InsertBet(ctx context.Context, bet *models.Bet) (bool, error) {
	tag, err := db.pool.Exec(ctx, `
		INSERT INTO bets
			(natural_key, bet_id, trader, platform, market_id, direction,
			 amount, bet_timestamp, tx_hash, log_index, block_number, won, claimed_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (natural_key) DO NOTHING`,
		bet.NaturalKey(), bet.ID, models.NormalizeAddress(bet.Trader),
		string(bet.Platform), bet.MarketID, string(bet.Direction),
		bet.Amount.String(), bet.Timestamp, bet.TxHash, int(bet.LogIndex),
		int64(bet.BlockNumber), bet.Won, decimalPtr(bet.ClaimedAmount))
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert bet %s: %w", bet.NaturalKey(), err)
	}
	return tag.RowsAffected() > 0, nil
}

// SettleBet records a bet's resolution. A nil won is a push and clears any
// pending state without counting a win or loss.
func (db *DB) SettleBet(ctx context.Context, naturalKey string, won *bool, claimed *decimal.Decimal) error {
	_, err := db.pool.Exec(ctx, `
		UPDATE bets SET won = $2, claimed_amount = $3 WHERE natural_key = $1`,
		naturalKey, won, decimalPtr(claimed))
	if err != nil {
		return fmt.Errorf("failed to settle bet %s: %w", naturalKey, err)
	}
	return nil
}

// GetBetsForTrader returns a trader's bets on one platform, newest first.
func (db *DB) GetBetsForTrader(ctx context.Context, address string, platform models.Platform, limit int) ([]*models.Bet, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT bet_id, trader, platform, market_id, direction, amount,
		       bet_timestamp, tx_hash, log_index, block_number, won, claimed_amount
		FROM bets
		WHERE trader = $1 AND platform = $2
		ORDER BY bet_timestamp DESC
		LIMIT $3`, models.NormalizeAddress(address), string(platform), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query bets for %s on %s: %w", address, platform, err)
	}
	defer rows.Close()
	return scanBets(rows)
}

// GetBetsForMarket returns every bet on one market.
func (db *DB) GetBetsForMarket(ctx context.Context, platform models.Platform, marketID string) ([]*models.Bet, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT bet_id, trader, platform, market_id, direction, amount,
		       bet_timestamp, tx_hash, log_index, block_number, won, claimed_amount
		FROM bets
		WHERE platform = $1 AND market_id = $2
		ORDER BY bet_timestamp ASC`, string(platform), marketID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bets for market %s/%s: %w", platform, marketID, err)
	}
	defer rows.Close()
	return scanBets(rows)
}

// GetBetsInRange returns a trader's bets across a time window, oldest first,
// for backtest replay.
func (db *DB) GetBetsInRange(ctx context.Context, address string, from, to time.Time) ([]*models.Bet, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT bet_id, trader, platform, market_id, direction, amount,
		       bet_timestamp, tx_hash, log_index, block_number, won, claimed_amount
		FROM bets
		WHERE trader = $1 AND bet_timestamp >= $2 AND bet_timestamp < $3
		ORDER BY bet_timestamp ASC`, models.NormalizeAddress(address), from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query bets for %s in range: %w", address, err)
	}
	defer rows.Close()
	return scanBets(rows)
}

// GetRecentBets returns the latest bets on one platform within the window.
func (db *DB) GetRecentBets(ctx context.Context, platform models.Platform, since time.Time, limit int) ([]*models.Bet, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT bet_id, trader, platform, market_id, direction, amount,
		       bet_timestamp, tx_hash, log_index, block_number, won, claimed_amount
		FROM bets
		WHERE platform = $1 AND bet_timestamp >= $2
		ORDER BY bet_timestamp DESC
		LIMIT $3`, string(platform), since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent bets on %s: %w", platform, err)
	}
	defer rows.Close()
	return scanBets(rows)
}

func scanBets(rows pgx.Rows) ([]*models.Bet, error) {
	var out []*models.Bet
	for rows.Next() {
		var (
			b        models.Bet
			platform string
			dir      string
			amount   string
			logIdx   int
			block    int64
			claimed  *string
		)
		err := rows.Scan(&b.ID, &b.Trader, &platform, &b.MarketID, &dir,
			&amount, &b.Timestamp, &b.TxHash, &logIdx, &block, &b.Won, &claimed)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bet: %w", err)
		}

		p, err := models.ParsePlatform(platform)
		if err != nil {
			return nil, err
		}
		b.Platform = p

		d, err := models.ParseDirection(dir)
		if err != nil {
			return nil, err
		}
		b.Direction = d

		b.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
		}
		b.LogIndex = uint(logIdx)
		b.BlockNumber = uint64(block)

		if claimed != nil {
			c, err := decimal.NewFromString(*claimed)
			if err != nil {
				return nil, fmt.Errorf("invalid claimed amount %q: %w", *claimed, err)
			}
			b.ClaimedAmount = &c
		}
		out = append(out, &b)
	}
	return out, rows.Err()
}

func decimalPtr(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}
