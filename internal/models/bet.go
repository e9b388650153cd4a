package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the canonical binary side of a bet. YES/UP/home map to bull,
// NO/DOWN/away map to bear at the adapter boundary.
type Direction string

const (
	DirectionBull Direction = "bull"
	DirectionBear Direction = "bear"
)

// ParseDirection validates a direction tag.
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(s)) {
	case DirectionBull:
		return DirectionBull, nil
	case DirectionBear:
		return DirectionBear, nil
	}
	return "", fmt.Errorf("unknown direction %q", s)
}

// canonicalDecimals is the wei-like fixed-point unit all amounts are stored
// in, regardless of the venue's native token decimals.
const canonicalDecimals = 18

// ToCanonical scales a venue-native integer amount to the canonical 18-dec
// unit using exact integer math. nativeDecimals is the venue token's
// precision (6 for USDC, 18 for BNB).
func ToCanonical(native decimal.Decimal, nativeDecimals int) decimal.Decimal {
	return native.Shift(int32(canonicalDecimals - nativeDecimals))
}

// FromCanonical renders a canonical amount back at the venue's native
// precision. ToCanonical followed by FromCanonical is lossless.
func FromCanonical(amount decimal.Decimal, nativeDecimals int) decimal.Decimal {
	return amount.Shift(int32(nativeDecimals - canonicalDecimals))
}

// NativeUnits converts a canonical amount to whole native tokens as a float,
// for scoring and display only. Never persisted.
func NativeUnits(amount decimal.Decimal) float64 {
	f, _ := amount.Shift(-canonicalDecimals).Float64()
	return f
}

// NormalizeAddress lower-cases an address so every identity comparison in
// the engine is case-insensitive.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// Bet is a single canonical wager. Won stays nil until the round resolves;
// ClaimedAmount is set only on wins.
type Bet struct {
	ID            string           `json:"id"`
	Trader        string           `json:"trader"` // lower-cased hex
	Platform      Platform         `json:"platform"`
	MarketID      string           `json:"market_id"`
	Direction     Direction        `json:"direction"`
	Amount        decimal.Decimal  `json:"amount"` // canonical 18-dec units
	Timestamp     time.Time        `json:"timestamp"`
	TxHash        string           `json:"tx_hash,omitempty"`
	LogIndex      uint             `json:"log_index,omitempty"`
	BlockNumber   uint64           `json:"block_number,omitempty"`
	Won           *bool            `json:"won"`
	ClaimedAmount *decimal.Decimal `json:"claimed_amount,omitempty"`
}

// NaturalKey is the idempotent upsert key: (platform, txHash, logIndex) when
// the bet came off-chain, else (platform, id).
func (b *Bet) NaturalKey() string {
	if b.TxHash != "" {
		return fmt.Sprintf("%s:%s:%d", b.Platform, strings.ToLower(b.TxHash), b.LogIndex)
	}
	return fmt.Sprintf("%s:%s", b.Platform, b.ID)
}

// Market is a venue round or question in canonical form. Binary rounds carry
// bull/bear pools; odds markets carry a YES probability in bps.
type Market struct {
	ID           string          `json:"id"`
	Platform     Platform        `json:"platform"`
	Title        string          `json:"title"`
	Category     string          `json:"category,omitempty"`
	StartTime    time.Time       `json:"start_time"`
	LockTime     time.Time       `json:"lock_time"`
	CloseTime    time.Time       `json:"close_time"`
	BullAmount   decimal.Decimal `json:"bull_amount"`
	BearAmount   decimal.Decimal `json:"bear_amount"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	YesPriceBps  int64           `json:"yes_price_bps"` // current YES probability, basis points
	VolumeUSD    float64         `json:"volume_usd"`
	OracleCalled bool            `json:"oracle_called"`
	Winner       *Direction      `json:"winner"` // nil until resolved, and for draws/voids
	ResolvedAt   *time.Time      `json:"resolved_at,omitempty"`
	Active       bool            `json:"active"`
}

// Outcome is the resolution of a market. Winner stays nil for a draw or
// void round.
type Outcome struct {
	Resolved   bool       `json:"resolved"`
	Winner     *Direction `json:"winner"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// Settle returns whether the bet won under this outcome. Draw/void rounds
// settle every bet as a push (nil).
func (o Outcome) Settle(d Direction) *bool {
	if !o.Resolved || o.Winner == nil {
		return nil
	}
	won := *o.Winner == d
	return &won
}

// UserStats is the per-(trader, platform) rollup the TruthScore derives
// from. WinRate is a percentage over resolved bets only.
type UserStats struct {
	Address    string          `json:"address"`
	Platform   Platform        `json:"platform"`
	TotalBets  int             `json:"total_bets"`
	Wins       int             `json:"wins"`
	Losses     int             `json:"losses"`
	Pending    int             `json:"pending"`
	WinRate    float64         `json:"win_rate"`
	Volume     decimal.Decimal `json:"volume"` // canonical units
	Score      float64         `json:"score"`
	FirstBetAt time.Time       `json:"first_bet_at"`
	LastBetAt  time.Time       `json:"last_bet_at"`
}

// Resolved returns wins+losses.
func (s *UserStats) Resolved() int { return s.Wins + s.Losses }
