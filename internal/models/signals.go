package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tier buckets a trader's unified TruthScore.
type Tier string

const (
	TierBronze   Tier = "BRONZE"
	TierSilver   Tier = "SILVER"
	TierGold     Tier = "GOLD"
	TierPlatinum Tier = "PLATINUM"
	TierDiamond  Tier = "DIAMOND"
)

// tierThresholds maps each tier to the minimum unified score, ascending.
var tierThresholds = []struct {
	Tier Tier
	Min  float64
}{
	{TierBronze, 0},
	{TierSilver, 200},
	{TierGold, 400},
	{TierPlatinum, 650},
	{TierDiamond, 900},
}

// TierForScore returns the highest tier whose threshold the score meets.
func TierForScore(score float64) Tier {
	tier := TierBronze
	for _, t := range tierThresholds {
		if score >= t.Min {
			tier = t.Tier
		}
	}
	return tier
}

// TierWeight is the smart-money weight multiplier per tier.
func TierWeight(t Tier) float64 {
	switch t {
	case TierDiamond:
		return 5
	case TierPlatinum:
		return 3
	case TierGold:
		return 2
	case TierSilver:
		return 1.5
	default:
		return 1
	}
}

// PlatformScore is one per-platform component of a unified TruthScore.
type PlatformScore struct {
	Platform Platform `json:"platform"`
	Score    float64  `json:"score"`
	Weight   float64  `json:"weight"`
}

// TruthScore is the unified trader reputation. Always derived, never
// authoritative outside the cache.
type TruthScore struct {
	Address     string          `json:"address"`
	TotalScore  float64         `json:"total_score"`
	Breakdown   []PlatformScore `json:"breakdown"`
	Tier        Tier            `json:"tier"`
	LastUpdated time.Time       `json:"last_updated"`
}

// UnifiedTrader is a leaderboard row: score plus cross-platform aggregates.
type UnifiedTrader struct {
	Address         string          `json:"address"`
	TotalScore      float64         `json:"total_score"`
	Tier            Tier            `json:"tier"`
	ActivePlatforms int             `json:"active_platforms"`
	TotalBets       int             `json:"total_bets"`
	TotalVolume     decimal.Decimal `json:"total_volume"`
	WinRate         float64         `json:"win_rate"`
	LastActiveAt    time.Time       `json:"last_active_at"`
}

// Consensus is the smart-money verdict on a round.
type Consensus string

const (
	ConsensusBull    Consensus = "BULL"
	ConsensusBear    Consensus = "BEAR"
	ConsensusNeutral Consensus = "NEUTRAL"
)

// Strength grades how much conviction backs a consensus.
type Strength string

const (
	StrengthStrong   Strength = "STRONG"
	StrengthModerate Strength = "MODERATE"
	StrengthWeak     Strength = "WEAK"
)

// SignalBet is one tracked trader's contribution to a smart-money signal.
type SignalBet struct {
	Trader    string          `json:"trader"`
	Tier      Tier            `json:"tier"`
	Amount    decimal.Decimal `json:"amount"`
	Direction Direction       `json:"direction"`
	Weight    float64         `json:"weight"`
}

// SmartMoneySignal is the tier-weighted consensus of tracked top traders on
// one round. Unique per (platform, epoch).
type SmartMoneySignal struct {
	Platform            Platform        `json:"platform"`
	Epoch               int64           `json:"epoch"`
	Consensus           Consensus       `json:"consensus"`
	Confidence          float64         `json:"confidence"` // 0..100
	WeightedBullPercent float64         `json:"weighted_bull_percent"`
	Participants        int             `json:"participants"`
	DiamondTraders      int             `json:"diamond_traders"`
	PlatinumTraders     int             `json:"platinum_traders"`
	TotalVolume         decimal.Decimal `json:"total_volume"`
	Strength            Strength        `json:"strength"`
	TopTraderAgreement  float64         `json:"top_trader_agreement"`
	Bets                []SignalBet     `json:"bets"`
	GeneratedAt         time.Time       `json:"generated_at"`
}

// PlatformPresence records one platform's footprint inside a trending topic.
// A topic lists each platform at most once.
type PlatformPresence struct {
	Platform    Platform `json:"platform"`
	MarketCount int      `json:"market_count"`
	VolumeUSD   float64  `json:"volume_usd"`
	TopMarkets  []string `json:"top_markets"`
}

// TrendingTopic is a normalized phrase clustered across platforms, scored by
// volume, spread, and velocity.
type TrendingTopic struct {
	Topic        string             `json:"topic"` // normalized form, the upsert key
	Score        float64            `json:"score"`
	Velocity     float64            `json:"velocity"` // USD volume per minute
	TotalVolume  float64            `json:"total_volume"`
	TotalMarkets int                `json:"total_markets"`
	Category     string             `json:"category"`
	Platforms    []PlatformPresence `json:"platforms"`
	FirstSeen    time.Time          `json:"first_seen"`
	LastUpdated  time.Time          `json:"last_updated"`
}

// CrossConsensus is the fused multi-venue verdict on a topic.
type CrossConsensus string

const (
	CrossStrongYes CrossConsensus = "STRONG_YES"
	CrossLeanYes   CrossConsensus = "LEAN_YES"
	CrossMixed     CrossConsensus = "MIXED"
	CrossLeanNo    CrossConsensus = "LEAN_NO"
	CrossStrongNo  CrossConsensus = "STRONG_NO"
)

// PlatformSignal is one venue's read on a fused topic: its highest-volume
// market's YES probability and volume.
type PlatformSignal struct {
	Platform       Platform `json:"platform"`
	MarketID       string   `json:"market_id"`
	ProbabilityBps int64    `json:"probability_bps"`
	VolumeUSD      float64  `json:"volume_usd"`
}

// CrossPlatformSignal fuses same-topic markets across at least two venues.
// Probability is stored in bps so equality tests don't drift.
type CrossPlatformSignal struct {
	Topic          string           `json:"topic"`
	Consensus      CrossConsensus   `json:"consensus"`
	Confidence     int              `json:"confidence"` // 0..100
	ProbabilityBps int64            `json:"probability_bps"`
	Platforms      []PlatformSignal `json:"platforms"`
	TotalVolume    float64          `json:"total_volume"`
	MarketCount    int              `json:"market_count"`
	GeneratedAt    time.Time        `json:"generated_at"`
	ExpiresAt      time.Time        `json:"expires_at"`
}
