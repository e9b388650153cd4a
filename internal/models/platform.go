// Package models defines the canonical entities shared by adapters, the
// scoring engine, the analyzers, and the store. Upstream venue shapes never
// leave the adapter layer; everything past it speaks these types.
package models

import (
	"fmt"
	"strings"
)

// Platform identifies a supported prediction venue.
type Platform string

const (
	PlatformPancakeSwap  Platform = "pancakeswap"
	PlatformPolymarket   Platform = "polymarket"
	PlatformAzuro        Platform = "azuro"
	PlatformOvertime     Platform = "overtime"
	PlatformThales       Platform = "thales"
	PlatformKalshi       Platform = "kalshi"
	PlatformManifold     Platform = "manifold"
	PlatformLimitless    Platform = "limitless"
	PlatformDrift        Platform = "drift"
	PlatformPolkamarkets Platform = "polkamarkets"
	PlatformSXBet        Platform = "sxbet"
	PlatformMyriad       Platform = "myriad"
)

// Category buckets platforms by what their markets are about. The scoring
// engine picks the score formula by category: crypto venues run binary
// rounds against a 50% baseline, the rest are odds markets.
type Category string

const (
	CategoryCrypto      Category = "crypto"
	CategorySports      Category = "sports"
	CategoryEvents      Category = "events"
	CategoryForecasting Category = "forecasting"
)

// PlatformInfo carries the static per-venue facts adapters and the
// backtester need.
type PlatformInfo struct {
	Platform    Platform `json:"platform"`
	Name        string   `json:"name"`
	Chain       string   `json:"chain"`
	ChainID     int64    `json:"chain_id"` // 0 for off-chain venues
	Currency    string   `json:"currency"`
	Decimals    int      `json:"decimals"` // native token decimals at the venue
	FeePercent  float64  `json:"fee_percent"`
	PayoutRatio float64  `json:"payout_ratio"` // gross payout multiple on a win
	Category    Category `json:"category"`
	Weight      float64  `json:"weight"` // platform weight in the unified score
}

var platformRegistry = map[Platform]PlatformInfo{
	PlatformPancakeSwap:  {PlatformPancakeSwap, "PancakeSwap Prediction", "bsc", 56, "BNB", 18, 3.0, 1.9, CategoryCrypto, 1.0},
	PlatformPolymarket:   {PlatformPolymarket, "Polymarket", "polygon", 137, "USDC", 6, 0.0, 0, CategoryEvents, 1.0},
	PlatformAzuro:        {PlatformAzuro, "Azuro", "polygon", 137, "USDT", 6, 2.5, 0, CategorySports, 1.0},
	PlatformOvertime:     {PlatformOvertime, "Overtime Markets", "optimism", 10, "sUSD", 18, 2.0, 0, CategorySports, 1.0},
	PlatformThales:       {PlatformThales, "Thales", "optimism", 10, "sUSD", 18, 2.0, 1.9, CategoryCrypto, 1.0},
	PlatformKalshi:       {PlatformKalshi, "Kalshi", "", 0, "USD", 2, 1.0, 0, CategoryEvents, 1.0},
	PlatformManifold:     {PlatformManifold, "Manifold", "", 0, "MANA", 0, 0.0, 0, CategoryForecasting, 0.5},
	PlatformLimitless:    {PlatformLimitless, "Limitless", "base", 8453, "USDC", 6, 1.0, 0, CategoryEvents, 1.0},
	PlatformDrift:        {PlatformDrift, "Drift BET", "", 0, "USDC", 6, 1.0, 0, CategoryEvents, 1.0},
	PlatformPolkamarkets: {PlatformPolkamarkets, "Polkamarkets", "moonbeam", 1284, "USDC", 6, 2.0, 0, CategoryForecasting, 0.8},
	PlatformSXBet:        {PlatformSXBet, "SX Bet", "sx", 4162, "USDC", 6, 2.0, 0, CategorySports, 1.0},
	PlatformMyriad:       {PlatformMyriad, "Myriad", "abstract", 2741, "USDC", 6, 1.0, 0, CategoryEvents, 0.8},
}

// AllPlatforms returns the closed platform set in stable order.
func AllPlatforms() []Platform {
	return []Platform{
		PlatformPancakeSwap, PlatformPolymarket, PlatformAzuro,
		PlatformOvertime, PlatformThales, PlatformKalshi,
		PlatformManifold, PlatformLimitless, PlatformDrift,
		PlatformPolkamarkets, PlatformSXBet, PlatformMyriad,
	}
}

// InfoFor returns the static metadata for a platform.
func InfoFor(p Platform) (PlatformInfo, bool) {
	info, ok := platformRegistry[p]
	return info, ok
}

// ParsePlatform validates a user-supplied platform tag.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := platformRegistry[p]; !ok {
		return "", fmt.Errorf("unknown platform %q", s)
	}
	return p, nil
}

// IsBinaryRoundVenue reports whether the platform runs fixed-cadence binary
// rounds (epoch-based bull/bear pools).
func IsBinaryRoundVenue(p Platform) bool {
	info, ok := platformRegistry[p]
	return ok && info.Category == CategoryCrypto
}
