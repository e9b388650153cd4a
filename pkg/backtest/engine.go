// Package backtest replays a leader's historical bets under a copy policy
// and grades the result with risk-adjusted metrics. The replay is strictly
// chronological and deterministic: the same bets and settings always produce
// the same result.
package backtest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/truthplane/engine/internal/models"
)

// defaultPayoutRatio is assumed for venues that don't publish a fixed
// payout multiple.
const defaultPayoutRatio = 1.9

// Settings is the copy policy under which a leader's history is replayed.
type Settings struct {
	Leader            string    `json:"leader"`
	Start             time.Time `json:"start"`
	End               time.Time `json:"end"`
	InitialCapital    float64   `json:"initial_capital"`
	AllocationPercent float64   `json:"allocation_percent"`
	MaxBetSize        float64   `json:"max_bet_size"` // 0 disables the clamp
	Compounding       bool      `json:"compounding"`
	StopLossPercent   float64   `json:"stop_loss_percent"` // 0 disables the stop
}

// Normalize fills defaults and lower-cases the leader address.
func (s *Settings) Normalize() {
	s.Leader = models.NormalizeAddress(s.Leader)
	if s.InitialCapital <= 0 {
		s.InitialCapital = 1
	}
	if s.AllocationPercent <= 0 {
		s.AllocationPercent = 100
	}
}

// Hash is the cache identity of one replay: leader, range, and every policy
// knob, digested.
func (s Settings) Hash() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%d|%.8f|%.8f|%.8f|%t|%.8f",
		models.NormalizeAddress(s.Leader),
		s.Start.Unix(), s.End.Unix(),
		s.InitialCapital, s.AllocationPercent, s.MaxBetSize,
		s.Compounding, s.StopLossPercent)
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// Trade is one simulated copy of a leader bet.
type Trade struct {
	Platform  models.Platform  `json:"platform"`
	MarketID  string           `json:"market_id"`
	Direction models.Direction `json:"direction"`
	Timestamp time.Time        `json:"timestamp"`
	Stake     float64          `json:"stake"` // native units
	PnL       float64          `json:"pnl"`
	Equity    float64          `json:"equity"` // after settlement
}

// EquityPoint is one point on the equity curve.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
}

// MonthlyReturn is one calendar-month rollup.
type MonthlyReturn struct {
	Month  string  `json:"month"` // YYYY-MM
	Trades int     `json:"trades"`
	PnL    float64 `json:"pnl"`
}

// Result is the full outcome of one replay.
type Result struct {
	Settings    Settings        `json:"settings"`
	Metrics     Metrics         `json:"metrics"`
	Monthly     []MonthlyReturn `json:"monthly"`
	BestMonth   *MonthlyReturn  `json:"best_month,omitempty"`
	WorstMonth  *MonthlyReturn  `json:"worst_month,omitempty"`
	EquityCurve []EquityPoint   `json:"equity_curve"`
	Trades      []Trade         `json:"trades"`
	Skipped     int             `json:"skipped"` // unresolved bets in range
	Halted      bool            `json:"halted"`  // stop-loss fired mid-replay
	GeneratedAt time.Time       `json:"generated_at"`
}

// Run replays the leader's bets chronologically under the settings.
// Unresolved bets are skipped, never guessed.
func Run(settings Settings, bets []*models.Bet, now time.Time) *Result {
	settings.Normalize()

	ordered := make([]*models.Bet, len(bets))
	copy(ordered, bets)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].Timestamp.Equal(ordered[j].Timestamp) {
			return ordered[i].Timestamp.Before(ordered[j].Timestamp)
		}
		if ordered[i].BlockNumber != ordered[j].BlockNumber {
			return ordered[i].BlockNumber < ordered[j].BlockNumber
		}
		return ordered[i].LogIndex < ordered[j].LogIndex
	})

	res := &Result{Settings: settings, GeneratedAt: now}
	equity := settings.InitialCapital
	peak := equity
	monthly := make(map[string]*MonthlyReturn)

	for _, bet := range ordered {
		if bet.Won == nil {
			res.Skipped++
			continue
		}

		stake := copyAmount(settings, equity, models.NativeUnits(bet.Amount))
		if stake <= 0 {
			res.Skipped++
			continue
		}

		pnl := -stake
		if *bet.Won {
			pnl = stake * (payoutRatio(bet.Platform) - 1)
		}
		equity += pnl

		trade := Trade{
			Platform:  bet.Platform,
			MarketID:  bet.MarketID,
			Direction: bet.Direction,
			Timestamp: bet.Timestamp,
			Stake:     stake,
			PnL:       pnl,
			Equity:    equity,
		}
		res.Trades = append(res.Trades, trade)
		res.EquityCurve = append(res.EquityCurve, EquityPoint{Timestamp: bet.Timestamp, Equity: equity})

		month := bet.Timestamp.UTC().Format("2006-01")
		m := monthly[month]
		if m == nil {
			m = &MonthlyReturn{Month: month}
			monthly[month] = m
		}
		m.Trades++
		m.PnL += pnl

		if equity > peak {
			peak = equity
		}
		if settings.StopLossPercent > 0 && peak > 0 {
			if (peak-equity)/peak*100 >= settings.StopLossPercent {
				res.Halted = true
				break
			}
		}
	}

	for _, m := range monthly {
		res.Monthly = append(res.Monthly, *m)
	}
	sort.Slice(res.Monthly, func(i, j int) bool { return res.Monthly[i].Month < res.Monthly[j].Month })

	for i := range res.Monthly {
		m := res.Monthly[i]
		if res.BestMonth == nil || m.PnL > res.BestMonth.PnL {
			best := m
			res.BestMonth = &best
		}
		if res.WorstMonth == nil || m.PnL < res.WorstMonth.PnL {
			worst := m
			res.WorstMonth = &worst
		}
	}

	res.Metrics = CalculateMetrics(settings, res.Trades, roundsPerYear(dominantPlatform(res.Trades)))
	return res
}

// copyAmount sizes one copied bet: the leader's stake, capped by the
// allocation of the sizing base, the per-bet maximum, and what is left in
// the portfolio.
func copyAmount(s Settings, equity, leaderStake float64) float64 {
	base := s.InitialCapital
	if s.Compounding {
		base = equity
	}
	stake := math.Min(leaderStake, base*s.AllocationPercent/100)
	if s.MaxBetSize > 0 {
		stake = math.Min(stake, s.MaxBetSize)
	}
	return math.Min(stake, equity)
}

// payoutRatio is the gross payout multiple on a win for the venue.
func payoutRatio(p models.Platform) float64 {
	if info, ok := models.InfoFor(p); ok && info.PayoutRatio > 0 {
		return info.PayoutRatio
	}
	return defaultPayoutRatio
}

// roundsPerYear is the annualization base for Sharpe and Sortino: binary
// venues run 5-minute rounds around the clock, odds venues are treated as
// daily.
func roundsPerYear(p models.Platform) float64 {
	if models.IsBinaryRoundVenue(p) {
		return 288 * 365
	}
	return 365
}

func dominantPlatform(trades []Trade) models.Platform {
	counts := make(map[models.Platform]int)
	var best models.Platform
	for _, t := range trades {
		counts[t.Platform]++
		if best == "" || counts[t.Platform] > counts[best] {
			best = t.Platform
		}
	}
	return best
}
