// Package scoring computes trader reputation. Every function here is pure:
// identical inputs produce byte-identical outputs, so scores can be
// recomputed from UserStats at any time and compared for equality.
package scoring

import (
	"math"
	"sort"
	"time"

	"github.com/truthplane/engine/internal/models"
)

const (
	// minBetsForFullScore damps small samples in the Wilson-adjusted
	// ranking score for binary-round venues.
	minBetsForFullScore = 20

	// recencyWindow is how recently a trader must have bet to collect the
	// recency bonus on the unified score.
	recencyWindow = 90 * 24 * time.Hour

	// recencyBonus is added to the unified score for recently active
	// traders.
	recencyBonus = 100

	// wilsonZ is the z value for the 95% Wilson lower bound.
	wilsonZ = 1.96
)

// PlatformScore computes the per-platform score from stats:
//
//	wins×100 + max(0, winRate−55)×10 + min(500, floor(volumeNative×10))
//	+ consistency(totalBets), floored.
//
// Missing or empty stats score 0, never error.
func PlatformScore(stats *models.UserStats) float64 {
	if stats == nil || stats.TotalBets == 0 {
		return 0
	}

	winPoints := float64(stats.Wins) * 100

	winRateBonus := 0.0
	if stats.WinRate > 55 {
		winRateBonus = (stats.WinRate - 55) * 10
	}

	volumeBonus := math.Floor(models.NativeUnits(stats.Volume) * 10)
	if volumeBonus > 500 {
		volumeBonus = 500
	}
	if volumeBonus < 0 {
		volumeBonus = 0
	}

	consistency := 0.0
	switch {
	case stats.TotalBets >= 100:
		consistency = 300
	case stats.TotalBets >= 50:
		consistency = 200
	case stats.TotalBets >= 20:
		consistency = 100
	}

	return math.Floor(winPoints + winRateBonus + volumeBonus + consistency)
}

// WinRate returns the resolved-only win rate percentage:
// wins / max(wins+losses, 1) × 100.
func WinRate(wins, losses int) float64 {
	resolved := wins + losses
	if resolved < 1 {
		resolved = 1
	}
	return float64(wins) / float64(resolved) * 100
}

// wilsonLowerBound is the lower bound of the Wilson score interval for a
// binomial proportion at confidence z.
func wilsonLowerBound(wins, n int, z float64) float64 {
	if n == 0 {
		return 0
	}
	p := float64(wins) / float64(n)
	nf := float64(n)
	z2 := z * z
	denom := 1 + z2/nf
	center := p + z2/(2*nf)
	margin := z * math.Sqrt(p*(1-p)/nf+z2/(4*nf*nf))
	lb := (center - margin) / denom
	if lb < 0 {
		return 0
	}
	return lb
}

// BinaryRankScore is the sample-damped ranking score for binary-round
// venues. Skill is measured against the 50% random baseline through the
// Wilson lower bound, and the raw platform score is multiplied by
// min(1, totalBets/minBetsForFullScore). Used to rank tracked traders;
// the headline breakdown keeps PlatformScore.
func BinaryRankScore(stats *models.UserStats) float64 {
	if stats == nil || stats.TotalBets == 0 {
		return 0
	}
	raw := PlatformScore(stats)

	resolved := stats.Resolved()
	lb := wilsonLowerBound(stats.Wins, resolved, wilsonZ)
	skill := (lb - 0.5) * 2 // -1..1 against the coin-flip baseline
	if skill < 0 {
		skill = 0
	}

	damp := float64(stats.TotalBets) / minBetsForFullScore
	if damp > 1 {
		damp = 1
	}

	return math.Floor(raw * skill * damp)
}

// OddsRankScore is the ranking score for odds-market venues, weighted by
// realized ROI and trade count, with a recency multiplier when the last
// trade falls inside the recency window.
func OddsRankScore(stats *models.UserStats, roiPercent float64, now time.Time) float64 {
	if stats == nil || stats.TotalBets == 0 {
		return 0
	}
	raw := PlatformScore(stats)

	roiMult := 1 + roiPercent/100
	if roiMult < 0 {
		roiMult = 0
	}

	countMult := math.Min(1, float64(stats.TotalBets)/minBetsForFullScore)

	recency := 1.0
	if !stats.LastBetAt.IsZero() && now.Sub(stats.LastBetAt) <= recencyWindow {
		recency = 1.2
	}

	return math.Floor(raw * roiMult * countMult * recency)
}

// RankScore picks the category-appropriate ranking score for a platform.
func RankScore(stats *models.UserStats, now time.Time) float64 {
	if stats == nil {
		return 0
	}
	if models.IsBinaryRoundVenue(stats.Platform) {
		return BinaryRankScore(stats)
	}
	return OddsRankScore(stats, 0, now)
}

// Compute derives the unified TruthScore from a trader's per-platform
// stats. Platforms without stats contribute 0. Deterministic: the breakdown
// is ordered by the closed platform set.
func Compute(address string, statsByPlatform map[models.Platform]*models.UserStats, now time.Time) models.TruthScore {
	total := 0.0
	breakdown := make([]models.PlatformScore, 0, len(statsByPlatform))
	lastActive := time.Time{}

	for _, p := range models.AllPlatforms() {
		stats, ok := statsByPlatform[p]
		if !ok || stats == nil || stats.TotalBets == 0 {
			continue
		}
		info, _ := models.InfoFor(p)
		weight := info.Weight
		if weight == 0 {
			weight = 1.0
		}
		score := PlatformScore(stats)
		breakdown = append(breakdown, models.PlatformScore{
			Platform: p,
			Score:    score,
			Weight:   weight,
		})
		total += score * weight
		if stats.LastBetAt.After(lastActive) {
			lastActive = stats.LastBetAt
		}
	}

	if !lastActive.IsZero() && now.Sub(lastActive) <= recencyWindow {
		total += recencyBonus
	}

	return models.TruthScore{
		Address:     models.NormalizeAddress(address),
		TotalScore:  total,
		Breakdown:   breakdown,
		Tier:        models.TierForScore(total),
		LastUpdated: now,
	}
}

// SortLeaderboard orders rows by total score descending, ties broken by
// active platform count descending, then address for stability.
func SortLeaderboard(rows []models.UnifiedTrader) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].TotalScore != rows[j].TotalScore {
			return rows[i].TotalScore > rows[j].TotalScore
		}
		if rows[i].ActivePlatforms != rows[j].ActivePlatforms {
			return rows[i].ActivePlatforms > rows[j].ActivePlatforms
		}
		return rows[i].Address < rows[j].Address
	})
}
