package backtest

import (
	"math"
	"time"
)

// riskFreeRatePct is the annual risk-free rate assumed by Sharpe and
// Sortino.
const riskFreeRatePct = 3.0

// Metrics grades one replay.
type Metrics struct {
	// Returns
	TotalReturn    float64 `json:"total_return"`
	TotalReturnPct float64 `json:"total_return_pct"`
	FinalEquity    float64 `json:"final_equity"`
	PeakEquity     float64 `json:"peak_equity"`

	// Risk
	MaxDrawdown    float64   `json:"max_drawdown"`
	MaxDrawdownPct float64   `json:"max_drawdown_pct"`
	MaxDrawdownAt  time.Time `json:"max_drawdown_at"` // trade at the trough
	Volatility     float64   `json:"volatility"`      // annualized, percent
	SharpeRatio    float64   `json:"sharpe_ratio"`
	SortinoRatio   float64   `json:"sortino_ratio"`
	CalmarRatio    float64   `json:"calmar_ratio"`

	// Trades
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`
	AverageWin    float64 `json:"average_win"`
	AverageLoss   float64 `json:"average_loss"`
	LargestWin    float64 `json:"largest_win"`
	LargestLoss   float64 `json:"largest_loss"`
	ProfitFactor  float64 `json:"profit_factor"`
	Expectancy    float64 `json:"expectancy"`
}

// CalculateMetrics folds a settled trade sequence into the full metric set.
// periodsPerYear annualizes the per-trade return series.
func CalculateMetrics(settings Settings, trades []Trade, periodsPerYear float64) Metrics {
	m := Metrics{
		FinalEquity: settings.InitialCapital,
		PeakEquity:  settings.InitialCapital,
	}
	if len(trades) > 0 {
		m.FinalEquity = trades[len(trades)-1].Equity
	}
	m.TotalReturn = m.FinalEquity - settings.InitialCapital
	m.TotalReturnPct = m.TotalReturn / settings.InitialCapital * 100

	var totalWin, totalLoss float64
	peak := settings.InitialCapital
	for _, t := range trades {
		m.TotalTrades++
		if t.PnL > 0 {
			m.WinningTrades++
			totalWin += t.PnL
			if t.PnL > m.LargestWin {
				m.LargestWin = t.PnL
			}
		} else {
			m.LosingTrades++
			totalLoss += t.PnL
			if t.PnL < m.LargestLoss {
				m.LargestLoss = t.PnL
			}
		}

		if t.Equity > peak {
			peak = t.Equity
		}
		if dd := peak - t.Equity; dd > m.MaxDrawdown {
			m.MaxDrawdown = dd
			m.MaxDrawdownAt = t.Timestamp
			if peak > 0 {
				m.MaxDrawdownPct = dd / peak * 100
			}
		}
	}
	m.PeakEquity = peak

	if m.TotalTrades > 0 {
		m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades) * 100
	}
	if m.WinningTrades > 0 {
		m.AverageWin = totalWin / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AverageLoss = totalLoss / float64(m.LosingTrades)
	}
	if totalLoss != 0 {
		m.ProfitFactor = totalWin / math.Abs(totalLoss)
	}
	if m.TotalTrades > 0 {
		winProb := float64(m.WinningTrades) / float64(m.TotalTrades)
		lossProb := float64(m.LosingTrades) / float64(m.TotalTrades)
		m.Expectancy = winProb*m.AverageWin + lossProb*m.AverageLoss
	}

	annualizeRatios(&m, settings.InitialCapital, trades, periodsPerYear)
	return m
}

// annualizeRatios computes volatility, Sharpe, Sortino, and Calmar from the
// per-trade equity return series.
func annualizeRatios(m *Metrics, initial float64, trades []Trade, periodsPerYear float64) {
	if len(trades) < 2 {
		return
	}

	returns := make([]float64, 0, len(trades))
	prev := initial
	for _, t := range trades {
		if prev > 0 {
			returns = append(returns, (t.Equity-prev)/prev)
		}
		prev = t.Equity
	}
	if len(returns) == 0 {
		return
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	downVariance := 0.0
	downCount := 0
	for _, r := range returns {
		d := r - mean
		variance += d * d
		if r < 0 {
			downVariance += r * r
			downCount++
		}
	}
	variance /= float64(len(returns))

	m.Volatility = math.Sqrt(variance) * math.Sqrt(periodsPerYear) * 100

	annualizedReturn := mean * periodsPerYear * 100
	if m.Volatility > 0 {
		m.SharpeRatio = (annualizedReturn - riskFreeRatePct) / m.Volatility
	}
	if downCount > 0 {
		downsideDev := math.Sqrt(downVariance/float64(downCount)) * math.Sqrt(periodsPerYear) * 100
		if downsideDev > 0 {
			m.SortinoRatio = (annualizedReturn - riskFreeRatePct) / downsideDev
		}
	}
	if m.MaxDrawdownPct > 0 {
		m.CalmarRatio = annualizedReturn / m.MaxDrawdownPct
	}
}
