package backtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func tradeSeq(pnls ...float64) []Trade {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	equity := 1.0
	out := make([]Trade, 0, len(pnls))
	for i, pnl := range pnls {
		equity += pnl
		out = append(out, Trade{
			Timestamp: base.Add(time.Duration(i) * 5 * time.Minute),
			PnL:       pnl,
			Equity:    equity,
		})
	}
	return out
}

func TestCalculateMetricsDrawdown(t *testing.T) {
	settings := Settings{InitialCapital: 1}
	// Peak at 1.3, trough at 1.04: drawdown 0.26 = 20% of peak.
	m := CalculateMetrics(settings, tradeSeq(0.1, 0.2, -0.16, -0.1, 0.05), 288*365)

	assert.InDelta(t, 0.26, m.MaxDrawdown, 0.0001)
	assert.InDelta(t, 20.0, m.MaxDrawdownPct, 0.0001)
	// The trough is the fourth trade, 15 minutes in.
	assert.Equal(t, time.Date(2026, 3, 1, 0, 15, 0, 0, time.UTC), m.MaxDrawdownAt)
	assert.InDelta(t, 1.3, m.PeakEquity, 0.0001)
	assert.InDelta(t, 1.09, m.FinalEquity, 0.0001)
}

func TestCalculateMetricsTradeStats(t *testing.T) {
	settings := Settings{InitialCapital: 1}
	m := CalculateMetrics(settings, tradeSeq(0.2, -0.1, 0.1, -0.1), 365)

	assert.Equal(t, 4, m.TotalTrades)
	assert.Equal(t, 2, m.WinningTrades)
	assert.Equal(t, 50.0, m.WinRate)
	assert.InDelta(t, 0.15, m.AverageWin, 0.0001)
	assert.InDelta(t, -0.1, m.AverageLoss, 0.0001)
	assert.InDelta(t, 0.2, m.LargestWin, 0.0001)
	assert.InDelta(t, -0.1, m.LargestLoss, 0.0001)
	assert.InDelta(t, 1.5, m.ProfitFactor, 0.0001)
	// Expectancy: 0.5*0.15 + 0.5*(-0.1) = 0.025 per trade.
	assert.InDelta(t, 0.025, m.Expectancy, 0.0001)
}

func TestCalculateMetricsRatiosSigns(t *testing.T) {
	settings := Settings{InitialCapital: 1}
	up := CalculateMetrics(settings, tradeSeq(0.1, -0.05, 0.1, -0.05, 0.1, -0.05), 288*365)
	down := CalculateMetrics(settings, tradeSeq(-0.1, 0.05, -0.1, 0.05, -0.1, 0.05), 288*365)

	assert.Greater(t, up.SharpeRatio, 0.0)
	assert.Greater(t, up.SortinoRatio, 0.0)
	assert.Less(t, down.SharpeRatio, 0.0)
	assert.Greater(t, up.Volatility, 0.0)
}

func TestCalculateMetricsEmpty(t *testing.T) {
	settings := Settings{InitialCapital: 1}
	m := CalculateMetrics(settings, nil, 365)
	assert.Equal(t, 0, m.TotalTrades)
	assert.Equal(t, 1.0, m.FinalEquity)
	assert.Equal(t, 0.0, m.TotalReturnPct)
}
