package copytrade

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truthplane/engine/internal/bus"
	"github.com/truthplane/engine/internal/config"
	"github.com/truthplane/engine/internal/models"
)

type recordingSubmitter struct {
	submitted []Position
	fail      bool
}

func (r *recordingSubmitter) Submit(_ context.Context, p *Position) error {
	if r.fail {
		return errors.New("venue rejected order")
	}
	r.submitted = append(r.submitted, *p)
	return nil
}

func testConfig() config.CopyTradeConfig {
	return config.CopyTradeConfig{
		Enabled:           true,
		AllocationPercent: 10,
		MaxBetSize:        0.5,
		MinConfidence:     70,
	}
}

func strongSignal(epoch int64) *models.SmartMoneySignal {
	return &models.SmartMoneySignal{
		Platform:   models.PlatformPancakeSwap,
		Epoch:      epoch,
		Consensus:  models.ConsensusBull,
		Confidence: 85,
		Strength:   models.StrengthStrong,
	}
}

func newTestExecutor(portfolio float64) (*Executor, *recordingSubmitter, *bus.Bus) {
	b := bus.New()
	sub := &recordingSubmitter{}
	return New(b, testConfig(), portfolio, sub, zerolog.Nop()), sub, b
}

func TestStrongSignalOpensSubmittedPosition(t *testing.T) {
	e, sub, b := newTestExecutor(10)

	var executed int
	b.Subscribe(bus.EventCopyTradeExecuted, func(bus.Event) { executed++ })

	e.OnSignal(context.Background(), strongSignal(100))

	pos, ok := e.Position(models.PlatformPancakeSwap, 100)
	require.True(t, ok)
	assert.Equal(t, StateSubmitted, pos.State)
	assert.Equal(t, models.DirectionBull, pos.Direction)
	// 10% of 10, clamped to the 0.5 max bet.
	assert.Equal(t, 0.5, pos.Stake)
	assert.Equal(t, 9.5, e.Portfolio())
	assert.Len(t, sub.submitted, 1)
	assert.Equal(t, 1, executed)
}

func TestWeakOrLowConfidenceSignalsIgnored(t *testing.T) {
	e, sub, _ := newTestExecutor(10)

	weak := strongSignal(1)
	weak.Strength = models.StrengthModerate
	e.OnSignal(context.Background(), weak)

	timid := strongSignal(2)
	timid.Confidence = 60
	e.OnSignal(context.Background(), timid)

	neutral := strongSignal(3)
	neutral.Consensus = models.ConsensusNeutral
	e.OnSignal(context.Background(), neutral)

	assert.Empty(t, sub.submitted)
	assert.Equal(t, 10.0, e.Portfolio())
}

func TestRepeatSignalSameRoundOpensOnce(t *testing.T) {
	e, sub, _ := newTestExecutor(10)

	e.OnSignal(context.Background(), strongSignal(100))
	e.OnSignal(context.Background(), strongSignal(100))

	assert.Len(t, sub.submitted, 1)
	assert.Equal(t, 9.5, e.Portfolio())
}

func TestSettleWinPaysOut(t *testing.T) {
	e, _, _ := newTestExecutor(10)
	e.OnSignal(context.Background(), strongSignal(100))

	bull := models.DirectionBull
	e.Settle(models.PlatformPancakeSwap, 100, &bull)

	pos, _ := e.Position(models.PlatformPancakeSwap, 100)
	assert.Equal(t, StateSettled, pos.State)
	// 0.5 stake at 1.9x: +0.45 profit on the 9.5 remainder.
	assert.InDelta(t, 0.45, pos.PnL, 0.0001)
	assert.InDelta(t, 10.45, e.Portfolio(), 0.0001)
}

func TestSettleLossForfeitsStake(t *testing.T) {
	e, _, _ := newTestExecutor(10)
	e.OnSignal(context.Background(), strongSignal(100))

	bear := models.DirectionBear
	e.Settle(models.PlatformPancakeSwap, 100, &bear)

	pos, _ := e.Position(models.PlatformPancakeSwap, 100)
	assert.InDelta(t, -0.5, pos.PnL, 0.0001)
	assert.InDelta(t, 9.5, e.Portfolio(), 0.0001)
}

func TestSettleDrawRefundsStake(t *testing.T) {
	e, _, _ := newTestExecutor(10)
	e.OnSignal(context.Background(), strongSignal(100))

	e.Settle(models.PlatformPancakeSwap, 100, nil)

	pos, _ := e.Position(models.PlatformPancakeSwap, 100)
	assert.Equal(t, 0.0, pos.PnL)
	assert.InDelta(t, 10.0, e.Portfolio(), 0.0001)
}

func TestSubmissionFailureHaltsPosition(t *testing.T) {
	e, sub, b := newTestExecutor(10)
	sub.fail = true

	var executed int
	b.Subscribe(bus.EventCopyTradeExecuted, func(bus.Event) { executed++ })

	e.OnSignal(context.Background(), strongSignal(100))

	pos, ok := e.Position(models.PlatformPancakeSwap, 100)
	require.True(t, ok)
	assert.Equal(t, StateHalted, pos.State)
	assert.Equal(t, 10.0, e.Portfolio(), "failed submission never debits")
	assert.Equal(t, 0, executed)
}

func TestHaltBlocksNewPositions(t *testing.T) {
	e, sub, _ := newTestExecutor(10)
	e.Halt()
	e.OnSignal(context.Background(), strongSignal(100))
	assert.Empty(t, sub.submitted)
}
