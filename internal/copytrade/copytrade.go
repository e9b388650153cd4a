// Package copytrade turns strong smart-money signals into sized, tracked
// positions. Submission to a venue is delegated to a Submitter; everything
// up to and after that call is an in-process state machine, so the executor
// is fully testable without touching a chain.
package copytrade

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/truthplane/engine/internal/analyzers/smartmoney"
	"github.com/truthplane/engine/internal/bus"
	"github.com/truthplane/engine/internal/config"
	"github.com/truthplane/engine/internal/models"
)

// State is a position's lifecycle stage.
type State string

const (
	StatePending   State = "pending"   // signal accepted, not yet sized
	StateSized     State = "sized"     // stake computed
	StateSubmitted State = "submitted" // handed to the submitter
	StateSettled   State = "settled"   // round resolved
	StateHalted    State = "halted"    // executor stopped before submission
)

// Position is one copied round.
type Position struct {
	Platform  models.Platform  `json:"platform"`
	Epoch     int64            `json:"epoch"`
	Direction models.Direction `json:"direction"`
	Stake     float64          `json:"stake"` // native units
	State     State            `json:"state"`
	PnL       float64          `json:"pnl"`
	OpenedAt  time.Time        `json:"opened_at"`
	SettledAt *time.Time       `json:"settled_at,omitempty"`
}

// Submitter places a sized position at the venue. Implementations must be
// idempotent per (platform, epoch).
type Submitter interface {
	Submit(ctx context.Context, p *Position) error
}

// dryRunSubmitter logs instead of trading.
type dryRunSubmitter struct{ log zerolog.Logger }

func (s dryRunSubmitter) Submit(_ context.Context, p *Position) error {
	s.log.Info().Str("platform", string(p.Platform)).Int64("epoch", p.Epoch).
		Str("direction", string(p.Direction)).Float64("stake", p.Stake).
		Msg("Dry-run copy trade")
	return nil
}

type positionKey struct {
	Platform models.Platform
	Epoch    int64
}

// Executor drives positions through the state machine off the signal feed.
type Executor struct {
	bus       *bus.Bus
	cfg       config.CopyTradeConfig
	submitter Submitter
	log       zerolog.Logger

	mu        sync.Mutex
	portfolio float64
	halted    bool
	positions map[positionKey]*Position

	sub *bus.Subscription
}

// New builds the executor with an initial portfolio in native units. A nil
// submitter runs dry.
func New(b *bus.Bus, cfg config.CopyTradeConfig, portfolio float64, submitter Submitter, log zerolog.Logger) *Executor {
	l := log.With().Str("component", "copy_trade").Logger()
	if submitter == nil {
		submitter = dryRunSubmitter{log: l}
	}
	return &Executor{
		bus:       b,
		cfg:       cfg,
		submitter: submitter,
		log:       l,
		portfolio: portfolio,
		positions: make(map[positionKey]*Position),
	}
}

// Start subscribes to signals and round resolutions until ctx is cancelled.
func (e *Executor) Start(ctx context.Context) {
	e.sub = e.bus.Subscribe(bus.EventSignalGenerated, func(ev bus.Event) {
		if s, ok := ev.Payload.(*models.SmartMoneySignal); ok {
			e.OnSignal(ctx, s)
		}
	})
	ended := e.bus.Subscribe(bus.EventRoundEnded, func(ev bus.Event) {
		e.onRoundEnded(ev)
	})
	defer e.sub.Unsubscribe()
	defer ended.Unsubscribe()

	<-ctx.Done()
}

// Halt stops the executor from opening new positions. Open positions still
// settle.
func (e *Executor) Halt() {
	e.mu.Lock()
	e.halted = true
	e.mu.Unlock()
}

// Portfolio returns the current native-unit balance.
func (e *Executor) Portfolio() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.portfolio
}

// Position returns the tracked position for a round, if any.
func (e *Executor) Position(platform models.Platform, epoch int64) (Position, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.positions[positionKey{Platform: platform, Epoch: epoch}]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// OnSignal evaluates one signal and, when it qualifies, walks a new
// position through pending, sized, and submitted. A round that already has
// a position is left alone, whatever its state.
func (e *Executor) OnSignal(ctx context.Context, s *models.SmartMoneySignal) {
	if s.Strength != models.StrengthStrong || s.Consensus == models.ConsensusNeutral {
		return
	}
	if s.Confidence < e.cfg.MinConfidence {
		return
	}

	direction := models.DirectionBull
	if s.Consensus == models.ConsensusBear {
		direction = models.DirectionBear
	}
	key := positionKey{Platform: s.Platform, Epoch: s.Epoch}

	e.mu.Lock()
	if _, exists := e.positions[key]; exists || e.halted {
		e.mu.Unlock()
		return
	}
	pos := &Position{
		Platform:  s.Platform,
		Epoch:     s.Epoch,
		Direction: direction,
		State:     StatePending,
		OpenedAt:  time.Now(),
	}
	e.positions[key] = pos

	stake := e.stakeLocked()
	if stake <= 0 {
		pos.State = StateHalted
		e.mu.Unlock()
		return
	}
	pos.Stake = stake
	pos.State = StateSized
	e.mu.Unlock()

	if err := e.submitter.Submit(ctx, pos); err != nil {
		e.mu.Lock()
		pos.State = StateHalted
		e.mu.Unlock()
		e.log.Error().Err(err).Str("platform", string(s.Platform)).
			Int64("epoch", s.Epoch).Msg("Copy trade submission failed")
		return
	}

	e.mu.Lock()
	pos.State = StateSubmitted
	e.portfolio -= stake
	e.mu.Unlock()

	e.bus.Emit(bus.EventCopyTradeExecuted, pos)
}

// stakeLocked sizes the next position from the current portfolio. Caller
// holds the mutex.
func (e *Executor) stakeLocked() float64 {
	stake := e.portfolio * e.cfg.AllocationPercent / 100
	if e.cfg.MaxBetSize > 0 {
		stake = math.Min(stake, e.cfg.MaxBetSize)
	}
	return math.Min(stake, e.portfolio)
}

func (e *Executor) onRoundEnded(ev bus.Event) {
	payload, ok := ev.Payload.(map[string]interface{})
	if !ok {
		return
	}
	platform, _ := payload["platform"].(models.Platform)
	marketID, _ := payload["market_id"].(string)
	winner, _ := payload["winner"].(*models.Direction)
	if platform == "" || marketID == "" {
		return
	}
	e.Settle(platform, smartmoney.EpochFor(marketID), winner)
}

// Settle closes a submitted position against the round outcome. A nil
// winner is a push: the stake comes back untouched.
func (e *Executor) Settle(platform models.Platform, epoch int64, winner *models.Direction) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, ok := e.positions[positionKey{Platform: platform, Epoch: epoch}]
	if !ok || pos.State != StateSubmitted {
		return
	}

	switch {
	case winner == nil:
		pos.PnL = 0
		e.portfolio += pos.Stake
	case *winner == pos.Direction:
		payout := payoutFor(platform)
		pos.PnL = pos.Stake * (payout - 1)
		e.portfolio += pos.Stake * payout
	default:
		pos.PnL = -pos.Stake
	}

	now := time.Now()
	pos.State = StateSettled
	pos.SettledAt = &now

	e.log.Info().Str("platform", string(platform)).Int64("epoch", epoch).
		Str("result", fmt.Sprintf("%+.4f", pos.PnL)).
		Float64("portfolio", e.portfolio).Msg("Copy trade settled")
}

func payoutFor(p models.Platform) float64 {
	if info, ok := models.InfoFor(p); ok && info.PayoutRatio > 0 {
		return info.PayoutRatio
	}
	return 1.9
}
