package adapters

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/truthplane/engine/internal/models"
)

const manifoldAPI = "https://api.manifold.markets/v0"

// ManifoldAdapter ingests the play-money forecasting site. Mana amounts are
// whole units; user ids substitute for wallet addresses.
type ManifoldAdapter struct {
	client  *resty.Client
	retrier *Retrier
	poll    time.Duration
	log     zerolog.Logger
}

// NewManifold builds the adapter.
func NewManifold(retryCfg RetryConfig, pollInterval time.Duration, log zerolog.Logger) *ManifoldAdapter {
	return &ManifoldAdapter{
		client:  newRESTClient(manifoldAPI, retryCfg.RequestTimeout),
		retrier: NewRetrier("manifold", retryCfg, log),
		poll:    pollInterval,
		log:     log,
	}
}

func (a *ManifoldAdapter) Platform() models.Platform { return models.PlatformManifold }

// Initialize probes the bets endpoint.
func (a *ManifoldAdapter) Initialize(ctx context.Context) error {
	return a.retrier.Do(ctx, "initialize", func(ctx context.Context) error {
		var out []manifoldBet
		return getJSON(ctx, a.client, "/bets", map[string]string{"limit": "1"}, &out)
	})
}

// CurrentSequence returns the server time.
func (a *ManifoldAdapter) CurrentSequence(ctx context.Context) (uint64, error) {
	if err := a.Initialize(ctx); err != nil {
		return 0, err
	}
	return uint64(time.Now().Unix()), nil
}

type manifoldBet struct {
	ID           string  `json:"id"`
	UserID       string  `json:"userId"`
	ContractID   string  `json:"contractId"`
	Outcome      string  `json:"outcome"`     // YES / NO
	Amount       float64 `json:"amount"`      // mana
	CreatedTime  int64   `json:"createdTime"` // epoch ms
	IsRedemption bool    `json:"isRedemption"`
}

type manifoldMarket struct {
	ID             string  `json:"id"`
	Question       string  `json:"question"`
	OutcomeType    string  `json:"outcomeType"` // BINARY etc.
	Probability    float64 `json:"probability"`
	Volume         float64 `json:"volume"`
	IsResolved     bool    `json:"isResolved"`
	Resolution     string  `json:"resolution"` // YES / NO / MKT / CANCEL
	CloseTime      int64   `json:"closeTime"`
	ResolutionTime int64   `json:"resolutionTime"`
}

// GetBetsForUser returns a user's bets since the cutoff.
func (a *ManifoldAdapter) GetBetsForUser(ctx context.Context, address string, since time.Time) ([]*models.Bet, error) {
	var raw []manifoldBet
	err := a.retrier.Do(ctx, "user bets", func(ctx context.Context) error {
		return getJSON(ctx, a.client, "/bets", map[string]string{
			"userId": address,
			"limit":  "1000",
		}, &raw)
	})
	if err != nil {
		return nil, err
	}
	return a.normalizeBets(raw, since), nil
}

// GetBetsForMarket returns every bet on one contract.
func (a *ManifoldAdapter) GetBetsForMarket(ctx context.Context, marketID string) ([]*models.Bet, error) {
	var raw []manifoldBet
	err := a.retrier.Do(ctx, "market bets", func(ctx context.Context) error {
		return getJSON(ctx, a.client, "/bets", map[string]string{
			"contractId": marketID,
			"limit":      "1000",
		}, &raw)
	})
	if err != nil {
		return nil, err
	}
	return a.normalizeBets(raw, time.Time{}), nil
}

// GetTraderBets returns a user's latest bets.
func (a *ManifoldAdapter) GetTraderBets(ctx context.Context, address string, limit int) ([]*models.Bet, error) {
	bets, err := a.GetBetsForUser(ctx, address, time.Time{})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(bets) > limit {
		bets = bets[:limit]
	}
	return bets, nil
}

// GetRecentBets returns site-wide bets inside the window.
func (a *ManifoldAdapter) GetRecentBets(ctx context.Context, window time.Duration, limit int) ([]*models.Bet, error) {
	var raw []manifoldBet
	err := a.retrier.Do(ctx, "recent bets", func(ctx context.Context) error {
		return getJSON(ctx, a.client, "/bets", map[string]string{
			"limit": fmt.Sprintf("%d", limit),
		}, &raw)
	})
	if err != nil {
		return nil, err
	}
	return a.normalizeBets(raw, time.Now().Add(-window)), nil
}

// GetMarketOutcome maps resolutions; MKT and CANCEL leave winner nil.
func (a *ManifoldAdapter) GetMarketOutcome(ctx context.Context, marketID string) (models.Outcome, error) {
	m, err := a.fetchMarket(ctx, marketID)
	if err != nil {
		return models.Outcome{}, err
	}
	if !m.IsResolved {
		return models.Outcome{Resolved: false}, nil
	}

	out := models.Outcome{Resolved: true}
	switch m.Resolution {
	case "YES":
		d := models.DirectionBull
		out.Winner = &d
	case "NO":
		d := models.DirectionBear
		out.Winner = &d
	}
	if m.ResolutionTime > 0 {
		t := time.UnixMilli(m.ResolutionTime)
		out.ResolvedAt = &t
	}
	return out, nil
}

// GetActiveMarkets returns open binary markets.
func (a *ManifoldAdapter) GetActiveMarkets(ctx context.Context, limit int) ([]*models.Market, error) {
	var markets []manifoldMarket
	err := a.retrier.Do(ctx, "markets", func(ctx context.Context) error {
		return getJSON(ctx, a.client, "/markets", map[string]string{
			"limit": fmt.Sprintf("%d", limit),
		}, &markets)
	})
	if err != nil {
		return nil, err
	}

	var out []*models.Market
	for _, m := range markets {
		if m.OutcomeType != "BINARY" || m.IsResolved {
			continue
		}
		out = append(out, &models.Market{
			ID:          m.ID,
			Platform:    models.PlatformManifold,
			Title:       m.Question,
			Category:    "forecasting",
			YesPriceBps: int64(m.Probability * 10000),
			VolumeUSD:   m.Volume, // mana-denominated; comparable within the venue
			Active:      true,
		})
	}
	return out, nil
}

// IsMarketActive reports whether the contract is open and unresolved.
func (a *ManifoldAdapter) IsMarketActive(ctx context.Context, marketID string) (bool, error) {
	m, err := a.fetchMarket(ctx, marketID)
	if err != nil {
		return false, err
	}
	return !m.IsResolved && (m.CloseTime == 0 || time.UnixMilli(m.CloseTime).After(time.Now())), nil
}

// Backfill pages historical bets by id cursor; from/to are unix seconds.
func (a *ManifoldAdapter) Backfill(ctx context.Context, fromBlock, toBlock uint64, onBet BetHandler) error {
	before := ""
	for {
		var raw []manifoldBet
		err := a.retrier.Do(ctx, "backfill bets", func(ctx context.Context) error {
			q := map[string]string{"limit": "1000"}
			if before != "" {
				q["before"] = before
			}
			return getJSON(ctx, a.client, "/bets", q, &raw)
		})
		if err != nil {
			return err
		}
		if len(raw) == 0 {
			return nil
		}

		found := 0
		for i := range raw {
			ts := raw[i].CreatedTime / 1000
			if ts < int64(fromBlock) {
				return nil // pages run newest to oldest
			}
			if ts > int64(toBlock) {
				continue
			}
			bet := a.normalizeBet(&raw[i])
			if bet == nil {
				continue
			}
			onBet(bet)
			found++
		}
		before = raw[len(raw)-1].ID
		a.log.Info().Str("platform", "manifold").
			Str("cursor", before).Int("found", found).
			Msg("Backfill chunk processed")
	}
}

// Subscribe polls recent bets.
func (a *ManifoldAdapter) Subscribe(onBet BetHandler) (Disposer, error) {
	fetch := func(ctx context.Context) ([]*models.Bet, error) {
		return a.GetRecentBets(ctx, 2*a.poll, 500)
	}
	return startPolling(a.Platform(), a.poll, fetch, onBet, a.log), nil
}

func (a *ManifoldAdapter) fetchMarket(ctx context.Context, marketID string) (*manifoldMarket, error) {
	var m manifoldMarket
	err := a.retrier.Do(ctx, "market", func(ctx context.Context) error {
		return getJSON(ctx, a.client, "/market/"+marketID, nil, &m)
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (a *ManifoldAdapter) normalizeBets(raw []manifoldBet, since time.Time) []*models.Bet {
	var bets []*models.Bet
	for i := range raw {
		bet := a.normalizeBet(&raw[i])
		if bet == nil {
			continue
		}
		if !since.IsZero() && bet.Timestamp.Before(since) {
			continue
		}
		bets = append(bets, bet)
	}
	return bets
}

// normalizeBet converts one mana bet. Redemptions and sells (negative
// amounts) are not directional conviction and are dropped.
func (a *ManifoldAdapter) normalizeBet(b *manifoldBet) *models.Bet {
	if b.IsRedemption || b.Amount <= 0 {
		return nil
	}
	direction := models.DirectionBear
	if b.Outcome == "YES" {
		direction = models.DirectionBull
	}
	return &models.Bet{
		ID:        b.ID,
		Trader:    models.NormalizeAddress(b.UserID),
		Platform:  models.PlatformManifold,
		MarketID:  b.ContractID,
		Direction: direction,
		Amount:    models.ToCanonical(decimal.NewFromFloat(b.Amount), 0),
		Timestamp: time.UnixMilli(b.CreatedTime),
	}
}
