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

const myriadAPI = "https://api-production.polkamarkets.com"

// MyriadAdapter ingests Myriad Markets on Abstract via its REST API (the
// platform runs on the Polkamarkets engine). USDC collateral, 6 decimals.
type MyriadAdapter struct {
	client  *resty.Client
	retrier *Retrier
	poll    time.Duration
	log     zerolog.Logger
}

// NewMyriad builds the adapter.
func NewMyriad(retryCfg RetryConfig, pollInterval time.Duration, log zerolog.Logger) *MyriadAdapter {
	return &MyriadAdapter{
		client:  newRESTClient(myriadAPI, retryCfg.RequestTimeout),
		retrier: NewRetrier("myriad", retryCfg, log),
		poll:    pollInterval,
		log:     log,
	}
}

func (a *MyriadAdapter) Platform() models.Platform { return models.PlatformMyriad }

func (a *MyriadAdapter) Initialize(ctx context.Context) error {
	return a.retrier.Do(ctx, "initialize", func(ctx context.Context) error {
		var out []myriadMarket
		return getJSON(ctx, a.client, "/markets", map[string]string{
			"network_id": "2741",
			"limit":      "1",
		}, &out)
	})
}

func (a *MyriadAdapter) CurrentSequence(ctx context.Context) (uint64, error) {
	if err := a.Initialize(ctx); err != nil {
		return 0, err
	}
	return uint64(time.Now().Unix()), nil
}

type myriadAction struct {
	ID        int64   `json:"id"`
	User      string  `json:"user_address"`
	Action    string  `json:"action"` // buy / sell
	MarketID  int64   `json:"market_id"`
	OutcomeID int64   `json:"outcome_id"`
	Value     float64 `json:"value"` // whole USDC
	Timestamp int64   `json:"timestamp"`
	TxHash    string  `json:"transaction_hash"`
}

type myriadMarket struct {
	ID                int64   `json:"id"`
	Title             string  `json:"title"`
	Category          string  `json:"category"`
	State             string  `json:"state"` // open / closed / resolved
	Volume            float64 `json:"volume"`
	ResolvedOutcomeID *int64  `json:"resolved_outcome_id"`
	ExpiresAt         string  `json:"expires_at"`
	Outcomes          []struct {
		ID    int64   `json:"id"`
		Price float64 `json:"price"`
	} `json:"outcomes"`
}

func (a *MyriadAdapter) GetBetsForUser(ctx context.Context, address string, since time.Time) ([]*models.Bet, error) {
	var actions []myriadAction
	err := a.retrier.Do(ctx, "user actions", func(ctx context.Context) error {
		return getJSON(ctx, a.client, "/actions", map[string]string{
			"user_address": models.NormalizeAddress(address),
			"network_id":   "2741",
		}, &actions)
	})
	if err != nil {
		return nil, err
	}
	return a.normalize(actions, since), nil
}

func (a *MyriadAdapter) GetBetsForMarket(ctx context.Context, marketID string) ([]*models.Bet, error) {
	var actions []myriadAction
	err := a.retrier.Do(ctx, "market actions", func(ctx context.Context) error {
		return getJSON(ctx, a.client, "/actions", map[string]string{
			"market_id":  marketID,
			"network_id": "2741",
		}, &actions)
	})
	if err != nil {
		return nil, err
	}
	return a.normalize(actions, time.Time{}), nil
}

func (a *MyriadAdapter) GetTraderBets(ctx context.Context, address string, limit int) ([]*models.Bet, error) {
	bets, err := a.GetBetsForUser(ctx, address, time.Time{})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(bets) > limit {
		bets = bets[:limit]
	}
	return bets, nil
}

func (a *MyriadAdapter) GetRecentBets(ctx context.Context, window time.Duration, limit int) ([]*models.Bet, error) {
	var actions []myriadAction
	err := a.retrier.Do(ctx, "recent actions", func(ctx context.Context) error {
		return getJSON(ctx, a.client, "/actions", map[string]string{
			"network_id": "2741",
			"limit":      fmt.Sprintf("%d", limit),
		}, &actions)
	})
	if err != nil {
		return nil, err
	}
	return a.normalize(actions, time.Now().Add(-window)), nil
}

func (a *MyriadAdapter) GetMarketOutcome(ctx context.Context, marketID string) (models.Outcome, error) {
	m, err := a.fetchMarket(ctx, marketID)
	if err != nil {
		return models.Outcome{}, err
	}
	if m.State != "resolved" {
		return models.Outcome{Resolved: false}, nil
	}

	out := models.Outcome{Resolved: true}
	if m.ResolvedOutcomeID != nil && len(m.Outcomes) >= 2 {
		d := models.DirectionBear
		if *m.ResolvedOutcomeID == m.Outcomes[0].ID {
			d = models.DirectionBull
		}
		out.Winner = &d
	}
	return out, nil
}

func (a *MyriadAdapter) GetActiveMarkets(ctx context.Context, limit int) ([]*models.Market, error) {
	var markets []myriadMarket
	err := a.retrier.Do(ctx, "markets", func(ctx context.Context) error {
		return getJSON(ctx, a.client, "/markets", map[string]string{
			"network_id": "2741",
			"state":      "open",
			"limit":      fmt.Sprintf("%d", limit),
		}, &markets)
	})
	if err != nil {
		return nil, err
	}

	out := make([]*models.Market, 0, len(markets))
	for _, m := range markets {
		yes := 0.5
		if len(m.Outcomes) > 0 {
			yes = m.Outcomes[0].Price
		}
		out = append(out, &models.Market{
			ID:          fmt.Sprintf("%d", m.ID),
			Platform:    models.PlatformMyriad,
			Title:       m.Title,
			Category:    m.Category,
			YesPriceBps: int64(yes * 10000),
			VolumeUSD:   m.Volume,
			Active:      m.State == "open",
		})
	}
	return out, nil
}

func (a *MyriadAdapter) IsMarketActive(ctx context.Context, marketID string) (bool, error) {
	m, err := a.fetchMarket(ctx, marketID)
	if err != nil {
		return false, err
	}
	return m.State == "open", nil
}

func (a *MyriadAdapter) Backfill(ctx context.Context, fromBlock, toBlock uint64, onBet BetHandler) error {
	page := 1
	for {
		var actions []myriadAction
		err := a.retrier.Do(ctx, "backfill actions", func(ctx context.Context) error {
			return getJSON(ctx, a.client, "/actions", map[string]string{
				"network_id": "2741",
				"page":       fmt.Sprintf("%d", page),
				"limit":      "500",
			}, &actions)
		})
		if err != nil {
			return err
		}
		if len(actions) == 0 {
			return nil
		}

		found := 0
		for i := range actions {
			ts := actions[i].Timestamp
			if ts < int64(fromBlock) || ts >= int64(toBlock) {
				continue
			}
			if bet := a.normalizeOne(&actions[i]); bet != nil {
				onBet(bet)
				found++
			}
		}
		a.log.Info().Str("platform", "myriad").
			Int("page", page).Int("found", found).
			Msg("Backfill chunk processed")
		if len(actions) < 500 {
			return nil
		}
		page++
	}
}

func (a *MyriadAdapter) Subscribe(onBet BetHandler) (Disposer, error) {
	fetch := func(ctx context.Context) ([]*models.Bet, error) {
		return a.GetRecentBets(ctx, 2*a.poll, 200)
	}
	return startPolling(a.Platform(), a.poll, fetch, onBet, a.log), nil
}

func (a *MyriadAdapter) fetchMarket(ctx context.Context, marketID string) (*myriadMarket, error) {
	var m myriadMarket
	err := a.retrier.Do(ctx, "market", func(ctx context.Context) error {
		return getJSON(ctx, a.client, "/markets/"+marketID, map[string]string{
			"network_id": "2741",
		}, &m)
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (a *MyriadAdapter) normalize(actions []myriadAction, since time.Time) []*models.Bet {
	var bets []*models.Bet
	for i := range actions {
		bet := a.normalizeOne(&actions[i])
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

// normalizeOne converts one buy action; sells are exits, not conviction.
// Outcome 0 is YES/bull by venue convention.
func (a *MyriadAdapter) normalizeOne(act *myriadAction) *models.Bet {
	if act.Action != "buy" || act.Value <= 0 {
		return nil
	}
	direction := models.DirectionBear
	if act.OutcomeID == 0 {
		direction = models.DirectionBull
	}
	return &models.Bet{
		ID:        fmt.Sprintf("%d", act.ID),
		Trader:    models.NormalizeAddress(act.User),
		Platform:  models.PlatformMyriad,
		MarketID:  fmt.Sprintf("%d", act.MarketID),
		Direction: direction,
		Amount:    models.ToCanonical(decimal.NewFromFloat(act.Value), 0),
		Timestamp: time.Unix(act.Timestamp, 0),
		TxHash:    act.TxHash,
	}
}
