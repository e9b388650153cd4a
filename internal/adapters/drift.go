package adapters

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/truthplane/engine/internal/models"
)

const driftAPI = "https://data.api.drift.trade"

// DriftAdapter ingests Drift's BET prediction markets on Solana through the
// public data API. Stakes are USDC at 6 decimals; traders are Solana
// pubkeys, normalized to lowercase like every other identity.
type DriftAdapter struct {
	client  *resty.Client
	retrier *Retrier
	poll    time.Duration
	log     zerolog.Logger
}

// NewDrift builds the adapter.
func NewDrift(retryCfg RetryConfig, pollInterval time.Duration, log zerolog.Logger) *DriftAdapter {
	return &DriftAdapter{
		client:  newRESTClient(driftAPI, retryCfg.RequestTimeout),
		retrier: NewRetrier("drift", retryCfg, log),
		poll:    pollInterval,
		log:     log,
	}
}

func (a *DriftAdapter) Platform() models.Platform { return models.PlatformDrift }

func (a *DriftAdapter) Initialize(ctx context.Context) error {
	return a.retrier.Do(ctx, "initialize", func(ctx context.Context) error {
		var out driftMarketsResponse
		return getJSON(ctx, a.client, "/predictionMarkets", nil, &out)
	})
}

func (a *DriftAdapter) CurrentSequence(ctx context.Context) (uint64, error) {
	if err := a.Initialize(ctx); err != nil {
		return 0, err
	}
	return uint64(time.Now().Unix()), nil
}

type driftTrade struct {
	ID         string  `json:"txSig"`
	User       string  `json:"user"`
	MarketName string  `json:"marketName"`       // e.g. TRUMP-WIN-2024-BET
	Direction  string  `json:"direction"`        // long / short
	QuoteSize  string  `json:"quoteAssetAmount"` // USDC 6-dec integer
	Timestamp  int64   `json:"ts"`
	FillPrice  float64 `json:"fillPrice"`
}

type driftMarket struct {
	Name       string  `json:"marketName"`
	Symbol     string  `json:"symbol"`
	Price      float64 `json:"oraclePrice"` // 0..1
	Volume     float64 `json:"quoteVolume"`
	Status     string  `json:"status"`     // active / resolved
	Resolution float64 `json:"resolution"` // 0 or 1 once settled
	ResolvedTs int64   `json:"resolvedTs"`
}

type driftMarketsResponse struct {
	Markets []driftMarket `json:"markets"`
}

func (a *DriftAdapter) GetBetsForUser(ctx context.Context, address string, since time.Time) ([]*models.Bet, error) {
	var resp struct {
		Trades []driftTrade `json:"trades"`
	}
	err := a.retrier.Do(ctx, "user trades", func(ctx context.Context) error {
		return getJSON(ctx, a.client, "/user/"+strings.TrimSpace(address)+"/trades", map[string]string{
			"marketType": "prediction",
			"limit":      "500",
		}, &resp)
	})
	if err != nil {
		return nil, err
	}
	return a.normalize(resp.Trades, since), nil
}

func (a *DriftAdapter) GetBetsForMarket(ctx context.Context, marketID string) ([]*models.Bet, error) {
	var resp struct {
		Trades []driftTrade `json:"trades"`
	}
	err := a.retrier.Do(ctx, "market trades", func(ctx context.Context) error {
		return getJSON(ctx, a.client, "/market/"+marketID+"/trades", map[string]string{
			"limit": "1000",
		}, &resp)
	})
	if err != nil {
		return nil, err
	}
	return a.normalize(resp.Trades, time.Time{}), nil
}

func (a *DriftAdapter) GetTraderBets(ctx context.Context, address string, limit int) ([]*models.Bet, error) {
	bets, err := a.GetBetsForUser(ctx, address, time.Time{})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(bets) > limit {
		bets = bets[:limit]
	}
	return bets, nil
}

func (a *DriftAdapter) GetRecentBets(ctx context.Context, window time.Duration, limit int) ([]*models.Bet, error) {
	var resp struct {
		Trades []driftTrade `json:"trades"`
	}
	err := a.retrier.Do(ctx, "recent trades", func(ctx context.Context) error {
		return getJSON(ctx, a.client, "/trades", map[string]string{
			"marketType": "prediction",
			"limit":      fmt.Sprintf("%d", limit),
		}, &resp)
	})
	if err != nil {
		return nil, err
	}
	return a.normalize(resp.Trades, time.Now().Add(-window)), nil
}

// GetMarketOutcome maps a settled market's resolution price: 1 is a YES
// win (bull), 0 a NO win (bear).
func (a *DriftAdapter) GetMarketOutcome(ctx context.Context, marketID string) (models.Outcome, error) {
	m, err := a.fetchMarket(ctx, marketID)
	if err != nil {
		return models.Outcome{}, err
	}
	if m.Status != "resolved" {
		return models.Outcome{Resolved: false}, nil
	}

	out := models.Outcome{Resolved: true}
	switch m.Resolution {
	case 1:
		d := models.DirectionBull
		out.Winner = &d
	case 0:
		d := models.DirectionBear
		out.Winner = &d
	}
	if m.ResolvedTs > 0 {
		t := time.Unix(m.ResolvedTs, 0)
		out.ResolvedAt = &t
	}
	return out, nil
}

func (a *DriftAdapter) GetActiveMarkets(ctx context.Context, limit int) ([]*models.Market, error) {
	var resp driftMarketsResponse
	err := a.retrier.Do(ctx, "markets", func(ctx context.Context) error {
		return getJSON(ctx, a.client, "/predictionMarkets", nil, &resp)
	})
	if err != nil {
		return nil, err
	}

	var out []*models.Market
	for _, m := range resp.Markets {
		if m.Status != "active" {
			continue
		}
		out = append(out, &models.Market{
			ID:          m.Name,
			Platform:    models.PlatformDrift,
			Title:       m.Symbol,
			Category:    "events",
			YesPriceBps: int64(m.Price * 10000),
			VolumeUSD:   m.Volume,
			Active:      true,
		})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (a *DriftAdapter) IsMarketActive(ctx context.Context, marketID string) (bool, error) {
	m, err := a.fetchMarket(ctx, marketID)
	if err != nil {
		return false, err
	}
	return m.Status == "active", nil
}

// Backfill pages trades between unix-second cursors.
func (a *DriftAdapter) Backfill(ctx context.Context, fromBlock, toBlock uint64, onBet BetHandler) error {
	cursor := int64(fromBlock)
	for cursor < int64(toBlock) {
		var resp struct {
			Trades []driftTrade `json:"trades"`
		}
		err := a.retrier.Do(ctx, "backfill trades", func(ctx context.Context) error {
			return getJSON(ctx, a.client, "/trades", map[string]string{
				"marketType": "prediction",
				"fromTs":     fmt.Sprintf("%d", cursor),
				"toTs":       fmt.Sprintf("%d", toBlock),
				"limit":      "500",
			}, &resp)
		})
		if err != nil {
			return err
		}
		if len(resp.Trades) == 0 {
			return nil
		}

		found := 0
		for i := range resp.Trades {
			if bet := a.normalizeOne(&resp.Trades[i]); bet != nil {
				onBet(bet)
				found++
			}
			if resp.Trades[i].Timestamp > cursor {
				cursor = resp.Trades[i].Timestamp
			}
		}
		a.log.Info().Str("platform", "drift").
			Int64("cursor", cursor).Int("found", found).
			Msg("Backfill chunk processed")
		if len(resp.Trades) < 500 {
			return nil
		}
	}
	return nil
}

func (a *DriftAdapter) Subscribe(onBet BetHandler) (Disposer, error) {
	fetch := func(ctx context.Context) ([]*models.Bet, error) {
		return a.GetRecentBets(ctx, 2*a.poll, 200)
	}
	return startPolling(a.Platform(), a.poll, fetch, onBet, a.log), nil
}

func (a *DriftAdapter) fetchMarket(ctx context.Context, name string) (*driftMarket, error) {
	var resp driftMarketsResponse
	err := a.retrier.Do(ctx, "market", func(ctx context.Context) error {
		return getJSON(ctx, a.client, "/predictionMarkets", nil, &resp)
	})
	if err != nil {
		return nil, err
	}
	for i := range resp.Markets {
		if resp.Markets[i].Name == name {
			return &resp.Markets[i], nil
		}
	}
	return nil, fmt.Errorf("market %s not found", name)
}

func (a *DriftAdapter) normalize(trades []driftTrade, since time.Time) []*models.Bet {
	var bets []*models.Bet
	for i := range trades {
		bet := a.normalizeOne(&trades[i])
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

// normalizeOne converts one fill: long is a YES position (bull), short NO
// (bear).
func (a *DriftAdapter) normalizeOne(t *driftTrade) *models.Bet {
	quote, err := decimal.NewFromString(t.QuoteSize)
	if err != nil {
		return nil
	}
	var direction models.Direction
	switch t.Direction {
	case "long":
		direction = models.DirectionBull
	case "short":
		direction = models.DirectionBear
	default:
		return nil
	}
	return &models.Bet{
		ID:        t.ID,
		Trader:    models.NormalizeAddress(t.User),
		Platform:  models.PlatformDrift,
		MarketID:  t.MarketName,
		Direction: direction,
		Amount:    models.ToCanonical(quote, usdcDecimals),
		Timestamp: time.Unix(t.Timestamp, 0),
		TxHash:    t.ID,
	}
}
