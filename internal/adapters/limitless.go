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

const limitlessAPI = "https://api.limitless.exchange"

// LimitlessAdapter ingests the Base-chain prediction exchange via its REST
// API. Collateral is USDC at 6 decimals.
type LimitlessAdapter struct {
	client  *resty.Client
	retrier *Retrier
	poll    time.Duration
	log     zerolog.Logger
}

// NewLimitless builds the adapter.
func NewLimitless(retryCfg RetryConfig, pollInterval time.Duration, log zerolog.Logger) *LimitlessAdapter {
	return &LimitlessAdapter{
		client:  newRESTClient(limitlessAPI, retryCfg.RequestTimeout),
		retrier: NewRetrier("limitless", retryCfg, log),
		poll:    pollInterval,
		log:     log,
	}
}

func (a *LimitlessAdapter) Platform() models.Platform { return models.PlatformLimitless }

func (a *LimitlessAdapter) Initialize(ctx context.Context) error {
	return a.retrier.Do(ctx, "initialize", func(ctx context.Context) error {
		var out []limitlessMarket
		return getJSON(ctx, a.client, "/markets/active", map[string]string{"limit": "1"}, &out)
	})
}

func (a *LimitlessAdapter) CurrentSequence(ctx context.Context) (uint64, error) {
	if err := a.Initialize(ctx); err != nil {
		return 0, err
	}
	return uint64(time.Now().Unix()), nil
}

type limitlessTrade struct {
	ID         string `json:"id"`
	Account    string `json:"account"`
	MarketSlug string `json:"marketSlug"`
	Outcome    int    `json:"outcomeIndex"`
	Collateral string `json:"collateralAmount"` // USDC 6-dec integer string
	CreatedAt  int64  `json:"createdAt"`        // unix seconds
	TxHash     string `json:"transactionHash"`
}

type limitlessMarket struct {
	Slug       string  `json:"slug"`
	Title      string  `json:"title"`
	Category   string  `json:"category"`
	YesPrice   float64 `json:"prices0"` // 0..1
	Volume     float64 `json:"volumeFormatted"`
	Expired    bool    `json:"expired"`
	Resolved   bool    `json:"resolved"`
	WinningIdx *int    `json:"winningOutcomeIndex"`
	ResolvedAt int64   `json:"resolvedAt"`
}

func (a *LimitlessAdapter) GetBetsForUser(ctx context.Context, address string, since time.Time) ([]*models.Bet, error) {
	var trades []limitlessTrade
	err := a.retrier.Do(ctx, "user trades", func(ctx context.Context) error {
		return getJSON(ctx, a.client, "/trades", map[string]string{
			"account": models.NormalizeAddress(address),
			"limit":   "500",
		}, &trades)
	})
	if err != nil {
		return nil, err
	}
	return a.normalize(trades, since), nil
}

func (a *LimitlessAdapter) GetBetsForMarket(ctx context.Context, marketID string) ([]*models.Bet, error) {
	var trades []limitlessTrade
	err := a.retrier.Do(ctx, "market trades", func(ctx context.Context) error {
		return getJSON(ctx, a.client, "/trades", map[string]string{
			"market": marketID,
			"limit":  "1000",
		}, &trades)
	})
	if err != nil {
		return nil, err
	}
	return a.normalize(trades, time.Time{}), nil
}

func (a *LimitlessAdapter) GetTraderBets(ctx context.Context, address string, limit int) ([]*models.Bet, error) {
	bets, err := a.GetBetsForUser(ctx, address, time.Time{})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(bets) > limit {
		bets = bets[:limit]
	}
	return bets, nil
}

func (a *LimitlessAdapter) GetRecentBets(ctx context.Context, window time.Duration, limit int) ([]*models.Bet, error) {
	var trades []limitlessTrade
	err := a.retrier.Do(ctx, "recent trades", func(ctx context.Context) error {
		return getJSON(ctx, a.client, "/trades", map[string]string{
			"limit": fmt.Sprintf("%d", limit),
		}, &trades)
	})
	if err != nil {
		return nil, err
	}
	return a.normalize(trades, time.Now().Add(-window)), nil
}

func (a *LimitlessAdapter) GetMarketOutcome(ctx context.Context, marketID string) (models.Outcome, error) {
	m, err := a.fetchMarket(ctx, marketID)
	if err != nil {
		return models.Outcome{}, err
	}
	if !m.Resolved {
		return models.Outcome{Resolved: false}, nil
	}

	out := models.Outcome{Resolved: true}
	if m.WinningIdx != nil {
		d := models.DirectionBear
		if *m.WinningIdx == 0 {
			d = models.DirectionBull
		}
		out.Winner = &d
	}
	if m.ResolvedAt > 0 {
		t := time.Unix(m.ResolvedAt, 0)
		out.ResolvedAt = &t
	}
	return out, nil
}

func (a *LimitlessAdapter) GetActiveMarkets(ctx context.Context, limit int) ([]*models.Market, error) {
	var markets []limitlessMarket
	err := a.retrier.Do(ctx, "markets", func(ctx context.Context) error {
		return getJSON(ctx, a.client, "/markets/active", map[string]string{
			"limit": fmt.Sprintf("%d", limit),
		}, &markets)
	})
	if err != nil {
		return nil, err
	}

	out := make([]*models.Market, 0, len(markets))
	for _, m := range markets {
		out = append(out, &models.Market{
			ID:          m.Slug,
			Platform:    models.PlatformLimitless,
			Title:       m.Title,
			Category:    m.Category,
			YesPriceBps: int64(m.YesPrice * 10000),
			VolumeUSD:   m.Volume,
			Active:      !m.Expired && !m.Resolved,
		})
	}
	return out, nil
}

func (a *LimitlessAdapter) IsMarketActive(ctx context.Context, marketID string) (bool, error) {
	m, err := a.fetchMarket(ctx, marketID)
	if err != nil {
		return false, err
	}
	return !m.Expired && !m.Resolved, nil
}

// Backfill pages trades between two unix-second cursors.
func (a *LimitlessAdapter) Backfill(ctx context.Context, fromBlock, toBlock uint64, onBet BetHandler) error {
	cursor := int64(fromBlock)
	for cursor < int64(toBlock) {
		var trades []limitlessTrade
		err := a.retrier.Do(ctx, "backfill trades", func(ctx context.Context) error {
			return getJSON(ctx, a.client, "/trades", map[string]string{
				"after": fmt.Sprintf("%d", cursor),
				"limit": "500",
			}, &trades)
		})
		if err != nil {
			return err
		}
		if len(trades) == 0 {
			return nil
		}

		found := 0
		for i := range trades {
			if trades[i].CreatedAt > int64(toBlock) {
				return nil
			}
			if bet := a.normalizeOne(&trades[i]); bet != nil {
				onBet(bet)
				found++
			}
			if trades[i].CreatedAt > cursor {
				cursor = trades[i].CreatedAt
			}
		}
		a.log.Info().Str("platform", "limitless").
			Int64("cursor", cursor).Int("found", found).
			Msg("Backfill chunk processed")
	}
	return nil
}

func (a *LimitlessAdapter) Subscribe(onBet BetHandler) (Disposer, error) {
	fetch := func(ctx context.Context) ([]*models.Bet, error) {
		return a.GetRecentBets(ctx, 2*a.poll, 200)
	}
	return startPolling(a.Platform(), a.poll, fetch, onBet, a.log), nil
}

func (a *LimitlessAdapter) fetchMarket(ctx context.Context, slug string) (*limitlessMarket, error) {
	var m limitlessMarket
	err := a.retrier.Do(ctx, "market", func(ctx context.Context) error {
		return getJSON(ctx, a.client, "/markets/"+slug, nil, &m)
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (a *LimitlessAdapter) normalize(trades []limitlessTrade, since time.Time) []*models.Bet {
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

func (a *LimitlessAdapter) normalizeOne(t *limitlessTrade) *models.Bet {
	collateral, err := decimal.NewFromString(t.Collateral)
	if err != nil {
		return nil
	}
	direction := models.DirectionBear
	if t.Outcome == 0 {
		direction = models.DirectionBull
	}
	return &models.Bet{
		ID:        t.ID,
		Trader:    models.NormalizeAddress(t.Account),
		Platform:  models.PlatformLimitless,
		MarketID:  t.MarketSlug,
		Direction: direction,
		Amount:    models.ToCanonical(collateral, usdcDecimals),
		Timestamp: time.Unix(t.CreatedAt, 0),
		TxHash:    t.TxHash,
	}
}
