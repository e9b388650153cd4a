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

const (
	polymarketDataAPI  = "https://data-api.polymarket.com"
	polymarketGammaAPI = "https://gamma-api.polymarket.com"
	usdcDecimals       = 6
)

// PolymarketAdapter ingests Polymarket trades via the public data API, with
// the activity subgraph as fallback for users the API misses. Amounts are
// USDC at 6 decimals, scaled to canonical on ingress.
type PolymarketAdapter struct {
	data     *resty.Client
	gamma    *resty.Client
	subgraph *resty.Client
	retrier  *Retrier
	poll     time.Duration
	log      zerolog.Logger
}

// NewPolymarket builds the adapter. subgraphURL may be empty to disable
// the on-chain fallback.
func NewPolymarket(subgraphURL string, retryCfg RetryConfig, pollInterval time.Duration, log zerolog.Logger) *PolymarketAdapter {
	a := &PolymarketAdapter{
		data:    newRESTClient(polymarketDataAPI, retryCfg.RequestTimeout),
		gamma:   newRESTClient(polymarketGammaAPI, retryCfg.RequestTimeout),
		retrier: NewRetrier("polymarket", retryCfg, log),
		poll:    pollInterval,
		log:     log,
	}
	if subgraphURL != "" {
		a.subgraph = newRESTClient(subgraphURL, retryCfg.RequestTimeout)
	}
	return a
}

func (a *PolymarketAdapter) Platform() models.Platform { return models.PlatformPolymarket }

// Initialize probes the data API.
func (a *PolymarketAdapter) Initialize(ctx context.Context) error {
	return a.retrier.Do(ctx, "initialize", func(ctx context.Context) error {
		var out []polymarketTrade
		return getJSON(ctx, a.data, "/trades", map[string]string{"limit": "1"}, &out)
	})
}

// CurrentSequence returns the server time as a freshness probe; Polymarket
// has no epoch concept.
func (a *PolymarketAdapter) CurrentSequence(ctx context.Context) (uint64, error) {
	if err := a.Initialize(ctx); err != nil {
		return 0, err
	}
	return uint64(time.Now().Unix()), nil
}

// polymarketTrade is the data-api trade shape.
type polymarketTrade struct {
	ID              string  `json:"id"`
	ProxyWallet     string  `json:"proxyWallet"`
	Side            string  `json:"side"` // BUY / SELL
	Outcome         string  `json:"outcome"`
	OutcomeIndex    int     `json:"outcomeIndex"`
	Size            string  `json:"size"`  // USDC units, 6-dec string
	Price           float64 `json:"price"` // 0..1
	ConditionID     string  `json:"conditionId"`
	Timestamp       int64   `json:"timestamp"`
	TransactionHash string  `json:"transactionHash"`
}

// polymarketMarket is the gamma-api market shape.
type polymarketMarket struct {
	ConditionID string  `json:"conditionId"`
	Question    string  `json:"question"`
	Category    string  `json:"category"`
	Volume      float64 `json:"volumeNum"`
	Liquidity   float64 `json:"liquidityNum"`
	EndDate     string  `json:"endDate"`
	Closed      bool    `json:"closed"`
	Active      bool    `json:"active"`
	// Prices come as a JSON-encoded array string, e.g. "[\"0.7\", \"0.3\"]".
	OutcomePrices string `json:"outcomePrices"`
}

// GetBetsForUser is API-first; an empty API result falls back to the
// activity subgraph when configured. The two sources are never mixed into
// one result set.
func (a *PolymarketAdapter) GetBetsForUser(ctx context.Context, address string, since time.Time) ([]*models.Bet, error) {
	address = models.NormalizeAddress(address)

	var trades []polymarketTrade
	err := a.retrier.Do(ctx, "trades", func(ctx context.Context) error {
		return getJSON(ctx, a.data, "/trades", map[string]string{
			"user":  address,
			"limit": "500",
		}, &trades)
	})
	if err != nil {
		return nil, err
	}

	if len(trades) == 0 && a.subgraph != nil {
		return a.betsFromSubgraph(ctx, address, since)
	}

	var bets []*models.Bet
	for i := range trades {
		bet, err := a.normalizeTrade(&trades[i])
		if err != nil {
			a.log.Warn().Err(err).Str("trade", trades[i].ID).Msg("Skipping unparseable trade")
			continue
		}
		if bet.Timestamp.Before(since) {
			continue
		}
		bets = append(bets, bet)
	}
	return bets, nil
}

// betsFromSubgraph reads fills from the activity subgraph.
func (a *PolymarketAdapter) betsFromSubgraph(ctx context.Context, address string, since time.Time) ([]*models.Bet, error) {
	const query = `query Fills($user: String!, $since: Int!) {
		transactions(where: {user: $user, timestamp_gte: $since}, orderBy: timestamp, first: 500) {
			id
			user
			tradeAmount
			outcomeIndex
			market { id }
			timestamp
		}
	}`

	var resp struct {
		Transactions []struct {
			ID           string `json:"id"`
			User         string `json:"user"`
			TradeAmount  string `json:"tradeAmount"`
			OutcomeIndex int    `json:"outcomeIndex,string"`
			Market       struct {
				ID string `json:"id"`
			} `json:"market"`
			Timestamp int64 `json:"timestamp,string"`
		} `json:"transactions"`
	}

	err := a.retrier.Do(ctx, "subgraph fills", func(ctx context.Context) error {
		return querySubgraph(ctx, a.subgraph, query, map[string]interface{}{
			"user":  address,
			"since": since.Unix(),
		}, &resp)
	})
	if err != nil {
		return nil, err
	}

	var bets []*models.Bet
	for _, tx := range resp.Transactions {
		amount, err := decimal.NewFromString(tx.TradeAmount)
		if err != nil {
			continue
		}
		direction := models.DirectionBull
		if tx.OutcomeIndex != 0 {
			direction = models.DirectionBear
		}
		bets = append(bets, &models.Bet{
			ID:        tx.ID,
			Trader:    models.NormalizeAddress(tx.User),
			Platform:  models.PlatformPolymarket,
			MarketID:  tx.Market.ID,
			Direction: direction,
			Amount:    models.ToCanonical(amount, usdcDecimals),
			Timestamp: time.Unix(tx.Timestamp, 0),
		})
	}
	return bets, nil
}

// GetBetsForMarket returns trades on one condition.
func (a *PolymarketAdapter) GetBetsForMarket(ctx context.Context, marketID string) ([]*models.Bet, error) {
	var trades []polymarketTrade
	err := a.retrier.Do(ctx, "market trades", func(ctx context.Context) error {
		return getJSON(ctx, a.data, "/trades", map[string]string{
			"market": marketID,
			"limit":  "1000",
		}, &trades)
	})
	if err != nil {
		return nil, err
	}
	return a.normalizeTrades(trades, time.Time{}), nil
}

// GetTraderBets returns the trader's latest trades.
func (a *PolymarketAdapter) GetTraderBets(ctx context.Context, address string, limit int) ([]*models.Bet, error) {
	bets, err := a.GetBetsForUser(ctx, address, time.Time{})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(bets) > limit {
		bets = bets[:limit]
	}
	return bets, nil
}

// GetRecentBets returns venue-wide trades inside the window.
func (a *PolymarketAdapter) GetRecentBets(ctx context.Context, window time.Duration, limit int) ([]*models.Bet, error) {
	var trades []polymarketTrade
	err := a.retrier.Do(ctx, "recent trades", func(ctx context.Context) error {
		return getJSON(ctx, a.data, "/trades", map[string]string{
			"limit": fmt.Sprintf("%d", limit),
		}, &trades)
	})
	if err != nil {
		return nil, err
	}
	return a.normalizeTrades(trades, time.Now().Add(-window)), nil
}

// GetMarketOutcome resolves a closed market by its terminal YES price.
func (a *PolymarketAdapter) GetMarketOutcome(ctx context.Context, marketID string) (models.Outcome, error) {
	m, err := a.fetchMarket(ctx, marketID)
	if err != nil {
		return models.Outcome{}, err
	}
	if !m.Closed {
		return models.Outcome{Resolved: false}, nil
	}

	yes := parseYesPrice(m.OutcomePrices)
	out := models.Outcome{Resolved: true}
	switch {
	case yes > 0.5:
		d := models.DirectionBull
		out.Winner = &d
	case yes < 0.5:
		d := models.DirectionBear
		out.Winner = &d
	}
	// yes == 0.5 stays nil: voided or unresolvable market.
	return out, nil
}

// GetActiveMarkets returns open markets ordered by volume.
func (a *PolymarketAdapter) GetActiveMarkets(ctx context.Context, limit int) ([]*models.Market, error) {
	var markets []polymarketMarket
	err := a.retrier.Do(ctx, "markets", func(ctx context.Context) error {
		return getJSON(ctx, a.gamma, "/markets", map[string]string{
			"active": "true",
			"closed": "false",
			"order":  "volumeNum",
			"limit":  fmt.Sprintf("%d", limit),
		}, &markets)
	})
	if err != nil {
		return nil, err
	}

	out := make([]*models.Market, 0, len(markets))
	for i := range markets {
		out = append(out, a.normalizeMarket(&markets[i]))
	}
	return out, nil
}

// IsMarketActive reports whether the market still trades.
func (a *PolymarketAdapter) IsMarketActive(ctx context.Context, marketID string) (bool, error) {
	m, err := a.fetchMarket(ctx, marketID)
	if err != nil {
		return false, err
	}
	return m.Active && !m.Closed, nil
}

// Backfill pages historical trades by timestamp; Polymarket has no block
// cursor on its data API, so from/to are unix seconds.
func (a *PolymarketAdapter) Backfill(ctx context.Context, fromBlock, toBlock uint64, onBet BetHandler) error {
	cursor := int64(fromBlock)
	for cursor < int64(toBlock) {
		var trades []polymarketTrade
		err := a.retrier.Do(ctx, "backfill trades", func(ctx context.Context) error {
			return getJSON(ctx, a.data, "/trades", map[string]string{
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
			if trades[i].Timestamp > int64(toBlock) {
				return nil
			}
			bet, err := a.normalizeTrade(&trades[i])
			if err != nil {
				continue
			}
			onBet(bet)
			found++
			if trades[i].Timestamp > cursor {
				cursor = trades[i].Timestamp
			}
		}
		a.log.Info().Str("platform", "polymarket").
			Int64("cursor", cursor).Int("found", found).
			Msg("Backfill chunk processed")
	}
	return nil
}

// Subscribe polls recent trades with seen-set dedup.
func (a *PolymarketAdapter) Subscribe(onBet BetHandler) (Disposer, error) {
	fetch := func(ctx context.Context) ([]*models.Bet, error) {
		return a.GetRecentBets(ctx, 2*a.poll, 200)
	}
	return startPolling(a.Platform(), a.poll, fetch, onBet, a.log), nil
}

func (a *PolymarketAdapter) fetchMarket(ctx context.Context, marketID string) (*polymarketMarket, error) {
	var markets []polymarketMarket
	err := a.retrier.Do(ctx, "market", func(ctx context.Context) error {
		return getJSON(ctx, a.gamma, "/markets", map[string]string{
			"condition_ids": marketID,
		}, &markets)
	})
	if err != nil {
		return nil, err
	}
	if len(markets) == 0 {
		return nil, fmt.Errorf("market %s not found", marketID)
	}
	return &markets[0], nil
}

func (a *PolymarketAdapter) normalizeTrades(trades []polymarketTrade, since time.Time) []*models.Bet {
	var bets []*models.Bet
	for i := range trades {
		bet, err := a.normalizeTrade(&trades[i])
		if err != nil {
			continue
		}
		if !since.IsZero() && bet.Timestamp.Before(since) {
			continue
		}
		bets = append(bets, bet)
	}
	return bets
}

// normalizeTrade converts a data-api trade into a canonical bet. YES buys
// and NO sells are bull; the inverse is bear.
func (a *PolymarketAdapter) normalizeTrade(t *polymarketTrade) (*models.Bet, error) {
	size, err := decimal.NewFromString(t.Size)
	if err != nil {
		return nil, fmt.Errorf("invalid trade size %q: %w", t.Size, err)
	}

	yesSide := t.OutcomeIndex == 0
	buying := strings.EqualFold(t.Side, "BUY")
	direction := models.DirectionBear
	if yesSide == buying {
		direction = models.DirectionBull
	}

	return &models.Bet{
		ID:        t.ID,
		Trader:    models.NormalizeAddress(t.ProxyWallet),
		Platform:  models.PlatformPolymarket,
		MarketID:  t.ConditionID,
		Direction: direction,
		Amount:    models.ToCanonical(size, usdcDecimals),
		Timestamp: time.Unix(t.Timestamp, 0),
		TxHash:    t.TransactionHash,
	}, nil
}

func (a *PolymarketAdapter) normalizeMarket(m *polymarketMarket) *models.Market {
	yes := parseYesPrice(m.OutcomePrices)
	return &models.Market{
		ID:          m.ConditionID,
		Platform:    models.PlatformPolymarket,
		Title:       m.Question,
		Category:    m.Category,
		YesPriceBps: int64(yes * 10000),
		VolumeUSD:   m.Volume,
		Active:      m.Active && !m.Closed,
	}
}

// parseYesPrice extracts the YES price from the gamma API's stringified
// array, e.g. `["0.705", "0.295"]`. Returns 0.5 when unparseable.
func parseYesPrice(prices string) float64 {
	s := strings.Trim(prices, "[] ")
	parts := strings.Split(s, ",")
	if len(parts) == 0 {
		return 0.5
	}
	first := strings.Trim(strings.TrimSpace(parts[0]), `"`)
	d, err := decimal.NewFromString(first)
	if err != nil {
		return 0.5
	}
	f, _ := d.Float64()
	return f
}
