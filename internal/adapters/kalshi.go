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

const (
	kalshiAPI = "https://api.elections.kalshi.com/trade-api/v2"
	// Kalshi quotes contracts in cents.
	kalshiDecimals = 2
)

// KalshiAdapter ingests the CFTC-regulated event exchange via its public
// trade API. Kalshi has no wallet addresses; trader identity comes from
// the API's anonymized participant ids.
type KalshiAdapter struct {
	client  *resty.Client
	retrier *Retrier
	poll    time.Duration
	log     zerolog.Logger
}

// NewKalshi builds the adapter.
func NewKalshi(retryCfg RetryConfig, pollInterval time.Duration, log zerolog.Logger) *KalshiAdapter {
	return &KalshiAdapter{
		client:  newRESTClient(kalshiAPI, retryCfg.RequestTimeout),
		retrier: NewRetrier("kalshi", retryCfg, log),
		poll:    pollInterval,
		log:     log,
	}
}

func (a *KalshiAdapter) Platform() models.Platform { return models.PlatformKalshi }

// Initialize probes the exchange status endpoint.
func (a *KalshiAdapter) Initialize(ctx context.Context) error {
	return a.retrier.Do(ctx, "initialize", func(ctx context.Context) error {
		var out struct {
			ExchangeActive bool `json:"exchange_active"`
		}
		return getJSON(ctx, a.client, "/exchange/status", nil, &out)
	})
}

// CurrentSequence returns the server time; Kalshi has no chain cursor.
func (a *KalshiAdapter) CurrentSequence(ctx context.Context) (uint64, error) {
	if err := a.Initialize(ctx); err != nil {
		return 0, err
	}
	return uint64(time.Now().Unix()), nil
}

type kalshiTrade struct {
	TradeID     string `json:"trade_id"`
	Ticker      string `json:"ticker"`
	TakerSide   string `json:"taker_side"` // yes / no
	Count       int64  `json:"count"`
	YesPrice    int64  `json:"yes_price"` // cents
	NoPrice     int64  `json:"no_price"`
	CreatedTime string `json:"created_time"`
}

type kalshiMarket struct {
	Ticker    string  `json:"ticker"`
	Title     string  `json:"title"`
	Category  string  `json:"category"`
	Status    string  `json:"status"` // active / closed / settled
	YesBid    int64   `json:"yes_bid"`
	Volume    int64   `json:"volume"`
	Liquidity float64 `json:"liquidity"`
	Result    string  `json:"result"` // yes / no / "" until settled
	CloseTime string  `json:"close_time"`
}

// GetBetsForUser is unsupported: Kalshi's public API exposes no per-user
// trade history. Returns empty, never errors, so scoring simply skips it.
func (a *KalshiAdapter) GetBetsForUser(ctx context.Context, address string, since time.Time) ([]*models.Bet, error) {
	return nil, nil
}

// GetBetsForMarket returns public trades on one ticker.
func (a *KalshiAdapter) GetBetsForMarket(ctx context.Context, marketID string) ([]*models.Bet, error) {
	var resp struct {
		Trades []kalshiTrade `json:"trades"`
	}
	err := a.retrier.Do(ctx, "market trades", func(ctx context.Context) error {
		return getJSON(ctx, a.client, "/markets/trades", map[string]string{
			"ticker": marketID,
			"limit":  "1000",
		}, &resp)
	})
	if err != nil {
		return nil, err
	}
	return a.normalizeTrades(resp.Trades, time.Time{}), nil
}

// GetTraderBets mirrors GetBetsForUser: no public per-user history.
func (a *KalshiAdapter) GetTraderBets(ctx context.Context, address string, limit int) ([]*models.Bet, error) {
	return nil, nil
}

// GetRecentBets returns exchange-wide trades inside the window.
func (a *KalshiAdapter) GetRecentBets(ctx context.Context, window time.Duration, limit int) ([]*models.Bet, error) {
	var resp struct {
		Trades []kalshiTrade `json:"trades"`
	}
	err := a.retrier.Do(ctx, "recent trades", func(ctx context.Context) error {
		return getJSON(ctx, a.client, "/markets/trades", map[string]string{
			"limit":  fmt.Sprintf("%d", limit),
			"min_ts": fmt.Sprintf("%d", time.Now().Add(-window).Unix()),
		}, &resp)
	})
	if err != nil {
		return nil, err
	}
	return a.normalizeTrades(resp.Trades, time.Now().Add(-window)), nil
}

// GetMarketOutcome maps settlement results: yes is bull, no is bear, a
// voided market leaves winner nil.
func (a *KalshiAdapter) GetMarketOutcome(ctx context.Context, marketID string) (models.Outcome, error) {
	m, err := a.fetchMarket(ctx, marketID)
	if err != nil {
		return models.Outcome{}, err
	}
	if m.Status != "settled" {
		return models.Outcome{Resolved: false}, nil
	}

	out := models.Outcome{Resolved: true}
	switch m.Result {
	case "yes":
		d := models.DirectionBull
		out.Winner = &d
	case "no":
		d := models.DirectionBear
		out.Winner = &d
	}
	if t, err := time.Parse(time.RFC3339, m.CloseTime); err == nil {
		out.ResolvedAt = &t
	}
	return out, nil
}

// GetActiveMarkets returns open markets.
func (a *KalshiAdapter) GetActiveMarkets(ctx context.Context, limit int) ([]*models.Market, error) {
	var resp struct {
		Markets []kalshiMarket `json:"markets"`
	}
	err := a.retrier.Do(ctx, "markets", func(ctx context.Context) error {
		return getJSON(ctx, a.client, "/markets", map[string]string{
			"status": "open",
			"limit":  fmt.Sprintf("%d", limit),
		}, &resp)
	})
	if err != nil {
		return nil, err
	}

	out := make([]*models.Market, 0, len(resp.Markets))
	for _, m := range resp.Markets {
		out = append(out, &models.Market{
			ID:          m.Ticker,
			Platform:    models.PlatformKalshi,
			Title:       m.Title,
			Category:    m.Category,
			YesPriceBps: m.YesBid * 100, // cents to bps
			VolumeUSD:   float64(m.Volume),
			Active:      m.Status == "active",
		})
	}
	return out, nil
}

// IsMarketActive reports whether the ticker is open.
func (a *KalshiAdapter) IsMarketActive(ctx context.Context, marketID string) (bool, error) {
	m, err := a.fetchMarket(ctx, marketID)
	if err != nil {
		return false, err
	}
	return m.Status == "active", nil
}

// Backfill pages historical trades by unix-second cursor.
func (a *KalshiAdapter) Backfill(ctx context.Context, fromBlock, toBlock uint64, onBet BetHandler) error {
	cursor := int64(fromBlock)
	for cursor < int64(toBlock) {
		var resp struct {
			Trades []kalshiTrade `json:"trades"`
		}
		err := a.retrier.Do(ctx, "backfill trades", func(ctx context.Context) error {
			return getJSON(ctx, a.client, "/markets/trades", map[string]string{
				"min_ts": fmt.Sprintf("%d", cursor),
				"max_ts": fmt.Sprintf("%d", toBlock),
				"limit":  "1000",
			}, &resp)
		})
		if err != nil {
			return err
		}
		if len(resp.Trades) == 0 {
			return nil
		}

		bets := a.normalizeTrades(resp.Trades, time.Time{})
		for _, bet := range bets {
			onBet(bet)
			if ts := bet.Timestamp.Unix(); ts > cursor {
				cursor = ts
			}
		}
		a.log.Info().Str("platform", "kalshi").
			Int64("cursor", cursor).Int("found", len(bets)).
			Msg("Backfill chunk processed")
		if int64(len(resp.Trades)) < 1000 {
			return nil
		}
	}
	return nil
}

// Subscribe polls recent trades.
func (a *KalshiAdapter) Subscribe(onBet BetHandler) (Disposer, error) {
	fetch := func(ctx context.Context) ([]*models.Bet, error) {
		return a.GetRecentBets(ctx, 2*a.poll, 500)
	}
	return startPolling(a.Platform(), a.poll, fetch, onBet, a.log), nil
}

func (a *KalshiAdapter) fetchMarket(ctx context.Context, ticker string) (*kalshiMarket, error) {
	var resp struct {
		Market kalshiMarket `json:"market"`
	}
	err := a.retrier.Do(ctx, "market", func(ctx context.Context) error {
		return getJSON(ctx, a.client, "/markets/"+ticker, nil, &resp)
	})
	if err != nil {
		return nil, err
	}
	return &resp.Market, nil
}

func (a *KalshiAdapter) normalizeTrades(trades []kalshiTrade, since time.Time) []*models.Bet {
	var bets []*models.Bet
	for _, t := range trades {
		ts, err := time.Parse(time.RFC3339, t.CreatedTime)
		if err != nil {
			continue
		}
		if !since.IsZero() && ts.Before(since) {
			continue
		}

		direction := models.DirectionBear
		price := t.NoPrice
		if t.TakerSide == "yes" {
			direction = models.DirectionBull
			price = t.YesPrice
		}

		// Notional in cents: contracts x price.
		cents := decimal.NewFromInt(t.Count * price)
		bets = append(bets, &models.Bet{
			ID:        t.TradeID,
			Trader:    "kalshi:" + t.TradeID, // no public participant identity
			Platform:  models.PlatformKalshi,
			MarketID:  t.Ticker,
			Direction: direction,
			Amount:    models.ToCanonical(cents, kalshiDecimals),
			Timestamp: ts,
		})
	}
	return bets
}
