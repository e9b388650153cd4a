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

// sgBet is the shared wire shape every subgraph venue aliases its entities
// onto. Venue queries use GraphQL field aliases so heterogeneous schemas
// decode into one struct.
type sgBet struct {
	ID        string `json:"id"`
	Actor     string `json:"actor"`
	Amount    string `json:"amount"` // venue-native integer units
	Side      string `json:"side"`   // venue-native outcome tag
	Market    string `json:"market"`
	Timestamp int64  `json:"timestamp,string"`
	TxHash    string `json:"txHash"`
}

// sgMarket is the shared market shape.
type sgMarket struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	YesPrice   string `json:"yesPrice"` // 0..1 decimal string
	Volume     string `json:"volume"`   // USD float string
	Resolved   bool   `json:"resolved"`
	WinnerSide string `json:"winnerSide"`
	ResolvedAt int64  `json:"resolvedAt,string"`
	Active     bool   `json:"active"`
}

// sgQueries holds one venue's aliased GraphQL documents.
type sgQueries struct {
	BetsForUser   string // $user, $since
	BetsForMarket string // $market
	RecentBets    string // $since, $limit
	BetsInRange   string // $from, $to, $skip
	Market        string // $id
	ActiveMarkets string // $limit
}

// subgraphVenue implements the Adapter contract for GraphQL-indexed venues.
// Venue files provide the queries, native decimals, and side mapping.
type subgraphVenue struct {
	platform models.Platform
	category string
	client   *resty.Client
	retrier  *Retrier
	poll     time.Duration
	decimals int
	queries  sgQueries
	mapSide  func(string) (models.Direction, bool)
	log      zerolog.Logger
}

func newSubgraphVenue(platform models.Platform, category, url string, decimals int, queries sgQueries, mapSide func(string) (models.Direction, bool), retryCfg RetryConfig, pollInterval time.Duration, log zerolog.Logger) *subgraphVenue {
	return &subgraphVenue{
		platform: platform,
		category: category,
		client:   newRESTClient(url, retryCfg.RequestTimeout),
		retrier:  NewRetrier(string(platform), retryCfg, log),
		poll:     pollInterval,
		decimals: decimals,
		queries:  queries,
		mapSide:  mapSide,
		log:      log,
	}
}

func (v *subgraphVenue) Platform() models.Platform { return v.platform }

// Initialize probes the subgraph with a trivial meta query.
func (v *subgraphVenue) Initialize(ctx context.Context) error {
	return v.retrier.Do(ctx, "initialize", func(ctx context.Context) error {
		return querySubgraph(ctx, v.client, `{ _meta { block { number } } }`, nil, nil)
	})
}

// CurrentSequence returns the subgraph's indexed head block.
func (v *subgraphVenue) CurrentSequence(ctx context.Context) (uint64, error) {
	var resp struct {
		Meta struct {
			Block struct {
				Number uint64 `json:"number"`
			} `json:"block"`
		} `json:"_meta"`
	}
	err := v.retrier.Do(ctx, "head block", func(ctx context.Context) error {
		return querySubgraph(ctx, v.client, `{ _meta { block { number } } }`, nil, &resp)
	})
	return resp.Meta.Block.Number, err
}

func (v *subgraphVenue) GetBetsForUser(ctx context.Context, address string, since time.Time) ([]*models.Bet, error) {
	return v.queryBets(ctx, "user bets", v.queries.BetsForUser, map[string]interface{}{
		"user":  models.NormalizeAddress(address),
		"since": since.Unix(),
	})
}

func (v *subgraphVenue) GetBetsForMarket(ctx context.Context, marketID string) ([]*models.Bet, error) {
	return v.queryBets(ctx, "market bets", v.queries.BetsForMarket, map[string]interface{}{
		"market": marketID,
	})
}

func (v *subgraphVenue) GetTraderBets(ctx context.Context, address string, limit int) ([]*models.Bet, error) {
	bets, err := v.GetBetsForUser(ctx, address, time.Time{})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(bets) > limit {
		bets = bets[:limit]
	}
	return bets, nil
}

func (v *subgraphVenue) GetRecentBets(ctx context.Context, window time.Duration, limit int) ([]*models.Bet, error) {
	return v.queryBets(ctx, "recent bets", v.queries.RecentBets, map[string]interface{}{
		"since": time.Now().Add(-window).Unix(),
		"limit": limit,
	})
}

func (v *subgraphVenue) GetMarketOutcome(ctx context.Context, marketID string) (models.Outcome, error) {
	var resp struct {
		Market *sgMarket `json:"market"`
	}
	err := v.retrier.Do(ctx, "market", func(ctx context.Context) error {
		return querySubgraph(ctx, v.client, v.queries.Market, map[string]interface{}{"id": marketID}, &resp)
	})
	if err != nil {
		return models.Outcome{}, err
	}
	if resp.Market == nil {
		return models.Outcome{}, fmt.Errorf("market %s not found on %s", marketID, v.platform)
	}
	if !resp.Market.Resolved {
		return models.Outcome{Resolved: false}, nil
	}

	out := models.Outcome{Resolved: true}
	if d, ok := v.mapSide(resp.Market.WinnerSide); ok {
		out.Winner = &d
	}
	if resp.Market.ResolvedAt > 0 {
		t := time.Unix(resp.Market.ResolvedAt, 0)
		out.ResolvedAt = &t
	}
	return out, nil
}

func (v *subgraphVenue) GetActiveMarkets(ctx context.Context, limit int) ([]*models.Market, error) {
	var resp struct {
		Markets []sgMarket `json:"markets"`
	}
	err := v.retrier.Do(ctx, "active markets", func(ctx context.Context) error {
		return querySubgraph(ctx, v.client, v.queries.ActiveMarkets, map[string]interface{}{"limit": limit}, &resp)
	})
	if err != nil {
		return nil, err
	}

	out := make([]*models.Market, 0, len(resp.Markets))
	for i := range resp.Markets {
		out = append(out, v.normalizeMarket(&resp.Markets[i]))
	}
	return out, nil
}

func (v *subgraphVenue) IsMarketActive(ctx context.Context, marketID string) (bool, error) {
	var resp struct {
		Market *sgMarket `json:"market"`
	}
	err := v.retrier.Do(ctx, "market", func(ctx context.Context) error {
		return querySubgraph(ctx, v.client, v.queries.Market, map[string]interface{}{"id": marketID}, &resp)
	})
	if err != nil {
		return false, err
	}
	return resp.Market != nil && resp.Market.Active && !resp.Market.Resolved, nil
}

// Backfill walks [fromBlock, toBlock] as unix seconds, paging with skip.
func (v *subgraphVenue) Backfill(ctx context.Context, fromBlock, toBlock uint64, onBet BetHandler) error {
	const page = 500
	skip := 0
	for {
		bets, err := v.queryBets(ctx, "backfill", v.queries.BetsInRange, map[string]interface{}{
			"from": int64(fromBlock),
			"to":   int64(toBlock),
			"skip": skip,
		})
		if err != nil {
			return err
		}
		for _, bet := range bets {
			onBet(bet)
		}
		v.log.Info().Str("platform", string(v.platform)).
			Int("skip", skip).Int("found", len(bets)).
			Msg("Backfill chunk processed")
		if len(bets) < page {
			return nil
		}
		skip += page
	}
}

func (v *subgraphVenue) Subscribe(onBet BetHandler) (Disposer, error) {
	fetch := func(ctx context.Context) ([]*models.Bet, error) {
		return v.GetRecentBets(ctx, 2*v.poll, 500)
	}
	return startPolling(v.platform, v.poll, fetch, onBet, v.log), nil
}

func (v *subgraphVenue) queryBets(ctx context.Context, op, query string, vars map[string]interface{}) ([]*models.Bet, error) {
	var resp struct {
		Bets []sgBet `json:"bets"`
	}
	err := v.retrier.Do(ctx, op, func(ctx context.Context) error {
		return querySubgraph(ctx, v.client, query, vars, &resp)
	})
	if err != nil {
		return nil, err
	}

	var bets []*models.Bet
	for i := range resp.Bets {
		bet, err := v.normalizeBet(&resp.Bets[i])
		if err != nil {
			v.log.Warn().Err(err).Str("bet", resp.Bets[i].ID).Msg("Skipping unparseable bet")
			continue
		}
		bets = append(bets, bet)
	}
	return bets, nil
}

func (v *subgraphVenue) normalizeBet(b *sgBet) (*models.Bet, error) {
	direction, ok := v.mapSide(b.Side)
	if !ok {
		return nil, fmt.Errorf("unknown side %q", b.Side)
	}
	native, err := decimal.NewFromString(b.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", b.Amount, err)
	}
	return &models.Bet{
		ID:        b.ID,
		Trader:    models.NormalizeAddress(b.Actor),
		Platform:  v.platform,
		MarketID:  b.Market,
		Direction: direction,
		Amount:    models.ToCanonical(native, v.decimals),
		Timestamp: time.Unix(b.Timestamp, 0),
		TxHash:    b.TxHash,
	}, nil
}

func (v *subgraphVenue) normalizeMarket(m *sgMarket) *models.Market {
	yes, err := decimal.NewFromString(m.YesPrice)
	if err != nil {
		yes = decimal.NewFromFloat(0.5)
	}
	yesF, _ := yes.Float64()
	vol, _ := decimal.NewFromString(m.Volume)
	volF, _ := vol.Float64()
	return &models.Market{
		ID:          m.ID,
		Platform:    v.platform,
		Title:       m.Title,
		Category:    v.category,
		YesPriceBps: int64(yesF * 10000),
		VolumeUSD:   volF,
		Active:      m.Active && !m.Resolved,
	}
}
