package adapters

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/truthplane/engine/internal/chain"
	"github.com/truthplane/engine/internal/models"
)

// PancakeSwap Prediction V2 contract on BSC.
const pancakePredictionContract = "0x18B2A687610328590Bc8F2e5fEdDe3b582A49cdA"

var (
	topicBetBull = crypto.Keccak256Hash([]byte("BetBull(address,uint256,uint256)"))
	topicBetBear = crypto.Keccak256Hash([]byte("BetBear(address,uint256,uint256)"))
	topicClaim   = crypto.Keccak256Hash([]byte("Claim(address,uint256,uint256)"))

	selectorCurrentEpoch = crypto.Keccak256([]byte("currentEpoch()"))[:4]
	selectorRounds       = crypto.Keccak256([]byte("rounds(uint256)"))[:4]
)

// blockTimeCacheMax bounds the per-adapter header-timestamp cache; a long
// backfill resets it rather than growing without limit.
const blockTimeCacheMax = 4096

// PancakeSwapAdapter ingests BNB prediction rounds from BSC event logs.
// Amounts arrive in wei, already at canonical precision.
type PancakeSwapAdapter struct {
	chain    *chain.Client
	contract common.Address
	retrier  *Retrier
	poll     time.Duration
	log      zerolog.Logger

	mu         sync.Mutex
	blockTimes map[uint64]time.Time
}

// NewPancakeSwap builds the adapter over an existing BSC connection.
func NewPancakeSwap(chainClient *chain.Client, retryCfg RetryConfig, pollInterval time.Duration, log zerolog.Logger) *PancakeSwapAdapter {
	return &PancakeSwapAdapter{
		chain:    chainClient,
		contract: common.HexToAddress(pancakePredictionContract),
		retrier:  NewRetrier("pancakeswap", retryCfg, log),
		poll:     pollInterval,
		log:      log,
	}
}

func (a *PancakeSwapAdapter) Platform() models.Platform { return models.PlatformPancakeSwap }

// Initialize verifies the RPC connection answers for the right chain.
func (a *PancakeSwapAdapter) Initialize(ctx context.Context) error {
	return a.retrier.Do(ctx, "initialize", func(ctx context.Context) error {
		_, err := a.chain.CurrentBlock(ctx)
		return err
	})
}

// CurrentSequence returns the contract's current epoch.
func (a *PancakeSwapAdapter) CurrentSequence(ctx context.Context) (uint64, error) {
	var epoch uint64
	err := a.retrier.Do(ctx, "currentEpoch", func(ctx context.Context) error {
		out, err := a.chain.Call(ctx, pancakePredictionContract, selectorCurrentEpoch)
		if err != nil {
			return err
		}
		if len(out) < 32 {
			return fmt.Errorf("short currentEpoch response: %d bytes", len(out))
		}
		epoch = new(big.Int).SetBytes(out[:32]).Uint64()
		return nil
	})
	return epoch, err
}

// GetBetsForUser scans recent event logs for the user's bets. The chain is
// the only source here, so there is no API-first step to fall back from.
func (a *PancakeSwapAdapter) GetBetsForUser(ctx context.Context, address string, since time.Time) ([]*models.Bet, error) {
	head, err := a.chain.CurrentBlock(ctx)
	if err != nil {
		return nil, err
	}

	// BSC produces a block every ~3s.
	lookback := uint64(time.Since(since).Seconds() / 3)
	from := uint64(0)
	if lookback < head {
		from = head - lookback
	}

	user := common.HexToHash(common.HexToAddress(address).Hex())
	q := ethereum.FilterQuery{
		Addresses: []common.Address{a.contract},
		Topics: [][]common.Hash{
			{topicBetBull, topicBetBear},
			{user},
		},
	}

	var bets []*models.Bet
	err = a.chain.FilterLogsChunked(ctx, q, from, head, func(logs []types.Log) error {
		for i := range logs {
			bet, err := a.parseBetLog(ctx, &logs[i])
			if err != nil {
				a.log.Warn().Err(err).Str("tx", logs[i].TxHash.Hex()).Msg("Skipping unparseable log")
				continue
			}
			bets = append(bets, bet)
		}
		return nil
	})
	return bets, err
}

// GetBetsForMarket returns every bet on one epoch.
func (a *PancakeSwapAdapter) GetBetsForMarket(ctx context.Context, marketID string) ([]*models.Bet, error) {
	epoch, ok := new(big.Int).SetString(marketID, 10)
	if !ok {
		return nil, fmt.Errorf("invalid epoch %q", marketID)
	}

	head, err := a.chain.CurrentBlock(ctx)
	if err != nil {
		return nil, err
	}
	// One epoch spans 5 minutes; a day of lookback is ample.
	from := uint64(0)
	if head > 28800 {
		from = head - 28800
	}

	q := ethereum.FilterQuery{
		Addresses: []common.Address{a.contract},
		Topics: [][]common.Hash{
			{topicBetBull, topicBetBear},
			nil,
			{common.BigToHash(epoch)},
		},
	}

	var bets []*models.Bet
	err = a.chain.FilterLogsChunked(ctx, q, from, head, func(logs []types.Log) error {
		for i := range logs {
			bet, err := a.parseBetLog(ctx, &logs[i])
			if err != nil {
				continue
			}
			bets = append(bets, bet)
		}
		return nil
	})
	return bets, err
}

// GetTraderBets returns the trader's latest bets, newest first.
func (a *PancakeSwapAdapter) GetTraderBets(ctx context.Context, address string, limit int) ([]*models.Bet, error) {
	bets, err := a.GetBetsForUser(ctx, address, time.Now().Add(-24*time.Hour))
	if err != nil {
		return nil, err
	}
	// Logs arrive oldest first.
	for i, j := 0, len(bets)-1; i < j; i, j = i+1, j-1 {
		bets[i], bets[j] = bets[j], bets[i]
	}
	if limit > 0 && len(bets) > limit {
		bets = bets[:limit]
	}
	return bets, nil
}

// GetRecentBets returns all venue bets inside the window.
func (a *PancakeSwapAdapter) GetRecentBets(ctx context.Context, window time.Duration, limit int) ([]*models.Bet, error) {
	head, err := a.chain.CurrentBlock(ctx)
	if err != nil {
		return nil, err
	}
	lookback := uint64(window.Seconds() / 3)
	from := uint64(0)
	if lookback < head {
		from = head - lookback
	}

	q := ethereum.FilterQuery{
		Addresses: []common.Address{a.contract},
		Topics:    [][]common.Hash{{topicBetBull, topicBetBear}},
	}

	var bets []*models.Bet
	err = a.chain.FilterLogsChunked(ctx, q, from, head, func(logs []types.Log) error {
		for i := range logs {
			bet, err := a.parseBetLog(ctx, &logs[i])
			if err != nil {
				continue
			}
			bets = append(bets, bet)
			if limit > 0 && len(bets) >= limit {
				return nil
			}
		}
		return nil
	})
	if limit > 0 && len(bets) > limit {
		bets = bets[:limit]
	}
	return bets, err
}

// GetMarketOutcome reads the round struct and compares lock and close
// prices. Equal prices are a draw: winner stays nil.
func (a *PancakeSwapAdapter) GetMarketOutcome(ctx context.Context, marketID string) (models.Outcome, error) {
	epoch, ok := new(big.Int).SetString(marketID, 10)
	if !ok {
		return models.Outcome{}, fmt.Errorf("invalid epoch %q", marketID)
	}

	var round pancakeRound
	err := a.retrier.Do(ctx, "rounds", func(ctx context.Context) error {
		data := append(append([]byte{}, selectorRounds...), common.BigToHash(epoch).Bytes()...)
		out, err := a.chain.Call(ctx, pancakePredictionContract, data)
		if err != nil {
			return err
		}
		return round.decode(out)
	})
	if err != nil {
		return models.Outcome{}, err
	}

	if !round.OracleCalled {
		return models.Outcome{Resolved: false}, nil
	}

	resolvedAt := time.Unix(round.CloseTimestamp, 0)
	out := models.Outcome{Resolved: true, ResolvedAt: &resolvedAt}
	switch round.ClosePrice.Cmp(round.LockPrice) {
	case 1:
		d := models.DirectionBull
		out.Winner = &d
	case -1:
		d := models.DirectionBear
		out.Winner = &d
	}
	return out, nil
}

// GetActiveMarkets returns the single live round.
func (a *PancakeSwapAdapter) GetActiveMarkets(ctx context.Context, limit int) ([]*models.Market, error) {
	epoch, err := a.CurrentSequence(ctx)
	if err != nil {
		return nil, err
	}
	m := &models.Market{
		ID:       fmt.Sprintf("%d", epoch),
		Platform: models.PlatformPancakeSwap,
		Title:    fmt.Sprintf("BNB/USD round %d", epoch),
		Category: "crypto",
		Active:   true,
	}
	return []*models.Market{m}, nil
}

// IsMarketActive reports whether the epoch is the current betting round.
func (a *PancakeSwapAdapter) IsMarketActive(ctx context.Context, marketID string) (bool, error) {
	current, err := a.CurrentSequence(ctx)
	if err != nil {
		return false, err
	}
	epoch, ok := new(big.Int).SetString(marketID, 10)
	if !ok {
		return false, fmt.Errorf("invalid epoch %q", marketID)
	}
	return epoch.Uint64() == current, nil
}

// Backfill streams historical bet events between two blocks.
func (a *PancakeSwapAdapter) Backfill(ctx context.Context, fromBlock, toBlock uint64, onBet BetHandler) error {
	q := ethereum.FilterQuery{
		Addresses: []common.Address{a.contract},
		Topics:    [][]common.Hash{{topicBetBull, topicBetBear}},
	}
	return a.chain.FilterLogsChunked(ctx, q, fromBlock, toBlock, func(logs []types.Log) error {
		found := 0
		for i := range logs {
			bet, err := a.parseBetLog(ctx, &logs[i])
			if err != nil {
				continue
			}
			onBet(bet)
			found++
		}
		a.log.Info().Str("platform", "pancakeswap").
			Uint64("from", logs[0].BlockNumber).Uint64("to", logs[len(logs)-1].BlockNumber).
			Int("found", found).Msg("Backfill chunk processed")
		return nil
	})
}

// Subscribe polls recent logs; the public BSC endpoints drop long-lived
// websocket filters too often to rely on push.
func (a *PancakeSwapAdapter) Subscribe(onBet BetHandler) (Disposer, error) {
	fetch := func(ctx context.Context) ([]*models.Bet, error) {
		return a.GetRecentBets(ctx, 2*a.poll, 0)
	}
	return startPolling(a.Platform(), a.poll, fetch, onBet, a.log), nil
}

// parseBetLog converts a BetBull/BetBear event into a canonical bet,
// stamped with the block's timestamp so backfilled bets keep their real
// placement time.
func (a *PancakeSwapAdapter) parseBetLog(ctx context.Context, l *types.Log) (*models.Bet, error) {
	if len(l.Topics) < 3 || len(l.Data) < 32 {
		return nil, fmt.Errorf("malformed bet log in tx %s", l.TxHash.Hex())
	}

	var direction models.Direction
	switch l.Topics[0] {
	case topicBetBull:
		direction = models.DirectionBull
	case topicBetBear:
		direction = models.DirectionBear
	default:
		return nil, fmt.Errorf("unexpected topic %s", l.Topics[0].Hex())
	}

	sender := common.BytesToAddress(l.Topics[1].Bytes())
	epoch := new(big.Int).SetBytes(l.Topics[2].Bytes())
	amountWei := new(big.Int).SetBytes(l.Data[:32])

	placedAt, err := a.blockTime(ctx, l.BlockNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to read block %d time: %w", l.BlockNumber, err)
	}

	return &models.Bet{
		ID:          fmt.Sprintf("%s-%d", l.TxHash.Hex(), l.Index),
		Trader:      models.NormalizeAddress(sender.Hex()),
		Platform:    models.PlatformPancakeSwap,
		MarketID:    epoch.String(),
		Direction:   direction,
		Amount:      decimal.NewFromBigInt(amountWei, 0), // wei is already 18-dec
		Timestamp:   placedAt,
		TxHash:      l.TxHash.Hex(),
		LogIndex:    l.Index,
		BlockNumber: l.BlockNumber,
	}, nil
}

// blockTime resolves a block's timestamp through a bounded per-adapter
// cache; every bet in one round shares a handful of blocks, so most lookups
// never reach the RPC.
func (a *PancakeSwapAdapter) blockTime(ctx context.Context, number uint64) (time.Time, error) {
	a.mu.Lock()
	ts, ok := a.blockTimes[number]
	a.mu.Unlock()
	if ok {
		return ts, nil
	}

	ts, err := a.chain.BlockTime(ctx, number)
	if err != nil {
		return time.Time{}, err
	}

	a.mu.Lock()
	if a.blockTimes == nil || len(a.blockTimes) >= blockTimeCacheMax {
		a.blockTimes = make(map[uint64]time.Time)
	}
	a.blockTimes[number] = ts
	a.mu.Unlock()
	return ts, nil
}

// pancakeRound mirrors the contract's rounds() return layout: fourteen
// 32-byte words.
type pancakeRound struct {
	Epoch          uint64
	StartTimestamp int64
	LockTimestamp  int64
	CloseTimestamp int64
	LockPrice      *big.Int
	ClosePrice     *big.Int
	TotalAmount    *big.Int
	BullAmount     *big.Int
	BearAmount     *big.Int
	OracleCalled   bool
}

func (r *pancakeRound) decode(out []byte) error {
	if len(out) < 14*32 {
		return fmt.Errorf("short rounds response: %d bytes", len(out))
	}
	word := func(i int) *big.Int {
		return new(big.Int).SetBytes(out[i*32 : (i+1)*32])
	}
	r.Epoch = word(0).Uint64()
	r.StartTimestamp = word(1).Int64()
	r.LockTimestamp = word(2).Int64()
	r.CloseTimestamp = word(3).Int64()
	r.LockPrice = word(4)
	r.ClosePrice = word(5)
	r.TotalAmount = word(8)
	r.BullAmount = word(9)
	r.BearAmount = word(10)
	r.OracleCalled = word(13).Sign() != 0
	return nil
}
