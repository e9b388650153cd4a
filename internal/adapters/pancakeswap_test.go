package adapters

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truthplane/engine/internal/chain"
	"github.com/truthplane/engine/internal/models"
)

// bscBackend fakes just enough of the chain for log parsing: blocks arrive
// every 3 seconds from a fixed genesis time.
type bscBackend struct {
	headerCalls int
}

func (b *bscBackend) ChainID(context.Context) (*big.Int, error) { return big.NewInt(56), nil }

func (b *bscBackend) BlockNumber(context.Context) (uint64, error) { return 5000, nil }

func (b *bscBackend) HeaderByNumber(_ context.Context, n *big.Int) (*types.Header, error) {
	b.headerCalls++
	return &types.Header{Number: n, Time: 1_700_000_000 + n.Uint64()*3}, nil
}

func (b *bscBackend) FilterLogs(context.Context, ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}

func (b *bscBackend) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return nil, nil
}

func newTestPancake() (*PancakeSwapAdapter, *bscBackend) {
	cfg := RetryConfig{MaxAttempts: 1, BaseDelay: time.Millisecond, RequestTimeout: time.Second}
	backend := &bscBackend{}
	a := NewPancakeSwap(
		chain.NewWithBackend(backend, chain.Options{ChainID: 56}, zerolog.Nop()),
		cfg, time.Second, zerolog.Nop())
	return a, backend
}

func betLog(topic common.Hash, sender common.Address, epoch, amountWei int64) *types.Log {
	data := make([]byte, 32)
	big.NewInt(amountWei).FillBytes(data)
	return &types.Log{
		Topics: []common.Hash{
			topic,
			common.HexToHash(sender.Hex()),
			common.BigToHash(big.NewInt(epoch)),
		},
		Data:        data,
		TxHash:      common.HexToHash("0xdead"),
		Index:       3,
		BlockNumber: 1000,
	}
}

func TestParseBetLogBull(t *testing.T) {
	a, _ := newTestPancake()
	sender := common.HexToAddress("0xAbCdEF0123456789abcdef0123456789ABCDEF01")

	bet, err := a.parseBetLog(context.Background(), betLog(topicBetBull, sender, 4102, 100_000_000_000_000_000))
	require.NoError(t, err)

	assert.Equal(t, models.PlatformPancakeSwap, bet.Platform)
	assert.Equal(t, models.DirectionBull, bet.Direction)
	assert.Equal(t, "4102", bet.MarketID)
	// Lowercased at ingress.
	assert.Equal(t, "0xabcdef0123456789abcdef0123456789abcdef01", bet.Trader)
	// Wei passes through at canonical precision: 0.1 BNB.
	assert.Equal(t, "100000000000000000", bet.Amount.String())
	assert.Equal(t, 0.1, models.NativeUnits(bet.Amount))
	assert.Equal(t, uint(3), bet.LogIndex)
	assert.Equal(t, uint64(1000), bet.BlockNumber)
}

func TestParseBetLogStampsBlockTime(t *testing.T) {
	a, backend := newTestPancake()

	bet, err := a.parseBetLog(context.Background(), betLog(topicBetBull, common.HexToAddress("0x1"), 4102, 1))
	require.NoError(t, err)
	// Block 1000 at genesis + 3s per block, not ingestion time.
	assert.Equal(t, int64(1_700_003_000), bet.Timestamp.Unix())

	// A second log in the same block hits the cache.
	_, err = a.parseBetLog(context.Background(), betLog(topicBetBear, common.HexToAddress("0x2"), 4102, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, backend.headerCalls)
}

func TestParseBetLogBear(t *testing.T) {
	a, _ := newTestPancake()
	bet, err := a.parseBetLog(context.Background(), betLog(topicBetBear, common.HexToAddress("0x1"), 7, 1))
	require.NoError(t, err)
	assert.Equal(t, models.DirectionBear, bet.Direction)
}

func TestParseBetLogRejectsMalformed(t *testing.T) {
	a, _ := newTestPancake()
	_, err := a.parseBetLog(context.Background(), &types.Log{Topics: []common.Hash{topicBetBull}})
	assert.Error(t, err)
}

func TestNaturalKeyStableAcrossRedelivery(t *testing.T) {
	a, _ := newTestPancake()
	l := betLog(topicBetBull, common.HexToAddress("0x2"), 10, 5)

	first, err := a.parseBetLog(context.Background(), l)
	require.NoError(t, err)
	second, err := a.parseBetLog(context.Background(), l)
	require.NoError(t, err)
	assert.Equal(t, first.NaturalKey(), second.NaturalKey())
}

func TestPancakeRoundDecode(t *testing.T) {
	out := make([]byte, 14*32)
	put := func(i int, v int64) {
		big.NewInt(v).FillBytes(out[i*32 : (i+1)*32])
	}
	put(0, 4102)          // epoch
	put(3, 1_700_000_300) // closeTimestamp
	put(4, 30000)         // lockPrice
	put(5, 31000)         // closePrice
	put(13, 1)            // oracleCalled

	var r pancakeRound
	require.NoError(t, r.decode(out))
	assert.Equal(t, uint64(4102), r.Epoch)
	assert.True(t, r.OracleCalled)
	// Close above lock: bull wins.
	assert.Equal(t, 1, r.ClosePrice.Cmp(r.LockPrice))
}

func TestPancakeRoundDecodeShortInput(t *testing.T) {
	var r pancakeRound
	assert.Error(t, r.decode(make([]byte, 10)))
}
