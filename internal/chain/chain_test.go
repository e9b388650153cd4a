package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	head     uint64
	calls    []ethereum.FilterQuery
	failures int // fail this many FilterLogs calls before succeeding
	logs     []types.Log
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) { return big.NewInt(56), nil }

func (f *fakeBackend) BlockNumber(context.Context) (uint64, error) { return f.head, nil }

func (f *fakeBackend) HeaderByNumber(_ context.Context, n *big.Int) (*types.Header, error) {
	return &types.Header{Number: n, Time: 1_700_000_000}, nil
}

func (f *fakeBackend) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return nil, nil
}

func (f *fakeBackend) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.calls = append(f.calls, q)
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("rate limited")
	}
	return f.logs, nil
}

func TestFilterLogsChunkedSplitsRange(t *testing.T) {
	fake := &fakeBackend{logs: []types.Log{{BlockNumber: 1}}}
	c := NewWithBackend(fake, Options{ChainID: 56, BlockChunk: 2000}, zerolog.Nop())

	var batches int
	err := c.FilterLogsChunked(context.Background(), ethereum.FilterQuery{},
		100, 5099, func(logs []types.Log) error {
			batches++
			return nil
		})
	require.NoError(t, err)

	// 100-2099, 2100-4099, 4100-5099.
	require.Len(t, fake.calls, 3)
	assert.Equal(t, uint64(100), fake.calls[0].FromBlock.Uint64())
	assert.Equal(t, uint64(2099), fake.calls[0].ToBlock.Uint64())
	assert.Equal(t, uint64(4100), fake.calls[2].FromBlock.Uint64())
	assert.Equal(t, uint64(5099), fake.calls[2].ToBlock.Uint64())
	assert.Equal(t, 3, batches)
}

func TestFilterLogsChunkedRetriesOnce(t *testing.T) {
	fake := &fakeBackend{failures: 1, logs: []types.Log{{BlockNumber: 1}}}
	c := NewWithBackend(fake, Options{BlockChunk: 100}, zerolog.Nop())

	var batches int
	err := c.FilterLogsChunked(context.Background(), ethereum.FilterQuery{},
		0, 99, func([]types.Log) error {
			batches++
			return nil
		})
	require.NoError(t, err)
	assert.Len(t, fake.calls, 2)
	assert.Equal(t, 1, batches)
}

func TestFilterLogsChunkedSkipsChunkAfterRetry(t *testing.T) {
	// The first chunk fails both attempts; the walk moves on and the second
	// chunk still lands.
	fake := &fakeBackend{failures: 2, logs: []types.Log{{BlockNumber: 150}}}
	c := NewWithBackend(fake, Options{BlockChunk: 100}, zerolog.Nop())

	var batches int
	err := c.FilterLogsChunked(context.Background(), ethereum.FilterQuery{},
		0, 199, func([]types.Log) error {
			batches++
			return nil
		})
	require.NoError(t, err)
	// Two attempts on 0-99, one on 100-199.
	assert.Len(t, fake.calls, 3)
	assert.Equal(t, 1, batches)
	assert.Equal(t, uint64(100), fake.calls[2].FromBlock.Uint64())
}

func TestFilterLogsChunkedPropagatesHandlerError(t *testing.T) {
	fake := &fakeBackend{logs: []types.Log{{BlockNumber: 7}}}
	c := NewWithBackend(fake, Options{BlockChunk: 50}, zerolog.Nop())

	boom := errors.New("boom")
	err := c.FilterLogsChunked(context.Background(), ethereum.FilterQuery{},
		0, 49, func([]types.Log) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestCurrentBlockAndBlockTime(t *testing.T) {
	fake := &fakeBackend{head: 42}
	c := NewWithBackend(fake, Options{}, zerolog.Nop())

	head, err := c.CurrentBlock(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(42), head)

	ts, err := c.BlockTime(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, int64(1_700_000_000), ts.Unix())
}
