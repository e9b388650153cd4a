// Package chain wraps go-ethereum RPC access for the on-chain adapters:
// connection with chain-id verification, and chunked log backfill sized to
// what public RPC endpoints tolerate.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
)

// Backend is the subset of ethclient.Client the adapters use. Tests
// substitute a fake.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Client is a chain connection with backfill tuning.
type Client struct {
	backend    Backend
	chainID    int64
	blockChunk uint64
	chunkDelay time.Duration
	log        zerolog.Logger
}

// Options tunes a chain client.
type Options struct {
	ChainID    int64
	BlockChunk uint64        // FilterLogs range per request
	ChunkDelay time.Duration // pause between chunk requests
}

// Dial connects to an RPC endpoint and verifies the chain id matches.
func Dial(ctx context.Context, rpcURL string, opts Options, log zerolog.Logger) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc %s: %w", rpcURL, err)
	}

	c := NewWithBackend(ec, opts, log)
	id, err := ec.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query chain id: %w", err)
	}
	if opts.ChainID != 0 && id.Int64() != opts.ChainID {
		return nil, fmt.Errorf("chain id mismatch: endpoint reports %d, expected %d", id.Int64(), opts.ChainID)
	}

	log.Info().Int64("chain_id", id.Int64()).Str("rpc", rpcURL).Msg("Chain connected")
	return c, nil
}

// NewWithBackend wraps an existing backend.
func NewWithBackend(backend Backend, opts Options, log zerolog.Logger) *Client {
	if opts.BlockChunk == 0 {
		opts.BlockChunk = 2000
	}
	return &Client{
		backend:    backend,
		chainID:    opts.ChainID,
		blockChunk: opts.BlockChunk,
		chunkDelay: opts.ChunkDelay,
		log:        log,
	}
}

// ChainID returns the configured chain id.
func (c *Client) ChainID() int64 { return c.chainID }

// CurrentBlock returns the chain head number.
func (c *Client) CurrentBlock(ctx context.Context) (uint64, error) {
	n, err := c.backend.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get block number: %w", err)
	}
	return n, nil
}

// BlockTime returns a block's timestamp.
func (c *Client) BlockTime(ctx context.Context, number uint64) (time.Time, error) {
	header, err := c.backend.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get header %d: %w", number, err)
	}
	return time.Unix(int64(header.Time), 0), nil
}

// Call performs a read-only contract call at the chain head.
func (c *Client) Call(ctx context.Context, contract string, data []byte) ([]byte, error) {
	addr := common.HexToAddress(contract)
	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("contract call to %s failed: %w", contract, err)
	}
	return out, nil
}

// FilterLogsChunked walks [fromBlock, toBlock] in blockChunk-sized windows,
// invoking handle for each batch of logs. A failed chunk is retried once
// after a 10x delay, since public endpoints rate-limit bursty range scans;
// a chunk that fails twice is skipped so one bad window never aborts the
// rest of the backfill.
func (c *Client) FilterLogsChunked(ctx context.Context, q ethereum.FilterQuery, fromBlock, toBlock uint64, handle func([]types.Log) error) error {
	for start := fromBlock; start <= toBlock; start += c.blockChunk {
		end := start + c.blockChunk - 1
		if end > toBlock {
			end = toBlock
		}

		chunk := q
		chunk.FromBlock = new(big.Int).SetUint64(start)
		chunk.ToBlock = new(big.Int).SetUint64(end)

		logs, err := c.backend.FilterLogs(ctx, chunk)
		if err != nil {
			c.log.Warn().Err(err).Uint64("from", start).Uint64("to", end).
				Msg("FilterLogs chunk failed, backing off")
			select {
			case <-time.After(c.chunkDelay * 10):
			case <-ctx.Done():
				return ctx.Err()
			}
			if logs, err = c.backend.FilterLogs(ctx, chunk); err != nil {
				c.log.Error().Err(err).Uint64("from", start).Uint64("to", end).
					Msg("FilterLogs chunk failed twice, skipping range")
				continue
			}
		}

		if len(logs) > 0 {
			if err := handle(logs); err != nil {
				return err
			}
		}

		if c.chunkDelay > 0 && end < toBlock {
			select {
			case <-time.After(c.chunkDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}
