// Package web3 wraps the single configured JSON-RPC endpoint the proxy
// talks to: chain reads for the fee oracle, escrow contract calls, and
// blob transaction broadcast.
package web3

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/ethcf/blobkit-proxy/feeoracle"
	"github.com/ethcf/blobkit-proxy/log"
)

// rpcReadyPollInterval bounds how often Dial re-polls BlockNumber while a
// reachable RPC endpoint still reports block 0.
const rpcReadyPollInterval = 500 * time.Millisecond

// Client is a thin, thread-safe wrapper around ethclient.Client. One
// instance is shared across all request goroutines and the retry queue,
// per the "shared resources" model.
type Client struct {
	eth *ethclient.Client
}

var _ feeoracle.ChainReader = (*Client)(nil)

// Dial connects to rpcURL and waits for it to report a non-zero block
// number before returning. An endpoint that cannot be reached makes Dial
// fail at once instead of later, mid-submission.
func Dial(ctx context.Context, rpcURL string) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial RPC endpoint: %w", err)
	}
	c := &Client{eth: eth}
	if err := c.waitReady(ctx, rpcURL); err != nil {
		eth.Close()
		return nil, err
	}
	return c, nil
}

// waitReady polls BlockNumber until it returns a non-zero value or ctx is
// canceled; an error from BlockNumber is returned at once.
func (c *Client) waitReady(ctx context.Context, rpcURL string) error {
	log.Debugw("waiting for RPC to be ready", "url", rpcURL)
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context canceled while waiting for RPC to be ready: %w", ctx.Err())
		default:
			blockNumber, err := c.eth.BlockNumber(ctx)
			if err != nil {
				return fmt.Errorf("RPC endpoint unreachable: %w", err)
			}
			if blockNumber > 0 {
				log.Infow("RPC is ready", "url", rpcURL, "blockNumber", blockNumber)
				return nil
			}
			time.Sleep(rpcReadyPollInterval)
		}
	}
}

// Raw exposes the underlying ethclient.Client for callers (the escrow
// binding, blob broadcast) that need the full surface.
func (c *Client) Raw() *ethclient.Client { return c.eth }

// Close releases the underlying connection.
func (c *Client) Close() { c.eth.Close() }

// LatestHeader implements feeoracle.ChainReader.
func (c *Client) LatestHeader(ctx context.Context) (*feeoracle.Header, error) {
	h, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("header by number: %w", err)
	}
	return &feeoracle.Header{
		BaseFeePerGas: h.BaseFee,
		ExcessBlobGas: excessBlobGasOf(h),
	}, nil
}

// excessBlobGasOf returns h.ExcessBlobGas as *big.Int, or nil on a
// pre-Cancun header.
func excessBlobGasOf(h *types.Header) *big.Int {
	if h.ExcessBlobGas == nil {
		return nil
	}
	return new(big.Int).SetUint64(*h.ExcessBlobGas)
}

// SuggestGasTipCap implements feeoracle.ChainReader.
func (c *Client) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return c.eth.SuggestGasTipCap(ctx)
}

// FeeHistory implements feeoracle.ChainReader, translating go-ethereum's
// FeeHistory RPC result into the oracle's minimal shape.
func (c *Client) FeeHistory(ctx context.Context, blockCount uint64) (*feeoracle.FeeHistory, error) {
	hist, err := c.eth.FeeHistory(ctx, blockCount, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("fee history: %w", err)
	}
	return &feeoracle.FeeHistory{BaseFeePerBlobGas: hist.BaseFeePerBlobGas}, nil
}

// ChainID returns the network's chain id.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	return c.eth.ChainID(ctx)
}

// PendingNonceAt returns the next nonce to use for addr.
func (c *Client) PendingNonceAt(ctx context.Context, addr common.Address) (uint64, error) {
	return c.eth.PendingNonceAt(ctx, addr)
}

// HeaderByHash returns the execution header for blockHash, used to recover
// the EIP-4788 parent beacon root for the consensus-layer cross-check.
func (c *Client) HeaderByHash(ctx context.Context, blockHash common.Hash) (*types.Header, error) {
	return c.eth.HeaderByHash(ctx, blockHash)
}
