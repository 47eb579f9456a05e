package feeoracle

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethcf/blobkit-proxy/log"
)

// Header is the subset of a block header the oracle needs. ExcessBlobGas is
// nil on pre-Cancun chains.
type Header struct {
	BaseFeePerGas *big.Int
	ExcessBlobGas *big.Int
}

// FeeHistory is the subset of eth_feeHistory the EIP-7918 regime consumes:
// one entry per block, oldest first.
type FeeHistory struct {
	BaseFeePerBlobGas []*big.Int
}

// ChainReader is the minimal RPC surface the oracle needs. It is satisfied
// by a thin wrapper around ethclient.Client (see web3/client.go) or a fake
// in tests.
type ChainReader interface {
	LatestHeader(ctx context.Context) (*Header, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	FeeHistory(ctx context.Context, blockCount uint64) (*FeeHistory, error)
}

// Suggestion is the fee quote SuggestFees returns for a request intending to
// attach k blobs.
type Suggestion struct {
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	MaxFeePerBlobGas     *big.Int
	BlobFee              *big.Int
}

// oneGwei is the fallback priority fee and the pre-Cancun fallback blob
// fee, per §4.B.
var oneGwei = big.NewInt(1_000_000_000)

// Oracle derives fee suggestions from a chain reader. EIP7918 switches
// between the default fake-exponential regime and the 5-block
// maximum-baseFeePerBlobGas reserve-price regime.
type Oracle struct {
	chain   ChainReader
	EIP7918 bool
}

// New constructs an Oracle over the given chain reader.
func New(chain ChainReader, eip7918 bool) *Oracle {
	return &Oracle{chain: chain, EIP7918: eip7918}
}

// SuggestFees produces maxFeePerGas, maxPriorityFeePerGas, maxFeePerBlobGas,
// and the total expected blobFee for k blobs, per §4.B.
func (o *Oracle) SuggestFees(ctx context.Context, k int) (Suggestion, error) {
	header, err := o.chain.LatestHeader(ctx)
	if err != nil {
		return Suggestion{}, fmt.Errorf("latest header: %w", err)
	}
	if header.BaseFeePerGas == nil {
		return Suggestion{}, fmt.Errorf("no base fee in latest header (pre-london chain)")
	}

	tip, err := o.chain.SuggestGasTipCap(ctx)
	if err != nil {
		return Suggestion{}, fmt.Errorf("suggest tip: %w", err)
	}
	if tip == nil {
		tip = new(big.Int).Set(oneGwei)
	}

	maxFeePerGas := new(big.Int).Mul(header.BaseFeePerGas, big.NewInt(2))
	maxFeePerGas.Add(maxFeePerGas, tip)

	if header.ExcessBlobGas == nil {
		log.Warnw("pre-Cancun header: no excessBlobGas, falling back to 1 gwei blob fee")
		return Suggestion{
			MaxFeePerGas:         maxFeePerGas,
			MaxPriorityFeePerGas: tip,
			MaxFeePerBlobGas:     new(big.Int).Set(oneGwei),
			BlobFee:              new(big.Int).Set(oneGwei),
		}, nil
	}

	maxFeePerBlobGas, blobFee, err := o.blobFee(ctx, header, k)
	if err != nil {
		return Suggestion{}, err
	}

	return Suggestion{
		MaxFeePerGas:         maxFeePerGas,
		MaxPriorityFeePerGas: tip,
		MaxFeePerBlobGas:     maxFeePerBlobGas,
		BlobFee:              blobFee,
	}, nil
}

// blobFee computes maxFeePerBlobGas and the total blobFee for k blobs,
// switching regimes per the EIP7918 flag.
func (o *Oracle) blobFee(ctx context.Context, header *Header, k int) (maxFeePerBlobGas, blobFee *big.Int, err error) {
	blobs := big.NewInt(int64(k))
	blobBytes := big.NewInt(BytesPerBlob)

	if !o.EIP7918 {
		basePerBlobGas := fakeExponential(MinBaseFeePerBlobGas, header.ExcessBlobGas, BlobBaseFeeUpdateFraction)
		fee := new(big.Int).Mul(basePerBlobGas, blobBytes)
		fee.Mul(fee, blobs)
		return basePerBlobGas, fee, nil
	}

	history, err := o.chain.FeeHistory(ctx, 5)
	if err != nil {
		return nil, nil, fmt.Errorf("fee history: %w", err)
	}
	maxOverWindow := big.NewInt(0)
	for _, f := range history.BaseFeePerBlobGas {
		if f != nil && f.Cmp(maxOverWindow) > 0 {
			maxOverWindow = f
		}
	}
	fee := new(big.Int).Mul(maxOverWindow, blobBytes)
	fee.Mul(fee, blobs)
	return maxOverWindow, fee, nil
}
