package web3

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	gethkzg "github.com/ethereum/go-ethereum/crypto/kzg4844"

	"github.com/ethcf/blobkit-proxy/crypto/blobs"
	"github.com/ethcf/blobkit-proxy/crypto/signer"
	"github.com/ethcf/blobkit-proxy/feeoracle"
	"github.com/ethcf/blobkit-proxy/log"
	"github.com/ethcf/blobkit-proxy/store"
)

// zeroAddress is the blob transaction's `to` field per §4.D step 5: blob
// carrier transactions target no contract.
var zeroAddress = common.Address{}

// defaultGasLimitFallback is used when eth_estimateGas fails outright.
const defaultGasLimitFallback = 200_000

// gasEstimateMultiplierNum/Den apply the 110/100 safety margin to a
// successful gas estimate, per §4.D step 6.
const (
	gasEstimateMultiplierNum = 110
	gasEstimateMultiplierDen = 100
)

// defaultTxTimeout is the confirmation wait bound absent a config
// override, per §6's txTimeoutMs default.
const defaultTxTimeout = 120 * time.Second

// Engine is the Blob Transaction Engine: it turns a payload into a
// broadcast, confirmed EIP-4844 (or EIP-7594) blob transaction.
type Engine struct {
	chain     *Client
	kzg       *blobs.Engine
	fees      *feeoracle.Oracle
	signer    signer.Signer
	chainID   *big.Int
	txTimeout time.Duration
	beacon    *BeaconConfirmer
}

// NewEngine constructs a Blob Transaction Engine.
func NewEngine(chain *Client, kzg *blobs.Engine, fees *feeoracle.Oracle, s signer.Signer, chainID *big.Int, txTimeout time.Duration) *Engine {
	if txTimeout <= 0 {
		txTimeout = defaultTxTimeout
	}
	return &Engine{chain: chain, kzg: kzg, fees: fees, signer: s, chainID: chainID, txTimeout: txTimeout}
}

// WithBeaconConfirmer attaches an optional consensus-layer cross-check,
// run best-effort after execution-layer confirmation. Passing nil is a
// no-op, so callers can always do `engine.WithBeaconConfirmer(NewBeaconConfirmer(cfg.BeaconAPIURL))`.
func (e *Engine) WithBeaconConfirmer(b *BeaconConfirmer) *Engine {
	e.beacon = b
	return e
}

// SubmitBlob implements the §4.D protocol: encode, commit, derive fees,
// sign, broadcast, and wait for inclusion.
func (e *Engine) SubmitBlob(ctx context.Context, payload []byte, meta map[string]string, version blobs.Version) (store.BlobReceipt, error) {
	sidecar, err := blobs.BuildSidecar(e.kzg, payload, version)
	if err != nil {
		return store.BlobReceipt{}, fmt.Errorf("build blob sidecar: %w", err)
	}

	gethSidecar, err := toGethSidecar(sidecar)
	if err != nil {
		return store.BlobReceipt{}, fmt.Errorf("convert blob sidecar: %w", err)
	}

	from := e.signer.Address()
	nonce, err := e.chain.PendingNonceAt(ctx, from)
	if err != nil {
		return store.BlobReceipt{}, fmt.Errorf("pending nonce: %w", err)
	}

	feeQuote, err := e.fees.SuggestFees(ctx, 1)
	if err != nil {
		return store.BlobReceipt{}, fmt.Errorf("suggest fees: %w", err)
	}

	gasLimit := e.estimateGas(ctx, from, gethSidecar, feeQuote)

	to := zeroAddress
	req := signer.TxRequest{
		ChainID:     e.chainID,
		Nonce:       nonce,
		To:          &to,
		Value:       big.NewInt(0),
		Data:        nil,
		GasLimit:    gasLimit,
		GasTipCap:   feeQuote.MaxPriorityFeePerGas,
		GasFeeCap:   feeQuote.MaxFeePerGas,
		BlobFeeCap:  feeQuote.MaxFeePerBlobGas,
		BlobHashes:  gethSidecar.BlobHashes(),
		BlobSidecar: gethSidecar,
	}

	signedTx, err := e.signer.SignTransaction(ctx, req)
	if err != nil {
		return store.BlobReceipt{}, fmt.Errorf("sign blob transaction: %w", err)
	}

	if err := e.chain.eth.SendTransaction(ctx, signedTx); err != nil {
		return store.BlobReceipt{}, fmt.Errorf("broadcast blob transaction: %w", truncateBroadcastError(err))
	}

	receipt, err := e.waitForReceipt(ctx, signedTx.Hash())
	if err != nil {
		return store.BlobReceipt{}, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return store.BlobReceipt{}, fmt.Errorf("blob transaction reverted: tx %s", signedTx.Hash())
	}

	if e.beacon != nil {
		if hdr, hdrErr := e.chain.HeaderByHash(ctx, receipt.BlockHash); hdrErr == nil {
			confirmBestEffort(ctx, e.beacon, hdr.ParentBeaconRoot, signedTx.Hash())
		}
	}

	proofs := make([]string, len(sidecar.Proofs))
	for i, p := range sidecar.Proofs {
		proofs[i] = "0x" + hex.EncodeToString(p[:])
	}

	return store.BlobReceipt{
		BlobTxHash:        signedTx.Hash().Hex(),
		BlockNumber:       receipt.BlockNumber.Uint64(),
		BlobVersionedHash: "0x" + hex.EncodeToString(sidecar.VersionedHash[:]),
		Commitment:        "0x" + hex.EncodeToString(sidecar.Commitment[:]),
		Proofs:            proofs,
		BlobIndex:         0,
		Meta:              meta,
	}, nil
}

// estimateGas implements §4.D step 6: estimate, scale by 110/100, fall back to
// a constant on failure.
func (e *Engine) estimateGas(ctx context.Context, from common.Address, sidecar *types.BlobTxSidecar, fees feeoracle.Suggestion) uint64 {
	call := ethereum.CallMsg{
		From:          from,
		To:            &zeroAddress,
		GasFeeCap:     fees.MaxFeePerGas,
		GasTipCap:     fees.MaxPriorityFeePerGas,
		BlobGasFeeCap: fees.MaxFeePerBlobGas,
		BlobHashes:    sidecar.BlobHashes(),
	}
	est, err := e.chain.eth.EstimateGas(ctx, call)
	if err != nil {
		log.Warnw("gas estimate failed, using fallback", "error", err, "fallback", defaultGasLimitFallback)
		return defaultGasLimitFallback
	}
	return est * gasEstimateMultiplierNum / gasEstimateMultiplierDen
}

// waitForReceipt polls for a mined receipt until e.txTimeout elapses.
func (e *Engine) waitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return waitForTxReceipt(ctx, e.chain, txHash, e.txTimeout)
}

// waitForTxReceipt polls chain for txHash's receipt until timeout elapses.
// Shared by the Blob Transaction Engine and the completion-call Completer.
func waitForTxReceipt(ctx context.Context, chain *Client, txHash common.Hash, timeout time.Duration) (*types.Receipt, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		receipt, err := chain.eth.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("timed out waiting for transaction %s to confirm", txHash)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// toGethSidecar converts the KZG Engine's crate-crypto-typed Sidecar into
// go-ethereum's wire-level BlobTxSidecar, the shape types.BlobTx and
// SendTransaction expect.
func toGethSidecar(sc *blobs.Sidecar) (*types.BlobTxSidecar, error) {
	var blob gethkzg.Blob
	copy(blob[:], sc.Blob[:])
	var commitment gethkzg.Commitment
	copy(commitment[:], sc.Commitment[:])

	out := &types.BlobTxSidecar{
		Blobs:       []gethkzg.Blob{blob},
		Commitments: []gethkzg.Commitment{commitment},
	}
	for _, p := range sc.Proofs {
		var proof gethkzg.Proof
		copy(proof[:], p[:])
		out.Proofs = append(out.Proofs, proof)
	}
	if sc.Version == blobs.V4844 {
		if err := out.ToV1(); err != nil {
			return nil, fmt.Errorf("convert sidecar to v1 wrapper: %w", err)
		}
	}
	return out, nil
}

// errorTruncationLimit and the split point implement §4.D's error
// truncation rule: full messages over 4000 chars are cut down to the
// first 2000 (or up to the first "params" occurrence, if earlier) plus a
// marker plus the final 2000 chars.
const (
	errorTruncationLimit = 4000
	errorTruncationHead  = 2000
	errorTruncationTail  = 2000
)

func truncateBroadcastError(err error) error {
	msg := err.Error()
	if len(msg) <= errorTruncationLimit {
		return err
	}
	head := errorTruncationHead
	if idx := strings.Index(msg, "params"); idx >= 0 && idx < head {
		head = idx
	}
	tailStart := len(msg) - errorTruncationTail
	if tailStart < head {
		tailStart = head
	}
	return fmt.Errorf("%s...[truncated]...%s", msg[:head], msg[tailStart:])
}
