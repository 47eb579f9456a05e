package web3

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/ethcf/blobkit-proxy/crypto/signer"
)

// Completer drives the retry queue's on-chain completeJob call: sign and
// broadcast a Type-2 transaction carrying the packed calldata, then wait
// for inclusion.
type Completer struct {
	chain     *Client
	escrow    *Escrow
	signer    signer.Signer
	chainID   *big.Int
	txTimeout time.Duration
}

// NewCompleter constructs a Completer.
func NewCompleter(chain *Client, escrow *Escrow, s signer.Signer, chainID *big.Int, txTimeout time.Duration) *Completer {
	if txTimeout <= 0 {
		txTimeout = defaultTxTimeout
	}
	return &Completer{chain: chain, escrow: escrow, signer: s, chainID: chainID, txTimeout: txTimeout}
}

// CompleteJob calls the escrow's completeJob(jobId, blobTxHash, proof).
// A revert is tolerated as a no-op when the job turns out to already be
// completed (the idempotence property §4.E relies on): the retry queue
// may legitimately replay this call after a crash recovery.
func (c *Completer) CompleteJob(ctx context.Context, jobID, blobTxHash [32]byte, proof []byte) error {
	data, err := c.escrow.PackCompleteJob(jobID, blobTxHash, proof)
	if err != nil {
		return fmt.Errorf("pack completeJob: %w", err)
	}

	from := c.signer.Address()
	nonce, err := c.chain.PendingNonceAt(ctx, from)
	if err != nil {
		return fmt.Errorf("pending nonce: %w", err)
	}
	tip, err := c.chain.SuggestGasTipCap(ctx)
	if err != nil {
		return fmt.Errorf("suggest gas tip cap: %w", err)
	}
	header, err := c.chain.LatestHeader(ctx)
	if err != nil {
		return fmt.Errorf("latest header: %w", err)
	}
	feeCap := new(big.Int).Add(new(big.Int).Mul(header.BaseFeePerGas, big.NewInt(2)), tip)

	escrowAddr := c.escrow.Address()
	req := signer.TxRequest{
		ChainID:   c.chainID,
		Nonce:     nonce,
		To:        &escrowAddr,
		Value:     big.NewInt(0),
		Data:      data,
		GasLimit:  c.estimateGas(ctx, from, escrowAddr, data),
		GasTipCap: tip,
		GasFeeCap: feeCap,
	}

	signedTx, err := c.signer.SignTransaction(ctx, req)
	if err != nil {
		return fmt.Errorf("sign completeJob transaction: %w", err)
	}
	if err := c.chain.eth.SendTransaction(ctx, signedTx); err != nil {
		return fmt.Errorf("broadcast completeJob transaction: %w", truncateBroadcastError(err))
	}

	txHash := signedTx.Hash()
	receipt, err := waitForTxReceipt(ctx, c.chain, txHash, c.txTimeout)
	if err != nil {
		return err
	}
	if receipt.Status == 1 {
		return nil
	}

	job, jobErr := c.escrow.GetJob(ctx, jobID)
	if jobErr == nil && job.Completed {
		return nil
	}
	return fmt.Errorf("completeJob transaction %s reverted", txHash)
}

func (c *Completer) estimateGas(ctx context.Context, from, to common.Address, data []byte) uint64 {
	est, err := c.chain.eth.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Data: data})
	if err != nil {
		return defaultGasLimitFallback
	}
	return est * gasEstimateMultiplierNum / gasEstimateMultiplierDen
}
