package signer

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// buildUnsignedTx assembles a Cancun-era transaction from a TxRequest. When
// BlobHashes is non-empty the result is a Type-3 (BlobTx) transaction;
// otherwise it is a Type-2 (DynamicFeeTx), used for the completion-call
// transactions the retry queue drives.
func buildUnsignedTx(req TxRequest) *types.Transaction {
	if len(req.BlobHashes) > 0 {
		return types.NewTx(&types.BlobTx{
			ChainID:    uint256.MustFromBig(req.ChainID),
			Nonce:      req.Nonce,
			GasTipCap:  uint256.MustFromBig(req.GasTipCap),
			GasFeeCap:  uint256.MustFromBig(req.GasFeeCap),
			Gas:        req.GasLimit,
			To:         addrOrZero(req.To),
			Value:      uint256.MustFromBig(valueOrZero(req.Value)),
			Data:       req.Data,
			BlobFeeCap: uint256.MustFromBig(req.BlobFeeCap),
			BlobHashes: req.BlobHashes,
			Sidecar:    req.BlobSidecar,
		})
	}
	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   req.ChainID,
		Nonce:     req.Nonce,
		GasTipCap: req.GasTipCap,
		GasFeeCap: req.GasFeeCap,
		Gas:       req.GasLimit,
		To:        req.To,
		Value:     valueOrZero(req.Value),
		Data:      req.Data,
	})
}

func addrOrZero(a *common.Address) common.Address {
	if a == nil {
		return common.Address{}
	}
	return *a
}

func valueOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}
