// Package signer abstracts Ethereum-compatible signing behind one capability
// interface, with tagged-variant implementations (local key, cloud KMS)
// rather than runtime type-switching on the caller's input, per the
// duck-typed-signer Design Note this module replaces.
package signer

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// TxRequest is the unsigned shape of a transaction a Signer is asked to
// sign. To is nil for contract creation; for the blob transaction engine it
// is always populated (§4.D always sets to = 0x0).
type TxRequest struct {
	ChainID         *big.Int
	Nonce           uint64
	To              *common.Address
	Value           *big.Int
	Data            []byte
	GasLimit        uint64
	GasTipCap       *big.Int
	GasFeeCap       *big.Int
	BlobFeeCap      *big.Int
	BlobHashes      []common.Hash
	BlobVersion7594 bool
	WrapperVersion  uint64
	BlobSidecar     *types.BlobTxSidecar
}

// TypedDataDomain and TypedDataValue are intentionally untyped pass-through
// maps: signTypedData's EIP-712 schema is defined by the caller, the signer
// only needs to hash and sign it.
type TypedDataDomain map[string]any
type TypedDataValue map[string]any

// Signer is the capability contract every backend (local key, KMS) must
// satisfy. Signatures returned by SignRawDigest and embedded by
// SignTransaction are always 65-byte Ethereum (r,s,v) values with a
// low-S-normalized s and a recovery id the caller can reconstruct the
// address from.
type Signer interface {
	// Address returns the Ethereum address this signer signs for.
	Address() common.Address
	// SignMessage signs an arbitrary message using the EIP-191 personal
	// message prefix.
	SignMessage(ctx context.Context, msg []byte) ([]byte, error)
	// SignTypedData signs the keccak256 of a key-ordered concatenation of
	// domain, schema and value (see encodeTypedData); it does not perform
	// EIP-712 type-hash encoding.
	SignTypedData(ctx context.Context, domain TypedDataDomain, schema TypedDataValue, value map[string]any) ([]byte, error)
	// SignTransaction builds the unsigned payload from an already-resolved
	// `to` address, hashes it, signs, and returns a fully signed
	// transaction. No ENS name resolution is performed.
	SignTransaction(ctx context.Context, tx TxRequest) (*types.Transaction, error)
	// SignRawDigest signs a pre-hashed 32-byte digest directly, returning a
	// 65-byte r||s||v signature with low-S applied and v in {27,28}.
	SignRawDigest(ctx context.Context, digest [32]byte) ([65]byte, error)
}
