// Package blobs implements the EIP-4844 (and optional EIP-7594) blob KZG
// engine: field-element encoding, commitment and proof generation, and
// versioned-hash derivation.
package blobs

import (
	"crypto/sha256"
	"fmt"
	"sync"

	goethkzg "github.com/crate-crypto/go-eth-kzg"
	gethkzg "github.com/ethereum/go-ethereum/crypto/kzg4844"
)

// Version selects which proof shape computeProofs produces.
type Version int

const (
	// V4844 produces a single opening proof (EIP-4844, Cancun).
	V4844 Version = iota
	// V7594 produces one proof per cell (EIP-7594 / PeerDAS).
	V7594
)

// CellProofsPerBlob is the number of per-cell proofs an EIP-7594 blob
// carries (EIP-7594 CELLS_PER_EXT_BLOB).
const CellProofsPerBlob = 128

// Engine wraps a loaded KZG trusted setup. It is safe for concurrent use
// once constructed; construction itself is guarded by a start-up latch so
// that the first caller to need the setup blocks everyone else instead of
// racing a package-level global.
//
// This replaces the donor's module-level `init()` + panic-on-failure
// pattern (crypto/blobs/blobs.go in the donor) with an explicit handle
// threaded in from the composition root, per the Design Notes.
type Engine struct {
	once sync.Once
	ctx  *goethkzg.Context
	err  error
}

// NewEngine returns an Engine whose trusted setup is loaded lazily, on
// first use, under once.Do. Call Warm to load it eagerly instead.
func NewEngine() *Engine {
	return &Engine{}
}

// Warm forces the trusted setup to load immediately, blocking until ready.
// Call this from the composition root at startup so that the first request
// doesn't pay the load latency.
func (e *Engine) Warm() error {
	return e.init()
}

func (e *Engine) init() error {
	e.once.Do(func() {
		ctx, err := goethkzg.NewContext4096Secure()
		if err != nil {
			e.err = fmt.Errorf("load KZG trusted setup: %w", err)
			return
		}
		e.ctx = ctx
	})
	return e.err
}

// Commit computes the 48-byte KZG commitment for a 131072-byte blob.
func (e *Engine) Commit(blob *goethkzg.Blob) (goethkzg.KZGCommitment, error) {
	if err := e.init(); err != nil {
		return goethkzg.KZGCommitment{}, err
	}
	return e.ctx.BlobToKZGCommitment(blob, numGoRoutines)
}

// ComputeProofs returns the opening proof(s) for a blob and its commitment.
// V4844 returns exactly one proof keyed at a single evaluation point derived
// from the commitment (the standard EIP-4844 single-proof form); V7594
// returns one proof per cell.
func (e *Engine) ComputeProofs(blob *goethkzg.Blob, commitment goethkzg.KZGCommitment, version Version) ([]goethkzg.KZGProof, error) {
	if err := e.init(); err != nil {
		return nil, err
	}
	switch version {
	case V4844:
		proof, err := e.ctx.ComputeBlobKZGProof(blob, commitment, numGoRoutines)
		if err != nil {
			return nil, fmt.Errorf("compute blob proof: %w", err)
		}
		return []goethkzg.KZGProof{proof}, nil
	case V7594:
		_, cellProofs, err := e.ctx.ComputeCellsAndKZGProofs(blob, numGoRoutines)
		if err != nil {
			return nil, fmt.Errorf("compute cell proofs: %w", err)
		}
		return cellProofs, nil
	default:
		return nil, fmt.Errorf("unknown blob version %d", version)
	}
}

// CommitmentToVersionedHash derives the 32-byte versioned hash
// 0x01 || sha256(commitment)[1:] from a 48-byte KZG commitment, using
// go-ethereum's canonical implementation so the result matches what any
// Cancun-aware execution client computes.
func CommitmentToVersionedHash(commitment [48]byte) [32]byte {
	return gethkzg.CalcBlobHashV1(sha256.New(), (*gethkzg.Commitment)(&commitment))
}

// numGoRoutines bounds the parallelism go-eth-kzg uses internally for a
// single commit/proof computation; 0 lets the library pick based on
// GOMAXPROCS.
const numGoRoutines = 0
