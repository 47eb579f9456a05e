package blobs

import goethkzg "github.com/crate-crypto/go-eth-kzg"

// Sidecar is the result of committing to and proving a single blob: the
// pieces a broadcaster needs to attach to a Type-3 transaction.
type Sidecar struct {
	Blob          *goethkzg.Blob
	Commitment    goethkzg.KZGCommitment
	Proofs        []goethkzg.KZGProof
	VersionedHash [32]byte
	Version       Version
}

// BuildSidecar runs the full KZG Engine pipeline for one payload: encode,
// commit, prove, and derive the versioned hash.
func BuildSidecar(engine *Engine, payload []byte, version Version) (*Sidecar, error) {
	blob, err := EncodeBlob(payload)
	if err != nil {
		return nil, err
	}
	commitment, err := engine.Commit(blob)
	if err != nil {
		return nil, err
	}
	proofs, err := engine.ComputeProofs(blob, commitment, version)
	if err != nil {
		return nil, err
	}
	return &Sidecar{
		Blob:          blob,
		Commitment:    commitment,
		Proofs:        proofs,
		VersionedHash: CommitmentToVersionedHash([48]byte(commitment)),
		Version:       version,
	}, nil
}
