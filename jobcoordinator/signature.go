package jobcoordinator

import (
	"crypto/sha256"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// signingDigest binds the signature domain to (jobId, paymentTxHash,
// contentHash) rather than the raw payload, per the Open Question in §9:
// a straight port would let a signed payload replay across jobs for the
// same user, since the source signs the raw payload alone.
func signingDigest(jobID, paymentTxHash [32]byte, payload []byte) [32]byte {
	contentHash := sha256.Sum256(payload)
	return ethcrypto.Keccak256Hash(jobID[:], paymentTxHash[:], contentHash[:])
}

// recoverSigner recovers the address behind a 65-byte (r, s, v) signature
// over digest. It accepts both the {0,1} and {27,28} v conventions.
func recoverSigner(digest [32]byte, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("signature must be 65 bytes, got %d", len(sig))
	}
	normalized := make([]byte, 65)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}

	pub, err := ethcrypto.SigToPub(digest[:], normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover public key: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}
