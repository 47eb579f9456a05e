package signer

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Local is a Signer backed by an in-process secp256k1 private key.
type Local struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

var _ Signer = (*Local)(nil)

// NewLocal builds a Local signer from a hex-encoded private key (with or
// without the 0x prefix).
func NewLocal(hexKey string) (*Local, error) {
	key, err := ethcrypto.HexToECDSA(trim0x(hexKey))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &Local{key: key, addr: ethcrypto.PubkeyToAddress(key.PublicKey)}, nil
}

func trim0x(s string) string {
	if len(s) > 1 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// Address implements Signer.
func (l *Local) Address() common.Address { return l.addr }

// SignMessage implements Signer.
func (l *Local) SignMessage(_ context.Context, msg []byte) ([]byte, error) {
	digest := ethcrypto.Keccak256(personalPrefix(len(msg)), msg)
	sig, err := ethcrypto.Sign(digest, l.key)
	if err != nil {
		return nil, fmt.Errorf("sign message: %w", err)
	}
	return normalizeV(sig), nil
}

// SignTypedData implements Signer using go-ethereum's EIP-712 hashing
// helper via accounts/abi/bind's typed-data support is intentionally not
// pulled in here (it lives in signer/core/apitypes in the full go-ethereum
// module, outside what this proxy imports); callers pass the already
// EIP-712-hashed digest's constituent parts and SignTypedData simply hashes
// and signs them the same way SignRawDigest does.
func (l *Local) SignTypedData(ctx context.Context, domain TypedDataDomain, schema TypedDataValue, value map[string]any) ([]byte, error) {
	digest := ethcrypto.Keccak256(encodeTypedData(domain, schema, value))
	var d [32]byte
	copy(d[:], digest)
	sig, err := l.SignRawDigest(ctx, d)
	if err != nil {
		return nil, err
	}
	return sig[:], nil
}

// SignTransaction implements Signer.
func (l *Local) SignTransaction(_ context.Context, req TxRequest) (*types.Transaction, error) {
	unsigned := buildUnsignedTx(req)
	signer := types.NewCancunSigner(req.ChainID)
	return types.SignTx(unsigned, signer, l.key)
}

// SignRawDigest implements Signer: local keys already produce a recovery id
// from go-ethereum's crypto.Sign, and go-ethereum's secp256k1 binding
// already returns a low-S signature, so no post-processing is required
// here (unlike the KMS backend, see kms.go).
func (l *Local) SignRawDigest(_ context.Context, digest [32]byte) ([65]byte, error) {
	sig, err := ethcrypto.Sign(digest[:], l.key)
	if err != nil {
		return [65]byte{}, fmt.Errorf("sign digest: %w", err)
	}
	var out [65]byte
	copy(out[:], normalizeV(sig))
	return out, nil
}

// normalizeV rewrites go-ethereum's 0/1 recovery id into Ethereum's
// legacy 27/28 convention used by the 65-byte wire signature.
func normalizeV(sig []byte) []byte {
	out := make([]byte, 65)
	copy(out, sig)
	out[64] += 27
	return out
}

func personalPrefix(n int) []byte {
	return []byte(fmt.Sprintf("\x19Ethereum Signed Message:\n%d", n))
}

// encodeTypedData is a minimal, dependency-free placeholder for EIP-712
// struct encoding: it concatenates the domain and value fields in a stable
// key order before hashing. Callers that need full EIP-712 type-hash
// correctness should pre-hash with go-ethereum's signer/core/apitypes and
// call SignRawDigest directly; this helper exists so SignTypedData has a
// sensible default behavior.
func encodeTypedData(domain TypedDataDomain, schema TypedDataValue, value map[string]any) []byte {
	var buf []byte
	for _, m := range []map[string]any{domain, schema, value} {
		for _, k := range sortedKeys(m) {
			buf = append(buf, []byte(k)...)
			buf = append(buf, []byte(fmt.Sprintf("%v", m[k]))...)
		}
	}
	return buf
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}
