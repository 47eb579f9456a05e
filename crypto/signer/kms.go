package signer

import (
	"context"
	"encoding/asn1"
	"fmt"
	"math/big"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	gtypes "github.com/ethereum/go-ethereum/core/types"
)

// kmsClient is the subset of the AWS KMS API the remote signer needs,
// narrowed so it can be faked in tests without standing up the real SDK
// client.
type kmsClient interface {
	GetPublicKey(ctx context.Context, in *kms.GetPublicKeyInput, opts ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error)
	Sign(ctx context.Context, in *kms.SignInput, opts ...func(*kms.Options)) (*kms.SignOutput, error)
}

// KMS is a Signer backed by a cloud KMS key that exposes raw ECDSA signing
// over secp256k1 but returns ASN.1 DER signatures and SPKI-encoded public
// keys with no recovery id — the two gaps this type closes.
type KMS struct {
	client kmsClient
	keyID  string
	addr   common.Address
	pub    []byte // uncompressed EC point, 65 bytes, 0x04 prefix
}

var _ Signer = (*KMS)(nil)

// NewKMS fetches the public key for keyID once, derives the Ethereum
// address from it, and returns a ready-to-use signer. The fetch happens
// eagerly (not lazily) so that a misconfigured key ID fails at startup
// rather than on the first signing request.
func NewKMS(ctx context.Context, client kmsClient, keyID string) (*KMS, error) {
	out, err := client.GetPublicKey(ctx, &kms.GetPublicKeyInput{KeyId: aws.String(keyID)})
	if err != nil {
		return nil, fmt.Errorf("fetch KMS public key: %w", err)
	}
	point, err := parseSPKIPublicKey(out.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("parse SPKI public key: %w", err)
	}
	addr := common.BytesToAddress(ethcrypto.Keccak256(point[1:])[12:])
	return &KMS{client: client, keyID: keyID, addr: addr, pub: point}, nil
}

// Address implements Signer.
func (k *KMS) Address() common.Address { return k.addr }

// SignMessage implements Signer.
func (k *KMS) SignMessage(ctx context.Context, msg []byte) ([]byte, error) {
	digest := ethcrypto.Keccak256(personalPrefix(len(msg)), msg)
	var d [32]byte
	copy(d[:], digest)
	sig, err := k.SignRawDigest(ctx, d)
	if err != nil {
		return nil, err
	}
	return sig[:], nil
}

// SignTypedData implements Signer.
func (k *KMS) SignTypedData(ctx context.Context, domain TypedDataDomain, schema TypedDataValue, value map[string]any) ([]byte, error) {
	digest := ethcrypto.Keccak256(encodeTypedData(domain, schema, value))
	var d [32]byte
	copy(d[:], digest)
	sig, err := k.SignRawDigest(ctx, d)
	if err != nil {
		return nil, err
	}
	return sig[:], nil
}

// SignTransaction implements Signer.
func (k *KMS) SignTransaction(ctx context.Context, req TxRequest) (*gtypes.Transaction, error) {
	unsigned := buildUnsignedTx(req)
	signer := gtypes.NewCancunSigner(req.ChainID)
	hash := signer.Hash(unsigned)

	sig, err := k.SignRawDigest(ctx, hash)
	if err != nil {
		return nil, err
	}
	// Typed transactions carry the raw 0/1 recovery id, not 27/28.
	sig[64] -= 27
	return unsigned.WithSignature(signer, sig[:])
}

// SignRawDigest signs a 32-byte digest through the KMS oracle, applying the
// three mandatory post-processing steps: DER parsing, low-S normalization,
// and recovery-id search via ecrecover.
func (k *KMS) SignRawDigest(ctx context.Context, digest [32]byte) ([65]byte, error) {
	out, err := k.client.Sign(ctx, &kms.SignInput{
		KeyId:            aws.String(k.keyID),
		Message:          digest[:],
		MessageType:      types.MessageTypeDigest,
		SigningAlgorithm: types.SigningAlgorithmSpecEcdsaSha256,
	})
	if err != nil {
		return [65]byte{}, fmt.Errorf("KMS sign: %w", err)
	}

	r, s, err := parseDERSignature(out.Signature)
	if err != nil {
		return [65]byte{}, fmt.Errorf("parse KMS signature: %w", err)
	}
	s = normalizeLowS(s)

	rsBytes := make([]byte, 64)
	r.FillBytes(rsBytes[:32])
	s.FillBytes(rsBytes[32:])

	recID, err := findRecoveryID(digest[:], rsBytes, k.pub)
	if err != nil {
		return [65]byte{}, err
	}

	var out65 [65]byte
	copy(out65[:64], rsBytes)
	out65[64] = recID + 27
	return out65, nil
}

// derSignature mirrors the SEQUENCE { INTEGER r, INTEGER s } shape KMS
// returns for ECDSA_SHA_256 digest signing.
type derSignature struct {
	R *big.Int
	S *big.Int
}

func parseDERSignature(der []byte) (r, s *big.Int, err error) {
	var sig derSignature
	if _, err := asn1.Unmarshal(der, &sig); err != nil {
		return nil, nil, fmt.Errorf("unmarshal DER signature: %w", err)
	}
	return sig.R, sig.S, nil
}

// secp256k1N is the order of the secp256k1 curve.
var secp256k1N = ethcrypto.S256().Params().N

// secp256k1HalfN is n/2, the low-S threshold: EIP-2 (and every
// post-Homestead Ethereum client) rejects signatures with s above this.
var secp256k1HalfN = new(big.Int).Rsh(secp256k1N, 1)

// normalizeLowS replaces s with n-s whenever s sits in the upper half of
// the curve order, the mandatory low-S normalization step.
func normalizeLowS(s *big.Int) *big.Int {
	if s.Cmp(secp256k1HalfN) > 0 {
		return new(big.Int).Sub(secp256k1N, s)
	}
	return s
}

// findRecoveryID determines which of v in {27, 28} (encoded here as 0/1 to
// match go-ethereum's Ecrecover convention) recovers the given address.
// ECDSA without a recovery id yields two candidate public keys; exactly
// one must match the signer's known address or the signature was
// produced incorrectly.
func findRecoveryID(digest, rs []byte, wantPub []byte) (byte, error) {
	for recID := byte(0); recID < 2; recID++ {
		sig := append(append([]byte{}, rs...), recID)
		pub, err := ethcrypto.Ecrecover(digest, sig)
		if err != nil {
			continue
		}
		if bytesEqual(pub, wantPub) {
			return recID, nil
		}
	}
	return 0, fmt.Errorf("recovery id search failed: no candidate v matches the signer address")
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// parseSPKIPublicKey parses the SubjectPublicKeyInfo DER structure KMS
// returns from GetPublicKey: outer SEQUENCE, an AlgorithmIdentifier
// SEQUENCE to skip, and a BIT STRING whose payload (after a single
// unused-bits byte that must be zero) is the 65-byte uncompressed EC
// point (0x04 || X || Y).
func parseSPKIPublicKey(der []byte) ([]byte, error) {
	var spki struct {
		Algorithm asn1.RawValue
		PublicKey asn1.BitString
	}
	if _, err := asn1.Unmarshal(der, &spki); err != nil {
		return nil, fmt.Errorf("unmarshal SPKI: %w", err)
	}
	point := spki.PublicKey.RightAlign()
	if len(point) != 65 || point[0] != 0x04 {
		return nil, fmt.Errorf("unexpected EC point encoding: %d bytes, prefix 0x%02x", len(point), firstByte(point))
	}
	return point, nil
}

func firstByte(b []byte) byte {
	if len(b) == 0 {
		return 0
	}
	return b[0]
}

