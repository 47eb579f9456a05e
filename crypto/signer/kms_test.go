package signer

import (
	"context"
	"crypto/ecdsa"
	"encoding/asn1"
	"math/big"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	qt "github.com/frankban/quicktest"
)

// fakeKMS emulates an AWS KMS asymmetric signing key backed by a real
// in-process secp256k1 key, so the DER/low-S/recovery-id plumbing in kms.go
// can be exercised without network access.
type fakeKMS struct {
	key         *ecdsa.PrivateKey
	forceHighS  bool
	callsSign   int
}

func newFakeKMS(t *testing.T) *fakeKMS {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	return &fakeKMS{key: key}
}

func (f *fakeKMS) spkiPublicKey() []byte {
	pub := f.key.PublicKey
	point := ethcrypto.FromECDSAPub(&pub) // 0x04 || X || Y, 65 bytes

	type spki struct {
		Algorithm asn1.RawValue
		PublicKey asn1.BitString
	}
	alg, _ := asn1.Marshal(asn1.RawValue{Tag: asn1.TagSequence, Class: asn1.ClassUniversal, IsCompound: true, Bytes: []byte{0x06, 0x01, 0x00}})
	der, err := asn1.Marshal(spki{
		Algorithm: asn1.RawValue{FullBytes: alg},
		PublicKey: asn1.BitString{Bytes: point, BitLength: len(point) * 8},
	})
	if err != nil {
		panic(err)
	}
	return der
}

func (f *fakeKMS) GetPublicKey(_ context.Context, _ *kms.GetPublicKeyInput, _ ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error) {
	return &kms.GetPublicKeyOutput{PublicKey: f.spkiPublicKey()}, nil
}

func (f *fakeKMS) Sign(_ context.Context, in *kms.SignInput, _ ...func(*kms.Options)) (*kms.SignOutput, error) {
	f.callsSign++
	sig, err := ethcrypto.Sign(in.Message, f.key)
	if err != nil {
		return nil, err
	}
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:64])
	if f.forceHighS {
		s = new(big.Int).Sub(secp256k1N, s)
	}
	der, err := asn1.Marshal(derSignature{R: r, S: s})
	if err != nil {
		return nil, err
	}
	return &kms.SignOutput{
		Signature:        der,
		SigningAlgorithm: kmstypes.SigningAlgorithmSpecEcdsaSha256,
	}, nil
}

func TestKMSSignRawDigestRecoversAddress(t *testing.T) {
	c := qt.New(t)
	fake := newFakeKMS(t)
	s, err := NewKMS(context.Background(), fake, "alias/test-key")
	c.Assert(err, qt.IsNil)
	c.Assert(s.Address(), qt.Equals, ethcrypto.PubkeyToAddress(fake.key.PublicKey))

	var digest [32]byte
	copy(digest[:], ethcrypto.Keccak256([]byte("sign me")))

	sig, err := s.SignRawDigest(context.Background(), digest)
	c.Assert(err, qt.IsNil)

	recovered, err := ethcrypto.SigToPub(digest[:], append(append([]byte{}, sig[:64]...), sig[64]-27))
	c.Assert(err, qt.IsNil)
	c.Assert(ethcrypto.PubkeyToAddress(*recovered), qt.Equals, s.Address())
}

func TestKMSSignRawDigestNormalizesHighS(t *testing.T) {
	c := qt.New(t)
	fake := newFakeKMS(t)
	fake.forceHighS = true
	s, err := NewKMS(context.Background(), fake, "alias/test-key")
	c.Assert(err, qt.IsNil)

	var digest [32]byte
	copy(digest[:], ethcrypto.Keccak256([]byte("high s digest")))

	sig, err := s.SignRawDigest(context.Background(), digest)
	c.Assert(err, qt.IsNil)

	sVal := new(big.Int).SetBytes(sig[32:64])
	c.Assert(sVal.Cmp(secp256k1HalfN) <= 0, qt.IsTrue)

	recovered, err := ethcrypto.SigToPub(digest[:], append(append([]byte{}, sig[:64]...), sig[64]-27))
	c.Assert(err, qt.IsNil)
	c.Assert(ethcrypto.PubkeyToAddress(*recovered), qt.Equals, s.Address())
}

func TestKMSSignTransactionProducesValidSignature(t *testing.T) {
	c := qt.New(t)
	fake := newFakeKMS(t)
	s, err := NewKMS(context.Background(), fake, "alias/test-key")
	c.Assert(err, qt.IsNil)

	to := s.Address()
	tx, err := s.SignTransaction(context.Background(), TxRequest{
		ChainID:   big.NewInt(1),
		Nonce:     0,
		To:        &to,
		GasLimit:  21000,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2),
	})
	c.Assert(err, qt.IsNil)

	signer := types.NewCancunSigner(big.NewInt(1))
	sender, err := types.Sender(signer, tx)
	c.Assert(err, qt.IsNil)
	c.Assert(sender, qt.Equals, s.Address())
}

func TestNormalizeLowS(t *testing.T) {
	c := qt.New(t)
	high := new(big.Int).Add(secp256k1HalfN, big.NewInt(1))
	low := normalizeLowS(high)
	c.Assert(low.Cmp(secp256k1HalfN) <= 0, qt.IsTrue)

	alreadyLow := big.NewInt(42)
	c.Assert(normalizeLowS(alreadyLow), qt.DeepEquals, alreadyLow)
}
