package jobcoordinator

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/ethcf/blobkit-proxy/crypto/blobs"
	"github.com/ethcf/blobkit-proxy/feeoracle"
	"github.com/ethcf/blobkit-proxy/store"
	"github.com/ethcf/blobkit-proxy/web3"
)

type fakeEscrow struct {
	job        web3.Job
	jobTimeout time.Duration
	address    common.Address
	getJobErr  error
	timeoutErr error
}

func TestCoordinatorSubmitJobHappyPath(t *testing.T) {
	key, _ := ethcrypto.GenerateKey()
	user := ethcrypto.PubkeyToAddress(key.PublicKey)

	var jobID, paymentTxHash [32]byte
	jobID[0] = 0xAA
	paymentTxHash[0] = 0xBB
	payload := []byte("hello blob")

	digest := signingDigest(jobID, paymentTxHash, payload)
	sig, err := ethcrypto.Sign(digest[:], key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	c, deps := newTestCoordinator(t)
	deps.escrow.job = web3.Job{
		User:      user,
		Amount:    big.NewInt(1_000_000_000_000),
		Completed: false,
		Timestamp: time.Now(),
		Exists:    true,
	}

	req := SubmitJobRequest{
		JobID:         jobID,
		PaymentTxHash: paymentTxHash,
		Payload:       payload,
		Signature:     sig,
		Meta:          BlobMeta{AppID: "test-app"},
	}

	receipt, err := c.SubmitJob(context.Background(), req)
	if err != nil {
		t.Fatalf("SubmitJob: %v", err)
	}
	if receipt.BlobTxHash == "" {
		t.Fatalf("expected a populated blob tx hash")
	}

	// Retrying the same job must return the cached receipt without a
	// second broadcast.
	deps.engine.calls = 0
	second, err := c.SubmitJob(context.Background(), req)
	if err != nil {
		t.Fatalf("second SubmitJob: %v", err)
	}
	if second.BlobTxHash != receipt.BlobTxHash {
		t.Fatalf("expected identical cached receipt on retry")
	}
	if deps.engine.calls != 0 {
		t.Fatalf("expected no engine invocation on cached retry, got %d calls", deps.engine.calls)
	}
}

func TestCoordinatorSubmitJobRejectsBadSignature(t *testing.T) {
	c, deps := newTestCoordinator(t)
	var jobID, paymentTxHash [32]byte
	deps.escrow.job = web3.Job{
		User:      common.HexToAddress("0x0000000000000000000000000000000000000001"),
		Amount:    big.NewInt(1_000_000_000_000),
		Timestamp: time.Now(),
		Exists:    true,
	}

	req := SubmitJobRequest{
		JobID:         jobID,
		PaymentTxHash: paymentTxHash,
		Payload:       []byte("payload"),
		Signature:     make([]byte, 65),
		Meta:          BlobMeta{AppID: "app"},
	}
	_, err := c.SubmitJob(context.Background(), req)
	if !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("expected ErrSignatureMismatch, got %v", err)
	}
}

func TestCoordinatorSubmitJobRejectsMissingJob(t *testing.T) {
	c, deps := newTestCoordinator(t)
	deps.escrow.job.Exists = false

	req := SubmitJobRequest{
		Payload:   []byte("payload"),
		Signature: make([]byte, 65),
		Meta:      BlobMeta{AppID: "app"},
	}
	_, err := c.SubmitJob(context.Background(), req)
	if !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestCoordinatorSubmitJobRejectsExpiredJob(t *testing.T) {
	key, _ := ethcrypto.GenerateKey()
	user := ethcrypto.PubkeyToAddress(key.PublicKey)

	var jobID, paymentTxHash [32]byte
	payload := []byte("payload")
	digest := signingDigest(jobID, paymentTxHash, payload)
	sig, _ := ethcrypto.Sign(digest[:], key)

	c, deps := newTestCoordinator(t)
	deps.escrow.job = web3.Job{
		User:      user,
		Amount:    big.NewInt(1_000_000_000_000),
		Timestamp: time.Now().Add(-time.Hour),
		Exists:    true,
	}
	deps.escrow.jobTimeout = 300 * time.Second

	req := SubmitJobRequest{JobID: jobID, PaymentTxHash: paymentTxHash, Payload: payload, Signature: sig, Meta: BlobMeta{AppID: "app"}}
	_, err := c.SubmitJob(context.Background(), req)
	if !errors.Is(err, ErrJobExpired) {
		t.Fatalf("expected ErrJobExpired, got %v", err)
	}
}

func TestCoordinatorSubmitJobValidatesPayload(t *testing.T) {
	c, _ := newTestCoordinator(t)
	req := SubmitJobRequest{Payload: nil, Signature: make([]byte, 65), Meta: BlobMeta{AppID: "app"}}
	_, err := c.SubmitJob(context.Background(), req)
	if !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed, got %v", err)
	}
}

type fakeEngine struct {
	calls int
}

func (f *fakeEngine) SubmitBlob(_ context.Context, _ []byte, meta map[string]string, _ blobs.Version) (store.BlobReceipt, error) {
	f.calls++
	return store.BlobReceipt{
		BlobTxHash:  "0xdeadbeef",
		BlockNumber: 100,
		Meta:        meta,
	}, nil
}

type fakeFees struct{}

func (fakeFees) SuggestFees(context.Context, int) (feeoracle.Suggestion, error) {
	return feeoracle.Suggestion{
		MaxFeePerGas:         big.NewInt(1),
		MaxPriorityFeePerGas: big.NewInt(1),
		MaxFeePerBlobGas:     big.NewInt(1),
		BlobFee:              big.NewInt(1000),
	}, nil
}

func (e *fakeEscrow) GetJob(context.Context, [32]byte) (web3.Job, error) {
	return e.job, e.getJobErr
}
func (e *fakeEscrow) JobTimeout(context.Context) (time.Duration, error) {
	if e.timeoutErr != nil {
		return 0, e.timeoutErr
	}
	if e.jobTimeout == 0 {
		return 300 * time.Second, nil
	}
	return e.jobTimeout, nil
}
func (e *fakeEscrow) Address() common.Address { return e.address }

type testDeps struct {
	escrow *fakeEscrow
	engine *fakeEngine
}

func newTestCoordinator(t *testing.T) (*Coordinator, testDeps) {
	t.Helper()
	kv := store.NewKV(store.NewMemory())
	locks := store.NewJobLock(kv, store.DefaultJobLockTTL)
	results, err := store.NewJobResultCache(kv, store.DefaultJobResultCacheTTL, 16)
	if err != nil {
		t.Fatalf("NewJobResultCache: %v", err)
	}
	intents := store.NewIntentStore(kv)

	escrow := &fakeEscrow{}
	engine := &fakeEngine{}
	c := New(escrow, engine, fakeFees{}, locks, results, intents, Config{ChainID: 1, ProxyFeePercent: 1, BlobVersion: blobs.V4844})
	return c, testDeps{escrow: escrow, engine: engine}
}
