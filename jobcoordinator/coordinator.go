package jobcoordinator

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ethcf/blobkit-proxy/crypto/blobs"
	"github.com/ethcf/blobkit-proxy/feeoracle"
	"github.com/ethcf/blobkit-proxy/log"
	"github.com/ethcf/blobkit-proxy/store"
	"github.com/ethcf/blobkit-proxy/web3"
)

// EscrowReader is the narrow slice of *web3.Escrow the coordinator
// depends on, so tests can substitute a fake without a live RPC endpoint.
type EscrowReader interface {
	GetJob(ctx context.Context, jobID [32]byte) (web3.Job, error)
	JobTimeout(ctx context.Context) (time.Duration, error)
	Address() common.Address
}

// BlobSubmitter is the narrow slice of *web3.Engine the coordinator drives.
type BlobSubmitter interface {
	SubmitBlob(ctx context.Context, payload []byte, meta map[string]string, version blobs.Version) (store.BlobReceipt, error)
}

// FeeQuoter is the narrow slice of *feeoracle.Oracle the coordinator
// consults for the InsufficientDeposit precondition.
type FeeQuoter interface {
	SuggestFees(ctx context.Context, k int) (feeoracle.Suggestion, error)
}

// Coordinator implements the submitJob/getHealth contract of §4.E,
// owning JobLock, CompletionIntent, and JobResultCache lifetimes.
type Coordinator struct {
	escrow  EscrowReader
	engine  BlobSubmitter
	fees    FeeQuoter
	locks   *store.JobLock
	results *store.JobResultCache
	intents *store.IntentStore

	chainID         uint64
	proxyFeePercent int
	blobVersion     blobs.Version
}

// Config holds the values SubmitJob and GetHealth need beyond their
// collaborators, taken from §6's recognized configuration options.
type Config struct {
	ChainID         uint64
	ProxyFeePercent int
	BlobVersion     blobs.Version
}

// New constructs a Coordinator wiring together the escrow binding, the
// Blob Transaction Engine, the fee oracle, and the durable store's three
// job-coordinator-owned structures.
func New(escrow EscrowReader, engine BlobSubmitter, fees FeeQuoter, locks *store.JobLock, results *store.JobResultCache, intents *store.IntentStore, cfg Config) *Coordinator {
	return &Coordinator{
		escrow:          escrow,
		engine:          engine,
		fees:            fees,
		locks:           locks,
		results:         results,
		intents:         intents,
		chainID:         cfg.ChainID,
		proxyFeePercent: cfg.ProxyFeePercent,
		blobVersion:     cfg.BlobVersion,
	}
}

// SubmitJob runs the full §4.E protocol: ordered precondition checks
// against on-chain escrow state, JobLock-guarded submission through the
// Blob Transaction Engine, JobResultCache bookkeeping, and CompletionIntent
// creation.
func (c *Coordinator) SubmitJob(ctx context.Context, req SubmitJobRequest) (store.BlobReceipt, error) {
	jobIDHex := hexKey(req.JobID)

	// 1. ValidationFailed
	if err := validateRequest(req); err != nil {
		return store.BlobReceipt{}, err
	}

	// 2. JobNotFound
	job, err := c.escrow.GetJob(ctx, req.JobID)
	if err != nil {
		return store.BlobReceipt{}, fmt.Errorf("%w: %s", ErrUpstreamUnavailable, err)
	}
	if !job.Exists {
		return store.BlobReceipt{}, ErrJobNotFound
	}

	// 3. SignatureMismatch
	digest := signingDigest(req.JobID, req.PaymentTxHash, req.Payload)
	signer, err := recoverSigner(digest, req.Signature)
	if err != nil || signer != job.User {
		return store.BlobReceipt{}, ErrSignatureMismatch
	}

	// 4. InsufficientDeposit
	quote, err := c.fees.SuggestFees(ctx, 1)
	if err != nil {
		return store.BlobReceipt{}, fmt.Errorf("%w: %s", ErrUpstreamUnavailable, err)
	}
	if job.Amount.Cmp(estimatedCost(quote)) < 0 {
		return store.BlobReceipt{}, ErrInsufficientDeposit
	}

	// 5. JobAlreadyCompleted (return cached receipt if present)
	if job.Completed {
		if cached, err := c.results.Get(jobIDHex); err == nil {
			return cached, nil
		}
		return store.BlobReceipt{}, ErrJobAlreadyCompleted
	}

	// 6. JobExpired
	timeout, err := c.escrow.JobTimeout(ctx)
	if err != nil {
		return store.BlobReceipt{}, fmt.Errorf("%w: %s", ErrUpstreamUnavailable, err)
	}
	if time.Since(job.Timestamp) >= timeout {
		return store.BlobReceipt{}, ErrJobExpired
	}

	return c.submitUnderLock(ctx, jobIDHex, req)
}

// submitUnderLock implements the §4.E concurrency discipline: acquire the
// JobLock without waiting, re-consult the cache under the lock, invoke the
// engine, and release unconditionally before returning.
func (c *Coordinator) submitUnderLock(ctx context.Context, jobIDHex string, req SubmitJobRequest) (store.BlobReceipt, error) {
	acquired, err := c.locks.Acquire(jobIDHex)
	if err != nil {
		return store.BlobReceipt{}, fmt.Errorf("%w: %s", ErrUpstreamUnavailable, err)
	}
	if !acquired {
		return store.BlobReceipt{}, ErrJobInFlight
	}
	defer func() {
		if err := c.locks.Release(jobIDHex); err != nil {
			log.Warnw("failed to release job lock", "jobId", jobIDHex, "error", err)
		}
	}()

	// 3a. at-most-once submission, at-least-once reply
	if cached, err := c.results.Get(jobIDHex); err == nil {
		return cached, nil
	} else if !errors.Is(err, store.ErrKeyNotFound) {
		log.Warnw("job result cache read failed, proceeding with submission", "jobId", jobIDHex, "error", err)
	}

	// 3b/3c. invoke the Blob Transaction Engine
	receipt, err := c.engine.SubmitBlob(ctx, req.Payload, req.Meta.toMap(), c.blobVersion)
	if err != nil {
		// Broadcast/RPC failures here are transient by construction: every
		// permanent failure mode (oversized payload, bad signature) was
		// already rejected by the preconditions above.
		return store.BlobReceipt{}, fmt.Errorf("%w: %s", ErrBlobSubmissionFailed, err)
	}
	receipt.JobID = jobIDHex

	if err := c.results.Put(jobIDHex, receipt); err != nil {
		log.Warnw("failed to cache job result", "jobId", jobIDHex, "error", err)
	}

	intent := store.CompletionIntent{
		JobID:         jobIDHex,
		BlobTxHash:    receipt.BlobTxHash,
		CreatedAt:     time.Now(),
		NextAttemptAt: time.Now(),
		State:         store.IntentPending,
	}
	if err := c.intents.Create(intent); err != nil {
		log.Errorw(err, "failed to persist completion intent")
	}

	return receipt, nil
}

// GetHealth implements §6's GET /api/v1/health contract.
func (c *Coordinator) GetHealth(ctx context.Context) HealthStatus {
	status := "healthy"
	if _, err := c.escrow.JobTimeout(ctx); err != nil {
		log.Warnw("health check: escrow unreachable", "error", err)
		status = "unhealthy"
	}
	return HealthStatus{
		Status:          status,
		ChainID:         c.chainID,
		EscrowContract:  c.escrow.Address().Hex(),
		ProxyFeePercent: c.proxyFeePercent,
		MaxBlobSize:     blobs.BytesPerBlob,
	}
}

// estimatedCost is estimatedCost(payload) from §4.E precondition 4: the
// fee oracle's blob fee for k=1.
func estimatedCost(quote feeoracle.Suggestion) *big.Int {
	return quote.BlobFee
}

func hexKey(b [32]byte) string {
	return "0x" + hex.EncodeToString(b[:])
}
