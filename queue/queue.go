// Package queue implements the Completion Retry Queue: a pool of workers
// that drain durably-persisted CompletionIntent records and drive the
// escrow's completeJob call to completion, with exponential backoff and a
// crash-safe in_flight lease.
package queue

import (
	"context"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethcf/blobkit-proxy/log"
	"github.com/ethcf/blobkit-proxy/store"
)

// Backoff parameters per §4.E's Completion Retry Queue contract.
const (
	BaseBackoff = 5 * time.Second
	MaxBackoff  = 5 * time.Minute
	MaxAttempts = 20
)

// DefaultPollInterval is how often idle workers re-scan for due intents.
const DefaultPollInterval = 2 * time.Second

// Completer performs the on-chain completeJob call. Proof is currently
// always empty; the field exists in the escrow ABI for future attestation
// schemes the proxy doesn't yet produce.
type Completer interface {
	CompleteJob(ctx context.Context, jobID, blobTxHash [32]byte, proof []byte) error
}

// Alerter is notified when an intent exhausts MaxAttempts. The default
// Queue alerts via a structured error log line; callers that want paging
// or metrics wire their own Alerter.
type Alerter interface {
	Alert(intent store.CompletionIntent, err error)
}

// LogAlerter is the Alerter used absent an override.
type LogAlerter struct{}

// Alert implements Alerter by emitting an error-level structured log line.
func (LogAlerter) Alert(intent store.CompletionIntent, err error) {
	log.Errorw(err, "completion intent permanently failed")
	log.Warnw("completion intent permanently failed", "jobId", intent.JobID, "blobTxHash", intent.BlobTxHash, "attempts", intent.Attempts)
}

// Queue polls the durable IntentStore for due, pending intents and drives
// them to completion with a worker pool independent of the request path.
type Queue struct {
	intents      *store.IntentStore
	completer    Completer
	alerter      Alerter
	workers      int
	pollInterval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup

	completed atomic.Int64
	failed    atomic.Int64
	exhausted atomic.Int64
}

// Stats is a point-in-time snapshot of the worker pool's counters, exposed
// for the ambient `/debug/vars`-style health extension.
type Stats struct {
	Completed int64
	Failed    int64
	Exhausted int64
}

// Stats returns the current counters. Safe for concurrent use.
func (q *Queue) Stats() Stats {
	return Stats{
		Completed: q.completed.Load(),
		Failed:    q.failed.Load(),
		Exhausted: q.exhausted.Load(),
	}
}

// New constructs a Queue with workers concurrent worker goroutines,
// polling every pollInterval. workers and pollInterval default to 4 and
// DefaultPollInterval when non-positive.
func New(intents *store.IntentStore, completer Completer, workers int, pollInterval time.Duration) *Queue {
	if workers <= 0 {
		workers = 4
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Queue{
		intents:      intents,
		completer:    completer,
		alerter:      LogAlerter{},
		workers:      workers,
		pollInterval: pollInterval,
	}
}

// WithAlerter overrides the default log-only alerter.
func (q *Queue) WithAlerter(a Alerter) *Queue {
	q.alerter = a
	return q
}

// Start launches the worker pool. Each worker independently polls
// ScanDue, so restarting after a crash naturally re-discovers any
// in_flight intent whose lease (NextAttemptAt) has already elapsed.
func (q *Queue) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.runWorker(ctx)
	}
}

// Stop signals all workers to exit and waits for them to drain their
// current attempt. Intents not yet picked up remain durable and will be
// retried on next boot, per §5's shutdown contract.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	q.wg.Wait()
}

func (q *Queue) runWorker(ctx context.Context) {
	defer q.wg.Done()
	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.drainOnce(ctx)
		}
	}
}

// drainOnce processes every intent currently due. Multiple workers may
// race to claim the same intent; IntentStore.Claim's CAS ensures only one
// wins per poll.
func (q *Queue) drainOnce(ctx context.Context) {
	due, err := q.intents.ScanDue(time.Now())
	if err != nil {
		log.Warnw("completion queue: scan due intents failed", "error", err)
		return
	}
	for _, intent := range due {
		q.attempt(ctx, intent)
	}
}

func (q *Queue) attempt(ctx context.Context, intent store.CompletionIntent) {
	lease := time.Now().Add(leaseDurationFor(intent.Attempts))
	claimed, ok, err := q.intents.Claim(intent.JobID, lease)
	if err != nil {
		log.Warnw("completion queue: claim failed", "jobId", intent.JobID, "error", err)
		return
	}
	if !ok {
		return
	}

	jobID, blobTxHash, err := decodeIntentKeys(claimed)
	if err != nil {
		log.Errorw(err, "completion queue: malformed intent, dropping")
		return
	}

	if err := q.completer.CompleteJob(ctx, jobID, blobTxHash, nil); err != nil {
		q.onFailure(claimed, err)
		return
	}
	q.completed.Add(1)
	if err := q.intents.Delete(claimed.JobID); err != nil {
		log.Warnw("completion queue: failed to delete succeeded intent", "jobId", claimed.JobID, "error", err)
	}
}

func (q *Queue) onFailure(intent store.CompletionIntent, cause error) {
	q.failed.Add(1)
	intent.Attempts++
	if intent.Attempts >= MaxAttempts {
		intent.State = store.IntentPermanentlyFailed
		if err := q.intents.Save(intent); err != nil {
			log.Warnw("completion queue: failed to persist permanently_failed intent", "jobId", intent.JobID, "error", err)
		}
		q.exhausted.Add(1)
		q.alerter.Alert(intent, cause)
		return
	}

	intent.State = store.IntentPending
	intent.NextAttemptAt = time.Now().Add(backoffFor(intent.Attempts))
	if err := q.intents.Save(intent); err != nil {
		log.Warnw("completion queue: failed to persist retry backoff", "jobId", intent.JobID, "error", err)
	}
}

// backoffFor returns min(baseBackoff * 2^attempts, maxBackoff).
func backoffFor(attempts int) time.Duration {
	backoff := BaseBackoff
	for i := 0; i < attempts; i++ {
		backoff *= 2
		if backoff >= MaxBackoff {
			return MaxBackoff
		}
	}
	return backoff
}

// leaseDurationFor bounds how long an in_flight claim is honored before
// another worker may re-claim it after a crash, set to one backoff
// interval per §4.E.
func leaseDurationFor(attempts int) time.Duration {
	return backoffFor(attempts)
}

func decodeIntentKeys(intent store.CompletionIntent) (jobID, blobTxHash [32]byte, err error) {
	jobID, err = decodeHex32(intent.JobID)
	if err != nil {
		return jobID, blobTxHash, err
	}
	blobTxHash, err = decodeHex32(intent.BlobTxHash)
	return jobID, blobTxHash, err
}

func decodeHex32(s string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(trimHexPrefix(s))
	if err != nil {
		return out, err
	}
	copy(out[32-len(b):], b)
	return out, nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
