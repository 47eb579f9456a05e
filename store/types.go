package store

import "time"

// IntentState is the lifecycle state of a CompletionIntent.
type IntentState string

const (
	IntentPending           IntentState = "pending"
	IntentInFlight          IntentState = "in_flight"
	IntentSucceeded         IntentState = "succeeded"
	IntentPermanentlyFailed IntentState = "permanently_failed"
)

// BlobReceipt is returned to the caller on a successful blob write and is
// also what JobResultCache stores for idempotent retries.
type BlobReceipt struct {
	JobID             string            `cbor:"job_id"`
	BlobTxHash        string            `cbor:"blob_tx_hash"`
	BlockNumber       uint64            `cbor:"block_number"`
	BlobVersionedHash string            `cbor:"blob_versioned_hash"`
	Commitment        string            `cbor:"commitment"`
	Proofs            []string          `cbor:"proofs"`
	BlobIndex         int               `cbor:"blob_index"`
	Meta              map[string]string `cbor:"meta,omitempty"`
}

// CompletionIntent is the durable record of the proxy's obligation to call
// completeJob on-chain after a successful blob broadcast. At most one
// non-terminal intent exists per JobID at any time.
type CompletionIntent struct {
	JobID         string      `cbor:"job_id"`
	BlobTxHash    string      `cbor:"blob_tx_hash"`
	CreatedAt     time.Time   `cbor:"created_at"`
	Attempts      int         `cbor:"attempts"`
	NextAttemptAt time.Time   `cbor:"next_attempt_at"`
	State         IntentState `cbor:"state"`
}

// Terminal reports whether the intent has reached a state the retry queue
// will never pick up again.
func (c CompletionIntent) Terminal() bool {
	return c.State == IntentSucceeded || c.State == IntentPermanentlyFailed
}
