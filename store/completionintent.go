package store

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
)

const intentPrefix = "intent/"

// IntentStore persists CompletionIntent records and exposes the
// scanDueBefore primitive the retry queue polls.
type IntentStore struct {
	kv *KV
}

// NewIntentStore constructs an IntentStore over kv.
func NewIntentStore(kv *KV) *IntentStore {
	return &IntentStore{kv: kv}
}

// Create persists a new pending intent for jobID via SetIfAbsent, so an
// existing record for the same jobID is never overwritten; Create returns
// an error in that case.
func (s *IntentStore) Create(intent CompletionIntent) error {
	encoded, err := cbor.Marshal(intent)
	if err != nil {
		return fmt.Errorf("encode completion intent: %w", err)
	}
	ok, err := s.kv.SetIfAbsent(s.key(intent.JobID), EncodeDueValue(intent.NextAttemptAt, encoded))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("completion intent for %s already exists", intent.JobID)
	}
	return nil
}

// Get loads the intent for jobID.
func (s *IntentStore) Get(jobID string) (CompletionIntent, error) {
	raw, err := s.kv.Get(s.key(jobID))
	if err != nil {
		return CompletionIntent{}, err
	}
	if len(raw) < 8 {
		return CompletionIntent{}, fmt.Errorf("corrupt completion intent record for %s", jobID)
	}
	var intent CompletionIntent
	if err := cbor.Unmarshal(raw[8:], &intent); err != nil {
		return CompletionIntent{}, fmt.Errorf("decode completion intent: %w", err)
	}
	return intent, nil
}

// Save overwrites the persisted intent, re-keying its due-time index entry
// to the intent's current NextAttemptAt.
func (s *IntentStore) Save(intent CompletionIntent) error {
	encoded, err := cbor.Marshal(intent)
	if err != nil {
		return fmt.Errorf("encode completion intent: %w", err)
	}
	return s.kv.Set(s.key(intent.JobID), EncodeDueValue(intent.NextAttemptAt, encoded))
}

// Delete removes the intent record for jobID, e.g. once it reaches a
// terminal state and has been reported.
func (s *IntentStore) Delete(jobID string) error {
	return s.kv.Del(s.key(jobID))
}

// Claim atomically transitions a pending, due intent to in_flight,
// implementing the retry queue's "atomic test-and-set transitions on the
// state field" requirement: the CAS's expected value is the exact bytes
// last read, so a concurrent worker that claims first causes this call to
// fail with ErrCASMismatch rather than double-claim the intent.
//
// An in_flight intent is also claimable once its lease (NextAttemptAt,
// set to the previous claim's leaseExpiry) has passed: that is the
// recovery path for a worker that claimed an intent and then died before
// completing or saving it back to pending.
func (s *IntentStore) Claim(jobID string, leaseExpiry time.Time) (CompletionIntent, bool, error) {
	key := s.key(jobID)
	raw, err := s.kv.Get(key)
	if err != nil {
		return CompletionIntent{}, false, err
	}
	if len(raw) < 8 {
		return CompletionIntent{}, false, fmt.Errorf("corrupt completion intent record for %s", jobID)
	}
	var intent CompletionIntent
	if err := cbor.Unmarshal(raw[8:], &intent); err != nil {
		return CompletionIntent{}, false, fmt.Errorf("decode completion intent: %w", err)
	}
	switch intent.State {
	case IntentPending:
		// always claimable
	case IntentInFlight:
		if time.Now().Before(intent.NextAttemptAt) {
			return CompletionIntent{}, false, nil
		}
	default:
		return CompletionIntent{}, false, nil
	}

	claimed := intent
	claimed.State = IntentInFlight
	claimed.NextAttemptAt = leaseExpiry
	encoded, err := cbor.Marshal(claimed)
	if err != nil {
		return CompletionIntent{}, false, fmt.Errorf("encode completion intent: %w", err)
	}
	newRaw := EncodeDueValue(leaseExpiry, encoded)

	if err := s.kv.CompareAndSet(key, raw, newRaw); err != nil {
		if err == ErrCASMismatch {
			return CompletionIntent{}, false, nil
		}
		return CompletionIntent{}, false, err
	}
	return claimed, true, nil
}

// ScanDue returns every intent whose NextAttemptAt has elapsed, for the
// retry queue's polling loop.
func (s *IntentStore) ScanDue(before time.Time) ([]CompletionIntent, error) {
	var due []CompletionIntent
	err := s.kv.ScanDueBefore([]byte(intentPrefix), before, func(_, payload []byte) bool {
		var intent CompletionIntent
		if err := cbor.Unmarshal(payload, &intent); err == nil {
			due = append(due, intent)
		}
		return true
	})
	return due, err
}

func (s *IntentStore) key(jobID string) []byte {
	return []byte(intentPrefix + jobID)
}
