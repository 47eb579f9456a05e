package store

import "time"

const jobLockPrefix = "joblock/"

// JobLock is a time-bounded mutual-exclusion token keyed by jobId, with a
// configurable TTL (default 60s). It is released on any terminal outcome
// or by TTL expiry — a later Acquire past the TTL takes the lock over via
// CompareAndSet even without an explicit Release, so a crashed holder cannot wedge a job
// forever.
type JobLock struct {
	kv  *KV
	ttl time.Duration
}

// DefaultJobLockTTL is the TTL used when Acquire's caller has no override,
// per §3's JobLock definition.
const DefaultJobLockTTL = 60 * time.Second

// NewJobLock constructs a JobLock manager over kv with the given TTL.
func NewJobLock(kv *KV, ttl time.Duration) *JobLock {
	if ttl <= 0 {
		ttl = DefaultJobLockTTL
	}
	return &JobLock{kv: kv, ttl: ttl}
}

// Acquire attempts to take the lock for jobID, returning ok=false (no
// error) if it is already held by a non-expired holder. Callers must not
// wait on failure — §4.E requires returning JobInFlight immediately.
func (l *JobLock) Acquire(jobID string) (ok bool, err error) {
	key := []byte(jobLockPrefix + jobID)
	now := time.Now()

	existing, err := l.kv.Get(key)
	if err == nil {
		if len(existing) >= 8 {
			expiresAt := decodeTime(existing[:8])
			if now.Before(expiresAt) {
				return false, nil
			}
		}
		// expired holder: steal the lock via CAS against its current value
		newVal := encodeTime(now.Add(l.ttl))
		if casErr := l.kv.CompareAndSet(key, existing, newVal); casErr != nil {
			if casErr == ErrCASMismatch {
				return false, nil
			}
			return false, casErr
		}
		return true, nil
	}
	if err != ErrKeyNotFound {
		return false, err
	}

	ok2, err := l.kv.SetIfAbsent(key, encodeTime(now.Add(l.ttl)))
	if err != nil {
		return false, err
	}
	return ok2, nil
}

// Release drops the lock for jobID unconditionally. Safe to call on an
// already-expired or already-released lock.
func (l *JobLock) Release(jobID string) error {
	return l.kv.Del([]byte(jobLockPrefix + jobID))
}

func encodeTime(t time.Time) []byte {
	out := make([]byte, 8)
	putUint64(out, uint64(t.UnixNano()))
	return out
}

func decodeTime(b []byte) time.Time {
	return time.Unix(0, int64(getUint64(b)))
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[7-i] = byte(v >> (8 * i))
	}
}

func getUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}
