package store

import (
	"bytes"
	"encoding/binary"
	"sync"
	"time"
)

// KV layers the atomic primitives the job coordinator and retry queue need
// on top of a Database: setIfAbsent, get, compareAndSet, del, and
// scanDueBefore(t). Every primitive that mutates state goes through a
// single WriteTx so it is atomic with respect to concurrent callers.
//
// WriteTx's read-modify-write is not itself an OCC/CAS primitive against
// any of the Database backends (none detect a write-write conflict at
// Commit), so SetIfAbsent and CompareAndSet additionally serialize on mu.
// This is safe because every caller shares a single *KV instance wrapping
// a single Database: mu serializes every conflicting read-modify-write in
// the process, not just within one call.
type KV struct {
	db Database
	mu sync.Mutex
}

// NewKV wraps a Database with the job-coordinator-facing primitives.
func NewKV(db Database) *KV {
	return &KV{db: db}
}

// Get returns the value stored at key, or ErrKeyNotFound.
func (kv *KV) Get(key []byte) ([]byte, error) {
	return kv.db.Get(key)
}

// SetIfAbsent atomically stores value at key only if no value is already
// present, returning true if the write happened. Used by JobLock to
// implement mutual exclusion and by the completion intent store to avoid
// clobbering an in-flight attempt.
func (kv *KV) SetIfAbsent(key, value []byte) (bool, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	tx := kv.db.WriteTx()
	defer tx.Discard()

	if _, err := tx.Get(key); err == nil {
		return false, nil
	} else if err != ErrKeyNotFound {
		return false, err
	}
	if err := tx.Set(key, value); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// CompareAndSet atomically replaces the value at key with newValue only if
// the current value equals expected. If expected is nil, the key must be
// absent. Returns ErrCASMismatch on a failed comparison.
func (kv *KV) CompareAndSet(key, expected, newValue []byte) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	tx := kv.db.WriteTx()
	defer tx.Discard()

	cur, err := tx.Get(key)
	switch {
	case err == ErrKeyNotFound:
		if expected != nil {
			return ErrCASMismatch
		}
	case err != nil:
		return err
	default:
		if expected == nil || !bytes.Equal(cur, expected) {
			return ErrCASMismatch
		}
	}

	if err := tx.Set(key, newValue); err != nil {
		return err
	}
	return tx.Commit()
}

// Del removes key. Deleting an absent key is not an error.
func (kv *KV) Del(key []byte) error {
	tx := kv.db.WriteTx()
	defer tx.Discard()
	if err := tx.Delete(key); err != nil {
		return err
	}
	return tx.Commit()
}

// Set unconditionally stores value at key.
func (kv *KV) Set(key, value []byte) error {
	tx := kv.db.WriteTx()
	defer tx.Discard()
	if err := tx.Set(key, value); err != nil {
		return err
	}
	return tx.Commit()
}

// ScanDueBefore iterates every key under prefix whose encoded due-time
// (the first 8 bytes of the value, a big-endian unix-nano timestamp) is at
// or before t, invoking callback with the key and the remaining payload
// bytes. Iteration stops early if callback returns false. Used by the
// retry queue to find jobs whose nextAttemptAt has elapsed.
func (kv *KV) ScanDueBefore(prefix []byte, t time.Time, callback func(key, payload []byte) bool) error {
	cutoff := t.UnixNano()
	return kv.db.Iterate(prefix, func(k, v []byte) bool {
		if len(v) < 8 {
			return true
		}
		due := int64(binary.BigEndian.Uint64(v[:8]))
		if due > cutoff {
			return true
		}
		return callback(k, v[8:])
	})
}

// EncodeDueValue prepends a big-endian unix-nano due-time to payload, the
// wire shape ScanDueBefore expects.
func EncodeDueValue(due time.Time, payload []byte) []byte {
	out := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint64(out[:8], uint64(due.UnixNano()))
	copy(out[8:], payload)
	return out
}
