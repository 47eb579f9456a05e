// Package store defines the durable key-value abstraction the job
// coordinator and retry queue are built on: {setIfAbsent, get,
// compareAndSet, del, scanDueBefore(t)}, plus the lower-level Database/
// WriteTx contract any embedded KV backend must satisfy to back it.
package store

import (
	"errors"
	"fmt"
	"net/url"
)

// ErrKeyNotFound is returned by Get when the key does not exist.
var ErrKeyNotFound = errors.New("store: key not found")

// ErrCASMismatch is returned by CompareAndSet when the stored value does
// not match the expected previous value.
var ErrCASMismatch = errors.New("store: compare-and-set mismatch")

// Options configures a Database backend.
type Options struct {
	// Path is the on-disk directory for embedded backends (pebble,
	// goleveldb). Ignored by the in-memory backend.
	Path string
}

// WriteTx is an atomic batch of reads and writes against a Database. All
// operations on a WriteTx observe its own uncommitted writes.
type WriteTx interface {
	Get(k []byte) ([]byte, error)
	Iterate(prefix []byte, callback func(k, v []byte) bool) error
	Set(k, v []byte) error
	Delete(k []byte) error
	Commit() error
	Discard()
}

// Database is a durable, crash-safe key-value store. Every backend
// (pebble, goleveldb, in-memory) implements this and nothing more; the KV
// helper in kv.go layers the job-coordinator-facing primitives on top.
type Database interface {
	Get(k []byte) ([]byte, error)
	Iterate(prefix []byte, callback func(k, v []byte) bool) error
	WriteTx() WriteTx
	Close() error
}

// Open selects a Database backend from a storeURL, per the Design Notes'
// "any backing store satisfying the primitives is acceptable": pebble://path
// (default, durable), memory:// (volatile, tests only), leveldb://path
// (alternate durable backend for operators already standardized on
// goleveldb).
func Open(storeURL string) (Database, error) {
	u, err := url.Parse(storeURL)
	if err != nil {
		return nil, fmt.Errorf("parse store URL: %w", err)
	}
	path := u.Host + u.Path
	switch u.Scheme {
	case "", "pebble":
		return OpenPebble(Options{Path: path})
	case "memory":
		return NewMemory(), nil
	case "leveldb":
		return OpenLevelDB(Options{Path: path})
	default:
		return nil, fmt.Errorf("unknown store scheme %q: want pebble://, memory://, or leveldb://", u.Scheme)
	}
}
