package store

import (
	"bytes"
	"sort"
	"sync"
)

// MemoryDB is an in-process Database backend for tests and for the
// single-instance deployment mode that doesn't need cross-process
// durability.
type MemoryDB struct {
	mu   sync.Mutex
	data map[string][]byte
}

var _ Database = (*MemoryDB)(nil)

// NewMemory constructs an empty in-memory Database.
func NewMemory() *MemoryDB {
	return &MemoryDB{data: make(map[string][]byte)}
}

// Get implements Database.
func (m *MemoryDB) Get(k []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[string(k)]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return bytes.Clone(v), nil
}

// Iterate implements Database.
func (m *MemoryDB) Iterate(prefix []byte, callback func(k, v []byte) bool) error {
	m.mu.Lock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	type kv struct{ k, v []byte }
	snapshot := make([]kv, 0, len(keys))
	for _, k := range keys {
		snapshot = append(snapshot, kv{k: []byte(k), v: bytes.Clone(m.data[k])})
	}
	m.mu.Unlock()

	for _, e := range snapshot {
		if !callback(e.k[len(prefix):], e.v) {
			break
		}
	}
	return nil
}

// WriteTx implements Database.
func (m *MemoryDB) WriteTx() WriteTx {
	return &memoryTx{parent: m, writes: make(map[string][]byte), deletes: make(map[string]bool)}
}

// Close implements Database.
func (m *MemoryDB) Close() error { return nil }

type memoryTx struct {
	parent  *MemoryDB
	writes  map[string][]byte
	deletes map[string]bool
	done    bool
}

var _ WriteTx = (*memoryTx)(nil)

func (tx *memoryTx) Get(k []byte) ([]byte, error) {
	key := string(k)
	if tx.deletes[key] {
		return nil, ErrKeyNotFound
	}
	if v, ok := tx.writes[key]; ok {
		return bytes.Clone(v), nil
	}
	return tx.parent.Get(k)
}

func (tx *memoryTx) Iterate(prefix []byte, callback func(k, v []byte) bool) error {
	return tx.parent.Iterate(prefix, func(k, v []byte) bool {
		full := append(append([]byte{}, prefix...), k...)
		key := string(full)
		if tx.deletes[key] {
			return true
		}
		if override, ok := tx.writes[key]; ok {
			v = override
		}
		return callback(k, v)
	})
}

func (tx *memoryTx) Set(k, v []byte) error {
	key := string(k)
	tx.writes[key] = bytes.Clone(v)
	delete(tx.deletes, key)
	return nil
}

func (tx *memoryTx) Delete(k []byte) error {
	key := string(k)
	tx.deletes[key] = true
	delete(tx.writes, key)
	return nil
}

func (tx *memoryTx) Commit() error {
	if tx.done {
		return nil
	}
	tx.parent.mu.Lock()
	defer tx.parent.mu.Unlock()
	for k, v := range tx.writes {
		tx.parent.data[k] = v
	}
	for k := range tx.deletes {
		delete(tx.parent.data, k)
	}
	tx.done = true
	return nil
}

func (tx *memoryTx) Discard() {
	tx.done = true
}
