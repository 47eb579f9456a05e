package store

import (
	"bytes"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDB is an alternate embedded Database backend (goleveldb), offered
// alongside PebbleDB for deployments that already standardize on
// goleveldb elsewhere in their stack.
type LevelDB struct {
	db *leveldb.DB
}

var _ Database = (*LevelDB)(nil)

// OpenLevelDB opens (or creates) a goleveldb store at opts.Path.
func OpenLevelDB(opts Options) (*LevelDB, error) {
	db, err := leveldb.OpenFile(opts.Path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

// Get implements Database.
func (l *LevelDB) Get(k []byte) ([]byte, error) {
	v, err := l.db.Get(k, nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return bytes.Clone(v), nil
}

// Iterate implements Database.
func (l *LevelDB) Iterate(prefix []byte, callback func(k, v []byte) bool) error {
	iter := l.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()
	for iter.Next() {
		localKey := bytes.Clone(iter.Key()[len(prefix):])
		value := bytes.Clone(iter.Value())
		if !callback(localKey, value) {
			break
		}
	}
	return iter.Error()
}

// WriteTx implements Database.
func (l *LevelDB) WriteTx() WriteTx {
	return &levelTx{parent: l, batch: new(leveldb.Batch), overlay: make(map[string][]byte), deleted: make(map[string]bool)}
}

// Close implements Database.
func (l *LevelDB) Close() error {
	return l.db.Close()
}

type levelTx struct {
	parent  *LevelDB
	batch   *leveldb.Batch
	overlay map[string][]byte
	deleted map[string]bool
	done    bool
}

var _ WriteTx = (*levelTx)(nil)

func (tx *levelTx) Get(k []byte) ([]byte, error) {
	key := string(k)
	if tx.deleted[key] {
		return nil, ErrKeyNotFound
	}
	if v, ok := tx.overlay[key]; ok {
		return bytes.Clone(v), nil
	}
	return tx.parent.Get(k)
}

func (tx *levelTx) Iterate(prefix []byte, callback func(k, v []byte) bool) error {
	return tx.parent.Iterate(prefix, func(k, v []byte) bool {
		full := append(append([]byte{}, prefix...), k...)
		key := string(full)
		if tx.deleted[key] {
			return true
		}
		if override, ok := tx.overlay[key]; ok {
			v = override
		}
		return callback(k, v)
	})
}

func (tx *levelTx) Set(k, v []byte) error {
	tx.batch.Put(k, v)
	tx.overlay[string(k)] = bytes.Clone(v)
	delete(tx.deleted, string(k))
	return nil
}

func (tx *levelTx) Delete(k []byte) error {
	tx.batch.Delete(k)
	tx.deleted[string(k)] = true
	delete(tx.overlay, string(k))
	return nil
}

func (tx *levelTx) Commit() error {
	if tx.done {
		return nil
	}
	tx.done = true
	return tx.parent.db.Write(tx.batch, nil)
}

func (tx *levelTx) Discard() {
	tx.done = true
}
