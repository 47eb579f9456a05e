package store

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/pebble"
)

// PebbleDB is the Database backend used in production, per the ambient
// embedded-KV convention. It wraps cockroachdb/pebble the same way the
// queue and cache primitives expect: Get/Iterate directly against the
// engine, Set/Delete/Commit batched through a WriteTx.
type PebbleDB struct {
	db *pebble.DB
}

var _ Database = (*PebbleDB)(nil)

// OpenPebble opens (or creates) a pebble store at opts.Path.
func OpenPebble(opts Options) (*PebbleDB, error) {
	if err := os.MkdirAll(opts.Path, os.ModePerm); err != nil {
		return nil, err
	}
	o := &pebble.Options{
		Levels: []pebble.LevelOptions{{Compression: pebble.SnappyCompression}},
	}
	db, err := pebble.Open(opts.Path, o)
	if err != nil {
		return nil, err
	}
	return &PebbleDB{db: db}, nil
}

// Get implements Database.
func (p *PebbleDB) Get(k []byte) ([]byte, error) {
	return pebbleGet(p.db, k)
}

// Iterate implements Database.
func (p *PebbleDB) Iterate(prefix []byte, callback func(k, v []byte) bool) error {
	return pebbleIterate(p.db, prefix, callback)
}

// WriteTx implements Database.
func (p *PebbleDB) WriteTx() WriteTx {
	return &pebbleTx{batch: p.db.NewIndexedBatch()}
}

// Close implements Database.
func (p *PebbleDB) Close() error {
	return p.db.Close()
}

type pebbleReader interface {
	Get(key []byte) (value []byte, closer io.Closer, err error)
	NewIter(o *pebble.IterOptions) (*pebble.Iterator, error)
}

func pebbleGet(reader pebbleReader, k []byte) ([]byte, error) {
	v, closer, err := reader.Get(k)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	out := bytes.Clone(v)
	if err := closer.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

func pebbleIterate(reader pebbleReader, prefix []byte, callback func(k, v []byte) bool) (err error) {
	iter, err := reader.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer func() {
		closeErr := iter.Close()
		if err == nil {
			err = closeErr
		}
	}()
	for iter.First(); iter.Valid(); iter.Next() {
		localKey := iter.Key()[len(prefix):]
		if !callback(localKey, iter.Value()) {
			break
		}
	}
	return iter.Error()
}

// keyUpperBound derives the exclusive upper bound of a key prefix scan.
func keyUpperBound(b []byte) []byte {
	end := bytes.Clone(b)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

type pebbleTx struct {
	batch *pebble.Batch
}

var _ WriteTx = (*pebbleTx)(nil)

func (tx *pebbleTx) Get(k []byte) ([]byte, error) {
	return pebbleGet(tx.batch, k)
}

func (tx *pebbleTx) Iterate(prefix []byte, callback func(k, v []byte) bool) error {
	return pebbleIterate(tx.batch, prefix, callback)
}

func (tx *pebbleTx) Set(k, v []byte) error {
	return tx.batch.Set(k, v, nil)
}

func (tx *pebbleTx) Delete(k []byte) error {
	return tx.batch.Delete(k, nil)
}

func (tx *pebbleTx) Commit() error {
	if tx.batch == nil {
		return fmt.Errorf("commit on already-committed or discarded transaction")
	}
	err := tx.batch.Commit(nil)
	tx.batch = nil
	return err
}

func (tx *pebbleTx) Discard() {
	if tx.batch == nil {
		return
	}
	_ = tx.batch.Close()
	tx.batch = nil
}
