// Package pebbledb implements db.Database on top of cockroachdb/pebble. It is
// the persistent backend of the secret store.
package pebbledb

import (
	"errors"
	"fmt"
	"os"

	"github.com/cockroachdb/pebble"
	"github.com/vocdoni/zkvote/db"
)

// WriteTx implements db.WriteTx with an indexed pebble batch, so reads see
// the pending writes. Batches do not detect conflicts: the last commit wins.
type WriteTx struct {
	batch *pebble.Batch
}

var _ db.WriteTx = (*WriteTx)(nil)

func get(reader pebble.Reader, k []byte) ([]byte, error) {
	v, closer, err := reader.Get(k)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, db.ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	// the value is only valid until closer is called
	out := make([]byte, len(v))
	copy(out, v)
	if err := closer.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

func iterate(reader pebble.Reader, prefix []byte, callback func(k, v []byte) bool) (err error) {
	iter, err := reader.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer func() {
		if errC := iter.Close(); err == nil {
			err = errC
		}
	}()
	for iter.First(); iter.Valid(); iter.Next() {
		if !callback(iter.Key()[len(prefix):], iter.Value()) {
			break
		}
	}
	return iter.Error()
}

// Get implements db.Reader.
func (tx *WriteTx) Get(k []byte) ([]byte, error) {
	if tx.batch == nil {
		return nil, fmt.Errorf("pebble tx already committed or discarded")
	}
	return get(tx.batch, k)
}

// Iterate implements db.Reader.
func (tx *WriteTx) Iterate(prefix []byte, callback func(k, v []byte) bool) error {
	if tx.batch == nil {
		return fmt.Errorf("pebble tx already committed or discarded")
	}
	return iterate(tx.batch, prefix, callback)
}

// Set implements db.WriteTx.
func (tx *WriteTx) Set(k, v []byte) error {
	return tx.batch.Set(k, v, nil)
}

// Delete implements db.WriteTx.
func (tx *WriteTx) Delete(k []byte) error {
	return tx.batch.Delete(k, nil)
}

// Apply implements db.WriteTx.
func (tx *WriteTx) Apply(other db.WriteTx) error {
	o, ok := db.UnwrapWriteTx(other).(*WriteTx)
	if !ok {
		return fmt.Errorf("cannot apply %T into pebble tx", other)
	}
	return tx.batch.Apply(o.batch, nil)
}

// Commit implements db.WriteTx. Writes are synced to disk.
func (tx *WriteTx) Commit() error {
	if tx.batch == nil {
		return fmt.Errorf("cannot commit pebble tx: already committed or discarded")
	}
	err := tx.batch.Commit(pebble.Sync)
	tx.batch = nil
	return err
}

// Discard implements db.WriteTx.
func (tx *WriteTx) Discard() {
	if tx.batch == nil {
		// closing a pooled batch twice races with its reuse
		return
	}
	_ = tx.batch.Close()
	tx.batch = nil
}

// PebbleDB implements db.Database.
type PebbleDB struct {
	db *pebble.DB
}

var _ db.Database = (*PebbleDB)(nil)

// New opens, or creates, a pebble database in opts.Path.
func New(opts db.Options) (*PebbleDB, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("pebble database path is empty")
	}
	if err := os.MkdirAll(opts.Path, 0o700); err != nil {
		return nil, err
	}
	o := &pebble.Options{
		Levels: []pebble.LevelOptions{
			{Compression: pebble.SnappyCompression},
		},
	}
	pdb, err := pebble.Open(opts.Path, o)
	if err != nil {
		return nil, fmt.Errorf("open pebble database %s: %w", opts.Path, err)
	}
	return &PebbleDB{db: pdb}, nil
}

// Get implements db.Reader.
func (d *PebbleDB) Get(k []byte) ([]byte, error) {
	return get(d.db, k)
}

// Iterate implements db.Reader.
func (d *PebbleDB) Iterate(prefix []byte, callback func(k, v []byte) bool) error {
	return iterate(d.db, prefix, callback)
}

// WriteTx implements db.Database.
func (d *PebbleDB) WriteTx() db.WriteTx {
	return &WriteTx{batch: d.db.NewIndexedBatch()}
}

// Close implements db.Database.
func (d *PebbleDB) Close() error {
	return d.db.Close()
}

// Compact implements db.Database.
func (d *PebbleDB) Compact() error {
	iter, err := d.db.NewIter(nil)
	if err != nil {
		return err
	}
	var first, last []byte
	if iter.First() {
		first = append(first, iter.Key()...)
	}
	if iter.Last() {
		last = append(last, iter.Key()...)
	}
	if err := iter.Close(); err != nil {
		return err
	}
	if first == nil {
		return nil
	}
	return d.db.Compact(first, append(last, 0), true)
}

// keyUpperBound returns the smallest key greater than every key prefixed by
// b, or nil if there is none.
func keyUpperBound(b []byte) []byte {
	end := make([]byte, len(b))
	copy(end, b)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
