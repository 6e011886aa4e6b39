// Package inmemory implements an ephemeral db.Database with optimistic
// conflict detection. It backs tests and runs without a data directory.
package inmemory

import (
	"bytes"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/vocdoni/zkvote/db"
)

type entry struct {
	value   []byte
	version uint64
	deleted bool
}

// DB implements an in-memory db.Database.
type DB struct {
	mu      sync.RWMutex
	data    map[string]entry
	version uint64
	closed  bool
}

var _ db.Database = (*DB)(nil)

// New returns a new in-memory database. Options are ignored.
func New(_ db.Options) (*DB, error) {
	return &DB{data: make(map[string]entry)}, nil
}

// Close marks the database as closed. Reads and commits fail afterwards.
func (d *DB) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

// Compact drops tombstones.
func (d *DB) Compact() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, ent := range d.data {
		if ent.deleted {
			delete(d.data, k)
		}
	}
	return nil
}

// WriteTx opens a transaction over the current snapshot version.
func (d *DB) WriteTx() db.WriteTx {
	d.mu.RLock()
	base := d.version
	d.mu.RUnlock()
	return &WriteTx{
		db:     d,
		writes: make(map[string]*[]byte),
		reads:  make(map[string]uint64),
		base:   base,
	}
}

// Get implements db.Reader.
func (d *DB) Get(key []byte) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, fmt.Errorf("inmemory db closed")
	}
	ent, ok := d.data[string(key)]
	if !ok || ent.deleted {
		return nil, db.ErrKeyNotFound
	}
	return bytes.Clone(ent.value), nil
}

// Iterate implements db.Reader.
func (d *DB) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	entries, _, err := d.snapshot(prefix)
	if err != nil {
		return err
	}
	return iterateEntries(prefix, entries, callback)
}

// snapshot copies the live entries under prefix along with their versions.
func (d *DB) snapshot(prefix []byte) (map[string][]byte, map[string]uint64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, nil, fmt.Errorf("inmemory db closed")
	}
	entries := make(map[string][]byte)
	versions := make(map[string]uint64)
	for k, ent := range d.data {
		if ent.deleted || !strings.HasPrefix(k, string(prefix)) {
			continue
		}
		entries[k] = bytes.Clone(ent.value)
		versions[k] = ent.version
	}
	return entries, versions, nil
}

func (d *DB) versionOf(key string) uint64 {
	return d.data[key].version
}

// WriteTx buffers writes and records the version of every key it touches.
// Commit fails with db.ErrConflict if any of them changed meanwhile.
type WriteTx struct {
	db     *DB
	writes map[string]*[]byte // nil value means delete
	reads  map[string]uint64
	base   uint64
	done   bool
}

var _ db.WriteTx = (*WriteTx)(nil)

func (tx *WriteTx) track(key string) {
	if _, ok := tx.reads[key]; ok {
		return
	}
	tx.db.mu.RLock()
	tx.reads[key] = tx.db.versionOf(key)
	tx.db.mu.RUnlock()
}

// Get implements db.Reader, pending writes included.
func (tx *WriteTx) Get(key []byte) ([]byte, error) {
	k := string(key)
	if pending, ok := tx.writes[k]; ok {
		if pending == nil {
			return nil, db.ErrKeyNotFound
		}
		return bytes.Clone(*pending), nil
	}
	tx.track(k)
	return tx.db.Get(key)
}

// Iterate implements db.Reader, pending writes included.
func (tx *WriteTx) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	entries, versions, err := tx.db.snapshot(prefix)
	if err != nil {
		return err
	}
	for k := range versions {
		tx.track(k)
	}
	for k, v := range tx.writes {
		if !strings.HasPrefix(k, string(prefix)) {
			continue
		}
		if v == nil {
			delete(entries, k)
			continue
		}
		entries[k] = bytes.Clone(*v)
	}
	return iterateEntries(prefix, entries, callback)
}

// Set implements db.WriteTx.
func (tx *WriteTx) Set(key, value []byte) error {
	k := string(key)
	tx.track(k)
	v := bytes.Clone(value)
	tx.writes[k] = &v
	return nil
}

// Delete implements db.WriteTx.
func (tx *WriteTx) Delete(key []byte) error {
	k := string(key)
	tx.track(k)
	tx.writes[k] = nil
	return nil
}

// Apply implements db.WriteTx. Only pending writes of another in-memory
// transaction are copied, deletes included.
func (tx *WriteTx) Apply(other db.WriteTx) error {
	o, ok := db.UnwrapWriteTx(other).(*WriteTx)
	if !ok {
		return fmt.Errorf("cannot apply %T into inmemory tx", other)
	}
	for k, v := range o.writes {
		if v == nil {
			if err := tx.Delete([]byte(k)); err != nil {
				return err
			}
			continue
		}
		if err := tx.Set([]byte(k), *v); err != nil {
			return err
		}
	}
	return nil
}

// Commit implements db.WriteTx.
func (tx *WriteTx) Commit() error {
	if tx.done {
		return fmt.Errorf("cannot commit inmemory tx: already committed or discarded")
	}
	tx.db.mu.Lock()
	defer tx.db.mu.Unlock()
	if tx.db.closed {
		return fmt.Errorf("inmemory db closed")
	}
	for k, seen := range tx.reads {
		if current := tx.db.versionOf(k); seen > tx.base || current != seen {
			return db.ErrConflict
		}
	}
	for k, v := range tx.writes {
		tx.db.version++
		ent := entry{version: tx.db.version, deleted: v == nil}
		if v != nil {
			ent.value = *v
		}
		tx.db.data[k] = ent
	}
	tx.done = true
	return nil
}

// Discard implements db.WriteTx.
func (tx *WriteTx) Discard() {
	tx.writes = map[string]*[]byte{}
	tx.reads = map[string]uint64{}
	tx.done = true
}

func iterateEntries(prefix []byte, entries map[string][]byte, callback func(key, value []byte) bool) error {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if !callback([]byte(k)[len(prefix):], entries[k]) {
			break
		}
	}
	return nil
}
