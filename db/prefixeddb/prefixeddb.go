// Package prefixeddb wraps a db.Database so every key is transparently
// prefixed. The secret store uses it to give each record kind its own key
// space.
package prefixeddb

import (
	"github.com/vocdoni/zkvote/db"
)

// PrefixedDatabase wraps a db.Database prefixing all keys with prefix.
type PrefixedDatabase struct {
	prefix []byte
	db     db.Database
}

var _ db.Database = (*PrefixedDatabase)(nil)

func prefixSlice(prefix, v []byte) []byte {
	joint := make([]byte, 0, len(prefix)+len(v))
	joint = append(joint, prefix...)
	joint = append(joint, v...)
	// fixed capacity so later appends never share the backing array
	return joint[:len(joint):len(joint)]
}

// NewPrefixedDatabase wraps database. Nested prefixed databases are flattened
// into one layer.
func NewPrefixedDatabase(database db.Database, prefix []byte) *PrefixedDatabase {
	if pdb, ok := database.(*PrefixedDatabase); ok {
		return &PrefixedDatabase{prefixSlice(pdb.prefix, prefix), pdb.db}
	}
	return &PrefixedDatabase{prefixSlice(nil, prefix), database}
}

// Close closes the wrapped database.
func (d *PrefixedDatabase) Close() error {
	return d.db.Close()
}

// Compact compacts the wrapped database.
func (d *PrefixedDatabase) Compact() error {
	return d.db.Compact()
}

// Get implements db.Reader.
func (d *PrefixedDatabase) Get(key []byte) ([]byte, error) {
	return d.db.Get(prefixSlice(d.prefix, key))
}

// Iterate implements db.Reader. Keys passed to callback are relative to the
// iterated prefix, as for every db.Reader.
func (d *PrefixedDatabase) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	return d.db.Iterate(prefixSlice(d.prefix, prefix), callback)
}

// WriteTx implements db.Database.
func (d *PrefixedDatabase) WriteTx() db.WriteTx {
	return NewPrefixedWriteTx(d.db.WriteTx(), d.prefix)
}

// PrefixedWriteTx wraps a db.WriteTx prefixing all keys with prefix.
type PrefixedWriteTx struct {
	prefix []byte
	tx     db.WriteTx
}

var _ db.WriteTx = (*PrefixedWriteTx)(nil)

// NewPrefixedWriteTx wraps tx. Nested prefixed transactions are flattened
// into one layer.
func NewPrefixedWriteTx(tx db.WriteTx, prefix []byte) *PrefixedWriteTx {
	if ptx, ok := tx.(*PrefixedWriteTx); ok {
		return &PrefixedWriteTx{prefixSlice(ptx.prefix, prefix), ptx.tx}
	}
	return &PrefixedWriteTx{prefixSlice(nil, prefix), tx}
}

// Unwrap returns the wrapped transaction.
func (t *PrefixedWriteTx) Unwrap() db.WriteTx {
	return t.tx
}

// Get implements db.Reader.
func (t *PrefixedWriteTx) Get(key []byte) ([]byte, error) {
	return t.tx.Get(prefixSlice(t.prefix, key))
}

// Iterate implements db.Reader.
func (t *PrefixedWriteTx) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	return t.tx.Iterate(prefixSlice(t.prefix, prefix), callback)
}

// Set implements db.WriteTx.
func (t *PrefixedWriteTx) Set(key, value []byte) error {
	return t.tx.Set(prefixSlice(t.prefix, key), value)
}

// Delete implements db.WriteTx.
func (t *PrefixedWriteTx) Delete(key []byte) error {
	return t.tx.Delete(prefixSlice(t.prefix, key))
}

// Apply implements db.WriteTx.
func (t *PrefixedWriteTx) Apply(other db.WriteTx) error {
	return t.tx.Apply(other)
}

// Commit commits the wrapped transaction.
func (t *PrefixedWriteTx) Commit() error {
	return t.tx.Commit()
}

// Discard discards the wrapped transaction.
func (t *PrefixedWriteTx) Discard() {
	t.tx.Discard()
}
