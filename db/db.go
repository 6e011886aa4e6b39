// Package db defines the key/value database abstraction the secret store is
// built on. Implementations live in the pebbledb and inmemory subpackages.
package db

import (
	"errors"
	"io"
)

const (
	TypePebble   = "pebble"
	TypeInMemory = "inmemory"
)

// ErrKeyNotFound is used to indicate that a key does not exist in the db.
var ErrKeyNotFound = errors.New("key not found")

// ErrConflict is returned when a transaction conflicts with another one
// committed after it was opened. Only backends with conflict detection return
// it.
var ErrConflict = errors.New("txn conflict")

// Options defines generic parameters for creating a new Database.
type Options struct {
	Path string
}

// Database wraps all database operations. All methods are safe for
// concurrent use.
type Database interface {
	io.Closer

	Reader

	// WriteTx creates a new write transaction.
	WriteTx() WriteTx

	// Compact compacts the underlying storage.
	Compact() error
}

// Reader contains the read-only database operations.
type Reader interface {
	// Get retrieves the value for the given key. If the key does not exist,
	// returns ErrKeyNotFound.
	Get(key []byte) ([]byte, error)

	// Iterate calls callback with all key-value pairs whose key starts with
	// prefix, ordered lexicographically by key. The key passed to the callback
	// has the prefix removed. Iteration stops when the callback returns false.
	//
	// The slices are only valid until the callback returns.
	Iterate(prefix []byte, callback func(key, value []byte) bool) error
}

// WriteTx is a set of writes applied atomically on Commit.
type WriteTx interface {
	Reader

	// Set adds a key-value pair. If the key already exists, its value is
	// updated.
	Set(key []byte, value []byte) error
	// Delete deletes a key and its value.
	Delete(key []byte) error
	// Apply copies the pending writes of other into this transaction.
	Apply(other WriteTx) error
	// Commit commits the transaction into the db. Calling Commit more than
	// once, or after Discard, is an error.
	Commit() error
	// Discard releases the transaction resources. It can be called after
	// Commit or Discard, so it is safe to defer.
	Discard()
}

// UnwrapWriteTx unwraps (if possible) the WriteTx using its Unwrap method.
func UnwrapWriteTx(tx WriteTx) WriteTx {
	for {
		wtx, ok := tx.(interface{ Unwrap() WriteTx })
		if !ok {
			return tx
		}
		tx = wtx.Unwrap()
	}
}

