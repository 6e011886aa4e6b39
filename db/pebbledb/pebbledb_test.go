package pebbledb

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/zkvote/db"
	"github.com/vocdoni/zkvote/db/internal/dbtest"
)

func newTestDB(t *testing.T) *PebbleDB {
	database, err := New(db.Options{Path: t.TempDir()})
	qt.Assert(t, err, qt.IsNil)
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func TestWriteTx(t *testing.T) {
	dbtest.TestWriteTx(t, newTestDB(t))
}

func TestIterate(t *testing.T) {
	dbtest.TestIterate(t, newTestDB(t))
}

func TestWriteTxApply(t *testing.T) {
	dbtest.TestWriteTxApply(t, newTestDB(t))
}

func TestPrefixed(t *testing.T) {
	dbtest.TestPrefixed(t, newTestDB(t))
}

// pebble batches are not transactions and do not detect conflicts, so
// dbtest.TestConcurrentWriteTx does not apply.

func TestReopen(t *testing.T) {
	c := qt.New(t)
	dir := t.TempDir()

	database, err := New(db.Options{Path: dir})
	c.Assert(err, qt.IsNil)
	wTx := database.WriteTx()
	c.Assert(wTx.Set([]byte("persisted"), []byte("yes")), qt.IsNil)
	c.Assert(wTx.Commit(), qt.IsNil)
	c.Assert(database.Compact(), qt.IsNil)
	c.Assert(database.Close(), qt.IsNil)

	database, err = New(db.Options{Path: dir})
	c.Assert(err, qt.IsNil)
	defer database.Close()
	v, err := database.Get([]byte("persisted"))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, []byte("yes"))
}

func TestEmptyPath(t *testing.T) {
	_, err := New(db.Options{})
	qt.Assert(t, err, qt.ErrorMatches, "pebble database path is empty")
}

func TestKeyUpperBound(t *testing.T) {
	c := qt.New(t)
	c.Assert(keyUpperBound([]byte{0x01, 0x02}), qt.DeepEquals, []byte{0x01, 0x03})
	c.Assert(keyUpperBound([]byte{0x01, 0xff}), qt.DeepEquals, []byte{0x02})
	c.Assert(keyUpperBound([]byte{0xff, 0xff}), qt.IsNil)
}
