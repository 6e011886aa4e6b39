package inmemory

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/zkvote/db"
	"github.com/vocdoni/zkvote/db/internal/dbtest"
)

func newTestDB(t *testing.T) *DB {
	database, err := New(db.Options{})
	qt.Assert(t, err, qt.IsNil)
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

func TestConcurrentWriteTx(t *testing.T) {
	dbtest.TestConcurrentWriteTx(t, newTestDB(t))
}

func TestClosed(t *testing.T) {
	c := qt.New(t)
	database := newTestDB(t)

	wTx := database.WriteTx()
	c.Assert(wTx.Set([]byte("k"), []byte("v")), qt.IsNil)
	c.Assert(database.Close(), qt.IsNil)
	c.Assert(wTx.Commit(), qt.ErrorMatches, "inmemory db closed")
	_, err := database.Get([]byte("k"))
	c.Assert(err, qt.ErrorMatches, "inmemory db closed")
}

func TestCompactKeepsLiveKeys(t *testing.T) {
	c := qt.New(t)
	database := newTestDB(t)

	wTx := database.WriteTx()
	c.Assert(wTx.Set([]byte("a"), []byte("1")), qt.IsNil)
	c.Assert(wTx.Set([]byte("b"), []byte("2")), qt.IsNil)
	c.Assert(wTx.Commit(), qt.IsNil)
	wTx = database.WriteTx()
	c.Assert(wTx.Delete([]byte("a")), qt.IsNil)
	c.Assert(wTx.Commit(), qt.IsNil)

	c.Assert(database.Compact(), qt.IsNil)
	c.Assert(database.data, qt.HasLen, 1)
	v, err := database.Get([]byte("b"))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, []byte("2"))
}
