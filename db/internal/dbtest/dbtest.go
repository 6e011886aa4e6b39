// Package dbtest holds the behaviour tests shared by every db.Database
// implementation.
package dbtest

import (
	"fmt"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/zkvote/db"
	"github.com/vocdoni/zkvote/db/prefixeddb"
)

// TestWriteTx checks read-your-writes, commit visibility and discard.
func TestWriteTx(t *testing.T, database db.Database) {
	c := qt.New(t)

	wTx := database.WriteTx()
	_, err := wTx.Get([]byte("a"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)

	c.Assert(wTx.Set([]byte("a"), []byte("b")), qt.IsNil)
	v, err := wTx.Get([]byte("a"))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, []byte("b"))

	// not visible before commit
	_, err = database.Get([]byte("a"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)

	c.Assert(wTx.Commit(), qt.IsNil)
	wTx.Discard()
	c.Assert(wTx.Commit(), qt.Not(qt.IsNil))

	v, err = database.Get([]byte("a"))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, []byte("b"))

	// discarded writes are never visible
	wTx = database.WriteTx()
	c.Assert(wTx.Set([]byte("a"), []byte("c")), qt.IsNil)
	c.Assert(wTx.Set([]byte("d"), []byte("e")), qt.IsNil)
	wTx.Discard()
	v, err = database.Get([]byte("a"))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, []byte("b"))
	_, err = database.Get([]byte("d"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)

	wTx = database.WriteTx()
	c.Assert(wTx.Delete([]byte("a")), qt.IsNil)
	_, err = wTx.Get([]byte("a"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)
	c.Assert(wTx.Commit(), qt.IsNil)
	_, err = database.Get([]byte("a"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)
}

// TestIterate checks prefix filtering, ordering, key stripping and early
// stop.
func TestIterate(t *testing.T, database db.Database) {
	c := qt.New(t)

	wTx := database.WriteTx()
	for i := range 20 {
		c.Assert(wTx.Set(fmt.Appendf(nil, "a%02d", i), fmt.Appendf(nil, "%d", i)), qt.IsNil)
	}
	for i := range 30 {
		c.Assert(wTx.Set(fmt.Appendf(nil, "b%02d", i), fmt.Appendf(nil, "%d", i)), qt.IsNil)
	}
	c.Assert(wTx.Commit(), qt.IsNil)

	count := func(prefix []byte) int {
		n := 0
		c.Assert(database.Iterate(prefix, func(_, _ []byte) bool {
			n++
			return true
		}), qt.IsNil)
		return n
	}
	c.Assert(count(nil), qt.Equals, 50)
	c.Assert(count([]byte("a")), qt.Equals, 20)
	c.Assert(count([]byte("b")), qt.Equals, 30)
	c.Assert(count([]byte("c")), qt.Equals, 0)

	var keys []string
	c.Assert(database.Iterate([]byte("b"), func(k, _ []byte) bool {
		keys = append(keys, string(k))
		return len(keys) < 3
	}), qt.IsNil)
	c.Assert(keys, qt.DeepEquals, []string{"00", "01", "02"})

	// pending writes are visible to the transaction iterator
	wTx = database.WriteTx()
	defer wTx.Discard()
	c.Assert(wTx.Set([]byte("c1"), []byte("x")), qt.IsNil)
	c.Assert(wTx.Delete([]byte("a00")), qt.IsNil)
	n := 0
	c.Assert(wTx.Iterate([]byte("a"), func(_, _ []byte) bool { n++; return true }), qt.IsNil)
	c.Assert(n, qt.Equals, 19)
	n = 0
	c.Assert(wTx.Iterate([]byte("c"), func(_, _ []byte) bool { n++; return true }), qt.IsNil)
	c.Assert(n, qt.Equals, 1)
}

// TestWriteTxApply checks that writes of one transaction can be applied into
// another.
func TestWriteTxApply(t *testing.T, database db.Database) {
	c := qt.New(t)

	wTx := database.WriteTx()
	c.Assert(wTx.Set([]byte("k1"), []byte("v1")), qt.IsNil)
	c.Assert(wTx.Commit(), qt.IsNil)

	other := database.WriteTx()
	c.Assert(other.Set([]byte("k2"), []byte("v2")), qt.IsNil)
	c.Assert(other.Delete([]byte("k1")), qt.IsNil)

	wTx = database.WriteTx()
	c.Assert(wTx.Apply(other), qt.IsNil)
	c.Assert(wTx.Commit(), qt.IsNil)
	other.Discard()

	v, err := database.Get([]byte("k2"))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, []byte("v2"))
	_, err = database.Get([]byte("k1"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)
}

// TestPrefixed checks that a prefixed view isolates its key space.
func TestPrefixed(t *testing.T, database db.Database) {
	c := qt.New(t)

	one := prefixeddb.NewPrefixedDatabase(database, []byte("one/"))
	two := prefixeddb.NewPrefixedDatabase(database, []byte("two/"))

	wTx := one.WriteTx()
	c.Assert(wTx.Set([]byte("key"), []byte("1")), qt.IsNil)
	c.Assert(wTx.Commit(), qt.IsNil)

	_, err := two.Get([]byte("key"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)
	v, err := database.Get([]byte("one/key"))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, []byte("1"))

	nested := prefixeddb.NewPrefixedDatabase(one, []byte("sub/"))
	wTx = nested.WriteTx()
	c.Assert(wTx.Set([]byte("k"), []byte("2")), qt.IsNil)
	c.Assert(wTx.Commit(), qt.IsNil)
	v, err = database.Get([]byte("one/sub/k"))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, []byte("2"))

	var keys []string
	c.Assert(one.Iterate(nil, func(k, _ []byte) bool {
		keys = append(keys, string(k))
		return true
	}), qt.IsNil)
	c.Assert(keys, qt.DeepEquals, []string{"key", "sub/k"})
}

// TestConcurrentWriteTx checks conflict detection between two transactions
// writing the same key. Only backends with conflict detection run it.
func TestConcurrentWriteTx(t *testing.T, database db.Database) {
	c := qt.New(t)

	first := database.WriteTx()
	second := database.WriteTx()
	_, _ = first.Get([]byte("counter"))
	_, _ = second.Get([]byte("counter"))
	c.Assert(first.Set([]byte("counter"), []byte("1")), qt.IsNil)
	c.Assert(second.Set([]byte("counter"), []byte("2")), qt.IsNil)

	c.Assert(first.Commit(), qt.IsNil)
	c.Assert(second.Commit(), qt.ErrorIs, db.ErrConflict)

	v, err := database.Get([]byte("counter"))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, []byte("1"))
}
