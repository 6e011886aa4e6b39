package metadb

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/zkvote/db"
)

func TestNew(t *testing.T) {
	c := qt.New(t)

	for _, typ := range []string{db.TypePebble, db.TypeInMemory} {
		database, err := New(typ, t.TempDir())
		c.Assert(err, qt.IsNil, qt.Commentf("type %s", typ))
		c.Assert(database.Close(), qt.IsNil)
	}

	_, err := New("leveldb", t.TempDir())
	c.Assert(err, qt.ErrorMatches, `invalid db type: "leveldb".*`)
}
