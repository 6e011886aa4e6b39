// Package metadb opens a db.Database by type name.
package metadb

import (
	"cmp"
	"fmt"
	"os"
	"testing"

	"github.com/vocdoni/zkvote/db"
	"github.com/vocdoni/zkvote/db/inmemory"
	"github.com/vocdoni/zkvote/db/pebbledb"
)

// New opens a database of type typ in dir. The inmemory type ignores dir.
func New(typ, dir string) (db.Database, error) {
	opts := db.Options{Path: dir}
	switch typ {
	case db.TypePebble:
		return pebbledb.New(opts)
	case db.TypeInMemory:
		return inmemory.New(opts)
	default:
		return nil, fmt.Errorf("invalid db type: %q. Available types: %q %q",
			typ, db.TypePebble, db.TypeInMemory)
	}
}

// ForTest returns the database type tests run against, $ZKVOTE_DB_TYPE or
// pebble.
func ForTest() (typ string) {
	return cmp.Or(os.Getenv("ZKVOTE_DB_TYPE"), db.TypePebble)
}

// NewTest opens a database of the ForTest type in a temporary directory,
// closed when the test ends.
func NewTest(tb testing.TB) db.Database {
	database, err := New(ForTest(), tb.TempDir())
	if err != nil {
		tb.Fatal(err)
	}
	tb.Cleanup(func() { _ = database.Close() })
	return database
}
