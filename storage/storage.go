/*
Package storage persists the per-voter secret state of the voting client.

Every record belongs to a Scope, the keccak256 hash of the ledger address and
the voter address, so a voter taking part in several ballots keeps independent
state for each of them.

# Storage Organization

Records are CBOR encoded inside a versioned envelope and stored under
prefixed namespaces:

  - c/  : scope → CommitmentRecord (nullifier, secret, commitment, leaf index)
  - p/  : scope + vote → ProofBundle (one slot per choice)
  - r/  : scope → RelayIdentity (disposable key used to submit the vote)
  - s/  : scope → SubmissionRecord (relay state machine and signed payload)

Each save is a single transaction commit, so readers observe either the
previous record or the new one. Records that cannot be decoded or fail
validation are logged and reported as ErrNotFound.
*/
package storage

import (
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vocdoni/zkvote/db"
	"github.com/vocdoni/zkvote/db/prefixeddb"
	"github.com/vocdoni/zkvote/log"
	"github.com/vocdoni/zkvote/types"
)

var (
	ErrNotFound = errors.New("not found")

	// Prefixes
	commitmentPrefix    = []byte("c/")
	proofPrefix         = []byte("p/")
	relayIdentityPrefix = []byte("r/")
	submissionPrefix    = []byte("s/")

	allPrefixes = [][]byte{commitmentPrefix, proofPrefix, relayIdentityPrefix, submissionPrefix}

	cacheSize = 256
)

// Storage is the secret store. It is safe for concurrent use; writes to the
// same scope are serialized.
type Storage struct {
	db    db.Database
	cache *lru.Cache[string, []byte] // encoded records by full key

	// cacheMu orders cache fills against writes. gens counts the writes of
	// each key; a reader only caches what it read if no write started since.
	cacheMu sync.Mutex
	gens    map[string]uint64

	locksMu sync.Mutex
	locks   map[Scope]*sync.Mutex
}

// New creates a Storage on top of database.
func New(database db.Database) *Storage {
	cache, err := lru.New[string, []byte](cacheSize)
	if err != nil {
		log.Fatalf("failed to create LRU cache: %v", err)
	}
	return &Storage{
		db:    database,
		cache: cache,
		gens:  make(map[string]uint64),
		locks: make(map[Scope]*sync.Mutex),
	}
}

// Close closes the underlying database.
func (s *Storage) Close() {
	if err := s.db.Close(); err != nil {
		log.Warnw("failed to close storage", "error", err)
	}
}

// lockScope acquires the writer lock of scope and returns its release.
func (s *Storage) lockScope(scope Scope) func() {
	s.locksMu.Lock()
	mu, ok := s.locks[scope]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[scope] = mu
	}
	s.locksMu.Unlock()
	mu.Lock()
	return mu.Unlock
}

func cacheKey(prefix, key []byte) string {
	return string(prefix) + string(key)
}

// generation returns the write counter of k.
func (s *Storage) generation(k string) uint64 {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	return s.gens[k]
}

// invalidate drops the cached copy of k and bumps its write counter. Writers
// call it before and after committing, so a reader that loaded the previous
// value from the database never puts it back in the cache.
func (s *Storage) invalidate(k string) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.gens[k]++
	s.cache.Remove(k)
}

// fill caches data read from the database when k was not written since gen.
func (s *Storage) fill(k string, data []byte, gen uint64) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.gens[k] == gen {
		s.cache.Add(k, data)
	}
}

// setArtifact encodes and stores artifact under prefix+key in a single
// commit.
func (s *Storage) setArtifact(prefix, key []byte, artifact any) error {
	data, err := EncodeArtifact(artifact)
	if err != nil {
		return err
	}
	k := cacheKey(prefix, key)
	wTx := prefixeddb.NewPrefixedDatabase(s.db, prefix).WriteTx()
	defer wTx.Discard()
	if err := wTx.Set(key, data); err != nil {
		return err
	}
	s.invalidate(k)
	defer s.invalidate(k)
	if err := wTx.Commit(); err != nil {
		return fmt.Errorf("commit %s record: %w", prefix, err)
	}
	return nil
}

// deleteArtifacts removes every prefix+key pair in a single commit.
func (s *Storage) deleteArtifacts(keys ...[]byte) error {
	wTx := s.db.WriteTx()
	defer wTx.Discard()
	for _, k := range keys {
		if err := wTx.Delete(k); err != nil {
			return err
		}
	}
	for _, k := range keys {
		s.invalidate(string(k))
		defer s.invalidate(string(k))
	}
	return wTx.Commit()
}

// rawArtifact returns the encoded record under prefix+key.
func (s *Storage) rawArtifact(prefix, key []byte) ([]byte, error) {
	k := cacheKey(prefix, key)
	if data, ok := s.cache.Get(k); ok {
		return data, nil
	}
	gen := s.generation(k)
	data, err := prefixeddb.NewPrefixedDatabase(s.db, prefix).Get(key)
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s.fill(k, data, gen)
	return data, nil
}

// validator is implemented by every stored record.
type validator interface {
	Valid() error
}

// getArtifact loads and validates the record under prefix+key into out. A
// missing, undecodable or invalid record is reported as ErrNotFound; the
// last two cases are logged.
func (s *Storage) getArtifact(prefix, key []byte, out validator) error {
	data, err := s.rawArtifact(prefix, key)
	if err != nil {
		return err
	}
	err = DecodeArtifact(data, out)
	if err == nil {
		err = out.Valid()
	}
	if err != nil {
		s.cache.Remove(cacheKey(prefix, key))
		log.Warnw("ignoring stored record",
			"prefix", string(prefix),
			"key", types.HexBytes(key).String(),
			"error", fmt.Errorf("%w: %w", types.ErrStorageCorrupted, err))
		return ErrNotFound
	}
	return nil
}

func (s *Storage) hasArtifact(prefix, key []byte, out validator) bool {
	return s.getArtifact(prefix, key, out) == nil
}
