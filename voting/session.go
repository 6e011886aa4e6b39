package voting

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/vocdoni/zkvote/storage"
	"github.com/vocdoni/zkvote/types"
)

// Session keeps the in-memory state of one voter between operations: the
// commitment generated or loaded during this run, the selected choice and
// the proofs produced so far. It is the second source of secrets, after
// explicit inputs and before the store.
type Session struct {
	ID    uuid.UUID
	Voter common.Address

	mu         sync.Mutex
	vote       *bool
	commitment *storage.CommitmentRecord
	proofs     map[bool]*types.ProofBundle
}

// NewSession returns an empty session for voter. A Session literal with only
// Voter set is also usable.
func NewSession(voter common.Address) *Session {
	return &Session{
		ID:     uuid.New(),
		Voter:  voter,
		proofs: make(map[bool]*types.ProofBundle),
	}
}

// SelectVote records the voter choice.
func (s *Session) SelectVote(vote bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vote = &vote
}

// Vote returns the selected choice, or nil if none was made.
func (s *Session) Vote() *bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vote == nil {
		return nil
	}
	v := *s.vote
	return &v
}

func (s *Session) setCommitment(rec *storage.CommitmentRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitment = rec
}

func (s *Session) getCommitment() *storage.CommitmentRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitment
}

func (s *Session) setProof(vote bool, bundle *types.ProofBundle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bundle == nil {
		delete(s.proofs, vote)
		return
	}
	if s.proofs == nil {
		s.proofs = make(map[bool]*types.ProofBundle)
	}
	s.proofs[vote] = bundle
}

func (s *Session) proof(vote bool) *types.ProofBundle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proofs[vote]
}
