package storage

import (
	"fmt"
	"time"

	"github.com/vocdoni/zkvote/log"
	"github.com/vocdoni/zkvote/types"
)

// SaveCommitment stores the commitment record of scope, replacing any
// previous one.
func (s *Storage) SaveCommitment(scope Scope, rec *CommitmentRecord) error {
	if err := rec.Valid(); err != nil {
		return fmt.Errorf("invalid commitment record: %w", err)
	}
	defer s.lockScope(scope)()
	return s.setArtifact(commitmentPrefix, scope.Bytes(), rec)
}

// Commitment loads the commitment record of scope. Returns ErrNotFound if
// there is none.
func (s *Storage) Commitment(scope Scope) (*CommitmentRecord, error) {
	rec := &CommitmentRecord{}
	if err := s.getArtifact(commitmentPrefix, scope.Bytes(), rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// HasCommitment reports whether a valid commitment record exists for scope.
func (s *Storage) HasCommitment(scope Scope) bool {
	return s.hasArtifact(commitmentPrefix, scope.Bytes(), &CommitmentRecord{})
}

// ClearCommitment removes the commitment record of scope.
func (s *Storage) ClearCommitment(scope Scope) error {
	defer s.lockScope(scope)()
	return s.deleteArtifacts(fullKey(commitmentPrefix, scope.Bytes()))
}

// SaveProof stores the proof bundle generated for vote.
func (s *Storage) SaveProof(scope Scope, vote bool, bundle *types.ProofBundle) error {
	if err := bundle.Valid(); err != nil {
		return fmt.Errorf("invalid proof bundle: %w", err)
	}
	if bundle.Vote() != vote {
		return fmt.Errorf("proof bundle encodes vote %t, stored as %t", bundle.Vote(), vote)
	}
	defer s.lockScope(scope)()
	return s.setArtifact(proofPrefix, proofKey(scope, vote), bundle)
}

// Proof loads the proof bundle stored for vote. Returns ErrNotFound if there
// is none.
func (s *Storage) Proof(scope Scope, vote bool) (*types.ProofBundle, error) {
	bundle := &types.ProofBundle{}
	if err := s.getArtifact(proofPrefix, proofKey(scope, vote), bundle); err != nil {
		return nil, err
	}
	return bundle, nil
}

// HasProof reports whether a valid proof bundle is stored for vote.
func (s *Storage) HasProof(scope Scope, vote bool) bool {
	return s.hasArtifact(proofPrefix, proofKey(scope, vote), &types.ProofBundle{})
}

// ClearProof removes the proof bundle stored for vote.
func (s *Storage) ClearProof(scope Scope, vote bool) error {
	defer s.lockScope(scope)()
	return s.deleteArtifacts(fullKey(proofPrefix, proofKey(scope, vote)))
}

// SaveRelayIdentity stores the relay identity of scope.
func (s *Storage) SaveRelayIdentity(scope Scope, id *RelayIdentity) error {
	if err := id.Valid(); err != nil {
		return fmt.Errorf("invalid relay identity: %w", err)
	}
	defer s.lockScope(scope)()
	return s.setArtifact(relayIdentityPrefix, scope.Bytes(), id)
}

// RelayIdentity loads the relay identity of scope. Returns ErrNotFound if
// there is none.
func (s *Storage) RelayIdentity(scope Scope) (*RelayIdentity, error) {
	id := &RelayIdentity{}
	if err := s.getArtifact(relayIdentityPrefix, scope.Bytes(), id); err != nil {
		return nil, err
	}
	return id, nil
}

// HasRelayIdentity reports whether a valid relay identity exists for scope.
func (s *Storage) HasRelayIdentity(scope Scope) bool {
	return s.hasArtifact(relayIdentityPrefix, scope.Bytes(), &RelayIdentity{})
}

// ClearRelayIdentity removes the relay identity of scope.
func (s *Storage) ClearRelayIdentity(scope Scope) error {
	defer s.lockScope(scope)()
	return s.deleteArtifacts(fullKey(relayIdentityPrefix, scope.Bytes()))
}

// SaveSubmission stores the submission record of scope, stamping its update
// time.
func (s *Storage) SaveSubmission(scope Scope, rec *SubmissionRecord) error {
	rec.UpdatedAt = time.Now().Unix()
	if err := rec.Valid(); err != nil {
		return fmt.Errorf("invalid submission record: %w", err)
	}
	defer s.lockScope(scope)()
	if err := s.setArtifact(submissionPrefix, scope.Bytes(), rec); err != nil {
		return err
	}
	log.Debugw("submission state stored", "scope", scope.String(), "state", rec.State, "tx", rec.TxHash.Hex())
	return nil
}

// Submission loads the submission record of scope. Returns ErrNotFound if
// there is none.
func (s *Storage) Submission(scope Scope) (*SubmissionRecord, error) {
	rec := &SubmissionRecord{}
	if err := s.getArtifact(submissionPrefix, scope.Bytes(), rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// HasSubmission reports whether a valid submission record exists for scope.
func (s *Storage) HasSubmission(scope Scope) bool {
	return s.hasArtifact(submissionPrefix, scope.Bytes(), &SubmissionRecord{})
}

// ClearSubmission removes the submission record of scope.
func (s *Storage) ClearSubmission(scope Scope) error {
	defer s.lockScope(scope)()
	return s.deleteArtifacts(fullKey(submissionPrefix, scope.Bytes()))
}

// Clear removes every record of scope in a single commit.
func (s *Storage) Clear(scope Scope) error {
	defer s.lockScope(scope)()
	keys := make([][]byte, 0, len(allPrefixes)+1)
	for _, prefix := range allPrefixes {
		if string(prefix) == string(proofPrefix) {
			keys = append(keys,
				fullKey(prefix, proofKey(scope, true)),
				fullKey(prefix, proofKey(scope, false)))
			continue
		}
		keys = append(keys, fullKey(prefix, scope.Bytes()))
	}
	return s.deleteArtifacts(keys...)
}
