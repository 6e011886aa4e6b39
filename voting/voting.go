// Package voting orchestrates the voter flow: registration of a commitment,
// proof generation against the current ledger state and submission through
// a relay account.
package voting

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/vocdoni/zkvote/commitment"
	"github.com/vocdoni/zkvote/ledger"
	"github.com/vocdoni/zkvote/log"
	"github.com/vocdoni/zkvote/relay"
	"github.com/vocdoni/zkvote/storage"
	"github.com/vocdoni/zkvote/types"
	"github.com/vocdoni/zkvote/witness"
	"golang.org/x/sync/errgroup"
)

// Prover generates the proof bundle of a witness. *prover.Pipeline
// implements it.
type Prover interface {
	Prove(ctx context.Context, w *witness.VoteWitness) (*types.ProofBundle, error)
}

// Config holds the client settings.
type Config struct {
	// PathLength is the sibling capacity of the circuit.
	PathLength uint32
	Relay      relay.Config
}

// DefaultConfig returns a 16 sibling circuit and the default relay settings.
func DefaultConfig() Config {
	return Config{
		PathLength: witness.DefaultPathLength,
		Relay:      relay.DefaultConfig(),
	}
}

// SecretInputs are secrets supplied explicitly by the caller. Unset fields
// are resolved from the session and then from the store.
type SecretInputs struct {
	Nullifier *big.Int
	Secret    *big.Int
	LeafIndex *uint32
}

// ProofOptions tune GenerateProof.
type ProofOptions struct {
	// Vote overrides the session choice.
	Vote *bool
	// Overwrite allows proving a choice when a proof for the other one is
	// already stored. The other proof is removed.
	Overwrite bool
}

// Client runs the voter operations against one ledger instance.
type Client struct {
	ledger    ledger.Ledger
	tx        ledger.Transactor
	faucet    relay.Faucet
	store     *storage.Storage
	prover    Prover
	assembler *witness.Assembler
	generator *commitment.Generator
	config    Config
}

// New returns a client. faucet may be nil.
func New(l ledger.Ledger, tx ledger.Transactor, store *storage.Storage, prover Prover,
	faucet relay.Faucet, config Config,
) *Client {
	return &Client{
		ledger:    l,
		tx:        tx,
		faucet:    faucet,
		store:     store,
		prover:    prover,
		assembler: witness.New(config.PathLength),
		generator: commitment.New(nil),
		config:    config,
	}
}

func (c *Client) scope(s *Session) storage.Scope {
	return storage.NewScope(c.ledger.Address(), s.Voter)
}

// Coordinator returns the relay coordinator of the session scope.
func (c *Client) Coordinator(s *Session) *relay.Coordinator {
	return relay.New(c.store, c.scope(s), c.ledger, c.tx, c.faucet, c.config.Relay)
}

// Register generates a commitment for the session voter, persists it and
// inserts it in the ledger accumulator. The secrets are stored before the
// transaction is sent and the leaf index once it is confirmed. A commitment
// stored by an interrupted registration is reused.
func (c *Client) Register(ctx context.Context, s *Session) (*storage.CommitmentRecord, error) {
	scope := c.scope(s)
	vd, err := c.ledger.VoterData(ctx, s.Voter)
	if err != nil {
		return nil, fmt.Errorf("could not fetch voter data: %w", err)
	}
	if !vd.IsVoter {
		return nil, fmt.Errorf("%w: %s", types.ErrNotEligible, s.Voter.Hex())
	}

	rec, err := c.store.Commitment(scope)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		rec = nil
	case err != nil:
		return nil, err
	case rec.Registered():
		s.setCommitment(rec)
		return rec, types.ErrAlreadyRegistered
	}

	if vd.HasRegistered {
		if rec == nil {
			return nil, fmt.Errorf("%w: no local commitment for %s", types.ErrAlreadyRegistered, s.Voter.Hex())
		}
		// the transaction went through but the index was never stored
		return c.assignIndex(ctx, s, scope, rec, nil)
	}

	if rec == nil {
		if rec, err = c.generator.Generate(); err != nil {
			return nil, err
		}
		if err := c.store.SaveCommitment(scope, rec); err != nil {
			return nil, fmt.Errorf("could not store commitment: %w", err)
		}
	}
	data, err := c.ledger.VotingData(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not fetch voting data: %w", err)
	}
	expected := uint32(data.TreeSize)
	receipt, err := c.ledger.Register(ctx, rec.Commitment)
	if err != nil {
		return nil, fmt.Errorf("register commitment: %w", err)
	}
	log.Infow("commitment registered", "voter", s.Voter.Hex(), "tx", receipt.TxHash.Hex(), "block", receipt.Block)
	return c.assignIndex(ctx, s, scope, rec, &expected)
}

// assignIndex finds the commitment in the leaf events and stores its index.
func (c *Client) assignIndex(ctx context.Context, s *Session, scope storage.Scope,
	rec *storage.CommitmentRecord, expected *uint32,
) (*storage.CommitmentRecord, error) {
	events, err := c.ledger.LeafEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not fetch leaf events: %w", err)
	}
	var index *uint32
	for _, ev := range events {
		if ev.Value.Equal(rec.Commitment) {
			i := uint32(ev.Index)
			index = &i
			break
		}
	}
	if index == nil {
		return nil, fmt.Errorf("commitment %s not found in leaf events", rec.Commitment)
	}
	if expected != nil && *expected != *index {
		log.Warnw("leaf index differs from tree size before registration",
			"expected", *expected, "index", *index)
	}
	rec.LeafIndex = index
	if err := c.store.SaveCommitment(scope, rec); err != nil {
		return nil, fmt.Errorf("could not store leaf index: %w", err)
	}
	s.setCommitment(rec)
	return rec, nil
}

// resolveSecrets fills each missing secret from the session and then from
// the store.
func (c *Client) resolveSecrets(s *Session, explicit *SecretInputs) witness.Inputs {
	in := witness.Inputs{}
	if explicit != nil {
		in.Nullifier, in.Secret, in.LeafIndex = explicit.Nullifier, explicit.Secret, explicit.LeafIndex
	}
	fill := func(rec *storage.CommitmentRecord) {
		if rec == nil {
			return
		}
		if in.Nullifier == nil && rec.Nullifier != nil {
			in.Nullifier = rec.Nullifier.MathBigInt()
		}
		if in.Secret == nil && rec.Secret != nil {
			in.Secret = rec.Secret.MathBigInt()
		}
		if in.LeafIndex == nil && rec.LeafIndex != nil {
			idx := *rec.LeafIndex
			in.LeafIndex = &idx
		}
	}
	fill(s.getCommitment())
	if in.Nullifier == nil || in.Secret == nil || in.LeafIndex == nil {
		rec, err := c.store.Commitment(c.scope(s))
		if err == nil {
			fill(rec)
		} else if !errors.Is(err, storage.ErrNotFound) {
			log.Warnw("could not load stored commitment", "voter", s.Voter.Hex(), "error", err)
		}
	}
	return in
}

// GenerateProof proves the selected vote against the current ledger state.
// A stored proof for the same choice is returned as is. A stored proof for
// the other choice blocks with ErrProofExists unless opts.Overwrite is set.
func (c *Client) GenerateProof(ctx context.Context, s *Session, secrets *SecretInputs,
	opts ProofOptions,
) (*types.ProofBundle, error) {
	vote := opts.Vote
	if vote == nil {
		vote = s.Vote()
	}
	if vote == nil {
		return nil, types.ErrNoVoteSelected
	}
	scope := c.scope(s)
	if bundle := c.loadProof(s, *vote); bundle != nil {
		log.Debugw("reusing stored proof", "voter", s.Voter.Hex(), "vote", *vote)
		return bundle, nil
	}
	if c.loadProof(s, !*vote) != nil && !opts.Overwrite {
		return nil, fmt.Errorf("%w: vote %t", types.ErrProofExists, !*vote)
	}

	in := c.resolveSecrets(s, secrets)
	in.Vote = vote

	// fresh ledger state, other voters may have registered meanwhile
	var data *ledger.VotingData
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		data, err = c.ledger.VotingData(gctx)
		return err
	})
	g.Go(func() (err error) {
		in.LeafEvents, err = c.ledger.LeafEvents(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("could not fetch ledger state: %w", err)
	}
	if data.Root != nil && len(in.LeafEvents) > 0 {
		in.Root = data.Root.MathBigInt()
	}
	in.Depth = uint32(data.TreeDepth)

	w, err := c.assembler.Assemble(in)
	if err != nil {
		return nil, err
	}
	bundle, err := c.prover.Prove(ctx, w)
	if err != nil {
		return nil, err
	}

	if opts.Overwrite {
		if err := c.store.ClearProof(scope, !*vote); err != nil {
			return nil, fmt.Errorf("could not remove previous proof: %w", err)
		}
		s.setProof(!*vote, nil)
	}
	if err := c.store.SaveProof(scope, *vote, bundle); err != nil {
		return nil, fmt.Errorf("could not store proof: %w", err)
	}
	s.setProof(*vote, bundle)
	return bundle, nil
}

// loadProof returns the proof for vote from the session or the store.
func (c *Client) loadProof(s *Session, vote bool) *types.ProofBundle {
	if bundle := s.proof(vote); bundle != nil {
		return bundle
	}
	bundle, err := c.store.Proof(c.scope(s), vote)
	if err != nil {
		return nil
	}
	s.setProof(vote, bundle)
	return bundle
}

// Vote submits the proof of the selected choice through the relay. Without a
// selected choice, the single stored proof is used.
func (c *Client) Vote(ctx context.Context, s *Session) (*storage.SubmissionRecord, error) {
	var (
		vote   bool
		bundle *types.ProofBundle
	)
	if selected := s.Vote(); selected != nil {
		vote = *selected
		bundle = c.loadProof(s, vote)
	} else {
		yes, no := c.loadProof(s, true), c.loadProof(s, false)
		switch {
		case yes != nil && no != nil:
			return nil, fmt.Errorf("%w: proofs for both choices stored, select one", types.ErrNoVoteSelected)
		case yes != nil:
			vote, bundle = true, yes
		case no != nil:
			vote, bundle = false, no
		}
	}
	if bundle == nil {
		return nil, fmt.Errorf("no proof generated for the selected vote")
	}
	return c.Coordinator(s).Run(ctx, bundle, vote)
}

// Status summarizes the ledger and local state of a voter.
type Status struct {
	Voter         string                    `json:"voter"`
	Session       string                    `json:"session"`
	IsVoter       bool                      `json:"isVoter"`
	HasRegistered bool                      `json:"hasRegistered"`
	Commitment    *types.BigInt             `json:"commitment,omitempty"`
	LeafIndex     *uint32                   `json:"leafIndex,omitempty"`
	ProofYes      bool                      `json:"proofYes"`
	ProofNo       bool                      `json:"proofNo"`
	Submission    *storage.SubmissionRecord `json:"submission"`
	Voting        *ledger.VotingData        `json:"voting"`
}

// Status aggregates ledger voter data, stored records and submission state.
// Secrets are never included.
func (c *Client) Status(ctx context.Context, s *Session) (*Status, error) {
	st := &Status{Voter: s.Voter.Hex(), Session: s.ID.String()}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vd, err := c.ledger.VoterData(gctx, s.Voter)
		if err != nil {
			return err
		}
		st.IsVoter, st.HasRegistered = vd.IsVoter, vd.HasRegistered
		return nil
	})
	g.Go(func() (err error) {
		st.Voting, err = c.ledger.VotingData(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("could not fetch ledger state: %w", err)
	}

	scope := c.scope(s)
	if rec, err := c.store.Commitment(scope); err == nil {
		st.Commitment, st.LeafIndex = rec.Commitment, rec.LeafIndex
	}
	st.ProofYes = c.store.HasProof(scope, true)
	st.ProofNo = c.store.HasProof(scope, false)
	sub, err := c.Coordinator(s).State()
	if err != nil {
		return nil, err
	}
	st.Submission = sub
	return st, nil
}
