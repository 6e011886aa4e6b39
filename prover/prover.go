// Package prover turns a vote witness into a proof bundle the ledger accepts.
// The circuit execution and the Groth16 proving are delegated to a Backend;
// this package translates the witness into circuit inputs and normalizes the
// backend output into the Solidity calldata layout.
package prover

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vocdoni/zkvote/circuit"
	"github.com/vocdoni/zkvote/log"
	"github.com/vocdoni/zkvote/types"
	"github.com/vocdoni/zkvote/witness"
)

// HashingMode selects the transcript hash the proof targets.
type HashingMode string

const (
	// HashingKeccak targets the EVM verifier contract.
	HashingKeccak HashingMode = "keccak"
	// HashingPoseidon targets verifiers running inside another circuit.
	HashingPoseidon HashingMode = "poseidon"
)

// DefaultPublicSignals is the order in which the vote circuit emits its
// public signals.
var DefaultPublicSignals = []string{"nullifier_hash", "root", "vote", "depth"}

// ledgerOrder maps each public signal name to its position in the ledger
// public input vector.
var ledgerOrder = map[string]int{
	"nullifier_hash": types.PublicNullifierHash,
	"root":           types.PublicRoot,
	"vote":           types.PublicVote,
	"depth":          types.PublicDepth,
}

// ProveOptions are passed to the backend on every proof.
type ProveOptions struct {
	HashingMode HashingMode
}

// Backend executes the circuit and proves the execution.
type Backend interface {
	// Execute runs the circuit over the JSON inputs and returns the
	// execution trace (the binary witness).
	Execute(ctx context.Context, artifacts *circuit.Artifacts, inputs []byte) ([]byte, error)
	// Prove returns the proof and the public signals as snarkjs JSON.
	Prove(ctx context.Context, artifacts *circuit.Artifacts, trace []byte, opts ProveOptions) (proofJSON, publicJSON []byte, err error)
}

// Options configure a Pipeline.
type Options struct {
	HashingMode HashingMode
	// PublicSignals lists the circuit public signal names in emission order.
	PublicSignals []string
	// VerifyLocally checks every proof against the verification key before
	// returning it.
	VerifyLocally bool
}

// Pipeline proves vote witnesses with a fixed set of circuit artifacts.
type Pipeline struct {
	backend   Backend
	artifacts *circuit.Artifacts
	opts      Options
}

// New returns a pipeline. Unset options take the keccak hashing mode and the
// default public signal order.
func New(backend Backend, artifacts *circuit.Artifacts, opts Options) (*Pipeline, error) {
	if backend == nil {
		return nil, fmt.Errorf("nil proving backend")
	}
	if artifacts == nil {
		return nil, fmt.Errorf("nil circuit artifacts")
	}
	if opts.HashingMode == "" {
		opts.HashingMode = HashingKeccak
	}
	if len(opts.PublicSignals) == 0 {
		opts.PublicSignals = DefaultPublicSignals
	}
	if len(opts.PublicSignals) != types.PublicInputsLen {
		return nil, fmt.Errorf("expected %d public signal names, got %d", types.PublicInputsLen, len(opts.PublicSignals))
	}
	seen := make(map[string]bool, len(opts.PublicSignals))
	for _, name := range opts.PublicSignals {
		if _, ok := ledgerOrder[name]; !ok || seen[name] {
			return nil, fmt.Errorf("invalid public signal order %v", opts.PublicSignals)
		}
		seen[name] = true
	}
	if opts.VerifyLocally && len(artifacts.VerificationKey) == 0 {
		return nil, fmt.Errorf("local verification requires a verification key")
	}
	return &Pipeline{backend: backend, artifacts: artifacts, opts: opts}, nil
}

// Prove generates the proof bundle of w. Every failure wraps
// types.ErrProofGenerationFailed and is never retried.
func (p *Pipeline) Prove(ctx context.Context, w *witness.VoteWitness) (*types.ProofBundle, error) {
	if w == nil {
		return nil, fmt.Errorf("%w: nil witness", types.ErrProofGenerationFailed)
	}
	start := time.Now()
	inputs, err := w.CircuitInputs()
	if err != nil {
		return nil, fmt.Errorf("%w: encode circuit inputs: %w", types.ErrProofGenerationFailed, err)
	}
	trace, err := p.backend.Execute(ctx, p.artifacts, inputs)
	if err != nil {
		return nil, fmt.Errorf("%w: execute circuit: %w", types.ErrProofGenerationFailed, err)
	}
	proofJSON, publicJSON, err := p.backend.Prove(ctx, p.artifacts, trace, ProveOptions{HashingMode: p.opts.HashingMode})
	if err != nil {
		return nil, fmt.Errorf("%w: prove: %w", types.ErrProofGenerationFailed, err)
	}
	proof, err := ParseProof(proofJSON, publicJSON)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrProofGenerationFailed, err)
	}
	if p.opts.VerifyLocally {
		if err := proof.Verify(p.artifacts.VerificationKey); err != nil {
			return nil, fmt.Errorf("%w: %w", types.ErrProofGenerationFailed, err)
		}
	}
	bundle, err := p.normalize(proof, w)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrProofGenerationFailed, err)
	}
	log.Infow("vote proof generated", "took", log.Since(start), "vote", w.Vote, "depth", w.Depth)
	return bundle, nil
}

// normalize encodes the proof as Solidity calldata and reorders the public
// signals into ledger order, checking them against the witness.
func (p *Pipeline) normalize(proof *Proof, w *witness.VoteWitness) (*types.ProofBundle, error) {
	calldata, err := proof.Data.Solidity()
	if err != nil {
		return nil, err
	}
	public, err := OrderPublicSignals(proof.PubSignals, p.opts.PublicSignals)
	if err != nil {
		return nil, err
	}
	expected := w.PublicInputs()
	for i := range expected {
		if !public[i].Equal(expected[i]) {
			return nil, fmt.Errorf("public input %d is %s, witness has %s", i, public[i], expected[i])
		}
	}
	bundle := &types.ProofBundle{Proof: calldata, PublicInputs: public}
	if err := bundle.Valid(); err != nil {
		return nil, err
	}
	return bundle, nil
}

// OrderPublicSignals maps signals, emitted in the order given by names, into
// the ledger order [nullifierHash, root, vote, depth].
func OrderPublicSignals(signals, names []string) ([]*types.BigInt, error) {
	if len(signals) != len(names) {
		return nil, fmt.Errorf("%w: got %d signals, want %d", ErrPublicSignalFormat, len(signals), len(names))
	}
	out := make([]*types.BigInt, types.PublicInputsLen)
	for i, name := range names {
		pos, ok := ledgerOrder[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrPubSignalNotFound, name)
		}
		v, err := parseBig(signals[i])
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrParsingProofSignal, name, err)
		}
		out[pos] = v
	}
	for i, v := range out {
		if v == nil {
			return nil, fmt.Errorf("%w: public input %d not emitted", ErrPubSignalNotFound, i)
		}
	}
	return out, nil
}

// ProofData is the snarkjs JSON encoding of a Groth16 proof.
type ProofData struct {
	A        []string   `json:"pi_a"`
	B        [][]string `json:"pi_b"`
	C        []string   `json:"pi_c"`
	Protocol string     `json:"protocol,omitempty"`
}

// Proof is a proof with its public signals, as returned by the backend.
type Proof struct {
	Data       ProofData `json:"data"`
	PubSignals []string  `json:"pubSignals"`
}

// ParseProof decodes the backend output.
func ParseProof(proofData, pubSignals []byte) (*Proof, error) {
	data := ProofData{}
	if err := json.Unmarshal(proofData, &data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParseProofData, err)
	}
	signals := []string{}
	if err := json.Unmarshal(pubSignals, &signals); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParsePubSignals, err)
	}
	return &Proof{Data: data, PubSignals: signals}, nil
}

// Solidity encodes the proof as the eight 32 byte words a Groth16 verifier
// contract takes: a, b with the coordinates of each point swapped, c.
func (d *ProofData) Solidity() ([]byte, error) {
	if len(d.A) < 2 || len(d.C) < 2 || len(d.B) < 2 || len(d.B[0]) < 2 || len(d.B[1]) < 2 {
		return nil, fmt.Errorf("%w: incomplete groth16 proof", ErrParseProofData)
	}
	words := []string{
		d.A[0], d.A[1],
		d.B[0][1], d.B[0][0],
		d.B[1][1], d.B[1][0],
		d.C[0], d.C[1],
	}
	out := make([]byte, 0, 32*len(words))
	for i, word := range words {
		v, err := parseBig(word)
		if err != nil {
			return nil, fmt.Errorf("%w: word %d: %w", ErrParseProofData, i, err)
		}
		if v.MathBigInt().Sign() < 0 || v.MathBigInt().BitLen() > 256 {
			return nil, fmt.Errorf("%w: word %d out of range", ErrParseProofData, i)
		}
		out = append(out, v.Bytes32().Bytes()...)
	}
	return out, nil
}

func parseBig(s string) (*types.BigInt, error) {
	v := new(types.BigInt)
	if err := v.UnmarshalText([]byte(s)); err != nil {
		return nil, err
	}
	return v, nil
}
