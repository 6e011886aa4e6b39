package types

import (
	"fmt"
	"math/big"
	"slices"
)

// Indexes of the public inputs of the vote circuit, in the order the ledger
// vote method expects them.
const (
	PublicNullifierHash = iota
	PublicRoot
	PublicVote
	PublicDepth

	PublicInputsLen
)

// LeafEvent is a single NewLeaf log entry of the ledger: the accumulator
// position and the inserted commitment.
type LeafEvent struct {
	Index  uint64   `json:"index" cbor:"0,keyasint"`
	Value  *BigInt  `json:"value" cbor:"1,keyasint"`
	Block  uint64   `json:"block,omitempty" cbor:"2,keyasint,omitempty"`
	TxHash HexBytes `json:"txHash,omitempty" cbor:"3,keyasint,omitempty"`
}

// LeafValues returns the leaf values in the order of the events.
func LeafValues(events []LeafEvent) []*big.Int {
	out := make([]*big.Int, len(events))
	for i, ev := range events {
		out[i] = ev.Value.MathBigInt()
	}
	return out
}

// OldestFirst returns a copy of the events in insertion order. The ledger
// delivers events most-recent-first.
func OldestFirst(events []LeafEvent) []LeafEvent {
	out := slices.Clone(events)
	slices.Reverse(out)
	return out
}

// ProofBundle is the output of the proof pipeline as the ledger consumes it:
// the Groth16 proof encoded as Solidity calldata and the public inputs
// ordered as [nullifierHash, root, vote, depth].
type ProofBundle struct {
	Proof        HexBytes  `json:"proof" cbor:"0,keyasint"`
	PublicInputs []*BigInt `json:"publicInputs" cbor:"1,keyasint"`
}

// Valid checks the shape of the bundle.
func (p *ProofBundle) Valid() error {
	if p == nil {
		return fmt.Errorf("nil proof bundle")
	}
	if len(p.Proof) == 0 {
		return fmt.Errorf("empty proof")
	}
	if len(p.PublicInputs) != PublicInputsLen {
		return fmt.Errorf("expected %d public inputs, got %d", PublicInputsLen, len(p.PublicInputs))
	}
	for i, in := range p.PublicInputs {
		if !in.InField() {
			return fmt.Errorf("public input %d: %w", i, ErrFieldOverflow)
		}
	}
	return nil
}

// NullifierHash returns the nullifier hash public input.
func (p *ProofBundle) NullifierHash() *BigInt { return p.PublicInputs[PublicNullifierHash] }

// Root returns the accumulator root public input.
func (p *ProofBundle) Root() *BigInt { return p.PublicInputs[PublicRoot] }

// Vote returns the choice encoded in the public inputs.
func (p *ProofBundle) Vote() bool { return p.PublicInputs[PublicVote].MathBigInt().Sign() != 0 }

// Depth returns the accumulator depth public input.
func (p *ProofBundle) Depth() *BigInt { return p.PublicInputs[PublicDepth] }

// VoteValue encodes a choice as the field element used by the circuit.
func VoteValue(vote bool) *BigInt {
	if vote {
		return NewInt(1)
	}
	return NewInt(0)
}
