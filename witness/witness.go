// Package witness assembles and validates the private and public inputs of
// the vote circuit: membership of the voter commitment in the accumulator
// plus the chosen vote.
package witness

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"

	"github.com/vocdoni/zkvote/accumulator"
	"github.com/vocdoni/zkvote/commitment"
	"github.com/vocdoni/zkvote/log"
	"github.com/vocdoni/zkvote/types"
)

// DefaultPathLength is the sibling capacity of the vote circuit.
const DefaultPathLength = 16

// Inputs gathers everything the assembler needs. Pointer fields distinguish
// "not provided" from a zero value.
type Inputs struct {
	// Root is the accumulator root reported by the ledger. If nil, the root
	// rebuilt from LeafEvents is used.
	Root       *big.Int
	Vote       *bool
	Depth      uint32
	Nullifier  *big.Int
	Secret     *big.Int
	LeafIndex  *uint32
	LeafEvents []types.LeafEvent
}

// VoteWitness is the full circuit input. It is never persisted.
type VoteWitness struct {
	NullifierHash *big.Int
	Nullifier     *big.Int
	Secret        *big.Int
	Root          *big.Int
	Vote          bool
	Depth         uint32
	LeafIndex     uint32
	Siblings      []*big.Int
}

// Assembler builds vote witnesses for a circuit with a fixed sibling
// capacity.
type Assembler struct {
	// PathLength is the number of siblings the circuit takes. Zero means the
	// path is exactly Depth long.
	PathLength uint32
}

// New returns an Assembler for a circuit taking pathLength siblings.
func New(pathLength uint32) *Assembler {
	return &Assembler{PathLength: pathLength}
}

// Assemble validates the inputs and builds the witness. Checks run in a fixed
// order so the first reported error is stable: vote choice, accumulator
// content, secret inputs, field range, then path construction and root
// consistency.
func (a *Assembler) Assemble(in Inputs) (*VoteWitness, error) {
	if in.Vote == nil {
		return nil, types.ErrNoVoteSelected
	}
	if len(in.LeafEvents) == 0 {
		return nil, types.ErrEmptyAccumulator
	}
	if err := missingInputs(in); err != nil {
		return nil, err
	}
	for _, v := range []struct {
		name  string
		value *big.Int
	}{{"nullifier", in.Nullifier}, {"secret", in.Secret}, {"root", in.Root}} {
		if v.value != nil && !types.IsFieldElement(v.value) {
			return nil, fmt.Errorf("%s: %w", v.name, types.ErrFieldOverflow)
		}
	}

	pathLength := in.Depth
	if a.PathLength > 0 {
		if in.Depth > a.PathLength {
			return nil, fmt.Errorf("depth %d, circuit supports %d: %w", in.Depth, a.PathLength, types.ErrDepthExceeded)
		}
		pathLength = a.PathLength
	}

	tree, err := accumulator.FromEvents(in.LeafEvents)
	if err != nil {
		return nil, err
	}
	// the path must fit in the declared depth, the rest is circuit padding
	if _, err := tree.Path(*in.LeafIndex, in.Depth); err != nil {
		return nil, err
	}
	path, err := tree.Path(*in.LeafIndex, pathLength)
	if err != nil {
		return nil, err
	}

	root := tree.Root()
	if in.Root != nil && in.Root.Cmp(root) != 0 {
		return nil, fmt.Errorf("ledger root %s, rebuilt root %s: %w", in.Root, root, types.ErrStaleRoot)
	}

	leaf, err := tree.Leaf(*in.LeafIndex)
	if err != nil {
		return nil, err
	}
	voterCommitment, err := commitment.Commit(in.Nullifier, in.Secret)
	if err != nil {
		return nil, err
	}
	if leaf.Cmp(voterCommitment) != 0 {
		return nil, fmt.Errorf("leaf %d does not hold the commitment of the given nullifier and secret", *in.LeafIndex)
	}

	nullifierHash, err := commitment.NullifierHash(in.Nullifier)
	if err != nil {
		return nil, err
	}
	log.Debugw("vote witness assembled",
		"leafIndex", *in.LeafIndex,
		"leaves", tree.Size(),
		"depth", in.Depth,
		"pathLength", pathLength)

	return &VoteWitness{
		NullifierHash: nullifierHash,
		Nullifier:     new(big.Int).Set(in.Nullifier),
		Secret:        new(big.Int).Set(in.Secret),
		Root:          root,
		Vote:          *in.Vote,
		Depth:         in.Depth,
		LeafIndex:     *in.LeafIndex,
		Siblings:      path.Siblings,
	}, nil
}

func missingInputs(in Inputs) error {
	var missing []string
	if in.Nullifier == nil {
		missing = append(missing, "nullifier")
	}
	if in.Secret == nil {
		missing = append(missing, "secret")
	}
	if in.LeafIndex == nil {
		missing = append(missing, "leaf index")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", types.ErrMissingSecretInputs, missing)
	}
	return nil
}

// circuitInputs is the JSON layout of the vote circuit inputs.
type circuitInputs struct {
	NullifierHash string   `json:"nullifier_hash"`
	Nullifier     string   `json:"nullifier"`
	Secret        string   `json:"secret"`
	Root          string   `json:"root"`
	Vote          string   `json:"vote"`
	Depth         string   `json:"depth"`
	Index         string   `json:"index"`
	Siblings      []string `json:"siblings"`
}

// CircuitInputs renders the witness as the circuit input JSON, every value as
// a decimal string.
func (w *VoteWitness) CircuitInputs() ([]byte, error) {
	siblings := make([]string, len(w.Siblings))
	for i, s := range w.Siblings {
		siblings[i] = s.String()
	}
	return json.Marshal(circuitInputs{
		NullifierHash: w.NullifierHash.String(),
		Nullifier:     w.Nullifier.String(),
		Secret:        w.Secret.String(),
		Root:          w.Root.String(),
		Vote:          types.VoteValue(w.Vote).String(),
		Depth:         strconv.FormatUint(uint64(w.Depth), 10),
		Index:         strconv.FormatUint(uint64(w.LeafIndex), 10),
		Siblings:      siblings,
	})
}

// PublicInputs returns the public signals in ledger order:
// [nullifierHash, root, vote, depth].
func (w *VoteWitness) PublicInputs() []*types.BigInt {
	return []*types.BigInt{
		types.NewBigInt(w.NullifierHash),
		types.NewBigInt(w.Root),
		types.VoteValue(w.Vote),
		new(types.BigInt).SetUint64(uint64(w.Depth)),
	}
}
