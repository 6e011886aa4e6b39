// Package accumulator rebuilds the ledger's LeanIMT from its NewLeaf event log
// and derives the inclusion paths consumed by the vote circuit.
//
// The tree follows the LeanIMT rules: each internal node is
// Poseidon2(left, right) and a node without right neighbour is promoted to
// the next level unchanged. In the fixed-size path handed to the circuit the
// missing neighbour is encoded as the zero element, which the circuit treats
// as "no hashing at this level". The same encoding is used to pad a path up
// to the requested depth.
package accumulator

import (
	"fmt"
	"math/big"
	"math/bits"
	"slices"

	leanimt "github.com/vocdoni/lean-imt-go"
	"github.com/vocdoni/zkvote/types"
)

// Zero is the element used for absent siblings and path padding.
var Zero = big.NewInt(0)

// Tree is an in-memory LeanIMT. It is rebuilt for every proof and never
// persisted.
type Tree struct {
	imt *leanimt.LeanIMT[*big.Int]
}

// Path is the inclusion path of a leaf: its index and the siblings from the
// leaf level up to the root, padded with Zero on the right.
type Path struct {
	LeafIndex uint32
	Siblings  []*big.Int
}

// New builds the tree from leaves in insertion order.
func New(leaves []*big.Int) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, types.ErrEmptyAccumulator
	}
	values := make([]*big.Int, len(leaves))
	for i, leaf := range leaves {
		// PoseidonHasher panics on values outside the field
		if !types.IsFieldElement(leaf) {
			return nil, fmt.Errorf("leaf %d: %w", i, types.ErrFieldOverflow)
		}
		values[i] = new(big.Int).Set(leaf)
	}
	imt, err := leanimt.New(leanimt.PoseidonHasher, leanimt.BigIntEqual, nil, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create lean-imt: %w", err)
	}
	if err := imt.InsertMany(values); err != nil {
		return nil, fmt.Errorf("insert leaves: %w", err)
	}
	return &Tree{imt: imt}, nil
}

// FromEvents builds the tree from ledger leaf events delivered
// most-recent-first. Events are reversed to insertion order before building.
// If the reversed events are not in index order they are sorted by index; an
// event log with gaps or duplicated indexes is rejected.
func FromEvents(events []types.LeafEvent) (*Tree, error) {
	if len(events) == 0 {
		return nil, types.ErrEmptyAccumulator
	}
	ordered, err := orderEvents(events)
	if err != nil {
		return nil, err
	}
	return New(types.LeafValues(ordered))
}

func orderEvents(events []types.LeafEvent) ([]types.LeafEvent, error) {
	ordered := types.OldestFirst(events)
	if contiguous(ordered) {
		return ordered, nil
	}
	slices.SortStableFunc(ordered, func(a, b types.LeafEvent) int {
		switch {
		case a.Index < b.Index:
			return -1
		case a.Index > b.Index:
			return 1
		}
		return 0
	})
	if !contiguous(ordered) {
		return nil, fmt.Errorf("leaf events are not contiguous")
	}
	return ordered, nil
}

func contiguous(events []types.LeafEvent) bool {
	for i, ev := range events {
		if ev.Index != uint64(i) || ev.Value == nil {
			return false
		}
	}
	return true
}

// Size returns the number of leaves.
func (t *Tree) Size() int {
	return t.imt.Size()
}

// Depth returns ceil(log2(size)), the length of the longest natural path.
func (t *Tree) Depth() uint32 {
	return uint32(t.imt.Depth())
}

// Root returns a copy of the tree root.
func (t *Tree) Root() *big.Int {
	root, _ := t.imt.Root()
	return new(big.Int).Set(root)
}

// Leaf returns a copy of the leaf at index.
func (t *Tree) Leaf(index uint32) (*big.Int, error) {
	if int(index) >= t.Size() {
		return nil, fmt.Errorf("leaf %d of %d: %w", index, t.Size(), types.ErrIndexOutOfRange)
	}
	return new(big.Int).Set(t.imt.Leaves()[index]), nil
}

// IndexOf returns the position of the first leaf equal to value.
func (t *Tree) IndexOf(value *big.Int) (uint32, bool) {
	i := t.imt.IndexOf(value)
	if i < 0 {
		return 0, false
	}
	return uint32(i), true
}

// Path returns the inclusion path of the leaf at index padded to depth
// siblings.
func (t *Tree) Path(index, depth uint32) (*Path, error) {
	if int(index) >= t.Size() {
		return nil, fmt.Errorf("leaf %d of %d: %w", index, t.Size(), types.ErrIndexOutOfRange)
	}
	natural := t.Depth()
	if natural > depth {
		return nil, fmt.Errorf("tree needs %d levels, depth is %d: %w", natural, depth, types.ErrDepthExceeded)
	}
	proof, err := t.imt.GenerateProof(int(index))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrIndexOutOfRange, err)
	}
	siblings, err := Expand(proof, natural)
	if err != nil {
		return nil, err
	}
	for uint32(len(siblings)) < depth {
		siblings = append(siblings, new(big.Int))
	}
	return &Path{LeafIndex: index, Siblings: siblings}, nil
}

// Expand turns a compact LeanIMT proof into one sibling per level of a tree
// with the given number of levels, with Zero where the node has no right
// neighbour.
func Expand(proof leanimt.MerkleProof[*big.Int], levels uint32) ([]*big.Int, error) {
	siblings := make([]*big.Int, 0, levels)
	idx, width := proof.LeafIndex, proof.TreeSize
	next := 0
	for level := range levels {
		right := idx&1 == 1
		if right || idx+1 < width {
			if next >= len(proof.Siblings) {
				return nil, fmt.Errorf("proof has %d siblings, level %d needs one more", len(proof.Siblings), level)
			}
			if bit := (proof.PathBits>>uint(next))&1 == 1; bit != right {
				return nil, fmt.Errorf("path bit %d does not match leaf index %d", next, proof.LeafIndex)
			}
			siblings = append(siblings, new(big.Int).Set(proof.Siblings[next]))
			next++
		} else {
			siblings = append(siblings, new(big.Int))
		}
		idx >>= 1
		width = (width + 1) / 2
	}
	if next != len(proof.Siblings) {
		return nil, fmt.Errorf("proof has %d siblings, only %d used", len(proof.Siblings), next)
	}
	return siblings, nil
}

// BuildPath rebuilds the accumulator from events delivered most-recent-first
// and returns the inclusion path of leafIndex padded to depth.
func BuildPath(events []types.LeafEvent, leafIndex, depth uint32) (*Path, error) {
	t, err := FromEvents(events)
	if err != nil {
		return nil, err
	}
	return t.Path(leafIndex, depth)
}

// CurrentRoot rebuilds the accumulator from events delivered
// most-recent-first and returns its root.
func CurrentRoot(events []types.LeafEvent) (*big.Int, error) {
	t, err := FromEvents(events)
	if err != nil {
		return nil, err
	}
	return t.Root(), nil
}

// NaturalDepth returns ceil(log2(size)) for a tree of size leaves.
func NaturalDepth(size int) uint32 {
	if size <= 1 {
		return 0
	}
	return uint32(bits.Len(uint(size - 1)))
}
