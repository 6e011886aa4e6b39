package accumulator

import (
	"math/big"
	"testing"

	qt "github.com/frankban/quicktest"
	leanimt "github.com/vocdoni/lean-imt-go"
	"github.com/vocdoni/zkvote/crypto/hash/poseidon"
	"github.com/vocdoni/zkvote/types"
)

// logOrder returns events for values (given in insertion order) as the ledger
// delivers them, most-recent-first.
func logOrder(values ...int64) []types.LeafEvent {
	events := make([]types.LeafEvent, len(values))
	for i, v := range values {
		events[len(values)-1-i] = types.LeafEvent{Index: uint64(i), Value: types.NewBigInt(big.NewInt(v))}
	}
	return events
}

func hash2(c *qt.C, a, b *big.Int) *big.Int {
	h, err := poseidon.Hash2(a, b)
	c.Assert(err, qt.IsNil)
	return h
}

func TestRoundTripThreeLeaves(t *testing.T) {
	c := qt.New(t)
	a, b, d := big.NewInt(11), big.NewInt(22), big.NewInt(33)

	tree, err := FromEvents(logOrder(11, 22, 33))
	c.Assert(err, qt.IsNil)
	c.Assert(tree.Size(), qt.Equals, 3)
	c.Assert(tree.Depth(), qt.Equals, uint32(2))

	// the trailing leaf is promoted unchanged
	expectedRoot := hash2(c, hash2(c, a, b), d)
	c.Assert(tree.Root().Cmp(expectedRoot), qt.Equals, 0)

	path, err := tree.Path(1, 2)
	c.Assert(err, qt.IsNil)
	c.Assert(path.LeafIndex, qt.Equals, uint32(1))
	c.Assert(path.Siblings, qt.HasLen, 2)
	c.Assert(path.Siblings[0].Cmp(a), qt.Equals, 0)
	c.Assert(path.Siblings[1].Cmp(d), qt.Equals, 0)
	c.Assert(VerifyPath(b, tree.Root(), path), qt.IsNil)

	// trailing leaf: zero sibling at level 0
	path, err = tree.Path(2, 2)
	c.Assert(err, qt.IsNil)
	c.Assert(path.Siblings[0].Sign(), qt.Equals, 0)
	c.Assert(path.Siblings[1].Cmp(hash2(c, a, b)), qt.Equals, 0)
	c.Assert(VerifyPath(d, tree.Root(), path), qt.IsNil)

	// a wrong leaf does not verify
	c.Assert(VerifyPath(a, tree.Root(), path), qt.ErrorMatches, "path leads to root .*")
}

func TestReorderingRobustness(t *testing.T) {
	c := qt.New(t)
	values := []int64{5, 8, 13, 21, 34}

	natural := make([]*big.Int, len(values))
	for i, v := range values {
		natural[i] = big.NewInt(v)
	}
	fromLeaves, err := New(natural)
	c.Assert(err, qt.IsNil)

	fromLog, err := CurrentRoot(logOrder(values...))
	c.Assert(err, qt.IsNil)
	c.Assert(fromLog.Cmp(fromLeaves.Root()), qt.Equals, 0)

	// events already in natural order are sorted back by index
	events := types.OldestFirst(logOrder(values...))
	fromNatural, err := CurrentRoot(events)
	c.Assert(err, qt.IsNil)
	c.Assert(fromNatural.Cmp(fromLeaves.Root()), qt.Equals, 0)

	// a different insertion order gives a different root
	swapped, err := New([]*big.Int{natural[1], natural[0], natural[2], natural[3], natural[4]})
	c.Assert(err, qt.IsNil)
	c.Assert(swapped.Root().Cmp(fromLeaves.Root()), qt.Not(qt.Equals), 0)
}

func TestPaddingLaw(t *testing.T) {
	c := qt.New(t)

	path, err := BuildPath(logOrder(1, 2, 3), 0, 16)
	c.Assert(err, qt.IsNil)
	c.Assert(path.Siblings, qt.HasLen, 16)
	c.Assert(path.Siblings[0].Sign(), qt.Not(qt.Equals), 0)
	c.Assert(path.Siblings[1].Sign(), qt.Not(qt.Equals), 0)
	for i := 2; i < 16; i++ {
		c.Assert(path.Siblings[i].Sign(), qt.Equals, 0, qt.Commentf("sibling %d", i))
	}

	root, err := CurrentRoot(logOrder(1, 2, 3))
	c.Assert(err, qt.IsNil)
	c.Assert(VerifyPath(big.NewInt(1), root, path), qt.IsNil)
}

func TestSingleLeaf(t *testing.T) {
	c := qt.New(t)

	tree, err := FromEvents(logOrder(42))
	c.Assert(err, qt.IsNil)
	c.Assert(tree.Depth(), qt.Equals, uint32(0))
	c.Assert(tree.Root().Cmp(big.NewInt(42)), qt.Equals, 0)

	path, err := tree.Path(0, 4)
	c.Assert(err, qt.IsNil)
	c.Assert(path.Siblings, qt.HasLen, 4)
	for _, s := range path.Siblings {
		c.Assert(s.Sign(), qt.Equals, 0)
	}
	c.Assert(VerifyPath(big.NewInt(42), tree.Root(), path), qt.IsNil)
}

func TestErrors(t *testing.T) {
	c := qt.New(t)

	_, err := BuildPath(nil, 0, 16)
	c.Assert(err, qt.ErrorIs, types.ErrEmptyAccumulator)

	_, err = BuildPath(logOrder(1, 2, 3), 3, 16)
	c.Assert(err, qt.ErrorIs, types.ErrIndexOutOfRange)

	_, err = BuildPath(logOrder(1, 2, 3, 4, 5), 0, 2)
	c.Assert(err, qt.ErrorIs, types.ErrDepthExceeded)

	gap := logOrder(1, 2, 3)
	gap[0].Index = 7
	_, err = CurrentRoot(gap)
	c.Assert(err, qt.ErrorMatches, "leaf events are not contiguous")

	_, err = New([]*big.Int{types.FieldModulus})
	c.Assert(err, qt.ErrorIs, types.ErrFieldOverflow)
}

// referenceLevels builds every level of a LeanIMT directly from the hash
// definition: pairs are hashed and a trailing node is promoted.
func referenceLevels(c *qt.C, leaves []*big.Int) [][]*big.Int {
	levels := [][]*big.Int{leaves}
	for level := leaves; len(level) > 1; {
		var next []*big.Int
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			next = append(next, hash2(c, level[i], level[i+1]))
		}
		levels = append(levels, next)
		level = next
	}
	return levels
}

func TestMatchesReferenceTree(t *testing.T) {
	c := qt.New(t)

	for size := 1; size <= 40; size++ {
		leaves := make([]*big.Int, size)
		for i := range leaves {
			leaves[i] = big.NewInt(int64(1000 + i*7))
		}
		tree, err := New(leaves)
		c.Assert(err, qt.IsNil)

		levels := referenceLevels(c, leaves)
		c.Assert(tree.Depth(), qt.Equals, uint32(len(levels)-1), qt.Commentf("size %d", size))
		c.Assert(tree.Root().Cmp(levels[len(levels)-1][0]), qt.Equals, 0, qt.Commentf("size %d", size))

		// a second tree built leaf by leaf takes the other insertion path
		incremental, err := leanimt.New(leanimt.PoseidonHasher, leanimt.BigIntEqual, nil, nil, nil)
		c.Assert(err, qt.IsNil)
		for _, leaf := range leaves {
			incremental.Insert(leaf)
		}

		for i := range leaves {
			path, err := tree.Path(uint32(i), 16)
			c.Assert(err, qt.IsNil)
			c.Assert(path.Siblings, qt.HasLen, 16)

			idx := i
			for lvl, level := range levels[:len(levels)-1] {
				want := big.NewInt(0)
				switch {
				case idx%2 == 1:
					want = level[idx-1]
				case idx+1 < len(level):
					want = level[idx+1]
				}
				c.Assert(path.Siblings[lvl].Cmp(want), qt.Equals, 0,
					qt.Commentf("size %d leaf %d level %d", size, i, lvl))
				idx /= 2
			}
			for _, pad := range path.Siblings[len(levels)-1:] {
				c.Assert(pad.Sign(), qt.Equals, 0)
			}

			proof, err := incremental.GenerateProof(i)
			c.Assert(err, qt.IsNil)
			compact := Compress(leaves[i], tree.Root(), path)
			c.Assert(compact.PathBits, qt.Equals, proof.PathBits, qt.Commentf("size %d leaf %d", size, i))
			c.Assert(compact.Siblings, qt.HasLen, len(proof.Siblings))
			for j := range proof.Siblings {
				c.Assert(compact.Siblings[j].Cmp(proof.Siblings[j]), qt.Equals, 0)
			}
			c.Assert(VerifyPath(leaves[i], tree.Root(), path), qt.IsNil)
		}
	}
}

func TestExpandRejectsInconsistentProof(t *testing.T) {
	c := qt.New(t)

	tree, err := New([]*big.Int{big.NewInt(1), big.NewInt(2), big.NewInt(3)})
	c.Assert(err, qt.IsNil)
	proof, err := tree.imt.GenerateProof(1)
	c.Assert(err, qt.IsNil)

	siblings, err := Expand(proof, tree.Depth())
	c.Assert(err, qt.IsNil)
	c.Assert(siblings, qt.HasLen, 2)

	flipped := proof
	flipped.PathBits ^= 1
	_, err = Expand(flipped, tree.Depth())
	c.Assert(err, qt.ErrorMatches, "path bit 0 does not match leaf index 1")

	short := proof
	short.Siblings = proof.Siblings[:1]
	_, err = Expand(short, tree.Depth())
	c.Assert(err, qt.ErrorMatches, "proof has 1 siblings, level 1 needs one more")
}

func TestIndexOf(t *testing.T) {
	c := qt.New(t)

	tree, err := FromEvents(logOrder(10, 20, 30))
	c.Assert(err, qt.IsNil)
	idx, ok := tree.IndexOf(big.NewInt(30))
	c.Assert(ok, qt.IsTrue)
	c.Assert(idx, qt.Equals, uint32(2))
	_, ok = tree.IndexOf(big.NewInt(1))
	c.Assert(ok, qt.IsFalse)

	leaf, err := tree.Leaf(1)
	c.Assert(err, qt.IsNil)
	c.Assert(leaf.Cmp(big.NewInt(20)), qt.Equals, 0)
	_, err = tree.Leaf(3)
	c.Assert(err, qt.ErrorIs, types.ErrIndexOutOfRange)
}

func TestNaturalDepth(t *testing.T) {
	c := qt.New(t)

	for size, want := range map[int]uint32{0: 0, 1: 0, 2: 1, 3: 2, 4: 2, 5: 3, 8: 3, 9: 4, 65536: 16, 65537: 17} {
		c.Assert(NaturalDepth(size), qt.Equals, want, qt.Commentf("size %d", size))
	}
}
