package accumulator

import (
	"fmt"
	"math/big"

	leanimt "github.com/vocdoni/lean-imt-go"
	"github.com/vocdoni/zkvote/crypto/hash/poseidon"
)

// VerifyPath checks that path links leaf to root. The path is replayed with
// the circuit rules and, independently, converted to the compact LeanIMT
// proof form and checked with lean-imt-go.
func VerifyPath(leaf, root *big.Int, path *Path) error {
	if leaf == nil || root == nil || path == nil {
		return fmt.Errorf("incomplete inclusion proof")
	}
	computed, err := replay(leaf, path)
	if err != nil {
		return err
	}
	if computed.Cmp(root) != 0 {
		return fmt.Errorf("path leads to root %s, expected %s", computed, root)
	}
	if !leanimt.VerifyProofWith(Compress(leaf, root, path), leanimt.PoseidonHasher, leanimt.BigIntEqual) {
		return fmt.Errorf("lean-imt proof verification failed")
	}
	return nil
}

// replay walks the path from the leaf to the root. A zero sibling means the
// node is promoted without hashing.
func replay(leaf *big.Int, path *Path) (*big.Int, error) {
	node := new(big.Int).Set(leaf)
	idx := path.LeafIndex
	for level, sibling := range path.Siblings {
		if sibling == nil {
			return nil, fmt.Errorf("nil sibling at level %d", level)
		}
		bit := idx & 1
		idx >>= 1
		if sibling.Sign() == 0 {
			if bit == 1 {
				return nil, fmt.Errorf("right node without left sibling at level %d", level)
			}
			continue
		}
		var err error
		if bit == 1 {
			node, err = poseidon.Hash2(sibling, node)
		} else {
			node, err = poseidon.Hash2(node, sibling)
		}
		if err != nil {
			return nil, fmt.Errorf("hash level %d: %w", level, err)
		}
	}
	if idx != 0 {
		return nil, fmt.Errorf("leaf index %d does not fit in %d levels", path.LeafIndex, len(path.Siblings))
	}
	return node, nil
}

// Compress converts a padded path to the LeanIMT proof form: zero siblings
// are dropped and PathBits keeps one bit per remaining sibling. TreeSize is
// left unset, verification does not read it.
func Compress(leaf, root *big.Int, path *Path) leanimt.MerkleProof[*big.Int] {
	var siblings []*big.Int
	var pathBits uint64
	idx := path.LeafIndex
	for _, sibling := range path.Siblings {
		bit := uint64(idx & 1)
		idx >>= 1
		if sibling == nil || sibling.Sign() == 0 {
			continue
		}
		pathBits |= bit << len(siblings)
		siblings = append(siblings, sibling)
	}
	return leanimt.MerkleProof[*big.Int]{
		Root:      root,
		Leaf:      leaf,
		PathBits:  pathBits,
		LeafIndex: uint64(path.LeafIndex),
		Siblings:  siblings,
	}
}
