// Package poseidon exposes the Poseidon instances over the BN254 scalar field
// used by the voting protocol: the one input hash for nullifier hashes and the
// two input hash for commitments and accumulator nodes. The parameters match
// circomlib, which is what the vote circuit and the ledger contract use.
package poseidon

import (
	"fmt"
	"math/big"

	"github.com/iden3/go-iden3-crypto/poseidon"
)

// Hash computes the Poseidon hash of up to 16 field elements. Inputs must be
// canonical field elements.
func Hash(inputs ...*big.Int) (*big.Int, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no inputs provided")
	}
	for i, in := range inputs {
		if in == nil {
			return nil, fmt.Errorf("nil input at position %d", i)
		}
	}
	h, err := poseidon.Hash(inputs)
	if err != nil {
		return nil, fmt.Errorf("poseidon: %w", err)
	}
	return h, nil
}

// Hash1 returns Poseidon1(x).
func Hash1(x *big.Int) (*big.Int, error) {
	return Hash(x)
}

// Hash2 returns Poseidon2(left, right).
func Hash2(left, right *big.Int) (*big.Int, error) {
	return Hash(left, right)
}
