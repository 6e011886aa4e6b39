// Package commitment derives the private voter material: a random nullifier
// and secret, and the public commitment Poseidon2(nullifier, secret) that is
// inserted in the ledger accumulator.
package commitment

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"

	"github.com/vocdoni/zkvote/crypto/hash/poseidon"
	"github.com/vocdoni/zkvote/storage"
	"github.com/vocdoni/zkvote/types"
)

// Generator produces fresh commitment records. The zero value draws entropy
// from crypto/rand.
type Generator struct {
	// Rand is the entropy source. Nil means crypto/rand.Reader.
	Rand io.Reader
}

// New returns a Generator reading from r, or from crypto/rand if r is nil.
func New(r io.Reader) *Generator {
	return &Generator{Rand: r}
}

// Generate draws a nullifier and a secret independently and uniformly from
// the scalar field and computes their commitment. The returned record has no
// leaf index yet.
func (g *Generator) Generate() (*storage.CommitmentRecord, error) {
	nullifier, err := g.randomElement()
	if err != nil {
		return nil, fmt.Errorf("nullifier: %w", err)
	}
	secret, err := g.randomElement()
	if err != nil {
		return nil, fmt.Errorf("secret: %w", err)
	}
	commitment, err := Commit(nullifier, secret)
	if err != nil {
		return nil, err
	}
	return &storage.CommitmentRecord{
		Commitment: types.NewBigInt(commitment),
		Nullifier:  types.NewBigInt(nullifier),
		Secret:     types.NewBigInt(secret),
	}, nil
}

func (g *Generator) randomElement() (*big.Int, error) {
	r := g.Rand
	if r == nil {
		r = rand.Reader
	}
	v, err := rand.Int(r, types.FieldModulus)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrRandomnessUnavailable, err)
	}
	return v, nil
}

// Commit returns Poseidon2(nullifier, secret).
func Commit(nullifier, secret *big.Int) (*big.Int, error) {
	c, err := poseidon.Hash2(nullifier, secret)
	if err != nil {
		return nil, fmt.Errorf("commitment: %w", err)
	}
	return c, nil
}

// NullifierHash returns Poseidon1(nullifier), the public value the ledger
// uses to reject a second vote from the same commitment.
func NullifierHash(nullifier *big.Int) (*big.Int, error) {
	h, err := poseidon.Hash1(nullifier)
	if err != nil {
		return nil, fmt.Errorf("nullifier hash: %w", err)
	}
	return h, nil
}

// Verify checks that the record commitment matches its nullifier and secret.
func Verify(rec *storage.CommitmentRecord) error {
	if rec == nil || rec.Commitment == nil || rec.Nullifier == nil || rec.Secret == nil {
		return fmt.Errorf("incomplete commitment record")
	}
	c, err := Commit(rec.Nullifier.MathBigInt(), rec.Secret.MathBigInt())
	if err != nil {
		return err
	}
	if c.Cmp(rec.Commitment.MathBigInt()) != 0 {
		return fmt.Errorf("commitment does not match nullifier and secret")
	}
	return nil
}
