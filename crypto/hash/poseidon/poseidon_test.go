package poseidon

import (
	"math/big"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/zkvote/types"
)

func TestHashVectors(t *testing.T) {
	c := qt.New(t)

	// circomlib reference values
	h1, err := Hash1(big.NewInt(1))
	c.Assert(err, qt.IsNil)
	c.Assert(h1.String(), qt.Equals, "18586133768512220936620570745912940619677854269274689475585506675881198879027")

	h2, err := Hash2(big.NewInt(1), big.NewInt(2))
	c.Assert(err, qt.IsNil)
	c.Assert(h2.String(), qt.Equals, "7853200120776062878684798364095072458815029376092732009249414926327459813530")
}

func TestHashErrors(t *testing.T) {
	c := qt.New(t)

	_, err := Hash()
	c.Assert(err, qt.ErrorMatches, "no inputs provided")

	_, err = Hash2(big.NewInt(1), nil)
	c.Assert(err, qt.ErrorMatches, "nil input at position 1")

	_, err = Hash1(types.FieldModulus)
	c.Assert(err, qt.Not(qt.IsNil))
}
