package commitment

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/zkvote/types"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("no entropy") }

func TestGenerate(t *testing.T) {
	c := qt.New(t)

	rec, err := New(nil).Generate()
	c.Assert(err, qt.IsNil)
	c.Assert(rec.LeafIndex, qt.IsNil)
	c.Assert(rec.Nullifier.InField(), qt.IsTrue)
	c.Assert(rec.Secret.InField(), qt.IsTrue)
	c.Assert(rec.Commitment.InField(), qt.IsTrue)
	c.Assert(Verify(rec), qt.IsNil)

	again, err := Commit(rec.Nullifier.MathBigInt(), rec.Secret.MathBigInt())
	c.Assert(err, qt.IsNil)
	c.Assert(again.Cmp(rec.Commitment.MathBigInt()), qt.Equals, 0)
}

func TestGenerateDeterministicReader(t *testing.T) {
	c := qt.New(t)

	seed := bytes.Repeat([]byte{0x01, 0x23, 0x45, 0x67}, 64)
	a, err := New(bytes.NewReader(seed)).Generate()
	c.Assert(err, qt.IsNil)
	b, err := New(bytes.NewReader(seed)).Generate()
	c.Assert(err, qt.IsNil)
	c.Assert(a.Commitment.Equal(b.Commitment), qt.IsTrue)
	c.Assert(a.Nullifier.Equal(b.Nullifier), qt.IsTrue)
}

func TestGenerateCollisionFree(t *testing.T) {
	c := qt.New(t)
	if testing.Short() {
		c.Skip("skipping 10k sample run in short mode")
	}

	const samples = 10000
	gen := New(nil)
	commitments := make(map[string]struct{}, samples)
	nullifiers := make(map[string]struct{}, samples)
	for range samples {
		rec, err := gen.Generate()
		c.Assert(err, qt.IsNil)
		commitments[rec.Commitment.String()] = struct{}{}
		nullifiers[rec.Nullifier.String()] = struct{}{}
	}
	c.Assert(commitments, qt.HasLen, samples)
	c.Assert(nullifiers, qt.HasLen, samples)
}

func TestGenerateRandomnessUnavailable(t *testing.T) {
	c := qt.New(t)

	_, err := New(failingReader{}).Generate()
	c.Assert(err, qt.ErrorIs, types.ErrRandomnessUnavailable)
}

func TestVerifyMismatch(t *testing.T) {
	c := qt.New(t)

	rec, err := New(nil).Generate()
	c.Assert(err, qt.IsNil)
	rec.Secret = types.NewBigInt(new(big.Int).Add(rec.Secret.MathBigInt(), big.NewInt(1)))
	c.Assert(Verify(rec), qt.ErrorMatches, "commitment does not match nullifier and secret")
}

func TestNullifierHash(t *testing.T) {
	c := qt.New(t)

	h, err := NullifierHash(big.NewInt(1))
	c.Assert(err, qt.IsNil)
	c.Assert(h.String(), qt.Equals, "18586133768512220936620570745912940619677854269274689475585506675881198879027")

	_, err = NullifierHash(types.FieldModulus)
	c.Assert(err, qt.Not(qt.IsNil))
}
