package prover

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/zkvote/circuit"
	"github.com/vocdoni/zkvote/types"
	"github.com/vocdoni/zkvote/witness"
)

var testProof = ProofData{
	A: []string{"1", "2", "1"},
	B: [][]string{{"3", "4"}, {"5", "6"}, {"1", "0"}},
	C: []string{"7", "8", "1"},
}

// fakeBackend echoes the circuit inputs as trace and emits the public
// signals named by order, reading them from the trace.
type fakeBackend struct {
	order      []string
	executeErr error
	tamper     bool
	executed   int
	opts       ProveOptions
}

func (f *fakeBackend) Execute(_ context.Context, _ *circuit.Artifacts, inputs []byte) ([]byte, error) {
	f.executed++
	if f.executeErr != nil {
		return nil, f.executeErr
	}
	return inputs, nil
}

func (f *fakeBackend) Prove(_ context.Context, _ *circuit.Artifacts, trace []byte, opts ProveOptions) ([]byte, []byte, error) {
	f.opts = opts
	inputs := map[string]any{}
	if err := json.Unmarshal(trace, &inputs); err != nil {
		return nil, nil, err
	}
	signals := make([]string, len(f.order))
	for i, name := range f.order {
		signals[i] = inputs[name].(string)
	}
	if f.tamper {
		signals[0] = "123"
	}
	proof, err := json.Marshal(testProof)
	if err != nil {
		return nil, nil, err
	}
	public, err := json.Marshal(signals)
	if err != nil {
		return nil, nil, err
	}
	return proof, public, nil
}

func testWitness() *witness.VoteWitness {
	return &witness.VoteWitness{
		NullifierHash: big.NewInt(1111),
		Nullifier:     big.NewInt(11),
		Secret:        big.NewInt(22),
		Root:          big.NewInt(3333),
		Vote:          true,
		Depth:         2,
		LeafIndex:     1,
		Siblings:      []*big.Int{big.NewInt(5), big.NewInt(6)},
	}
}

func TestPipelineNormalizes(t *testing.T) {
	c := qt.New(t)
	order := []string{"root", "depth", "nullifier_hash", "vote"}
	backend := &fakeBackend{order: order}
	p, err := New(backend, &circuit.Artifacts{}, Options{PublicSignals: order})
	c.Assert(err, qt.IsNil)

	bundle, err := p.Prove(context.Background(), testWitness())
	c.Assert(err, qt.IsNil)
	c.Assert(backend.opts.HashingMode, qt.Equals, HashingKeccak)
	public := make([]string, len(bundle.PublicInputs))
	for i, v := range bundle.PublicInputs {
		public[i] = v.String()
	}
	c.Assert(public, qt.DeepEquals, []string{"1111", "3333", "1", "2"})
	c.Assert(bundle.Vote(), qt.IsTrue)

	c.Assert(bundle.Proof, qt.HasLen, 256)
	words := make([]int64, 8)
	for i := range words {
		words[i] = new(big.Int).SetBytes(bundle.Proof[32*i : 32*(i+1)]).Int64()
	}
	c.Assert(words, qt.DeepEquals, []int64{1, 2, 4, 3, 6, 5, 7, 8})
}

func TestPipelineFailures(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()

	c.Run("execution error", func(c *qt.C) {
		backend := &fakeBackend{order: DefaultPublicSignals, executeErr: errors.New("bad wasm")}
		p, err := New(backend, &circuit.Artifacts{}, Options{})
		c.Assert(err, qt.IsNil)
		_, err = p.Prove(ctx, testWitness())
		c.Assert(err, qt.ErrorIs, types.ErrProofGenerationFailed)
		c.Assert(err, qt.ErrorMatches, `.*execute circuit: bad wasm`)
		c.Assert(backend.executed, qt.Equals, 1)
	})

	c.Run("public signal mismatch", func(c *qt.C) {
		backend := &fakeBackend{order: DefaultPublicSignals, tamper: true}
		p, err := New(backend, &circuit.Artifacts{}, Options{})
		c.Assert(err, qt.IsNil)
		_, err = p.Prove(ctx, testWitness())
		c.Assert(err, qt.ErrorIs, types.ErrProofGenerationFailed)
		c.Assert(err, qt.ErrorMatches, `.*public input 0 is 123, witness has 1111`)
	})

	c.Run("wrong public signal count", func(c *qt.C) {
		backend := &fakeBackend{order: DefaultPublicSignals[:3]}
		p, err := New(backend, &circuit.Artifacts{}, Options{})
		c.Assert(err, qt.IsNil)
		_, err = p.Prove(ctx, testWitness())
		c.Assert(err, qt.ErrorIs, types.ErrProofGenerationFailed)
		c.Assert(err, qt.ErrorIs, ErrPublicSignalFormat)
	})
}

func TestNewValidatesOptions(t *testing.T) {
	c := qt.New(t)
	_, err := New(&fakeBackend{}, &circuit.Artifacts{}, Options{PublicSignals: []string{"root", "root", "vote", "depth"}})
	c.Assert(err, qt.ErrorMatches, `invalid public signal order .*`)
	_, err = New(&fakeBackend{}, &circuit.Artifacts{}, Options{PublicSignals: []string{"root"}})
	c.Assert(err, qt.ErrorMatches, `expected 4 public signal names, got 1`)
	_, err = New(&fakeBackend{}, &circuit.Artifacts{}, Options{VerifyLocally: true})
	c.Assert(err, qt.ErrorMatches, `local verification requires a verification key`)
	_, err = New(nil, &circuit.Artifacts{}, Options{})
	c.Assert(err, qt.ErrorMatches, `nil proving backend`)
}

func TestSolidityEncoding(t *testing.T) {
	c := qt.New(t)
	_, err := (&ProofData{A: []string{"1"}}).Solidity()
	c.Assert(err, qt.ErrorIs, ErrParseProofData)
	bad := testProof
	bad.C = []string{"7", "not a number"}
	_, err = bad.Solidity()
	c.Assert(err, qt.ErrorIs, ErrParseProofData)

	_, err = OrderPublicSignals([]string{"1", "2", "3", "x"}, DefaultPublicSignals)
	c.Assert(err, qt.ErrorIs, ErrParsingProofSignal)
	_, err = OrderPublicSignals([]string{"1", "2", "3", "4"}, []string{"root", "vote", "depth", "other"})
	c.Assert(err, qt.ErrorIs, ErrPubSignalNotFound)
}

func TestRapidsnarkRejects(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	r := NewRapidsnark()
	_, err := r.Execute(ctx, &circuit.Artifacts{}, []byte(`{}`))
	c.Assert(err, qt.ErrorIs, ErrInitWitnessCalc)
	_, _, err = r.Prove(ctx, &circuit.Artifacts{ProvingKey: []byte{1}}, nil, ProveOptions{HashingMode: HashingPoseidon})
	c.Assert(err, qt.ErrorIs, ErrHashingMode)
	_, _, err = r.Prove(ctx, &circuit.Artifacts{}, nil, ProveOptions{HashingMode: HashingKeccak})
	c.Assert(err, qt.ErrorIs, ErrProofGen)
}
