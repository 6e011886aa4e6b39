package prover

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/iden3/go-rapidsnark/prover"
	rapidtypes "github.com/iden3/go-rapidsnark/types"
	"github.com/iden3/go-rapidsnark/verifier"
	"github.com/iden3/go-rapidsnark/witness"
	"github.com/vocdoni/zkvote/circuit"
)

var (
	ErrPublicSignalFormat = errors.New("invalid proof public signals format")
	ErrPubSignalNotFound  = errors.New("public signal not found in circuit definition")
	ErrParsingProofSignal = errors.New("error parsing proof signal string to big.Int")
	ErrParsingWitness     = errors.New("error parsing provided circuit inputs")
	ErrInitWitnessCalc    = errors.New("error parsing circuit wasm during calculator instance")
	ErrWitnessCalc        = errors.New("error during witness calculation")
	ErrProofGen           = errors.New("error during zksnark proof generation")
	ErrParseProofData     = errors.New("error parsing the proof data")
	ErrParsePubSignals    = errors.New("error parsing the public signals, expected a json array of strings")
	ErrVerifyProof        = errors.New("error during zksnark verification")
	ErrHashingMode        = errors.New("unsupported hashing mode")
)

// proverMu serializes the rapidsnark witness calculator and prover, which
// are not safe for concurrent use.
var proverMu sync.Mutex

// Rapidsnark is the Backend running the circom wasm witness calculator and
// the rapidsnark Groth16 prover.
type Rapidsnark struct{}

// NewRapidsnark returns the rapidsnark backend.
func NewRapidsnark() *Rapidsnark {
	return &Rapidsnark{}
}

// Execute calculates the binary witness. Malformed inputs make the
// calculator panic; the panic is returned as an error.
func (*Rapidsnark) Execute(ctx context.Context, artifacts *circuit.Artifacts, inputs []byte) (wtns []byte, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(artifacts.Wasm) == 0 {
		return nil, fmt.Errorf("%w: empty circuit wasm", ErrInitWitnessCalc)
	}
	defer func() {
		if p := recover(); p != nil {
			wtns, err = nil, fmt.Errorf("%w: %v", ErrParsingWitness, p)
		}
	}()
	parsed, err := witness.ParseInputs(inputs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParsingWitness, err)
	}

	proverMu.Lock()
	defer proverMu.Unlock()
	calculator, err := witness.NewCircom2WitnessCalculator(artifacts.Wasm, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInitWitnessCalc, err)
	}
	wtns, err = calculator.CalculateWTNSBin(parsed, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWitnessCalc, err)
	}
	return wtns, nil
}

// Prove runs the Groth16 prover over the witness. Groth16 has no transcript
// hash, so only the EVM targeted keccak mode is accepted.
func (*Rapidsnark) Prove(ctx context.Context, artifacts *circuit.Artifacts, trace []byte, opts ProveOptions) ([]byte, []byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if opts.HashingMode != HashingKeccak {
		return nil, nil, fmt.Errorf("%w: %q", ErrHashingMode, opts.HashingMode)
	}
	if len(artifacts.ProvingKey) == 0 {
		return nil, nil, fmt.Errorf("%w: empty proving key", ErrProofGen)
	}
	proverMu.Lock()
	proof, pubSignals, err := prover.Groth16ProverRaw(artifacts.ProvingKey, trace)
	proverMu.Unlock()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrProofGen, err)
	}
	return []byte(proof), []byte(pubSignals), nil
}

// Verify checks the proof and its public signals against the verification
// key.
func (p *Proof) Verify(vk []byte) error {
	zkp := rapidtypes.ZKProof{
		Proof: &rapidtypes.ProofData{
			A:        p.Data.A,
			B:        p.Data.B,
			C:        p.Data.C,
			Protocol: p.Data.Protocol,
		},
		PubSignals: p.PubSignals,
	}
	if err := verifier.VerifyGroth16(zkp, vk); err != nil {
		return fmt.Errorf("%w: %w", ErrVerifyProof, err)
	}
	return nil
}
