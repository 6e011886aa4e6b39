package storage

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/vocdoni/zkvote/crypto/hash/poseidon"
	"github.com/vocdoni/zkvote/types"
)

// CommitmentRecord holds the private material of a registered voter. It is
// created once per voter and ledger; LeafIndex is unset until the
// registration transaction is confirmed.
type CommitmentRecord struct {
	Commitment *types.BigInt `json:"commitment" cbor:"0,keyasint"`
	Nullifier  *types.BigInt `json:"nullifier" cbor:"1,keyasint"`
	Secret     *types.BigInt `json:"secret" cbor:"2,keyasint"`
	LeafIndex  *uint32       `json:"leafIndex,omitempty" cbor:"3,keyasint,omitempty"`
}

// Valid checks that every value is a field element and that the commitment
// matches the nullifier and secret.
func (r *CommitmentRecord) Valid() error {
	if r.Commitment == nil || r.Nullifier == nil || r.Secret == nil {
		return fmt.Errorf("incomplete commitment record")
	}
	if !r.Commitment.InField() || !r.Nullifier.InField() || !r.Secret.InField() {
		return types.ErrFieldOverflow
	}
	c, err := poseidon.Hash2(r.Nullifier.MathBigInt(), r.Secret.MathBigInt())
	if err != nil {
		return err
	}
	if c.Cmp(r.Commitment.MathBigInt()) != 0 {
		return fmt.Errorf("commitment does not match nullifier and secret")
	}
	return nil
}

// Registered reports whether the commitment has a known leaf index.
func (r *CommitmentRecord) Registered() bool {
	return r != nil && r.LeafIndex != nil
}

// RelayIdentity is the disposable account that submits the vote on behalf
// of the voter, so the voter address never appears in the vote transaction.
type RelayIdentity struct {
	Address    common.Address `json:"address" cbor:"0,keyasint"`
	PrivateKey types.HexBytes `json:"privateKey" cbor:"1,keyasint"`
}

// Valid checks that the private key controls the stored address.
func (r *RelayIdentity) Valid() error {
	key, err := ethcrypto.ToECDSA(r.PrivateKey)
	if err != nil {
		return fmt.Errorf("invalid relay private key: %w", err)
	}
	if addr := ethcrypto.PubkeyToAddress(key.PublicKey); addr != r.Address {
		return fmt.Errorf("relay key controls %s, stored address is %s", addr, r.Address)
	}
	return nil
}

// SubmissionState is the state of the relay submission state machine.
type SubmissionState string

const (
	StateNoRelay   SubmissionState = "no-relay"
	StateFunded    SubmissionState = "funded"
	StateSubmitted SubmissionState = "submitted"
	StateConfirmed SubmissionState = "confirmed"
	StateFailed    SubmissionState = "failed"
)

// Valid reports whether s is a known state.
func (s SubmissionState) Valid() bool {
	switch s {
	case StateNoRelay, StateFunded, StateSubmitted, StateConfirmed, StateFailed:
		return true
	}
	return false
}

// SubmissionRecord persists the relay state machine. RawTx keeps the signed
// vote transaction so a retry rebroadcasts the exact same payload.
type SubmissionRecord struct {
	State     SubmissionState `json:"state" cbor:"0,keyasint"`
	Relay     common.Address  `json:"relay" cbor:"1,keyasint"`
	Vote      bool            `json:"vote" cbor:"2,keyasint"`
	TxHash    common.Hash     `json:"txHash,omitempty" cbor:"3,keyasint,omitempty"`
	RawTx     types.HexBytes  `json:"rawTx,omitempty" cbor:"4,keyasint,omitempty"`
	LastError string          `json:"lastError,omitempty" cbor:"5,keyasint,omitempty"`
	UpdatedAt int64           `json:"updatedAt" cbor:"6,keyasint"`
}

// Valid checks the state and that a submitted record carries its payload.
// A confirmed record may lack it when the vote was observed on the ledger
// only.
func (r *SubmissionRecord) Valid() error {
	if !r.State.Valid() {
		return fmt.Errorf("unknown submission state %q", r.State)
	}
	if r.State == StateSubmitted && (len(r.RawTx) == 0 || r.TxHash == (common.Hash{})) {
		return fmt.Errorf("%s submission without transaction", r.State)
	}
	if len(r.RawTx) > 0 && r.TxHash == (common.Hash{}) {
		return fmt.Errorf("signed transaction without hash")
	}
	return nil
}

// Updated returns the last update time.
func (r *SubmissionRecord) Updated() time.Time {
	return time.Unix(r.UpdatedAt, 0)
}
