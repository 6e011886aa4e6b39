// Package ledger defines the surface of the voting contract consumed by the
// client: the voter side (registration, eligibility, accumulator log) and the
// relay side (balance, signed vote transactions, receipts).
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/vocdoni/zkvote/crypto/signatures/ethereum"
	"github.com/vocdoni/zkvote/types"
)

// ErrReceiptNotFound is returned by Transactor.Receipt while the transaction
// is not mined yet.
var ErrReceiptNotFound = errors.New("receipt not found")

// Ledger is the voter side of the voting contract.
type Ledger interface {
	// Address is the contract address, used to scope local state.
	Address() common.Address
	// Register inserts the commitment as a new accumulator leaf, sent from
	// the voter wallet.
	Register(ctx context.Context, commitment *types.BigInt) (*Receipt, error)
	VoterData(ctx context.Context, voter common.Address) (*VoterData, error)
	VotingData(ctx context.Context) (*VotingData, error)
	// LeafEvents returns every NewLeaf event, most recent first.
	LeafEvents(ctx context.Context) ([]types.LeafEvent, error)
	// HasVoted reports whether a VoteCast event was emitted with relay as
	// sender.
	HasVoted(ctx context.Context, relay common.Address) (bool, error)
}

// Transactor is the relay side of the voting contract.
type Transactor interface {
	Balance(ctx context.Context, addr common.Address) (*uint256.Int, error)
	// SignVote builds and signs a vote transaction from the relay key. The
	// transaction is not sent.
	SignVote(ctx context.Context, relay *ethereum.Signer, call *VoteCall) (*gethtypes.Transaction, error)
	// Broadcast sends a signed transaction. Sending a transaction the node
	// already knows is not an error.
	Broadcast(ctx context.Context, tx *gethtypes.Transaction) error
	// Receipt returns ErrReceiptNotFound while the transaction is pending.
	Receipt(ctx context.Context, hash common.Hash) (*Receipt, error)
}

// VoterData is the result of getVoterData.
type VoterData struct {
	IsVoter       bool `json:"isVoter"`
	HasRegistered bool `json:"hasRegistered"`
}

// VotingData is the result of getVotingData.
type VotingData struct {
	Question  string         `json:"question"`
	Owner     common.Address `json:"owner"`
	YesVotes  *types.BigInt  `json:"yesVotes"`
	NoVotes   *types.BigInt  `json:"noVotes"`
	TreeSize  uint64         `json:"treeSize"`
	TreeDepth uint64         `json:"treeDepth"`
	Root      *types.BigInt  `json:"root"`
}

// Receipt is the outcome of a mined transaction.
type Receipt struct {
	TxHash  common.Hash `json:"txHash"`
	Block   uint64      `json:"block"`
	GasUsed uint64      `json:"gasUsed"`
	Success bool        `json:"success"`
}

// VoteCall holds the arguments of the vote method, every scalar encoded as
// bytes32.
type VoteCall struct {
	Proof         []byte
	NullifierHash common.Hash
	Root          common.Hash
	Vote          common.Hash
	Depth         common.Hash
}

// NewVoteCall maps a proof bundle to the vote method arguments.
func NewVoteCall(bundle *types.ProofBundle) (*VoteCall, error) {
	if err := bundle.Valid(); err != nil {
		return nil, fmt.Errorf("invalid proof bundle: %w", err)
	}
	return &VoteCall{
		Proof:         bundle.Proof,
		NullifierHash: bundle.NullifierHash().Bytes32(),
		Root:          bundle.Root().Bytes32(),
		Vote:          bundle.PublicInputs[types.PublicVote].Bytes32(),
		Depth:         bundle.Depth().Bytes32(),
	}, nil
}

// Choice decodes the vote argument.
func (v *VoteCall) Choice() bool {
	return v.Vote.Big().Sign() != 0
}
