// Package web3 binds the voting contract through go-ethereum: contract reads,
// NewLeaf and VoteCast log scans, register transactions from the voter wallet
// and vote transactions from relay keys.
package web3

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/holiman/uint256"
	ethSigner "github.com/vocdoni/zkvote/crypto/signatures/ethereum"
	"github.com/vocdoni/zkvote/ledger"
	"github.com/vocdoni/zkvote/log"
	"github.com/vocdoni/zkvote/types"
	"github.com/vocdoni/zkvote/web3/txmanager"
)

const (
	// web3QueryTimeout is the timeout for single web3 queries.
	web3QueryTimeout = 10 * time.Second

	// DefaultLogWindow is the number of blocks requested per eth_getLogs
	// call, below the 10k range most providers accept.
	DefaultLogWindow = 9990

	// DefaultReceiptTimeout bounds the wait for the register receipt.
	DefaultReceiptTimeout = 2 * time.Minute
)

// Backend is the subset of ethclient.Client used by the binding.
type Backend interface {
	txmanager.Client
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]gethtypes.Log, error)
}

// Options configure a Voting binding. Zero values take defaults.
type Options struct {
	// Voter signs register transactions. Reads and relay calls work
	// without it.
	Voter *ethSigner.Signer
	// StartBlock is the first block scanned for events, usually the
	// deployment block of the contract.
	StartBlock     uint64
	LogWindow      uint64
	ReceiptTimeout time.Duration
	TxManager      *txmanager.Config
}

// Voting is the go-ethereum implementation of ledger.Ledger and
// ledger.Transactor.
type Voting struct {
	address        common.Address
	cli            Backend
	txm            *txmanager.Manager
	voter          *ethSigner.Signer
	startBlock     uint64
	logWindow      uint64
	receiptTimeout time.Duration
}

var (
	_ ledger.Ledger     = (*Voting)(nil)
	_ ledger.Transactor = (*Voting)(nil)
)

// Dial connects to rpcURL and binds the contract at address.
func Dial(ctx context.Context, rpcURL string, address common.Address, opts Options) (*Voting, *ethclient.Client, error) {
	cli, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}
	v, err := New(ctx, cli, address, opts)
	if err != nil {
		cli.Close()
		return nil, nil, err
	}
	return v, cli, nil
}

// New binds the contract at address through cli.
func New(ctx context.Context, cli Backend, address common.Address, opts Options) (*Voting, error) {
	if address == (common.Address{}) {
		return nil, fmt.Errorf("empty contract address")
	}
	qctx, cancel := context.WithTimeout(ctx, web3QueryTimeout)
	defer cancel()
	chainID, err := cli.ChainID(qctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}
	txCfg := txmanager.DefaultConfig(chainID.Uint64())
	if opts.TxManager != nil {
		txCfg = *opts.TxManager
		txCfg.ChainID = chainID
	}
	txm, err := txmanager.New(cli, txCfg)
	if err != nil {
		return nil, err
	}
	v := &Voting{
		address:        address,
		cli:            cli,
		txm:            txm,
		voter:          opts.Voter,
		startBlock:     opts.StartBlock,
		logWindow:      opts.LogWindow,
		receiptTimeout: opts.ReceiptTimeout,
	}
	if v.logWindow == 0 {
		v.logWindow = DefaultLogWindow
	}
	if v.receiptTimeout == 0 {
		v.receiptTimeout = DefaultReceiptTimeout
	}
	log.Infow("voting contract bound",
		"address", address.Hex(),
		"chainID", chainID.String(),
		"startBlock", v.startBlock)
	return v, nil
}

// Address implements ledger.Ledger.
func (v *Voting) Address() common.Address {
	return v.address
}

// ChainID returns the chain the binding signs transactions for.
func (v *Voting) ChainID() *big.Int {
	return v.txm.ChainID()
}

func (v *Voting) call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := VotingABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	ctx, cancel := context.WithTimeout(ctx, web3QueryTimeout)
	defer cancel()
	out, err := v.cli.CallContract(ctx, ethereum.CallMsg{To: &v.address, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	res, err := VotingABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return res, nil
}

// VoterData implements ledger.Ledger.
func (v *Voting) VoterData(ctx context.Context, voter common.Address) (*ledger.VoterData, error) {
	res, err := v.call(ctx, MethodGetVoterData, voter)
	if err != nil {
		return nil, err
	}
	return &ledger.VoterData{IsVoter: res[0].(bool), HasRegistered: res[1].(bool)}, nil
}

// VotingData implements ledger.Ledger.
func (v *Voting) VotingData(ctx context.Context) (*ledger.VotingData, error) {
	res, err := v.call(ctx, MethodGetVotingData)
	if err != nil {
		return nil, err
	}
	size, depth := res[4].(*big.Int), res[5].(*big.Int)
	if !size.IsUint64() || !depth.IsUint64() {
		return nil, fmt.Errorf("tree size %s or depth %s out of range", size, depth)
	}
	return &ledger.VotingData{
		Question:  res[0].(string),
		Owner:     res[1].(common.Address),
		YesVotes:  types.NewBigInt(res[2].(*big.Int)),
		NoVotes:   types.NewBigInt(res[3].(*big.Int)),
		TreeSize:  size.Uint64(),
		TreeDepth: depth.Uint64(),
		Root:      types.NewBigInt(res[6].(*big.Int)),
	}, nil
}

// Register implements ledger.Ledger. It sends register(commitment) from the
// voter wallet and waits for the receipt. A reverted receipt is an error.
func (v *Voting) Register(ctx context.Context, commitment *types.BigInt) (*ledger.Receipt, error) {
	if v.voter == nil {
		return nil, fmt.Errorf("no voter signer configured")
	}
	if !commitment.InField() {
		return nil, fmt.Errorf("commitment: %w", types.ErrFieldOverflow)
	}
	data, err := PackRegister(commitment.Bytes32())
	if err != nil {
		return nil, fmt.Errorf("pack register: %w", err)
	}
	tx, err := v.txm.BuildTx(ctx, v.voter, v.address, data, nil)
	if err != nil {
		return nil, fmt.Errorf("build register tx: %w", err)
	}
	if err := v.txm.Send(ctx, tx); err != nil {
		return nil, err
	}
	log.Infow("register transaction sent", "hash", tx.Hash().Hex(), "voter", v.voter.Address().Hex())
	wctx, cancel := context.WithTimeout(ctx, v.receiptTimeout)
	defer cancel()
	receipt, err := v.txm.WaitReceipt(wctx, tx.Hash())
	if err != nil {
		return nil, err
	}
	r := toReceipt(receipt)
	if !r.Success {
		return r, fmt.Errorf("register transaction %s reverted", tx.Hash().Hex())
	}
	return r, nil
}

// LeafEvents implements ledger.Ledger, returning the NewLeaf events most
// recent first, as the event history of the contract delivers them.
func (v *Voting) LeafEvents(ctx context.Context) ([]types.LeafEvent, error) {
	logs, err := v.filterLogs(ctx, [][]common.Hash{{NewLeafTopic}})
	if err != nil {
		return nil, err
	}
	events := make([]types.LeafEvent, 0, len(logs))
	for _, l := range logs {
		ev, err := DecodeNewLeaf(&l)
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	slices.Reverse(events)
	return events, nil
}

// HasVoted implements ledger.Ledger.
func (v *Voting) HasVoted(ctx context.Context, relay common.Address) (bool, error) {
	logs, err := v.filterLogs(ctx, [][]common.Hash{{VoteCastTopic}, {common.BytesToHash(relay.Bytes())}})
	if err != nil {
		return false, err
	}
	return len(logs) > 0, nil
}

// filterLogs scans the contract logs from the start block to the latest
// block in windows of logWindow blocks. Removed logs are skipped.
func (v *Voting) filterLogs(ctx context.Context, topics [][]common.Hash) ([]gethtypes.Log, error) {
	latest, err := v.cli.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get block number: %w", err)
	}
	var out []gethtypes.Log
	for from := v.startBlock; from <= latest; from += v.logWindow {
		to := min(from+v.logWindow-1, latest)
		logs, err := v.cli.FilterLogs(ctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(from),
			ToBlock:   new(big.Int).SetUint64(to),
			Addresses: []common.Address{v.address},
			Topics:    topics,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to filter logs in blocks %d-%d: %w", from, to, err)
		}
		for _, l := range logs {
			if !l.Removed {
				out = append(out, l)
			}
		}
	}
	return out, nil
}

// Balance implements ledger.Transactor.
func (v *Voting) Balance(ctx context.Context, addr common.Address) (*uint256.Int, error) {
	ctx, cancel := context.WithTimeout(ctx, web3QueryTimeout)
	defer cancel()
	bal, err := v.cli.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance of %s: %w", addr.Hex(), err)
	}
	amount, overflow := uint256.FromBig(bal)
	if overflow {
		return nil, fmt.Errorf("balance of %s overflows 256 bits", addr.Hex())
	}
	return amount, nil
}

// SignVote implements ledger.Transactor.
func (v *Voting) SignVote(ctx context.Context, relay *ethSigner.Signer, call *ledger.VoteCall) (*gethtypes.Transaction, error) {
	data, err := PackVote(call.Proof, call.NullifierHash, call.Root, call.Vote, call.Depth)
	if err != nil {
		return nil, fmt.Errorf("pack vote: %w", err)
	}
	return v.txm.BuildTx(ctx, relay, v.address, data, nil)
}

// Broadcast implements ledger.Transactor.
func (v *Voting) Broadcast(ctx context.Context, tx *gethtypes.Transaction) error {
	return v.txm.Send(ctx, tx)
}

// Receipt implements ledger.Transactor.
func (v *Voting) Receipt(ctx context.Context, hash common.Hash) (*ledger.Receipt, error) {
	receipt, err := v.txm.Receipt(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, ledger.ErrReceiptNotFound
		}
		return nil, err
	}
	return toReceipt(receipt), nil
}

func toReceipt(r *gethtypes.Receipt) *ledger.Receipt {
	out := &ledger.Receipt{
		TxHash:  r.TxHash,
		GasUsed: r.GasUsed,
		Success: r.Status == gethtypes.ReceiptStatusSuccessful,
	}
	if r.BlockNumber != nil {
		out.Block = r.BlockNumber.Uint64()
	}
	return out
}

// DecodeNewLeaf decodes a NewLeaf log.
func DecodeNewLeaf(l *gethtypes.Log) (*types.LeafEvent, error) {
	if len(l.Topics) == 0 || l.Topics[0] != NewLeafTopic {
		return nil, fmt.Errorf("log %s:%d is not a NewLeaf event", l.TxHash.Hex(), l.Index)
	}
	res, err := VotingABI.Unpack(EventNewLeaf, l.Data)
	if err != nil {
		return nil, fmt.Errorf("unpack NewLeaf: %w", err)
	}
	index, value := res[0].(*big.Int), res[1].(*big.Int)
	if !index.IsUint64() {
		return nil, fmt.Errorf("leaf index %s out of range", index)
	}
	return &types.LeafEvent{
		Index:  index.Uint64(),
		Value:  types.NewBigInt(value),
		Block:  l.BlockNumber,
		TxHash: l.TxHash.Bytes(),
	}, nil
}

// VoteCastEvent is a decoded VoteCast log.
type VoteCastEvent struct {
	Voter         common.Address
	NullifierHash common.Hash
	Vote          bool
}

// DecodeVoteCast decodes a VoteCast log.
func DecodeVoteCast(l *gethtypes.Log) (*VoteCastEvent, error) {
	if len(l.Topics) != 2 || l.Topics[0] != VoteCastTopic {
		return nil, fmt.Errorf("log %s:%d is not a VoteCast event", l.TxHash.Hex(), l.Index)
	}
	res, err := VotingABI.Unpack(EventVoteCast, l.Data)
	if err != nil {
		return nil, fmt.Errorf("unpack VoteCast: %w", err)
	}
	return &VoteCastEvent{
		Voter:         common.BytesToAddress(l.Topics[1].Bytes()),
		NullifierHash: common.Hash(res[0].([32]byte)),
		Vote:          res[1].(bool),
	}, nil
}
