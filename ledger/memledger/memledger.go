// Package memledger is an in-memory chain hosting a single voting contract.
// It implements web3.Backend, so the go-ethereum binding runs unmodified on
// top of it: transactions are real signed EIP-1559 transactions, calls are
// ABI encoded and events are emitted as logs. Blocks are mined on every
// accepted transaction unless automining is disabled.
package memledger

import (
	"context"
	"fmt"
	"math/big"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/vocdoni/zkvote/log"
	"github.com/vocdoni/zkvote/web3"
)

const (
	// DefaultChainID is the hardhat chain id.
	DefaultChainID = 31337

	registerGas = 150_000
	voteGas     = 350_000
	transferGas = 21_000
)

var (
	baseFee = big.NewInt(1_000_000_000)
	tipCap  = big.NewInt(1_000_000_000)
)

// Verifier checks a vote proof against its public inputs
// [nullifierHash, root, vote, depth].
type Verifier func(proof []byte, publicInputs []*big.Int) error

// Config describes the deployed voting contract.
type Config struct {
	ChainID  uint64
	Address  common.Address
	Owner    common.Address
	Question string
	// Verifier defaults to accepting any non-empty proof.
	Verifier Verifier
}

// Chain is the in-memory chain. It is safe for concurrent use.
type Chain struct {
	mu       sync.Mutex
	chainID  *big.Int
	signer   gethtypes.Signer
	contract *contract
	autoMine bool

	block    uint64
	balances map[common.Address]*uint256.Int
	nonces   map[common.Address]uint64
	pending  []*gethtypes.Transaction
	known    map[common.Hash]bool
	receipts map[common.Hash]*gethtypes.Receipt
	logs     []gethtypes.Log
}

var _ web3.Backend = (*Chain)(nil)

// New deploys the voting contract on a fresh chain at block 1.
func New(cfg Config) *Chain {
	if cfg.ChainID == 0 {
		cfg.ChainID = DefaultChainID
	}
	if cfg.Address == (common.Address{}) {
		cfg.Address = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	}
	chainID := new(big.Int).SetUint64(cfg.ChainID)
	return &Chain{
		chainID:  chainID,
		signer:   gethtypes.LatestSignerForChainID(chainID),
		contract: newContract(cfg),
		autoMine: true,
		block:    1,
		balances: make(map[common.Address]*uint256.Int),
		nonces:   make(map[common.Address]uint64),
		known:    make(map[common.Hash]bool),
		receipts: make(map[common.Hash]*gethtypes.Receipt),
	}
}

// Address returns the voting contract address.
func (c *Chain) Address() common.Address {
	return c.contract.address
}

// AddVoters marks the addresses as eligible, as the owner would.
func (c *Chain) AddVoters(voters ...common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, v := range voters {
		c.contract.voters[v] = true
	}
}

// SetAutoMine toggles mining on every accepted transaction. With automining
// off transactions stay pending until Mine is called.
func (c *Chain) SetAutoMine(on bool) {
	c.mu.Lock()
	c.autoMine = on
	c.mu.Unlock()
}

// Mine includes every pending transaction in a new block.
func (c *Chain) Mine() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mine()
}

// Fund sets the balance of addr, like hardhat_setBalance.
func (c *Chain) Fund(_ context.Context, addr common.Address, amount *uint256.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[addr] = amount.Clone()
	return nil
}

// Pending returns the number of transactions waiting to be mined.
func (c *Chain) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// ChainID implements web3.Backend.
func (c *Chain) ChainID(context.Context) (*big.Int, error) {
	return new(big.Int).Set(c.chainID), nil
}

// BlockNumber implements web3.Backend.
func (c *Chain) BlockNumber(context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.block, nil
}

// HeaderByNumber implements web3.Backend. Only the latest header is served.
func (c *Chain) HeaderByNumber(_ context.Context, number *big.Int) (*gethtypes.Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if number != nil && number.Uint64() != c.block {
		return nil, ethereum.NotFound
	}
	return &gethtypes.Header{
		Number:  new(big.Int).SetUint64(c.block),
		BaseFee: new(big.Int).Set(baseFee),
	}, nil
}

// SuggestGasTipCap implements web3.Backend.
func (c *Chain) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return new(big.Int).Set(tipCap), nil
}

// BalanceAt implements web3.Backend. Historic balances are not kept.
func (c *Chain) BalanceAt(_ context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balance(account).ToBig(), nil
}

// PendingNonceAt implements web3.Backend.
func (c *Chain) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	nonce := c.nonces[account]
	for _, tx := range c.pending {
		if from, _ := gethtypes.Sender(c.signer, tx); from == account && tx.Nonce() >= nonce {
			nonce = tx.Nonce() + 1
		}
	}
	return nonce, nil
}

// CallContract implements web3.Backend. View methods return their ABI
// encoded outputs; state changing methods are simulated.
func (c *Chain) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if call.To == nil || *call.To != c.contract.address {
		return nil, nil
	}
	out, _, err := c.contract.call(call.From, call.Data, false)
	return out, err
}

// EstimateGas implements web3.Backend. Calls that would revert fail with
// the revert reason.
func (c *Chain) EstimateGas(_ context.Context, call ethereum.CallMsg) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if call.To == nil || *call.To != c.contract.address {
		return transferGas, nil
	}
	if _, _, err := c.contract.call(call.From, call.Data, false); err != nil {
		return 0, err
	}
	return gasOf(call.Data), nil
}

// SendTransaction implements web3.Backend, with the node pool checks that
// clients rely on: known transactions, nonce ordering and upfront cost.
func (c *Chain) SendTransaction(_ context.Context, tx *gethtypes.Transaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.known[tx.Hash()] {
		return fmt.Errorf("already known")
	}
	if tx.ChainId().Cmp(c.chainID) != 0 {
		return fmt.Errorf("invalid chain id: have %s want %s", tx.ChainId(), c.chainID)
	}
	from, err := gethtypes.Sender(c.signer, tx)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	expected := c.nonces[from]
	for _, p := range c.pending {
		if sender, _ := gethtypes.Sender(c.signer, p); sender == from && p.Nonce() >= expected {
			expected = p.Nonce() + 1
		}
	}
	switch {
	case tx.Nonce() < expected:
		return fmt.Errorf("nonce too low: address %s, tx: %d state: %d", from.Hex(), tx.Nonce(), expected)
	case tx.Nonce() > expected:
		return fmt.Errorf("nonce too high: address %s, tx: %d state: %d", from.Hex(), tx.Nonce(), expected)
	}
	if tx.GasFeeCap().Cmp(baseFee) < 0 {
		return fmt.Errorf("max fee per gas less than block base fee")
	}
	cost, overflow := uint256.FromBig(tx.Cost())
	if overflow || c.balance(from).Lt(cost) {
		return fmt.Errorf("insufficient funds for gas * price + value: address %s", from.Hex())
	}
	c.known[tx.Hash()] = true
	c.pending = append(c.pending, tx)
	log.Debugw("memledger transaction accepted", "hash", tx.Hash().Hex(), "from", from.Hex(), "nonce", tx.Nonce())
	if c.autoMine {
		c.mine()
	}
	return nil
}

// TransactionReceipt implements web3.Backend.
func (c *Chain) TransactionReceipt(_ context.Context, hash common.Hash) (*gethtypes.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	cp := *r
	return &cp, nil
}

// FilterLogs implements web3.Backend.
func (c *Chain) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]gethtypes.Log, error) {
	if q.BlockHash != nil {
		return nil, fmt.Errorf("block hash queries are not supported")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []gethtypes.Log
	for _, l := range c.logs {
		if q.FromBlock != nil && l.BlockNumber < q.FromBlock.Uint64() {
			continue
		}
		if q.ToBlock != nil && l.BlockNumber > q.ToBlock.Uint64() {
			continue
		}
		if len(q.Addresses) > 0 && !slices.Contains(q.Addresses, l.Address) {
			continue
		}
		if !matchTopics(l.Topics, q.Topics) {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func matchTopics(topics []common.Hash, filter [][]common.Hash) bool {
	if len(filter) > len(topics) {
		return false
	}
	for i, alternatives := range filter {
		if len(alternatives) > 0 && !slices.Contains(alternatives, topics[i]) {
			return false
		}
	}
	return true
}

func (c *Chain) balance(addr common.Address) *uint256.Int {
	if b, ok := c.balances[addr]; ok {
		return b
	}
	return new(uint256.Int)
}

// debit subtracts amount from the balance of addr, down to zero.
func (c *Chain) debit(addr common.Address, amount *uint256.Int) {
	bal := c.balance(addr)
	if bal.Lt(amount) {
		c.balances[addr] = new(uint256.Int)
		return
	}
	c.balances[addr] = new(uint256.Int).Sub(bal, amount)
}

// mine executes the pending transactions in a new block. Callers hold mu.
func (c *Chain) mine() {
	if len(c.pending) == 0 {
		return
	}
	c.block++
	blockNumber := new(big.Int).SetUint64(c.block)
	for i, tx := range c.pending {
		from, _ := gethtypes.Sender(c.signer, tx)
		gas := uint64(transferGas)
		status := gethtypes.ReceiptStatusSuccessful
		var logs []*gethtypes.Log
		if to := tx.To(); to != nil && *to == c.contract.address {
			gas = gasOf(tx.Data())
			var err error
			_, logs, err = c.contract.call(from, tx.Data(), true)
			if err != nil {
				status = gethtypes.ReceiptStatusFailed
				logs = nil
				log.Debugw("memledger transaction reverted", "hash", tx.Hash().Hex(), "error", err.Error())
			}
		} else if to != nil {
			value, _ := uint256.FromBig(tx.Value())
			c.debit(from, value)
			c.balances[*to] = new(uint256.Int).Add(c.balance(*to), value)
		}
		gas = min(gas, tx.Gas())
		price := effectiveGasPrice(tx)
		fee, _ := uint256.FromBig(new(big.Int).Mul(price, new(big.Int).SetUint64(gas)))
		c.debit(from, fee)
		c.nonces[from] = tx.Nonce() + 1

		receipt := &gethtypes.Receipt{
			Type:              tx.Type(),
			Status:            status,
			TxHash:            tx.Hash(),
			GasUsed:           gas,
			EffectiveGasPrice: price,
			BlockNumber:       blockNumber,
			TransactionIndex:  uint(i),
		}
		for _, l := range logs {
			l.BlockNumber = c.block
			l.TxHash = tx.Hash()
			l.TxIndex = uint(i)
			l.Index = uint(len(c.logs))
			c.logs = append(c.logs, *l)
			receipt.Logs = append(receipt.Logs, l)
		}
		c.receipts[tx.Hash()] = receipt
	}
	c.pending = nil
}

func effectiveGasPrice(tx *gethtypes.Transaction) *big.Int {
	price := new(big.Int).Add(baseFee, tx.GasTipCap())
	if price.Cmp(tx.GasFeeCap()) > 0 {
		price.Set(tx.GasFeeCap())
	}
	return price
}

func gasOf(data []byte) uint64 {
	method, _, err := web3.UnpackCall(data)
	if err != nil {
		return transferGas
	}
	switch method.Name {
	case web3.MethodRegister:
		return registerGas
	case web3.MethodVote:
		return voteGas
	default:
		return transferGas
	}
}
