// Package txmanager builds, signs and sends EIP-1559 transactions for a single
// chain and waits for their receipts. It is stateless with respect to nonces:
// the pending nonce is read from the node for every new transaction, since the
// relay keys that use it send a single transaction each.
package txmanager

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	ethSigner "github.com/vocdoni/zkvote/crypto/signatures/ethereum"
	"github.com/vocdoni/zkvote/log"
)

const (
	defaultMaxGasPriceGwei     = 300
	defaultReceiptPollInterval = time.Second

	// DefaultGasFallback is the gas limit used when estimation fails for a
	// reason other than a revert.
	DefaultGasFallback = 1_500_000
)

// Client is the subset of ethclient.Client used by the manager.
type Client interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*gethtypes.Header, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *gethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, hash common.Hash) (*gethtypes.Receipt, error)
}

// Config holds configuration for the transaction manager
type Config struct {
	ChainID             *big.Int
	MaxFeeCap           *big.Int
	ReceiptPollInterval time.Duration
	Gas                 *GasEstimateOpts
}

// DefaultConfig returns a default configuration
func DefaultConfig(chainID uint64) Config {
	return Config{
		ChainID:             new(big.Int).SetUint64(chainID),
		MaxFeeCap:           gwei(defaultMaxGasPriceGwei),
		ReceiptPollInterval: defaultReceiptPollInterval,
		Gas:                 DefaultGasEstimateOpts(),
	}
}

// Manager signs and sends transactions through a Client.
type Manager struct {
	cli    Client
	config Config
}

// New returns a manager for the chain in config.
func New(cli Client, config Config) (*Manager, error) {
	if cli == nil {
		return nil, fmt.Errorf("nil client")
	}
	if config.ChainID == nil {
		return nil, fmt.Errorf("chain id is required")
	}
	if config.ReceiptPollInterval <= 0 {
		config.ReceiptPollInterval = defaultReceiptPollInterval
	}
	if config.Gas == nil {
		config.Gas = DefaultGasEstimateOpts()
	}
	config.Gas.validate()
	return &Manager{cli: cli, config: config}, nil
}

// ChainID returns the chain the manager signs for.
func (tm *Manager) ChainID() *big.Int {
	return new(big.Int).Set(tm.config.ChainID)
}

// BuildTx builds and signs a call to `to` from signer, using the pending
// nonce, the suggested fees and an estimated gas limit. Estimation errors
// that denote a revert are returned, since sending would only burn fees.
func (tm *Manager) BuildTx(ctx context.Context, signer *ethSigner.Signer, to common.Address,
	data []byte, value *big.Int,
) (*gethtypes.Transaction, error) {
	if signer == nil {
		return nil, fmt.Errorf("no signer defined")
	}
	if value == nil {
		value = new(big.Int)
	}
	from := signer.Address()
	nonce, err := tm.cli.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("pending nonce: %w", err)
	}
	fees, err := tm.SuggestInitialFees(ctx)
	if err != nil {
		return nil, fmt.Errorf("initial fees: %w", err)
	}
	gas, err := tm.EstimateGas(ctx, ethereum.CallMsg{
		From:      from,
		To:        &to,
		GasFeeCap: fees.FeeCap,
		GasTipCap: fees.TipCap,
		Value:     value,
		Data:      data,
	})
	if err != nil {
		return nil, err
	}
	return signer.SignTx(tm.config.ChainID, &gethtypes.DynamicFeeTx{
		Nonce:     nonce,
		GasTipCap: fees.TipCap,
		GasFeeCap: fees.FeeCap,
		Gas:       gas,
		To:        &to,
		Value:     value,
		Data:      data,
	})
}

// Send broadcasts a signed transaction. Re-sending a transaction the node
// already pooled or mined is not an error.
func (tm *Manager) Send(ctx context.Context, tx *gethtypes.Transaction) error {
	err := tm.cli.SendTransaction(ctx, tx)
	switch {
	case err == nil:
		log.Debugw("transaction sent", "hash", tx.Hash().Hex(), "nonce", tx.Nonce())
		return nil
	case isBenignSendErr(err):
		log.Debugw("transaction already known", "hash", tx.Hash().Hex(), "reason", err.Error())
		return nil
	case isUnderpriced(err) || isFeeTooLow(err):
		return fmt.Errorf("transaction %s underpriced: %w", tx.Hash().Hex(), err)
	default:
		return fmt.Errorf("send tx failed: %w", err)
	}
}

// Receipt returns the receipt of hash, or ethereum.NotFound while it is
// pending.
func (tm *Manager) Receipt(ctx context.Context, hash common.Hash) (*gethtypes.Receipt, error) {
	receipt, err := tm.cli.TransactionReceipt(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, ethereum.NotFound
		}
		return nil, fmt.Errorf("failed to get transaction receipt: %w", err)
	}
	return receipt, nil
}

// WaitReceipt polls for the receipt of hash until it is found or ctx is done.
// Transient RPC errors are logged and polling continues.
func (tm *Manager) WaitReceipt(ctx context.Context, hash common.Hash) (*gethtypes.Receipt, error) {
	ticker := time.NewTicker(tm.config.ReceiptPollInterval)
	defer ticker.Stop()
	for {
		receipt, err := tm.Receipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			log.Warnw("receipt query failed", "hash", hash.Hex(), "error", err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("timeout waiting for hash %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
