// Package relay submits votes through a disposable relay account, so the
// vote transaction is never sent from the registered voter address.
//
// The Coordinator drives a persisted state machine per scope:
//
//	NoRelay -> Funded -> Submitted -> Confirmed
//
// with Failed reachable from every non terminal state. A failed submission is
// retried by broadcasting the same signed transaction again, unless that
// transaction was mined and reverted, in which case a new one is signed.
package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/vocdoni/zkvote/config"
	ethSigner "github.com/vocdoni/zkvote/crypto/signatures/ethereum"
	"github.com/vocdoni/zkvote/ledger"
	"github.com/vocdoni/zkvote/log"
	"github.com/vocdoni/zkvote/storage"
	"github.com/vocdoni/zkvote/types"
)

const (
	DefaultConfirmTimeout = 2 * time.Minute
	DefaultPollInterval   = time.Second
)

// Faucet funds relay accounts on development ledgers.
type Faucet interface {
	Fund(ctx context.Context, addr common.Address, amount *uint256.Int) error
}

// Config holds the funding thresholds and confirmation timings.
type Config struct {
	// MinBalance is the balance below which the relay is funded.
	MinBalance *uint256.Int
	// FundAmount is requested from the faucet.
	FundAmount     *uint256.Int
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
}

// DefaultConfig returns the configured default funding thresholds.
func DefaultConfig() Config {
	return Config{
		MinBalance:     new(uint256.Int).Set(config.DefaultRelayMinBalance),
		FundAmount:     new(uint256.Int).Set(config.DefaultRelayFundAmount),
		ConfirmTimeout: DefaultConfirmTimeout,
		PollInterval:   DefaultPollInterval,
	}
}

// Coordinator runs the submission state machine of one scope.
type Coordinator struct {
	store  *storage.Storage
	scope  storage.Scope
	ledger ledger.Ledger
	tx     ledger.Transactor
	faucet Faucet
	config Config
}

// New returns the coordinator of scope. faucet may be nil, in which case the
// relay must be funded externally.
func New(store *storage.Storage, scope storage.Scope, l ledger.Ledger, tx ledger.Transactor,
	faucet Faucet, cfg Config,
) *Coordinator {
	def := DefaultConfig()
	if cfg.MinBalance == nil {
		cfg.MinBalance = def.MinBalance
	}
	if cfg.FundAmount == nil {
		cfg.FundAmount = def.FundAmount
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = def.ConfirmTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	return &Coordinator{
		store:  store,
		scope:  scope,
		ledger: l,
		tx:     tx,
		faucet: faucet,
		config: cfg,
	}
}

// State returns the persisted submission record, or a NoRelay record if
// nothing was stored yet.
func (c *Coordinator) State() (*storage.SubmissionRecord, error) {
	rec, err := c.store.Submission(c.scope)
	if errors.Is(err, storage.ErrNotFound) {
		return &storage.SubmissionRecord{State: storage.StateNoRelay}, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Identity loads the relay identity of the scope, generating and persisting
// a new one on first use.
func (c *Coordinator) Identity() (*ethSigner.Signer, error) {
	id, err := c.store.RelayIdentity(c.scope)
	if err == nil {
		return ethSigner.NewSignerFromBytes(id.PrivateKey)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	signer, err := ethSigner.NewSigner()
	if err != nil {
		return nil, err
	}
	if err := c.store.SaveRelayIdentity(c.scope, &storage.RelayIdentity{
		Address:    signer.Address(),
		PrivateKey: signer.HexPrivateKey(),
	}); err != nil {
		return nil, fmt.Errorf("could not store relay identity: %w", err)
	}
	log.Infow("relay identity created", "scope", c.scope.String(), "address", signer.Address().Hex())
	return signer, nil
}

// guard refuses to start a submission when the vote is already recorded,
// locally or on the ledger. A vote seen only on the ledger heals the local
// state to Confirmed.
func (c *Coordinator) guard(ctx context.Context, rec *storage.SubmissionRecord) error {
	if rec.State == storage.StateConfirmed {
		return types.ErrAlreadyVoted
	}
	relay := rec.Relay
	if relay == (common.Address{}) {
		id, err := c.store.RelayIdentity(c.scope)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		relay = id.Address
	}
	voted, err := c.ledger.HasVoted(ctx, relay)
	if err != nil {
		return fmt.Errorf("could not check relay vote: %w", err)
	}
	if !voted {
		return nil
	}
	log.Warnw("vote found on ledger, healing local state",
		"scope", c.scope.String(), "relay", relay.Hex(), "previous", rec.State)
	rec.State = storage.StateConfirmed
	rec.Relay = relay
	rec.LastError = ""
	if err := c.store.SaveSubmission(c.scope, rec); err != nil {
		return err
	}
	return types.ErrAlreadyVoted
}

// fail moves rec to Failed, keeping the signed payload for a retry.
func (c *Coordinator) fail(rec *storage.SubmissionRecord, cause error) error {
	rec.State = storage.StateFailed
	rec.LastError = cause.Error()
	if err := c.store.SaveSubmission(c.scope, rec); err != nil {
		log.Errorw(err, "could not store failed submission state")
	}
	return fmt.Errorf("%w: %w", types.ErrSubmissionFailed, cause)
}

// Fund ensures the relay account holds at least MinBalance, requesting
// FundAmount from the faucet when needed.
func (c *Coordinator) Fund(ctx context.Context) (*storage.SubmissionRecord, error) {
	rec, err := c.State()
	if err != nil {
		return nil, err
	}
	if err := c.guard(ctx, rec); err != nil {
		return rec, err
	}
	if rec.State == storage.StateSubmitted {
		return rec, nil
	}
	signer, err := c.Identity()
	if err != nil {
		return rec, c.fail(rec, err)
	}
	rec.Relay = signer.Address()
	balance, err := c.tx.Balance(ctx, rec.Relay)
	if err != nil {
		return rec, c.fail(rec, err)
	}
	if balance.Lt(c.config.MinBalance) {
		if c.faucet == nil {
			return rec, c.fail(rec, fmt.Errorf("insufficient funds: relay %s holds %s wei, needs %s",
				rec.Relay.Hex(), balance.Dec(), c.config.MinBalance.Dec()))
		}
		if err := c.faucet.Fund(ctx, rec.Relay, c.config.FundAmount); err != nil {
			return rec, c.fail(rec, fmt.Errorf("faucet: %w", err))
		}
		if balance, err = c.tx.Balance(ctx, rec.Relay); err != nil {
			return rec, c.fail(rec, err)
		}
		if balance.Lt(c.config.MinBalance) {
			return rec, c.fail(rec, fmt.Errorf("insufficient funds after faucet: %s wei", balance.Dec()))
		}
	}
	rec.State = storage.StateFunded
	rec.LastError = ""
	if err := c.store.SaveSubmission(c.scope, rec); err != nil {
		return rec, err
	}
	log.Debugw("relay funded", "relay", rec.Relay.Hex(), "balance", balance.Dec())
	return rec, nil
}

// Submit signs the vote transaction with the relay key, persists it and
// broadcasts it. A previously signed transaction for the same choice is
// broadcast again instead, unless it was mined and reverted.
func (c *Coordinator) Submit(ctx context.Context, bundle *types.ProofBundle, vote bool) (*storage.SubmissionRecord, error) {
	rec, err := c.State()
	if err != nil {
		return nil, err
	}
	if err := c.guard(ctx, rec); err != nil {
		return rec, err
	}
	if rec.State != storage.StateFunded && rec.State != storage.StateSubmitted {
		return rec, fmt.Errorf("cannot submit from state %s", rec.State)
	}
	if err := bundle.Valid(); err != nil {
		return rec, fmt.Errorf("invalid proof bundle: %w", err)
	}
	if bundle.Vote() != vote {
		return rec, fmt.Errorf("proof bundle encodes vote %t, requested %t", bundle.Vote(), vote)
	}

	tx, err := c.reusableTx(ctx, rec, vote)
	if err != nil {
		return rec, c.fail(rec, err)
	}
	if tx == nil {
		if tx, err = c.sign(ctx, bundle); err != nil {
			return rec, c.fail(rec, err)
		}
		raw, err := tx.MarshalBinary()
		if err != nil {
			return rec, c.fail(rec, err)
		}
		rec.RawTx = raw
		rec.TxHash = tx.Hash()
		rec.Vote = vote
		// persisted before broadcast so a crash never loses the payload
		if err := c.store.SaveSubmission(c.scope, rec); err != nil {
			return rec, err
		}
	}
	if err := c.tx.Broadcast(ctx, tx); err != nil {
		return rec, c.fail(rec, err)
	}
	rec.State = storage.StateSubmitted
	rec.LastError = ""
	if err := c.store.SaveSubmission(c.scope, rec); err != nil {
		return rec, err
	}
	log.Infow("vote submitted", "relay", rec.Relay.Hex(), "tx", rec.TxHash.Hex())
	return rec, nil
}

// reusableTx decodes the persisted transaction if it can be broadcast again.
func (c *Coordinator) reusableTx(ctx context.Context, rec *storage.SubmissionRecord, vote bool) (*gethtypes.Transaction, error) {
	if len(rec.RawTx) == 0 || rec.Vote != vote {
		return nil, nil
	}
	receipt, err := c.tx.Receipt(ctx, rec.TxHash)
	switch {
	case errors.Is(err, ledger.ErrReceiptNotFound):
	case err != nil:
		return nil, err
	case !receipt.Success:
		log.Infow("previous vote transaction reverted, signing a new one", "tx", rec.TxHash.Hex())
		return nil, nil
	}
	tx := new(gethtypes.Transaction)
	if err := tx.UnmarshalBinary(rec.RawTx); err != nil {
		return nil, fmt.Errorf("could not decode stored transaction: %w", err)
	}
	return tx, nil
}

func (c *Coordinator) sign(ctx context.Context, bundle *types.ProofBundle) (*gethtypes.Transaction, error) {
	signer, err := c.Identity()
	if err != nil {
		return nil, err
	}
	call, err := ledger.NewVoteCall(bundle)
	if err != nil {
		return nil, err
	}
	return c.tx.SignVote(ctx, signer, call)
}

// Confirm waits up to ConfirmTimeout for the receipt of the submitted
// transaction. On timeout the state stays Submitted and
// ErrConfirmationPending is returned.
func (c *Coordinator) Confirm(ctx context.Context) (*storage.SubmissionRecord, error) {
	rec, err := c.State()
	if err != nil {
		return nil, err
	}
	switch rec.State {
	case storage.StateConfirmed:
		return rec, nil
	case storage.StateSubmitted:
	default:
		return rec, fmt.Errorf("no submitted transaction to confirm, state is %s", rec.State)
	}
	tctx, cancel := context.WithTimeout(ctx, c.config.ConfirmTimeout)
	defer cancel()
	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()
	for {
		receipt, err := c.tx.Receipt(tctx, rec.TxHash)
		switch {
		case err == nil && receipt.Success:
			rec.State = storage.StateConfirmed
			rec.LastError = ""
			if err := c.store.SaveSubmission(c.scope, rec); err != nil {
				return rec, err
			}
			log.Infow("vote confirmed", "tx", rec.TxHash.Hex(), "block", receipt.Block)
			return rec, nil
		case err == nil:
			return rec, c.fail(rec, fmt.Errorf("vote transaction %s reverted", rec.TxHash.Hex()))
		case !errors.Is(err, ledger.ErrReceiptNotFound):
			log.Warnw("receipt query failed", "tx", rec.TxHash.Hex(), "error", err)
		}
		select {
		case <-tctx.Done():
			if ctx.Err() != nil {
				return rec, ctx.Err()
			}
			return rec, fmt.Errorf("%w: transaction %s", types.ErrConfirmationPending, rec.TxHash.Hex())
		case <-ticker.C:
		}
	}
}

// Run drives the state machine from its persisted state up to Confirmed.
func (c *Coordinator) Run(ctx context.Context, bundle *types.ProofBundle, vote bool) (*storage.SubmissionRecord, error) {
	rec, err := c.State()
	if err != nil {
		return nil, err
	}
	if rec.State != storage.StateSubmitted {
		if _, err := c.Fund(ctx); err != nil {
			return c.current(rec), err
		}
		if _, err := c.Submit(ctx, bundle, vote); err != nil {
			return c.current(rec), err
		}
	}
	return c.Confirm(ctx)
}

// current reloads the record for error returns, falling back to rec.
func (c *Coordinator) current(rec *storage.SubmissionRecord) *storage.SubmissionRecord {
	if latest, err := c.State(); err == nil {
		return latest
	}
	return rec
}
