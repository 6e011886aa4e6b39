package txmanager

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	qt "github.com/frankban/quicktest"
	ethSigner "github.com/vocdoni/zkvote/crypto/signatures/ethereum"
)

type fakeClient struct {
	nonce       uint64
	tip         *big.Int
	baseFee     *big.Int
	gas         uint64
	estimateErr []error
	sendErr     error
	sent        []*gethtypes.Transaction
	receipts    map[common.Hash]*gethtypes.Receipt
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		nonce:    7,
		tip:      gwei(1),
		baseFee:  gwei(10),
		gas:      100_000,
		receipts: make(map[common.Hash]*gethtypes.Receipt),
	}
}

func (f *fakeClient) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return f.nonce, nil
}

func (f *fakeClient) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.tip), nil
}

func (f *fakeClient) HeaderByNumber(context.Context, *big.Int) (*gethtypes.Header, error) {
	return &gethtypes.Header{BaseFee: new(big.Int).Set(f.baseFee)}, nil
}

func (f *fakeClient) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	if len(f.estimateErr) > 0 {
		err := f.estimateErr[0]
		f.estimateErr = f.estimateErr[1:]
		return 0, err
	}
	return f.gas, nil
}

func (f *fakeClient) SendTransaction(_ context.Context, tx *gethtypes.Transaction) error {
	f.sent = append(f.sent, tx)
	return f.sendErr
}

func (f *fakeClient) TransactionReceipt(_ context.Context, hash common.Hash) (*gethtypes.Receipt, error) {
	r, ok := f.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func testManager(c *qt.C, cli Client) *Manager {
	cfg := DefaultConfig(1337)
	cfg.ReceiptPollInterval = 10 * time.Millisecond
	cfg.Gas.Backoff = time.Millisecond
	tm, err := New(cli, cfg)
	c.Assert(err, qt.IsNil)
	return tm
}

func TestBuildTx(t *testing.T) {
	c := qt.New(t)
	cli := newFakeClient()
	tm := testManager(c, cli)
	signer, err := ethSigner.NewSigner()
	c.Assert(err, qt.IsNil)

	to := common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	tx, err := tm.BuildTx(context.Background(), signer, to, []byte{0xde, 0xad}, nil)
	c.Assert(err, qt.IsNil)
	c.Assert(tx.Nonce(), qt.Equals, uint64(7))
	c.Assert(tx.Gas(), qt.Equals, uint64(110_000))
	c.Assert(tx.GasTipCap().Cmp(gwei(1)), qt.Equals, 0)
	c.Assert(tx.GasFeeCap().Cmp(gwei(21)), qt.Equals, 0)
	c.Assert(*tx.To(), qt.Equals, to)

	from, err := gethtypes.Sender(gethtypes.LatestSignerForChainID(big.NewInt(1337)), tx)
	c.Assert(err, qt.IsNil)
	c.Assert(from, qt.Equals, signer.Address())
}

func TestBuildTxRevert(t *testing.T) {
	c := qt.New(t)
	cli := newFakeClient()
	cli.estimateErr = []error{errors.New("execution reverted: nullifier already used")}
	tm := testManager(c, cli)
	signer, err := ethSigner.NewSigner()
	c.Assert(err, qt.IsNil)

	_, err = tm.BuildTx(context.Background(), signer, common.Address{1}, nil, nil)
	c.Assert(err, qt.ErrorMatches, `estimate gas: execution reverted.*`)
	c.Assert(IsPermanentError(err), qt.IsTrue)
}

func TestEstimateGasFallback(t *testing.T) {
	c := qt.New(t)
	cli := newFakeClient()
	tm := testManager(c, cli)

	c.Run("retries transient errors", func(c *qt.C) {
		cli.estimateErr = []error{errors.New("connection reset"), errors.New("connection reset")}
		gas, err := tm.EstimateGas(context.Background(), ethereum.CallMsg{})
		c.Assert(err, qt.IsNil)
		c.Assert(gas, qt.Equals, uint64(110_000))
	})

	c.Run("falls back after retries", func(c *qt.C) {
		cli.estimateErr = []error{errors.New("a"), errors.New("b"), errors.New("c"), errors.New("d")}
		gas, err := tm.EstimateGas(context.Background(), ethereum.CallMsg{})
		c.Assert(err, qt.IsNil)
		c.Assert(gas, qt.Equals, uint64(DefaultGasFallback))
	})
}

func TestSendClassification(t *testing.T) {
	c := qt.New(t)
	tx := gethtypes.NewTx(&gethtypes.DynamicFeeTx{
		ChainID:   big.NewInt(1337),
		GasTipCap: gwei(1),
		GasFeeCap: gwei(2),
		Gas:       21_000,
		To:        &common.Address{1},
		Value:     big.NewInt(0),
	})

	for _, tc := range []struct {
		name    string
		sendErr error
		wantErr string
	}{
		{name: "accepted"},
		{name: "already known", sendErr: errors.New("already known")},
		{name: "nonce too low", sendErr: errors.New("Nonce too low. Expected nonce to be 3")},
		{name: "underpriced", sendErr: errors.New("replacement transaction underpriced"), wantErr: `transaction .* underpriced: .*`},
		{name: "other", sendErr: errors.New("insufficient funds for gas * price + value"), wantErr: `send tx failed: .*`},
	} {
		c.Run(tc.name, func(c *qt.C) {
			cli := newFakeClient()
			cli.sendErr = tc.sendErr
			err := testManager(c, cli).Send(context.Background(), tx)
			if tc.wantErr == "" {
				c.Assert(err, qt.IsNil)
			} else {
				c.Assert(err, qt.ErrorMatches, tc.wantErr)
			}
			c.Assert(cli.sent, qt.HasLen, 1)
		})
	}
}

func TestWaitReceipt(t *testing.T) {
	c := qt.New(t)
	cli := newFakeClient()
	tm := testManager(c, cli)
	hash := common.HexToHash("0x01")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := tm.WaitReceipt(ctx, hash)
	c.Assert(err, qt.ErrorIs, context.DeadlineExceeded)

	cli.receipts[hash] = &gethtypes.Receipt{Status: gethtypes.ReceiptStatusSuccessful}
	receipt, err := tm.WaitReceipt(context.Background(), hash)
	c.Assert(err, qt.IsNil)
	c.Assert(receipt.Status, qt.Equals, gethtypes.ReceiptStatusSuccessful)
}

func TestBumpFees(t *testing.T) {
	c := qt.New(t)
	cli := newFakeClient()
	tm := testManager(c, cli)

	fees, err := tm.SuggestInitialFees(context.Background())
	c.Assert(err, qt.IsNil)
	bumped, err := tm.BumpFees(context.Background(), fees)
	c.Assert(err, qt.IsNil)
	// tip + 2 gwei beats tip * 1.125 for a 1 gwei tip
	c.Assert(bumped.TipCap.Cmp(gwei(3)), qt.Equals, 0)
	c.Assert(bumped.FeeCap.Cmp(gwei(26)), qt.Equals, 0)

	c.Run("clamped to max fee cap", func(c *qt.C) {
		cli.baseFee = gwei(1000)
		fees, err := tm.SuggestInitialFees(context.Background())
		c.Assert(err, qt.IsNil)
		c.Assert(fees.FeeCap.Cmp(gwei(defaultMaxGasPriceGwei)), qt.Equals, 0)
	})
}
