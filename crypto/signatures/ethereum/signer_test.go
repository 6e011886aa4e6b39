package ethereum

import (
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	qt "github.com/frankban/quicktest"
)

func TestNewSigner(t *testing.T) {
	c := qt.New(t)

	signer, err := NewSigner()
	c.Assert(err, qt.IsNil)
	privKey := (*ecdsa.PrivateKey)(signer)
	c.Assert(privKey.D, qt.Not(qt.IsNil))

	again, err := NewSignerFromBytes(signer.HexPrivateKey())
	c.Assert(err, qt.IsNil)
	c.Assert(again.Address(), qt.Equals, signer.Address())
}

func TestNewSignerFromHex(t *testing.T) {
	c := qt.New(t)

	privKey, err := ethcrypto.GenerateKey()
	c.Assert(err, qt.IsNil)
	hexKey := common.Bytes2Hex(ethcrypto.FromECDSA(privKey))

	for _, in := range []string{hexKey, "0x" + hexKey} {
		signer, err := NewSignerFromHex(in)
		c.Assert(err, qt.IsNil)
		c.Assert(signer.Address(), qt.Equals, ethcrypto.PubkeyToAddress(privKey.PublicKey))
	}

	_, err = NewSignerFromHex("invalid")
	c.Assert(err, qt.ErrorMatches, "could not parse key: .*")
}

func TestSignTx(t *testing.T) {
	c := qt.New(t)

	signer, err := NewSigner()
	c.Assert(err, qt.IsNil)
	to := common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	chainID := big.NewInt(31337)

	tx, err := signer.SignTx(chainID, &gethtypes.DynamicFeeTx{
		Nonce:     3,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2),
		Gas:       21000,
		To:        &to,
		Data:      []byte{0x01},
	})
	c.Assert(err, qt.IsNil)
	c.Assert(tx.ChainId().Cmp(chainID), qt.Equals, 0)

	from, err := gethtypes.Sender(gethtypes.LatestSignerForChainID(chainID), tx)
	c.Assert(err, qt.IsNil)
	c.Assert(from, qt.Equals, signer.Address())

	_, err = signer.SignTx(nil, &gethtypes.DynamicFeeTx{})
	c.Assert(err, qt.ErrorMatches, "nil chain id")
}
