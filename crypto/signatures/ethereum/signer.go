// Package ethereum wraps the secp256k1 keys used by the voting client to sign
// ledger transactions: the voter wallet for registration and the disposable
// relay identity for the vote itself.
package ethereum

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/vocdoni/zkvote/types"
)

// Signer is an ECDSA private key able to sign Ethereum transactions. It is a
// wrapper around the go-ethereum ecdsa.PrivateKey type.
type Signer ecdsa.PrivateKey

// Address returns the Ethereum address derived from the public key of the signer.
func (s *Signer) Address() common.Address {
	return ethcrypto.PubkeyToAddress(s.PublicKey)
}

// PrivateKey returns the underlying ecdsa key.
func (s *Signer) PrivateKey() *ecdsa.PrivateKey {
	return (*ecdsa.PrivateKey)(s)
}

// HexPrivateKey returns the raw 32 byte private key.
func (s *Signer) HexPrivateKey() types.HexBytes {
	return types.HexBytes(ethcrypto.FromECDSA(s.PrivateKey()))
}

// SignTx signs an EIP-1559 transaction for chainID.
func (s *Signer) SignTx(chainID *big.Int, tx *gethtypes.DynamicFeeTx) (*gethtypes.Transaction, error) {
	if chainID == nil {
		return nil, fmt.Errorf("nil chain id")
	}
	tx.ChainID = chainID
	signed, err := gethtypes.SignNewTx(s.PrivateKey(), gethtypes.LatestSignerForChainID(chainID), tx)
	if err != nil {
		return nil, fmt.Errorf("could not sign transaction: %w", err)
	}
	return signed, nil
}

// NewSigner creates a new random signer.
func NewSigner() (*Signer, error) {
	s, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("could not generate key: %w", err)
	}
	return (*Signer)(s), nil
}

// NewSignerFromHex creates a signer from a hex-encoded private key, with or
// without 0x prefix.
func NewSignerFromHex(hexKey string) (*Signer, error) {
	s, err := ethcrypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("could not parse key: %w", err)
	}
	return (*Signer)(s), nil
}

// NewSignerFromBytes creates a signer from a raw 32 byte private key.
func NewSignerFromBytes(key []byte) (*Signer, error) {
	s, err := ethcrypto.ToECDSA(key)
	if err != nil {
		return nil, fmt.Errorf("could not parse key: %w", err)
	}
	return (*Signer)(s), nil
}
