package storage

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Scope identifies the local state of one voter in one ledger instance.
type Scope common.Hash

// NewScope returns keccak256(ledger ‖ voter).
func NewScope(ledger, voter common.Address) Scope {
	return Scope(crypto.Keccak256Hash(ledger.Bytes(), voter.Bytes()))
}

// Bytes returns the scope as a database key.
func (s Scope) Bytes() []byte {
	return s[:]
}

// String returns the hex representation of the scope.
func (s Scope) String() string {
	return common.Hash(s).Hex()
}

func proofKey(scope Scope, vote bool) []byte {
	key := make([]byte, 0, len(scope)+1)
	key = append(key, scope[:]...)
	if vote {
		return append(key, 1)
	}
	return append(key, 0)
}

func fullKey(prefix, key []byte) []byte {
	return append(append([]byte{}, prefix...), key...)
}
