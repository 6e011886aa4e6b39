package config

import (
	"fmt"
	"slices"

	"github.com/holiman/uint256"
)

// Network describes a ledger deployment.
type Network struct {
	ChainID uint64
	RPC     string
	// Voting is the default address of the voting contract, empty when it
	// must be provided.
	Voting     string
	StartBlock uint64
	// Faucet reports whether relay accounts can be funded with
	// hardhat_setBalance.
	Faucet bool
}

// Networks contains the known deployments by name.
var Networks = map[string]Network{
	"localhost": {
		ChainID: 31337,
		RPC:     "http://127.0.0.1:8545",
		Voting:  "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		Faucet:  true,
	},
	"sep": {
		ChainID: 11155111,
		RPC:     "https://ethereum-sepolia-rpc.publicnode.com",
	},
}

// AvailableNetworks returns the sorted network names.
func AvailableNetworks() []string {
	names := make([]string, 0, len(Networks))
	for name := range Networks {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// GetNetwork returns the network named name.
func GetNetwork(name string) (Network, error) {
	n, ok := Networks[name]
	if !ok {
		return Network{}, fmt.Errorf("invalid network %s, available networks: %v", name, AvailableNetworks())
	}
	return n, nil
}

var (
	// DefaultRelayMinBalance is the relay balance below which it is funded,
	// 0.01 ether.
	DefaultRelayMinBalance = uint256.NewInt(10_000_000_000_000_000)
	// DefaultRelayFundAmount is requested from the faucet, 1 ether.
	DefaultRelayFundAmount = uint256.NewInt(1_000_000_000_000_000_000)
)
