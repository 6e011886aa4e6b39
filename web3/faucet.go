package web3

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"
	"github.com/vocdoni/zkvote/log"
)

// HardhatFaucet funds relay accounts on a local hardhat or anvil node by
// setting their balance.
type HardhatFaucet struct {
	rpc *gethrpc.Client
}

// NewHardhatFaucet wraps an RPC client, typically ethclient.Client.Client().
func NewHardhatFaucet(rpc *gethrpc.Client) *HardhatFaucet {
	return &HardhatFaucet{rpc: rpc}
}

// DialHardhatFaucet connects to a local development node.
func DialHardhatFaucet(ctx context.Context, rpcURL string) (*HardhatFaucet, error) {
	cli, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}
	return NewHardhatFaucet(cli), nil
}

// Fund sets the balance of addr to amount through hardhat_setBalance.
func (f *HardhatFaucet) Fund(ctx context.Context, addr common.Address, amount *uint256.Int) error {
	if err := f.rpc.CallContext(ctx, nil, "hardhat_setBalance", addr, amount.Hex()); err != nil {
		return fmt.Errorf("hardhat_setBalance %s: %w", addr.Hex(), err)
	}
	log.Debugw("relay account funded", "address", addr.Hex(), "amount", amount.Dec())
	return nil
}
