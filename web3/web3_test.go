package web3

import (
	"context"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	qt "github.com/frankban/quicktest"
	"github.com/holiman/uint256"
)

func TestPackVoteRoundTrip(t *testing.T) {
	c := qt.New(t)
	proof := make([]byte, 256)
	proof[0], proof[255] = 0xaa, 0xbb
	nullifier := common.BigToHash(big.NewInt(11))
	root := common.BigToHash(big.NewInt(22))
	vote := common.BigToHash(big.NewInt(1))
	depth := common.BigToHash(big.NewInt(4))

	data, err := PackVote(proof, nullifier, root, vote, depth)
	c.Assert(err, qt.IsNil)
	c.Assert(data[:4], qt.DeepEquals, VotingABI.Methods[MethodVote].ID)

	method, args, err := UnpackCall(data)
	c.Assert(err, qt.IsNil)
	c.Assert(method.Name, qt.Equals, MethodVote)
	c.Assert(args, qt.HasLen, 5)
	c.Assert(args[0].([]byte), qt.DeepEquals, proof)
	c.Assert(common.Hash(args[1].([32]byte)), qt.Equals, nullifier)
	c.Assert(common.Hash(args[2].([32]byte)), qt.Equals, root)
	c.Assert(common.Hash(args[3].([32]byte)), qt.Equals, vote)
	c.Assert(common.Hash(args[4].([32]byte)), qt.Equals, depth)
}

func TestPackRegisterRoundTrip(t *testing.T) {
	c := qt.New(t)
	commitment := common.BigToHash(big.NewInt(123456789))
	data, err := PackRegister(commitment)
	c.Assert(err, qt.IsNil)

	method, args, err := UnpackCall(data)
	c.Assert(err, qt.IsNil)
	c.Assert(method.Name, qt.Equals, MethodRegister)
	c.Assert(common.Hash(args[0].([32]byte)), qt.Equals, commitment)

	_, _, err = UnpackCall([]byte{1, 2})
	c.Assert(err, qt.ErrorMatches, "calldata too short: 2 bytes")
	_, _, err = UnpackCall([]byte{1, 2, 3, 4})
	c.Assert(err, qt.Not(qt.IsNil))
}

func TestDecodeEvents(t *testing.T) {
	c := qt.New(t)

	payload, err := VotingABI.Events[EventNewLeaf].Inputs.Pack(big.NewInt(3), big.NewInt(777))
	c.Assert(err, qt.IsNil)
	leaf, err := DecodeNewLeaf(&gethtypes.Log{
		Topics:      []common.Hash{NewLeafTopic},
		Data:        payload,
		BlockNumber: 9,
		TxHash:      common.HexToHash("0x01"),
	})
	c.Assert(err, qt.IsNil)
	c.Assert(leaf.Index, qt.Equals, uint64(3))
	c.Assert(leaf.Value.String(), qt.Equals, "777")
	c.Assert(leaf.Block, qt.Equals, uint64(9))

	relay := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e5d17dc79C8")
	nullifier := common.BigToHash(big.NewInt(5))
	payload, err = VotingABI.Events[EventVoteCast].Inputs.NonIndexed().Pack(nullifier, true)
	c.Assert(err, qt.IsNil)
	cast, err := DecodeVoteCast(&gethtypes.Log{
		Topics: []common.Hash{VoteCastTopic, common.BytesToHash(relay.Bytes())},
		Data:   payload,
	})
	c.Assert(err, qt.IsNil)
	c.Assert(*cast, qt.Equals, VoteCastEvent{Voter: relay, NullifierHash: nullifier, Vote: true})

	_, err = DecodeNewLeaf(&gethtypes.Log{Topics: []common.Hash{VoteCastTopic}})
	c.Assert(err, qt.ErrorMatches, `.*is not a NewLeaf event`)
}

func TestHardhatFaucet(t *testing.T) {
	c := qt.New(t)
	type request struct {
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
		ID     json.RawMessage   `json:"id"`
	}
	var got request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(got.ID) + `,"result":true}`))
	}))
	defer srv.Close()

	faucet, err := DialHardhatFaucet(context.Background(), srv.URL)
	c.Assert(err, qt.IsNil)
	addr := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e5d17dc79C8")
	c.Assert(faucet.Fund(context.Background(), addr, uint256.NewInt(1_000_000_000_000_000_000)), qt.IsNil)

	c.Assert(got.Method, qt.Equals, "hardhat_setBalance")
	c.Assert(got.Params, qt.HasLen, 2)
	var amount string
	c.Assert(json.Unmarshal(got.Params[1], &amount), qt.IsNil)
	c.Assert(amount, qt.Equals, "0xde0b6b3a7640000")
}
