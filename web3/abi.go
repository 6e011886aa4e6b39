package web3

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Method and event names of the voting contract.
const (
	MethodRegister      = "register"
	MethodVote          = "vote"
	MethodGetVoterData  = "getVoterData"
	MethodGetVotingData = "getVotingData"

	EventNewLeaf  = "NewLeaf"
	EventVoteCast = "VoteCast"
)

// VotingABIJSON is the subset of the voting contract ABI used by the client.
const VotingABIJSON = `[
  {
    "type": "function",
    "name": "register",
    "stateMutability": "nonpayable",
    "inputs": [{"name": "_commitment", "type": "bytes32"}],
    "outputs": []
  },
  {
    "type": "function",
    "name": "vote",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "_proof", "type": "bytes"},
      {"name": "_nullifierHash", "type": "bytes32"},
      {"name": "_root", "type": "bytes32"},
      {"name": "_vote", "type": "bytes32"},
      {"name": "_depth", "type": "bytes32"}
    ],
    "outputs": []
  },
  {
    "type": "function",
    "name": "getVoterData",
    "stateMutability": "view",
    "inputs": [{"name": "_voter", "type": "address"}],
    "outputs": [
      {"name": "isVoter", "type": "bool"},
      {"name": "hasRegistered", "type": "bool"}
    ]
  },
  {
    "type": "function",
    "name": "getVotingData",
    "stateMutability": "view",
    "inputs": [],
    "outputs": [
      {"name": "question", "type": "string"},
      {"name": "owner", "type": "address"},
      {"name": "yesVotes", "type": "uint256"},
      {"name": "noVotes", "type": "uint256"},
      {"name": "treeSize", "type": "uint256"},
      {"name": "treeDepth", "type": "uint256"},
      {"name": "root", "type": "uint256"}
    ]
  },
  {
    "type": "event",
    "name": "NewLeaf",
    "anonymous": false,
    "inputs": [
      {"name": "index", "type": "uint256", "indexed": false},
      {"name": "value", "type": "uint256", "indexed": false}
    ]
  },
  {
    "type": "event",
    "name": "VoteCast",
    "anonymous": false,
    "inputs": [
      {"name": "voter", "type": "address", "indexed": true},
      {"name": "nullifierHash", "type": "bytes32", "indexed": false},
      {"name": "vote", "type": "bool", "indexed": false}
    ]
  }
]`

// VotingABI is the parsed VotingABIJSON.
var VotingABI = mustParseABI(VotingABIJSON)

func mustParseABI(def string) *abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("invalid voting ABI: %v", err))
	}
	return &parsed
}

// NewLeafTopic and VoteCastTopic are the topic0 of the contract events.
var (
	NewLeafTopic  = VotingABI.Events[EventNewLeaf].ID
	VoteCastTopic = VotingABI.Events[EventVoteCast].ID
)

// PackRegister encodes the calldata of register(commitment).
func PackRegister(commitment common.Hash) ([]byte, error) {
	return VotingABI.Pack(MethodRegister, commitment)
}

// PackVote encodes the calldata of vote(proof, nullifierHash, root, vote,
// depth).
func PackVote(proof []byte, nullifierHash, root, vote, depth common.Hash) ([]byte, error) {
	return VotingABI.Pack(MethodVote, proof, nullifierHash, root, vote, depth)
}

// UnpackCall decodes calldata into the method it targets and its arguments.
func UnpackCall(data []byte) (*abi.Method, []any, error) {
	if len(data) < 4 {
		return nil, nil, fmt.Errorf("calldata too short: %d bytes", len(data))
	}
	method, err := VotingABI.MethodById(data[:4])
	if err != nil {
		return nil, nil, err
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, nil, fmt.Errorf("unpack %s arguments: %w", method.Name, err)
	}
	return method, args, nil
}
