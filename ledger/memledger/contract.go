package memledger

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	leanimt "github.com/vocdoni/lean-imt-go"
	"github.com/vocdoni/zkvote/types"
	"github.com/vocdoni/zkvote/web3"
)

// contract is the state of the voting contract. It is guarded by the Chain
// mutex.
type contract struct {
	address    common.Address
	owner      common.Address
	question   string
	verifier   Verifier
	voters     map[common.Address]bool
	registered map[common.Address]bool
	leaves     *leanimt.LeanIMT[*big.Int]
	nullifiers map[common.Hash]bool
	yesVotes   *big.Int
	noVotes    *big.Int
}

func newContract(cfg Config) *contract {
	leaves, err := leanimt.New(leanimt.PoseidonHasher, leanimt.BigIntEqual, nil, nil, nil)
	if err != nil {
		panic(fmt.Sprintf("lean-imt: %v", err))
	}
	return &contract{
		leaves:     leaves,
		address:    cfg.Address,
		owner:      cfg.Owner,
		question:   cfg.Question,
		verifier:   cfg.Verifier,
		voters:     make(map[common.Address]bool),
		registered: make(map[common.Address]bool),
		nullifiers: make(map[common.Hash]bool),
		yesVotes:   new(big.Int),
		noVotes:    new(big.Int),
	}
}

func revert(reason string, args ...any) error {
	return fmt.Errorf("execution reverted: "+reason, args...)
}

// tree returns the current root and depth, zero for an empty tree.
func (v *contract) tree() (*big.Int, uint32) {
	root, ok := v.leaves.Root()
	if !ok {
		return new(big.Int), 0
	}
	return new(big.Int).Set(root), uint32(v.leaves.Depth())
}

// call dispatches calldata sent by from. State changes and logs are only
// applied when commit is set.
func (v *contract) call(from common.Address, data []byte, commit bool) ([]byte, []*gethtypes.Log, error) {
	method, args, err := web3.UnpackCall(data)
	if err != nil {
		return nil, nil, revert("%v", err)
	}
	switch method.Name {
	case web3.MethodGetVoterData:
		voter := args[0].(common.Address)
		out, err := method.Outputs.Pack(v.voters[voter], v.registered[voter])
		return out, nil, err
	case web3.MethodGetVotingData:
		root, depth := v.tree()
		out, err := method.Outputs.Pack(v.question, v.owner,
			new(big.Int).Set(v.yesVotes), new(big.Int).Set(v.noVotes),
			big.NewInt(int64(v.leaves.Size())), big.NewInt(int64(depth)), root)
		return out, nil, err
	case web3.MethodRegister:
		l, err := v.register(from, args[0].([32]byte), commit)
		if err != nil {
			return nil, nil, err
		}
		return nil, []*gethtypes.Log{l}, nil
	case web3.MethodVote:
		l, err := v.vote(from, args, commit)
		if err != nil {
			return nil, nil, err
		}
		return nil, []*gethtypes.Log{l}, nil
	default:
		return nil, nil, revert("unknown method %s", method.Name)
	}
}

func (v *contract) register(from common.Address, commitment [32]byte, commit bool) (*gethtypes.Log, error) {
	if !v.voters[from] {
		return nil, revert("Voting__NotAllowedToVote")
	}
	if v.registered[from] {
		return nil, revert("Voting__VoterAlreadyRegistered")
	}
	value := new(big.Int).SetBytes(commitment[:])
	if !types.IsFieldElement(value) {
		return nil, revert("LeanIMT__InvalidLeaf")
	}
	index := big.NewInt(int64(v.leaves.Size()))
	payload, err := web3.VotingABI.Events[web3.EventNewLeaf].Inputs.Pack(index, value)
	if err != nil {
		return nil, err
	}
	if commit {
		v.registered[from] = true
		v.leaves.Insert(value)
	}
	return &gethtypes.Log{
		Address: v.address,
		Topics:  []common.Hash{web3.NewLeafTopic},
		Data:    payload,
	}, nil
}

func (v *contract) vote(from common.Address, args []any, commit bool) (*gethtypes.Log, error) {
	proof := args[0].([]byte)
	nullifierHash := common.Hash(args[1].([32]byte))
	root := new(big.Int).SetBytes(common.Hash(args[2].([32]byte)).Bytes())
	choice := new(big.Int).SetBytes(common.Hash(args[3].([32]byte)).Bytes())
	depth := new(big.Int).SetBytes(common.Hash(args[4].([32]byte)).Bytes())

	if v.nullifiers[nullifierHash] {
		return nil, revert("Voting__NullifierHashAlreadyUsed")
	}
	current, _ := v.tree()
	if v.leaves.Size() == 0 || root.Cmp(current) != 0 {
		return nil, revert("Voting__InvalidRoot")
	}
	if len(proof) == 0 {
		return nil, revert("Voting__InvalidProof")
	}
	if v.verifier != nil {
		inputs := []*big.Int{nullifierHash.Big(), root, choice, depth}
		if err := v.verifier(proof, inputs); err != nil {
			return nil, revert("Voting__InvalidProof: %v", err)
		}
	}
	isYes := choice.Sign() != 0
	payload, err := web3.VotingABI.Events[web3.EventVoteCast].Inputs.NonIndexed().Pack(nullifierHash, isYes)
	if err != nil {
		return nil, err
	}
	if commit {
		v.nullifiers[nullifierHash] = true
		if isYes {
			v.yesVotes.Add(v.yesVotes, big.NewInt(1))
		} else {
			v.noVotes.Add(v.noVotes, big.NewInt(1))
		}
	}
	return &gethtypes.Log{
		Address: v.address,
		Topics:  []common.Hash{web3.VoteCastTopic, common.BytesToHash(from.Bytes())},
		Data:    payload,
	}, nil
}
