package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	flag "github.com/spf13/pflag"
	"github.com/vocdoni/zkvote/circuit"
	"github.com/vocdoni/zkvote/config"
	ethSigner "github.com/vocdoni/zkvote/crypto/signatures/ethereum"
	"github.com/vocdoni/zkvote/db/metadb"
	"github.com/vocdoni/zkvote/log"
	"github.com/vocdoni/zkvote/prover"
	"github.com/vocdoni/zkvote/relay"
	"github.com/vocdoni/zkvote/storage"
	"github.com/vocdoni/zkvote/voting"
	"github.com/vocdoni/zkvote/web3"
)

// Services holds the components shared by the commands
type Services struct {
	Voting  *web3.Voting
	Client  *ethclient.Client
	Storage *storage.Storage
	Faucet  relay.Faucet
	Voter   *ethSigner.Signer
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.Log.Level, cfg.Log.Output, nil)
	log.Infow("starting zkvote", "version", Version)

	if err := validateConfig(cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	command := flag.Arg(0)
	if command == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	services, err := setupServices(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to setup services: %v", err)
	}
	defer shutdownServices(services)

	if err := run(ctx, cfg, services, command); err != nil {
		log.Errorw(err, command+" failed")
		shutdownServices(services)
		os.Exit(1)
	}
}

// run executes a single command
func run(ctx context.Context, cfg *Config, services *Services, command string) error {
	vcfg := voting.DefaultConfig()
	vcfg.PathLength = cfg.Prover.PathLength
	vcfg.Relay.ConfirmTimeout = cfg.Relay.ConfirmTimeout

	session, err := newSession(services.Voter.Address(), cfg.Vote)
	if err != nil {
		return err
	}

	switch command {
	case "register":
		cli := voting.New(services.Voting, services.Voting, services.Storage, nil, services.Faucet, vcfg)
		rec, err := cli.Register(ctx, session)
		if err != nil {
			return err
		}
		log.Infow("voter registered",
			"voter", session.Voter.Hex(),
			"commitment", rec.Commitment.String(),
			"leafIndex", *rec.LeafIndex)
		return nil
	case "prove":
		pipeline, err := setupProver(ctx, cfg)
		if err != nil {
			return err
		}
		cli := voting.New(services.Voting, services.Voting, services.Storage, pipeline, services.Faucet, vcfg)
		secrets, err := secretInputs(cfg)
		if err != nil {
			return err
		}
		bundle, err := cli.GenerateProof(ctx, session, secrets, voting.ProofOptions{Overwrite: cfg.Overwrite})
		if err != nil {
			return err
		}
		log.Infow("proof generated",
			"vote", bundle.Vote(),
			"nullifierHash", bundle.NullifierHash().String())
		return nil
	case "vote":
		cli := voting.New(services.Voting, services.Voting, services.Storage, nil, services.Faucet, vcfg)
		sub, err := cli.Vote(ctx, session)
		if err != nil {
			return err
		}
		log.Infow("vote confirmed", "relay", sub.Relay.Hex(), "tx", sub.TxHash.Hex())
		return nil
	case "status":
		cli := voting.New(services.Voting, services.Voting, services.Storage, nil, services.Faucet, vcfg)
		st, err := cli.Status(ctx, session)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

// setupServices opens the local store and binds the voting contract
func setupServices(ctx context.Context, cfg *Config) (*Services, error) {
	network, err := config.GetNetwork(cfg.Web3.Network)
	if err != nil {
		return nil, err
	}
	voter, err := ethSigner.NewSignerFromHex(cfg.Web3.PrivKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	rpcURL := network.RPC
	if cfg.Web3.Rpc != "" {
		rpcURL = cfg.Web3.Rpc
	}
	address := network.Voting
	if cfg.Web3.Voting != "" {
		address = cfg.Web3.Voting
	}
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("voting contract address not set for network %s", cfg.Web3.Network)
	}
	startBlock := network.StartBlock
	if cfg.Web3.StartBlock > 0 {
		startBlock = cfg.Web3.StartBlock
	}

	services := &Services{Voter: voter}
	services.Voting, services.Client, err = web3.Dial(ctx, rpcURL, common.HexToAddress(address), web3.Options{
		Voter:      voter,
		StartBlock: startBlock,
	})
	if err != nil {
		return nil, err
	}
	if network.Faucet || cfg.Web3.Faucet {
		services.Faucet = web3.NewHardhatFaucet(services.Client.Client())
	}

	database, err := metadb.New(cfg.DBType, filepath.Join(cfg.Datadir, "storage"))
	if err != nil {
		services.Client.Close()
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}
	services.Storage = storage.New(database)
	log.Infow("local store ready", "datadir", cfg.Datadir, "type", cfg.DBType)
	return services, nil
}

// setupProver loads the circuit artifacts and builds the proving pipeline
func setupProver(ctx context.Context, cfg *Config) (*prover.Pipeline, error) {
	remote, err := circuit.NewHTTPSource(cfg.Artifacts.URL, nil)
	if err != nil {
		return nil, err
	}
	loader := circuit.NewLoader(filepath.Join(cfg.Datadir, "artifacts"), remote)
	if cfg.Artifacts.SkipHashCheck {
		log.Warnw("circuit artifact hashes will not be checked")
		loader.SkipHashCheck()
	}
	lctx, cancel := context.WithTimeout(ctx, artifactsTimeout)
	defer cancel()
	artifacts, err := loader.Load(lctx, config.VoteCircuitFiles())
	if err != nil {
		return nil, fmt.Errorf("failed to load circuit artifacts: %w", err)
	}
	return prover.New(prover.NewRapidsnark(), artifacts, prover.Options{
		VerifyLocally: cfg.Prover.VerifyLocally,
	})
}

// shutdownServices releases the store and the RPC connection
func shutdownServices(services *Services) {
	if services.Storage != nil {
		services.Storage.Close()
		services.Storage = nil
	}
	if services.Client != nil {
		services.Client.Close()
		services.Client = nil
	}
}

func secretInputs(cfg *Config) (*voting.SecretInputs, error) {
	secrets := &voting.SecretInputs{}
	if cfg.Nullifier != "" {
		n, ok := new(big.Int).SetString(cfg.Nullifier, 0)
		if !ok {
			return nil, fmt.Errorf("invalid nullifier %q", cfg.Nullifier)
		}
		secrets.Nullifier = n
	}
	if cfg.Secret != "" {
		s, ok := new(big.Int).SetString(cfg.Secret, 0)
		if !ok {
			return nil, fmt.Errorf("invalid secret %q", cfg.Secret)
		}
		secrets.Secret = s
	}
	if cfg.Index >= 0 {
		if cfg.Index > int64(^uint32(0)) {
			return nil, fmt.Errorf("leaf index %d out of range", cfg.Index)
		}
		idx := uint32(cfg.Index)
		secrets.LeafIndex = &idx
	}
	return secrets, nil
}

// newSession returns the session of voter with the choice given in the vote
// flag, if any.
func newSession(voter common.Address, choice string) (*voting.Session, error) {
	session := voting.NewSession(voter)
	if choice == "" {
		return session, nil
	}
	vote, ok := parseVote(choice)
	if !ok {
		return nil, fmt.Errorf("invalid vote %q, use yes or no", choice)
	}
	session.SelectVote(vote)
	return session, nil
}

func parseVote(v string) (vote, ok bool) {
	switch strings.ToLower(v) {
	case "yes", "true":
		return true, true
	case "no", "false":
		return false, true
	}
	return false, false
}
