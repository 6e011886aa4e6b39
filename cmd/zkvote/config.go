package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/vocdoni/zkvote/config"
	"github.com/vocdoni/zkvote/relay"
)

const (
	defaultNetwork   = "localhost"
	defaultLogLevel  = "info"
	defaultLogOutput = "stderr"
	defaultDatadir   = ".zkvote" // Will be prefixed with user's home directory
	artifactsTimeout = 20 * time.Minute
)

// Version is the build version, set at build time with -ldflags
var Version = "dev"

// Config holds the application configuration
type Config struct {
	Web3      Web3Config
	Artifacts ArtifactsConfig
	Prover    ProverConfig
	Relay     RelayConfig
	Log       LogConfig
	Datadir   string
	DBType    string `mapstructure:"dbtype"`
	Vote      string
	Overwrite bool
	Nullifier string
	Secret    string
	Index     int64
}

// Web3Config holds Ethereum-related configuration
type Web3Config struct {
	PrivKey    string `mapstructure:"privkey"`
	Network    string `mapstructure:"network"`
	Rpc        string `mapstructure:"rpc"`
	Voting     string `mapstructure:"voting"`
	StartBlock uint64 `mapstructure:"startblock"`
	Faucet     bool   `mapstructure:"faucet"`
}

// ArtifactsConfig holds the circuit artifacts location
type ArtifactsConfig struct {
	URL           string `mapstructure:"url"`
	SkipHashCheck bool   `mapstructure:"skiphashcheck"`
}

// ProverConfig holds the proof pipeline configuration
type ProverConfig struct {
	PathLength    uint32 `mapstructure:"pathlength"`
	VerifyLocally bool   `mapstructure:"verify"`
}

// RelayConfig holds the relay submission configuration
type RelayConfig struct {
	ConfirmTimeout time.Duration `mapstructure:"confirmtimeout"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Output string `mapstructure:"output"`
}

// loadConfig loads configuration from flags, environment variables, and defaults
func loadConfig() (*Config, error) {
	v := viper.New()

	userHomeDir, err := os.UserHomeDir()
	if err != nil {
		userHomeDir = "."
	}
	defaultDatadirPath := filepath.Join(userHomeDir, defaultDatadir)

	v.SetDefault("web3.network", defaultNetwork)
	v.SetDefault("artifacts.url", config.ArtifactsURL)
	v.SetDefault("prover.pathlength", config.DefaultPathLength)
	v.SetDefault("relay.confirmtimeout", relay.DefaultConfirmTimeout)
	v.SetDefault("log.level", defaultLogLevel)
	v.SetDefault("log.output", defaultLogOutput)
	v.SetDefault("datadir", defaultDatadirPath)
	v.SetDefault("dbtype", "pebble")
	v.SetDefault("index", -1)

	flag.StringP("web3.privkey", "k", "", "voter private key, identifies the voter and signs its registration")
	flag.StringP("web3.network", "n", defaultNetwork, fmt.Sprintf("network to use %v", config.AvailableNetworks()))
	flag.StringP("web3.rpc", "w", "", "web3 rpc endpoint (overrides network default)")
	flag.String("web3.voting", "", "voting contract address (overrides network default)")
	flag.Uint64("web3.startblock", 0, "first block scanned for contract events")
	flag.Bool("web3.faucet", false, "fund relay accounts with hardhat_setBalance (enabled by default on localhost)")
	flag.String("artifacts.url", config.ArtifactsURL, "base URL of the circuit artifacts")
	flag.Bool("artifacts.skiphashcheck", false, "accept circuit artifacts without checking their sha256")
	flag.Uint32("prover.pathlength", config.DefaultPathLength, "sibling capacity of the vote circuit")
	flag.Bool("prover.verify", false, "verify every proof locally before storing it")
	flag.Duration("relay.confirmtimeout", relay.DefaultConfirmTimeout, "time to wait for the vote receipt")
	flag.StringP("vote", "v", "", "vote choice (yes or no)")
	flag.Bool("overwrite", false, "replace a stored proof for the other choice")
	flag.String("nullifier", "", "explicit nullifier, overrides the stored one")
	flag.String("secret", "", "explicit secret, overrides the stored one")
	flag.Int64("index", -1, "explicit leaf index, overrides the stored one")
	flag.StringP("log.level", "l", defaultLogLevel, "log level (debug, info, warn, error, fatal)")
	flag.StringP("log.output", "o", defaultLogOutput, "log output (stdout, stderr or filepath)")
	flag.StringP("datadir", "d", defaultDatadirPath, "data directory for the local secret store and artifacts")
	flag.String("dbtype", "pebble", "local store backend (pebble or inmemory)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "zkvote v%s\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: zkvote <command> [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  register   generate and register a commitment for the voter\n")
		fmt.Fprintf(os.Stderr, "  prove      generate the proof of the selected vote\n")
		fmt.Fprintf(os.Stderr, "  vote       submit the stored proof through a relay account\n")
		fmt.Fprintf(os.Stderr, "  status     show ledger and local state of the voter\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment variables are also available with the same name as flags,\n")
		fmt.Fprintf(os.Stderr, "  except for dots (.) which are replaced by underscores (_).\n")
		fmt.Fprintf(os.Stderr, "  For example, ZKVOTE_WEB3_PRIVKEY or ZKVOTE_WEB3_RPC\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  zkvote register --web3.privkey=0x123...\n")
		fmt.Fprintf(os.Stderr, "  zkvote prove --web3.privkey=0x123... --vote=yes\n")
		fmt.Fprintf(os.Stderr, "  zkvote vote --web3.privkey=0x123...\n")
	}

	flag.CommandLine.SortFlags = false
	flag.Parse()

	v.SetEnvPrefix("ZKVOTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(flag.CommandLine); err != nil {
		return nil, fmt.Errorf("error binding flags: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return cfg, nil
}

// validateConfig validates the loaded configuration
func validateConfig(cfg *Config) error {
	if cfg.Web3.PrivKey == "" {
		return fmt.Errorf("private key is required (use --web3.privkey flag or ZKVOTE_WEB3_PRIVKEY environment variable)")
	}
	if _, err := config.GetNetwork(cfg.Web3.Network); err != nil {
		return err
	}
	switch strings.ToLower(cfg.Vote) {
	case "", "yes", "no", "true", "false":
	default:
		return fmt.Errorf("invalid vote %q, use yes or no", cfg.Vote)
	}
	if cfg.Prover.PathLength == 0 {
		return fmt.Errorf("prover path length must be positive")
	}
	return nil
}
