package config

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"golang.org/x/xerrors"
)

// Config is an in memory representation of the subnet node configuration file
type Config struct {
	Interpreter *InterpreterConfig `toml:"interpreter"`
	Checkpoint  *CheckpointConfig  `toml:"checkpoint"`
	RPC         *RPCConfig         `toml:"rpc"`
}

// Duration is a time.Duration written as a string such as "30s".
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// InterpreterConfig holds the block execution options.
type InterpreterConfig struct {
	// PushChainMeta records every block hash in the chain-metadata actor.
	PushChainMeta bool `toml:"pushChainMeta"`
}

func newDefaultInterpreterConfig() *InterpreterConfig {
	return &InterpreterConfig{
		PushChainMeta: true,
	}
}

// CheckpointConfig holds the bottom-up checkpointing options.
type CheckpointConfig struct {
	SubnetID string `toml:"subnetID"`
	// ValidatorKeyPath is the key file of this node's validator. Nodes
	// without one create checkpoints but never sign them.
	ValidatorKeyPath string `toml:"validatorKeyPath"`
	Workers          int    `toml:"workers"`
	// SubmitRetries bounds the retries of one signature submission.
	SubmitRetries uint64   `toml:"submitRetries"`
	RetryInterval Duration `toml:"retryInterval"`
	// ResubmitInterval is how long a submitted signature is not sent again.
	ResubmitInterval Duration `toml:"resubmitInterval"`
	// JournalPath is where submissions are journaled. Empty keeps the
	// journal in memory.
	JournalPath string `toml:"journalPath"`
	GasLimit    int64  `toml:"gasLimit"`
	GasFeeCap   string `toml:"gasFeeCap"`
	GasPremium  string `toml:"gasPremium"`
	// MaxFee caps what one signature transaction may cost, in attoFIL. Zero
	// means no cap.
	MaxFee string `toml:"maxFee"`
}

func newDefaultCheckpointConfig() *CheckpointConfig {
	return &CheckpointConfig{
		Workers:          1,
		SubmitRetries:    3,
		RetryInterval:    Duration(time.Second),
		ResubmitInterval: Duration(5 * time.Minute),
		GasLimit:         10_000_000,
		GasFeeCap:        "100000",
		GasPremium:       "1000",
		MaxFee:           "0",
	}
}

// FeeCap parses GasFeeCap.
func (c *CheckpointConfig) FeeCap() (abi.TokenAmount, error) {
	return big.FromString(c.GasFeeCap)
}

// Premium parses GasPremium.
func (c *CheckpointConfig) Premium() (abi.TokenAmount, error) {
	return big.FromString(c.GasPremium)
}

// MaxSignatureFee parses MaxFee. An empty value means no cap.
func (c *CheckpointConfig) MaxSignatureFee() (abi.TokenAmount, error) {
	if c.MaxFee == "" {
		return big.Zero(), nil
	}
	return big.FromString(c.MaxFee)
}

// RPCConfig locates the node API.
type RPCConfig struct {
	// Address is a multiaddr such as /ip4/127.0.0.1/tcp/1234 or a ws/http URL.
	Address string `toml:"address"`
	Token   string `toml:"token"`
}

func newDefaultRPCConfig() *RPCConfig {
	return &RPCConfig{
		Address: "/ip4/127.0.0.1/tcp/1234",
	}
}

// NewDefaultConfig returns a config object with all the fields filled out to
// their default values
func NewDefaultConfig() *Config {
	return &Config{
		Interpreter: newDefaultInterpreterConfig(),
		Checkpoint:  newDefaultCheckpointConfig(),
		RPC:         newDefaultRPCConfig(),
	}
}

// Validate checks the values a node cannot start without.
func (cfg *Config) Validate() error {
	cp := cfg.Checkpoint
	if cp.SubnetID == "" {
		return xerrors.New("checkpoint.subnetID is required")
	}
	if cp.Workers < 1 {
		return xerrors.Errorf("checkpoint.workers must be positive, got %d", cp.Workers)
	}
	if cp.RetryInterval <= 0 {
		return xerrors.Errorf("checkpoint.retryInterval must be positive, got %s", time.Duration(cp.RetryInterval))
	}
	if cp.GasLimit <= 0 {
		return xerrors.Errorf("checkpoint.gasLimit must be positive, got %d", cp.GasLimit)
	}
	if _, err := cp.FeeCap(); err != nil {
		return xerrors.Errorf("checkpoint.gasFeeCap: %w", err)
	}
	if _, err := cp.Premium(); err != nil {
		return xerrors.Errorf("checkpoint.gasPremium: %w", err)
	}
	if maxFee, err := cp.MaxSignatureFee(); err != nil {
		return xerrors.Errorf("checkpoint.maxFee: %w", err)
	} else if maxFee.Sign() < 0 {
		return xerrors.Errorf("checkpoint.maxFee must not be negative, got %s", cp.MaxFee)
	}
	return nil
}

// WriteFile writes the config to the given filepath.
func (cfg *Config) WriteFile(file string) error {
	f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	if err := toml.NewEncoder(f).Encode(*cfg); err != nil {
		_ = f.Close()
		return err
	}

	return f.Close()
}

// ReadFile reads a config file from disk. Missing keys keep their defaults.
func ReadFile(file string) (*Config, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close() // nolint: errcheck

	cfg := NewDefaultConfig()
	if _, err := toml.DecodeReader(f, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
