package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownChain       = errors.New("unknown chain")
	ErrDuplicateChainID   = errors.New("duplicate chain id")
	ErrMissingBridge      = errors.New("bridge address is not specified")
	ErrUnknownProverType  = errors.New("unknown prover type")
	ErrInvalidRetryPolicy = errors.New("invalid retry policy")
)

const (
	defaultMaxBlockRangeSize    = 1000
	defaultBlockIndexInterval   = 30 * time.Second
	defaultRPCTimeout           = 30 * time.Second
	defaultConfirmationInterval = 15 * time.Second
	defaultRelayInterval        = 15 * time.Second
	defaultHealthCheckInterval  = 10 * time.Second
	defaultFailureThreshold     = 3
	defaultReorgTimeout         = 30 * time.Minute
	defaultMaxRetries           = 5
	defaultBaseRetryDelay       = 10 * time.Second
	defaultMaxRetryDelay        = 10 * time.Minute
	defaultConcurrency          = 4
	defaultGasLimit             = 500000
	defaultGasPriceMultiplier   = 100
	defaultReceiptTimeout       = 2 * time.Minute
	defaultReceiptPollInterval  = 3 * time.Second
	defaultLeaseTTL             = 5 * time.Minute
)

type RPCConfig struct {
	Host    string        `yaml:"host"`
	Timeout time.Duration `yaml:"timeout"`
	RPS     float64       `yaml:"rps"`
}

type ChainConfig struct {
	Name               string         `yaml:"-"`
	RPC                *RPCConfig     `yaml:"rpc"`
	ChainID            string         `yaml:"chain_id"`
	BlockTime          time.Duration  `yaml:"block_time"`
	BlockIndexInterval time.Duration  `yaml:"block_index_interval"`
	SafeLogsRequest    bool           `yaml:"safe_logs_request"`
	BridgeAddress      common.Address `yaml:"bridge_address"`
	StartBlock         uint           `yaml:"start_block"`
	BlockConfirmations uint           `yaml:"required_block_confirmations"`
	MaxBlockRangeSize  uint           `yaml:"max_block_range_size"`
}

type ProverType string

const (
	ProverTypeReceiptHash   ProverType = "receipt_hash"
	ProverTypeSignedReceipt ProverType = "signed_receipt"
)

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	LeaseTTL time.Duration `yaml:"lease_ttl"`
}

type RelayerConfig struct {
	PrivateKey           string        `yaml:"private_key" split_words:"true"`
	ConfirmationInterval time.Duration `yaml:"confirmation_interval" split_words:"true"`
	RelayInterval        time.Duration `yaml:"relay_interval" split_words:"true"`
	HealthCheckInterval  time.Duration `yaml:"health_check_interval" split_words:"true"`
	FailureThreshold     uint          `yaml:"failure_threshold" split_words:"true"`
	ReorgTimeout         time.Duration `yaml:"reorg_timeout" split_words:"true"`
	MaxRetries           uint          `yaml:"max_retries" split_words:"true"`
	BaseRetryDelay       time.Duration `yaml:"base_retry_delay" split_words:"true"`
	MaxRetryDelay        time.Duration `yaml:"max_retry_delay" split_words:"true"`
	Concurrency          uint          `yaml:"concurrency" split_words:"true"`
	GasLimit             uint64        `yaml:"gas_limit" split_words:"true"`
	GasPriceMultiplier   uint64        `yaml:"gas_price_multiplier" split_words:"true"`
	ReceiptTimeout       time.Duration `yaml:"receipt_timeout" split_words:"true"`
	ReceiptPollInterval  time.Duration `yaml:"receipt_poll_interval" split_words:"true"`
	Prover               ProverType    `yaml:"prover" split_words:"true"`
	Redis                *RedisConfig  `yaml:"redis" ignored:"true"`
}

type AlertConfig struct {
	Threshold time.Duration `yaml:"threshold"`
}

type DBConfig struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	DB       string `yaml:"database"`
}

type PresenterConfig struct {
	Host string `yaml:"host"`
}

type Config struct {
	Chains    map[string]*ChainConfig `yaml:"chains"`
	Relayer   *RelayerConfig          `yaml:"relayer"`
	Alerts    map[string]*AlertConfig `yaml:"alerts"`
	DBConfig  *DBConfig               `yaml:"postgres"`
	LogLevel  logrus.Level            `yaml:"log_level"`
	Presenter *PresenterConfig        `yaml:"presenter"`
}

func ReadConfigFromFile(path string) (*Config, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("can't access config file: %w", err)
	}
	return ReadConfigWithEnv(blob)
}

// ReadConfigWithEnv expands ${VAR} references in the raw config and applies
// RELAYER_* environment overrides on top of the parsed values.
func ReadConfigWithEnv(blob []byte) (*Config, error) {
	blob = []byte(os.ExpandEnv(string(blob)))

	cfg := new(Config)
	if err := parseYaml(cfg, blob); err != nil {
		return nil, err
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := processConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func ReadConfig(blob []byte) (*Config, error) {
	cfg := new(Config)
	if err := parseYaml(cfg, blob); err != nil {
		return nil, err
	}
	if err := processConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if cfg.Relayer == nil {
		cfg.Relayer = new(RelayerConfig)
	}
	if err := envconfig.Process("RELAYER", cfg.Relayer); err != nil {
		return fmt.Errorf("can't apply relayer env overrides: %w", err)
	}
	if cfg.DBConfig != nil {
		if err := envconfig.Process("RELAYER_POSTGRES", cfg.DBConfig); err != nil {
			return fmt.Errorf("can't apply postgres env overrides: %w", err)
		}
	}
	return nil
}

func processConfig(cfg *Config) error {
	seen := make(map[string]string, len(cfg.Chains))
	for name, chain := range cfg.Chains {
		if chain == nil {
			return fmt.Errorf("chain %q has empty config: %w", name, ErrUnknownChain)
		}
		chain.Name = name
		if other, ok := seen[chain.ChainID]; ok {
			return fmt.Errorf("chains %q and %q share chain id %s: %w", other, name, chain.ChainID, ErrDuplicateChainID)
		}
		seen[chain.ChainID] = name
		if chain.BridgeAddress == (common.Address{}) {
			return fmt.Errorf("chain %q: %w", name, ErrMissingBridge)
		}
		if chain.RPC == nil {
			chain.RPC = new(RPCConfig)
		}
		if chain.RPC.Timeout == 0 {
			chain.RPC.Timeout = defaultRPCTimeout
		}
		if chain.MaxBlockRangeSize == 0 {
			chain.MaxBlockRangeSize = defaultMaxBlockRangeSize
		}
		if chain.BlockIndexInterval == 0 {
			chain.BlockIndexInterval = chain.BlockTime
		}
		if chain.BlockIndexInterval == 0 {
			chain.BlockIndexInterval = defaultBlockIndexInterval
		}
	}

	if cfg.Relayer == nil {
		cfg.Relayer = new(RelayerConfig)
	}
	return processRelayerConfig(cfg.Relayer)
}

func processRelayerConfig(cfg *RelayerConfig) error {
	setDefaultDuration(&cfg.ConfirmationInterval, defaultConfirmationInterval)
	setDefaultDuration(&cfg.RelayInterval, defaultRelayInterval)
	setDefaultDuration(&cfg.HealthCheckInterval, defaultHealthCheckInterval)
	setDefaultDuration(&cfg.ReorgTimeout, defaultReorgTimeout)
	setDefaultDuration(&cfg.BaseRetryDelay, defaultBaseRetryDelay)
	setDefaultDuration(&cfg.MaxRetryDelay, defaultMaxRetryDelay)
	setDefaultDuration(&cfg.ReceiptTimeout, defaultReceiptTimeout)
	setDefaultDuration(&cfg.ReceiptPollInterval, defaultReceiptPollInterval)
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = defaultFailureThreshold
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.GasLimit == 0 {
		cfg.GasLimit = defaultGasLimit
	}
	if cfg.GasPriceMultiplier == 0 {
		cfg.GasPriceMultiplier = defaultGasPriceMultiplier
	}
	switch cfg.Prover {
	case "":
		cfg.Prover = ProverTypeReceiptHash
	case ProverTypeReceiptHash, ProverTypeSignedReceipt:
	default:
		return fmt.Errorf("prover %q: %w", cfg.Prover, ErrUnknownProverType)
	}
	if cfg.MaxRetryDelay < cfg.BaseRetryDelay {
		return fmt.Errorf("max_retry_delay %s is less than base_retry_delay %s: %w", cfg.MaxRetryDelay, cfg.BaseRetryDelay, ErrInvalidRetryPolicy)
	}
	if cfg.Redis != nil {
		setDefaultDuration(&cfg.Redis.LeaseTTL, defaultLeaseTTL)
	}
	return nil
}

func setDefaultDuration(d *time.Duration, def time.Duration) {
	if *d == 0 {
		*d = def
	}
}

func (cfg *Config) GetChainConfig(chainID string) *ChainConfig {
	for _, chain := range cfg.Chains {
		if chain.ChainID == chainID {
			return chain
		}
	}
	return nil
}

func (cfg *Config) GetChainConfigByName(name string) (*ChainConfig, error) {
	chain, ok := cfg.Chains[name]
	if !ok || chain == nil {
		return nil, fmt.Errorf("chain %q: %w", name, ErrUnknownChain)
	}
	return chain, nil
}

func parseYaml(out interface{}, blob []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(blob))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("can't parse yaml: %w", err)
	}
	return nil
}
