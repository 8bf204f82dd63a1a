// Package config loads the node's static startup configuration (spec.md
// §6): a YAML file for the base settings, with .env / process-environment
// values overriding individual keys. Grounded on the teacher's
// cmd/synnergy config conventions (godotenv loaded first, then a typed
// struct populated from file + env), generalized from the teacher's sprawl
// of per-module YAML sections to the single flat document this node needs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is every static setting the node reads once at startup.
type Config struct {
	ChainID          string        `yaml:"chain_id"`
	DataDir          string        `yaml:"data_dir"`
	LogLevel         string        `yaml:"log_level"`
	BlockTime        time.Duration `yaml:"-"`
	BlockTimeSeconds int           `yaml:"block_time_seconds"`
	GasLimit         uint64        `yaml:"gas_limit"`
	MaxTxsPerBlock   int           `yaml:"max_txs_per_block"`
	BlockReward      uint64        `yaml:"block_reward"`
	ValidatorPercent uint64        `yaml:"validator_percent"`
	ValidatorAddress string        `yaml:"validator_address"`

	MasterAddress string `yaml:"master_address"`
	MasterBalance uint64 `yaml:"master_balance"`

	FaucetAmount          uint64 `yaml:"faucet_amount"`
	FaucetCooldownSeconds int64  `yaml:"faucet_cooldown_seconds"`

	HTTPHost string `yaml:"http_host"`
	HTTPPort int    `yaml:"http_port"`

	NetworkMode string `yaml:"network_mode"` // "star" or "mesh"
}

// Default returns the built-in configuration used when no file is given —
// a single-node devnet with a 2-second block time and a generous faucet.
func Default() *Config {
	return &Config{
		ChainID:               "mvm-devnet",
		DataDir:               "./data",
		LogLevel:              "info",
		BlockTimeSeconds:      2,
		GasLimit:              5_000_000,
		MaxTxsPerBlock:        200,
		BlockReward:           50 * 100_000_000, // 50 MVM, base units
		ValidatorPercent:      100,
		FaucetAmount:          10 * 100_000_000,
		FaucetCooldownSeconds: 3600,
		HTTPHost:              "0.0.0.0",
		HTTPPort:              8080,
		NetworkMode:           "star",
	}
}

// Load reads path (a YAML file) over the defaults, then applies .env and
// process-environment overrides (MVM_ prefixed), in that order.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	_ = godotenv.Load() // a missing .env is not an error
	applyEnvOverrides(cfg)

	cfg.BlockTime = time.Duration(cfg.BlockTimeSeconds) * time.Second
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("MVM_CHAIN_ID"); ok {
		cfg.ChainID = v
	}
	if v, ok := os.LookupEnv("MVM_DATA_DIR"); ok {
		cfg.DataDir = v
	}
	if v, ok := os.LookupEnv("MVM_LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := envInt("MVM_BLOCK_TIME_SECONDS"); ok {
		cfg.BlockTimeSeconds = v
	}
	if v, ok := envUint64("MVM_GAS_LIMIT"); ok {
		cfg.GasLimit = v
	}
	if v, ok := envInt("MVM_MAX_TXS_PER_BLOCK"); ok {
		cfg.MaxTxsPerBlock = v
	}
	if v, ok := envUint64("MVM_BLOCK_REWARD"); ok {
		cfg.BlockReward = v
	}
	if v, ok := envUint64("MVM_VALIDATOR_PERCENT"); ok {
		cfg.ValidatorPercent = v
	}
	if v, ok := os.LookupEnv("MVM_VALIDATOR_ADDRESS"); ok {
		cfg.ValidatorAddress = v
	}
	if v, ok := os.LookupEnv("MVM_MASTER_ADDRESS"); ok {
		cfg.MasterAddress = v
	}
	if v, ok := envUint64("MVM_MASTER_BALANCE"); ok {
		cfg.MasterBalance = v
	}
	if v, ok := envUint64("MVM_FAUCET_AMOUNT"); ok {
		cfg.FaucetAmount = v
	}
	if v, ok := os.LookupEnv("MVM_HTTP_HOST"); ok {
		cfg.HTTPHost = v
	}
	if v, ok := envInt("MVM_HTTP_PORT"); ok {
		cfg.HTTPPort = v
	}
	if v, ok := os.LookupEnv("MVM_NETWORK_MODE"); ok {
		cfg.NetworkMode = v
	}
}

func envInt(key string) (int, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	return n, err == nil
}

func envUint64(key string) (uint64, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(v, 10, 64)
	return n, err == nil
}
