// Package config loads service settings from an optional .env file and the
// process environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	"github.com/snakeeeeeeeee/zktls-kunkunGallery/chainevm"
)

type Config struct {
	// Ledger
	RPCURL          string  `env:"RPC_URL"          envDefault:"https://testnet-rpc.monad.xyz"`
	ChainID         int64   `env:"CHAIN_ID"         envDefault:"10143"`
	Network         string  `env:"NETWORK"          envDefault:"testnet"`
	ContractAddress string  `env:"CONTRACT_ADDRESS" envDefault:"0xDF83C72DbCAb0c53fc88060eF435CAEB2758cF6d"`
	ExplorerURL     string  `env:"EXPLORER_URL"     envDefault:"https://testnet.monadexplorer.com"`
	RPCRateLimit    float64 `env:"RPC_RATE_LIMIT"   envDefault:"10"`
	RPCRateBurst    int     `env:"RPC_RATE_BURST"   envDefault:"5"`

	// Attestation service
	AttestationURL string   `env:"ATTESTATION_URL"   envDefault:"http://localhost:8090"`
	AppID          string   `env:"ZKTLS_APP_ID"`
	AppSecret      string   `env:"ZKTLS_APP_SECRET"`
	TemplateID     string   `env:"ZKTLS_TEMPLATE_ID" envDefault:"2e3160ae-8b1e-45e3-8c59-426366278b9d"`
	Attestors      []string `env:"ZKTLS_ATTESTORS"   envSeparator:","`

	// Claim submission
	ConfirmTimeout   time.Duration `env:"CONFIRM_TIMEOUT"    envDefault:"60s"`
	PollInterval     time.Duration `env:"POLL_INTERVAL"      envDefault:"2s"`
	FallbackGasLimit uint64        `env:"FALLBACK_GAS_LIMIT" envDefault:"500000"`
	GasMarginPercent uint64        `env:"GAS_MARGIN_PERCENT" envDefault:"20"`
	// LedgerCallTimeout bounds each eligibility read and gas estimate.
	LedgerCallTimeout time.Duration `env:"LEDGER_CALL_TIMEOUT" envDefault:"15s"`

	// Service
	Port        string `env:"PORT"         envDefault:"8080"`
	DatabaseDSN string `env:"DATABASE_DSN" envDefault:"claims.db"`
	LogLevel    string `env:"LOG_LEVEL"    envDefault:"info"`
	// SessionIdleTimeout drops sessions nobody has touched for this long.
	SessionIdleTimeout time.Duration `env:"SESSION_IDLE_TIMEOUT" envDefault:"30m"`
	// SignerKey enables server-side signing. TESTING PURPOSE ONLY.
	SignerKey string `env:"SIGNER_PRIVATE_KEY"`
}

// Load reads the given .env files (default ".env"), when present, and then
// parses the environment. Variables already set in the environment win.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if !chainevm.IsValidContractAddress(c.ContractAddress) {
		errs = append(errs, fmt.Errorf("CONTRACT_ADDRESS %q must be 0x followed by 40 hex characters", c.ContractAddress))
	}
	if c.ChainID <= 0 {
		errs = append(errs, fmt.Errorf("CHAIN_ID must be positive, got %d", c.ChainID))
	}
	if c.AppID == "" || c.AppSecret == "" {
		errs = append(errs, errors.New("ZKTLS_APP_ID and ZKTLS_APP_SECRET are required"))
	}
	for _, a := range c.Attestors {
		if !common.IsHexAddress(strings.TrimSpace(a)) {
			errs = append(errs, fmt.Errorf("ZKTLS_ATTESTORS contains invalid address %q", a))
		}
	}
	if c.ConfirmTimeout <= 0 {
		errs = append(errs, errors.New("CONFIRM_TIMEOUT must be positive"))
	}
	if c.LedgerCallTimeout <= 0 {
		errs = append(errs, errors.New("LEDGER_CALL_TIMEOUT must be positive"))
	}
	if c.SessionIdleTimeout <= 0 {
		errs = append(errs, errors.New("SESSION_IDLE_TIMEOUT must be positive"))
	}
	return errors.Join(errs...)
}

// AttestorAddresses returns the configured attestors, or nil to keep the default.
func (c *Config) AttestorAddresses() []common.Address {
	if len(c.Attestors) == 0 {
		return nil
	}
	out := make([]common.Address, 0, len(c.Attestors))
	for _, a := range c.Attestors {
		out = append(out, common.HexToAddress(strings.TrimSpace(a)))
	}
	return out
}

// EVM returns the ledger settings for chainevm.
func (c *Config) EVM() chainevm.Config {
	return chainevm.Config{
		RPCURL:          c.RPCURL,
		ChainID:         c.ChainID,
		Network:         c.Network,
		ContractAddress: c.ContractAddress,
		ExplorerURL:     c.ExplorerURL,
		RateLimit:       c.RPCRateLimit,
		RateBurst:       c.RPCRateBurst,
	}
}
