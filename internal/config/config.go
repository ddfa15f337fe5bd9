// Package config loads runtime configuration from the environment.
// An optional .env file is read first (godotenv); values are mapped onto
// Config through go-simpler/env struct tags.
package config

import (
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8080"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	AlephAPIURL     string        `env:"ALEPH_API_URL" default:"https://api2.aleph.im"`
	AlephChannel    string        `env:"ALEPH_CHANNEL" default:"ETH_CHECKSUM"`
	RequiredChainID string        `env:"REQUIRED_CHAIN_ID" default:"0x1"`
	SettleDelay     time.Duration `env:"SETTLE_DELAY" default:"1500ms"`
	SettingsDir     string        `env:"SETTINGS_DIR" default:".ethchecksum"`

	// WalletPrivateKey backs a local signer for development. Empty means no
	// wallet is connected at startup.
	WalletPrivateKey string `env:"WALLET_PRIVATE_KEY"`

	// AggregateDevAddr is the listen address of the development aggregate server
	AggregateDevAddr string `env:"AGGREGATE_DEV_ADDR" default:":4024"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// IsProduction reports whether the app runs with APP_ENV=production
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// ChainID returns RequiredChainID as a number
func (c *Config) ChainID() *big.Int {
	id, err := hexutil.DecodeBig(c.RequiredChainID)
	if err != nil {
		return big.NewInt(1)
	}
	return id
}

func validate(cfg *Config) error {
	if cfg.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if cfg.AlephAPIURL == "" {
		return fmt.Errorf("ALEPH_API_URL is required")
	}
	if !strings.HasPrefix(cfg.AlephAPIURL, "http://") && !strings.HasPrefix(cfg.AlephAPIURL, "https://") {
		return fmt.Errorf("ALEPH_API_URL must be an http(s) URL, got %q", cfg.AlephAPIURL)
	}
	if cfg.AlephChannel == "" {
		return fmt.Errorf("ALEPH_CHANNEL is required")
	}

	if _, err := hexutil.DecodeBig(cfg.RequiredChainID); err != nil {
		return fmt.Errorf("REQUIRED_CHAIN_ID must be a 0x-prefixed hex number: %w", err)
	}
	if cfg.SettleDelay < 0 {
		return fmt.Errorf("SETTLE_DELAY must not be negative, got %s", cfg.SettleDelay)
	}

	switch cfg.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", cfg.LogFormat)
	}

	if cfg.WalletPrivateKey != "" {
		if cfg.IsProduction() {
			return fmt.Errorf("WALLET_PRIVATE_KEY must not be set in production")
		}
		key := strings.TrimPrefix(cfg.WalletPrivateKey, "0x")
		if _, err := hexutil.Decode("0x" + key); len(key) != 64 || err != nil {
			return fmt.Errorf("WALLET_PRIVATE_KEY must be exactly 64 hex characters")
		}
	}

	return nil
}
