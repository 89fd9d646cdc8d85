// Package config defines the top-level configuration for the intent solver
// and provides validation helpers.
package config

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SOLVERD_* environment variables.
type Config struct {
	Chains    []ChainConfig   `toml:"chains"`
	Wallet    WalletConfig    `toml:"wallet"`
	Solver    SolverConfig    `toml:"solver"`
	PriceFeed PriceFeedConfig `toml:"pricefeed"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Archive   ArchiveConfig   `toml:"archive"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// ChainConfig describes one chain the solver connects to. SettlerAddress may
// be left empty, in which case the static deployment manifest (or a
// SOLVERD_SETTLER_ADDRESS_<chainID> override) resolves it at load time.
type ChainConfig struct {
	ChainID        uint64 `toml:"chain_id"`
	Name           string `toml:"name"`
	RPCURL         string `toml:"rpc_url"`
	SettlerAddress string `toml:"settler_address"`
	// PriceFeedAddress is the on-chain oracle aggregator for the reference
	// price; only chains that serve as a price source need it.
	PriceFeedAddress string `toml:"price_feed_address"`
	// Tokens lists the ERC-20 addresses whose solver balances the liquidity
	// ledger tracks on this chain.
	Tokens []string `toml:"tokens"`
}

// WalletConfig holds the solver's signing credential. All fields are optional;
// without a key the solver runs in observe-only mode.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// SolverConfig holds the economic thresholds for fill decisions.
type SolverConfig struct {
	MinProfitBps   int    `toml:"min_profit_bps"`
	MaxGasPriceWei string `toml:"max_gas_price_wei"`
	MaxIntentSize  string `toml:"max_intent_size"`
	FillGasUnits   uint64 `toml:"fill_gas_units"`
	// FillLockTTL bounds how long a cross-replica fill lock is held.
	FillLockTTL duration `toml:"fill_lock_ttl"`
	// BalanceRefreshInterval controls how often the liquidity ledger re-reads
	// authoritative on-chain balances.
	BalanceRefreshInterval duration `toml:"balance_refresh_interval"`
}

// MaxGasPrice parses the configured gas ceiling as a big integer in wei.
func (s SolverConfig) MaxGasPrice() (*big.Int, bool) {
	return new(big.Int).SetString(s.MaxGasPriceWei, 10)
}

// MaxSize parses the configured intent size ceiling in raw token units.
func (s SolverConfig) MaxSize() (*big.Int, bool) {
	return new(big.Int).SetString(s.MaxIntentSize, 10)
}

// PriceFeedConfig holds the reference price refresh parameters. The primary
// source is the on-chain aggregator of the chain whose ChainConfig sets
// price_feed_address; FallbackURL is an HTTP endpoint returning {"price": n}.
type PriceFeedConfig struct {
	Symbol          string   `toml:"symbol"`
	FallbackURL     string   `toml:"fallback_url"`
	RefreshInterval duration `toml:"refresh_interval"`
	MaxAge          duration `toml:"max_age"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the archiver.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig controls the terminal-intent JSONL export.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	Interval      duration `toml:"interval"`
	RetentionDays int      `toml:"retention_days"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// defaultSettlers is the static deployment manifest: output settler contract
// address by chain id. Per-chain TOML values and SOLVERD_SETTLER_ADDRESS_<id>
// environment overrides take precedence.
var defaultSettlers = map[uint64]string{
	1:     "0x6cA1b61D2AF8f8C2bbDbB86c1152cB5ba5A4e14b",
	10:    "0x4A0f4D4D1dc4D9a92e9CcAbB62bEcDD840E64c96",
	8453:  "0x4A0f4D4D1dc4D9a92e9CcAbB62bEcDD840E64c96",
	42161: "0x3C6a4E8f2E0bD5cD3f8aC295a8D1a9e7b1c0F24D",
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Solver: SolverConfig{
			MinProfitBps:           10,
			MaxGasPriceWei:         "100000000000", // 100 gwei
			MaxIntentSize:          "1000000000000",
			FillGasUnits:           150_000,
			FillLockTTL:            duration{2 * time.Minute},
			BalanceRefreshInterval: duration{30 * time.Second},
		},
		PriceFeed: PriceFeedConfig{
			Symbol:          "ETH-USD",
			RefreshInterval: duration{60 * time.Second},
			MaxAge:          duration{5 * time.Minute},
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "solverd",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Region:         "us-east-1",
			Bucket:         "solverd-archive",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			Interval:      duration{time.Hour},
			RetentionDays: 30,
		},
		Notify: NotifyConfig{
			Events: []string{"intent_filled", "fill_failed"},
		},
		Mode:     "solve",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"solve":   true,
	"observe": true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var hexAddrRe = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: solve, observe, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if len(c.Chains) == 0 {
		errs = append(errs, "chains: at least one chain must be configured")
	}
	seen := make(map[uint64]bool, len(c.Chains))
	for i, ch := range c.Chains {
		if ch.ChainID == 0 {
			errs = append(errs, fmt.Sprintf("chains[%d]: chain_id must be positive", i))
		}
		if seen[ch.ChainID] {
			errs = append(errs, fmt.Sprintf("chains[%d]: duplicate chain_id %d", i, ch.ChainID))
		}
		seen[ch.ChainID] = true
		if ch.RPCURL == "" {
			errs = append(errs, fmt.Sprintf("chains[%d]: rpc_url must not be empty", i))
		}
		if ch.SettlerAddress != "" && !hexAddrRe.MatchString(ch.SettlerAddress) {
			errs = append(errs, fmt.Sprintf("chains[%d]: settler_address %q is not a valid address", i, ch.SettlerAddress))
		}
		for _, tok := range ch.Tokens {
			if !hexAddrRe.MatchString(tok) {
				errs = append(errs, fmt.Sprintf("chains[%d]: token %q is not a valid address", i, tok))
			}
		}
	}

	// Wallet — a credential is required for filling modes; observe runs
	// without one.
	mode := strings.ToLower(c.Mode)
	if mode == "solve" || mode == "full" {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for mode "+c.Mode)
		}
	}
	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
	}

	// Solver thresholds.
	if c.Solver.MinProfitBps < 0 {
		errs = append(errs, "solver: min_profit_bps must be >= 0")
	}
	if gp, ok := c.Solver.MaxGasPrice(); !ok || gp.Sign() <= 0 {
		errs = append(errs, fmt.Sprintf("solver: max_gas_price_wei %q must be a positive integer", c.Solver.MaxGasPriceWei))
	}
	if sz, ok := c.Solver.MaxSize(); !ok || sz.Sign() <= 0 {
		errs = append(errs, fmt.Sprintf("solver: max_intent_size %q must be a positive integer", c.Solver.MaxIntentSize))
	}
	if c.Solver.FillGasUnits == 0 {
		errs = append(errs, "solver: fill_gas_units must be > 0")
	}
	if c.Solver.BalanceRefreshInterval.Duration <= 0 {
		errs = append(errs, "solver: balance_refresh_interval must be > 0")
	}

	if c.PriceFeed.RefreshInterval.Duration <= 0 {
		errs = append(errs, "pricefeed: refresh_interval must be > 0")
	}
	if c.PriceFeed.MaxAge.Duration <= 0 {
		errs = append(errs, "pricefeed: max_age must be > 0")
	}

	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty when enabled")
	}

	if c.Archive.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be > 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// SettlerFor returns the resolved settler address for a chain: the per-chain
// TOML value when set, otherwise the static deployment manifest entry. The
// second return is false when neither source knows the chain.
func (c *Config) SettlerFor(chainID uint64) (string, bool) {
	for _, ch := range c.Chains {
		if ch.ChainID == chainID && ch.SettlerAddress != "" {
			return ch.SettlerAddress, true
		}
	}
	addr, ok := defaultSettlers[chainID]
	return addr, ok
}
