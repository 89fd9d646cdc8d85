package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SOLVERD_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	resolveSettlers(&cfg)

	return &cfg, nil
}

// resolveSettlers fills empty per-chain settler addresses from the static
// deployment manifest and then applies SOLVERD_SETTLER_ADDRESS_<chainID>
// overrides, so every downstream component sees a fully resolved address (or
// an empty string when the chain is fill-disabled).
func resolveSettlers(cfg *Config) {
	for i := range cfg.Chains {
		ch := &cfg.Chains[i]
		if ch.SettlerAddress == "" {
			if addr, ok := defaultSettlers[ch.ChainID]; ok {
				ch.SettlerAddress = addr
			}
		}
		key := fmt.Sprintf("SOLVERD_SETTLER_ADDRESS_%d", ch.ChainID)
		if v := os.Getenv(key); v != "" {
			ch.SettlerAddress = v
		}
	}
}

// applyEnvOverrides reads well-known SOLVERD_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "SOLVERD_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "SOLVERD_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "SOLVERD_WALLET_KEY_PASSWORD")

	// ── Solver ──
	setInt(&cfg.Solver.MinProfitBps, "SOLVERD_SOLVER_MIN_PROFIT_BPS")
	setStr(&cfg.Solver.MaxGasPriceWei, "SOLVERD_SOLVER_MAX_GAS_PRICE_WEI")
	setStr(&cfg.Solver.MaxIntentSize, "SOLVERD_SOLVER_MAX_INTENT_SIZE")
	setUint64(&cfg.Solver.FillGasUnits, "SOLVERD_SOLVER_FILL_GAS_UNITS")
	setDuration(&cfg.Solver.FillLockTTL, "SOLVERD_SOLVER_FILL_LOCK_TTL")
	setDuration(&cfg.Solver.BalanceRefreshInterval, "SOLVERD_SOLVER_BALANCE_REFRESH_INTERVAL")

	// ── Price feed ──
	setStr(&cfg.PriceFeed.Symbol, "SOLVERD_PRICEFEED_SYMBOL")
	setStr(&cfg.PriceFeed.FallbackURL, "SOLVERD_PRICEFEED_FALLBACK_URL")
	setDuration(&cfg.PriceFeed.RefreshInterval, "SOLVERD_PRICEFEED_REFRESH_INTERVAL")
	setDuration(&cfg.PriceFeed.MaxAge, "SOLVERD_PRICEFEED_MAX_AGE")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "SOLVERD_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "SOLVERD_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "SOLVERD_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SOLVERD_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SOLVERD_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SOLVERD_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SOLVERD_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SOLVERD_POSTGRES_SSLMODE")
	setBool(&cfg.Postgres.RunMigrations, "SOLVERD_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "SOLVERD_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "SOLVERD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SOLVERD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SOLVERD_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "SOLVERD_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "SOLVERD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SOLVERD_S3_REGION")
	setStr(&cfg.S3.Bucket, "SOLVERD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "SOLVERD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SOLVERD_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "SOLVERD_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "SOLVERD_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "SOLVERD_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.RetentionDays, "SOLVERD_ARCHIVE_RETENTION_DAYS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SOLVERD_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SOLVERD_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SOLVERD_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SOLVERD_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "SOLVERD_MODE")
	setStr(&cfg.LogLevel, "SOLVERD_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
