package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies AGGD_* environment variable overrides, and
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

	return &cfg, nil
}

// applyEnvOverrides reads well-known AGGD_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "AGGD_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "AGGD_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "AGGD_WALLET_KEY_PASSWORD")

	// ── Vault ──
	setStr(&cfg.Vault.CustodyAddress, "AGGD_VAULT_CUSTODY_ADDRESS")
	setStr(&cfg.Vault.OwnerAddress, "AGGD_VAULT_OWNER_ADDRESS")

	// ── Loyalty ──
	setStr(&cfg.Loyalty.AssetAddress, "AGGD_LOYALTY_ASSET_ADDRESS")
	setStr(&cfg.Loyalty.EligibleAmount, "AGGD_LOYALTY_ELIGIBLE_AMOUNT")

	// ── BestRate ──
	setInt(&cfg.BestRate.Granularity, "AGGD_BESTRATE_GRANULARITY")
	setInt(&cfg.BestRate.MaxQuoteCalls, "AGGD_BESTRATE_MAX_QUOTE_CALLS")
	setDuration(&cfg.BestRate.CacheTTL, "AGGD_BESTRATE_CACHE_TTL")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "AGGD_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "AGGD_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "AGGD_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "AGGD_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "AGGD_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "AGGD_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "AGGD_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "AGGD_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "AGGD_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "AGGD_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "AGGD_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "AGGD_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "AGGD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "AGGD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "AGGD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "AGGD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "AGGD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "AGGD_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "AGGD_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "AGGD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "AGGD_S3_REGION")
	setStr(&cfg.S3.Bucket, "AGGD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "AGGD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "AGGD_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "AGGD_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "AGGD_S3_FORCE_PATH_STYLE")
	setDuration(&cfg.S3.ArchiveRetention, "AGGD_S3_ARCHIVE_RETENTION")
	setDuration(&cfg.S3.ArchiveInterval, "AGGD_S3_ARCHIVE_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "AGGD_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "AGGD_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "AGGD_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "AGGD_SERVER_API_KEY")

	// ── Top-level ──
	setStr(&cfg.Mode, "AGGD_MODE")
	setStr(&cfg.LogLevel, "AGGD_LOG_LEVEL")
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
			if s := strings.TrimSpace(p); s != "" {
				cleaned = append(cleaned, s)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
