// Package config defines the top-level configuration for the aggregator
// daemon and provides validation helpers.
package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by AGGD_* environment variables.
type Config struct {
	Wallet   WalletConfig    `toml:"wallet"`
	Vault    VaultConfig     `toml:"vault"`
	Routes   []RouteConfig   `toml:"routes"`
	Partners []PartnerConfig `toml:"partners"`
	Loyalty  LoyaltyConfig   `toml:"loyalty"`
	BestRate BestRateConfig  `toml:"bestrate"`
	Postgres PostgresConfig  `toml:"postgres"`
	Redis    RedisConfig     `toml:"redis"`
	S3       S3Config        `toml:"s3"`
	Server   ServerConfig    `toml:"server"`
	Mode     string          `toml:"mode"`
	LogLevel string          `toml:"log_level"`
}

// WalletConfig holds the operator's Ethereum wallet credentials. The operator
// address derived from this key is the caller for custody sweeps.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// VaultConfig holds the custody and ownership addresses. OwnerAddress may be
// left empty, in which case the operator wallet address is used.
type VaultConfig struct {
	CustodyAddress string `toml:"custody_address"`
	OwnerAddress   string `toml:"owner_address"`
}

// RouteConfig describes one HTTP swap venue registered at startup.
type RouteConfig struct {
	Name    string `toml:"name"`
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
}

// PartnerConfig describes one partner fee tier. The first entry is the
// default tier used when a trade references an unknown partner index.
type PartnerConfig struct {
	Wallet string `toml:"wallet"`
	FeeBps int    `toml:"fee_bps"`
	Name   string `toml:"name"`
}

// LoyaltyConfig holds the loyalty-token fee exemption parameters. An empty
// EligibleAmount disables the exemption.
type LoyaltyConfig struct {
	AssetAddress   string `toml:"asset_address"`
	EligibleAmount string `toml:"eligible_amount"`
}

// BestRateConfig holds best-rate discovery parameters.
type BestRateConfig struct {
	Granularity   int      `toml:"granularity"`
	MaxQuoteCalls int      `toml:"max_quote_calls"`
	CacheTTL      duration `toml:"cache_ttl"`
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

// S3Config holds S3-compatible object storage parameters for trade archiving.
type S3Config struct {
	Enabled          bool     `toml:"enabled"`
	Endpoint         string   `toml:"endpoint"`
	Region           string   `toml:"region"`
	Bucket           string   `toml:"bucket"`
	AccessKey        string   `toml:"access_key"`
	SecretKey        string   `toml:"secret_key"`
	UseSSL           bool     `toml:"use_ssl"`
	ForcePathStyle   bool     `toml:"force_path_style"`
	ArchiveRetention duration `toml:"archive_retention"`
	ArchiveInterval  duration `toml:"archive_interval"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
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

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		BestRate: BestRateConfig{
			Granularity:   10,
			MaxQuoteCalls: 200,
			CacheTTL:      duration{30 * time.Second},
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "aggregator",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:          false,
			Endpoint:         "http://localhost:9000",
			Region:           "us-east-1",
			Bucket:           "aggregator-data",
			UseSSL:           false,
			ForcePathStyle:   true,
			ArchiveRetention: duration{90 * 24 * time.Hour},
			ArchiveInterval:  duration{24 * time.Hour},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server":  true,
	"archive": true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, archive, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet — a credential source is required so sweeps can be issued.
	if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
		errs = append(errs, "wallet: either private_key or encrypted_key_path must be set")
	}
	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
	}

	// Vault
	if c.Vault.CustodyAddress == "" {
		errs = append(errs, "vault: custody_address must not be empty")
	} else if !common.IsHexAddress(c.Vault.CustodyAddress) {
		errs = append(errs, fmt.Sprintf("vault: custody_address %q is not a valid hex address", c.Vault.CustodyAddress))
	}
	if c.Vault.OwnerAddress != "" && !common.IsHexAddress(c.Vault.OwnerAddress) {
		errs = append(errs, fmt.Sprintf("vault: owner_address %q is not a valid hex address", c.Vault.OwnerAddress))
	}

	// Routes
	if len(c.Routes) == 0 {
		errs = append(errs, "routes: at least one route must be configured")
	}
	for i, r := range c.Routes {
		if r.Name == "" {
			errs = append(errs, fmt.Sprintf("routes[%d]: name must not be empty", i))
		}
		if r.BaseURL == "" {
			errs = append(errs, fmt.Sprintf("routes[%d]: base_url must not be empty", i))
		}
	}

	// Partners — the first entry is the default tier, so it must exist.
	if len(c.Partners) == 0 {
		errs = append(errs, "partners: at least one partner (the default tier) must be configured")
	}
	for i, p := range c.Partners {
		if !common.IsHexAddress(p.Wallet) {
			errs = append(errs, fmt.Sprintf("partners[%d]: wallet %q is not a valid hex address", i, p.Wallet))
		}
		if p.FeeBps < 0 || p.FeeBps > 10000 {
			errs = append(errs, fmt.Sprintf("partners[%d]: fee_bps must be 0-10000, got %d", i, p.FeeBps))
		}
	}

	// Loyalty — both fields must be set together, or both empty.
	la := c.Loyalty.AssetAddress != ""
	le := c.Loyalty.EligibleAmount != ""
	if la != le {
		errs = append(errs, "loyalty: asset_address and eligible_amount must both be set, or both empty")
	}
	if la && !common.IsHexAddress(c.Loyalty.AssetAddress) {
		errs = append(errs, fmt.Sprintf("loyalty: asset_address %q is not a valid hex address", c.Loyalty.AssetAddress))
	}
	if le {
		if _, ok := new(big.Int).SetString(c.Loyalty.EligibleAmount, 10); !ok {
			errs = append(errs, fmt.Sprintf("loyalty: eligible_amount %q is not a valid decimal integer", c.Loyalty.EligibleAmount))
		}
	}

	// BestRate
	if c.BestRate.Granularity <= 0 || 100%c.BestRate.Granularity != 0 {
		errs = append(errs, fmt.Sprintf("bestrate: granularity must be a positive divisor of 100, got %d", c.BestRate.Granularity))
	}
	if c.BestRate.MaxQuoteCalls < 1 {
		errs = append(errs, "bestrate: max_quote_calls must be >= 1")
	}

	// Postgres
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
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if !c.Postgres.Enabled {
			errs = append(errs, "s3: archiving requires postgres to be enabled")
		}
		if c.S3.ArchiveRetention.Duration <= 0 {
			errs = append(errs, "s3: archive_retention must be > 0")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
