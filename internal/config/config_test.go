package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "0x0000000000000000000000000000000000000000000000000000000000000001"
	cfg.Vault.CustodyAddress = "0x0000000000000000000000000000000000000001"
	cfg.Routes = []RouteConfig{{Name: "uniswap", BaseURL: "https://venue.example.com"}}
	cfg.Partners = []PartnerConfig{{Wallet: "0x0000000000000000000000000000000000000002", FeeBps: 10, Name: "reserve"}}
	return cfg
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "banana"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "wallet:")
	assert.Contains(t, err.Error(), "custody_address")
	assert.Contains(t, err.Error(), "routes:")
	assert.Contains(t, err.Error(), "partners:")
}

func TestValidateRejectsBadFeeBps(t *testing.T) {
	cfg := validConfig()
	cfg.Partners[0].FeeBps = 10001

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fee_bps")
}

func TestValidateRejectsGranularityNotDividing100(t *testing.T) {
	cfg := validConfig()
	cfg.BestRate.Granularity = 3

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "granularity")
}

func TestValidateLoyaltyFieldsMustPair(t *testing.T) {
	cfg := validConfig()
	cfg.Loyalty.AssetAddress = "0x0000000000000000000000000000000000000009"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loyalty")
}

func TestValidateArchivingRequiresPostgres(t *testing.T) {
	cfg := validConfig()
	cfg.S3.Enabled = true
	cfg.Postgres.Enabled = false

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires postgres")
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	data := `
mode = "full"

[bestrate]
granularity = 5
cache_ttl = "2m"

[server]
port = 9100

[[routes]]
name = "uniswap"
base_url = "https://venue.example.com"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "full", cfg.Mode)
	assert.Equal(t, 5, cfg.BestRate.Granularity)
	assert.Equal(t, 2*time.Minute, cfg.BestRate.CacheTTL.Duration)
	assert.Equal(t, 9100, cfg.Server.Port)
	require.Len(t, cfg.Routes, 1)
	assert.Equal(t, "uniswap", cfg.Routes[0].Name)

	// Untouched sections keep their defaults.
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 200, cfg.BestRate.MaxQuoteCalls)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("mode = \"server\"\n"), 0o600))

	t.Setenv("AGGD_SERVER_PORT", "9200")
	t.Setenv("AGGD_WALLET_PRIVATE_KEY", "0xdeadbeef")
	t.Setenv("AGGD_SERVER_CORS_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("AGGD_BESTRATE_CACHE_TTL", "45s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9200, cfg.Server.Port)
	assert.Equal(t, "0xdeadbeef", cfg.Wallet.PrivateKey)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 45*time.Second, cfg.BestRate.CacheTTL.Duration)
}
