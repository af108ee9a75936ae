package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sincore/aggregator/internal/bestrate"
	s3blob "github.com/sincore/aggregator/internal/blob/s3"
	"github.com/sincore/aggregator/internal/cache/redis"
	"github.com/sincore/aggregator/internal/config"
	"github.com/sincore/aggregator/internal/crypto"
	"github.com/sincore/aggregator/internal/domain"
	"github.com/sincore/aggregator/internal/executor"
	"github.com/sincore/aggregator/internal/fee"
	"github.com/sincore/aggregator/internal/registry"
	"github.com/sincore/aggregator/internal/store/postgres"
	"github.com/sincore/aggregator/internal/vault"
	"github.com/sincore/aggregator/internal/venue/httpvenue"
)

// Dependencies bundles everything the application modes need to operate. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Core
	Routes    *registry.Routes
	Partners  *registry.Partners
	Exemption *fee.Exemption
	Ledger    *vault.Ledger
	Exec      *executor.Executor
	Engine    *bestrate.Engine
	Operator  common.Address

	// Stores (nil when postgres is disabled)
	TradeStore domain.SettledTradeStore
	FeeStore   domain.FeeRecordStore

	// Redis (nil when redis is disabled)
	EventBus   *redis.EventBus
	QuoteCache *redis.QuoteCache

	// Blob storage (nil when s3 is disabled)
	Archiver *s3blob.Archiver
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Operator identity ---
	key, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("wire: operator key: %w", err)
	}
	operator, err := crypto.AddressFromKey(key)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: operator address: %w", err)
	}
	deps.Operator = operator

	owner := operator
	if cfg.Vault.OwnerAddress != "" {
		owner = common.HexToAddress(cfg.Vault.OwnerAddress)
	}

	// --- Custody ledger ---
	deps.Ledger = vault.NewLedger(common.HexToAddress(cfg.Vault.CustodyAddress), logger)

	// --- Route registry ---
	deps.Routes = registry.NewRoutes()
	for _, r := range cfg.Routes {
		index := deps.Routes.Add(r.Name, httpvenue.NewClient(r.Name, r.BaseURL, r.APIKey))
		logger.Info("wire: route registered",
			slog.Int("index", index),
			slog.String("name", r.Name),
		)
	}

	// --- Partner registry (first configured entry is the default tier) ---
	first := cfg.Partners[0]
	partners, err := registry.NewPartners(common.HexToAddress(first.Wallet), first.FeeBps, first.Name)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: partners: %w", err)
	}
	for _, p := range cfg.Partners[1:] {
		if _, err := partners.Add(common.HexToAddress(p.Wallet), p.FeeBps, p.Name); err != nil {
			return nil, nil, fmt.Errorf("wire: partners: %w", err)
		}
	}
	deps.Partners = partners

	// --- Loyalty fee exemption ---
	var eligible *big.Int
	if cfg.Loyalty.EligibleAmount != "" {
		eligible, _ = new(big.Int).SetString(cfg.Loyalty.EligibleAmount, 10)
	}
	deps.Exemption = fee.NewExemption(deps.Ledger, common.HexToAddress(cfg.Loyalty.AssetAddress), eligible)

	// --- Executor and best-rate engine ---
	deps.Exec = executor.NewExecutor(deps.Routes, deps.Partners, deps.Exemption, deps.Ledger, owner, logger)
	deps.Engine = bestrate.NewEngine(bestrate.NewRegistryQuoter(deps.Routes), cfg.BestRate.MaxQuoteCalls, logger)

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.TradeStore = postgres.NewSettledTradeStore(pool)
		deps.FeeStore = postgres.NewFeeRecordStore(pool)
		deps.Exec.SetRecording(deps.TradeStore, deps.FeeStore)
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.EventBus = redis.NewEventBus(redisClient)
		deps.QuoteCache = redis.NewQuoteCache(redisClient, cfg.BestRate.CacheTTL.Duration)
		deps.Exec.SetEventBus(deps.EventBus)
	}

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		// Archiving needs the trade store; Validate enforces this pairing.
		if deps.TradeStore != nil {
			deps.Archiver = s3blob.NewArchiver(s3Client, deps.TradeStore, cfg.S3.ArchiveRetention.Duration, logger)
		}
	}

	return deps, cleanup, nil
}
