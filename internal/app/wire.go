package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/predictfi/venue/internal/blob/s3"
	"github.com/predictfi/venue/internal/cache/redis"
	"github.com/predictfi/venue/internal/config"
	"github.com/predictfi/venue/internal/crypto"
	"github.com/predictfi/venue/internal/domain"
	"github.com/predictfi/venue/internal/platform/polymarket"
	"github.com/predictfi/venue/internal/store/postgres"
)

// Dependencies bundles the infrastructure-level dependencies the venue
// needs. It is constructed by Wire and torn down by the returned cleanup
// function; services are assembled on top of it in App.Run.
type Dependencies struct {
	// Stores
	Markets        domain.MarketStore
	Orders         domain.OrderStore
	Balances       domain.BalanceStore
	Activities     domain.ActivityStore
	HedgePositions domain.HedgePositionStore
	Mappings       *postgres.MappingStore
	Tx             domain.TxManager

	// Caches
	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// External venue
	Venue *polymarket.ClobClient

	// Archiver exports resolved markets to object storage; nil when no
	// S3 bucket is configured.
	Archiver *s3blob.MarketArchiver
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
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
	deps.Markets = postgres.NewMarketStore(pool)
	deps.Orders = postgres.NewOrderStore(pool)
	deps.Balances = postgres.NewBalanceStore(pool)
	deps.Activities = postgres.NewActivityStore(pool)
	deps.HedgePositions = postgres.NewHedgePositionStore(pool)
	deps.Mappings = postgres.NewMappingStore(pool)
	deps.Tx = postgres.NewTxManager(pgClient)

	// --- Redis ---
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

	deps.PriceCache = redis.NewPriceCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- External venue client ---
	// Without a signing key the venue still runs; hedge orders fail at
	// placement and trades fall back to internal fills only for markets
	// without an active mapping.
	var signer *crypto.Signer
	if cfg.Exchange.PrivateKey != "" || cfg.Exchange.EncryptedKeyPath != "" {
		privateKey, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Exchange.PrivateKey,
			EncryptedKeyPath: cfg.Exchange.EncryptedKeyPath,
			KeyPassword:      cfg.Exchange.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: exchange key: %w", err)
		}
		signer, err = crypto.NewSigner(privateKey, cfg.Exchange.ChainID)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: exchange signer: %w", err)
		}
	}

	var hmacAuth *crypto.HMACAuth
	if cfg.Exchange.ApiKey != "" {
		hmacAuth = &crypto.HMACAuth{
			Key:        cfg.Exchange.ApiKey,
			Secret:     cfg.Exchange.ApiSecret,
			Passphrase: cfg.Exchange.ApiPassphrase,
		}
	}

	deps.Venue = polymarket.NewClobClient(cfg.Exchange.ClobHost, signer, hmacAuth, cfg.Hedge.FeeRateBps)

	// --- S3 archival (optional) ---
	if cfg.S3.Bucket != "" {
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

		deps.Archiver = s3blob.NewMarketArchiver(
			s3blob.NewWriter(s3Client),
			deps.Activities,
			deps.Orders,
			deps.HedgePositions,
			logger,
		)
	}

	return deps, cleanup, nil
}
