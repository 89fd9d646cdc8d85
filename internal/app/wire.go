package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/openintents/solverd/internal/blob/s3"
	"github.com/openintents/solverd/internal/cache/redis"
	"github.com/openintents/solverd/internal/chain"
	"github.com/openintents/solverd/internal/config"
	"github.com/openintents/solverd/internal/crypto"
	"github.com/openintents/solverd/internal/domain"
	"github.com/openintents/solverd/internal/liquidity"
	"github.com/openintents/solverd/internal/monitor"
	"github.com/openintents/solverd/internal/notify"
	"github.com/openintents/solverd/internal/pricefeed"
	"github.com/openintents/solverd/internal/solver"
	"github.com/openintents/solverd/internal/store/postgres"
	"github.com/openintents/solverd/internal/strategy"
)

// intentBuffer bounds the monitor's emit channel before back-pressure
// reaches the subscription goroutines.
const intentBuffer = 128

// Dependencies bundles everything the application modes operate on. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Clients *chain.ClientSet
	Signer  *chain.Signer
	Monitor *monitor.Monitor
	Prices  *strategy.PriceState
	Engine  *strategy.Engine
	Ledger  *liquidity.Ledger
	Agent   *solver.Agent

	Intents  domain.IntentStore
	Fills    domain.FillStore
	Archiver *s3blob.Archiver
	Notifier *notify.Manager
}

// Wire constructs the concrete dependency graph from configuration. Optional
// surfaces (postgres, redis, s3, notifications) are wired only when enabled;
// the solver core runs without them.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{}

	// Signing credential. An empty key means observe-only operation.
	keyHex, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	})
	if err != nil {
		return fail(fmt.Errorf("wire: load key: %w", err))
	}
	if keyHex != "" {
		signer, err := chain.NewSigner(keyHex)
		if err != nil {
			return fail(fmt.Errorf("wire: signer: %w", err))
		}
		deps.Signer = signer
		logger.Info("signer loaded", slog.String("address", signer.Address().Hex()))
	}

	// Chain RPC clients with resolved settler addresses.
	clients, err := chain.Dial(ctx, cfg.Chains, deps.Signer)
	if err != nil {
		return fail(fmt.Errorf("wire: chains: %w", err))
	}
	closers = append(closers, clients.Close)
	deps.Clients = clients

	// PostgreSQL audit stores.
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
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}
		deps.Intents = postgres.NewIntentStore(pgClient.Pool())
		deps.Fills = postgres.NewFillStore(pgClient.Pool())
	}

	// Redis price cache and fill lock.
	var (
		priceCache domain.PriceCache
		locks      domain.LockManager
	)
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
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		priceCache = redis.NewPriceCache(redisClient)
		locks = redis.NewLockManager(redisClient)
	}

	// Reference price: on-chain aggregator primary, HTTP fallback.
	var primary, fallback pricefeed.Source
	for _, h := range clients.Handles() {
		if h.HasPriceFeed {
			oracle, err := pricefeed.NewOracle(h)
			if err != nil {
				return fail(fmt.Errorf("wire: price oracle: %w", err))
			}
			primary = oracle
			break
		}
	}
	if cfg.PriceFeed.FallbackURL != "" {
		fallback = pricefeed.NewHTTPSource(cfg.PriceFeed.FallbackURL)
	}
	deps.Prices = strategy.NewPriceState(
		cfg.PriceFeed.Symbol, primary, fallback, priceCache,
		cfg.PriceFeed.MaxAge.Duration, logger,
	)

	engine, err := strategy.NewEngine(clients, deps.Prices, cfg.Solver, logger)
	if err != nil {
		return fail(fmt.Errorf("wire: strategy: %w", err))
	}
	deps.Engine = engine

	deps.Ledger = liquidity.New(clients, ownerAddress(deps.Signer), logger)
	deps.Monitor = monitor.New(clients, intentBuffer, logger)

	// S3 archiver for terminal intents, requires the audit store.
	if cfg.Archive.Enabled {
		if deps.Intents == nil {
			return fail(fmt.Errorf("wire: archive requires postgres to be enabled"))
		}
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), deps.Intents, logger)
	}

	// Notifications.
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewManager(senders, cfg.Notify.Events, logger)

	observeOnly := strings.EqualFold(cfg.Mode, "observe") || deps.Signer == nil
	agent, err := solver.NewAgent(solver.Deps{
		Monitor:  deps.Monitor,
		Engine:   deps.Engine,
		Ledger:   deps.Ledger,
		Exec:     chain.NewExecutor(clients),
		Intents:  deps.Intents,
		Fills:    deps.Fills,
		Locks:    locks,
		Notifier: deps.Notifier,
	}, cfg.Solver, observeOnly, logger)
	if err != nil {
		return fail(fmt.Errorf("wire: solver agent: %w", err))
	}
	deps.Agent = agent

	return deps, cleanup, nil
}

// ownerAddress returns the solver's address, or the zero address in
// observe-only deployments where the ledger is never initialized.
func ownerAddress(signer *chain.Signer) common.Address {
	if signer == nil {
		return common.Address{}
	}
	return signer.Address()
}
