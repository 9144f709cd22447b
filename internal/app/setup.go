package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/parityarb/parity-bot/internal/book"
	"github.com/parityarb/parity-bot/internal/convergence"
	"github.com/parityarb/parity-bot/internal/discovery"
	"github.com/parityarb/parity-bot/internal/execution"
	"github.com/parityarb/parity-bot/internal/ledger"
	"github.com/parityarb/parity-bot/internal/markets"
	"github.com/parityarb/parity-bot/internal/orderbook"
	"github.com/parityarb/parity-bot/internal/parity"
	"github.com/parityarb/parity-bot/internal/risk"
	"github.com/parityarb/parity-bot/internal/storage"
	"github.com/parityarb/parity-bot/pkg/cache"
	"github.com/parityarb/parity-bot/pkg/config"
	"github.com/parityarb/parity-bot/pkg/healthprobe"
	"github.com/parityarb/parity-bot/pkg/httpserver"
	"github.com/parityarb/parity-bot/pkg/money"
	"github.com/parityarb/parity-bot/pkg/ratelimit"
	"github.com/parityarb/parity-bot/pkg/wallet"
	"github.com/parityarb/parity-bot/pkg/websocket"
)

// New wires up every component of the bot and returns a ready-to-run App.
// Nothing is started: call Run to begin the stream, trading, exit, health,
// and persistence loops.
func New(cfg *config.Config, logger *zap.Logger, opts *Options) (*App, error) {
	if opts == nil {
		opts = &Options{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	healthChecker := setupHealthChecker()

	marketCache, err := setupCache(logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup cache: %w", err)
	}

	discoveryService := setupDiscoveryService(cfg, logger, marketCache, opts)
	wsPool := setupWebSocketPool(cfg, logger)
	bookStore := book.NewStore(logger)
	obManager := setupOrderbookManager(logger, wsPool, bookStore)

	httpServer := setupHTTPServer(cfg, logger, healthChecker, obManager, discoveryService)

	store, err := setupStorage(cfg, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup storage: %w", err)
	}

	metadataClient := markets.NewCachedMetadataClient(markets.NewMetadataClient(), marketCache)

	parityDetector := parity.NewDetector(
		bookStore,
		parity.FeeConfig{TakerFeeRate: money.NewFromFloat(cfg.ArbTakerFee)},
		parity.TradingConfig{
			MinEdge:             money.NewFromFloat(cfg.MinEdge),
			MaxNotionalPerTrade: money.NewFromFloat(cfg.MaxNotionalPerTrade),
			SlippageBuffer:      money.NewFromFloat(cfg.SlippageBuffer),
		},
		logger,
	)
	convergenceDetector := convergence.NewDetector(bookStore, money.NewFromFloat(cfg.ConvergenceThreshold))

	positionLedger := ledger.NewLedger(cfg.MaxOpenPairs, logger)

	riskGovernor := risk.NewGovernor(risk.Config{
		MaxDailyLoss:            money.NewFromFloat(cfg.MaxDailyLoss),
		MaxPositionValue:        money.NewFromFloat(cfg.MaxPositionValue),
		MaxConsecutiveFailures:  cfg.MaxConsecutiveFailures,
		KillSwitchLossThreshold: money.NewFromFloat(cfg.KillSwitchLossThreshold),
		CooldownMillis:          cfg.CooldownMillis,
		MaxNotionalPerTrade:     money.NewFromFloat(cfg.MaxNotionalPerTrade),
	}, positionLedger, logger)

	if err := setupBalanceProbe(ctx, cfg, logger, riskGovernor); err != nil {
		logger.Warn("balance-probe-disabled", zap.Error(err))
	}

	executor, err := setupExecutor(cfg, logger, positionLedger, metadataClient)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup executor: %w", err)
	}

	return &App{
		cfg:                 cfg,
		logger:              logger,
		healthChecker:       healthChecker,
		httpServer:          httpServer,
		discoveryService:    discoveryService,
		wsPool:              wsPool,
		obManager:           obManager,
		bookStore:           bookStore,
		parityDetector:      parityDetector,
		convergenceDetector: convergenceDetector,
		ledger:              positionLedger,
		riskGovernor:        riskGovernor,
		executor:            executor,
		metadataClient:      metadataClient,
		storage:             store,
		ctx:                 ctx,
		cancel:              cancel,
	}, nil
}

func setupHealthChecker() *healthprobe.HealthChecker {
	return healthprobe.New()
}

func setupHTTPServer(
	cfg *config.Config,
	logger *zap.Logger,
	healthChecker *healthprobe.HealthChecker,
	obManager *orderbook.Manager,
	discoveryService *discovery.Service,
) *httpserver.Server {
	return httpserver.New(&httpserver.Config{
		Port:             cfg.HTTPPort,
		Logger:           logger,
		HealthChecker:    healthChecker,
		OrderbookManager: obManager,
		DiscoveryService: discoveryService,
	})
}

func setupCache(logger *zap.Logger) (cache.Cache, error) {
	return cache.NewRistrettoCache(&cache.RistrettoConfig{
		NumCounters: 10000,
		MaxCost:     1000,
		BufferItems: 64,
		Logger:      logger,
	})
}

func setupDiscoveryService(cfg *config.Config, logger *zap.Logger, marketCache cache.Cache, opts *Options) *discovery.Service {
	discoveryClient := discovery.NewClient(cfg.PolymarketGammaURL, logger)
	return discovery.New(&discovery.Config{
		Client:            discoveryClient,
		Cache:             marketCache,
		PollInterval:      cfg.DiscoveryPollInterval,
		MarketLimit:       cfg.DiscoveryMarketLimit,
		MaxMarketDuration: cfg.MaxMarketDuration,
		Logger:            logger,
		SingleMarket:      opts.SingleMarket,
	})
}

func setupWebSocketPool(cfg *config.Config, logger *zap.Logger) *websocket.Pool {
	return websocket.NewPool(websocket.PoolConfig{
		Size:                  cfg.WSPoolSize,
		WSUrl:                 cfg.PolymarketWSURL,
		DialTimeout:           cfg.WSDialTimeout,
		PongTimeout:           cfg.WSPongTimeout,
		PingInterval:          cfg.WSPingInterval,
		ReconnectInitialDelay: cfg.WSReconnectInitialDelay,
		ReconnectMaxDelay:     cfg.WSReconnectMaxDelay,
		ReconnectBackoffMult:  cfg.WSReconnectBackoffMult,
		MessageBufferSize:     cfg.WSMessageBufferSize,
		Logger:                logger,
	})
}

func setupOrderbookManager(logger *zap.Logger, wsPool *websocket.Pool, bookStore *book.Store) *orderbook.Manager {
	return orderbook.New(&orderbook.Config{
		Logger:         logger,
		MessageChannel: wsPool.MessageChan(),
		Store:          bookStore,
	})
}

func setupStorage(cfg *config.Config, logger *zap.Logger) (storage.Storage, error) {
	if cfg.StorageMode == "postgres" {
		pgStorage, err := storage.NewPostgresStorage(&storage.PostgresConfig{
			Host:     cfg.PostgresHost,
			Port:     cfg.PostgresPort,
			User:     cfg.PostgresUser,
			Password: cfg.PostgresPass,
			Database: cfg.PostgresDB,
			SSLMode:  cfg.PostgresSSL,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create postgres storage: %w", err)
		}
		return pgStorage, nil
	}

	return storage.NewConsoleStorage(logger), nil
}

// setupBalanceProbe wires a wallet-backed balance probe into the risk
// governor when a private key and funder address are configured. Without
// them it returns an error, which the caller logs as a warning and then
// runs on without a balance probe.
func setupBalanceProbe(ctx context.Context, cfg *config.Config, logger *zap.Logger, governor *risk.Governor) error {
	if cfg.PrivateKeyHex == "" || cfg.FunderAddress == "" {
		return fmt.Errorf("no wallet configured, balance gate disabled")
	}

	rpcURL := os.Getenv("POLYGON_RPC_URL")
	if rpcURL == "" {
		rpcURL = "https://polygon-rpc.com"
	}

	walletClient, err := wallet.NewClient(rpcURL, logger)
	if err != nil {
		return fmt.Errorf("create wallet client: %w", err)
	}

	probe, err := risk.NewBalanceProbe(risk.BalanceProbeConfig{
		CheckInterval:   cfg.HealthCheckInterval,
		TradeMultiplier: 3.0,
		MinAbsolute:     cfg.MaxNotionalPerTrade,
		HysteresisRatio: 0.8,
		WalletClient:    walletClient,
		Address:         common.HexToAddress(cfg.FunderAddress),
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("create balance probe: %w", err)
	}

	governor.SetBalanceProbe(probe)
	probe.Start(ctx)

	logger.Info("balance-probe-enabled", zap.String("funder", cfg.FunderAddress))
	return nil
}

func setupExecutor(
	cfg *config.Config,
	logger *zap.Logger,
	positionLedger *ledger.Ledger,
	metadataClient *markets.CachedMetadataClient,
) (*execution.Executor, error) {
	if cfg.ExecutionMode == "dry-run" {
		logger.Info("executor-disabled-dry-run-mode",
			zap.String("mode", cfg.ExecutionMode),
			zap.String("note", "signals will be detected and logged only"))
		return nil, nil
	}

	limiter := ratelimit.New(ratelimit.Config{
		BookPerWindow:    cfg.RateLimitBookPerWindow,
		OrderPerWindow:   cfg.RateLimitOrderPerWindow,
		GeneralPerWindow: cfg.RateLimitGeneralPerWindow,
		Window:           cfg.RateLimitWindow,
	})

	orderClient, err := execution.NewOrderClient(&execution.OrderClientConfig{
		APIKey:        cfg.PolymarketAPIKey,
		Secret:        cfg.PolymarketSecret,
		Passphrase:    cfg.PolymarketPassphrase,
		PrivateKey:    cfg.PrivateKeyHex,
		Address:       cfg.FunderAddress,
		ProxyAddress:  cfg.FunderAddress,
		SignatureType: cfg.SignatureType,
		Logger:        logger,
		Limiter:       limiter,
	})
	if err != nil {
		return nil, fmt.Errorf("create order client: %w", err)
	}

	fillTracker := execution.NewFillTracker(orderClient, logger, &execution.FillTrackerConfig{
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		BackoffMult:    2.0,
		FillTimeout:    cfg.OrderTimeout,
	})

	return execution.NewExecutor(execution.Config{
		OrderClient:  orderClient,
		FillTracker:  fillTracker,
		Metadata:     metadataClient,
		Ledger:       positionLedger,
		Logger:       logger,
		OrderTimeout: cfg.OrderTimeout,
	}), nil
}
