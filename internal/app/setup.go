package app

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/FewZ2372/polymarket-bot/internal/aggregator"
	"github.com/FewZ2372/polymarket-bot/internal/circuitbreaker"
	"github.com/FewZ2372/polymarket-bot/internal/detector"
	"github.com/FewZ2372/polymarket-bot/internal/execution"
	"github.com/FewZ2372/polymarket-bot/internal/feed"
	"github.com/FewZ2372/polymarket-bot/internal/position"
	"github.com/FewZ2372/polymarket-bot/internal/ranker"
	"github.com/FewZ2372/polymarket-bot/internal/risk"
	"github.com/FewZ2372/polymarket-bot/internal/storage"
	"github.com/FewZ2372/polymarket-bot/pkg/cache"
	"github.com/FewZ2372/polymarket-bot/pkg/config"
	"github.com/FewZ2372/polymarket-bot/pkg/healthprobe"
	"github.com/FewZ2372/polymarket-bot/pkg/httpserver"
	"github.com/FewZ2372/polymarket-bot/pkg/wallet"
	"github.com/FewZ2372/polymarket-bot/pkg/websocket"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const connectTimeout = 15 * time.Second

// New creates a new application instance. On error every resource opened so far is released.
func New(cfg *config.Config, logger *zap.Logger, opts *Options) (a *App, err error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if opts == nil {
		opts = &Options{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	a = &App{
		cfg:           cfg,
		logger:        logger,
		healthChecker: setupHealthChecker(),
		ctx:           ctx,
		cancel:        cancel,
	}
	defer func() {
		if err != nil {
			a.release()
			a = nil
		}
	}()

	connectCtx, connectCancel := context.WithTimeout(ctx, connectTimeout)
	defer connectCancel()

	a.cache, err = setupCache(logger)
	if err != nil {
		return nil, fmt.Errorf("setup cache: %w", err)
	}

	if cfg.PriceStreamEnabled && !opts.ScanOnly {
		a.wsManager, a.priceStream, err = setupPriceStream(cfg, logger, a.cache)
		if err != nil {
			return nil, fmt.Errorf("setup price stream: %w", err)
		}
	}

	provider, err := setupSnapshotProvider(cfg, logger, a.cache, a.priceStream)
	if err != nil {
		return nil, fmt.Errorf("setup snapshot provider: %w", err)
	}

	pcfg, err := setupScanStages(cfg, logger)
	if err != nil {
		return nil, err
	}
	pcfg.Snapshots = provider
	pcfg.Health = a.healthChecker
	pcfg.Timeout = cfg.ScanTimeout
	pcfg.Logger = logger

	if opts.ScanOnly {
		a.pipeline, err = NewPipeline(pcfg)
		if err != nil {
			return nil, fmt.Errorf("setup pipeline: %w", err)
		}
		return a, nil
	}

	a.storage, err = setupStorage(connectCtx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("setup storage: %w", err)
	}

	var store risk.StateStore
	store, a.stateCloser, err = setupStateStore(connectCtx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("setup risk state store: %w", err)
	}

	a.riskManager, err = setupRiskManager(connectCtx, cfg, logger, store)
	if err != nil {
		return nil, fmt.Errorf("setup risk manager: %w", err)
	}

	a.positions, err = setupPositionManager(cfg, logger, provider, a.riskManager, a.storage)
	if err != nil {
		return nil, fmt.Errorf("setup position manager: %w", err)
	}
	if loader, ok := a.storage.(storage.OpenPositionLoader); ok {
		if err := restoreOpenPositions(connectCtx, loader, a.riskManager, a.positions, logger); err != nil {
			return nil, err
		}
	}

	executor, err := setupExecutor(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("setup executor: %w", err)
	}

	// The pool delivers results to the pipeline, which submits to the pool.
	var pipeline *Pipeline
	a.pool, err = execution.NewPool(&execution.PoolConfig{
		Workers:   cfg.ExecutionWorkers,
		QueueSize: cfg.ExecutionQueueSize,
		Executor:  executor,
		Handler:   func(ctx context.Context, res execution.Result) { pipeline.HandleResult(ctx, res) },
		Recorder:  a.storage,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("setup execution pool: %w", err)
	}

	pcfg.Store = a.storage
	pcfg.Risk = a.riskManager
	pcfg.Executions = a.pool
	pcfg.Positions = a.positions

	if cfg.ExecutionMode == "live" && cfg.BalanceGuardEnabled {
		a.balanceGuard, err = setupBalanceGuard(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("setup balance guard: %w", err)
		}
		pcfg.Guard = a.balanceGuard
	}

	pipeline, err = NewPipeline(pcfg)
	if err != nil {
		return nil, fmt.Errorf("setup pipeline: %w", err)
	}
	a.pipeline = pipeline

	a.httpServer, err = httpserver.New(&httpserver.Config{
		Port:          cfg.HTTPPort,
		AdminToken:    cfg.HTTPAdminToken,
		Logger:        logger,
		HealthChecker: a.healthChecker,
		Opportunities: pipeline,
		Positions:     a.positions,
		Risk:          a.riskManager,
	})
	if err != nil {
		return nil, fmt.Errorf("setup http server: %w", err)
	}

	return a, nil
}

func setupHealthChecker() *healthprobe.HealthChecker {
	return healthprobe.New()
}

func setupCache(logger *zap.Logger) (*cache.RistrettoCache, error) {
	return cache.NewRistrettoCache(&cache.RistrettoConfig{
		Name:        "app",
		NumCounters: 100000, // 10x expected max items
		MaxCost:     10000,
		BufferItems: 64,
		Logger:      logger,
	})
}

func setupPriceStream(
	cfg *config.Config,
	logger *zap.Logger,
	c cache.Cache,
) (*websocket.Manager, *feed.PriceStream, error) {
	ws, err := websocket.New(websocket.Config{
		URL:          cfg.PolymarketWSURL,
		DialTimeout:  cfg.WSDialTimeout,
		PingInterval: cfg.WSPingInterval,
		BufferSize:   cfg.WSMessageBufferSize,
		Reconnect: websocket.ReconnectConfig{
			InitialDelay:      cfg.WSReconnectInitialDelay,
			MaxDelay:          cfg.WSReconnectMaxDelay,
			BackoffMultiplier: cfg.WSReconnectBackoffMult,
			JitterPercent:     0.1,
		},
		Logger: logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create websocket manager: %w", err)
	}

	stream, err := feed.NewPriceStream(&feed.StreamConfig{
		Source: ws,
		Cache:  c,
		MaxAge: cfg.PriceStreamMaxAge,
		Logger: logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create price stream: %w", err)
	}
	return ws, stream, nil
}

func setupSnapshotProvider(
	cfg *config.Config,
	logger *zap.Logger,
	c cache.Cache,
	stream *feed.PriceStream,
) (*feed.SnapshotProvider, error) {
	gamma, err := feed.NewGammaClient(&feed.GammaConfig{
		BaseURL:   cfg.PolymarketGammaURL,
		RateLimit: cfg.GammaRateLimit,
		Cache:     c,
		CacheTTL:  cfg.GammaCacheTTL,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create gamma client: %w", err)
	}

	return feed.NewSnapshotProvider(&feed.ProviderConfig{
		Source:      gamma,
		Stream:      stream,
		MarketLimit: cfg.GammaMarketLimit,
		EventLimit:  cfg.GammaEventLimit,
		Logger:      logger,
	})
}

// setupScanStages builds the detector registry, aggregator and ranker.
func setupScanStages(cfg *config.Config, logger *zap.Logger) (*PipelineConfig, error) {
	lexicon := detector.DefaultLexicon()
	if cfg.DetectorLexiconFile != "" {
		var err error
		lexicon, err = detector.LoadLexicon(cfg.DetectorLexiconFile)
		if err != nil {
			return nil, fmt.Errorf("load detector lexicon: %w", err)
		}
	}

	thresholds := detector.DefaultThresholds()
	thresholds.ArbEpsilon = cfg.ArbEpsilon

	// Whale, news, quote and calendar feeds are not wired; their variants emit nothing.
	registry, err := detector.New(detector.Config{
		Env: &detector.Env{
			Thresholds: thresholds,
			Lexicon:    lexicon,
			FairValue:  lexicon,
		},
		Enabled: cfg.DetectorsEnabled,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create detector registry: %w", err)
	}

	agg, err := aggregator.New(aggregator.Config{BoostStep: cfg.AggBoostStep, BoostCap: cfg.AggBoostCap})
	if err != nil {
		return nil, fmt.Errorf("create aggregator: %w", err)
	}

	rk, err := ranker.New(ranker.Config{MinConfidence: cfg.MinConfidence, MinProfit: cfg.MinProfit})
	if err != nil {
		return nil, fmt.Errorf("create ranker: %w", err)
	}

	logger.Info("detectors-registered", zap.Strings("detectors", registry.Names()))
	return &PipelineConfig{Registry: registry, Aggregator: agg, Ranker: rk}, nil
}

func setupStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Storage, error) {
	if cfg.StorageMode == "postgres" {
		pgStorage, err := storage.NewPostgresStorage(ctx, &storage.PostgresConfig{
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

// setupStateStore returns the breaker store and, for Redis, the connection to close.
func setupStateStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (risk.StateStore, io.Closer, error) {
	if cfg.RiskStateStore != "redis" {
		return risk.NewMemoryStateStore(), nil, nil
	}

	store, err := storage.NewRedisStateStore(ctx, &storage.RedisConfig{
		Addr:       cfg.RedisAddr,
		Password:   cfg.RedisPassword,
		DB:         cfg.RedisDB,
		TLSEnabled: cfg.RedisTLS,
		Key:        cfg.RedisKey,
		Logger:     logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return store, store, nil
}

// setupRiskManager creates the risk manager and restores any persisted breaker state.
func setupRiskManager(ctx context.Context, cfg *config.Config, logger *zap.Logger, store risk.StateStore) (*risk.Manager, error) {
	m, err := risk.New(risk.Config{
		Capital:            decimal.NewFromFloat(cfg.RiskCapital),
		MaxExposurePct:     cfg.RiskMaxExposurePct,
		PerMarketCapPct:    cfg.RiskPerMarketCapPct,
		MaxOpenPositions:   cfg.RiskMaxOpenPositions,
		KellyMaxFraction:   cfg.RiskKellyMaxFraction,
		MinStake:           decimal.NewFromFloat(cfg.RiskMinStake),
		DrawdownBreakerPct: cfg.RiskDrawdownBreakerPct,
		Store:              store,
		Logger:             logger,
	})
	if err != nil {
		return nil, err
	}
	if err := m.Restore(ctx); err != nil {
		return nil, fmt.Errorf("restore risk state: %w", err)
	}
	return m, nil
}

// restoreOpenPositions reloads positions the previous run left open and reserves their cost
// again so the exposure limits count them.
func restoreOpenPositions(
	ctx context.Context,
	loader storage.OpenPositionLoader,
	riskMgr *risk.Manager,
	positions *position.Manager,
	logger *zap.Logger,
) error {
	open, err := loader.LoadOpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("load open positions: %w", err)
	}
	if len(open) == 0 {
		return nil
	}

	for _, p := range open {
		p.ReservationID = riskMgr.Adopt(p.ReservationID, p.Cost(), p.MarketIDs())
	}

	restored := positions.Restore(open)
	kept := make(map[string]struct{}, len(restored))
	for _, p := range restored {
		kept[p.ReservationID] = struct{}{}
	}
	for _, p := range open {
		if _, ok := kept[p.ReservationID]; !ok {
			riskMgr.Release(p.ReservationID)
		}
	}

	logger.Info("open-positions-reloaded",
		zap.Int("loaded", len(open)),
		zap.Int("restored", len(restored)),
		zap.String("exposure", riskMgr.State().TotalExposure.StringFixed(2)))
	return nil
}

func setupPositionManager(
	cfg *config.Config,
	logger *zap.Logger,
	prices position.PriceSource,
	settler position.Settler,
	recorder position.Recorder,
) (*position.Manager, error) {
	return position.New(&position.Config{
		Policy: position.Policy{
			TakeProfitFraction: cfg.PositionTakeProfitFraction,
			StopLossPct:        cfg.PositionStopLossPct,
			MaxHold:            cfg.MaxHold(),
		},
		Prices:   prices,
		Settler:  settler,
		Recorder: recorder,
		Interval: cfg.PositionMonitorInterval,
		Logger:   logger,
	})
}

func setupExecutor(cfg *config.Config, logger *zap.Logger) (*execution.Executor, error) {
	mode, err := execution.ParseMode(cfg.ExecutionMode)
	if err != nil {
		return nil, err
	}

	var placer execution.OrderPlacer
	if mode == execution.ModeLive {
		placer, err = execution.NewCLOBPlacer(&execution.CLOBPlacerConfig{
			BaseURL:       cfg.PolymarketCLOBURL,
			APIKey:        cfg.PolymarketAPIKey,
			Secret:        cfg.PolymarketSecret,
			Passphrase:    cfg.PolymarketPassphrase,
			PrivateKey:    cfg.PolymarketPrivateKey,
			ProxyAddress:  cfg.PolymarketProxyAddress,
			SignatureType: cfg.PolymarketSignatureType,
			Logger:        logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create clob placer: %w", err)
		}
	} else {
		placer = execution.NewDryRunPlacer(logger)
		logger.Info("executor-dry-run-mode",
			zap.String("note", "orders are simulated and no venue call is made"))
	}

	return execution.New(&execution.Config{
		Placer:         placer,
		MaxRetries:     cfg.ExecutionMaxRetries,
		InitialBackoff: cfg.ExecutionInitialBackoff,
		MaxBackoff:     cfg.ExecutionMaxBackoff,
		BackoffMult:    cfg.ExecutionBackoffMult,
		Logger:         logger,
	})
}

// setupBalanceGuard watches the wallet that funds orders: the proxy when one is configured,
// otherwise the signer.
func setupBalanceGuard(cfg *config.Config, logger *zap.Logger) (*circuitbreaker.BalanceGuard, error) {
	address, err := fundingAddress(cfg)
	if err != nil {
		return nil, err
	}

	client, err := wallet.NewClient(cfg.PolygonRPCURL, logger)
	if err != nil {
		return nil, fmt.Errorf("create wallet client: %w", err)
	}

	return circuitbreaker.New(&circuitbreaker.Config{
		CheckInterval:   cfg.BalanceGuardCheckInterval,
		TradeMultiplier: decimal.NewFromFloat(cfg.BalanceGuardTradeMultiplier),
		MinAbsolute:     decimal.NewFromFloat(cfg.BalanceGuardMinAbsolute),
		HysteresisRatio: decimal.NewFromFloat(cfg.BalanceGuardHysteresisRatio),
		Wallet:          client,
		Address:         address,
		Logger:          logger,
	})
}

func fundingAddress(cfg *config.Config) (common.Address, error) {
	if cfg.PolymarketProxyAddress != "" {
		if !common.IsHexAddress(cfg.PolymarketProxyAddress) {
			return common.Address{}, fmt.Errorf("invalid proxy address %q", cfg.PolymarketProxyAddress)
		}
		return common.HexToAddress(cfg.PolymarketProxyAddress), nil
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PolymarketPrivateKey, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("parse private key: %w", err)
	}
	pub, ok := key.Public().(*ecdsa.PublicKey)
	if !ok {
		return common.Address{}, errors.New("unexpected public key type")
	}
	return crypto.PubkeyToAddress(*pub), nil
}
