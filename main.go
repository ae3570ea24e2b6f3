package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"institutional-trading-bot/config"
	"institutional-trading-bot/internal/analysis"
	"institutional-trading-bot/internal/api"
	"institutional-trading-bot/internal/bot"
	"institutional-trading-bot/internal/broker"
	"institutional-trading-bot/internal/cache"
	"institutional-trading-bot/internal/database"
	"institutional-trading-bot/internal/events"
	"institutional-trading-bot/internal/institutional"
	"institutional-trading-bot/internal/logging"
	"institutional-trading-bot/internal/risk"
	"institutional-trading-bot/internal/strategy"
	"institutional-trading-bot/internal/vault"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(logging.Config{
		Level:  cfg.LoggingConfig.Level,
		Output: cfg.LoggingConfig.Output,
		Pretty: cfg.LoggingConfig.Pretty,
	})
	logger.Info().Msg("logger initialized")

	eventBus := events.NewBus()
	eventBus.SubscribeAll(func(e events.Event) {
		logger.Debug().Str("event", string(e.Type)).Interface("data", e.Data).Msg("event")
	})

	// Database is optional; without it risk state is memory-only.
	var repo *database.Repository
	if cfg.DatabaseConfig.Enabled {
		db, err := database.NewDB(database.Config{
			Host:     cfg.DatabaseConfig.Host,
			Port:     cfg.DatabaseConfig.Port,
			User:     cfg.DatabaseConfig.User,
			Password: cfg.DatabaseConfig.Password,
			Database: cfg.DatabaseConfig.Database,
			SSLMode:  cfg.DatabaseConfig.SSLMode,
		})
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := db.RunMigrations(ctx); err != nil {
			cancel()
			log.Fatalf("Failed to run migrations: %v", err)
		}
		cancel()

		repo = database.NewRepository(db)
		logger.Info().Msg("database connected")
	} else {
		logger.Warn().Msg("database disabled, risk state will not survive restarts")
	}

	var redisClient *redis.Client
	if cfg.RedisConfig.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisConfig.Address,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
		})
	}
	stateCache := cache.NewStateCache(redisClient)

	// Broker credentials: Vault when enabled, config otherwise.
	apiKey := cfg.BrokerConfig.APIKey
	secretKey := cfg.BrokerConfig.SecretKey
	if cfg.VaultConfig.Enabled {
		vaultClient, err := vault.NewClient(vault.Config{
			Enabled:    cfg.VaultConfig.Enabled,
			Address:    cfg.VaultConfig.Address,
			Token:      cfg.VaultConfig.Token,
			MountPath:  cfg.VaultConfig.MountPath,
			SecretPath: cfg.VaultConfig.SecretPath,
		})
		if err != nil {
			log.Fatalf("Failed to create vault client: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		creds, err := vaultClient.GetBrokerCredentials(ctx)
		cancel()
		if err != nil {
			log.Fatalf("Failed to fetch broker credentials from vault: %v", err)
		}
		if creds != nil {
			apiKey = creds.APIKey
			secretKey = creds.SecretKey
			logger.Info().Msg("broker credentials loaded from vault")
		}
	}

	var adapter broker.Adapter
	if cfg.BrokerConfig.MockMode {
		mock := broker.NewMockAdapter(cfg.BrokerConfig.MockEquity)
		mock.SeedSpec(broker.SymbolSpec{
			Symbol:          cfg.TradingConfig.Symbol,
			PipSize:         cfg.InstitutionalConfig.PipSize,
			PipValuePerUnit: 0.0001,
			Volume: broker.VolumeSpecs{
				MinVolume:   100000,
				MaxVolume:   100000000,
				StepVolume:  100000,
				UnitsPerLot: 10000000,
			},
		})
		adapter = mock
		logger.Warn().Msg("running with mock broker adapter")
	} else {
		rest := broker.NewRestAdapter(apiKey, secretKey, cfg.BrokerConfig.BaseURL, cfg.BrokerConfig.StreamURL)
		if err := rest.Connect(); err != nil {
			log.Fatalf("Failed to start price stream: %v", err)
		}
		defer rest.Close()
		adapter = rest
	}

	registry := bot.NewRegistry()

	factory := func(userID, botID string) (*bot.Instance, error) {
		return buildInstance(cfg, userID, botID, adapter, repo, stateCache, eventBus, logger)
	}

	var jwtManager *api.JWTManager
	if cfg.AuthConfig.Enabled {
		jwtManager = api.NewJWTManager(cfg.AuthConfig.JWTSecret, cfg.AuthConfig.AccessTokenDuration)
	}

	server := api.NewServer(
		api.ServerConfig{
			Port:            cfg.ServerConfig.Port,
			Host:            cfg.ServerConfig.Host,
			AllowedOrigins:  strings.Split(cfg.ServerConfig.AllowedOrigins, ","),
			ReadTimeoutSec:  cfg.ServerConfig.ReadTimeoutSec,
			WriteTimeoutSec: cfg.ServerConfig.WriteTimeoutSec,
		},
		registry,
		factory,
		stateCache,
		eventBus,
		jwtManager,
		logger,
	)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("API server failed: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("shutting down")

	registry.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("API server shutdown error")
	}

	log.Println("Shutdown complete")
}

// buildInstance wires a full bot instance from configuration. Called by the
// API's start handler through the instance factory.
func buildInstance(
	cfg *config.Config,
	userID, botID string,
	adapter broker.Adapter,
	repo *database.Repository,
	stateCache *cache.StateCache,
	eventBus *events.Bus,
	logger zerolog.Logger,
) (*bot.Instance, error) {
	symbol := cfg.TradingConfig.Symbol
	inst := cfg.InstitutionalConfig

	windows := make([]analysis.SessionWindow, 0, len(inst.SessionWindows))
	for _, w := range inst.SessionWindows {
		windows = append(windows, analysis.SessionWindow{
			Kind:        analysis.SessionKind(w.Kind),
			StartMinute: w.StartMinute,
			EndMinute:   w.EndMinute,
		})
	}

	gate := institutional.New(symbol, institutional.Config{
		Enabled:             inst.Enabled,
		PipSize:             inst.PipSize,
		SweepBufferPips:     inst.SweepBufferPips,
		MinGapPips:          inst.MinGapPips,
		MaxTradesPerSession: inst.MaxTradesPerSession,
		Timeouts: institutional.Timeouts{
			WaitSweep:      time.Duration(inst.WaitSweepTimeoutMin) * time.Minute,
			WaitChoch:      time.Duration(inst.WaitChochTimeoutMin) * time.Minute,
			WaitFVG:        time.Duration(inst.WaitFVGTimeoutMin) * time.Minute,
			WaitMitigation: time.Duration(inst.WaitMitigationTimeoutMin) * time.Minute,
			WaitEntry:      time.Duration(inst.WaitEntryTimeoutMin) * time.Minute,
			Cooldown:       time.Duration(inst.CooldownMin) * time.Minute,
		},
		SessionWindows: windows,
	}, logger, eventBus)

	sizer := risk.NewPositionSizer(cfg.RiskConfig.RiskPercentPerTrade)

	var window *risk.TradingWindow
	if cfg.RiskConfig.TradingWindowStart >= 0 && cfg.RiskConfig.TradingWindowEnd >= 0 {
		window = &risk.TradingWindow{
			StartMinute: cfg.RiskConfig.TradingWindowStart,
			EndMinute:   cfg.RiskConfig.TradingWindowEnd,
		}
	}

	var store risk.StateStore
	if repo != nil {
		store = repo
	}
	breaker := risk.NewDailyBreaker(risk.DailyBreakerConfig{
		Enabled:             cfg.RiskConfig.BreakerEnabled,
		MaxDailyLossPercent: cfg.RiskConfig.MaxDailyLossPercent,
		MaxOpenTrades:       cfg.RiskConfig.MaxOpenTrades,
		TradingWindow:       window,
	}, userID, botID, store, eventBus)

	var trail *risk.TrailingStopManager
	if cfg.RiskConfig.TrailingEnabled {
		trail = risk.NewTrailingStopManager(risk.TrailingConfig{
			Enabled:        true,
			ActivationPips: cfg.RiskConfig.TrailingActivationPips,
			DistancePips:   cfg.RiskConfig.TrailingDistancePips,
			PipSize:        inst.PipSize,
		})
	}

	strats := buildStrategies(cfg, symbol)

	return bot.New(bot.Config{
		UserID:              userID,
		BotID:               botID,
		Symbol:              symbol,
		Timeframe:           cfg.TradingConfig.Timeframe,
		FineTimeframe:       cfg.TradingConfig.FineTimeframe,
		CandleHistory:       cfg.TradingConfig.CandleHistory,
		AnalysisInterval:    time.Duration(cfg.TradingConfig.AnalysisIntervalSec) * time.Second,
		MaintenanceInterval: time.Duration(cfg.TradingConfig.MaintenanceIntervalSec) * time.Second,
		SwingLookback:       inst.SwingLookback,
		StopLossPips:        cfg.RiskConfig.StopLossPips,
		TakeProfitPips:      cfg.RiskConfig.TakeProfitPips,
		PipSize:             inst.PipSize,
		DryRun:              cfg.TradingConfig.DryRun,
	}, bot.Deps{
		Adapter: adapter,
		Gate:    gate,
		Sizer:   sizer,
		Breaker: breaker,
		Trail:   trail,
		Strats:  strats,
		Repo:    repo,
		Cache:   stateCache,
		Bus:     eventBus,
		Logger:  logger,
	}), nil
}

func buildStrategies(cfg *config.Config, symbol string) []strategy.Strategy {
	sc := cfg.StrategyConfig
	interval := cfg.TradingConfig.Timeframe
	slPips := cfg.RiskConfig.StopLossPips
	tpPips := cfg.RiskConfig.TakeProfitPips

	var strats []strategy.Strategy
	if sc.MACrossEnabled {
		strats = append(strats, strategy.NewMACrossStrategy(&strategy.MACrossConfig{
			Symbol:         symbol,
			Interval:       interval,
			FastPeriod:     sc.MACrossFastPeriod,
			SlowPeriod:     sc.MACrossSlowPeriod,
			StopLossPips:   slPips,
			TakeProfitPips: tpPips,
		}))
	}
	if sc.ORBEnabled {
		strats = append(strats, strategy.NewORBStrategy(&strategy.ORBConfig{
			Symbol:         symbol,
			Interval:       interval,
			OpenMinute:     sc.ORBOpenMinute,
			RangeCandles:   sc.ORBRangeCandles,
			StopLossPips:   slPips,
			TakeProfitPips: tpPips,
		}))
	}
	if sc.MeanReversionEnabled {
		strats = append(strats, strategy.NewMeanReversionStrategy(&strategy.MeanReversionConfig{
			Symbol:         symbol,
			Interval:       interval,
			RSIPeriod:      sc.RSIPeriod,
			StopLossPips:   slPips,
			TakeProfitPips: tpPips,
		}))
	}
	if sc.AmplitudeEnabled {
		strats = append(strats, strategy.NewAmplitudeStrategy(&strategy.AmplitudeConfig{
			Symbol:         symbol,
			Interval:       interval,
			MinHistory:     sc.AmplitudeMinHistory,
			StopLossPips:   slPips,
			TakeProfitPips: tpPips,
		}))
	}
	return strats
}
