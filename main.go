package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"ict-analyzer/config"
	"ict-analyzer/internal/api"
	"ict-analyzer/internal/binance"
	"ict-analyzer/internal/cache"
	"ict-analyzer/internal/confluence"
	"ict-analyzer/internal/database"
	"ict-analyzer/internal/market"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LoggingConfig)
	logger.Info().
		Str("htf", cfg.AnalysisConfig.HTFInterval).
		Str("itf", cfg.AnalysisConfig.ITFInterval).
		Str("ltf", cfg.AnalysisConfig.LTFInterval).
		Msg("starting ict-analyzer")

	// Confluence engine: fail fast on bad detector thresholds.
	engine, err := confluence.New(confluence.Config{
		PipSize:             cfg.AnalysisConfig.PipSize,
		SwingLength:         cfg.AnalysisConfig.SwingLength,
		ATRPeriod:           cfg.AnalysisConfig.ATRPeriod,
		MinATRMultiple:      cfg.AnalysisConfig.MinATRMultiple,
		MinBodyRatio:        cfg.AnalysisConfig.MinBodyRatio,
		MinGapPips:          cfg.AnalysisConfig.MinGapPips,
		MinDisplacementPips: cfg.AnalysisConfig.MinDisplacementPips,
		OrderBlockLookback:  cfg.AnalysisConfig.OrderBlockLookback,
		CloseMitigation:     cfg.AnalysisConfig.CloseMitigation,
		TolerancePips:       cfg.AnalysisConfig.TolerancePips,
		MinTouches:          cfg.AnalysisConfig.MinTouches,
		SweepConfirmation:   cfg.AnalysisConfig.SweepConfirmation,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid analysis configuration")
	}

	client := binance.NewClient(cfg.BinanceConfig.BaseURL, logger)

	// Optional Redis candle cache in front of the REST client.
	var source binance.KlineSource = client
	var candleCache *cache.CandleCache
	if cfg.RedisConfig.Enabled {
		candleCache = cache.New(cache.Config{
			Address:  cfg.RedisConfig.Address,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
			PoolSize: cfg.RedisConfig.PoolSize,
		}, logger)
		source = cache.NewCachedSource(client, candleCache)
		logger.Info().Str("address", cfg.RedisConfig.Address).Msg("candle cache enabled")
	}

	// Optional Postgres journal for analysis snapshots.
	var repo *database.Repository
	var db *database.DB
	if cfg.DatabaseConfig.Enabled {
		db, err = database.NewDB(database.Config{
			Host:     cfg.DatabaseConfig.Host,
			Port:     cfg.DatabaseConfig.Port,
			User:     cfg.DatabaseConfig.User,
			Password: cfg.DatabaseConfig.Password,
			Database: cfg.DatabaseConfig.Database,
			SSLMode:  cfg.DatabaseConfig.SSLMode,
		}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("database connection failed")
		}
		migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := db.RunMigrations(migrateCtx); err != nil {
			cancel()
			logger.Fatal().Err(err).Msg("migrations failed")
		}
		cancel()
		repo = database.NewRepository(db)
		logger.Info().Msg("snapshot journal enabled")
	}

	var jwtManager *api.JWTManager
	if cfg.AuthConfig.Enabled {
		jwtManager = api.NewJWTManager(cfg.AuthConfig.JWTSecret, cfg.AuthConfig.TokenDuration)
		logger.Info().Msg("JWT auth enabled")
	}

	server := api.NewServer(
		api.ServerConfig{
			Host:           cfg.ServerConfig.Host,
			Port:           cfg.ServerConfig.Port,
			ProductionMode: cfg.ServerConfig.ProductionMode,
			AllowedOrigins: cfg.ServerConfig.Origins(),
		},
		api.AnalysisParams{
			HTFInterval: cfg.AnalysisConfig.HTFInterval,
			ITFInterval: cfg.AnalysisConfig.ITFInterval,
			LTFInterval: cfg.AnalysisConfig.LTFInterval,
			KlineLimit:  cfg.AnalysisConfig.KlineLimit,
		},
		engine, source, repo, jwtManager, logger,
	)

	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Live monitors re-run the full analysis whenever the LTF candle closes.
	var streams []*binance.Stream
	for _, symbol := range cfg.AnalysisConfig.LiveSymbols {
		stream, err := startLiveMonitor(cfg, engine, client, repo, symbol, logger)
		if err != nil {
			logger.Error().Err(err).Str("symbol", symbol).Msg("live monitor failed to start")
			continue
		}
		streams = append(streams, stream)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("error shutting down HTTP server")
	}
	for _, stream := range streams {
		stream.Stop()
	}
	if candleCache != nil {
		if err := candleCache.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing candle cache")
		}
	}
	if db != nil {
		db.Close()
	}

	logger.Info().Msg("shutdown complete")
}

// startLiveMonitor seeds a websocket kline stream from REST and re-runs
// the confluence analysis on every closed LTF candle, journaling gated
// results when a repository is configured.
func startLiveMonitor(
	cfg *config.Config,
	engine *confluence.Engine,
	client *binance.Client,
	repo *database.Repository,
	symbol string,
	logger zerolog.Logger,
) (*binance.Stream, error) {
	params := cfg.AnalysisConfig
	intervals := []string{params.HTFInterval, params.ITFInterval, params.LTFInterval}

	var stream *binance.Stream
	onWindow := func(interval string, _ []market.Candle) {
		if interval != params.LTFInterval {
			return
		}
		htf := stream.Window(params.HTFInterval)
		itf := stream.Window(params.ITFInterval)
		ltf := stream.Window(params.LTFInterval)
		if htf == nil || itf == nil || ltf == nil {
			return
		}
		result, err := engine.Analyze(
			confluence.Frame{Timeframe: confluence.Timeframe(params.HTFInterval), Candles: htf},
			confluence.Frame{Timeframe: confluence.Timeframe(params.ITFInterval), Candles: itf},
			confluence.Frame{Timeframe: confluence.Timeframe(params.LTFInterval), Candles: ltf},
		)
		if err != nil {
			logger.Error().Err(err).Str("symbol", symbol).Msg("live analysis failed")
			return
		}
		event := logger.Info().
			Str("symbol", symbol).
			Float64("score", result.Score).
			Str("htf_bias", string(result.HTFBias))
		if result.TradeDirection != nil {
			event = event.Str("trade_direction", string(*result.TradeDirection))
		}
		event.Msg("live analysis")

		if repo != nil && result.TradeDirection != nil {
			direction := string(*result.TradeDirection)
			snapshot := &database.AnalysisSnapshot{
				Symbol:         symbol,
				HTFInterval:    params.HTFInterval,
				ITFInterval:    params.ITFInterval,
				LTFInterval:    params.LTFInterval,
				HTFBias:        string(result.HTFBias),
				ITFAlignment:   result.ITFAlignment,
				LTFTrigger:     result.LTFTrigger,
				Score:          result.Score,
				TradeDirection: &direction,
				Reasoning:      result.Reasoning,
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := repo.SaveSnapshot(ctx, snapshot); err != nil {
				logger.Error().Err(err).Str("symbol", symbol).Msg("failed to journal live snapshot")
			}
		}
	}

	stream = binance.NewStream(cfg.BinanceConfig.WebsocketURL, symbol, intervals, params.KlineLimit, onWindow, logger)

	// Seed every window from REST so the first closed candle already has
	// full history behind it.
	seedCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, interval := range intervals {
		candles, err := client.GetKlines(seedCtx, symbol, interval, params.KlineLimit)
		if err != nil {
			return nil, fmt.Errorf("seed %s %s: %w", symbol, interval, err)
		}
		stream.Seed(interval, candles)
	}

	stream.Start()
	logger.Info().Str("symbol", symbol).Msg("live monitor started")
	return stream, nil
}

func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.JSONFormat {
		logger = zerolog.New(os.Stdout)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return logger.Level(level).With().Timestamp().Logger()
}
