package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"regime-trading-bot/config"
	"regime-trading-bot/internal/app"
	"regime-trading-bot/internal/logging"
	"regime-trading-bot/internal/vault"
)

func main() {
	configPath := getEnv("CONFIG_PATH", "config.yaml")
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		bootLogger().Fatal().Err(err).Str("path", configPath).Msg("Failed to load configuration")
	}

	logger := logging.New(logging.Config{
		Level:      cfg.LoggingConfig.Level,
		Output:     cfg.LoggingConfig.Output,
		JSONFormat: cfg.LoggingConfig.JSONFormat,
	})
	logger.Info().
		Strs("symbols", cfg.PipelineConfig.Symbols).
		Str("strategy", cfg.PipelineConfig.Strategy).
		Str("timeframe", cfg.PipelineConfig.Timeframe).
		Dur("tick_interval", cfg.PipelineConfig.TickInterval).
		Bool("mock_mode", cfg.BinanceConfig.MockMode).
		Msg("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		if errors.Is(err, vault.ErrMissingCredentials) {
			logger.Error().Err(err).Msg("Broker credentials missing; set them in Vault or BINANCE_API_KEY/BINANCE_SECRET_KEY, or enable mock mode")
		} else {
			logger.Error().Err(err).Msg("Startup failed")
		}
		os.Exit(1)
	}
	defer a.Close()

	logger.Info().Msg("Pipeline service started")
	if err := a.Serve(ctx); err != nil {
		logger.Error().Err(err).Msg("Service stopped with error")
		a.Close()
		os.Exit(1)
	}
	logger.Info().Msg("Shutdown complete")
}

func bootLogger() *zerolog.Logger {
	l := logging.New(logging.Config{Level: "INFO", JSONFormat: false})
	return &l
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
