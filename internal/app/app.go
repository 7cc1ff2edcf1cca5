// Package app builds the dependency graph shared by the server and the
// operator CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"regime-trading-bot/config"
	"regime-trading-bot/internal/ai/llm"
	"regime-trading-bot/internal/api"
	"regime-trading-bot/internal/audit"
	"regime-trading-bot/internal/auditlog"
	"regime-trading-bot/internal/auth"
	"regime-trading-bot/internal/binance"
	"regime-trading-bot/internal/calendar"
	"regime-trading-bot/internal/circuit"
	"regime-trading-bot/internal/database"
	"regime-trading-bot/internal/engine"
	"regime-trading-bot/internal/events"
	"regime-trading-bot/internal/kvstore"
	"regime-trading-bot/internal/ledger"
	"regime-trading-bot/internal/lock"
	"regime-trading-bot/internal/market"
	"regime-trading-bot/internal/metrics"
	"regime-trading-bot/internal/pipeline"
	"regime-trading-bot/internal/regime"
	"regime-trading-bot/internal/risk"
	"regime-trading-bot/internal/strategy"
	"regime-trading-bot/internal/vault"
)

// BrokerBinance is the vault path segment for exchange credentials.
const BrokerBinance = "binance"

// App holds every long-lived component.
type App struct {
	Config       *config.Config
	Logger       zerolog.Logger
	Store        kvstore.Store
	Ledger       *ledger.Ledger
	Locks        *lock.Manager
	Circuits     *circuit.Registry
	KillSwitch   *risk.KillSwitch
	Events       *events.EventBus
	Metrics      *metrics.Recorder
	AuditLog     auditlog.Publisher
	Orchestrator *pipeline.Orchestrator
	Scheduler    *pipeline.Scheduler
	Auth         *auth.Service
	Health       map[string]api.HealthChecker

	closers []func()
}

// Build connects the stores and wires the pipeline. Missing broker
// credentials outside mock mode are fatal and wrap vault.ErrMissingCredentials.
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	a := &App{
		Config: cfg,
		Logger: logger,
		Events: events.NewEventBus(),
		Health: make(map[string]api.HealthChecker),
	}
	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg, logger := a.Config, a.Logger
	timeout := cfg.PipelineConfig.ExternalTimeout

	if err := a.buildStores(ctx); err != nil {
		return err
	}

	a.Metrics = metrics.New()
	a.Locks = lock.NewManager(a.Store, logger)
	a.Circuits = circuit.NewRegistry(a.Store, circuit.Config{
		FailureThreshold: cfg.CircuitConfig.FailureThreshold,
		Timeout:          cfg.CircuitConfig.Timeout,
	}, logger)
	a.KillSwitch = risk.NewKillSwitch(a.Store, cfg.RiskConfig.KillSwitchKey, logger)
	a.Auth = auth.NewService(cfg.AuthConfig, logger)

	pub, err := auditlog.New(cfg.KafkaConfig, logger)
	if err != nil {
		return fmt.Errorf("decision audit log: %w", err)
	}
	a.AuditLog = pub
	a.closers = append(a.closers, func() { _ = pub.Close() })

	candles, account, err := a.marketSources(ctx)
	if err != nil {
		return err
	}

	gateDeps := risk.GateDeps{KillSwitch: a.KillSwitch}
	if cfg.CalendarConfig.Enabled {
		gateDeps.News = pipeline.GuardedNews{
			Circuits: a.Circuits,
			Source:   calendar.NewSource(cfg.CalendarConfig, a.Store, timeout, logger),
		}
	}
	if cfg.RiskConfig.AuditEnabled {
		client := llm.NewClient(llm.FromConfig(cfg.LLMConfig, timeout))
		if client.IsConfigured() {
			gateDeps.Auditor = pipeline.GuardedAuditor{Circuits: a.Circuits, Auditor: audit.New(client, logger)}
		} else {
			logger.Warn().Str("provider", string(client.GetProvider())).Msg("Audit enabled but LLM has no API key, audit skipped")
		}
	}

	strat, err := strategy.New(cfg.PipelineConfig.Strategy, scalpConfig(cfg.ScalpConfig), swingConfig(cfg.SwingConfig))
	if err != nil {
		return err
	}

	a.Orchestrator, err = pipeline.NewOrchestrator(cfg.PipelineConfig, cfg.RiskConfig, pipeline.Deps{
		Candles:    candles,
		Account:    account,
		Classifier: regime.NewClassifier(regimeConfig(cfg.RegimeConfig)),
		Engine:     engine.New(engine.DefaultConfig()),
		Strategy:   strat,
		Gate:       risk.NewGate(cfg.RiskConfig, timeout, gateDeps, logger),
		Sizer:      risk.NewSizer(cfg.RiskConfig),
		Chaos:      risk.NewChaos(cfg.ChaosConfig, nil),
		Locks:      a.Locks,
		Circuits:   a.Circuits,
		Ledger:     a.Ledger,
		Events:     a.Events,
		AuditLog:   a.AuditLog,
		Metrics:    a.Metrics,
	}, logger)
	if err != nil {
		return err
	}
	a.Scheduler = pipeline.NewScheduler(a.Orchestrator, cfg.PipelineConfig.TickInterval, logger)
	return nil
}

func (a *App) buildStores(ctx context.Context) error {
	cfg, logger := a.Config, a.Logger

	if cfg.RedisConfig.Enabled {
		rs, err := kvstore.NewRedisStore(ctx, cfg.RedisConfig, logger)
		if err != nil {
			return err
		}
		a.Store = rs
		a.Health["redis"] = rs
		a.closers = append(a.closers, func() { _ = rs.Close() })
	} else {
		logger.Warn().Msg("Redis disabled, coordination state is process-local")
		a.Store = kvstore.NewMemoryStore()
	}

	if cfg.DatabaseConfig.Enabled {
		db, err := database.NewDB(ctx, cfg.DatabaseConfig, logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, db.Close)
		if err := db.RunMigrations(ctx); err != nil {
			return err
		}
		a.Health["database"] = db
		a.Ledger = ledger.New(ledger.NewPostgresStore(db), logger)
	} else {
		logger.Warn().Msg("Database disabled, trade ledger is in memory")
		a.Ledger = ledger.New(ledger.NewMemoryStore(), logger)
	}
	return nil
}

func (a *App) marketSources(ctx context.Context) (market.CandleSource, market.AccountSource, error) {
	cfg, logger := a.Config, a.Logger
	if cfg.BinanceConfig.MockMode {
		logger.Info().Int64("seed", cfg.BinanceConfig.MockSeed).Msg("Using synthetic market data")
		mock := binance.NewMockSource(cfg.BinanceConfig.MockSeed, cfg.BinanceConfig.MockEquity)
		return mock, mock, nil
	}

	vc, err := vault.NewClient(cfg.VaultConfig, logger)
	if err != nil {
		return nil, nil, err
	}
	if vc.IsEnabled() {
		a.Health["vault"] = vc
	}
	vc.SetStatic(BrokerBinance, vault.Credentials{
		APIKey:    cfg.BinanceConfig.APIKey,
		SecretKey: cfg.BinanceConfig.SecretKey,
		Testnet:   cfg.BinanceConfig.TestNet,
	})
	creds, err := vc.Credentials(ctx, BrokerBinance)
	if err != nil {
		return nil, nil, err
	}
	src, err := binance.NewFuturesSource(creds, cfg.PipelineConfig.ExternalTimeout, logger)
	if err != nil {
		return nil, nil, err
	}
	return src, src, nil
}

func scalpConfig(c config.ScalpConfig) strategy.ScalpConfig {
	s := strategy.DefaultScalpConfig()
	s.MinScore = c.MinScore
	s.StopATRMult = c.StopATRMult
	s.TargetATRMult = c.TargetATRMult
	s.ProximityATR = c.ProximityATR
	s.StochOversold = c.StochOversold
	s.StochOverbought = c.StochOverbought
	return s
}

func regimeConfig(c config.RegimeConfig) regime.Config {
	r := regime.DefaultConfig()
	r.HurstCorrection = c.HurstCorrection
	return r
}

func swingConfig(c config.SwingConfig) strategy.SwingConfig {
	s := strategy.DefaultSwingConfig()
	s.VolumeSurgeRatio = c.VolumeSurgeRatio
	s.ADXThreshold = c.ADXThreshold
	s.RetestPercent = c.RetestPercent
	s.StopATRMult = c.StopATRMult
	s.RewardRatio = c.RewardRatio
	return s
}

// Serve runs the scheduler and, when enabled, the operator API until ctx
// is done.
func (a *App) Serve(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)

	if err := a.Scheduler.Start(ctx); err != nil {
		return err
	}
	group.Go(func() error {
		<-ctx.Done()
		a.Scheduler.Stop()
		return nil
	})

	if a.Config.ServerConfig.Enabled {
		srv := api.NewServer(a.Config.ServerConfig, api.Deps{
			Runner:     a.Scheduler,
			KillSwitch: a.KillSwitch,
			Circuits:   a.Circuits,
			Trades:     a.Ledger,
			Locks:      a.Locks,
			Events:     a.Events,
			Auth:       a.Auth,
			Metrics:    a.Metrics.Handler(),
			Health:     a.Health,
		}, a.Logger)
		group.Go(srv.Start)
		group.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(),
				time.Duration(a.Config.ServerConfig.ShutdownTimeout)*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err := group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases stores and flushes pending events, newest resource first.
func (a *App) Close() {
	if a.Events != nil {
		a.Events.Drain()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
