package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"regime-trading-bot/config"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewDB creates a new database connection
func NewDB(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConns
	if poolConfig.MaxConns <= 0 {
		poolConfig.MaxConns = 10
	}
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	l := logger.With().Str("component", "Database").Logger()
	l.Info().Str("database", cfg.Database).Msg("Connected to PostgreSQL")
	return &DB{Pool: pool, logger: l}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.logger.Info().Msg("Database connection closed")
	}
}

// HealthCheck pings the pool.
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// RunMigrations executes database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	db.logger.Info().Int("count", len(migrations)).Msg("Running database migrations")
	for i, m := range migrations {
		if _, err := db.Pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	db.logger.Info().Msg("Database migrations completed")
	return nil
}

var migrations = []string{
	// Admitted trades. Ids are generated by the application.
	`CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		symbol VARCHAR(20) NOT NULL,
		side VARCHAR(5) NOT NULL,
		entry_price DECIMAL(20, 8) NOT NULL,
		quantity DECIMAL(20, 8) NOT NULL,
		stop_loss DECIMAL(20, 8),
		take_profit DECIMAL(20, 8),
		confidence DECIMAL(10, 4),
		strategy_name VARCHAR(50),
		rationale TEXT,
		opened_at TIMESTAMPTZ NOT NULL,
		status VARCHAR(10) NOT NULL DEFAULT 'OPEN',
		exit_price DECIMAL(20, 8),
		closed_at TIMESTAMPTZ,
		pnl DECIMAL(20, 8),
		realized_pnl DECIMAL(20, 8),
		pnl_percent DECIMAL(10, 4),
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_symbol_closed ON trades(symbol, closed_at DESC) WHERE status = 'CLOSED'`,
}
