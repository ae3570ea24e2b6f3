package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// Config holds database configuration
type Config struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// NewDB creates a new database connection
func NewDB(cfg Config) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	log.Printf("Successfully connected to PostgreSQL database: %s", cfg.Database)

	return &DB{Pool: pool}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		log.Println("Database connection closed")
	}
}

// RunMigrations executes database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	log.Println("Running database migrations...")

	migrations := []string{
		// Per-(user,bot) risk state: the circuit breaker persists here so a
		// restart cannot re-arm a tripped breaker within the same day.
		`CREATE TABLE IF NOT EXISTS bot_risk_state (
			id SERIAL PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			bot_id VARCHAR(64) NOT NULL,
			date VARCHAR(10) NOT NULL,
			start_equity DOUBLE PRECISION NOT NULL DEFAULT 0,
			current_equity DOUBLE PRECISION NOT NULL DEFAULT 0,
			daily_pnl DOUBLE PRECISION NOT NULL DEFAULT 0,
			daily_pnl_percent DOUBLE PRECISION NOT NULL DEFAULT 0,
			blocked BOOLEAN NOT NULL DEFAULT FALSE,
			block_reason TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(user_id, bot_id)
		)`,

		// Per-(user,bot) strategy configuration, stored as a JSON document.
		`CREATE TABLE IF NOT EXISTS bot_strategy_config (
			id SERIAL PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			bot_id VARCHAR(64) NOT NULL,
			config JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(user_id, bot_id)
		)`,

		// Executed trade audit, written by the cycle driver after a fill.
		`CREATE TABLE IF NOT EXISTS executed_trades (
			id SERIAL PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			bot_id VARCHAR(64) NOT NULL,
			symbol VARCHAR(32) NOT NULL,
			direction VARCHAR(8) NOT NULL,
			volume_units BIGINT NOT NULL,
			execution_price DOUBLE PRECISION NOT NULL,
			order_id VARCHAR(64) NOT NULL,
			comment TEXT NOT NULL DEFAULT '',
			executed_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_executed_trades_user_bot
			ON executed_trades(user_id, bot_id, executed_at DESC)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	log.Println("Database migrations completed")
	return nil
}
