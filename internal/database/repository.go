package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"institutional-trading-bot/internal/risk"
)

// Repository provides data access for risk state, strategy configuration and
// trade audit rows. It implements risk.StateStore.
type Repository struct {
	db *DB
}

// NewRepository creates a repository.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// LoadRiskState retrieves the persisted breaker state for a (user, bot) pair.
// Returns nil if not found; error only for actual database errors.
func (r *Repository) LoadRiskState(ctx context.Context, userID, botID string) (*risk.DailyState, error) {
	query := `
		SELECT date, start_equity, current_equity, daily_pnl, daily_pnl_percent,
			blocked, block_reason
		FROM bot_risk_state
		WHERE user_id = $1 AND bot_id = $2
	`

	state := &risk.DailyState{}
	err := r.db.Pool.QueryRow(ctx, query, userID, botID).Scan(
		&state.Date,
		&state.StartEquity,
		&state.CurrentEquity,
		&state.DailyPnL,
		&state.DailyPnLPercent,
		&state.Blocked,
		&state.BlockReason,
	)

	if err == pgx.ErrNoRows {
		return nil, nil // Not found - caller starts fresh
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load risk state: %w", err)
	}
	return state, nil
}

// SaveRiskState upserts the breaker state for a (user, bot) pair.
func (r *Repository) SaveRiskState(ctx context.Context, userID, botID string, state risk.DailyState) error {
	query := `
		INSERT INTO bot_risk_state (
			user_id, bot_id, date, start_equity, current_equity,
			daily_pnl, daily_pnl_percent, blocked, block_reason
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id, bot_id) DO UPDATE SET
			date = EXCLUDED.date,
			start_equity = EXCLUDED.start_equity,
			current_equity = EXCLUDED.current_equity,
			daily_pnl = EXCLUDED.daily_pnl,
			daily_pnl_percent = EXCLUDED.daily_pnl_percent,
			blocked = EXCLUDED.blocked,
			block_reason = EXCLUDED.block_reason,
			updated_at = CURRENT_TIMESTAMP
	`

	_, err := r.db.Pool.Exec(ctx, query,
		userID, botID, state.Date, state.StartEquity, state.CurrentEquity,
		state.DailyPnL, state.DailyPnLPercent, state.Blocked, state.BlockReason,
	)
	if err != nil {
		return fmt.Errorf("failed to save risk state: %w", err)
	}
	return nil
}

// GetStrategyConfig retrieves the stored strategy configuration JSON.
// Returns nil if not found.
func (r *Repository) GetStrategyConfig(ctx context.Context, userID, botID string) (*StrategyConfigRecord, error) {
	query := `
		SELECT id, user_id, bot_id, config, updated_at
		FROM bot_strategy_config
		WHERE user_id = $1 AND bot_id = $2
	`

	rec := &StrategyConfigRecord{}
	err := r.db.Pool.QueryRow(ctx, query, userID, botID).Scan(
		&rec.ID, &rec.UserID, &rec.BotID, &rec.Config, &rec.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get strategy config: %w", err)
	}
	return rec, nil
}

// SaveStrategyConfig upserts the strategy configuration JSON.
func (r *Repository) SaveStrategyConfig(ctx context.Context, userID, botID string, config []byte) error {
	query := `
		INSERT INTO bot_strategy_config (user_id, bot_id, config)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, bot_id) DO UPDATE SET
			config = EXCLUDED.config,
			updated_at = CURRENT_TIMESTAMP
	`

	if _, err := r.db.Pool.Exec(ctx, query, userID, botID, config); err != nil {
		return fmt.Errorf("failed to save strategy config: %w", err)
	}
	return nil
}

// RecordExecutedTrade appends a trade audit row.
func (r *Repository) RecordExecutedTrade(ctx context.Context, rec ExecutedTradeRecord) error {
	query := `
		INSERT INTO executed_trades (
			user_id, bot_id, symbol, direction, volume_units,
			execution_price, order_id, comment
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		rec.UserID, rec.BotID, rec.Symbol, rec.Direction, rec.VolumeUnits,
		rec.ExecutionPrice, rec.OrderID, rec.Comment,
	)
	if err != nil {
		return fmt.Errorf("failed to record executed trade: %w", err)
	}
	return nil
}

// GetExecutedTrades returns the most recent trades for a (user, bot) pair.
func (r *Repository) GetExecutedTrades(ctx context.Context, userID, botID string, limit int) ([]ExecutedTradeRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, user_id, bot_id, symbol, direction, volume_units,
			execution_price, order_id, comment, executed_at
		FROM executed_trades
		WHERE user_id = $1 AND bot_id = $2
		ORDER BY executed_at DESC
		LIMIT $3
	`

	rows, err := r.db.Pool.Query(ctx, query, userID, botID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query executed trades: %w", err)
	}
	defer rows.Close()

	var out []ExecutedTradeRecord
	for rows.Next() {
		var rec ExecutedTradeRecord
		if err := rows.Scan(
			&rec.ID, &rec.UserID, &rec.BotID, &rec.Symbol, &rec.Direction,
			&rec.VolumeUnits, &rec.ExecutionPrice, &rec.OrderID, &rec.Comment,
			&rec.ExecutedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan executed trade: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
