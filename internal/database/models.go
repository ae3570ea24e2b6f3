package database

import (
	"time"
)

// RiskStateRecord mirrors one row of bot_risk_state.
type RiskStateRecord struct {
	ID              int       `json:"id"`
	UserID          string    `json:"user_id"`
	BotID           string    `json:"bot_id"`
	Date            string    `json:"date"`
	StartEquity     float64   `json:"start_equity"`
	CurrentEquity   float64   `json:"current_equity"`
	DailyPnL        float64   `json:"daily_pnl"`
	DailyPnLPercent float64   `json:"daily_pnl_percent"`
	Blocked         bool      `json:"blocked"`
	BlockReason     string    `json:"block_reason"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// StrategyConfigRecord mirrors one row of bot_strategy_config. Config is the
// raw JSON document; callers unmarshal into their own config types.
type StrategyConfigRecord struct {
	ID        int       `json:"id"`
	UserID    string    `json:"user_id"`
	BotID     string    `json:"bot_id"`
	Config    []byte    `json:"config"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ExecutedTradeRecord mirrors one row of executed_trades.
type ExecutedTradeRecord struct {
	ID             int       `json:"id"`
	UserID         string    `json:"user_id"`
	BotID          string    `json:"bot_id"`
	Symbol         string    `json:"symbol"`
	Direction      string    `json:"direction"`
	VolumeUnits    int64     `json:"volume_units"`
	ExecutionPrice float64   `json:"execution_price"`
	OrderID        string    `json:"order_id"`
	Comment        string    `json:"comment"`
	ExecutedAt     time.Time `json:"executed_at"`
}
