package risk

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"institutional-trading-bot/internal/events"
)

// DailyState is the circuit breaker's persisted state. It survives process
// restarts so a tripped breaker cannot be re-armed within the same day.
type DailyState struct {
	Date            string  `json:"date"` // calendar date, YYYY-MM-DD UTC
	StartEquity     float64 `json:"start_equity"`
	CurrentEquity   float64 `json:"current_equity"`
	DailyPnL        float64 `json:"daily_pnl"`
	DailyPnLPercent float64 `json:"daily_pnl_percent"`
	Blocked         bool    `json:"blocked"`
	BlockReason     string  `json:"block_reason,omitempty"`
}

// StateStore persists breaker state externally. Implemented by the database
// repository; a nil store keeps the breaker memory-only.
type StateStore interface {
	LoadRiskState(ctx context.Context, userID, botID string) (*DailyState, error)
	SaveRiskState(ctx context.Context, userID, botID string, state DailyState) error
}

// TradingWindow optionally restricts order opening to a minute-of-day range
// (UTC). May wrap midnight.
type TradingWindow struct {
	StartMinute int `json:"start_minute"`
	EndMinute   int `json:"end_minute"`
}

// Contains reports whether the timestamp falls inside the window.
func (w TradingWindow) Contains(ts time.Time) bool {
	minute := ts.UTC().Hour()*60 + ts.UTC().Minute()
	if w.StartMinute <= w.EndMinute {
		return minute >= w.StartMinute && minute < w.EndMinute
	}
	return minute >= w.StartMinute || minute < w.EndMinute
}

// DailyBreakerConfig holds circuit breaker configuration.
type DailyBreakerConfig struct {
	Enabled             bool           `json:"enabled"`
	MaxDailyLossPercent float64        `json:"max_daily_loss_percent"`
	MaxOpenTrades       int            `json:"max_open_trades"`
	TradingWindow       *TradingWindow `json:"trading_window,omitempty"`
}

// DefaultDailyBreakerConfig returns safe defaults.
func DefaultDailyBreakerConfig() DailyBreakerConfig {
	return DailyBreakerConfig{
		Enabled:             true,
		MaxDailyLossPercent: 5.0,
		MaxOpenTrades:       3,
	}
}

// DailyBreaker trips a hard trading-disabled flag once the configured daily
// loss threshold is crossed, and resets exactly once per calendar day. One
// breaker exists per (user, bot) pair.
type DailyBreaker struct {
	cfg    DailyBreakerConfig
	userID string
	botID  string
	store  StateStore
	bus    *events.Bus
	state  DailyState
	mu     sync.RWMutex
}

// NewDailyBreaker creates a breaker. store and bus may be nil.
func NewDailyBreaker(cfg DailyBreakerConfig, userID, botID string, store StateStore, bus *events.Bus) *DailyBreaker {
	return &DailyBreaker{
		cfg:    cfg,
		userID: userID,
		botID:  botID,
		store:  store,
		bus:    bus,
	}
}

// Restore loads persisted state. State from an earlier calendar date is
// discarded; same-day state (including a tripped flag) is kept, so a restart
// cannot re-arm a tripped breaker.
func (b *DailyBreaker) Restore(ctx context.Context, now time.Time) error {
	if b.store == nil {
		return nil
	}
	persisted, err := b.store.LoadRiskState(ctx, b.userID, b.botID)
	if err != nil {
		return fmt.Errorf("failed to load risk state: %w", err)
	}
	if persisted == nil {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if persisted.Date == dateKey(now) {
		b.state = *persisted
	}
	return nil
}

// Update recomputes daily P&L from the day's starting equity and trips the
// breaker when the loss limit is crossed. The calendar rollover happens here,
// exactly once per observed date change.
func (b *DailyBreaker) Update(ctx context.Context, equity float64, now time.Time) {
	if math.IsNaN(equity) || math.IsInf(equity, 0) || equity < 0 {
		return
	}

	b.mu.Lock()

	today := dateKey(now)
	if b.state.Date != today {
		wasBlocked := b.state.Blocked
		b.state = DailyState{
			Date:          today,
			StartEquity:   equity,
			CurrentEquity: equity,
		}
		b.persistLocked(ctx)
		b.mu.Unlock()

		if wasBlocked && b.bus != nil {
			b.bus.PublishBreakerReset(b.userID, b.botID, "calendar date rollover")
		}
		return
	}

	b.state.CurrentEquity = equity
	if b.state.StartEquity > 0 {
		b.state.DailyPnL = equity - b.state.StartEquity
		b.state.DailyPnLPercent = (b.state.DailyPnL / b.state.StartEquity) * 100
	}

	tripped := false
	var reason string
	if b.cfg.Enabled && !b.state.Blocked && b.state.DailyPnLPercent <= -b.cfg.MaxDailyLossPercent {
		reason = fmt.Sprintf("daily loss %.2f%% crossed limit %.2f%%",
			b.state.DailyPnLPercent, b.cfg.MaxDailyLossPercent)
		b.state.Blocked = true
		b.state.BlockReason = reason
		b.persistLocked(ctx)
		tripped = true
	}
	pnlPercent := b.state.DailyPnLPercent
	b.mu.Unlock()

	if tripped {
		log.Printf("[Breaker] %s/%s tripped: %s", b.userID, b.botID, reason)
		if b.bus != nil {
			b.bus.PublishBreakerTripped(b.userID, b.botID, reason, pnlPercent)
		}
	}
}

// CanOpen reports whether a new order may be opened right now. The open-trade
// cap and the optional trading window are enforced before the breaker flag.
func (b *DailyBreaker) CanOpen(openTrades int, now time.Time) (bool, string) {
	if !b.cfg.Enabled {
		return true, ""
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.cfg.MaxOpenTrades > 0 && openTrades >= b.cfg.MaxOpenTrades {
		return false, fmt.Sprintf("max open trades reached (%d/%d)", openTrades, b.cfg.MaxOpenTrades)
	}
	if w := b.cfg.TradingWindow; w != nil && !w.Contains(now) {
		return false, "outside trading window"
	}
	if b.state.Blocked {
		return false, b.state.BlockReason
	}
	return true, ""
}

// ForceReset clears the blocked flag. This is the administrative escape
// hatch; normal resets only happen on date rollover.
func (b *DailyBreaker) ForceReset(ctx context.Context, now time.Time) {
	b.mu.Lock()
	b.state.Blocked = false
	b.state.BlockReason = ""
	b.state.Date = dateKey(now)
	b.persistLocked(ctx)
	b.mu.Unlock()

	log.Printf("[Breaker] %s/%s manually reset", b.userID, b.botID)
	if b.bus != nil {
		b.bus.PublishBreakerReset(b.userID, b.botID, "manual reset")
	}
}

// State returns a copy of the current daily state.
func (b *DailyBreaker) State() DailyState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// persistLocked saves state through the store, logging but not propagating
// failures. Caller holds b.mu.
func (b *DailyBreaker) persistLocked(ctx context.Context) {
	if b.store == nil {
		return
	}
	if err := b.store.SaveRiskState(ctx, b.userID, b.botID, b.state); err != nil {
		log.Printf("[Breaker] failed to persist state for %s/%s: %v", b.userID, b.botID, err)
	}
}

func dateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
