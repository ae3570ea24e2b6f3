package strategy

import (
	"fmt"
	"time"

	"institutional-trading-bot/internal/broker"
)

// Strategy defines the interface for stateless trading strategies. Each is a
// pure function from a candle window to a signal; no state survives between
// calls.
type Strategy interface {
	// Name returns the strategy name
	Name() string

	// Evaluate checks if conditions are met for order placement
	Evaluate(candles []broker.Candle, currentPrice float64) (*Signal, error)

	// Symbol returns the symbol this strategy trades
	Symbol() string

	// Interval returns the candle interval
	Interval() string
}

// Signal represents a trading signal
type Signal struct {
	Type           SignalType
	Symbol         string
	Direction      broker.Direction
	Confidence     float64 // 0.0 to 1.0
	StopLossPips   float64
	TakeProfitPips float64
	Reason         string
	Timestamp      time.Time
}

type SignalType string

const (
	SignalBuy  SignalType = "BUY"
	SignalSell SignalType = "SELL"
	SignalNone SignalType = "NONE"
)

// NoSignal is the neutral result for insufficient data or no setup.
func NoSignal() *Signal {
	return &Signal{Type: SignalNone}
}

// MACrossConfig configures the moving-average crossover strategy
type MACrossConfig struct {
	Symbol         string
	Interval       string
	FastPeriod     int
	SlowPeriod     int
	StopLossPips   float64
	TakeProfitPips float64
}

// MACrossStrategy signals when the fast SMA crosses the slow SMA.
type MACrossStrategy struct {
	config *MACrossConfig
}

func NewMACrossStrategy(config *MACrossConfig) *MACrossStrategy {
	if config.FastPeriod <= 0 {
		config.FastPeriod = 9
	}
	if config.SlowPeriod <= config.FastPeriod {
		config.SlowPeriod = config.FastPeriod * 3
	}
	return &MACrossStrategy{config: config}
}

func (s *MACrossStrategy) Name() string {
	return fmt.Sprintf("MACross-%s-%s", s.config.Symbol, s.config.Interval)
}

func (s *MACrossStrategy) Symbol() string {
	return s.config.Symbol
}

func (s *MACrossStrategy) Interval() string {
	return s.config.Interval
}

func (s *MACrossStrategy) Evaluate(candles []broker.Candle, currentPrice float64) (*Signal, error) {
	if len(candles) < s.config.SlowPeriod+1 {
		return NoSignal(), nil
	}

	// Compare the cross on the last two closed windows.
	fastNow := CalculateSMA(candles, s.config.FastPeriod)
	slowNow := CalculateSMA(candles, s.config.SlowPeriod)
	prev := candles[:len(candles)-1]
	fastPrev := CalculateSMA(prev, s.config.FastPeriod)
	slowPrev := CalculateSMA(prev, s.config.SlowPeriod)

	var sigType SignalType
	var dir broker.Direction
	switch {
	case fastPrev <= slowPrev && fastNow > slowNow:
		sigType = SignalBuy
		dir = broker.DirectionBuy
	case fastPrev >= slowPrev && fastNow < slowNow:
		sigType = SignalSell
		dir = broker.DirectionSell
	default:
		return NoSignal(), nil
	}

	spread := fastNow - slowNow
	if spread < 0 {
		spread = -spread
	}
	confidence := 0.5
	if slowNow > 0 {
		confidence = clamp(0.5+(spread/slowNow)*100, 0.5, 1.0)
	}

	return &Signal{
		Type:           sigType,
		Symbol:         s.config.Symbol,
		Direction:      dir,
		Confidence:     confidence,
		StopLossPips:   s.config.StopLossPips,
		TakeProfitPips: s.config.TakeProfitPips,
		Reason:         fmt.Sprintf("SMA%d crossed SMA%d (%.5f vs %.5f)", s.config.FastPeriod, s.config.SlowPeriod, fastNow, slowNow),
		Timestamp:      time.Now(),
	}, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
