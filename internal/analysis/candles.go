package analysis

import (
	"time"

	"institutional-trading-bot/internal/broker"
)

// LastClosed returns the most recent candle whose close time is strictly in
// the past. The in-progress candle never qualifies, so callers cannot
// accidentally evaluate a sweep or mitigation against an unfinished candle.
func LastClosed(candles []broker.Candle, now time.Time) (broker.Candle, bool) {
	for i := len(candles) - 1; i >= 0; i-- {
		if candles[i].IsClosedAt(now) {
			return candles[i], true
		}
	}
	return broker.Candle{}, false
}

// ClosedOnly filters out any candle not fully closed at now, preserving order.
func ClosedOnly(candles []broker.Candle, now time.Time) []broker.Candle {
	out := make([]broker.Candle, 0, len(candles))
	for _, c := range candles {
		if c.IsClosedAt(now) {
			out = append(out, c)
		}
	}
	return out
}

// PipsBetween converts a price distance to pips for the given pip size.
func PipsBetween(a, b, pipSize float64) float64 {
	if pipSize <= 0 {
		return 0
	}
	d := a - b
	if d < 0 {
		d = -d
	}
	return d / pipSize
}
