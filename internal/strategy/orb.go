package strategy

import (
	"fmt"
	"time"

	"institutional-trading-bot/internal/broker"
)

// ORBConfig configures the opening-range breakout strategy.
type ORBConfig struct {
	Symbol         string
	Interval       string
	OpenMinute     int // minute-of-day (UTC) the session opens
	RangeCandles   int // candles that make up the opening range
	StopLossPips   float64
	TakeProfitPips float64
}

// ORBStrategy signals when price breaks out of the session's opening range.
type ORBStrategy struct {
	config *ORBConfig
}

func NewORBStrategy(config *ORBConfig) *ORBStrategy {
	if config.RangeCandles <= 0 {
		config.RangeCandles = 4
	}
	return &ORBStrategy{config: config}
}

func (s *ORBStrategy) Name() string {
	return fmt.Sprintf("ORB-%s-%s", s.config.Symbol, s.config.Interval)
}

func (s *ORBStrategy) Symbol() string {
	return s.config.Symbol
}

func (s *ORBStrategy) Interval() string {
	return s.config.Interval
}

func (s *ORBStrategy) Evaluate(candles []broker.Candle, currentPrice float64) (*Signal, error) {
	openIdx := s.findOpenIndex(candles)
	if openIdx < 0 || openIdx+s.config.RangeCandles > len(candles) {
		return NoSignal(), nil
	}

	rangeHigh := candles[openIdx].High
	rangeLow := candles[openIdx].Low
	for i := openIdx + 1; i < openIdx+s.config.RangeCandles; i++ {
		if candles[i].High > rangeHigh {
			rangeHigh = candles[i].High
		}
		if candles[i].Low < rangeLow {
			rangeLow = candles[i].Low
		}
	}

	// Range must be complete before a breakout counts.
	if len(candles) <= openIdx+s.config.RangeCandles {
		return NoSignal(), nil
	}

	switch {
	case currentPrice > rangeHigh:
		return &Signal{
			Type:           SignalBuy,
			Symbol:         s.config.Symbol,
			Direction:      broker.DirectionBuy,
			Confidence:     0.6,
			StopLossPips:   s.config.StopLossPips,
			TakeProfitPips: s.config.TakeProfitPips,
			Reason:         fmt.Sprintf("price %.5f broke above opening range high %.5f", currentPrice, rangeHigh),
			Timestamp:      time.Now(),
		}, nil
	case currentPrice < rangeLow:
		return &Signal{
			Type:           SignalSell,
			Symbol:         s.config.Symbol,
			Direction:      broker.DirectionSell,
			Confidence:     0.6,
			StopLossPips:   s.config.StopLossPips,
			TakeProfitPips: s.config.TakeProfitPips,
			Reason:         fmt.Sprintf("price %.5f broke below opening range low %.5f", currentPrice, rangeLow),
			Timestamp:      time.Now(),
		}, nil
	}
	return NoSignal(), nil
}

// findOpenIndex locates the most recent candle at or after the configured
// session open.
func (s *ORBStrategy) findOpenIndex(candles []broker.Candle) int {
	for i := len(candles) - 1; i >= 0; i-- {
		ts := candles[i].OpenTime.UTC()
		minute := ts.Hour()*60 + ts.Minute()
		if minute == s.config.OpenMinute {
			return i
		}
	}
	return -1
}
