package strategy

import (
	"fmt"
	"time"

	"institutional-trading-bot/internal/broker"
)

// MeanReversionConfig configures the RSI mean-reversion strategy.
type MeanReversionConfig struct {
	Symbol          string
	Interval        string
	RSIPeriod       int
	OversoldLevel   float64
	OverboughtLevel float64
	StopLossPips    float64
	TakeProfitPips  float64
}

// MeanReversionStrategy fades RSI extremes.
type MeanReversionStrategy struct {
	config *MeanReversionConfig
}

func NewMeanReversionStrategy(config *MeanReversionConfig) *MeanReversionStrategy {
	if config.RSIPeriod <= 0 {
		config.RSIPeriod = 14
	}
	if config.OversoldLevel <= 0 {
		config.OversoldLevel = 30
	}
	if config.OverboughtLevel <= 0 {
		config.OverboughtLevel = 70
	}
	return &MeanReversionStrategy{config: config}
}

func (s *MeanReversionStrategy) Name() string {
	return fmt.Sprintf("MeanReversion-%s-%s", s.config.Symbol, s.config.Interval)
}

func (s *MeanReversionStrategy) Symbol() string {
	return s.config.Symbol
}

func (s *MeanReversionStrategy) Interval() string {
	return s.config.Interval
}

func (s *MeanReversionStrategy) Evaluate(candles []broker.Candle, currentPrice float64) (*Signal, error) {
	if len(candles) < s.config.RSIPeriod+1 {
		return NoSignal(), nil
	}

	rsi := CalculateRSI(candles, s.config.RSIPeriod)

	switch {
	case rsi <= s.config.OversoldLevel:
		// Deeper oversold reads as stronger conviction.
		confidence := clamp(0.5+(s.config.OversoldLevel-rsi)/100, 0.5, 0.9)
		return &Signal{
			Type:           SignalBuy,
			Symbol:         s.config.Symbol,
			Direction:      broker.DirectionBuy,
			Confidence:     confidence,
			StopLossPips:   s.config.StopLossPips,
			TakeProfitPips: s.config.TakeProfitPips,
			Reason:         fmt.Sprintf("RSI %.1f below oversold %.1f", rsi, s.config.OversoldLevel),
			Timestamp:      time.Now(),
		}, nil
	case rsi >= s.config.OverboughtLevel:
		confidence := clamp(0.5+(rsi-s.config.OverboughtLevel)/100, 0.5, 0.9)
		return &Signal{
			Type:           SignalSell,
			Symbol:         s.config.Symbol,
			Direction:      broker.DirectionSell,
			Confidence:     confidence,
			StopLossPips:   s.config.StopLossPips,
			TakeProfitPips: s.config.TakeProfitPips,
			Reason:         fmt.Sprintf("RSI %.1f above overbought %.1f", rsi, s.config.OverboughtLevel),
			Timestamp:      time.Now(),
		}, nil
	}
	return NoSignal(), nil
}
