package strategy

import (
	"institutional-trading-bot/internal/broker"
)

// ============================================================================
// MOVING AVERAGES
// ============================================================================

// CalculateSMA calculates Simple Moving Average over the last period closes
func CalculateSMA(candles []broker.Candle, period int) float64 {
	if len(candles) < period {
		return 0
	}

	sum := 0.0
	startIdx := len(candles) - period

	for i := startIdx; i < len(candles); i++ {
		sum += candles[i].Close
	}

	return sum / float64(period)
}

// CalculateEMA calculates Exponential Moving Average
func CalculateEMA(candles []broker.Candle, period int) float64 {
	if len(candles) < period {
		return 0
	}

	// Seed with SMA of the first window
	sma := CalculateSMA(candles[:period], period)
	multiplier := 2.0 / float64(period+1)

	ema := sma
	for i := period; i < len(candles); i++ {
		ema = (candles[i].Close * multiplier) + (ema * (1 - multiplier))
	}

	return ema
}

// ============================================================================
// RSI (Relative Strength Index)
// ============================================================================

// CalculateRSI calculates the Relative Strength Index
func CalculateRSI(candles []broker.Candle, period int) float64 {
	if len(candles) < period+1 {
		return 50.0 // Neutral RSI
	}

	gains := 0.0
	losses := 0.0

	for i := len(candles) - period; i < len(candles); i++ {
		change := candles[i].Close - candles[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses += -change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	if avgLoss == 0 {
		return 100.0
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// ============================================================================
// ATR (Average True Range)
// ============================================================================

// CalculateATR calculates the Average True Range
func CalculateATR(candles []broker.Candle, period int) float64 {
	if len(candles) < period+1 {
		return 0
	}

	sum := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		highLow := candles[i].High - candles[i].Low
		highClose := candles[i].High - candles[i-1].Close
		if highClose < 0 {
			highClose = -highClose
		}
		lowClose := candles[i].Low - candles[i-1].Close
		if lowClose < 0 {
			lowClose = -lowClose
		}

		tr := highLow
		if highClose > tr {
			tr = highClose
		}
		if lowClose > tr {
			tr = lowClose
		}
		sum += tr
	}

	return sum / float64(period)
}
