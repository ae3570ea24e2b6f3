package strategy

import (
	"fmt"
	"math"
	"sort"
	"time"

	"institutional-trading-bot/internal/broker"
)

// AmplitudeConfig configures the candle-amplitude expansion strategy.
type AmplitudeConfig struct {
	Symbol         string
	Interval       string
	CandleMinutes  float64 // duration of one candle on the interval
	MinHistory     int     // closed candles required for the statistics
	StopLossPips   float64
	TakeProfitPips float64
}

// AmplitudeStrategy estimates the final amplitude of the forming candle from
// historical amplitude statistics and signals in the direction of the current
// move when an expansion is probable. The last candle in the window is
// treated as in progress; everything before it feeds the statistics.
type AmplitudeStrategy struct {
	config *AmplitudeConfig
	now    func() time.Time
}

func NewAmplitudeStrategy(config *AmplitudeConfig) *AmplitudeStrategy {
	if config.CandleMinutes <= 0 {
		config.CandleMinutes = 15
	}
	if config.MinHistory <= 0 {
		config.MinHistory = 20
	}
	return &AmplitudeStrategy{config: config, now: time.Now}
}

func (s *AmplitudeStrategy) Name() string {
	return fmt.Sprintf("Amplitude-%s-%s", s.config.Symbol, s.config.Interval)
}

func (s *AmplitudeStrategy) Symbol() string {
	return s.config.Symbol
}

func (s *AmplitudeStrategy) Interval() string {
	return s.config.Interval
}

func (s *AmplitudeStrategy) Evaluate(candles []broker.Candle, currentPrice float64) (*Signal, error) {
	if len(candles) < s.config.MinHistory+1 {
		return NoSignal(), nil
	}

	current := candles[len(candles)-1]
	currentAmp := current.High - current.Low
	if currentAmp <= 0 || currentPrice == current.Open {
		return NoSignal(), nil
	}

	mean := meanAmplitude(candles[:len(candles)-1])
	if mean <= 0 {
		return NoSignal(), nil
	}

	elapsed := s.now().Sub(current.OpenTime).Minutes()
	timeRatio := clamp(elapsed/s.config.CandleMinutes, 0, 1)

	// The younger the candle, the more room its range has left.
	var growthFactor float64
	switch {
	case timeRatio < 0.33:
		growthFactor = 1.8
	case timeRatio < 0.67:
		growthFactor = 1.4
	case timeRatio < 0.83:
		growthFactor = 1.2
	default:
		growthFactor = 1.15
	}
	fromTime := currentAmp * growthFactor

	// Historical estimate: a candle already far beyond its peers barely grows,
	// a quiet one tends back toward the mean.
	var fromHistory float64
	switch ratio := currentAmp / mean; {
	case ratio > 1.5:
		fromHistory = currentAmp * 1.05
	case ratio < 0.5:
		fromHistory = mean * 0.8
	default:
		fromHistory = mean
	}

	// Extrapolate the move from the open through the remaining candle time
	// and widen the range if the projected close escapes it.
	projectedClose := currentPrice + (currentPrice-current.Open)*(1-timeRatio)
	var fromProjection float64
	switch {
	case projectedClose > current.High:
		fromProjection = (projectedClose - current.Low) * 1.1
	case projectedClose < current.Low:
		fromProjection = (current.High - projectedClose) * 1.1
	default:
		fromProjection = currentAmp * 1.05
	}

	predicted := 0.3*fromTime + 0.3*fromHistory + 0.4*fromProjection
	growthPotential := (predicted - currentAmp) / currentAmp

	pricePosition := (currentPrice - current.Low) / currentAmp
	positionFactor := 1 - math.Abs(pricePosition-0.5)*2

	var timeFactor float64
	switch {
	case timeRatio > 0.83:
		timeFactor = 0.85
	case timeRatio > 0.67:
		timeFactor = 0.65
	default:
		timeFactor = 0.45
	}

	projectionFactor := 0.5
	if projectedClose > current.High || projectedClose < current.Low {
		projectionFactor = 0.9
	}

	expansionProb := clamp(growthPotential, 0, 1)*0.25 +
		positionFactor*0.20 +
		timeFactor*0.30 +
		projectionFactor*0.25

	if expansionProb <= 0.6 {
		return NoSignal(), nil
	}

	sigType, dir := SignalBuy, broker.DirectionBuy
	if currentPrice < current.Open {
		sigType, dir = SignalSell, broker.DirectionSell
	}

	reason := fmt.Sprintf("amplitude expansion expected: current %.5f predicted %.5f (p=%.2f)",
		currentAmp, predicted, expansionProb)
	if p90 := AmplitudePercentile(candles[:len(candles)-1], 90); p90 > 0 && predicted >= p90 {
		reason += ", outside the 90th percentile of recent ranges"
	}

	return &Signal{
		Type:           sigType,
		Symbol:         s.config.Symbol,
		Direction:      dir,
		Confidence:     math.Min(0.95, 0.40+timeRatio*0.60),
		StopLossPips:   s.config.StopLossPips,
		TakeProfitPips: s.config.TakeProfitPips,
		Reason:         reason,
		Timestamp:      time.Now(),
	}, nil
}

// meanAmplitude averages the high-low range of the candles, skipping
// zero-range ones.
func meanAmplitude(candles []broker.Candle) float64 {
	var sum float64
	var n int
	for _, c := range candles {
		if amp := c.High - c.Low; amp > 0 {
			sum += amp
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// AmplitudePercentile returns the value below which the given share of
// candle amplitudes falls, interpolating between neighbors.
func AmplitudePercentile(candles []broker.Candle, percentile float64) float64 {
	var amps []float64
	for _, c := range candles {
		if amp := c.High - c.Low; amp > 0 {
			amps = append(amps, amp)
		}
	}
	if len(amps) == 0 {
		return 0
	}
	sort.Float64s(amps)

	index := (percentile / 100) * float64(len(amps)-1)
	lower := math.Floor(index)
	upper := math.Ceil(index)
	if lower == upper {
		return amps[int(index)]
	}
	return amps[int(lower)]*(upper-index) + amps[int(upper)]*(index-lower)
}
