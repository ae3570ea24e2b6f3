package analysis

import (
	"time"

	"institutional-trading-bot/internal/broker"
)

// TrendDirection represents market direction for change-of-character events
// and fair value gaps.
type TrendDirection string

const (
	TrendBullish TrendDirection = "bullish"
	TrendBearish TrendDirection = "bearish"
)

// SwingPoint is a confirmed local extreme.
type SwingPoint struct {
	Price float64   `json:"price"`
	Time  time.Time `json:"time"`
}

// ChochEvent is a change-of-character: a candle close through the most recent
// swing point against the prior move.
type ChochEvent struct {
	Direction   TrendDirection `json:"direction"`
	BrokenLevel float64        `json:"broken_level"`
	Time        time.Time      `json:"time"`
}

// SwingState carries externally computed structure into the gate: confirmed
// swing highs/lows plus the latest unconsumed change-of-character, if any.
type SwingState struct {
	Highs []SwingPoint `json:"highs"`
	Lows  []SwingPoint `json:"lows"`
	Choch *ChochEvent  `json:"choch,omitempty"`
}

// SwingDetector finds fractal swing points and change-of-character breaks on
// closed candles.
type SwingDetector struct {
	lookback int // candles on each side required to confirm a swing
}

// NewSwingDetector creates a detector. lookback <= 0 falls back to 2.
func NewSwingDetector(lookback int) *SwingDetector {
	if lookback <= 0 {
		lookback = 2
	}
	return &SwingDetector{lookback: lookback}
}

// Detect scans closed candles for confirmed swing points and the latest
// change-of-character. Candles must be oldest first.
func (d *SwingDetector) Detect(candles []broker.Candle) SwingState {
	state := SwingState{}
	n := len(candles)
	if n < d.lookback*2+1 {
		return state
	}

	for i := d.lookback; i < n-d.lookback; i++ {
		if d.isSwingHigh(candles, i) {
			state.Highs = append(state.Highs, SwingPoint{Price: candles[i].High, Time: candles[i].CloseTime})
		}
		if d.isSwingLow(candles, i) {
			state.Lows = append(state.Lows, SwingPoint{Price: candles[i].Low, Time: candles[i].CloseTime})
		}
	}

	state.Choch = d.detectChoch(candles, state)
	return state
}

func (d *SwingDetector) isSwingHigh(candles []broker.Candle, i int) bool {
	h := candles[i].High
	for j := i - d.lookback; j <= i+d.lookback; j++ {
		if j == i {
			continue
		}
		if candles[j].High >= h {
			return false
		}
	}
	return true
}

func (d *SwingDetector) isSwingLow(candles []broker.Candle, i int) bool {
	l := candles[i].Low
	for j := i - d.lookback; j <= i+d.lookback; j++ {
		if j == i {
			continue
		}
		if candles[j].Low <= l {
			return false
		}
	}
	return true
}

// detectChoch looks for the latest candle closing through the most recent
// confirmed swing: above the last swing high is a bullish change, below the
// last swing low a bearish one. The newer break wins when both exist.
func (d *SwingDetector) detectChoch(candles []broker.Candle, state SwingState) *ChochEvent {
	last := candles[len(candles)-1]

	var bullish, bearish *ChochEvent
	if n := len(state.Highs); n > 0 && last.Close > state.Highs[n-1].Price {
		bullish = &ChochEvent{
			Direction:   TrendBullish,
			BrokenLevel: state.Highs[n-1].Price,
			Time:        last.CloseTime,
		}
	}
	if n := len(state.Lows); n > 0 && last.Close < state.Lows[n-1].Price {
		bearish = &ChochEvent{
			Direction:   TrendBearish,
			BrokenLevel: state.Lows[n-1].Price,
			Time:        last.CloseTime,
		}
	}

	switch {
	case bullish != nil && bearish != nil:
		// Both broken on the same candle is degenerate; no signal.
		return nil
	case bullish != nil:
		return bullish
	default:
		return bearish
	}
}
