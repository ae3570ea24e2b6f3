package analysis

import (
	"time"

	"institutional-trading-bot/internal/broker"
)

// Gap is a three-candle fair value gap.
type Gap struct {
	Direction       TrendDirection `json:"direction"`
	High            float64        `json:"high"`
	Low             float64        `json:"low"`
	Midpoint        float64        `json:"midpoint"`
	SizePips        float64        `json:"size_pips"`
	FormedAt        time.Time      `json:"formed_at"`
	Valid           bool           `json:"valid"`
	Mitigated       bool           `json:"mitigated"`
	MitigatedAt     time.Time      `json:"mitigated_at,omitempty"`
	MitigationPrice float64        `json:"mitigation_price,omitempty"`
}

// GapState holds at most one active gap per symbol. A new gap cannot be
// tracked while an active, unmitigated one exists.
type GapState struct {
	Active *Gap
}

// GapTracker detects fair value gaps on the finer timeframe and tracks the
// single active gap through mitigation or invalidation.
type GapTracker struct {
	pipSize    float64
	minGapPips float64
}

// NewGapTracker creates a tracker. minGapPips below zero falls back to 1.
func NewGapTracker(pipSize, minGapPips float64) *GapTracker {
	if minGapPips <= 0 {
		minGapPips = 1
	}
	return &GapTracker{pipSize: pipSize, minGapPips: minGapPips}
}

// Detect scans the three most recent closed candles for a gap in the expected
// direction. A bullish gap requires candle-1 high below candle-3 low; bearish
// the mirror. No-op while a gap is already active.
func (t *GapTracker) Detect(state GapState, candles []broker.Candle, expected TrendDirection) GapState {
	if state.Active != nil {
		return state
	}
	if len(candles) < 3 {
		return state
	}

	c1 := candles[len(candles)-3]
	c2 := candles[len(candles)-2] // middle candle creates the imbalance
	c3 := candles[len(candles)-1]

	switch expected {
	case TrendBullish:
		if c1.High < c3.Low {
			gap := t.newGap(TrendBullish, c3.Low, c1.High, c2.CloseTime)
			if gap != nil {
				state.Active = gap
			}
		}
	case TrendBearish:
		if c1.Low > c3.High {
			gap := t.newGap(TrendBearish, c1.Low, c3.High, c2.CloseTime)
			if gap != nil {
				state.Active = gap
			}
		}
	}

	return state
}

func (t *GapTracker) newGap(dir TrendDirection, high, low float64, formedAt time.Time) *Gap {
	sizePips := PipsBetween(high, low, t.pipSize)
	if sizePips < t.minGapPips {
		return nil
	}
	return &Gap{
		Direction: dir,
		High:      high,
		Low:       low,
		Midpoint:  (high + low) / 2,
		SizePips:  sizePips,
		FormedAt:  formedAt,
		Valid:     true,
	}
}

// CheckMitigation reports whether the closed candle traded back into the
// active gap's band. On mitigation the gap is marked and the updated state
// returned with mitigated=true.
func (t *GapTracker) CheckMitigation(state GapState, candle broker.Candle) (GapState, bool) {
	gap := state.Active
	if gap == nil || gap.Mitigated || !gap.Valid {
		return state, false
	}

	// Any overlap of the candle's range with [low, high] counts as a touch.
	if candle.Low <= gap.High && candle.High >= gap.Low {
		gap.Mitigated = true
		gap.MitigatedAt = candle.CloseTime
		if gap.Direction == TrendBullish {
			gap.MitigationPrice = candle.Low
		} else {
			gap.MitigationPrice = candle.High
		}
		return state, true
	}
	return state, false
}

// IsInvalidated reports whether the candle closed fully beyond the gap
// without its range ever entering the band: price skipped through the level
// instead of mitigating it.
func (t *GapTracker) IsInvalidated(state GapState, candle broker.Candle) bool {
	gap := state.Active
	if gap == nil || gap.Mitigated || !gap.Valid {
		return false
	}

	touched := candle.Low <= gap.High && candle.High >= gap.Low
	if touched {
		return false
	}

	if gap.Direction == TrendBullish {
		// Expected pullback down into the gap; a close below the band
		// without touching it means the level was skipped.
		return candle.Close < gap.Low
	}
	return candle.Close > gap.High
}

// Invalidate marks the active gap invalid and clears it.
func (t *GapTracker) Invalidate(state GapState) GapState {
	if state.Active != nil {
		state.Active.Valid = false
	}
	state.Active = nil
	return state
}

// Clear drops the active gap, keeping its record flags intact.
func (t *GapTracker) Clear(state GapState) GapState {
	state.Active = nil
	return state
}
