package strategy

import (
	"math"
	"testing"
	"time"

	"institutional-trading-bot/internal/broker"
)

func amplitudeFixture(histAmp float64, cur broker.Candle, elapsed time.Duration) (*AmplitudeStrategy, []broker.Candle) {
	base := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	var candles []broker.Candle
	for n := 0; n < 5; n++ {
		open := base.Add(time.Duration(n) * 15 * time.Minute)
		candles = append(candles, broker.Candle{
			OpenTime: open, CloseTime: open.Add(15 * time.Minute),
			Open: 1.0950, High: 1.0950 + histAmp, Low: 1.0950, Close: 1.0950,
		})
	}
	cur.OpenTime = base.Add(5 * 15 * time.Minute)
	cur.CloseTime = cur.OpenTime.Add(15 * time.Minute)
	candles = append(candles, cur)

	s := NewAmplitudeStrategy(&AmplitudeConfig{
		Symbol:        "EURUSD",
		Interval:      "15m",
		CandleMinutes: 15,
		MinHistory:    5,
	})
	now := cur.OpenTime.Add(elapsed)
	s.now = func() time.Time { return now }
	return s, candles
}

// Early in a quiet candle, a strong move toward a projected close beyond the
// current high reads as probable expansion and signals with the move.
func TestAmplitudeSignalsBuyOnProbableExpansion(t *testing.T) {
	s, candles := amplitudeFixture(0.0020, broker.Candle{
		Open: 1.0950, High: 1.0960, Low: 1.0950, Close: 1.0957,
	}, 4*time.Minute)

	sig, err := s.Evaluate(candles, 1.0957)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if sig.Type != SignalBuy {
		t.Fatalf("signal = %s, want BUY", sig.Type)
	}
	if sig.Direction != broker.DirectionBuy {
		t.Errorf("direction = %s, want BUY", sig.Direction)
	}
	// Confidence grows with candle age: 0.40 + (4/15)*0.60.
	if want := 0.40 + 4.0/15.0*0.60; math.Abs(sig.Confidence-want) > 1e-9 {
		t.Errorf("confidence = %.4f, want %.4f", sig.Confidence, want)
	}
}

func TestAmplitudeSignalsSellOnFallingMove(t *testing.T) {
	s, candles := amplitudeFixture(0.0020, broker.Candle{
		Open: 1.0960, High: 1.0960, Low: 1.0950, Close: 1.0953,
	}, 4*time.Minute)

	sig, err := s.Evaluate(candles, 1.0953)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if sig.Type != SignalSell || sig.Direction != broker.DirectionSell {
		t.Fatalf("signal = %s/%s, want SELL", sig.Type, sig.Direction)
	}
}

// Late in the candle with price mid-range and the range already at its
// historical mean, there is no expansion left to trade.
func TestAmplitudeNoSignalWhenExpansionImprobable(t *testing.T) {
	s, candles := amplitudeFixture(0.0010, broker.Candle{
		Open: 1.0950, High: 1.0960, Low: 1.0950, Close: 1.0955,
	}, 13*time.Minute)

	sig, err := s.Evaluate(candles, 1.0955)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if sig.Type != SignalNone {
		t.Errorf("signal = %s, want NONE", sig.Type)
	}
}

func TestAmplitudeNoSignalOnShortHistory(t *testing.T) {
	s, candles := amplitudeFixture(0.0020, broker.Candle{
		Open: 1.0950, High: 1.0960, Low: 1.0950, Close: 1.0957,
	}, 4*time.Minute)

	sig, err := s.Evaluate(candles[len(candles)-3:], 1.0957)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if sig.Type != SignalNone {
		t.Errorf("signal = %s, want NONE with too little history", sig.Type)
	}
}

func TestAmplitudeNoSignalOnFlatCandle(t *testing.T) {
	s, candles := amplitudeFixture(0.0020, broker.Candle{
		Open: 1.0950, High: 1.0950, Low: 1.0950, Close: 1.0950,
	}, 4*time.Minute)

	sig, err := s.Evaluate(candles, 1.0950)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if sig.Type != SignalNone {
		t.Errorf("signal = %s, want NONE on a zero-range candle", sig.Type)
	}
}

func TestAmplitudePercentileInterpolates(t *testing.T) {
	var candles []broker.Candle
	for _, amp := range []float64{0.0010, 0.0020, 0.0030, 0.0040} {
		candles = append(candles, broker.Candle{High: 1.0950 + amp, Low: 1.0950})
	}

	if got := AmplitudePercentile(candles, 50); math.Abs(got-0.0025) > 1e-12 {
		t.Errorf("p50 = %.5f, want 0.00250", got)
	}
	if got := AmplitudePercentile(candles, 100); math.Abs(got-0.0040) > 1e-12 {
		t.Errorf("p100 = %.5f, want 0.00400", got)
	}
	if got := AmplitudePercentile(nil, 50); got != 0 {
		t.Errorf("empty input percentile = %.5f, want 0", got)
	}
}
