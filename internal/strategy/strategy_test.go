package strategy

import (
	"testing"

	"institutional-trading-bot/internal/broker"
)

func macross() *MACrossStrategy {
	return NewMACrossStrategy(&MACrossConfig{
		Symbol:         "EURUSD",
		Interval:       "15m",
		FastPeriod:     2,
		SlowPeriod:     4,
		StopLossPips:   10,
		TakeProfitPips: 20,
	})
}

func TestMACrossBuySignal(t *testing.T) {
	// Flat then a sharp rise: the fast SMA crosses above the slow one on the
	// final candle.
	candles := closes(100, 100, 100, 100, 100, 110)

	sig, err := macross().Evaluate(candles, 110)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if sig.Type != SignalBuy {
		t.Fatalf("signal = %s, want BUY", sig.Type)
	}
	if sig.Direction != broker.DirectionBuy {
		t.Errorf("direction = %s, want BUY", sig.Direction)
	}
	if sig.Confidence < 0.5 || sig.Confidence > 1.0 {
		t.Errorf("confidence = %v, want within [0.5, 1.0]", sig.Confidence)
	}
	if sig.StopLossPips != 10 || sig.TakeProfitPips != 20 {
		t.Errorf("sl/tp = %v/%v, want 10/20", sig.StopLossPips, sig.TakeProfitPips)
	}
}

func TestMACrossSellSignal(t *testing.T) {
	candles := closes(100, 100, 100, 100, 100, 90)

	sig, err := macross().Evaluate(candles, 90)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if sig.Type != SignalSell {
		t.Fatalf("signal = %s, want SELL", sig.Type)
	}
}

func TestMACrossNoSignalWithoutCross(t *testing.T) {
	// Steady uptrend: the fast SMA stays above the slow one, no fresh cross.
	candles := closes(100, 101, 102, 103, 104, 105, 106)

	sig, err := macross().Evaluate(candles, 106)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if sig.Type != SignalNone {
		t.Errorf("signal = %s, want NONE", sig.Type)
	}
}

func TestMACrossShortHistory(t *testing.T) {
	sig, err := macross().Evaluate(closes(100, 101), 101)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if sig.Type != SignalNone {
		t.Errorf("signal = %s, want NONE on short history", sig.Type)
	}
}
