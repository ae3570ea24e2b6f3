package bot

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"institutional-trading-bot/internal/broker"
	"institutional-trading-bot/internal/institutional"
	"institutional-trading-bot/internal/risk"
	"institutional-trading-bot/internal/strategy"
)

// stubStrategy returns a fixed signal on every evaluation.
type stubStrategy struct {
	sig *strategy.Signal
}

func (s *stubStrategy) Name() string     { return "stub" }
func (s *stubStrategy) Symbol() string   { return "EURUSD" }
func (s *stubStrategy) Interval() string { return "15m" }

func (s *stubStrategy) Evaluate(candles []broker.Candle, price float64) (*strategy.Signal, error) {
	return s.sig, nil
}

func seededMock() *broker.MockAdapter {
	adapter := broker.NewMockAdapter(10000)
	adapter.SeedSpec(broker.SymbolSpec{
		Symbol:          "EURUSD",
		PipSize:         0.0001,
		PipValuePerUnit: 0.0001,
		Volume: broker.VolumeSpecs{
			MinVolume:   100000,
			MaxVolume:   100000000,
			StepVolume:  100000,
			UnitsPerLot: 10000000,
		},
	})

	// A handful of closed candles on both timeframes, well in the past so
	// every one of them counts as closed.
	base := time.Now().Add(-3 * time.Hour).Truncate(time.Minute)
	var coarse, fine []broker.Candle
	for n := 0; n < 6; n++ {
		open := base.Add(time.Duration(n) * 15 * time.Minute)
		coarse = append(coarse, broker.Candle{
			OpenTime: open, CloseTime: open.Add(15 * time.Minute),
			Open: 1.0950, High: 1.0960, Low: 1.0940, Close: 1.0950,
		})
	}
	for n := 0; n < 6; n++ {
		open := base.Add(time.Duration(n) * time.Minute)
		fine = append(fine, broker.Candle{
			OpenTime: open, CloseTime: open.Add(time.Minute),
			Open: 1.0950, High: 1.0952, Low: 1.0948, Close: 1.0950,
		})
	}
	adapter.SeedCandles("EURUSD", "15m", coarse)
	adapter.SeedCandles("EURUSD", "1m", fine)
	return adapter
}

func bypassedInstance(adapter *broker.MockAdapter, strats []strategy.Strategy) *Instance {
	gate := institutional.New("EURUSD", institutional.Config{
		Enabled:  false,
		PipSize:  0.0001,
		Timeouts: institutional.DefaultTimeouts(),
	}, zerolog.Nop(), nil)

	return New(Config{
		UserID:         "u1",
		BotID:          "b1",
		Symbol:         "EURUSD",
		Timeframe:      "15m",
		FineTimeframe:  "1m",
		StopLossPips:   10,
		TakeProfitPips: 20,
		PipSize:        0.0001,
	}, Deps{
		Adapter: adapter,
		Gate:    gate,
		Sizer:   risk.NewPositionSizer(1.0),
		Breaker: risk.NewDailyBreaker(risk.DefaultDailyBreakerConfig(), "u1", "b1", nil, nil),
		Strats:  strats,
		Logger:  zerolog.Nop(),
	})
}

// A bypassed gate authorizes every cycle; without a strategy signal there is
// no entry trigger and no order may be placed.
func TestBypassedGateWithoutSignalPlacesNoOrders(t *testing.T) {
	adapter := seededMock()
	inst := bypassedInstance(adapter, nil)

	for n := 0; n < 5; n++ {
		inst.analysisCycle()
	}

	if orders := adapter.PlacedOrders(); len(orders) != 0 {
		t.Fatalf("placed %d orders with no strategy signal, want 0", len(orders))
	}
}

func TestBypassedGateOrdersOnStrategySignal(t *testing.T) {
	adapter := seededMock()
	inst := bypassedInstance(adapter, []strategy.Strategy{&stubStrategy{
		sig: &strategy.Signal{
			Type:       strategy.SignalSell,
			Symbol:     "EURUSD",
			Direction:  broker.DirectionSell,
			Confidence: 0.8,
			Reason:     "stub sell",
			Timestamp:  time.Now(),
		},
	}})

	inst.analysisCycle()

	orders := adapter.PlacedOrders()
	if len(orders) != 1 {
		t.Fatalf("placed %d orders, want 1", len(orders))
	}
	if orders[0].Direction != broker.DirectionSell {
		t.Errorf("direction = %s, want %s from the strategy signal", orders[0].Direction, broker.DirectionSell)
	}
}

func TestBypassedGateIgnoresNoneSignal(t *testing.T) {
	adapter := seededMock()
	inst := bypassedInstance(adapter, []strategy.Strategy{&stubStrategy{sig: strategy.NoSignal()}})

	inst.analysisCycle()

	if orders := adapter.PlacedOrders(); len(orders) != 0 {
		t.Fatalf("placed %d orders on a NONE signal, want 0", len(orders))
	}
}
