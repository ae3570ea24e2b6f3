package analysis

import (
	"testing"
	"time"

	"institutional-trading-bot/internal/broker"
)

func sessionStateWithPrevious() SessionState {
	start := time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)
	return SessionState{
		Previous: &Session{
			Kind:     SessionLondon,
			High:     1.1000,
			Low:      1.0900,
			Start:    start,
			End:      start.Add(6 * time.Hour),
			Complete: true,
		},
	}
}

func TestBuildCreatesSessionPools(t *testing.T) {
	tracker := NewPoolTracker(0.0001, 2)
	pools := tracker.Build(sessionStateWithPrevious(), nil, nil)

	if len(pools) != 2 {
		t.Fatalf("got %d pools, want 2", len(pools))
	}
	var haveHigh, haveLow bool
	for _, p := range pools {
		switch p.Type {
		case PoolSessionHigh:
			haveHigh = p.Price == 1.1000
		case PoolSessionLow:
			haveLow = p.Price == 1.0900
		}
	}
	if !haveHigh || !haveLow {
		t.Errorf("missing session pools: high=%v low=%v", haveHigh, haveLow)
	}
}

func TestSweptFlagSurvivesRebuild(t *testing.T) {
	tracker := NewPoolTracker(0.0001, 2)
	state := sessionStateWithPrevious()
	tracker.Build(state, nil, nil)

	// Pierces the session high by 2.5 pips and closes back below it.
	sweepCandle := candle15(14, 0, 1.0980, 1.10025, 1.0975, 1.0985)
	sweep := tracker.DetectSweep(sweepCandle)
	if sweep == nil {
		t.Fatal("expected a confirmed sweep")
	}
	if sweep.Direction != SweepOfHighs {
		t.Errorf("direction = %s, want HIGH", sweep.Direction)
	}

	// Rebuilding from unchanged inputs must not resurrect the pool.
	pools := tracker.Build(state, nil, nil)
	var sweptStill bool
	for _, p := range pools {
		if p.Type == PoolSessionHigh && p.Swept {
			sweptStill = true
		}
	}
	if !sweptStill {
		t.Error("swept flag lost across rebuild")
	}
	if again := tracker.DetectSweep(sweepCandle); again != nil {
		t.Error("swept pool confirmed a second sweep")
	}
}

func TestSweepRequiresPierceAndCloseBack(t *testing.T) {
	cases := []struct {
		name   string
		candle broker.Candle
	}{
		// Touches the level but never reaches price+buffer.
		{"mere touch", candle15(14, 0, 1.0980, 1.10005, 1.0975, 1.0985)},
		// Pierces with margin but closes beyond the level: breakout, not sweep.
		{"no close back", candle15(14, 0, 1.0980, 1.1005, 1.0975, 1.1002)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tracker := NewPoolTracker(0.0001, 2)
			tracker.Build(sessionStateWithPrevious(), nil, nil)
			if sweep := tracker.DetectSweep(tc.candle); sweep != nil {
				t.Errorf("unexpected sweep of %s", sweep.Pool.Type)
			}
		})
	}
}

func TestSweepPrefersSessionOverSwingPool(t *testing.T) {
	tracker := NewPoolTracker(0.0001, 2)
	swingHigh := []SwingPoint{{Price: 1.1000, Time: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}}
	tracker.Build(sessionStateWithPrevious(), swingHigh, nil)

	// Both the session high and the swing high sit at 1.1000; one candle
	// qualifies them both.
	sweep := tracker.DetectSweep(candle15(14, 0, 1.0980, 1.10025, 1.0975, 1.0985))
	if sweep == nil {
		t.Fatal("expected a sweep")
	}
	if sweep.Pool.Type != PoolSessionHigh {
		t.Errorf("swept pool = %s, want SESSION_HIGH", sweep.Pool.Type)
	}
}

func TestSweepOfLows(t *testing.T) {
	tracker := NewPoolTracker(0.0001, 2)
	tracker.Build(sessionStateWithPrevious(), nil, nil)

	// Pierces the session low by 3 pips, closes back above it.
	sweep := tracker.DetectSweep(candle15(14, 0, 1.0920, 1.0925, 1.0897, 1.0915))
	if sweep == nil {
		t.Fatal("expected a sweep of lows")
	}
	if sweep.Direction != SweepOfLows {
		t.Errorf("direction = %s, want LOW", sweep.Direction)
	}
	if sweep.Pool.Type != PoolSessionLow {
		t.Errorf("pool = %s, want SESSION_LOW", sweep.Pool.Type)
	}
}

func TestPoolKeyDeterministic(t *testing.T) {
	created := time.Date(2026, 3, 2, 13, 0, 0, 0, time.UTC)
	a := &Pool{Type: PoolDailyHigh, Price: 1.23456, CreatedAt: created}
	b := &Pool{Type: PoolDailyHigh, Price: 1.23456, CreatedAt: created}
	if a.Key() != b.Key() {
		t.Errorf("identical pools produced different keys: %s vs %s", a.Key(), b.Key())
	}
	c := &Pool{Type: PoolDailyHigh, Price: 1.23457, CreatedAt: created}
	if a.Key() == c.Key() {
		t.Error("different prices produced the same key")
	}
}

// An outside candle can qualify the session high and session low at once; the
// winner must not depend on map iteration order.
func TestSweepTieBreakDeterministic(t *testing.T) {
	// Pierces both session extremes and closes back inside the range.
	outside := candle15(14, 0, 1.0950, 1.10025, 1.08975, 1.0950)

	for run := 0; run < 10; run++ {
		tracker := NewPoolTracker(0.0001, 2)
		tracker.Build(sessionStateWithPrevious(), nil, nil)

		sweep := tracker.DetectSweep(outside)
		if sweep == nil {
			t.Fatal("expected a confirmed sweep")
		}
		// Equal priority falls back to key order, and SESSION_HIGH sorts
		// before SESSION_LOW.
		if sweep.Pool.Type != PoolSessionHigh {
			t.Fatalf("run %d: pool = %s, want SESSION_HIGH every time", run, sweep.Pool.Type)
		}
	}
}
