package risk

import (
	"math"
	"testing"

	"institutional-trading-bot/internal/broker"
)

func testTrailer() *TrailingStopManager {
	return NewTrailingStopManager(TrailingConfig{
		Enabled:        true,
		ActivationPips: 10,
		DistancePips:   5,
		PipSize:        0.0001,
	})
}

func TestTrailingActivatesAfterProfit(t *testing.T) {
	m := testTrailer()
	m.Track("p1", "EURUSD", broker.DirectionBuy, 1.1000, 1.0990)

	// 5 pips of profit: below the 10 pip activation threshold.
	if update := m.UpdatePrice("p1", 1.1005); update != nil {
		t.Errorf("stop moved before activation: %+v", update)
	}

	// 12 pips of profit activates and trails 5 pips behind the mark.
	update := m.UpdatePrice("p1", 1.1012)
	if update == nil {
		t.Fatal("expected a stop move after activation")
	}
	if math.Abs(update.NewStopPrice-1.1007) > 1e-9 {
		t.Errorf("new stop = %v, want 1.1007", update.NewStopPrice)
	}
}

func TestTrailingStopOnlyTightens(t *testing.T) {
	m := testTrailer()
	m.Track("p1", "EURUSD", broker.DirectionBuy, 1.1000, 1.0990)

	if m.UpdatePrice("p1", 1.1012) == nil {
		t.Fatal("expected activation")
	}
	// Price retraces: the watermark and the stop must hold.
	if update := m.UpdatePrice("p1", 1.1005); update != nil {
		t.Errorf("stop loosened on retrace: %+v", update)
	}
	// A new high tightens further.
	update := m.UpdatePrice("p1", 1.1020)
	if update == nil {
		t.Fatal("expected a tighter stop on a new high")
	}
	if math.Abs(update.NewStopPrice-1.1015) > 1e-9 {
		t.Errorf("new stop = %v, want 1.1015", update.NewStopPrice)
	}
}

func TestTrailingShortSide(t *testing.T) {
	m := testTrailer()
	m.Track("p1", "EURUSD", broker.DirectionSell, 1.1000, 1.1010)

	update := m.UpdatePrice("p1", 1.0988) // 12 pips in favor
	if update == nil {
		t.Fatal("expected a stop move for the short")
	}
	if math.Abs(update.NewStopPrice-1.0993) > 1e-9 {
		t.Errorf("new stop = %v, want 1.0993", update.NewStopPrice)
	}
	// Stop must never move back up.
	if up := m.UpdatePrice("p1", 1.0995); up != nil {
		t.Errorf("short stop loosened: %+v", up)
	}
}

func TestUntrack(t *testing.T) {
	m := testTrailer()
	m.Track("p1", "EURUSD", broker.DirectionBuy, 1.1000, 1.0990)
	m.Untrack("p1")

	if len(m.TrackedIDs()) != 0 {
		t.Error("position still tracked after untrack")
	}
	if update := m.UpdatePrice("p1", 1.2000); update != nil {
		t.Error("untracked position produced a stop update")
	}
}

func TestDisabledTrailerIsInert(t *testing.T) {
	m := NewTrailingStopManager(TrailingConfig{Enabled: false})
	m.Track("p1", "EURUSD", broker.DirectionBuy, 1.1000, 1.0990)
	if update := m.UpdatePrice("p1", 2.0); update != nil {
		t.Error("disabled manager produced a stop update")
	}
}
