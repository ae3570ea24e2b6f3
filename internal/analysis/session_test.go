package analysis

import (
	"testing"
	"time"

	"institutional-trading-bot/internal/broker"
)

// candle15 builds a 15-minute candle opening at hh:mm UTC on a fixed day.
func candle15(hh, mm int, o, h, l, c float64) broker.Candle {
	open := time.Date(2026, 3, 2, hh, mm, 0, 0, time.UTC)
	return broker.Candle{
		OpenTime:  open,
		CloseTime: open.Add(15 * time.Minute),
		Open:      o,
		High:      h,
		Low:       l,
		Close:     c,
	}
}

func TestClassifyDefaultWindows(t *testing.T) {
	tracker := NewSessionTracker(nil)

	cases := []struct {
		hh, mm int
		want   SessionKind
	}{
		{23, 30, SessionAsia}, // wraps midnight
		{2, 0, SessionAsia},
		{6, 59, SessionAsia},
		{7, 0, SessionLondon},
		{12, 59, SessionLondon},
		{13, 0, SessionNewYork},
		{20, 59, SessionNewYork},
		{21, 0, SessionOff},
		{22, 30, SessionOff},
	}
	for _, tc := range cases {
		ts := time.Date(2026, 3, 2, tc.hh, tc.mm, 0, 0, time.UTC)
		if got := tracker.Classify(ts); got != tc.want {
			t.Errorf("Classify(%02d:%02d) = %s, want %s", tc.hh, tc.mm, got, tc.want)
		}
	}
}

func TestProcessAccumulatesSessionRange(t *testing.T) {
	tracker := NewSessionTracker(nil)

	candles := []broker.Candle{
		candle15(7, 0, 1.0950, 1.0970, 1.0940, 1.0960),
		candle15(7, 15, 1.0960, 1.1000, 1.0955, 1.0990), // session high
		candle15(7, 30, 1.0990, 1.0995, 1.0900, 1.0920), // session low
	}

	state := tracker.Process(SessionState{}, candles)

	if state.Current == nil {
		t.Fatal("expected a current session")
	}
	if state.Current.Kind != SessionLondon {
		t.Errorf("current session = %s, want LONDON", state.Current.Kind)
	}
	if state.Current.High != 1.1000 {
		t.Errorf("session high = %v, want 1.1000", state.Current.High)
	}
	if state.Current.Low != 1.0900 {
		t.Errorf("session low = %v, want 1.0900", state.Current.Low)
	}
	if state.Current.Close != 1.0920 {
		t.Errorf("session close = %v, want 1.0920", state.Current.Close)
	}
}

func TestProcessIgnoresRedeliveredCandles(t *testing.T) {
	tracker := NewSessionTracker(nil)

	candles := []broker.Candle{
		candle15(7, 0, 1.0950, 1.0970, 1.0940, 1.0960),
		candle15(7, 15, 1.0960, 1.1000, 1.0955, 1.0990),
	}

	state := tracker.Process(SessionState{}, candles)
	again := tracker.Process(state, candles)

	if !again.LastProcessed.Equal(state.LastProcessed) {
		t.Errorf("LastProcessed moved on redelivery: %v -> %v", state.LastProcessed, again.LastProcessed)
	}
	if again.Current.High != state.Current.High || again.Current.Low != state.Current.Low {
		t.Errorf("session range changed on redelivery")
	}
}

func TestProcessFreezesPreviousSessionOnRollover(t *testing.T) {
	tracker := NewSessionTracker(nil)

	state := tracker.Process(SessionState{}, []broker.Candle{
		candle15(12, 30, 1.0950, 1.1000, 1.0900, 1.0960), // London
		candle15(12, 45, 1.0960, 1.0980, 1.0950, 1.0970), // London
	})
	state = tracker.Process(state, []broker.Candle{
		candle15(13, 0, 1.0970, 1.0990, 1.0960, 1.0980), // New York begins
	})

	if state.Previous == nil {
		t.Fatal("expected previous session after rollover")
	}
	if state.Previous.Kind != SessionLondon {
		t.Errorf("previous session = %s, want LONDON", state.Previous.Kind)
	}
	if !state.Previous.Complete {
		t.Error("previous session should be marked complete")
	}
	if state.Previous.High != 1.1000 || state.Previous.Low != 1.0900 {
		t.Errorf("previous range = [%v, %v], want [1.0900, 1.1000]",
			state.Previous.Low, state.Previous.High)
	}
	if state.Current.Kind != SessionNewYork {
		t.Errorf("current session = %s, want NEW_YORK", state.Current.Kind)
	}
}

func TestProcessTracksDailyRange(t *testing.T) {
	tracker := NewSessionTracker(nil)

	day1 := []broker.Candle{
		candle15(10, 0, 1.0950, 1.1050, 1.0850, 1.0960),
	}
	state := tracker.Process(SessionState{}, day1)

	next := candle15(10, 0, 1.0960, 1.0980, 1.0940, 1.0970)
	next.OpenTime = next.OpenTime.Add(24 * time.Hour)
	next.CloseTime = next.CloseTime.Add(24 * time.Hour)
	state = tracker.Process(state, []broker.Candle{next})

	if state.PreviousDay == nil {
		t.Fatal("expected previous day after date rollover")
	}
	if state.PreviousDay.High != 1.1050 || state.PreviousDay.Low != 1.0850 {
		t.Errorf("previous day range = [%v, %v], want [1.0850, 1.1050]",
			state.PreviousDay.Low, state.PreviousDay.High)
	}
}

func TestLastClosedSkipsInProgressCandle(t *testing.T) {
	c1 := candle15(7, 0, 1.0950, 1.0970, 1.0940, 1.0960)
	c2 := candle15(7, 15, 1.0960, 1.1000, 1.0955, 1.0990)

	// Midway through c2's interval only c1 qualifies.
	now := c2.OpenTime.Add(5 * time.Minute)
	got, ok := LastClosed([]broker.Candle{c1, c2}, now)
	if !ok {
		t.Fatal("expected a closed candle")
	}
	if !got.CloseTime.Equal(c1.CloseTime) {
		t.Errorf("LastClosed picked candle closing %v, want %v", got.CloseTime, c1.CloseTime)
	}

	// After c2 closes it becomes the last closed one.
	now = c2.CloseTime.Add(time.Second)
	got, _ = LastClosed([]broker.Candle{c1, c2}, now)
	if !got.CloseTime.Equal(c2.CloseTime) {
		t.Errorf("LastClosed picked candle closing %v, want %v", got.CloseTime, c2.CloseTime)
	}
}
