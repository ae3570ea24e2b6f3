package institutional

import (
	"testing"
	"time"
)

func TestCanTransitionTable(t *testing.T) {
	allowed := []struct{ from, to Phase }{
		{PhaseIdle, PhaseWaitSweep},
		{PhaseWaitSweep, PhaseWaitChoch},
		{PhaseWaitSweep, PhaseIdle},
		{PhaseWaitChoch, PhaseWaitFVG},
		{PhaseWaitChoch, PhaseIdle},
		{PhaseWaitFVG, PhaseWaitMitigation},
		{PhaseWaitFVG, PhaseIdle},
		{PhaseWaitMitigation, PhaseWaitEntry},
		{PhaseWaitMitigation, PhaseIdle},
		{PhaseWaitEntry, PhaseCooldown},
		{PhaseWaitEntry, PhaseIdle},
		{PhaseCooldown, PhaseIdle},
	}
	for _, tc := range allowed {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("%s -> %s should be allowed", tc.from, tc.to)
		}
	}

	forbidden := []struct{ from, to Phase }{
		{PhaseIdle, PhaseWaitChoch},
		{PhaseIdle, PhaseWaitEntry},
		{PhaseIdle, PhaseCooldown},
		{PhaseWaitSweep, PhaseWaitFVG},
		{PhaseWaitChoch, PhaseWaitEntry},
		{PhaseWaitFVG, PhaseWaitChoch},
		{PhaseWaitMitigation, PhaseCooldown},
		{PhaseCooldown, PhaseWaitSweep},
		{PhaseWaitEntry, PhaseWaitSweep},
	}
	for _, tc := range forbidden {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("%s -> %s must be rejected", tc.from, tc.to)
		}
	}
}

func TestTransitionHistoryRingBounded(t *testing.T) {
	s := NewState("EURUSD", time.Now())
	for i := 0; i < 50; i++ {
		s.record(Transition{From: PhaseIdle, To: PhaseWaitSweep, At: time.Now()})
	}
	if len(s.History) != transitionHistoryLimit {
		t.Errorf("history length = %d, want %d", len(s.History), transitionHistoryLimit)
	}
}

func TestResetSetupClearsOnlySetupFields(t *testing.T) {
	s := NewState("EURUSD", time.Now())
	s.ChochConsumed = true
	s.ExpectedDirection = "bearish"
	s.SessionTrades = 2

	s.resetSetup()

	if s.ChochConsumed || s.ExpectedDirection != "" || s.Sweep != nil || s.Gap.Active != nil {
		t.Error("setup fields not cleared")
	}
	if s.SessionTrades != 2 {
		t.Error("session trade budget must survive a setup reset")
	}
}
