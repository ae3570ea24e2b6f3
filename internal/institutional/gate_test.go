package institutional

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"institutional-trading-bot/internal/analysis"
	"institutional-trading-bot/internal/broker"
)

func testGate() *Gate {
	return New("EURUSD", Config{
		Enabled:             true,
		PipSize:             0.0001,
		SweepBufferPips:     2,
		MinGapPips:          3,
		MaxTradesPerSession: 2,
		Timeouts:            DefaultTimeouts(),
	}, zerolog.Nop(), nil)
}

// candle builds a candle of the given duration opening at hh:mm UTC.
func candle(hh, mm int, dur time.Duration, o, h, l, c float64) broker.Candle {
	open := time.Date(2026, 3, 2, hh, mm, 0, 0, time.UTC)
	return broker.Candle{
		OpenTime:  open,
		CloseTime: open.Add(dur),
		Open:      o,
		High:      h,
		Low:       l,
		Close:     c,
	}
}

func c15(hh, mm int, o, h, l, c float64) broker.Candle {
	return candle(hh, mm, 15*time.Minute, o, h, l, c)
}

func c1(hh, mm int, o, h, l, c float64) broker.Candle {
	return candle(hh, mm, time.Minute, o, h, l, c)
}

func at(hh, mm int) time.Time {
	return time.Date(2026, 3, 2, hh, mm, 0, 0, time.UTC)
}

// baseCoarse establishes a London session with range [1.0900, 1.1000] and a
// first New York candle that rolls the session over.
func baseCoarse() []broker.Candle {
	return []broker.Candle{
		c15(12, 30, 1.0950, 1.1000, 1.0900, 1.0960), // London range
		c15(12, 45, 1.0960, 1.0980, 1.0950, 1.0970),
		c15(13, 0, 1.0970, 1.0990, 1.0960, 1.0980), // New York begins
	}
}

// sweepCandle pierces the London high by 2.5 pips and closes back below it.
func sweepCandle() broker.Candle {
	return c15(13, 15, 1.0980, 1.10025, 1.0975, 1.0985)
}

// armGate drives a fresh gate to WAIT_SWEEP. Price in the top third of the
// previous session's range gives a SHORT_ONLY grade-A context.
func armGate(t *testing.T, g *Gate) {
	t.Helper()
	g.Process(baseCoarse(), nil, analysis.SwingState{}, 1.0980, at(13, 20))
	if g.Phase() != PhaseWaitSweep {
		t.Fatalf("arming gate: phase = %s, want WAIT_SWEEP", g.Phase())
	}
}

// sweepGate drives an armed gate through the sweep into WAIT_CHOCH.
func sweepGate(t *testing.T, g *Gate) {
	t.Helper()
	coarse := append(baseCoarse(), sweepCandle())
	g.Process(coarse, nil, analysis.SwingState{}, 1.0980, at(13, 31))
	if g.Phase() != PhaseWaitChoch {
		t.Fatalf("sweeping: phase = %s, want WAIT_CHOCH", g.Phase())
	}
}

func TestHappyPathToEntry(t *testing.T) {
	g := testGate()
	armGate(t, g)
	sweepGate(t, g)

	// Bearish change-of-character after the sweep confirms it.
	coarse := append(baseCoarse(), sweepCandle())
	choch := &analysis.ChochEvent{Direction: analysis.TrendBearish, BrokenLevel: 1.0960, Time: at(13, 45)}
	g.Process(coarse, nil, analysis.SwingState{Choch: choch}, 1.0980, at(13, 46))
	if g.Phase() != PhaseWaitFVG {
		t.Fatalf("after choch: phase = %s, want WAIT_FVG", g.Phase())
	}
	if g.Direction() != analysis.TrendBearish {
		t.Errorf("expected direction = %s, want bearish", g.Direction())
	}

	// Bearish fair value gap on the fine timeframe: band [1.0975, 1.0980].
	fine := []broker.Candle{
		c1(13, 50, 1.0990, 1.0995, 1.0980, 1.0982),
		c1(13, 51, 1.0982, 1.0983, 1.0972, 1.0973),
		c1(13, 52, 1.0973, 1.0975, 1.0965, 1.0968),
	}
	g.Process(coarse, fine, analysis.SwingState{}, 1.0970, at(13, 54))
	if g.Phase() != PhaseWaitMitigation {
		t.Fatalf("after gap: phase = %s, want WAIT_MITIGATION", g.Phase())
	}

	// Pullback into the band mitigates and authorizes entry.
	fine = append(fine, c1(13, 54, 1.0968, 1.0978, 1.0966, 1.0970))
	authorized := g.Process(coarse, fine, analysis.SwingState{}, 1.0970, at(13, 56))
	if !authorized {
		t.Fatal("expected entry authorization after mitigation")
	}
	if g.Phase() != PhaseWaitEntry {
		t.Fatalf("phase = %s, want WAIT_ENTRY", g.Phase())
	}

	// Authorization persists across cycles until a trade is reported.
	if !g.Process(coarse, fine, analysis.SwingState{}, 1.0970, at(13, 57)) {
		t.Error("authorization should persist while in WAIT_ENTRY")
	}

	g.OnTradeExecuted(at(13, 58))
	if g.Phase() != PhaseCooldown {
		t.Errorf("after trade: phase = %s, want COOLDOWN", g.Phase())
	}
	if g.Snapshot().SessionTrades != 1 {
		t.Errorf("session trades = %d, want 1", g.Snapshot().SessionTrades)
	}
}

func TestIncompatibleChochIgnored(t *testing.T) {
	g := testGate()
	armGate(t, g)
	sweepGate(t, g)

	// A sweep of highs needs a bearish change; a bullish one must not advance.
	coarse := append(baseCoarse(), sweepCandle())
	choch := &analysis.ChochEvent{Direction: analysis.TrendBullish, BrokenLevel: 1.0990, Time: at(13, 45)}
	g.Process(coarse, nil, analysis.SwingState{Choch: choch}, 1.0980, at(13, 46))
	if g.Phase() != PhaseWaitChoch {
		t.Errorf("phase = %s, want WAIT_CHOCH after incompatible choch", g.Phase())
	}
}

func TestStaleChochIgnored(t *testing.T) {
	g := testGate()
	armGate(t, g)
	sweepGate(t, g)

	// Right direction but timestamped before the sweep: cannot confirm it.
	coarse := append(baseCoarse(), sweepCandle())
	choch := &analysis.ChochEvent{Direction: analysis.TrendBearish, BrokenLevel: 1.0960, Time: at(13, 0)}
	g.Process(coarse, nil, analysis.SwingState{Choch: choch}, 1.0980, at(13, 46))
	if g.Phase() != PhaseWaitChoch {
		t.Errorf("phase = %s, want WAIT_CHOCH after stale choch", g.Phase())
	}
}

func TestPhaseTimeoutExpiresSetup(t *testing.T) {
	g := testGate()
	armGate(t, g)
	sweepGate(t, g)

	// WAIT_CHOCH dwell limit is 60 minutes; 61 minutes later the setup expires.
	coarse := append(baseCoarse(), sweepCandle())
	g.Process(coarse, nil, analysis.SwingState{}, 1.0980, at(13, 31).Add(61*time.Minute))

	var expired bool
	for _, tr := range g.Snapshot().History {
		if tr.From == PhaseWaitChoch && tr.To == PhaseIdle && strings.Contains(tr.Reason, "timeout") {
			expired = true
		}
	}
	if !expired {
		t.Error("expected a timeout transition WAIT_CHOCH -> IDLE in history")
	}
	if g.Snapshot().Sweep != nil {
		t.Error("sweep state must be cleared on expiry")
	}
}

func TestTimeoutNotFiredWithinLimit(t *testing.T) {
	g := testGate()
	armGate(t, g)
	sweepGate(t, g)

	coarse := append(baseCoarse(), sweepCandle())
	g.Process(coarse, nil, analysis.SwingState{}, 1.0980, at(13, 31).Add(59*time.Minute))
	if g.Phase() != PhaseWaitChoch {
		t.Errorf("phase = %s, want WAIT_CHOCH within dwell limit", g.Phase())
	}
}

func TestNoTradeContextForcesIdle(t *testing.T) {
	// No candles means no previous session, which grades as NO_TRADE.
	g := testGate()
	if g.Process(nil, nil, analysis.SwingState{}, 1.0980, at(13, 20)) {
		t.Error("gate with no session history must not authorize")
	}
	if g.Phase() != PhaseIdle {
		t.Errorf("phase = %s, want IDLE", g.Phase())
	}
}

func TestDisabledGateBypasses(t *testing.T) {
	g := New("EURUSD", Config{Enabled: false, PipSize: 0.0001}, zerolog.Nop(), nil)

	if !g.Process(nil, nil, analysis.SwingState{}, 1.0980, at(13, 20)) {
		t.Error("disabled gate must authorize unconditionally")
	}
	if g.Phase() != PhaseIdle {
		t.Errorf("disabled gate phase = %s, want IDLE", g.Phase())
	}
}

func TestSessionTradeBudget(t *testing.T) {
	g := testGate()
	armGate(t, g)

	// Exhaust the budget directly, then force a return to IDLE via expiry and
	// verify the gate refuses to re-arm within the same session.
	g.state.SessionTrades = 2
	g.Process(baseCoarse(), nil, analysis.SwingState{}, 1.0980, at(13, 20).Add(91*time.Minute))
	if g.Phase() != PhaseIdle {
		t.Errorf("phase = %s, want IDLE with exhausted budget", g.Phase())
	}
}

func TestOnTradeExecutedOutsideWaitEntry(t *testing.T) {
	g := testGate()
	armGate(t, g)

	g.OnTradeExecuted(at(13, 25))
	if g.Phase() != PhaseWaitSweep {
		t.Errorf("phase = %s, trade report outside WAIT_ENTRY must be ignored", g.Phase())
	}
	if g.Snapshot().SessionTrades != 0 {
		t.Error("budget consumed outside WAIT_ENTRY")
	}
}

func TestIllegalTransitionRejected(t *testing.T) {
	g := testGate()

	if g.transition(PhaseWaitEntry, "forced", at(13, 0)) {
		t.Error("IDLE -> WAIT_ENTRY must be rejected")
	}
	if g.Phase() != PhaseIdle {
		t.Errorf("phase changed on rejected transition: %s", g.Phase())
	}
}
