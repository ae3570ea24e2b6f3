package institutional

import (
	"time"

	"github.com/rs/zerolog"

	"institutional-trading-bot/internal/analysis"
	"institutional-trading-bot/internal/broker"
	"institutional-trading-bot/internal/events"
)

// Timeouts holds per-phase maximum dwell times. A phase older than its limit
// is forcibly returned to IDLE with an EXPIRE decision.
type Timeouts struct {
	WaitSweep      time.Duration `json:"wait_sweep"`
	WaitChoch      time.Duration `json:"wait_choch"`
	WaitFVG        time.Duration `json:"wait_fvg"`
	WaitMitigation time.Duration `json:"wait_mitigation"`
	WaitEntry      time.Duration `json:"wait_entry"`
	Cooldown       time.Duration `json:"cooldown"`
}

// DefaultTimeouts returns conservative dwell limits.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		WaitSweep:      90 * time.Minute,
		WaitChoch:      60 * time.Minute,
		WaitFVG:        45 * time.Minute,
		WaitMitigation: 60 * time.Minute,
		WaitEntry:      30 * time.Minute,
		Cooldown:       60 * time.Minute,
	}
}

// For returns the dwell limit for a phase. IDLE has none.
func (t Timeouts) For(p Phase) (time.Duration, bool) {
	switch p {
	case PhaseWaitSweep:
		return t.WaitSweep, true
	case PhaseWaitChoch:
		return t.WaitChoch, true
	case PhaseWaitFVG:
		return t.WaitFVG, true
	case PhaseWaitMitigation:
		return t.WaitMitigation, true
	case PhaseWaitEntry:
		return t.WaitEntry, true
	case PhaseCooldown:
		return t.Cooldown, true
	}
	return 0, false
}

// Config holds the gate's tunables.
type Config struct {
	Enabled             bool
	PipSize             float64
	SweepBufferPips     float64
	MinGapPips          float64
	MaxTradesPerSession int
	Timeouts            Timeouts
	SessionWindows      []analysis.SessionWindow
}

// Gate sequences multi-stage entry confirmation for one symbol: liquidity
// sweep, change-of-character, fair value gap formation, mitigation, entry.
// It is the only component that carries windowed state across cycles; the
// bot's single-threaded loop is the concurrency discipline, so the gate
// itself takes no locks.
type Gate struct {
	cfg      Config
	sessions *analysis.SessionTracker
	pools    *analysis.PoolTracker
	gaps     *analysis.GapTracker
	state    *State
	log      zerolog.Logger
	bus      *events.Bus
}

// New creates a gate for a symbol. bus may be nil.
func New(symbol string, cfg Config, logger zerolog.Logger, bus *events.Bus) *Gate {
	if cfg.MaxTradesPerSession <= 0 {
		cfg.MaxTradesPerSession = 2
	}
	return &Gate{
		cfg:      cfg,
		sessions: analysis.NewSessionTracker(cfg.SessionWindows),
		pools:    analysis.NewPoolTracker(cfg.PipSize, cfg.SweepBufferPips),
		gaps:     analysis.NewGapTracker(cfg.PipSize, cfg.MinGapPips),
		state:    NewState(symbol, time.Now()),
		log:      logger.With().Str("component", "institutional").Str("symbol", symbol).Logger(),
		bus:      bus,
	}
}

// Process runs one evaluation cycle against the latest coarse and fine
// candles, externally computed swing structure, and the current price. It
// returns true only when an entry is currently authorized. Only candles
// fully closed at now participate in sweep and mitigation decisions.
func (g *Gate) Process(coarse, fine []broker.Candle, swings analysis.SwingState, price float64, now time.Time) bool {
	if !g.cfg.Enabled {
		// Bypass mode authorizes unconditionally. Any in-flight setup is
		// reset so re-enabling starts from a known IDLE state.
		if g.state.Phase != PhaseIdle {
			g.transition(PhaseIdle, "institutional layer disabled", now)
		}
		return true
	}

	coarseClosed := analysis.ClosedOnly(coarse, now)
	fineClosed := analysis.ClosedOnly(fine, now)

	g.state.Session = g.sessions.Process(g.state.Session, coarseClosed)
	g.resetSessionBudget()

	g.state.Context = analysis.EvaluateContext(price, g.state.Session.Previous)
	if !g.state.Context.CanTrade() || g.state.Context.Bias == analysis.BiasNone {
		if g.state.Phase != PhaseIdle {
			g.transition(PhaseIdle, "context forbids trading", now)
			g.logDecision(DecisionNoTrade, "context forbids trading", now)
		}
		return false
	}

	g.pools.Build(g.state.Session, swings.Highs, swings.Lows)

	g.checkTimeout(now)

	switch g.state.Phase {
	case PhaseIdle:
		g.processIdle(now)
	case PhaseWaitSweep:
		g.processWaitSweep(coarseClosed, now)
	case PhaseWaitChoch:
		g.processWaitChoch(swings.Choch, now)
	case PhaseWaitFVG:
		g.processWaitFVG(fineClosed, now)
	case PhaseWaitMitigation:
		g.processWaitMitigation(fineClosed, now)
	case PhaseWaitEntry:
		// Terminal-success: authorized every cycle until a trade is
		// reported or the timeout fires.
	case PhaseCooldown:
		// Nothing to do; the timeout returns us to IDLE.
	}

	return g.state.Phase == PhaseWaitEntry
}

func (g *Gate) processIdle(now time.Time) {
	if g.state.Session.Previous == nil {
		return
	}
	if g.state.Context.Grade == analysis.GradeNoTrade {
		return
	}
	if g.state.SessionTrades >= g.cfg.MaxTradesPerSession {
		return
	}
	g.transition(PhaseWaitSweep, "previous session available, context tradeable", now)
}

func (g *Gate) processWaitSweep(coarseClosed []broker.Candle, now time.Time) {
	candle, ok := analysis.LastClosed(coarseClosed, now)
	if !ok {
		return
	}
	sweep := g.pools.DetectSweep(candle)
	if sweep == nil {
		return
	}
	g.state.Sweep = sweep
	g.state.ChochConsumed = false
	g.transition(PhaseWaitChoch, "sweep of "+string(sweep.Pool.Type)+" confirmed", now)
}

func (g *Gate) processWaitChoch(choch *analysis.ChochEvent, now time.Time) {
	if choch == nil || g.state.ChochConsumed || g.state.Sweep == nil {
		return
	}
	// A stale event from before the sweep cannot confirm it.
	if choch.Time.Before(g.state.Sweep.Time) {
		return
	}

	// A high-sweep needs a bearish change, a low-sweep a bullish one.
	compatible := (g.state.Sweep.Direction == analysis.SweepOfHighs && choch.Direction == analysis.TrendBearish) ||
		(g.state.Sweep.Direction == analysis.SweepOfLows && choch.Direction == analysis.TrendBullish)
	if !compatible {
		g.log.Debug().
			Str("sweep_direction", string(g.state.Sweep.Direction)).
			Str("choch_direction", string(choch.Direction)).
			Msg("change-of-character direction incompatible with sweep, waiting")
		return
	}

	g.state.ChochConsumed = true
	g.state.ExpectedDirection = choch.Direction
	g.transition(PhaseWaitFVG, "compatible change-of-character consumed", now)
}

func (g *Gate) processWaitFVG(fineClosed []broker.Candle, now time.Time) {
	if g.state.ExpectedDirection == "" {
		return
	}
	g.state.Gap = g.gaps.Detect(g.state.Gap, fineClosed, g.state.ExpectedDirection)
	if g.state.Gap.Active != nil {
		g.transition(PhaseWaitMitigation, "fair value gap formed", now)
	}
}

func (g *Gate) processWaitMitigation(fineClosed []broker.Candle, now time.Time) {
	candle, ok := analysis.LastClosed(fineClosed, now)
	if !ok {
		return
	}

	if g.gaps.IsInvalidated(g.state.Gap, candle) {
		g.state.Gap = g.gaps.Invalidate(g.state.Gap)
		g.transition(PhaseIdle, "gap invalidated without mitigation", now)
		g.logDecision(DecisionNoTrade, "gap invalidated", now)
		return
	}

	var mitigated bool
	g.state.Gap, mitigated = g.gaps.CheckMitigation(g.state.Gap, candle)
	if mitigated {
		g.transition(PhaseWaitEntry, "gap mitigated", now)
		g.logDecision(DecisionTrade, "entry authorized after mitigation", now)
	}
}

// checkTimeout expires any non-IDLE phase older than its configured limit.
// This is the only path out of a stalled phase besides forward progress.
func (g *Gate) checkTimeout(now time.Time) {
	g.state.LastTimeoutCheck = now

	limit, ok := g.cfg.Timeouts.For(g.state.Phase)
	if !ok || limit <= 0 {
		return
	}
	if now.Sub(g.state.EnteredAt) <= limit {
		return
	}

	expired := g.state.Phase
	g.transition(PhaseIdle, "timeout in "+string(expired), now)
	g.logDecision(DecisionExpire, "phase "+string(expired)+" exceeded dwell limit", now)
}

// transition moves the gate to the next phase after validating against the
// allowed-successor table. Illegal requests are rejected with the phase left
// unchanged; that is an invariant check, not a user-facing error.
func (g *Gate) transition(to Phase, reason string, now time.Time) bool {
	from := g.state.Phase
	if !CanTransition(from, to) {
		g.log.Warn().
			Str("from", string(from)).
			Str("to", string(to)).
			Str("reason", reason).
			Msg("illegal phase transition rejected")
		return false
	}

	g.state.Phase = to
	g.state.EnteredAt = now
	g.state.record(Transition{From: from, To: to, At: now, Reason: reason})

	if to == PhaseIdle {
		g.state.resetSetup()
	}

	g.log.Info().
		Str("from", string(from)).
		Str("to", string(to)).
		Str("reason", reason).
		Time("at", now).
		Msg("phase transition")

	if g.bus != nil {
		g.bus.PublishPhaseTransition(g.state.Symbol, string(from), string(to), reason)
	}
	return true
}

func (g *Gate) logDecision(d Decision, detail string, now time.Time) {
	g.log.Info().
		Str("decision", string(d)).
		Str("direction", string(g.state.ExpectedDirection)).
		Str("detail", detail).
		Time("at", now).
		Msg("final decision")

	if g.bus != nil {
		g.bus.PublishFinalDecision(g.state.Symbol, string(d), string(g.state.ExpectedDirection), detail)
	}
}

// resetSessionBudget zeroes the per-session trade counter when a new session
// begins.
func (g *Gate) resetSessionBudget() {
	cur := g.state.Session.Current
	if cur == nil {
		return
	}
	if !cur.Start.Equal(g.state.sessionMark) {
		g.state.SessionTrades = 0
		g.state.sessionMark = cur.Start
	}
}

// OnTradeExecuted reports a filled entry back to the gate: the phase moves to
// COOLDOWN and the session trade budget is consumed.
func (g *Gate) OnTradeExecuted(now time.Time) {
	if g.state.Phase != PhaseWaitEntry {
		return
	}
	g.state.SessionTrades++
	g.transition(PhaseCooldown, "trade executed", now)
}

// Direction returns the authorized trade direction while in WAIT_ENTRY.
func (g *Gate) Direction() analysis.TrendDirection {
	return g.state.ExpectedDirection
}

// Bypassed reports whether the institutional layer is disabled, in which case
// Process authorizes unconditionally and carries no direction.
func (g *Gate) Bypassed() bool {
	return !g.cfg.Enabled
}

// Phase returns the current phase.
func (g *Gate) Phase() Phase {
	return g.state.Phase
}

// Snapshot is a read-only view of the gate for status reporting.
type Snapshot struct {
	Symbol        string                 `json:"symbol"`
	Phase         Phase                  `json:"phase"`
	EnteredAt     time.Time              `json:"entered_at"`
	Context       analysis.MarketContext `json:"context"`
	SessionKind   analysis.SessionKind   `json:"session_kind,omitempty"`
	SessionTrades int                    `json:"session_trades"`
	Sweep         *analysis.Sweep        `json:"sweep,omitempty"`
	ActiveGap     *analysis.Gap          `json:"active_gap,omitempty"`
	History       []Transition           `json:"history"`
}

// Snapshot returns the gate's current observable state.
func (g *Gate) Snapshot() Snapshot {
	snap := Snapshot{
		Symbol:        g.state.Symbol,
		Phase:         g.state.Phase,
		EnteredAt:     g.state.EnteredAt,
		Context:       g.state.Context,
		SessionTrades: g.state.SessionTrades,
		Sweep:         g.state.Sweep,
		ActiveGap:     g.state.Gap.Active,
		History:       append([]Transition(nil), g.state.History...),
	}
	if g.state.Session.Current != nil {
		snap.SessionKind = g.state.Session.Current.Kind
	}
	return snap
}
