package institutional

import (
	"time"

	"institutional-trading-bot/internal/analysis"
)

// Phase is the gate's confirmation stage for one symbol.
type Phase string

const (
	PhaseIdle           Phase = "IDLE"
	PhaseWaitSweep      Phase = "WAIT_SWEEP"
	PhaseWaitChoch      Phase = "WAIT_CHOCH"
	PhaseWaitFVG        Phase = "WAIT_FVG"
	PhaseWaitMitigation Phase = "WAIT_MITIGATION"
	PhaseWaitEntry      Phase = "WAIT_ENTRY"
	PhaseCooldown       Phase = "COOLDOWN"
)

// allowedSuccessors is the fixed transition graph. A requested transition not
// listed here is a programming error: it is rejected and logged, and the
// phase stays unchanged.
var allowedSuccessors = map[Phase][]Phase{
	PhaseIdle:           {PhaseWaitSweep},
	PhaseWaitSweep:      {PhaseWaitChoch, PhaseIdle},
	PhaseWaitChoch:      {PhaseWaitFVG, PhaseIdle},
	PhaseWaitFVG:        {PhaseWaitMitigation, PhaseIdle},
	PhaseWaitMitigation: {PhaseWaitEntry, PhaseIdle},
	PhaseWaitEntry:      {PhaseCooldown, PhaseIdle},
	PhaseCooldown:       {PhaseIdle},
}

// CanTransition reports whether from -> to is in the allowed-successor table.
func CanTransition(from, to Phase) bool {
	for _, p := range allowedSuccessors[from] {
		if p == to {
			return true
		}
	}
	return false
}

// Transition is one recorded phase change. Purely observational: the gate
// never reads these back for logic.
type Transition struct {
	From   Phase     `json:"from"`
	To     Phase     `json:"to"`
	At     time.Time `json:"at"`
	Reason string    `json:"reason"`
}

// transitionHistoryLimit bounds per-symbol transition history.
const transitionHistoryLimit = 20

// Decision labels a final gate outcome for the audit log.
type Decision string

const (
	DecisionTrade   Decision = "TRADE"
	DecisionNoTrade Decision = "NO_TRADE"
	DecisionExpire  Decision = "EXPIRE"
)

// State aggregates everything the gate tracks for one symbol.
type State struct {
	Symbol    string
	Phase     Phase
	EnteredAt time.Time // when the current phase was entered
	History   []Transition

	Session analysis.SessionState
	Context analysis.MarketContext

	Sweep             *analysis.Sweep
	ChochConsumed     bool
	ExpectedDirection analysis.TrendDirection
	Gap               analysis.GapState

	SessionTrades    int
	sessionMark      time.Time // end of the previous session the counter was reset against
	LastTimeoutCheck time.Time
}

// NewState creates an empty per-symbol state in IDLE.
func NewState(symbol string, now time.Time) *State {
	return &State{
		Symbol:    symbol,
		Phase:     PhaseIdle,
		EnteredAt: now,
	}
}

// record appends a transition, ring-bounded to the last 20 entries.
func (s *State) record(t Transition) {
	s.History = append(s.History, t)
	if len(s.History) > transitionHistoryLimit {
		s.History = s.History[len(s.History)-transitionHistoryLimit:]
	}
}

// resetSetup clears the per-setup fields on any return to IDLE. Session,
// context and trade counters survive; only the in-flight setup is dropped.
func (s *State) resetSetup() {
	s.Sweep = nil
	s.ChochConsumed = false
	s.ExpectedDirection = ""
	s.Gap = analysis.GapState{}
}
