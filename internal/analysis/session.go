package analysis

import (
	"time"

	"institutional-trading-bot/internal/broker"
)

// SessionKind names a trading session window.
type SessionKind string

const (
	SessionAsia    SessionKind = "ASIA"
	SessionLondon  SessionKind = "LONDON"
	SessionNewYork SessionKind = "NEW_YORK"
	SessionOff     SessionKind = "OFF"
)

// SessionWindow maps a minute-of-day range (UTC) to a session kind.
// Windows may wrap midnight (Start > End), e.g. Asia 23:00-07:00.
type SessionWindow struct {
	Kind        SessionKind `json:"kind"`
	StartMinute int         `json:"start_minute"`
	EndMinute   int         `json:"end_minute"`
}

// Contains reports whether the given minute-of-day falls inside the window.
func (w SessionWindow) Contains(minute int) bool {
	if w.StartMinute <= w.EndMinute {
		return minute >= w.StartMinute && minute < w.EndMinute
	}
	// Wraps midnight
	return minute >= w.StartMinute || minute < w.EndMinute
}

// DefaultSessionWindows returns the standard Asia/London/New York windows.
func DefaultSessionWindows() []SessionWindow {
	return []SessionWindow{
		{Kind: SessionAsia, StartMinute: 23 * 60, EndMinute: 7 * 60},
		{Kind: SessionLondon, StartMinute: 7 * 60, EndMinute: 13 * 60},
		{Kind: SessionNewYork, StartMinute: 13 * 60, EndMinute: 21 * 60},
	}
}

// Session accumulates one trading session's range.
type Session struct {
	Kind     SessionKind `json:"kind"`
	High     float64     `json:"high"`
	Low      float64     `json:"low"`
	Open     float64     `json:"open"`
	Close    float64     `json:"close"`
	Start    time.Time   `json:"start"`
	End      time.Time   `json:"end"`
	Complete bool        `json:"complete"`
}

// Range returns the session's high-low distance. Never negative.
func (s *Session) Range() float64 {
	if s == nil {
		return 0
	}
	return s.High - s.Low
}

// DayRange accumulates a calendar day's high/low for daily liquidity pools.
type DayRange struct {
	Date time.Time `json:"date"` // midnight UTC of the day
	High float64   `json:"high"`
	Low  float64   `json:"low"`
}

// SessionState is the session tracker's full state for one symbol.
// Current and Previous are nil until enough candles have been seen.
type SessionState struct {
	Current       *Session
	Previous      *Session
	CurrentDay    *DayRange
	PreviousDay   *DayRange
	LastProcessed time.Time // close time of the newest candle already folded in
}

// SessionTracker classifies candle timestamps into session windows and
// accumulates session and daily ranges as candles close.
type SessionTracker struct {
	windows []SessionWindow
}

// NewSessionTracker creates a tracker with the given windows. Empty windows
// fall back to the defaults.
func NewSessionTracker(windows []SessionWindow) *SessionTracker {
	if len(windows) == 0 {
		windows = DefaultSessionWindows()
	}
	return &SessionTracker{windows: windows}
}

// Classify returns the session kind for a UTC timestamp.
func (t *SessionTracker) Classify(ts time.Time) SessionKind {
	minute := ts.UTC().Hour()*60 + ts.UTC().Minute()
	for _, w := range t.windows {
		if w.Contains(minute) {
			return w.Kind
		}
	}
	return SessionOff
}

// Process folds newly closed candles into the state and returns the updated
// state. Re-delivered candles (close time not after LastProcessed) are
// ignored, so the same closed candle never accumulates twice.
func (t *SessionTracker) Process(state SessionState, candles []broker.Candle) SessionState {
	for _, c := range candles {
		if !c.CloseTime.After(state.LastProcessed) {
			continue
		}
		state = t.fold(state, c)
		state.LastProcessed = c.CloseTime
	}
	return state
}

func (t *SessionTracker) fold(state SessionState, c broker.Candle) SessionState {
	kind := t.Classify(c.OpenTime)

	if state.Current == nil || state.Current.Kind != kind {
		if state.Current != nil {
			// Freeze the just-completed session.
			state.Current.Complete = true
			state.Previous = state.Current
		}
		state.Current = &Session{
			Kind:  kind,
			High:  c.High,
			Low:   c.Low,
			Open:  c.Open,
			Close: c.Close,
			Start: c.OpenTime,
			End:   c.CloseTime,
		}
	} else {
		if c.High > state.Current.High {
			state.Current.High = c.High
		}
		if c.Low < state.Current.Low {
			state.Current.Low = c.Low
		}
		state.Current.Close = c.Close
		state.Current.End = c.CloseTime
	}

	day := c.OpenTime.UTC().Truncate(24 * time.Hour)
	if state.CurrentDay == nil || !state.CurrentDay.Date.Equal(day) {
		if state.CurrentDay != nil {
			state.PreviousDay = state.CurrentDay
		}
		state.CurrentDay = &DayRange{Date: day, High: c.High, Low: c.Low}
	} else {
		if c.High > state.CurrentDay.High {
			state.CurrentDay.High = c.High
		}
		if c.Low < state.CurrentDay.Low {
			state.CurrentDay.Low = c.Low
		}
	}

	return state
}
