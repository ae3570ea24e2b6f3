package risk

import (
	"log"
	"sync"
	"time"

	"institutional-trading-bot/internal/broker"
)

// TrailingConfig holds trailing stop configuration. Distances are in pips.
type TrailingConfig struct {
	Enabled        bool    `json:"enabled"`
	ActivationPips float64 `json:"activation_pips"` // profit in pips before trailing arms
	DistancePips   float64 `json:"distance_pips"`   // distance from the water mark
	PipSize        float64 `json:"pip_size"`
}

// TrailingPosition tracks one position with a trailing stop.
type TrailingPosition struct {
	PositionID       string
	Symbol           string
	Direction        broker.Direction
	EntryPrice       float64
	CurrentStopPrice float64
	HighWaterMark    float64 // highest price since entry, for longs
	LowWaterMark     float64 // lowest price since entry, for shorts
	Activated        bool
	LastUpdate       time.Time
}

// StopUpdate is a recommended stop move for the broker.
type StopUpdate struct {
	PositionID   string
	NewStopPrice float64
}

// TrailingStopManager maintains trailing stops for open positions. It only
// computes recommended stop moves; the cycle driver pushes them to the
// broker.
type TrailingStopManager struct {
	cfg       TrailingConfig
	positions map[string]*TrailingPosition
	mu        sync.RWMutex
}

// NewTrailingStopManager creates a manager.
func NewTrailingStopManager(cfg TrailingConfig) *TrailingStopManager {
	return &TrailingStopManager{
		cfg:       cfg,
		positions: make(map[string]*TrailingPosition),
	}
}

// Track starts trailing a position.
func (m *TrailingStopManager) Track(positionID, symbol string, dir broker.Direction, entryPrice, stopPrice float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.positions[positionID] = &TrailingPosition{
		PositionID:       positionID,
		Symbol:           symbol,
		Direction:        dir,
		EntryPrice:       entryPrice,
		CurrentStopPrice: stopPrice,
		HighWaterMark:    entryPrice,
		LowWaterMark:     entryPrice,
		LastUpdate:       time.Now(),
	}
	log.Printf("[TrailingStop] tracking %s %s @ %.5f, stop %.5f", dir, symbol, entryPrice, stopPrice)
}

// Untrack stops trailing a position.
func (m *TrailingStopManager) Untrack(positionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.positions, positionID)
}

// TrackedIDs returns the IDs of all tracked positions.
func (m *TrailingStopManager) TrackedIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.positions))
	for id := range m.positions {
		out = append(out, id)
	}
	return out
}

// UpdatePrice feeds the latest price for a position's symbol and returns a
// stop update when the trailing stop should move. Stops only tighten, never
// loosen.
func (m *TrailingStopManager) UpdatePrice(positionID string, price float64) *StopUpdate {
	if !m.cfg.Enabled {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.positions[positionID]
	if !ok {
		return nil
	}

	activation := m.cfg.ActivationPips * m.cfg.PipSize
	distance := m.cfg.DistancePips * m.cfg.PipSize
	pos.LastUpdate = time.Now()

	if pos.Direction == broker.DirectionBuy {
		if price > pos.HighWaterMark {
			pos.HighWaterMark = price
		}
		if !pos.Activated && pos.HighWaterMark-pos.EntryPrice >= activation {
			pos.Activated = true
		}
		if pos.Activated {
			newStop := pos.HighWaterMark - distance
			if newStop > pos.CurrentStopPrice {
				pos.CurrentStopPrice = newStop
				return &StopUpdate{PositionID: positionID, NewStopPrice: newStop}
			}
		}
		return nil
	}

	// Short side mirrors the long logic.
	if price < pos.LowWaterMark {
		pos.LowWaterMark = price
	}
	if !pos.Activated && pos.EntryPrice-pos.LowWaterMark >= activation {
		pos.Activated = true
	}
	if pos.Activated {
		newStop := pos.LowWaterMark + distance
		if pos.CurrentStopPrice == 0 || newStop < pos.CurrentStopPrice {
			pos.CurrentStopPrice = newStop
			return &StopUpdate{PositionID: positionID, NewStopPrice: newStop}
		}
	}
	return nil
}
