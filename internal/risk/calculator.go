package risk

import (
	"fmt"
	"math"

	"institutional-trading-bot/internal/broker"
)

// SizingResult is the outcome of one position size calculation. A rejected
// result carries a machine-readable reason instead of silently over-risking.
type SizingResult struct {
	Units       broker.VolumeUnits `json:"units"`
	Lots        broker.Lots        `json:"lots"`
	RiskAmount  float64            `json:"risk_amount"`
	RiskPercent float64            `json:"risk_percent"` // realized, after normalization
	Approved    bool               `json:"approved"`
	Reason      string             `json:"reason,omitempty"`
}

// PositionSizer converts an account-risk percentage into a broker-compliant
// order size. All sizes are in broker volume units; lot conversion only
// happens at the edge for reporting.
type PositionSizer struct {
	riskPercent float64
}

// NewPositionSizer creates a sizer risking the given percent of balance per
// trade.
func NewPositionSizer(riskPercent float64) *PositionSizer {
	if riskPercent <= 0 {
		riskPercent = 1.0
	}
	return &PositionSizer{riskPercent: riskPercent}
}

// RiskPercent returns the configured per-trade risk percentage.
func (s *PositionSizer) RiskPercent() float64 {
	return s.riskPercent
}

// Calculate derives the order size for the given balance, stop distance and
// pip value, normalized to the broker's volume constraints: floored to the
// nearest step, then clamped to [min, max]. If even the minimum volume would
// realize more than twice the configured risk, the order is refused.
func (s *PositionSizer) Calculate(balance, stopLossPips, pipValuePerUnit float64, specs broker.VolumeSpecs) SizingResult {
	if balance <= 0 || math.IsNaN(balance) || math.IsInf(balance, 0) {
		return SizingResult{Reason: "invalid balance"}
	}
	if stopLossPips <= 0 {
		return SizingResult{Reason: "stop distance must be positive"}
	}
	if pipValuePerUnit <= 0 {
		return SizingResult{Reason: "invalid pip value"}
	}
	if specs.StepVolume <= 0 || specs.MinVolume <= 0 || specs.MaxVolume < specs.MinVolume {
		return SizingResult{Reason: "invalid volume specs"}
	}

	riskAmount := balance * (s.riskPercent / 100)
	riskPerUnit := stopLossPips * pipValuePerUnit

	rawUnits := riskAmount / riskPerUnit

	// Floor to the nearest step, then clamp.
	units := broker.VolumeUnits(math.Floor(rawUnits/float64(specs.StepVolume))) * specs.StepVolume
	if units < specs.MinVolume {
		units = specs.MinVolume
	}
	if units > specs.MaxVolume {
		units = specs.MaxVolume
	}

	realizedRisk := float64(units) * riskPerUnit
	realizedPercent := (realizedRisk / balance) * 100

	result := SizingResult{
		Units:       units,
		Lots:        specs.ToLots(units),
		RiskAmount:  realizedRisk,
		RiskPercent: realizedPercent,
	}

	if realizedPercent > 2*s.riskPercent {
		result.Approved = false
		result.Reason = fmt.Sprintf(
			"minimum volume realizes %.2f%% risk, exceeding twice the configured %.2f%%",
			realizedPercent, s.riskPercent)
		return result
	}

	result.Approved = true
	return result
}
