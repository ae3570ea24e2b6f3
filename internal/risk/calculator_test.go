package risk

import (
	"math"
	"strings"
	"testing"

	"institutional-trading-bot/internal/broker"
)

var testSpecs = broker.VolumeSpecs{
	MinVolume:   100000,
	MaxVolume:   100000000,
	StepVolume:  100000,
	UnitsPerLot: 10000000,
}

func TestCalculateNominalSizing(t *testing.T) {
	sizer := NewPositionSizer(1.0)

	// 1% of 10000 = 100 at risk; 10 pips of 0.0001/unit = 0.001 per unit, so
	// 100000 units, which lands exactly on a step boundary.
	result := sizer.Calculate(10000, 10, 0.0001, testSpecs)

	if !result.Approved {
		t.Fatalf("sizing rejected: %s", result.Reason)
	}
	if result.Units != 100000 {
		t.Errorf("units = %d, want 100000", result.Units)
	}
	if result.Units%testSpecs.StepVolume != 0 {
		t.Errorf("units %d not a multiple of step %d", result.Units, testSpecs.StepVolume)
	}
	if math.Abs(float64(result.Lots)-0.01) > 1e-12 {
		t.Errorf("lots = %v, want 0.01", result.Lots)
	}
	if math.Abs(result.RiskPercent-1.0) > 1e-9 {
		t.Errorf("realized risk = %v%%, want 1.0%%", result.RiskPercent)
	}
}

func TestCalculateFloorsToStep(t *testing.T) {
	sizer := NewPositionSizer(1.0)

	// Raw size 125000 units must floor to 100000, never round up.
	result := sizer.Calculate(12500, 10, 0.0001, testSpecs)
	if !result.Approved {
		t.Fatalf("sizing rejected: %s", result.Reason)
	}
	if result.Units != 100000 {
		t.Errorf("units = %d, want 100000 (floored)", result.Units)
	}
	if result.RiskPercent > 1.0 {
		t.Errorf("flooring increased risk: %v%%", result.RiskPercent)
	}
}

func TestCalculateRejectsOversizedMinimum(t *testing.T) {
	sizer := NewPositionSizer(1.0)

	// A tiny balance forces the broker minimum, which realizes 100% risk.
	result := sizer.Calculate(100, 10, 0.0001, testSpecs)
	if result.Approved {
		t.Fatalf("expected rejection, got %d units at %.2f%% risk", result.Units, result.RiskPercent)
	}
	if !strings.Contains(result.Reason, "minimum volume") {
		t.Errorf("reason = %q, want minimum-volume explanation", result.Reason)
	}
}

func TestCalculateClampsToMax(t *testing.T) {
	sizer := NewPositionSizer(1.0)

	// Huge balance: raw size exceeds MaxVolume and must clamp down.
	result := sizer.Calculate(1e9, 10, 0.0001, testSpecs)
	if !result.Approved {
		t.Fatalf("sizing rejected: %s", result.Reason)
	}
	if result.Units != testSpecs.MaxVolume {
		t.Errorf("units = %d, want clamped to %d", result.Units, testSpecs.MaxVolume)
	}
}

func TestCalculateInvalidInputs(t *testing.T) {
	sizer := NewPositionSizer(1.0)

	cases := []struct {
		name             string
		balance, sl, pip float64
		specs            broker.VolumeSpecs
	}{
		{"zero balance", 0, 10, 0.0001, testSpecs},
		{"negative balance", -100, 10, 0.0001, testSpecs},
		{"NaN balance", math.NaN(), 10, 0.0001, testSpecs},
		{"zero stop", 10000, 0, 0.0001, testSpecs},
		{"zero pip value", 10000, 10, 0, testSpecs},
		{"bad specs", 10000, 10, 0.0001, broker.VolumeSpecs{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := sizer.Calculate(tc.balance, tc.sl, tc.pip, tc.specs)
			if result.Approved {
				t.Error("expected rejection")
			}
			if result.Reason == "" {
				t.Error("rejection must carry a reason")
			}
		})
	}
}
