package analysis

// RangeLocation classifies current price within the previous session's range.
type RangeLocation string

const (
	LocationTop    RangeLocation = "TOP"
	LocationMid    RangeLocation = "MID"
	LocationBottom RangeLocation = "BOTTOM"
	LocationNone   RangeLocation = "NONE" // no previous session
)

// Bias is the directional permission derived from the range location.
type Bias string

const (
	BiasShort Bias = "SHORT_ONLY"
	BiasLong  Bias = "LONG_ONLY"
	BiasBoth  Bias = "BOTH"
	BiasNone  Bias = "NONE"
)

// Grade scores setup quality. Extremes give a liquidity-sweep rationale and
// grade A; mid-range setups are demoted to B; degenerate context is NO_TRADE.
type Grade string

const (
	GradeA       Grade = "A"
	GradeB       Grade = "B"
	GradeNoTrade Grade = "NO_TRADE"
)

// MarketContext is the classifier's output for one evaluation.
type MarketContext struct {
	Location  RangeLocation `json:"location"`
	Bias      Bias          `json:"bias"`
	Grade     Grade         `json:"grade"`
	RangeHigh float64       `json:"range_high"`
	RangeLow  float64       `json:"range_low"`
}

// CanTrade is false only for NO_TRADE grade.
func (c MarketContext) CanTrade() bool {
	return c.Grade != GradeNoTrade
}

// EvaluateContext classifies the current price against the previous session's
// range. A nil or zero-range previous session yields NO_TRADE.
func EvaluateContext(price float64, previous *Session) MarketContext {
	if previous == nil || previous.Range() <= 0 {
		return MarketContext{Location: LocationNone, Bias: BiasNone, Grade: GradeNoTrade}
	}

	third := previous.Range() / 3
	ctx := MarketContext{RangeHigh: previous.High, RangeLow: previous.Low}

	switch {
	case price >= previous.High-third:
		ctx.Location = LocationTop
		ctx.Bias = BiasShort
		ctx.Grade = GradeA
	case price <= previous.Low+third:
		ctx.Location = LocationBottom
		ctx.Bias = BiasLong
		ctx.Grade = GradeA
	default:
		ctx.Location = LocationMid
		ctx.Bias = BiasBoth
		ctx.Grade = GradeB
	}

	return ctx
}
