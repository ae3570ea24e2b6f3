package broker

import (
	"time"
)

// Candle represents a single OHLCV candle on some timeframe.
type Candle struct {
	OpenTime  time.Time `json:"openTime"`
	CloseTime time.Time `json:"closeTime"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// IsClosedAt reports whether the candle was fully closed strictly before now.
// The in-progress candle must never feed sweep or mitigation decisions.
func (c Candle) IsClosedAt(now time.Time) bool {
	return c.CloseTime.Before(now)
}

// Tick is a single live price update.
type Tick struct {
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	Time   time.Time `json:"time"`
}

// Direction of an order or position.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// OrderType supported by the adapter.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// VolumeUnits is the broker's indivisible order size unit ("cents").
// Keeping the unit in the type prevents silent lot/unit mixups.
type VolumeUnits int64

// Lots is a human-readable order size. One standard lot is
// VolumeSpecs.UnitsPerLot volume units.
type Lots float64

// VolumeSpecs describes the broker's order size constraints for a symbol.
type VolumeSpecs struct {
	MinVolume   VolumeUnits `json:"min_volume"`
	MaxVolume   VolumeUnits `json:"max_volume"`
	StepVolume  VolumeUnits `json:"step_volume"`
	UnitsPerLot VolumeUnits `json:"units_per_lot"`
}

// ToLots converts broker volume units to lots.
func (s VolumeSpecs) ToLots(units VolumeUnits) Lots {
	if s.UnitsPerLot <= 0 {
		return 0
	}
	return Lots(float64(units) / float64(s.UnitsPerLot))
}

// SymbolSpec describes pricing units for a symbol.
type SymbolSpec struct {
	Symbol          string      `json:"symbol"`
	PipSize         float64     `json:"pip_size"`           // price increment of one pip
	PipValuePerUnit float64     `json:"pip_value_per_unit"` // account currency value of one pip per volume unit
	Volume          VolumeSpecs `json:"volume"`
}

// OrderRequest is a request to open a position.
type OrderRequest struct {
	Symbol         string      `json:"symbol"`
	Direction      Direction   `json:"direction"`
	Type           OrderType   `json:"type"`
	Volume         VolumeUnits `json:"volume"`
	Price          float64     `json:"price,omitempty"` // limit orders only
	StopLossPips   float64     `json:"stop_loss_pips"`
	TakeProfitPips float64     `json:"take_profit_pips"`
	Comment        string      `json:"comment,omitempty"`
	ClientOrderID  string      `json:"client_order_id"`
}

// OrderResult is the adapter's response to an order request.
type OrderResult struct {
	Success        bool    `json:"success"`
	OrderID        string  `json:"order_id,omitempty"`
	ExecutionPrice float64 `json:"execution_price,omitempty"`
	ErrorMessage   string  `json:"error_message,omitempty"`
}

// Position is an open position as reported by the broker.
type Position struct {
	PositionID string    `json:"position_id"`
	Symbol     string    `json:"symbol"`
	Direction  Direction `json:"direction"`
	Volume     VolumeUnits `json:"volume"`
	EntryPrice float64   `json:"entry_price"`
	OpenedAt   time.Time `json:"opened_at"`
}
