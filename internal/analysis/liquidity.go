package analysis

import (
	"fmt"
	"sort"
	"time"

	"institutional-trading-bot/internal/broker"
)

// PoolType identifies where a liquidity pool came from.
type PoolType string

const (
	PoolSessionHigh PoolType = "SESSION_HIGH"
	PoolSessionLow  PoolType = "SESSION_LOW"
	PoolDailyHigh   PoolType = "DAILY_HIGH"
	PoolDailyLow    PoolType = "DAILY_LOW"
	PoolSwingHigh   PoolType = "SWING_HIGH"
	PoolSwingLow    PoolType = "SWING_LOW"
)

// Priority orders pool sources when several coincide: session pools are
// preferred over daily, daily over swing fallbacks.
func (t PoolType) Priority() int {
	switch t {
	case PoolSessionHigh, PoolSessionLow:
		return 1
	case PoolDailyHigh, PoolDailyLow:
		return 2
	default:
		return 3
	}
}

// IsHigh reports whether the pool sits above price (buy-side liquidity).
func (t PoolType) IsHigh() bool {
	switch t {
	case PoolSessionHigh, PoolDailyHigh, PoolSwingHigh:
		return true
	}
	return false
}

// SweepDirection records which side of liquidity was taken.
type SweepDirection string

const (
	SweepOfHighs SweepDirection = "HIGH" // buy-side liquidity taken, bearish implication
	SweepOfLows  SweepDirection = "LOW"  // sell-side liquidity taken, bullish implication
)

// Pool is one liquidity pool.
type Pool struct {
	Type      PoolType       `json:"type"`
	Price     float64        `json:"price"`
	CreatedAt time.Time      `json:"created_at"`
	Swept     bool           `json:"swept"`
	SweptAt   time.Time      `json:"swept_at,omitempty"`
	SweptDir  SweepDirection `json:"swept_dir,omitempty"`
}

// Key is the pool's deterministic identity. Rebuilding pools from unchanged
// inputs yields the same key, so a pool's swept flag survives recomputation.
func (p *Pool) Key() string {
	return fmt.Sprintf("%s_%.5f_%d", p.Type, p.Price, p.CreatedAt.Unix())
}

// Sweep is a confirmed liquidity sweep on a closed candle.
type Sweep struct {
	Pool      *Pool          `json:"pool"`
	Direction SweepDirection `json:"direction"`
	Price     float64        `json:"price"` // extreme of the sweeping candle
	Time      time.Time      `json:"time"`  // close time of the sweeping candle
}

// PoolTracker derives liquidity pools from session, daily and swing levels
// and confirms sweeps against closed candles. Pool identity persists across
// rebuilds so a pool swept on an earlier cycle stays swept.
type PoolTracker struct {
	pipSize    float64
	bufferPips float64
	pools      map[string]*Pool
}

// NewPoolTracker creates a tracker. bufferPips is how far beyond a pool price
// the candle extreme must reach before a pierce counts.
func NewPoolTracker(pipSize, bufferPips float64) *PoolTracker {
	return &PoolTracker{
		pipSize:    pipSize,
		bufferPips: bufferPips,
		pools:      make(map[string]*Pool),
	}
}

// Build recomputes the pool set from the latest session state and swing
// points. Existing pools with the same identity keep their swept status.
func (t *PoolTracker) Build(state SessionState, swingHighs, swingLows []SwingPoint) []*Pool {
	candidates := make([]*Pool, 0, 8)

	if prev := state.Previous; prev != nil && prev.Range() > 0 {
		candidates = append(candidates,
			&Pool{Type: PoolSessionHigh, Price: prev.High, CreatedAt: prev.End},
			&Pool{Type: PoolSessionLow, Price: prev.Low, CreatedAt: prev.End},
		)
	}
	if day := state.PreviousDay; day != nil {
		candidates = append(candidates,
			&Pool{Type: PoolDailyHigh, Price: day.High, CreatedAt: day.Date},
			&Pool{Type: PoolDailyLow, Price: day.Low, CreatedAt: day.Date},
		)
	}
	// Swing fallbacks: most recent swing on each side.
	if n := len(swingHighs); n > 0 {
		sp := swingHighs[n-1]
		candidates = append(candidates, &Pool{Type: PoolSwingHigh, Price: sp.Price, CreatedAt: sp.Time})
	}
	if n := len(swingLows); n > 0 {
		sp := swingLows[n-1]
		candidates = append(candidates, &Pool{Type: PoolSwingLow, Price: sp.Price, CreatedAt: sp.Time})
	}

	next := make(map[string]*Pool, len(candidates))
	out := make([]*Pool, 0, len(candidates))
	for _, c := range candidates {
		key := c.Key()
		if existing, ok := t.pools[key]; ok {
			next[key] = existing
			out = append(out, existing)
		} else {
			next[key] = c
			out = append(out, c)
		}
	}
	t.pools = next

	return out
}

// Pools returns the current pool set, ordered by priority then price.
func (t *PoolTracker) Pools() []*Pool {
	out := make([]*Pool, 0, len(t.pools))
	for _, p := range t.pools {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type.Priority() != out[j].Type.Priority() {
			return out[i].Type.Priority() < out[j].Type.Priority()
		}
		return out[i].Price < out[j].Price
	})
	return out
}

// DetectSweep checks whether the closed candle confirms a sweep of any
// unswept pool: the candle extreme must pierce the pool price by at least the
// buffer, and the candle must close back on the original side. A mere touch
// does not confirm. When several pools qualify, the lowest-priority-number
// pool wins; equal priorities break on the pool key so the winner does not
// depend on map iteration order.
func (t *PoolTracker) DetectSweep(candle broker.Candle) *Sweep {
	buffer := t.bufferPips * t.pipSize

	var qualified []*Pool
	for _, p := range t.pools {
		if p.Swept {
			continue
		}
		if p.Type.IsHigh() {
			if candle.High >= p.Price+buffer && candle.Close < p.Price {
				qualified = append(qualified, p)
			}
		} else {
			if candle.Low <= p.Price-buffer && candle.Close > p.Price {
				qualified = append(qualified, p)
			}
		}
	}
	if len(qualified) == 0 {
		return nil
	}
	sort.Slice(qualified, func(i, j int) bool {
		if qualified[i].Type.Priority() != qualified[j].Type.Priority() {
			return qualified[i].Type.Priority() < qualified[j].Type.Priority()
		}
		return qualified[i].Key() < qualified[j].Key()
	})
	best := qualified[0]

	dir := SweepOfLows
	price := candle.Low
	if best.Type.IsHigh() {
		dir = SweepOfHighs
		price = candle.High
	}

	best.Swept = true
	best.SweptAt = candle.CloseTime
	best.SweptDir = dir

	return &Sweep{Pool: best, Direction: dir, Price: price, Time: candle.CloseTime}
}

// Reset clears all tracked pools.
func (t *PoolTracker) Reset() {
	t.pools = make(map[string]*Pool)
}
