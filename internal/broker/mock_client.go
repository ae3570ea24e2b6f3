package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockAdapter is an in-memory broker used for dry-run mode and tests.
// Candles and equity are seeded by the caller; orders fill instantly at the
// current price.
type MockAdapter struct {
	mu          sync.RWMutex
	candles     map[string][]Candle // key: symbol_timeframe
	subscribers map[string]TickHandler
	positions   map[string]*Position
	specs       map[string]*SymbolSpec
	equity      float64
	lastPrice   map[string]float64
	orders      []OrderRequest
	failNext    bool
}

// NewMockAdapter creates a mock broker with the given starting equity.
func NewMockAdapter(equity float64) *MockAdapter {
	return &MockAdapter{
		candles:     make(map[string][]Candle),
		subscribers: make(map[string]TickHandler),
		positions:   make(map[string]*Position),
		specs:       make(map[string]*SymbolSpec),
		equity:      equity,
		lastPrice:   make(map[string]float64),
	}
}

// SeedCandles installs candle history for a symbol/timeframe.
func (m *MockAdapter) SeedCandles(symbol, timeframe string, candles []Candle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candles[candleKey(symbol, timeframe)] = candles
}

// SeedSpec installs a symbol specification.
func (m *MockAdapter) SeedSpec(spec SymbolSpec) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.specs[spec.Symbol] = &spec
}

// SetEquity updates the mock account equity.
func (m *MockAdapter) SetEquity(equity float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.equity = equity
}

// FailNextOrder makes the next PlaceOrder return a rejected result.
func (m *MockAdapter) FailNextOrder() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = true
}

// PushTick delivers a tick to the symbol's subscriber, if any.
func (m *MockAdapter) PushTick(tick Tick) {
	m.mu.RLock()
	handler := m.subscribers[tick.Symbol]
	m.mu.RUnlock()

	m.mu.Lock()
	m.lastPrice[tick.Symbol] = tick.Price
	m.mu.Unlock()

	if handler != nil {
		handler(tick)
	}
}

// PlacedOrders returns a copy of all orders received so far.
func (m *MockAdapter) PlacedOrders() []OrderRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]OrderRequest, len(m.orders))
	copy(out, m.orders)
	return out
}

func (m *MockAdapter) GetCandleHistory(ctx context.Context, symbol, timeframe string, count int) ([]Candle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	candles, ok := m.candles[candleKey(symbol, timeframe)]
	if !ok {
		return nil, fmt.Errorf("no candles seeded for %s %s", symbol, timeframe)
	}
	if count > 0 && len(candles) > count {
		candles = candles[len(candles)-count:]
	}
	out := make([]Candle, len(candles))
	copy(out, candles)
	return out, nil
}

func (m *MockAdapter) SubscribePrice(symbol string, onTick TickHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers[symbol] = onTick
	return nil
}

func (m *MockAdapter) UnsubscribePrice(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscribers, symbol)
}

func (m *MockAdapter) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.orders = append(m.orders, req)

	if m.failNext {
		m.failNext = false
		return &OrderResult{Success: false, ErrorMessage: "rejected by mock"}, nil
	}

	price := m.lastPrice[req.Symbol]
	id := uuid.New().String()
	m.positions[id] = &Position{
		PositionID: id,
		Symbol:     req.Symbol,
		Direction:  req.Direction,
		Volume:     req.Volume,
		EntryPrice: price,
		OpenedAt:   time.Now(),
	}

	return &OrderResult{Success: true, OrderID: id, ExecutionPrice: price}, nil
}

func (m *MockAdapter) GetOpenPositions(ctx context.Context) ([]Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, *p)
	}
	return out, nil
}

func (m *MockAdapter) UpdateTrailingStop(ctx context.Context, positionID string, stopPrice float64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.positions[positionID]
	return ok, nil
}

func (m *MockAdapter) GetAccountEquity(ctx context.Context) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.equity, nil
}

func (m *MockAdapter) GetSymbolSpec(ctx context.Context, symbol string) (*SymbolSpec, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	spec, ok := m.specs[symbol]
	if !ok {
		return nil, fmt.Errorf("no spec seeded for %s", symbol)
	}
	out := *spec
	return &out, nil
}

// ClosePosition removes a position from the mock book.
func (m *MockAdapter) ClosePosition(positionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.positions, positionID)
}

func candleKey(symbol, timeframe string) string {
	return symbol + "_" + timeframe
}
