package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"institutional-trading-bot/internal/analysis"
	"institutional-trading-bot/internal/broker"
	"institutional-trading-bot/internal/cache"
	"institutional-trading-bot/internal/database"
	"institutional-trading-bot/internal/events"
	"institutional-trading-bot/internal/institutional"
	"institutional-trading-bot/internal/risk"
	"institutional-trading-bot/internal/strategy"
)

// Config holds one instance's wiring-independent settings.
type Config struct {
	UserID              string
	BotID               string
	Symbol              string
	Timeframe           string
	FineTimeframe       string
	CandleHistory       int
	AnalysisInterval    time.Duration
	MaintenanceInterval time.Duration
	SwingLookback       int
	StopLossPips        float64
	TakeProfitPips      float64
	PipSize             float64
	DryRun              bool
}

// Instance drives one bot: a single goroutine owns all mutable analysis and
// gate state, so no component below it needs locks. External callers only
// touch Start, Stop and Status.
type Instance struct {
	cfg     Config
	adapter broker.Adapter
	gate    *institutional.Gate
	sizer   *risk.PositionSizer
	breaker *risk.DailyBreaker
	trail   *risk.TrailingStopManager
	swings  *analysis.SwingDetector
	strats  []strategy.Strategy
	repo    *database.Repository
	cacheSt *cache.StateCache
	bus     *events.Bus
	log     zerolog.Logger

	ticks  chan broker.Tick
	stopCh chan struct{}
	wg     sync.WaitGroup

	mu             sync.Mutex
	running        bool
	lastTick       broker.Tick
	lastSignal     *strategy.Signal
	lastSnapshot   institutional.Snapshot
	analysisCount  int64
	tradesExecuted int64
	lastError      string
}

// Deps bundles the shared services an instance needs. Repo and Cache may be
// nil; the instance degrades to memory-only operation.
type Deps struct {
	Adapter broker.Adapter
	Gate    *institutional.Gate
	Sizer   *risk.PositionSizer
	Breaker *risk.DailyBreaker
	Trail   *risk.TrailingStopManager
	Strats  []strategy.Strategy
	Repo    *database.Repository
	Cache   *cache.StateCache
	Bus     *events.Bus
	Logger  zerolog.Logger
}

// New creates a stopped instance.
func New(cfg Config, deps Deps) *Instance {
	if cfg.AnalysisInterval <= 0 {
		cfg.AnalysisInterval = 60 * time.Second
	}
	if cfg.MaintenanceInterval <= 0 {
		cfg.MaintenanceInterval = 10 * time.Second
	}
	if cfg.CandleHistory <= 0 {
		cfg.CandleHistory = 200
	}
	lookback := cfg.SwingLookback
	if lookback <= 0 {
		lookback = 2
	}
	return &Instance{
		cfg:     cfg,
		adapter: deps.Adapter,
		gate:    deps.Gate,
		sizer:   deps.Sizer,
		breaker: deps.Breaker,
		trail:   deps.Trail,
		swings:  analysis.NewSwingDetector(lookback),
		strats:  deps.Strats,
		repo:    deps.Repo,
		cacheSt: deps.Cache,
		bus:     deps.Bus,
		log: deps.Logger.With().
			Str("component", "bot").
			Str("user_id", cfg.UserID).
			Str("bot_id", cfg.BotID).
			Str("symbol", cfg.Symbol).
			Logger(),
		ticks:  make(chan broker.Tick, 256),
		stopCh: make(chan struct{}),
	}
}

// Start subscribes to the price feed, restores persisted risk state and
// launches the run loop.
func (i *Instance) Start(ctx context.Context) error {
	i.mu.Lock()
	if i.running {
		i.mu.Unlock()
		return fmt.Errorf("bot %s already running", i.cfg.BotID)
	}
	i.running = true
	i.stopCh = make(chan struct{})
	i.mu.Unlock()

	if i.breaker != nil {
		if err := i.breaker.Restore(ctx, time.Now()); err != nil {
			i.log.Warn().Err(err).Msg("could not restore risk state, starting fresh")
		}
	}

	if err := i.adapter.SubscribePrice(i.cfg.Symbol, i.onTick); err != nil {
		i.mu.Lock()
		i.running = false
		i.mu.Unlock()
		return fmt.Errorf("subscribing to %s: %w", i.cfg.Symbol, err)
	}

	i.wg.Add(1)
	go i.run()

	if i.bus != nil {
		i.bus.Publish(events.Event{
			Type: events.EventBotStarted,
			Data: map[string]interface{}{
				"user_id": i.cfg.UserID,
				"bot_id":  i.cfg.BotID,
				"symbol":  i.cfg.Symbol,
			},
		})
	}
	i.log.Info().Msg("bot started")
	return nil
}

// Stop halts the run loop and unsubscribes. Safe to call twice.
func (i *Instance) Stop() {
	i.mu.Lock()
	if !i.running {
		i.mu.Unlock()
		return
	}
	i.running = false
	close(i.stopCh)
	i.mu.Unlock()

	i.adapter.UnsubscribePrice(i.cfg.Symbol)
	i.wg.Wait()

	if i.bus != nil {
		i.bus.Publish(events.Event{
			Type: events.EventBotStopped,
			Data: map[string]interface{}{
				"user_id": i.cfg.UserID,
				"bot_id":  i.cfg.BotID,
				"symbol":  i.cfg.Symbol,
			},
		})
	}
	i.log.Info().Msg("bot stopped")
}

// Breaker exposes the instance's circuit breaker for the control API. May be
// nil.
func (i *Instance) Breaker() *risk.DailyBreaker {
	return i.breaker
}

// Running reports whether the loop is active.
func (i *Instance) Running() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.running
}

func (i *Instance) onTick(t broker.Tick) {
	select {
	case i.ticks <- t:
	default:
		// Drop ticks under backpressure; the next one carries fresher data.
	}
}

// run is the only goroutine that touches the gate, the trackers and the
// trailing stop manager.
func (i *Instance) run() {
	defer i.wg.Done()

	analysisTicker := time.NewTicker(i.cfg.AnalysisInterval)
	defer analysisTicker.Stop()
	maintenanceTicker := time.NewTicker(i.cfg.MaintenanceInterval)
	defer maintenanceTicker.Stop()

	for {
		select {
		case <-i.stopCh:
			return
		case t := <-i.ticks:
			i.mu.Lock()
			i.lastTick = t
			i.mu.Unlock()
		case <-maintenanceTicker.C:
			i.maintenanceCycle()
		case <-analysisTicker.C:
			i.analysisCycle()
		}
	}
}

// analysisCycle runs one full evaluation: fetch candles, update the gate, and
// if entry is authorized, size and place the order.
func (i *Instance) analysisCycle() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	now := time.Now()

	i.mu.Lock()
	i.analysisCount++
	price := i.lastTick.Price
	i.mu.Unlock()

	coarse, err := i.adapter.GetCandleHistory(ctx, i.cfg.Symbol, i.cfg.Timeframe, i.cfg.CandleHistory)
	if err != nil {
		i.recordError(fmt.Sprintf("coarse candles: %v", err))
		return
	}
	fine, err := i.adapter.GetCandleHistory(ctx, i.cfg.Symbol, i.cfg.FineTimeframe, i.cfg.CandleHistory)
	if err != nil {
		i.recordError(fmt.Sprintf("fine candles: %v", err))
		return
	}
	if len(coarse) == 0 {
		return
	}
	if price <= 0 {
		price = coarse[len(coarse)-1].Close
	}

	swings := i.swings.Detect(analysis.ClosedOnly(coarse, now))

	authorized := i.gate.Process(coarse, fine, swings, price, now)

	signal := i.evaluateStrategies(coarse, price)

	i.saveSnapshot(ctx)

	if !authorized {
		return
	}

	dir := broker.DirectionBuy
	if i.gate.Direction() == analysis.TrendBearish {
		dir = broker.DirectionSell
	}

	if i.gate.Bypassed() {
		// Bypass authorizes every cycle but carries no setup; a strategy
		// signal is the entry trigger and supplies the direction.
		if signal == nil || signal.Type == strategy.SignalNone {
			return
		}
		dir = signal.Direction
	} else if signal != nil && signal.Type != strategy.SignalNone && signal.Direction != dir {
		i.log.Debug().
			Str("strategy_direction", string(signal.Direction)).
			Str("gate_direction", string(dir)).
			Msg("advisory signal disagrees with gate direction")
	}

	i.executeEntry(ctx, dir, price, now)
}

// evaluateStrategies runs the advisory signal generators and keeps the
// highest-confidence signal for status reporting. They never override the
// gate's direction.
func (i *Instance) evaluateStrategies(candles []broker.Candle, price float64) *strategy.Signal {
	var best *strategy.Signal
	for _, s := range i.strats {
		sig, err := s.Evaluate(candles, price)
		if err != nil {
			i.log.Debug().Err(err).Str("strategy", s.Name()).Msg("strategy evaluation failed")
			continue
		}
		if sig == nil || sig.Type == strategy.SignalNone {
			continue
		}
		if best == nil || sig.Confidence > best.Confidence {
			best = sig
		}
	}
	if best != nil {
		i.mu.Lock()
		i.lastSignal = best
		i.mu.Unlock()
	}
	return best
}

func (i *Instance) executeEntry(ctx context.Context, dir broker.Direction, price float64, now time.Time) {
	equity, err := i.adapter.GetAccountEquity(ctx)
	if err != nil {
		i.recordError(fmt.Sprintf("account equity: %v", err))
		return
	}

	if i.breaker != nil {
		i.breaker.Update(ctx, equity, now)

		positions, err := i.adapter.GetOpenPositions(ctx)
		if err != nil {
			i.recordError(fmt.Sprintf("open positions: %v", err))
			return
		}
		if ok, reason := i.breaker.CanOpen(len(positions), now); !ok {
			i.log.Info().Str("reason", reason).Msg("entry blocked by risk gate")
			return
		}
	}

	spec, err := i.adapter.GetSymbolSpec(ctx, i.cfg.Symbol)
	if err != nil {
		i.recordError(fmt.Sprintf("symbol spec: %v", err))
		return
	}

	sizing := i.sizer.Calculate(equity, i.cfg.StopLossPips, spec.PipValuePerUnit, spec.Volume)
	if !sizing.Approved {
		i.log.Warn().Str("reason", sizing.Reason).Msg("position sizing rejected")
		if i.bus != nil {
			i.bus.Publish(events.Event{
				Type: events.EventOrderRejected,
				Data: map[string]interface{}{"symbol": i.cfg.Symbol, "reason": sizing.Reason},
			})
		}
		return
	}

	if i.cfg.DryRun {
		i.log.Info().
			Str("direction", string(dir)).
			Int64("units", int64(sizing.Units)).
			Msg("dry run: entry authorized, order suppressed")
		i.gate.OnTradeExecuted(now)
		return
	}

	req := broker.OrderRequest{
		Symbol:         i.cfg.Symbol,
		Direction:      dir,
		Type:           broker.OrderTypeMarket,
		Volume:         sizing.Units,
		StopLossPips:   i.cfg.StopLossPips,
		TakeProfitPips: i.cfg.TakeProfitPips,
		Comment:        "institutional-entry",
		ClientOrderID:  uuid.NewString(),
	}

	result, err := i.adapter.PlaceOrder(ctx, req)
	if err != nil {
		i.recordError(fmt.Sprintf("place order: %v", err))
		return
	}
	if !result.Success {
		i.log.Warn().Str("error", result.ErrorMessage).Msg("order rejected by broker")
		if i.bus != nil {
			i.bus.Publish(events.Event{
				Type: events.EventOrderRejected,
				Data: map[string]interface{}{"symbol": i.cfg.Symbol, "reason": result.ErrorMessage},
			})
		}
		return
	}

	i.gate.OnTradeExecuted(now)
	i.mu.Lock()
	i.tradesExecuted++
	i.mu.Unlock()

	i.log.Info().
		Str("order_id", result.OrderID).
		Str("direction", string(dir)).
		Int64("units", int64(sizing.Units)).
		Float64("price", result.ExecutionPrice).
		Msg("order executed")

	if i.bus != nil {
		i.bus.PublishOrderPlaced(i.cfg.Symbol, string(dir), result.OrderID, int64(sizing.Units), result.ExecutionPrice)
	}

	if i.trail != nil {
		stop := result.ExecutionPrice - i.cfg.StopLossPips*i.cfg.PipSize
		if dir == broker.DirectionSell {
			stop = result.ExecutionPrice + i.cfg.StopLossPips*i.cfg.PipSize
		}
		i.trail.Track(result.OrderID, i.cfg.Symbol, dir, result.ExecutionPrice, stop)
	}

	if i.repo != nil {
		rec := database.ExecutedTradeRecord{
			UserID:         i.cfg.UserID,
			BotID:          i.cfg.BotID,
			Symbol:         i.cfg.Symbol,
			Direction:      string(dir),
			VolumeUnits:    int64(sizing.Units),
			ExecutionPrice: result.ExecutionPrice,
			OrderID:        result.OrderID,
			Comment:        req.Comment,
			ExecutedAt:     now,
		}
		if err := i.repo.RecordExecutedTrade(ctx, rec); err != nil {
			i.log.Warn().Err(err).Msg("could not record executed trade")
		}
	}
}

// maintenanceCycle reconciles trailing stops against the broker's open
// positions and pushes any recommended stop moves.
func (i *Instance) maintenanceCycle() {
	if i.trail == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	positions, err := i.adapter.GetOpenPositions(ctx)
	if err != nil {
		return
	}
	open := make(map[string]bool, len(positions))
	for _, p := range positions {
		open[p.PositionID] = true
	}
	for _, id := range i.trail.TrackedIDs() {
		if !open[id] {
			i.trail.Untrack(id)
		}
	}

	i.mu.Lock()
	price := i.lastTick.Price
	i.mu.Unlock()
	if price <= 0 {
		return
	}

	for _, id := range i.trail.TrackedIDs() {
		update := i.trail.UpdatePrice(id, price)
		if update == nil {
			continue
		}
		ok, err := i.adapter.UpdateTrailingStop(ctx, update.PositionID, update.NewStopPrice)
		if err != nil {
			i.log.Warn().Err(err).Str("position_id", id).Msg("trailing stop update failed")
			continue
		}
		if ok {
			i.log.Debug().
				Str("position_id", id).
				Float64("stop", update.NewStopPrice).
				Msg("trailing stop moved")
		}
	}
}

func (i *Instance) saveSnapshot(ctx context.Context) {
	snap := i.gate.Snapshot()
	i.mu.Lock()
	i.lastSnapshot = snap
	i.mu.Unlock()

	if i.cacheSt == nil {
		return
	}
	i.cacheSt.Save(ctx, cache.GateSnapshot{
		UserID:   i.cfg.UserID,
		BotID:    i.cfg.BotID,
		Snapshot: snap,
		SavedAt:  time.Now(),
	})
}

func (i *Instance) recordError(msg string) {
	i.mu.Lock()
	i.lastError = msg
	i.mu.Unlock()
	i.log.Error().Msg(msg)
}

// Status is a point-in-time view for the API.
type Status struct {
	UserID         string                 `json:"user_id"`
	BotID          string                 `json:"bot_id"`
	Symbol         string                 `json:"symbol"`
	Running        bool                   `json:"running"`
	LastTickPrice  float64                `json:"last_tick_price"`
	LastTickTime   time.Time              `json:"last_tick_time"`
	AnalysisCount  int64                  `json:"analysis_count"`
	TradesExecuted int64                  `json:"trades_executed"`
	LastError      string                 `json:"last_error,omitempty"`
	LastSignal     *strategy.Signal       `json:"last_signal,omitempty"`
	Gate           institutional.Snapshot `json:"gate"`
	Risk           *risk.DailyState       `json:"risk,omitempty"`
}

// Status reports the instance's current state.
func (i *Instance) Status() Status {
	i.mu.Lock()
	st := Status{
		UserID:         i.cfg.UserID,
		BotID:          i.cfg.BotID,
		Symbol:         i.cfg.Symbol,
		Running:        i.running,
		LastTickPrice:  i.lastTick.Price,
		LastTickTime:   i.lastTick.Time,
		AnalysisCount:  i.analysisCount,
		TradesExecuted: i.tradesExecuted,
		LastError:      i.lastError,
		LastSignal:     i.lastSignal,
		Gate:           i.lastSnapshot,
	}
	i.mu.Unlock()

	if i.breaker != nil {
		rs := i.breaker.State()
		st.Risk = &rs
	}
	return st
}
