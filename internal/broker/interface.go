package broker

import "context"

// TickHandler receives live price updates for a subscribed symbol.
type TickHandler func(Tick)

// Adapter is the narrow interface the engine uses to talk to a broker.
// All methods that reach the network take a context; failures are returned,
// never panicked, so a bad cycle can be logged and skipped.
type Adapter interface {
	// GetCandleHistory returns up to count most recent candles for the
	// symbol/timeframe, oldest first. The last element may still be open.
	GetCandleHistory(ctx context.Context, symbol, timeframe string, count int) ([]Candle, error)

	// SubscribePrice registers a tick callback for the symbol. Only one
	// subscription per symbol is kept; a second call replaces the handler.
	SubscribePrice(symbol string, onTick TickHandler) error

	// UnsubscribePrice removes the symbol's tick subscription.
	UnsubscribePrice(symbol string)

	// PlaceOrder submits an order. A failed placement is reported through
	// OrderResult.Success, not through the error, unless transport failed.
	PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)

	// GetOpenPositions returns all currently open positions.
	GetOpenPositions(ctx context.Context) ([]Position, error)

	// UpdateTrailingStop moves the stop of a position to the given price.
	UpdateTrailingStop(ctx context.Context, positionID string, stopPrice float64) (bool, error)

	// GetAccountEquity returns the account's current equity.
	GetAccountEquity(ctx context.Context) (float64, error)

	// GetSymbolSpec returns pricing and volume constraints for a symbol.
	GetSymbolSpec(ctx context.Context, symbol string) (*SymbolSpec, error)
}
