package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventPhaseTransition EventType = "PHASE_TRANSITION"
	EventFinalDecision   EventType = "FINAL_DECISION"
	EventOrderPlaced     EventType = "ORDER_PLACED"
	EventOrderRejected   EventType = "ORDER_REJECTED"
	EventBreakerTripped  EventType = "BREAKER_TRIPPED"
	EventBreakerReset    EventType = "BREAKER_RESET"
	EventBotStarted      EventType = "BOT_STARTED"
	EventBotStopped      EventType = "BOT_STOPPED"
	EventError           EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// Bus manages event publishing and subscriptions
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (b *Bus) Subscribe(eventType EventType, subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (b *Bus) SubscribeAll(subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allSubs = append(b.allSubs, subscriber)
}

// Publish sends an event to all subscribers
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if subs, ok := b.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event) // Run in goroutine to avoid blocking
		}
	}
	for _, sub := range b.allSubs {
		go sub(event)
	}
}

// PublishPhaseTransition publishes an institutional phase transition
func (b *Bus) PublishPhaseTransition(symbol, from, to, reason string) {
	b.Publish(Event{
		Type: EventPhaseTransition,
		Data: map[string]interface{}{
			"symbol": symbol,
			"from":   from,
			"to":     to,
			"reason": reason,
		},
	})
}

// PublishFinalDecision publishes a final gate decision
func (b *Bus) PublishFinalDecision(symbol, decision, direction, detail string) {
	b.Publish(Event{
		Type: EventFinalDecision,
		Data: map[string]interface{}{
			"symbol":    symbol,
			"decision":  decision,
			"direction": direction,
			"detail":    detail,
		},
	})
}

// PublishOrderPlaced publishes an order placement
func (b *Bus) PublishOrderPlaced(symbol, direction, orderID string, volume int64, executionPrice float64) {
	b.Publish(Event{
		Type: EventOrderPlaced,
		Data: map[string]interface{}{
			"symbol":          symbol,
			"direction":       direction,
			"order_id":        orderID,
			"volume":          volume,
			"execution_price": executionPrice,
		},
	})
}

// PublishBreakerTripped publishes a circuit breaker trip
func (b *Bus) PublishBreakerTripped(userID, botID, reason string, dailyPnLPercent float64) {
	b.Publish(Event{
		Type: EventBreakerTripped,
		Data: map[string]interface{}{
			"user_id":           userID,
			"bot_id":            botID,
			"reason":            reason,
			"daily_pnl_percent": dailyPnLPercent,
		},
	})
}

// PublishBreakerReset publishes a circuit breaker reset
func (b *Bus) PublishBreakerReset(userID, botID, reason string) {
	b.Publish(Event{
		Type: EventBreakerReset,
		Data: map[string]interface{}{
			"user_id": userID,
			"bot_id":  botID,
			"reason":  reason,
		},
	})
}
