package broker

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// PriceStream maintains a single websocket connection to the broker's tick
// feed and fans ticks out to per-symbol handlers. It reconnects with a capped
// backoff and resubscribes all active symbols after a reconnect.
type PriceStream struct {
	mu sync.RWMutex

	url       string
	conn      *websocket.Conn
	handlers  map[string]TickHandler
	isRunning bool
	stopChan  chan struct{}

	reconnects    int64
	ticksReceived int64
	lastTickTime  time.Time
}

type streamMessage struct {
	Type   string  `json:"type"`
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Time   int64   `json:"time"` // epoch millis
}

type streamCommand struct {
	Op      string   `json:"op"` // "subscribe" or "unsubscribe"
	Symbols []string `json:"symbols"`
}

// NewPriceStream creates a price stream for the given websocket URL.
func NewPriceStream(url string) *PriceStream {
	return &PriceStream{
		url:      url,
		handlers: make(map[string]TickHandler),
	}
}

// Start connects and begins dispatching ticks.
func (s *PriceStream) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("price stream already running")
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	go s.connectLoop()
	return nil
}

// Stop closes the connection and stops the reconnect loop.
func (s *PriceStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}
	s.isRunning = false
	close(s.stopChan)

	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

// Subscribe registers a tick handler for a symbol.
func (s *PriceStream) Subscribe(symbol string, handler TickHandler) error {
	symbol = strings.ToUpper(symbol)

	s.mu.Lock()
	s.handlers[symbol] = handler
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		return s.send(streamCommand{Op: "subscribe", Symbols: []string{symbol}})
	}
	return nil
}

// Unsubscribe removes a symbol's tick handler.
func (s *PriceStream) Unsubscribe(symbol string) {
	symbol = strings.ToUpper(symbol)

	s.mu.Lock()
	delete(s.handlers, symbol)
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		if err := s.send(streamCommand{Op: "unsubscribe", Symbols: []string{symbol}}); err != nil {
			log.Printf("[PriceStream] unsubscribe %s failed: %v", symbol, err)
		}
	}
}

func (s *PriceStream) connectLoop() {
	backoff := time.Second

	for {
		select {
		case <-s.stopChan:
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.Dial(s.url, nil)
		if err != nil {
			log.Printf("[PriceStream] dial failed: %v, retrying in %v", err, backoff)
			select {
			case <-time.After(backoff):
			case <-s.stopChan:
				return
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}

		backoff = time.Second

		s.mu.Lock()
		s.conn = conn
		s.reconnects++
		symbols := make([]string, 0, len(s.handlers))
		for sym := range s.handlers {
			symbols = append(symbols, sym)
		}
		s.mu.Unlock()

		if len(symbols) > 0 {
			if err := s.send(streamCommand{Op: "subscribe", Symbols: symbols}); err != nil {
				log.Printf("[PriceStream] resubscribe failed: %v", err)
			}
		}

		s.readLoop(conn)

		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
	}
}

func (s *PriceStream) readLoop(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			select {
			case <-s.stopChan:
				return
			default:
				log.Printf("[PriceStream] read error: %v", err)
				return
			}
		}
		s.handleMessage(message)
	}
}

func (s *PriceStream) handleMessage(message []byte) {
	var msg streamMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		log.Printf("[PriceStream] bad message: %v", err)
		return
	}
	if msg.Type != "tick" {
		return
	}

	s.mu.Lock()
	handler := s.handlers[strings.ToUpper(msg.Symbol)]
	s.ticksReceived++
	s.lastTickTime = time.Now()
	s.mu.Unlock()

	if handler != nil {
		handler(Tick{
			Symbol: strings.ToUpper(msg.Symbol),
			Price:  msg.Price,
			Time:   time.UnixMilli(msg.Time),
		})
	}
}

func (s *PriceStream) send(cmd streamCommand) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return fmt.Errorf("price stream not connected")
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

// Stats returns stream statistics for the status endpoint.
func (s *PriceStream) Stats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]interface{}{
		"running":        s.isRunning,
		"subscriptions":  len(s.handlers),
		"reconnects":     s.reconnects,
		"ticks_received": s.ticksReceived,
		"last_tick_time": s.lastTickTime,
	}
}
