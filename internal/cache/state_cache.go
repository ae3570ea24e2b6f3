// Package cache provides Redis-backed storage for the last observed
// institutional gate snapshot per (user, bot, symbol). When Redis is
// unavailable it falls back to an in-memory map so the status API keeps
// working.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"institutional-trading-bot/internal/institutional"
)

const (
	// snapshotKeyPrefix is the prefix for gate snapshot keys.
	// Format: gate:snapshot:{userID}:{botID}:{symbol}
	snapshotKeyPrefix = "gate:snapshot"

	// snapshotTTL bounds how long a stale snapshot survives. A running bot
	// refreshes its snapshot every analysis cycle.
	snapshotTTL = 48 * time.Hour
)

// GateSnapshot is the persisted view of one gate plus bookkeeping.
type GateSnapshot struct {
	UserID   string                 `json:"user_id"`
	BotID    string                 `json:"bot_id"`
	Snapshot institutional.Snapshot `json:"snapshot"`
	SavedAt  time.Time              `json:"saved_at"`
}

// StateCache stores gate snapshots in Redis with an in-memory fallback.
type StateCache struct {
	client         *redis.Client
	inMemory       map[string]*GateSnapshot
	mu             sync.RWMutex
	redisAvailable atomic.Bool
}

// NewStateCache creates a cache. A nil client means memory-only mode.
func NewStateCache(client *redis.Client) *StateCache {
	c := &StateCache{
		client:   client,
		inMemory: make(map[string]*GateSnapshot),
	}

	if client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			log.Printf("[StateCache] Redis unavailable at startup: %v, using in-memory cache", err)
			c.redisAvailable.Store(false)
		} else {
			c.redisAvailable.Store(true)
		}
	}

	return c
}

// Save stores a gate snapshot.
func (c *StateCache) Save(ctx context.Context, snap GateSnapshot) {
	snap.SavedAt = time.Now()
	key := snapshotKey(snap.UserID, snap.BotID, snap.Snapshot.Symbol)

	c.mu.Lock()
	c.inMemory[key] = &snap
	c.mu.Unlock()

	if c.client == nil || !c.redisAvailable.Load() {
		return
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		log.Printf("[StateCache] failed to marshal snapshot: %v", err)
		return
	}
	if err := c.client.Set(ctx, key, payload, snapshotTTL).Err(); err != nil {
		log.Printf("[StateCache] redis set failed: %v", err)
		c.redisAvailable.Store(false)
	}
}

// Get retrieves the latest snapshot for a (user, bot, symbol). Returns nil
// when none exists.
func (c *StateCache) Get(ctx context.Context, userID, botID, symbol string) *GateSnapshot {
	key := snapshotKey(userID, botID, symbol)

	if c.client != nil && c.redisAvailable.Load() {
		payload, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			var snap GateSnapshot
			if err := json.Unmarshal(payload, &snap); err == nil {
				return &snap
			}
		} else if err != redis.Nil {
			log.Printf("[StateCache] redis get failed: %v", err)
			c.redisAvailable.Store(false)
		}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.inMemory[key]
}

// Delete removes a snapshot, e.g. when a bot instance is removed.
func (c *StateCache) Delete(ctx context.Context, userID, botID, symbol string) {
	key := snapshotKey(userID, botID, symbol)

	c.mu.Lock()
	delete(c.inMemory, key)
	c.mu.Unlock()

	if c.client != nil && c.redisAvailable.Load() {
		if err := c.client.Del(ctx, key).Err(); err != nil {
			log.Printf("[StateCache] redis del failed: %v", err)
		}
	}
}

func snapshotKey(userID, botID, symbol string) string {
	return fmt.Sprintf("%s:%s:%s:%s", snapshotKeyPrefix, userID, botID, symbol)
}
