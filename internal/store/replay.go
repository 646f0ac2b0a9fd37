package store

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrKeyReused is returned when an idempotency key arrives with a different
// operation or account than the one it was first used for.
var ErrKeyReused = errors.New("idempotency key reused for a different request")

const defaultReplayCapacity = 4096

type replay struct {
	op      string
	userID  int64
	balance decimal.Decimal
	err     error
}

// replayCache remembers the outcome of keyed mutations, dropping the oldest
// once full. Callers hold Store.mu.
type replayCache struct {
	capacity int
	entries  map[string]replay
	order    []string
}

func newReplayCache(capacity int) *replayCache {
	return &replayCache{capacity: capacity, entries: make(map[string]replay)}
}

func (c *replayCache) get(key string) (replay, bool) {
	r, ok := c.entries[key]
	return r, ok
}

func (c *replayCache) put(key string, r replay) {
	if key == "" {
		return
	}
	if _, exists := c.entries[key]; exists {
		c.entries[key] = r
		return
	}
	if c.capacity > 0 && len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = r
	c.order = append(c.order, key)
}
