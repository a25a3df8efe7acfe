package credit

import (
	"context"
	"sync"
)

// MemoryCounter is an in-process Counter, used in tests and single-instance
// deployments where no Redis is configured.
type MemoryCounter struct {
	mu     sync.Mutex
	totals map[string]int64
}

// NewMemoryCounter builds an empty in-process counter.
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{totals: make(map[string]int64)}
}

func (c *MemoryCounter) IncrBy(ctx context.Context, reservationID string, amount, ceiling int64) (int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current := c.totals[reservationID]
	next := current + amount
	if next > ceiling {
		return current, false, nil
	}
	c.totals[reservationID] = next
	return next, true, nil
}

func (c *MemoryCounter) Reset(ctx context.Context, reservationID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.totals, reservationID)
	return nil
}
