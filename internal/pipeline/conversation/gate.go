package conversation

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// DefaultGateLimit is the number of CRM calls a run may have in flight.
const DefaultGateLimit = 3

// Gate admits at most Limit concurrent CRM calls. Waiters are woken in FIFO
// order. Build one per run and pass it down; a Gate is never shared across runs.
type Gate struct {
	sem   *semaphore.Weighted
	limit int
}

// NewGate creates a gate admitting limit callers. A non-positive limit uses
// DefaultGateLimit.
func NewGate(limit int) *Gate {
	if limit <= 0 {
		limit = DefaultGateLimit
	}
	return &Gate{sem: semaphore.NewWeighted(int64(limit)), limit: limit}
}

// Limit returns the gate's capacity.
func (g *Gate) Limit() int {
	return g.limit
}

// Acquire blocks until a slot is free or ctx is done.
func (g *Gate) Acquire(ctx context.Context) error {
	return g.sem.Acquire(ctx, 1)
}

// Release frees a slot taken by Acquire.
func (g *Gate) Release() {
	g.sem.Release(1)
}

// Do runs fn while holding a slot.
func (g *Gate) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := g.Acquire(ctx); err != nil {
		return err
	}
	defer g.Release()
	return fn(ctx)
}
