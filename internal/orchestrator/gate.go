package orchestrator

import (
	"context"
	"time"
)

// Slot describes a granted call start.
type Slot struct {
	// Start is the instant recorded as the last call time.
	Start time.Time

	// Waited is how long the caller was held back by the interval.
	Waited time.Duration
}

// Gate enforces a minimum interval between the starts of outbound calls.
// Acquire blocks until a call may start and records that start as the new
// last-call time in the same step.
type Gate interface {
	Acquire(ctx context.Context) (Slot, error)
}

// LocalGate is an in-process Gate. Callers are serialized on a one-slot
// channel, so a second caller waits out the first caller's window instead of
// opening its own.
type LocalGate struct {
	interval time.Duration
	clock    Clock
	slot     chan struct{}
	last     time.Time // zero until the first call
}

// NewLocalGate creates a gate that spaces call starts by at least interval.
func NewLocalGate(interval time.Duration, clock Clock) *LocalGate {
	if clock == nil {
		clock = SystemClock()
	}
	return &LocalGate{
		interval: interval,
		clock:    clock,
		slot:     make(chan struct{}, 1),
	}
}

// Acquire implements Gate.
func (g *LocalGate) Acquire(ctx context.Context) (Slot, error) {
	if err := ctx.Err(); err != nil {
		return Slot{}, err
	}

	select {
	case g.slot <- struct{}{}:
	case <-ctx.Done():
		return Slot{}, ctx.Err()
	}
	defer func() { <-g.slot }()

	var waited time.Duration
	if !g.last.IsZero() {
		if wait := g.interval - g.clock.Now().Sub(g.last); wait > 0 {
			select {
			case <-g.clock.After(wait):
				waited = wait
			case <-ctx.Done():
				return Slot{}, ctx.Err()
			}
		}
	}

	g.last = g.clock.Now()
	return Slot{Start: g.last, Waited: waited}, nil
}
