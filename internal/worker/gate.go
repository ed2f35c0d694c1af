package worker

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Gate enforces a minimum interval between calls to one platform client.
// State is in-memory only; intervals reset on process start.
type Gate struct {
	limiter *rate.Limiter
}

// NewGate creates a gate that spaces calls at least interval apart. A zero or
// negative interval disables the gate.
func NewGate(interval time.Duration) *Gate {
	if interval <= 0 {
		return &Gate{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Gate{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wait blocks until the interval since the previous call has elapsed, or the
// context is cancelled.
func (g *Gate) Wait(ctx context.Context) error {
	return g.limiter.Wait(ctx)
}
