// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"sync"

	"golang.org/x/time/rate"
)

// DefaultUpdatesPerSecond caps renderer notifications when the config gives
// no explicit rate. Matches a comfortable terminal redraw cadence.
const DefaultUpdatesPerSecond = 30

// =============================================================================
// COALESCER
// =============================================================================

// Coalescer sits between a Reducer and a renderer. Deltas can arrive far
// faster than a terminal can usefully redraw; the coalescer forwards at most
// maxPerSecond snapshots and holds the newest one back when the limit is
// exceeded. Flush delivers the held snapshot, so the last published state is
// always the true final state of the cycle.
type Coalescer struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	forward func(State)
	pending *State
}

// NewCoalescer creates a coalescer that forwards to the given function.
// maxPerSecond values of zero or below fall back to the default cadence.
func NewCoalescer(maxPerSecond float64, forward func(State)) *Coalescer {
	if maxPerSecond <= 0 {
		maxPerSecond = DefaultUpdatesPerSecond
	}
	return &Coalescer{
		limiter: rate.NewLimiter(rate.Limit(maxPerSecond), 1),
		forward: forward,
	}
}

// Offer submits a snapshot. It is forwarded immediately when the rate limit
// allows, otherwise it replaces any held snapshot and waits for the next
// Offer or Flush. Intermediate snapshots may be skipped; the newest one
// never is.
func (c *Coalescer) Offer(s State) {
	c.mu.Lock()
	if !c.limiter.Allow() {
		c.pending = &s
		c.mu.Unlock()
		return
	}
	c.pending = nil
	c.mu.Unlock()
	c.forward(s)
}

// Flush forwards the held snapshot, if any, regardless of the rate limit.
// Call it on every phase transition out of streaming.
func (c *Coalescer) Flush() {
	c.mu.Lock()
	s := c.pending
	c.pending = nil
	c.mu.Unlock()
	if s != nil {
		c.forward(*s)
	}
}
