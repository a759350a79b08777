// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"sync"
)

// =============================================================================
// PHASE
// =============================================================================

// Phase is the lifecycle stage of one request/response cycle.
type Phase int

const (
	// PhaseIdle means no cycle is in flight.
	PhaseIdle Phase = iota

	// PhaseConnecting means the request was issued but no frame has
	// arrived yet.
	PhaseConnecting

	// PhaseStreaming means at least one frame has arrived and deltas are
	// being folded.
	PhaseStreaming

	// PhaseComplete means the stream ended normally.
	PhaseComplete

	// PhaseError means the cycle ended on a failure path.
	PhaseError
)

// String returns the lowercase phase name.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseConnecting:
		return "connecting"
	case PhaseStreaming:
		return "streaming"
	case PhaseComplete:
		return "complete"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// Active reports whether a cycle is in flight in this phase.
func (p Phase) Active() bool {
	return p == PhaseConnecting || p == PhaseStreaming
}

// =============================================================================
// STATE
// =============================================================================

// State is a snapshot of one streaming cycle. It is a plain value; the step
// methods return a modified copy and never mutate the receiver, so a fold
// over a delta sequence is a pure function of its inputs.
type State struct {
	// RequestID correlates this cycle with its HTTP request.
	RequestID string

	// Phase is the current lifecycle stage.
	Phase Phase

	// Content is the text accumulated so far for the in-flight message.
	Content string
}

// WithPhase returns the state moved to the given phase.
func (s State) WithPhase(p Phase) State {
	s.Phase = p
	return s
}

// Append returns the state with the delta folded onto the content. The
// delta is appended verbatim, no trimming and no deduplication.
func (s State) Append(delta string) State {
	s.Content += delta
	return s
}

// =============================================================================
// REDUCER
// =============================================================================

// Reducer folds deltas into a State and publishes every change to a single
// subscriber. Publication is synchronous with each applied delta, which is
// what produces the token-by-token effect downstream.
//
// Apply and Transition are called from the network goroutine; Snapshot may
// be called from any goroutine.
type Reducer struct {
	mu     sync.Mutex
	state  State
	notify func(State)
}

// NewReducer creates a reducer for one cycle. notify may be nil when no
// subscriber is interested, for example in tests of the fold itself.
func NewReducer(requestID string, notify func(State)) *Reducer {
	return &Reducer{
		state:  State{RequestID: requestID, Phase: PhaseIdle},
		notify: notify,
	}
}

// Transition moves the cycle to a new phase and publishes the result.
func (r *Reducer) Transition(p Phase) {
	r.mu.Lock()
	r.state = r.state.WithPhase(p)
	snap := r.state
	r.mu.Unlock()
	r.publish(snap)
}

// Apply folds one delta into the accumulator and publishes the result.
// The first delta moves a connecting cycle to the streaming phase.
func (r *Reducer) Apply(delta string) {
	r.mu.Lock()
	if r.state.Phase == PhaseConnecting {
		r.state = r.state.WithPhase(PhaseStreaming)
	}
	r.state = r.state.Append(delta)
	snap := r.state
	r.mu.Unlock()
	r.publish(snap)
}

// Snapshot returns a copy of the current state.
func (r *Reducer) Snapshot() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Content returns the accumulated text.
func (r *Reducer) Content() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Content
}

func (r *Reducer) publish(s State) {
	if r.notify != nil {
		r.notify(s)
	}
}
