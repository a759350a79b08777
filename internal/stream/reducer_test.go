// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"testing"
)

// =============================================================================
// STATE TESTS
// =============================================================================

func TestState_PureSteps(t *testing.T) {
	s := State{RequestID: "r1", Phase: PhaseConnecting}

	s2 := s.Append("Hel").Append("lo").WithPhase(PhaseStreaming)

	if s2.Content != "Hello" {
		t.Errorf("Content = %q, want %q", s2.Content, "Hello")
	}
	if s2.Phase != PhaseStreaming {
		t.Errorf("Phase = %v, want PhaseStreaming", s2.Phase)
	}

	// The original value is untouched.
	if s.Content != "" || s.Phase != PhaseConnecting {
		t.Errorf("receiver mutated: %+v", s)
	}
}

func TestState_AppendVerbatim(t *testing.T) {
	s := State{}
	for _, d := range []string{"  a  ", "a", "\n", "", "日本"} {
		s = s.Append(d)
	}
	if s.Content != "  a  a\n日本" {
		t.Errorf("Content = %q", s.Content)
	}
}

func TestPhase_String(t *testing.T) {
	cases := map[Phase]string{
		PhaseIdle:       "idle",
		PhaseConnecting: "connecting",
		PhaseStreaming:  "streaming",
		PhaseComplete:   "complete",
		PhaseError:      "error",
		Phase(99):       "unknown",
	}
	for p, want := range cases {
		if got := p.String(); got != want {
			t.Errorf("Phase(%d).String() = %q, want %q", p, got, want)
		}
	}
}

func TestPhase_Active(t *testing.T) {
	for _, p := range []Phase{PhaseConnecting, PhaseStreaming} {
		if !p.Active() {
			t.Errorf("%v.Active() = false", p)
		}
	}
	for _, p := range []Phase{PhaseIdle, PhaseComplete, PhaseError} {
		if p.Active() {
			t.Errorf("%v.Active() = true", p)
		}
	}
}

// =============================================================================
// REDUCER TESTS
// =============================================================================

func TestReducer_PublishesEveryDelta(t *testing.T) {
	var seen []State
	r := NewReducer("req-1", func(s State) { seen = append(seen, s) })

	r.Transition(PhaseConnecting)
	r.Apply("Hel")
	r.Apply("lo")
	r.Transition(PhaseComplete)

	want := []struct {
		phase   Phase
		content string
	}{
		{PhaseConnecting, ""},
		{PhaseStreaming, "Hel"},
		{PhaseStreaming, "Hello"},
		{PhaseComplete, "Hello"},
	}
	if len(seen) != len(want) {
		t.Fatalf("got %d notifications, want %d", len(seen), len(want))
	}
	for i, w := range want {
		if seen[i].Phase != w.phase || seen[i].Content != w.content {
			t.Errorf("notification %d = {%v %q}, want {%v %q}",
				i, seen[i].Phase, seen[i].Content, w.phase, w.content)
		}
		if seen[i].RequestID != "req-1" {
			t.Errorf("notification %d RequestID = %q", i, seen[i].RequestID)
		}
	}
}

func TestReducer_FirstDeltaStartsStreaming(t *testing.T) {
	r := NewReducer("req-2", nil)
	r.Transition(PhaseConnecting)
	r.Apply("x")

	snap := r.Snapshot()
	if snap.Phase != PhaseStreaming {
		t.Errorf("Phase = %v, want PhaseStreaming", snap.Phase)
	}
	if r.Content() != "x" {
		t.Errorf("Content() = %q", r.Content())
	}
}

func TestReducer_NilSubscriber(t *testing.T) {
	r := NewReducer("req-3", nil)
	r.Transition(PhaseConnecting)
	r.Apply("no panic")
	if r.Content() != "no panic" {
		t.Errorf("Content() = %q", r.Content())
	}
}

// =============================================================================
// COALESCER TESTS
// =============================================================================

func TestCoalescer_FirstOfferForwarded(t *testing.T) {
	var got []State
	c := NewCoalescer(1, func(s State) { got = append(got, s) })

	c.Offer(State{Content: "a"})
	if len(got) != 1 || got[0].Content != "a" {
		t.Fatalf("got %v, want one snapshot %q", got, "a")
	}
}

func TestCoalescer_HoldsNewestAndFlushes(t *testing.T) {
	var got []string
	// One token per second with burst 1: the first Offer passes, the rest
	// of the burst is throttled.
	c := NewCoalescer(1, func(s State) { got = append(got, s.Content) })

	c.Offer(State{Content: "a"})
	c.Offer(State{Content: "ab"})
	c.Offer(State{Content: "abc"})
	c.Flush()

	want := []string{"a", "abc"}
	if len(got) != len(want) {
		t.Fatalf("forwarded %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("forwarded[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestCoalescer_FlushWithoutPendingIsNoop(t *testing.T) {
	calls := 0
	c := NewCoalescer(1, func(State) { calls++ })
	c.Flush()
	if calls != 0 {
		t.Errorf("forward called %d times on empty flush", calls)
	}
}

func TestCoalescer_DefaultRate(t *testing.T) {
	c := NewCoalescer(0, func(State) {})
	if c.limiter.Limit() != DefaultUpdatesPerSecond {
		t.Errorf("limit = %v, want %v", c.limiter.Limit(), DefaultUpdatesPerSecond)
	}
}
