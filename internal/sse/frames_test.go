// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sse

import (
	"strings"
	"testing"
)

// =============================================================================
// FRAME PARSER TESTS
// =============================================================================

// feedAll runs every chunk through the parser and returns the concatenated
// deltas and whether the sentinel was seen.
func feedAll(t *testing.T, p *Parser, chunks ...string) (string, bool) {
	t.Helper()
	var b strings.Builder
	ended := false
	for _, c := range chunks {
		deltas, done, err := p.Feed([]byte(c))
		if err != nil {
			t.Fatalf("Feed failed: %v", err)
		}
		for _, d := range deltas {
			b.WriteString(d)
		}
		if done {
			ended = true
		}
	}
	return b.String(), ended
}

func TestParser_SingleFrame(t *testing.T) {
	p := NewParser()
	got, done := feedAll(t, p,
		"data: {\"choices\":[{\"delta\":{\"content\":\"Hello\"}}]}\n",
		"data: [DONE]\n",
	)
	if got != "Hello" {
		t.Errorf("accumulated %q, want %q", got, "Hello")
	}
	if !done {
		t.Error("sentinel not reported")
	}
}

func TestParser_SplitMidPayload(t *testing.T) {
	p := NewParser()
	got, done := feedAll(t, p,
		"data: {\"choices\":[{\"delta\":{\"content\":\"Hel",
		"lo\"}}]}\n",
		"data: [DONE]\n",
	)
	if got != "Hello" {
		t.Errorf("accumulated %q, want %q", got, "Hello")
	}
	if !done {
		t.Error("sentinel not reported")
	}
}

func TestParser_ChunkBoundaryInvariance(t *testing.T) {
	stream := "data: {\"choices\":[{\"delta\":{\"content\":\"héllo \"}}]}\n" +
		": keep-alive\n" +
		"\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"wörld\"}}]}\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"!\"}}]}\n" +
		"data: [DONE]\n"

	want, wantDone := feedAll(t, NewParser(), stream)
	if !wantDone {
		t.Fatal("reference pass did not reach the sentinel")
	}

	// Every two-way byte split must agree with the single-chunk pass.
	for cut := 0; cut <= len(stream); cut++ {
		got, done := feedAll(t, NewParser(), stream[:cut], stream[cut:])
		if got != want || done != wantDone {
			t.Fatalf("cut=%d: got %q done=%v, want %q done=%v",
				cut, got, done, want, wantDone)
		}
	}

	// Byte-at-a-time delivery as the degenerate case.
	p := NewParser()
	var chunks []string
	for i := 0; i < len(stream); i++ {
		chunks = append(chunks, stream[i:i+1])
	}
	got, done := feedAll(t, p, chunks...)
	if got != want || done != wantDone {
		t.Errorf("byte-at-a-time: got %q done=%v, want %q done=%v",
			got, done, want, wantDone)
	}
}

func TestParser_SentinelStopsSameChunk(t *testing.T) {
	p := NewParser()
	got, done := feedAll(t, p,
		"data: {\"choices\":[{\"delta\":{\"content\":\"keep\"}}]}\n"+
			"data: [DONE]\n"+
			"data: {\"choices\":[{\"delta\":{\"content\":\"dropped\"}}]}\n"+
			"data: {not even json\n",
	)
	if got != "keep" {
		t.Errorf("accumulated %q, want %q", got, "keep")
	}
	if !done {
		t.Error("sentinel not reported")
	}
	if !p.Done() {
		t.Error("Done() = false after sentinel")
	}

	// Feeding after the sentinel is a no-op.
	deltas, done, err := p.Feed([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"late\"}}]}\n"))
	if err != nil {
		t.Fatalf("Feed after sentinel failed: %v", err)
	}
	if len(deltas) != 0 || !done {
		t.Errorf("Feed after sentinel = %v, %v; want no deltas, done", deltas, done)
	}
}

func TestParser_IgnoresNoise(t *testing.T) {
	p := NewParser()
	got, done := feedAll(t, p,
		"\n"+
			": heartbeat\n"+
			"event: message\n"+
			"id: 42\n"+
			"data: {\"choices\":[{\"delta\":{\"role\":\"assistant\"}}]}\n"+
			"data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n"+
			"data: {\"choices\":[{\"finish_reason\":\"stop\",\"delta\":{}}]}\n"+
			"data: [DONE]\n",
	)
	if got != "ok" {
		t.Errorf("accumulated %q, want %q", got, "ok")
	}
	if !done {
		t.Error("sentinel not reported")
	}
}

func TestParser_EmptyChoices(t *testing.T) {
	p := NewParser()
	got, _ := feedAll(t, p,
		"data: {\"choices\":[]}\n",
		"data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n",
	)
	if got != "x" {
		t.Errorf("accumulated %q, want %q", got, "x")
	}
}

func TestParser_MalformedLineSkippedWhenFollowed(t *testing.T) {
	// The broken frame is newline-terminated with valid frames behind it in
	// the same chunk, so it cannot be completed and must not delay delivery.
	p := NewParser()
	got, done := feedAll(t, p,
		"data: {\"choices\":[{\"delta\":{\"content\":\"a\"\n"+
			"data: {\"choices\":[{\"delta\":{\"content\":\"b\"}}]}\n"+
			"data: [DONE]\n",
	)
	if got != "b" {
		t.Errorf("accumulated %q, want %q", got, "b")
	}
	if !done {
		t.Error("sentinel not reported")
	}
}

func TestParser_MalformedLineRequeuedOnce(t *testing.T) {
	p := NewParser()

	// Newline-terminated but truncated payload, alone in the buffer. It is
	// put back in case the next chunk completes it.
	deltas, done, err := p.Feed([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"a\"\n"))
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	if len(deltas) != 0 || done {
		t.Fatalf("Feed = %v, %v; want no deltas, not done", deltas, done)
	}
	if p.Remainder() == "" {
		t.Fatal("malformed line was not re-queued")
	}

	// The next chunk does not complete it. The bad line is dropped after its
	// single retry and the stream continues.
	got, done := feedAll(t, p,
		"data: {\"choices\":[{\"delta\":{\"content\":\"b\"}}]}\n",
		"data: {\"choices\":[{\"delta\":{\"content\":\"c\"}}]}\n",
		"data: [DONE]\n",
	)
	if got != "c" {
		t.Errorf("accumulated %q, want %q", got, "c")
	}
	if !done {
		t.Error("sentinel not reported")
	}
}

func TestParser_RemainderAtStreamEnd(t *testing.T) {
	p := NewParser()
	got, done := feedAll(t, p,
		"data: {\"choices\":[{\"delta\":{\"content\":\"partial\"}}]}\n",
		"data: {\"choices\":[{\"delta\":{\"content\":\"cut off",
	)
	if got != "partial" {
		t.Errorf("accumulated %q, want %q", got, "partial")
	}
	if done {
		t.Error("done reported without a sentinel")
	}
	if p.Remainder() == "" {
		t.Error("truncated frame should remain buffered")
	}
}

func TestParser_Reset(t *testing.T) {
	p := NewParser()
	if _, done := feedAll(t, p, "data: [DONE]\n"); !done {
		t.Fatal("sentinel not reported")
	}
	p.Reset()
	if p.Done() {
		t.Error("Done() = true after Reset")
	}
	got, _ := feedAll(t, p, "data: {\"choices\":[{\"delta\":{\"content\":\"again\"}}]}\n")
	if got != "again" {
		t.Errorf("accumulated %q after Reset, want %q", got, "again")
	}
}
