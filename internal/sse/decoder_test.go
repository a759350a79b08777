// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sse

import (
	"strings"
	"testing"
)

// =============================================================================
// LINE DECODER TESTS
// =============================================================================

func collectLines(t *testing.T, d *LineDecoder, chunks ...string) []string {
	t.Helper()
	var lines []string
	for _, c := range chunks {
		if err := d.Write([]byte(c)); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		for {
			line, ok := d.NextLine()
			if !ok {
				break
			}
			lines = append(lines, line)
		}
	}
	return lines
}

func TestLineDecoder_SingleChunk(t *testing.T) {
	var d LineDecoder
	lines := collectLines(t, &d, "one\ntwo\nthree\n")

	want := []string{"one", "two", "three"}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d", len(lines), len(want))
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestLineDecoder_SplitMidLine(t *testing.T) {
	var d LineDecoder
	lines := collectLines(t, &d, "hel", "lo\nwor", "ld\n")

	if len(lines) != 2 || lines[0] != "hello" || lines[1] != "world" {
		t.Errorf("lines = %v, want [hello world]", lines)
	}
}

func TestLineDecoder_CarriageReturn(t *testing.T) {
	var d LineDecoder
	lines := collectLines(t, &d, "a\r\nb\n")

	if len(lines) != 2 || lines[0] != "a" || lines[1] != "b" {
		t.Errorf("lines = %v, want [a b]", lines)
	}
}

func TestLineDecoder_RemainderStaysBuffered(t *testing.T) {
	var d LineDecoder
	lines := collectLines(t, &d, "complete\npartial")

	if len(lines) != 1 || lines[0] != "complete" {
		t.Errorf("lines = %v, want [complete]", lines)
	}
	if d.Buffered() != "partial" {
		t.Errorf("Buffered() = %q, want %q", d.Buffered(), "partial")
	}
}

func TestLineDecoder_SplitMultibyteRune(t *testing.T) {
	// "日本語\n" split inside the bytes of 本.
	raw := []byte("日本語\n")
	for cut := 1; cut < len(raw); cut++ {
		var d LineDecoder
		if err := d.Write(raw[:cut]); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		if err := d.Write(raw[cut:]); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		line, ok := d.NextLine()
		if !ok {
			t.Fatalf("cut=%d: no line yielded", cut)
		}
		if line != "日本語" {
			t.Errorf("cut=%d: line = %q, want %q", cut, line, "日本語")
		}
	}
}

func TestLineDecoder_ByteAtATime(t *testing.T) {
	input := "première ligne\nседьмая строка\n三行目\n"
	var d LineDecoder
	var lines []string
	for i := 0; i < len(input); i++ {
		if err := d.Write([]byte{input[i]}); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		for {
			line, ok := d.NextLine()
			if !ok {
				break
			}
			lines = append(lines, line)
		}
	}

	want := []string{"première ligne", "седьмая строка", "三行目"}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d", len(lines), len(want))
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestLineDecoder_Requeue(t *testing.T) {
	var d LineDecoder
	if err := d.Write([]byte("rest\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	d.Requeue("front")

	if d.Buffered() != "frontrest\n" {
		t.Errorf("Buffered() = %q, want %q", d.Buffered(), "frontrest\n")
	}
	line, ok := d.NextLine()
	if !ok || line != "frontrest" {
		t.Errorf("NextLine() = %q, %v", line, ok)
	}
}

func TestLineDecoder_Overflow(t *testing.T) {
	var d LineDecoder
	huge := strings.Repeat("x", MaxBufferSize+1)
	err := d.Write([]byte(huge))
	if err != ErrBufferOverflow {
		t.Errorf("Write of oversized chunk = %v, want ErrBufferOverflow", err)
	}
}

func TestLineDecoder_Reset(t *testing.T) {
	var d LineDecoder
	if err := d.Write([]byte("leftover")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	d.Reset()

	if !d.Empty() {
		t.Error("decoder should be empty after Reset")
	}
	if _, ok := d.NextLine(); ok {
		t.Error("NextLine should yield nothing after Reset")
	}
}
