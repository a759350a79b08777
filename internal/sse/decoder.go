// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sse

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// MaxBufferSize is the maximum amount of undecoded text the decoder will
// hold while waiting for a newline. A well-behaved producer emits frames
// far below this; exceeding it indicates a broken or hostile stream.
const MaxBufferSize = 1024 * 1024

// ErrBufferOverflow is returned when the internal line buffer grows past
// MaxBufferSize without a newline appearing.
var ErrBufferOverflow = errors.New("sse: line buffer overflow")

// =============================================================================
// LINE DECODER
// =============================================================================

// LineDecoder accumulates byte chunks and yields complete lines.
//
// The decoder is stateful across calls: a trailing incomplete UTF-8 sequence
// is held back until its continuation bytes arrive, and any text after the
// last newline stays buffered for the next chunk. No line is yielded twice
// and no content is dropped.
type LineDecoder struct {
	// tail holds the bytes of an incomplete UTF-8 sequence seen at the end
	// of the previous chunk.
	tail []byte

	// buf holds decoded text that has not yet been split into lines.
	buf string
}

// Write appends a chunk of raw bytes to the decoder.
func (d *LineDecoder) Write(p []byte) error {
	if len(d.tail) > 0 {
		p = append(d.tail, p...)
		d.tail = nil
	}

	// Hold back a trailing incomplete rune so a multi-byte character split
	// across chunks decodes correctly once its remaining bytes arrive.
	cut := len(p)
	for i := len(p) - 1; i >= 0 && i >= len(p)-utf8.UTFMax; i-- {
		b := p[i]
		if b < utf8.RuneSelf {
			break // ASCII byte, sequence before it is complete
		}
		if utf8.RuneStart(b) {
			if !utf8.FullRune(p[i:]) {
				cut = i
			}
			break
		}
	}
	if cut < len(p) {
		d.tail = append(d.tail, p[cut:]...)
		p = p[:cut]
	}

	d.buf += string(p)
	if len(d.buf) > MaxBufferSize {
		return ErrBufferOverflow
	}
	return nil
}

// NextLine extracts the next complete line from the buffer.
// A single trailing carriage return is stripped. Returns ok=false when no
// complete line is buffered; the remainder stays in place for later chunks.
func (d *LineDecoder) NextLine() (string, bool) {
	i := strings.IndexByte(d.buf, '\n')
	if i < 0 {
		return "", false
	}
	line := d.buf[:i]
	d.buf = d.buf[i+1:]
	line = strings.TrimSuffix(line, "\r")
	return line, true
}

// Requeue puts raw text back at the front of the buffer. Used by the frame
// parser when a data payload turns out to be incomplete: the line waits, as
// plain buffered text, for the next chunk to complete it.
func (d *LineDecoder) Requeue(text string) {
	d.buf = text + d.buf
}

// Buffered returns the text currently held without a terminating newline.
func (d *LineDecoder) Buffered() string {
	return d.buf
}

// Empty reports whether the decoder holds no undecoded text.
// Held-back bytes of an incomplete UTF-8 sequence do not count: they cannot
// form a line on their own.
func (d *LineDecoder) Empty() bool {
	return len(d.buf) == 0
}

// Reset discards all buffered state.
func (d *LineDecoder) Reset() {
	d.tail = nil
	d.buf = ""
}
