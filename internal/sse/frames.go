// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sse

import (
	"encoding/json"
	"strings"
)

// Wire-format literals for the event-stream convention.
const (
	// dataPrefix marks a data-carrying frame.
	dataPrefix = "data:"

	// commentPrefix marks an ignorable comment line.
	commentPrefix = ":"

	// DoneSentinel is the literal payload that terminates a stream.
	DoneSentinel = "[DONE]"
)

// chunkEnvelope is the structured record carried by a data frame.
// Only the nested delta-content path is of interest; everything else in the
// payload is ignored.
type chunkEnvelope struct {
	Choices []struct {
		Delta struct {
			Content *string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// decodeDelta deserializes a frame payload and extracts the delta text.
// Returns present=false for valid payloads that carry no delta (heartbeats,
// role announcements, finish markers), and a non-nil error only when the
// payload is not valid JSON.
func decodeDelta(payload string) (delta string, present bool, err error) {
	var env chunkEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return "", false, err
	}
	if len(env.Choices) == 0 || env.Choices[0].Delta.Content == nil {
		return "", false, nil
	}
	return *env.Choices[0].Delta.Content, true, nil
}

// =============================================================================
// FRAME PARSER
// =============================================================================

// Parser consumes byte chunks and produces the deltas carried by the
// stream's data frames, in arrival order.
type Parser struct {
	dec  LineDecoder
	done bool

	// requeued is set after a malformed payload has been put back once.
	// If the line still does not parse after more input arrives, it is
	// dropped rather than re-queued again, so one bad frame cannot wedge
	// the rest of the stream behind it.
	requeued bool
}

// NewParser creates a parser with empty state.
func NewParser() *Parser {
	return &Parser{}
}

// Done reports whether the terminal sentinel has been observed.
func (p *Parser) Done() bool {
	return p.done
}

// Remainder returns any text still buffered without a terminating newline.
// A non-empty remainder at stream end means the producer was cut off
// mid-frame.
func (p *Parser) Remainder() string {
	return p.dec.Buffered()
}

// Feed appends a chunk and parses every complete frame it makes available.
//
// Classification per line:
//   - blank lines and comment lines are discarded
//   - lines without the data prefix are discarded
//   - a data line whose payload equals the sentinel ends the stream; no
//     further lines are processed, even if more follow in the same chunk
//   - a data line whose payload deserializes but carries no delta is a no-op
//
// Recovery: a data line whose payload fails to deserialize is re-queued at
// the front of the pending buffer, prefix reattached, and the pass is
// suspended so the next chunk can complete the payload. That path applies
// only when the offending line is the last buffered content; a malformed
// line with further content behind it is already newline-terminated, cannot
// be completed by any future chunk, and is skipped. Each line is re-queued
// at most once. A malformed frame never terminates the stream.
func (p *Parser) Feed(chunk []byte) (deltas []string, done bool, err error) {
	if p.done {
		return nil, true, nil
	}
	if err := p.dec.Write(chunk); err != nil {
		return nil, false, err
	}

	for {
		line, ok := p.dec.NextLine()
		if !ok {
			return deltas, false, nil
		}

		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, commentPrefix) {
			continue
		}
		if !strings.HasPrefix(trimmed, dataPrefix) {
			continue
		}

		payload := strings.TrimSpace(strings.TrimPrefix(trimmed, dataPrefix))
		if payload == DoneSentinel {
			p.done = true
			return deltas, true, nil
		}

		delta, present, derr := decodeDelta(payload)
		if derr != nil {
			if p.dec.Empty() && !p.requeued {
				p.requeued = true
				p.dec.Requeue(dataPrefix + " " + payload)
				return deltas, false, nil
			}
			// Either a newline already followed this frame, or one retry
			// has been spent on it. Nothing can complete it now.
			p.requeued = false
			continue
		}
		p.requeued = false
		if present && delta != "" {
			deltas = append(deltas, delta)
		}
	}
}

// Reset discards all parser state so the instance can consume a new stream.
func (p *Parser) Reset() {
	p.dec.Reset()
	p.done = false
	p.requeued = false
}
