// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/morganforge/clerk/internal/sse"
)

// streamReadSize is the read buffer for the response body. Chunks arrive
// in arbitrary sizes; the parser is indifferent to where they split.
const streamReadSize = 4096

// StreamError wraps a failure that occurred mid-stream, after some
// content may already have been received. The orchestrator discards the
// partial content on this path, never commits it.
type StreamError struct {
	Err error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	return fmt.Sprintf("stream interrupted: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *StreamError) Unwrap() error {
	return e.Err
}

// =============================================================================
// STREAMING CHAT
// =============================================================================

// ChatStream performs a streaming chat completion.
//
// onStart fires once, when a success status arrives and the body is about
// to be read. onDelta fires for every content delta in arrival order.
// The call returns when the terminal sentinel is observed, the stream
// ends cleanly, the context is canceled, or a failure occurs. A stream
// that ends mid-frame or before any frame is an error, not a completion.
func (c *Client) ChatStream(ctx context.Context, messages []ChatMessage, requestID string, onStart func(), onDelta func(string)) error {
	if !c.IsConfigured() {
		return ErrNotConfigured
	}

	body, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req, requestID)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := sharedStreamClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, rerr := readResponse(resp)
		if rerr != nil {
			raw = nil
		}
		return classifyStatus(resp.StatusCode, raw)
	}

	if onStart != nil {
		onStart()
	}
	return c.readStream(ctx, resp.Body, onDelta)
}

// readStream drives the frame parser over the response body until the
// sentinel or end of stream.
func (c *Client) readStream(ctx context.Context, body io.Reader, onDelta func(string)) error {
	parser := sse.NewParser()
	buf := make([]byte, streamReadSize)
	gotFrame := false

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			deltas, done, err := parser.Feed(buf[:n])
			if err != nil {
				return &StreamError{Err: err}
			}
			if len(deltas) > 0 {
				gotFrame = true
			}
			for _, d := range deltas {
				if onDelta != nil {
					onDelta(d)
				}
			}
			if done {
				return nil
			}
		}

		if readErr != nil {
			if readErr == io.EOF {
				return c.classifyEOF(parser, gotFrame)
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(readErr, context.Canceled) {
				return context.Canceled
			}
			return &StreamError{Err: readErr}
		}
	}
}

// classifyEOF decides what an end of stream without a sentinel means.
// Content followed by a clean cut is a completion, the backend just
// omitted the sentinel. No content at all means the response was not a
// stream. A dangling partial frame means the producer was cut off and
// the partial content must not be committed.
func (c *Client) classifyEOF(parser *sse.Parser, gotFrame bool) error {
	if parser.Remainder() != "" {
		return &StreamError{Err: errors.New("stream ended mid-frame")}
	}
	if !gotFrame {
		return ErrNoStream
	}
	return nil
}
