// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package assistant

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/morganforge/clerk/internal/model"
)

// Configuration constants for the assistant backend.
const (
	// DefaultTimeout bounds non-streaming requests.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries is the retry budget for transient failures.
	DefaultMaxRetries = 3

	// retryBaseDelay is the base delay for exponential backoff.
	retryBaseDelay = 500 * time.Millisecond

	// retryMaxDelay caps the backoff delay.
	retryMaxDelay = 10 * time.Second

	// MaxResponseSize is the maximum allowed non-streaming response body.
	MaxResponseSize = 10 * 1024 * 1024
)

var (
	// sharedHTTPClient pools connections for non-streaming requests.
	sharedHTTPClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
		Timeout: DefaultTimeout,
	}

	// sharedStreamClient serves streaming requests. No client timeout;
	// the caller's context bounds the stream instead.
	sharedStreamClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
	}
)

// Error variables for common backend failures.
var (
	// ErrNotConfigured indicates the API key is not set.
	ErrNotConfigured = errors.New("assistant API key not configured")

	// ErrAuthFailed indicates the credential was rejected.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrRateLimited indicates too many requests were made.
	ErrRateLimited = errors.New("rate limited")

	// ErrUnavailable indicates the backend is temporarily unreachable
	// behind its gateway.
	ErrUnavailable = errors.New("assistant temporarily unavailable")

	// ErrNoStream indicates the response carried no streamable body.
	ErrNoStream = errors.New("response has no stream")
)

// APIError represents a structured error from the backend.
type APIError struct {
	Code    string
	Message string
	Status  int
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("assistant error [%s] (HTTP %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("assistant error (HTTP %d): %s", e.Status, e.Message)
}

// =============================================================================
// WIRE TYPES
// =============================================================================

// ChatMessage is one {role, content} pair of the outbound conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// HistoryFromThread converts a thread's committed messages into the wire
// shape, prepending the thread's system prompt when set. The streaming
// slot and empty messages are excluded.
func HistoryFromThread(t *model.Thread) []ChatMessage {
	msgs := make([]ChatMessage, 0, len(t.Messages)+1)
	if t.SystemPrompt != "" {
		msgs = append(msgs, ChatMessage{Role: "system", Content: t.SystemPrompt})
	}
	for _, m := range t.Messages {
		if m.Streaming || m.Content == "" {
			continue
		}
		msgs = append(msgs, ChatMessage{Role: m.Role.String(), Content: m.Content})
	}
	return msgs
}

// chatRequest is the chat-completions request body.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// ChatResponse is the non-streaming chat-completions response body.
type ChatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      ChatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Content returns the first choice's content, or an empty string.
func (r *ChatResponse) Content() string {
	if len(r.Choices) > 0 {
		return r.Choices[0].Message.Content
	}
	return ""
}

// apiErrorResponse is the backend's error body shape.
type apiErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// =============================================================================
// CLIENT
// =============================================================================

// Client communicates with one assistant backend endpoint.
type Client struct {
	endpoint   string
	apiKey     string
	model      string
	maxRetries int
}

// NewClient creates a client for the given endpoint and credential.
func NewClient(endpoint, apiKey string) *Client {
	return &Client{
		endpoint:   strings.TrimSuffix(endpoint, "/"),
		apiKey:     strings.TrimSpace(apiKey),
		maxRetries: DefaultMaxRetries,
	}
}

// WithModel sets the model requested from the backend.
func (c *Client) WithModel(m string) *Client {
	c.model = m
	return c
}

// WithMaxRetries sets the retry budget for transient failures.
func (c *Client) WithMaxRetries(n int) *Client {
	c.maxRetries = n
	return c
}

// IsConfigured reports whether a credential is set.
func (c *Client) IsConfigured() bool {
	return c.apiKey != ""
}

// setHeaders applies the required headers. requestID correlates this
// call with its streaming cycle in logs on both ends.
func (c *Client) setHeaders(req *http.Request, requestID string) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "clerk/0.3.0")
	if requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}
}

// =============================================================================
// NON-STREAMING CHAT
// =============================================================================

// Chat performs a blocking chat completion, retrying transient failures
// with exponential backoff.
func (c *Client) Chat(ctx context.Context, messages []ChatMessage) (*ChatResponse, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(calculateBackoff(attempt)):
			}
		}

		resp, err := c.doRequest(ctx, messages)
		if err != nil {
			if isRetryable(err) {
				lastErr = err
				continue
			}
			return nil, err
		}
		return resp, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
	}
	return nil, errors.New("max retries exceeded")
}

// doRequest performs a single non-streaming request.
func (c *Client) doRequest(ctx context.Context, messages []ChatMessage) (*ChatResponse, error) {
	body, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: messages,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req, "")

	resp, err := sharedHTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := readResponse(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode, raw)
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(raw, &chatResp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return &chatResp, nil
}

// readResponse reads a response body with a size bound so a misbehaving
// backend cannot exhaust memory.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if int64(len(body)) == MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// classifyStatus converts a non-success response into the error the
// caller can phrase for a person. Rate limiting, gateway trouble, and
// bad credentials each keep their identity; everything else collapses
// into APIError.
func classifyStatus(status int, body []byte) error {
	var apiErr apiErrorResponse
	msg := ""
	code := ""
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		msg = apiErr.Error.Message
		code = apiErr.Error.Code
	}

	wrap := func(base error) error {
		if msg != "" {
			return fmt.Errorf("%w: %s", base, msg)
		}
		return base
	}

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return wrap(ErrAuthFailed)
	case http.StatusTooManyRequests:
		return wrap(ErrRateLimited)
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return wrap(ErrUnavailable)
	default:
		if msg == "" {
			msg = strings.TrimSpace(string(body))
		}
		return &APIError{Code: code, Message: msg, Status: status}
	}
}

// isRetryable reports whether an error is worth another attempt.
func isRetryable(err error) bool {
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUnavailable) {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500
	}
	return false
}

// calculateBackoff returns the delay before the next retry attempt.
func calculateBackoff(attempt int) time.Duration {
	delay := retryBaseDelay * time.Duration(1<<uint(attempt))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}
