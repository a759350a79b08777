// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// Valid reports whether the role is one of the known constants.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a thread.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	// Streaming marks the thread's in-progress assistant message. At most
	// one message per thread carries it, and it never reaches disk: the
	// storage layer filters streaming messages out of serialization and
	// clears the flag on commit.
	Streaming bool `json:"-"`

	// Generation metrics, set on assistant messages when a cycle completes.
	TTFT          time.Duration `json:"ttft_ns,omitempty"`
	TotalDuration time.Duration `json:"total_duration_ns,omitempty"`
	TokenCount    int           `json:"token_count,omitempty"`
}

// NewMessage creates a message with a generated ID and the current time.
func NewMessage(role Role, content string) *Message {
	return &Message{
		ID:        "msg_" + uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) *Message {
	return NewMessage(RoleUser, content)
}

// NewStreamingMessage creates an empty assistant message in streaming state.
func NewStreamingMessage() *Message {
	m := NewMessage(RoleAssistant, "")
	m.Streaming = true
	return m
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) *Message {
	return NewMessage(RoleSystem, content)
}

// =============================================================================
// MESSAGE METHODS
// =============================================================================

// Preview returns a truncated preview of the message content.
// Truncation is rune-based so multi-byte characters are never split.
func (m *Message) Preview(maxLen int) string {
	runes := []rune(m.Content)
	if maxLen >= 0 && len(runes) <= maxLen {
		return m.Content
	}
	if maxLen <= 3 {
		if maxLen < 0 {
			maxLen = 0
		}
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// IsEmpty returns true if the message has no content.
func (m *Message) IsEmpty() bool {
	return len(m.Content) == 0
}

// EstimateTokens gives a rough token count, about four characters per token.
func (m *Message) EstimateTokens() int {
	return (len(m.Content) + 3) / 4
}

// FormatStats returns a one-line summary of generation metrics, or an empty
// string for messages without them.
func (m *Message) FormatStats() string {
	if m.Role != RoleAssistant || m.TotalDuration == 0 {
		return ""
	}
	perSec := 0.0
	if secs := m.TotalDuration.Seconds(); secs > 0 {
		perSec = float64(m.TokenCount) / secs
	}
	return fmt.Sprintf("%.1fs | %d tokens | %.1f tok/s | TTFT %dms",
		m.TotalDuration.Seconds(), m.TokenCount, perSec, m.TTFT.Milliseconds())
}

// =============================================================================
// STATISTICS TYPE
// =============================================================================

// Statistics collects timing for one generation cycle.
type Statistics struct {
	StartTime      time.Time
	FirstTokenTime time.Time
	EndTime        time.Time

	TTFT          time.Duration
	TotalDuration time.Duration
}

// NewStatistics creates a Statistics with the start time set.
func NewStatistics() *Statistics {
	return &Statistics{StartTime: time.Now()}
}

// RecordFirstToken records when the first delta arrived. Only the first
// call has any effect.
func (s *Statistics) RecordFirstToken() {
	if s.FirstTokenTime.IsZero() {
		s.FirstTokenTime = time.Now()
		s.TTFT = s.FirstTokenTime.Sub(s.StartTime)
	}
}

// Finalize computes the total duration.
func (s *Statistics) Finalize() {
	s.EndTime = time.Now()
	s.TotalDuration = s.EndTime.Sub(s.StartTime)
}

// ApplyTo stamps the collected metrics onto an assistant message.
func (s *Statistics) ApplyTo(m *Message) {
	if m == nil {
		return
	}
	m.TTFT = s.TTFT
	m.TotalDuration = s.TotalDuration
	m.TokenCount = (len(m.Content) + 3) / 4
}
