// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"
)

// MaxMessages is the maximum number of messages kept in a thread. When
// exceeded, the oldest non-system messages are pruned so memory and
// serialized size stay bounded.
const MaxMessages = 1000

// TitleLength is the rune budget for a derived thread title.
const TitleLength = 50

// =============================================================================
// THREAD TYPE
// =============================================================================

// Thread holds one conversation with its history and metadata.
type Thread struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Archived  bool      `json:"archived,omitempty"`

	Messages []*Message `json:"messages"`

	// SystemPrompt is prepended to every request made for this thread.
	SystemPrompt string `json:"system_prompt,omitempty"`
}

// NewThread creates an empty thread with a generated ID.
func NewThread() *Thread {
	now := time.Now()
	return &Thread{
		ID:        "thr_" + uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  make([]*Message, 0),
	}
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// Append adds a message to the thread, refreshes the title if it is still
// unset, and prunes history past the size bound.
func (t *Thread) Append(msg *Message) {
	t.Messages = append(t.Messages, msg)
	t.UpdatedAt = time.Now()
	t.deriveTitle()
	t.prune()
}

// LastMessage returns the most recent message, or nil if empty.
func (t *Thread) LastMessage() *Message {
	if len(t.Messages) == 0 {
		return nil
	}
	return t.Messages[len(t.Messages)-1]
}

// LastUserMessage returns the most recent user message, or nil.
func (t *Thread) LastUserMessage() *Message {
	for i := len(t.Messages) - 1; i >= 0; i-- {
		if t.Messages[i].Role == RoleUser {
			return t.Messages[i]
		}
	}
	return nil
}

// LastUserIndex returns the index of the most recent user message, or -1.
func (t *Thread) LastUserIndex() int {
	for i := len(t.Messages) - 1; i >= 0; i-- {
		if t.Messages[i].Role == RoleUser {
			return i
		}
	}
	return -1
}

// StreamingSlot returns the thread's in-progress assistant message, or nil
// when none is in flight. Only the final position can hold one.
func (t *Thread) StreamingSlot() *Message {
	last := t.LastMessage()
	if last != nil && last.Streaming {
		return last
	}
	return nil
}

// Truncate drops every message at index n and beyond.
func (t *Thread) Truncate(n int) {
	if n < 0 || n >= len(t.Messages) {
		return
	}
	t.Messages = t.Messages[:n]
	t.UpdatedAt = time.Now()
}

// RemoveMessage removes a message by ID. Returns false when absent.
func (t *Thread) RemoveMessage(id string) bool {
	for i, msg := range t.Messages {
		if msg.ID == id {
			t.Messages = append(t.Messages[:i], t.Messages[i+1:]...)
			t.UpdatedAt = time.Now()
			return true
		}
	}
	return false
}

// MessageByID returns a message by its ID, or nil.
func (t *Thread) MessageByID(id string) *Message {
	for _, msg := range t.Messages {
		if msg.ID == id {
			return msg
		}
	}
	return nil
}

// MessageCount returns the number of messages.
func (t *Thread) MessageCount() int {
	return len(t.Messages)
}

// IsEmpty returns true if there are no messages.
func (t *Thread) IsEmpty() bool {
	return len(t.Messages) == 0
}

// =============================================================================
// TITLE MANAGEMENT
// =============================================================================

// deriveTitle sets the title from the first user message when unset.
func (t *Thread) deriveTitle() {
	if t.Title != "" {
		return
	}
	for _, msg := range t.Messages {
		if msg.Role == RoleUser {
			t.Title = msg.Preview(TitleLength)
			return
		}
	}
}

// SetTitle sets the title explicitly; later derivation leaves it alone.
func (t *Thread) SetTitle(title string) {
	t.Title = title
	t.UpdatedAt = time.Now()
}

// DisplayTitle returns the title or a placeholder for untitled threads.
func (t *Thread) DisplayTitle() string {
	if t.Title != "" {
		return t.Title
	}
	return "New Thread"
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

// Clone creates a deep copy of the thread. Message structs are copied by
// value, so mutating the clone never touches the original.
func (t *Thread) Clone() *Thread {
	clone := &Thread{
		ID:           t.ID,
		Title:        t.Title,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
		Archived:     t.Archived,
		SystemPrompt: t.SystemPrompt,
		Messages:     make([]*Message, len(t.Messages)),
	}
	for i, msg := range t.Messages {
		c := *msg
		clone.Messages[i] = &c
	}
	return clone
}

// Meta returns lightweight listing metadata.
func (t *Thread) Meta() ThreadMeta {
	return ThreadMeta{
		ID:           t.ID,
		Title:        t.DisplayTitle(),
		MessageCount: len(t.Messages),
		Archived:     t.Archived,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

// ThreadMeta holds lightweight metadata for thread listings.
type ThreadMeta struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
	Archived     bool      `json:"archived,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// =============================================================================
// PRUNING
// =============================================================================

// prune drops the oldest non-system messages once the thread exceeds
// MaxMessages. System messages always survive.
func (t *Thread) prune() {
	if len(t.Messages) <= MaxMessages {
		return
	}

	var system, rest []*Message
	for _, msg := range t.Messages {
		if msg.Role == RoleSystem {
			system = append(system, msg)
		} else {
			rest = append(rest, msg)
		}
	}
	if len(rest) > MaxMessages {
		rest = rest[len(rest)-MaxMessages:]
	}

	t.Messages = make([]*Message, 0, len(system)+len(rest))
	t.Messages = append(t.Messages, system...)
	t.Messages = append(t.Messages, rest...)
}
