// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestNewMessage(t *testing.T) {
	m := NewUserMessage("hello")
	if m.Role != RoleUser {
		t.Errorf("Role = %v, want RoleUser", m.Role)
	}
	if m.Content != "hello" {
		t.Errorf("Content = %q", m.Content)
	}
	if !strings.HasPrefix(m.ID, "msg_") {
		t.Errorf("ID = %q, want msg_ prefix", m.ID)
	}
	if m.Timestamp.IsZero() {
		t.Error("Timestamp not set")
	}
	if m.Streaming {
		t.Error("user message should not be streaming")
	}
}

func TestNewStreamingMessage(t *testing.T) {
	m := NewStreamingMessage()
	if m.Role != RoleAssistant {
		t.Errorf("Role = %v, want RoleAssistant", m.Role)
	}
	if !m.Streaming {
		t.Error("Streaming = false")
	}
	if !m.IsEmpty() {
		t.Error("new streaming message should be empty")
	}
}

func TestMessage_StreamingNotSerialized(t *testing.T) {
	m := NewStreamingMessage()
	m.Content = "partial"

	raw, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if strings.Contains(string(raw), "Streaming") || strings.Contains(string(raw), "streaming") {
		t.Errorf("streaming flag leaked into JSON: %s", raw)
	}
}

func TestMessage_Preview(t *testing.T) {
	tests := []struct {
		name    string
		content string
		maxLen  int
		want    string
	}{
		{"short", "hi", 50, "hi"},
		{"exact", "12345", 5, "12345"},
		{"truncated", "abcdefghij", 8, "abcde..."},
		{"unicode", strings.Repeat("日", 10), 8, strings.Repeat("日", 5) + "..."},
		{"tiny bound", "abcdefghij", 2, "ab"},
		{"bound three", "abcdefghij", 3, "abc"},
		{"zero bound", "abcdefghij", 0, ""},
		{"negative bound", "abcdefghij", -1, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewUserMessage(tt.content)
			if got := m.Preview(tt.maxLen); got != tt.want {
				t.Errorf("Preview(%d) = %q, want %q", tt.maxLen, got, tt.want)
			}
		})
	}
}

func TestRole_DisplayName(t *testing.T) {
	if RoleUser.DisplayName() != "You" {
		t.Errorf("RoleUser.DisplayName() = %q", RoleUser.DisplayName())
	}
	if Role("other").DisplayName() != "other" {
		t.Errorf("unknown role DisplayName = %q", Role("other").DisplayName())
	}
}

func TestStatistics(t *testing.T) {
	s := NewStatistics()
	s.RecordFirstToken()
	first := s.FirstTokenTime
	time.Sleep(time.Millisecond)
	s.RecordFirstToken()
	if !s.FirstTokenTime.Equal(first) {
		t.Error("RecordFirstToken overwrote the first arrival")
	}
	s.Finalize()
	if s.TotalDuration <= 0 {
		t.Error("TotalDuration not computed")
	}

	m := NewMessage(RoleAssistant, "some answer text")
	s.ApplyTo(m)
	if m.TotalDuration != s.TotalDuration {
		t.Error("metrics not applied")
	}
	if m.FormatStats() == "" {
		t.Error("FormatStats empty after ApplyTo")
	}
}

// =============================================================================
// THREAD TESTS
// =============================================================================

func TestNewThread(t *testing.T) {
	th := NewThread()
	if !strings.HasPrefix(th.ID, "thr_") {
		t.Errorf("ID = %q, want thr_ prefix", th.ID)
	}
	if !th.IsEmpty() {
		t.Error("new thread should be empty")
	}
	if th.DisplayTitle() != "New Thread" {
		t.Errorf("DisplayTitle = %q", th.DisplayTitle())
	}
}

func TestThread_TitleFromFirstUserMessage(t *testing.T) {
	th := NewThread()
	th.Append(NewSystemMessage("be helpful"))
	if th.Title != "" {
		t.Errorf("system message set title %q", th.Title)
	}

	long := strings.Repeat("w", 80)
	th.Append(NewUserMessage(long))
	if th.Title != strings.Repeat("w", TitleLength-3)+"..." {
		t.Errorf("Title = %q", th.Title)
	}

	// Later user messages do not change it.
	th.Append(NewUserMessage("second"))
	if !strings.HasPrefix(th.Title, "www") {
		t.Errorf("title changed to %q", th.Title)
	}
}

func TestThread_SetTitleWins(t *testing.T) {
	th := NewThread()
	th.SetTitle("custom")
	th.Append(NewUserMessage("ignored for titling"))
	if th.Title != "custom" {
		t.Errorf("Title = %q, want custom", th.Title)
	}
}

func TestThread_StreamingSlot(t *testing.T) {
	th := NewThread()
	th.Append(NewUserMessage("q"))
	if th.StreamingSlot() != nil {
		t.Error("unexpected slot before streaming starts")
	}

	slot := NewStreamingMessage()
	th.Append(slot)
	if th.StreamingSlot() != slot {
		t.Error("StreamingSlot did not return the in-progress message")
	}

	slot.Streaming = false
	if th.StreamingSlot() != nil {
		t.Error("slot still reported after commit")
	}
}

func TestThread_TruncateAndLastUser(t *testing.T) {
	th := NewThread()
	th.Append(NewUserMessage("one"))
	th.Append(NewMessage(RoleAssistant, "answer one"))
	th.Append(NewUserMessage("two"))
	th.Append(NewMessage(RoleAssistant, "answer two"))

	idx := th.LastUserIndex()
	if idx != 2 {
		t.Fatalf("LastUserIndex = %d, want 2", idx)
	}
	th.Truncate(idx + 1)
	if th.MessageCount() != 3 {
		t.Errorf("MessageCount = %d, want 3", th.MessageCount())
	}
	if th.LastMessage().Content != "two" {
		t.Errorf("last message = %q", th.LastMessage().Content)
	}

	// Out-of-range truncation is a no-op.
	th.Truncate(99)
	th.Truncate(-1)
	if th.MessageCount() != 3 {
		t.Errorf("MessageCount = %d after no-op truncations", th.MessageCount())
	}
}

func TestThread_RemoveMessage(t *testing.T) {
	th := NewThread()
	m := NewUserMessage("bye")
	th.Append(m)
	if !th.RemoveMessage(m.ID) {
		t.Error("RemoveMessage returned false for existing ID")
	}
	if th.RemoveMessage("msg_nope") {
		t.Error("RemoveMessage returned true for missing ID")
	}
	if !th.IsEmpty() {
		t.Error("thread not empty after removal")
	}
}

func TestThread_Clone(t *testing.T) {
	th := NewThread()
	th.Append(NewUserMessage("original"))

	clone := th.Clone()
	clone.Messages[0].Content = "mutated"
	clone.SetTitle("other")

	if th.Messages[0].Content != "original" {
		t.Error("clone mutation reached the original message")
	}
	if th.Title == "other" {
		t.Error("clone mutation reached the original title")
	}
}

func TestThread_PruneKeepsSystem(t *testing.T) {
	th := NewThread()
	th.Append(NewSystemMessage("keep me"))
	for i := 0; i < MaxMessages+10; i++ {
		th.Append(NewMessage(RoleUser, "m"))
	}

	if th.MessageCount() != MaxMessages+1 {
		t.Fatalf("MessageCount = %d, want %d", th.MessageCount(), MaxMessages+1)
	}
	if th.Messages[0].Role != RoleSystem {
		t.Error("system message not preserved at front")
	}
}
