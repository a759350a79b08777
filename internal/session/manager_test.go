// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// CONFIG TESTS
// =============================================================================

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if !cfg.AutoSaveEnabled {
		t.Error("Default AutoSaveEnabled should be true")
	}
	if cfg.AutoSaveInterval != 30*time.Second {
		t.Errorf("Default AutoSaveInterval = %v, want 30s", cfg.AutoSaveInterval)
	}
}

// =============================================================================
// MANAGER CREATION TESTS
// =============================================================================

func TestNewManager(t *testing.T) {
	m := NewManager(DefaultConfig())

	if !strings.HasPrefix(m.SessionID(), "sess_") {
		t.Errorf("SessionID should start with 'sess_', got %q", m.SessionID())
	}
	if m.IsDirty() {
		t.Error("new manager should start clean")
	}
	if m.StartTime().IsZero() {
		t.Error("StartTime should not be zero")
	}
}

func TestNewManager_ZeroIntervalGetsDefault(t *testing.T) {
	m := NewManager(Config{AutoSaveEnabled: true})
	m.MarkDirty()
	if m.ShouldAutoSave() {
		t.Error("auto-save should not be due immediately with the default interval")
	}
}

func TestNewManager_UniqueIDs(t *testing.T) {
	a := NewManager(DefaultConfig())
	b := NewManager(DefaultConfig())
	if a.SessionID() == b.SessionID() {
		t.Errorf("two managers share session ID %q", a.SessionID())
	}
}

// =============================================================================
// SESSION STATE TESTS
// =============================================================================

func TestManager_SessionID(t *testing.T) {
	m := NewManager(DefaultConfig())
	id1 := m.SessionID()
	id2 := m.SessionID()

	if id1 != id2 {
		t.Error("SessionID should be consistent")
	}
	if id1 == "" {
		t.Error("SessionID should not be empty")
	}
}

func TestManager_Duration(t *testing.T) {
	m := NewManager(DefaultConfig())
	time.Sleep(10 * time.Millisecond)

	duration := m.Duration()
	if duration < 10*time.Millisecond {
		t.Errorf("Duration should be at least 10ms, got %v", duration)
	}
}

func TestManager_IdleTime(t *testing.T) {
	m := NewManager(DefaultConfig())
	time.Sleep(10 * time.Millisecond)

	idle := m.IdleTime()
	if idle < 10*time.Millisecond {
		t.Errorf("IdleTime should be at least 10ms, got %v", idle)
	}

	// Record activity and check idle resets
	m.RecordActivity()
	idle = m.IdleTime()
	if idle > 5*time.Millisecond {
		t.Errorf("IdleTime should be near zero after RecordActivity, got %v", idle)
	}
}

// =============================================================================
// DIRTY TRACKING TESTS
// =============================================================================

func TestDirtyFlag(t *testing.T) {
	m := NewManager(DefaultConfig())

	m.MarkDirty()
	if !m.IsDirty() {
		t.Error("IsDirty should be true after MarkDirty")
	}

	m.MarkClean()
	if m.IsDirty() {
		t.Error("IsDirty should be false after MarkClean")
	}
}

// =============================================================================
// AUTO-SAVE TESTS
// =============================================================================

func TestShouldAutoSave(t *testing.T) {
	m := NewManager(Config{AutoSaveEnabled: true, AutoSaveInterval: time.Millisecond})

	if m.ShouldAutoSave() {
		t.Error("clean session should not auto-save")
	}

	m.MarkDirty()
	time.Sleep(5 * time.Millisecond)
	if !m.ShouldAutoSave() {
		t.Error("dirty session past interval should auto-save")
	}
}

func TestShouldAutoSave_Disabled(t *testing.T) {
	m := NewManager(Config{AutoSaveEnabled: false, AutoSaveInterval: time.Millisecond})
	m.MarkDirty()
	time.Sleep(5 * time.Millisecond)
	if m.ShouldAutoSave() {
		t.Error("disabled auto-save should never trigger")
	}
}

func TestCheck_RunsCallbackAndCleans(t *testing.T) {
	m := NewManager(Config{AutoSaveEnabled: true, AutoSaveInterval: time.Millisecond})

	var mu sync.Mutex
	calls := 0
	m.SetAutoSaveCallback(func() error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	})

	m.MarkDirty()
	time.Sleep(5 * time.Millisecond)
	m.Check()

	mu.Lock()
	got := calls
	mu.Unlock()
	if got != 1 {
		t.Errorf("callback ran %d times, want 1", got)
	}
	if m.IsDirty() {
		t.Error("successful save should clear the dirty flag")
	}
}

func TestCheck_FailedSaveStaysDirty(t *testing.T) {
	m := NewManager(Config{AutoSaveEnabled: true, AutoSaveInterval: time.Millisecond})
	m.SetAutoSaveCallback(func() error {
		return errors.New("disk full")
	})

	m.MarkDirty()
	time.Sleep(5 * time.Millisecond)
	m.Check()

	if !m.IsDirty() {
		t.Error("failed save must keep the dirty flag for the next tick")
	}
}

func TestCheck_NoCallbackIsSafe(t *testing.T) {
	m := NewManager(Config{AutoSaveEnabled: true, AutoSaveInterval: time.Millisecond})
	m.MarkDirty()
	time.Sleep(5 * time.Millisecond)
	m.Check()
}

// =============================================================================
// STATUS TESTS
// =============================================================================

func TestGetStatus(t *testing.T) {
	m := NewManager(DefaultConfig())
	m.MarkDirty()

	st := m.GetStatus()
	if st.SessionID != m.SessionID() {
		t.Errorf("Status SessionID = %q", st.SessionID)
	}
	if !st.IsDirty {
		t.Error("Status IsDirty should be true")
	}
	if st.Duration < 0 {
		t.Errorf("Status Duration = %v", st.Duration)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "30s"},
		{time.Minute, "1m"},
		{90 * time.Second, "1m 30s"},
		{5 * time.Minute, "5m"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.d); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
