// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"strconv"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
)

// =============================================================================
// SESSION MANAGER
// =============================================================================

// Manager tracks session state across the UI event loop.
type Manager struct {
	mu sync.Mutex

	sessionID    string
	startTime    time.Time
	lastActivity time.Time

	// Auto-save configuration
	autoSaveEnabled  bool
	autoSaveInterval time.Duration
	lastAutoSave     time.Time
	isDirty          bool

	onAutoSave func() error
}

// Config holds configuration for the session manager.
type Config struct {
	// AutoSaveEnabled enables periodic flushing of unsaved changes.
	AutoSaveEnabled bool

	// AutoSaveInterval is how often to auto-save (default: 30 seconds).
	AutoSaveInterval time.Duration
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		AutoSaveEnabled:  true,
		AutoSaveInterval: 30 * time.Second,
	}
}

// NewManager creates a new session manager.
func NewManager(cfg Config) *Manager {
	now := time.Now()
	if cfg.AutoSaveInterval <= 0 {
		cfg.AutoSaveInterval = DefaultConfig().AutoSaveInterval
	}
	return &Manager{
		sessionID:        "sess_" + uuid.NewString(),
		startTime:        now,
		lastActivity:     now,
		autoSaveEnabled:  cfg.AutoSaveEnabled,
		autoSaveInterval: cfg.AutoSaveInterval,
		lastAutoSave:     now,
	}
}

// =============================================================================
// SESSION STATE
// =============================================================================

// SessionID returns the current session ID.
func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

// StartTime returns when the session started.
func (m *Manager) StartTime() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startTime
}

// Duration returns how long the session has been active.
func (m *Manager) Duration() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return time.Since(m.startTime)
}

// IdleTime returns how long since last activity.
func (m *Manager) IdleTime() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return time.Since(m.lastActivity)
}

// =============================================================================
// ACTIVITY TRACKING
// =============================================================================

// RecordActivity updates the last activity timestamp. Called on user
// input and on streamed content arriving.
func (m *Manager) RecordActivity() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastActivity = time.Now()
}

// MarkDirty indicates the session has unsaved changes.
func (m *Manager) MarkDirty() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.isDirty = true
}

// MarkClean indicates the session has been saved.
func (m *Manager) MarkClean() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.isDirty = false
	m.lastAutoSave = time.Now()
}

// IsDirty returns whether the session has unsaved changes.
func (m *Manager) IsDirty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isDirty
}

// SetAutoSaveCallback sets the function called for auto-save.
func (m *Manager) SetAutoSaveCallback(fn func() error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onAutoSave = fn
}

// ShouldAutoSave returns true if auto-save should trigger.
func (m *Manager) ShouldAutoSave() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.autoSaveEnabled || !m.isDirty {
		return false
	}
	return time.Since(m.lastAutoSave) >= m.autoSaveInterval
}

// Check runs the auto-save callback when one is due. The dirty flag
// clears only when the save succeeds, so a failed save retries on the
// next tick.
func (m *Manager) Check() {
	m.mu.Lock()
	due := m.autoSaveEnabled && m.isDirty &&
		time.Since(m.lastAutoSave) >= m.autoSaveInterval
	onAutoSave := m.onAutoSave
	m.mu.Unlock()

	if due && onAutoSave != nil {
		if err := onAutoSave(); err == nil {
			m.MarkClean()
		}
	}
}

// =============================================================================
// BUBBLE TEA INTEGRATION
// =============================================================================

// TickMsg is sent periodically to drive session bookkeeping.
type TickMsg struct {
	Time time.Time
}

// AutoSaveMsg indicates auto-save should occur.
type AutoSaveMsg struct{}

// TickCmd returns a command that ticks once per second.
func TickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg{Time: t}
	})
}

// HandleTick processes a tick and schedules the next one.
func (m *Manager) HandleTick() tea.Cmd {
	var cmds []tea.Cmd

	if m.ShouldAutoSave() {
		cmds = append(cmds, func() tea.Msg {
			return AutoSaveMsg{}
		})
	}

	cmds = append(cmds, TickCmd())
	return tea.Batch(cmds...)
}

// =============================================================================
// CONFIGURATION
// =============================================================================

// SetAutoSaveEnabled enables or disables auto-save.
func (m *Manager) SetAutoSaveEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autoSaveEnabled = enabled
}

// SetAutoSaveInterval updates the auto-save interval.
func (m *Manager) SetAutoSaveInterval(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autoSaveInterval = d
}

// =============================================================================
// SESSION STATUS
// =============================================================================

// Status is a point-in-time snapshot for the status bar.
type Status struct {
	SessionID string
	StartTime time.Time
	Duration  time.Duration
	IdleTime  time.Duration
	IsDirty   bool
}

// GetStatus returns the current session status.
func (m *Manager) GetStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	return Status{
		SessionID: m.sessionID,
		StartTime: m.startTime,
		Duration:  now.Sub(m.startTime),
		IdleTime:  now.Sub(m.lastActivity),
		IsDirty:   m.isDirty,
	}
}

// FormatDuration returns a human-readable duration string.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return strconv.Itoa(int(d.Seconds())) + "s"
	}
	mins := int(d.Minutes())
	secs := int(d.Seconds()) % 60
	if secs == 0 {
		return strconv.Itoa(mins) + "m"
	}
	return strconv.Itoa(mins) + "m " + strconv.Itoa(secs) + "s"
}
