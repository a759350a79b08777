// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/morganforge/clerk/internal/engine"
	"github.com/morganforge/clerk/internal/model"
	"github.com/morganforge/clerk/internal/session"
	"github.com/morganforge/clerk/internal/stream"
)

// Update handles all Bubble Tea messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.handleResize(msg)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case engineUpdateMsg:
		cmd := m.handleEngineUpdate(msg.update)
		// Keep exactly one reader on the channel.
		return m, tea.Batch(cmd, listenUpdates(m.engine.Updates()))

	case session.TickMsg:
		return m, m.session.HandleTick()

	case session.AutoSaveMsg:
		if err := m.store.Flush(); err == nil {
			m.session.MarkClean()
		}
		return m, nil

	case ConfigReloadedMsg:
		if msg.Config != nil {
			m.cfg = msg.Config
			m.store.SetSystemPrompt(msg.Config.Assistant.SystemPrompt)
			m.refreshViewport()
			return m, m.setStatusLine("configuration reloaded")
		}
		return m, nil

	case clearStatusMsg:
		if m.statusSetAt.Equal(msg.setAt) {
			m.status = ""
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.streaming() {
			return m, cmd
		}
		return m, nil
	}

	// Everything else flows to the focused components.
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// =============================================================================
// LAYOUT
// =============================================================================

func (m *Model) handleResize(msg tea.WindowSizeMsg) {
	m.width = msg.Width
	m.height = msg.Height
	m.theme.SetSize(msg.Width, msg.Height)

	// Header, input box, and status bar share the vertical budget.
	inputHeight := m.input.Height() + 2
	chromeHeight := 1 + inputHeight + 1
	vpHeight := msg.Height - chromeHeight
	if vpHeight < 3 {
		vpHeight = 3
	}

	m.viewport.Width = msg.Width
	m.viewport.Height = vpHeight
	m.input.SetWidth(msg.Width - 2)
	m.md = newMarkdownRenderer(msg.Width - 4)
	m.refreshViewport()
}

// =============================================================================
// KEYS
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.state == StateThreads {
		return m.handleThreadPickerKey(msg)
	}

	switch {
	case key.Matches(msg, m.keyMap.Quit):
		m.engine.Stop()
		m.store.Flush()
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keyMap.Submit):
		return m.submit()

	case key.Matches(msg, m.keyMap.Stop):
		if m.streaming() {
			m.engine.Stop()
			return m, nil
		}
		m.notice = ""
		return m, nil

	case key.Matches(msg, m.keyMap.Regenerate):
		return m.regenerate()

	case key.Matches(msg, m.keyMap.NewThread):
		return m.newThread()

	case key.Matches(msg, m.keyMap.Threads):
		m.state = StateThreads
		m.threadCursor = m.activeThreadIndex()
		return m, nil

	case key.Matches(msg, m.keyMap.Copy):
		return m.copyLastResponse()

	case key.Matches(msg, m.keyMap.Help):
		m.showHelp = !m.showHelp
		return m, nil

	case key.Matches(msg, m.keyMap.PageUp),
		key.Matches(msg, m.keyMap.PageDown),
		key.Matches(msg, m.keyMap.Home),
		key.Matches(msg, m.keyMap.End),
		key.Matches(msg, m.keyMap.Up),
		key.Matches(msg, m.keyMap.Down):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleThreadPickerKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	threads := m.store.Threads()

	switch msg.String() {
	case "esc", "ctrl+t", "q":
		m.state = StateReady
		return m, nil

	case "up", "k":
		if m.threadCursor > 0 {
			m.threadCursor--
		}
		return m, nil

	case "down", "j":
		if m.threadCursor < len(threads)-1 {
			m.threadCursor++
		}
		return m, nil

	case "enter":
		if m.threadCursor >= 0 && m.threadCursor < len(threads) {
			m.store.SelectThread(threads[m.threadCursor].ID)
		}
		m.state = StateReady
		m.refreshViewport()
		m.viewport.GotoBottom()
		return m, nil

	case "a":
		if m.threadCursor >= 0 && m.threadCursor < len(threads) {
			m.store.ArchiveThread(threads[m.threadCursor].ID)
			m.session.MarkDirty()
		}
		return m, nil

	case "d":
		if m.threadCursor >= 0 && m.threadCursor < len(threads) {
			m.store.DeleteThread(threads[m.threadCursor].ID)
			if m.threadCursor >= len(threads)-1 && m.threadCursor > 0 {
				m.threadCursor--
			}
			m.refreshViewport()
		}
		return m, nil

	case "n":
		m.store.CreateThread("")
		m.state = StateReady
		m.refreshViewport()
		return m, nil
	}

	return m, nil
}

// =============================================================================
// ACTIONS
// =============================================================================

func (m Model) submit() (tea.Model, tea.Cmd) {
	input := strings.TrimSpace(m.input.Value())
	if input == "" {
		return m, nil
	}

	if strings.HasPrefix(input, "/") {
		m.input.Reset()
		return m.runCommand(input)
	}

	err := m.engine.Submit(input)
	switch {
	case errors.Is(err, engine.ErrBusy):
		return m, m.setStatusLine("still responding, Esc to stop first")
	case errors.Is(err, engine.ErrEmptyInput):
		return m, nil
	case err != nil:
		return m, m.setStatusLine(err.Error())
	}

	m.input.Reset()
	m.notice = ""
	m.thinkingStart = time.Now()
	m.session.RecordActivity()
	m.session.MarkDirty()
	m.refreshViewport()
	m.viewport.GotoBottom()
	return m, m.spinner.Tick
}

func (m Model) regenerate() (tea.Model, tea.Cmd) {
	err := m.engine.Regenerate()
	if errors.Is(err, engine.ErrBusy) {
		return m, m.setStatusLine("still responding, Esc to stop first")
	}
	if err != nil {
		return m, m.setStatusLine(err.Error())
	}
	m.notice = ""
	m.thinkingStart = time.Now()
	m.refreshViewport()
	m.viewport.GotoBottom()
	return m, m.spinner.Tick
}

func (m Model) newThread() (tea.Model, tea.Cmd) {
	if m.streaming() {
		return m, m.setStatusLine("finish or stop the current response first")
	}
	m.store.CreateThread("")
	m.notice = ""
	m.refreshViewport()
	return m, m.setStatusLine("started a new thread")
}

func (m Model) copyLastResponse() (tea.Model, tea.Cmd) {
	th := m.store.ActiveThread()
	for i := len(th.Messages) - 1; i >= 0; i-- {
		msg := th.Messages[i]
		if msg.Role == model.RoleAssistant && !msg.Streaming {
			if err := copyToClipboard(msg.Content); err != nil {
				return m, m.setStatusLine("clipboard unavailable")
			}
			return m, m.setStatusLine("copied response to clipboard")
		}
	}
	return m, m.setStatusLine("nothing to copy yet")
}

// =============================================================================
// ENGINE UPDATES
// =============================================================================

func (m *Model) handleEngineUpdate(u engine.Update) tea.Cmd {
	m.streamPhase = u.Phase
	m.session.RecordActivity()

	switch u.Phase {
	case stream.PhaseConnecting:
		m.streamContent = ""
		if u.Notice != "" {
			m.notice = u.Notice
		}
		m.state = StateStreaming

	case stream.PhaseStreaming:
		m.streamContent = u.Content
		m.state = StateStreaming

	case stream.PhaseComplete:
		m.streamContent = ""
		m.state = StateReady
		m.session.MarkDirty()

	case stream.PhaseError:
		m.streamContent = ""
		m.state = StateReady
		m.notice = u.Notice
		m.session.MarkDirty()

	case stream.PhaseIdle:
		// Cancelled or rolled back; the thread is back to its pre-turn
		// state and there is nothing to announce.
		m.streamContent = ""
		m.state = StateReady
	}

	m.refreshViewport()
	m.viewport.GotoBottom()

	if m.streaming() {
		return m.spinner.Tick
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (m *Model) activeThreadIndex() int {
	active := m.store.ActiveThread()
	for i, th := range m.store.Threads() {
		if th.ID == active.ID {
			return i
		}
	}
	return 0
}
