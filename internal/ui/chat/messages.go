// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/morganforge/clerk/internal/config"
	"github.com/morganforge/clerk/internal/engine"
)

// =============================================================================
// BUBBLE TEA MESSAGES
// =============================================================================

// engineUpdateMsg carries one engine update into the Bubble Tea loop.
type engineUpdateMsg struct {
	update engine.Update
}

// clearStatusMsg removes an expired status line. setAt identifies the
// status it was scheduled for, so a newer status is not wiped early.
type clearStatusMsg struct {
	setAt time.Time
}

// ConfigReloadedMsg delivers a freshly loaded configuration, usually
// from the file watcher. The model swaps it in and re-renders.
type ConfigReloadedMsg struct {
	Config *config.Config
}

// =============================================================================
// COMMANDS
// =============================================================================

// listenUpdates blocks on the engine's update channel and forwards one
// update per command. The handler re-issues the command, keeping a
// single reader on the channel for the life of the program.
func listenUpdates(ch <-chan engine.Update) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-ch
		if !ok {
			return nil
		}
		return engineUpdateMsg{update: u}
	}
}

// statusExpireCmd schedules removal of the status line set at setAt.
func statusExpireCmd(setAt time.Time, ttl time.Duration) tea.Cmd {
	return tea.Tick(ttl, func(time.Time) tea.Msg {
		return clearStatusMsg{setAt: setAt}
	})
}
