// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"net/http"
	"net/http/httptest"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/morganforge/clerk/internal/assistant"
	"github.com/morganforge/clerk/internal/config"
	"github.com/morganforge/clerk/internal/engine"
	"github.com/morganforge/clerk/internal/session"
	"github.com/morganforge/clerk/internal/storage"
)

// =============================================================================
// HELPERS
// =============================================================================

func newTestModel(t *testing.T) Model {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no backend in tests", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	store, err := storage.Open(t.TempDir(), 0)
	require.NoError(t, err)

	client := assistant.NewClient(srv.URL, "sk-test")
	eng := engine.New(store, client, 1000)
	sess := session.NewManager(session.DefaultConfig())

	cfg := config.Default()
	cfg.SetDefaults()

	return New(cfg, store, eng, sess)
}

func resize(m Model, w, h int) Model {
	next, _ := m.Update(tea.WindowSizeMsg{Width: w, Height: h})
	return next.(Model)
}

// =============================================================================
// MODEL TESTS
// =============================================================================

func TestNew_Defaults(t *testing.T) {
	m := newTestModel(t)
	require.Equal(t, StateReady, m.state)
	require.False(t, m.streaming())
	require.NotNil(t, m.theme)
	require.NotNil(t, m.Init())
}

func TestView_BeforeFirstResize(t *testing.T) {
	m := newTestModel(t)
	require.Equal(t, "loading...", m.View())
}

func TestResize_SetsDimensionsAndRenders(t *testing.T) {
	m := resize(newTestModel(t), 100, 32)
	require.Equal(t, 100, m.width)
	require.Equal(t, 32, m.height)

	out := m.View()
	require.NotEmpty(t, out)
	require.Contains(t, out, "New Thread")
}

func TestResize_NarrowTerminalStaysSafe(t *testing.T) {
	m := resize(newTestModel(t), 10, 4)
	require.NotEmpty(t, m.View())
}

func TestHelpToggle(t *testing.T) {
	m := resize(newTestModel(t), 100, 32)

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyCtrlUnderscore})
	m = next.(Model)
	require.True(t, m.showHelp)
	require.Contains(t, m.View(), "/rename")

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyCtrlUnderscore})
	m = next.(Model)
	require.False(t, m.showHelp)
}

func TestThreadPicker_OpenAndClose(t *testing.T) {
	m := resize(newTestModel(t), 100, 32)

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyCtrlT})
	m = next.(Model)
	require.Equal(t, StateThreads, m.state)
	require.Contains(t, m.View(), "Threads")

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = next.(Model)
	require.Equal(t, StateReady, m.state)
}

func TestThreadPicker_CreateAndNavigate(t *testing.T) {
	m := resize(newTestModel(t), 100, 32)
	m.store.CreateThread("first")
	m.store.CreateThread("second")

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyCtrlT})
	m = next.(Model)

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")})
	m = next.(Model)
	require.Equal(t, 1, m.threadCursor)

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("k")})
	m = next.(Model)
	require.Equal(t, 0, m.threadCursor)
}

// =============================================================================
// COMMAND TESTS
// =============================================================================

func TestRunCommand_Unknown(t *testing.T) {
	m := resize(newTestModel(t), 100, 32)
	next, cmd := m.runCommand("/bogus")
	m = next.(Model)
	require.NotNil(t, cmd)
	require.Contains(t, m.status, "unknown command /bogus")
}

func TestRunCommand_RenameRequiresTitle(t *testing.T) {
	m := resize(newTestModel(t), 100, 32)
	next, _ := m.runCommand("/rename")
	m = next.(Model)
	require.Contains(t, m.status, "usage")
}

func TestRunCommand_Rename(t *testing.T) {
	m := resize(newTestModel(t), 100, 32)
	next, _ := m.runCommand("/rename Order Questions")
	m = next.(Model)
	require.Equal(t, "Order Questions", m.store.ActiveThread().Title)
	require.True(t, m.session.IsDirty())
}

func TestRunCommand_New(t *testing.T) {
	m := resize(newTestModel(t), 100, 32)
	before := len(m.store.Threads())
	next, _ := m.runCommand("/new fresh start")
	m = next.(Model)
	require.Len(t, m.store.Threads(), before+1)
	require.Equal(t, "fresh start", m.store.ActiveThread().Title)
}

func TestRunCommand_SearchNoMatches(t *testing.T) {
	m := resize(newTestModel(t), 100, 32)
	next, _ := m.runCommand("/search zebra")
	m = next.(Model)
	require.Contains(t, m.status, "no threads match")
}

func TestRunCommand_Help(t *testing.T) {
	m := resize(newTestModel(t), 100, 32)
	next, _ := m.runCommand("/help")
	m = next.(Model)
	require.True(t, m.showHelp)
}
