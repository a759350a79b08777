// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/morganforge/clerk/internal/config"
	"github.com/morganforge/clerk/internal/engine"
	"github.com/morganforge/clerk/internal/session"
	"github.com/morganforge/clerk/internal/storage"
	"github.com/morganforge/clerk/internal/stream"
	"github.com/morganforge/clerk/internal/ui/styles"
)

// =============================================================================
// CHAT STATE
// =============================================================================

// State represents the current state of the chat view.
type State int

const (
	StateReady     State = iota // Ready for input
	StateStreaming              // Receiving streaming response
	StateThreads                // Thread picker overlay
)

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat view.
type Model struct {
	// State
	state State

	// Styling
	theme *styles.Theme

	// Dimensions
	width  int
	height int

	// Wiring
	cfg     *config.Config
	store   *storage.Store
	engine  *engine.Engine
	session *session.Manager

	// Current cycle
	streamPhase   stream.Phase
	streamContent string
	thinkingStart time.Time

	// Notice shown after a failed cycle, cleared on the next submit.
	notice string

	// Transient status line
	status      string
	statusSetAt time.Time

	// Thread picker
	threadCursor int

	// Markdown rendering
	md *markdownRenderer

	// UI Components
	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model

	// Key bindings
	keyMap KeyMap

	showHelp bool
	quitting bool
}

// New creates the chat model wired to its collaborators.
func New(cfg *config.Config, store *storage.Store, eng *engine.Engine, sess *session.Manager) Model {
	theme := styles.NewTheme()

	ta := textarea.New()
	ta.Placeholder = "Ask anything..."
	ta.Prompt = "> "
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.SetHeight(2)
	ta.Focus()

	vp := viewport.New(80, 20)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = theme.Spinner

	return Model{
		state:    StateReady,
		theme:    theme,
		cfg:      cfg,
		store:    store,
		engine:   eng,
		session:  sess,
		md:       newMarkdownRenderer(78),
		viewport: vp,
		input:    ta,
		spinner:  sp,
		keyMap:   DefaultKeyMap(),
	}
}

// Init starts the background listeners.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		listenUpdates(m.engine.Updates()),
		session.TickCmd(),
		textarea.Blink,
	)
}

// streaming reports whether a response cycle is on screen.
func (m *Model) streaming() bool {
	return m.streamPhase.Active()
}

// setStatusLine shows a transient status message.
func (m *Model) setStatusLine(text string) tea.Cmd {
	m.status = text
	m.statusSetAt = time.Now()
	return statusExpireCmd(m.statusSetAt, 4*time.Second)
}
