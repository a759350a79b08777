// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/morganforge/clerk/internal/storage"
)

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// command is one parsed slash command.
type command struct {
	name string
	args string
}

// parseCommand splits "/name rest of args" into its parts. The leading
// slash must already be verified by the caller.
func parseCommand(input string) command {
	input = strings.TrimPrefix(input, "/")
	name, args, _ := strings.Cut(input, " ")
	return command{
		name: strings.ToLower(strings.TrimSpace(name)),
		args: strings.TrimSpace(args),
	}
}

// helpText lists the available commands for the transcript.
const helpText = `Commands:
  /new [title]      start a new thread
  /rename <title>   rename the current thread
  /archive          archive the current thread
  /delete           delete the current thread
  /search <query>   find threads by content
  /export [path]    export the thread as markdown
  /copy             copy the last response
  /help             show this help`

// runCommand executes a slash command against the store.
func (m Model) runCommand(input string) (tea.Model, tea.Cmd) {
	cmd := parseCommand(input)

	switch cmd.name {
	case "new":
		if m.streaming() {
			return m, m.setStatusLine("finish or stop the current response first")
		}
		m.store.CreateThread(cmd.args)
		m.notice = ""
		m.refreshViewport()
		return m, m.setStatusLine("started a new thread")

	case "rename":
		if cmd.args == "" {
			return m, m.setStatusLine("usage: /rename <title>")
		}
		th := m.store.ActiveThread()
		if err := m.store.RenameThread(th.ID, cmd.args); err != nil {
			return m, m.setStatusLine(err.Error())
		}
		m.session.MarkDirty()
		return m, m.setStatusLine("thread renamed")

	case "archive":
		if m.streaming() {
			return m, m.setStatusLine("finish or stop the current response first")
		}
		th := m.store.ActiveThread()
		if err := m.store.ArchiveThread(th.ID); err != nil {
			return m, m.setStatusLine(err.Error())
		}
		m.refreshViewport()
		return m, m.setStatusLine("thread archived")

	case "delete":
		if m.streaming() {
			return m, m.setStatusLine("finish or stop the current response first")
		}
		th := m.store.ActiveThread()
		if err := m.store.DeleteThread(th.ID); err != nil {
			return m, m.setStatusLine(err.Error())
		}
		m.refreshViewport()
		return m, m.setStatusLine("thread deleted")

	case "search":
		if cmd.args == "" {
			return m, m.setStatusLine("usage: /search <query>")
		}
		return m.runSearch(cmd.args)

	case "export":
		return m.runExport(cmd.args)

	case "copy":
		return m.copyLastResponse()

	case "help":
		m.showHelp = true
		return m, nil

	default:
		return m, m.setStatusLine(fmt.Sprintf("unknown command /%s, try /help", cmd.name))
	}
}

func (m Model) runSearch(query string) (tea.Model, tea.Cmd) {
	metas := m.store.Search(query)
	if len(metas) == 0 {
		return m, m.setStatusLine(fmt.Sprintf("no threads match %q", query))
	}

	// Jump straight to the best match and offer the picker for the rest.
	m.store.SelectThread(metas[0].ID)
	m.refreshViewport()
	m.viewport.GotoBottom()
	return m, m.setStatusLine(fmt.Sprintf("%d thread(s) match, showing %q",
		len(metas), truncateWidth(metas[0].Title, 30)))
}

func (m Model) runExport(path string) (tea.Model, tea.Cmd) {
	th := m.store.ActiveThread()

	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		name := fmt.Sprintf("clerk-%s.md", time.Now().Format("20060102-150405"))
		path = filepath.Join(home, name)
	}

	data := storage.ExportMarkdown(th)
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		return m, m.setStatusLine("export failed: " + err.Error())
	}
	return m, m.setStatusLine("exported to " + path)
}
