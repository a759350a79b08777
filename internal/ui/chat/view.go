// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/morganforge/clerk/internal/model"
	"github.com/morganforge/clerk/internal/stream"
)

// =============================================================================
// RENDERING
// =============================================================================

// streamCursor marks the growing end of an in-flight response.
const streamCursor = "▌"

// View renders the full chat screen.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 {
		return "loading..."
	}

	if m.state == StateThreads {
		return m.viewThreadPicker()
	}

	var b strings.Builder
	b.WriteString(m.viewHeader())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	if m.notice != "" {
		b.WriteString(m.viewNotice())
		b.WriteString("\n")
	}
	if m.showHelp {
		b.WriteString(m.viewHelp())
		b.WriteString("\n")
	}
	b.WriteString(m.theme.InputContainer.Render(m.input.View()))
	b.WriteString("\n")
	b.WriteString(m.viewStatusBar())
	return b.String()
}

func (m Model) viewHeader() string {
	th := m.store.ActiveThread()
	title := truncateWidth(th.DisplayTitle(), m.width/2)

	sub := fmt.Sprintf("%d messages", th.MessageCount())
	if th.Archived {
		sub += " | archived"
	}

	left := m.theme.HeaderTitle.Render(title)
	right := m.theme.HeaderSubtitle.Render(sub)

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return m.theme.Header.Render(left + strings.Repeat(" ", gap) + right)
}

func (m Model) viewNotice() string {
	inner := m.theme.NoticeTitle.Render("notice") + " " +
		m.theme.NoticeMessage.Render(m.notice)
	return m.theme.NoticeBox.Width(m.contentWidth()).Render(inner)
}

func (m Model) viewHelp() string {
	var rows []string
	for _, group := range m.keyMap.FullHelp() {
		var parts []string
		for _, binding := range group {
			parts = append(parts,
				m.theme.ShortcutKey.Render(binding.Help().Key)+" "+
					m.theme.ShortcutDesc.Render(binding.Help().Desc))
		}
		rows = append(rows, strings.Join(parts, "  "))
	}
	rows = append(rows, m.theme.ShortcutDesc.Render(helpText))
	return m.theme.Container.Render(strings.Join(rows, "\n"))
}

func (m Model) viewStatusBar() string {
	var left string
	switch {
	case m.streamPhase == stream.PhaseConnecting:
		left = m.spinner.View() + m.theme.ThinkingText.Render(" thinking"+m.thinkingSuffix())
	case m.streamPhase == stream.PhaseStreaming:
		left = m.spinner.View() + m.theme.ThinkingText.Render(" responding")
	case m.status != "":
		left = m.theme.StatusBar.Render(m.status)
	case m.session.IsDirty():
		left = m.theme.StatusDirty.Render("unsaved")
	default:
		left = m.theme.StatusSaved.Render("saved")
	}

	right := m.theme.ShortcutKey.Render("ctrl+_") +
		m.theme.ShortcutDesc.Render(" help  ") +
		m.theme.ShortcutKey.Render("ctrl+q") +
		m.theme.ShortcutDesc.Render(" quit")

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}

func (m Model) thinkingSuffix() string {
	if m.thinkingStart.IsZero() {
		return ""
	}
	elapsed := time.Since(m.thinkingStart)
	if elapsed < time.Second {
		return ""
	}
	return fmt.Sprintf(" (%ds)", int(elapsed.Seconds()))
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

// refreshViewport rebuilds the transcript from the active thread.
func (m *Model) refreshViewport() {
	th := m.store.ActiveThread()

	if len(th.Messages) == 0 {
		empty := m.theme.ThinkingText.Render(
			"No messages yet. Type below and press Enter, or /help for commands.")
		m.viewport.SetContent(empty)
		return
	}

	var b strings.Builder
	for i, msg := range th.Messages {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.renderMessage(msg))
		b.WriteString("\n")
	}
	m.viewport.SetContent(b.String())
}

func (m *Model) renderMessage(msg *model.Message) string {
	label := m.roleLabel(msg.Role)
	ts := m.theme.Timestamp.Render(formatTimestamp(msg.Timestamp))
	head := label + " " + ts

	body := m.renderBody(msg)

	if m.cfg.UI.ShowStats && msg.Role == model.RoleAssistant && !msg.Streaming {
		if stats := msg.FormatStats(); stats != "" {
			body += "\n" + m.theme.StatsBar.Render(stats)
		}
	}
	return head + "\n" + body
}

func (m *Model) roleLabel(r model.Role) string {
	switch r {
	case model.RoleUser:
		return m.theme.UserLabel.Render(r.DisplayName())
	case model.RoleAssistant:
		return m.theme.AssistantLabel.Render(r.DisplayName())
	default:
		return m.theme.SystemLabel.Render(r.DisplayName())
	}
}

func (m *Model) renderBody(msg *model.Message) string {
	content := msg.Content

	if msg.Streaming {
		if content == "" {
			return m.theme.ThinkingText.Render("...")
		}
		// Raw text while streaming, markdown is re-rendered on commit.
		return m.theme.AssistantBody.Width(m.contentWidth()).Render(
			content + m.theme.StreamCursor.Render(streamCursor))
	}

	switch msg.Role {
	case model.RoleUser:
		return m.theme.UserBubble.Width(m.contentWidth()).Render(content)
	case model.RoleAssistant:
		if m.cfg.UI.Markdown && m.md != nil {
			return m.theme.AssistantBody.Render(m.md.render(content))
		}
		return m.theme.AssistantBody.Width(m.contentWidth()).Render(content)
	default:
		return m.theme.SystemBubble.Width(m.contentWidth()).Render(content)
	}
}

func (m *Model) contentWidth() int {
	w := m.width - 4
	if w < 20 {
		w = 20
	}
	return w
}

// =============================================================================
// THREAD PICKER
// =============================================================================

func (m Model) viewThreadPicker() string {
	threads := m.store.Threads()
	active := m.store.ActiveThread()

	var b strings.Builder
	b.WriteString(m.theme.HeaderTitle.Render("Threads"))
	b.WriteString("\n\n")

	if len(threads) == 0 {
		b.WriteString(m.theme.ThreadMeta.Render("no threads"))
	}

	for i, th := range threads {
		title := truncateWidth(th.Title, m.width-24)
		if title == "" {
			title = "New Thread"
		}
		meta := fmt.Sprintf("%d msg, %s", th.MessageCount, formatTimestamp(th.UpdatedAt))

		line := m.theme.ThreadTitle.Render(title) + "  " + m.theme.ThreadMeta.Render(meta)
		if th.ID == active.ID {
			line += m.theme.ThreadMeta.Render("  (current)")
		}

		item := m.theme.ThreadItem
		if i == m.threadCursor {
			item = m.theme.ThreadItemSelected
		}
		if th.Archived {
			item = m.theme.ThreadItemArchived
		}
		b.WriteString(item.Render(line))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.theme.ShortcutDesc.Render(
		"enter open  n new  a archive  d delete  esc close"))

	return m.theme.ThreadList.Width(m.contentWidth()).Render(b.String())
}
