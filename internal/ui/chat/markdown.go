// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/charmbracelet/glamour"
)

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

// markdownRenderer wraps a glamour renderer bound to one wrap width.
// Renderers are rebuilt on resize rather than per message.
type markdownRenderer struct {
	width    int
	renderer *glamour.TermRenderer
}

// newMarkdownRenderer creates a renderer wrapping at the given width.
// A nil renderer is returned on failure; render then falls back to
// plain text.
func newMarkdownRenderer(width int) *markdownRenderer {
	if width < 20 {
		width = 20
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		r = nil
	}
	return &markdownRenderer{width: width, renderer: r}
}

// render renders markdown content for terminal display.
// Returns the original content if rendering fails.
func (m *markdownRenderer) render(content string) string {
	if m == nil || m.renderer == nil {
		return content
	}
	rendered, err := m.renderer.Render(content)
	if err != nil {
		return content
	}
	return rendered
}
