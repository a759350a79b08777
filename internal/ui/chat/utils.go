// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"time"

	"github.com/atotto/clipboard"
	"github.com/mattn/go-runewidth"
)

// =============================================================================
// FORMATTING UTILITIES
// =============================================================================

// formatTimestamp formats a timestamp for display in chat messages.
// It uses smart formatting based on how recent the timestamp is:
//   - Today: just time (e.g., "15:04")
//   - This week: day and time (e.g., "Mon 15:04")
//   - Older: date and time (e.g., "Jan 2 15:04")
func formatTimestamp(t time.Time) string {
	now := time.Now()

	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}

	if now.Sub(t) < 7*24*time.Hour {
		return t.Format("Mon 15:04")
	}

	return t.Format("Jan 2 15:04")
}

// truncateWidth truncates a string to the given display width, using
// runewidth so wide characters count as two columns. An ellipsis is
// appended when truncation happens.
func truncateWidth(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= width {
		return s
	}
	if width <= 3 {
		return runewidth.Truncate(s, width, "")
	}
	return runewidth.Truncate(s, width, "...")
}

// copyToClipboard copies the given text to the system clipboard.
func copyToClipboard(text string) error {
	return clipboard.WriteAll(text)
}
