// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/morganforge/clerk/internal/model"
)

// =============================================================================
// THREAD EXPORT
// =============================================================================

// ExportMarkdown renders a thread as a Markdown transcript with role
// labels and timestamps. Streaming content is excluded; only committed
// messages are part of a transcript.
func ExportMarkdown(t *model.Thread) string {
	var sb strings.Builder
	sb.WriteString("# " + t.DisplayTitle() + "\n\n")
	sb.WriteString("Created: " + t.CreatedAt.Format(time.RFC3339) + "\n\n")
	sb.WriteString("---\n\n")

	for _, msg := range t.Messages {
		if msg.Streaming {
			continue
		}
		sb.WriteString("**" + msg.Role.DisplayName() + "** (" +
			msg.Timestamp.Format("15:04") + "):\n\n")
		sb.WriteString(msg.Content)
		sb.WriteString("\n\n---\n\n")
	}
	return sb.String()
}

// ExportJSON renders a thread as pretty-printed JSON, in the same shape
// the store persists.
func ExportJSON(t *model.Thread) ([]byte, error) {
	onDisk := t
	if t.StreamingSlot() != nil {
		onDisk = t.Clone()
		if slot := onDisk.StreamingSlot(); slot != nil {
			onDisk.RemoveMessage(slot.ID)
		}
	}
	return json.MarshalIndent(onDisk, "", "  ")
}
