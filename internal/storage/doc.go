// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage owns the thread set and its persistence.
//
// Store is the single source of truth for threads and messages: every
// mutation goes through it, and everything else reads through it. Each
// thread persists as one JSON document, written atomically so a crash
// leaves either the old or the new file, never a torn one. The streaming
// slot, the one in-progress assistant message a thread may hold, never
// reaches disk; persistence sees only committed messages.
//
// AddMessage and CommitStreaming flush synchronously and report a
// not-saved error when the write fails, so callers never assume
// durability they do not have. Other mutations flush opportunistically.
//
// An optional sqlite-backed MessageIndex accelerates full-text search
// across threads; without it, search falls back to a linear scan.
package storage
