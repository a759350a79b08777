// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package engine orchestrates one request/response cycle at a time.
//
// The Engine sits between the UI, the Store, and the assistant client.
// Submit appends the user's message, issues the streaming request, and
// drives the delta pipeline into the active thread's streaming slot;
// Stop cancels the cycle and restores the thread; Regenerate rewinds to
// the last user turn and re-issues it. Only one cycle runs at a time: a
// second submit while one is in flight is rejected, not queued.
//
// Progress and outcomes surface as Update values on a channel the UI
// drains. Every failure mode resolves to a recoverable state carrying a
// human-readable notice; nothing here is fatal to the process.
package engine
