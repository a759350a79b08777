// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session tracks the lifetime of one interactive run.
//
// A Manager carries a stable session ID, activity timestamps for the
// status bar, and the auto-save cadence that flushes dirty threads to
// disk on a periodic tick.
//
// # Key Types
//
//   - Manager: session state and auto-save bookkeeping
//   - TickMsg: Bubble Tea message driving periodic checks
//   - AutoSaveMsg: Bubble Tea message requesting a flush
//
// # Usage
//
// Create a manager and wire the save callback:
//
//	mgr := session.NewManager(session.DefaultConfig())
//	mgr.SetAutoSaveCallback(store.Flush)
//
// Mark it dirty whenever a thread changes, and let the UI tick loop
// call HandleTick to schedule saves:
//
//	mgr.MarkDirty()
package session
