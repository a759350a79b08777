// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the conversational view for the clerk TUI.
//
// The Model is a Bubble Tea component wiring the request engine, the
// thread store, and the session manager into one interactive surface:
// a scrollable transcript viewport, a multi-line input area, a thread
// picker overlay, and a status bar.
//
// # Key Types
//
//   - Model: the Bubble Tea model for the chat view
//   - KeyMap: keyboard bindings with help text
//
// # Message Flow
//
// User input is submitted to the engine, which streams updates back on
// a channel. A listen command turns each channel receive into a Bubble
// Tea message, so streamed content flows through the normal Update
// loop and never touches the view from another goroutine.
//
// # Slash Commands
//
// Input starting with "/" is interpreted as a command (/new, /rename,
// /archive, /delete, /search, /export, /copy, /help) instead of being
// sent to the assistant.
package chat
