// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package assistant is the HTTP client for the conversational backend.
//
// The backend speaks a chat-completions style API: a POST carrying the
// ordered conversation so far, answered either as one JSON document or,
// for interactive turns, as a line-oriented event stream of content
// deltas terminated by a sentinel. ChatStream drives the streaming path
// and hands deltas to the caller in arrival order; Chat is the blocking
// variant for non-interactive use.
//
// Errors are classified so callers can phrase them for a person:
// ErrRateLimited, ErrUnavailable, and ErrAuthFailed each get their own
// user-facing message upstream, everything else is generic.
package assistant
