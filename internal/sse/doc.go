// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sse implements incremental decoding of server-sent event streams
// as emitted by chat completion endpoints.
//
// The package is split into two layers:
//
//   - LineDecoder turns an arbitrary sequence of byte chunks into discrete,
//     newline-terminated lines, surviving chunk boundaries that split a line
//     or a multi-byte UTF-8 character.
//   - Parser classifies each line against the event-stream convention
//     (comments, "data:" frames, the "[DONE]" sentinel) and extracts the
//     delta text carried by each frame.
//
// Both layers hold explicit, inspectable state so that chunk-boundary
// invariance can be verified mechanically: feeding a stream in any chunking
// produces the same sequence of deltas as feeding it whole.
package sse
