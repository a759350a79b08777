// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream folds incremental response deltas into an inspectable
// state value and throttles how often that state reaches the renderer.
//
// A State is a plain value: request id, lifecycle phase, and the content
// accumulated so far. The pure step methods on State make the fold easy to
// test in isolation. Reducer wraps a State with a mutex and a subscriber
// callback so the network goroutine can apply deltas while the UI reads
// consistent snapshots. Coalescer sits between the Reducer and a renderer
// and caps redraw frequency without ever losing the final state.
//
// Nothing in this package performs I/O. Deltas are appended verbatim in
// arrival order; the wire protocol has no reordering, so neither does the
// fold.
package stream
