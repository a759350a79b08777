// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for threads and messages.
//
// A Thread is one conversation: an ordered list of Messages plus metadata
// (title, timestamps, archived flag). A Message carries a role, content,
// and a streaming flag that marks the single in-progress assistant message
// a thread may hold while a response is being received. Streaming messages
// are never serialized; persistence sees only committed content.
//
// The types here are plain data with small invariant-preserving methods.
// Ownership and concurrency control live in the storage package.
package model
