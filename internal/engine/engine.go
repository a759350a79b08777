// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/morganforge/clerk/internal/assistant"
	"github.com/morganforge/clerk/internal/model"
	"github.com/morganforge/clerk/internal/storage"
	"github.com/morganforge/clerk/internal/stream"
)

// updateBuffer sizes the update channel. The coalescer caps publication
// rate well below this, so a drained consumer never sees drops.
const updateBuffer = 256

// Engine errors returned to the caller synchronously.
var (
	// ErrBusy rejects a submit while another cycle is in flight.
	ErrBusy = errors.New("a response is already in progress")

	// ErrEmptyInput rejects a submit with nothing to send.
	ErrEmptyInput = errors.New("nothing to send")
)

// User-facing notices for the failure categories. The UI shows these
// verbatim.
const (
	noticeRateLimited  = "You're sending requests too quickly. Wait a moment and try again."
	noticeUnavailable  = "The assistant is temporarily unavailable. Try again shortly."
	noticeAuthFailed   = "The assistant rejected your credentials. Check the configured API key."
	noticeNotSaved     = "The response arrived but could not be saved to disk."
	noticeInputUnsaved = "Your message could not be saved to disk."
	noticeGeneric      = "Something went wrong while getting a response. Try again."
)

// =============================================================================
// UPDATES
// =============================================================================

// Update is one observable step of a cycle: a phase change, fresh
// streamed content, a committed message, or a failure notice.
type Update struct {
	ThreadID  string
	RequestID string
	Phase     stream.Phase

	// Content is the accumulated text so far, or the final text on a
	// terminal update.
	Content string

	// Message is the committed assistant message, set only when the
	// cycle completed and the commit succeeded.
	Message *model.Message

	// Notice is a human-readable problem description, set only on
	// failure updates.
	Notice string
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine runs request/response cycles against one store and one client.
// Exactly one cycle is in flight at a time.
type Engine struct {
	store  *storage.Store
	client *assistant.Client

	// maxUpdates caps Update publication per second during streaming.
	maxUpdates float64

	mu       sync.Mutex
	inFlight bool

	cancelMgr *cancelManager
	updates   chan Update
}

// New creates an engine. maxUpdatesPerSecond values of zero or below
// fall back to the coalescer's default cadence.
func New(store *storage.Store, client *assistant.Client, maxUpdatesPerSecond float64) *Engine {
	return &Engine{
		store:      store,
		client:     client,
		maxUpdates: maxUpdatesPerSecond,
		cancelMgr:  newCancelManager(),
		updates:    make(chan Update, updateBuffer),
	}
}

// Updates returns the channel the UI drains for cycle progress.
func (e *Engine) Updates() <-chan Update {
	return e.updates
}

// Busy reports whether a cycle is in flight.
func (e *Engine) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inFlight
}

// Submit starts a cycle for the given input against the active thread.
// The user message is appended and flushed before the request goes out;
// if that flush fails the turn still proceeds, with a notice, since the
// message exists in memory and can be regenerated.
//
// Returns ErrEmptyInput for blank input and ErrBusy while another cycle
// is in flight. A rejected submit has no side effects.
func (e *Engine) Submit(input string) error {
	input = strings.TrimSpace(input)
	if input == "" {
		return ErrEmptyInput
	}

	e.mu.Lock()
	if e.inFlight {
		e.mu.Unlock()
		return ErrBusy
	}
	e.inFlight = true
	e.mu.Unlock()

	th := e.store.ActiveThread()
	if _, err := e.store.AddMessage(th.ID, model.RoleUser, input); err != nil {
		if errors.Is(err, storage.ErrNotSaved) {
			e.emit(Update{ThreadID: th.ID, Phase: stream.PhaseConnecting, Notice: noticeInputUnsaved})
		} else {
			// The active thread vanished between read and write; give up
			// cleanly rather than stream into nothing.
			e.finish()
			return err
		}
	}

	requestID := "req_" + uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	e.cancelMgr.set(cancel)

	history := assistant.HistoryFromThread(th)
	go e.run(ctx, th.ID, requestID, history)
	return nil
}

// Stop cancels the in-flight cycle, if any. The streaming slot is
// discarded by the cycle's own teardown; the user message stays.
func (e *Engine) Stop() {
	e.cancelMgr.cancel()
}

// Regenerate rewinds the active thread to just before its most recent
// user message and re-issues that message. No-op when the thread has
// fewer than two messages. Returns ErrBusy while a cycle is in flight.
func (e *Engine) Regenerate() error {
	if e.Busy() {
		return ErrBusy
	}

	th := e.store.ActiveThread()
	if th.MessageCount() < 2 {
		return nil
	}
	idx := th.LastUserIndex()
	if idx < 0 {
		return nil
	}
	input := th.Messages[idx].Content

	if err := e.store.TruncateThread(th.ID, idx); err != nil {
		return err
	}
	return e.Submit(input)
}

// =============================================================================
// CYCLE
// =============================================================================

// run drives one cycle on its own goroutine: connect, stream deltas into
// the slot, then commit or roll back.
func (e *Engine) run(ctx context.Context, threadID, requestID string, history []assistant.ChatMessage) {
	defer func() {
		e.cancelMgr.clear()
		e.finish()
	}()

	stats := model.NewStatistics()

	co := stream.NewCoalescer(e.maxUpdates, func(s stream.State) {
		e.emit(Update{
			ThreadID:  threadID,
			RequestID: s.RequestID,
			Phase:     s.Phase,
			Content:   s.Content,
		})
	})
	red := stream.NewReducer(requestID, func(s stream.State) {
		if s.Phase == stream.PhaseStreaming {
			e.store.ReplaceLastMessage(threadID, s.Content)
		}
		co.Offer(s)
	})

	red.Transition(stream.PhaseConnecting)

	err := e.client.ChatStream(ctx, history, requestID,
		func() {
			// Response began arriving; the slot occupies the thread
			// until commit or discard.
			e.store.BeginStreaming(threadID)
		},
		func(delta string) {
			stats.RecordFirstToken()
			red.Apply(delta)
		})

	co.Flush()

	if err != nil {
		e.fail(threadID, requestID, err)
		return
	}

	stats.Finalize()
	msg, cerr := e.store.CommitStreaming(threadID, red.Content(), stats)
	switch {
	case cerr == nil:
		e.emit(Update{
			ThreadID:  threadID,
			RequestID: requestID,
			Phase:     stream.PhaseComplete,
			Content:   msg.Content,
			Message:   msg,
		})
	case errors.Is(cerr, storage.ErrNotSaved):
		// The answer exists in memory but is not durable. The UI must
		// not present this as success.
		e.emit(Update{
			ThreadID:  threadID,
			RequestID: requestID,
			Phase:     stream.PhaseError,
			Content:   red.Content(),
			Message:   msg,
			Notice:    noticeNotSaved,
		})
	default:
		// Thread or slot vanished mid-stream, a concurrent delete.
		// Nothing to commit and nobody to notify about this thread.
		e.emit(Update{ThreadID: threadID, RequestID: requestID, Phase: stream.PhaseIdle})
	}
}

// fail rolls the thread back and emits the category-specific notice.
// Partial content is discarded, never committed.
func (e *Engine) fail(threadID, requestID string, err error) {
	e.store.DiscardStreaming(threadID)

	if errors.Is(err, context.Canceled) {
		// User-initiated stop is not an error; the thread is back to
		// exactly its pre-turn state.
		e.emit(Update{ThreadID: threadID, RequestID: requestID, Phase: stream.PhaseIdle})
		return
	}

	notice := noticeGeneric
	switch {
	case errors.Is(err, assistant.ErrRateLimited):
		notice = noticeRateLimited
	case errors.Is(err, assistant.ErrUnavailable):
		notice = noticeUnavailable
	case errors.Is(err, assistant.ErrAuthFailed):
		notice = noticeAuthFailed
	}

	e.emit(Update{
		ThreadID:  threadID,
		RequestID: requestID,
		Phase:     stream.PhaseError,
		Notice:    notice,
	})
}

func (e *Engine) finish() {
	e.mu.Lock()
	e.inFlight = false
	e.mu.Unlock()
}

// emit delivers an update without ever blocking the network goroutine.
// A consumer that stopped draining loses intermediate updates, not the
// process. Terminal updates are never dropped: when the buffer is full
// the oldest buffered update is evicted to make room, so a stalled
// consumer still sees the cycle end.
func (e *Engine) emit(u Update) {
	if u.Phase.Active() {
		select {
		case e.updates <- u:
		default:
		}
		return
	}

	for {
		select {
		case e.updates <- u:
			return
		default:
		}
		select {
		case <-e.updates:
		default:
		}
	}
}
