// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/morganforge/clerk/internal/model"
	"github.com/morganforge/clerk/internal/util"
)

// DefaultMaxThreads bounds how many threads are retained on disk.
// The oldest threads beyond the bound are dropped on save.
const DefaultMaxThreads = 100

// =============================================================================
// ERRORS
// =============================================================================

// ErrThreadNotFound is returned when no thread has the given ID.
// Use errors.Is(err, ErrThreadNotFound) to check for it.
var ErrThreadNotFound = &StoreError{Message: "thread not found"}

// ErrNotSaved is returned when a message was accepted in memory but its
// persistence write failed. The caller must surface this and must not
// claim the message is durable.
var ErrNotSaved = &StoreError{Message: "message not saved"}

// StoreError represents a store-related error.
type StoreError struct {
	Message string
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing store errors.
func (e *StoreError) Is(target error) bool {
	t, ok := target.(*StoreError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

// =============================================================================
// STORE
// =============================================================================

// Store owns the thread set for one session: an ordered collection of
// threads, an active-thread pointer, and the persistence directory they
// flush to. All methods are safe for concurrent use.
//
// Invariant: the store always holds at least one thread and the active
// pointer always names one of them. Deleting or archiving the last
// eligible thread creates a fresh empty one.
type Store struct {
	mu sync.Mutex

	dir        string
	maxThreads int

	threads  []*model.Thread // most recently updated first
	activeID string

	// index, when set, mirrors committed messages for full-text search.
	index *MessageIndex

	// systemPrompt is stamped onto newly created threads.
	systemPrompt string
}

// Open loads every persisted thread from dir, most recently updated
// first, and ensures at least one thread exists. maxThreads values of
// zero or below fall back to DefaultMaxThreads.
func Open(dir string, maxThreads int) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	if maxThreads <= 0 {
		maxThreads = DefaultMaxThreads
	}

	s := &Store{dir: dir, maxThreads: maxThreads}
	if err := s.loadAll(); err != nil {
		return nil, err
	}
	if len(s.threads) == 0 {
		s.createThreadLocked("")
	} else {
		// Archived threads never become active, even when they sort
		// first; archiving bumps UpdatedAt.
		s.selectFallbackLocked()
	}
	return s, nil
}

// SetSystemPrompt sets the prompt stamped onto threads created from now
// on. Existing threads keep whatever prompt they were created with.
func (s *Store) SetSystemPrompt(prompt string) {
	s.mu.Lock()
	s.systemPrompt = prompt
	s.mu.Unlock()
}

// AttachIndex wires a search index to the store. Committed content is
// mirrored into it on every flush.
func (s *Store) AttachIndex(ix *MessageIndex) {
	s.mu.Lock()
	s.index = ix
	s.mu.Unlock()
}

// loadAll reads every thread document in the storage directory.
// Unreadable files are skipped, not fatal; one corrupt document must not
// take the whole history down.
func (s *Store) loadAll() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read storage dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue
		}
		var t model.Thread
		if err := json.Unmarshal(data, &t); err != nil || t.ID == "" {
			continue
		}
		s.threads = append(s.threads, &t)
	}

	sort.Slice(s.threads, func(i, j int) bool {
		return s.threads[i].UpdatedAt.After(s.threads[j].UpdatedAt)
	})
	return nil
}

// =============================================================================
// THREAD LIFECYCLE
// =============================================================================

// CreateThread inserts a new empty thread at the head of the set, makes
// it active, and returns it. Never fails; the initial persistence write
// is best effort since an empty thread carries nothing to lose.
func (s *Store) CreateThread(title string) *model.Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createThreadLocked(title)
}

func (s *Store) createThreadLocked(title string) *model.Thread {
	t := model.NewThread()
	t.SystemPrompt = s.systemPrompt
	if title != "" {
		t.SetTitle(title)
	}
	s.threads = append([]*model.Thread{t}, s.threads...)
	s.activeID = t.ID
	s.persist(t)
	s.enforceLimitLocked()
	return t
}

// DeleteThread removes a thread and its document. If it was active, the
// most recently updated survivor becomes active; deleting the last
// thread leaves a fresh empty one active instead.
func (s *Store) DeleteThread(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return ErrThreadNotFound
	}
	s.threads = append(s.threads[:i], s.threads[i+1:]...)
	os.Remove(s.filePath(id))
	if s.index != nil {
		s.index.RemoveThread(id)
	}

	if s.activeID == id {
		s.selectFallbackLocked()
	}
	return nil
}

// ArchiveThread flags a thread as archived. Archived threads stay on
// disk and in listings but are never auto-selected; archiving the active
// thread moves the pointer to the next unarchived one, creating a fresh
// thread when none remains.
func (s *Store) ArchiveThread(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.threadByID(id)
	if t == nil {
		return ErrThreadNotFound
	}
	t.Archived = true
	t.UpdatedAt = time.Now()
	s.persist(t)

	if s.activeID == id {
		s.selectFallbackLocked()
	}
	return nil
}

// selectFallbackLocked repoints the active thread after a delete or
// archive, creating a fresh thread when no unarchived one remains.
func (s *Store) selectFallbackLocked() {
	for _, t := range s.threads {
		if !t.Archived {
			s.activeID = t.ID
			return
		}
	}
	s.createThreadLocked("")
}

// SelectThread changes the active pointer. Pure; no content changes.
func (s *Store) SelectThread(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.threadByID(id) == nil {
		return ErrThreadNotFound
	}
	s.activeID = id
	return nil
}

// TruncateThread drops every message at index n and beyond, then
// flushes. Used by regenerate to rewind a thread to the point before an
// unwanted assistant turn.
func (s *Store) TruncateThread(id string, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.threadByID(id)
	if t == nil {
		return ErrThreadNotFound
	}
	t.Truncate(n)
	s.persist(t)
	return nil
}

// RenameThread sets an explicit title and flushes.
func (s *Store) RenameThread(id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.threadByID(id)
	if t == nil {
		return ErrThreadNotFound
	}
	t.SetTitle(title)
	s.persist(t)
	return nil
}

// =============================================================================
// MESSAGE OPERATIONS
// =============================================================================

// AddMessage appends a committed message to the named thread and flushes
// it before returning. A failed flush returns the message together with
// ErrNotSaved: the message exists in memory, but the caller must not
// treat it as durable.
func (s *Store) AddMessage(threadID string, role model.Role, content string) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.threadByID(threadID)
	if t == nil {
		return nil, ErrThreadNotFound
	}

	msg := model.NewMessage(role, content)
	t.Append(msg)
	s.promote(t)
	if err := s.persist(t); err != nil {
		return msg, ErrNotSaved
	}
	return msg, nil
}

// ReplaceLastMessage rewrites the content of the thread's last message
// in place. It exists for one caller: updating the streaming slot as
// deltas arrive. A missing thread or an empty thread is a silent no-op,
// which covers a stale update racing a concurrent delete. Nothing is
// flushed; the slot is not persisted until commit.
func (s *Store) ReplaceLastMessage(threadID, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.threadByID(threadID)
	if t == nil {
		return
	}
	last := t.LastMessage()
	if last == nil {
		return
	}
	last.Content = content
}

// BeginStreaming appends an empty assistant message in streaming state
// to the named thread and returns it. The slot lives only in memory.
// Fails if the thread already holds a streaming slot.
func (s *Store) BeginStreaming(threadID string) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.threadByID(threadID)
	if t == nil {
		return nil, ErrThreadNotFound
	}
	if t.StreamingSlot() != nil {
		return nil, &StoreError{Message: "thread already has a streaming slot"}
	}

	msg := model.NewStreamingMessage()
	t.Append(msg)
	return msg, nil
}

// CommitStreaming converts the thread's streaming slot into a committed
// message with the given final content and flushes the thread. Stats,
// when non-nil, are stamped onto the message. A failed flush returns
// ErrNotSaved; the content is kept in memory either way.
func (s *Store) CommitStreaming(threadID, content string, stats *model.Statistics) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.threadByID(threadID)
	if t == nil {
		return nil, ErrThreadNotFound
	}
	slot := t.StreamingSlot()
	if slot == nil {
		return nil, &StoreError{Message: "no streaming slot to commit"}
	}

	slot.Content = content
	slot.Streaming = false
	if stats != nil {
		stats.ApplyTo(slot)
	}
	t.UpdatedAt = time.Now()
	s.promote(t)
	if err := s.persist(t); err != nil {
		return slot, ErrNotSaved
	}
	return slot, nil
}

// DiscardStreaming removes the thread's streaming slot, if any, leaving
// the thread exactly as it was before the turn began. Safe to call on
// the error and cancel paths regardless of how far the stream got.
func (s *Store) DiscardStreaming(threadID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.threadByID(threadID)
	if t == nil {
		return
	}
	if slot := t.StreamingSlot(); slot != nil {
		t.RemoveMessage(slot.ID)
	}
}

// =============================================================================
// READS
// =============================================================================

// ActiveThread returns the current active thread.
func (s *Store) ActiveThread() *model.Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threadByID(s.activeID)
}

// Thread returns a thread by ID, or ErrThreadNotFound.
func (s *Store) Thread(id string) (*model.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.threadByID(id)
	if t == nil {
		return nil, ErrThreadNotFound
	}
	return t, nil
}

// Threads returns listing metadata for every thread, most recently
// updated first.
func (s *Store) Threads() []model.ThreadMeta {
	s.mu.Lock()
	defer s.mu.Unlock()

	metas := make([]model.ThreadMeta, 0, len(s.threads))
	for _, t := range s.threads {
		metas = append(metas, t.Meta())
	}
	return metas
}

// Search returns metadata for threads whose committed messages contain
// the query, case-insensitively. Uses the attached index when present,
// a linear scan otherwise. An empty query lists everything.
func (s *Store) Search(query string) []model.ThreadMeta {
	if query == "" {
		return s.Threads()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index != nil {
		ids, err := s.index.Search(query)
		if err == nil {
			return s.metasForIDs(ids)
		}
		// Index trouble degrades to the scan below.
	}

	query = strings.ToLower(query)
	var metas []model.ThreadMeta
	for _, t := range s.threads {
		for _, msg := range t.Messages {
			if msg.Streaming {
				continue
			}
			if strings.Contains(strings.ToLower(msg.Content), query) {
				metas = append(metas, t.Meta())
				break
			}
		}
	}
	return metas
}

// SearchMessages returns individual committed messages containing the
// query, case-insensitively, capped at limit. Uses the attached index
// when present, a linear scan otherwise.
func (s *Store) SearchMessages(query string, limit int) []MessageHit {
	if query == "" {
		return nil
	}
	if limit <= 0 {
		limit = 50
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index != nil {
		hits, err := s.index.SearchMessages(query, limit)
		if err == nil {
			return hits
		}
	}

	query = strings.ToLower(query)
	var hits []MessageHit
	for _, t := range s.threads {
		for _, msg := range t.Messages {
			if msg.Streaming {
				continue
			}
			if strings.Contains(strings.ToLower(msg.Content), query) {
				hits = append(hits, MessageHit{
					ThreadID:  t.ID,
					MessageID: msg.ID,
					Role:      msg.Role,
					Content:   msg.Content,
				})
				if len(hits) >= limit {
					return hits
				}
			}
		}
	}
	return hits
}

func (s *Store) metasForIDs(ids []string) []model.ThreadMeta {
	var metas []model.ThreadMeta
	for _, t := range s.threads {
		for _, id := range ids {
			if t.ID == id {
				metas = append(metas, t.Meta())
				break
			}
		}
	}
	return metas
}

// =============================================================================
// PERSISTENCE
// =============================================================================

// Flush writes every thread to disk, returning the first error.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var first error
	for _, t := range s.threads {
		if err := s.persist(t); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// persist writes one thread document, excluding any streaming slot, and
// mirrors committed content into the search index. Caller holds the lock.
func (s *Store) persist(t *model.Thread) error {
	onDisk := t
	if t.StreamingSlot() != nil {
		onDisk = t.Clone()
		if slot := onDisk.StreamingSlot(); slot != nil {
			onDisk.RemoveMessage(slot.ID)
		}
	}

	data, err := json.MarshalIndent(onDisk, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal thread %s: %w", t.ID, err)
	}
	if err := util.AtomicWriteFile(s.filePath(t.ID), data, 0644); err != nil {
		return fmt.Errorf("write thread %s: %w", t.ID, err)
	}

	if s.index != nil {
		// Best effort; search degrades, durability does not.
		s.index.IndexThread(onDisk)
	}
	return nil
}

// enforceLimitLocked drops the oldest threads past maxThreads, never the
// active one.
func (s *Store) enforceLimitLocked() {
	if len(s.threads) <= s.maxThreads {
		return
	}
	excess := len(s.threads) - s.maxThreads
	for i := len(s.threads) - 1; i >= 0 && excess > 0; i-- {
		t := s.threads[i]
		if t.ID == s.activeID {
			continue
		}
		s.threads = append(s.threads[:i], s.threads[i+1:]...)
		os.Remove(s.filePath(t.ID))
		if s.index != nil {
			s.index.RemoveThread(t.ID)
		}
		excess--
	}
}

// promote moves a freshly updated thread to the head of the ordering.
func (s *Store) promote(t *model.Thread) {
	i := s.indexOf(t.ID)
	if i <= 0 {
		return
	}
	s.threads = append(s.threads[:i], s.threads[i+1:]...)
	s.threads = append([]*model.Thread{t}, s.threads...)
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Store) threadByID(id string) *model.Thread {
	for _, t := range s.threads {
		if t.ID == id {
			return t
		}
	}
	return nil
}

func (s *Store) indexOf(id string) int {
	for i, t := range s.threads {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) filePath(id string) string {
	return filepath.Join(s.dir, id+".json")
}
