// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/morganforge/clerk/internal/model"
)

// indexSchema is the message search index layout. The index is derived
// data: it can be dropped and rebuilt from the thread documents at any
// time, so there is no migration story beyond the version check.
const indexSchema = `
CREATE TABLE IF NOT EXISTS metadata (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS messages (
    thread_id  TEXT NOT NULL,
    message_id TEXT NOT NULL PRIMARY KEY,
    role       TEXT NOT NULL,
    content    TEXT NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id);
`

// indexSchemaVersion guards against reading an index written by an
// incompatible layout. On mismatch the tables are rebuilt.
const indexSchemaVersion = "1"

// =============================================================================
// MESSAGE INDEX
// =============================================================================

// MessageIndex mirrors committed message content into a SQLite database
// so search does not have to load and scan every thread document.
type MessageIndex struct {
	db *sql.DB
}

// OpenIndex opens or creates the search index at the given path.
func OpenIndex(path string) (*MessageIndex, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	// Single writer; the driver serializes, a pool adds nothing.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("configure index: %w", err)
		}
	}

	ix := &MessageIndex{db: db}
	if err := ix.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return ix, nil
}

func (ix *MessageIndex) ensureSchema() error {
	if _, err := ix.db.Exec(indexSchema); err != nil {
		return fmt.Errorf("create index schema: %w", err)
	}

	var version string
	err := ix.db.QueryRow(
		"SELECT value FROM metadata WHERE key = 'schema_version'").Scan(&version)
	switch {
	case err == sql.ErrNoRows:
		_, err = ix.db.Exec(
			"INSERT INTO metadata (key, value) VALUES ('schema_version', ?)",
			indexSchemaVersion)
		return err
	case err != nil:
		return fmt.Errorf("read index version: %w", err)
	case version != indexSchemaVersion:
		if _, err := ix.db.Exec("DELETE FROM messages"); err != nil {
			return fmt.Errorf("rebuild index: %w", err)
		}
		_, err = ix.db.Exec(
			"UPDATE metadata SET value = ? WHERE key = 'schema_version'",
			indexSchemaVersion)
		return err
	}
	return nil
}

// Close releases the underlying database.
func (ix *MessageIndex) Close() error {
	return ix.db.Close()
}

// =============================================================================
// WRITES
// =============================================================================

// IndexThread replaces the indexed rows for one thread with its current
// committed messages.
func (ix *MessageIndex) IndexThread(t *model.Thread) error {
	tx, err := ix.db.Begin()
	if err != nil {
		return fmt.Errorf("index thread %s: %w", t.ID, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM messages WHERE thread_id = ?", t.ID); err != nil {
		return fmt.Errorf("index thread %s: %w", t.ID, err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO messages (thread_id, message_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("index thread %s: %w", t.ID, err)
	}
	defer stmt.Close()

	for _, msg := range t.Messages {
		if msg.Streaming {
			continue
		}
		if _, err := stmt.Exec(t.ID, msg.ID, string(msg.Role), msg.Content,
			msg.Timestamp.Unix()); err != nil {
			return fmt.Errorf("index thread %s: %w", t.ID, err)
		}
	}
	return tx.Commit()
}

// RemoveThread drops every indexed row for a thread.
func (ix *MessageIndex) RemoveThread(id string) error {
	_, err := ix.db.Exec("DELETE FROM messages WHERE thread_id = ?", id)
	return err
}

// =============================================================================
// SEARCH
// =============================================================================

// Search returns the IDs of threads with at least one message containing
// the query, case-insensitively, most recent match first.
func (ix *MessageIndex) Search(query string) ([]string, error) {
	rows, err := ix.db.Query(`
		SELECT thread_id FROM messages
		WHERE content LIKE ? ESCAPE '\'
		GROUP BY thread_id
		ORDER BY MAX(created_at) DESC`,
		"%"+escapeLike(query)+"%")
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MessageHit is one message-level search result.
type MessageHit struct {
	ThreadID  string
	MessageID string
	Role      model.Role
	Content   string
}

// SearchMessages returns individual messages containing the query,
// newest first, capped at limit.
func (ix *MessageIndex) SearchMessages(query string, limit int) ([]MessageHit, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := ix.db.Query(`
		SELECT thread_id, message_id, role, content FROM messages
		WHERE content LIKE ? ESCAPE '\'
		ORDER BY created_at DESC
		LIMIT ?`,
		"%"+escapeLike(query)+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	defer rows.Close()

	var hits []MessageHit
	for rows.Next() {
		var h MessageHit
		var role string
		if err := rows.Scan(&h.ThreadID, &h.MessageID, &role, &h.Content); err != nil {
			return nil, err
		}
		h.Role = model.Role(role)
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// escapeLike neutralizes LIKE metacharacters in user input.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
