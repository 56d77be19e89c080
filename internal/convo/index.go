package convo

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Index is a sqlite catalog over the persisted conversation files:
// metadata for fast listing plus FTS5 search over message text. It is
// derived data — the JSON files stay authoritative and the index can be
// rebuilt from them at any time.
type Index struct {
	db *sql.DB
}

const indexSchema = `
CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    title TEXT,
    provider TEXT,
    message_count INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conversations_updated_at ON conversations(updated_at DESC);

CREATE VIRTUAL TABLE IF NOT EXISTS conversation_fts USING fts5(
    conversation_id UNINDEXED,
    content
);
`

// OpenIndex opens (or creates) the catalog database in dataDir.
func OpenIndex(dataDir string) (*Index, error) {
	path := filepath.Join(dataDir, "index.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open conversation index: %w", err)
	}
	// The catalog has a single writer; serialize access.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(indexSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init conversation index: %w", err)
	}
	return &Index{db: db}, nil
}

func (ix *Index) Close() error {
	return ix.db.Close()
}

// Upsert refreshes one conversation's catalog row and search text.
func (ix *Index) Upsert(ctx context.Context, conv *Conversation) error {
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
        INSERT INTO conversations (id, title, provider, message_count, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            title = excluded.title,
            provider = excluded.provider,
            message_count = excluded.message_count,
            updated_at = excluded.updated_at`,
		conv.ID, conv.Title, conv.Provider, len(conv.Messages), conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM conversation_fts WHERE conversation_id = ?`, conv.ID); err != nil {
		return err
	}
	var text strings.Builder
	for _, msg := range conv.Messages {
		if msg.Content != "" {
			text.WriteString(msg.Content)
			text.WriteString("\n")
		}
	}
	if text.Len() > 0 {
		if _, err := tx.ExecContext(ctx, `INSERT INTO conversation_fts (conversation_id, content) VALUES (?, ?)`,
			conv.ID, text.String()); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Delete removes a conversation from the catalog.
func (ix *Index) Delete(ctx context.Context, id string) error {
	if _, err := ix.db.ExecContext(ctx, `DELETE FROM conversation_fts WHERE conversation_id = ?`, id); err != nil {
		return err
	}
	_, err := ix.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	return err
}

// List returns catalog summaries, newest first.
func (ix *Index) List(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := ix.db.QueryContext(ctx, `
        SELECT id, title, provider, message_count, created_at, updated_at
        FROM conversations ORDER BY updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSummaries(rows)
}

// SearchResult pairs a summary with a match snippet.
type SearchResult struct {
	Summary
	Snippet string `json:"snippet"`
}

// Search runs an FTS query over message text.
func (ix *Index) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := ix.db.QueryContext(ctx, `
        SELECT c.id, c.title, c.provider, c.message_count, c.created_at, c.updated_at,
               snippet(conversation_fts, 1, '[', ']', '…', 12)
        FROM conversation_fts f
        JOIN conversations c ON c.id = f.conversation_id
        WHERE conversation_fts MATCH ?
        ORDER BY rank LIMIT ?`, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		var created, updated time.Time
		if err := rows.Scan(&r.ID, &r.Title, &r.Provider, &r.MessageCount, &created, &updated, &r.Snippet); err != nil {
			return nil, err
		}
		r.CreatedAt = created
		r.UpdatedAt = updated
		out = append(out, r)
	}
	return out, rows.Err()
}

// Rebuild repopulates the catalog from the conversation files in dir.
func (ix *Index) Rebuild(ctx context.Context, dir string) error {
	summaries, err := List(dir)
	if err != nil {
		return err
	}
	for _, s := range summaries {
		conv, err := Load(dir, s.ID)
		if err != nil {
			continue
		}
		if err := ix.Upsert(ctx, conv); err != nil {
			return err
		}
	}
	return nil
}

func scanSummaries(rows *sql.Rows) ([]Summary, error) {
	var out []Summary
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.ID, &s.Title, &s.Provider, &s.MessageCount, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
