package storage

import (
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// MemoryPort stores durable facts and episodic recollections scoped to an
// agent, and answers substring search with stable cursor pagination.
type MemoryPort interface {
	Encode(ctx context.Context, item MemoryItem) (MemoryItem, error)
	Search(ctx context.Context, agentID string, query MemoryQuery) (MemorySearchResult, error)
	Forget(ctx context.Context, agentID string, cutoff time.Time) (int, error)
}

// Encode upserts a memory item, refreshing UpdatedAt on conflict.
func (db *DB) Encode(ctx context.Context, item MemoryItem) (MemoryItem, error) {
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now

	err := db.Tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO memory_items (memory_item_id, agent_id, tier, scope, source, content, metadata_json, generated_by_turn_id, session_id, sensitivity, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(memory_item_id) DO UPDATE SET
				content = excluded.content,
				metadata_json = excluded.metadata_json,
				sensitivity = excluded.sensitivity,
				updated_at = excluded.updated_at`,
			item.MemoryItemID, item.AgentID, item.Tier, item.Scope, item.Source, item.Content, item.MetadataJSON,
			item.GeneratedByTurn, item.SessionID, item.Sensitivity,
			item.CreatedAt.Format(time.RFC3339Nano), item.UpdatedAt.Format(time.RFC3339Nano))
		return err
	})
	if err != nil {
		return MemoryItem{}, fmt.Errorf("encode memory item: %w", err)
	}
	return item, nil
}

// memoryCursor is an opaque, base64-encoded pointer into the ordered result
// set: (createdAt, memoryItemId) of the last row returned so far. This
// keeps pagination stable under concurrent inserts, unlike an OFFSET walk.
type memoryCursor struct {
	createdAt string
	itemID    string
}

func encodeCursor(c memoryCursor) string {
	raw := c.createdAt + "|" + c.itemID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(s string) (memoryCursor, error) {
	if s == "" {
		return memoryCursor{}, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return memoryCursor{}, fmt.Errorf("decode cursor: %w", err)
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return memoryCursor{}, fmt.Errorf("malformed cursor")
	}
	return memoryCursor{createdAt: parts[0], itemID: parts[1]}, nil
}

// Search performs a case-insensitive substring match over Content, ordered
// by (createdAt, memoryItemId) per Sort, and returns a cursor that resumes
// exactly where this page left off.
func (db *DB) Search(ctx context.Context, agentID string, query MemoryQuery) (MemorySearchResult, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = 20
	}
	cursor, err := decodeCursor(query.Cursor)
	if err != nil {
		return MemorySearchResult{}, err
	}

	order := "ASC"
	cmp := ">"
	if query.Sort == CreatedDesc {
		order = "DESC"
		cmp = "<"
	}

	args := []any{agentID, "%" + strings.ToLower(query.Substring) + "%"}
	where := `WHERE agent_id = ? AND LOWER(content) LIKE ?`
	if cursor.createdAt != "" {
		where += fmt.Sprintf(` AND (created_at %s ? OR (created_at = ? AND memory_item_id %s ?))`, cmp, cmp)
		args = append(args, cursor.createdAt, cursor.createdAt, cursor.itemID)
	}

	var total int
	if err := db.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM memory_items WHERE agent_id = ? AND LOWER(content) LIKE ?`,
		agentID, "%"+strings.ToLower(query.Substring)+"%").Scan(&total); err != nil {
		return MemorySearchResult{}, fmt.Errorf("count memory items: %w", err)
	}

	rowsSQL := `
		SELECT memory_item_id, agent_id, tier, scope, source, content, metadata_json,
		       generated_by_turn_id, session_id, sensitivity, created_at, updated_at
		FROM memory_items ` + where + fmt.Sprintf(` ORDER BY created_at %s, memory_item_id %s LIMIT ?`, order, order)
	args = append(args, limit+1)

	rows, err := db.sql.QueryContext(ctx, rowsSQL, args...)
	if err != nil {
		return MemorySearchResult{}, fmt.Errorf("search memory items: %w", err)
	}
	defer rows.Close()

	var items []MemoryItem
	for rows.Next() {
		var m MemoryItem
		var createdAt, updatedAt string
		if err := rows.Scan(&m.MemoryItemID, &m.AgentID, &m.Tier, &m.Scope, &m.Source, &m.Content, &m.MetadataJSON,
			&m.GeneratedByTurn, &m.SessionID, &m.Sensitivity, &createdAt, &updatedAt); err != nil {
			return MemorySearchResult{}, fmt.Errorf("scan memory item: %w", err)
		}
		if m.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return MemorySearchResult{}, fmt.Errorf("parse created_at: %w", err)
		}
		if m.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
			return MemorySearchResult{}, fmt.Errorf("parse updated_at: %w", err)
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return MemorySearchResult{}, err
	}

	result := MemorySearchResult{TotalCount: total}
	if len(items) > limit {
		last := items[limit-1]
		result.Cursor = encodeCursor(memoryCursor{createdAt: last.CreatedAt.Format(time.RFC3339Nano), itemID: last.MemoryItemID})
		items = items[:limit]
	}
	result.Items = items
	return result, nil
}

// Forget bulk-deletes every memory item belonging to agentID created before
// cutoff, returning how many rows were removed. A zero cutoff is rejected to
// avoid an accidental full wipe from a zero-value time.Time.
func (db *DB) Forget(ctx context.Context, agentID string, cutoff time.Time) (int, error) {
	if cutoff.IsZero() {
		return 0, fmt.Errorf("forget: cutoff must not be zero")
	}

	var deleted int
	err := db.Tx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM memory_items WHERE agent_id = ? AND created_at < ?`,
			agentID, cutoff.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("forget memory items: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		deleted = int(n)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}
