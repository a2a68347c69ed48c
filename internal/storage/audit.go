package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AuditPort persists governance decisions.
type AuditPort interface {
	WriteAudit(ctx context.Context, entry AuditEntry) error
}

// WriteAudit is idempotent on AuditEntryID.
func (db *DB) WriteAudit(ctx context.Context, entry AuditEntry) error {
	return db.Tx(ctx, func(tx *sql.Tx) error {
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = time.Now().UTC()
		}
		var sessionID any
		if entry.SessionID != "" {
			sessionID = entry.SessionID
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO audit_entries (audit_entry_id, agent_id, session_id, decision, reason, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(audit_entry_id) DO NOTHING`,
			entry.AuditEntryID, entry.AgentID, sessionID, entry.Decision, entry.Reason, entry.CreatedAt.Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("write audit: %w", err)
		}
		return nil
	})
}

// ListAuditByAgent returns audit entries for an agent, most recent first.
// Used by tests exercising the testable properties in spec.md §8.
func (db *DB) ListAuditByAgent(ctx context.Context, agentID string) ([]AuditEntry, error) {
	rows, err := db.sql.QueryContext(ctx, `
		SELECT audit_entry_id, agent_id, COALESCE(session_id, ''), decision, reason, created_at
		FROM audit_entries WHERE agent_id = ? ORDER BY created_at DESC`, agentID)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer rows.Close()

	var result []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var createdAt string
		if err := rows.Scan(&e.AuditEntryID, &e.AgentID, &e.SessionID, &e.Decision, &e.Reason, &createdAt); err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		e.CreatedAt = t
		result = append(result, e)
	}
	return result, rows.Err()
}
