package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// WorkflowJournalPort records the outcome of each side-effecting activity a
// turn workflow performs, keyed by (executionId, activityName,
// idempotencyKey). A replayed activity call checks this journal first and
// returns the recorded result instead of re-running, giving the workflow
// exactly-once semantics across process restarts.
type WorkflowJournalPort interface {
	RecordActivity(ctx context.Context, entry JournalEntry) error
	LookupActivity(ctx context.Context, executionID, activityName, idempotencyKey string) (*JournalEntry, error)
	ListActivities(ctx context.Context, executionID string) ([]JournalEntry, error)
}

// RecordActivity is insert-only: the journal is immutable, so a second
// write for the same key is a no-op rather than an error, letting a
// workflow step call this unconditionally after running an activity.
func (db *DB) RecordActivity(ctx context.Context, entry JournalEntry) error {
	return db.Tx(ctx, func(tx *sql.Tx) error {
		if entry.Timestamp.IsZero() {
			entry.Timestamp = time.Now().UTC()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO workflow_journal (execution_id, activity_name, idempotency_key, status, serialized_result, serialized_error, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(execution_id, activity_name, idempotency_key) DO NOTHING`,
			entry.ExecutionID, entry.ActivityName, entry.IdempotencyKey, entry.Status,
			entry.SerializedResult, entry.SerializedError, entry.Timestamp.Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("record activity: %w", err)
		}
		return nil
	})
}

func (db *DB) LookupActivity(ctx context.Context, executionID, activityName, idempotencyKey string) (*JournalEntry, error) {
	row := db.sql.QueryRowContext(ctx, `
		SELECT execution_id, activity_name, idempotency_key, status, serialized_result, serialized_error, timestamp
		FROM workflow_journal WHERE execution_id = ? AND activity_name = ? AND idempotency_key = ?`,
		executionID, activityName, idempotencyKey)

	var e JournalEntry
	var ts string
	if err := row.Scan(&e.ExecutionID, &e.ActivityName, &e.IdempotencyKey, &e.Status, &e.SerializedResult, &e.SerializedError, &ts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup activity: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp: %w", err)
	}
	e.Timestamp = t
	return &e, nil
}

// ListActivities returns every journalled step for an execution, ordered by
// timestamp, used by workflow recovery to determine which steps already
// ran before a restart.
func (db *DB) ListActivities(ctx context.Context, executionID string) ([]JournalEntry, error) {
	rows, err := db.sql.QueryContext(ctx, `
		SELECT execution_id, activity_name, idempotency_key, status, serialized_result, serialized_error, timestamp
		FROM workflow_journal WHERE execution_id = ? ORDER BY timestamp ASC`, executionID)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	var result []JournalEntry
	for rows.Next() {
		var e JournalEntry
		var ts string
		if err := rows.Scan(&e.ExecutionID, &e.ActivityName, &e.IdempotencyKey, &e.Status, &e.SerializedResult, &e.SerializedError, &ts); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp: %w", err)
		}
		e.Timestamp = t
		result = append(result, e)
	}
	return result, rows.Err()
}
