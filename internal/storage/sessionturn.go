package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SessionTurnPort manages session token-capacity state and the append-only
// turn log.
type SessionTurnPort interface {
	StartSession(ctx context.Context, state SessionState) error
	AppendTurn(ctx context.Context, turn TurnRecord) (TurnRecord, error)
	UpdateContextWindow(ctx context.Context, sessionID string, deltaTokens int) error
	ListTurns(ctx context.Context, sessionID string) ([]TurnRecord, error)
}

// StartSession is an idempotent upsert: creating twice with the same
// sessionID leaves TokensUsed untouched on the second call.
func (db *DB) StartSession(ctx context.Context, state SessionState) error {
	return db.Tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (session_id, conversation_id, token_capacity, tokens_used)
			VALUES (?, ?, ?, 0)
			ON CONFLICT(session_id) DO NOTHING`,
			state.SessionID, state.ConversationID, state.TokenCapacity)
		if err != nil {
			return fmt.Errorf("start session: %w", err)
		}
		return nil
	})
}

func getSessionTx(ctx context.Context, q querier, sessionID string) (*SessionState, error) {
	row := q.QueryRowContext(ctx, `
		SELECT session_id, conversation_id, token_capacity, tokens_used FROM sessions WHERE session_id = ?`, sessionID)
	var s SessionState
	if err := row.Scan(&s.SessionID, &s.ConversationID, &s.TokenCapacity, &s.TokensUsed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &s, nil
}

// AppendTurn is idempotent on TurnID: a second call with the same TurnID
// returns the already-persisted row unchanged rather than assigning a new
// index. turnIndex is assigned as max(turnIndex)+1 for the session (0 for
// its first turn) inside the same transaction, keeping listTurns a gap-free
// prefix.
func (db *DB) AppendTurn(ctx context.Context, turn TurnRecord) (TurnRecord, error) {
	var result TurnRecord
	err := db.Tx(ctx, func(tx *sql.Tx) error {
		existing, err := getTurnTx(ctx, tx, turn.TurnID)
		if err != nil {
			return err
		}
		if existing != nil {
			result = *existing
			return nil
		}

		session, err := getSessionTx(ctx, tx, turn.SessionID)
		if err != nil {
			return err
		}
		if session == nil {
			return &SessionNotFound{SessionID: turn.SessionID}
		}

		var maxIndex sql.NullInt64
		if err := tx.QueryRowContext(ctx, `SELECT MAX(turn_index) FROM turns WHERE session_id = ?`, turn.SessionID).Scan(&maxIndex); err != nil {
			return fmt.Errorf("max turn_index: %w", err)
		}
		turn.TurnIndex = 0
		if maxIndex.Valid {
			turn.TurnIndex = int(maxIndex.Int64) + 1
		}
		if turn.CreatedAt.IsZero() {
			turn.CreatedAt = time.Now().UTC()
		}

		msgJSON, err := json.Marshal(turn.Message)
		if err != nil {
			return fmt.Errorf("marshal message: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO turns (turn_id, session_id, conversation_id, turn_index, participant_role, participant_agent_id, message_json, model_finish_reason, model_usage_json, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			turn.TurnID, turn.SessionID, turn.ConversationID, turn.TurnIndex, turn.ParticipantRole, turn.ParticipantAgentID,
			string(msgJSON), turn.ModelFinishReason, turn.ModelUsageJSON, turn.CreatedAt.Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("insert turn: %w", err)
		}

		result = turn
		return nil
	})
	return result, err
}

func getTurnTx(ctx context.Context, q querier, turnID string) (*TurnRecord, error) {
	row := q.QueryRowContext(ctx, `
		SELECT turn_id, session_id, conversation_id, turn_index, participant_role, participant_agent_id, message_json, model_finish_reason, model_usage_json, created_at
		FROM turns WHERE turn_id = ?`, turnID)
	return scanTurn(row)
}

func scanTurn(row *sql.Row) (*TurnRecord, error) {
	var t TurnRecord
	var msgJSON, createdAt string
	if err := row.Scan(&t.TurnID, &t.SessionID, &t.ConversationID, &t.TurnIndex, &t.ParticipantRole, &t.ParticipantAgentID, &msgJSON, &t.ModelFinishReason, &t.ModelUsageJSON, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan turn: %w", err)
	}
	if err := json.Unmarshal([]byte(msgJSON), &t.Message); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}
	parsed, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	t.CreatedAt = parsed
	return &t, nil
}

// UpdateContextWindow adds deltaTokens to tokensUsed, failing if the
// session is missing or the result would exceed capacity.
func (db *DB) UpdateContextWindow(ctx context.Context, sessionID string, deltaTokens int) error {
	return db.Tx(ctx, func(tx *sql.Tx) error {
		session, err := getSessionTx(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if session == nil {
			return &SessionNotFound{SessionID: sessionID}
		}

		attempted := session.TokensUsed + deltaTokens
		if attempted > session.TokenCapacity {
			return &ContextWindowExceeded{SessionID: sessionID, Capacity: session.TokenCapacity, Attempted: attempted}
		}
		if attempted < 0 {
			attempted = 0
		}

		_, err = tx.ExecContext(ctx, `UPDATE sessions SET tokens_used = ? WHERE session_id = ?`, attempted, sessionID)
		if err != nil {
			return fmt.Errorf("update tokens_used: %w", err)
		}
		return nil
	})
}

// ListTurns returns turns ordered (turnIndex asc, turnId asc), the order
// the invariant in spec.md §8 requires.
func (db *DB) ListTurns(ctx context.Context, sessionID string) ([]TurnRecord, error) {
	rows, err := db.sql.QueryContext(ctx, `
		SELECT turn_id, session_id, conversation_id, turn_index, participant_role, participant_agent_id, message_json, model_finish_reason, model_usage_json, created_at
		FROM turns WHERE session_id = ? ORDER BY turn_index ASC, turn_id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	var result []TurnRecord
	for rows.Next() {
		var t TurnRecord
		var msgJSON, createdAt string
		if err := rows.Scan(&t.TurnID, &t.SessionID, &t.ConversationID, &t.TurnIndex, &t.ParticipantRole, &t.ParticipantAgentID, &msgJSON, &t.ModelFinishReason, &t.ModelUsageJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		if err := json.Unmarshal([]byte(msgJSON), &t.Message); err != nil {
			return nil, fmt.Errorf("unmarshal message: %w", err)
		}
		parsed, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		t.CreatedAt = parsed
		result = append(result, t)
	}
	return result, rows.Err()
}
