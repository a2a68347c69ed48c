package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ChannelPort manages the channel -> (agent, session, conversation) binding.
type ChannelPort interface {
	CreateChannel(ctx context.Context, record ChannelRecord) error
	GetChannel(ctx context.Context, channelID string) (*ChannelRecord, error)
}

// CreateChannel is an upsert: creating the same channelId twice leaves the
// existing active session/conversation pair untouched (ownership: exactly
// one channel owns one active session at a time).
func (db *DB) CreateChannel(ctx context.Context, record ChannelRecord) error {
	return db.Tx(ctx, func(tx *sql.Tx) error {
		if record.CreatedAt.IsZero() {
			record.CreatedAt = time.Now().UTC()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO channels (channel_id, channel_type, agent_id, active_session_id, active_conversation_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(channel_id) DO NOTHING`,
			record.ChannelID, record.ChannelType, record.AgentID, record.ActiveSessionID, record.ActiveConversationID, record.CreatedAt.Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("create channel: %w", err)
		}
		return nil
	})
}

func (db *DB) GetChannel(ctx context.Context, channelID string) (*ChannelRecord, error) {
	row := db.sql.QueryRowContext(ctx, `
		SELECT channel_id, channel_type, agent_id, active_session_id, active_conversation_id, created_at
		FROM channels WHERE channel_id = ?`, channelID)

	var c ChannelRecord
	var createdAt string
	if err := row.Scan(&c.ChannelID, &c.ChannelType, &c.AgentID, &c.ActiveSessionID, &c.ActiveConversationID, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get channel: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	c.CreatedAt = t
	return &c, nil
}
