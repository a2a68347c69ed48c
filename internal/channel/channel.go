// Package channel implements the channel facade (spec.md §4.6): the
// external-caller-facing operations (createChannel, sendMessage,
// getHistory) that bind a transport identity to a session and dispatch
// turns through the entity runtime.
package channel

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dohr-michael/agentrt/internal/entity"
	"github.com/dohr-michael/agentrt/internal/storage"
	"github.com/dohr-michael/agentrt/internal/workflow"
)

const (
	defaultTokenCapacity = 200_000
	channelEntityType    = "channel"
	sessionEntityType    = "session"
)

// Facade is the concrete channel operations, dispatched through the
// entity pool so creates and sends against the same channel/session are
// serialized and deduplicated the way spec.md §4.2/§4.6 require.
type Facade struct {
	pool     *entity.Pool
	channels storage.ChannelPort
	agents   storage.AgentStatePort
	sessions storage.SessionTurnPort
	runner   *workflow.Runner
}

func NewFacade(pool *entity.Pool, channels storage.ChannelPort, agents storage.AgentStatePort, sessions storage.SessionTurnPort, runner *workflow.Runner) *Facade {
	return &Facade{pool: pool, channels: channels, agents: agents, sessions: sessions, runner: runner}
}

// CreateChannel is a persisted RPC: order matters (agent-state -> session
// -> channel), and a repeat call for the same (channelId, agentId) is a
// no-op on the channel record, only ensuring the agent has state.
func (f *Facade) CreateChannel(ctx context.Context, channelID string, channelType storage.ChannelType, agentID string) error {
	key := entity.Key{Type: channelEntityType, ID: channelID}
	primaryKey := fmt.Sprintf("create:%s", agentID)

	_, err := f.pool.CallPersisted(ctx, key, primaryKey, func(ctx context.Context) (any, error) {
		existing, err := f.channels.GetChannel(ctx, channelID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, f.ensureAgentState(ctx, agentID)
		}

		if err := f.ensureAgentState(ctx, agentID); err != nil {
			return nil, err
		}

		sessionID := "session:" + channelID
		conversationID := "conv:" + channelID
		if err := f.sessions.StartSession(ctx, storage.SessionState{
			SessionID: sessionID, ConversationID: conversationID, TokenCapacity: defaultTokenCapacity,
		}); err != nil {
			return nil, err
		}

		return nil, f.channels.CreateChannel(ctx, storage.ChannelRecord{
			ChannelID: channelID, ChannelType: channelType, AgentID: agentID,
			ActiveSessionID: sessionID, ActiveConversationID: conversationID,
		})
	})
	return err
}

func (f *Facade) ensureAgentState(ctx context.Context, agentID string) error {
	existing, err := f.agents.Get(ctx, agentID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	return f.agents.Upsert(ctx, storage.AgentState{
		AgentID: agentID, PermissionMode: storage.PermissionStandard,
		TokenBudget: defaultTokenCapacity, QuotaPeriod: storage.QuotaDaily,
	})
}

// SendMessage dispatches content to the channel's active session entity
// and relays the resulting turn event stream 1:1.
func (f *Facade) SendMessage(ctx context.Context, channelID, content string) (<-chan entity.Event, error) {
	channel, err := f.channels.GetChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if channel == nil {
		return nil, &storage.ChannelNotFound{ChannelID: channelID}
	}

	turnID := "turn:" + uuid.NewString()
	in := workflow.ProcessTurnInput{
		TurnID: turnID, AgentID: channel.AgentID, SessionID: channel.ActiveSessionID,
		ConversationID: channel.ActiveConversationID, Content: content, InputTokens: estimateTokens(content),
		Now: time.Now().UTC(),
	}

	key := entity.Key{Type: sessionEntityType, ID: channel.ActiveSessionID}
	stream, err := f.pool.Stream(ctx, key, "", f.runner.RunStream(in))
	if err != nil {
		if _, ok := err.(*entity.MailboxFull); ok {
			return nil, &workflow.TurnModelFailure{TurnID: turnID, Reason: "session_entity_mailbox_full"}
		}
		return nil, err
	}
	return stream, nil
}

// GetHistory returns every turn recorded against the channel's active
// session, oldest first.
func (f *Facade) GetHistory(ctx context.Context, channelID string) ([]storage.TurnRecord, error) {
	channel, err := f.channels.GetChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if channel == nil {
		return nil, &storage.ChannelNotFound{ChannelID: channelID}
	}
	return f.sessions.ListTurns(ctx, channel.ActiveSessionID)
}

// estimateTokens is a coarse, provider-agnostic input token estimate used
// only to drive budget/context-window accounting ahead of the real model
// call, which reports exact usage afterward.
func estimateTokens(content string) int {
	const charsPerToken = 4
	tokens := len(content) / charsPerToken
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}
