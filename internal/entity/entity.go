// Package entity provides the per-key mailbox runtime: every live
// (entityType, entityKey) pair gets exactly one goroutine and one bounded
// inbox, so operations against the same key are always observed in
// enqueue order. It generalizes the single-goroutine-per-actor discipline
// of the teacher's actor pool from a fixed LLM-capacity slot model to an
// arbitrary keyed-entity model.
package entity

import (
	"context"
	"fmt"
)

// Key identifies a live entity by type ("agent", "session", "channel", ...)
// and an opaque key within that type.
type Key struct {
	Type string
	ID   string
}

func (k Key) String() string {
	return k.Type + ":" + k.ID
}

// MailboxFull is returned when an entity's bounded inbox has no room for a
// new message.
type MailboxFull struct {
	Key Key
}

func (e *MailboxFull) Error() string {
	return fmt.Sprintf("entity %s: mailbox full", e.Key)
}

// AlreadyProcessingMessage is returned when a streaming persisted RPC for a
// primary key is already in flight and cannot be shared the way a plain
// persisted RPC's reply can.
type AlreadyProcessingMessage struct {
	Key        Key
	PrimaryKey string
}

func (e *AlreadyProcessingMessage) Error() string {
	return fmt.Sprintf("entity %s: already processing message %q", e.Key, e.PrimaryKey)
}

// Handler performs a non-persisted RPC and returns its reply or error.
type Handler func(ctx context.Context) (any, error)
