// Package storage provides the SQL-backed storage ports for agent state,
// sessions, turns, audits, schedules, channels, memory, and the workflow
// journal. Every port call that writes runs in a single transaction; reads
// query the connection directly.
package storage

import "github.com/google/uuid"

// ID prefixes brand opaque identifiers by type, per the data model.
const (
	prefixAgent     = "agent:"
	prefixSession   = "session:"
	prefixConv      = "conv:"
	prefixTurn      = "turn:"
	prefixChannel   = "channel:"
	prefixSchedule  = "schedule:"
	prefixExecution = "execution:"
	prefixMessage   = "message:"
	prefixAudit     = "audit:"
	prefixMemory    = "mem:"
)

func newID(prefix string) string {
	return prefix + uuid.New().String()
}

func NewAgentID() string     { return newID(prefixAgent) }
func NewSessionID() string   { return newID(prefixSession) }
func NewConvID() string      { return newID(prefixConv) }
func NewTurnID() string      { return newID(prefixTurn) }
func NewChannelID() string   { return newID(prefixChannel) }
func NewScheduleID() string  { return newID(prefixSchedule) }
func NewExecutionID() string { return newID(prefixExecution) }
func NewMessageID() string   { return newID(prefixMessage) }
func NewAuditID() string     { return newID(prefixAudit) }
func NewMemoryID() string    { return newID(prefixMemory) }

// SessionIDFromChannel derives the deterministic session ID for a channel,
// per spec.md 4.6: sessionId = "session:{channelId}".
func SessionIDFromChannel(channelID string) string {
	return prefixSession + channelID
}

// ConvIDFromChannel derives the deterministic conversation ID for a channel.
func ConvIDFromChannel(channelID string) string {
	return prefixConv + channelID
}
