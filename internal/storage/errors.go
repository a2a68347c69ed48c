package storage

import "fmt"

// TokenBudgetExceeded is returned by AgentStatePort.ConsumeTokenBudget when
// the requested amount would push tokensConsumed past tokenBudget.
type TokenBudgetExceeded struct {
	AgentID   string
	Requested int
	Remaining int
}

func (e *TokenBudgetExceeded) Error() string {
	return fmt.Sprintf("token budget exceeded for %s: requested %d, remaining %d", e.AgentID, e.Requested, e.Remaining)
}

// SessionNotFound is returned when a session lookup misses.
type SessionNotFound struct {
	SessionID string
}

func (e *SessionNotFound) Error() string {
	return fmt.Sprintf("session not found: %s", e.SessionID)
}

// ContextWindowExceeded is returned by SessionTurnPort.UpdateContextWindow
// when the delta would push tokensUsed past tokenCapacity.
type ContextWindowExceeded struct {
	SessionID string
	Capacity  int
	Attempted int
}

func (e *ContextWindowExceeded) Error() string {
	return fmt.Sprintf("context window exceeded for %s: capacity %d, attempted %d", e.SessionID, e.Capacity, e.Attempted)
}

// ToolQuotaExceeded is returned by GovernancePort.CheckToolQuota.
type ToolQuotaExceeded struct {
	AgentID   string
	ToolName  string
	Remaining int
}

func (e *ToolQuotaExceeded) Error() string {
	return fmt.Sprintf("tool quota exceeded for %s on %s: remaining %d", e.AgentID, e.ToolName, e.Remaining)
}

// SandboxViolation is returned by GovernancePort.EnforceSandbox.
type SandboxViolation struct {
	AgentID   string
	Operation string
	Reason    string
}

func (e *SandboxViolation) Error() string {
	return fmt.Sprintf("sandbox violation for %s on %s: %s", e.AgentID, e.Operation, e.Reason)
}

// ChannelNotFound is returned by channel.Facade when no channel record
// exists for the given ID.
type ChannelNotFound struct {
	ChannelID string
}

func (e *ChannelNotFound) Error() string {
	return fmt.Sprintf("channel not found: %s", e.ChannelID)
}
