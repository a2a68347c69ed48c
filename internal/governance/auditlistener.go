package governance

import (
	"log/slog"
	"sync"

	"github.com/dohr-michael/agentrt/internal/events"
	"github.com/dohr-michael/agentrt/internal/storage"
)

// AuditCounts is a running per-agent tally of audit decisions.
type AuditCounts struct {
	Allowed          int
	Denied           int
	RequiresApproval int
}

// AuditListener subscribes to audit-recorded events and keeps a running
// per-agent decision tally for observability, generalizing the teacher's
// CostTracker pattern (internal/storage/costtracker.go) from per-session
// token accounting to per-agent audit outcomes. Never read by the policy
// engine itself — Governance.WriteAudit publishes unconditionally of
// whether a listener exists.
type AuditListener struct {
	mu          sync.Mutex
	counts      map[string]AuditCounts
	unsubscribe func()
}

// NewAuditListener subscribes to bus and starts tallying.
func NewAuditListener(bus *events.Bus) *AuditListener {
	al := &AuditListener{counts: make(map[string]AuditCounts)}
	al.unsubscribe = bus.Subscribe(al.handleEvent, events.EventAuditRecorded)
	return al
}

// Close unsubscribes the listener from the event bus.
func (al *AuditListener) Close() {
	if al.unsubscribe != nil {
		al.unsubscribe()
	}
}

// Counts returns the current tally for one agent.
func (al *AuditListener) Counts(agentID string) AuditCounts {
	al.mu.Lock()
	defer al.mu.Unlock()
	return al.counts[agentID]
}

func (al *AuditListener) handleEvent(e events.Event) {
	payload, ok := events.GetAuditPayload(e)
	if !ok {
		return
	}

	al.mu.Lock()
	defer al.mu.Unlock()

	c := al.counts[payload.AgentID]
	switch storage.Decision(payload.Decision) {
	case storage.Allow:
		c.Allowed++
	case storage.Deny:
		c.Denied++
	case storage.RequireApproval:
		c.RequiresApproval++
	}
	al.counts[payload.AgentID] = c

	slog.Debug("audit recorded", "agent_id", payload.AgentID, "decision", payload.Decision, "reason", payload.Reason)
}
