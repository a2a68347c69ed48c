package governance

import (
	"context"
	"sync"
	"time"

	"github.com/dohr-michael/agentrt/internal/events"
	"github.com/dohr-michael/agentrt/internal/storage"
)

// Governance is the concrete GovernancePort (spec.md §4.1): evaluatePolicy,
// checkToolQuota, writeAudit, enforceSandbox. writeAudit delegates straight
// through to storage.AuditPort; the quota counter is process-local since
// spec.md does not require it to survive a restart (only the audit trail
// and workflow journal do).
type Governance struct {
	agents storage.AgentStatePort
	audit  storage.AuditPort

	quotaWindow time.Duration
	quotaLimit  int

	mu    sync.Mutex
	usage map[quotaKey]*quotaCounter

	bus *events.Bus
}

type quotaKey struct {
	agentID  string
	toolName string
}

type quotaCounter struct {
	windowStart time.Time
	count       int
}

// Option configures a Governance.
type Option func(*Governance)

// WithToolQuota sets the per-(agent,tool) call limit within window. Zero
// limit (the default via New) disables quota enforcement.
func WithToolQuota(limit int, window time.Duration) Option {
	return func(g *Governance) {
		g.quotaLimit = limit
		g.quotaWindow = window
	}
}

// WithEventBus makes WriteAudit additionally publish an AuditPayload event
// after the entry is durably recorded. Purely observational: nothing in
// governance ever reads the bus back, so a full mailbox or missing
// subscriber never affects a policy decision.
func WithEventBus(bus *events.Bus) Option {
	return func(g *Governance) {
		g.bus = bus
	}
}

// New creates a Governance backed by the given storage ports.
func New(agents storage.AgentStatePort, audit storage.AuditPort, opts ...Option) *Governance {
	g := &Governance{
		agents:      agents,
		audit:       audit,
		quotaWindow: time.Hour,
		usage:       make(map[quotaKey]*quotaCounter),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// WriteAudit is idempotent on AuditEntryID, delegating to storage.AuditPort.
func (g *Governance) WriteAudit(ctx context.Context, entry storage.AuditEntry) error {
	if entry.AuditEntryID == "" {
		entry.AuditEntryID = storage.NewAuditID()
	}
	if err := g.audit.WriteAudit(ctx, entry); err != nil {
		return err
	}
	if g.bus != nil {
		g.bus.Publish(events.NewTypedEventWithSession(events.SourceGovernance, events.AuditPayload{
			AgentID: entry.AgentID, SessionID: entry.SessionID,
			Decision: string(entry.Decision), Reason: entry.Reason,
		}, entry.SessionID))
	}
	return nil
}

// CheckToolQuota fails ToolQuotaExceeded once an agent exceeds quotaLimit
// calls to toolName within the rolling quotaWindow.
func (g *Governance) CheckToolQuota(ctx context.Context, agentID, toolName string, now time.Time) error {
	if g.quotaLimit <= 0 {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	key := quotaKey{agentID: agentID, toolName: toolName}
	c, ok := g.usage[key]
	if !ok || now.Sub(c.windowStart) >= g.quotaWindow {
		c = &quotaCounter{windowStart: now}
		g.usage[key] = c
	}
	if c.count >= g.quotaLimit {
		return &storage.ToolQuotaExceeded{AgentID: agentID, ToolName: toolName, Remaining: 0}
	}
	c.count++
	return nil
}
