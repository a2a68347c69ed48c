package governance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dohr-michael/agentrt/internal/events"
	"github.com/dohr-michael/agentrt/internal/storage"
)

func TestAuditListener_TalliesDecisionsPerAgent(t *testing.T) {
	bus := events.NewBus(16)
	defer bus.Close()
	listener := NewAuditListener(bus)
	defer listener.Close()

	gov, _, agentID := newTestGovernance(t, WithEventBus(bus))

	require.NoError(t, gov.WriteAudit(context.Background(), storage.AuditEntry{
		AgentID: agentID, Decision: storage.Allow, Reason: "ok", CreatedAt: time.Now(),
	}))
	require.NoError(t, gov.WriteAudit(context.Background(), storage.AuditEntry{
		AgentID: agentID, Decision: storage.Deny, Reason: "nope", CreatedAt: time.Now(),
	}))

	require.Eventually(t, func() bool {
		c := listener.Counts(agentID)
		return c.Allowed == 1 && c.Denied == 1
	}, time.Second, 5*time.Millisecond)
}

func TestAuditListener_IgnoresUnrelatedAgents(t *testing.T) {
	bus := events.NewBus(16)
	defer bus.Close()
	listener := NewAuditListener(bus)
	defer listener.Close()

	assert.Equal(t, AuditCounts{}, listener.Counts("agent:unknown"))
}
