package governance

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dohr-michael/agentrt/internal/storage"
)

func newTestGovernance(t *testing.T, opts ...Option) (*Governance, *storage.DB, string) {
	t.Helper()
	ctx := context.Background()
	db, err := storage.Open(ctx, filepath.Join(t.TempDir(), "gov.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	agentID := storage.NewAgentID()
	require.NoError(t, db.Upsert(ctx, storage.AgentState{
		AgentID:        agentID,
		PermissionMode: storage.PermissionStandard,
		TokenBudget:    1000,
		QuotaPeriod:    storage.QuotaDaily,
	}))
	return New(db, db, opts...), db, agentID
}

func TestEvaluatePolicy_UnknownAgentDenied(t *testing.T) {
	g, _, _ := newTestGovernance(t)
	decision, err := g.EvaluatePolicy(context.Background(), PolicyInput{AgentID: "agent:missing", Action: ActionReadMemory})
	require.NoError(t, err)
	assert.Equal(t, storage.Deny, decision.Decision)
}

func TestEvaluatePolicy_RestrictiveRequiresApprovalForTools(t *testing.T) {
	ctx := context.Background()
	g, db, agentID := newTestGovernance(t)
	require.NoError(t, db.Upsert(ctx, storage.AgentState{
		AgentID: agentID, PermissionMode: storage.PermissionRestrictive, TokenBudget: 1000, QuotaPeriod: storage.QuotaDaily,
	}))

	decision, err := g.EvaluatePolicy(ctx, PolicyInput{AgentID: agentID, Action: ActionInvokeTool, ToolName: "math.calculate"})
	require.NoError(t, err)
	assert.Equal(t, storage.RequireApproval, decision.Decision)

	decision, err = g.EvaluatePolicy(ctx, PolicyInput{AgentID: agentID, Action: ActionReadMemory})
	require.NoError(t, err)
	assert.Equal(t, storage.Allow, decision.Decision)
}

func TestCheckToolQuota_ExceedsLimit(t *testing.T) {
	g, _, agentID := newTestGovernance(t, WithToolQuota(2, time.Minute))
	now := time.Now()

	require.NoError(t, g.CheckToolQuota(context.Background(), agentID, "math.calculate", now))
	require.NoError(t, g.CheckToolQuota(context.Background(), agentID, "math.calculate", now))

	err := g.CheckToolQuota(context.Background(), agentID, "math.calculate", now)
	require.Error(t, err)
	var exceeded *storage.ToolQuotaExceeded
	require.ErrorAs(t, err, &exceeded)
}

func TestCheckToolQuota_ResetsAfterWindow(t *testing.T) {
	g, _, agentID := newTestGovernance(t, WithToolQuota(1, time.Minute))
	now := time.Now()

	require.NoError(t, g.CheckToolQuota(context.Background(), agentID, "math.calculate", now))
	require.Error(t, g.CheckToolQuota(context.Background(), agentID, "math.calculate", now))
	require.NoError(t, g.CheckToolQuota(context.Background(), agentID, "math.calculate", now.Add(2*time.Minute)))
}

func TestEnforceSandbox_BlocksDestructiveOperation(t *testing.T) {
	g, _, agentID := newTestGovernance(t)
	called := false
	err := g.EnforceSandbox(agentID, "rm -rf /data", func() error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called)
	var violation *storage.SandboxViolation
	require.ErrorAs(t, err, &violation)
}

func TestEnforceSandbox_AllowsSafeOperation(t *testing.T) {
	g, _, agentID := newTestGovernance(t)
	called := false
	err := g.EnforceSandbox(agentID, "ls -la", func() error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestWriteAudit_GeneratesIDWhenEmpty(t *testing.T) {
	ctx := context.Background()
	g, db, agentID := newTestGovernance(t)
	require.NoError(t, g.WriteAudit(ctx, storage.AuditEntry{
		AgentID:  agentID,
		Decision: storage.Allow,
		Reason:   "turn_processing_accepted",
	}))

	entries, err := db.ListAuditByAgent(ctx, agentID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotEmpty(t, entries[0].AuditEntryID)
}
