package tools

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dohr-michael/agentrt/internal/governance"
	"github.com/dohr-michael/agentrt/internal/storage"
	"github.com/dohr-michael/agentrt/internal/tools/builtin"
)

func newTestInvoker(t *testing.T, permission storage.PermissionMode, govOpts ...governance.Option) (*Invoker, *storage.DB, string) {
	t.Helper()
	ctx := context.Background()
	db, err := storage.Open(ctx, filepath.Join(t.TempDir(), "invoke.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	agentID := storage.NewAgentID()
	require.NoError(t, db.Upsert(ctx, storage.AgentState{
		AgentID: agentID, PermissionMode: permission, TokenBudget: 1000, QuotaPeriod: storage.QuotaDaily,
	}))

	registry := NewRegistry()
	registry.Register(builtin.Echo{})
	gov := governance.New(db, db, govOpts...)
	return NewInvoker(registry, gov), db, agentID
}

func TestInvoker_SucceedsAndAuditsInvocation(t *testing.T) {
	ctx := context.Background()
	inv, db, agentID := newTestInvoker(t, storage.PermissionStandard)

	out, err := inv.Invoke(ctx, agentID, "session:1", "echo.text", json.RawMessage(`{"text":"hi"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"hi"}`, string(out))

	entries, err := db.ListAuditByAgent(ctx, agentID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "tool_invoked:echo.text", entries[0].Reason)
	assert.Equal(t, storage.Allow, entries[0].Decision)
}

func TestInvoker_RestrictiveModeRequiresApproval(t *testing.T) {
	ctx := context.Background()
	inv, db, agentID := newTestInvoker(t, storage.PermissionRestrictive)

	_, err := inv.Invoke(ctx, agentID, "session:1", "echo.text", json.RawMessage(`{"text":"hi"}`))
	require.Error(t, err)
	var failure *TypedFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, storage.RequireApproval, failure.Decision)

	entries, err := db.ListAuditByAgent(ctx, agentID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "tool_requires_approval:echo.text", entries[0].Reason)
}

func TestInvoker_QuotaExceededFailsAndAudits(t *testing.T) {
	ctx := context.Background()
	inv, db, agentID := newTestInvoker(t, storage.PermissionStandard, governance.WithToolQuota(1, time.Minute))

	_, err := inv.Invoke(ctx, agentID, "session:1", "echo.text", json.RawMessage(`{"text":"hi"}`))
	require.NoError(t, err)

	_, err = inv.Invoke(ctx, agentID, "session:1", "echo.text", json.RawMessage(`{"text":"hi"}`))
	require.Error(t, err)
	var exceeded *storage.ToolQuotaExceeded
	require.ErrorAs(t, err, &exceeded)

	entries, err := db.ListAuditByAgent(ctx, agentID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "tool_quota_exceeded:echo.text", entries[0].Reason)
}

func TestInvoker_RoutesAgentScopedToolsThroughInvokeForAgent(t *testing.T) {
	ctx := context.Background()
	db, err := storage.Open(ctx, filepath.Join(t.TempDir(), "invoke-scoped.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	agentID := storage.NewAgentID()
	require.NoError(t, db.Upsert(ctx, storage.AgentState{
		AgentID: agentID, PermissionMode: storage.PermissionStandard, TokenBudget: 1000, QuotaPeriod: storage.QuotaDaily,
	}))

	registry := NewRegistry()
	registry.Register(builtin.MemoryStore{Port: db})
	gov := governance.New(db, db)
	inv := NewInvoker(registry, gov)

	out, err := inv.Invoke(ctx, agentID, "session:1", "memory.store", json.RawMessage(`{"content":"likes tea"}`))
	require.NoError(t, err)

	var result struct {
		MemoryItemID string `json:"memoryItemId"`
	}
	require.NoError(t, json.Unmarshal(out, &result))
	assert.NotEmpty(t, result.MemoryItemID)

	found, err := db.Search(ctx, agentID, storage.MemoryQuery{Substring: "tea"})
	require.NoError(t, err)
	require.Len(t, found.Items, 1)
	assert.Equal(t, "likes tea", found.Items[0].Content)
}

func TestInvoker_UnknownToolFailsAndAudits(t *testing.T) {
	ctx := context.Background()
	inv, db, agentID := newTestInvoker(t, storage.PermissionStandard)

	_, err := inv.Invoke(ctx, agentID, "session:1", "missing.tool", nil)
	require.Error(t, err)
	var notFound *NotFound
	require.ErrorAs(t, err, &notFound)

	entries, err := db.ListAuditByAgent(ctx, agentID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "tool_execution_failed:missing.tool:tool_not_found", entries[0].Reason)
}
