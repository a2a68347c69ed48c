package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dohr-michael/agentrt/internal/governance"
	"github.com/dohr-michael/agentrt/internal/storage"
)

// TypedFailure is returned when a tool invocation is denied or held for
// approval by policy, instead of running the tool effect.
type TypedFailure struct {
	ToolName string
	Decision storage.Decision
	Reason   string
}

func (e *TypedFailure) Error() string {
	return fmt.Sprintf("tool %s: %s (%s)", e.ToolName, e.Decision, e.Reason)
}

// Invoker wraps a Registry with the governance pipeline spec.md §4.5
// requires around every tool call: evaluatePolicy, checkToolQuota, the
// tool effect, then an audit entry recording the outcome.
type Invoker struct {
	registry   *Registry
	governance *governance.Governance
}

func NewInvoker(registry *Registry, gov *governance.Governance) *Invoker {
	return &Invoker{registry: registry, governance: gov}
}

// Invoke runs the 4-step governed call: evaluatePolicy -> checkToolQuota ->
// effect -> audit. It returns the tool's JSON result only on success.
func (inv *Invoker) Invoke(ctx context.Context, agentID, sessionID, toolName string, args json.RawMessage) (json.RawMessage, error) {
	now := time.Now().UTC()

	decision, err := inv.governance.EvaluatePolicy(ctx, governance.PolicyInput{
		AgentID: agentID, SessionID: sessionID, Action: governance.ActionInvokeTool, ToolName: toolName,
	})
	if err != nil {
		return nil, fmt.Errorf("evaluate policy: %w", err)
	}
	if decision.Decision != storage.Allow {
		reason := auditReasonForDecision(decision.Decision, toolName)
		_ = inv.governance.WriteAudit(ctx, storage.AuditEntry{
			AgentID: agentID, SessionID: sessionID, Decision: decision.Decision, Reason: reason, CreatedAt: now,
		})
		return nil, &TypedFailure{ToolName: toolName, Decision: decision.Decision, Reason: reason}
	}

	if err := inv.governance.CheckToolQuota(ctx, agentID, toolName, now); err != nil {
		_ = inv.governance.WriteAudit(ctx, storage.AuditEntry{
			AgentID: agentID, SessionID: sessionID, Decision: storage.Deny,
			Reason: fmt.Sprintf("tool_quota_exceeded:%s", toolName), CreatedAt: now,
		})
		return nil, err
	}

	tool, err := inv.registry.Get(toolName)
	if err != nil {
		_ = inv.governance.WriteAudit(ctx, storage.AuditEntry{
			AgentID: agentID, SessionID: sessionID, Decision: storage.Deny,
			Reason: fmt.Sprintf("tool_execution_failed:%s:%s", toolName, "tool_not_found"), CreatedAt: now,
		})
		return nil, err
	}

	var result json.RawMessage
	var runErr error
	if scoped, ok := tool.(AgentScopedTool); ok {
		result, runErr = scoped.InvokeForAgent(ctx, agentID, args)
	} else {
		result, runErr = tool.Invoke(ctx, args)
	}
	if runErr != nil {
		_ = inv.governance.WriteAudit(ctx, storage.AuditEntry{
			AgentID: agentID, SessionID: sessionID, Decision: storage.Deny,
			Reason: fmt.Sprintf("tool_execution_failed:%s:%s", toolName, errorCode(runErr)), CreatedAt: now,
		})
		return nil, runErr
	}

	if err := inv.governance.WriteAudit(ctx, storage.AuditEntry{
		AgentID: agentID, SessionID: sessionID, Decision: storage.Allow,
		Reason: fmt.Sprintf("tool_invoked:%s", toolName), CreatedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("write audit: %w", err)
	}
	return result, nil
}

func auditReasonForDecision(decision storage.Decision, toolName string) string {
	if decision == storage.RequireApproval {
		return fmt.Sprintf("tool_requires_approval:%s", toolName)
	}
	return fmt.Sprintf("tool_policy_denied:%s", toolName)
}

// errorCode classifies a tool error into a short audit code.
func errorCode(err error) string {
	var notFound *NotFound
	if errors.As(err, &notFound) {
		return "tool_not_found"
	}
	return "execution_error"
}
