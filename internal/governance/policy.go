// Package governance evaluates policy decisions, enforces per-tool quota,
// records audit entries, and sandboxes operations against a destructive
// command denylist, per spec.md §4.1/§4.5.
package governance

import (
	"context"

	"github.com/dohr-michael/agentrt/internal/storage"
)

// Action identifies what a PolicyInput is asking permission for.
type Action string

const (
	ActionReadMemory Action = "ReadMemory"
	ActionInvokeTool  Action = "InvokeTool"
)

// PolicyInput describes the request evaluatePolicy decides on.
type PolicyInput struct {
	AgentID   string
	SessionID string
	Action    Action
	ToolName  string
}

// PolicyDecision is the outcome of evaluatePolicy.
type PolicyDecision struct {
	Decision storage.Decision
	Reason   string
}

// EvaluatePolicy derives a decision from the agent's permission mode. A
// Restrictive agent requires approval for every tool invocation but is
// allowed reads; Standard and Permissive allow both reads and tool
// invocations. Unknown agents are denied.
func (g *Governance) EvaluatePolicy(ctx context.Context, in PolicyInput) (PolicyDecision, error) {
	state, err := g.agents.Get(ctx, in.AgentID)
	if err != nil {
		return PolicyDecision{}, err
	}
	if state == nil {
		return PolicyDecision{Decision: storage.Deny, Reason: "agent_state_not_found"}, nil
	}

	switch state.PermissionMode {
	case storage.PermissionPermissive:
		return PolicyDecision{Decision: storage.Allow, Reason: "permissive_mode"}, nil
	case storage.PermissionRestrictive:
		if in.Action == ActionInvokeTool {
			return PolicyDecision{Decision: storage.RequireApproval, Reason: "restrictive_mode_tool_invocation"}, nil
		}
		return PolicyDecision{Decision: storage.Allow, Reason: "restrictive_mode_read"}, nil
	default: // PermissionStandard
		if in.Action == ActionInvokeTool {
			return PolicyDecision{Decision: storage.Allow, Reason: "standard_mode_tool_invocation"}, nil
		}
		return PolicyDecision{Decision: storage.Allow, Reason: "standard_mode_read"}, nil
	}
}
