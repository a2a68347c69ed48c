package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dohr-michael/agentrt/internal/governance"
	"github.com/dohr-michael/agentrt/internal/llm"
	"github.com/dohr-michael/agentrt/internal/storage"
)

// maxToolIterations bounds the in-turn tool-call loop: generate, run any
// tool calls the model asked for, feed the results back, generate again.
// Without a cap a misbehaving model could keep requesting tools forever.
const maxToolIterations = 4

// ToolInvoker executes one tool call on behalf of the turn workflow. It is
// satisfied by *tools.Invoker; kept as a narrow interface here so workflow
// does not need to depend on the tools package's registry/governance wiring.
type ToolInvoker interface {
	Invoke(ctx context.Context, agentID, sessionID, toolName string, args json.RawMessage) (json.RawMessage, error)
}

const (
	activityEvaluatePolicy    = "EvaluatePolicy"
	activityCheckTokenBudget  = "CheckTokenBudget"
	activityPersistUserTurn   = "PersistUserTurn"
	activityInvokeModel       = "InvokeModel"
	activityPersistAssistant  = "PersistAssistantTurn"
	activityWriteAuditAccept  = "WriteAuditAccept"
)

// TurnPolicyDenied is the typed failure for a Deny or RequireApproval
// policy verdict on a turn.
type TurnPolicyDenied struct {
	TurnID string
	Reason string
}

func (e *TurnPolicyDenied) Error() string {
	return fmt.Sprintf("turn %s: policy denied (%s)", e.TurnID, e.Reason)
}

// TurnModelFailure is the typed failure for an LLM adapter error.
type TurnModelFailure struct {
	TurnID string
	Reason string
}

func (e *TurnModelFailure) Error() string {
	return fmt.Sprintf("turn %s: model failure (%s)", e.TurnID, e.Reason)
}

// AgentProfile resolves the persona and generation parameters agent.yaml
// configures for one agent.
type AgentProfile struct {
	SystemPrompt    string
	Model           string
	Temperature     float64
	MaxOutputTokens int
	TopP            *float64
	Seed            *int64
}

// ProfileResolver looks up an AgentProfile by agent ID.
type ProfileResolver interface {
	Resolve(ctx context.Context, agentID string) (AgentProfile, error)
}

// ToolCatalog lists the tool specs offered to the model for a turn.
type ToolCatalog interface {
	ToolSpecs() []llm.ToolSpec
}

// ProcessTurnInput is the request handed to Runner.ProcessTurn.
type ProcessTurnInput struct {
	TurnID         string
	AgentID        string
	SessionID      string
	ConversationID string
	Content        string
	InputTokens    int
	Now            time.Time
}

// ProcessTurnResult is the outcome of a successfully accepted turn.
type ProcessTurnResult struct {
	TurnID                 string                 `json:"turnId"`
	Accepted               bool                   `json:"accepted"`
	AuditReasonCode        string                 `json:"auditReasonCode"`
	AssistantContent       string                 `json:"assistantContent"`
	AssistantContentBlocks []storage.ContentBlock `json:"assistantContentBlocks"`
	ModelFinishReason      string                 `json:"modelFinishReason"`
	ModelUsageJSON         string                 `json:"modelUsageJson"`
}

// Runner executes the turn workflow's journalled activity sequence.
type Runner struct {
	agents     storage.AgentStatePort
	sessions   storage.SessionTurnPort
	journal    storage.WorkflowJournalPort
	governance *governance.Governance
	provider   llm.Provider
	profiles   ProfileResolver
	tools      ToolCatalog
	invoker    ToolInvoker
}

func NewRunner(agents storage.AgentStatePort, sessions storage.SessionTurnPort, journal storage.WorkflowJournalPort, gov *governance.Governance, provider llm.Provider, profiles ProfileResolver, tools ToolCatalog) *Runner {
	return &Runner{
		agents: agents, sessions: sessions, journal: journal,
		governance: gov, provider: provider, profiles: profiles, tools: tools,
	}
}

// WithToolInvoker enables in-turn tool execution: when the model responds
// with a tool-call part, the invoker runs it and the result is fed back
// for another generation round (bounded by maxToolIterations) before the
// turn's single assistant message is persisted. Nil (the default) leaves
// tool calls in the response unexecuted, as plain content blocks.
func (r *Runner) WithToolInvoker(inv ToolInvoker) *Runner {
	r.invoker = inv
	return r
}

// ProcessTurn runs the 8-step sequence described in spec.md §4.4. Each
// step is individually exactly-once via the workflow journal, keyed by
// in.TurnID.
func (r *Runner) ProcessTurn(ctx context.Context, in ProcessTurnInput) (*ProcessTurnResult, error) {
	executionID := in.TurnID

	decision, err := runActivity(ctx, r.journal, executionID, activityEvaluatePolicy, in.TurnID, func() (governance.PolicyDecision, error) {
		return r.governance.EvaluatePolicy(ctx, governance.PolicyInput{
			AgentID: in.AgentID, SessionID: in.SessionID, Action: governance.ActionReadMemory,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("evaluate policy: %w", err)
	}
	if decision.Decision != storage.Allow {
		reason := "turn_processing_policy_denied"
		if decision.Decision == storage.RequireApproval {
			reason = "turn_processing_requires_approval"
		}
		_ = r.governance.WriteAudit(ctx, storage.AuditEntry{AgentID: in.AgentID, SessionID: in.SessionID, Decision: decision.Decision, Reason: reason, CreatedAt: in.Now})
		return nil, &TurnPolicyDenied{TurnID: in.TurnID, Reason: reason}
	}

	if _, err := runActivity(ctx, r.journal, executionID, activityCheckTokenBudget, in.TurnID, func() (struct{}, error) {
		return struct{}{}, r.agents.ConsumeTokenBudget(ctx, in.AgentID, in.InputTokens, in.Now)
	}); err != nil {
		_ = r.governance.WriteAudit(ctx, storage.AuditEntry{AgentID: in.AgentID, SessionID: in.SessionID, Decision: storage.Deny, Reason: "turn_processing_token_budget_exceeded", CreatedAt: in.Now})
		return nil, err
	}

	priorTurns, err := r.sessions.ListTurns(ctx, in.SessionID)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	historyWasEmpty := len(priorTurns) == 0

	userTurn := storage.TurnRecord{
		TurnID: in.TurnID, SessionID: in.SessionID, ConversationID: in.ConversationID,
		ParticipantRole: storage.UserRole, ParticipantAgentID: in.AgentID,
		Message: storage.Message{MessageID: in.TurnID, Role: storage.UserRole, Content: in.Content, ContentBlocks: []storage.ContentBlock{storage.TextBlock(in.Content)}},
		CreatedAt: in.Now,
	}
	if _, err := runActivity(ctx, r.journal, executionID, activityPersistUserTurn, in.TurnID, func() (storage.TurnRecord, error) {
		if err := r.sessions.UpdateContextWindow(ctx, in.SessionID, in.InputTokens); err != nil {
			return storage.TurnRecord{}, err
		}
		return r.sessions.AppendTurn(ctx, userTurn)
	}); err != nil {
		return nil, fmt.Errorf("persist user turn: %w", err)
	}

	profile, err := r.profiles.Resolve(ctx, in.AgentID)
	if err != nil {
		return nil, fmt.Errorf("resolve agent profile: %w", err)
	}

	turnOutcome, err := runActivity(ctx, r.journal, executionID, activityInvokeModel, in.TurnID, func() (modelTurnOutcome, error) {
		history, err := r.sessions.ListTurns(ctx, in.SessionID)
		if err != nil {
			return modelTurnOutcome{}, err
		}
		return r.runModelWithTools(ctx, in, profile, turnsToMessages(history), historyWasEmpty)
	})
	if err != nil {
		_ = r.governance.WriteAudit(ctx, storage.AuditEntry{AgentID: in.AgentID, SessionID: in.SessionID, Decision: storage.Deny, Reason: "turn_processing_model_error", CreatedAt: in.Now})
		return nil, &TurnModelFailure{TurnID: in.TurnID, Reason: err.Error()}
	}
	modelResult := turnOutcome.Final

	assistantBlocks := turnOutcome.Blocks
	usageJSON, err := json.Marshal(turnOutcome.Usage)
	if err != nil {
		return nil, fmt.Errorf("marshal usage: %w", err)
	}

	assistantTurnID := in.TurnID + ":assistant"
	assistantTurn := storage.TurnRecord{
		TurnID: assistantTurnID, SessionID: in.SessionID, ConversationID: in.ConversationID,
		ParticipantRole: storage.AssistantRole, ParticipantAgentID: in.AgentID,
		Message:           storage.Message{MessageID: assistantTurnID, Role: storage.AssistantRole, Content: modelResult.Text, ContentBlocks: assistantBlocks},
		ModelFinishReason: modelResult.FinishReason,
		ModelUsageJSON:    string(usageJSON),
		CreatedAt:         in.Now,
	}
	if _, err := runActivity(ctx, r.journal, executionID, activityPersistAssistant, in.TurnID, func() (storage.TurnRecord, error) {
		return r.sessions.AppendTurn(ctx, assistantTurn)
	}); err != nil {
		return nil, fmt.Errorf("persist assistant turn: %w", err)
	}

	if _, err := runActivity(ctx, r.journal, executionID, activityWriteAuditAccept, in.TurnID, func() (struct{}, error) {
		return struct{}{}, r.governance.WriteAudit(ctx, storage.AuditEntry{AgentID: in.AgentID, SessionID: in.SessionID, Decision: storage.Allow, Reason: "turn_processing_accepted", CreatedAt: in.Now})
	}); err != nil {
		return nil, fmt.Errorf("write accept audit: %w", err)
	}

	return &ProcessTurnResult{
		TurnID: in.TurnID, Accepted: true, AuditReasonCode: "turn_processing_accepted",
		AssistantContent: modelResult.Text, AssistantContentBlocks: assistantBlocks,
		ModelFinishReason: modelResult.FinishReason, ModelUsageJSON: string(usageJSON),
	}, nil
}

// modelTurnOutcome is the journalled result of the InvokeModel activity: the
// final generation plus every content block produced across the tool-call
// loop, so a replay reproduces the same assistant turn without re-invoking
// the model or any tool.
type modelTurnOutcome struct {
	Final  llm.GenerateResult     `json:"final"`
	Blocks []storage.ContentBlock `json:"blocks"`
	Usage  llm.Usage              `json:"usage"`
}

// runModelWithTools drives the generate/execute-tools/regenerate loop for
// one turn. When r.invoker is nil, or the model never asks for a tool, it
// degrades to a single Generate call. Bounded by maxToolIterations so a
// model that keeps requesting tools can't loop forever.
func (r *Runner) runModelWithTools(ctx context.Context, in ProcessTurnInput, profile AgentProfile, history []storage.Message, historyWasEmpty bool) (modelTurnOutcome, error) {
	var allBlocks []storage.ContentBlock
	var last llm.GenerateResult

	for iteration := 0; iteration < maxToolIterations; iteration++ {
		req := llm.GenerateRequest{
			History: history, Model: profile.Model, Temperature: profile.Temperature,
			MaxOutputTokens: profile.MaxOutputTokens, TopP: profile.TopP, Seed: profile.Seed,
		}
		if historyWasEmpty && iteration == 0 {
			req.SystemPrompt = profile.SystemPrompt
		}
		if r.tools != nil {
			req.Tools = r.tools.ToolSpecs()
		}

		result, err := r.provider.Generate(ctx, req)
		if err != nil {
			return modelTurnOutcome{}, err
		}
		last = result
		blocks := convertParts(result.Parts)
		allBlocks = append(allBlocks, blocks...)

		toolCalls := toolCallParts(result.Parts)
		if len(toolCalls) == 0 || r.invoker == nil {
			break
		}

		history = append(history, storage.Message{
			Role: storage.AssistantRole, Content: result.Text, ContentBlocks: blocks,
		})

		var resultBlocks []storage.ContentBlock
		for _, call := range toolCalls {
			output, invokeErr := r.invoker.Invoke(ctx, in.AgentID, in.SessionID, call.ToolName, json.RawMessage(call.InputJSON))
			isError := invokeErr != nil
			if invokeErr != nil {
				output = json.RawMessage(fmt.Sprintf(`{"error":%q}`, invokeErr.Error()))
			}
			resultBlocks = append(resultBlocks, storage.ToolResultBlock(call.ToolCallID, call.ToolName, string(output), isError))
		}
		allBlocks = append(allBlocks, resultBlocks...)

		history = append(history, storage.Message{Role: storage.UserRole, ContentBlocks: resultBlocks})
	}

	return modelTurnOutcome{Final: last, Blocks: allBlocks, Usage: last.Usage}, nil
}

// toolCallParts extracts the tool-call requests from a generation result.
func toolCallParts(parts []llm.Part) []llm.Part {
	var calls []llm.Part
	for _, p := range parts {
		if p.Type == llm.ToolCallPart {
			calls = append(calls, p)
		}
	}
	return calls
}

// turnsToMessages is the pure conversion from stored turns to the
// provider's chat-history shape.
func turnsToMessages(turns []storage.TurnRecord) []storage.Message {
	messages := make([]storage.Message, 0, len(turns))
	for _, t := range turns {
		messages = append(messages, t.Message)
	}
	return messages
}

// convertParts is the pure content-block conversion spec.md §4.4 step 5
// describes: text -> TextBlock, tool-call -> ToolUseBlock, tool-result ->
// ToolResultBlock, file(image/*) -> ImageBlock, everything else dropped.
func convertParts(parts []llm.Part) []storage.ContentBlock {
	var blocks []storage.ContentBlock
	for _, p := range parts {
		switch p.Type {
		case llm.TextPart:
			blocks = append(blocks, storage.TextBlock(p.Text))
		case llm.ToolCallPart:
			blocks = append(blocks, storage.ToolUseBlock(p.ToolCallID, p.ToolName, p.InputJSON))
		case llm.ToolResultPart:
			blocks = append(blocks, storage.ToolResultBlock(p.ToolCallID, p.ToolName, p.OutputJSON, p.IsError))
		case llm.FilePart:
			if len(p.MediaType) >= 6 && p.MediaType[:6] == "image/" {
				blocks = append(blocks, storage.ImageBlock(p.MediaType, p.Source, ""))
			}
		}
	}
	return blocks
}
