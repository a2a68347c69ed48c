package workflow

import (
	"github.com/dohr-michael/agentrt/internal/entity"
	"github.com/dohr-michael/agentrt/internal/storage"
)

// TurnStartedPayload is the first event of every turn's stream.
type TurnStartedPayload struct {
	TurnID string `json:"turnId"`
}

// AssistantDeltaPayload carries one text content block.
type AssistantDeltaPayload struct {
	Text string `json:"text"`
}

// ToolCallPayload carries one tool-use content block.
type ToolCallPayload struct {
	ToolCallID string `json:"toolCallId"`
	ToolName   string `json:"toolName"`
	InputJSON  string `json:"inputJson"`
}

// ToolResultPayload carries one tool-result content block.
type ToolResultPayload struct {
	ToolCallID string `json:"toolCallId"`
	ToolName   string `json:"toolName"`
	OutputJSON string `json:"outputJson"`
	IsError    bool   `json:"isError"`
}

// TurnCompletedPayload is the terminal event of a successful turn.
type TurnCompletedPayload struct {
	TurnID            string `json:"turnId"`
	ModelFinishReason string `json:"modelFinishReason"`
	ModelUsageJSON    string `json:"modelUsageJson"`
}

// TurnFailedPayload is the terminal event of a failed turn, replacing the
// tail of the sequence at entity.FailureSequence.
type TurnFailedPayload struct {
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
}

// ProjectStream converts a completed ProcessTurnResult into the canonical
// event sequence spec.md §4.4 describes: turn.started, one event per
// content block (ImageBlock dropped), turn.completed. Sequence starts at
// 1 and is strictly increasing.
func ProjectStream(result *ProcessTurnResult) []entity.Event {
	seq := 1
	next := func() int {
		n := seq
		seq++
		return n
	}

	events := []entity.Event{
		{Sequence: next(), Name: "turn.started", Payload: TurnStartedPayload{TurnID: result.TurnID}},
	}
	for _, block := range result.AssistantContentBlocks {
		switch block.Type {
		case storage.TextBlockType:
			events = append(events, entity.Event{Sequence: next(), Name: "assistant.delta", Payload: AssistantDeltaPayload{Text: block.Text}})
		case storage.ToolUseBlockType:
			events = append(events, entity.Event{Sequence: next(), Name: "tool.call", Payload: ToolCallPayload{ToolCallID: block.ToolCallID, ToolName: block.ToolName, InputJSON: block.InputJSON}})
		case storage.ToolResultBlockType:
			events = append(events, entity.Event{Sequence: next(), Name: "tool.result", Payload: ToolResultPayload{ToolCallID: block.ToolCallID, ToolName: block.ToolName, OutputJSON: block.OutputJSON, IsError: block.IsError}})
		case storage.ImageBlockType:
			// dropped from the stream per spec.md §4.4
		}
	}
	events = append(events, entity.Event{Sequence: next(), Name: "turn.completed", Payload: TurnCompletedPayload{
		TurnID: result.TurnID, ModelFinishReason: result.ModelFinishReason, ModelUsageJSON: result.ModelUsageJSON,
	}})
	return events
}

// ProjectFailure produces the single turn.failed event that replaces the
// tail of a failed turn's stream.
func ProjectFailure(errorCode, message string) entity.Event {
	return entity.Event{Sequence: entity.FailureSequence, Name: "turn.failed", Payload: TurnFailedPayload{ErrorCode: errorCode, Message: message}}
}
