package events

import (
	"testing"
	"time"
)

func TestTypedEvent_UserMessage(t *testing.T) {
	payload := UserMessagePayload{Content: "hello"}
	evt := NewTypedEvent(SourceAgent, payload)

	if evt.Type != EventUserMessage {
		t.Fatalf("expected type %q, got %q", EventUserMessage, evt.Type)
	}
	got, ok := ExtractPayload[UserMessagePayload](evt)
	if !ok {
		t.Fatal("ExtractPayload returned false")
	}
	if got.Content != "hello" {
		t.Fatalf("expected content %q, got %q", "hello", got.Content)
	}
}

func TestTypedEvent_AssistantStream(t *testing.T) {
	payload := AssistantStreamPayload{Phase: StreamPhaseDelta, Content: "chunk", Index: 3}
	evt := NewTypedEvent(SourceAgent, payload)

	if evt.Type != EventAssistantStream {
		t.Fatalf("expected type %q, got %q", EventAssistantStream, evt.Type)
	}
	got, ok := ExtractPayload[AssistantStreamPayload](evt)
	if !ok {
		t.Fatal("ExtractPayload returned false")
	}
	if got.Phase != StreamPhaseDelta {
		t.Fatalf("expected phase %q, got %q", StreamPhaseDelta, got.Phase)
	}
	if got.Content != "chunk" {
		t.Fatalf("expected content %q, got %q", "chunk", got.Content)
	}
	if got.Index != 3 {
		t.Fatalf("expected index 3, got %d", got.Index)
	}
}

func TestTypedEvent_AssistantMessage(t *testing.T) {
	payload := AssistantMessagePayload{
		Content: "response",
		Error:   "",
		Context: map[string]any{"key": "val"},
	}
	evt := NewTypedEvent(SourceAgent, payload)

	if evt.Type != EventAssistantMessage {
		t.Fatalf("expected type %q, got %q", EventAssistantMessage, evt.Type)
	}
	got, ok := ExtractPayload[AssistantMessagePayload](evt)
	if !ok {
		t.Fatal("ExtractPayload returned false")
	}
	if got.Content != "response" {
		t.Fatalf("expected content %q, got %q", "response", got.Content)
	}
}

func TestTypedEvent_ToolCall(t *testing.T) {
	payload := ToolCallPayload{
		Status:    ToolStatusCompleted,
		Name:      "search",
		Arguments: map[string]any{"query": "test"},
		Result:    "found 3 items",
	}
	evt := NewTypedEvent(SourceAgent, payload)

	if evt.Type != EventToolCall {
		t.Fatalf("expected type %q, got %q", EventToolCall, evt.Type)
	}
	got, ok := ExtractPayload[ToolCallPayload](evt)
	if !ok {
		t.Fatal("ExtractPayload returned false")
	}
	if got.Status != ToolStatusCompleted {
		t.Fatalf("expected status %q, got %q", ToolStatusCompleted, got.Status)
	}
	if got.Name != "search" {
		t.Fatalf("expected name %q, got %q", "search", got.Name)
	}
	if got.Result != "found 3 items" {
		t.Fatalf("expected result %q, got %q", "found 3 items", got.Result)
	}
}

func TestTypedEvent_LLMCall(t *testing.T) {
	payload := LLMCallPayload{
		Phase:        "response",
		Model:        "claude-sonnet",
		Provider:     "anthropic",
		MessageCount: 5,
		TokensInput:  100,
		TokensOutput: 50,
		Duration:     2 * time.Second,
	}
	evt := NewTypedEvent(SourceAgent, payload)

	if evt.Type != EventLLMCall {
		t.Fatalf("expected type %q, got %q", EventLLMCall, evt.Type)
	}
	got, ok := ExtractPayload[LLMCallPayload](evt)
	if !ok {
		t.Fatal("ExtractPayload returned false")
	}
	if got.Phase != "response" {
		t.Fatalf("expected phase %q, got %q", "response", got.Phase)
	}
	if got.TokensInput != 100 {
		t.Fatalf("expected tokens_input 100, got %d", got.TokensInput)
	}
	if got.TokensOutput != 50 {
		t.Fatalf("expected tokens_output 50, got %d", got.TokensOutput)
	}
}

func TestTypedEvent_AuditRecorded(t *testing.T) {
	payload := AuditPayload{AgentID: "agent:1", SessionID: "session:1", Decision: "Allow", Reason: "turn_processing_accepted"}
	evt := NewTypedEvent(SourceGovernance, payload)

	if evt.Type != EventAuditRecorded {
		t.Fatalf("expected type %q, got %q", EventAuditRecorded, evt.Type)
	}
	got, ok := ExtractPayload[AuditPayload](evt)
	if !ok {
		t.Fatal("ExtractPayload returned false")
	}
	if got.Reason != "turn_processing_accepted" {
		t.Fatalf("expected reason %q, got %q", "turn_processing_accepted", got.Reason)
	}
}

func TestTypedEventWithSession(t *testing.T) {
	payload := UserMessagePayload{Content: "hello"}
	evt := NewTypedEventWithSession(SourceGateway, payload, "sess_abc123")

	if evt.SessionID != "sess_abc123" {
		t.Fatalf("expected session_id %q, got %q", "sess_abc123", evt.SessionID)
	}
	if evt.Source != SourceGateway {
		t.Fatalf("expected source %q, got %q", SourceGateway, evt.Source)
	}
	got, ok := ExtractPayload[UserMessagePayload](evt)
	if !ok {
		t.Fatal("ExtractPayload returned false")
	}
	if got.Content != "hello" {
		t.Fatalf("expected content %q, got %q", "hello", got.Content)
	}
}

func TestExtractPayload_WrongType(t *testing.T) {
	// Create a UserMessage event, try to extract as ToolCallPayload
	payload := UserMessagePayload{Content: "hello"}
	evt := NewTypedEvent(SourceAgent, payload)

	got, ok := ExtractPayload[ToolCallPayload](evt)
	// Extraction succeeds (JSON round-trip) but fields are zero-valued
	if !ok {
		t.Fatal("ExtractPayload should succeed even for mismatched types (JSON is flexible)")
	}
	if got.Name != "" {
		t.Fatalf("expected empty name for wrong type extraction, got %q", got.Name)
	}
	if got.Status != "" {
		t.Fatalf("expected empty status for wrong type extraction, got %q", got.Status)
	}
}
