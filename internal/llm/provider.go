// Package llm defines the provider-agnostic boundary the turn workflow
// calls through to obtain a model completion. Per spec.md §4.4/§6, wire
// protocols and multi-provider abstraction are out of scope: this package
// ships the interface plus one minimal HTTP-based Anthropic-style adapter,
// not a full SDK surface.
package llm

import (
	"context"

	"github.com/dohr-michael/agentrt/internal/storage"
)

// PartType tags the variant of a Part, mirroring the four kinds the turn
// workflow converts into storage.ContentBlocks.
type PartType string

const (
	TextPart       PartType = "text"
	ToolCallPart   PartType = "tool-call"
	ToolResultPart PartType = "tool-result"
	FilePart       PartType = "file"
)

// Part is one piece of a model response, in the adapter's own wire shape
// before the workflow converts it to a storage.ContentBlock.
type Part struct {
	Type PartType

	// TextPart
	Text string

	// ToolCallPart
	ToolCallID string
	ToolName   string
	InputJSON  string

	// ToolResultPart (ToolCallID/ToolName shared with ToolCallPart)
	OutputJSON string
	IsError    bool

	// FilePart
	MediaType string
	Source    string
}

// ToolSpec describes one tool the model may call, derived from the
// tool registry for the duration of a single Generate call.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Usage is the token accounting a provider reports for one call.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// GenerateRequest is one turn's model call: the rendered chat history plus
// generation parameters resolved from agent.yaml.
type GenerateRequest struct {
	SystemPrompt    string
	History         []storage.Message
	Tools           []ToolSpec
	Model           string
	Temperature     float64
	MaxOutputTokens int
	TopP            *float64
	Seed            *int64
}

// GenerateResult is a completed model response.
type GenerateResult struct {
	Text         string
	Parts        []Part
	FinishReason string
	Usage        Usage
}

// Provider is the boundary the turn workflow invokes. Implementations must
// be safe for concurrent use across sessions.
type Provider interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error)
}
