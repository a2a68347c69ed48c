package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dohr-michael/agentrt/internal/storage"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	defaultAnthropicVersion = "2023-06-01"
	defaultAnthropicModel   = "claude-sonnet-4-6"
	defaultMaxOutputTokens  = 4096
	defaultRequestTimeout   = 60 * time.Second
)

// AnthropicProvider calls the Messages API directly over net/http, the
// minimal adapter spec.md §6 calls for in place of a full multi-provider
// SDK, converting the turn workflow's storage.Message history and the
// wire response's content blocks in both directions.
type AnthropicProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// Option configures an AnthropicProvider.
type Option func(*AnthropicProvider)

func WithBaseURL(url string) Option {
	return func(p *AnthropicProvider) { p.baseURL = url }
}

func WithHTTPClient(c *http.Client) Option {
	return func(p *AnthropicProvider) { p.httpClient = c }
}

// NewAnthropicProvider creates a provider authenticated with apiKey.
func NewAnthropicProvider(apiKey string, opts ...Option) *AnthropicProvider {
	p := &AnthropicProvider{
		apiKey:     apiKey,
		baseURL:    defaultAnthropicBaseURL,
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type wireTextBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`

	// tool_use
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Input any    `json:"input,omitempty"`

	// tool_result
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

type wireMessage struct {
	Role    string          `json:"role"`
	Content []wireTextBlock `json:"content"`
}

type wireToolDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

type wireRequest struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	System      string          `json:"system,omitempty"`
	Messages    []wireMessage   `json:"messages"`
	Tools       []wireToolDef   `json:"tools,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
	TopP        *float64        `json:"top_p,omitempty"`
}

type wireUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type wireResponse struct {
	Content    []wireTextBlock `json:"content"`
	StopReason string          `json:"stop_reason"`
	Usage      wireUsage       `json:"usage"`
	Error      *wireError      `json:"error"`
}

type wireError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Generate implements Provider.
func (p *AnthropicProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	wire := buildWireRequest(req)

	body, err := json.Marshal(wire)
	if err != nil {
		return GenerateResult{}, fmt.Errorf("anthropic: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return GenerateResult{}, fmt.Errorf("anthropic: build request: %w", err)
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", defaultAnthropicVersion)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return GenerateResult{}, fmt.Errorf("anthropic: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return GenerateResult{}, fmt.Errorf("anthropic: read response: %w", err)
	}

	var wireResp wireResponse
	if err := json.Unmarshal(respBody, &wireResp); err != nil {
		return GenerateResult{}, fmt.Errorf("anthropic: decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("status %d", resp.StatusCode)
		if wireResp.Error != nil {
			msg = wireResp.Error.Message
		}
		return GenerateResult{}, fmt.Errorf("anthropic: %s", msg)
	}

	return convertResponse(wireResp), nil
}

func buildWireRequest(req GenerateRequest) wireRequest {
	model := req.Model
	if model == "" {
		model = defaultAnthropicModel
	}
	maxTokens := req.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxOutputTokens
	}

	wire := wireRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		System:      req.SystemPrompt,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	}

	for _, msg := range req.History {
		wire.Messages = append(wire.Messages, convertMessage(msg))
	}
	for _, tool := range req.Tools {
		wire.Tools = append(wire.Tools, wireToolDef{
			Name: tool.Name, Description: tool.Description, InputSchema: tool.InputSchema,
		})
	}
	return wire
}

func convertMessage(msg storage.Message) wireMessage {
	role := "user"
	if msg.Role == storage.AssistantRole {
		role = "assistant"
	}

	if len(msg.ContentBlocks) == 0 {
		return wireMessage{Role: role, Content: []wireTextBlock{{Type: "text", Text: msg.Content}}}
	}

	var blocks []wireTextBlock
	for _, b := range msg.ContentBlocks {
		switch b.Type {
		case storage.TextBlockType:
			blocks = append(blocks, wireTextBlock{Type: "text", Text: b.Text})
		case storage.ToolUseBlockType:
			var input any
			if err := json.Unmarshal([]byte(b.InputJSON), &input); err != nil {
				input = b.InputJSON
			}
			blocks = append(blocks, wireTextBlock{Type: "tool_use", ID: b.ToolCallID, Name: b.ToolName, Input: input})
		case storage.ToolResultBlockType:
			blocks = append(blocks, wireTextBlock{Type: "tool_result", ToolUseID: b.ToolCallID, Content: b.OutputJSON, IsError: b.IsError})
		}
	}
	return wireMessage{Role: role, Content: blocks}
}

func convertResponse(resp wireResponse) GenerateResult {
	result := GenerateResult{
		Usage: Usage{InputTokens: resp.Usage.InputTokens, OutputTokens: resp.Usage.OutputTokens},
	}

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			result.Text += block.Text
			result.Parts = append(result.Parts, Part{Type: TextPart, Text: block.Text})
		case "tool_use":
			inputJSON, err := json.Marshal(block.Input)
			if err != nil {
				inputJSON = []byte("{}")
			}
			result.Parts = append(result.Parts, Part{
				Type: ToolCallPart, ToolCallID: block.ID, ToolName: block.Name, InputJSON: string(inputJSON),
			})
		}
	}

	switch resp.StopReason {
	case "end_turn":
		result.FinishReason = "stop"
	case "tool_use":
		result.FinishReason = "tool_calls"
	case "max_tokens":
		result.FinishReason = "length"
	default:
		result.FinishReason = "stop"
	}
	return result
}
