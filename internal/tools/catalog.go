package tools

import "github.com/dohr-michael/agentrt/internal/llm"

// Catalog is a workflow.ToolCatalog backed by a fixed set of tool specs,
// one per name registered in a Registry. Built-in tools don't carry their
// JSON schema on the Tool interface itself, so the catalog is handed the
// specs directly at construction rather than deriving them from the
// registry.
type Catalog struct {
	specs []llm.ToolSpec
}

// NewCatalog returns a Catalog advertising the given specs.
func NewCatalog(specs ...llm.ToolSpec) *Catalog {
	return &Catalog{specs: specs}
}

// ToolSpecs implements workflow.ToolCatalog.
func (c *Catalog) ToolSpecs() []llm.ToolSpec {
	return c.specs
}

// BuiltinToolSpecs returns the llm.ToolSpec descriptions for the built-in
// tools (internal/tools/builtin), matching the Invoke/InvokeForAgent
// signatures of Now, Echo, Calculate, and the memory.* tools.
func BuiltinToolSpecs() []llm.ToolSpec {
	return []llm.ToolSpec{
		{
			Name:        "time.now",
			Description: "Returns the current UTC time in RFC3339 format.",
			InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
		},
		{
			Name:        "echo.text",
			Description: "Echoes the given text back verbatim.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"text": map[string]any{"type": "string"}},
				"required":   []string{"text"},
			},
		},
		{
			Name:        "math.calculate",
			Description: "Evaluates a basic arithmetic expression using +, -, *, /, and parentheses.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"expression": map[string]any{"type": "string"}},
				"required":   []string{"expression"},
			},
		},
		{
			Name:        "memory.store",
			Description: "Stores a fact or episodic note in the agent's durable memory.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"content": map[string]any{"type": "string"},
					"tier":    map[string]any{"type": "string", "enum": []string{"SemanticMemory", "EpisodicMemory"}},
				},
				"required": []string{"content"},
			},
		},
		{
			Name:        "memory.search",
			Description: "Searches the agent's stored memory for a substring match, newest first.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query":  map[string]any{"type": "string"},
					"cursor": map[string]any{"type": "string"},
					"limit":  map[string]any{"type": "integer"},
				},
				"required": []string{"query"},
			},
		},
		{
			Name:        "memory.forget",
			Description: "Deletes every memory item the agent stored before a given timestamp, returning how many were removed.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"before": map[string]any{"type": "string", "format": "date-time"},
				},
				"required": []string{"before"},
			},
		},
	}
}
