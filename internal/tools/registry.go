// Package tools implements the LLM-callable tool registry (spec.md §4.5):
// a closed sum type of Tool variants keyed by name, with governance
// wrapping applied by the caller around every Invoke.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// Tool is one LLM-callable capability. Invoke receives the raw JSON
// arguments the model produced and returns raw JSON the model can read
// back, matching the teacher's extism plugin wire shape (JSON in, JSON
// out) without the WASM boundary.
type Tool interface {
	Name() string
	Invoke(ctx context.Context, args json.RawMessage) (json.RawMessage, error)
}

// AgentScopedTool is an optional Tool extension for built-ins whose effect
// is scoped to the calling agent (e.g. memory recall). Invoker prefers this
// over Invoke when a tool implements it, passing through the agentID it
// already carries rather than threading it through every Tool's args.
type AgentScopedTool interface {
	InvokeForAgent(ctx context.Context, agentID string, args json.RawMessage) (json.RawMessage, error)
}

// NotFound is returned by Registry.Get for an unregistered tool name.
type NotFound struct {
	ToolName string
}

func (e *NotFound) Error() string {
	return fmt.Sprintf("tool not found: %s", e.ToolName)
}

// Registry holds every registered Tool by name.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool, overwriting any prior registration under the same name.
func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, &NotFound{ToolName: name}
	}
	return t, nil
}

// Names returns every registered tool name.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}
