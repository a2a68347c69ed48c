package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dohr-michael/agentrt/internal/storage"
)

// MemoryStore is the memory.store built-in: encodes a fact or episodic note
// into the calling agent's durable memory.
type MemoryStore struct {
	Port storage.MemoryPort
}

func (MemoryStore) Name() string { return "memory.store" }

func (MemoryStore) Invoke(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	return nil, fmt.Errorf("memory.store requires an agent-scoped invocation")
}

type memoryStoreInput struct {
	Content string `json:"content"`
	Tier    string `json:"tier"`
}

type memoryStoreOutput struct {
	MemoryItemID string `json:"memoryItemId"`
}

func (m MemoryStore) InvokeForAgent(ctx context.Context, agentID string, args json.RawMessage) (json.RawMessage, error) {
	var in memoryStoreInput
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("memory.store: parse args: %w", err)
	}
	if in.Content == "" {
		return nil, fmt.Errorf("memory.store: content is required")
	}
	tier := storage.MemoryTier(in.Tier)
	if tier == "" {
		tier = storage.SemanticMemory
	}

	item, err := m.Port.Encode(ctx, storage.MemoryItem{
		MemoryItemID: fmt.Sprintf("mem:%s:%d", agentID, time.Now().UnixNano()),
		AgentID:      agentID,
		Tier:         tier,
		Scope:        storage.ProjectScope,
		Source:       storage.AgentSource,
		Sensitivity:  storage.Internal,
		Content:      in.Content,
	})
	if err != nil {
		return nil, fmt.Errorf("memory.store: %w", err)
	}
	return json.Marshal(memoryStoreOutput{MemoryItemID: item.MemoryItemID})
}

// MemorySearch is the memory.search built-in: a substring lookup over the
// calling agent's stored memory, one page at a time.
type MemorySearch struct {
	Port storage.MemoryPort
}

func (MemorySearch) Name() string { return "memory.search" }

func (MemorySearch) Invoke(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	return nil, fmt.Errorf("memory.search requires an agent-scoped invocation")
}

type memorySearchInput struct {
	Query  string `json:"query"`
	Cursor string `json:"cursor"`
	Limit  int    `json:"limit"`
}

type memorySearchOutput struct {
	Items      []string `json:"items"`
	Cursor     string   `json:"cursor"`
	TotalCount int      `json:"totalCount"`
}

func (m MemorySearch) InvokeForAgent(ctx context.Context, agentID string, args json.RawMessage) (json.RawMessage, error) {
	var in memorySearchInput
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("memory.search: parse args: %w", err)
	}

	result, err := m.Port.Search(ctx, agentID, storage.MemoryQuery{
		Substring: in.Query,
		Sort:      storage.CreatedDesc,
		Limit:     in.Limit,
		Cursor:    in.Cursor,
	})
	if err != nil {
		return nil, fmt.Errorf("memory.search: %w", err)
	}

	out := memorySearchOutput{Cursor: result.Cursor, TotalCount: result.TotalCount}
	for _, item := range result.Items {
		out.Items = append(out.Items, item.Content)
	}
	return json.Marshal(out)
}

// MemoryForget is the memory.forget built-in: bulk-deletes everything the
// calling agent stored before a cutoff, returning how many items were purged.
type MemoryForget struct {
	Port storage.MemoryPort
}

func (MemoryForget) Name() string { return "memory.forget" }

func (MemoryForget) Invoke(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	return nil, fmt.Errorf("memory.forget requires an agent-scoped invocation")
}

type memoryForgetInput struct {
	Before time.Time `json:"before"`
}

type memoryForgetOutput struct {
	DeletedCount int `json:"deletedCount"`
}

func (m MemoryForget) InvokeForAgent(ctx context.Context, agentID string, args json.RawMessage) (json.RawMessage, error) {
	var in memoryForgetInput
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("memory.forget: parse args: %w", err)
	}

	deleted, err := m.Port.Forget(ctx, agentID, in.Before)
	if err != nil {
		return nil, fmt.Errorf("memory.forget: %w", err)
	}
	return json.Marshal(memoryForgetOutput{DeletedCount: deleted})
}
