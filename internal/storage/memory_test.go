package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_UpsertsAndRefreshesUpdatedAt(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	agentID := NewAgentID()

	item, err := db.Encode(ctx, MemoryItem{
		MemoryItemID: "mem:1",
		AgentID:      agentID,
		Tier:         SemanticMemory,
		Scope:        ProjectScope,
		Source:       AgentSource,
		Content:      "likes tea",
	})
	require.NoError(t, err)
	firstUpdate := item.UpdatedAt

	updated, err := db.Encode(ctx, MemoryItem{
		MemoryItemID: "mem:1",
		AgentID:      agentID,
		Tier:         SemanticMemory,
		Scope:        ProjectScope,
		Source:       AgentSource,
		Content:      "likes green tea",
	})
	require.NoError(t, err)
	assert.Equal(t, "likes green tea", updated.Content)
	assert.True(t, !updated.UpdatedAt.Before(firstUpdate))

	result, err := db.Search(ctx, agentID, MemoryQuery{Substring: "tea"})
	require.NoError(t, err)
	require.Len(t, result.Items, 1, "the conflicting insert must update in place, not duplicate")
	assert.Equal(t, "likes green tea", result.Items[0].Content)
}

func TestSearch_MatchesSubstringCaseInsensitively(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	agentID := NewAgentID()

	seed(t, db, agentID, "mem:1", "Prefers Go over Python")
	seed(t, db, agentID, "mem:2", "likes hiking")
	seed(t, db, agentID, "mem:3", "dislikes golang tabs vs spaces debates")

	result, err := db.Search(ctx, agentID, MemoryQuery{Substring: "GO"})
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalCount)
	assert.Len(t, result.Items, 2)
}

func TestSearch_IsScopedPerAgent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	agentA, agentB := NewAgentID(), NewAgentID()

	seed(t, db, agentA, "mem:a", "shared keyword apple")
	seed(t, db, agentB, "mem:b", "shared keyword apple")

	result, err := db.Search(ctx, agentA, MemoryQuery{Substring: "apple"})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, agentA, result.Items[0].AgentID)
}

func TestSearch_PaginatesWithStableCursor(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	agentID := NewAgentID()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		_, err := db.Encode(ctx, MemoryItem{
			MemoryItemID: idFor(i),
			AgentID:      agentID,
			Tier:         SemanticMemory,
			Scope:        ProjectScope,
			Source:       AgentSource,
			Content:      "note apple",
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	page1, err := db.Search(ctx, agentID, MemoryQuery{Substring: "apple", Sort: CreatedAsc, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page1.Items, 2)
	require.NotEmpty(t, page1.Cursor)
	assert.Equal(t, 5, page1.TotalCount)

	page2, err := db.Search(ctx, agentID, MemoryQuery{Substring: "apple", Sort: CreatedAsc, Limit: 2, Cursor: page1.Cursor})
	require.NoError(t, err)
	require.Len(t, page2.Items, 2)

	assert.NotEqual(t, page1.Items[0].MemoryItemID, page2.Items[0].MemoryItemID)
	assert.NotEqual(t, page1.Items[1].MemoryItemID, page2.Items[0].MemoryItemID)
}

func TestForget_DeletesOnlyRowsBeforeCutoffForThatAgent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	agentA, agentB := NewAgentID(), NewAgentID()

	cutoff := time.Now().UTC()
	old := cutoff.Add(-time.Hour)
	recent := cutoff.Add(time.Hour)

	mustEncodeAt(t, db, agentA, "mem:old-a", "old note", old)
	mustEncodeAt(t, db, agentA, "mem:recent-a", "recent note", recent)
	mustEncodeAt(t, db, agentB, "mem:old-b", "old note other agent", old)

	deleted, err := db.Forget(ctx, agentA, cutoff)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	remainingA, err := db.Search(ctx, agentA, MemoryQuery{Substring: "note"})
	require.NoError(t, err)
	require.Len(t, remainingA.Items, 1)
	assert.Equal(t, "recent note", remainingA.Items[0].Content)

	remainingB, err := db.Search(ctx, agentB, MemoryQuery{Substring: "note"})
	require.NoError(t, err)
	assert.Len(t, remainingB.Items, 1, "forget must not touch another agent's memory")
}

func TestForget_RejectsZeroCutoff(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	agentID := NewAgentID()

	_, err := db.Forget(ctx, agentID, time.Time{})
	require.Error(t, err)
}

func seed(t *testing.T, db *DB, agentID, id, content string) {
	t.Helper()
	_, err := db.Encode(context.Background(), MemoryItem{
		MemoryItemID: id,
		AgentID:      agentID,
		Tier:         SemanticMemory,
		Scope:        ProjectScope,
		Source:       AgentSource,
		Content:      content,
	})
	require.NoError(t, err)
}

func mustEncodeAt(t *testing.T, db *DB, agentID, id, content string, createdAt time.Time) {
	t.Helper()
	_, err := db.Encode(context.Background(), MemoryItem{
		MemoryItemID: id,
		AgentID:      agentID,
		Tier:         SemanticMemory,
		Scope:        ProjectScope,
		Source:       AgentSource,
		Content:      content,
		CreatedAt:    createdAt,
	})
	require.NoError(t, err)
}

func idFor(i int) string {
	return "mem:seq:" + string(rune('a'+i))
}
