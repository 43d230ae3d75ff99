package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triage-labs/sleuth/pkg/events"
	"github.com/triage-labs/sleuth/pkg/llm"
	"github.com/triage-labs/sleuth/pkg/models"
)

type recordingSink struct {
	updates []events.StreamUpdate
}

func (r *recordingSink) sink(u events.StreamUpdate) {
	r.updates = append(r.updates, u)
}

func TestStateManagerScopes(t *testing.T) {
	prevStep := models.ReasoningStep{ID: "prev-1", Timestamp: time.Now(), Data: "earlier analysis"}
	history := []models.ChatMessage{
		models.UserMessage{Content: "first question"},
		models.AssistantMessage{Steps: []models.Step{prevStep}, Response: "earlier answer"},
	}

	m := NewStateManager(history, nil)
	m.AddUpdate(models.ReasoningStep{ID: "cur-1", Timestamp: time.Now(), Data: "new analysis"})

	prev := m.GetSteps(ScopePrevious)
	cur := m.GetSteps(ScopeCurrent)
	both := m.GetSteps(ScopeBoth)

	require.Len(t, prev, 1)
	require.Len(t, cur, 1)
	require.Len(t, both, 2)

	// BOTH is PREVIOUS ++ CURRENT, and the two are disjoint.
	assert.Equal(t, prev[0].StepID(), both[0].StepID())
	assert.Equal(t, cur[0].StepID(), both[1].StepID())
	assert.NotEqual(t, prev[0].StepID(), cur[0].StepID())
}

func TestStateManagerStreaming(t *testing.T) {
	rec := &recordingSink{}
	m := NewStateManager(nil, rec.sink)

	m.AddStreamingUpdate(events.StreamKindReasoning, "step-1", "The ")
	m.AddStreamingUpdate(events.StreamKindReasoning, "step-1", "pool ")
	m.AddStreamingUpdate(events.StreamKindReasoning, "step-1", "died.")
	m.AddUpdate(models.ReasoningStep{ID: "step-1", Timestamp: time.Now(), Data: "The pool died."})

	// Chunks arrive in call order; the reasoning step itself is NOT re-emitted.
	require.Len(t, rec.updates, 3)
	var text string
	for _, u := range rec.updates {
		chunk, ok := u.(events.ChunkUpdate)
		require.True(t, ok)
		assert.Equal(t, "step-1", chunk.ID)
		assert.Equal(t, events.UpdateTypeReasoningChunk, chunk.Type)
		text += chunk.Chunk
	}
	assert.Equal(t, "The pool died.", text)

	// Stored regardless.
	require.Len(t, m.GetSteps(ScopeCurrent), 1)
}

func TestStateManagerToolStepPromotion(t *testing.T) {
	rec := &recordingSink{}
	m := NewStateManager(nil, rec.sink)

	call := models.LogSearchToolCallWithResult{
		Timestamp: time.Now(),
		Input:     models.LogSearchInput{Query: "level:error"},
		Result:    &models.LogSearchResult{Type: models.OutputTypeResult, ToolCallType: models.ToolCallTypeLogSearch},
	}
	m.AddUpdate(models.LogSearchStep{
		ID:        "ls-1",
		Timestamp: time.Now(),
		Reasoning: "looking for errors",
		Data:      []models.LogSearchToolCallWithResult{call},
	})

	require.Len(t, rec.updates, 1)
	update, ok := rec.updates[0].(events.LogSearchToolsUpdate)
	require.True(t, ok)
	assert.Equal(t, "ls-1", update.ID)
	assert.Equal(t, events.UpdateTypeLogSearchTools, update.Type)
	require.Len(t, update.ToolCalls, 1)
	assert.Equal(t, "level:error", update.ToolCalls[0].Input.Query)
}

func TestStateManagerChunkThenFinalOrdering(t *testing.T) {
	rec := &recordingSink{}
	m := NewStateManager(nil, rec.sink)

	m.AddStreamingUpdate(events.StreamKindLogSearch, "ls-1", "querying...")
	m.AddUpdate(models.LogSearchStep{ID: "ls-1", Timestamp: time.Now()})

	require.Len(t, rec.updates, 2)
	_, isChunk := rec.updates[0].(events.ChunkUpdate)
	_, isFinal := rec.updates[1].(events.LogSearchToolsUpdate)
	assert.True(t, isChunk)
	assert.True(t, isFinal)
	assert.Equal(t, rec.updates[0].UpdateID(), rec.updates[1].UpdateID())
}

func TestStateManagerProjections(t *testing.T) {
	m := NewStateManager(nil, nil)
	m.AddUpdate(models.CodeSearchStep{
		ID:        "cs-1",
		Timestamp: time.Now(),
		Data: []models.CodeToolCallItem{
			models.CatToolCallWithResult{
				Input:  models.CatRequest{Path: "/repo/a.go"},
				Result: &models.CatResult{Type: models.OutputTypeResult, ToolCallType: models.ToolCallTypeCat, Content: "package a"},
			},
			models.GrepToolCallWithResult{
				Input: models.GrepRequest{Pattern: "foo"},
				Error: models.NewToolCallError(models.ToolCallTypeGrep, "boom"),
			},
		},
	})
	m.AddUpdate(models.LogSearchStep{
		ID:        "ls-1",
		Timestamp: time.Now(),
		Data: []models.LogSearchToolCallWithResult{{
			Input:  models.LogSearchInput{Query: "q"},
			Result: &models.LogSearchResult{Type: models.OutputTypeResult, ToolCallType: models.ToolCallTypeLogSearch},
		}},
	})

	cats := m.GetCatToolCallsWithResults(ScopeCurrent)
	greps := m.GetGrepToolCallsWithResults(ScopeCurrent)
	logs := m.GetLogSearchToolCallsWithResults(ScopeCurrent)

	require.Len(t, cats, 1)
	require.Len(t, greps, 1)
	require.Len(t, logs, 1)
	assert.Equal(t, "/repo/a.go", cats[0].Input.Path)
	assert.True(t, greps[0].IsError())
}

func TestGetReasonerMessages(t *testing.T) {
	history := []models.ChatMessage{
		models.UserMessage{Content: "orders are failing"},
		models.AssistantMessage{Response: "cache miss storm"},
	}
	m := NewStateManager(history, nil)
	m.AddUpdate(models.LogSearchStep{
		ID:        "ls-1",
		Timestamp: time.Now(),
		Data: []models.LogSearchToolCallWithResult{{
			Input:  models.LogSearchInput{Query: "service:orders"},
			Result: &models.LogSearchResult{Type: models.OutputTypeResult, ToolCallType: models.ToolCallTypeLogSearch},
		}},
	})
	m.AddUpdate(models.CodeSearchStep{
		ID:        "cs-1",
		Timestamp: time.Now(),
		Data: []models.CodeToolCallItem{
			models.CatToolCallWithResult{
				Input:  models.CatRequest{Path: "/repo/orders.go"},
				Result: &models.CatResult{Type: models.OutputTypeResult, ToolCallType: models.ToolCallTypeCat, Content: "package orders"},
			},
		},
	})

	msgs := m.GetReasonerMessages("system prompt here")

	require.Len(t, msgs, 4)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.Equal(t, "system prompt here", msgs[0].Content)
	assert.Equal(t, llm.RoleUser, msgs[1].Role)
	assert.Equal(t, llm.RoleAssistant, msgs[2].Role)

	// The current-turn context message carries both tagged blocks.
	current := msgs[3]
	assert.Equal(t, llm.RoleAssistant, current.Role)
	assert.Contains(t, current.Content, "<log_search_results>")
	assert.Contains(t, current.Content, "service:orders")
	assert.Contains(t, current.Content, "<source_code>")
	assert.Contains(t, current.Content, "/repo/orders.go")
}

func TestHistoryMessagesRoundTrip(t *testing.T) {
	// An assistant turn serialized into model messages carries the same
	// content blocks the typed turn renders.
	turn := models.AssistantMessage{
		Steps: []models.Step{
			models.ReasoningStep{ID: "r1", Timestamp: time.Now(), Data: "checked the pool"},
		},
		Response: "Pool exhausted on orders.",
	}
	m := NewStateManager([]models.ChatMessage{turn}, nil)

	msgs := m.HistoryMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, turn.RenderedContent(), msgs[0].Content)
}

func TestAnswerSlot(t *testing.T) {
	m := NewStateManager(nil, nil)
	assert.Equal(t, "", m.GetAnswer())
	m.SetAnswer("DB connection pool exhausted on orders")
	assert.Equal(t, "DB connection pool exhausted on orders", m.GetAnswer())
}

func TestStepsAreAppendOnlyCopies(t *testing.T) {
	m := NewStateManager(nil, nil)
	m.AddUpdate(models.ReasoningStep{ID: "a", Timestamp: time.Now()})

	got := m.GetSteps(ScopeCurrent)
	got[0] = models.ReasoningStep{ID: "mutated", Timestamp: time.Now()}

	assert.Equal(t, "a", m.GetSteps(ScopeCurrent)[0].StepID())
}
