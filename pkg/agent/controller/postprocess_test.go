package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triage-labs/sleuth/pkg/agent"
	"github.com/triage-labs/sleuth/pkg/agent/prompt"
	"github.com/triage-labs/sleuth/pkg/events"
	"github.com/triage-labs/sleuth/pkg/llm"
	"github.com/triage-labs/sleuth/pkg/llm/llmtest"
	"github.com/triage-labs/sleuth/pkg/models"
	"github.com/triage-labs/sleuth/pkg/observability/obstest"
)

func seededLogState(t *testing.T, sink events.Sink) *agent.StateManager {
	t.Helper()
	state := agent.NewStateManager(nil, sink)
	state.AddUpdate(models.LogSearchStep{
		ID:        "ls-1",
		Timestamp: time.Now(),
		Data: []models.LogSearchToolCallWithResult{{
			Input: models.LogSearchInput{
				Query: "service:orders level:error",
				Start: "2026-08-01T00:00:00Z",
				End:   "2026-08-02T00:00:00Z",
				Limit: 100,
			},
			Result: &models.LogSearchResult{Type: models.OutputTypeResult, ToolCallType: models.ToolCallTypeLogSearch},
		}},
	})
	state.SetAnswer("pool exhausted")
	return state
}

func logFactsArgs(facts ...map[string]any) string {
	raw, _ := json.Marshal(map[string]any{"facts": facts})
	return string(raw)
}

func TestLogPostprocessor(t *testing.T) {
	t.Run("facts reference original query and fold keywords", func(t *testing.T) {
		client := llmtest.NewClient(llmtest.Response{
			ToolCalls: []llm.ToolCall{{
				ID: "1", Name: "logFacts",
				Arguments: logFactsArgs(map[string]any{
					"title":             "Pool exhaustion",
					"fact":              "Connection pool ran dry.",
					"queryIndex":        1,
					"start":             "2026-08-01T12:00:00Z",
					"end":               "2026-08-01T13:00:00Z",
					"highlightKeywords": []string{"pool", "exhausted"},
				}),
			}},
		})
		obs := &obstest.Client{}
		state := seededLogState(t, nil)
		p := NewLogPostprocessor(client, "fast", state, prompt.NewBuilder("/repo", ""), obs)

		require.NoError(t, p.Run(context.Background()))

		steps := state.GetSteps(agent.ScopeCurrent)
		step := steps[len(steps)-1].(models.LogPostprocessingStep)
		require.Len(t, step.Data, 1)

		fact := step.Data[0]
		assert.Equal(t, "Pool exhaustion", fact.Title)
		// Narrowed window applied.
		assert.Equal(t, "2026-08-01T12:00:00Z", fact.Query.Start)
		assert.Equal(t, "2026-08-01T13:00:00Z", fact.Query.End)
		// Keywords folded into the stored query string via the adapter.
		assert.Equal(t, "service:orders level:error pool exhausted", fact.Query.Query)
	})

	t.Run("fact count capped", func(t *testing.T) {
		var manyFacts []map[string]any
		for i := 0; i < 12; i++ {
			manyFacts = append(manyFacts, map[string]any{
				"title": fmt.Sprintf("fact %d", i), "fact": "x", "queryIndex": 1,
			})
		}
		client := llmtest.NewClient(llmtest.Response{
			ToolCalls: []llm.ToolCall{{ID: "1", Name: "logFacts", Arguments: logFactsArgs(manyFacts...)}},
		})
		state := seededLogState(t, nil)
		p := NewLogPostprocessor(client, "fast", state, prompt.NewBuilder("/repo", ""), &obstest.Client{})

		require.NoError(t, p.Run(context.Background()))

		steps := state.GetSteps(agent.ScopeCurrent)
		step := steps[len(steps)-1].(models.LogPostprocessingStep)
		assert.Len(t, step.Data, models.MaxFactsPerKind)
	})

	t.Run("multiple tool calls merge facts", func(t *testing.T) {
		client := llmtest.NewClient(llmtest.Response{
			ToolCalls: []llm.ToolCall{
				{ID: "1", Name: "logFacts", Arguments: logFactsArgs(map[string]any{"title": "a", "fact": "x", "queryIndex": 1})},
				{ID: "2", Name: "logFacts", Arguments: logFactsArgs(map[string]any{"title": "b", "fact": "y", "queryIndex": 1})},
			},
		})
		state := seededLogState(t, nil)
		p := NewLogPostprocessor(client, "fast", state, prompt.NewBuilder("/repo", ""), &obstest.Client{})

		require.NoError(t, p.Run(context.Background()))

		steps := state.GetSteps(agent.ScopeCurrent)
		step := steps[len(steps)-1].(models.LogPostprocessingStep)
		require.Len(t, step.Data, 2)
		assert.Equal(t, "a", step.Data[0].Title)
		assert.Equal(t, "b", step.Data[1].Title)
	})

	t.Run("missing tool call is an error", func(t *testing.T) {
		client := llmtest.NewClient(llmtest.Response{TextChunks: []string{"no tool call"}})
		state := seededLogState(t, nil)
		p := NewLogPostprocessor(client, "fast", state, prompt.NewBuilder("/repo", ""), &obstest.Client{})

		err := p.Run(context.Background())
		assert.ErrorIs(t, err, ErrMissingFactsCall)
	})

	t.Run("unknown query index is dropped", func(t *testing.T) {
		client := llmtest.NewClient(llmtest.Response{
			ToolCalls: []llm.ToolCall{{ID: "1", Name: "logFacts",
				Arguments: logFactsArgs(map[string]any{"title": "a", "fact": "x", "queryIndex": 99})}},
		})
		state := seededLogState(t, nil)
		p := NewLogPostprocessor(client, "fast", state, prompt.NewBuilder("/repo", ""), &obstest.Client{})

		require.NoError(t, p.Run(context.Background()))

		steps := state.GetSteps(agent.ScopeCurrent)
		step := steps[len(steps)-1].(models.LogPostprocessingStep)
		assert.Empty(t, step.Data)
	})
}

func TestCodePostprocessor(t *testing.T) {
	codeFactsArgs := func(facts ...models.CodeFact) string {
		raw, _ := json.Marshal(codeFactsPayload{Facts: facts})
		return string(raw)
	}

	t.Run("paths normalized and placeholder pair emitted", func(t *testing.T) {
		var updates []events.CodeFactsUpdate
		sink := func(u events.StreamUpdate) {
			if c, ok := u.(events.CodeFactsUpdate); ok {
				updates = append(updates, c)
			}
		}

		client := llmtest.NewClient(llmtest.Response{
			ToolCalls: []llm.ToolCall{{
				ID: "1", Name: "codeFacts",
				Arguments: codeFactsArgs(models.CodeFact{
					Title:     "Missing retry",
					Fact:      "ChargeCard never retries.",
					Filepath:  "/a/b/src/x.ts",
					StartLine: 10,
					EndLine:   20,
				}),
			}},
		})
		state := agent.NewStateManager(nil, sink)
		state.SetAnswer("no retry logic")
		p := NewCodePostprocessor(client, "fast", state, prompt.NewBuilder("/a/b/", ""), "/a/b/")

		require.NoError(t, p.Run(context.Background()))

		// Initial empty + final populated, same id.
		require.Len(t, updates, 2)
		assert.Equal(t, updates[0].ID, updates[1].ID)
		assert.Empty(t, updates[0].Data)
		require.Len(t, updates[1].Data, 1)
		assert.Equal(t, "src/x.ts", updates[1].Data[0].Filepath)
	})

	t.Run("fact count capped", func(t *testing.T) {
		var facts []models.CodeFact
		for i := 0; i < 10; i++ {
			facts = append(facts, models.CodeFact{Title: fmt.Sprintf("f%d", i), Fact: "x", Filepath: "a.go"})
		}
		client := llmtest.NewClient(llmtest.Response{
			ToolCalls: []llm.ToolCall{{ID: "1", Name: "codeFacts", Arguments: codeFactsArgs(facts...)}},
		})
		state := agent.NewStateManager(nil, nil)
		p := NewCodePostprocessor(client, "fast", state, prompt.NewBuilder("/repo", ""), "/repo")

		require.NoError(t, p.Run(context.Background()))

		steps := state.GetSteps(agent.ScopeCurrent)
		step := steps[len(steps)-1].(models.CodePostprocessingStep)
		assert.Len(t, step.Data, models.MaxFactsPerKind)
	})
}
