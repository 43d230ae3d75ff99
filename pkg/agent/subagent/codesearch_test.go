package subagent

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triage-labs/sleuth/pkg/agent"
	"github.com/triage-labs/sleuth/pkg/agent/prompt"
	"github.com/triage-labs/sleuth/pkg/llm"
	"github.com/triage-labs/sleuth/pkg/llm/llmtest"
	"github.com/triage-labs/sleuth/pkg/models"
	"github.com/triage-labs/sleuth/pkg/repo"
)

func newCodeDeps(t *testing.T, client llm.Client) (Deps, string, *agent.StateManager) {
	t.Helper()
	dir := t.TempDir()
	state := agent.NewStateManager(nil, nil)
	deps := Deps{
		LLM:       client,
		Model:     "fast-model",
		State:     state,
		Executor:  agent.NewToolExecutor(repo.NewTools(dir), nil),
		Prompts:   prompt.NewBuilder(dir, ""),
		UserQuery: "payments are failing",
	}
	return deps, dir, state
}

func TestCodeSearchImmediateCompletion(t *testing.T) {
	client := llmtest.NewClient(llmtest.Response{TextChunks: []string{"nothing to read"}})
	deps, dir, state := newCodeDeps(t, client)

	outcome, err := NewCodeSearchAgent(deps, dir, 0).Invoke(context.Background(), Request{Request: "look at payments"})
	require.NoError(t, err)
	assert.True(t, outcome.TaskComplete)
	assert.Empty(t, state.GetSteps(agent.ScopeCurrent))
}

func TestCodeSearchMultipleCallsPerIteration(t *testing.T) {
	client := llmtest.NewClient(
		llmtest.Response{
			TextChunks: []string{"reading both files"},
			ToolCalls: []llm.ToolCall{
				{ID: "1", Name: "catRequest", Arguments: `{"path":"pay.go"}`},
				{ID: "2", Name: "grepRequest", Arguments: `{"pattern":"ChargeCard","flags":"n"}`},
			},
		},
		llmtest.Response{TextChunks: []string{"done"}},
	)
	deps, dir, state := newCodeDeps(t, client)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pay.go"), []byte("package pay\n"), 0o644))

	outcome, err := NewCodeSearchAgent(deps, dir, 0).Invoke(context.Background(), Request{Request: "look at payments"})
	require.NoError(t, err)
	assert.True(t, outcome.TaskComplete)

	steps := state.GetSteps(agent.ScopeCurrent)
	require.Len(t, steps, 1)
	step := steps[0].(models.CodeSearchStep)
	require.Len(t, step.Data, 2)

	// Order is preserved: cat first, grep second.
	cat, ok := step.Data[0].(models.CatToolCallWithResult)
	require.True(t, ok)
	assert.False(t, cat.IsError())
	// Relative path was re-anchored to the repository root.
	assert.Equal(t, filepath.Join(dir, "pay.go"), cat.Input.Path)

	_, ok = step.Data[1].(models.GrepToolCallWithResult)
	require.True(t, ok)
}

func TestCodeSearchToolErrorTolerated(t *testing.T) {
	// Grep failure (bad flags) is tagged; the loop terminates normally and
	// no error reaches the caller.
	client := llmtest.NewClient(
		llmtest.Response{ToolCalls: []llm.ToolCall{
			{ID: "1", Name: "grepRequest", Arguments: `{"pattern":"x","flags":"--bad"}`},
		}},
		llmtest.Response{TextChunks: []string{"done"}},
	)
	deps, dir, state := newCodeDeps(t, client)

	outcome, err := NewCodeSearchAgent(deps, dir, 0).Invoke(context.Background(), Request{Request: "x"})
	require.NoError(t, err)
	assert.True(t, outcome.TaskComplete)

	step := state.GetSteps(agent.ScopeCurrent)[0].(models.CodeSearchStep)
	require.Len(t, step.Data, 1)
	assert.True(t, step.Data[0].CodeToolCallIsError())
}

func TestCodeSearchProviderErrorEndsLoop(t *testing.T) {
	// Provider failure ends the loop with no fallback actions.
	client := llmtest.NewClient(llmtest.Response{Err: "model overloaded"})
	deps, dir, state := newCodeDeps(t, client)

	outcome, err := NewCodeSearchAgent(deps, dir, 0).Invoke(context.Background(), Request{Request: "x"})
	require.NoError(t, err)
	assert.False(t, outcome.TaskComplete)
	assert.Empty(t, state.GetSteps(agent.ScopeCurrent))
}

func TestCodeSearchUnknownToolFatal(t *testing.T) {
	client := llmtest.NewClient(llmtest.Response{
		ToolCalls: []llm.ToolCall{{ID: "1", Name: "rmRequest", Arguments: "{}"}},
	})
	deps, dir, _ := newCodeDeps(t, client)

	_, err := NewCodeSearchAgent(deps, dir, 0).Invoke(context.Background(), Request{Request: "x"})
	assert.ErrorIs(t, err, ErrUnexpectedToolCall)
}

func TestCodeSearchIterationCap(t *testing.T) {
	client := llmtest.NewClient(llmtest.Response{
		ToolCalls: []llm.ToolCall{{ID: "1", Name: "grepRequest", Arguments: `{"pattern":"x"}`}},
	}).RepeatLast()
	deps, dir, state := newCodeDeps(t, client)

	outcome, err := NewCodeSearchAgent(deps, dir, 2).Invoke(context.Background(), Request{Request: "x"})
	require.NoError(t, err)
	assert.False(t, outcome.TaskComplete)
	assert.Equal(t, 2, outcome.Iterations)
	assert.Len(t, state.GetSteps(agent.ScopeCurrent), 2)
}
