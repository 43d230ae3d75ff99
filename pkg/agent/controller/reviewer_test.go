package controller

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triage-labs/sleuth/pkg/agent"
	"github.com/triage-labs/sleuth/pkg/agent/prompt"
	"github.com/triage-labs/sleuth/pkg/llm"
	"github.com/triage-labs/sleuth/pkg/llm/llmtest"
	"github.com/triage-labs/sleuth/pkg/models"
)

func newReviewer(client llm.Client) (*Reviewer, *agent.StateManager) {
	state := agent.NewStateManager(nil, nil)
	return NewReviewer(client, "reasoning-model", state, prompt.NewBuilder("/repo", "")), state
}

func TestReviewerAccepts(t *testing.T) {
	client := llmtest.NewClient(llmtest.Response{
		TextChunks: []string{"the analysis looks right"},
		ToolCalls: []llm.ToolCall{
			{ID: "1", Name: "reviewDecision", Arguments: `{"accepted":true,"reasoning":"complete"}`},
		},
	})
	r, state := newReviewer(client)

	decision, err := r.Run(context.Background(), "why is checkout down", "pool exhausted")
	require.NoError(t, err)
	assert.True(t, decision.Accepted)
	assert.Equal(t, "complete", decision.Reasoning)

	steps := state.GetSteps(agent.ScopeCurrent)
	require.Len(t, steps, 1)
	step := steps[0].(models.ReviewStep)
	assert.True(t, step.Accepted)
	// The step content is the tool call's reasoning, not the streamed text.
	assert.Equal(t, "complete", step.Content)
}

func TestReviewerForcesToolChoice(t *testing.T) {
	client := llmtest.NewClient(llmtest.Response{
		ToolCalls: []llm.ToolCall{
			{ID: "1", Name: "reviewDecision", Arguments: `{"accepted":false,"reasoning":"no log evidence"}`},
		},
	})
	r, _ := newReviewer(client)

	_, err := r.Run(context.Background(), "q", "a")
	require.NoError(t, err)

	calls := client.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, llm.ToolChoiceTool, calls[0].ToolChoice.Mode)
	assert.Equal(t, "reviewDecision", calls[0].ToolChoice.Tool)
}

func TestReviewerProtocolViolations(t *testing.T) {
	t.Run("missing forced call fails the step", func(t *testing.T) {
		client := llmtest.NewClient(llmtest.Response{TextChunks: []string{"just text"}})
		r, _ := newReviewer(client)
		_, err := r.Run(context.Background(), "q", "a")
		assert.ErrorIs(t, err, ErrReviewProtocol)
	})

	t.Run("duplicated forced call fails the step", func(t *testing.T) {
		client := llmtest.NewClient(llmtest.Response{
			ToolCalls: []llm.ToolCall{
				{ID: "1", Name: "reviewDecision", Arguments: `{"accepted":true,"reasoning":"a"}`},
				{ID: "2", Name: "reviewDecision", Arguments: `{"accepted":false,"reasoning":"b"}`},
			},
		})
		r, _ := newReviewer(client)
		_, err := r.Run(context.Background(), "q", "a")
		assert.ErrorIs(t, err, ErrReviewProtocol)
	})
}
