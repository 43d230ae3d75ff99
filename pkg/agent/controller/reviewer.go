package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/triage-labs/sleuth/pkg/agent"
	"github.com/triage-labs/sleuth/pkg/agent/prompt"
	"github.com/triage-labs/sleuth/pkg/llm"
	"github.com/triage-labs/sleuth/pkg/models"
)

// ErrReviewProtocol is returned when the forced reviewDecision tool call is
// missing or duplicated. Fatal to the phase.
var ErrReviewProtocol = errors.New("reviewer protocol violation")

// ReviewDecision is the forced tool payload the reviewer must emit.
type ReviewDecision struct {
	Accepted  bool   `json:"accepted" jsonschema:"description=Whether the analysis is acceptable as-is"`
	Reasoning string `json:"reasoning" jsonschema:"description=Justification for the verdict"`
}

// Reviewer judges a candidate answer in a single shot. The model may stream
// free-form commentary, but the verdict comes only from the single forced
// reviewDecision tool call.
type Reviewer struct {
	llm     llm.Client
	model   string
	state   *agent.StateManager
	prompts *prompt.Builder
}

// NewReviewer creates a reviewer node.
func NewReviewer(client llm.Client, model string, state *agent.StateManager, prompts *prompt.Builder) *Reviewer {
	return &Reviewer{llm: client, model: model, state: state, prompts: prompts}
}

var reviewDecisionTool = llm.ToolFor[ReviewDecision](
	"reviewDecision",
	"Record the final verdict on the proposed analysis.",
)

// Run reviews candidateAnswer and appends a ReviewStep. Returns the decision.
func (r *Reviewer) Run(ctx context.Context, userQuery, candidateAnswer string) (*ReviewDecision, error) {
	gathered := models.RenderGatheredContext(r.state.GetSteps(agent.ScopeCurrent))
	messages := r.prompts.ReviewerMessages(userQuery, candidateAnswer, gathered)

	resp, err := llm.Call(ctx, r.llm, &llm.GenerateInput{
		Model:      r.model,
		Messages:   messages,
		Tools:      []llm.ToolDefinition{reviewDecisionTool},
		ToolChoice: llm.ToolChoice{Mode: llm.ToolChoiceTool, Tool: "reviewDecision"},
	}, nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("reviewer model call failed: %w", err)
	}

	if len(resp.ToolCalls) != 1 {
		return nil, fmt.Errorf("%w: expected exactly one reviewDecision call, got %d",
			ErrReviewProtocol, len(resp.ToolCalls))
	}
	tc := resp.ToolCalls[0]
	if tc.Name != "reviewDecision" {
		return nil, fmt.Errorf("%w: got tool %s", ErrReviewProtocol, tc.Name)
	}

	var decision ReviewDecision
	if err := json.Unmarshal([]byte(tc.Arguments), &decision); err != nil {
		return nil, fmt.Errorf("decode reviewDecision arguments: %w", err)
	}

	r.state.AddUpdate(models.ReviewStep{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Content:   decision.Reasoning,
		Accepted:  decision.Accepted,
	})
	return &decision, nil
}
