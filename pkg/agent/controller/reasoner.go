// Package controller implements the pipeline's model-facing nodes: the
// reasoner, the reviewer, and the two fact post-processors.
package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/triage-labs/sleuth/pkg/agent"
	"github.com/triage-labs/sleuth/pkg/agent/prompt"
	"github.com/triage-labs/sleuth/pkg/agent/subagent"
	"github.com/triage-labs/sleuth/pkg/events"
	"github.com/triage-labs/sleuth/pkg/llm"
	"github.com/triage-labs/sleuth/pkg/models"
)

// OutcomeKind discriminates what a reasoner pass produced.
type OutcomeKind string

const (
	// OutcomeReasoning means no tool calls were emitted; Content is the
	// candidate root-cause answer.
	OutcomeReasoning OutcomeKind = "reasoning"
	// OutcomeSubAgentCalls means the reasoner delegated to sub-agents.
	OutcomeSubAgentCalls OutcomeKind = "subAgentCalls"
)

// SubAgentCallType identifies which sub-agent a delegation targets.
type SubAgentCallType string

const (
	SubAgentCallLog  SubAgentCallType = "logRequest"
	SubAgentCallCode SubAgentCallType = "codeRequest"
)

// SubAgentCall is one delegation emitted by the reasoner.
type SubAgentCall struct {
	Type    SubAgentCallType
	Request subagent.Request
}

// ReasonerOutcome is the result of one reasoner pass.
type ReasonerOutcome struct {
	Kind    OutcomeKind
	Content string         // candidate answer when Kind == OutcomeReasoning
	Calls   []SubAgentCall // delegations when Kind == OutcomeSubAgentCalls
}

// Reasoner streams root-cause reasoning from the reasoning model. Each pass
// either answers or delegates; the pipeline owns the outer loop.
type Reasoner struct {
	llm     llm.Client
	model   string
	state   *agent.StateManager
	prompts *prompt.Builder
}

// NewReasoner creates a reasoner node.
func NewReasoner(client llm.Client, model string, state *agent.StateManager, prompts *prompt.Builder) *Reasoner {
	return &Reasoner{llm: client, model: model, state: state, prompts: prompts}
}

var (
	logRequestTool = llm.ToolFor[subagent.Request](
		"logRequest",
		"Delegate a log-search task to the log specialist.",
	)
	codeRequestTool = llm.ToolFor[subagent.Request](
		"codeRequest",
		"Delegate a code-search task to the code specialist.",
	)
)

// Run executes one reasoner pass. Streamed text is forwarded as reasoning
// chunks under a fresh step id and stored as a ReasoningStep. Provider
// failures are fatal to the run.
func (r *Reasoner) Run(ctx context.Context, extraMessages []llm.Message) (*ReasonerOutcome, error) {
	messages := r.state.GetReasonerMessages(r.prompts.ReasonerSystem())
	messages = append(messages, extraMessages...)

	stepID := uuid.NewString()
	resp, err := llm.Call(ctx, r.llm, &llm.GenerateInput{
		Model:      r.model,
		Messages:   messages,
		Tools:      []llm.ToolDefinition{logRequestTool, codeRequestTool},
		ToolChoice: llm.ToolChoice{Mode: llm.ToolChoiceAuto},
	}, func(chunkType llm.ChunkType, delta string) {
		if chunkType == llm.ChunkTypeText {
			r.state.AddStreamingUpdate(events.StreamKindReasoning, stepID, delta)
		}
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("reasoner model call failed: %w", err)
	}

	r.state.AddUpdate(models.ReasoningStep{
		ID:        stepID,
		Timestamp: time.Now(),
		Data:      resp.Text,
	})

	if len(resp.ToolCalls) == 0 {
		return &ReasonerOutcome{
			Kind:    OutcomeReasoning,
			Content: llm.StripReasoning(resp.Text),
		}, nil
	}

	calls := make([]SubAgentCall, 0, len(resp.ToolCalls))
	for _, tc := range resp.ToolCalls {
		var req subagent.Request
		if err := json.Unmarshal([]byte(tc.Arguments), &req); err != nil {
			return nil, fmt.Errorf("decode %s arguments: %w", tc.Name, err)
		}
		switch tc.Name {
		case string(SubAgentCallLog):
			calls = append(calls, SubAgentCall{Type: SubAgentCallLog, Request: req})
		case string(SubAgentCallCode):
			calls = append(calls, SubAgentCall{Type: SubAgentCallCode, Request: req})
		default:
			return nil, fmt.Errorf("%w: reasoner emitted %s", subagent.ErrUnexpectedToolCall, tc.Name)
		}
	}
	return &ReasonerOutcome{Kind: OutcomeSubAgentCalls, Calls: calls}, nil
}
