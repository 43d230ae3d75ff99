package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/triage-labs/sleuth/pkg/agent"
	"github.com/triage-labs/sleuth/pkg/agent/prompt"
	"github.com/triage-labs/sleuth/pkg/llm"
	"github.com/triage-labs/sleuth/pkg/models"
	"github.com/triage-labs/sleuth/pkg/observability"
	"github.com/triage-labs/sleuth/pkg/repo"
)

// ErrMissingFactsCall is returned when a post-processor model response
// contains no fact tool call at all.
var ErrMissingFactsCall = errors.New("post-processor returned no facts tool call")

// logFactDraft is the model-facing shape of one log fact. QueryIndex refers
// to the 1-based position of an executed query in the presented transcript.
type logFactDraft struct {
	Title             string   `json:"title" jsonschema:"description=Short headline for this fact"`
	Fact              string   `json:"fact" jsonschema:"description=What the logs show"`
	QueryIndex        int      `json:"queryIndex" jsonschema:"description=1-based index of the executed query this fact cites"`
	Start             string   `json:"start,omitempty" jsonschema:"description=Narrowed window start (RFC3339), optional"`
	End               string   `json:"end,omitempty" jsonschema:"description=Narrowed window end (RFC3339), optional"`
	HighlightKeywords []string `json:"highlightKeywords,omitempty" jsonschema:"description=Keywords that pinpoint the cited lines"`
}

type logFactsPayload struct {
	Facts []logFactDraft `json:"facts"`
}

type codeFactsPayload struct {
	Facts []models.CodeFact `json:"facts"`
}

var (
	logFactsTool = llm.ToolFor[logFactsPayload](
		"logFacts",
		"Record the citable log facts extracted from the investigation.",
	)
	codeFactsTool = llm.ToolFor[codeFactsPayload](
		"codeFacts",
		"Record the citable code facts extracted from the investigation.",
	)
)

// LogPostprocessor extracts citable log facts from the final transcript in
// a single model call.
type LogPostprocessor struct {
	llm     llm.Client
	model   string
	state   *agent.StateManager
	prompts *prompt.Builder
	obs     observability.Client
}

// NewLogPostprocessor creates the log fact extractor.
func NewLogPostprocessor(client llm.Client, model string, state *agent.StateManager, prompts *prompt.Builder, obs observability.Client) *LogPostprocessor {
	return &LogPostprocessor{llm: client, model: model, state: state, prompts: prompts, obs: obs}
}

// Run extracts at most MaxFactsPerKind log facts and appends one
// LogPostprocessingStep.
func (p *LogPostprocessor) Run(ctx context.Context) error {
	calls := p.state.GetLogSearchToolCallsWithResults(agent.ScopeCurrent)
	messages := p.prompts.LogPostprocessorMessages(p.state.GetAnswer(), calls)

	resp, err := llm.Call(ctx, p.llm, &llm.GenerateInput{
		Model:      p.model,
		Messages:   messages,
		Tools:      []llm.ToolDefinition{logFactsTool},
		ToolChoice: llm.ToolChoice{Mode: llm.ToolChoiceTool, Tool: "logFacts"},
	}, nil)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("log post-processor model call failed: %w", err)
	}

	drafts, err := mergeFactCalls[logFactDraft](resp.ToolCalls, "logFacts")
	if err != nil {
		return err
	}

	facts := make([]models.LogFact, 0, len(drafts))
	for _, d := range drafts {
		if d.QueryIndex < 1 || d.QueryIndex > len(calls) {
			slog.Warn("Log fact cites unknown query index, dropping",
				"query_index", d.QueryIndex, "queries", len(calls))
			continue
		}
		query := calls[d.QueryIndex-1].Input
		if narrowed, ok := narrowWindow(query, d.Start, d.End); ok {
			query = narrowed
		}
		if len(d.HighlightKeywords) > 0 && p.obs != nil {
			query.Query = p.obs.AddKeywordsToQuery(query.Query, d.HighlightKeywords)
		}
		facts = append(facts, models.LogFact{Title: d.Title, Fact: d.Fact, Query: query})
		if len(facts) == models.MaxFactsPerKind {
			break
		}
	}

	p.state.AddUpdate(models.LogPostprocessingStep{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Data:      facts,
	})
	return nil
}

// CodePostprocessor extracts citable code facts from the final transcript
// in a single model call. It emits a placeholder step immediately and the
// populated step under the same id when extraction finishes.
type CodePostprocessor struct {
	llm      llm.Client
	model    string
	state    *agent.StateManager
	prompts  *prompt.Builder
	repoPath string
}

// NewCodePostprocessor creates the code fact extractor.
func NewCodePostprocessor(client llm.Client, model string, state *agent.StateManager, prompts *prompt.Builder, repoPath string) *CodePostprocessor {
	return &CodePostprocessor{llm: client, model: model, state: state, prompts: prompts, repoPath: repoPath}
}

// Run extracts at most MaxFactsPerKind code facts. Two updates reach the
// sink under one id: first with empty data, then populated.
func (p *CodePostprocessor) Run(ctx context.Context) error {
	stepID := uuid.NewString()
	p.state.AddUpdate(models.CodePostprocessingStep{
		ID:        stepID,
		Timestamp: time.Now(),
		Data:      []models.CodeFact{},
	})

	calls := p.state.GetCatToolCallsWithResults(agent.ScopeCurrent)
	messages := p.prompts.CodePostprocessorMessages(p.state.GetAnswer(), calls)

	resp, err := llm.Call(ctx, p.llm, &llm.GenerateInput{
		Model:      p.model,
		Messages:   messages,
		Tools:      []llm.ToolDefinition{codeFactsTool},
		ToolChoice: llm.ToolChoice{Mode: llm.ToolChoiceTool, Tool: "codeFacts"},
	}, nil)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("code post-processor model call failed: %w", err)
	}

	drafts, err := mergeFactCalls[models.CodeFact](resp.ToolCalls, "codeFacts")
	if err != nil {
		return err
	}

	facts := make([]models.CodeFact, 0, len(drafts))
	for _, f := range drafts {
		f.Filepath = repo.NormalizeFilePath(f.Filepath, p.repoPath)
		facts = append(facts, f)
		if len(facts) == models.MaxFactsPerKind {
			break
		}
	}

	p.state.AddUpdate(models.CodePostprocessingStep{
		ID:        stepID,
		Timestamp: time.Now(),
		Data:      facts,
	})
	return nil
}

// mergeFactCalls decodes every fact tool call and concatenates their facts.
// A single call is the protocol; multiple calls are tolerated with a
// warning. Zero calls is an error.
func mergeFactCalls[T any](calls []llm.ToolCall, toolName string) ([]T, error) {
	if len(calls) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingFactsCall, toolName)
	}
	if len(calls) > 1 {
		slog.Warn("Post-processor returned multiple tool calls, merging facts",
			"tool", toolName, "calls", len(calls))
	}

	var merged []T
	decoded := 0
	for _, tc := range calls {
		if tc.Name != toolName {
			slog.Warn("Post-processor returned unexpected tool, skipping",
				"expected", toolName, "got", tc.Name)
			continue
		}
		var payload struct {
			Facts []T `json:"facts"`
		}
		if err := json.Unmarshal([]byte(tc.Arguments), &payload); err != nil {
			return nil, fmt.Errorf("decode %s arguments: %w", toolName, err)
		}
		decoded++
		merged = append(merged, payload.Facts...)
	}
	if decoded == 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingFactsCall, toolName)
	}
	return merged, nil
}

// narrowWindow applies a model-proposed narrowed time range to a query spec
// when both bounds parse and are ordered.
func narrowWindow(query models.LogSearchInput, start, end string) (models.LogSearchInput, bool) {
	if start == "" || end == "" {
		return query, false
	}
	s, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return query, false
	}
	e, err := time.Parse(time.RFC3339, end)
	if err != nil || !e.After(s) {
		return query, false
	}
	query.Start = start
	query.End = end
	return query, true
}
