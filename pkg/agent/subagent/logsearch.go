package subagent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/triage-labs/sleuth/pkg/agent"
	"github.com/triage-labs/sleuth/pkg/agent/prompt"
	"github.com/triage-labs/sleuth/pkg/events"
	"github.com/triage-labs/sleuth/pkg/llm"
	"github.com/triage-labs/sleuth/pkg/models"
)

// fallbackWindow is the lookback of the conservative query issued when the
// provider fails mid-loop.
const fallbackWindow = 24 * time.Hour

// LogSearchAgent runs the bounded log-search loop. One LogSearchStep is
// appended per iteration; the model issues exactly one logSearchInput tool
// call per turn.
type LogSearchAgent struct {
	deps     Deps
	maxIters int
}

// NewLogSearchAgent creates a log-search sub-agent. maxIters <= 0 selects
// DefaultMaxIters.
func NewLogSearchAgent(deps Deps, maxIters int) *LogSearchAgent {
	if maxIters <= 0 {
		maxIters = DefaultMaxIters
	}
	return &LogSearchAgent{deps: deps, maxIters: maxIters}
}

var logSearchTool = llm.ToolFor[models.LogSearchInput](
	"logSearchInput",
	"Run one query against the log backend. Issue exactly one call per turn.",
)

// Invoke satisfies req by querying the log backend until the model stops
// calling tools or the iteration cap hits. Provider failures degrade to a
// single broad fallback query so the pipeline can continue; cancellation
// propagates unchanged.
func (a *LogSearchAgent) Invoke(ctx context.Context, req Request) (*Outcome, error) {
	facets, instructions := a.backendContext(ctx)

	var lastCall *models.LogSearchToolCallWithResult
	for iteration := 0; iteration < a.maxIters; iteration++ {
		history := a.deps.State.GetLogSearchToolCallsWithResults(agent.ScopeBoth)

		userMsg := a.deps.Prompts.LogSearchUser(prompt.LogSearchParams{
			UserQuery:         a.deps.UserQuery,
			Request:           req.Request,
			Facets:            facets,
			QueryInstructions: instructions,
			LastResult:        lastCall,
			History:           history,
			RemainingQueries:  a.maxIters - iteration,
		})

		stepID := uuid.NewString()
		resp, err := llm.Call(ctx, a.deps.LLM, &llm.GenerateInput{
			Model: a.deps.Model,
			Messages: []llm.Message{
				{Role: llm.RoleSystem, Content: a.deps.Prompts.LogSearchSystem()},
				{Role: llm.RoleUser, Content: userMsg},
			},
			Tools:      []llm.ToolDefinition{logSearchTool},
			ToolChoice: llm.ToolChoice{Mode: llm.ToolChoiceAuto},
		}, func(chunkType llm.ChunkType, delta string) {
			if chunkType == llm.ChunkTypeText {
				a.deps.State.AddStreamingUpdate(events.StreamKindLogSearch, stepID, delta)
			}
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Provider failure: degrade to one broad query so the pipeline
			// still has log evidence to reason over.
			slog.Warn("Log-search model call failed, running fallback query", "error", err)
			return a.runFallback(ctx, req)
		}

		if len(resp.ToolCalls) == 0 {
			return &Outcome{TaskComplete: true, Iterations: iteration}, nil
		}
		if len(resp.ToolCalls) != 1 {
			return nil, fmt.Errorf("%w: log search expects one call per turn, got %d",
				ErrUnexpectedToolCall, len(resp.ToolCalls))
		}
		tc := resp.ToolCalls[0]
		if tc.Name != "logSearchInput" {
			return nil, fmt.Errorf("%w: %s", ErrUnexpectedToolCall, tc.Name)
		}

		var input models.LogSearchInput
		if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil {
			return nil, fmt.Errorf("decode logSearchInput arguments: %w", err)
		}

		call, err := a.deps.Executor.ExecuteLogSearch(ctx, input)
		if err != nil {
			return nil, err // cancellation only
		}
		lastCall = &call

		a.deps.State.AddUpdate(models.LogSearchStep{
			ID:        stepID,
			Timestamp: time.Now(),
			Reasoning: resp.Text,
			Data:      []models.LogSearchToolCallWithResult{call},
		})
	}

	slog.Info("Log-search iteration cap reached, forcing completion",
		"max_iters", a.maxIters, "note", a.deps.Prompts.ForcedCompletionNote())
	return &Outcome{TaskComplete: false, Iterations: a.maxIters}, nil
}

// backendContext fetches facet values and query guidance, best-effort.
func (a *LogSearchAgent) backendContext(ctx context.Context) (map[string][]string, string) {
	if a.deps.Obs == nil {
		return nil, ""
	}
	end := time.Now()
	start := end.Add(-fallbackWindow)
	facets, err := a.deps.Obs.GetLogsFacetValues(ctx, start, end)
	if err != nil {
		slog.Warn("Failed to fetch log facet values", "error", err)
		facets = nil
	}
	return facets, a.deps.Obs.GetLogSearchQueryInstructions()
}

// runFallback executes the fixed broad query (last 24h) and records it as a
// normal step. Tool-level failure is tagged inside the step, never raised.
func (a *LogSearchAgent) runFallback(ctx context.Context, req Request) (*Outcome, error) {
	now := time.Now()
	input := models.LogSearchInput{
		Query: "",
		Start: now.Add(-fallbackWindow).Format(time.RFC3339),
		End:   now.Format(time.RFC3339),
		Limit: 100,
	}
	call, err := a.deps.Executor.ExecuteLogSearch(ctx, input)
	if err != nil {
		return nil, err // cancellation only
	}
	a.deps.State.AddUpdate(models.LogSearchStep{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Reasoning: fmt.Sprintf("Fallback query after provider failure while handling: %s", req.Request),
		Data:      []models.LogSearchToolCallWithResult{call},
	})
	return &Outcome{TaskComplete: true, Iterations: 1}, nil
}
