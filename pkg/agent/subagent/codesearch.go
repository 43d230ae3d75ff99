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
	"github.com/triage-labs/sleuth/pkg/repo"
)

// CodeSearchAgent runs the bounded code-search loop. Unlike log search, an
// iteration may carry several tool calls; all are executed sequentially in
// emission order and collected into one CodeSearchStep.
type CodeSearchAgent struct {
	deps     Deps
	repoPath string
	maxIters int
}

// NewCodeSearchAgent creates a code-search sub-agent. maxIters <= 0 selects
// DefaultMaxIters.
func NewCodeSearchAgent(deps Deps, repoPath string, maxIters int) *CodeSearchAgent {
	if maxIters <= 0 {
		maxIters = DefaultMaxIters
	}
	return &CodeSearchAgent{deps: deps, repoPath: repoPath, maxIters: maxIters}
}

var (
	catTool = llm.ToolFor[models.CatRequest](
		"catRequest",
		"Read one file from the repository. The path must be absolute.",
	)
	grepTool = llm.ToolFor[models.GrepRequest](
		"grepRequest",
		"Search the repository working tree with git-grep semantics.",
	)
)

// Invoke satisfies req by searching and reading the source tree until the
// model stops calling tools or the iteration cap hits. Provider failures
// end the loop with no further actions; cancellation propagates unchanged.
func (a *CodeSearchAgent) Invoke(ctx context.Context, req Request) (*Outcome, error) {
	for iteration := 0; iteration < a.maxIters; iteration++ {
		userMsg := a.deps.Prompts.CodeSearchUser(prompt.CodeSearchParams{
			UserQuery:    a.deps.UserQuery,
			Request:      req.Request,
			FilesRead:    a.filesRead(),
			GrepsRun:     a.deps.State.GetGrepToolCallsWithResults(agent.ScopeBoth),
			RemainingOps: a.maxIters - iteration,
		})

		stepID := uuid.NewString()
		resp, err := llm.Call(ctx, a.deps.LLM, &llm.GenerateInput{
			Model: a.deps.Model,
			Messages: []llm.Message{
				{Role: llm.RoleSystem, Content: a.deps.Prompts.CodeSearchSystem()},
				{Role: llm.RoleUser, Content: userMsg},
			},
			Tools:      []llm.ToolDefinition{catTool, grepTool},
			ToolChoice: llm.ToolChoice{Mode: llm.ToolChoiceAuto},
		}, func(chunkType llm.ChunkType, delta string) {
			if chunkType == llm.ChunkTypeText {
				a.deps.State.AddStreamingUpdate(events.StreamKindCodeSearch, stepID, delta)
			}
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Provider failure: stop with what we have. Unlike log search
			// there is no safe broad fallback for code.
			slog.Warn("Code-search model call failed, ending loop", "error", err)
			return &Outcome{TaskComplete: false, Iterations: iteration}, nil
		}

		if len(resp.ToolCalls) == 0 {
			return &Outcome{TaskComplete: true, Iterations: iteration}, nil
		}

		items := make([]models.CodeToolCallItem, 0, len(resp.ToolCalls))
		for _, tc := range resp.ToolCalls {
			item, err := a.executeCall(ctx, tc)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}

		a.deps.State.AddUpdate(models.CodeSearchStep{
			ID:        stepID,
			Timestamp: time.Now(),
			Reasoning: resp.Text,
			Data:      items,
		})
	}

	slog.Info("Code-search iteration cap reached, forcing completion",
		"max_iters", a.maxIters, "note", a.deps.Prompts.ForcedCompletionNote())
	return &Outcome{TaskComplete: false, Iterations: a.maxIters}, nil
}

// executeCall dispatches one tool call by name. Unknown names are fatal;
// tool-level failures are tagged inside the returned record.
func (a *CodeSearchAgent) executeCall(ctx context.Context, tc llm.ToolCall) (models.CodeToolCallItem, error) {
	switch tc.Name {
	case "catRequest":
		var req models.CatRequest
		if err := json.Unmarshal([]byte(tc.Arguments), &req); err != nil {
			return nil, fmt.Errorf("decode catRequest arguments: %w", err)
		}
		// Models occasionally emit repo-relative paths; re-anchor them.
		req.Path = repo.AnchorFilePath(req.Path, a.repoPath)
		return a.deps.Executor.ExecuteCat(ctx, req)
	case "grepRequest":
		var req models.GrepRequest
		if err := json.Unmarshal([]byte(tc.Arguments), &req); err != nil {
			return nil, fmt.Errorf("decode grepRequest arguments: %w", err)
		}
		return a.deps.Executor.ExecuteGrep(ctx, req)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedToolCall, tc.Name)
	}
}

func (a *CodeSearchAgent) filesRead() []string {
	calls := a.deps.State.GetCatToolCallsWithResults(agent.ScopeBoth)
	paths := make([]string, 0, len(calls))
	seen := make(map[string]struct{}, len(calls))
	for _, call := range calls {
		if _, ok := seen[call.Input.Path]; ok {
			continue
		}
		seen[call.Input.Path] = struct{}{}
		paths = append(paths, call.Input.Path)
	}
	return paths
}
