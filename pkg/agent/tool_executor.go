package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/triage-labs/sleuth/pkg/models"
	"github.com/triage-labs/sleuth/pkg/observability"
	"github.com/triage-labs/sleuth/pkg/repo"
)

// ToolExecutor runs individual tool-call inputs against the repository and
// the observability backend, producing tagged result-or-error records.
// Execution failures are captured inside the record; the returned error is
// non-nil only for cancellation, which is never masked as a result.
type ToolExecutor struct {
	repo *repo.Tools
	obs  observability.Client
}

// NewToolExecutor creates a tool executor. obs may be nil when the logs
// data source is disabled.
func NewToolExecutor(repoTools *repo.Tools, obs observability.Client) *ToolExecutor {
	return &ToolExecutor{repo: repoTools, obs: obs}
}

// ExecuteCat reads one file and returns the tagged record.
func (e *ToolExecutor) ExecuteCat(ctx context.Context, req models.CatRequest) (models.CatToolCallWithResult, error) {
	call := models.CatToolCallWithResult{Timestamp: time.Now(), Input: req}

	content, err := e.repo.Cat(ctx, req.Path)
	if err != nil {
		if ctx.Err() != nil {
			return call, ctx.Err()
		}
		call.Error = models.NewToolCallError(models.ToolCallTypeCat, err.Error())
		return call, nil
	}
	call.Result = &models.CatResult{
		Type:         models.OutputTypeResult,
		ToolCallType: models.ToolCallTypeCat,
		Content:      content,
	}
	return call, nil
}

// ExecuteGrep runs one repository search and returns the tagged record.
func (e *ToolExecutor) ExecuteGrep(ctx context.Context, req models.GrepRequest) (models.GrepToolCallWithResult, error) {
	call := models.GrepToolCallWithResult{Timestamp: time.Now(), Input: req}

	content, err := e.repo.Grep(ctx, req.Pattern, req.Flags)
	if err != nil {
		if ctx.Err() != nil {
			return call, ctx.Err()
		}
		call.Error = models.NewToolCallError(models.ToolCallTypeGrep, err.Error())
		return call, nil
	}
	call.Result = &models.GrepResult{
		Type:         models.OutputTypeResult,
		ToolCallType: models.ToolCallTypeGrep,
		Content:      content,
	}
	return call, nil
}

// ExecuteLogSearch runs one log query and returns the tagged record.
func (e *ToolExecutor) ExecuteLogSearch(ctx context.Context, input models.LogSearchInput) (models.LogSearchToolCallWithResult, error) {
	call := models.LogSearchToolCallWithResult{Timestamp: time.Now(), Input: input}

	if e.obs == nil {
		call.Error = models.NewToolCallError(models.ToolCallTypeLogSearch, "logs data source is not configured")
		return call, nil
	}

	fetchInput, err := parseLogSearchInput(input)
	if err != nil {
		call.Error = models.NewToolCallError(models.ToolCallTypeLogSearch, err.Error())
		return call, nil
	}

	result, err := e.obs.FetchLogs(ctx, fetchInput)
	if err != nil {
		if ctx.Err() != nil {
			return call, ctx.Err()
		}
		call.Error = models.NewToolCallError(models.ToolCallTypeLogSearch, err.Error())
		return call, nil
	}
	call.Result = &models.LogSearchResult{
		Type:                  models.OutputTypeResult,
		ToolCallType:          models.ToolCallTypeLogSearch,
		Logs:                  result.Logs,
		PageCursorOrIndicator: result.PageCursorOrIndicator,
	}
	return call, nil
}

// parseLogSearchInput validates the model-supplied query spec and converts
// its timestamps for the backend.
func parseLogSearchInput(input models.LogSearchInput) (observability.FetchLogsInput, error) {
	start, err := time.Parse(time.RFC3339, input.Start)
	if err != nil {
		return observability.FetchLogsInput{}, fmt.Errorf("invalid start timestamp %q: %w", input.Start, err)
	}
	end, err := time.Parse(time.RFC3339, input.End)
	if err != nil {
		return observability.FetchLogsInput{}, fmt.Errorf("invalid end timestamp %q: %w", input.End, err)
	}
	if !end.After(start) {
		return observability.FetchLogsInput{}, fmt.Errorf("end %q is not after start %q", input.End, input.Start)
	}
	return observability.FetchLogsInput{
		Query:      input.Query,
		Start:      start,
		End:        end,
		Limit:      input.Limit,
		PageCursor: input.PageCursor,
	}, nil
}
