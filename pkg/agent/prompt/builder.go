// Package prompt assembles the model-facing prompts for every pipeline
// node. Wording lives in templates.go; this file only does assembly.
package prompt

import (
	"fmt"
	"strings"
	"time"

	"github.com/triage-labs/sleuth/pkg/llm"
	"github.com/triage-labs/sleuth/pkg/models"
)

// Builder assembles prompts from run-scoped facts. Immutable after
// construction; shared by all nodes of one pipeline.
type Builder struct {
	repoPath         string
	codebaseOverview string
}

// NewBuilder creates a prompt builder for one repository.
func NewBuilder(repoPath, codebaseOverview string) *Builder {
	return &Builder{repoPath: repoPath, codebaseOverview: codebaseOverview}
}

// LogSearchParams carries everything the log-search sub-agent prompt embeds.
type LogSearchParams struct {
	UserQuery         string
	Request           string
	Facets            map[string][]string
	QueryInstructions string
	LastResult        *models.LogSearchToolCallWithResult
	History           []models.LogSearchToolCallWithResult
	RemainingQueries  int
}

// LogSearchSystem returns the log-search sub-agent system prompt.
func (b *Builder) LogSearchSystem() string { return logSearchSystemPrompt }

// LogSearchUser assembles the per-iteration user message for the log-search
// sub-agent.
func (b *Builder) LogSearchUser(p LogSearchParams) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Incident:\n%s\n\nSearch task:\n%s\n", p.UserQuery, p.Request)

	if len(p.Facets) > 0 {
		sb.WriteString("\nAvailable log facets:\n")
		for facet, values := range p.Facets {
			fmt.Fprintf(&sb, "- %s: %s\n", facet, strings.Join(values, ", "))
		}
	}
	if p.QueryInstructions != "" {
		fmt.Fprintf(&sb, "\nQuery syntax:\n%s\n", p.QueryInstructions)
	}
	if b.codebaseOverview != "" {
		fmt.Fprintf(&sb, "\nCodebase overview:\n%s\n", b.codebaseOverview)
	}
	if len(p.History) > 0 {
		sb.WriteString("\nQueries already executed:\n")
		for _, call := range p.History {
			fmt.Fprintf(&sb, "- %s\n", describeLogCall(call))
		}
	}
	if p.LastResult != nil {
		fmt.Fprintf(&sb, "\nMost recent result:\n%s\n", renderLogCall(*p.LastResult))
	}
	fmt.Fprintf(&sb, "\nYou may run %d more queries.\n", p.RemainingQueries)
	return sb.String()
}

// CodeSearchParams carries everything the code-search sub-agent prompt embeds.
type CodeSearchParams struct {
	UserQuery    string
	Request      string
	FilesRead    []string
	GrepsRun     []models.GrepToolCallWithResult
	RemainingOps int
}

// CodeSearchSystem returns the code-search sub-agent system prompt.
func (b *Builder) CodeSearchSystem() string { return codeSearchSystemPrompt }

// CodeSearchUser assembles the per-iteration user message for the
// code-search sub-agent.
func (b *Builder) CodeSearchUser(p CodeSearchParams) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Incident:\n%s\n\nSearch task:\n%s\n\nRepository root: %s\n",
		p.UserQuery, p.Request, b.repoPath)

	if b.codebaseOverview != "" {
		fmt.Fprintf(&sb, "\nCodebase overview:\n%s\n", b.codebaseOverview)
	}
	if len(p.FilesRead) > 0 {
		sb.WriteString("\nFiles already read (do not re-read):\n")
		for _, path := range p.FilesRead {
			fmt.Fprintf(&sb, "- %s\n", path)
		}
	}
	if len(p.GrepsRun) > 0 {
		sb.WriteString("\nSearches already run:\n")
		for _, call := range p.GrepsRun {
			status := "ok"
			if call.IsError() {
				status = "error"
			}
			fmt.Fprintf(&sb, "- grep %q (%s)\n", call.Input.Pattern, status)
		}
	}
	fmt.Fprintf(&sb, "\nYou may run %d more search turns.\n", p.RemainingOps)
	return sb.String()
}

// ReasonerSystem returns the reasoner system prompt.
func (b *Builder) ReasonerSystem() string { return reasonerSystemPrompt }

// ReviewerMessages builds the single-shot reviewer conversation.
func (b *Builder) ReviewerMessages(userQuery, candidateAnswer, gatheredContext string) []llm.Message {
	var sb strings.Builder
	fmt.Fprintf(&sb, "User question:\n%s\n\nProposed root-cause analysis:\n%s\n", userQuery, candidateAnswer)
	if gatheredContext != "" {
		fmt.Fprintf(&sb, "\nEvidence gathered during the investigation:\n%s\n", gatheredContext)
	}
	return []llm.Message{
		{Role: llm.RoleSystem, Content: reviewerSystemPrompt},
		{Role: llm.RoleUser, Content: sb.String()},
	}
}

// LogPostprocessorMessages builds the single-shot log fact-extraction
// conversation over the executed log transcript.
func (b *Builder) LogPostprocessorMessages(answer string, calls []models.LogSearchToolCallWithResult) []llm.Message {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Root-cause analysis:\n%s\n\nExecuted log queries:\n", answer)
	for i, call := range calls {
		fmt.Fprintf(&sb, "\n[query %d]\n%s\n", i+1, renderLogCall(call))
	}
	return []llm.Message{
		{Role: llm.RoleSystem, Content: logPostprocessorSystemPrompt},
		{Role: llm.RoleUser, Content: sb.String()},
	}
}

// CodePostprocessorMessages builds the single-shot code fact-extraction
// conversation over the files read during the run.
func (b *Builder) CodePostprocessorMessages(answer string, calls []models.CatToolCallWithResult) []llm.Message {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Root-cause analysis:\n%s\n\nFiles read during the investigation:\n", answer)
	for _, call := range calls {
		if call.IsError() {
			continue
		}
		fmt.Fprintf(&sb, "\nFile: %s\n%s\n", call.Input.Path, numberLines(call.Result.Content))
	}
	return []llm.Message{
		{Role: llm.RoleSystem, Content: codePostprocessorSystemPrompt},
		{Role: llm.RoleUser, Content: sb.String()},
	}
}

// ForcedCompletionNote is logged when a sub-agent hits its iteration cap.
func (b *Builder) ForcedCompletionNote() string { return forcedCompletionNote }

func describeLogCall(call models.LogSearchToolCallWithResult) string {
	if call.IsError() {
		return fmt.Sprintf("%q (%s to %s): error: %s",
			call.Input.Query, call.Input.Start, call.Input.End, call.Error.Error)
	}
	return fmt.Sprintf("%q (%s to %s): %d lines",
		call.Input.Query, call.Input.Start, call.Input.End, len(call.Result.Logs))
}

func renderLogCall(call models.LogSearchToolCallWithResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Query: %s\nWindow: %s to %s (limit %d)\n",
		call.Input.Query, call.Input.Start, call.Input.End, call.Input.Limit)
	if call.IsError() {
		fmt.Fprintf(&sb, "Error: %s", call.Error.Error)
		return sb.String()
	}
	for _, entry := range call.Result.Logs {
		fmt.Fprintf(&sb, "%s [%s] %s: %s\n",
			entry.Timestamp.Format(time.RFC3339), entry.Level, entry.Service, entry.Message)
	}
	if call.Result.PageCursorOrIndicator != "" {
		fmt.Fprintf(&sb, "Next page: %s", call.Result.PageCursorOrIndicator)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func numberLines(content string) string {
	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	var sb strings.Builder
	for i, line := range lines {
		fmt.Fprintf(&sb, "%4d| %s\n", i+1, line)
	}
	return strings.TrimRight(sb.String(), "\n")
}
