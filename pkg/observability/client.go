// Package observability defines the narrow client contract the triage agent
// uses to query the user's log backend. Concrete drivers live in
// subpackages (see clickhouse).
package observability

import (
	"context"
	"time"
)

// LogEntry is a single log line returned by the backend.
type LogEntry struct {
	Timestamp  time.Time         `json:"timestamp"`
	Level      string            `json:"level"`
	Service    string            `json:"service"`
	Message    string            `json:"message"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// FetchLogsInput bounds a single log query.
type FetchLogsInput struct {
	Query      string    `json:"query"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Limit      int       `json:"limit"`
	PageCursor string    `json:"pageCursor,omitempty"`
}

// FetchLogsResult is the page of logs matching a FetchLogsInput.
// PageCursorOrIndicator is either an opaque cursor for the next page or a
// human-readable indicator that no further pages exist.
type FetchLogsResult struct {
	Logs                  []LogEntry `json:"logs"`
	PageCursorOrIndicator string     `json:"pageCursorOrIndicator,omitempty"`
}

// EndOfResults is the page indicator meaning no further pages exist.
const EndOfResults = "end_of_results"

// Client is the backend-agnostic observability interface consumed by the
// agent. Implementations are expected to be safe for concurrent use within
// one pipeline run.
type Client interface {
	// FetchLogs runs one bounded log query.
	FetchLogs(ctx context.Context, input FetchLogsInput) (*FetchLogsResult, error)

	// GetLogsFacetValues returns the facet values (service names, levels, ...)
	// observed in the given window. Used to seed sub-agent prompts.
	GetLogsFacetValues(ctx context.Context, start, end time.Time) (map[string][]string, error)

	// GetLogSearchQueryInstructions returns platform-specific query guidance
	// embedded verbatim into sub-agent prompts.
	GetLogSearchQueryInstructions() string

	// AddKeywordsToQuery folds highlight keywords into an existing query
	// string using the backend's syntax. Already-present keywords are not
	// duplicated.
	AddKeywordsToQuery(query string, keywords []string) string
}
