// Package obstest provides a canned observability.Client for tests.
package obstest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/triage-labs/sleuth/pkg/observability"
)

// Client is a scriptable observability.Client. The zero value returns empty
// results for every call.
type Client struct {
	mu sync.Mutex

	// FetchLogsFunc overrides FetchLogs when set.
	FetchLogsFunc func(ctx context.Context, input observability.FetchLogsInput) (*observability.FetchLogsResult, error)
	// Logs is returned by the default FetchLogs.
	Logs []observability.LogEntry
	// Facets is returned by GetLogsFacetValues.
	Facets map[string][]string
	// Instructions is returned by GetLogSearchQueryInstructions.
	Instructions string

	// Fetches records every FetchLogs input.
	Fetches []observability.FetchLogsInput
}

func (c *Client) FetchLogs(ctx context.Context, input observability.FetchLogsInput) (*observability.FetchLogsResult, error) {
	c.mu.Lock()
	c.Fetches = append(c.Fetches, input)
	c.mu.Unlock()

	if c.FetchLogsFunc != nil {
		return c.FetchLogsFunc(ctx, input)
	}
	return &observability.FetchLogsResult{
		Logs:                  c.Logs,
		PageCursorOrIndicator: observability.EndOfResults,
	}, nil
}

func (c *Client) GetLogsFacetValues(_ context.Context, _, _ time.Time) (map[string][]string, error) {
	return c.Facets, nil
}

func (c *Client) GetLogSearchQueryInstructions() string { return c.Instructions }

func (c *Client) AddKeywordsToQuery(query string, keywords []string) string {
	parts := []string{}
	if query != "" {
		parts = append(parts, query)
	}
	parts = append(parts, keywords...)
	return strings.Join(parts, " ")
}

// FetchCount returns how many FetchLogs calls were made.
func (c *Client) FetchCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Fetches)
}
