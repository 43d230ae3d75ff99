// Package clickhouse implements observability.Client over an OTel-style
// logs table in ClickHouse.
package clickhouse

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/triage-labs/sleuth/pkg/observability"
)

const (
	defaultTable   = "otel_logs"
	defaultTimeout = 10 * time.Second
	defaultLimit   = 100
	maxLimit       = 1000
	facetLimit     = 50
)

// Config parameterizes the ClickHouse client.
type Config struct {
	DSN            string
	Database       string
	LogsTable      string
	TimeoutSeconds int
}

// Client queries logs from ClickHouse. Safe for concurrent use.
type Client struct {
	conn    driver.Conn
	table   string
	timeout time.Duration
}

// New opens and pings a ClickHouse connection.
func New(ctx context.Context, cfg Config) (*Client, error) {
	opts, err := clickhouse.ParseDSN(strings.TrimSpace(cfg.DSN))
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	if cfg.Database != "" {
		opts.Auth.Database = cfg.Database
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse connection: %w", err)
	}

	table := strings.TrimSpace(cfg.LogsTable)
	if table == "" {
		table = defaultTable
	}
	if _, err := sanitizeIdentifier(table); err != nil {
		return nil, fmt.Errorf("invalid logs table: %w", err)
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}

	return &Client{conn: conn, table: table, timeout: timeout}, nil
}

// Close releases the connection.
func (c *Client) Close() error { return c.conn.Close() }

// FetchLogs implements observability.Client.
func (c *Client) FetchLogs(ctx context.Context, input observability.FetchLogsInput) (*observability.FetchLogsResult, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	offset := parseCursor(input.PageCursor)

	// Fetch one extra row to learn whether a next page exists.
	sql, args := buildLogsSQL(c.table, parseQuery(input.Query), limit+1, offset)
	args[0] = input.Start
	args[1] = input.End

	queryCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	rows, err := c.conn.Query(queryCtx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("clickhouse query: %w", err)
	}
	defer rows.Close()

	var logs []observability.LogEntry
	for rows.Next() {
		var (
			ts      time.Time
			level   string
			service string
			body    string
			attrs   map[string]string
		)
		if err := rows.Scan(&ts, &level, &service, &body, &attrs); err != nil {
			return nil, fmt.Errorf("clickhouse scan: %w", err)
		}
		lvl := strings.ToLower(strings.TrimSpace(level))
		if lvl == "" {
			lvl = "info"
		}
		logs = append(logs, observability.LogEntry{
			Timestamp:  ts,
			Level:      lvl,
			Service:    strings.TrimSpace(service),
			Message:    strings.TrimSpace(body),
			Attributes: attrs,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("clickhouse rows: %w", err)
	}

	result := &observability.FetchLogsResult{PageCursorOrIndicator: observability.EndOfResults}
	if len(logs) > limit {
		logs = logs[:limit]
		result.PageCursorOrIndicator = strconv.Itoa(offset + limit)
	}
	result.Logs = logs
	return result, nil
}

// GetLogsFacetValues implements observability.Client. Returned facets:
// "service" and "level".
func (c *Client) GetLogsFacetValues(ctx context.Context, start, end time.Time) (map[string][]string, error) {
	queryCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	facets := map[string][]string{}
	for facet, column := range map[string]string{
		"service": "ServiceName",
		"level":   "SeverityText",
	} {
		sql := fmt.Sprintf(`
SELECT DISTINCT %s
FROM %s
WHERE Timestamp >= ? AND Timestamp < ? AND %s != ''
ORDER BY %s
LIMIT %d`, column, c.table, column, column, facetLimit)

		rows, err := c.conn.Query(queryCtx, sql, start, end)
		if err != nil {
			return nil, fmt.Errorf("clickhouse facet query %s: %w", facet, err)
		}
		var values []string
		for rows.Next() {
			var v string
			if err := rows.Scan(&v); err != nil {
				rows.Close()
				return nil, fmt.Errorf("clickhouse facet scan %s: %w", facet, err)
			}
			values = append(values, v)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("clickhouse facet rows %s: %w", facet, err)
		}
		facets[facet] = values
	}
	return facets, nil
}

// GetLogSearchQueryInstructions implements observability.Client.
func (c *Client) GetLogSearchQueryInstructions() string {
	return `Queries are a space-separated list of terms, all of which must match.
Bare words and "quoted phrases" match the log body case-insensitively.
level:<value> filters by severity (e.g. level:error).
service:<value> filters by service name (e.g. service:checkout).
An empty query matches everything in the time window.`
}

// AddKeywordsToQuery implements observability.Client. Keywords already
// present in the query (case-insensitively) are not duplicated.
func (c *Client) AddKeywordsToQuery(query string, keywords []string) string {
	existing := map[string]struct{}{}
	for _, tok := range tokenize(query) {
		existing[strings.ToLower(tok)] = struct{}{}
	}

	out := strings.TrimSpace(query)
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if _, ok := existing[strings.ToLower(kw)]; ok {
			continue
		}
		existing[strings.ToLower(kw)] = struct{}{}
		term := kw
		if strings.ContainsAny(kw, " \t") {
			term = `"` + kw + `"`
		}
		if out == "" {
			out = term
		} else {
			out += " " + term
		}
	}
	return out
}
