package clickhouse

import (
	"fmt"
	"strconv"
	"strings"
)

// queryTerm is one parsed element of a log search query.
type queryTerm struct {
	field string // "" for body match, "level" or "service" for facet filters
	value string
}

// parseQuery splits a query string into terms. Supported syntax:
// bare words (AND-ed body matches), "quoted phrases", and the facet
// filters level:<value> and service:<value>.
func parseQuery(query string) []queryTerm {
	var terms []queryTerm
	for _, token := range tokenize(query) {
		switch {
		case strings.HasPrefix(token, "level:"):
			terms = append(terms, queryTerm{field: "level", value: strings.TrimPrefix(token, "level:")})
		case strings.HasPrefix(token, "service:"):
			terms = append(terms, queryTerm{field: "service", value: strings.TrimPrefix(token, "service:")})
		default:
			terms = append(terms, queryTerm{value: token})
		}
	}
	return terms
}

// tokenize splits on whitespace, honoring double quotes.
func tokenize(query string) []string {
	var tokens []string
	var current strings.Builder
	inQuotes := false
	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}
	for _, r := range query {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case !inQuotes && (r == ' ' || r == '\t' || r == '\n'):
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return tokens
}

// buildLogsSQL renders the SELECT for one FetchLogs call. Returns the SQL
// plus positional args. The table identifier is sanitized at construction.
func buildLogsSQL(table string, terms []queryTerm, limit, offset int) (string, []any) {
	var where []string
	args := []any{}

	where = append(where, "Timestamp >= ?", "Timestamp < ?")
	args = append(args, nil, nil) // placeholders 0,1 filled by caller

	for _, t := range terms {
		switch t.field {
		case "level":
			where = append(where, "lower(SeverityText) = lower(?)")
			args = append(args, t.value)
		case "service":
			where = append(where, "ServiceName = ?")
			args = append(args, t.value)
		default:
			where = append(where, "Body ILIKE ?")
			args = append(args, "%"+t.value+"%")
		}
	}

	sql := fmt.Sprintf(`
SELECT Timestamp, SeverityText, ServiceName, Body, LogAttributes
FROM %s
WHERE %s
ORDER BY Timestamp DESC
LIMIT %d OFFSET %d`, table, strings.Join(where, " AND "), limit, offset)

	return sql, args
}

// parseCursor decodes a page cursor into a row offset. An empty or
// unparseable cursor means the first page.
func parseCursor(cursor string) int {
	offset, err := strconv.Atoi(strings.TrimSpace(cursor))
	if err != nil || offset < 0 {
		return 0
	}
	return offset
}

// sanitizeIdentifier accepts plain (optionally dotted) identifiers.
func sanitizeIdentifier(name string) (string, error) {
	for _, part := range strings.Split(name, ".") {
		if part == "" {
			return "", fmt.Errorf("invalid identifier %q", name)
		}
		for i, r := range part {
			isLetter := r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
			isDigit := r >= '0' && r <= '9'
			if !isLetter && !(isDigit && i > 0) {
				return "", fmt.Errorf("invalid identifier %q", name)
			}
		}
	}
	return name, nil
}
