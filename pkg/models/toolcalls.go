package models

import (
	"encoding/json"
	"time"

	"github.com/triage-labs/sleuth/pkg/observability"
)

// ToolCallType discriminates the tool-call variants.
type ToolCallType string

const (
	ToolCallTypeLogSearch ToolCallType = "logSearchInput"
	ToolCallTypeCat       ToolCallType = "catRequest"
	ToolCallTypeGrep      ToolCallType = "grepRequest"
)

// Output type discriminants for tool-call results.
const (
	OutputTypeResult = "result"
	OutputTypeError  = "error"
)

// ToolCallError is the tagged error half of a tool-call output.
type ToolCallError struct {
	Type         string       `json:"type"` // always OutputTypeError
	ToolCallType ToolCallType `json:"toolCallType"`
	Error        string       `json:"error"`
}

// NewToolCallError builds a tagged error for the given tool-call type.
func NewToolCallError(tct ToolCallType, msg string) *ToolCallError {
	return &ToolCallError{Type: OutputTypeError, ToolCallType: tct, Error: msg}
}

// LogSearchInput is the structured input of a log-search tool call.
// Start and End are RFC3339 timestamps as emitted by the model; the
// executor parses them before hitting the backend.
type LogSearchInput struct {
	Query      string `json:"query" jsonschema:"description=Log search query in the backend's syntax"`
	Start      string `json:"start" jsonschema:"description=Window start as an RFC3339 timestamp"`
	End        string `json:"end" jsonschema:"description=Window end as an RFC3339 timestamp"`
	Limit      int    `json:"limit" jsonschema:"description=Maximum number of log lines to return"`
	PageCursor string `json:"pageCursor,omitempty" jsonschema:"description=Cursor from a previous page of the same query"`
}

// CatRequest is the structured input of a cat tool call.
type CatRequest struct {
	Path string `json:"path" jsonschema:"description=Absolute path of the file to read"`
}

// GrepRequest is the structured input of a grep tool call.
type GrepRequest struct {
	Pattern string `json:"pattern" jsonschema:"description=Regular expression to search for"`
	Flags   string `json:"flags,omitempty" jsonschema:"description=Grep flag letters with no dashes (e.g. \"in\")"`
}

// LogSearchResult is the success payload of a log-search tool call.
type LogSearchResult struct {
	Type                  string                 `json:"type"` // always OutputTypeResult
	ToolCallType          ToolCallType           `json:"toolCallType"`
	Logs                  []observability.LogEntry `json:"logs"`
	PageCursorOrIndicator string                 `json:"pageCursorOrIndicator,omitempty"`
}

// CatResult is the success payload of a cat tool call.
type CatResult struct {
	Type         string       `json:"type"` // always OutputTypeResult
	ToolCallType ToolCallType `json:"toolCallType"`
	Content      string       `json:"content"`
}

// GrepResult is the success payload of a grep tool call.
type GrepResult struct {
	Type         string       `json:"type"` // always OutputTypeResult
	ToolCallType ToolCallType `json:"toolCallType"`
	Content      string       `json:"content"`
}

// LogSearchToolCallWithResult pairs a log-search input with its output.
// Exactly one of Result and Error is non-nil — never both, never neither.
type LogSearchToolCallWithResult struct {
	Timestamp time.Time        `json:"timestamp"`
	Input     LogSearchInput   `json:"input"`
	Result    *LogSearchResult `json:"-"`
	Error     *ToolCallError   `json:"-"`
}

// CatToolCallWithResult pairs a cat input with its output.
// Exactly one of Result and Error is non-nil.
type CatToolCallWithResult struct {
	Timestamp time.Time      `json:"timestamp"`
	Input     CatRequest     `json:"input"`
	Result    *CatResult     `json:"-"`
	Error     *ToolCallError `json:"-"`
}

// GrepToolCallWithResult pairs a grep input with its output.
// Exactly one of Result and Error is non-nil.
type GrepToolCallWithResult struct {
	Timestamp time.Time      `json:"timestamp"`
	Input     GrepRequest    `json:"input"`
	Result    *GrepResult    `json:"-"`
	Error     *ToolCallError `json:"-"`
}

// IsError reports whether the call failed.
func (c LogSearchToolCallWithResult) IsError() bool { return c.Error != nil }
func (c CatToolCallWithResult) IsError() bool       { return c.Error != nil }
func (c GrepToolCallWithResult) IsError() bool      { return c.Error != nil }

// CodeToolCallItem is the tagged union of cat and grep calls inside a
// CodeSearchStep's data, preserving execution order.
type CodeToolCallItem interface {
	CodeToolCallType() ToolCallType
	CodeToolCallIsError() bool
}

func (c CatToolCallWithResult) CodeToolCallType() ToolCallType  { return ToolCallTypeCat }
func (c GrepToolCallWithResult) CodeToolCallType() ToolCallType { return ToolCallTypeGrep }
func (c CatToolCallWithResult) CodeToolCallIsError() bool       { return c.IsError() }
func (c GrepToolCallWithResult) CodeToolCallIsError() bool      { return c.IsError() }

// The MarshalJSON implementations below flatten the result-or-error pair
// into a single tagged "output" field so wire consumers see the union the
// way the transcript defines it.

type logSearchToolCallJSON struct {
	Timestamp time.Time      `json:"timestamp"`
	Input     LogSearchInput `json:"input"`
	Output    any            `json:"output"`
}

func (c LogSearchToolCallWithResult) MarshalJSON() ([]byte, error) {
	out := logSearchToolCallJSON{Timestamp: c.Timestamp, Input: c.Input}
	if c.Error != nil {
		out.Output = c.Error
	} else {
		out.Output = c.Result
	}
	return json.Marshal(out)
}

type catToolCallJSON struct {
	Timestamp time.Time  `json:"timestamp"`
	Input     CatRequest `json:"input"`
	Output    any        `json:"output"`
}

func (c CatToolCallWithResult) MarshalJSON() ([]byte, error) {
	out := catToolCallJSON{Timestamp: c.Timestamp, Input: c.Input}
	if c.Error != nil {
		out.Output = c.Error
	} else {
		out.Output = c.Result
	}
	return json.Marshal(out)
}

type grepToolCallJSON struct {
	Timestamp time.Time   `json:"timestamp"`
	Input     GrepRequest `json:"input"`
	Output    any         `json:"output"`
}

func (c GrepToolCallWithResult) MarshalJSON() ([]byte, error) {
	out := grepToolCallJSON{Timestamp: c.Timestamp, Input: c.Input}
	if c.Error != nil {
		out.Output = c.Error
	} else {
		out.Output = c.Result
	}
	return json.Marshal(out)
}
