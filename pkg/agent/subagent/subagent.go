// Package subagent implements the bounded search loops the reasoner
// delegates to: log search and code search. Each loop asks the fast model
// for tool calls one turn at a time, executes them, and extends the shared
// transcript until the model stops calling tools or the iteration cap hits.
package subagent

import (
	"errors"

	"github.com/triage-labs/sleuth/pkg/agent"
	"github.com/triage-labs/sleuth/pkg/agent/prompt"
	"github.com/triage-labs/sleuth/pkg/llm"
	"github.com/triage-labs/sleuth/pkg/observability"
)

// DefaultMaxIters caps sub-agent loop iterations when the caller does not
// override it.
const DefaultMaxIters = 12

// ErrUnexpectedToolCall is returned when the model emits a tool the
// sub-agent did not register, or the wrong number of calls for a tool that
// requires exactly one. Fatal to the phase.
var ErrUnexpectedToolCall = errors.New("unexpected tool call from model")

// Request is a delegation handed down by the reasoner: a natural-language
// task plus the reasoner's one-line justification.
type Request struct {
	Request   string `json:"request" jsonschema:"description=What to find, in natural language"`
	Reasoning string `json:"reasoning" jsonschema:"description=Why this search is needed"`
}

// Deps bundles the shared collaborators a sub-agent holds non-owning
// references to.
type Deps struct {
	LLM      llm.Client
	Model    string // fast model id
	State    *agent.StateManager
	Executor *agent.ToolExecutor
	Prompts  *prompt.Builder
	Obs      observability.Client // nil when logs are disabled
	// UserQuery is the rendered current user turn (context items included).
	UserQuery string
}

// Outcome reports how a sub-agent loop ended.
type Outcome struct {
	// TaskComplete is true when the model stopped calling tools on its own
	// or, in log search, when the broad fallback query ran after a provider
	// failure; false when the iteration cap forced completion or a provider
	// failure ended a code search.
	TaskComplete bool
	Iterations   int
}
