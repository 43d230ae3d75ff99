// Package events defines the streaming update surface the state manager
// emits to its consumer-supplied sink.
//
// Two lifecycle patterns reach the sink:
//
//   - STREAMING: for reasoning and sub-agent commentary, a sequence of
//     *-chunk updates under one id, followed by the final step (or, for
//     reasoning, nothing — its text was already fully delivered as chunks).
//     Clients concatenate deltas locally for a live typing effect.
//
//   - FIRE-AND-FORGET: tool batches, review verdicts, and fact steps arrive
//     complete in a single update. The code post-processing step is the one
//     exception: it arrives twice under the same id, first with empty data
//     (placeholder) and then populated.
package events

import (
	"time"

	"github.com/triage-labs/sleuth/pkg/models"
)

// Update types on the wire.
const (
	UpdateTypeReasoningChunk  = "reasoning-chunk"
	UpdateTypeLogSearchChunk  = "logSearch-chunk"
	UpdateTypeCodeSearchChunk = "codeSearch-chunk"
	UpdateTypeLogSearchTools  = "logSearch-tools"
	UpdateTypeCodeSearchTools = "codeSearch-tools"
	UpdateTypeReview          = "review"
	UpdateTypeLogFacts        = "logPostprocessing"
	UpdateTypeCodeFacts       = "codePostprocessing"
)

// StreamKind selects which streaming surface a chunk belongs to.
type StreamKind string

const (
	StreamKindReasoning  StreamKind = "reasoning"
	StreamKindLogSearch  StreamKind = "logSearch"
	StreamKindCodeSearch StreamKind = "codeSearch"
)

// ChunkType returns the wire update type for a stream kind.
func (k StreamKind) ChunkType() string {
	switch k {
	case StreamKindLogSearch:
		return UpdateTypeLogSearchChunk
	case StreamKindCodeSearch:
		return UpdateTypeCodeSearchChunk
	default:
		return UpdateTypeReasoningChunk
	}
}

// StreamUpdate is the union of everything delivered to the sink.
type StreamUpdate interface {
	UpdateType() string
	UpdateID() string
}

// ChunkUpdate is an incremental text delta for the step identified by ID.
type ChunkUpdate struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Chunk     string    `json:"chunk"`
	Timestamp time.Time `json:"timestamp"`
}

// LogSearchToolsUpdate is the final update for a log-search step, with the
// step's data promoted to toolCalls so consumers can render tool
// invocations distinctly from streamed commentary.
type LogSearchToolsUpdate struct {
	ID        string                               `json:"id"`
	Type      string                               `json:"type"` // always UpdateTypeLogSearchTools
	Timestamp time.Time                            `json:"timestamp"`
	ToolCalls []models.LogSearchToolCallWithResult `json:"toolCalls"`
}

// CodeSearchToolsUpdate is the final update for a code-search step.
type CodeSearchToolsUpdate struct {
	ID        string                    `json:"id"`
	Type      string                    `json:"type"` // always UpdateTypeCodeSearchTools
	Timestamp time.Time                 `json:"timestamp"`
	ToolCalls []models.CodeToolCallItem `json:"toolCalls"`
}

// ReviewUpdate is the final update for a review step.
type ReviewUpdate struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"` // always UpdateTypeReview
	Timestamp time.Time `json:"timestamp"`
	Content   string    `json:"content"`
	Accepted  bool      `json:"accepted"`
}

// LogFactsUpdate is the terminal update carrying extracted log facts.
type LogFactsUpdate struct {
	ID        string           `json:"id"`
	Type      string           `json:"type"` // always UpdateTypeLogFacts
	Timestamp time.Time        `json:"timestamp"`
	Data      []models.LogFact `json:"data"`
}

// CodeFactsUpdate carries extracted code facts. It is emitted twice under
// the same id: once with empty Data (placeholder) and once populated.
type CodeFactsUpdate struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"` // always UpdateTypeCodeFacts
	Timestamp time.Time         `json:"timestamp"`
	Data      []models.CodeFact `json:"data"`
}

func (u ChunkUpdate) UpdateType() string           { return u.Type }
func (u LogSearchToolsUpdate) UpdateType() string  { return UpdateTypeLogSearchTools }
func (u CodeSearchToolsUpdate) UpdateType() string { return UpdateTypeCodeSearchTools }
func (u ReviewUpdate) UpdateType() string          { return UpdateTypeReview }
func (u LogFactsUpdate) UpdateType() string        { return UpdateTypeLogFacts }
func (u CodeFactsUpdate) UpdateType() string       { return UpdateTypeCodeFacts }

func (u ChunkUpdate) UpdateID() string           { return u.ID }
func (u LogSearchToolsUpdate) UpdateID() string  { return u.ID }
func (u CodeSearchToolsUpdate) UpdateID() string { return u.ID }
func (u ReviewUpdate) UpdateID() string          { return u.ID }
func (u LogFactsUpdate) UpdateID() string        { return u.ID }
func (u CodeFactsUpdate) UpdateID() string       { return u.ID }

// Sink receives updates synchronously, in emission order. Sinks must be
// non-blocking: the state manager calls them inline from pipeline nodes,
// and an awaiting sink would stall the run. Sinks must not call back into
// mutating state-manager operations for the same step.
type Sink func(StreamUpdate)
