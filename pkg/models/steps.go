// Package models contains the agent transcript taxonomy: steps, tool calls
// with results, facts, and chat message shapes. Everything here is a plain
// value type; ownership rules live with the state manager.
package models

import (
	"encoding/json"
	"time"
)

// StepType discriminates the step variants. Consumers switch exhaustively.
type StepType string

const (
	StepTypeLogSearch          StepType = "logSearch"
	StepTypeCodeSearch         StepType = "codeSearch"
	StepTypeReasoning          StepType = "reasoning"
	StepTypeReview             StepType = "review"
	StepTypeLogPostprocessing  StepType = "logPostprocessing"
	StepTypeCodePostprocessing StepType = "codePostprocessing"
)

// Step is an atomic entry in the agent transcript. Exactly one tagged
// variant implements it per StepType.
type Step interface {
	StepType() StepType
	StepID() string
	StepTimestamp() time.Time
}

// LogSearchStep records one log-search sub-agent iteration: the model's
// reasoning plus the executed tool call(s).
type LogSearchStep struct {
	ID        string                        `json:"id"`
	Timestamp time.Time                     `json:"timestamp"`
	Reasoning string                        `json:"reasoning"`
	Data      []LogSearchToolCallWithResult `json:"data"`
}

// CodeSearchStep records one code-search sub-agent iteration. Data holds
// cat and grep calls in execution order.
type CodeSearchStep struct {
	ID        string             `json:"id"`
	Timestamp time.Time          `json:"timestamp"`
	Reasoning string             `json:"reasoning"`
	Data      []CodeToolCallItem `json:"data"`
}

// ReasoningStep holds the full text of one reasoner pass, accumulated from
// streamed chunks.
type ReasoningStep struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Data      string    `json:"data"`
}

// ReviewStep records the reviewer's judgment over a candidate answer.
type ReviewStep struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Content   string    `json:"content"`
	Accepted  bool      `json:"accepted"`
}

// LogPostprocessingStep carries the extracted log facts.
type LogPostprocessingStep struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Data      []LogFact `json:"data"`
}

// CodePostprocessingStep carries the extracted code facts.
type CodePostprocessingStep struct {
	ID        string     `json:"id"`
	Timestamp time.Time  `json:"timestamp"`
	Data      []CodeFact `json:"data"`
}

func (s LogSearchStep) StepType() StepType          { return StepTypeLogSearch }
func (s CodeSearchStep) StepType() StepType         { return StepTypeCodeSearch }
func (s ReasoningStep) StepType() StepType          { return StepTypeReasoning }
func (s ReviewStep) StepType() StepType             { return StepTypeReview }
func (s LogPostprocessingStep) StepType() StepType  { return StepTypeLogPostprocessing }
func (s CodePostprocessingStep) StepType() StepType { return StepTypeCodePostprocessing }

func (s LogSearchStep) StepID() string          { return s.ID }
func (s CodeSearchStep) StepID() string         { return s.ID }
func (s ReasoningStep) StepID() string          { return s.ID }
func (s ReviewStep) StepID() string             { return s.ID }
func (s LogPostprocessingStep) StepID() string  { return s.ID }
func (s CodePostprocessingStep) StepID() string { return s.ID }

func (s LogSearchStep) StepTimestamp() time.Time          { return s.Timestamp }
func (s CodeSearchStep) StepTimestamp() time.Time         { return s.Timestamp }
func (s ReasoningStep) StepTimestamp() time.Time          { return s.Timestamp }
func (s ReviewStep) StepTimestamp() time.Time             { return s.Timestamp }
func (s LogPostprocessingStep) StepTimestamp() time.Time  { return s.Timestamp }
func (s CodePostprocessingStep) StepTimestamp() time.Time { return s.Timestamp }

// MarshalStep serializes a step with its type discriminant, for wire
// surfaces that cannot carry Go interface values.
func MarshalStep(s Step) ([]byte, error) {
	type envelope struct {
		Type StepType `json:"type"`
		Step Step     `json:"step"`
	}
	return json.Marshal(envelope{Type: s.StepType(), Step: s})
}
