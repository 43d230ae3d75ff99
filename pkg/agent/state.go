// Package agent provides the triage agent's per-run state management and
// tool execution. Iteration strategies live in subpackages (subagent,
// controller, pipeline).
package agent

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/triage-labs/sleuth/pkg/events"
	"github.com/triage-labs/sleuth/pkg/llm"
	"github.com/triage-labs/sleuth/pkg/models"
)

// Scope selects over the combined transcript: the in-progress run alone,
// the committed chat history alone, or both concatenated in order.
type Scope int

const (
	ScopeCurrent Scope = iota
	ScopePrevious
	ScopeBoth
)

// StateManager is the single source of truth for one run's transcript and
// its streaming surface. It owns the current-turn step list and the answer
// slot for the life of one run; previous-turn steps are reconstructed once
// from the chat history supplied at construction and are read-only.
//
// All mutating operations are safe for concurrent use: pre-processing runs
// two sub-agents in parallel and both write through here.
type StateManager struct {
	mu        sync.Mutex
	sink      events.Sink
	history   []models.ChatMessage
	prevSteps []models.Step
	steps     []models.Step
	answer    string
}

// NewStateManager creates a state manager over the committed chat history.
// sink receives every streaming update synchronously; a nil sink discards.
func NewStateManager(history []models.ChatMessage, sink events.Sink) *StateManager {
	if sink == nil {
		sink = func(events.StreamUpdate) {}
	}
	var prev []models.Step
	for _, msg := range history {
		if am, ok := msg.(models.AssistantMessage); ok {
			prev = append(prev, am.Steps...)
		}
	}
	return &StateManager{
		sink:      sink,
		history:   history,
		prevSteps: prev,
	}
}

// AddStreamingUpdate emits an incremental chunk for the step identified by
// id. Step storage is not touched; chunks for a given id reach the sink in
// call order.
func (m *StateManager) AddStreamingUpdate(kind events.StreamKind, id, chunk string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sink(events.ChunkUpdate{
		ID:        id,
		Type:      kind.ChunkType(),
		Chunk:     chunk,
		Timestamp: time.Now(),
	})
}

// AddUpdate appends a fully-materialized step and emits the corresponding
// final update. Reasoning steps are stored but not re-emitted — their text
// already reached the sink as chunks. Log-search and code-search steps are
// emitted with their data promoted to a toolCalls field.
//
// A step whose id is already present replaces the stored step in place
// (the code post-processor emits a placeholder and a final step under one
// id); step ids therefore stay unique in the transcript while both updates
// still reach the sink.
func (m *StateManager) AddUpdate(step models.Step) {
	m.mu.Lock()
	defer m.mu.Unlock()

	replaced := false
	for i, existing := range m.steps {
		if existing.StepID() == step.StepID() {
			m.steps[i] = step
			replaced = true
			break
		}
	}
	if !replaced {
		m.steps = append(m.steps, step)
	}

	switch s := step.(type) {
	case models.ReasoningStep:
		// already streamed
	case models.LogSearchStep:
		m.sink(events.LogSearchToolsUpdate{
			ID:        s.ID,
			Type:      events.UpdateTypeLogSearchTools,
			Timestamp: s.Timestamp,
			ToolCalls: s.Data,
		})
	case models.CodeSearchStep:
		m.sink(events.CodeSearchToolsUpdate{
			ID:        s.ID,
			Type:      events.UpdateTypeCodeSearchTools,
			Timestamp: s.Timestamp,
			ToolCalls: s.Data,
		})
	case models.ReviewStep:
		m.sink(events.ReviewUpdate{
			ID:        s.ID,
			Type:      events.UpdateTypeReview,
			Timestamp: s.Timestamp,
			Content:   s.Content,
			Accepted:  s.Accepted,
		})
	case models.LogPostprocessingStep:
		m.sink(events.LogFactsUpdate{
			ID:        s.ID,
			Type:      events.UpdateTypeLogFacts,
			Timestamp: s.Timestamp,
			Data:      s.Data,
		})
	case models.CodePostprocessingStep:
		m.sink(events.CodeFactsUpdate{
			ID:        s.ID,
			Type:      events.UpdateTypeCodeFacts,
			Timestamp: s.Timestamp,
			Data:      s.Data,
		})
	}
}

// GetSteps returns the steps in the given scope. The returned slice is a
// copy; callers cannot mutate the transcript through it.
func (m *StateManager) GetSteps(scope Scope) []models.Step {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Step
	switch scope {
	case ScopeCurrent:
		out = append(out, m.steps...)
	case ScopePrevious:
		out = append(out, m.prevSteps...)
	case ScopeBoth:
		out = append(out, m.prevSteps...)
		out = append(out, m.steps...)
	}
	return out
}

// GetLogSearchToolCallsWithResults flattens log-search step data in scope.
func (m *StateManager) GetLogSearchToolCallsWithResults(scope Scope) []models.LogSearchToolCallWithResult {
	var out []models.LogSearchToolCallWithResult
	for _, step := range m.GetSteps(scope) {
		if s, ok := step.(models.LogSearchStep); ok {
			out = append(out, s.Data...)
		}
	}
	return out
}

// GetCatToolCallsWithResults flattens cat calls from code-search steps in scope.
func (m *StateManager) GetCatToolCallsWithResults(scope Scope) []models.CatToolCallWithResult {
	var out []models.CatToolCallWithResult
	for _, step := range m.GetSteps(scope) {
		if s, ok := step.(models.CodeSearchStep); ok {
			for _, item := range s.Data {
				if call, ok := item.(models.CatToolCallWithResult); ok {
					out = append(out, call)
				}
			}
		}
	}
	return out
}

// GetGrepToolCallsWithResults flattens grep calls from code-search steps in scope.
func (m *StateManager) GetGrepToolCallsWithResults(scope Scope) []models.GrepToolCallWithResult {
	var out []models.GrepToolCallWithResult
	for _, step := range m.GetSteps(scope) {
		if s, ok := step.(models.CodeSearchStep); ok {
			for _, item := range s.Data {
				if call, ok := item.(models.GrepToolCallWithResult); ok {
					out = append(out, call)
				}
			}
		}
	}
	return out
}

// GetReasonerMessages materializes the model message list for a reasoner
// pass: system prompt, the committed history, then an assistant message
// serializing the current turn's log and code context into tagged blocks.
func (m *StateManager) GetReasonerMessages(systemPrompt string) []llm.Message {
	msgs := []llm.Message{{Role: llm.RoleSystem, Content: systemPrompt}}
	msgs = append(msgs, m.HistoryMessages()...)

	if ctx := m.renderCurrentContext(); ctx != "" {
		msgs = append(msgs, llm.Message{Role: llm.RoleAssistant, Content: ctx})
	}
	return msgs
}

// HistoryMessages converts the committed chat history into model messages.
// User turns keep their rendered content; assistant turns are flattened to
// a single concatenated content string.
func (m *StateManager) HistoryMessages() []llm.Message {
	var msgs []llm.Message
	for _, msg := range m.history {
		switch turn := msg.(type) {
		case models.UserMessage:
			msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: turn.RenderedContent()})
		case models.AssistantMessage:
			if content := turn.RenderedContent(); content != "" {
				msgs = append(msgs, llm.Message{Role: llm.RoleAssistant, Content: content})
			}
		}
	}
	return msgs
}

// renderCurrentContext serializes the current turn's log and cat transcripts
// into two tagged blocks.
func (m *StateManager) renderCurrentContext() string {
	logCalls := m.GetLogSearchToolCallsWithResults(ScopeCurrent)
	catCalls := m.GetCatToolCallsWithResults(ScopeCurrent)
	if len(logCalls) == 0 && len(catCalls) == 0 {
		return ""
	}

	var b strings.Builder
	if len(logCalls) > 0 {
		b.WriteString("<log_search_results>\n")
		for _, call := range logCalls {
			fmt.Fprintf(&b, "Query: %s (%s to %s, limit %d)\n",
				call.Input.Query, call.Input.Start, call.Input.End, call.Input.Limit)
			if call.IsError() {
				fmt.Fprintf(&b, "Error: %s\n", call.Error.Error)
				continue
			}
			for _, entry := range call.Result.Logs {
				fmt.Fprintf(&b, "%s [%s] %s: %s\n",
					entry.Timestamp.Format(time.RFC3339), entry.Level, entry.Service, entry.Message)
			}
		}
		b.WriteString("</log_search_results>")
	}
	if len(catCalls) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("<source_code>\n")
		for _, call := range catCalls {
			if call.IsError() {
				fmt.Fprintf(&b, "File: %s\nError: %s\n", call.Input.Path, call.Error.Error)
				continue
			}
			fmt.Fprintf(&b, "File: %s\n%s\n", call.Input.Path, call.Result.Content)
		}
		b.WriteString("</source_code>")
	}
	return b.String()
}

// SetAnswer stores the final root-cause answer for post-processing.
func (m *StateManager) SetAnswer(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answer = text
}

// GetAnswer returns the stored root-cause answer ("" until SetAnswer).
func (m *StateManager) GetAnswer() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.answer
}
