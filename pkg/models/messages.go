package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ChatRole identifies the author of a chat message.
type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// ChatMessage is one committed turn of the conversation the agent was
// constructed with. Exactly one of the two variants implements it.
type ChatMessage interface {
	ChatRole() ChatRole
}

// ContextItem is an opaque reference attached to a user turn (a saved log
// query, an issue id, ...). The host materializes items into concrete
// payloads before the turn is sent; the core never interprets Value.
type ContextItem struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// MaterializedContextItem is the host-resolved payload of a ContextItem.
type MaterializedContextItem struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// UserMessage is a user turn.
type UserMessage struct {
	Content                  string                    `json:"content"`
	ContextItems             []ContextItem             `json:"contextItems,omitempty"`
	MaterializedContextItems []MaterializedContextItem `json:"materializedContextItems,omitempty"`
}

// AssistantMessage is a committed assistant turn: the transcript of the run
// plus either a response or an error.
type AssistantMessage struct {
	Steps    []Step `json:"steps"`
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (m UserMessage) ChatRole() ChatRole      { return ChatRoleUser }
func (m AssistantMessage) ChatRole() ChatRole { return ChatRoleAssistant }

// RenderedContent returns the user turn's content with materialized context
// items appended, each under its title.
func (m UserMessage) RenderedContent() string {
	if len(m.MaterializedContextItems) == 0 {
		return m.Content
	}
	var b strings.Builder
	b.WriteString(m.Content)
	for _, item := range m.MaterializedContextItems {
		b.WriteString("\n\n")
		b.WriteString(fmt.Sprintf("[%s] %s\n%s", item.Type, item.Title, item.Content))
	}
	return b.String()
}

// RenderedContent flattens an assistant turn into a single content string:
// a "Gathered Context" block from the steps, then the response, then the
// error, separated by blank lines. Empty sections are skipped. Pure — tests
// drive it without a live model.
func (m AssistantMessage) RenderedContent() string {
	var sections []string
	if ctx := RenderGatheredContext(m.Steps); ctx != "" {
		sections = append(sections, ctx)
	}
	if m.Response != "" {
		sections = append(sections, m.Response)
	}
	if m.Error != "" {
		sections = append(sections, m.Error)
	}
	return strings.Join(sections, "\n\n")
}

// RenderGatheredContext formats a step transcript into the compact block
// embedded in model-facing history. Returns "" for an empty transcript.
func RenderGatheredContext(steps []Step) string {
	if len(steps) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Gathered Context:")
	for _, step := range steps {
		switch s := step.(type) {
		case LogSearchStep:
			for _, call := range s.Data {
				if call.IsError() {
					fmt.Fprintf(&b, "\n- log query %q failed: %s", call.Input.Query, call.Error.Error)
					continue
				}
				fmt.Fprintf(&b, "\n- log query %q (%s to %s): %d lines",
					call.Input.Query, call.Input.Start, call.Input.End, len(call.Result.Logs))
			}
		case CodeSearchStep:
			for _, item := range s.Data {
				switch call := item.(type) {
				case CatToolCallWithResult:
					if call.IsError() {
						fmt.Fprintf(&b, "\n- read %s failed: %s", call.Input.Path, call.Error.Error)
					} else {
						fmt.Fprintf(&b, "\n- read %s (%d bytes)", call.Input.Path, len(call.Result.Content))
					}
				case GrepToolCallWithResult:
					if call.IsError() {
						fmt.Fprintf(&b, "\n- grep %q failed: %s", call.Input.Pattern, call.Error.Error)
					} else {
						fmt.Fprintf(&b, "\n- grep %q matched:\n%s", call.Input.Pattern, indent(call.Result.Content, "    "))
					}
				}
			}
		case ReasoningStep:
			fmt.Fprintf(&b, "\n- reasoning: %s", s.Data)
		case ReviewStep:
			fmt.Fprintf(&b, "\n- review (accepted=%v): %s", s.Accepted, s.Content)
		case LogPostprocessingStep:
			for _, f := range s.Data {
				fmt.Fprintf(&b, "\n- log fact: %s — %s", f.Title, f.Fact)
			}
		case CodePostprocessingStep:
			for _, f := range s.Data {
				fmt.Fprintf(&b, "\n- code fact: %s — %s (%s:%d-%d)", f.Title, f.Fact, f.Filepath, f.StartLine, f.EndLine)
			}
		}
	}
	return b.String()
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
