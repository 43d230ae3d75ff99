package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUserMessageRenderedContent(t *testing.T) {
	t.Run("plain content", func(t *testing.T) {
		msg := UserMessage{Content: "checkout is failing"}
		assert.Equal(t, "checkout is failing", msg.RenderedContent())
	})

	t.Run("materialized context items are appended", func(t *testing.T) {
		msg := UserMessage{
			Content: "checkout is failing",
			MaterializedContextItems: []MaterializedContextItem{
				{Type: "sentryEvent", Title: "TypeError in pay()", Content: "stack trace here"},
			},
		}
		rendered := msg.RenderedContent()
		assert.Contains(t, rendered, "checkout is failing")
		assert.Contains(t, rendered, "[sentryEvent] TypeError in pay()")
		assert.Contains(t, rendered, "stack trace here")
	})
}

func TestAssistantMessageRenderedContent(t *testing.T) {
	ts := time.Now()

	t.Run("empty turn renders empty", func(t *testing.T) {
		assert.Equal(t, "", AssistantMessage{}.RenderedContent())
	})

	t.Run("sections joined by blank lines, empty skipped", func(t *testing.T) {
		msg := AssistantMessage{
			Steps: []Step{
				ReasoningStep{ID: "r1", Timestamp: ts, Data: "looked at pool metrics"},
			},
			Response: "Pool exhausted.",
		}
		rendered := msg.RenderedContent()
		parts := strings.Split(rendered, "\n\n")
		assert.Len(t, parts, 2)
		assert.Contains(t, parts[0], "Gathered Context:")
		assert.Equal(t, "Pool exhausted.", parts[1])
	})

	t.Run("error-only turn renders the error", func(t *testing.T) {
		msg := AssistantMessage{Error: "run cancelled"}
		assert.Equal(t, "run cancelled", msg.RenderedContent())
	})
}

func TestRenderGatheredContext(t *testing.T) {
	ts := time.Now()

	t.Run("empty transcript", func(t *testing.T) {
		assert.Equal(t, "", RenderGatheredContext(nil))
	})

	t.Run("mixed steps", func(t *testing.T) {
		steps := []Step{
			LogSearchStep{
				ID: "l1", Timestamp: ts,
				Data: []LogSearchToolCallWithResult{{
					Input:  LogSearchInput{Query: "level:error", Start: "2026-08-01T00:00:00Z", End: "2026-08-02T00:00:00Z"},
					Result: &LogSearchResult{Type: OutputTypeResult, ToolCallType: ToolCallTypeLogSearch},
				}},
			},
			CodeSearchStep{
				ID: "c1", Timestamp: ts,
				Data: []CodeToolCallItem{
					CatToolCallWithResult{
						Input:  CatRequest{Path: "/repo/pay.go"},
						Result: &CatResult{Type: OutputTypeResult, ToolCallType: ToolCallTypeCat, Content: "package pay"},
					},
				},
			},
			ReviewStep{ID: "v1", Timestamp: ts, Content: "complete", Accepted: true},
		}
		rendered := RenderGatheredContext(steps)
		assert.Contains(t, rendered, `log query "level:error"`)
		assert.Contains(t, rendered, "read /repo/pay.go")
		assert.Contains(t, rendered, "review (accepted=true)")
	})
}

func TestStepTaxonomy(t *testing.T) {
	ts := time.Now()
	steps := []Step{
		LogSearchStep{ID: "1", Timestamp: ts},
		CodeSearchStep{ID: "2", Timestamp: ts},
		ReasoningStep{ID: "3", Timestamp: ts},
		ReviewStep{ID: "4", Timestamp: ts},
		LogPostprocessingStep{ID: "5", Timestamp: ts},
		CodePostprocessingStep{ID: "6", Timestamp: ts},
	}
	wantTypes := []StepType{
		StepTypeLogSearch, StepTypeCodeSearch, StepTypeReasoning,
		StepTypeReview, StepTypeLogPostprocessing, StepTypeCodePostprocessing,
	}
	for i, step := range steps {
		assert.Equal(t, wantTypes[i], step.StepType())
		assert.Equal(t, ts, step.StepTimestamp())
	}
}
