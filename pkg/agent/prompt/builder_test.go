package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/triage-labs/sleuth/pkg/models"
)

func TestLogSearchUser(t *testing.T) {
	b := NewBuilder("/repo", "Monorepo with an orders service.")

	msg := b.LogSearchUser(LogSearchParams{
		UserQuery:         "orders failing",
		Request:           "find checkout errors",
		Facets:            map[string][]string{"service": {"orders", "checkout"}},
		QueryInstructions: "use level: filters",
		RemainingQueries:  7,
		History: []models.LogSearchToolCallWithResult{{
			Input: models.LogSearchInput{Query: "level:error", Start: "a", End: "b"},
			Error: models.NewToolCallError(models.ToolCallTypeLogSearch, "backend down"),
		}},
	})

	assert.Contains(t, msg, "orders failing")
	assert.Contains(t, msg, "find checkout errors")
	assert.Contains(t, msg, "orders, checkout")
	assert.Contains(t, msg, "use level: filters")
	assert.Contains(t, msg, "Monorepo with an orders service.")
	assert.Contains(t, msg, "backend down")
	assert.Contains(t, msg, "7 more queries")
}

func TestCodeSearchUser(t *testing.T) {
	b := NewBuilder("/repo", "")

	msg := b.CodeSearchUser(CodeSearchParams{
		UserQuery:    "payments failing",
		Request:      "look at payments",
		FilesRead:    []string{"/repo/pay.go"},
		RemainingOps: 3,
	})

	assert.Contains(t, msg, "Repository root: /repo")
	assert.Contains(t, msg, "do not re-read")
	assert.Contains(t, msg, "/repo/pay.go")
	assert.Contains(t, msg, "3 more search turns")
}

func TestReviewerMessages(t *testing.T) {
	b := NewBuilder("/repo", "")
	msgs := b.ReviewerMessages("why down", "pool exhausted", "evidence block")

	assert.Len(t, msgs, 2)
	assert.Contains(t, msgs[1].Content, "why down")
	assert.Contains(t, msgs[1].Content, "pool exhausted")
	assert.Contains(t, msgs[1].Content, "evidence block")
}

func TestCodePostprocessorMessagesNumbersLines(t *testing.T) {
	b := NewBuilder("/repo", "")
	msgs := b.CodePostprocessorMessages("answer", []models.CatToolCallWithResult{{
		Input: models.CatRequest{Path: "/repo/a.go"},
		Result: &models.CatResult{
			Type:         models.OutputTypeResult,
			ToolCallType: models.ToolCallTypeCat,
			Content:      "package a\nfunc A() {}\n",
		},
	}})

	assert.Contains(t, msgs[1].Content, "   1| package a")
	assert.Contains(t, msgs[1].Content, "   2| func A() {}")
}
