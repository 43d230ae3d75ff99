package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolCallWithResultMarshal(t *testing.T) {
	ts := time.Date(2026, 8, 2, 12, 0, 0, 0, time.UTC)

	t.Run("success output is tagged result", func(t *testing.T) {
		call := CatToolCallWithResult{
			Timestamp: ts,
			Input:     CatRequest{Path: "/a/b/main.go"},
			Result: &CatResult{
				Type:         OutputTypeResult,
				ToolCallType: ToolCallTypeCat,
				Content:      "package main",
			},
		}
		raw, err := json.Marshal(call)
		require.NoError(t, err)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(raw, &decoded))
		output := decoded["output"].(map[string]any)
		assert.Equal(t, "result", output["type"])
		assert.Equal(t, "catRequest", output["toolCallType"])
		assert.Equal(t, "package main", output["content"])
	})

	t.Run("error output is tagged error", func(t *testing.T) {
		call := GrepToolCallWithResult{
			Timestamp: ts,
			Input:     GrepRequest{Pattern: "foo"},
			Error:     NewToolCallError(ToolCallTypeGrep, "exit status 2"),
		}
		raw, err := json.Marshal(call)
		require.NoError(t, err)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(raw, &decoded))
		output := decoded["output"].(map[string]any)
		assert.Equal(t, "error", output["type"])
		assert.Equal(t, "grepRequest", output["toolCallType"])
		assert.Equal(t, "exit status 2", output["error"])
	})

	t.Run("IsError reflects the populated half", func(t *testing.T) {
		ok := LogSearchToolCallWithResult{Result: &LogSearchResult{}}
		failed := LogSearchToolCallWithResult{Error: NewToolCallError(ToolCallTypeLogSearch, "backend down")}
		assert.False(t, ok.IsError())
		assert.True(t, failed.IsError())
	})
}

func TestCodeToolCallItemDiscriminants(t *testing.T) {
	var items []CodeToolCallItem = []CodeToolCallItem{
		CatToolCallWithResult{},
		GrepToolCallWithResult{},
	}
	assert.Equal(t, ToolCallTypeCat, items[0].CodeToolCallType())
	assert.Equal(t, ToolCallTypeGrep, items[1].CodeToolCallType())
}
