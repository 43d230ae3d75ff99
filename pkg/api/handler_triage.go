package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/triage-labs/sleuth/pkg/agent"
	"github.com/triage-labs/sleuth/pkg/agent/pipeline"
	"github.com/triage-labs/sleuth/pkg/events"
	"github.com/triage-labs/sleuth/pkg/models"
)

// updateBufferSize bounds the sink-to-writer channel. The sink must never
// block, so updates beyond this backlog are dropped with a warning.
const updateBufferSize = 1024

// TriageRequest is the POST /api/v1/triage body.
type TriageRequest struct {
	Query       string        `json:"query" binding:"required"`
	ChatHistory []HistoryTurn `json:"chatHistory,omitempty"`
}

// HistoryTurn is one committed turn of a prior conversation.
type HistoryTurn struct {
	Role    string `json:"role" binding:"required,oneof=user assistant"`
	Content string `json:"content"`
}

// resultEvent terminates the SSE stream.
type resultEvent struct {
	Answer string        `json:"answer"`
	Steps  []models.Step `json:"steps"`
	Error  string        `json:"error,omitempty"`
}

func (s *Server) handleTriage(c *gin.Context) {
	var req TriageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	history := make([]models.ChatMessage, 0, len(req.ChatHistory))
	for _, turn := range req.ChatHistory {
		switch turn.Role {
		case "user":
			history = append(history, models.UserMessage{Content: turn.Content})
		case "assistant":
			history = append(history, models.AssistantMessage{Response: turn.Content})
		}
	}

	updates := make(chan events.StreamUpdate, updateBufferSize)
	sink := func(u events.StreamUpdate) {
		select {
		case updates <- u:
		default:
			slog.Warn("SSE update buffer full, dropping update", "type", u.UpdateType())
		}
	}

	// Client disconnect cancels the run.
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	state := agent.NewStateManager(history, sink)
	runner := pipeline.NewRunner(s.cfg, s.client, s.obs, state, req.Query)

	done := make(chan resultEvent, 1)
	go func() {
		defer close(updates)
		result, err := runner.Run(ctx, req.Query)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				slog.Info("Triage run cancelled by client")
				return
			}
			// Fatal failure: the partial transcript still goes back.
			done <- resultEvent{
				Steps: state.GetSteps(agent.ScopeCurrent),
				Error: err.Error(),
			}
			return
		}
		done <- resultEvent{Answer: result.Answer, Steps: result.Steps}
	}()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Stream(func(w io.Writer) bool {
		update, ok := <-updates
		if !ok {
			select {
			case result := <-done:
				c.SSEvent("result", result)
			default:
			}
			return false
		}
		c.SSEvent("update", update)
		return true
	})
}
