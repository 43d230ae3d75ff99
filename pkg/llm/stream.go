package llm

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// PartialOutputError wraps a provider error that occurred after partial
// output was produced. Callers can inspect PartialText to include it in
// retry context or logs.
type PartialOutputError struct {
	Cause           error
	PartialText     string
	PartialThinking string
}

func (e *PartialOutputError) Error() string { return e.Cause.Error() }
func (e *PartialOutputError) Unwrap() error { return e.Cause }

// Response holds the fully-collected output of a streaming LLM call.
type Response struct {
	Text         string
	ThinkingText string
	ToolCalls    []ToolCall
	Usage        *TokenUsage
}

// StreamCallback is invoked for each text or thinking delta during stream
// collection. delta is the new content from this chunk only, not the
// accumulated text; consumers concatenate deltas locally. Callbacks must not
// block: they run inline with stream consumption.
type StreamCallback func(chunkType ChunkType, delta string)

// Collect drains an LLM chunk channel into a complete Response.
// Returns a *PartialOutputError if an ErrorChunk is received.
func Collect(stream <-chan Chunk) (*Response, error) {
	return CollectWithCallback(stream, nil)
}

// CollectWithCallback collects a stream while calling back for each text and
// thinking delta. The callback is optional (nil = buffered mode).
func CollectWithCallback(stream <-chan Chunk, callback StreamCallback) (*Response, error) {
	resp := &Response{}
	var textBuf, thinkingBuf strings.Builder

	for chunk := range stream {
		switch c := chunk.(type) {
		case *TextChunk:
			textBuf.WriteString(c.Content)
			if callback != nil && c.Content != "" {
				callback(ChunkTypeText, c.Content)
			}
		case *ThinkingChunk:
			thinkingBuf.WriteString(c.Content)
			if callback != nil && c.Content != "" {
				callback(ChunkTypeThinking, c.Content)
			}
		case *ToolCallChunk:
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{
				ID:        c.CallID,
				Name:      c.Name,
				Arguments: c.Arguments,
			})
		case *UsageChunk:
			resp.Usage = &TokenUsage{
				InputTokens:  c.InputTokens,
				OutputTokens: c.OutputTokens,
				TotalTokens:  c.TotalTokens,
			}
		case *ErrorChunk:
			return nil, &PartialOutputError{
				Cause: fmt.Errorf("LLM error: %s (code: %s, retryable: %v)",
					c.Message, c.Code, c.Retryable),
				PartialText:     textBuf.String(),
				PartialThinking: thinkingBuf.String(),
			}
		}
	}

	resp.Text = textBuf.String()
	resp.ThinkingText = thinkingBuf.String()
	return resp, nil
}

// Call performs a single LLM call with context cancellation support and
// returns the complete collected response. Cancellation observed during the
// stream is surfaced as ctx.Err(), never as a provider error.
func Call(ctx context.Context, client Client, input *GenerateInput, callback StreamCallback) (*Response, error) {
	// Derive a cancellable context so the producer goroutine in Generate is
	// always cleaned up when we return.
	llmCtx, llmCancel := context.WithCancel(ctx)
	defer llmCancel()

	stream, err := client.Generate(llmCtx, input)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("LLM Generate failed: %w", err)
	}

	resp, err := CollectWithCallback(stream, callback)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return resp, nil
}

var thinkingBlockRe = regexp.MustCompile(`(?s)<thinking>.*?</thinking>\s*`)

// StripReasoning removes inline <thinking> blocks some models interleave
// with their answer text. Idempotent.
func StripReasoning(text string) string {
	return strings.TrimSpace(thinkingBlockRe.ReplaceAllString(text, ""))
}
