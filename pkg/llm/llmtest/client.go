// Package llmtest provides a scripted llm.Client for tests. Each Generate
// call consumes the next scripted response in order.
package llmtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/triage-labs/sleuth/pkg/llm"
)

// Response scripts one Generate call.
type Response struct {
	// TextChunks are streamed as individual TextChunk values.
	TextChunks []string
	// ToolCalls are emitted after the text.
	ToolCalls []llm.ToolCall
	// Err, when set, is emitted as a terminal ErrorChunk after the text;
	// ToolCalls are then not emitted.
	Err string
	// GenerateErr, when set, fails the Generate call itself.
	GenerateErr error
}

// Client replays scripted responses. Safe for concurrent use; calls are
// consumed in FIFO order.
type Client struct {
	mu        sync.Mutex
	script    []Response
	calls     []*llm.GenerateInput
	repeatLast bool
}

// NewClient creates a scripted client.
func NewClient(script ...Response) *Client {
	return &Client{script: script}
}

// RepeatLast makes the final scripted response repeat forever instead of
// exhausting. Useful for iteration-cap tests.
func (c *Client) RepeatLast() *Client {
	c.repeatLast = true
	return c
}

// Calls returns the inputs of every Generate call made so far.
func (c *Client) Calls() []*llm.GenerateInput {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*llm.GenerateInput, len(c.calls))
	copy(out, c.calls)
	return out
}

// Generate implements llm.Client.
func (c *Client) Generate(ctx context.Context, input *llm.GenerateInput) (<-chan llm.Chunk, error) {
	c.mu.Lock()
	c.calls = append(c.calls, input)
	if len(c.script) == 0 {
		c.mu.Unlock()
		return nil, fmt.Errorf("llmtest: script exhausted after %d calls", len(c.calls)-1)
	}
	resp := c.script[0]
	if len(c.script) > 1 || !c.repeatLast {
		c.script = c.script[1:]
	}
	c.mu.Unlock()

	if resp.GenerateErr != nil {
		return nil, resp.GenerateErr
	}

	chunks := make(chan llm.Chunk, len(resp.TextChunks)+len(resp.ToolCalls)+2)
	go func() {
		defer close(chunks)
		for _, text := range resp.TextChunks {
			select {
			case chunks <- &llm.TextChunk{Content: text}:
			case <-ctx.Done():
				return
			}
		}
		if resp.Err != "" {
			chunks <- &llm.ErrorChunk{Message: resp.Err, Code: "scripted"}
			return
		}
		for _, tc := range resp.ToolCalls {
			select {
			case chunks <- &llm.ToolCallChunk{CallID: tc.ID, Name: tc.Name, Arguments: tc.Arguments}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return chunks, nil
}

// Close implements llm.Client.
func (c *Client) Close() error { return nil }
