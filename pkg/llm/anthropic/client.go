// Package anthropic adapts the Anthropic Messages API to the llm.Client
// streaming contract.
package anthropic

import (
	"context"
	"encoding/json"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/triage-labs/sleuth/pkg/llm"
)

const defaultMaxTokens = 8192

// Client streams completions from the Anthropic API.
type Client struct {
	sdk       sdk.Client
	maxTokens int64
}

// Config parameterizes the adapter.
type Config struct {
	APIKey    string
	BaseURL   string
	MaxTokens int
}

// New creates an Anthropic-backed llm.Client.
func New(cfg Config) *Client {
	opts := []option.RequestOption{option.WithAPIKey(strings.TrimSpace(cfg.APIKey))}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(base, "/")))
	}
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Client{sdk: sdk.NewClient(opts...), maxTokens: maxTokens}
}

// Generate implements llm.Client. The stream goroutine exits when the
// provider stream ends or ctx is cancelled; either way the channel closes.
func (c *Client) Generate(ctx context.Context, input *llm.GenerateInput) (<-chan llm.Chunk, error) {
	params, err := c.buildParams(input)
	if err != nil {
		return nil, err
	}

	chunks := make(chan llm.Chunk, 64)
	go func() {
		defer close(chunks)
		c.stream(ctx, params, chunks)
	}()
	return chunks, nil
}

// Close implements llm.Client. The SDK holds no persistent connection.
func (c *Client) Close() error { return nil }

func (c *Client) stream(ctx context.Context, params sdk.MessageNewParams, chunks chan<- llm.Chunk) {
	stream := c.sdk.Messages.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	// Tool-call argument JSON arrives as partial deltas per content block;
	// accumulate per block index and emit once complete.
	type toolBuffer struct {
		id, name string
		args     strings.Builder
	}
	toolBuffers := map[int64]*toolBuffer{}

	emit := func(chunk llm.Chunk) bool {
		select {
		case chunks <- chunk:
			return true
		case <-ctx.Done():
			return false
		}
	}
	flushTool := func(index int64) bool {
		tb, ok := toolBuffers[index]
		if !ok {
			return true
		}
		delete(toolBuffers, index)
		args := tb.args.String()
		if strings.TrimSpace(args) == "" {
			args = "{}"
		}
		return emit(&llm.ToolCallChunk{CallID: tb.id, Name: tb.name, Arguments: args})
	}

	var usage *llm.UsageChunk

	for stream.Next() {
		event := stream.Current()
		switch ev := event.AsAny().(type) {
		case sdk.ContentBlockStartEvent:
			if block, ok := ev.ContentBlock.AsAny().(sdk.ToolUseBlock); ok {
				tb := &toolBuffer{id: block.ID, name: block.Name}
				if raw := string(block.Input); raw != "" && raw != "{}" && raw != "null" {
					tb.args.WriteString(raw)
				}
				toolBuffers[ev.Index] = tb
			}
		case sdk.ContentBlockDeltaEvent:
			switch delta := ev.Delta.AsAny().(type) {
			case sdk.TextDelta:
				if delta.Text != "" && !emit(&llm.TextChunk{Content: delta.Text}) {
					return
				}
			case sdk.ThinkingDelta:
				if delta.Thinking != "" && !emit(&llm.ThinkingChunk{Content: delta.Thinking}) {
					return
				}
			case sdk.InputJSONDelta:
				if tb := toolBuffers[ev.Index]; tb != nil {
					tb.args.WriteString(delta.PartialJSON)
				}
			}
		case sdk.ContentBlockStopEvent:
			if !flushTool(ev.Index) {
				return
			}
		case sdk.MessageStartEvent:
			if usage == nil {
				usage = &llm.UsageChunk{}
			}
			usage.InputTokens = int(ev.Message.Usage.InputTokens)
		case sdk.MessageDeltaEvent:
			if usage == nil {
				usage = &llm.UsageChunk{}
			}
			usage.OutputTokens = int(ev.Usage.OutputTokens)
		}
	}

	if err := stream.Err(); err != nil {
		if ctx.Err() != nil {
			return // caller surfaces ctx.Err(); no provider error chunk
		}
		emit(&llm.ErrorChunk{Message: err.Error(), Code: "anthropic_stream_error"})
		return
	}

	// Flush any tool blocks that never saw a stop event.
	for index := range toolBuffers {
		if !flushTool(index) {
			return
		}
	}

	if usage != nil {
		usage.TotalTokens = usage.InputTokens + usage.OutputTokens
		emit(usage)
	}
}

func (c *Client) buildParams(input *llm.GenerateInput) (sdk.MessageNewParams, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(input.Model),
		MaxTokens: c.maxTokens,
	}
	if input.MaxTokens > 0 {
		params.MaxTokens = int64(input.MaxTokens)
	}

	var system []sdk.TextBlockParam
	var messages []sdk.MessageParam
	for _, msg := range input.Messages {
		switch msg.Role {
		case llm.RoleSystem:
			system = append(system, sdk.TextBlockParam{Text: msg.Content})
		case llm.RoleUser:
			messages = append(messages, sdk.NewUserMessage(sdk.NewTextBlock(msg.Content)))
		case llm.RoleAssistant:
			blocks := make([]sdk.ContentBlockParamUnion, 0, 1+len(msg.ToolCalls))
			if msg.Content != "" {
				blocks = append(blocks, sdk.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				blocks = append(blocks, sdk.NewToolUseBlock(tc.ID, json.RawMessage(tc.Arguments), tc.Name))
			}
			messages = append(messages, sdk.NewAssistantMessage(blocks...))
		case llm.RoleTool:
			messages = append(messages, sdk.NewUserMessage(
				sdk.NewToolResultBlock(msg.ToolCallID, msg.Content, false)))
		}
	}
	params.System = system
	params.Messages = messages

	if len(input.Tools) > 0 {
		tools := make([]sdk.ToolUnionParam, 0, len(input.Tools))
		for _, t := range input.Tools {
			tools = append(tools, sdk.ToolUnionParam{
				OfTool: &sdk.ToolParam{
					Name:        t.Name,
					Description: sdk.String(t.Description),
					InputSchema: rawSchema(t.Parameters),
				},
			})
		}
		params.Tools = tools

		switch input.ToolChoice.Mode {
		case llm.ToolChoiceRequired:
			params.ToolChoice = sdk.ToolChoiceUnionParam{
				OfAny: &sdk.ToolChoiceAnyParam{},
			}
		case llm.ToolChoiceTool:
			params.ToolChoice = sdk.ToolChoiceUnionParam{
				OfTool: &sdk.ToolChoiceToolParam{Name: input.ToolChoice.Tool},
			}
		default:
			params.ToolChoice = sdk.ToolChoiceUnionParam{
				OfAuto: &sdk.ToolChoiceAutoParam{},
			}
		}
	}
	return params, nil
}

// rawSchema converts a JSON Schema document into the SDK's input-schema
// shape. A schema that fails to decode degrades to an untyped object.
func rawSchema(schema string) sdk.ToolInputSchemaParam {
	var doc struct {
		Properties map[string]any `json:"properties"`
		Required   []string       `json:"required"`
	}
	if err := json.Unmarshal([]byte(schema), &doc); err != nil {
		return sdk.ToolInputSchemaParam{}
	}
	return sdk.ToolInputSchemaParam{
		Properties: doc.Properties,
		Required:   doc.Required,
	}
}
