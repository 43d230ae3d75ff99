// Package openai adapts the OpenAI chat-completions API to the llm.Client
// streaming contract.
package openai

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"

	"github.com/triage-labs/sleuth/pkg/llm"
)

// Client streams completions from the OpenAI API (or any compatible
// endpoint via BaseURL).
type Client struct {
	sdk       sdk.Client
	maxTokens int
}

// Config parameterizes the adapter.
type Config struct {
	APIKey    string
	BaseURL   string
	MaxTokens int
}

// New creates an OpenAI-backed llm.Client.
func New(cfg Config) *Client {
	opts := []option.RequestOption{option.WithAPIKey(strings.TrimSpace(cfg.APIKey))}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(base, "/")))
	}
	return &Client{sdk: sdk.NewClient(opts...), maxTokens: cfg.MaxTokens}
}

// Generate implements llm.Client.
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

func (c *Client) stream(ctx context.Context, params sdk.ChatCompletionNewParams, chunks chan<- llm.Chunk) {
	stream := c.sdk.Chat.Completions.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	emit := func(chunk llm.Chunk) bool {
		select {
		case chunks <- chunk:
			return true
		case <-ctx.Done():
			return false
		}
	}

	// Tool calls arrive incrementally, keyed by the API-provided index —
	// chunks may carry only a subset of calls, so never use the range index.
	type toolAcc struct {
		id, name string
		args     strings.Builder
	}
	toolCalls := map[int]*toolAcc{}
	flushed := false
	var usage *llm.UsageChunk

	flushToolCalls := func() bool {
		indices := make([]int, 0, len(toolCalls))
		for i := range toolCalls {
			indices = append(indices, i)
		}
		sort.Ints(indices)
		for _, i := range indices {
			acc := toolCalls[i]
			args := acc.args.String()
			if strings.TrimSpace(args) == "" {
				args = "{}"
			}
			if !emit(&llm.ToolCallChunk{CallID: acc.id, Name: acc.name, Arguments: args}) {
				return false
			}
		}
		return true
	}

	for stream.Next() {
		chunk := stream.Current()

		if chunk.JSON.Usage.Valid() && chunk.JSON.Usage.Raw() != "null" {
			usage = &llm.UsageChunk{
				InputTokens:  int(chunk.Usage.PromptTokens),
				OutputTokens: int(chunk.Usage.CompletionTokens),
				TotalTokens:  int(chunk.Usage.TotalTokens),
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]

		if choice.Delta.Content != "" {
			if !emit(&llm.TextChunk{Content: choice.Delta.Content}) {
				return
			}
		}
		for _, tc := range choice.Delta.ToolCalls {
			idx := int(tc.Index)
			if toolCalls[idx] == nil {
				toolCalls[idx] = &toolAcc{id: tc.ID}
			}
			if tc.Function.Name != "" {
				toolCalls[idx].name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				toolCalls[idx].args.WriteString(tc.Function.Arguments)
			}
		}

		if choice.FinishReason != "" && !flushed {
			if !flushToolCalls() {
				return
			}
			flushed = true
			// Keep reading: a final usage chunk may still arrive.
		}
	}

	if err := stream.Err(); err != nil {
		if ctx.Err() != nil {
			return
		}
		emit(&llm.ErrorChunk{Message: err.Error(), Code: "openai_stream_error"})
		return
	}

	if !flushed && !flushToolCalls() {
		return
	}
	if usage != nil {
		emit(usage)
	}
}

func (c *Client) buildParams(input *llm.GenerateInput) (sdk.ChatCompletionNewParams, error) {
	params := sdk.ChatCompletionNewParams{
		Model: shared.ChatModel(input.Model),
	}
	maxTokens := input.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	if maxTokens > 0 {
		params.MaxCompletionTokens = sdk.Int(int64(maxTokens))
	}
	params.StreamOptions.IncludeUsage = sdk.Bool(true)

	messages := make([]sdk.ChatCompletionMessageParamUnion, 0, len(input.Messages))
	for _, msg := range input.Messages {
		switch msg.Role {
		case llm.RoleSystem:
			messages = append(messages, sdk.SystemMessage(msg.Content))
		case llm.RoleUser:
			messages = append(messages, sdk.UserMessage(msg.Content))
		case llm.RoleAssistant:
			assistant := sdk.ChatCompletionAssistantMessageParam{}
			if msg.Content != "" {
				assistant.Content.OfString = sdk.String(msg.Content)
			}
			for _, tc := range msg.ToolCalls {
				assistant.ToolCalls = append(assistant.ToolCalls, sdk.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &sdk.ChatCompletionMessageFunctionToolCallParam{
						ID: tc.ID,
						Function: sdk.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      tc.Name,
							Arguments: tc.Arguments,
						},
					},
				})
			}
			messages = append(messages, sdk.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		case llm.RoleTool:
			messages = append(messages, sdk.ToolMessage(msg.Content, msg.ToolCallID))
		}
	}
	params.Messages = messages

	if len(input.Tools) > 0 {
		tools := make([]sdk.ChatCompletionToolUnionParam, 0, len(input.Tools))
		for _, t := range input.Tools {
			var schema map[string]any
			if err := json.Unmarshal([]byte(t.Parameters), &schema); err != nil {
				schema = map[string]any{"type": "object"}
			}
			tools = append(tools, sdk.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
				Name:        t.Name,
				Description: sdk.String(t.Description),
				Parameters:  schema,
			}))
		}
		params.Tools = tools

		switch input.ToolChoice.Mode {
		case llm.ToolChoiceRequired:
			params.ToolChoice = sdk.ChatCompletionToolChoiceOptionUnionParam{
				OfAuto: sdk.String("required"),
			}
		case llm.ToolChoiceTool:
			params.ToolChoice = sdk.ChatCompletionToolChoiceOptionUnionParam{
				OfFunctionToolChoice: &sdk.ChatCompletionNamedToolChoiceParam{
					Function: sdk.ChatCompletionNamedToolChoiceFunctionParam{
						Name: input.ToolChoice.Tool,
					},
				},
			}
		}
	}
	return params, nil
}
