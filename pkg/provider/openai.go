package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/harun/toolgate/pkg/session"
)

// openAICompleter talks to any OpenAI-compatible chat completions API.
type openAICompleter struct {
	client   openai.Client
	settings Settings
}

func newOpenAI(s Settings, opts Options) *openAICompleter {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(s.APIKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(opts.HTTPClient),
	}
	if s.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(s.BaseURL))
	}
	return &openAICompleter{
		client:   openai.NewClient(reqOpts...),
		settings: s,
	}
}

func (p *openAICompleter) complete(ctx context.Context, req completionRequest) (*completion, error) {
	messages, err := openAIMessages(req.System, req.Turns)
	if err != nil {
		return nil, err
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(p.settings.Model),
		Messages: messages,
	}
	if p.settings.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(p.settings.MaxTokens))
	}
	if p.settings.Temperature > 0 {
		params.Temperature = openai.Float(p.settings.Temperature)
	}
	if p.settings.TopP > 0 {
		params.TopP = openai.Float(p.settings.TopP)
	}
	if len(req.Tools) > 0 {
		params.Tools = openAITools(req.Tools)
	}

	response, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("no response choices returned")
	}

	choice := response.Choices[0]
	out := &completion{
		Text: choice.Message.Content,
		Usage: Usage{
			InputTokens:  int(response.Usage.PromptTokens),
			OutputTokens: int(response.Usage.CompletionTokens),
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		var args map[string]interface{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, fmt.Errorf("failed to parse tool arguments: %w", err)
			}
		}
		out.Calls = append(out.Calls, FunctionCall{ID: tc.ID, Name: tc.Function.Name, Args: args})
	}

	switch choice.FinishReason {
	case "tool_calls", "function_call":
		out.Finish = FinishFunctionCall
	case "length":
		out.Finish = FinishLength
	case "content_filter":
		out.Finish = FinishError
	default:
		out.Finish = FinishStop
	}
	return out, nil
}

func (p *openAICompleter) ping(ctx context.Context) error {
	_, err := p.client.Models.List(ctx)
	return err
}

func (p *openAICompleter) classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return statusError(apiErr.StatusCode, err)
	}
	return err
}

func openAIMessages(system string, turns []Turn) ([]openai.ChatCompletionMessageParamUnion, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns)+1)
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}

	for _, t := range turns {
		switch t.Role {
		case session.RoleUser:
			messages = append(messages, openai.UserMessage(t.Content))

		case session.RoleModel:
			if len(t.Calls) == 0 {
				messages = append(messages, openai.AssistantMessage(t.Content))
				continue
			}

			toolCalls := make([]openai.ChatCompletionMessageToolCall, 0, len(t.Calls))
			for _, call := range t.Calls {
				args, err := json.Marshal(call.Args)
				if err != nil {
					return nil, fmt.Errorf("failed to marshal tool arguments: %w", err)
				}
				toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCall{
					ID:   call.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunction{
						Name:      call.Name,
						Arguments: string(args),
					},
				})
			}
			assistant := openai.ChatCompletionMessage{
				Role:      "assistant",
				Content:   t.Content,
				ToolCalls: toolCalls,
			}
			messages = append(messages, assistant.ToParam())

		case session.RoleToolResult:
			for _, r := range t.Results {
				messages = append(messages, openai.ToolMessage(r.Content, r.CallID))
			}

		default:
			return nil, fmt.Errorf("unsupported turn role %q", t.Role)
		}
	}
	return messages, nil
}

func openAITools(decls []ToolDecl) []openai.ChatCompletionToolParam {
	tools := make([]openai.ChatCompletionToolParam, 0, len(decls))
	for _, d := range decls {
		tools = append(tools, openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        d.Name,
				Description: openai.String(d.Description),
				Parameters:  openai.FunctionParameters(normalizedSchema(d.InputSchema)),
			},
		})
	}
	return tools
}
