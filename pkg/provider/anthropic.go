package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/harun/toolgate/pkg/session"
)

// anthropicCompleter talks to Anthropic Claude
type anthropicCompleter struct {
	client   anthropic.Client
	settings Settings
}

func newAnthropic(s Settings, opts Options) *anthropicCompleter {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(s.APIKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(opts.HTTPClient),
	}
	if s.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(s.BaseURL))
	}
	return &anthropicCompleter{
		client:   anthropic.NewClient(reqOpts...),
		settings: s,
	}
}

func (p *anthropicCompleter) complete(ctx context.Context, req completionRequest) (*completion, error) {
	messages, err := anthropicMessages(req.Turns)
	if err != nil {
		return nil, err
	}

	maxTokens := p.settings.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.settings.Model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if p.settings.Temperature > 0 {
		params.Temperature = anthropic.Float(p.settings.Temperature)
	}
	if p.settings.TopP > 0 {
		params.TopP = anthropic.Float(p.settings.TopP)
	}
	if len(req.Tools) > 0 {
		params.Tools = anthropicTools(req.Tools)
	}

	response, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, err
	}

	out := &completion{
		Usage: Usage{
			InputTokens:  int(response.Usage.InputTokens),
			OutputTokens: int(response.Usage.OutputTokens),
		},
	}
	for _, block := range response.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			out.Text += b.Text
		case anthropic.ToolUseBlock:
			var args map[string]interface{}
			if raw := b.JSON.Input.Raw(); raw != "" {
				if err := json.Unmarshal([]byte(raw), &args); err != nil {
					return nil, fmt.Errorf("failed to parse tool input: %w", err)
				}
			}
			out.Calls = append(out.Calls, FunctionCall{ID: b.ID, Name: b.Name, Args: args})
		}
	}

	switch response.StopReason {
	case anthropic.StopReasonToolUse:
		out.Finish = FinishFunctionCall
	case anthropic.StopReasonMaxTokens:
		out.Finish = FinishLength
	default:
		out.Finish = FinishStop
	}
	return out, nil
}

func (p *anthropicCompleter) ping(ctx context.Context) error {
	_, err := p.client.Models.List(ctx, anthropic.ModelListParams{})
	return err
}

func (p *anthropicCompleter) classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return statusError(apiErr.StatusCode, err)
	}
	return err
}

func anthropicMessages(turns []Turn) ([]anthropic.MessageParam, error) {
	messages := make([]anthropic.MessageParam, 0, len(turns))

	for _, t := range turns {
		switch t.Role {
		case session.RoleUser:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(t.Content)))

		case session.RoleModel:
			var blocks []anthropic.ContentBlockParamUnion
			if t.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(t.Content))
			}
			for _, call := range t.Calls {
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, call.Args, call.Name))
			}
			if len(blocks) == 0 {
				continue
			}
			messages = append(messages, anthropic.NewAssistantMessage(blocks...))

		case session.RoleToolResult:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(t.Results))
			for _, r := range t.Results {
				blocks = append(blocks, anthropic.NewToolResultBlock(r.CallID, r.Content, r.IsError))
			}
			messages = append(messages, anthropic.NewUserMessage(blocks...))

		default:
			return nil, fmt.Errorf("unsupported turn role %q", t.Role)
		}
	}
	return messages, nil
}

func anthropicTools(decls []ToolDecl) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, 0, len(decls))
	for _, d := range decls {
		tool := anthropic.ToolParam{
			Name:        d.Name,
			Description: anthropic.String(d.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: schemaProperties(d.InputSchema),
				Required:   schemaRequired(d.InputSchema),
			},
		}
		tools = append(tools, anthropic.ToolUnionParam{OfTool: &tool})
	}
	return tools
}

func schemaProperties(schema map[string]interface{}) map[string]interface{} {
	if props, ok := schema["properties"].(map[string]interface{}); ok {
		return props
	}
	return map[string]interface{}{}
}

func schemaRequired(schema map[string]interface{}) []string {
	switch v := schema["required"].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// normalizedSchema returns a JSON schema object with at least type and properties.
func normalizedSchema(schema map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{
		"type":       "object",
		"properties": schemaProperties(schema),
	}
	if required := schemaRequired(schema); len(required) > 0 {
		out["required"] = required
	}
	return out
}
