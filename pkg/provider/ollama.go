package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/ollama/ollama/api"

	"github.com/harun/toolgate/pkg/session"
)

// DefaultOllamaURL is the local Ollama server.
const DefaultOllamaURL = "http://localhost:11434"

// ollamaCompleter talks to a local Ollama server. It needs no credential.
type ollamaCompleter struct {
	client   *api.Client
	settings Settings
}

func newOllama(s Settings, opts Options) (*ollamaCompleter, error) {
	if s.BaseURL == "" {
		s.BaseURL = DefaultOllamaURL
	}
	base, err := url.Parse(s.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama base url: %w", err)
	}
	return &ollamaCompleter{
		client:   api.NewClient(base, opts.HTTPClient),
		settings: s,
	}, nil
}

// ollamaMessage mirrors the wire shape of api.Message.
type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaToolCall struct {
	Function struct {
		Name      string                 `json:"name"`
		Arguments map[string]interface{} `json:"arguments"`
	} `json:"function"`
}

func (p *ollamaCompleter) complete(ctx context.Context, req completionRequest) (*completion, error) {
	messages, err := ollamaMessages(req.System, req.Turns)
	if err != nil {
		return nil, err
	}

	stream := false
	chatReq := &api.ChatRequest{
		Model:    p.settings.Model,
		Messages: messages,
		Stream:   &stream,
		Options:  map[string]interface{}{},
	}
	if p.settings.Temperature > 0 {
		chatReq.Options["temperature"] = p.settings.Temperature
	}
	if p.settings.TopP > 0 {
		chatReq.Options["top_p"] = p.settings.TopP
	}
	if p.settings.MaxTokens > 0 {
		chatReq.Options["num_predict"] = p.settings.MaxTokens
	}
	if len(req.Tools) > 0 {
		tools, err := ollamaTools(req.Tools)
		if err != nil {
			return nil, err
		}
		chatReq.Tools = tools
	}

	var final api.ChatResponse
	err = p.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		final = resp
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := &completion{
		Text: final.Message.Content,
		Usage: Usage{
			InputTokens:  final.PromptEvalCount,
			OutputTokens: final.EvalCount,
		},
	}

	raw, err := json.Marshal(final.Message.ToolCalls)
	if err != nil {
		return nil, fmt.Errorf("failed to read tool calls: %w", err)
	}
	var calls []ollamaToolCall
	if err := json.Unmarshal(raw, &calls); err != nil {
		return nil, fmt.Errorf("failed to read tool calls: %w", err)
	}
	for _, tc := range calls {
		out.Calls = append(out.Calls, FunctionCall{Name: tc.Function.Name, Args: tc.Function.Arguments})
	}

	switch {
	case len(out.Calls) > 0:
		out.Finish = FinishFunctionCall
	case final.DoneReason == "length":
		out.Finish = FinishLength
	default:
		out.Finish = FinishStop
	}
	return out, nil
}

func (p *ollamaCompleter) ping(ctx context.Context) error {
	return p.client.Heartbeat(ctx)
}

func (p *ollamaCompleter) classify(err error) error {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		return statusError(statusErr.StatusCode, err)
	}
	return err
}

// ollamaMessages builds api.Message values through their JSON form, which is stable
// across Ollama releases while the Go argument types are not.
func ollamaMessages(system string, turns []Turn) ([]api.Message, error) {
	wire := make([]ollamaMessage, 0, len(turns)+1)
	if system != "" {
		wire = append(wire, ollamaMessage{Role: "system", Content: system})
	}

	for _, t := range turns {
		switch t.Role {
		case session.RoleUser:
			wire = append(wire, ollamaMessage{Role: "user", Content: t.Content})
		case session.RoleModel:
			msg := ollamaMessage{Role: "assistant", Content: t.Content}
			for _, call := range t.Calls {
				var tc ollamaToolCall
				tc.Function.Name = call.Name
				tc.Function.Arguments = call.Args
				msg.ToolCalls = append(msg.ToolCalls, tc)
			}
			wire = append(wire, msg)
		case session.RoleToolResult:
			for _, r := range t.Results {
				wire = append(wire, ollamaMessage{Role: "tool", Content: r.Content})
			}
		default:
			return nil, fmt.Errorf("unsupported turn role %q", t.Role)
		}
	}

	raw, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("failed to encode messages: %w", err)
	}
	var messages []api.Message
	if err := json.Unmarshal(raw, &messages); err != nil {
		return nil, fmt.Errorf("failed to encode messages: %w", err)
	}
	return messages, nil
}

func ollamaTools(decls []ToolDecl) (api.Tools, error) {
	wire := make([]map[string]interface{}, 0, len(decls))
	for _, d := range decls {
		wire = append(wire, map[string]interface{}{
			"type": "function",
			"function": map[string]interface{}{
				"name":        d.Name,
				"description": d.Description,
				"parameters":  normalizedSchema(d.InputSchema),
			},
		})
	}

	raw, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tools: %w", err)
	}
	var tools api.Tools
	if err := json.Unmarshal(raw, &tools); err != nil {
		return nil, fmt.Errorf("failed to encode tools: %w", err)
	}
	return tools, nil
}
