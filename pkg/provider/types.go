package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/harun/toolgate/pkg/session"
)

type (
	FunctionCall = session.FunctionCall
	ToolResult   = session.ToolResult
	Turn         = session.Turn
)

// FinishReason is the normalized reason a model turn ended.
type FinishReason string

const (
	FinishStop         FinishReason = "stop"
	FinishFunctionCall FinishReason = "function_call"
	FinishLength       FinishReason = "length"
	FinishError        FinishReason = "error"
)

// MaxMessageLength bounds a user message.
const MaxMessageLength = 10000

// RequestContext is caller metadata rendered into the system prompt.
type RequestContext struct {
	Realm             string `json:"realm,omitempty"`
	UserID            string `json:"userId,omitempty"`
	PreferredLanguage string `json:"preferredLanguage,omitempty"`
	Priority          string `json:"priority,omitempty"`
}

// ToolDecl declares a tool to the model. Name carries the backend prefix.
type ToolDecl struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema,omitempty"`
	Backend     string                 `json:"backend,omitempty"`
}

// Usage tracks token consumption
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// ChatRequest is one user message.
type ChatRequest struct {
	Message   string
	SessionID string
	Tools     []ToolDecl
	Context   *RequestContext
}

// ChatResponse is the model's answer to a user message.
type ChatResponse struct {
	Text          string         `json:"text"`
	FunctionCalls []FunctionCall `json:"functionCalls,omitempty"`
	FinishReason  FinishReason   `json:"finishReason"`
	Usage         Usage          `json:"usage"`
}

// ContinueResponse is the model's answer to tool results. Additional calls are
// surfaced, never executed here.
type ContinueResponse struct {
	Text                    string         `json:"text"`
	AdditionalFunctionCalls []FunctionCall `json:"additionalFunctionCalls,omitempty"`
	FinishReason            FinishReason   `json:"finishReason"`
	Usage                   Usage          `json:"usage"`
}

// Provider is the contract shared by every LLM backend.
type Provider interface {
	Name() string
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	ContinueWithToolResults(ctx context.Context, sessionID string, results []ToolResult, tools []ToolDecl) (*ContinueResponse, error)
	ClearHistory(sessionID string)
	IsAvailable(ctx context.Context) bool
	ListActiveSessions() []string
}

// renderSystemPrompt appends the request context to the base prompt.
func renderSystemPrompt(base string, rc *RequestContext) string {
	if rc == nil {
		return base
	}

	var lines []string
	if rc.Realm != "" {
		lines = append(lines, fmt.Sprintf("- Realm: %s", rc.Realm))
	}
	if rc.UserID != "" {
		lines = append(lines, fmt.Sprintf("- User ID: %s", rc.UserID))
	}
	if rc.PreferredLanguage != "" {
		lines = append(lines, fmt.Sprintf("- Preferred language: %s", rc.PreferredLanguage))
	}
	if rc.Priority != "" {
		lines = append(lines, fmt.Sprintf("- Priority: %s", rc.Priority))
	}
	if len(lines) == 0 {
		return base
	}

	var b strings.Builder
	b.WriteString(base)
	if base != "" {
		b.WriteString("\n\n")
	}
	b.WriteString("Request context:\n")
	b.WriteString(strings.Join(lines, "\n"))
	return b.String()
}

// requestTurns prepares stored history for a provider request. Leading turns before
// the first user turn are skipped, and calls or results without their counterpart are
// dropped so every request is well formed after trimming.
func requestTurns(history []Turn) []Turn {
	start := -1
	for i, t := range history {
		if t.Role == session.RoleUser {
			start = i
			break
		}
	}
	if start < 0 {
		return nil
	}
	history = history[start:]

	out := make([]Turn, 0, len(history))
	for i, t := range history {
		switch t.Role {
		case session.RoleModel:
			answered := i+1 < len(history) && history[i+1].Role == session.RoleToolResult
			if len(t.Calls) > 0 && !answered {
				t.Calls = nil
				if t.Content == "" {
					continue
				}
			}
		case session.RoleToolResult:
			if len(out) == 0 || out[len(out)-1].Role != session.RoleModel || len(out[len(out)-1].Calls) == 0 {
				continue
			}
		}
		out = append(out, t)
	}
	return out
}
