package session

import "time"

// Role is the author of a turn.
type Role string

const (
	RoleUser       Role = "user"
	RoleModel      Role = "model"
	RoleToolResult Role = "tool_result"
)

// FunctionCall is a tool invocation requested by the model. Name is always
// "<backend>_<tool>".
type FunctionCall struct {
	ID   string                 `json:"id,omitempty"`
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

// ToolResult answers one FunctionCall. Content is the JSON payload shown to the model.
type ToolResult struct {
	CallID  string `json:"callId,omitempty"`
	Name    string `json:"name"`
	Content string `json:"content"`
	IsError bool   `json:"isError,omitempty"`
}

// Turn is one entry of a conversation.
type Turn struct {
	Role      Role           `json:"role"`
	Content   string         `json:"content,omitempty"`
	Calls     []FunctionCall `json:"calls,omitempty"`
	Results   []ToolResult   `json:"results,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Info summarizes a session.
type Info struct {
	ID        string    `json:"id"`
	Turns     int       `json:"turns"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
