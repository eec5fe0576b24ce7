package backend

import (
	"context"
	"encoding/json"
	"fmt"
)

// Backend names. They double as the tool name prefix ("identity_", "graph_").
const (
	Identity = "identity"
	Graph    = "graph"
)

// Default service endpoints.
const (
	DefaultIdentityURL = "http://localhost:8001"
	DefaultGraphURL    = "http://localhost:8002"
)

// Graph backend tools.
const (
	ToolGraphSchema = "get_neo4j_schema"
	ToolGraphRead   = "read_neo4j_cypher"
	ToolGraphWrite  = "write_neo4j_cypher"
)

// Identity backend tools used outside the model loop.
const (
	ToolListUsers  = "list-users"
	ToolCountUsers = "count-users"
)

// Client is the contract shared by both tool services.
type Client interface {
	Name() string
	CallTool(ctx context.Context, tool string, args map[string]interface{}) (*ToolResponse, error)
	ListTools(ctx context.Context) ([]ToolInfo, error)
	HealthCheck(ctx context.Context) error
}

// ToolInfo describes one tool exposed by a backend. Name has no backend prefix.
type ToolInfo struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	InputSchema map[string]interface{} `json:"inputSchema,omitempty"`
}

// UnmarshalJSON accepts both a bare tool name and a tool object.
func (t *ToolInfo) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*t = ToolInfo{Name: name}
		return nil
	}

	type plain ToolInfo
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("invalid tool entry: %w", err)
	}
	*t = ToolInfo(p)
	return nil
}

// ToolResponse is the wire result of a tool call.
type ToolResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Decode unmarshals Data into v.
func (r *ToolResponse) Decode(v interface{}) error {
	if len(r.Data) == 0 {
		return fmt.Errorf("tool response has no data")
	}
	return json.Unmarshal(r.Data, v)
}

// Value returns Data as a generic JSON value, or nil when empty.
func (r *ToolResponse) Value() interface{} {
	if len(r.Data) == 0 {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(r.Data, &v); err != nil {
		return string(r.Data)
	}
	return v
}

type toolRequest struct {
	Arguments map[string]interface{} `json:"arguments"`
}

type toolsResponse struct {
	Tools []ToolInfo `json:"tools"`
}
