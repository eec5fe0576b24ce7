package orchestrator

import (
	"context"
	"encoding/json"

	"github.com/stretchr/testify/mock"

	"github.com/harun/toolgate/pkg/backend"
	"github.com/harun/toolgate/pkg/datasync"
	"github.com/harun/toolgate/pkg/provider"
	"github.com/harun/toolgate/pkg/toolregistry"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) Chat(ctx context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	ret := m.Called(ctx, req)
	resp, _ := ret.Get(0).(*provider.ChatResponse)
	return resp, ret.Error(1)
}

func (m *mockProvider) ContinueWithToolResults(ctx context.Context, sessionID string, results []provider.ToolResult, tools []provider.ToolDecl) (*provider.ContinueResponse, error) {
	ret := m.Called(ctx, sessionID, results, tools)
	resp, _ := ret.Get(0).(*provider.ContinueResponse)
	return resp, ret.Error(1)
}

func (m *mockProvider) ClearHistory(string) {}

func (m *mockProvider) IsAvailable(context.Context) bool { return true }

func (m *mockProvider) ListActiveSessions() []string { return nil }

type staticProviders struct {
	p provider.Provider
}

func (s staticProviders) Active() (provider.Provider, error) { return s.p, nil }

type mockBackend struct {
	mock.Mock
	name  string
	tools []backend.ToolInfo
}

func (m *mockBackend) Name() string { return m.name }

func (m *mockBackend) CallTool(ctx context.Context, tool string, args map[string]interface{}) (*backend.ToolResponse, error) {
	ret := m.Called(ctx, tool, args)
	resp, _ := ret.Get(0).(*backend.ToolResponse)
	return resp, ret.Error(1)
}

func (m *mockBackend) ListTools(context.Context) ([]backend.ToolInfo, error) { return m.tools, nil }

func (m *mockBackend) HealthCheck(context.Context) error { return nil }

type mockSync struct {
	mock.Mock
}

func (m *mockSync) SyncFromSource(ctx context.Context, scope string, force bool) (*datasync.SyncResult, error) {
	ret := m.Called(ctx, scope, force)
	res, _ := ret.Get(0).(*datasync.SyncResult)
	return res, ret.Error(1)
}

func data(v interface{}) *backend.ToolResponse {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return &backend.ToolResponse{Success: true, Data: raw}
}

func identityTools() []backend.ToolInfo {
	return []backend.ToolInfo{
		{Name: "list-users", Description: "List users of a realm", InputSchema: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{"realm": map[string]interface{}{"type": "string"}},
			"required":   []interface{}{"realm"},
		}},
		{Name: "create-user", Description: "Create a user"},
		{Name: "list-realms", Description: "List realms"},
	}
}

func graphTools() []backend.ToolInfo {
	return []backend.ToolInfo{
		{Name: backend.ToolGraphSchema},
		{Name: backend.ToolGraphRead},
		{Name: backend.ToolGraphWrite},
	}
}

type failingCatalog struct {
	err error
}

func (c failingCatalog) ToolsFor(context.Context, toolregistry.Intent) ([]provider.ToolDecl, error) {
	return nil, c.err
}

func (c failingCatalog) Lookup(context.Context, string) (provider.ToolDecl, bool) {
	return provider.ToolDecl{}, false
}

func (c failingCatalog) ValidateArgs(provider.ToolDecl, map[string]interface{}) error { return nil }
