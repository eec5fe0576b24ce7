package toolregistry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/harun/toolgate/pkg/backend"
	"github.com/harun/toolgate/pkg/provider"
)

type mockClient struct {
	mock.Mock
	name string
}

func (m *mockClient) Name() string { return m.name }

func (m *mockClient) CallTool(ctx context.Context, tool string, args map[string]interface{}) (*backend.ToolResponse, error) {
	ret := m.Called(ctx, tool, args)
	resp, _ := ret.Get(0).(*backend.ToolResponse)
	return resp, ret.Error(1)
}

func (m *mockClient) ListTools(ctx context.Context) ([]backend.ToolInfo, error) {
	ret := m.Called(ctx)
	tools, _ := ret.Get(0).([]backend.ToolInfo)
	return tools, ret.Error(1)
}

func (m *mockClient) HealthCheck(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

var identityTools = []backend.ToolInfo{
	{Name: "list-users", Description: "List users", InputSchema: map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{"realm": map[string]interface{}{"type": "string"}},
		"required":   []interface{}{"realm"},
	}},
	{Name: "create-user", Description: "Create a user"},
	{Name: "list-realms", Description: "List realms"},
}

var graphTools = []backend.ToolInfo{
	{Name: backend.ToolGraphSchema},
	{Name: backend.ToolGraphRead},
	{Name: backend.ToolGraphWrite},
}

func newTestRegistry(identity, graph *mockClient) *Registry {
	return New(Config{
		Clients: []backend.Client{identity, graph},
		Logger:  zerolog.Nop(),
	})
}

func TestRegistry_DiscoverTools(t *testing.T) {
	ctx := context.Background()

	t.Run("should qualify names and fill graph declarations", func(t *testing.T) {
		identity := &mockClient{name: backend.Identity}
		graph := &mockClient{name: backend.Graph}
		identity.On("ListTools", mock.Anything).Return(identityTools, nil).Once()
		graph.On("ListTools", mock.Anything).Return(graphTools, nil).Once()

		r := newTestRegistry(identity, graph)

		catalog, err := r.DiscoverTools(ctx)
		require.NoError(t, err)

		require.Len(t, catalog.Identity, 3)
		assert.Equal(t, "identity_list-users", catalog.Identity[0].Name)
		assert.Equal(t, backend.Identity, catalog.Identity[0].Backend)
		assert.Equal(t, "object", catalog.Identity[1].InputSchema["type"])

		require.Len(t, catalog.Graph, 3)
		read := catalog.Graph[1]
		assert.Equal(t, "graph_read_neo4j_cypher", read.Name)
		assert.Contains(t, read.Description, "Cypher")
		assert.Equal(t, []interface{}{"query"}, read.InputSchema["required"])

		_, err = r.DiscoverTools(ctx)
		require.NoError(t, err)

		identity.AssertNumberOfCalls(t, "ListTools", 1)
		graph.AssertNumberOfCalls(t, "ListTools", 1)
	})

	t.Run("should keep tools of healthy backends", func(t *testing.T) {
		identity := &mockClient{name: backend.Identity}
		graph := &mockClient{name: backend.Graph}
		identity.On("ListTools", mock.Anything).Return(identityTools, nil)
		graph.On("ListTools", mock.Anything).Return(nil, errors.New("connection refused"))

		catalog, err := newTestRegistry(identity, graph).DiscoverTools(ctx)
		require.NoError(t, err)

		assert.Len(t, catalog.Identity, 3)
		assert.Empty(t, catalog.Graph)
	})

	t.Run("should fail when every backend fails", func(t *testing.T) {
		identity := &mockClient{name: backend.Identity}
		graph := &mockClient{name: backend.Graph}
		identity.On("ListTools", mock.Anything).Return(nil, errors.New("down"))
		graph.On("ListTools", mock.Anything).Return(nil, errors.New("down"))

		_, err := newTestRegistry(identity, graph).DiscoverTools(ctx)
		assert.Error(t, err)
	})
}

func TestRegistry_Refresh(t *testing.T) {
	identity := &mockClient{name: backend.Identity}
	graph := &mockClient{name: backend.Graph}
	identity.On("ListTools", mock.Anything).Return(identityTools, nil)
	graph.On("ListTools", mock.Anything).Return(graphTools, nil)

	r := newTestRegistry(identity, graph)

	_, err := r.DiscoverTools(context.Background())
	require.NoError(t, err)
	_, err = r.Refresh(context.Background())
	require.NoError(t, err)

	identity.AssertNumberOfCalls(t, "ListTools", 2)
}

func TestRegistry_ToolsFor(t *testing.T) {
	identity := &mockClient{name: backend.Identity}
	graph := &mockClient{name: backend.Graph}
	identity.On("ListTools", mock.Anything).Return(identityTools, nil)
	graph.On("ListTools", mock.Anything).Return(graphTools, nil)

	r := newTestRegistry(identity, graph)
	ctx := context.Background()

	names := func(decls []provider.ToolDecl) []string {
		out := make([]string, 0, len(decls))
		for _, d := range decls {
			out = append(out, d.Name)
		}
		return out
	}

	read, err := r.ToolsFor(ctx, IntentRead)
	require.NoError(t, err)
	assert.Equal(t, []string{"identity_list-users", "identity_list-realms"}, names(read))

	write, err := r.ToolsFor(ctx, IntentWrite)
	require.NoError(t, err)
	assert.Len(t, write, 3)

	analyze, err := r.ToolsFor(ctx, IntentAnalyze)
	require.NoError(t, err)
	assert.Equal(t, []string{"graph_get_neo4j_schema", "graph_read_neo4j_cypher", "graph_write_neo4j_cypher"}, names(analyze))

	all, err := r.ToolsFor(ctx, IntentAll)
	require.NoError(t, err)
	assert.Len(t, all, 6)
}

func TestRegistry_ValidateArgs(t *testing.T) {
	identity := &mockClient{name: backend.Identity}
	graph := &mockClient{name: backend.Graph}
	identity.On("ListTools", mock.Anything).Return(identityTools, nil)
	graph.On("ListTools", mock.Anything).Return(graphTools, nil)

	r := newTestRegistry(identity, graph)

	decl, ok := r.Lookup(context.Background(), "identity_list-users")
	require.True(t, ok)

	assert.NoError(t, r.ValidateArgs(decl, map[string]interface{}{"realm": "master"}))

	err := r.ValidateArgs(decl, map[string]interface{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "realm")

	err = r.ValidateArgs(decl, map[string]interface{}{"realm": 42})
	assert.Error(t, err)

	_, ok = r.Lookup(context.Background(), "identity_missing")
	assert.False(t, ok)
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }

	_, ok, err := c.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, &Catalog{Identity: []provider.ToolDecl{{Name: "identity_x"}}}, time.Minute))

	got, ok, _ := c.Get(ctx)
	require.True(t, ok)
	assert.Equal(t, "identity_x", got.Identity[0].Name)

	now = now.Add(2 * time.Minute)
	_, ok, _ = c.Get(ctx)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, &Catalog{}, time.Minute))
	require.NoError(t, c.Invalidate(ctx))
	_, ok, _ = c.Get(ctx)
	assert.False(t, ok)
}
