package datasync

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/harun/toolgate/pkg/backend"
	"github.com/harun/toolgate/pkg/faults"
)

var graphWriteKeywords = []string{"MERGE", "CREATE", "SET", "DELETE", "REMOVE", "ADD"}

type graphCall struct {
	tool   string
	query  string
	params map[string]interface{}
}

// fakeGraph emulates the graph backend for the queries CypherStore issues.
type fakeGraph struct {
	mu       sync.Mutex
	calls    []graphCall
	users    map[string][]map[string]interface{}
	metadata map[string]map[string]interface{}
	failOn   string
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{
		users:    make(map[string][]map[string]interface{}),
		metadata: make(map[string]map[string]interface{}),
	}
}

func (g *fakeGraph) Name() string { return backend.Graph }

func (g *fakeGraph) ListTools(context.Context) ([]backend.ToolInfo, error) { return nil, nil }

func (g *fakeGraph) HealthCheck(context.Context) error { return nil }

func (g *fakeGraph) CallTool(_ context.Context, tool string, args map[string]interface{}) (*backend.ToolResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	query, _ := args["query"].(string)
	params, _ := args["params"].(map[string]interface{})
	g.calls = append(g.calls, graphCall{tool: tool, query: query, params: params})

	if g.failOn != "" && query == g.failOn {
		return nil, faults.New(faults.KindUnavailable, "fake", "graph down")
	}

	upper := strings.ToUpper(query)
	isWrite := false
	for _, kw := range graphWriteKeywords {
		if strings.Contains(upper, kw) {
			isWrite = true
		}
	}
	if tool == backend.ToolGraphRead && isWrite {
		return &backend.ToolResponse{Error: "Only MATCH queries are allowed for read-query"},
			faults.New(faults.KindToolExecution, "fake", "Only MATCH queries are allowed for read-query")
	}
	if tool == backend.ToolGraphWrite && !isWrite {
		return &backend.ToolResponse{Error: "Only write queries are allowed for write-query"},
			faults.New(faults.KindToolExecution, "fake", "Only write queries are allowed for write-query")
	}

	scope, _ := params["scope"].(string)
	var data interface{}
	switch query {
	case queryMetadata:
		rows := []map[string]interface{}{}
		if m, ok := g.metadata[scope]; ok {
			rows = append(rows, m)
		}
		data = rows
	case queryCount:
		data = []map[string]interface{}{{"total": len(g.users[scope])}}
	case queryReplace:
		delete(g.metadata, scope)
		delete(g.users, scope)
		data = map[string]int{"nodesCreated": g.upsert(scope, params)}
	case queryUpsert:
		data = map[string]int{"nodesCreated": g.upsert(scope, params)}
	case queryWriteMetadata:
		g.metadata[scope] = map[string]interface{}{
			"lastSyncedAt": params["lastSyncedAt"],
			"recordCount":  params["recordCount"],
			"source":       params["source"],
		}
		data = map[string]int{"propertiesSet": 3}
	default:
		return nil, fmt.Errorf("unexpected query %q", query)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &backend.ToolResponse{Success: true, Data: raw}, nil
}

// upsert merges a batch on id the way the MERGE clause does. Callers hold g.mu.
func (g *fakeGraph) upsert(scope string, params map[string]interface{}) int {
	batch, _ := params["users"].([]map[string]interface{})
	created := 0
	for _, u := range batch {
		node := map[string]interface{}{"id": u["id"]}
		props, _ := u["props"].(map[string]interface{})
		for k, v := range props {
			node[k] = v
		}

		merged := false
		for i, existing := range g.users[scope] {
			if existing["id"] == node["id"] {
				g.users[scope][i] = node
				merged = true
				break
			}
		}
		if !merged {
			g.users[scope] = append(g.users[scope], node)
			created++
		}
	}
	return created
}

func (g *fakeGraph) queries(tool string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []string
	for _, c := range g.calls {
		if c.tool == tool {
			out = append(out, c.query)
		}
	}
	return out
}

// stubSource is an in-memory Source.
type stubSource struct {
	mu       sync.Mutex
	records  []Record
	err      error
	countErr error
	fetches  int
	release  chan struct{}
}

func (s *stubSource) Name() string { return "identity" }

func (s *stubSource) FetchAll(ctx context.Context, _ string) ([]Record, error) {
	s.mu.Lock()
	s.fetches++
	release := s.release
	s.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.records, s.err
}

func (s *stubSource) Count(context.Context, string) (int, error) {
	return len(s.records), s.countErr
}

func (s *stubSource) fetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}
