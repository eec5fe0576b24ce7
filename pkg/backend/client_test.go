package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/toolgate/internal/tracing"
	"github.com/harun/toolgate/pkg/faults"
	"github.com/harun/toolgate/pkg/resilience"
)

func newTestClient(t *testing.T, handler http.Handler) *HTTPClient {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	breaker := resilience.NewBreaker("backend:test", resilience.BreakerConfig{
		FailureThreshold:  2,
		RecoveryTimeout:   time.Minute,
		RequiredSuccesses: 1,
	}, zerolog.Nop())

	c, err := New(Config{
		Name:       Identity,
		URL:        srv.URL,
		HTTPClient: srv.Client(),
		Guard: resilience.NewGuard(breaker, resilience.RetryPolicy{
			MaxAttempts:  3,
			InitialDelay: time.Millisecond,
			MaxDelay:     2 * time.Millisecond,
		}),
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	return c
}

func TestNew(t *testing.T) {
	_, err := New(Config{Name: Graph, URL: "not a url"})
	assert.Equal(t, faults.KindConfig, faults.KindOf(err))

	_, err = New(Config{URL: DefaultGraphURL})
	assert.Equal(t, faults.KindConfig, faults.KindOf(err))

	c, err := New(Config{Name: Graph, URL: DefaultGraphURL + "/"})
	require.NoError(t, err)
	assert.Equal(t, DefaultGraphURL, c.URL())
}

func TestHTTPClient_CallTool(t *testing.T) {
	ctx := context.Background()

	t.Run("should post arguments and decode data", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/tools/list-users", r.URL.Path)
			assert.Equal(t, "req-1", r.Header.Get("X-Request-ID"))

			var req toolRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "master", req.Arguments["realm"])

			_, _ = w.Write([]byte(`{"success":true,"data":[{"username":"alice"},{"username":"bob"}]}`))
		}))

		resp, err := c.CallTool(tracing.WithRequestID(ctx, "req-1"), "list-users", map[string]interface{}{"realm": "master"})
		require.NoError(t, err)

		var users []map[string]interface{}
		require.NoError(t, resp.Decode(&users))
		assert.Len(t, users, 2)
		assert.Equal(t, "alice", users[0]["username"])
	})

	t.Run("should report tool failures without retrying", func(t *testing.T) {
		var hits int32
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&hits, 1)
			_, _ = w.Write([]byte(`{"success":false,"error":"Only MATCH queries are allowed for read-query"}`))
		}))

		resp, err := c.CallTool(ctx, ToolGraphRead, map[string]interface{}{"query": "CREATE (n)"})

		require.NotNil(t, resp)
		assert.False(t, resp.Success)
		assert.Equal(t, faults.KindToolExecution, faults.KindOf(err))
		assert.Contains(t, err.Error(), "Only MATCH queries")
		assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
		assert.Equal(t, resilience.StateClosed, c.guard.Breaker.State().State)
	})

	t.Run("should retry server errors then report unavailable", func(t *testing.T) {
		var hits int32
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&hits, 1)
			http.Error(w, "boom", http.StatusBadGateway)
		}))

		_, err := c.CallTool(ctx, "list-users", nil)

		assert.Equal(t, faults.KindUnavailable, faults.KindOf(err))
		assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
	})

	t.Run("should not retry client errors", func(t *testing.T) {
		var hits int32
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&hits, 1)
			http.Error(w, "unknown tool", http.StatusNotFound)
		}))

		_, err := c.CallTool(ctx, "nope", nil)

		assert.Equal(t, faults.KindToolExecution, faults.KindOf(err))
		assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	})

	t.Run("should fail fast once the circuit is open", func(t *testing.T) {
		var hits int32
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&hits, 1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))

		for i := 0; i < 2; i++ {
			_, err := c.CallTool(ctx, "list-users", nil)
			require.Error(t, err)
		}
		before := atomic.LoadInt32(&hits)

		_, err := c.CallTool(ctx, "list-users", nil)

		assert.Equal(t, faults.KindCircuitOpen, faults.KindOf(err))
		assert.Equal(t, before, atomic.LoadInt32(&hits))
	})
}

func TestHTTPClient_ListTools(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tools", r.URL.Path)
		_, _ = w.Write([]byte(`{"tools":["get_neo4j_schema",{"name":"read_neo4j_cypher","description":"Read","inputSchema":{"type":"object","required":["query"]}}]}`))
	}))

	tools, err := c.ListTools(context.Background())
	require.NoError(t, err)

	require.Len(t, tools, 2)
	assert.Equal(t, ToolInfo{Name: "get_neo4j_schema"}, tools[0])
	assert.Equal(t, "read_neo4j_cypher", tools[1].Name)
	assert.Equal(t, "Read", tools[1].Description)
	assert.Equal(t, "object", tools[1].InputSchema["type"])
}

func TestHTTPClient_HealthCheck(t *testing.T) {
	t.Run("should pass on 200", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/health", r.URL.Path)
			_, _ = w.Write([]byte(`{"status":"healthy"}`))
		}))
		assert.NoError(t, c.HealthCheck(context.Background()))
	})

	t.Run("should fail on 503", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		err := c.HealthCheck(context.Background())
		assert.Equal(t, faults.KindUnavailable, faults.KindOf(err))
	})
}
