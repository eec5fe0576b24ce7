package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/harun/toolgate/pkg/cron"
	"github.com/harun/toolgate/pkg/datasync"
	"github.com/harun/toolgate/pkg/faults"
	"github.com/harun/toolgate/pkg/orchestrator"
	"github.com/harun/toolgate/pkg/provider"
	"github.com/harun/toolgate/pkg/resilience"
	"github.com/harun/toolgate/pkg/routing"
	"github.com/harun/toolgate/pkg/toolregistry"
)

type chatFunc func(ctx context.Context, req orchestrator.Request) *orchestrator.Response

func (f chatFunc) Handle(ctx context.Context, req orchestrator.Request) *orchestrator.Response {
	return f(ctx, req)
}

type stubProvider struct {
	mu       sync.Mutex
	sessions []string
	cleared  []string
}

func (p *stubProvider) Name() string { return "anthropic" }

func (p *stubProvider) Chat(context.Context, provider.ChatRequest) (*provider.ChatResponse, error) {
	return nil, errors.New("not used")
}

func (p *stubProvider) ContinueWithToolResults(context.Context, string, []provider.ToolResult, []provider.ToolDecl) (*provider.ContinueResponse, error) {
	return nil, errors.New("not used")
}

func (p *stubProvider) ClearHistory(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cleared = append(p.cleared, id)
}

func (p *stubProvider) IsAvailable(context.Context) bool { return true }

func (p *stubProvider) ListActiveSessions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.sessions...)
}

type stubDirectory struct {
	active provider.Provider
	err    error
}

func (d stubDirectory) Active() (provider.Provider, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.active, nil
}

func (d stubDirectory) Statuses() []provider.Status {
	if d.active == nil {
		return []provider.Status{{Name: "anthropic", Error: "missing api key"}}
	}
	return []provider.Status{{Name: d.active.Name(), Configured: true, Active: true}}
}

type stubCatalog struct {
	catalog   *toolregistry.Catalog
	err       error
	refreshed int
}

func (c *stubCatalog) DiscoverTools(context.Context) (*toolregistry.Catalog, error) {
	return c.catalog, c.err
}

func (c *stubCatalog) Refresh(ctx context.Context) (*toolregistry.Catalog, error) {
	c.refreshed++
	return c.DiscoverTools(ctx)
}

type mockSync struct {
	mock.Mock
}

func (m *mockSync) Status(ctx context.Context, scope string) (*datasync.Status, error) {
	ret := m.Called(ctx, scope)
	status, _ := ret.Get(0).(*datasync.Status)
	return status, ret.Error(1)
}

func (m *mockSync) SyncFromSource(ctx context.Context, scope string, force bool) (*datasync.SyncResult, error) {
	ret := m.Called(ctx, scope, force)
	res, _ := ret.Get(0).(*datasync.SyncResult)
	return res, ret.Error(1)
}

func (m *mockSync) ValidateIntegrity(ctx context.Context, scope string) (*datasync.IntegrityReport, error) {
	ret := m.Called(ctx, scope)
	report, _ := ret.Get(0).(*datasync.IntegrityReport)
	return report, ret.Error(1)
}

type checkerFunc func(ctx context.Context) error

func (f checkerFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

type stubCircuits []resilience.CircuitBreakerState

func (s stubCircuits) States() []resilience.CircuitBreakerState { return s }

func okChat(_ context.Context, req orchestrator.Request) *orchestrator.Response {
	return &orchestrator.Response{
		Success:     true,
		Response:    "echo: " + req.Message,
		SessionID:   "s1",
		Strategy:    routing.CoordinatedMulti,
		ToolsCalled: []orchestrator.ToolCallRecord{},
		Data:        map[string]interface{}{"users": []interface{}{"admin"}},
	}
}

func newTestServer(t *testing.T, mutate func(*Config)) *Server {
	t.Helper()

	cfg := Config{
		Chat:         chatFunc(okChat),
		Providers:    stubDirectory{active: &stubProvider{}},
		DefaultScope: "master",
		Logger:       zerolog.Nop(),
	}
	if mutate != nil {
		mutate(&cfg)
	}

	s, err := NewServer(cfg)
	require.NoError(t, err)
	return s
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestNewServer(t *testing.T) {
	t.Run("should require a chat handler", func(t *testing.T) {
		_, err := NewServer(Config{})
		require.Error(t, err)
		assert.Equal(t, faults.KindConfig, faults.KindOf(err))
	})

	t.Run("should apply defaults", func(t *testing.T) {
		s := newTestServer(t, nil)
		assert.Equal(t, DefaultAddr, s.cfg.Addr)
		assert.Equal(t, []string{"*"}, s.cfg.CORSOrigins)
	})
}

func TestServer_Chat(t *testing.T) {
	t.Run("should answer a chat request", func(t *testing.T) {
		var got orchestrator.Request
		s := newTestServer(t, func(c *Config) {
			c.Chat = chatFunc(func(ctx context.Context, req orchestrator.Request) *orchestrator.Response {
				got = req
				return okChat(ctx, req)
			})
		})

		rec := do(t, s, http.MethodPost, "/api/chat", `{"message":"list all users","sessionId":"s1","context":{"realm":"master"}}`)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotEmpty(t, rec.Header().Get(headerRequestID))
		body := decode(t, rec)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, "echo: list all users", body["response"])
		assert.Equal(t, "coordinated_multi", body["strategy"])
		assert.Equal(t, []interface{}{"admin"}, body["data"].(map[string]interface{})["users"])

		assert.Equal(t, "list all users", got.Message)
		require.NotNil(t, got.Context)
		assert.Equal(t, "master", got.Context.Realm)
	})

	t.Run("should keep an incoming trace id", func(t *testing.T) {
		s := newTestServer(t, nil)

		req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"hi"}`))
		req.Header.Set(headerTraceID, "trace-123")
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)

		assert.Equal(t, "trace-123", rec.Header().Get(headerTraceID))
	})

	t.Run("should reject malformed JSON without calling the orchestrator", func(t *testing.T) {
		called := false
		s := newTestServer(t, func(c *Config) {
			c.Chat = chatFunc(func(ctx context.Context, req orchestrator.Request) *orchestrator.Response {
				called = true
				return okChat(ctx, req)
			})
		})

		rec := do(t, s, http.MethodPost, "/api/chat", `{"message":`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, "validation_error", body["error"])
		assert.Equal(t, false, body["success"])
		assert.False(t, called)
	})

	tests := []struct {
		name          string
		kind          faults.Kind
		status        int
		serviceStatus bool
	}{
		{"should answer validation failures with 400", faults.KindValidation, http.StatusBadRequest, false},
		{"should answer open circuits with 503", faults.KindCircuitOpen, http.StatusServiceUnavailable, true},
		{"should answer unavailable providers with 503", faults.KindUnavailable, http.StatusServiceUnavailable, true},
		{"should answer rate limits with 503", faults.KindRateLimit, http.StatusServiceUnavailable, true},
		{"should answer auth failures with 502", faults.KindAuth, http.StatusBadGateway, false},
		{"should answer chat failures with 500", faults.KindChatFailed, http.StatusInternalServerError, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, func(c *Config) {
				c.Circuits = stubCircuits{{Dependency: "provider:anthropic", State: resilience.StateOpen}}
				c.Chat = chatFunc(func(context.Context, orchestrator.Request) *orchestrator.Response {
					return &orchestrator.Response{Success: false, ErrorKind: tt.kind, Message: "friendly text"}
				})
			})

			rec := do(t, s, http.MethodPost, "/api/chat", `{"message":"hi"}`)

			assert.Equal(t, tt.status, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, string(tt.kind), body["error"])
			assert.Equal(t, "friendly text", body["message"])
			if tt.serviceStatus {
				status, ok := body["serviceStatus"].(map[string]interface{})
				require.True(t, ok)
				assert.Equal(t, "anthropic", status["provider"])
				assert.Len(t, status["circuits"], 1)
			} else {
				assert.NotContains(t, body, "serviceStatus")
			}
		})
	}

	t.Run("should only accept POST", func(t *testing.T) {
		s := newTestServer(t, nil)

		rec := do(t, s, http.MethodGet, "/api/chat", "")

		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestServer_CORS(t *testing.T) {
	t.Run("should answer preflight requests for allowed origins", func(t *testing.T) {
		s := newTestServer(t, func(c *Config) { c.CORSOrigins = []string{"https://app.example.com"} })

		req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
		req.Header.Set("Origin", "https://app.example.com")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)

		assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("should not allow other origins", func(t *testing.T) {
		s := newTestServer(t, func(c *Config) { c.CORSOrigins = []string{"https://app.example.com"} })

		req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)

		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestServer_Health(t *testing.T) {
	t.Run("should report healthy dependencies", func(t *testing.T) {
		p := &stubProvider{sessions: []string{"a", "b"}}
		s := newTestServer(t, func(c *Config) {
			c.Providers = stubDirectory{active: p}
			c.Backends = map[string]HealthChecker{
				"identity": checkerFunc(func(context.Context) error { return nil }),
				"graph":    checkerFunc(func(context.Context) error { return nil }),
			}
			c.Circuits = stubCircuits{{Dependency: "backend:graph", State: resilience.StateClosed}}
		})

		rec := do(t, s, http.MethodGet, "/api/health", "")

		require.Equal(t, http.StatusOK, rec.Code)
		var health HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
		assert.Equal(t, statusHealthy, health.Status)
		assert.Equal(t, "anthropic", health.Provider)
		assert.Equal(t, 2, health.Sessions)
		assert.True(t, health.Backends["identity"].Healthy)
		assert.True(t, health.Backends["graph"].Healthy)
		assert.Len(t, health.Circuits, 1)
	})

	t.Run("should report degraded backends", func(t *testing.T) {
		s := newTestServer(t, func(c *Config) {
			c.Backends = map[string]HealthChecker{
				"graph": checkerFunc(func(context.Context) error { return errors.New("connection refused") }),
			}
		})

		rec := do(t, s, http.MethodGet, "/api/health", "")

		require.Equal(t, http.StatusOK, rec.Code)
		var health HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
		assert.Equal(t, statusDegraded, health.Status)
		assert.False(t, health.Backends["graph"].Healthy)
		assert.Contains(t, health.Backends["graph"].Error, "connection refused")
	})

	t.Run("should report an open circuit as degraded", func(t *testing.T) {
		s := newTestServer(t, func(c *Config) {
			c.Circuits = stubCircuits{{Dependency: "provider:anthropic", State: resilience.StateOpen}}
		})

		rec := do(t, s, http.MethodGet, "/api/health", "")

		assert.Equal(t, statusDegraded, decode(t, rec)["status"])
	})

	t.Run("should be unhealthy without an active provider", func(t *testing.T) {
		s := newTestServer(t, func(c *Config) {
			c.Providers = stubDirectory{err: faults.New(faults.KindConfig, "provider", "no provider")}
		})

		rec := do(t, s, http.MethodGet, "/api/health", "")

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, statusUnhealthy, decode(t, rec)["status"])
	})
}

func TestServer_Tools(t *testing.T) {
	catalog := &toolregistry.Catalog{
		Identity:  []provider.ToolDecl{{Name: "identity_list-users", Backend: "identity"}},
		Graph:     []provider.ToolDecl{{Name: "graph_read_neo4j_cypher", Backend: "graph"}},
		FetchedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	t.Run("should list the catalog", func(t *testing.T) {
		tools := &stubCatalog{catalog: catalog}
		s := newTestServer(t, func(c *Config) { c.Tools = tools })

		rec := do(t, s, http.MethodGet, "/api/tools", "")

		require.Equal(t, http.StatusOK, rec.Code)
		var resp ToolsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Len(t, resp.Tools, 2)
		assert.Equal(t, 1, resp.Identity)
		assert.Equal(t, 1, resp.Graph)
		assert.Equal(t, 0, tools.refreshed)
	})

	t.Run("should refresh the catalog", func(t *testing.T) {
		tools := &stubCatalog{catalog: catalog}
		s := newTestServer(t, func(c *Config) { c.Tools = tools })

		rec := do(t, s, http.MethodPost, "/api/tools/refresh", "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, tools.refreshed)
	})

	t.Run("should answer 503 when discovery fails", func(t *testing.T) {
		s := newTestServer(t, func(c *Config) { c.Tools = &stubCatalog{err: errors.New("all backends down")} })

		rec := do(t, s, http.MethodGet, "/api/tools", "")

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, "unavailable", body["error"])
		assert.Equal(t, false, body["success"])
	})

	t.Run("should answer 503 without a registry", func(t *testing.T) {
		s := newTestServer(t, nil)

		rec := do(t, s, http.MethodGet, "/api/tools", "")

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestServer_Sync(t *testing.T) {
	t.Run("should report status for the default scope", func(t *testing.T) {
		svc := &mockSync{}
		svc.On("Status", mock.Anything, "master").Return(&datasync.Status{
			Scope:     "master",
			Freshness: &datasync.SyncFreshness{NeedsRefresh: true},
		}, nil).Once()
		s := newTestServer(t, func(c *Config) { c.Sync = svc })

		rec := do(t, s, http.MethodGet, "/api/sync/status", "")

		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, "master", body["scope"])
		assert.Equal(t, true, body["freshness"].(map[string]interface{})["needsRefresh"])
		svc.AssertExpectations(t)
	})

	t.Run("should report status for a requested scope", func(t *testing.T) {
		svc := &mockSync{}
		svc.On("Status", mock.Anything, "acme").Return(&datasync.Status{Scope: "acme"}, nil).Once()
		s := newTestServer(t, func(c *Config) { c.Sync = svc })

		rec := do(t, s, http.MethodGet, "/api/sync/status?scope=acme", "")

		require.Equal(t, http.StatusOK, rec.Code)
		svc.AssertExpectations(t)
	})

	t.Run("should run a forced sync", func(t *testing.T) {
		svc := &mockSync{}
		svc.On("SyncFromSource", mock.Anything, "acme", true).
			Return(&datasync.SyncResult{Scope: "acme", Success: true, RecordsSynced: 12}, nil).Once()
		s := newTestServer(t, func(c *Config) { c.Sync = svc })

		rec := do(t, s, http.MethodPost, "/api/sync", `{"scope":"acme","force":true}`)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.EqualValues(t, 12, decode(t, rec)["recordsSynced"])
		svc.AssertExpectations(t)
	})

	t.Run("should sync the default scope without a body", func(t *testing.T) {
		svc := &mockSync{}
		svc.On("SyncFromSource", mock.Anything, "master", false).
			Return(&datasync.SyncResult{Scope: "master", Success: true, Skipped: true}, nil).Once()
		s := newTestServer(t, func(c *Config) { c.Sync = svc })

		rec := do(t, s, http.MethodPost, "/api/sync", "")

		require.Equal(t, http.StatusOK, rec.Code)
		svc.AssertExpectations(t)
	})

	t.Run("should answer 502 when the sync fails", func(t *testing.T) {
		svc := &mockSync{}
		svc.On("SyncFromSource", mock.Anything, "master", false).
			Return(nil, faults.New(faults.KindSync, "datasync.SyncFromSource", "graph write failed")).Once()
		s := newTestServer(t, func(c *Config) { c.Sync = svc })

		rec := do(t, s, http.MethodPost, "/api/sync", `{}`)

		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, "sync_error", decode(t, rec)["error"])
	})

	t.Run("should validate integrity", func(t *testing.T) {
		svc := &mockSync{}
		svc.On("ValidateIntegrity", mock.Anything, "master").Return(&datasync.IntegrityReport{
			Scope: "master", IsValid: false, SourceCount: 10, TargetCount: 8, Discrepancy: 2,
		}, nil).Once()
		s := newTestServer(t, func(c *Config) { c.Sync = svc })

		rec := do(t, s, http.MethodGet, "/api/sync/integrity", "")

		require.Equal(t, http.StatusOK, rec.Code)
		svc.AssertExpectations(t)
	})
}

type stubJobs []cron.JobStatus

func (j stubJobs) Jobs() []cron.JobStatus { return j }

func TestServer_SyncJobs(t *testing.T) {
	t.Run("should list scheduled jobs", func(t *testing.T) {
		s := newTestServer(t, func(c *Config) {
			c.Jobs = stubJobs{{ID: "j1", Name: "sync:master", Schedule: "@every 1h",
				State: cron.JobState{LastStatus: cron.StatusOK, Runs: 3}}}
		})

		rec := do(t, s, http.MethodGet, "/api/sync/jobs", "")

		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, true, body["scheduled"])
		jobs := body["jobs"].([]interface{})
		require.Len(t, jobs, 1)
		job := jobs[0].(map[string]interface{})
		assert.Equal(t, "sync:master", job["name"])
		assert.Equal(t, "@every 1h", job["schedule"])
	})

	t.Run("should answer an empty list without a schedule", func(t *testing.T) {
		s := newTestServer(t, nil)

		rec := do(t, s, http.MethodGet, "/api/sync/jobs", "")

		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, false, body["scheduled"])
		assert.Empty(t, body["jobs"])
	})
}

func TestServer_Sessions(t *testing.T) {
	t.Run("should list sessions sorted", func(t *testing.T) {
		p := &stubProvider{sessions: []string{"b", "a"}}
		s := newTestServer(t, func(c *Config) { c.Providers = stubDirectory{active: p} })

		rec := do(t, s, http.MethodGet, "/api/sessions", "")

		require.Equal(t, http.StatusOK, rec.Code)
		var resp SessionsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, []string{"a", "b"}, resp.Sessions)
		assert.Equal(t, 2, resp.Count)
		assert.Equal(t, "anthropic", resp.Provider)
	})

	t.Run("should clear a session", func(t *testing.T) {
		p := &stubProvider{sessions: []string{"a"}}
		s := newTestServer(t, func(c *Config) { c.Providers = stubDirectory{active: p} })

		rec := do(t, s, http.MethodDelete, "/api/sessions/a", "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"a"}, p.cleared)
	})
}

func TestServer_Metrics(t *testing.T) {
	t.Run("should expose prometheus metrics", func(t *testing.T) {
		s := newTestServer(t, nil)

		rec := do(t, s, http.MethodGet, "/metrics", "")

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func dialChat(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/chat"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestServer_WebSocket(t *testing.T) {
	t.Run("should answer each frame with a response", func(t *testing.T) {
		s := newTestServer(t, nil)
		conn := dialChat(t, s)

		require.NoError(t, conn.WriteJSON(map[string]interface{}{"message": "hello"}))

		var resp orchestrator.Response
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		require.NoError(t, conn.ReadJSON(&resp))
		assert.True(t, resp.Success)
		assert.Equal(t, "echo: hello", resp.Response)

		require.Eventually(t, func() bool { return len(s.Connections()) == 1 }, time.Second, 10*time.Millisecond)
	})

	t.Run("should reject malformed frames", func(t *testing.T) {
		s := newTestServer(t, nil)
		conn := dialChat(t, s)

		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))

		var resp map[string]interface{}
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		require.NoError(t, conn.ReadJSON(&resp))
		assert.Equal(t, "validation_error", resp["error"])
		assert.Equal(t, false, resp["success"])
	})

	t.Run("should rate limit a connection", func(t *testing.T) {
		s := newTestServer(t, func(c *Config) { c.WSMessagesPerMinute = 1 })
		conn := dialChat(t, s)

		require.NoError(t, conn.WriteJSON(map[string]interface{}{"message": "one"}))
		require.NoError(t, conn.WriteJSON(map[string]interface{}{"message": "two"}))

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var frames []map[string]interface{}
		for i := 0; i < 2; i++ {
			var frame map[string]interface{}
			require.NoError(t, conn.ReadJSON(&frame))
			frames = append(frames, frame)
		}

		var answered, limited int
		for _, f := range frames {
			if f["success"] == true {
				answered++
			}
			if f["error"] == string(faults.KindRateLimit) {
				limited++
			}
		}
		assert.Equal(t, 1, answered)
		assert.Equal(t, 1, limited)
	})
}

func TestServer_StartStop(t *testing.T) {
	t.Run("should serve until stopped", func(t *testing.T) {
		s := newTestServer(t, func(c *Config) { c.Addr = "127.0.0.1:0" })
		require.NoError(t, s.Start())

		resp, err := http.Get("http://" + s.Addr() + "/api/health")
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		require.NoError(t, s.Stop(context.Background()))
		require.NoError(t, s.Stop(context.Background()))

		rec := do(t, s, http.MethodGet, "/api/health", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}
