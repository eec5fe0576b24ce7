package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/harun/toolgate/pkg/cron"
	"github.com/harun/toolgate/pkg/datasync"
	"github.com/harun/toolgate/pkg/orchestrator"
	"github.com/harun/toolgate/pkg/provider"
	"github.com/harun/toolgate/pkg/resilience"
	"github.com/harun/toolgate/pkg/toolregistry"
)

// ChatHandler answers chat requests.
type ChatHandler interface {
	Handle(ctx context.Context, req orchestrator.Request) *orchestrator.Response
}

// ProviderDirectory reports the configured providers.
type ProviderDirectory interface {
	Active() (provider.Provider, error)
	Statuses() []provider.Status
}

// ToolCatalog exposes the discovered tools.
type ToolCatalog interface {
	DiscoverTools(ctx context.Context) (*toolregistry.Catalog, error)
	Refresh(ctx context.Context) (*toolregistry.Catalog, error)
}

// SyncService runs and reports graph synchronization.
type SyncService interface {
	Status(ctx context.Context, scope string) (*datasync.Status, error)
	SyncFromSource(ctx context.Context, scope string, force bool) (*datasync.SyncResult, error)
	ValidateIntegrity(ctx context.Context, scope string) (*datasync.IntegrityReport, error)
}

// HealthChecker checks a backend.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// CircuitReporter lists breaker states.
type CircuitReporter interface {
	States() []resilience.CircuitBreakerState
}

// JobLister reports scheduled background jobs.
type JobLister interface {
	Jobs() []cron.JobStatus
}

// JobsResponse lists the background sync jobs.
type JobsResponse struct {
	Scheduled bool             `json:"scheduled"`
	Jobs      []cron.JobStatus `json:"jobs"`
}

// ErrorResponse is the body of every failed request. Success is always false.
type ErrorResponse struct {
	Success       bool           `json:"success"`
	Error         string         `json:"error"`
	Message       string         `json:"message"`
	ServiceStatus *ServiceStatus `json:"serviceStatus,omitempty"`
}

// ServiceStatus accompanies 503 responses.
type ServiceStatus struct {
	Provider string                           `json:"provider,omitempty"`
	Circuits []resilience.CircuitBreakerState `json:"circuits,omitempty"`
}

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status      string                           `json:"status"`
	Provider    string                           `json:"provider,omitempty"`
	Providers   []provider.Status                `json:"providers"`
	Backends    map[string]BackendHealth         `json:"backends"`
	Circuits    []resilience.CircuitBreakerState `json:"circuits"`
	Sessions    int                              `json:"sessions"`
	Connections int                              `json:"connections"`
	Timestamp   time.Time                        `json:"timestamp"`
}

// BackendHealth is the health check result of one backend.
type BackendHealth struct {
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// ToolsResponse is the body of the tools endpoints.
type ToolsResponse struct {
	Tools     []provider.ToolDecl `json:"tools"`
	Identity  int                 `json:"identity"`
	Graph     int                 `json:"graph"`
	FetchedAt time.Time           `json:"fetchedAt"`
}

// SyncRequest is the body of POST /api/sync.
type SyncRequest struct {
	Scope string `json:"scope"`
	Force bool   `json:"force"`
}

// SessionsResponse is the body of GET /api/sessions.
type SessionsResponse struct {
	Provider string   `json:"provider"`
	Sessions []string `json:"sessions"`
	Count    int      `json:"count"`
}

// ConnectionInfo describes a WebSocket client.
type ConnectionInfo struct {
	ID           string    `json:"id"`
	ConnectedAt  time.Time `json:"connectedAt"`
	LastActivity time.Time `json:"lastActivity"`
	IPAddress    string    `json:"ipAddress"`
	Idle         bool      `json:"idle"`
}

// Connection is a WebSocket chat client.
type Connection struct {
	ID           string
	Conn         *websocket.Conn
	ConnectedAt  time.Time
	LastActivity time.Time
	IPAddress    string
	RateLimiter  *ClientRateLimiter

	writeMu sync.Mutex
}
