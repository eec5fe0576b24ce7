package gateway

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/sourcegraph/conc"

	"github.com/harun/toolgate/internal/tracing"
	"github.com/harun/toolgate/pkg/cron"
	"github.com/harun/toolgate/pkg/faults"
	"github.com/harun/toolgate/pkg/orchestrator"
	"github.com/harun/toolgate/pkg/resilience"
	"github.com/harun/toolgate/pkg/session"
	"github.com/harun/toolgate/pkg/toolregistry"
)

const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.Request
	if err := decodeBody(w, r, s.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, err, nil)
		return
	}

	s.inFlight.Add(1)
	defer s.inFlight.Done()

	resp := s.cfg.Chat.Handle(r.Context(), req)
	if !resp.Success {
		s.writeChatFailure(w, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeChatFailure(w http.ResponseWriter, resp *orchestrator.Response) {
	kind := resp.ErrorKind
	if kind == "" {
		kind = faults.KindChatFailed
	}
	code := statusFor(kind)

	body := ErrorResponse{Error: string(kind), Message: resp.Message}
	if code == http.StatusServiceUnavailable {
		body.ServiceStatus = s.serviceStatus()
	}
	writeJSON(w, code, body)
}

func (s *Server) serviceStatus() *ServiceStatus {
	status := &ServiceStatus{}
	if s.cfg.Providers != nil {
		if p, err := s.cfg.Providers.Active(); err == nil {
			status.Provider = p.Name()
		}
	}
	if s.cfg.Circuits != nil {
		status.Circuits = s.cfg.Circuits.States()
	}
	return status
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:      statusHealthy,
		Backends:    s.checkBackends(r.Context()),
		Circuits:    []resilience.CircuitBreakerState{},
		Connections: s.conns.Count(),
		Timestamp:   time.Now().UTC(),
	}

	if s.cfg.Providers != nil {
		resp.Providers = s.cfg.Providers.Statuses()
		if p, err := s.cfg.Providers.Active(); err == nil {
			resp.Provider = p.Name()
			resp.Sessions = len(p.ListActiveSessions())
		}
	}
	if s.cfg.Circuits != nil {
		resp.Circuits = s.cfg.Circuits.States()
	}

	resp.Status = overallStatus(resp)
	code := http.StatusOK
	if resp.Status == statusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// overallStatus is unhealthy without an active provider and degraded while a backend
// is down or a circuit is not closed.
func overallStatus(h HealthResponse) string {
	if h.Provider == "" {
		return statusUnhealthy
	}
	for _, b := range h.Backends {
		if !b.Healthy {
			return statusDegraded
		}
	}
	for _, c := range h.Circuits {
		if c.State != resilience.StateClosed {
			return statusDegraded
		}
	}
	return statusHealthy
}

func (s *Server) checkBackends(ctx context.Context) map[string]BackendHealth {
	results := make(map[string]BackendHealth, len(s.cfg.Backends))
	var mu sync.Mutex

	ctx, cancel := context.WithTimeout(ctx, s.cfg.HealthTimeout)
	defer cancel()

	var wg conc.WaitGroup
	for name, checker := range s.cfg.Backends {
		wg.Go(func() {
			health := BackendHealth{Healthy: true}
			if err := checker.HealthCheck(ctx); err != nil {
				health = BackendHealth{Healthy: false, Error: err.Error()}
			}
			mu.Lock()
			results[name] = health
			mu.Unlock()
		})
	}
	wg.Wait()
	return results
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	s.writeCatalog(w, r, false)
}

func (s *Server) handleToolsRefresh(w http.ResponseWriter, r *http.Request) {
	s.writeCatalog(w, r, true)
}

func (s *Server) writeCatalog(w http.ResponseWriter, r *http.Request, refresh bool) {
	if s.cfg.Tools == nil {
		writeError(w, notConfigured("tool registry"), s.serviceStatus())
		return
	}

	var (
		catalog *toolregistry.Catalog
		err     error
	)
	if refresh {
		catalog, err = s.cfg.Tools.Refresh(r.Context())
	} else {
		catalog, err = s.cfg.Tools.DiscoverTools(r.Context())
	}
	if err != nil {
		s.logFailure(r, err, "Tool catalog request failed")
		writeError(w, faults.Wrap(faults.KindUnavailable, "gateway.tools", err), s.serviceStatus())
		return
	}

	writeJSON(w, http.StatusOK, ToolsResponse{
		Tools:     catalog.All(),
		Identity:  len(catalog.Identity),
		Graph:     len(catalog.Graph),
		FetchedAt: catalog.FetchedAt,
	})
}

func (s *Server) scope(r *http.Request) string {
	if scope := strings.TrimSpace(r.URL.Query().Get("scope")); scope != "" {
		return scope
	}
	return s.cfg.DefaultScope
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Sync == nil {
		writeError(w, notConfigured("synchronizer"), s.serviceStatus())
		return
	}

	status, err := s.cfg.Sync.Status(r.Context(), s.scope(r))
	if err != nil {
		s.logFailure(r, err, "Sync status request failed")
		writeError(w, err, s.serviceStatus())
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Sync == nil {
		writeError(w, notConfigured("synchronizer"), s.serviceStatus())
		return
	}

	var req SyncRequest
	if err := decodeBody(w, r, s.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, err, nil)
		return
	}
	scope := strings.TrimSpace(req.Scope)
	if scope == "" {
		scope = s.scope(r)
	}

	s.inFlight.Add(1)
	defer s.inFlight.Done()

	result, err := s.cfg.Sync.SyncFromSource(r.Context(), scope, req.Force)
	if err != nil {
		s.logFailure(r, err, "Sync request failed")
		writeError(w, err, s.serviceStatus())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSyncIntegrity(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Sync == nil {
		writeError(w, notConfigured("synchronizer"), s.serviceStatus())
		return
	}

	report, err := s.cfg.Sync.ValidateIntegrity(r.Context(), s.scope(r))
	if err != nil {
		s.logFailure(r, err, "Integrity request failed")
		writeError(w, err, s.serviceStatus())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleSyncJobs(w http.ResponseWriter, _ *http.Request) {
	resp := JobsResponse{Jobs: []cron.JobStatus{}}
	if s.cfg.Jobs != nil {
		resp.Scheduled = true
		resp.Jobs = append(resp.Jobs, s.cfg.Jobs.Jobs()...)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Providers == nil {
		writeError(w, notConfigured("provider registry"), nil)
		return
	}
	p, err := s.cfg.Providers.Active()
	if err != nil {
		writeError(w, err, s.serviceStatus())
		return
	}

	sessions := p.ListActiveSessions()
	sort.Strings(sessions)
	writeJSON(w, http.StatusOK, SessionsResponse{
		Provider: p.Name(),
		Sessions: sessions,
		Count:    len(sessions),
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := session.ValidateID(id); err != nil {
		writeError(w, faults.Wrap(faults.KindValidation, "gateway.sessions", err), nil)
		return
	}
	if s.cfg.Providers == nil {
		writeError(w, notConfigured("provider registry"), nil)
		return
	}
	p, err := s.cfg.Providers.Active()
	if err != nil {
		writeError(w, err, s.serviceStatus())
		return
	}

	p.ClearHistory(id)
	logger := tracing.LoggerFromContext(r.Context(), s.logger)
	logger.Info().Str("session_id", id).Msg("Session cleared")
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessionId": id, "cleared": true})
}

func (s *Server) handleConnections(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"connections": s.conns.Infos()})
}

func (s *Server) logFailure(r *http.Request, err error, msg string) {
	logger := tracing.LoggerFromContext(r.Context(), s.logger)
	logger.Warn().Err(err).Str("path", r.URL.Path).Msg(msg)
}

func notConfigured(what string) error {
	return faults.New(faults.KindUnavailable, "gateway", what+" is not configured")
}
