package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/harun/toolgate/internal/observability"
	"github.com/harun/toolgate/internal/tracing"
	"github.com/harun/toolgate/pkg/faults"
)

const (
	DefaultAddr            = ":8000"
	DefaultShutdownTimeout = 30 * time.Second
	DefaultHealthTimeout   = 5 * time.Second
	DefaultMaxBodyBytes    = 1 << 20

	headerTraceID   = "X-Trace-Id"
	headerRequestID = "X-Request-Id"
)

// Config holds server configuration
type Config struct {
	Addr            string
	CORSOrigins     []string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	HealthTimeout   time.Duration
	MaxBodyBytes    int64

	// WSMessagesPerMinute bounds chat frames per WebSocket connection.
	WSMessagesPerMinute int

	Chat ChatHandler
	// The remaining dependencies are optional; their endpoints answer 503 without them.
	Providers ProviderDirectory
	Tools     ToolCatalog
	Sync      SyncService
	Backends  map[string]HealthChecker
	Circuits  CircuitReporter
	Jobs      JobLister

	DefaultScope string
	Logger       zerolog.Logger
}

// Server is the HTTP and WebSocket surface of the gateway.
type Server struct {
	cfg      Config
	handler  http.Handler
	upgrader websocket.Upgrader
	conns    *ConnectionRegistry
	logger   zerolog.Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener

	shuttingDown atomic.Bool
	inFlight     sync.WaitGroup
}

// NewServer creates a server. It does not listen until Start.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Chat == nil {
		return nil, faults.New(faults.KindConfig, "gateway.NewServer", "chat handler is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = DefaultHealthTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}

	s := &Server{
		cfg:    cfg,
		conns:  NewConnectionRegistry(),
		logger: cfg.Logger.With().Str("component", "gateway").Logger(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	s.handler = s.routes()
	return s, nil
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.Use(s.requestContext)

	r.HandleFunc("/api/chat", s.handleChat).Methods(http.MethodPost)
	r.HandleFunc("/ws/chat", s.handleWebSocket).Methods(http.MethodGet)

	r.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)

	r.HandleFunc("/api/tools", s.handleTools).Methods(http.MethodGet)
	r.HandleFunc("/api/tools/refresh", s.handleToolsRefresh).Methods(http.MethodPost)

	r.HandleFunc("/api/sync/status", s.handleSyncStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/sync", s.handleSync).Methods(http.MethodPost)
	r.HandleFunc("/api/sync/integrity", s.handleSyncIntegrity).Methods(http.MethodGet)
	r.HandleFunc("/api/sync/jobs", s.handleSyncJobs).Methods(http.MethodGet)

	r.HandleFunc("/api/sessions", s.handleSessions).Methods(http.MethodGet)
	r.HandleFunc("/api/sessions/{id}", s.handleDeleteSession).Methods(http.MethodDelete)
	r.HandleFunc("/api/connections", s.handleConnections).Methods(http.MethodGet)

	r.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{headerRequestID, headerTraceID},
	})
	return c.Handler(r)
}

// Handler returns the routed handler with CORS applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// requestContext starts a request scope, honoring an incoming trace id.
func (s *Server) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.shuttingDown.Load() {
			writeError(w, faults.New(faults.KindUnavailable, "gateway", "server is shutting down"), nil)
			return
		}

		ctx := r.Context()
		if traceID := r.Header.Get(headerTraceID); traceID != "" {
			ctx = tracing.WithTraceID(ctx, traceID)
		}
		ctx = tracing.NewRequestContext(ctx)
		w.Header().Set(headerRequestID, tracing.GetRequestID(ctx))
		w.Header().Set(headerTraceID, tracing.GetTraceID(ctx))

		logger := tracing.LoggerFromContext(ctx, s.logger)
		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("Gateway received HTTP request")

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}

	srv := &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.mu.Lock()
	s.server = srv
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Starting gateway server")

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Gateway server error")
		}
	}()
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return s.cfg.Addr
	}
	return s.listener.Addr().String()
}

// Stop refuses new requests, closes WebSocket clients and waits for in-flight chats.
func (s *Server) Stop(ctx context.Context) error {
	if !s.shuttingDown.CompareAndSwap(false, true) {
		return nil
	}
	s.logger.Info().Msg("Shutting down gateway server")

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()

	var shutdownErr error
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("failed to shutdown server: %w", err)
		}
	}

	done := make(chan struct{})
	go func() {
		s.inFlight.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info().Msg("All in-flight requests completed")
	case <-ctx.Done():
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	}

	for _, c := range s.conns.All() {
		c.close(websocket.CloseGoingAway, "server shutting down")
	}

	s.logger.Info().Msg("Gateway server stopped")
	return shutdownErr
}

// Connections describes the open WebSocket clients.
func (s *Server) Connections() []ConnectionInfo {
	return s.conns.Infos()
}
